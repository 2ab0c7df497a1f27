package abispec

import (
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethwire/ethwire/hexutil"
)

const wordSize = 32

var maxWord = new(big.Int).Lsh(big.NewInt(1), 256)

// Pack encodes values into calldata following the head/tail layout: static
// values inline in 32-byte slots, dynamic values by offset with their data
// appended after all heads in declaration order.
func (args Arguments) Pack(values ...interface{}) ([]byte, error) {
	if len(values) != len(args) {
		return nil, encErrorf("expected %d values, got %d", len(args), len(values))
	}
	return packComposite(args, values)
}

func packComposite(args Arguments, values []interface{}) ([]byte, error) {
	headSize := 0
	for _, arg := range args {
		headSize += arg.Type.headSize()
	}

	head := make([]byte, 0, headSize)
	var tail []byte
	for i, arg := range args {
		enc, err := packValue(arg.Type, values[i])
		if err != nil {
			if len(arg.Name) > 0 {
				return nil, encErrorf("argument %q: %v", arg.Name, err)
			}
			return nil, err
		}
		if arg.Type.IsDynamic() {
			head = append(head, packWord(big.NewInt(int64(headSize+len(tail))))...)
			tail = append(tail, enc...)
		} else {
			head = append(head, enc...)
		}
	}
	return append(head, tail...), nil
}

func packValue(t Type, v interface{}) ([]byte, error) {
	switch t.Kind {
	case KindUint:
		i, err := toBigInt(v)
		if err != nil {
			return nil, err
		}
		if i.Sign() < 0 || i.BitLen() > t.Size {
			return nil, encErrorf("value %s out of range for %s", i, t)
		}
		return packWord(i), nil

	case KindInt:
		i, err := toBigInt(v)
		if err != nil {
			return nil, err
		}
		bound := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		if i.Cmp(new(big.Int).Neg(bound)) < 0 || i.Cmp(bound) >= 0 {
			return nil, encErrorf("value %s out of range for %s", i, t)
		}
		if i.Sign() < 0 {
			i = new(big.Int).Add(maxWord, i)
		}
		return packWord(i), nil

	case KindAddress:
		addr, err := toAddress(v)
		if err != nil {
			return nil, err
		}
		word := make([]byte, wordSize)
		copy(word[wordSize-common.AddressLength:], addr[:])
		return word, nil

	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, encErrorf("expected bool, got %T", v)
		}
		word := make([]byte, wordSize)
		if b {
			word[wordSize-1] = 1
		}
		return word, nil

	case KindFixedBytes, KindFunction:
		b, ok := v.([]byte)
		if !ok {
			return nil, encErrorf("expected []byte for %s, got %T", t, v)
		}
		if len(b) != t.Size {
			return nil, encErrorf("expected %d bytes for %s, got %d", t.Size, t, len(b))
		}
		word := make([]byte, wordSize)
		copy(word, b)
		return word, nil

	case KindBytes:
		b, ok := v.([]byte)
		if !ok {
			return nil, encErrorf("expected []byte, got %T", v)
		}
		return packLengthPrefixed(b), nil

	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, encErrorf("expected string, got %T", v)
		}
		return packLengthPrefixed([]byte(s)), nil

	case KindArray:
		items, err := toSlice(v)
		if err != nil {
			return nil, err
		}
		if t.Size != DynamicLength && len(items) != t.Size {
			return nil, encErrorf("expected %d elements for %s, got %d", t.Size, t, len(items))
		}
		body, err := packComposite(t.tupleOf(len(items)), items)
		if err != nil {
			return nil, err
		}
		if t.Size == DynamicLength {
			return append(packWord(big.NewInt(int64(len(items)))), body...), nil
		}
		return body, nil

	case KindTuple:
		items, err := toSlice(v)
		if err != nil {
			return nil, err
		}
		if len(items) != len(t.Components) {
			return nil, encErrorf("expected %d members for %s, got %d", len(t.Components), t, len(items))
		}
		return packComposite(t.Components, items)

	default:
		return nil, encErrorf("unsupported kind %d", t.Kind)
	}
}

// packWord encodes a non-negative integer into a 32-byte big-endian slot.
func packWord(i *big.Int) []byte {
	word := make([]byte, wordSize)
	b := i.Bytes()
	copy(word[wordSize-len(b):], b)
	return word
}

func packLengthPrefixed(b []byte) []byte {
	out := packWord(big.NewInt(int64(len(b))))
	out = append(out, b...)
	if pad := len(b) % wordSize; pad != 0 {
		out = append(out, make([]byte, wordSize-pad)...)
	}
	return out
}

func toBigInt(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		return n, nil
	case *hexutil.Quantity:
		return n.ToInt(), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	default:
		return nil, encErrorf("expected integer, got %T", v)
	}
}

func toAddress(v interface{}) (common.Address, error) {
	switch a := v.(type) {
	case common.Address:
		return a, nil
	case string:
		b, err := hexutil.Decode(a)
		if err != nil || len(b) != common.AddressLength {
			return common.Address{}, encErrorf("invalid address %q", a)
		}
		return common.BytesToAddress(b), nil
	default:
		return common.Address{}, encErrorf("expected address, got %T", v)
	}
}

// toSlice views any slice or array value as []interface{} so callers can
// pass []*big.Int, []common.Address and the like directly.
func toSlice(v interface{}) ([]interface{}, error) {
	if items, ok := v.([]interface{}); ok {
		return items, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, encErrorf("expected slice or array, got %T", v)
	}
	items := make([]interface{}, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, nil
}
