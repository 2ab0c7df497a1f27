package abispec

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Unpack decodes calldata into one value per argument. Every head offset and
// stated length is bounds-checked against the buffer before it is followed.
func (args Arguments) Unpack(data []byte) ([]interface{}, error) {
	return unpackComposite(args, data)
}

// unpackComposite decodes a head/tail block. Offsets inside the block are
// relative to its start.
func unpackComposite(args Arguments, block []byte) ([]interface{}, error) {
	values := make([]interface{}, 0, len(args))
	pos := 0
	for _, arg := range args {
		t := arg.Type
		if t.IsDynamic() {
			offset, err := unpackOffset(block, pos)
			if err != nil {
				return nil, err
			}
			v, err := unpackDynamic(t, block[offset:])
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			pos += wordSize
			continue
		}
		size := t.headSize()
		if pos+size > len(block) {
			return nil, decErrorf("static value for %s at %d exceeds buffer of %d bytes", t, pos, len(block))
		}
		v, err := unpackStatic(t, block[pos:pos+size])
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		pos += size
	}
	return values, nil
}

// unpackStatic decodes a static value from its exact head slice.
func unpackStatic(t Type, word []byte) (interface{}, error) {
	switch t.Kind {
	case KindUint:
		i := new(big.Int).SetBytes(word)
		if i.BitLen() > t.Size {
			return nil, decErrorf("value exceeds %d bits for %s", t.Size, t)
		}
		return i, nil

	case KindInt:
		i := new(big.Int).SetBytes(word)
		if word[0]&0x80 != 0 {
			i.Sub(i, maxWord)
		}
		bound := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		if i.Cmp(new(big.Int).Neg(bound)) < 0 || i.Cmp(bound) >= 0 {
			return nil, decErrorf("value out of range for %s", t)
		}
		return i, nil

	case KindAddress:
		return common.BytesToAddress(word[wordSize-common.AddressLength:]), nil

	case KindBool:
		for _, b := range word[:wordSize-1] {
			if b != 0 {
				return nil, decErrorf("non-zero padding in bool slot")
			}
		}
		switch word[wordSize-1] {
		case 0:
			return false, nil
		case 1:
			return true, nil
		default:
			return nil, decErrorf("invalid bool value %d", word[wordSize-1])
		}

	case KindFixedBytes, KindFunction:
		out := make([]byte, t.Size)
		copy(out, word[:t.Size])
		return out, nil

	case KindArray:
		return unpackStaticComposite(t.tupleOf(t.Size), word)

	case KindTuple:
		return unpackStaticComposite(t.Components, word)

	default:
		return nil, decErrorf("static decode of dynamic kind %d", t.Kind)
	}
}

func unpackStaticComposite(args Arguments, block []byte) ([]interface{}, error) {
	values := make([]interface{}, 0, len(args))
	pos := 0
	for _, arg := range args {
		size := arg.Type.headSize()
		if pos+size > len(block) {
			return nil, decErrorf("static composite exceeds buffer")
		}
		v, err := unpackStatic(arg.Type, block[pos:pos+size])
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		pos += size
	}
	return values, nil
}

// unpackDynamic decodes a dynamic value whose encoding starts at the
// beginning of block.
func unpackDynamic(t Type, block []byte) (interface{}, error) {
	switch t.Kind {
	case KindBytes:
		return unpackLengthPrefixed(block)

	case KindString:
		b, err := unpackLengthPrefixed(block)
		if err != nil {
			return nil, err
		}
		return string(b), nil

	case KindArray:
		length := t.Size
		body := block
		if t.Size == DynamicLength {
			n, err := unpackLength(block)
			if err != nil {
				return nil, err
			}
			length = n
			body = block[wordSize:]
		}
		return unpackComposite(t.tupleOf(length), body)

	case KindTuple:
		return unpackComposite(t.Components, block)

	default:
		return nil, decErrorf("dynamic decode of static kind %d", t.Kind)
	}
}

func unpackOffset(block []byte, pos int) (int, error) {
	if pos+wordSize > len(block) {
		return 0, decErrorf("offset slot at %d exceeds buffer of %d bytes", pos, len(block))
	}
	offset := new(big.Int).SetBytes(block[pos : pos+wordSize])
	if !offset.IsInt64() || offset.Int64() > int64(len(block)) {
		return 0, decErrorf("offset %s points outside buffer of %d bytes", offset, len(block))
	}
	return int(offset.Int64()), nil
}

func unpackLength(block []byte) (int, error) {
	if len(block) < wordSize {
		return 0, decErrorf("truncated length prefix")
	}
	length := new(big.Int).SetBytes(block[:wordSize])
	if !length.IsInt64() || length.Int64() > int64(len(block)) {
		return 0, decErrorf("length %s exceeds buffer of %d bytes", length, len(block))
	}
	return int(length.Int64()), nil
}

func unpackLengthPrefixed(block []byte) ([]byte, error) {
	length, err := unpackLength(block)
	if err != nil {
		return nil, err
	}
	padded := (length + wordSize - 1) / wordSize * wordSize
	if wordSize+padded > len(block) {
		return nil, decErrorf("data of %d bytes reads past end of buffer", length)
	}
	out := make([]byte, length)
	copy(out, block[wordSize:wordSize+length])
	return out, nil
}
