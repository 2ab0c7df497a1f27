package transactions

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/ethwire/ethwire/rlp"
)

// DecodeTransaction parses a signed wire payload back into a transaction.
// A leading byte in the RLP list range means legacy; 0x01..0x03 select the
// typed envelopes.
func DecodeTransaction(b []byte) (Transaction, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("transactions: empty payload")
	}
	if b[0] >= 0xc0 {
		return decodeLegacy(b)
	}
	switch b[0] {
	case AccessListTxType, DynamicFeeTxType, BlobTxType:
		return decodeTyped(b[0], b[1:])
	default:
		return nil, fmt.Errorf("transactions: unsupported transaction type 0x%02x", b[0])
	}
}

func decodeLegacy(b []byte) (Transaction, error) {
	items, err := decodeFieldList(b, 9)
	if err != nil {
		return nil, err
	}
	tx := &LegacyTx{}
	f := fieldReader{items: items}
	tx.Nonce = f.uint64("nonce")
	f.uint256(&tx.GasPrice, "gasPrice")
	tx.Gas = f.uint64("gas")
	tx.To = f.recipient("to")
	f.uint256(&tx.Value, "value")
	tx.Data = f.bytes("data")
	f.uint256(&tx.sig.V, "v")
	f.uint256(&tx.sig.R, "r")
	f.uint256(&tx.sig.S, "s")
	if f.err != nil {
		return nil, f.err
	}
	// Reconstruct the chain id from a protected v so the signing hash can
	// be rebuilt for sender recovery.
	if tx.sig.V.IsUint64() && tx.sig.V.Uint64() >= 35 || !tx.sig.V.IsUint64() {
		var unfolded uint256.Int
		unfolded.SubUint64(&tx.sig.V, 35)
		tx.ChainID.Rsh(&unfolded, 1)
	}
	return tx, nil
}

func decodeTyped(txType byte, payload []byte) (Transaction, error) {
	switch txType {
	case AccessListTxType:
		items, err := decodeFieldList(payload, 11)
		if err != nil {
			return nil, err
		}
		tx := &AccessListTx{}
		f := fieldReader{items: items}
		f.uint256(&tx.ChainID, "chainId")
		tx.Nonce = f.uint64("nonce")
		f.uint256(&tx.GasPrice, "gasPrice")
		tx.Gas = f.uint64("gas")
		tx.To = f.recipient("to")
		f.uint256(&tx.Value, "value")
		tx.Data = f.bytes("data")
		tx.AccessList = f.accessList()
		f.signature(&tx.sig)
		return tx, f.err

	case DynamicFeeTxType:
		items, err := decodeFieldList(payload, 12)
		if err != nil {
			return nil, err
		}
		tx := &DynamicFeeTx{}
		f := fieldReader{items: items}
		f.uint256(&tx.ChainID, "chainId")
		tx.Nonce = f.uint64("nonce")
		f.uint256(&tx.MaxPriorityFeePerGas, "maxPriorityFeePerGas")
		f.uint256(&tx.MaxFeePerGas, "maxFeePerGas")
		tx.Gas = f.uint64("gas")
		tx.To = f.recipient("to")
		f.uint256(&tx.Value, "value")
		tx.Data = f.bytes("data")
		tx.AccessList = f.accessList()
		f.signature(&tx.sig)
		return tx, f.err

	default: // BlobTxType
		items, err := decodeFieldList(payload, 14)
		if err != nil {
			return nil, err
		}
		tx := &BlobTx{}
		f := fieldReader{items: items}
		f.uint256(&tx.ChainID, "chainId")
		tx.Nonce = f.uint64("nonce")
		f.uint256(&tx.MaxPriorityFeePerGas, "maxPriorityFeePerGas")
		f.uint256(&tx.MaxFeePerGas, "maxFeePerGas")
		tx.Gas = f.uint64("gas")
		to := f.recipient("to")
		if f.err == nil && to == nil {
			return nil, ErrNoRecipient
		}
		tx.To = to
		f.uint256(&tx.Value, "value")
		tx.Data = f.bytes("data")
		tx.AccessList = f.accessList()
		f.uint256(&tx.MaxFeePerBlobGas, "maxFeePerBlobGas")
		tx.BlobVersionedHashes = f.hashList("blobVersionedHashes")
		f.signature(&tx.sig)
		return tx, f.err
	}
}

func decodeFieldList(b []byte, want int) ([]interface{}, error) {
	v, err := rlp.Decode(b)
	if err != nil {
		return nil, errors.Wrap(err, "transactions: decode payload")
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("transactions: payload is not a field list")
	}
	if len(items) != want {
		return nil, fmt.Errorf("transactions: expected %d fields, got %d", want, len(items))
	}
	return items, nil
}

// fieldReader walks a decoded RLP field list, keeping the first error.
type fieldReader struct {
	items []interface{}
	pos   int
	err   error
}

func (f *fieldReader) next() interface{} {
	item := f.items[f.pos]
	f.pos++
	return item
}

func (f *fieldReader) bytes(name string) []byte {
	if f.err != nil {
		f.pos++
		return nil
	}
	b, ok := f.next().([]byte)
	if !ok {
		f.err = fmt.Errorf("transactions: field %s is not a byte string", name)
		return nil
	}
	return b
}

// integer rejects byte strings with leading zeros: RLP integers are minimal.
func (f *fieldReader) integer(name string, maxLen int) []byte {
	b := f.bytes(name)
	if f.err != nil {
		return nil
	}
	if len(b) > maxLen {
		f.err = fmt.Errorf("transactions: field %s longer than %d bytes", name, maxLen)
		return nil
	}
	if len(b) > 0 && b[0] == 0 {
		f.err = fmt.Errorf("transactions: field %s has leading zero bytes", name)
		return nil
	}
	return b
}

func (f *fieldReader) uint64(name string) uint64 {
	b := f.integer(name, 8)
	if f.err != nil {
		return 0
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func (f *fieldReader) uint256(dst *uint256.Int, name string) {
	b := f.integer(name, 32)
	if f.err != nil {
		return
	}
	dst.SetBytes(b)
}

func (f *fieldReader) recipient(name string) *common.Address {
	b := f.bytes(name)
	if f.err != nil {
		return nil
	}
	switch len(b) {
	case 0:
		return nil
	case common.AddressLength:
		addr := common.BytesToAddress(b)
		return &addr
	default:
		f.err = fmt.Errorf("transactions: field %s is not an address", name)
		return nil
	}
}

func (f *fieldReader) list(name string) []interface{} {
	if f.err != nil {
		f.pos++
		return nil
	}
	items, ok := f.next().([]interface{})
	if !ok {
		f.err = fmt.Errorf("transactions: field %s is not a list", name)
		return nil
	}
	return items
}

func (f *fieldReader) accessList() AccessList {
	items := f.list("accessList")
	if f.err != nil {
		return nil
	}
	out := make(AccessList, 0, len(items))
	for _, item := range items {
		entry, ok := item.([]interface{})
		if !ok || len(entry) != 2 {
			f.err = fmt.Errorf("transactions: malformed access list entry")
			return nil
		}
		addrBytes, ok := entry[0].([]byte)
		if !ok || len(addrBytes) != common.AddressLength {
			f.err = fmt.Errorf("transactions: malformed access list address")
			return nil
		}
		keyItems, ok := entry[1].([]interface{})
		if !ok {
			f.err = fmt.Errorf("transactions: malformed access list storage keys")
			return nil
		}
		tuple := AccessTuple{Address: common.BytesToAddress(addrBytes)}
		for _, k := range keyItems {
			kb, ok := k.([]byte)
			if !ok || len(kb) != common.HashLength {
				f.err = fmt.Errorf("transactions: malformed storage key")
				return nil
			}
			tuple.StorageKeys = append(tuple.StorageKeys, common.BytesToHash(kb))
		}
		out = append(out, tuple)
	}
	return out
}

func (f *fieldReader) hashList(name string) []common.Hash {
	items := f.list(name)
	if f.err != nil {
		return nil
	}
	out := make([]common.Hash, 0, len(items))
	for _, item := range items {
		b, ok := item.([]byte)
		if !ok || len(b) != common.HashLength {
			f.err = fmt.Errorf("transactions: field %s holds a malformed hash", name)
			return nil
		}
		out = append(out, common.BytesToHash(b))
	}
	return out
}

func (f *fieldReader) signature(sig *Signature) {
	f.uint256(&sig.V, "v")
	f.uint256(&sig.R, "r")
	f.uint256(&sig.S, "s")
}
