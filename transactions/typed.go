package transactions

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ethwire/ethwire/rlp"
)

// typedPayload wraps an RLP field list in the EIP-2718 envelope: a single
// type byte followed by the encoded list.
func typedPayload(txType byte, fields []interface{}) ([]byte, error) {
	enc, err := rlp.Encode(fields)
	if err != nil {
		return nil, err
	}
	return append([]byte{txType}, enc...), nil
}

// setTypedSignature attaches a raw signature using the typed convention:
// v is the bare 0/1 y-parity, no chain id folding.
func setTypedSignature(sig *Signature, raw []byte) error {
	r, s, recoveryID, err := splitSignature(raw)
	if err != nil {
		return err
	}
	sig.R.Set(r)
	sig.S.Set(s)
	sig.V.SetUint64(uint64(recoveryID))
	return nil
}

// AccessListTx is the EIP-2930 transaction: legacy gas pricing plus an
// access list, wrapped in envelope type 0x01.
type AccessListTx struct {
	ChainID    uint256.Int
	Nonce      uint64
	GasPrice   uint256.Int
	Gas        uint64
	To         *common.Address
	Value      uint256.Int
	Data       []byte
	AccessList AccessList

	sig Signature
}

func (tx *AccessListTx) Type() byte { return AccessListTxType }

func (tx *AccessListTx) fields() []interface{} {
	return []interface{}{
		tx.ChainID.Bytes(),
		rlp.AppendUint64(tx.Nonce),
		scalarValue(&tx.GasPrice),
		rlp.AppendUint64(tx.Gas),
		recipientValue(tx.To),
		scalarValue(&tx.Value),
		tx.Data,
		tx.AccessList.rlpValue(),
	}
}

func (tx *AccessListTx) SigningPayload() ([]byte, error) {
	return typedPayload(AccessListTxType, tx.fields())
}

func (tx *AccessListTx) SigningHash() (common.Hash, error) {
	return payloadHash(tx.SigningPayload())
}

func (tx *AccessListTx) SetSignature(sig []byte) error {
	return setTypedSignature(&tx.sig, sig)
}

func (tx *AccessListTx) Signature() (Signature, error) {
	if tx.sig.isZero() {
		return Signature{}, ErrUnsigned
	}
	return tx.sig, nil
}

func (tx *AccessListTx) MarshalBinary() ([]byte, error) {
	if tx.sig.isZero() {
		return nil, ErrUnsigned
	}
	fields := append(tx.fields(), tx.sig.V.Bytes(), tx.sig.R.Bytes(), tx.sig.S.Bytes())
	return typedPayload(AccessListTxType, fields)
}

func (tx *AccessListTx) Hash() (common.Hash, error) {
	return payloadHash(tx.MarshalBinary())
}

// DynamicFeeTx is the EIP-1559 fee-market transaction, envelope type 0x02.
// It replaces the single gas price with a fee cap and a priority tip.
type DynamicFeeTx struct {
	ChainID              uint256.Int
	Nonce                uint64
	MaxPriorityFeePerGas uint256.Int
	MaxFeePerGas         uint256.Int
	Gas                  uint64
	To                   *common.Address
	Value                uint256.Int
	Data                 []byte
	AccessList           AccessList

	sig Signature
}

func (tx *DynamicFeeTx) Type() byte { return DynamicFeeTxType }

func (tx *DynamicFeeTx) fields() []interface{} {
	return []interface{}{
		tx.ChainID.Bytes(),
		rlp.AppendUint64(tx.Nonce),
		scalarValue(&tx.MaxPriorityFeePerGas),
		scalarValue(&tx.MaxFeePerGas),
		rlp.AppendUint64(tx.Gas),
		recipientValue(tx.To),
		scalarValue(&tx.Value),
		tx.Data,
		tx.AccessList.rlpValue(),
	}
}

func (tx *DynamicFeeTx) SigningPayload() ([]byte, error) {
	return typedPayload(DynamicFeeTxType, tx.fields())
}

func (tx *DynamicFeeTx) SigningHash() (common.Hash, error) {
	return payloadHash(tx.SigningPayload())
}

func (tx *DynamicFeeTx) SetSignature(sig []byte) error {
	return setTypedSignature(&tx.sig, sig)
}

func (tx *DynamicFeeTx) Signature() (Signature, error) {
	if tx.sig.isZero() {
		return Signature{}, ErrUnsigned
	}
	return tx.sig, nil
}

func (tx *DynamicFeeTx) MarshalBinary() ([]byte, error) {
	if tx.sig.isZero() {
		return nil, ErrUnsigned
	}
	fields := append(tx.fields(), tx.sig.V.Bytes(), tx.sig.R.Bytes(), tx.sig.S.Bytes())
	return typedPayload(DynamicFeeTxType, fields)
}

func (tx *DynamicFeeTx) Hash() (common.Hash, error) {
	return payloadHash(tx.MarshalBinary())
}

// BlobTx is the EIP-4844 blob-carrying transaction, envelope type 0x03.
// Only the blob fee cap and versioned hashes travel in the payload; blob
// data itself moves in the sidecar and never enters the signing pre-image.
type BlobTx struct {
	ChainID              uint256.Int
	Nonce                uint64
	MaxPriorityFeePerGas uint256.Int
	MaxFeePerGas         uint256.Int
	Gas                  uint64
	To                   *common.Address // must be set, blob txs cannot create contracts
	Value                uint256.Int
	Data                 []byte
	AccessList           AccessList
	MaxFeePerBlobGas     uint256.Int
	BlobVersionedHashes  []common.Hash

	sig Signature
}

func (tx *BlobTx) Type() byte { return BlobTxType }

func (tx *BlobTx) fields() ([]interface{}, error) {
	if tx.To == nil {
		return nil, ErrNoRecipient
	}
	hashes := make([]interface{}, len(tx.BlobVersionedHashes))
	for i, h := range tx.BlobVersionedHashes {
		hashes[i] = h.Bytes()
	}
	return []interface{}{
		tx.ChainID.Bytes(),
		rlp.AppendUint64(tx.Nonce),
		scalarValue(&tx.MaxPriorityFeePerGas),
		scalarValue(&tx.MaxFeePerGas),
		rlp.AppendUint64(tx.Gas),
		tx.To.Bytes(),
		scalarValue(&tx.Value),
		tx.Data,
		tx.AccessList.rlpValue(),
		scalarValue(&tx.MaxFeePerBlobGas),
		hashes,
	}, nil
}

func (tx *BlobTx) SigningPayload() ([]byte, error) {
	fields, err := tx.fields()
	if err != nil {
		return nil, err
	}
	return typedPayload(BlobTxType, fields)
}

func (tx *BlobTx) SigningHash() (common.Hash, error) {
	return payloadHash(tx.SigningPayload())
}

func (tx *BlobTx) SetSignature(sig []byte) error {
	return setTypedSignature(&tx.sig, sig)
}

func (tx *BlobTx) Signature() (Signature, error) {
	if tx.sig.isZero() {
		return Signature{}, ErrUnsigned
	}
	return tx.sig, nil
}

func (tx *BlobTx) MarshalBinary() ([]byte, error) {
	if tx.sig.isZero() {
		return nil, ErrUnsigned
	}
	fields, err := tx.fields()
	if err != nil {
		return nil, err
	}
	fields = append(fields, tx.sig.V.Bytes(), tx.sig.R.Bytes(), tx.sig.S.Bytes())
	return typedPayload(BlobTxType, fields)
}

func (tx *BlobTx) Hash() (common.Hash, error) {
	return payloadHash(tx.MarshalBinary())
}
