package transactions

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ethwire/ethwire/crypto"
	"github.com/ethwire/ethwire/rlp"
)

// LegacyTx is the original transaction format. It has no envelope prefix;
// replay protection comes from folding the chain id into v per EIP-155.
// A zero ChainID produces a pre-EIP-155 unprotected signature.
type LegacyTx struct {
	ChainID  uint256.Int
	Nonce    uint64
	GasPrice uint256.Int
	Gas      uint64
	To       *common.Address // nil means contract creation
	Value    uint256.Int
	Data     []byte

	sig Signature
}

func (tx *LegacyTx) Type() byte { return LegacyTxType }

func (tx *LegacyTx) fields() []interface{} {
	return []interface{}{
		rlp.AppendUint64(tx.Nonce),
		scalarValue(&tx.GasPrice),
		rlp.AppendUint64(tx.Gas),
		recipientValue(tx.To),
		scalarValue(&tx.Value),
		tx.Data,
	}
}

func (tx *LegacyTx) SigningPayload() ([]byte, error) {
	fields := tx.fields()
	if !tx.ChainID.IsZero() {
		// EIP-155: [..., chainId, 0, 0]
		fields = append(fields, tx.ChainID.Bytes(), []byte(nil), []byte(nil))
	}
	return rlp.Encode(fields)
}

func (tx *LegacyTx) SigningHash() (common.Hash, error) {
	return payloadHash(tx.SigningPayload())
}

// SetSignature attaches a raw signature, folding the chain id into v:
// v = recoveryId + chainId*2 + 35, or 27/28 when no chain id is set.
func (tx *LegacyTx) SetSignature(sig []byte) error {
	r, s, recoveryID, err := splitSignature(sig)
	if err != nil {
		return err
	}
	tx.sig.R.Set(r)
	tx.sig.S.Set(s)
	if tx.ChainID.IsZero() {
		tx.sig.V.SetUint64(uint64(recoveryID) + 27)
	} else {
		tx.sig.V.SetUint64(uint64(recoveryID) + 35)
		var doubled uint256.Int
		doubled.Lsh(&tx.ChainID, 1)
		tx.sig.V.Add(&tx.sig.V, &doubled)
	}
	return nil
}

func (tx *LegacyTx) Signature() (Signature, error) {
	if tx.sig.isZero() {
		return Signature{}, ErrUnsigned
	}
	return tx.sig, nil
}

func (tx *LegacyTx) MarshalBinary() ([]byte, error) {
	if tx.sig.isZero() {
		return nil, ErrUnsigned
	}
	fields := append(tx.fields(), tx.sig.V.Bytes(), tx.sig.R.Bytes(), tx.sig.S.Bytes())
	return rlp.Encode(fields)
}

func (tx *LegacyTx) Hash() (common.Hash, error) {
	return payloadHash(tx.MarshalBinary())
}

// recoveryID converts the folded v back to a bare 0/1 recovery id and
// reports whether the signature is EIP-155 protected.
func (tx *LegacyTx) recoveryID() (byte, bool, error) {
	v := &tx.sig.V
	if v.IsUint64() && (v.Uint64() == 27 || v.Uint64() == 28) {
		return byte(v.Uint64() - 27), false, nil
	}
	if v.IsUint64() && v.Uint64() < 35 {
		return 0, false, &crypto.InvalidSignatureError{Reason: "legacy v out of range"}
	}
	var unfolded uint256.Int
	unfolded.SubUint64(v, 35)
	recoveryID := byte(unfolded.Uint64() & 1)
	var derived uint256.Int
	derived.Rsh(&unfolded, 1)
	if !tx.ChainID.IsZero() && !tx.ChainID.Eq(&derived) {
		return 0, false, &crypto.InvalidSignatureError{
			Reason: "v encodes a different chain id than the transaction",
		}
	}
	return recoveryID, true, nil
}
