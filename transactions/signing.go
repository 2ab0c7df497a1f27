package transactions

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethwire/ethwire/crypto"
)

// SignTx computes the signing hash, signs it with key and attaches the
// signature. Production callers normally hash and sign externally; this
// helper exists for tests and dev tooling that hold raw keys.
func SignTx(tx Transaction, key *ecdsa.PrivateKey) error {
	hash, err := tx.SigningHash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash[:], key)
	if err != nil {
		return err
	}
	return tx.SetSignature(sig)
}

// Sender recovers the signer address from the transaction's embedded
// signature. The recovery id is reconstructed per the transaction type's v
// convention: EIP-155 unfolding for legacy, bare y-parity for typed.
func Sender(tx Transaction) (common.Address, error) {
	sig, err := tx.Signature()
	if err != nil {
		return common.Address{}, err
	}

	var recoveryID byte
	switch t := tx.(type) {
	case *LegacyTx:
		recoveryID, _, err = t.recoveryID()
		if err != nil {
			return common.Address{}, err
		}
	default:
		if !sig.V.IsUint64() || sig.V.Uint64() > 1 {
			return common.Address{}, &crypto.InvalidSignatureError{Reason: "typed transaction y-parity must be 0 or 1"}
		}
		recoveryID = byte(sig.V.Uint64())
	}

	hash, err := tx.SigningHash()
	if err != nil {
		return common.Address{}, err
	}

	raw := make([]byte, crypto.SignatureLength)
	r, s := sig.R.Bytes32(), sig.S.Bytes32()
	copy(raw[:32], r[:])
	copy(raw[32:64], s[:])
	raw[64] = recoveryID
	return crypto.RecoverAddress(hash[:], raw)
}
