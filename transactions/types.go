// Package transactions implements the per-type byte layout of Ethereum
// transactions: RLP field lists, the typed-envelope prefixes, EIP-155 v
// encoding and signature attachment/recovery.
package transactions

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ethwire/ethwire/crypto"
)

// Transaction type tags. The legacy type has no envelope prefix on the wire.
const (
	LegacyTxType     = byte(0x00)
	AccessListTxType = byte(0x01)
	DynamicFeeTxType = byte(0x02)
	BlobTxType       = byte(0x03)
)

var (
	// ErrUnsigned is returned when a wire payload is requested from a
	// transaction that has no signature attached.
	ErrUnsigned = errors.New("transactions: transaction is not signed")

	// ErrNoRecipient is returned for blob transactions without a
	// destination; the blob type cannot deploy contracts.
	ErrNoRecipient = errors.New("transactions: blob transaction requires a recipient")
)

// Transaction is one of the concrete transaction types. The lifecycle is:
// build unsigned, hash SigningPayload, sign externally, attach the raw
// signature, then MarshalBinary for eth_sendRawTransaction.
type Transaction interface {
	// Type returns the envelope type tag (LegacyTxType for legacy).
	Type() byte

	// SigningPayload returns the deterministic pre-image to sign: the
	// type-prefixed RLP field list without signature fields, or for
	// legacy transactions the EIP-155 form with the chain id folded in.
	SigningPayload() ([]byte, error)

	// SetSignature attaches a 65-byte [R || S || recoveryId] signature,
	// converting the recovery id to the type's v convention.
	SetSignature(sig []byte) error

	// Signature returns the attached (v, r, s) values.
	Signature() (Signature, error)

	// MarshalBinary returns the final wire payload of the signed
	// transaction.
	MarshalBinary() ([]byte, error)

	// SigningHash is the keccak-256 hash of SigningPayload.
	SigningHash() (common.Hash, error)

	// Hash is the keccak-256 hash of the signed wire payload.
	Hash() (common.Hash, error)
}

// Signature holds the wire-form signature components. For legacy
// transactions V carries the EIP-155 folded value (or 27/28 when
// unprotected); for typed transactions V is the bare 0/1 y-parity.
type Signature struct {
	V, R, S uint256.Int
}

func (sig Signature) isZero() bool {
	return sig.V.IsZero() && sig.R.IsZero() && sig.S.IsZero()
}

// AccessTuple is one entry of an EIP-2930 access list.
type AccessTuple struct {
	Address     common.Address `json:"address"`
	StorageKeys []common.Hash  `json:"storageKeys"`
}

// AccessList is an EIP-2930 access list.
type AccessList []AccessTuple

// rlpValue renders the access list as a nested RLP value.
func (al AccessList) rlpValue() []interface{} {
	out := make([]interface{}, len(al))
	for i, tuple := range al {
		keys := make([]interface{}, len(tuple.StorageKeys))
		for j, key := range tuple.StorageKeys {
			keys[j] = key.Bytes()
		}
		out[i] = []interface{}{tuple.Address.Bytes(), keys}
	}
	return out
}

// splitSignature validates a raw 65-byte signature and returns r, s and the
// recovery id.
func splitSignature(sig []byte) (r, s *uint256.Int, recoveryID byte, err error) {
	if len(sig) != crypto.SignatureLength {
		return nil, nil, 0, &crypto.InvalidSignatureError{
			Reason: fmt.Sprintf("signature must be 65 bytes, got %d", len(sig)),
		}
	}
	r = new(uint256.Int).SetBytes(sig[:32])
	s = new(uint256.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(sig[64], r.ToBig(), s.ToBig()) {
		return nil, nil, 0, &crypto.InvalidSignatureError{Reason: "r, s or recovery id out of range"}
	}
	return r, s, sig[64], nil
}

// scalarValue renders a uint256 scalar as a minimal-length RLP byte string.
// Nil encodes like zero.
func scalarValue(i *uint256.Int) []byte {
	if i == nil {
		return nil
	}
	return i.Bytes()
}

// recipientValue renders an optional destination; nil means contract
// creation and encodes as the empty string.
func recipientValue(to *common.Address) []byte {
	if to == nil {
		return nil
	}
	return to.Bytes()
}

func payloadHash(payload []byte, err error) (common.Hash, error) {
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(payload), nil
}
