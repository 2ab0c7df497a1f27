// Package crypto wraps the external Keccak-256 and secp256k1 primitives.
// It serializes nothing itself; the transactions package builds signing
// pre-images and this package hashes, signs and recovers over them.
package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// SignatureLength is the byte length of an [R || S || V] signature with
// V as a bare 0/1 recovery id.
const SignatureLength = 65

// InvalidSignatureError reports an out-of-range or unrecoverable signature.
type InvalidSignatureError struct {
	Reason string
}

func (e *InvalidSignatureError) Error() string {
	return fmt.Sprintf("invalid signature: %s", e.Reason)
}

// Keccak256 computes the Keccak-256 hash of the concatenation of data.
func Keccak256(data ...[]byte) []byte {
	return gethcrypto.Keccak256(data...)
}

// Keccak256Hash computes the Keccak-256 hash as a common.Hash.
func Keccak256Hash(data ...[]byte) common.Hash {
	return gethcrypto.Keccak256Hash(data...)
}

// Sign produces a 65-byte [R || S || V] signature over a 32-byte hash.
func Sign(hash []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	if len(hash) != common.HashLength {
		return nil, &InvalidSignatureError{Reason: fmt.Sprintf("hash must be 32 bytes, got %d", len(hash))}
	}
	return gethcrypto.Sign(hash, key)
}

// RecoverAddress recovers the signing address from a 65-byte [R || S || V]
// signature over hash. V must be a bare 0/1 recovery id.
func RecoverAddress(hash []byte, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, &InvalidSignatureError{Reason: fmt.Sprintf("signature must be 65 bytes, got %d", len(sig))}
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !gethcrypto.ValidateSignatureValues(sig[64], r, s, true) {
		return common.Address{}, &InvalidSignatureError{Reason: "r, s or v out of range"}
	}
	pub, err := gethcrypto.Ecrecover(hash, sig)
	if err != nil {
		return common.Address{}, &InvalidSignatureError{Reason: err.Error()}
	}
	if len(pub) == 0 || pub[0] != 4 {
		return common.Address{}, &InvalidSignatureError{Reason: "recovered point is not uncompressed"}
	}
	var addr common.Address
	copy(addr[:], Keccak256(pub[1:])[12:])
	return addr, nil
}

// ValidateSignatureValues reports whether r, s and the 0/1 recovery id form
// a valid signature under homestead rules (low-s enforced).
func ValidateSignatureValues(v byte, r, s *big.Int) bool {
	return gethcrypto.ValidateSignatureValues(v, r, s, true)
}

// PubkeyToAddress derives the address of an ECDSA public key.
func PubkeyToAddress(pub ecdsa.PublicKey) common.Address {
	return gethcrypto.PubkeyToAddress(pub)
}

// HexToECDSA parses a private key from unprefixed hex. Meant for tests and
// dev tooling; production keys come from an external signer.
func HexToECDSA(hexkey string) (*ecdsa.PrivateKey, error) {
	key, err := gethcrypto.HexToECDSA(hexkey)
	if err != nil {
		return nil, errors.Wrap(err, "parse private key")
	}
	return key, nil
}
