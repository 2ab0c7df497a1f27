package abispec

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethwire/ethwire/crypto"
)

// Signature returns the canonical signature string: the name followed by the
// comma-joined canonical type names, with no parameter names or location
// qualifiers.
func Signature(name string, args Arguments) string {
	types := make([]string, len(args))
	for i, arg := range args {
		types[i] = arg.Type.String()
	}
	return name + "(" + strings.Join(types, ",") + ")"
}

// FunctionSelector returns the first 4 bytes of the keccak-256 hash of the
// canonical signature.
func FunctionSelector(name string, args Arguments) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(Signature(name, args)))[:4])
	return sel
}

// EventTopic returns the full 32-byte keccak-256 hash of the canonical
// signature, as used in log topic position zero.
func EventTopic(name string, args Arguments) common.Hash {
	return crypto.Keccak256Hash([]byte(Signature(name, args)))
}
