// Package hexutil implements the hex encoding used by the Ethereum JSON-RPC
// wire format: byte sequences as 0x-prefixed even-length hex, and quantities
// as minimal-length hex with no leading zero digits.
package hexutil

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
)

// Errors returned by the decoders.
var (
	ErrEmptyString   = &decodeError{"empty hex string"}
	ErrMissingPrefix = &decodeError{"hex string without 0x prefix"}
	ErrOddLength     = &decodeError{"hex string of odd length"}
	ErrEmptyNumber   = &decodeError{"hex string \"0x\""}
	ErrLeadingZero   = &decodeError{"hex number with leading zero digits"}
	ErrSyntax        = &decodeError{"invalid hex string"}
	ErrUint64Range   = &decodeError{"hex number > 64 bits"}
	ErrNegative      = &decodeError{"negative hex quantity"}
)

type decodeError struct{ msg string }

func (err *decodeError) Error() string { return err.msg }

// Encode encodes b as a 0x-prefixed hex string.
func Encode(b []byte) string {
	enc := make([]byte, len(b)*2+2)
	copy(enc, "0x")
	hex.Encode(enc[2:], b)
	return string(enc)
}

// Decode decodes a 0x-prefixed hex string with an even number of digits.
func Decode(input string) ([]byte, error) {
	if len(input) == 0 {
		return nil, ErrEmptyString
	}
	if !has0xPrefix(input) {
		return nil, ErrMissingPrefix
	}
	if len(input)%2 != 0 {
		return nil, ErrOddLength
	}
	b, err := hex.DecodeString(input[2:])
	if err != nil {
		return nil, ErrSyntax
	}
	return b, nil
}

// MustDecode decodes a hex string. It panics for invalid input and is meant
// for hard-coded fixtures.
func MustDecode(input string) []byte {
	b, err := Decode(input)
	if err != nil {
		panic(fmt.Sprintf("hexutil: invalid fixture %q: %v", input, err))
	}
	return b
}

// EncodeQuantity encodes i as a minimal-length hex quantity. The zero value
// encodes as "0x0". Quantities are non-negative; a negative value panics.
func EncodeQuantity(i *big.Int) string {
	if i == nil || i.Sign() == 0 {
		return "0x0"
	}
	if i.Sign() < 0 {
		panic("hexutil: negative quantity")
	}
	return "0x" + i.Text(16)
}

// DecodeQuantity decodes a hex quantity. Leading zero digits are rejected:
// "0x0" is the only encoding of zero and "0x01" is invalid.
func DecodeQuantity(input string) (*big.Int, error) {
	raw, err := checkQuantity(input)
	if err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(raw, 16)
	if !ok {
		return nil, ErrSyntax
	}
	return v, nil
}

// EncodeUint64 encodes u as a minimal-length hex quantity.
func EncodeUint64(u uint64) string {
	return "0x" + strconv.FormatUint(u, 16)
}

// DecodeUint64 decodes a hex quantity that must fit in 64 bits.
func DecodeUint64(input string) (uint64, error) {
	raw, err := checkQuantity(input)
	if err != nil {
		return 0, err
	}
	if len(raw) > 16 {
		return 0, ErrUint64Range
	}
	v, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return 0, ErrSyntax
	}
	return v, nil
}

func checkQuantity(input string) (string, error) {
	if len(input) == 0 {
		return "", ErrEmptyString
	}
	if !has0xPrefix(input) {
		return "", ErrMissingPrefix
	}
	raw := input[2:]
	if len(raw) == 0 {
		return "", ErrEmptyNumber
	}
	if len(raw) > 1 && raw[0] == '0' {
		return "", ErrLeadingZero
	}
	// hex digits only: big.Int.SetString would also take a sign or
	// underscores
	for i := 0; i < len(raw); i++ {
		if !isHexDigit(raw[i]) {
			return "", ErrSyntax
		}
	}
	return raw, nil
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func has0xPrefix(input string) bool {
	return len(input) >= 2 && input[0] == '0' && (input[1] == 'x' || input[1] == 'X')
}
