package hexutil

import (
	"encoding/json"
	"math/big"
)

// Bytes is a byte slice that marshals as a 0x-prefixed hex string.
type Bytes []byte

// MarshalJSON implements json.Marshaler.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(Encode(b))
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bytes) UnmarshalJSON(input []byte) error {
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return err
	}
	dec, err := Decode(s)
	if err != nil {
		return err
	}
	*b = dec
	return nil
}

func (b Bytes) String() string { return Encode(b) }

// Quantity is an arbitrary-precision non-negative integer that marshals as a
// minimal-length hex quantity.
type Quantity big.Int

// NewQuantity wraps i. The caller keeps ownership of i.
func NewQuantity(i *big.Int) *Quantity { return (*Quantity)(i) }

// QuantityFromUint64 returns a quantity holding u.
func QuantityFromUint64(u uint64) *Quantity {
	return (*Quantity)(new(big.Int).SetUint64(u))
}

// ToInt returns the quantity as *big.Int.
func (q *Quantity) ToInt() *big.Int { return (*big.Int)(q) }

// MarshalJSON implements json.Marshaler.
func (q *Quantity) MarshalJSON() ([]byte, error) {
	if (*big.Int)(q).Sign() < 0 {
		return nil, ErrNegative
	}
	return json.Marshal(EncodeQuantity((*big.Int)(q)))
}

// UnmarshalJSON implements json.Unmarshaler.
func (q *Quantity) UnmarshalJSON(input []byte) error {
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return err
	}
	dec, err := DecodeQuantity(s)
	if err != nil {
		return err
	}
	(*big.Int)(q).Set(dec)
	return nil
}

func (q *Quantity) String() string { return EncodeQuantity((*big.Int)(q)) }

// Uint64 is a 64-bit quantity that marshals as minimal-length hex.
type Uint64 uint64

// MarshalJSON implements json.Marshaler.
func (u Uint64) MarshalJSON() ([]byte, error) {
	return json.Marshal(EncodeUint64(uint64(u)))
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *Uint64) UnmarshalJSON(input []byte) error {
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return err
	}
	dec, err := DecodeUint64(s)
	if err != nil {
		return err
	}
	*u = Uint64(dec)
	return nil
}

func (u Uint64) String() string { return EncodeUint64(uint64(u)) }
