package hexutil

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeBytes(t *testing.T) {
	cases := []struct {
		bytes []byte
		hex   string
	}{
		{[]byte{}, "0x"},
		{[]byte{0}, "0x00"},
		{[]byte{0xde, 0xad, 0xbe, 0xef}, "0xdeadbeef"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.hex, Encode(tc.bytes))
		dec, err := Decode(tc.hex)
		require.NoError(t, err)
		require.Equal(t, tc.bytes, dec)
	}
}

func TestDecodeBytesErrors(t *testing.T) {
	_, err := Decode("")
	require.ErrorIs(t, err, ErrEmptyString)
	_, err = Decode("deadbeef")
	require.ErrorIs(t, err, ErrMissingPrefix)
	_, err = Decode("0xabc")
	require.ErrorIs(t, err, ErrOddLength)
	_, err = Decode("0xzz")
	require.ErrorIs(t, err, ErrSyntax)
}

func TestQuantityRoundTrip(t *testing.T) {
	large, ok := new(big.Int).SetString("ffffffffffffffffffffffffffffffff", 16)
	require.True(t, ok)

	for _, v := range []*big.Int{big.NewInt(0), big.NewInt(1), big.NewInt(1024), large} {
		enc := EncodeQuantity(v)
		dec, err := DecodeQuantity(enc)
		require.NoError(t, err)
		require.Zero(t, v.Cmp(dec), "round trip of %s", enc)
	}
}

func TestQuantityCanonical(t *testing.T) {
	dec, err := DecodeQuantity("0x0")
	require.NoError(t, err)
	require.Zero(t, dec.Sign())

	_, err = DecodeQuantity("0x01")
	require.ErrorIs(t, err, ErrLeadingZero)
	_, err = DecodeQuantity("0x")
	require.ErrorIs(t, err, ErrEmptyNumber)
	_, err = DecodeQuantity("0")
	require.ErrorIs(t, err, ErrMissingPrefix)

	require.Equal(t, "0x0", EncodeQuantity(nil))
	require.Equal(t, "0x400", EncodeQuantity(big.NewInt(1024)))
}

func TestQuantityRejectsSignedInput(t *testing.T) {
	for _, input := range []string{"0x-1", "0x+1", "0x-0", "0x1_0", "0x 1"} {
		_, err := DecodeQuantity(input)
		require.ErrorIs(t, err, ErrSyntax, "input %q", input)
		_, err = DecodeUint64(input)
		require.ErrorIs(t, err, ErrSyntax, "input %q", input)
	}

	require.Panics(t, func() { EncodeQuantity(big.NewInt(-1)) })

	negative := NewQuantity(big.NewInt(-1))
	_, err := json.Marshal(negative)
	require.Error(t, err)
}

func TestDecodeUint64(t *testing.T) {
	v, err := DecodeUint64("0x2a")
	require.NoError(t, err)
	require.Equal(t, uint64(42), v)

	_, err = DecodeUint64("0x10000000000000000")
	require.ErrorIs(t, err, ErrUint64Range)
	_, err = DecodeUint64("0x01")
	require.ErrorIs(t, err, ErrLeadingZero)
}

func TestJSONTypes(t *testing.T) {
	var b Bytes
	require.NoError(t, json.Unmarshal([]byte(`"0xdeadbeef"`), &b))
	require.Equal(t, Bytes{0xde, 0xad, 0xbe, 0xef}, b)
	out, err := json.Marshal(b)
	require.NoError(t, err)
	require.Equal(t, `"0xdeadbeef"`, string(out))

	q := new(Quantity)
	require.NoError(t, json.Unmarshal([]byte(`"0x400"`), q))
	require.Equal(t, int64(1024), q.ToInt().Int64())
	require.Error(t, json.Unmarshal([]byte(`"0x01"`), q))

	var u Uint64
	require.NoError(t, json.Unmarshal([]byte(`"0x0"`), &u))
	require.Equal(t, Uint64(0), u)
	out, err = json.Marshal(Uint64(15))
	require.NoError(t, err)
	require.Equal(t, `"0xf"`, string(out))
}
