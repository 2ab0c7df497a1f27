// Package rlp implements the Recursive Length Prefix serialization format
// used by Ethereum for transaction payloads. Values are byte strings or
// arbitrarily nested lists of values. Decoding is strict: non-canonical
// length encodings are rejected.
package rlp

import (
	"fmt"
)

const (
	shortStringOffset = 0x80
	longStringOffset  = 0xb7
	shortListOffset   = 0xc0
	longListOffset    = 0xf7
	maxShortLength    = 55
)

// MalformedRlpError describes a structural decoding failure.
type MalformedRlpError struct {
	Pos    int
	Reason string
}

func (e *MalformedRlpError) Error() string {
	return fmt.Sprintf("malformed rlp at byte %d: %s", e.Pos, e.Reason)
}

func malformed(pos int, format string, args ...interface{}) error {
	return &MalformedRlpError{Pos: pos, Reason: fmt.Sprintf(format, args...)}
}

// Encode serializes v, which must be a []byte or a []interface{} whose
// elements are themselves encodable values.
func Encode(v interface{}) ([]byte, error) {
	return appendValue(nil, v)
}

// EncodeList serializes items as a single RLP list.
func EncodeList(items ...interface{}) ([]byte, error) {
	return Encode(items)
}

func appendValue(buf []byte, v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return appendString(buf, val), nil
	case []interface{}:
		var payload []byte
		var err error
		for _, item := range val {
			payload, err = appendValue(payload, item)
			if err != nil {
				return nil, err
			}
		}
		buf = appendLength(buf, shortListOffset, len(payload))
		return append(buf, payload...), nil
	default:
		return nil, fmt.Errorf("rlp: unsupported value of type %T", v)
	}
}

func appendString(buf, s []byte) []byte {
	if len(s) == 1 && s[0] < shortStringOffset {
		return append(buf, s[0])
	}
	buf = appendLength(buf, shortStringOffset, len(s))
	return append(buf, s...)
}

func appendLength(buf []byte, offset byte, length int) []byte {
	if length <= maxShortLength {
		return append(buf, offset+byte(length))
	}
	lenBytes := putUint(uint64(length))
	buf = append(buf, offset+maxShortLength+byte(len(lenBytes)))
	return append(buf, lenBytes...)
}

// putUint returns the minimal big-endian representation of u. Zero encodes
// as the empty string.
func putUint(u uint64) []byte {
	var b []byte
	for u > 0 {
		b = append([]byte{byte(u)}, b...)
		u >>= 8
	}
	return b
}

// AppendUint64 returns the RLP byte-string value for u (minimal big-endian
// bytes, empty for zero). The result is an encodable value, not an encoding.
func AppendUint64(u uint64) []byte {
	return putUint(u)
}

// Decode deserializes a single RLP item. Trailing bytes, truncated length
// prefixes and non-canonical encodings fail with MalformedRlpError.
func Decode(b []byte) (interface{}, error) {
	if len(b) == 0 {
		return nil, malformed(0, "empty input")
	}
	v, next, err := decodeValue(b, 0)
	if err != nil {
		return nil, err
	}
	if next != len(b) {
		return nil, malformed(next, "trailing bytes after value")
	}
	return v, nil
}

func decodeValue(b []byte, pos int) (interface{}, int, error) {
	if pos >= len(b) {
		return nil, 0, malformed(pos, "truncated value")
	}
	tag := b[pos]
	switch {
	case tag < shortStringOffset:
		return []byte{tag}, pos + 1, nil

	case tag <= longStringOffset:
		length := int(tag - shortStringOffset)
		payload, next, err := readPayload(b, pos+1, length)
		if err != nil {
			return nil, 0, err
		}
		if length == 1 && payload[0] < shortStringOffset {
			return nil, 0, malformed(pos, "single byte 0x%02x must encode as itself", payload[0])
		}
		return payload, next, nil

	case tag < shortListOffset:
		length, next, err := readLongLength(b, pos, int(tag-longStringOffset))
		if err != nil {
			return nil, 0, err
		}
		payload, next, err := readPayload(b, next, length)
		if err != nil {
			return nil, 0, err
		}
		return payload, next, nil

	case tag <= longListOffset:
		return decodeList(b, pos+1, int(tag-shortListOffset))

	default:
		length, next, err := readLongLength(b, pos, int(tag-longListOffset))
		if err != nil {
			return nil, 0, err
		}
		return decodeList(b, next, length)
	}
}

func decodeList(b []byte, pos, length int) (interface{}, int, error) {
	if pos+length > len(b) {
		return nil, 0, malformed(pos, "list payload of %d bytes exceeds input", length)
	}
	end := pos + length
	items := []interface{}{}
	for pos < end {
		var item interface{}
		var err error
		item, pos, err = decodeValue(b, pos)
		if err != nil {
			return nil, 0, err
		}
		if pos > end {
			return nil, 0, malformed(pos, "list item crosses list boundary")
		}
		items = append(items, item)
	}
	return items, end, nil
}

func readPayload(b []byte, pos, length int) ([]byte, int, error) {
	if pos+length > len(b) {
		return nil, 0, malformed(pos, "string payload of %d bytes exceeds input", length)
	}
	payload := make([]byte, length)
	copy(payload, b[pos:pos+length])
	return payload, pos + length, nil
}

// readLongLength reads a long-form length of lenOfLen bytes starting after
// the tag at pos. Lengths that fit the short form and lengths with leading
// zero bytes are rejected as non-canonical.
func readLongLength(b []byte, pos, lenOfLen int) (int, int, error) {
	start := pos + 1
	if start+lenOfLen > len(b) {
		return 0, 0, malformed(pos, "truncated length prefix")
	}
	if b[start] == 0 {
		return 0, 0, malformed(pos, "length prefix with leading zero byte")
	}
	if lenOfLen > 8 {
		return 0, 0, malformed(pos, "length prefix of %d bytes too large", lenOfLen)
	}
	var length uint64
	for _, c := range b[start : start+lenOfLen] {
		length = length<<8 | uint64(c)
	}
	if length <= maxShortLength {
		return 0, 0, malformed(pos, "length %d must use short form", length)
	}
	if length > uint64(len(b)) {
		return 0, 0, malformed(pos, "declared length %d exceeds input", length)
	}
	return int(length), start + lenOfLen, nil
}
