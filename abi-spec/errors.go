package abispec

import "fmt"

// AbiEncodingError reports a type/value mismatch or a malformed type string.
// It is a caller bug and is never retried.
type AbiEncodingError struct {
	msg string
}

func (e *AbiEncodingError) Error() string {
	return "abi: " + e.msg
}

func encErrorf(format string, args ...interface{}) error {
	return &AbiEncodingError{msg: fmt.Sprintf(format, args...)}
}

// AbiDecodingError reports calldata that does not match the declared types:
// out-of-bounds offsets, truncated tails or non-canonical padding.
type AbiDecodingError struct {
	msg string
}

func (e *AbiDecodingError) Error() string {
	return "abi: " + e.msg
}

func decErrorf(format string, args ...interface{}) error {
	return &AbiDecodingError{msg: fmt.Sprintf(format, args...)}
}
