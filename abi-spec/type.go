// Package abispec implements the contract ABI encoding: Solidity-style type
// parsing, calldata packing/unpacking and function/event selectors.
package abispec

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// TypeKind discriminates the parsed type grammar.
type TypeKind int

const (
	KindUint TypeKind = iota
	KindInt
	KindAddress
	KindBool
	KindFixedBytes
	KindFunction
	KindBytes
	KindString
	KindArray
	KindTuple
)

// DynamicLength marks a dynamically sized array.
const DynamicLength = -1

// Type is a parsed Solidity-style type. Malformed type strings fail in
// NewType; encoding never re-validates the grammar.
type Type struct {
	Kind TypeKind

	// Size is the bit width for uint/int, the byte width for fixed bytes
	// and the element count for fixed arrays (DynamicLength otherwise).
	Size int

	Elem       *Type      // array element
	Components []Argument // tuple members

	str string // canonical form, as used in signatures
}

// Argument is a named, typed parameter of a function or event.
type Argument struct {
	Name    string
	Type    Type
	Indexed bool // events only
}

// Arguments is an ordered parameter list.
type Arguments []Argument

// ArgumentMarshaling mirrors one entry of the ABI JSON descriptor grammar.
type ArgumentMarshaling struct {
	Name       string               `json:"name"`
	Type       string               `json:"type"`
	Components []ArgumentMarshaling `json:"components,omitempty"`
	Indexed    bool                 `json:"indexed,omitempty"`
}

var elementaryPattern = regexp.MustCompile(`^(uint|int|bytes)([0-9]*)$`)

// NewType parses a type string, resolving tuples against components.
func NewType(s string, components []ArgumentMarshaling) (Type, error) {
	if i := strings.IndexByte(s, '['); i >= 0 {
		elem, err := NewType(s[:i], components)
		if err != nil {
			return Type{}, err
		}
		return parseArraySuffix(elem, s[i:])
	}
	return newElementaryType(s, components)
}

func parseArraySuffix(elem Type, suffix string) (Type, error) {
	rest := suffix
	t := elem
	for len(rest) > 0 {
		close := strings.IndexByte(rest, ']')
		if rest[0] != '[' || close < 0 {
			return Type{}, &AbiEncodingError{msg: fmt.Sprintf("malformed array suffix %q", suffix)}
		}
		dim := rest[1:close]
		inner := t
		switch {
		case dim == "":
			t = Type{Kind: KindArray, Size: DynamicLength, Elem: &inner, str: inner.str + "[]"}
		default:
			n, err := strconv.Atoi(dim)
			if err != nil || n <= 0 {
				return Type{}, &AbiEncodingError{msg: fmt.Sprintf("invalid array length %q", dim)}
			}
			t = Type{Kind: KindArray, Size: n, Elem: &inner, str: fmt.Sprintf("%s[%d]", inner.str, n)}
		}
		rest = rest[close+1:]
	}
	return t, nil
}

func newElementaryType(s string, components []ArgumentMarshaling) (Type, error) {
	switch s {
	case "address":
		return Type{Kind: KindAddress, str: "address"}, nil
	case "bool":
		return Type{Kind: KindBool, str: "bool"}, nil
	case "string":
		return Type{Kind: KindString, str: "string"}, nil
	case "bytes":
		return Type{Kind: KindBytes, str: "bytes"}, nil
	case "function":
		return Type{Kind: KindFunction, Size: 24, str: "function"}, nil
	case "uint":
		return Type{Kind: KindUint, Size: 256, str: "uint256"}, nil
	case "int":
		return Type{Kind: KindInt, Size: 256, str: "int256"}, nil
	case "tuple":
		return newTupleType(components)
	}

	m := elementaryPattern.FindStringSubmatch(s)
	if m == nil {
		return Type{}, &AbiEncodingError{msg: fmt.Sprintf("unsupported type %q", s)}
	}
	size, err := strconv.Atoi(m[2])
	if err != nil {
		return Type{}, &AbiEncodingError{msg: fmt.Sprintf("unsupported type %q", s)}
	}
	switch m[1] {
	case "uint", "int":
		if size < 8 || size > 256 || size%8 != 0 {
			return Type{}, &AbiEncodingError{msg: fmt.Sprintf("invalid integer width in %q", s)}
		}
		kind := KindUint
		if m[1] == "int" {
			kind = KindInt
		}
		return Type{Kind: kind, Size: size, str: s}, nil
	default: // bytes
		if size < 1 || size > 32 {
			return Type{}, &AbiEncodingError{msg: fmt.Sprintf("invalid fixed bytes width in %q", s)}
		}
		return Type{Kind: KindFixedBytes, Size: size, str: s}, nil
	}
}

func newTupleType(components []ArgumentMarshaling) (Type, error) {
	if len(components) == 0 {
		return Type{}, &AbiEncodingError{msg: "tuple type without components"}
	}
	args := make(Arguments, 0, len(components))
	names := make([]string, 0, len(components))
	for _, c := range components {
		ct, err := NewType(c.Type, c.Components)
		if err != nil {
			return Type{}, err
		}
		args = append(args, Argument{Name: c.Name, Type: ct})
		names = append(names, ct.str)
	}
	return Type{
		Kind:       KindTuple,
		Components: args,
		str:        "(" + strings.Join(names, ",") + ")",
	}, nil
}

// String returns the canonical type string used in signatures.
func (t Type) String() string { return t.str }

// IsDynamic reports whether values of t are passed by offset in the head.
func (t Type) IsDynamic() bool {
	switch t.Kind {
	case KindBytes, KindString:
		return true
	case KindArray:
		return t.Size == DynamicLength || t.Elem.IsDynamic()
	case KindTuple:
		for _, c := range t.Components {
			if c.Type.IsDynamic() {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// headSize returns the number of bytes t occupies in the head section.
func (t Type) headSize() int {
	if t.IsDynamic() {
		return wordSize
	}
	switch t.Kind {
	case KindArray:
		return t.Size * t.Elem.headSize()
	case KindTuple:
		total := 0
		for _, c := range t.Components {
			total += c.Type.headSize()
		}
		return total
	default:
		return wordSize
	}
}

// tupleOf views the members of a composite type (tuple or array) as an
// argument list, which lets arrays reuse the tuple head/tail layout.
func (t Type) tupleOf(length int) Arguments {
	if t.Kind == KindTuple {
		return t.Components
	}
	args := make(Arguments, length)
	for i := range args {
		args[i] = Argument{Type: *t.Elem}
	}
	return args
}
