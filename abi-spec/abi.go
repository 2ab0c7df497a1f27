package abispec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Method is a function or custom error entry of a contract ABI.
type Method struct {
	Name    string
	Inputs  Arguments
	Outputs Arguments
	Sig     string
	ID      [4]byte
}

// Event is an event entry of a contract ABI.
type Event struct {
	Name   string
	Inputs Arguments
	Sig    string
	ID     common.Hash
}

// ABI holds the parsed descriptor of a contract interface.
type ABI struct {
	Methods map[string]Method
	Events  map[string]Event
	Errors  map[string]Method
}

type fieldMarshaling struct {
	Name    string               `json:"name"`
	Type    string               `json:"type"`
	Inputs  []ArgumentMarshaling `json:"inputs"`
	Outputs []ArgumentMarshaling `json:"outputs"`
}

// ParseJSON parses the standard ABI JSON descriptor array. Entries other
// than functions, events and errors (constructor, fallback, receive) are
// ignored; they carry no selector.
func ParseJSON(data []byte) (ABI, error) {
	var fields []fieldMarshaling
	if err := json.Unmarshal(data, &fields); err != nil {
		return ABI{}, encErrorf("invalid ABI JSON: %v", err)
	}

	abi := ABI{
		Methods: make(map[string]Method),
		Events:  make(map[string]Event),
		Errors:  make(map[string]Method),
	}
	for _, field := range fields {
		switch field.Type {
		case "function", "":
			m, err := newMethod(field)
			if err != nil {
				return ABI{}, err
			}
			abi.Methods[m.Name] = m
		case "error":
			m, err := newMethod(field)
			if err != nil {
				return ABI{}, err
			}
			abi.Errors[m.Name] = m
		case "event":
			inputs, err := parseArguments(field.Inputs)
			if err != nil {
				return ABI{}, err
			}
			ev := Event{Name: field.Name, Inputs: inputs, Sig: Signature(field.Name, inputs)}
			ev.ID = EventTopic(field.Name, inputs)
			abi.Events[ev.Name] = ev
		}
	}
	return abi, nil
}

func newMethod(field fieldMarshaling) (Method, error) {
	inputs, err := parseArguments(field.Inputs)
	if err != nil {
		return Method{}, err
	}
	outputs, err := parseArguments(field.Outputs)
	if err != nil {
		return Method{}, err
	}
	m := Method{
		Name:    field.Name,
		Inputs:  inputs,
		Outputs: outputs,
		Sig:     Signature(field.Name, inputs),
	}
	m.ID = FunctionSelector(field.Name, inputs)
	return m, nil
}

func parseArguments(fields []ArgumentMarshaling) (Arguments, error) {
	args := make(Arguments, 0, len(fields))
	for _, f := range fields {
		t, err := NewType(f.Type, f.Components)
		if err != nil {
			return nil, err
		}
		args = append(args, Argument{Name: f.Name, Type: t, Indexed: f.Indexed})
	}
	return args, nil
}

// Pack encodes a call to the named method: 4-byte selector followed by the
// packed inputs.
func (abi ABI) Pack(name string, values ...interface{}) ([]byte, error) {
	m, ok := abi.Methods[name]
	if !ok {
		return nil, encErrorf("method %q not found", name)
	}
	data, err := m.Inputs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", m.Sig, err)
	}
	return append(m.ID[:], data...), nil
}

// Unpack decodes the return data of the named method.
func (abi ABI) Unpack(name string, data []byte) ([]interface{}, error) {
	m, ok := abi.Methods[name]
	if !ok {
		return nil, decErrorf("method %q not found", name)
	}
	return m.Outputs.Unpack(data)
}

// UnpackInput decodes calldata for the named method, checking its selector.
func (abi ABI) UnpackInput(name string, calldata []byte) ([]interface{}, error) {
	m, ok := abi.Methods[name]
	if !ok {
		return nil, decErrorf("method %q not found", name)
	}
	if len(calldata) < 4 || !bytes.Equal(calldata[:4], m.ID[:]) {
		return nil, decErrorf("calldata does not carry selector of %s", m.Sig)
	}
	return m.Inputs.Unpack(calldata[4:])
}

// ParseArguments builds an argument list from bare type strings, for callers
// that encode or decode outside a full ABI descriptor.
func ParseArguments(types ...string) (Arguments, error) {
	fields := make([]ArgumentMarshaling, len(types))
	for i, s := range types {
		fields[i] = ArgumentMarshaling{Type: s}
	}
	return parseArguments(fields)
}
