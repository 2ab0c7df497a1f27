package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethwire/ethwire/hexutil"
)

// paramKind tags the shape of one declared parameter or result.
type paramKind int

const (
	kindAny paramKind = iota
	kindAddress
	kindHash
	kindQuantity
	kindHexData
	kindBlock
	kindObject
	kindBool
	kindString
	kindArray
)

func (k paramKind) String() string {
	switch k {
	case kindAddress:
		return "address"
	case kindHash:
		return "hash"
	case kindQuantity:
		return "quantity"
	case kindHexData:
		return "hex data"
	case kindBlock:
		return "block selector"
	case kindObject:
		return "object"
	case kindBool:
		return "boolean"
	case kindString:
		return "string"
	case kindArray:
		return "array"
	default:
		return "any"
	}
}

// methodSchema declares the parameter shapes and result shape of one known
// method. Trailing parameters within optional may be omitted.
type methodSchema struct {
	params   []paramKind
	optional int
	result   paramKind
}

// methodTable is the closed set of methods validated before dispatch.
// Methods absent from the table pass through unchecked.
var methodTable = map[string]methodSchema{
	"eth_chainId":               {result: kindQuantity},
	"eth_blockNumber":           {result: kindQuantity},
	"eth_gasPrice":              {result: kindQuantity},
	"eth_maxPriorityFeePerGas":  {result: kindQuantity},
	"eth_getBalance":            {params: []paramKind{kindAddress, kindBlock}, result: kindQuantity},
	"eth_getTransactionCount":   {params: []paramKind{kindAddress, kindBlock}, result: kindQuantity},
	"eth_getCode":               {params: []paramKind{kindAddress, kindBlock}, result: kindHexData},
	"eth_getStorageAt":          {params: []paramKind{kindAddress, kindQuantity, kindBlock}, result: kindHexData},
	"eth_call":                  {params: []paramKind{kindObject, kindBlock}, optional: 1, result: kindHexData},
	"eth_estimateGas":           {params: []paramKind{kindObject, kindBlock}, optional: 1, result: kindQuantity},
	"eth_sendRawTransaction":    {params: []paramKind{kindHexData}, result: kindHash},
	"eth_sendTransaction":       {params: []paramKind{kindObject}, result: kindHash},
	"eth_getTransactionByHash":  {params: []paramKind{kindHash}, result: kindObject},
	"eth_getTransactionReceipt": {params: []paramKind{kindHash}, result: kindObject},
	"eth_getLogs":               {params: []paramKind{kindObject}, result: kindArray},
	"eth_getBlockByNumber":      {params: []paramKind{kindBlock, kindBool}, result: kindObject},
	"eth_getBlockByHash":        {params: []paramKind{kindHash, kindBool}, result: kindObject},
	"eth_feeHistory":            {params: []paramKind{kindQuantity, kindBlock, kindArray}, optional: 1, result: kindObject},
	"eth_accounts":              {result: kindArray},
	"eth_requestAccounts":       {result: kindArray},
	"eth_sign":                  {params: []paramKind{kindAddress, kindHexData}, result: kindHexData},
	"personal_sign":             {params: []paramKind{kindHexData, kindAddress}, result: kindHexData},

	"wallet_switchEthereumChain": {params: []paramKind{kindObject}, result: kindAny},
	"wallet_addEthereumChain":    {params: []paramKind{kindObject}, result: kindAny},
	"wallet_watchAsset":          {params: []paramKind{kindObject}, result: kindBool},

	"web3_clientVersion": {result: kindString},
	"net_version":        {result: kindString},

	"evm_snapshot":              {result: kindQuantity},
	"evm_revert":                {params: []paramKind{kindQuantity}, result: kindBool},
	"evm_increaseTime":          {params: []paramKind{kindQuantity}, result: kindAny},
	"evm_mine":                  {params: []paramKind{kindQuantity}, optional: 1, result: kindAny},
	"evm_setNextBlockTimestamp": {params: []paramKind{kindQuantity}, result: kindAny},
	"anvil_setBalance":          {params: []paramKind{kindAddress, kindQuantity}, result: kindAny},
}

// validateParams checks params of a known method against its declared
// shapes. Values are judged by their marshaled JSON so callers may pass any
// type that serializes to the right wire form.
func validateParams(method string, params []interface{}) error {
	schema, known := methodTable[method]
	if !known {
		return nil
	}
	min := len(schema.params) - schema.optional
	if len(params) < min || len(params) > len(schema.params) {
		return &SchemaValidationError{
			Method: method,
			Reason: fmt.Sprintf("want %d params (%d optional), got %d", len(schema.params), schema.optional, len(params)),
		}
	}
	for i, param := range params {
		data, err := json.Marshal(param)
		if err != nil {
			return &SchemaValidationError{
				Method: method,
				Reason: fmt.Sprintf("param %d does not marshal: %v", i, err),
			}
		}
		if err := validateKind(schema.params[i], data); err != nil {
			return &SchemaValidationError{
				Method: method,
				Reason: fmt.Sprintf("param %d: %v", i, err),
			}
		}
	}
	return nil
}

// validateResult checks the raw result of a known method before it is
// decoded into the caller's type. Null results pass; a missing block or
// receipt is not a shape violation.
func validateResult(method string, raw json.RawMessage) error {
	schema, known := methodTable[method]
	if !known || isJSONNull(raw) {
		return nil
	}
	if err := validateKind(schema.result, raw); err != nil {
		return &SchemaValidationError{Method: method, Reason: fmt.Sprintf("result: %v", err)}
	}
	return nil
}

func validateKind(kind paramKind, data []byte) error {
	switch kind {
	case kindAny:
		return nil

	case kindAddress:
		s, err := unmarshalString(data)
		if err != nil {
			return err
		}
		b, err := hexutil.Decode(s)
		if err != nil {
			return fmt.Errorf("not an address: %v", err)
		}
		if len(b) != 20 {
			return fmt.Errorf("not an address: %d bytes", len(b))
		}

	case kindHash:
		s, err := unmarshalString(data)
		if err != nil {
			return err
		}
		b, err := hexutil.Decode(s)
		if err != nil {
			return fmt.Errorf("not a hash: %v", err)
		}
		if len(b) != 32 {
			return fmt.Errorf("not a hash: %d bytes", len(b))
		}

	case kindQuantity:
		s, err := unmarshalString(data)
		if err != nil {
			return err
		}
		if _, err := hexutil.DecodeQuantity(s); err != nil {
			return fmt.Errorf("not a quantity: %v", err)
		}

	case kindHexData:
		s, err := unmarshalString(data)
		if err != nil {
			return err
		}
		if _, err := hexutil.Decode(s); err != nil {
			return fmt.Errorf("not hex data: %v", err)
		}

	case kindBlock:
		var sel BlockNumberOrTag
		if err := json.Unmarshal(data, &sel); err != nil {
			return err
		}

	case kindObject:
		if firstNonSpace(data) != '{' {
			return fmt.Errorf("want %s, got %s", kindObject, jsonShape(data))
		}

	case kindArray:
		if firstNonSpace(data) != '[' {
			return fmt.Errorf("want %s, got %s", kindArray, jsonShape(data))
		}

	case kindBool:
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("want %s, got %s", kindBool, jsonShape(data))
		}

	case kindString:
		if _, err := unmarshalString(data); err != nil {
			return err
		}
	}
	return nil
}

func unmarshalString(data []byte) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("want string, got %s", jsonShape(data))
	}
	return s, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func jsonShape(data []byte) string {
	switch firstNonSpace(data) {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}
