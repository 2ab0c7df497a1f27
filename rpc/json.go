// Package rpc implements the JSON-RPC 2.0 client runtime: HTTP and
// websocket transports with retry, timeout and id correlation, plus a typed
// method schema that validates known calls before they reach the wire.
package rpc

import (
	"encoding/json"
	"fmt"
)

const vsn = "2.0"

// Well-known JSON-RPC and EIP-1193 provider error codes.
const (
	CodeParseError        = -32700
	CodeInvalidRequest    = -32600
	CodeMethodNotFound    = -32601
	CodeInvalidParams     = -32602
	CodeInternalError     = -32603
	CodeLimitExceeded     = -32005
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
)

// jsonrpcMessage is the wire frame shared by requests, responses and
// subscription notifications.
type jsonrpcMessage struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonError      `json:"error,omitempty"`
}

type jsonError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (msg *jsonrpcMessage) isNotification() bool {
	return msg.ID == nil && msg.Method != ""
}

func (msg *jsonrpcMessage) isResponse() bool {
	return msg.ID != nil && msg.Method == "" && (msg.Result != nil || msg.Error != nil)
}

// requestID parses the frame id as the uint64 the dispatcher assigned.
func (msg *jsonrpcMessage) requestID() (uint64, bool) {
	var id uint64
	if err := json.Unmarshal(msg.ID, &id); err != nil {
		return 0, false
	}
	return id, true
}

func (msg *jsonrpcMessage) responseError() error {
	return &RequestError{Code: msg.Error.Code, Message: msg.Error.Message, Data: msg.Error.Data}
}

// newMessage builds a request frame. Params marshal to a JSON array in
// declaration order; a nil slice marshals as an empty array.
func newMessage(id uint64, method string, params []interface{}) (*jsonrpcMessage, error) {
	msg := &jsonrpcMessage{Version: vsn, Method: method}
	idJSON, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	msg.ID = idJSON
	if params == nil {
		params = []interface{}{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("rpc: cannot marshal params for %s: %w", method, err)
	}
	msg.Params = paramsJSON
	return msg, nil
}
