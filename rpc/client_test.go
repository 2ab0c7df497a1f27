package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethwire/ethwire/hexutil"
)

type stubTransport struct {
	calls   atomic.Int32
	callFn  func(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
	batchFn func(ctx context.Context, batch []BatchElem) error
}

func (s *stubTransport) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	s.calls.Add(1)
	return s.callFn(ctx, method, params...)
}

func (s *stubTransport) BatchCall(ctx context.Context, batch []BatchElem) error {
	s.calls.Add(1)
	return s.batchFn(ctx, batch)
}

func (s *stubTransport) Close() {}

func staticResult(result string) *stubTransport {
	return &stubTransport{
		callFn: func(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
			return json.RawMessage(result), nil
		},
	}
}

func TestClientCallDecodesResult(t *testing.T) {
	client := NewClient(staticResult(`"0x2a"`))
	defer client.Close()

	var chainID hexutil.Quantity
	require.NoError(t, client.Call(&chainID, "eth_chainId"))
	require.Equal(t, big.NewInt(42), chainID.ToInt())
}

func TestClientValidatesKnownMethodParams(t *testing.T) {
	transport := staticResult(`"0x0"`)
	client := NewClient(transport)
	defer client.Close()

	var out hexutil.Quantity
	err := client.Call(&out, "eth_getBalance", "not-an-address", "latest")
	var sve *SchemaValidationError
	require.ErrorAs(t, err, &sve)
	require.Equal(t, "eth_getBalance", sve.Method)
	require.Zero(t, transport.calls.Load(), "invalid params must not reach the transport")

	err = client.Call(&out, "eth_getBalance", "0x9d8a62f656a8d1615c1294fd71e9cfb3e4855a4f", "latest")
	require.NoError(t, err)
}

func TestClientOptionalParamsOmitted(t *testing.T) {
	client := NewClient(staticResult(`"0x"`))
	defer client.Close()

	var out hexutil.Bytes
	require.NoError(t, client.Call(&out, "eth_call", CallMsg{}))
	require.NoError(t, client.Call(&out, "eth_call", CallMsg{}, BlockTag(TagLatest)))
}

func TestClientUnknownMethodPassesThrough(t *testing.T) {
	transport := staticResult(`{"anything":true}`)
	client := NewClient(transport)
	defer client.Close()

	var out map[string]bool
	require.NoError(t, client.Call(&out, "debug_traceWeirdness", 1, "two", []int{3}))
	require.Equal(t, int32(1), transport.calls.Load())
	require.True(t, out["anything"])
}

func TestClientChecksResultShape(t *testing.T) {
	client := NewClient(staticResult(`{"not":"a quantity"}`))
	defer client.Close()

	var out hexutil.Quantity
	err := client.Call(&out, "eth_chainId")
	var sve *SchemaValidationError
	require.ErrorAs(t, err, &sve)
}

func TestClientNullResultLeavesValueUntouched(t *testing.T) {
	client := NewClient(staticResult(`null`))
	defer client.Close()

	var receipt *Receipt
	require.NoError(t, client.Call(&receipt, "eth_getTransactionReceipt",
		"0xb903239f8543d04b5dc1ba6579132b143087c68db1b2168786408fcbce568238"))
	require.Nil(t, receipt)
}

func TestClientLocalHandler(t *testing.T) {
	transport := staticResult(`"0x0"`)
	client := NewClient(transport)
	defer client.Close()

	client.RegisterHandler("eth_accounts", func(ctx context.Context, params ...interface{}) (interface{}, error) {
		return []string{"0x9d8a62f656a8d1615c1294fd71e9cfb3e4855a4f"}, nil
	})

	var accounts []string
	require.NoError(t, client.Call(&accounts, "eth_accounts"))
	require.Len(t, accounts, 1)
	require.Zero(t, transport.calls.Load(), "registered method must not reach the transport")

	client.UnregisterHandler("eth_accounts")
	require.Error(t, client.Call(&accounts, "eth_accounts"))
	require.Equal(t, int32(1), transport.calls.Load())
}

func TestClientFallbackOnTransportFault(t *testing.T) {
	main := &stubTransport{
		callFn: func(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
			return nil, &TransportError{Cause: errors.New("connection refused"), Retryable: false}
		},
	}
	fallback := staticResult(`"0x1"`)

	client := NewClient(main, WithFallback(fallback))
	defer client.Close()

	var chainID hexutil.Quantity
	require.NoError(t, client.Call(&chainID, "eth_chainId"))
	require.Equal(t, big.NewInt(1), chainID.ToInt())
	require.Equal(t, int32(1), fallback.calls.Load())
}

func TestClientFallbackSkippedOnRemoteError(t *testing.T) {
	main := &stubTransport{
		callFn: func(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
			return nil, &RequestError{Code: CodeUserRejected, Message: "user rejected"}
		},
	}
	fallback := staticResult(`"0x1"`)

	client := NewClient(main, WithFallback(fallback))
	defer client.Close()

	err := client.Call(nil, "eth_sendTransaction", map[string]string{"from": "0x"})
	var re *RequestError
	require.ErrorAs(t, err, &re)
	require.True(t, re.IsUserRejected())
	require.Zero(t, fallback.calls.Load(), "remote answer must not trigger the fallback")
}

func TestClientBatch(t *testing.T) {
	transport := &stubTransport{
		batchFn: func(ctx context.Context, batch []BatchElem) error {
			for i := range batch {
				batch[i].Result = json.RawMessage(`"0x10"`)
			}
			return nil
		},
	}
	client := NewClient(transport)
	defer client.Close()

	batch := []BatchElem{{Method: "eth_blockNumber"}, {Method: "eth_gasPrice"}}
	require.NoError(t, client.BatchCallContext(context.Background(), batch))

	var n hexutil.Quantity
	require.NoError(t, DecodeBatchElem(batch[0], &n))
	require.Equal(t, big.NewInt(16), n.ToInt())
}

func TestClientBatchValidatesParams(t *testing.T) {
	transport := &stubTransport{
		batchFn: func(ctx context.Context, batch []BatchElem) error { return nil },
	}
	client := NewClient(transport)
	defer client.Close()

	batch := []BatchElem{{Method: "eth_getBalance", Params: []interface{}{"bogus", "latest"}}}
	err := client.BatchCallContext(context.Background(), batch)
	var sve *SchemaValidationError
	require.ErrorAs(t, err, &sve)
	require.Zero(t, transport.calls.Load())
}

func TestClientClosed(t *testing.T) {
	client := NewClient(staticResult(`"0x1"`))
	client.Close()

	err := client.Call(nil, "eth_chainId")
	require.ErrorIs(t, err, ErrClientClosed)
	require.ErrorIs(t, client.BatchCallContext(context.Background(), nil), ErrClientClosed)
}
