package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newHTTPServer(t *testing.T, handler func(req jsonrpcMessage) (json.RawMessage, *jsonError)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req jsonrpcMessage
		require.NoError(t, json.Unmarshal(body, &req))

		resp := jsonrpcMessage{Version: vsn, ID: req.ID}
		result, rpcErr := handler(req)
		if rpcErr != nil {
			resp.Error = rpcErr
		} else {
			resp.Result = result
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPCall(t *testing.T) {
	srv := newHTTPServer(t, func(req jsonrpcMessage) (json.RawMessage, *jsonError) {
		require.Equal(t, "eth_chainId", req.Method)
		return json.RawMessage(`"0x1"`), nil
	})

	transport := NewHTTPTransport(srv.URL)
	defer transport.Close()

	raw, err := transport.Call(context.Background(), "eth_chainId")
	require.NoError(t, err)
	require.JSONEq(t, `"0x1"`, string(raw))
}

func TestHTTPRetriesTransientThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var req jsonrpcMessage
		require.NoError(t, json.Unmarshal(body, &req))
		resp := jsonrpcMessage{Version: vsn, ID: req.ID, Result: json.RawMessage(`"0x2a"`)}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	transport := NewHTTPTransport(srv.URL,
		WithMaxRetries(2),
		WithInitialBackoff(time.Millisecond))
	defer transport.Close()

	raw, err := transport.Call(context.Background(), "eth_blockNumber")
	require.NoError(t, err)
	require.JSONEq(t, `"0x2a"`, string(raw))
	require.Equal(t, int32(3), attempts.Load())
}

func TestHTTPRetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	transport := NewHTTPTransport(srv.URL,
		WithMaxRetries(2),
		WithInitialBackoff(time.Millisecond))
	defer transport.Close()

	_, err := transport.Call(context.Background(), "eth_blockNumber")
	require.Error(t, err)
	require.Equal(t, int32(3), attempts.Load())

	var te *TransportError
	require.ErrorAs(t, err, &te)
	require.False(t, te.Retryable)
}

func TestHTTPRemoteErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := newHTTPServer(t, func(req jsonrpcMessage) (json.RawMessage, *jsonError) {
		attempts.Add(1)
		return nil, &jsonError{Code: CodeUserRejected, Message: "user rejected"}
	})

	transport := NewHTTPTransport(srv.URL,
		WithMaxRetries(2),
		WithInitialBackoff(time.Millisecond))
	defer transport.Close()

	_, err := transport.Call(context.Background(), "eth_sendTransaction")
	var re *RequestError
	require.ErrorAs(t, err, &re)
	require.True(t, re.IsUserRejected())
	require.Equal(t, int32(1), attempts.Load())
}

func TestHTTPRetryableCodeRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := newHTTPServer(t, func(req jsonrpcMessage) (json.RawMessage, *jsonError) {
		if attempts.Add(1) == 1 {
			return nil, &jsonError{Code: CodeLimitExceeded, Message: "rate limited"}
		}
		return json.RawMessage(`"0x1"`), nil
	})

	transport := NewHTTPTransport(srv.URL,
		WithMaxRetries(2),
		WithInitialBackoff(time.Millisecond))
	defer transport.Close()

	raw, err := transport.Call(context.Background(), "eth_chainId")
	require.NoError(t, err)
	require.JSONEq(t, `"0x1"`, string(raw))
	require.Equal(t, int32(2), attempts.Load())
}

func TestHTTPTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	transport := NewHTTPTransport(srv.URL, WithCallTimeout(50*time.Millisecond))
	defer transport.Close()

	_, err := transport.Call(context.Background(), "eth_blockNumber")
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	require.Equal(t, "eth_blockNumber", te.Method)
}

func TestHTTPResponseIDMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := jsonrpcMessage{Version: vsn, ID: json.RawMessage("9999"), Result: json.RawMessage(`"0x1"`)}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	transport := NewHTTPTransport(srv.URL, WithMaxRetries(0))
	defer transport.Close()

	_, err := transport.Call(context.Background(), "eth_chainId")
	require.Error(t, err)
	var te *TransportError
	require.ErrorAs(t, err, &te)
}

func TestHTTPBatchOutOfOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var reqs []jsonrpcMessage
		require.NoError(t, json.Unmarshal(body, &reqs))

		resps := make([]jsonrpcMessage, 0, len(reqs))
		for i := len(reqs) - 1; i >= 0; i-- {
			resps = append(resps, jsonrpcMessage{
				Version: vsn,
				ID:      reqs[i].ID,
				Result:  json.RawMessage(fmt.Sprintf("%q", reqs[i].Method)),
			})
		}
		require.NoError(t, json.NewEncoder(w).Encode(resps))
	}))
	defer srv.Close()

	transport := NewHTTPTransport(srv.URL)
	defer transport.Close()

	batch := []BatchElem{
		{Method: "eth_chainId"},
		{Method: "eth_blockNumber"},
		{Method: "eth_gasPrice"},
	}
	require.NoError(t, transport.BatchCall(context.Background(), batch))
	for _, elem := range batch {
		require.NoError(t, elem.Error)
		require.JSONEq(t, fmt.Sprintf("%q", elem.Method), string(elem.Result))
	}
}

func TestHTTPBatchMissingResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var reqs []jsonrpcMessage
		require.NoError(t, json.Unmarshal(body, &reqs))
		resps := []jsonrpcMessage{{Version: vsn, ID: reqs[0].ID, Result: json.RawMessage(`"0x1"`)}}
		require.NoError(t, json.NewEncoder(w).Encode(resps))
	}))
	defer srv.Close()

	transport := NewHTTPTransport(srv.URL)
	defer transport.Close()

	batch := []BatchElem{{Method: "eth_chainId"}, {Method: "eth_blockNumber"}}
	require.NoError(t, transport.BatchCall(context.Background(), batch))
	require.NoError(t, batch[0].Error)
	require.Error(t, batch[1].Error)
}

func TestHTTPClosed(t *testing.T) {
	transport := NewHTTPTransport("http://127.0.0.1:0")
	transport.Close()
	_, err := transport.Call(context.Background(), "eth_chainId")
	require.ErrorIs(t, err, ErrClientClosed)
}

func TestRPSLimiterBlocksOverLimit(t *testing.T) {
	limiter := newRPSLimiter(2)

	require.NoError(t, limiter.wait(context.Background()))
	require.NoError(t, limiter.wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := limiter.wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
