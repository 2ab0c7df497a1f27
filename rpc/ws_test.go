package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newWSServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readFrame(t *testing.T, conn *websocket.Conn) jsonrpcMessage {
	t.Helper()
	var msg jsonrpcMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func writeResponse(conn *websocket.Conn, id json.RawMessage, result string) error {
	return conn.WriteJSON(jsonrpcMessage{Version: vsn, ID: id, Result: json.RawMessage(result)})
}

func TestWSCall(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		req := readFrame(t, conn)
		require.Equal(t, "eth_chainId", req.Method)
		require.NoError(t, writeResponse(conn, req.ID, `"0x1"`))
	})

	transport, err := DialWS(context.Background(), url)
	require.NoError(t, err)
	defer transport.Close()

	raw, err := transport.Call(context.Background(), "eth_chainId")
	require.NoError(t, err)
	require.JSONEq(t, `"0x1"`, string(raw))
}

func TestWSOutOfOrderCorrelation(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		first := readFrame(t, conn)
		second := readFrame(t, conn)
		// answer in reverse arrival order
		require.NoError(t, writeResponse(conn, second.ID, fmt.Sprintf("%q", second.Method)))
		require.NoError(t, writeResponse(conn, first.ID, fmt.Sprintf("%q", first.Method)))
	})

	transport, err := DialWS(context.Background(), url)
	require.NoError(t, err)
	defer transport.Close()

	var wg sync.WaitGroup
	for _, method := range []string{"method_one", "method_two"} {
		wg.Add(1)
		go func(method string) {
			defer wg.Done()
			raw, err := transport.Call(context.Background(), method)
			require.NoError(t, err)
			require.JSONEq(t, fmt.Sprintf("%q", method), string(raw))
		}(method)
	}
	wg.Wait()
}

func TestWSLateResponseDropped(t *testing.T) {
	release := make(chan struct{})
	url := newWSServer(t, func(conn *websocket.Conn) {
		slow := readFrame(t, conn)
		<-release
		// stale frame for the already-timed-out request
		require.NoError(t, writeResponse(conn, slow.ID, `"stale"`))

		next := readFrame(t, conn)
		require.NoError(t, writeResponse(conn, next.ID, `"fresh"`))
	})

	transport, err := DialWS(context.Background(), url, WithCallTimeout(50*time.Millisecond), WithMaxRetries(0))
	require.NoError(t, err)
	defer transport.Close()

	_, err = transport.Call(context.Background(), "eth_slowThing")
	var te *TimeoutError
	require.ErrorAs(t, err, &te)

	close(release)
	time.Sleep(50 * time.Millisecond) // let the stale frame arrive first

	raw, err := transport.Call(context.Background(), "eth_chainId")
	require.NoError(t, err)
	require.JSONEq(t, `"fresh"`, string(raw))
}

func TestWSCloseFailsPending(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		readFrame(t, conn)
		// never respond
		var discard jsonrpcMessage
		_ = conn.ReadJSON(&discard)
	})

	transport, err := DialWS(context.Background(), url)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := transport.Call(context.Background(), "eth_blockNumber")
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond) // let the request register
	transport.Close()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrClientClosed)
	case <-time.After(time.Second):
		t.Fatal("pending call not released by Close")
	}

	transport.mu.Lock()
	require.Empty(t, transport.pending)
	transport.mu.Unlock()
}

func TestWSConnectionDropFailsPending(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		readFrame(t, conn)
		conn.Close()
	})

	transport, err := DialWS(context.Background(), url, WithMaxRetries(0))
	require.NoError(t, err)
	defer transport.Close()

	_, err = transport.Call(context.Background(), "eth_blockNumber")
	require.ErrorIs(t, err, ErrConnectionLost)

	transport.mu.Lock()
	require.Empty(t, transport.pending)
	transport.mu.Unlock()
}

func TestWSSubscription(t *testing.T) {
	notify := make(chan struct{})
	url := newWSServer(t, func(conn *websocket.Conn) {
		req := readFrame(t, conn)
		require.Equal(t, "eth_subscribe", req.Method)
		require.NoError(t, writeResponse(conn, req.ID, `"0xsub1"`))

		<-notify
		err := conn.WriteJSON(map[string]interface{}{
			"jsonrpc": vsn,
			"method":  "eth_subscription",
			"params": map[string]interface{}{
				"subscription": "0xsub1",
				"result":       map[string]string{"number": "0x10"},
			},
		})
		require.NoError(t, err)

		// keep the connection open for the unsubscribe call
		req = readFrame(t, conn)
		require.Equal(t, "eth_unsubscribe", req.Method)
		require.NoError(t, writeResponse(conn, req.ID, "true"))
	})

	transport, err := DialWS(context.Background(), url)
	require.NoError(t, err)
	defer transport.Close()

	ch := make(chan json.RawMessage, 4)
	sub, err := transport.Subscribe(context.Background(), "eth_subscribe", ch, "newHeads")
	require.NoError(t, err)
	require.Equal(t, "0xsub1", sub.ID)

	close(notify)
	select {
	case payload := <-ch:
		require.JSONEq(t, `{"number":"0x10"}`, string(payload))
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}

	require.NoError(t, sub.Unsubscribe(context.Background()))
}

func TestWSSubscriptionNotificationRightBehindResponse(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		req := readFrame(t, conn)
		require.Equal(t, "eth_subscribe", req.Method)
		// response and first notification back to back, with no window
		// for the client to do anything in between
		require.NoError(t, writeResponse(conn, req.ID, `"0xsub2"`))
		err := conn.WriteJSON(map[string]interface{}{
			"jsonrpc": vsn,
			"method":  "eth_subscription",
			"params": map[string]interface{}{
				"subscription": "0xsub2",
				"result":       map[string]string{"number": "0x1"},
			},
		})
		require.NoError(t, err)

		var discard jsonrpcMessage
		_ = conn.ReadJSON(&discard)
	})

	transport, err := DialWS(context.Background(), url)
	require.NoError(t, err)
	defer transport.Close()

	ch := make(chan json.RawMessage, 4)
	sub, err := transport.Subscribe(context.Background(), "eth_subscribe", ch, "newHeads")
	require.NoError(t, err)
	require.Equal(t, "0xsub2", sub.ID)

	select {
	case payload := <-ch:
		require.JSONEq(t, `{"number":"0x1"}`, string(payload))
	case <-time.After(time.Second):
		t.Fatal("first notification was dropped")
	}
}

func TestWSBatch(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		var reqs []jsonrpcMessage
		require.NoError(t, conn.ReadJSON(&reqs))

		resps := make([]jsonrpcMessage, 0, len(reqs))
		for i := len(reqs) - 1; i >= 0; i-- {
			resps = append(resps, jsonrpcMessage{
				Version: vsn,
				ID:      reqs[i].ID,
				Result:  json.RawMessage(fmt.Sprintf("%q", reqs[i].Method)),
			})
		}
		require.NoError(t, conn.WriteJSON(resps))
	})

	transport, err := DialWS(context.Background(), url)
	require.NoError(t, err)
	defer transport.Close()

	batch := []BatchElem{{Method: "eth_chainId"}, {Method: "eth_blockNumber"}}
	require.NoError(t, transport.BatchCall(context.Background(), batch))
	for _, elem := range batch {
		require.NoError(t, elem.Error)
		require.JSONEq(t, fmt.Sprintf("%q", elem.Method), string(elem.Result))
	}
}

func TestWSBatchCallerCancelledIsNotTimeout(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		// swallow the batch and never answer
		var discard []jsonrpcMessage
		_ = conn.ReadJSON(&discard)
		var more jsonrpcMessage
		_ = conn.ReadJSON(&more)
	})

	transport, err := DialWS(context.Background(), url)
	require.NoError(t, err)
	defer transport.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	batch := []BatchElem{{Method: "eth_chainId"}, {Method: "eth_blockNumber"}}
	err = transport.BatchCall(ctx, batch)
	require.ErrorIs(t, err, context.Canceled)
	var te *TimeoutError
	require.False(t, errors.As(err, &te))
	for _, elem := range batch {
		require.ErrorIs(t, elem.Error, context.Canceled)
	}

	transport.mu.Lock()
	require.Empty(t, transport.pending)
	transport.mu.Unlock()
}

func TestWSCallAfterClose(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		var discard jsonrpcMessage
		_ = conn.ReadJSON(&discard)
	})

	transport, err := DialWS(context.Background(), url)
	require.NoError(t, err)
	transport.Close()

	_, err = transport.Call(context.Background(), "eth_chainId")
	require.ErrorIs(t, err, ErrClientClosed)
}
