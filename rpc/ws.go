package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type connState int

const (
	stateConnecting connState = iota
	stateOpen
	stateClosed
)

const subscriptionMethodSuffix = "_subscription"

// WSTransport multiplexes requests over one persistent websocket
// connection. Responses are matched to outstanding requests by id, in
// whatever order they arrive; unsolicited subscription notifications are
// routed by subscription id.
type WSTransport struct {
	endpoint string
	cfg      Config
	logger   *zap.Logger

	idCounter atomic.Uint64

	mu         sync.Mutex // guards everything below
	conn       *websocket.Conn
	state      connState
	userClosed bool
	pending    map[uint64]*pendingCall
	subs       map[string]chan<- json.RawMessage
	queue      []*jsonrpcMessage

	writeMu sync.Mutex // serializes frame writes
}

// pendingCall is one outstanding request. For subscribe requests sub holds
// the subscriber channel; the read loop registers it under the
// server-assigned id the moment the response arrives, before any later
// frame is dispatched, so the first notification cannot outrun it.
type pendingCall struct {
	ch  chan *jsonrpcMessage
	sub chan<- json.RawMessage
}

// DialWS connects to a websocket endpoint and starts the read loop.
func DialWS(ctx context.Context, endpoint string, opts ...Option) (*WSTransport, error) {
	cfg := newConfig(opts)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, &TransportError{Cause: fmt.Errorf("dial %s: %w", endpoint, err), Retryable: true}
	}
	t := &WSTransport{
		endpoint: endpoint,
		cfg:      cfg,
		logger:   cfg.Logger.Named("rpc.ws"),
		conn:     conn,
		state:    stateOpen,
		pending:  make(map[uint64]*pendingCall),
		subs:     make(map[string]chan<- json.RawMessage),
	}
	go t.readLoop(conn)
	return t, nil
}

func (t *WSTransport) nextID() uint64 {
	return t.idCounter.Add(1)
}

// Call issues one request and waits for its correlated response. Transient
// faults retry with backoff like the HTTP transport; a cancelled or timed
// out request frees its pending slot so a late response is dropped.
func (t *WSTransport) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	return t.call(ctx, method, nil, params)
}

func (t *WSTransport) call(ctx context.Context, method string, sub chan<- json.RawMessage, params []interface{}) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.CallTimeout)
	defer cancel()

	var result json.RawMessage
	op := func() error {
		res, err := t.attempt(ctx, method, sub, params)
		if err != nil {
			if isRetryable(err, t.cfg.RetryableCodes) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}
	if err := backoff.Retry(op, t.cfg.newBackoff(ctx)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Method: method, Duration: t.cfg.CallTimeout}
		}
		if isRetryable(err, t.cfg.RetryableCodes) {
			return nil, &TransportError{Cause: err, Retryable: false}
		}
		return nil, err
	}
	return result, nil
}

func (t *WSTransport) attempt(ctx context.Context, method string, sub chan<- json.RawMessage, params []interface{}) (json.RawMessage, error) {
	id := t.nextID()
	msg, err := newMessage(id, method, params)
	if err != nil {
		return nil, err
	}

	ch, err := t.register(id, msg, sub)
	if err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, t.closedError()
		}
		if resp.Error != nil {
			return nil, resp.responseError()
		}
		return resp.Result, nil
	case <-ctx.Done():
		t.unregister(id)
		return nil, ctx.Err()
	}
}

// register atomically assigns the pending slot and either writes the frame
// or, while reconnecting, queues it (bounded) per configuration.
func (t *WSTransport) register(id uint64, msg *jsonrpcMessage, sub chan<- json.RawMessage) (chan *jsonrpcMessage, error) {
	call := &pendingCall{ch: make(chan *jsonrpcMessage, 1), sub: sub}

	t.mu.Lock()
	switch t.state {
	case stateClosed:
		t.mu.Unlock()
		return nil, t.closedError()

	case stateConnecting:
		if len(t.queue) >= t.cfg.QueueSize {
			t.mu.Unlock()
			if t.cfg.QueueSize == 0 {
				return nil, ErrConnectionLost
			}
			return nil, ErrQueueFull
		}
		t.pending[id] = call
		t.queue = append(t.queue, msg)
		t.mu.Unlock()
		return call.ch, nil

	default: // stateOpen
		t.pending[id] = call
		conn := t.conn
		t.mu.Unlock()

		if err := t.writeFrame(conn, msg); err != nil {
			t.unregister(id)
			return nil, &TransportError{Cause: err, Retryable: t.cfg.Reconnect}
		}
		return call.ch, nil
	}
}

func (t *WSTransport) unregister(id uint64) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

func (t *WSTransport) writeFrame(conn *websocket.Conn, v interface{}) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (t *WSTransport) closedError() error {
	t.mu.Lock()
	userClosed := t.userClosed
	t.mu.Unlock()
	if userClosed {
		return ErrClientClosed
	}
	return ErrConnectionLost
}

// readLoop owns the receive side of one connection generation. It exits
// when the connection drops, after failing every outstanding request.
func (t *WSTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.handleDrop(conn, err)
			return
		}
		t.dispatch(data)
	}
}

// dispatch routes one incoming frame: a batch array, a correlated response
// or a subscription notification. Frames with unknown or already-cancelled
// ids are dropped, not delivered.
func (t *WSTransport) dispatch(data []byte) {
	trimmed := firstNonSpace(data)
	if trimmed == '[' {
		var msgs []jsonrpcMessage
		if err := json.Unmarshal(data, &msgs); err != nil {
			t.logger.Warn("dropping malformed batch frame", zap.Error(err))
			return
		}
		for i := range msgs {
			t.dispatchMessage(&msgs[i])
		}
		return
	}
	var msg jsonrpcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.logger.Warn("dropping malformed frame", zap.Error(err))
		return
	}
	t.dispatchMessage(&msg)
}

func (t *WSTransport) dispatchMessage(msg *jsonrpcMessage) {
	switch {
	case msg.isNotification():
		t.dispatchNotification(msg)

	case msg.isResponse():
		id, ok := msg.requestID()
		if !ok {
			t.logger.Warn("dropping response with unparseable id", zap.ByteString("id", msg.ID))
			return
		}
		t.mu.Lock()
		call, ok := t.pending[id]
		delete(t.pending, id)
		if ok && call.sub != nil && msg.Error == nil {
			var subID string
			if err := json.Unmarshal(msg.Result, &subID); err == nil {
				t.subs[subID] = call.sub
			}
		}
		t.mu.Unlock()
		if !ok {
			// late or unsolicited: the request timed out, was cancelled
			// or never existed
			t.logger.Debug("dropping response with no outstanding request", zap.Uint64("id", id))
			return
		}
		call.ch <- msg

	default:
		t.logger.Warn("dropping frame that is neither response nor notification")
	}
}

type subscriptionPayload struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

func (t *WSTransport) dispatchNotification(msg *jsonrpcMessage) {
	if len(msg.Method) < len(subscriptionMethodSuffix) ||
		msg.Method[len(msg.Method)-len(subscriptionMethodSuffix):] != subscriptionMethodSuffix {
		t.logger.Debug("dropping notification", zap.String("method", msg.Method))
		return
	}
	var payload subscriptionPayload
	if err := json.Unmarshal(msg.Params, &payload); err != nil {
		t.logger.Warn("dropping malformed subscription notification", zap.Error(err))
		return
	}
	t.mu.Lock()
	ch, ok := t.subs[payload.Subscription]
	t.mu.Unlock()
	if !ok {
		t.logger.Debug("dropping notification for unknown subscription",
			zap.String("subscription", payload.Subscription))
		return
	}
	select {
	case ch <- payload.Result:
	default:
		t.logger.Warn("subscriber not keeping up, dropping notification",
			zap.String("subscription", payload.Subscription))
	}
}

// handleDrop fails every outstanding request with a connection-lost error
// and either closes for good or moves to reconnecting.
func (t *WSTransport) handleDrop(conn *websocket.Conn, cause error) {
	t.mu.Lock()
	if t.conn != conn {
		// a newer connection generation already took over
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.failPendingLocked()
	reconnect := t.cfg.Reconnect && !t.userClosed
	if reconnect {
		t.state = stateConnecting
	} else {
		t.state = stateClosed
	}
	t.mu.Unlock()

	if !t.isUserClosed() {
		t.logger.Warn("connection dropped", zap.Error(cause))
	}
	if reconnect {
		go t.redial()
	}
}

// failPendingLocked empties the pending map, waking every waiter. Callers
// hold t.mu.
func (t *WSTransport) failPendingLocked() {
	for id, call := range t.pending {
		close(call.ch)
		delete(t.pending, id)
	}
}

func (t *WSTransport) isUserClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.userClosed
}

func (t *WSTransport) redial() {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.cfg.InitialBackoff
	bo.MaxInterval = t.cfg.MaxBackoff
	bo.MaxElapsedTime = 0 // keep trying until closed

	for {
		if t.isUserClosed() {
			return
		}
		conn, _, err := websocket.DefaultDialer.Dial(t.endpoint, nil)
		if err != nil {
			wait := bo.NextBackOff()
			t.logger.Warn("redial failed", zap.Error(err), zap.Duration("backoff", wait))
			time.Sleep(wait)
			continue
		}

		t.mu.Lock()
		if t.userClosed {
			t.mu.Unlock()
			conn.Close()
			return
		}
		t.conn = conn
		t.state = stateOpen
		queued := t.queue
		t.queue = nil
		t.mu.Unlock()

		t.logger.Info("reconnected", zap.String("endpoint", t.endpoint))
		go t.readLoop(conn)
		for _, msg := range queued {
			if err := t.writeFrame(conn, msg); err != nil {
				// the read loop will observe the dead connection and
				// fail the queued requests' pending slots
				t.logger.Warn("flush of queued request failed", zap.Error(err))
				return
			}
		}
		return
	}
}

// Subscribe issues an eth_subscribe-style call and routes matching
// notifications into ch until the subscription ends or the connection
// drops. The read loop registers the routing slot while handling the
// subscribe response, so a notification pushed right behind it is already
// deliverable. ch should be buffered; slow consumers lose notifications.
func (t *WSTransport) Subscribe(ctx context.Context, method string, ch chan<- json.RawMessage, params ...interface{}) (*Subscription, error) {
	raw, err := t.call(ctx, method, ch, params)
	if err != nil {
		// the read loop may have registered the slot on a response that
		// raced the caller giving up
		t.mu.Lock()
		for id, c := range t.subs {
			if c == ch {
				delete(t.subs, id)
			}
		}
		t.mu.Unlock()
		return nil, err
	}
	var subID string
	if err := json.Unmarshal(raw, &subID); err != nil {
		return nil, &SchemaValidationError{Method: method, Reason: "subscription id is not a string"}
	}
	return &Subscription{transport: t, ID: subID}, nil
}

// Subscription is an active server-push stream keyed by the server-assigned
// subscription id.
type Subscription struct {
	transport *WSTransport
	ID        string
}

// Unsubscribe stops the stream and releases the routing slot.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	s.transport.mu.Lock()
	delete(s.transport.subs, s.ID)
	s.transport.mu.Unlock()
	_, err := s.transport.Call(ctx, "eth_unsubscribe", s.ID)
	return err
}

// BatchCall writes the batch as one array frame and waits for every
// element's correlated response.
func (t *WSTransport) BatchCall(ctx context.Context, batch []BatchElem) error {
	if len(batch) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, t.cfg.CallTimeout)
	defer cancel()

	msgs := make([]*jsonrpcMessage, len(batch))
	chans := make([]chan *jsonrpcMessage, len(batch))
	ids := make([]uint64, len(batch))

	t.mu.Lock()
	if t.state != stateOpen {
		t.mu.Unlock()
		return t.closedError()
	}
	conn := t.conn
	for i, elem := range batch {
		id := t.nextID()
		msg, err := newMessage(id, elem.Method, elem.Params)
		if err != nil {
			for j := 0; j < i; j++ {
				delete(t.pending, ids[j])
			}
			t.mu.Unlock()
			return err
		}
		call := &pendingCall{ch: make(chan *jsonrpcMessage, 1)}
		t.pending[id] = call
		msgs[i], chans[i], ids[i] = msg, call.ch, id
	}
	t.mu.Unlock()

	if err := t.writeFrame(conn, msgs); err != nil {
		for _, id := range ids {
			t.unregister(id)
		}
		return &TransportError{Cause: err, Retryable: t.cfg.Reconnect}
	}

	for i := range batch {
		select {
		case resp, ok := <-chans[i]:
			if !ok {
				batch[i].Error = t.closedError()
				continue
			}
			if resp.Error != nil {
				batch[i].Error = resp.responseError()
				continue
			}
			batch[i].Result = resp.Result
		case <-ctx.Done():
			// the caller cancelling is not a timeout
			err := ctx.Err()
			for j := i; j < len(batch); j++ {
				t.unregister(ids[j])
				if errors.Is(err, context.DeadlineExceeded) {
					batch[j].Error = &TimeoutError{Method: batch[j].Method, Duration: t.cfg.CallTimeout}
				} else {
					batch[j].Error = err
				}
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return &TimeoutError{Method: "batch", Duration: t.cfg.CallTimeout}
			}
			return err
		}
	}
	return nil
}

// Close tears the transport down, failing outstanding requests with a
// cancellation error. The pending map is empty afterwards.
func (t *WSTransport) Close() {
	t.mu.Lock()
	if t.userClosed {
		t.mu.Unlock()
		return
	}
	t.userClosed = true
	t.state = stateClosed
	conn := t.conn
	t.conn = nil
	t.failPendingLocked()
	t.queue = nil
	t.subs = make(map[string]chan<- json.RawMessage)
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func firstNonSpace(data []byte) byte {
	for _, c := range data {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return c
		}
	}
	return 0
}
