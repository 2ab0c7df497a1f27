package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ethwire/ethwire/circuitbreaker"
)

// Handler intercepts a method locally; registered methods never reach a
// transport. Used for test and dev method injection.
type Handler func(ctx context.Context, params ...interface{}) (interface{}, error)

var clientCounter atomic.Uint64

// Client is the typed front of the runtime. It owns exactly one primary
// transport, optionally shadowed by a fallback behind a hystrix circuit,
// validates known-method params against the schema table and decodes raw
// results into caller-provided values.
type Client struct {
	main        Transport
	fallback    Transport
	circuitName string
	breaker     *circuitbreaker.CircuitBreaker
	logger      *zap.Logger

	handlersMx sync.RWMutex
	handlers   map[string]Handler

	closed atomic.Bool
}

// ClientOption mutates client construction.
type ClientOption func(*Client)

// WithFallback adds a secondary transport tried when the primary fails at
// the transport level. Remote errors do not trip the circuit.
func WithFallback(t Transport) ClientOption {
	return func(c *Client) { c.fallback = t }
}

// WithCircuitName sets the hystrix command name so related clients can
// share one breaker.
func WithCircuitName(name string) ClientOption {
	return func(c *Client) { c.circuitName = name }
}

// WithClientLogger sets the client logger. Defaults to a nop logger.
func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l.Named("rpc.client") }
}

// NewClient wraps a transport. The client takes ownership; Close tears the
// transports down with it.
func NewClient(main Transport, opts ...ClientOption) *Client {
	c := &Client{
		main:        main,
		circuitName: fmt.Sprintf("rpcClient_%d", clientCounter.Add(1)),
		logger:      zap.NewNop(),
		handlers:    make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.fallback != nil {
		c.breaker = circuitbreaker.New(circuitbreaker.Config{
			Timeout:               20000,
			MaxConcurrentRequests: 100,
			SleepWindow:           300000,
			ErrorPercentThreshold: 25,
			Permanent:             isRemoteAnswer,
		})
	}
	return c
}

// isRemoteAnswer reports whether the node processed the request and
// answered with an error. Such answers surface as-is: they never trip the
// circuit or trigger the fallback.
func isRemoteAnswer(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}

// RegisterHandler routes a method to a local handler instead of the wire.
func (c *Client) RegisterHandler(method string, handler Handler) {
	c.handlersMx.Lock()
	defer c.handlersMx.Unlock()
	c.handlers[method] = handler
}

// UnregisterHandler removes a local route; the method reaches the transport
// again.
func (c *Client) UnregisterHandler(method string) {
	c.handlersMx.Lock()
	defer c.handlersMx.Unlock()
	delete(c.handlers, method)
}

func (c *Client) handler(method string) (Handler, bool) {
	c.handlersMx.RLock()
	defer c.handlersMx.RUnlock()
	h, ok := c.handlers[method]
	return h, ok
}

// Call is CallContext with a background context.
func (c *Client) Call(result interface{}, method string, params ...interface{}) error {
	return c.CallContext(context.Background(), result, method, params...)
}

// CallContext performs one request. Known methods are validated against the
// schema before dispatch and their results shape-checked before decoding
// into result. A nil result discards the response body.
func (c *Client) CallContext(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	raw, err := c.CallRaw(ctx, method, params...)
	if err != nil {
		return err
	}
	return decodeResult(method, raw, result)
}

// CallRaw performs one request and returns the raw result, skipping the
// decode phase.
func (c *Client) CallRaw(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if handler, ok := c.handler(method); ok {
		return c.callLocal(ctx, handler, method, params)
	}
	if err := validateParams(method, params); err != nil {
		return nil, err
	}
	raw, err := c.dispatch(ctx, method, params)
	if err != nil {
		return nil, err
	}
	if err := validateResult(method, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) callLocal(ctx context.Context, handler Handler, method string, params []interface{}) (json.RawMessage, error) {
	response, err := handler(ctx, params...)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("rpc: local handler for %s returned unmarshalable value: %w", method, err)
	}
	return raw, nil
}

// dispatch sends through the primary transport, falling back behind the
// circuit when one is configured.
func (c *Client) dispatch(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if c.fallback == nil {
		return c.main.Call(ctx, method, params...)
	}

	result := c.breaker.Execute(ctx,
		circuitbreaker.NewProvider(c.circuitName+"_main", func(ctx context.Context) (interface{}, error) {
			return c.main.Call(ctx, method, params...)
		}),
		circuitbreaker.NewProvider(c.circuitName+"_fallback", func(ctx context.Context) (interface{}, error) {
			c.logger.Warn("primary transport failed, using fallback", zap.String("method", method))
			return c.fallback.Call(ctx, method, params...)
		}),
	)
	if err := result.Error(); err != nil {
		return nil, err
	}
	raw, _ := result.Value().(json.RawMessage)
	return raw, nil
}

// BatchCallContext validates every known-method element, then sends the
// batch through the primary transport as one frame. Per-element outcomes
// land in the elements; decode the raw results with DecodeBatchElem.
func (c *Client) BatchCallContext(ctx context.Context, batch []BatchElem) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	for i := range batch {
		if err := validateParams(batch[i].Method, batch[i].Params); err != nil {
			return err
		}
	}
	if err := c.main.BatchCall(ctx, batch); err != nil {
		return err
	}
	for i := range batch {
		if batch[i].Error != nil {
			continue
		}
		if err := validateResult(batch[i].Method, batch[i].Result); err != nil {
			batch[i].Error = err
		}
	}
	return nil
}

// DecodeBatchElem decodes one successful batch element into result.
func DecodeBatchElem(elem BatchElem, result interface{}) error {
	if elem.Error != nil {
		return elem.Error
	}
	return decodeResult(elem.Method, elem.Result, result)
}

// decodeResult is the second phase of result resolution: the raw message,
// already shape-checked, decodes into the caller's concrete type. A null
// result leaves the value untouched.
func decodeResult(method string, raw json.RawMessage, result interface{}) error {
	if result == nil || isJSONNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return &SchemaValidationError{
			Method: method,
			Reason: fmt.Sprintf("result does not decode into %T: %v", result, err),
		}
	}
	return nil
}

// Close tears the client and its transports down. Outstanding requests on
// persistent transports fail with a cancellation error.
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.main.Close()
	if c.fallback != nil {
		c.fallback.Close()
	}
}
