package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// DefaultCallTimeout is the default timeout for a single RPC call.
const DefaultCallTimeout = time.Minute

// Transport carries JSON-RPC frames to a remote node. Implementations own
// the connection configuration and, for persistent connections, the pending
// request map. A transport is created once per client and torn down with it.
type Transport interface {
	// Call performs one correlated round trip and returns the raw result.
	Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)

	// BatchCall sends all elements in one wire frame where the protocol
	// allows it, matching responses to elements by id.
	BatchCall(ctx context.Context, batch []BatchElem) error

	// Close tears the transport down. Outstanding requests fail with a
	// cancellation error; the pending map is empty afterwards.
	Close()
}

// BatchElem is one request of a batch. Result and Error are filled per
// element; a batch-level fault is returned from BatchCall itself.
type BatchElem struct {
	Method string
	Params []interface{}
	Result json.RawMessage
	Error  error
}

// Config holds the knobs shared by the transports.
type Config struct {
	// CallTimeout bounds a whole call including retries. On expiry the
	// request is cancelled and surfaces a TimeoutError.
	CallTimeout time.Duration

	// MaxRetries is the number of re-attempts after the first try.
	// Transient faults only; a call makes at most 1+MaxRetries attempts.
	MaxRetries uint64

	// RetryableCodes is the set of JSON-RPC error codes treated as
	// transient alongside network faults.
	RetryableCodes []int

	// InitialBackoff seeds the exponential backoff between retries.
	// Jitter is applied by the backoff implementation.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// RPS caps requests per second when positive.
	RPS int

	// QueueSize bounds requests queued while a persistent connection is
	// not open. Zero means fail fast.
	QueueSize int

	// Reconnect makes a persistent transport redial after a drop.
	Reconnect bool

	Logger *zap.Logger
}

// Option mutates the transport configuration.
type Option func(*Config)

func WithCallTimeout(d time.Duration) Option   { return func(c *Config) { c.CallTimeout = d } }
func WithMaxRetries(n uint64) Option           { return func(c *Config) { c.MaxRetries = n } }
func WithRetryableCodes(codes ...int) Option   { return func(c *Config) { c.RetryableCodes = codes } }
func WithInitialBackoff(d time.Duration) Option { return func(c *Config) { c.InitialBackoff = d } }
func WithRPSLimit(rps int) Option              { return func(c *Config) { c.RPS = rps } }
func WithQueueSize(n int) Option               { return func(c *Config) { c.QueueSize = n } }
func WithReconnect() Option                    { return func(c *Config) { c.Reconnect = true } }
func WithLogger(l *zap.Logger) Option          { return func(c *Config) { c.Logger = l } }

func newConfig(opts []Option) Config {
	cfg := Config{
		CallTimeout:    DefaultCallTimeout,
		MaxRetries:     2,
		RetryableCodes: []int{CodeLimitExceeded},
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// newBackoff builds the per-call retry schedule: exponential with jitter,
// bounded by MaxRetries, cancelled with the call context.
func (cfg *Config) newBackoff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.InitialBackoff
	exp.MaxInterval = cfg.MaxBackoff
	return backoff.WithContext(backoff.WithMaxRetries(exp, cfg.MaxRetries), ctx)
}
