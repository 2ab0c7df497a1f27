package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const maxResponseBytes = 32 * 1024 * 1024

// HTTPTransport performs one POST round trip per call. Requests carry
// monotonically increasing ids assigned per transport instance.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
	cfg      Config
	limiter  *rpsLimiter
	logger   *zap.Logger

	idCounter atomic.Uint64
	closed    atomic.Bool
}

// NewHTTPTransport returns a transport POSTing to endpoint. The zero option
// set retries twice with backoff and times out after DefaultCallTimeout.
func NewHTTPTransport(endpoint string, opts ...Option) *HTTPTransport {
	cfg := newConfig(opts)
	t := &HTTPTransport{
		endpoint: endpoint,
		client:   &http.Client{},
		cfg:      cfg,
		logger:   cfg.Logger.Named("rpc.http"),
	}
	if cfg.RPS > 0 {
		t.limiter = newRPSLimiter(cfg.RPS)
	}
	return t
}

// SetHTTPClient swaps the underlying HTTP client, for custom TLS or proxy
// settings. Not safe to call after the first request.
func (t *HTTPTransport) SetHTTPClient(client *http.Client) {
	t.client = client
}

func (t *HTTPTransport) nextID() uint64 {
	return t.idCounter.Add(1)
}

// Call sends a single request and retries transient faults with exponential
// backoff until MaxRetries is exhausted or the call times out.
func (t *HTTPTransport) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if t.closed.Load() {
		return nil, ErrClientClosed
	}
	msg, err := newMessage(t.nextID(), method, params)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.CallTimeout)
	defer cancel()

	var result json.RawMessage
	op := func() error {
		if t.limiter != nil {
			if err := t.limiter.wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		res, err := t.roundTrip(ctx, msg)
		if err != nil {
			if isRetryable(err, t.cfg.RetryableCodes) {
				t.logger.Debug("retrying transient fault",
					zap.String("method", method), zap.Error(err))
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}
	if err := backoff.Retry(op, t.cfg.newBackoff(ctx)); err != nil {
		return nil, t.terminalError(method, err)
	}
	return result, nil
}

// terminalError shapes the final failure: timeouts become TimeoutError and
// exhausted transient faults become a terminal TransportError wrapping the
// last underlying cause.
func (t *HTTPTransport) terminalError(method string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Method: method, Duration: t.cfg.CallTimeout}
	}
	if isRetryable(err, t.cfg.RetryableCodes) {
		return &TransportError{Cause: err, Retryable: false}
	}
	return err
}

func (t *HTTPTransport) roundTrip(ctx context.Context, msg *jsonrpcMessage) (json.RawMessage, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	respBody, err := t.post(ctx, body)
	if err != nil {
		return nil, err
	}

	var resp jsonrpcMessage
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &TransportError{Cause: fmt.Errorf("malformed response: %w", err)}
	}
	if !bytes.Equal(resp.ID, msg.ID) {
		return nil, &TransportError{Cause: fmt.Errorf("response id %s does not match request id %s", resp.ID, msg.ID)}
	}
	if resp.Error != nil {
		return nil, resp.responseError()
	}
	return resp.Result, nil
}

func (t *HTTPTransport) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Cause: err, Retryable: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Cause: err, Retryable: true}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{
			Cause:     fmt.Errorf("http status %d", resp.StatusCode),
			Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}
	return respBody, nil
}

// BatchCall sends the whole batch as one JSON array and matches responses
// by id; the server may answer in any order. A transport-level transient
// fault retries the batch as a unit.
func (t *HTTPTransport) BatchCall(ctx context.Context, batch []BatchElem) error {
	if t.closed.Load() {
		return ErrClientClosed
	}
	if len(batch) == 0 {
		return nil
	}

	msgs := make([]*jsonrpcMessage, len(batch))
	byID := make(map[string]int, len(batch))
	for i, elem := range batch {
		msg, err := newMessage(t.nextID(), elem.Method, elem.Params)
		if err != nil {
			return err
		}
		msgs[i] = msg
		byID[string(msg.ID)] = i
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.CallTimeout)
	defer cancel()

	op := func() error {
		if t.limiter != nil {
			if err := t.limiter.wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		body, err := json.Marshal(msgs)
		if err != nil {
			return backoff.Permanent(err)
		}
		respBody, err := t.post(ctx, body)
		if err != nil {
			if isRetryable(err, t.cfg.RetryableCodes) {
				return err
			}
			return backoff.Permanent(err)
		}

		var resps []jsonrpcMessage
		if err := json.Unmarshal(respBody, &resps); err != nil {
			return backoff.Permanent(&TransportError{Cause: fmt.Errorf("malformed batch response: %w", err)})
		}
		for i := range batch {
			batch[i].Result = nil
			batch[i].Error = &TransportError{Cause: errors.New("no response for request")}
		}
		for _, resp := range resps {
			i, ok := byID[string(resp.ID)]
			if !ok {
				continue
			}
			if resp.Error != nil {
				batch[i].Error = resp.responseError()
				continue
			}
			batch[i].Result = resp.Result
			batch[i].Error = nil
		}
		return nil
	}
	if err := backoff.Retry(op, t.cfg.newBackoff(ctx)); err != nil {
		return t.terminalError("batch", err)
	}
	return nil
}

// Close marks the transport closed. HTTP requests are not multiplexed, so
// there is no pending map to drain; in-flight calls finish on their own
// contexts.
func (t *HTTPTransport) Close() {
	t.closed.Store(true)
}
