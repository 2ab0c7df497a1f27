// Package circuitbreaker sequences a call across ordered providers, each
// behind its own hystrix circuit. The first healthy provider answers; an
// open circuit skips straight to the next one.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"

	"github.com/afex/hystrix-go/hystrix"
)

var ErrNoProviders = errors.New("circuitbreaker: no providers")

// Config carries the hystrix knobs shared by all circuits this breaker
// configures. Permanent classifies errors that must surface immediately:
// they do not count against the circuit and do not fall through to the
// next provider.
type Config struct {
	Timeout                int
	MaxConcurrentRequests  int
	RequestVolumeThreshold int
	SleepWindow            int
	ErrorPercentThreshold  int

	Permanent func(error) bool
}

// Provider is one upstream with its circuit name. Providers sharing a name
// share a circuit.
type Provider struct {
	Name string
	Exec func(ctx context.Context) (interface{}, error)
}

func NewProvider(name string, exec func(ctx context.Context) (interface{}, error)) Provider {
	return Provider{Name: name, Exec: exec}
}

// Result is the outcome of one Execute. On total failure the error
// accumulates every provider's cause.
type Result struct {
	value interface{}
	err   error
}

func (r Result) Value() interface{} { return r.value }
func (r Result) Error() error       { return r.err }

type CircuitBreaker struct {
	config Config
}

func New(config Config) *CircuitBreaker {
	return &CircuitBreaker{config: config}
}

// Execute tries the providers in order until one answers. Blocking.
func (cb *CircuitBreaker) Execute(ctx context.Context, providers ...Provider) Result {
	if len(providers) == 0 {
		return Result{err: ErrNoProviders}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var result Result
	for _, p := range providers {
		if ctx.Err() != nil {
			return Result{err: ctx.Err()}
		}
		cb.ensureCircuit(p.Name)

		var permanent error
		var value interface{}
		err := hystrix.DoC(ctx, p.Name, func(ctx context.Context) error {
			v, err := p.Exec(ctx)
			if err != nil {
				if cb.config.Permanent != nil && cb.config.Permanent(err) {
					permanent = err
					return nil
				}
				return err
			}
			value = v
			return nil
		}, nil)

		if permanent != nil {
			return Result{err: permanent}
		}
		if err == nil {
			return Result{value: value}
		}
		if result.err != nil {
			result.err = fmt.Errorf("%w; %s: %w", result.err, p.Name, err)
		} else {
			result.err = fmt.Errorf("%s: %w", p.Name, err)
		}
		// keep iterating on ErrMaxConcurrency too; the next provider has
		// its own concurrency budget
	}
	return result
}

// CircuitOpen reports whether the named circuit is currently rejecting
// requests.
func CircuitOpen(name string) bool {
	circuit, _, err := hystrix.GetCircuit(name)
	if err != nil {
		return false
	}
	return circuit.IsOpen()
}

func (cb *CircuitBreaker) ensureCircuit(name string) {
	if hystrix.GetCircuitSettings()[name] == nil {
		hystrix.ConfigureCommand(name, hystrix.CommandConfig{
			Timeout:                cb.config.Timeout,
			MaxConcurrentRequests:  cb.config.MaxConcurrentRequests,
			RequestVolumeThreshold: cb.config.RequestVolumeThreshold,
			SleepWindow:            cb.config.SleepWindow,
			ErrorPercentThreshold:  cb.config.ErrorPercentThreshold,
		})
	}
}
