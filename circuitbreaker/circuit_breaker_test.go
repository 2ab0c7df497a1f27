package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/afex/hystrix-go/hystrix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Timeout:                1000,
		MaxConcurrentRequests:  100,
		RequestVolumeThreshold: 10,
		SleepWindow:            10,
		ErrorPercentThreshold:  10,
	}
}

// unique circuit names keep runs with -count>1 independent
func circuitName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func TestExecuteSingleProvider(t *testing.T) {
	cb := New(testConfig())

	result := cb.Execute(context.Background(),
		NewProvider(circuitName("single"), func(ctx context.Context) (interface{}, error) {
			return "0x1", nil
		}))

	require.NoError(t, result.Error())
	require.Equal(t, "0x1", result.Value())
}

func TestExecuteFallsThroughToSecondProvider(t *testing.T) {
	cb := New(testConfig())

	primaryDown := errors.New("connection refused")
	result := cb.Execute(context.Background(),
		NewProvider(circuitName("down"), func(ctx context.Context) (interface{}, error) {
			return nil, primaryDown
		}),
		NewProvider(circuitName("up"), func(ctx context.Context) (interface{}, error) {
			return "fallback answer", nil
		}))

	require.NoError(t, result.Error())
	require.Equal(t, "fallback answer", result.Value())
}

func TestExecuteAccumulatesAllFailures(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 10
	cb := New(cfg)

	errSecond := errors.New("second provider failed")
	result := cb.Execute(context.Background(),
		NewProvider(circuitName("slow"), func(ctx context.Context) (interface{}, error) {
			time.Sleep(100 * time.Millisecond)
			return "too late", nil
		}),
		NewProvider(circuitName("broken"), func(ctx context.Context) (interface{}, error) {
			return nil, errSecond
		}))

	require.Error(t, result.Error())
	assert.True(t, errors.Is(result.Error(), hystrix.ErrTimeout))
	assert.True(t, errors.Is(result.Error(), errSecond))
}

func TestExecutePermanentErrorStopsIteration(t *testing.T) {
	cfg := testConfig()
	rejected := errors.New("user rejected request")
	cfg.Permanent = func(err error) bool { return errors.Is(err, rejected) }
	cb := New(cfg)

	var fallbackCalled bool
	result := cb.Execute(context.Background(),
		NewProvider(circuitName("rejecting"), func(ctx context.Context) (interface{}, error) {
			return nil, rejected
		}),
		NewProvider(circuitName("never"), func(ctx context.Context) (interface{}, error) {
			fallbackCalled = true
			return "unexpected", nil
		}))

	require.ErrorIs(t, result.Error(), rejected)
	require.False(t, fallbackCalled)
}

func TestExecutePermanentErrorDoesNotTripCircuit(t *testing.T) {
	cfg := testConfig()
	cfg.RequestVolumeThreshold = 2
	rejected := errors.New("execution reverted")
	cfg.Permanent = func(err error) bool { return errors.Is(err, rejected) }
	cb := New(cfg)

	name := circuitName("reverting")
	for i := 0; i < 10; i++ {
		result := cb.Execute(context.Background(),
			NewProvider(name, func(ctx context.Context) (interface{}, error) {
				return nil, rejected
			}))
		require.ErrorIs(t, result.Error(), rejected)
	}
	require.False(t, CircuitOpen(name))
}

func TestExecuteNoProviders(t *testing.T) {
	cb := New(testConfig())
	result := cb.Execute(context.Background())
	require.ErrorIs(t, result.Error(), ErrNoProviders)
}

func TestExecuteCancelledContext(t *testing.T) {
	cb := New(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := cb.Execute(ctx,
		NewProvider(circuitName("unreached"), func(ctx context.Context) (interface{}, error) {
			return "unexpected", nil
		}))
	require.ErrorIs(t, result.Error(), context.Canceled)
}
