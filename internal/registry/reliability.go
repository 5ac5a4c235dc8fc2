package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/blipee-dev/blipee-orchestrator/internal/infra"
)

// Caller — транспорт одного вызова к сервису инференса.
type Caller interface {
	Call(ctx context.Context, path string, payload []byte) ([]byte, error)
}

// ReliabilityWrapper оборачивает транспорт в Rate Limiter, Circuit Breaker
// и bounded retry с экспоненциальным бэкоффом. Исчерпание ретраев — это
// transient tool failure: вызывающий агент получит наблюдение, не падение задачи.
type ReliabilityWrapper struct {
	next    Caller
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter

	attempts uint
	timeout  time.Duration
}

func NewReliabilityWrapper(next Caller, cfg infra.InferenceConfig, metrics *infra.Metrics) *ReliabilityWrapper {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "inference-service",
		MaxRequests: 3,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Через сколько CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if metrics == nil {
				return
			}
			if to == gobreaker.StateOpen {
				metrics.CircuitBreakerState.Set(1)
			} else {
				metrics.CircuitBreakerState.Set(0)
			}
		},
	})

	attempts := uint(cfg.RetryCount)
	if attempts == 0 {
		attempts = 3
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &ReliabilityWrapper{
		next:     next,
		cb:       cb,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		attempts: attempts,
		timeout:  timeout,
	}
}

func (w *ReliabilityWrapper) Call(ctx context.Context, path string, payload []byte) ([]byte, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	var finalData []byte

	// 2. Circuit Breaker
	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.attempts),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Сервис вернул ThrottleError — уважаем его Retry-After
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				// Иначе стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.timeout)
			defer cancel()

			var callErr error
			finalData, callErr = w.next.Call(tCtx, path, payload)
			return callErr
		})

		return finalData, retryErr
	})

	if err != nil {
		return nil, err
	}
	return cbResult.([]byte), nil
}
