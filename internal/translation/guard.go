package translation

import (
	"context"
	"strings"

	"github.com/acharya-agent/backend/internal/metrics"
	"github.com/acharya-agent/backend/pkg/circuitbreaker"
	"github.com/acharya-agent/backend/pkg/retry"
)

type guardedBackend struct {
	backend Backend
	breaker *circuitbreaker.CircuitBreaker
	retry   retry.Config
}

// Guard wraps a backend with a circuit breaker and retry policy. A nil
// breaker leaves only the retries.
func Guard(backend Backend, breaker *circuitbreaker.CircuitBreaker, retryConfig retry.Config) Backend {
	if retryConfig.OnRetry == nil {
		name := backend.Name()
		retryConfig.OnRetry = func(int, error) {
			metrics.TranslationAttempts.WithLabelValues(name, "retry").Inc()
		}
	}
	return &guardedBackend{
		backend: backend,
		breaker: breaker,
		retry:   retryConfig,
	}
}

func (g *guardedBackend) Name() string {
	return g.backend.Name()
}

func (g *guardedBackend) Supports(source, target string) bool {
	if ps, ok := g.backend.(PairSupporter); ok {
		return ps.Supports(source, target)
	}
	return true
}

func (g *guardedBackend) Translate(ctx context.Context, text, source, target string) (string, error) {
	call := func() (string, error) {
		return retry.DoWithResult(ctx, g.retry, func() (string, error) {
			out, err := g.backend.Translate(ctx, text, source, target)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(out) == "" {
				return "", ErrEmptyResult
			}
			return out, nil
		})
	}

	if g.breaker == nil {
		return call()
	}

	var out string
	err := g.breaker.Execute(ctx, func() error {
		var err error
		out, err = call()
		return err
	})
	return out, err
}
