// Package translation moves text between languages through an ordered chain
// of interchangeable backends, falling through to the next backend whenever
// one fails, times out or returns nothing.
package translation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/acharya-agent/backend/internal/metrics"
	"github.com/acharya-agent/backend/pkg/logger"
	"github.com/acharya-agent/backend/pkg/utils"
)

const (
	IdentityBackend = "identity"
	CacheBackend    = "cache"

	DefaultAttemptTimeout = 8 * time.Second
)

var (
	ErrExhausted       = errors.New("translation exhausted")
	ErrEmptyResult     = errors.New("backend returned empty text")
	ErrUnsupportedPair = errors.New("backend does not support language pair")
)

type Backend interface {
	Name() string
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// PairSupporter is implemented by backends that only handle some language
// pairs. Unsupported pairs are recorded as failed attempts without a call.
type PairSupporter interface {
	Supports(source, target string) bool
}

type Cache interface {
	GetTranslation(ctx context.Context, key string) (string, bool, error)
	SetTranslation(ctx context.Context, key, text string) error
}

type Attempt struct {
	Backend  string        `json:"backend"`
	Success  bool          `json:"success"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

type Result struct {
	Text     string
	Backend  string
	Attempts []Attempt
}

// ExhaustedError reports that every backend failed. It unwraps to ErrExhausted.
type ExhaustedError struct {
	Source   string
	Target   string
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Backend, a.Err))
	}
	return fmt.Sprintf("translation %s->%s exhausted after %d attempts [%s]",
		e.Source, e.Target, len(e.Attempts), strings.Join(parts, "; "))
}

func (e *ExhaustedError) Unwrap() error {
	return ErrExhausted
}

type Router struct {
	backends []Backend
	timeout  time.Duration
	cache    Cache
}

type Option func(*Router)

func WithAttemptTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithCache(c Cache) Option {
	return func(r *Router) { r.cache = c }
}

func NewRouter(backends []Backend, opts ...Option) *Router {
	r := &Router{
		backends: backends,
		timeout:  DefaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) Backends() []string {
	names := make([]string, 0, len(r.backends))
	for _, b := range r.backends {
		names = append(names, b.Name())
	}
	return names
}

func (r *Router) Translate(ctx context.Context, text, source, target string) (Result, error) {
	return r.TranslateWith(ctx, text, source, target, r.backends)
}

// TranslateWith tries backends in order. When all of them fail the original
// text is returned together with an *ExhaustedError; callers present the
// untranslated text rather than failing the interaction.
func (r *Router) TranslateWith(ctx context.Context, text, source, target string, backends []Backend) (Result, error) {
	if source == target || strings.TrimSpace(text) == "" {
		return Result{Text: text, Backend: IdentityBackend}, nil
	}

	key := cacheKey(text, source, target)
	if r.cache != nil {
		cached, ok, err := r.cache.GetTranslation(ctx, key)
		if err != nil {
			logger.Debug("Translation cache lookup failed", zap.Error(err))
		} else if ok && cached != "" {
			metrics.CacheHits.WithLabelValues("translation").Inc()
			return Result{Text: cached, Backend: CacheBackend}, nil
		}
		metrics.CacheMisses.WithLabelValues("translation").Inc()
	}

	attempts := make([]Attempt, 0, len(backends))
	for _, backend := range backends {
		if ctx.Err() != nil {
			attempts = append(attempts, Attempt{Backend: backend.Name(), Err: ctx.Err()})
			break
		}

		attempt := r.attempt(ctx, backend, text, source, target)
		attempts = append(attempts, attempt.Attempt)
		metrics.TranslationAttempts.WithLabelValues(backend.Name(), outcome(attempt.Attempt)).Inc()

		if !attempt.Success {
			logger.Debug("Translation backend failed",
				zap.String("backend", backend.Name()),
				zap.String("source", source),
				zap.String("target", target),
				zap.Error(attempt.Err),
			)
			continue
		}

		if r.cache != nil {
			if err := r.cache.SetTranslation(ctx, key, attempt.text); err != nil {
				logger.Debug("Failed to cache translation", zap.Error(err))
			}
		}

		logger.Debug("Text translated",
			zap.String("backend", backend.Name()),
			zap.String("source", source),
			zap.String("target", target),
		)
		return Result{Text: attempt.text, Backend: backend.Name(), Attempts: attempts}, nil
	}

	return Result{Text: text, Attempts: attempts}, &ExhaustedError{Source: source, Target: target, Attempts: attempts}
}

type attemptResult struct {
	Attempt
	text string
}

// attempt runs one backend call under its own deadline. The call runs in a
// goroutine that always finishes: its result channel is buffered and the
// backend context is cancelled as soon as the attempt is abandoned.
func (r *Router) attempt(ctx context.Context, backend Backend, text, source, target string) attemptResult {
	res := attemptResult{Attempt: Attempt{Backend: backend.Name()}}

	if ps, ok := backend.(PairSupporter); ok && !ps.Supports(source, target) {
		res.Err = ErrUnsupportedPair
		return res
	}

	start := time.Now()
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type reply struct {
		text string
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		out, err := backend.Translate(attemptCtx, text, source, target)
		done <- reply{text: out, err: err}
	}()

	select {
	case rep := <-done:
		res.Duration = time.Since(start)
		switch {
		case rep.err != nil:
			res.Err = rep.err
		case strings.TrimSpace(rep.text) == "":
			res.Err = ErrEmptyResult
		default:
			res.Success = true
			res.text = strings.TrimSpace(rep.text)
		}
	case <-attemptCtx.Done():
		res.Duration = time.Since(start)
		res.Err = attemptCtx.Err()
	}
	return res
}

func cacheKey(text, source, target string) string {
	return utils.HashString(source + "|" + target + "|" + text)
}

func outcome(a Attempt) string {
	switch {
	case a.Success:
		return "success"
	case errors.Is(a.Err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(a.Err, ErrUnsupportedPair):
		return "unsupported"
	case errors.Is(a.Err, ErrEmptyResult):
		return "empty"
	default:
		return "error"
	}
}
