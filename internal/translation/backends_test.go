package translation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acharya-agent/backend/pkg/circuitbreaker"
	"github.com/acharya-agent/backend/pkg/retry"
)

func TestGlossaryBackend(t *testing.T) {
	g := NewGlossaryBackend(map[string]map[string]string{
		"ml": {"Thank you": "നന്ദി"},
	}, "en")

	assert.True(t, g.Supports("en", "ml"))
	assert.True(t, g.Supports("ml", "en"))
	assert.False(t, g.Supports("en", "hi"))
	assert.False(t, g.Supports("ml", "hi"))

	out, err := g.Translate(context.Background(), "  thank   YOU ", "en", "ml")
	require.NoError(t, err)
	assert.Equal(t, "നന്ദി", out)

	out, err = g.Translate(context.Background(), "നന്ദി", "ml", "en")
	require.NoError(t, err)
	assert.Equal(t, "Thank you", out)

	_, err = g.Translate(context.Background(), "good night", "en", "ml")
	assert.ErrorIs(t, err, ErrNoGlossaryEntry)
}

func TestIndicBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req indicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Text == "fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(indicResponse{Translation: req.TargetLanguage + ":" + req.Text})
	}))
	defer server.Close()

	b := NewIndicBackend(server.URL, "secret", "en", nil)
	assert.True(t, b.Supports("en", "ml"))
	assert.True(t, b.Supports("ta", "en"))
	assert.False(t, b.Supports("en", "fr"))
	assert.False(t, b.Supports("ml", "ta"))

	out, err := b.Translate(context.Background(), "hello", "en", "ml")
	require.NoError(t, err)
	assert.Equal(t, "ml:hello", out)

	_, err = b.Translate(context.Background(), "fail", "en", "ml")
	assert.ErrorContains(t, err, "status 502")
}

func TestGuardRetriesAndBreaks(t *testing.T) {
	flaky := &flakyBackend{failures: 2, out: "ok"}
	g := Guard(flaky, nil, retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})

	out, err := g.Translate(context.Background(), "x", "en", "ml")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, flaky.calls)
	assert.Equal(t, "flaky", g.Name())

	breaker := circuitbreaker.NewCircuitBreaker("flaky", circuitbreaker.Config{FailureThreshold: 1, Timeout: time.Minute})
	down := &flakyBackend{failures: 100}
	g = Guard(down, breaker, retry.Config{MaxAttempts: 1})

	_, err = g.Translate(context.Background(), "x", "en", "ml")
	require.Error(t, err)
	_, err = g.Translate(context.Background(), "x", "en", "ml")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 1, down.calls)
}

func TestGuardDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	g := Guard(NewIndicBackend(server.URL, "", "en", nil), nil,
		retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})

	_, err := g.Translate(context.Background(), "hello", "en", "ml")
	assert.ErrorContains(t, err, "status 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGuardKeepsPairSupport(t *testing.T) {
	g := Guard(NewGlossaryBackend(map[string]map[string]string{"ml": {"a": "b"}}, "en"), nil, retry.Config{MaxAttempts: 1})
	ps, ok := g.(PairSupporter)
	require.True(t, ok)
	assert.True(t, ps.Supports("en", "ml"))
	assert.False(t, ps.Supports("en", "hi"))
}

type flakyBackend struct {
	failures int
	calls    int
	out      string
}

func (f *flakyBackend) Name() string { return "flaky" }

func (f *flakyBackend) Translate(context.Context, string, string, string) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("transient")
	}
	return f.out, nil
}
