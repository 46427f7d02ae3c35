package translation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeBackend struct {
	name  string
	out   string
	err   error
	block bool
	calls atomic.Int32
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Translate(ctx context.Context, text, source, target string) (string, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

type pairBackend struct {
	fakeBackend
	supported bool
}

func (p *pairBackend) Supports(source, target string) bool { return p.supported }

type memoryCache struct {
	mu   sync.Mutex
	data map[string]string
	sets int
}

func (m *memoryCache) GetTranslation(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCache) SetTranslation(_ context.Context, key, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string]string)
	}
	m.data[key] = text
	m.sets++
	return nil
}

func TestTranslateIdentity(t *testing.T) {
	backend := &fakeBackend{name: "llm", out: "unused"}
	r := NewRouter([]Backend{backend})

	for _, lang := range []string{"en", "ml", "hi", ""} {
		for _, text := range []string{"", "hello", "  spaced  ", "ശങ്കരൻ"} {
			res, err := r.Translate(context.Background(), text, lang, lang)
			require.NoError(t, err)
			assert.Equal(t, text, res.Text)
			assert.Equal(t, IdentityBackend, res.Backend)
			assert.Empty(t, res.Attempts)
		}
	}
	assert.Zero(t, backend.calls.Load())
}

func TestTranslateFallsThroughInPriorityOrder(t *testing.T) {
	failing := &fakeBackend{name: "indic", err: errors.New("service down")}
	slow := &fakeBackend{name: "llm", block: true}
	empty := &fakeBackend{name: "empty", out: "   "}
	working := &fakeBackend{name: "glossary", out: "നമസ്കാരം"}

	r := NewRouter([]Backend{failing, slow, empty, working}, WithAttemptTimeout(20*time.Millisecond))
	res, err := r.Translate(context.Background(), "hello", "en", "ml")
	require.NoError(t, err)

	assert.Equal(t, "നമസ്കാരം", res.Text)
	assert.Equal(t, "glossary", res.Backend)
	require.Len(t, res.Attempts, 4)

	assert.False(t, res.Attempts[0].Success)
	assert.EqualError(t, res.Attempts[0].Err, "service down")
	assert.ErrorIs(t, res.Attempts[1].Err, context.DeadlineExceeded)
	assert.ErrorIs(t, res.Attempts[2].Err, ErrEmptyResult)
	assert.True(t, res.Attempts[3].Success)
}

func TestTranslateStopsAtFirstSuccess(t *testing.T) {
	first := &fakeBackend{name: "indic", out: "नमस्ते"}
	second := &fakeBackend{name: "llm", out: "unused"}

	res, err := NewRouter([]Backend{first, second}).Translate(context.Background(), "hello", "en", "hi")
	require.NoError(t, err)
	assert.Equal(t, "indic", res.Backend)
	assert.Zero(t, second.calls.Load())
}

func TestTranslateExhausted(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	backends := []Backend{
		&fakeBackend{name: "indic", err: errors.New("boom")},
		&fakeBackend{name: "llm", block: true},
		&pairBackend{fakeBackend: fakeBackend{name: "glossary", out: "x"}, supported: false},
	}
	r := NewRouter(backends, WithAttemptTimeout(10*time.Millisecond))

	res, err := r.Translate(context.Background(), "what is maya", "ml", "en")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, "what is maya", res.Text)
	assert.Empty(t, res.Backend)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "ml", exhausted.Source)
	assert.Equal(t, "en", exhausted.Target)
	require.Len(t, exhausted.Attempts, 3)
	assert.ErrorIs(t, exhausted.Attempts[2].Err, ErrUnsupportedPair)
	assert.Zero(t, backends[2].(*pairBackend).calls.Load())
	assert.Contains(t, err.Error(), "exhausted after 3 attempts")
}

func TestTranslateNoBackendsIsExhausted(t *testing.T) {
	res, err := NewRouter(nil).Translate(context.Background(), "hello", "en", "ml")
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, "hello", res.Text)
}

func TestTranslateCancelledContext(t *testing.T) {
	backend := &fakeBackend{name: "llm", out: "x"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewRouter([]Backend{backend}).Translate(ctx, "hello", "en", "ml")
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, "hello", res.Text)
	assert.Zero(t, backend.calls.Load())
}

func TestTranslateUsesCache(t *testing.T) {
	backend := &fakeBackend{name: "llm", out: "നന്ദി"}
	cache := &memoryCache{}
	r := NewRouter([]Backend{backend}, WithCache(cache))

	res, err := r.Translate(context.Background(), "thank you", "en", "ml")
	require.NoError(t, err)
	assert.Equal(t, "llm", res.Backend)
	assert.Equal(t, 1, cache.sets)

	res, err = r.Translate(context.Background(), "thank you", "en", "ml")
	require.NoError(t, err)
	assert.Equal(t, CacheBackend, res.Backend)
	assert.Equal(t, "നന്ദി", res.Text)
	assert.Equal(t, int32(1), backend.calls.Load())

	_, err = r.Translate(context.Background(), "thank you", "en", "hi")
	require.NoError(t, err)
	assert.Equal(t, int32(2), backend.calls.Load())
}

func TestBuildChain(t *testing.T) {
	indic := &fakeBackend{name: "indic"}
	llm := &fakeBackend{name: "llm"}
	glossary := &fakeBackend{name: "glossary"}
	available := map[string]Backend{"indic": indic, "llm": llm, "glossary": glossary}

	chain, missing := BuildChain([]string{"llm", "GLOSSARY", "deepl", "llm"}, available)
	assert.Equal(t, []Backend{llm, glossary}, chain)
	assert.Equal(t, []string{"deepl"}, missing)

	chain, missing = BuildChain(nil, available)
	assert.Equal(t, []Backend{indic, llm, glossary}, chain)
	assert.Empty(t, missing)

	assert.Equal(t, []string{"indic", "llm", "glossary"}, NewRouter(chain).Backends())
}
