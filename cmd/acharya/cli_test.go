package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acharya-agent/backend/internal/app"
	"github.com/acharya-agent/backend/internal/knowledge"
	"github.com/acharya-agent/backend/internal/learning"
	"github.com/acharya-agent/backend/pkg/config"
)

func setupApp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Persona:     config.PersonaConfig{CanonicalLanguage: "en"},
		Translation: config.TranslationConfig{Priority: []string{"glossary"}, GlossaryEnabled: true, TimeoutSec: 1},
		Knowledge:   config.KnowledgeConfig{Path: filepath.Join(dir, "knowledge.json"), SimilarityThreshold: 0.6},
		Learning:    config.LearningConfig{Mode: "manual", Threshold: 0.7, AutoApproveThreshold: 0.9},
		SQLite:      config.SQLiteConfig{Path: filepath.Join(dir, "acharya.db")},
	}

	a, err := app.New(cfg)
	require.NoError(t, err)
	application = a
	timeout = 10 * time.Second
	t.Cleanup(func() {
		a.Close()
		application = nil
		autoThreshold = 0
	})
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestImportThenAsk(t *testing.T) {
	setupApp(t)

	path := filepath.Join(t.TempDir(), "pairs.txt")
	require.NoError(t, os.WriteFile(path, []byte("Q: Where were you born?\nA: I was born in Kaladi, on the banks of the Periyar river.\n"), 0o644))

	out, err := execute(t, "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 1, merged 0, skipped 0")

	out, err = execute(t, "ask", "Where", "were", "you", "born?")
	require.NoError(t, err)
	assert.Contains(t, out, "[en]")
	assert.Contains(t, out, "Kaladi")
	assert.Contains(t, out, "origin=knowledge")
}

func TestChatStopsOnExit(t *testing.T) {
	setupApp(t)
	_, err := application.Learning.Teach("Who was your guru?", "Govinda Bhagavatpada was my guru.")
	require.NoError(t, err)

	in := strings.NewReader("Who was your guru?\n\nexit\nWho was your guru?\n")
	var out bytes.Buffer
	require.NoError(t, chat(context.Background(), in, &out))

	assert.Equal(t, 1, strings.Count(out.String(), "Govinda"))
}

func TestReviewCommands(t *testing.T) {
	setupApp(t)

	for _, q := range []struct {
		question string
		conf     float64
	}{
		{"What is maya?", 0.95},
		{"What is atman?", 0.5},
		{"What is moksha?", 0.6},
	} {
		_, err := application.Learning.Consider(q.question, "An answer about "+q.question, knowledge.SourceReference, q.conf, learning.ModeManual)
		require.NoError(t, err)
	}
	queue := application.Learning.Queue()
	require.Len(t, queue, 3)

	out, err := execute(t, "review", "list")
	require.NoError(t, err)
	assert.Contains(t, out, queue[1].ID)

	out, err = execute(t, "review", "auto")
	require.NoError(t, err)
	assert.Contains(t, out, "auto-approved 1 at threshold 0.90, 2 remaining")

	_, err = execute(t, "review", "approve", queue[1].ID)
	require.NoError(t, err)

	out, err = execute(t, "review", "reject", queue[2].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "rejected "+queue[2].ID)

	_, err = execute(t, "review", "reject", queue[2].ID)
	assert.ErrorContains(t, err, "no queued candidate")

	out, err = execute(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "knowledge entries: 2")
	assert.Contains(t, out, "discarded 1")
	assert.Contains(t, out, "feedback: 0 of 0 helpful")
}

func TestEvalCommand(t *testing.T) {
	setupApp(t)
	_, err := application.Learning.Teach("Where were you born?", "I was born in Kaladi.")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "set.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`items:
  - utterance: Where were you born?
    language: en
    origin: knowledge
    expected: I was born in Kaladi.
`), 0o644))

	out, err := execute(t, "eval", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Language: 1 / 1 correct")
	assert.Contains(t, out, "Origin: 1 / 1 correct")
}

func TestStatsShowsLanguagePerformance(t *testing.T) {
	setupApp(t)
	_, err := application.Learning.Teach("Where were you born?", "I was born in Kaladi.")
	require.NoError(t, err)

	_, err = execute(t, "ask", "Where were you born?")
	require.NoError(t, err)

	out, err := execute(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "en   1 interactions, confidence 0.95")
}
