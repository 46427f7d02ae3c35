package translation

import (
	"context"
	"errors"
	"strings"

	"github.com/acharya-agent/backend/pkg/utils"
)

var ErrNoGlossaryEntry = errors.New("no glossary entry for text")

// GlossaryBackend translates whole phrases found in a fixed table. It is the
// least capable backend and mostly covers greetings and the agent's own
// stock replies.
type GlossaryBackend struct {
	canonical string
	forward   map[string]map[string]string
	reverse   map[string]map[string]string
}

func NewGlossaryBackend(glossary map[string]map[string]string, canonical string) *GlossaryBackend {
	g := &GlossaryBackend{
		canonical: canonical,
		forward:   make(map[string]map[string]string),
		reverse:   make(map[string]map[string]string),
	}
	for lang, phrases := range glossary {
		g.forward[lang] = make(map[string]string, len(phrases))
		g.reverse[lang] = make(map[string]string, len(phrases))
		for src, dst := range phrases {
			g.forward[lang][glossaryKey(src)] = dst
			g.reverse[lang][glossaryKey(dst)] = src
		}
	}
	return g
}

func (g *GlossaryBackend) Name() string {
	return "glossary"
}

func (g *GlossaryBackend) Supports(source, target string) bool {
	if source == g.canonical {
		return g.forward[target] != nil
	}
	if target == g.canonical {
		return g.reverse[source] != nil
	}
	return false
}

func (g *GlossaryBackend) Translate(_ context.Context, text, source, target string) (string, error) {
	key := glossaryKey(text)

	var (
		out string
		ok  bool
	)
	switch {
	case source == g.canonical:
		out, ok = g.forward[target][key]
	case target == g.canonical:
		out, ok = g.reverse[source][key]
	}
	if !ok {
		return "", ErrNoGlossaryEntry
	}
	return out, nil
}

func glossaryKey(s string) string {
	return utils.CollapseSpaces(strings.ToLower(s))
}
