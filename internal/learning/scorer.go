package learning

import (
	"strings"
	"unicode/utf8"

	"github.com/acharya-agent/backend/internal/knowledge"
	"github.com/acharya-agent/backend/internal/persona"
	"github.com/acharya-agent/backend/pkg/utils"
)

const (
	MinAnswerLength = 40
	MaxAnswerLength = 1200

	markerBonus     = 0.05
	domainBonus     = 0.05
	domainRichBonus = 0.05
	domainRichCount = 3
	shortPenalty    = 0.2
	longPenalty     = 0.1
)

// Signals describe a candidate answer. Support applies to answers learned
// from dialogue, Relevance to reference-derived ones; both are in [0, 1].
type Signals struct {
	Source    knowledge.Source
	Answer    string
	Support   float64
	Relevance float64
}

type Scorer struct {
	markers     map[string]bool
	domainWords map[string]bool
	domainTerms []string
}

func NewScorer(tables *persona.Tables) *Scorer {
	s := &Scorer{
		markers:     make(map[string]bool, len(tables.FirstPersonMarkers)),
		domainWords: make(map[string]bool),
	}
	for _, m := range tables.FirstPersonMarkers {
		s.markers[m] = true
	}
	for _, t := range tables.DomainTerms {
		if strings.ContainsAny(t, " -") {
			s.domainTerms = append(s.domainTerms, t)
		} else {
			s.domainWords[t] = true
		}
	}
	return s
}

// Score combines source reliability with surface signals of the answer.
func (s *Scorer) Score(sig Signals) float64 {
	var score float64
	switch sig.Source {
	case knowledge.SourceManual:
		score = ManualConfidence
	case knowledge.SourceReference:
		score = 0.5 + 0.3*clampUnit(sig.Relevance)
	default:
		score = 0.5 + 0.4*clampUnit(sig.Support)
	}

	tokens := utils.Tokenize(sig.Answer)
	for _, tok := range tokens {
		if s.markers[tok] {
			score += markerBonus
			break
		}
	}

	if n := s.domainCount(sig.Answer, tokens); n > 0 {
		score += domainBonus
		if n >= domainRichCount {
			score += domainRichBonus
		}
	}

	length := utf8.RuneCountInString(strings.TrimSpace(sig.Answer))
	switch {
	case length < MinAnswerLength:
		score -= shortPenalty * (1 - float64(length)/MinAnswerLength)
	case length > MaxAnswerLength:
		score -= longPenalty
	}

	return clampUnit(score)
}

// domainCount counts distinct domain terms present in the answer.
func (s *Scorer) domainCount(answer string, tokens []string) int {
	seen := make(map[string]bool)
	for _, tok := range tokens {
		if s.domainWords[tok] {
			seen[tok] = true
		}
	}
	lower := strings.ToLower(answer)
	for _, term := range s.domainTerms {
		if strings.Contains(lower, term) {
			seen[term] = true
		}
	}
	return len(seen)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
