package models

import "time"

type Interaction struct {
	ID                       string    `json:"id"`
	Utterance                string    `json:"utterance"`
	Language                 string    `json:"language"`
	Method                   string    `json:"method"`
	ClassificationConfidence float64   `json:"classification_confidence"`
	ActiveLanguage           string    `json:"active_language,omitempty"`
	CanonicalQuestion        string    `json:"canonical_question"`
	Answer                   string    `json:"answer"`
	Origin                   string    `json:"origin"`
	Style                    string    `json:"style"`
	PersonaVoice             bool      `json:"persona_voice"`
	Confidence               float64   `json:"confidence"`
	Decision                 string    `json:"decision,omitempty"`
	InboundBackend           string    `json:"inbound_backend"`
	OutboundBackend          string    `json:"outbound_backend"`
	Degraded                 []string  `json:"degraded,omitempty"`
	LatencyMS                int       `json:"latency_ms"`
	CreatedAt                time.Time `json:"created_at"`
}

type LearningEvent struct {
	ID          int       `json:"id"`
	Kind        string    `json:"kind"`
	CandidateID string    `json:"candidate_id,omitempty"`
	Question    string    `json:"question"`
	Source      string    `json:"source"`
	Confidence  float64   `json:"confidence"`
	Mode        string    `json:"mode,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Feedback struct {
	ID            int       `json:"id"`
	InteractionID string    `json:"interaction_id"`
	Helpful       bool      `json:"helpful"`
	Comment       string    `json:"comment,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type FeedbackSummary struct {
	Total   int `json:"total"`
	Helpful int `json:"helpful"`
}

// LanguagePerformance aggregates the interactions answered in one language.
type LanguagePerformance struct {
	Language      string  `json:"language"`
	Interactions  int     `json:"interactions"`
	AvgLatencyMS  float64 `json:"avg_latency_ms"`
	AvgConfidence float64 `json:"avg_confidence"`
	CacheHits     int     `json:"cache_hits"`
	Degraded      int     `json:"degraded"`
	Feedback      int     `json:"feedback"`
	Helpful       int     `json:"helpful"`
}
