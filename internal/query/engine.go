package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acharya-agent/backend/internal/humanize"
	"github.com/acharya-agent/backend/internal/knowledge"
	"github.com/acharya-agent/backend/internal/language"
	"github.com/acharya-agent/backend/internal/learning"
	"github.com/acharya-agent/backend/internal/metrics"
	"github.com/acharya-agent/backend/internal/persona"
	"github.com/acharya-agent/backend/internal/reference/web"
	"github.com/acharya-agent/backend/internal/storage/models"
	"github.com/acharya-agent/backend/internal/style"
	"github.com/acharya-agent/backend/internal/translation"
	"github.com/acharya-agent/backend/pkg/logger"
	"github.com/acharya-agent/backend/pkg/utils"
)

var ErrEmptyUtterance = errors.New("utterance is empty")

const (
	DefaultMinRelevance       = 0.5
	DefaultReferenceSentences = 4
)

type Origin string

const (
	OriginKnowledge      Origin = "knowledge"
	OriginReference      Origin = "reference"
	OriginReferenceRaw   Origin = "reference-raw"
	OriginFallback       Origin = "fallback"
	OriginLanguageSwitch Origin = "language-switch"
)

// Degraded events recorded on a response. None of them abort the
// interaction.
const (
	DegradedInboundTranslation  = "inbound_translation_exhausted"
	DegradedOutboundTranslation = "outbound_translation_exhausted"
	DegradedReferenceFailed     = "reference_failed"
	DegradedReferenceIrrelevant = "reference_low_relevance"
	DegradedHumanization        = "humanization_rejected"
	DegradedRecordUse           = "record_use_failed"
	DegradedLearning            = "learning_failed"
	DegradedHistory             = "history_failed"
)

type Translator interface {
	Translate(ctx context.Context, text, source, target string) (translation.Result, error)
}

type KnowledgeBase interface {
	Find(question string) (knowledge.Entry, float64, bool)
	RecordUse(question string) (knowledge.Entry, error)
}

type ReferenceSource interface {
	Fetch(ctx context.Context, topic string) (string, error)
}

type Learner interface {
	Consider(question, answer string, source knowledge.Source, confidence float64, mode learning.Mode) (learning.Decision, error)
}

type HistoryRecorder interface {
	InsertInteraction(ctx context.Context, record *models.Interaction) error
}

// Deps are the collaborators of the engine. Reference and History may be
// nil.
type Deps struct {
	Tables     *persona.Tables
	Classifier *language.Classifier
	Translator Translator
	Knowledge  KnowledgeBase
	Reference  ReferenceSource
	Humanizer  *humanize.Humanizer
	Styler     *style.Styler
	Scorer     *learning.Scorer
	Learner    Learner
	History    HistoryRecorder
}

type Config struct {
	LearningMode       learning.Mode
	MinRelevance       float64
	ReferenceSentences int
}

type Engine struct {
	Deps
	cfg Config
}

type QueryRequest struct {
	Utterance string
	Session   language.Session
}

type QueryResponse struct {
	ID                string            `json:"id"`
	Utterance         string            `json:"utterance"`
	Classification    language.Result   `json:"classification"`
	Session           language.Session  `json:"session"`
	Language          string            `json:"language"`
	CanonicalQuestion string            `json:"canonical_question"`
	CanonicalAnswer   string            `json:"canonical_answer"`
	Answer            string            `json:"answer"`
	Origin            Origin            `json:"origin"`
	Style             style.Kind        `json:"style"`
	PersonaVoice      bool              `json:"persona_voice"`
	Confidence        float64           `json:"confidence"`
	Decision          learning.Decision `json:"decision,omitempty"`
	InboundBackend    string            `json:"inbound_backend"`
	OutboundBackend   string            `json:"outbound_backend"`
	Degraded          []string          `json:"degraded,omitempty"`
	LatencyMS         int               `json:"latency_ms"`
}

func NewEngine(deps Deps, cfg Config) *Engine {
	if cfg.LearningMode == "" {
		cfg.LearningMode = learning.ModeAuto
	}
	if cfg.MinRelevance <= 0 {
		cfg.MinRelevance = DefaultMinRelevance
	}
	if cfg.ReferenceSentences <= 0 {
		cfg.ReferenceSentences = DefaultReferenceSentences
	}
	return &Engine{Deps: deps, cfg: cfg}
}

// answer is the canonical-language answer before styling.
type answer struct {
	text         string
	origin       Origin
	confidence   float64
	personaVoice bool
	decision     learning.Decision
}

// ProcessQuery runs one utterance through the pipeline. It fails only for an
// empty utterance or a cancelled context; every other problem degrades the
// answer and is listed in QueryResponse.Degraded.
func (e *Engine) ProcessQuery(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	startTime := time.Now()
	utterance := strings.TrimSpace(req.Utterance)
	if utterance == "" {
		return nil, ErrEmptyUtterance
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	canonical := e.Tables.CanonicalLanguage
	resp := &QueryResponse{
		ID:        uuid.New().String(),
		Utterance: utterance,
	}

	resp.Classification = e.Classifier.Classify(utterance, req.Session)
	resp.Session = req.Session.Apply(resp.Classification, canonical)
	resp.Language = resp.Classification.Language
	metrics.Classifications.WithLabelValues(string(resp.Classification.Method), resp.Language).Inc()

	logger.Info("Processing query",
		zap.String("query_id", resp.ID),
		zap.String("language", resp.Language),
		zap.String("method", string(resp.Classification.Method)),
	)

	var ans answer
	question := utterance
	if resp.Classification.Method == language.MethodExplicit {
		question = e.Classifier.StripRequest(utterance)
	}

	switch {
	case question == "" && resp.Classification.Method == language.MethodExplicit:
		ans = answer{
			text:         fmt.Sprintf(e.Tables.Responses.LanguageSwitch, e.Tables.DisplayName(resp.Language)),
			origin:       OriginLanguageSwitch,
			confidence:   1,
			personaVoice: true,
		}
		resp.InboundBackend = translation.IdentityBackend

	default:
		if question == "" {
			question = utterance
		}
		resp.CanonicalQuestion = e.toCanonical(ctx, resp, question)
		ans = e.answer(ctx, resp, resp.CanonicalQuestion)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp.Origin = ans.origin
	resp.Confidence = ans.confidence
	resp.PersonaVoice = ans.personaVoice
	resp.Decision = ans.decision

	styleOrigin := style.OriginFallback
	switch ans.origin {
	case OriginKnowledge:
		styleOrigin = style.OriginKnowledge
	case OriginReference, OriginReferenceRaw:
		styleOrigin = style.OriginReference
	}
	resp.Style = style.KindPlain
	if ans.origin != OriginLanguageSwitch {
		resp.Style = style.Select(ans.confidence, styleOrigin)
	}
	resp.CanonicalAnswer = e.Styler.Apply(ans.text, resp.Style)

	out, err := e.Translator.Translate(ctx, resp.CanonicalAnswer, canonical, resp.Language)
	resp.Answer = out.Text
	resp.OutboundBackend = out.Backend
	if err != nil {
		resp.Answer = resp.CanonicalAnswer
		e.degrade(resp, DegradedOutboundTranslation, err)
		metrics.TranslationExhausted.WithLabelValues("outbound").Inc()
	}

	resp.LatencyMS = int(time.Since(startTime).Milliseconds())
	e.record(ctx, resp)

	metrics.QueryDuration.WithLabelValues(string(resp.Origin)).Observe(time.Since(startTime).Seconds())
	metrics.ConfidenceScore.WithLabelValues(string(resp.Origin)).Observe(resp.Confidence)
	metrics.QueryTotal.WithLabelValues(status(resp)).Inc()

	logger.Info("Query processed",
		zap.String("query_id", resp.ID),
		zap.String("origin", string(resp.Origin)),
		zap.String("style", string(resp.Style)),
		zap.Float64("confidence", resp.Confidence),
		zap.Int("latency_ms", resp.LatencyMS),
	)

	return resp, nil
}

// toCanonical translates the question into the canonical language. The
// source language is what the question itself is written in, which differs
// from the requested answer language when the user asks in English for a
// Malayalam answer.
func (e *Engine) toCanonical(ctx context.Context, resp *QueryResponse, question string) string {
	canonical := e.Tables.CanonicalLanguage
	source := e.Classifier.Classify(question, language.Session{}).Language

	res, err := e.Translator.Translate(ctx, question, source, canonical)
	resp.InboundBackend = res.Backend
	if err != nil {
		e.degrade(resp, DegradedInboundTranslation, err)
		metrics.TranslationExhausted.WithLabelValues("inbound").Inc()
		return question
	}
	return res.Text
}

func (e *Engine) answer(ctx context.Context, resp *QueryResponse, question string) answer {
	if entry, similarity, ok := e.Knowledge.Find(question); ok {
		metrics.KnowledgeLookups.WithLabelValues("hit").Inc()
		if _, err := e.Knowledge.RecordUse(entry.Question); err != nil {
			e.degrade(resp, DegradedRecordUse, err)
		}
		logger.Debug("Knowledge hit",
			zap.String("question", entry.Question),
			zap.Float64("similarity", similarity),
		)
		return answer{
			text:         entry.Answer,
			origin:       OriginKnowledge,
			confidence:   entry.Confidence,
			personaVoice: true,
		}
	}
	metrics.KnowledgeLookups.WithLabelValues("miss").Inc()

	if text, relevance, ok := e.lookupReference(ctx, resp, question); ok {
		return e.fromReference(resp, question, text, relevance)
	}

	fallback := e.Tables.Responses.Fallback
	return answer{
		text:         fallback[utils.StableIndex(question, len(fallback))],
		origin:       OriginFallback,
		personaVoice: true,
	}
}

// topics lists reference topics to try: domain terms named in the question,
// then the persona subject.
func (e *Engine) topics(question string) []string {
	seen := make(map[string]bool)
	var topics []string
	for _, t := range append(knowledge.CompoundTerms(question), e.Tables.Subject.Name) {
		if key := strings.ToLower(t); !seen[key] {
			seen[key] = true
			topics = append(topics, t)
		}
	}
	return topics
}

func (e *Engine) lookupReference(ctx context.Context, resp *QueryResponse, question string) (string, float64, bool) {
	if e.Reference == nil {
		return "", 0, false
	}

	keywords := knowledge.ExtractKeywords(question)
	for _, topic := range e.topics(question) {
		text, err := e.Reference.Fetch(ctx, topic)
		if errors.Is(err, web.ErrNotFound) {
			continue
		}
		if err != nil {
			e.degrade(resp, DegradedReferenceFailed, err)
			continue
		}

		expected := keywords
		if len(expected) == 0 {
			expected = knowledge.ExtractKeywords(topic)
		}
		relevance := web.Relevance(text, expected)
		if relevance < e.cfg.MinRelevance {
			metrics.ReferenceLookups.WithLabelValues("low_relevance").Inc()
			e.degrade(resp, DegradedReferenceIrrelevant,
				fmt.Errorf("%w: %s scored %.2f", web.ErrLowRelevance, topic, relevance))
			continue
		}
		return web.SelectRelevant(text, expected, e.cfg.ReferenceSentences), relevance, true
	}
	return "", 0, false
}

func (e *Engine) fromReference(resp *QueryResponse, question, text string, relevance float64) answer {
	h := e.Humanizer.Humanize(text, knowledge.Categorize(question))
	if !h.Humanized {
		e.degrade(resp, DegradedHumanization, nil)
		return answer{
			text:       text,
			origin:     OriginReferenceRaw,
			confidence: e.Scorer.Score(learning.Signals{Source: knowledge.SourceReference, Answer: text, Relevance: relevance}),
		}
	}

	ans := answer{
		text:         h.Text,
		origin:       OriginReference,
		personaVoice: true,
		confidence:   e.Scorer.Score(learning.Signals{Source: knowledge.SourceReference, Answer: h.Text, Relevance: relevance}),
	}

	decision, err := e.Learner.Consider(question, h.Text, knowledge.SourceReference, ans.confidence, e.cfg.LearningMode)
	if err != nil {
		e.degrade(resp, DegradedLearning, err)
	}
	ans.decision = decision
	return ans
}

func (e *Engine) record(ctx context.Context, resp *QueryResponse) {
	if e.History == nil {
		return
	}

	err := e.History.InsertInteraction(ctx, &models.Interaction{
		ID:                       resp.ID,
		Utterance:                resp.Utterance,
		Language:                 resp.Language,
		Method:                   string(resp.Classification.Method),
		ClassificationConfidence: resp.Classification.Confidence,
		ActiveLanguage:           resp.Session.ActiveLanguage,
		CanonicalQuestion:        resp.CanonicalQuestion,
		Answer:                   resp.Answer,
		Origin:                   string(resp.Origin),
		Style:                    string(resp.Style),
		PersonaVoice:             resp.PersonaVoice,
		Confidence:               resp.Confidence,
		Decision:                 string(resp.Decision),
		InboundBackend:           resp.InboundBackend,
		OutboundBackend:          resp.OutboundBackend,
		Degraded:                 resp.Degraded,
		LatencyMS:                resp.LatencyMS,
		CreatedAt:                time.Now(),
	})
	if err != nil {
		e.degrade(resp, DegradedHistory, err)
	}
}

func (e *Engine) degrade(resp *QueryResponse, event string, err error) {
	resp.Degraded = append(resp.Degraded, event)
	fields := []zap.Field{
		zap.String("query_id", resp.ID),
		zap.String("event", event),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	logger.Warn("Query degraded", fields...)
}

func status(resp *QueryResponse) string {
	if len(resp.Degraded) > 0 {
		return "degraded"
	}
	return "ok"
}
