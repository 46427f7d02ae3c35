// Package learning decides whether candidate answers become knowledge.
package learning

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acharya-agent/backend/internal/knowledge"
	"github.com/acharya-agent/backend/internal/metrics"
	"github.com/acharya-agent/backend/pkg/logger"
)

const (
	DefaultThreshold            = 0.7
	DefaultAutoApproveThreshold = 0.9
	ManualConfidence            = 0.95
)

var (
	ErrNotQueued   = errors.New("candidate is not in the review queue")
	ErrInvalidMode = errors.New("invalid learning mode")
)

type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeManual   Mode = "manual"
	ModeDisabled Mode = "disabled"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAuto, ModeManual, ModeDisabled:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

type Decision string

const (
	DecisionLearned  Decision = "learned"
	DecisionQueued   Decision = "queued"
	DecisionRejected Decision = "rejected"
)

// Upserter is the part of the knowledge store the engine writes through.
type Upserter interface {
	Upsert(entry knowledge.Entry) (knowledge.UpsertResult, error)
}

type Candidate struct {
	ID         string             `json:"id"`
	Question   string             `json:"question"`
	Answer     string             `json:"answer"`
	Category   knowledge.Category `json:"category"`
	Source     knowledge.Source   `json:"source"`
	Confidence float64            `json:"confidence"`
	QueuedAt   time.Time          `json:"queued_at"`
}

type EventKind string

const (
	EventLearned   EventKind = "learned"
	EventQueued    EventKind = "queued"
	EventRejected  EventKind = "rejected"
	EventApproved  EventKind = "approved"
	EventDiscarded EventKind = "discarded"
)

type Event struct {
	Kind        EventKind
	CandidateID string
	Question    string
	Source      knowledge.Source
	Confidence  float64
	Mode        Mode
	Time        time.Time
}

// EventSink receives a record of every decision, typically for the
// learning log.
type EventSink interface {
	RecordLearningEvent(event Event) error
}

type Stats struct {
	Considered int `json:"considered"`
	Learned    int `json:"learned"`
	Queued     int `json:"queued"`
	Rejected   int `json:"rejected"`
	Approved   int `json:"approved"`
	Discarded  int `json:"discarded"`
	QueueSize  int `json:"queue_size"`
}

type Engine struct {
	store     Upserter
	threshold float64
	sink      EventSink
	now       func() time.Time

	mu    sync.Mutex
	queue []Candidate
	stats Stats
}

type Option func(*Engine)

func WithThreshold(threshold float64) Option {
	return func(e *Engine) {
		if threshold > 0 && threshold <= 1 {
			e.threshold = threshold
		}
	}
}

func WithEventSink(sink EventSink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(store Upserter, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		threshold: DefaultThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Consider decides what happens to a candidate answer. In auto mode the
// threshold is inclusive. A candidate whose store write fails is queued so
// it is not lost, and the write error is returned.
func (e *Engine) Consider(question, answer string, source knowledge.Source, confidence float64, mode Mode) (Decision, error) {
	question = strings.TrimSpace(question)
	answer = strings.TrimSpace(answer)

	e.mu.Lock()
	e.stats.Considered++
	e.mu.Unlock()

	if question == "" || answer == "" {
		e.decided(DecisionRejected, Event{Kind: EventRejected, Question: question, Source: source, Confidence: confidence, Mode: mode})
		return DecisionRejected, knowledge.ErrEmptyEntry
	}

	switch mode {
	case ModeDisabled:
		e.decided(DecisionRejected, Event{Kind: EventRejected, Question: question, Source: source, Confidence: confidence, Mode: mode})
		return DecisionRejected, nil

	case ModeManual:
		c := e.enqueue(question, answer, source, confidence)
		e.decided(DecisionQueued, Event{Kind: EventQueued, CandidateID: c.ID, Question: question, Source: source, Confidence: confidence, Mode: mode})
		return DecisionQueued, nil

	case ModeAuto:
		if confidence < e.threshold {
			c := e.enqueue(question, answer, source, confidence)
			e.decided(DecisionQueued, Event{Kind: EventQueued, CandidateID: c.ID, Question: question, Source: source, Confidence: confidence, Mode: mode})
			return DecisionQueued, nil
		}

		_, err := e.store.Upsert(knowledge.Entry{
			Question:   question,
			Answer:     answer,
			Category:   knowledge.Categorize(question),
			Source:     source,
			Confidence: confidence,
		})
		if err != nil {
			c := e.enqueue(question, answer, source, confidence)
			e.decided(DecisionQueued, Event{Kind: EventQueued, CandidateID: c.ID, Question: question, Source: source, Confidence: confidence, Mode: mode})
			logger.Warn("Failed to learn candidate, queued for review",
				zap.String("question", question),
				zap.Error(err),
			)
			return DecisionQueued, fmt.Errorf("failed to store learned entry: %w", err)
		}

		e.decided(DecisionLearned, Event{Kind: EventLearned, Question: question, Source: source, Confidence: confidence, Mode: mode})
		return DecisionLearned, nil
	}

	return DecisionRejected, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
}

// Teach stores an answer supplied by an operator as manual knowledge.
func (e *Engine) Teach(question, answer string) (knowledge.UpsertResult, error) {
	res, err := e.store.Upsert(knowledge.Entry{
		Question:   question,
		Answer:     answer,
		Category:   knowledge.Categorize(question),
		Source:     knowledge.SourceManual,
		Confidence: ManualConfidence,
	})
	if err != nil {
		return res, err
	}

	e.mu.Lock()
	e.stats.Learned++
	e.mu.Unlock()
	e.emit(Event{Kind: EventLearned, Question: res.Entry.Question, Source: knowledge.SourceManual, Confidence: ManualConfidence, Mode: ModeManual})
	return res, nil
}

// Queue returns the pending candidates oldest first.
func (e *Engine) Queue() []Candidate {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Candidate, len(e.queue))
	copy(out, e.queue)
	return out
}

// Approve stores a queued candidate. It stays queued if the store write
// fails.
func (e *Engine) Approve(id string) (knowledge.UpsertResult, error) {
	e.mu.Lock()
	c, ok := e.findLocked(id)
	e.mu.Unlock()
	if !ok {
		return knowledge.UpsertResult{}, ErrNotQueued
	}

	res, err := e.store.Upsert(knowledge.Entry{
		Question:   c.Question,
		Answer:     c.Answer,
		Category:   c.Category,
		Source:     c.Source,
		Confidence: c.Confidence,
	})
	if err != nil {
		return res, fmt.Errorf("failed to store approved entry: %w", err)
	}

	e.mu.Lock()
	if !e.removeLocked(id) {
		e.mu.Unlock()
		return res, ErrNotQueued
	}
	e.stats.Approved++
	e.stats.Learned++
	size := len(e.queue)
	e.mu.Unlock()

	metrics.ReviewQueueSize.Set(float64(size))
	metrics.LearningDecisions.WithLabelValues(string(EventApproved)).Inc()
	e.emit(Event{Kind: EventApproved, CandidateID: id, Question: c.Question, Source: c.Source, Confidence: c.Confidence})
	return res, nil
}

// Reject drops a queued candidate.
func (e *Engine) Reject(id string) error {
	e.mu.Lock()
	c, ok := e.findLocked(id)
	if ok {
		e.removeLocked(id)
		e.stats.Discarded++
	}
	size := len(e.queue)
	e.mu.Unlock()

	if !ok {
		return ErrNotQueued
	}

	metrics.ReviewQueueSize.Set(float64(size))
	metrics.LearningDecisions.WithLabelValues(string(EventDiscarded)).Inc()
	e.emit(Event{Kind: EventDiscarded, CandidateID: id, Question: c.Question, Source: c.Source, Confidence: c.Confidence})
	return nil
}

// AutoApprove approves every queued candidate at or above threshold. A
// threshold outside (0, 1] means DefaultAutoApproveThreshold.
func (e *Engine) AutoApprove(threshold float64) (int, error) {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultAutoApproveThreshold
	}

	var ids []string
	for _, c := range e.Queue() {
		if c.Confidence >= threshold {
			ids = append(ids, c.ID)
		}
	}

	approved := 0
	var errs []error
	for _, id := range ids {
		if _, err := e.Approve(id); err != nil {
			errs = append(errs, err)
			continue
		}
		approved++
	}

	if approved > 0 {
		logger.Info("Auto-approved queued candidates",
			zap.Int("approved", approved),
			zap.Float64("threshold", threshold),
		)
	}
	return approved, errors.Join(errs...)
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.stats
	s.QueueSize = len(e.queue)
	return s
}

func (e *Engine) enqueue(question, answer string, source knowledge.Source, confidence float64) Candidate {
	c := Candidate{
		ID:         uuid.New().String(),
		Question:   question,
		Answer:     answer,
		Category:   knowledge.Categorize(question),
		Source:     source,
		Confidence: confidence,
		QueuedAt:   e.now(),
	}

	e.mu.Lock()
	e.queue = append(e.queue, c)
	size := len(e.queue)
	e.mu.Unlock()

	metrics.ReviewQueueSize.Set(float64(size))
	return c
}

func (e *Engine) decided(d Decision, event Event) {
	e.mu.Lock()
	switch d {
	case DecisionLearned:
		e.stats.Learned++
	case DecisionQueued:
		e.stats.Queued++
	case DecisionRejected:
		e.stats.Rejected++
	}
	e.mu.Unlock()

	metrics.LearningDecisions.WithLabelValues(string(d)).Inc()
	e.emit(event)
}

func (e *Engine) emit(event Event) {
	if e.sink == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = e.now()
	}
	if err := e.sink.RecordLearningEvent(event); err != nil {
		logger.Warn("Failed to record learning event",
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
	}
}

func (e *Engine) findLocked(id string) (Candidate, bool) {
	for _, c := range e.queue {
		if c.ID == id {
			return c, true
		}
	}
	return Candidate{}, false
}

func (e *Engine) removeLocked(id string) bool {
	for i, c := range e.queue {
		if c.ID == id {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			return true
		}
	}
	return false
}
