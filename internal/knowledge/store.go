package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/acharya-agent/backend/internal/metrics"
	"github.com/acharya-agent/backend/pkg/logger"
)

const (
	DefaultSimilarityThreshold = 0.6
	formatVersion              = 1
)

var (
	ErrEmptyEntry = errors.New("knowledge entry needs a question and an answer")
	ErrNotFound   = errors.New("knowledge entry not found")
	ErrPersist    = errors.New("failed to persist knowledge store")
)

type fileFormat struct {
	Metadata  fileMetadata     `json:"metadata" yaml:"metadata"`
	Knowledge map[string]Entry `json:"knowledge" yaml:"knowledge"`
}

type fileMetadata struct {
	Version   int       `json:"version" yaml:"version"`
	Entries   int       `json:"entries" yaml:"entries"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Store is the process-wide knowledge base. Lookups may run concurrently;
// every mutation is exclusive and is followed by a full rewrite of the file.
type Store struct {
	path      string
	threshold float64
	now       func() time.Time

	mu      sync.RWMutex
	entries map[string]*Entry
	index   map[string][]string
	order   []string
}

type Option func(*Store)

func WithSimilarityThreshold(threshold float64) Option {
	return func(s *Store) {
		if threshold > 0 && threshold <= 1 {
			s.threshold = threshold
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func newStore(path string, opts ...Option) *Store {
	s := &Store{
		path:      path,
		threshold: DefaultSimilarityThreshold,
		now:       time.Now,
		entries:   make(map[string]*Entry),
		index:     make(map[string][]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewMemoryStore returns a store that is never written to disk.
func NewMemoryStore(opts ...Option) *Store {
	return newStore("", opts...)
}

// Open loads the knowledge file at path. A missing file gives an empty store.
// An unreadable or corrupt file is logged, moved aside to <path>.corrupt and
// replaced by an empty store; knowledge is additive and can be rebuilt.
func Open(path string, opts ...Option) (*Store, error) {
	s := newStore(path, opts...)

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create knowledge directory: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("Knowledge file not found, starting empty", zap.String("path", path))
		return s, nil
	}
	if err != nil {
		logger.Warn("Knowledge file unreadable, starting empty", zap.String("path", path), zap.Error(err))
		return s, nil
	}

	var file fileFormat
	if err := s.unmarshal(data, &file); err != nil {
		backup := path + ".corrupt"
		if renameErr := os.Rename(path, backup); renameErr != nil {
			logger.Warn("Failed to move corrupt knowledge file aside", zap.Error(renameErr))
			backup = ""
		}
		logger.Warn("Knowledge file corrupt, starting empty",
			zap.String("path", path),
			zap.String("backup", backup),
			zap.Error(err),
		)
		return s, nil
	}

	s.load(file.Knowledge)
	logger.Info("Knowledge store loaded", zap.String("path", path), zap.Int("entries", len(s.entries)))
	return s, nil
}

func (s *Store) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(s.path))
	return ext == ".yaml" || ext == ".yml"
}

func (s *Store) unmarshal(data []byte, file *fileFormat) error {
	if s.isYAML() {
		return yaml.Unmarshal(data, file)
	}
	return json.Unmarshal(data, file)
}

func (s *Store) load(records map[string]Entry) {
	loaded := make([]Entry, 0, len(records))
	for key, e := range records {
		if e.Question == "" {
			e.Question = key
		}
		e.Question = Normalize(e.Question)
		if e.Question == "" || strings.TrimSpace(e.Answer) == "" {
			continue
		}
		s.applyDefaults(&e)
		loaded = append(loaded, e)
	}

	sort.Slice(loaded, func(i, j int) bool {
		if !loaded[i].CreatedAt.Equal(loaded[j].CreatedAt) {
			return loaded[i].CreatedAt.Before(loaded[j].CreatedAt)
		}
		return loaded[i].Question < loaded[j].Question
	})

	for i := range loaded {
		e := loaded[i]
		if _, dup := s.entries[e.Question]; dup {
			continue
		}
		s.insertLocked(&e)
	}
}

func (s *Store) applyDefaults(e *Entry) {
	now := s.now()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Category == "" {
		e.Category = Categorize(e.Question)
	} else {
		e.Category = ParseCategory(string(e.Category))
	}
	if !e.Source.Valid() {
		e.Source = SourceLearned
	}
	if e.Confidence <= 0 {
		e.Confidence = 0.5
	}
	e.Confidence = clamp(e.Confidence)
	if e.UsageCount < 0 {
		e.UsageCount = 0
	}
	if len(e.Keywords) == 0 {
		e.Keywords = ExtractKeywords(e.Question + " " + e.Answer)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
}

func (s *Store) insertLocked(e *Entry) {
	s.entries[e.Question] = e
	s.index[e.Question] = ExtractKeywords(e.Question)
	s.order = append(s.order, e.Question)
	metrics.KnowledgeEntries.Set(float64(len(s.entries)))
}

// Find returns the stored entry most similar to question, with its score, if
// the score reaches the similarity threshold.
func (s *Store) Find(question string) (Entry, float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, score := s.findLocked(Normalize(question))
	if e == nil {
		return Entry{}, score, false
	}
	return *e, score, true
}

func (s *Store) findLocked(norm string) (*Entry, float64) {
	if norm == "" {
		return nil, 0
	}
	if e, ok := s.entries[norm]; ok {
		return e, 1
	}

	keywords := ExtractKeywords(norm)
	var best *Entry
	bestScore := 0.0
	for _, key := range s.order {
		score := Jaccard(keywords, s.index[key])
		if score > bestScore {
			best = s.entries[key]
			bestScore = score
		}
	}

	if best == nil || bestScore < s.threshold {
		return nil, bestScore
	}
	return best, bestScore
}

// Upsert merges entry into a near-duplicate if one exists, replacing its
// answer only when the new confidence is at least the stored one. Otherwise
// the entry is inserted with fresh timestamps and zero usage.
func (s *Store) Upsert(entry Entry) (UpsertResult, error) {
	entry.Question = Normalize(entry.Question)
	entry.Answer = strings.TrimSpace(entry.Answer)
	if entry.Question == "" || entry.Answer == "" {
		return UpsertResult{}, ErrEmptyEntry
	}
	entry.Confidence = clamp(entry.Confidence)
	if !entry.Source.Valid() {
		entry.Source = SourceLearned
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var result UpsertResult

	if existing, score := s.findLocked(entry.Question); existing != nil {
		result.Similarity = score
		if entry.Confidence >= existing.Confidence {
			existing.Answer = entry.Answer
			existing.Confidence = entry.Confidence
			existing.Keywords = ExtractKeywords(existing.Question + " " + entry.Answer)
			result.Replaced = true
		}
		existing.UpdatedAt = now
		result.Entry = *existing
		logger.Debug("Knowledge entry merged",
			zap.String("question", existing.Question),
			zap.Float64("similarity", score),
			zap.Bool("replaced", result.Replaced),
		)
	} else {
		e := Entry{
			ID:         uuid.New().String(),
			Question:   entry.Question,
			Answer:     entry.Answer,
			Category:   entry.Category,
			Confidence: entry.Confidence,
			Source:     entry.Source,
			Keywords:   ExtractKeywords(entry.Question + " " + entry.Answer),
			UsageCount: 0,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if e.Category == "" {
			e.Category = Categorize(e.Question)
		}
		s.insertLocked(&e)
		result.Entry = e
		result.Inserted = true
		logger.Debug("Knowledge entry inserted", zap.String("question", e.Question))
	}

	if err := s.saveLocked(); err != nil {
		return result, err
	}
	return result, nil
}

// RecordUse increments the usage count of the entry matching question.
func (s *Store) RecordUse(question string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, _ := s.findLocked(Normalize(question))
	if e == nil {
		return Entry{}, ErrNotFound
	}

	now := s.now()
	e.UsageCount++
	e.LastUsedAt = &now

	if err := s.saveLocked(); err != nil {
		return *e, err
	}
	return *e, nil
}

func (s *Store) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]Entry, 0, len(s.order))
	for _, key := range s.order {
		all = append(all, *s.entries[key])
	}
	return all
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Total:      len(s.entries),
		ByCategory: make(map[Category]int),
		BySource:   make(map[Source]int),
	}
	for _, e := range s.entries {
		stats.ByCategory[e.Category]++
		stats.BySource[e.Source]++
		stats.TotalUsage += e.UsageCount
	}
	return stats
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}

	file := fileFormat{
		Metadata: fileMetadata{
			Version:   formatVersion,
			Entries:   len(s.entries),
			UpdatedAt: s.now(),
		},
		Knowledge: make(map[string]Entry, len(s.entries)),
	}
	for key, e := range s.entries {
		file.Knowledge[key] = *e
	}

	var (
		data []byte
		err  error
	)
	if s.isYAML() {
		data, err = yaml.Marshal(file)
	} else {
		data, err = json.MarshalIndent(file, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		logger.Warn("Failed to persist knowledge store", zap.String("path", s.path), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
