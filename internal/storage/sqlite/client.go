package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/acharya-agent/backend/internal/learning"
	"github.com/acharya-agent/backend/internal/storage/models"
	"github.com/acharya-agent/backend/internal/translation"
	"github.com/acharya-agent/backend/pkg/logger"
)

var ErrNotFound = errors.New("record not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		utterance TEXT NOT NULL,
		language TEXT NOT NULL,
		method TEXT NOT NULL,
		classification_confidence REAL,
		active_language TEXT,
		canonical_question TEXT,
		answer TEXT,
		origin TEXT NOT NULL,
		style TEXT,
		persona_voice INTEGER DEFAULT 0,
		confidence REAL,
		decision TEXT,
		inbound_backend TEXT,
		outbound_backend TEXT,
		degraded TEXT,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(created_at);
	CREATE INDEX IF NOT EXISTS idx_interactions_language ON interactions(language);

	CREATE TABLE IF NOT EXISTS learning_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		candidate_id TEXT,
		question TEXT NOT NULL,
		source TEXT,
		confidence REAL,
		mode TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_learning_events_kind ON learning_events(kind);
	CREATE INDEX IF NOT EXISTS idx_learning_events_created ON learning_events(created_at);

	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		interaction_id TEXT NOT NULL,
		helpful INTEGER NOT NULL,
		comment TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (interaction_id) REFERENCES interactions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_interaction ON feedback(interaction_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertInteraction(ctx context.Context, record *models.Interaction) error {
	query := `
		INSERT INTO interactions (id, utterance, language, method, classification_confidence, active_language,
			canonical_question, answer, origin, style, persona_voice, confidence, decision,
			inbound_backend, outbound_backend, degraded, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	degradedJSON, err := json.Marshal(record.Degraded)
	if err != nil {
		return fmt.Errorf("failed to encode degraded events: %w", err)
	}

	personaVoice := 0
	if record.PersonaVoice {
		personaVoice = 1
	}

	_, err = c.db.ExecContext(ctx,
		query,
		record.ID,
		record.Utterance,
		record.Language,
		record.Method,
		record.ClassificationConfidence,
		record.ActiveLanguage,
		record.CanonicalQuestion,
		record.Answer,
		record.Origin,
		record.Style,
		personaVoice,
		record.Confidence,
		record.Decision,
		record.InboundBackend,
		record.OutboundBackend,
		string(degradedJSON),
		record.LatencyMS,
		record.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}

	logger.Debug("Interaction recorded",
		zap.String("interaction_id", record.ID),
		zap.String("origin", record.Origin),
	)
	return nil
}

const interactionColumns = `id, utterance, language, method, classification_confidence, active_language,
	canonical_question, answer, origin, style, persona_voice, confidence, decision,
	inbound_backend, outbound_backend, degraded, latency_ms, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanInteraction(row scanner) (models.Interaction, error) {
	var (
		r            models.Interaction
		activeLang   sql.NullString
		decision     sql.NullString
		degradedJSON sql.NullString
		personaVoice int
		createdAt    int64
	)

	err := row.Scan(
		&r.ID,
		&r.Utterance,
		&r.Language,
		&r.Method,
		&r.ClassificationConfidence,
		&activeLang,
		&r.CanonicalQuestion,
		&r.Answer,
		&r.Origin,
		&r.Style,
		&personaVoice,
		&r.Confidence,
		&decision,
		&r.InboundBackend,
		&r.OutboundBackend,
		&degradedJSON,
		&r.LatencyMS,
		&createdAt,
	)
	if err != nil {
		return r, err
	}

	r.ActiveLanguage = activeLang.String
	r.Decision = decision.String
	r.PersonaVoice = personaVoice == 1
	r.CreatedAt = time.UnixMilli(createdAt)
	if degradedJSON.Valid && degradedJSON.String != "" {
		json.Unmarshal([]byte(degradedJSON.String), &r.Degraded)
	}
	return r, nil
}

func (c *Client) GetInteraction(ctx context.Context, id string) (*models.Interaction, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+interactionColumns+` FROM interactions WHERE id = ?`, id)

	r, err := scanInteraction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get interaction: %w", err)
	}
	return &r, nil
}

// GetHistory returns the most recent interactions, newest first.
func (c *Client) GetHistory(ctx context.Context, limit int) ([]models.Interaction, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT `+interactionColumns+` FROM interactions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []models.Interaction
	for rows.Next() {
		r, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (c *Client) StoreFeedback(ctx context.Context, feedback *models.Feedback) error {
	if _, err := c.GetInteraction(ctx, feedback.InteractionID); err != nil {
		return err
	}

	query := `INSERT INTO feedback (interaction_id, helpful, comment, created_at) VALUES (?, ?, ?, ?)`

	helpful := 0
	if feedback.Helpful {
		helpful = 1
	}

	_, err := c.db.ExecContext(ctx,
		query,
		feedback.InteractionID,
		helpful,
		feedback.Comment,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}

	logger.Info("Feedback stored",
		zap.String("interaction_id", feedback.InteractionID),
		zap.Bool("helpful", feedback.Helpful),
	)
	return nil
}

func (c *Client) FeedbackSummary(ctx context.Context) (models.FeedbackSummary, error) {
	var s models.FeedbackSummary
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(helpful), 0) FROM feedback`,
	).Scan(&s.Total, &s.Helpful)
	if err != nil {
		return s, fmt.Errorf("failed to summarize feedback: %w", err)
	}
	return s, nil
}

// LanguagePerformance summarises interactions per answer language, busiest
// first. Degraded counts interactions with at least one degraded event.
func (c *Client) LanguagePerformance(ctx context.Context) ([]models.LanguagePerformance, error) {
	query := `
		SELECT i.language,
			COUNT(*),
			COALESCE(AVG(i.latency_ms), 0),
			COALESCE(AVG(i.confidence), 0),
			SUM(CASE WHEN i.inbound_backend = ? OR i.outbound_backend = ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN i.degraded IS NOT NULL AND i.degraded NOT IN ('', 'null', '[]') THEN 1 ELSE 0 END),
			COALESCE(SUM(f.total), 0),
			COALESCE(SUM(f.helpful), 0)
		FROM interactions i
		LEFT JOIN (
			SELECT interaction_id, COUNT(*) AS total, SUM(helpful) AS helpful
			FROM feedback GROUP BY interaction_id
		) f ON f.interaction_id = i.id
		GROUP BY i.language
		ORDER BY COUNT(*) DESC, i.language
	`

	rows, err := c.db.QueryContext(ctx, query, translation.CacheBackend, translation.CacheBackend)
	if err != nil {
		return nil, fmt.Errorf("failed to query language performance: %w", err)
	}
	defer rows.Close()

	var out []models.LanguagePerformance
	for rows.Next() {
		var p models.LanguagePerformance
		if err := rows.Scan(&p.Language, &p.Interactions, &p.AvgLatencyMS, &p.AvgConfidence,
			&p.CacheHits, &p.Degraded, &p.Feedback, &p.Helpful); err != nil {
			return nil, fmt.Errorf("failed to scan language performance: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordLearningEvent appends to the learning log.
func (c *Client) RecordLearningEvent(event learning.Event) error {
	query := `INSERT INTO learning_events (kind, candidate_id, question, source, confidence, mode, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	createdAt := event.Time
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := c.db.Exec(
		query,
		string(event.Kind),
		event.CandidateID,
		event.Question,
		string(event.Source),
		event.Confidence,
		string(event.Mode),
		createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record learning event: %w", err)
	}
	return nil
}

func (c *Client) LearningEvents(ctx context.Context, limit int) ([]models.LearningEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, kind, candidate_id, question, source, confidence, mode, created_at
		FROM learning_events
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get learning events: %w", err)
	}
	defer rows.Close()

	var events []models.LearningEvent
	for rows.Next() {
		var (
			e           models.LearningEvent
			candidateID sql.NullString
			mode        sql.NullString
			createdAt   int64
		)
		if err := rows.Scan(&e.ID, &e.Kind, &candidateID, &e.Question, &e.Source, &e.Confidence, &mode, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		e.CandidateID = candidateID.String
		e.Mode = mode.String
		e.CreatedAt = time.UnixMilli(createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}
