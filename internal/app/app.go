// Package app wires configuration into a ready query engine and the
// collaborators the HTTP server and CLI share.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	rediscache "github.com/acharya-agent/backend/internal/cache/redis"
	"github.com/acharya-agent/backend/internal/humanize"
	"github.com/acharya-agent/backend/internal/ingestion"
	"github.com/acharya-agent/backend/internal/knowledge"
	"github.com/acharya-agent/backend/internal/language"
	"github.com/acharya-agent/backend/internal/learning"
	"github.com/acharya-agent/backend/internal/llm"
	"github.com/acharya-agent/backend/internal/metrics"
	"github.com/acharya-agent/backend/internal/persona"
	"github.com/acharya-agent/backend/internal/query"
	"github.com/acharya-agent/backend/internal/reference/web"
	"github.com/acharya-agent/backend/internal/storage/sqlite"
	"github.com/acharya-agent/backend/internal/style"
	"github.com/acharya-agent/backend/internal/translation"
	"github.com/acharya-agent/backend/pkg/circuitbreaker"
	"github.com/acharya-agent/backend/pkg/config"
	"github.com/acharya-agent/backend/pkg/logger"
	"github.com/acharya-agent/backend/pkg/retry"
)

var ErrCanonicalMismatch = errors.New("configured canonical language does not match persona tables")

type App struct {
	Config       *config.Config
	Tables       *persona.Tables
	Classifier   *language.Classifier
	Router       *translation.Router
	Knowledge    *knowledge.Store
	Learning     *learning.Engine
	Engine       *query.Engine
	Importer     *ingestion.Processor
	LearningMode learning.Mode

	// Store and Cache are nil when unavailable.
	Store *sqlite.Client
	Cache *rediscache.Client

	closers []func() error
}

// New builds the application. Only configuration problems are returned as
// errors; unreachable collaborators are logged and left out.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metrics.Init()

	tables, err := persona.Load(cfg.Persona.TablesPath)
	if err != nil {
		return nil, err
	}
	if tables.CanonicalLanguage != cfg.Persona.CanonicalLanguage {
		return nil, fmt.Errorf("%w: %q vs %q", ErrCanonicalMismatch, cfg.Persona.CanonicalLanguage, tables.CanonicalLanguage)
	}

	mode, err := learning.ParseMode(cfg.Learning.Mode)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:       cfg,
		Tables:       tables,
		LearningMode: mode,
	}

	a.Classifier = language.New(tables, language.Config{
		LexicalThreshold: cfg.Language.LexicalThreshold,
		BreadthBonus:     cfg.Language.BreadthBonus,
		Parallel:         cfg.Language.Parallel,
	})

	a.Router = a.buildRouter()

	a.Knowledge, err = knowledge.Open(cfg.Knowledge.Path, knowledge.WithSimilarityThreshold(cfg.Knowledge.SimilarityThreshold))
	if err != nil {
		logger.Warn("Knowledge file unavailable, using memory store", zap.Error(err))
		a.Knowledge = knowledge.NewMemoryStore(knowledge.WithSimilarityThreshold(cfg.Knowledge.SimilarityThreshold))
	}

	store, err := sqlite.NewClient(cfg.SQLite.Path)
	if err == nil {
		err = store.InitSchema()
		if err != nil {
			store.Close()
		}
	}
	if err != nil {
		logger.Warn("History store unavailable", zap.String("path", cfg.SQLite.Path), zap.Error(err))
	} else {
		a.Store = store
		a.closers = append(a.closers, store.Close)
	}

	learningOpts := []learning.Option{learning.WithThreshold(cfg.Learning.Threshold)}
	if a.Store != nil {
		learningOpts = append(learningOpts, learning.WithEventSink(a.Store))
	}
	a.Learning = learning.NewEngine(a.Knowledge, learningOpts...)
	a.Importer = ingestion.NewProcessor(a.Learning)

	deps := query.Deps{
		Tables:     tables,
		Classifier: a.Classifier,
		Translator: a.Router,
		Knowledge:  a.Knowledge,
		Humanizer:  humanize.New(tables),
		Styler:     style.New(tables.Styles),
		Scorer:     learning.NewScorer(tables),
		Learner:    a.Learning,
	}
	if cfg.Reference.Enabled {
		deps.Reference = web.NewClient(web.Config{
			BaseURL:      cfg.Reference.BaseURL,
			Timeout:      time.Duration(cfg.Reference.TimeoutSec) * time.Second,
			MaxSentences: cfg.Reference.MaxSentences,
		})
	}
	if a.Store != nil {
		deps.History = a.Store
	}

	a.Engine = query.NewEngine(deps, query.Config{
		LearningMode:       mode,
		MinRelevance:       cfg.Reference.MinRelevance,
		ReferenceSentences: cfg.Reference.MaxSentences,
	})

	logger.Info("Application ready",
		zap.String("canonical", tables.CanonicalLanguage),
		zap.Strings("translation_chain", a.Router.Backends()),
		zap.String("learning_mode", string(mode)),
		zap.Int("knowledge_entries", a.Knowledge.Len()),
		zap.Bool("history", a.Store != nil),
		zap.Bool("cache", a.Cache != nil),
	)
	return a, nil
}

func (a *App) buildRouter() *translation.Router {
	cfg := a.Config
	canonical := a.Tables.CanonicalLanguage
	available := make(map[string]translation.Backend)

	if cfg.Translation.IndicEndpoint != "" {
		indic := translation.NewIndicBackend(cfg.Translation.IndicEndpoint, cfg.Translation.IndicAPIKey, canonical, cfg.Translation.IndicLanguages)
		breaker := circuitbreaker.NewCircuitBreaker("indic", circuitbreaker.Config{
			MaxRequests:      3,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Logger:           logger.GetLogger(),
		})
		retryCfg := retry.DefaultConfig()
		retryCfg.MaxAttempts = 2
		retryCfg.Logger = logger.GetLogger()
		available["indic"] = translation.Guard(indic, breaker, retryCfg)
	}

	if cfg.LLM.APIKey != "" || cfg.LLM.BaseURL != "" {
		available["llm"] = llm.NewClient(llm.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		}, llm.WithLanguageNames(a.Tables.DisplayName))
	}

	if cfg.Translation.GlossaryEnabled {
		available["glossary"] = translation.NewGlossaryBackend(a.Tables.Glossary, canonical)
	}

	chain, missing := translation.BuildChain(cfg.Translation.Priority, available)
	if len(missing) > 0 {
		logger.Warn("Translation backends not configured", zap.Strings("missing", missing))
	}

	opts := []translation.Option{}
	if cfg.Translation.TimeoutSec > 0 {
		opts = append(opts, translation.WithAttemptTimeout(time.Duration(cfg.Translation.TimeoutSec)*time.Second))
	}
	if cfg.Redis.Enabled {
		cache, err := rediscache.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB,
			time.Duration(cfg.Translation.CacheTTLSec)*time.Second)
		if err != nil {
			logger.Warn("Translation cache unavailable", zap.Error(err))
		} else {
			a.Cache = cache
			a.closers = append(a.closers, cache.Close)
			opts = append(opts, translation.WithCache(cache))
		}
	}

	return translation.NewRouter(chain, opts...)
}

// Health reports the state of optional collaborators.
func (a *App) Health(ctx context.Context) map[string]string {
	status := map[string]string{
		"knowledge": "ok",
		"history":   "disabled",
		"cache":     "disabled",
	}
	if a.Store != nil {
		status["history"] = "ok"
		if _, err := a.Store.GetHistory(ctx, 1); err != nil {
			status["history"] = "error"
		}
	}
	if a.Cache != nil {
		status["cache"] = "ok"
	}
	return status
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
