package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acharya_query_duration_seconds",
			Help:    "Question processing duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"origin"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acharya_query_total",
			Help: "Total number of questions processed",
		},
		[]string{"status"},
	)

	ConfidenceScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acharya_confidence_score",
			Help:    "Response confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"origin"},
	)

	Classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acharya_language_classifications_total",
			Help: "Language classification results",
		},
		[]string{"method", "language"},
	)

	TranslationAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acharya_translation_attempts_total",
			Help: "Translation backend attempts",
		},
		[]string{"backend", "outcome"},
	)

	TranslationExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acharya_translation_exhausted_total",
			Help: "Translations where every backend failed",
		},
		[]string{"direction"},
	)

	KnowledgeLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acharya_knowledge_lookups_total",
			Help: "Knowledge store lookups",
		},
		[]string{"result"},
	)

	KnowledgeEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "acharya_knowledge_entries",
			Help: "Entries in the knowledge store",
		},
	)

	ReferenceLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acharya_reference_lookups_total",
			Help: "External reference source lookups",
		},
		[]string{"outcome"},
	)

	Humanizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acharya_humanizations_total",
			Help: "Perspective rewrites applied to answers",
		},
		[]string{"result"},
	)

	LearningDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acharya_learning_decisions_total",
			Help: "Learning engine decisions on candidate answers",
		},
		[]string{"decision"},
	)

	ReviewQueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "acharya_review_queue_size",
			Help: "Candidates waiting for review",
		},
	)

	UserSatisfaction = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acharya_feedback_total",
			Help: "User feedback on answers",
		},
		[]string{"helpful"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acharya_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acharya_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acharya_documents_processed_total",
			Help: "Question and answer pairs imported",
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(QueryDuration)
		prometheus.MustRegister(QueryTotal)
		prometheus.MustRegister(ConfidenceScore)
		prometheus.MustRegister(Classifications)
		prometheus.MustRegister(TranslationAttempts)
		prometheus.MustRegister(TranslationExhausted)
		prometheus.MustRegister(KnowledgeLookups)
		prometheus.MustRegister(KnowledgeEntries)
		prometheus.MustRegister(ReferenceLookups)
		prometheus.MustRegister(Humanizations)
		prometheus.MustRegister(LearningDecisions)
		prometheus.MustRegister(ReviewQueueSize)
		prometheus.MustRegister(UserSatisfaction)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(DocumentsProcessed)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
