package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acharya-agent/backend/internal/knowledge"
	"github.com/acharya-agent/backend/internal/learning"
	"github.com/acharya-agent/backend/internal/storage/models"
	"github.com/acharya-agent/backend/pkg/logger"
)

type KnowledgeReader interface {
	All() []knowledge.Entry
	Stats() knowledge.Stats
}

// Reviewer is the learning engine surface the API drives.
type Reviewer interface {
	Teach(question, answer string) (knowledge.UpsertResult, error)
	Queue() []learning.Candidate
	Approve(id string) (knowledge.UpsertResult, error)
	Reject(id string) error
	AutoApprove(threshold float64) (int, error)
	Stats() learning.Stats
}

// UsageSummarizer reports on recorded interactions and their feedback.
type UsageSummarizer interface {
	FeedbackSummary(ctx context.Context) (models.FeedbackSummary, error)
	LanguagePerformance(ctx context.Context) ([]models.LanguagePerformance, error)
}

type KnowledgeHandler struct {
	kb       KnowledgeReader
	reviewer Reviewer
	usage    UsageSummarizer
}

// NewKnowledgeHandler takes a nil usage summarizer when no store is
// configured.
func NewKnowledgeHandler(kb KnowledgeReader, reviewer Reviewer, usage UsageSummarizer) *KnowledgeHandler {
	return &KnowledgeHandler{
		kb:       kb,
		reviewer: reviewer,
		usage:    usage,
	}
}

func (h *KnowledgeHandler) List(c *fiber.Ctx) error {
	entries := h.kb.All()

	if raw := c.Query("category"); raw != "" {
		category := knowledge.ParseCategory(raw)
		filtered := entries[:0]
		for _, e := range entries {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	return c.JSON(fiber.Map{
		"entries": entries,
		"count":   len(entries),
	})
}

func (h *KnowledgeHandler) Teach(c *fiber.Ctx) error {
	var req struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	res, err := h.reviewer.Teach(req.Question, req.Answer)
	if errors.Is(err, knowledge.ErrEmptyEntry) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "question and answer are required",
		})
	}
	if err != nil {
		logger.Error("Failed to store knowledge", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store knowledge",
		})
	}

	status := fiber.StatusOK
	if res.Inserted {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"entry":    res.Entry,
		"inserted": res.Inserted,
		"replaced": res.Replaced,
	})
}

func (h *KnowledgeHandler) Stats(c *fiber.Ctx) error {
	out := fiber.Map{
		"knowledge": h.kb.Stats(),
		"learning":  h.reviewer.Stats(),
	}

	if h.usage != nil {
		summary, err := h.usage.FeedbackSummary(c.UserContext())
		if err != nil {
			logger.Warn("Failed to load feedback summary", zap.Error(err))
		} else {
			out["feedback"] = summary
		}

		languages, err := h.usage.LanguagePerformance(c.UserContext())
		if err != nil {
			logger.Warn("Failed to load language performance", zap.Error(err))
		} else {
			out["languages"] = languages
		}
	}

	return c.JSON(out)
}
