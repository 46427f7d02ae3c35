package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acharya-agent/backend/internal/language"
	"github.com/acharya-agent/backend/internal/metrics"
	"github.com/acharya-agent/backend/internal/query"
	"github.com/acharya-agent/backend/internal/storage/models"
	"github.com/acharya-agent/backend/internal/storage/sqlite"
	"github.com/acharya-agent/backend/pkg/logger"
)

type Asker interface {
	ProcessQuery(ctx context.Context, req query.QueryRequest) (*query.QueryResponse, error)
}

type HistoryStore interface {
	GetHistory(ctx context.Context, limit int) ([]models.Interaction, error)
	StoreFeedback(ctx context.Context, feedback *models.Feedback) error
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

type QueryHandler struct {
	engine  Asker
	history HistoryStore
}

// NewQueryHandler takes a nil history when no store is configured.
func NewQueryHandler(engine Asker, history HistoryStore) *QueryHandler {
	return &QueryHandler{
		engine:  engine,
		history: history,
	}
}

// Ask answers one utterance. The client carries the session between calls.
func (h *QueryHandler) Ask(c *fiber.Ctx) error {
	var req struct {
		Utterance string           `json:"utterance"`
		Session   language.Session `json:"session"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	response, err := h.engine.ProcessQuery(c.UserContext(), query.QueryRequest{
		Utterance: req.Utterance,
		Session:   req.Session,
	})
	if errors.Is(err, query.ErrEmptyUtterance) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Utterance is required",
		})
	}
	if err != nil {
		logger.Error("Failed to process query", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process query",
		})
	}

	return c.JSON(response)
}

func (h *QueryHandler) History(c *fiber.Ctx) error {
	if h.history == nil {
		return unavailable(c, "History store is not configured")
	}

	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}

	history, err := h.history.GetHistory(c.UserContext(), limit)
	if err != nil {
		logger.Error("Failed to load history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load history",
		})
	}

	return c.JSON(fiber.Map{
		"history": history,
		"count":   len(history),
	})
}

func (h *QueryHandler) Feedback(c *fiber.Ctx) error {
	if h.history == nil {
		return unavailable(c, "History store is not configured")
	}

	var req struct {
		InteractionID string `json:"interaction_id"`
		Helpful       *bool  `json:"helpful"`
		Comment       string `json:"comment"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if strings.TrimSpace(req.InteractionID) == "" || req.Helpful == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "interaction_id and helpful are required",
		})
	}

	err := h.history.StoreFeedback(c.UserContext(), &models.Feedback{
		InteractionID: req.InteractionID,
		Helpful:       *req.Helpful,
		Comment:       strings.TrimSpace(req.Comment),
	})
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Interaction not found",
		})
	}
	if err != nil {
		logger.Error("Failed to store feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store feedback",
		})
	}

	metrics.UserSatisfaction.WithLabelValues(boolLabel(*req.Helpful)).Inc()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Feedback recorded",
	})
}

func unavailable(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": msg,
	})
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
