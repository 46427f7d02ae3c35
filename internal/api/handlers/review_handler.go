package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acharya-agent/backend/internal/learning"
	"github.com/acharya-agent/backend/pkg/logger"
)

// ReviewHandler drives the manual review queue of learning candidates.
type ReviewHandler struct {
	reviewer             Reviewer
	autoApproveThreshold float64
}

func NewReviewHandler(reviewer Reviewer, autoApproveThreshold float64) *ReviewHandler {
	return &ReviewHandler{
		reviewer:             reviewer,
		autoApproveThreshold: autoApproveThreshold,
	}
}

func (h *ReviewHandler) List(c *fiber.Ctx) error {
	queue := h.reviewer.Queue()
	return c.JSON(fiber.Map{
		"candidates": queue,
		"count":      len(queue),
	})
}

func (h *ReviewHandler) Approve(c *fiber.Ctx) error {
	res, err := h.reviewer.Approve(c.Params("id"))
	if errors.Is(err, learning.ErrNotQueued) {
		return notQueued(c)
	}
	if err != nil {
		logger.Error("Failed to approve candidate", zap.String("id", c.Params("id")), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to approve candidate",
		})
	}

	return c.JSON(fiber.Map{
		"entry":    res.Entry,
		"inserted": res.Inserted,
	})
}

func (h *ReviewHandler) Reject(c *fiber.Ctx) error {
	if err := h.reviewer.Reject(c.Params("id")); err != nil {
		if errors.Is(err, learning.ErrNotQueued) {
			return notQueued(c)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to reject candidate",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AutoApprove approves every candidate at or above the threshold. The body
// may override the configured threshold.
func (h *ReviewHandler) AutoApprove(c *fiber.Ctx) error {
	var req struct {
		Threshold float64 `json:"threshold"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	threshold := h.autoApproveThreshold
	if req.Threshold > 0 {
		threshold = req.Threshold
	}

	approved, err := h.reviewer.AutoApprove(threshold)
	out := fiber.Map{
		"approved":  approved,
		"threshold": threshold,
		"remaining": len(h.reviewer.Queue()),
	}
	if err != nil {
		logger.Warn("Auto-approval incomplete", zap.Error(err))
		out["error"] = err.Error()
	}
	return c.JSON(out)
}

func notQueued(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "Candidate not in review queue",
	})
}
