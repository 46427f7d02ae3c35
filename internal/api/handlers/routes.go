package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type HealthFunc func(ctx context.Context) map[string]string

type Routes struct {
	Query     *QueryHandler
	Knowledge *KnowledgeHandler
	Review    *ReviewHandler
	Voice     *VoiceHandler
	Health    HealthFunc
}

// Register mounts the API under /api/v1 and the voice bridge at /ws/voice.
func Register(app *fiber.App, r Routes) {
	api := app.Group("/api/v1")

	api.Post("/ask", r.Query.Ask)
	api.Get("/history", r.Query.History)
	api.Post("/feedback", r.Query.Feedback)

	api.Get("/knowledge", r.Knowledge.List)
	api.Post("/knowledge", r.Knowledge.Teach)
	api.Get("/knowledge/stats", r.Knowledge.Stats)

	api.Get("/review", r.Review.List)
	api.Post("/review/auto-approve", r.Review.AutoApprove)
	api.Post("/review/:id/approve", r.Review.Approve)
	api.Post("/review/:id/reject", r.Review.Reject)

	api.Get("/health", func(c *fiber.Ctx) error {
		out := fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		}
		if r.Health != nil {
			out["components"] = r.Health(c.UserContext())
		}
		return c.JSON(out)
	})

	if r.Voice != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/voice", websocket.New(r.Voice.HandleConnection))
	}
}
