package server

import (
	"github.com/gofiber/fiber/v3"
)

type pushRequest struct {
	UserIDs       []string `json:"user_ids"`
	AffectedTypes []string `json:"affected_types"`
}

// RegisterRoutes registers the HTTP surface on the Fiber app. The WebSocket
// upgrade itself is served by FastHTTPHandler at the fasthttp level.
func (s *Server) RegisterRoutes(app *fiber.App) {
	app.Get("/healthz", s.handleHealth)
	app.Get("/ws/info", s.handleInfo)
	app.Post("/internal/notifications/push", s.handlePush)
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  "/ws",
		"clients":   s.registry.ClientCount(),
		"channels":  len(s.registry.ChannelCounts()),
	})
}

// handlePush is the collaborator entry point: the surrounding application
// calls it after mutating state that affects notification counts.
func (s *Server) handlePush(c fiber.Ctx) error {
	var req pushRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	if len(req.UserIDs) == 0 {
		s.agg.PushToAll(c.Context(), req.AffectedTypes)
	} else {
		s.agg.PushToUsers(c.Context(), req.UserIDs, req.AffectedTypes)
	}
	return c.JSON(fiber.Map{"pushed": true})
}
