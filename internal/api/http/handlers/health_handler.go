package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/persistence"
)

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName  string
	version      string
	commentStore *persistence.Postgres
	roomRelay    *persistence.Redis
}

// NewHealthHandler returns a new handler instance.
func NewHealthHandler(serviceName, version string, commentStore *persistence.Postgres, roomRelay *persistence.Redis) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, commentStore: commentStore, roomRelay: roomRelay}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports service readiness. Postgres holds the comment log and is
// required. Redis only relays room events to sibling instances; a relay
// outage leaves local fan-out working, so it degrades readiness rather
// than failing it.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	checks := fiber.Map{}
	status := "ready"

	if err := h.roomRelay.Ping(ctx); err != nil {
		checks["room_relay"] = err.Error()
		status = "degraded"
	} else {
		checks["room_relay"] = "ok"
	}

	if err := h.commentStore.Ping(ctx); err != nil {
		checks["comment_store"] = err.Error()
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DEPENDENCY_UNAVAILABLE",
				"message": "comment store unavailable",
				"details": checks,
			},
		})
	}
	checks["comment_store"] = "ok"

	return c.JSON(fiber.Map{
		"status": status,
		"checks": checks,
	})
}
