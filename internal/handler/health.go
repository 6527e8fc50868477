package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/printworks/jobtrack/internal/broadcast"
	ws "github.com/printworks/jobtrack/internal/websocket"
)

// HealthHandler reports process liveness and the wiring it runs with
type HealthHandler struct {
	storeDriver string
	relay       bool
	instanceID  string
	broker      *broadcast.Broker
	hub         *ws.Hub
}

func NewHealthHandler(storeDriver string, relay bool, instanceID string, broker *broadcast.Broker, hub *ws.Hub) *HealthHandler {
	return &HealthHandler{
		storeDriver: storeDriver,
		relay:       relay,
		instanceID:  instanceID,
		broker:      broker,
		hub:         hub,
	}
}

// Check handles GET /health
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":        "ok",
		"instance":      h.instanceID,
		"store":         h.storeDriver,
		"relay":         h.relay,
		"subscribers":   h.broker.Subscribers(),
		"droppedEvents": h.broker.Dropped(),
		"wsClients":     h.hub.ClientCount(),
	})
}
