package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/printworks/jobtrack/internal/model"
	"github.com/printworks/jobtrack/pkg/response"
)

// GatewayAuthMiddleware reads user identity from X-User-* headers
// set by Traefik ForwardAuth and populates Fiber context locals.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-Id")
		if userID == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}

		role := model.Role(strings.ToUpper(c.Get("X-User-Role")))
		if role == "" {
			role = model.RoleViewer
		}
		if !role.Valid() {
			return response.Unauthorized(c, "Unknown user role")
		}

		dept := model.Department(strings.ToUpper(c.Get("X-User-Department")))
		if !dept.Valid() {
			dept = ""
		}

		setActor(c, model.Actor{
			ID:         userID,
			Name:       c.Get("X-User-Name"),
			Role:       role,
			Department: dept,
		})

		return c.Next()
	}
}
