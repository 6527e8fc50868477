package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/printworks/jobtrack/internal/auth"
	"github.com/printworks/jobtrack/internal/model"
)

// AuthHandler handles ForwardAuth verification for the API gateway
type AuthHandler struct {
	verifier  auth.TokenVerifier
	jwtSecret string
}

// NewAuthHandler creates a new auth handler for ForwardAuth verification
func NewAuthHandler(verifier auth.TokenVerifier, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		verifier:  verifier,
		jwtSecret: jwtSecret,
	}
}

// Verify handles GET /auth/verify, called by Traefik ForwardAuth.
// Returns 200 with X-User-* headers on success, 401 on failure.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	tokenString := parts[1]

	if h.verifier != nil {
		claims, err := h.verifier.Validate(tokenString)
		if err == nil {
			return identify(c, claims.Actor())
		}
		if h.jwtSecret == "" {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
	}

	if h.jwtSecret != "" {
		claims, err := auth.ValidateLegacyToken(tokenString, h.jwtSecret)
		if err == nil {
			return identify(c, claims.Actor())
		}
	}

	return c.SendStatus(fiber.StatusUnauthorized)
}

func identify(c *fiber.Ctx, actor model.Actor) error {
	c.Set("X-User-Id", actor.ID)
	c.Set("X-User-Name", actor.Name)
	c.Set("X-User-Role", string(actor.Role))
	if actor.Department != "" {
		c.Set("X-User-Department", string(actor.Department))
	}
	return c.SendStatus(fiber.StatusOK)
}
