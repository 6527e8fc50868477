package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/printworks/jobtrack/internal/auth"
	"github.com/printworks/jobtrack/internal/model"
	"github.com/printworks/jobtrack/pkg/response"
)

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	verifier  auth.TokenVerifier
	jwtSecret string // fallback for legacy tokens
}

// NewAuthMiddleware creates a new auth middleware with OIDC JWKS verification
func NewAuthMiddleware(verifier auth.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

// NewAuthMiddlewareWithFallback creates auth middleware with both JWKS and legacy HMAC support
func NewAuthMiddlewareWithFallback(verifier auth.TokenVerifier, jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:  verifier,
		jwtSecret: jwtSecret,
	}
}

// NewLegacyAuthMiddleware creates auth middleware using only HMAC signing (for testing/dev)
func NewLegacyAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret: jwtSecret,
	}
}

// Authenticate validates JWT token from Authorization header
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		tokenString := parts[1]

		// Try JWKS verification first
		if m.verifier != nil {
			claims, err := m.verifier.Validate(tokenString)
			if err == nil {
				setActor(c, claims.Actor())
				c.Locals("email", claims.Email)
				return c.Next()
			}
			if m.jwtSecret == "" {
				return response.Unauthorized(c, "Invalid or expired token")
			}
		}

		// Fallback to legacy HMAC verification
		if m.jwtSecret != "" {
			claims, err := auth.ValidateLegacyToken(tokenString, m.jwtSecret)
			if err != nil {
				return response.Unauthorized(c, "Invalid or expired token")
			}

			setActor(c, claims.Actor())
			return c.Next()
		}

		return response.Unauthorized(c, "Authentication not configured")
	}
}

func setActor(c *fiber.Ctx, actor model.Actor) {
	c.Locals("userId", actor.ID)
	c.Locals("name", actor.Name)
	c.Locals("actor", actor)
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}

// GetActor returns the authenticated identity, or a zero Actor
func GetActor(c *fiber.Ctx) model.Actor {
	if actor, ok := c.Locals("actor").(model.Actor); ok {
		return actor
	}
	return model.Actor{}
}

// RequireRoles rejects callers whose role is not listed
func RequireRoles(roles ...model.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := GetActor(c)
		for _, r := range roles {
			if actor.Role == r {
				return c.Next()
			}
		}
		return response.Forbidden(c, "Role not permitted")
	}
}
