package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printworks/jobtrack/internal/auth"
	"github.com/printworks/jobtrack/internal/model"
)

const secret = "test-secret"

func whoami(c *fiber.Ctx) error {
	return c.JSON(GetActor(c))
}

func call(t *testing.T, app *fiber.App, headers map[string]string) (*http.Response, model.Actor) {
	t.Helper()
	req := httptest.NewRequest("GET", "/me", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var actor model.Actor
	if resp.StatusCode == fiber.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&actor))
	}
	return resp, actor
}

func TestAuthenticate_LegacyToken(t *testing.T) {
	app := fiber.New()
	app.Get("/me", NewLegacyAuthMiddleware(secret).Authenticate(), whoami)

	want := model.Actor{ID: "d1", Name: "Dana", Role: model.RoleDesigner}
	token, err := auth.IssueLegacyToken(want, secret, time.Hour)
	require.NoError(t, err)

	resp, actor := call(t, app, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, want, actor)
}

func TestAuthenticate_Rejects(t *testing.T) {
	app := fiber.New()
	app.Get("/me", NewLegacyAuthMiddleware(secret).Authenticate(), whoami)

	other, err := auth.IssueLegacyToken(model.Actor{ID: "x", Role: model.RoleAdmin}, "nope", time.Hour)
	require.NoError(t, err)

	cases := map[string]map[string]string{
		"missing header": {},
		"bad scheme":     {"Authorization": "Token abc"},
		"bad signature":  {"Authorization": "Bearer " + other},
	}
	for name, headers := range cases {
		t.Run(name, func(t *testing.T) {
			resp, _ := call(t, app, headers)
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}

type stubVerifier struct {
	claims *auth.Claims
}

func (s stubVerifier) Validate(string) (*auth.Claims, error) {
	if s.claims == nil {
		return nil, assert.AnError
	}
	return s.claims, nil
}

func (s stubVerifier) Close() error { return nil }

func TestAuthenticate_JWKSThenFallback(t *testing.T) {
	oidc := stubVerifier{claims: &auth.Claims{UserID: "sub-1", Roles: []string{"HOD"}, Department: "QA"}}
	app := fiber.New()
	app.Get("/me", NewAuthMiddleware(oidc).Authenticate(), whoami)

	resp, actor := call(t, app, map[string]string{"Authorization": "Bearer anything"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, model.RoleHOD, actor.Role)
	assert.Equal(t, model.DepartmentQA, actor.Department)

	fallback := fiber.New()
	fallback.Get("/me", NewAuthMiddlewareWithFallback(stubVerifier{}, secret).Authenticate(), whoami)
	token, err := auth.IssueLegacyToken(model.Actor{ID: "a1", Role: model.RoleAdmin}, secret, time.Hour)
	require.NoError(t, err)

	resp, actor = call(t, fallback, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "a1", actor.ID)
}

func TestGatewayAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/me", GatewayAuthMiddleware(), whoami)

	resp, actor := call(t, app, map[string]string{
		"X-User-Id":         "op-4",
		"X-User-Name":       "Omar",
		"X-User-Role":       "operator",
		"X-User-Department": "production",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, model.Actor{ID: "op-4", Name: "Omar", Role: model.RoleOperator, Department: model.DepartmentProduction}, actor)

	resp, actor = call(t, app, map[string]string{"X-User-Id": "v-1"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, model.RoleViewer, actor.Role)

	resp, _ = call(t, app, map[string]string{"X-User-Id": "v-1", "X-User-Role": "OWNER"})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = call(t, app, map[string]string{})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireRoles(t *testing.T) {
	app := fiber.New()
	app.Get("/me", GatewayAuthMiddleware(), RequireRoles(model.RoleHOD, model.RoleAdmin), whoami)

	resp, _ := call(t, app, map[string]string{"X-User-Id": "d1", "X-User-Role": "DESIGNER"})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = call(t, app, map[string]string{"X-User-Id": "h1", "X-User-Role": "HOD"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer client.Close()

	app := fiber.New()
	app.Get("/me", GatewayAuthMiddleware(), NewRateLimiter(client).MutationLimit(1), whoami)

	for i := 0; i < 3; i++ {
		resp, _ := call(t, app, map[string]string{"X-User-Id": "u1"})
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}

func TestRateLimiter_Limits(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	defer client.Close()
	if err := client.Ping(t.Context()).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	user := uuid.NewString()
	app := fiber.New()
	app.Get("/me", GatewayAuthMiddleware(), NewRateLimiter(client).BulkLimit(2), whoami)

	headers := map[string]string{"X-User-Id": user}
	resp, _ := call(t, app, headers)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("X-RateLimit-Remaining"))

	resp, _ = call(t, app, headers)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = call(t, app, headers)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}
