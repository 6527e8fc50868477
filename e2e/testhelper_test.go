package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/printworks/jobtrack/internal/auth"
	"github.com/printworks/jobtrack/internal/broadcast"
	"github.com/printworks/jobtrack/internal/engine"
	"github.com/printworks/jobtrack/internal/handler"
	"github.com/printworks/jobtrack/internal/middleware"
	"github.com/printworks/jobtrack/internal/model"
	"github.com/printworks/jobtrack/internal/service"
	"github.com/printworks/jobtrack/internal/store"
	ws "github.com/printworks/jobtrack/internal/websocket"
)

const testJWTSecret = "test-secret-for-e2e"

var (
	hodActor      = model.Actor{ID: "hod-1", Name: "Priya", Role: model.RoleHOD}
	adminActor    = model.Actor{ID: "admin-1", Role: model.RoleAdmin}
	designerActor = model.Actor{ID: "D1", Name: "Dana", Role: model.RoleDesigner}
	otherDesigner = model.Actor{ID: "D2", Name: "Dev", Role: model.RoleDesigner}
	viewerActor   = model.Actor{ID: "v-1", Role: model.RoleViewer}
)

// testApp holds all components needed for testing
type testApp struct {
	app    *fiber.App
	broker *broadcast.Broker
	store  *store.MemoryStore
}

// setupApp creates a Fiber app wired like main.go over the in-memory store.
// The rate limiter points at localhost redis and fails open without it.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid collision
	})
	t.Cleanup(func() { redisClient.Close() })

	validate := validator.New()

	jobStore := store.NewMemoryStore()
	broker := broadcast.NewBroker(64)
	t.Cleanup(broker.Close)

	eng := engine.New(jobStore,
		engine.WithPublisher(broker),
		engine.WithIdempotency(store.NewMemoryIdempotency(), time.Hour),
		engine.WithOrigin("e2e"),
	)

	hub := ws.NewHub()
	go hub.Run()

	jobService := service.NewJobService(eng, jobStore)
	assignmentService := service.NewAssignmentService(eng, 4)

	jobHandler := handler.NewJobHandler(jobService, validate)
	assignmentHandler := handler.NewAssignmentHandler(assignmentService, validate)
	capabilityHandler := handler.NewCapabilityHandler()
	healthHandler := handler.NewHealthHandler("memory", false, "e2e", broker, hub)
	authHandler := handler.NewAuthHandler(nil, testJWTSecret)

	authMiddleware := middleware.NewLegacyAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New()

	app.Get("/health", healthHandler.Check)
	app.Get("/auth/verify", authHandler.Verify)

	api := app.Group("/api", authMiddleware.Authenticate())
	api.Get("/capabilities", capabilityHandler.List)

	// Use very high rate limits so tests don't get blocked
	mutate := rateLimiter.MutationLimit(10000)
	jobs := api.Group("/jobs")
	jobs.Post("/", mutate, jobHandler.Create)
	jobs.Get("/", jobHandler.List)
	jobs.Post("/bulk", rateLimiter.BulkLimit(10000), assignmentHandler.Bulk)
	jobs.Get("/:jobId", jobHandler.Get)
	jobs.Get("/:jobId/history", jobHandler.History)
	jobs.Post("/:jobId/transitions", mutate, jobHandler.Transition)
	jobs.Post("/:jobId/assign", mutate, assignmentHandler.Assign)
	jobs.Post("/:jobId/reassign", mutate, assignmentHandler.Reassign)
	jobs.Post("/:jobId/review", mutate, assignmentHandler.Review)

	return &testApp{app: app, broker: broker, store: jobStore}
}

// generateToken creates a legacy HMAC JWT token for the given actor.
func generateToken(t *testing.T, actor model.Actor) string {
	t.Helper()
	signed, err := auth.IssueLegacyToken(actor, testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs a request authenticated as actor.
func doAuthRequest(t *testing.T, app *fiber.App, actor model.Actor, method, path, body string) *http.Response {
	t.Helper()
	resp, err := doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t, actor),
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// errorCode extracts error.code from an error envelope.
func errorCode(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	e, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	code, _ := e["code"].(string)
	return code
}

// jobRef is the part of a job response the tests steer by.
type jobRef struct {
	ID      string
	Version int
}

func refOf(t *testing.T, body map[string]interface{}) jobRef {
	t.Helper()
	id, _ := body["id"].(string)
	version, _ := body["version"].(float64)
	if id == "" {
		t.Fatalf("response has no job id: %v", body)
	}
	return jobRef{ID: id, Version: int(version)}
}

// createJob submits a job card as the HOD and returns its id and version.
func createJob(t *testing.T, ta *testApp, customer string) jobRef {
	t.Helper()
	resp := doAuthRequest(t, ta.app, hodActor, http.MethodPost, "/api/jobs",
		fmt.Sprintf(`{"customerName":%q,"productName":"Folding carton","quantity":1000}`, customer))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create failed with %d: %s", resp.StatusCode, readBody(t, resp))
	}
	return refOf(t, parseJSON(t, resp))
}

// dueIn formats a due date relative to now.
func dueIn(d time.Duration) string {
	return time.Now().Add(d).UTC().Format(time.RFC3339)
}
