package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberSwagger "github.com/gofiber/swagger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/printworks/jobtrack/docs"
	"github.com/printworks/jobtrack/internal/auth"
	"github.com/printworks/jobtrack/internal/broadcast"
	"github.com/printworks/jobtrack/internal/client"
	"github.com/printworks/jobtrack/internal/config"
	"github.com/printworks/jobtrack/internal/engine"
	"github.com/printworks/jobtrack/internal/handler"
	"github.com/printworks/jobtrack/internal/middleware"
	"github.com/printworks/jobtrack/internal/model"
	"github.com/printworks/jobtrack/internal/service"
	"github.com/printworks/jobtrack/internal/store"
	ws "github.com/printworks/jobtrack/internal/websocket"
	"github.com/printworks/jobtrack/internal/worker"
	"github.com/printworks/jobtrack/pkg/response"
)

// @title          Jobtrack API
// @version        1.0
// @description    Job-card lifecycle API for the print shop floor.
// @host           localhost:8000
// @BasePath       /
// @schemes        http https
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
// @description    Enter your bearer token in the format **Bearer &lt;token&gt;**
func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Configure Swagger host/scheme based on environment
	if cfg.Server.ApiDomain != "" {
		docs.SwaggerInfo.Host = cfg.Server.ApiDomain
		docs.SwaggerInfo.Schemes = []string{"https"}
	} else {
		docs.SwaggerInfo.Host = "localhost:" + cfg.Server.Port
		docs.SwaggerInfo.Schemes = []string{"http"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	redisOK := true
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisOK = false
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Persistence
	jobStore, err := store.Open(cfg.Storage, redisClient)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Storage.Driver, err)
	}
	defer jobStore.Close()
	log.Printf("Using %s job store", cfg.Storage.Driver)

	var idem store.IdempotencyStore = store.NewMemoryIdempotency()
	if redisOK {
		idem = store.NewRedisIdempotency(redisClient)
	} else {
		log.Println("Info: idempotency keys kept in memory")
	}

	// Event broadcaster, optionally fanned out across instances
	broker := broadcast.NewBroker(cfg.Broadcast.Buffer)
	relayOn := cfg.Broadcast.RedisRelay && redisOK
	if relayOn {
		relay := broadcast.NewRedisRelay(redisClient, cfg.Broadcast.Channel, cfg.Server.InstanceID, broker, cfg.Broadcast.Buffer)
		go relay.RunWithReconnect(ctx)
	} else if cfg.Broadcast.RedisRelay {
		log.Println("Warning: event relay disabled, Redis not available")
	}

	// Lifecycle engine
	eng := engine.New(jobStore,
		engine.WithPublisher(broker),
		engine.WithIdempotency(idem, cfg.Idempotency.TTL()),
		engine.WithUrgencyThreshold(cfg.Urgency.ThresholdDays),
		engine.WithOrigin(cfg.Server.InstanceID),
	)

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()
	go hub.Consume(ctx, broker)

	// Initialize R2 client (optional - archive is skipped if not configured)
	var r2Client *client.R2Client
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err = client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		}
	} else {
		log.Println("Info: R2 storage not configured, job archive disabled")
	}

	archiveOn := cfg.Archive.Enabled && r2Client != nil && redisOK
	if archiveOn {
		go worker.NewArchiveDispatcher(broker, asynqClient).Run(ctx)
	}

	// Initialize OIDC JWKS verifier (optional - falls back to legacy JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.OIDC.Issuer != "" {
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.OIDC)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Initialize services
	jobService := service.NewJobService(eng, jobStore)
	assignmentService := service.NewAssignmentService(eng, cfg.Worker.Concurrency)

	// Initialize handlers
	jobHandler := handler.NewJobHandler(jobService, validate)
	assignmentHandler := handler.NewAssignmentHandler(assignmentService, validate)
	capabilityHandler := handler.NewCapabilityHandler()
	healthHandler := handler.NewHealthHandler(cfg.Storage.Driver, relayOn, cfg.Server.InstanceID, broker, hub)

	var tokenVerifier auth.TokenVerifier
	if jwksVerifier != nil {
		tokenVerifier = jwksVerifier
	}
	authHandler := handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret)

	// Initialize middleware (with fallback support)
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled, using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		var authMiddleware *middleware.AuthMiddleware
		if jwksVerifier != nil && cfg.JWT.Secret != "" {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(jwksVerifier, cfg.JWT.Secret)
		} else if jwksVerifier != nil {
			authMiddleware = middleware.NewAuthMiddleware(jwksVerifier)
		} else {
			authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		}
		apiAuthMiddleware = authMiddleware.Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Swagger UI
	app.Get("/swagger/*", fiberSwagger.HandlerDefault)

	app.Get("/health", healthHandler.Check)

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)
	api.Get("/capabilities", capabilityHandler.List)

	mutate := rateLimiter.MutationLimit(cfg.RateLimit.MutationsPerMin)
	jobs := api.Group("/jobs")
	jobs.Post("/", mutate, jobHandler.Create)
	jobs.Get("/", jobHandler.List)
	jobs.Post("/bulk", rateLimiter.BulkLimit(cfg.RateLimit.BulkPerMin), assignmentHandler.Bulk)
	jobs.Get("/:jobId", jobHandler.Get)
	jobs.Get("/:jobId/history", jobHandler.History)
	jobs.Post("/:jobId/transitions", mutate, jobHandler.Transition)
	jobs.Post("/:jobId/assign", mutate, assignmentHandler.Assign)
	jobs.Post("/:jobId/reassign", mutate, assignmentHandler.Reassign)
	jobs.Post("/:jobId/review", mutate, assignmentHandler.Review)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, model.TopicAllJobs)
	}))

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, model.TopicJob(c.Params("jobId")))
	}))

	// Background work needs Redis for the task queue
	var scheduler *worker.Scheduler
	if redisOK {
		go startWorkerServer(ctx, cfg, jobService, jobStore, r2Client, hub)

		scheduler, err = worker.NewScheduler(cfg.Urgency.ScanCron, asynqClient)
		if err != nil {
			log.Printf("Warning: urgency sweep disabled: %v", err)
		} else {
			scheduler.Start()
		}
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if scheduler != nil {
			stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			scheduler.Stop(stopCtx)
			stop()
		}
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		broker.Close()
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server %s starting on %s", cfg.Server.InstanceID, addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	ctx context.Context,
	cfg *config.Config,
	jobService *service.JobService,
	jobStore store.Store,
	r2Client *client.R2Client,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues:      worker.Queues,
			LogLevel:    asynqLogLevel,
		},
	)

	urgencyWorker := worker.NewUrgencyWorker(jobService, hub)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeUrgencySweep, urgencyWorker.ProcessTask)
	if r2Client != nil {
		archiveWorker := worker.NewArchiveWorker(jobStore, r2Client)
		mux.HandleFunc(worker.TaskTypeArchive, archiveWorker.ProcessTask)
	}

	if err := srv.Start(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
		return
	}
	<-ctx.Done()
	srv.Shutdown()
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
