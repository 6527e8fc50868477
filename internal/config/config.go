package config

import (
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server      ServerConfig
	Redis       RedisConfig
	JWT         JWTConfig
	OIDC        OIDCConfig
	Gateway     GatewayConfig
	RateLimit   RateLimitConfig
	Storage     StorageConfig
	Broadcast   BroadcastConfig
	Urgency     UrgencyConfig
	Idempotency IdempotencyConfig
	Archive     ArchiveConfig
	R2          R2Config
	Worker      WorkerConfig
}

type ServerConfig struct {
	Port       string
	Env        string
	LogLevel   string
	InstanceID string
	ApiDomain  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type OIDCConfig struct {
	Issuer   string
	ClientID string
}

type GatewayConfig struct {
	Enabled bool
}

type RateLimitConfig struct {
	MutationsPerMin int
	BulkPerMin      int
}

type StorageConfig struct {
	Driver     string // memory, redis, sqlite or mysql
	DSN        string
	SQLitePath string
}

type BroadcastConfig struct {
	Buffer     int
	RedisRelay bool
	Channel    string
}

type UrgencyConfig struct {
	ThresholdDays int
	ScanCron      string
}

type IdempotencyConfig struct {
	TTLMinutes int
}

func (c IdempotencyConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

type ArchiveConfig struct {
	Enabled bool
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type WorkerConfig struct {
	Concurrency int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("STORAGE_DSN")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("OIDC_CLIENT_ID")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.instance_id", "INSTANCE_ID")
	_ = v.BindEnv("server.api_domain", "API_DOMAIN")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = v.BindEnv("oidc.issuer", "OIDC_ISSUER")
	_ = v.BindEnv("oidc.client_id", "OIDC_CLIENT_ID")
	_ = v.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = v.BindEnv("ratelimit.mutations_per_min", "RATELIMIT_MUTATIONS_PER_MIN")
	_ = v.BindEnv("ratelimit.bulk_per_min", "RATELIMIT_BULK_PER_MIN")
	_ = v.BindEnv("storage.driver", "STORAGE_DRIVER")
	_ = v.BindEnv("storage.dsn", "STORAGE_DSN")
	_ = v.BindEnv("storage.sqlite_path", "STORAGE_SQLITE_PATH")
	_ = v.BindEnv("broadcast.buffer", "BROADCAST_BUFFER")
	_ = v.BindEnv("broadcast.redis_relay", "BROADCAST_REDIS_RELAY")
	_ = v.BindEnv("broadcast.channel", "BROADCAST_CHANNEL")
	_ = v.BindEnv("urgency.threshold_days", "URGENCY_THRESHOLD_DAYS")
	_ = v.BindEnv("urgency.scan_cron", "URGENCY_SCAN_CRON")
	_ = v.BindEnv("idempotency.ttl_minutes", "IDEMPOTENCY_TTL_MINUTES")
	_ = v.BindEnv("archive.enabled", "ARCHIVE_ENABLED")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expiration", 24)
	v.SetDefault("gateway.enabled", false)
	v.SetDefault("ratelimit.mutations_per_min", 120)
	v.SetDefault("ratelimit.bulk_per_min", 10)

	// Storage defaults
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.sqlite_path", "jobtrack.db")

	// Broadcast defaults
	v.SetDefault("broadcast.buffer", 64)
	v.SetDefault("broadcast.redis_relay", false)
	v.SetDefault("broadcast.channel", "jobtrack:events")

	// Lifecycle defaults
	v.SetDefault("urgency.threshold_days", 2)
	v.SetDefault("urgency.scan_cron", "*/15 * * * *")
	v.SetDefault("idempotency.ttl_minutes", 60)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("worker.concurrency", 10)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:       v.GetString("server.port"),
			Env:        v.GetString("server.env"),
			LogLevel:   v.GetString("server.log_level"),
			InstanceID: v.GetString("server.instance_id"),
			ApiDomain:  v.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Expiration: v.GetInt("jwt.expiration"),
		},
		OIDC: OIDCConfig{
			Issuer:   v.GetString("oidc.issuer"),
			ClientID: v.GetString("oidc.client_id"),
		},
		Gateway: GatewayConfig{
			Enabled: v.GetBool("gateway.enabled"),
		},
		RateLimit: RateLimitConfig{
			MutationsPerMin: v.GetInt("ratelimit.mutations_per_min"),
			BulkPerMin:      v.GetInt("ratelimit.bulk_per_min"),
		},
		Storage: StorageConfig{
			Driver:     strings.ToLower(v.GetString("storage.driver")),
			DSN:        v.GetString("storage.dsn"),
			SQLitePath: v.GetString("storage.sqlite_path"),
		},
		Broadcast: BroadcastConfig{
			Buffer:     v.GetInt("broadcast.buffer"),
			RedisRelay: v.GetBool("broadcast.redis_relay"),
			Channel:    v.GetString("broadcast.channel"),
		},
		Urgency: UrgencyConfig{
			ThresholdDays: v.GetInt("urgency.threshold_days"),
			ScanCron:      v.GetString("urgency.scan_cron"),
		},
		Idempotency: IdempotencyConfig{
			TTLMinutes: v.GetInt("idempotency.ttl_minutes"),
		},
		Archive: ArchiveConfig{
			Enabled: v.GetBool("archive.enabled"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("worker.concurrency"),
		},
	}

	if cfg.Server.InstanceID == "" {
		cfg.Server.InstanceID = uuid.NewString()
	}

	return cfg, nil
}
