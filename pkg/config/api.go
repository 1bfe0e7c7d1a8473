package config

import "time"

// APIConfig holds runtime configuration for the botforge API service.
type APIConfig struct {
	Environment         string
	Addr                string
	DatabaseURL         string
	MigrationsDir       string
	JWTSecret           string
	SecretEncryptionKey string

	DeployDomainSuffix string

	WorkerCount      int
	WorkerQueueDepth int

	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int

	WatchdogInterval     time.Duration
	DeploymentQueuedTTL  time.Duration
	DeploymentRunningTTL time.Duration
	ExecutionQueuedTTL   time.Duration
	ExecutionRunningTTL  time.Duration

	TelemetryBucketSpan time.Duration
	TelemetryFlushEvery time.Duration

	PricePerThousandTokens float64
	PricePerAPICall        float64
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:         GetString("APP_ENV", "development"),
		Addr:                GetString("API_ADDR", ":4000"),
		DatabaseURL:         GetString("DATABASE_URL", "postgres://botforge:botforge@db:5432/botforge?sslmode=disable"),
		MigrationsDir:       GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		JWTSecret:           GetString("JWT_SECRET", "supersecuresecret"),
		SecretEncryptionKey: GetString("SECRET_ENCRYPTION_KEY", "supersecuresecret"),

		DeployDomainSuffix: GetString("DEPLOY_DOMAIN_SUFFIX", ".bots.botforge.dev"),

		WorkerCount:      GetInt("WORKER_COUNT", 8),
		WorkerQueueDepth: GetInt("WORKER_QUEUE_DEPTH", 256),

		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),

		WatchdogInterval:     GetSeconds("WATCHDOG_INTERVAL_SECONDS", 30),
		DeploymentQueuedTTL:  GetSeconds("DEPLOYMENT_QUEUED_TTL_SECONDS", 600),
		DeploymentRunningTTL: GetSeconds("DEPLOYMENT_RUNNING_TTL_SECONDS", 900),
		ExecutionQueuedTTL:   GetSeconds("EXECUTION_QUEUED_TTL_SECONDS", 600),
		ExecutionRunningTTL:  GetSeconds("EXECUTION_RUNNING_TTL_SECONDS", 1800),

		TelemetryBucketSpan: GetSeconds("TELEMETRY_BUCKET_SECONDS", 60),
		TelemetryFlushEvery: GetSeconds("TELEMETRY_FLUSH_SECONDS", 30),

		PricePerThousandTokens: float64(GetInt("PRICE_MILLICENTS_PER_1K_TOKENS", 200)) / 100000.0,
		PricePerAPICall:        float64(GetInt("PRICE_MILLICENTS_PER_API_CALL", 50)) / 100000.0,
	}
}
