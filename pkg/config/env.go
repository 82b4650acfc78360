package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"
	EnvDotEnv   = "DOTENV_PATH"

	EnvStoreBackend = "STORE_BACKEND"

	EnvLockBackend = "LOCK_BACKEND"
	EnvLockWait    = "LOCK_WAIT"
	EnvLockLease   = "LOCK_LEASE"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"

	EnvEventSinks    = "EVENT_SINKS"
	EnvRabbitMQURL   = "RABBITMQ_URL"
	EnvEventsTopic   = "EVENTS_TOPIC"
	EnvRelayInterval = "RELAY_INTERVAL"
	EnvRelayBatch    = "RELAY_BATCH"

	EnvHoldDefaultTTL = "HOLD_DEFAULT_TTL"
	EnvHoldMaxTTL     = "HOLD_MAX_TTL"
	EnvSweepInterval  = "SWEEP_INTERVAL"
	EnvSweepBatch     = "SWEEP_BATCH"

	EnvAlternativesLimit = "ALTERNATIVES_LIMIT"

	EnvAPIBaseURL = "API_BASE_URL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout     = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL     = "IDEMPOTENCY_TTL"
	EnvIdempotencyBackend = "IDEMPOTENCY_BACKEND"
	EnvMaxRequestSize     = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)
