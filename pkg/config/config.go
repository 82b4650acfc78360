package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"slices"
	"slotkeeper/pkg/client"
	"slotkeeper/pkg/logger"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	Port     string
	LogLevel string

	StoreBackend string

	LockBackend string
	LockWait    time.Duration
	LockLease   time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	EventSinks    []string
	RabbitMQURL   string
	EventsTopic   string
	RelayInterval time.Duration
	RelayBatch    int

	HoldDefaultTTL time.Duration
	HoldMaxTTL     time.Duration
	SweepInterval  time.Duration
	SweepBatch     int

	AlternativesLimit int

	// APIBaseURL is where feed consumers re-fetch subjects from.
	APIBaseURL string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout     time.Duration
	IdempotencyTTL     time.Duration
	IdempotencyBackend string
	MaxRequestSize     int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Log    *logger.Logger
	Client *client.Client
}

// Load reads an optional .env file, then the environment, and exits on invalid configuration.
func Load(serviceName string) *Config {
	dotEnvErr := loadDotEnv(getEnvStr(EnvDotEnv, DefaultDotEnv))

	cfg := FromEnv()
	cfg.Log = logger.New(logger.Config{
		Level:     cfg.LogLevel,
		Format:    logger.JSON,
		AddSource: true,
		Service:   serviceName,
	})
	cfg.Client = client.NewClient()

	if dotEnvErr != nil {
		cfg.Log.Warn("Failed to read .env file", "error", dotEnvErr)
	}

	err := cfg.Validate()
	if err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// FromEnv builds a Config from environment variables without validating it.
func FromEnv() *Config {
	return &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port:     getEnvStr(EnvPort, DefaultPort),
		LogLevel: getEnvStr(EnvLogLevel, DefaultLogLevel),

		StoreBackend: strings.ToLower(getEnvStr(EnvStoreBackend, DefaultStoreBackend)),

		LockBackend: strings.ToLower(getEnvStr(EnvLockBackend, DefaultLockBackend)),
		LockWait:    getEnvDuration(EnvLockWait, DefaultLockWait),
		LockLease:   getEnvDuration(EnvLockLease, DefaultLockLease),

		RedisAddr:     getEnvStr(EnvRedisAddr, DefaultRedisAddr),
		RedisPassword: getEnvStr(EnvRedisPassword, ""),
		RedisDB:       getEnvNum(EnvRedisDB, DefaultRedisDB),

		EventSinks:    getEnvList(EnvEventSinks, DefaultEventSinks),
		RabbitMQURL:   getEnvStr(EnvRabbitMQURL, DefaultRabbitMQURL),
		EventsTopic:   getEnvStr(EnvEventsTopic, DefaultEventsTopic),
		RelayInterval: getEnvDuration(EnvRelayInterval, DefaultRelayInterval),
		RelayBatch:    getEnvNum(EnvRelayBatch, DefaultRelayBatch),

		HoldDefaultTTL: getEnvDuration(EnvHoldDefaultTTL, DefaultHoldDefaultTTL),
		HoldMaxTTL:     getEnvDuration(EnvHoldMaxTTL, DefaultHoldMaxTTL),
		SweepInterval:  getEnvDuration(EnvSweepInterval, DefaultSweepInterval),
		SweepBatch:     getEnvNum(EnvSweepBatch, DefaultSweepBatch),

		AlternativesLimit: getEnvNum(EnvAlternativesLimit, DefaultAlternativesLimit),

		APIBaseURL: strings.TrimRight(getEnvStr(EnvAPIBaseURL, DefaultAPIBaseURL), "/"),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout:     getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL:     getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		IdempotencyBackend: strings.ToLower(getEnvStr(EnvIdempotencyBackend, DefaultIdempotencyBackend)),
		MaxRequestSize:     getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),
	}
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.MongoConnTimeout)
}

// NeedsMongo reports whether any configured backend is Mongo.
func (cfg *Config) NeedsMongo() bool {
	return cfg.StoreBackend == BackendMongo || cfg.LockBackend == BackendMongo
}

// NeedsRedis reports whether any configured backend is Redis.
func (cfg *Config) NeedsRedis() bool {
	return cfg.LockBackend == BackendRedis || cfg.IdempotencyBackend == BackendRedis
}

func (cfg *Config) HasSink(name string) bool {
	return slices.Contains(cfg.EventSinks, name)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.StoreBackend != BackendMongo && cfg.StoreBackend != BackendMemory {
		errors = append(errors, fmt.Sprintf("StoreBackend must be one of [mongo, memory], got: %s", cfg.StoreBackend))
	}
	if cfg.LockBackend != BackendMemory && cfg.LockBackend != BackendMongo && cfg.LockBackend != BackendRedis {
		errors = append(errors, fmt.Sprintf("LockBackend must be one of [memory, mongo, redis], got: %s", cfg.LockBackend))
	}
	if cfg.LockBackend == BackendMongo && cfg.StoreBackend != BackendMongo {
		errors = append(errors, "LockBackend mongo requires StoreBackend mongo")
	}
	if cfg.IdempotencyBackend != BackendMemory && cfg.IdempotencyBackend != BackendRedis {
		errors = append(errors, fmt.Sprintf("IdempotencyBackend must be one of [memory, redis], got: %s", cfg.IdempotencyBackend))
	}

	if cfg.NeedsMongo() {
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", cfg.MongoURI))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
	}
	if cfg.NeedsRedis() && cfg.RedisAddr == "" {
		errors = append(errors, "RedisAddr cannot be empty when a redis backend is selected")
	}

	for _, sink := range cfg.EventSinks {
		if sink != SinkKafka && sink != SinkRabbitMQ && sink != SinkLog {
			errors = append(errors, fmt.Sprintf("EventSinks entries must be one of [kafka, rabbitmq, log], got: %s", sink))
		}
	}
	if cfg.HasSink(SinkRabbitMQ) && !strings.HasPrefix(cfg.RabbitMQURL, "amqp") {
		errors = append(errors, fmt.Sprintf("RabbitMQURL must start with 'amqp://' or 'amqps://', got: %s", redactURL(cfg.RabbitMQURL)))
	}
	if cfg.EventsTopic == "" {
		errors = append(errors, "EventsTopic cannot be empty")
	}

	if !strings.HasPrefix(cfg.APIBaseURL, "http://") && !strings.HasPrefix(cfg.APIBaseURL, "https://") {
		errors = append(errors, fmt.Sprintf("APIBaseURL must start with 'http://' or 'https://', got: %s", cfg.APIBaseURL))
	}

	if cfg.HoldDefaultTTL <= 0 {
		errors = append(errors, fmt.Sprintf("HoldDefaultTTL must be positive, got: %s", cfg.HoldDefaultTTL))
	}
	if cfg.HoldMaxTTL < cfg.HoldDefaultTTL {
		errors = append(errors, fmt.Sprintf("HoldMaxTTL (%s) must be >= HoldDefaultTTL (%s)", cfg.HoldMaxTTL, cfg.HoldDefaultTTL))
	}

	positiveDurations := []struct {
		name  string
		value time.Duration
	}{
		{"MongoConnTimeout", cfg.MongoConnTimeout},
		{"LockWait", cfg.LockWait},
		{"LockLease", cfg.LockLease},
		{"RelayInterval", cfg.RelayInterval},
		{"SweepInterval", cfg.SweepInterval},
		{"RateLimitWindow", cfg.RateLimitWindow},
		{"RequestTimeout", cfg.RequestTimeout},
		{"IdempotencyTTL", cfg.IdempotencyTTL},
		{"ReadTimeout", cfg.ReadTimeout},
		{"WriteTimeout", cfg.WriteTimeout},
		{"IdleTimeout", cfg.IdleTimeout},
		{"ShutdownTimeout", cfg.ShutdownTimeout},
	}
	for _, d := range positiveDurations {
		if d.value <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %s", d.name, d.value))
		}
	}
	if cfg.LockLease <= cfg.LockWait {
		errors = append(errors, fmt.Sprintf("LockLease (%s) must be greater than LockWait (%s)", cfg.LockLease, cfg.LockWait))
	}

	positiveInts := []struct {
		name  string
		value int
	}{
		{"RelayBatch", cfg.RelayBatch},
		{"SweepBatch", cfg.SweepBatch},
		{"AlternativesLimit", cfg.AlternativesLimit},
		{"RateLimitRequests", cfg.RateLimitRequests},
		{"MaxRequestSize", cfg.MaxRequestSize},
	}
	for _, n := range positiveInts {
		if n.value <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %d", n.name, n.value))
		}
	}
	if cfg.RedisDB < 0 {
		errors = append(errors, fmt.Sprintf("RedisDB cannot be negative, got: %d", cfg.RedisDB))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactURL(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"port", cfg.Port,
		"store_backend", cfg.StoreBackend,
		"lock_backend", cfg.LockBackend,
		"lock_wait", cfg.LockWait,
		"lock_lease", cfg.LockLease,
		"redis_addr", cfg.RedisAddr,
		"redis_password_set", cfg.RedisPassword != "",
		"event_sinks", cfg.EventSinks,
		"rabbitmq_url", redactURL(cfg.RabbitMQURL),
		"events_topic", cfg.EventsTopic,
		"relay_interval", cfg.RelayInterval,
		"relay_batch", cfg.RelayBatch,
		"hold_default_ttl", cfg.HoldDefaultTTL,
		"hold_max_ttl", cfg.HoldMaxTTL,
		"sweep_interval", cfg.SweepInterval,
		"sweep_batch", cfg.SweepBatch,
		"alternatives_limit", cfg.AlternativesLimit,
		"api_base_url", cfg.APIBaseURL,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"idempotency_backend", cfg.IdempotencyBackend,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
	)
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func redactURL(uri string) string {
	credentialRegex := regexp.MustCompile(`([a-z+]+://)[^:/@]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	raw := getEnvStr(key, fallback)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log, cfg.ShutdownTimeout)
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
