package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	InstanceID  string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string
	LogLevel     string
	Telemetry    TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis        RedisConfig
	RateLimit    RateLimitConfig
	HealthExport HealthExportConfig
	Scheduler    SchedulerConfig
}

// TelemetryConfig holds the OpenTelemetry and log output settings.
type TelemetryConfig struct {
	LogFormat          string
	OtelEnabled        bool
	OtelProtocol       string
	SamplingRatio      float64
	SlowQueryThreshold time.Duration
}

// RateLimitConfig throttles the manual API write paths. Rates are tokens per
// second shared across instances through Redis.
type RateLimitConfig struct {
	Enabled          bool
	HealthCheckRate  float64
	HealthCheckBurst int
	ManualEventRate  float64
	ManualEventBurst int
}

// SchedulerConfig controls the background ingest and health loops.
type SchedulerConfig struct {
	RunInterval    time.Duration
	HealthInterval time.Duration
	EnabledJobs    []string
}

// RedisConfig configures the optional consumer lease store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LeaseTTL time.Duration
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// HealthExportConfig configures where ledger health gauges are pushed.
type HealthExportConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewRulesConfigHolder),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:      getenv("APP_SERVICE", "clockwise"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		InstanceID:   strings.TrimSpace(getenv("INSTANCE_ID", hostname())),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		NodeID:       int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		LogLevel:     strings.ToLower(getenv("LOG_LEVEL", "info")),
		Telemetry: TelemetryConfig{
			LogFormat:          strings.ToLower(getenv("LOG_FORMAT", "json")),
			OtelEnabled:        getenvBool("OTEL_ENABLED", false),
			OtelProtocol:       strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			SamplingRatio:      getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
			SlowQueryThreshold: getenvDuration("DATABASE_SLOW_QUERY_THRESHOLD", 200*time.Millisecond),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "clockwise"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
			LeaseTTL: getenvDuration("REDIS_LEASE_TTL", 2*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled:          getenvBool("RATE_LIMIT_ENABLED", false),
			HealthCheckRate:  getenvFloat("RATE_LIMIT_HEALTH_CHECK_RATE", 1.0/60),
			HealthCheckBurst: getenvInt("RATE_LIMIT_HEALTH_CHECK_BURST", 3),
			ManualEventRate:  getenvFloat("RATE_LIMIT_MANUAL_EVENT_RATE", 2),
			ManualEventBurst: getenvInt("RATE_LIMIT_MANUAL_EVENT_BURST", 20),
		},
		HealthExport: HealthExportConfig{
			Enabled:   getenvBool("HEALTH_EXPORT_ENABLED", false),
			Exporter:  strings.ToLower(getenv("HEALTH_EXPORT_EXPORTER", "")),
			Endpoint:  strings.TrimSpace(getenv("HEALTH_EXPORT_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("HEALTH_EXPORT_AUTH_TOKEN", "")),
		},
		Scheduler: SchedulerConfig{
			RunInterval:    getenvDuration("SCHEDULER_RUN_INTERVAL", 30*time.Second),
			HealthInterval: getenvDuration("SCHEDULER_HEALTH_INTERVAL", 5*time.Minute),
			EnabledJobs:    getenvList("SCHEDULER_ENABLED_JOBS"),
		},
	}
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "clockwise"
	}
	return name
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	var items []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
