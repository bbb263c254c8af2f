package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env         string
	Port        int
	APIPrefix   string
	ServiceName string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Booking       BookingConfig
	Calendar      CalendarConfig
	Notifications NotificationConfig
	RateLimit     RateLimitConfig
	Telemetry     TelemetryConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// BookingConfig bounds the booking engine's store work and browsing windows.
type BookingConfig struct {
	StoreTimeout   time.Duration
	SerializableTx bool
	MaxBrowseDays  int
	PolicyCacheTTL time.Duration
}

// CalendarConfig configures external calendar access.
type CalendarConfig struct {
	Enabled            bool
	Timeout            time.Duration
	GoogleClientID     string
	GoogleClientSecret string
	DefaultCalendarID  string
	CreateMeetLinks    bool
}

// NotificationConfig configures the asynchronous notification pipeline.
type NotificationConfig struct {
	Brokers     []string
	TopicPrefix string
	Workers     int
	BufferSize  int
	MaxRetries  int
	RetryDelay  time.Duration
}

// RateLimitConfig configures the public endpoint limiter.
type RateLimitConfig struct {
	Enabled  bool
	Limit    int
	Window   time.Duration
	FailOpen bool
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.ServiceName = v.GetString("SERVICE_NAME")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Booking = BookingConfig{
		StoreTimeout:   parseDuration(v.GetString("BOOKING_STORE_TIMEOUT"), 5*time.Second),
		SerializableTx: v.GetBool("BOOKING_SERIALIZABLE_TX"),
		MaxBrowseDays:  v.GetInt("BOOKING_MAX_BROWSE_DAYS"),
		PolicyCacheTTL: parseDuration(v.GetString("BOOKING_POLICY_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Calendar = CalendarConfig{
		Enabled:            v.GetBool("ENABLE_EXTERNAL_CALENDAR"),
		Timeout:            parseDuration(v.GetString("CALENDAR_TIMEOUT"), 3*time.Second),
		GoogleClientID:     v.GetString("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
		DefaultCalendarID:  v.GetString("GOOGLE_CALENDAR_ID"),
		CreateMeetLinks:    v.GetBool("GOOGLE_CREATE_MEET_LINKS"),
	}

	cfg.Notifications = NotificationConfig{
		Brokers:     splitAndTrim(v.GetString("KAFKA_BROKERS")),
		TopicPrefix: v.GetString("KAFKA_TOPIC_PREFIX"),
		Workers:     v.GetInt("NOTIFY_WORKERS"),
		BufferSize:  v.GetInt("NOTIFY_BUFFER_SIZE"),
		MaxRetries:  v.GetInt("NOTIFY_MAX_RETRIES"),
		RetryDelay:  parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 2*time.Second),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:  v.GetBool("ENABLE_RATE_LIMIT"),
		Limit:    v.GetInt("RATE_LIMIT_REQUESTS"),
		Window:   parseDuration(v.GetString("RATE_LIMIT_WINDOW"), time.Minute),
		FailOpen: v.GetBool("RATE_LIMIT_FAIL_OPEN"),
	}

	cfg.Telemetry = TelemetryConfig{
		Enabled:     v.GetBool("ENABLE_TRACING"),
		Endpoint:    v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Insecure:    v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
		SampleRatio: v.GetFloat64("OTEL_SAMPLE_RATIO"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("SERVICE_NAME", "slotbook-api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "slotbook")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("BOOKING_STORE_TIMEOUT", "5s")
	v.SetDefault("BOOKING_SERIALIZABLE_TX", false)
	v.SetDefault("BOOKING_MAX_BROWSE_DAYS", 62)
	v.SetDefault("BOOKING_POLICY_CACHE_TTL", "5m")

	v.SetDefault("ENABLE_EXTERNAL_CALENDAR", false)
	v.SetDefault("CALENDAR_TIMEOUT", "3s")
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("GOOGLE_CALENDAR_ID", "primary")
	v.SetDefault("GOOGLE_CREATE_MEET_LINKS", true)

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC_PREFIX", "booking")
	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_BUFFER_SIZE", 256)
	v.SetDefault("NOTIFY_MAX_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "2s")

	v.SetDefault("ENABLE_RATE_LIMIT", false)
	v.SetDefault("RATE_LIMIT_REQUESTS", 60)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("RATE_LIMIT_FAIL_OPEN", true)

	v.SetDefault("ENABLE_TRACING", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", true)
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
