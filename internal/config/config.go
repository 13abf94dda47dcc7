package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	SLA          SLAConfig
	Analytics    AnalyticsConfig
	Retention    RetentionConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN selects the
// in-memory store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
	// Format is "json" or "console".
	Format  string
	Service string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// Notification delivery modes.
const (
	NotifyModeLog   = "log"
	NotifyModeSMTP  = "smtp"
	NotifyModeQueue = "queue"
)

// NotificationConfig selects and configures the outbound email channel.
type NotificationConfig struct {
	Mode         string
	EmailFrom    string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	QueueKey     string
	// SendRatePerSecond throttles the queue worker. Zero means unthrottled.
	SendRatePerSecond float64
}

// SLAConfig tunes background breach detection.
type SLAConfig struct {
	// SweepIntervalSeconds of 0 disables the periodic sweep.
	SweepIntervalSeconds int
	// SystemActorID is recorded on escalations the sweep performs. Empty means none.
	SystemActorID string
}

// AnalyticsConfig holds reporting defaults.
type AnalyticsConfig struct {
	DefaultRange string
}

// RetentionConfig bounds how long activity logs are kept.
type RetentionConfig struct {
	ActivityLogDays int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	sendRate, err := strconv.ParseFloat(getEnv("NOTIFY_SEND_RATE_PER_SECOND", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFY_SEND_RATE_PER_SECOND: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Notification: NotificationConfig{
			Mode:              strings.ToLower(getEnv("NOTIFY_MODE", NotifyModeLog)),
			EmailFrom:         getEnv("NOTIFY_EMAIL_FROM", "noreply@helpdesk.local"),
			SMTPHost:          os.Getenv("SMTP_HOST"),
			SMTPPort:          getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername:      os.Getenv("SMTP_USERNAME"),
			SMTPPassword:      os.Getenv("SMTP_PASSWORD"),
			QueueKey:          getEnv("NOTIFY_QUEUE_KEY", "helpdesk:notifications"),
			SendRatePerSecond: sendRate,
		},
		SLA: SLAConfig{
			SweepIntervalSeconds: getEnvAsInt("SLA_SWEEP_INTERVAL_SECONDS", 0),
			SystemActorID:        os.Getenv("SLA_SYSTEM_ACTOR_ID"),
		},
		Analytics: AnalyticsConfig{
			DefaultRange: getEnv("ANALYTICS_DEFAULT_RANGE", "week"),
		},
		Retention: RetentionConfig{
			ActivityLogDays: getEnvAsInt("RETENTION_ACTIVITY_LOG_DAYS", 90),
		},
	}

	switch cfg.Notification.Mode {
	case NotifyModeLog, NotifyModeSMTP, NotifyModeQueue:
	default:
		return nil, fmt.Errorf("invalid NOTIFY_MODE %q", cfg.Notification.Mode)
	}
	if cfg.Retention.ActivityLogDays <= 0 {
		return nil, fmt.Errorf("invalid RETENTION_ACTIVITY_LOG_DAYS: %d", cfg.Retention.ActivityLogDays)
	}

	if id := cfg.SLA.SystemActorID; id != "" {
		if _, err := uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid SLA_SYSTEM_ACTOR_ID %q: must be a user id (UUID)", id)
		}
	}

	cfg.Logger.Service = cfg.App.Name
	if cfg.Logger.Format != "json" && cfg.Logger.Format != "console" {
		return nil, fmt.Errorf("invalid LOG_FORMAT: %q", cfg.Logger.Format)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the lifetime of issued tokens.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// SMTPAddr returns host:port for the mail relay.
func (n NotificationConfig) SMTPAddr() string {
	return fmt.Sprintf("%s:%d", n.SMTPHost, n.SMTPPort)
}

// SweepInterval returns the sweep period, or 0 when sweeping is disabled.
func (s SLAConfig) SweepInterval() time.Duration {
	if s.SweepIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// SystemActor returns the actor recorded on unattended escalations.
func (s SLAConfig) SystemActor() *string {
	if s.SystemActorID == "" {
		return nil
	}
	id := s.SystemActorID
	return &id
}

// Retention returns the activity log retention window.
func (r RetentionConfig) Retention() time.Duration {
	return time.Duration(r.ActivityLogDays) * 24 * time.Hour
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
