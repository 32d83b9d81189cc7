// Package config loads hostfleetd's configuration from flags and
// environment variables, following the teacher's cmd/server/main.go
// envOrDefault + cobra PersistentFlags pattern.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// Config holds every flag/env-configurable setting for the hostfleetd
// daemon.
type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string

	LogLevel string

	// RPC client / circuit breaker.
	EmacsSocketName string // default host id; spec.md §6 EMACS_SOCKET_NAME
	EmacsClient     string // RPC subprocess binary; spec.md §6 EMACSCLIENT
	MaxTimeoutMs    int

	// Heartbeat / supervisor cadence.
	HeartbeatInterval time.Duration
	CleanupInterval   time.Duration
	StaleAfter        time.Duration

	// Notifier.
	NotifyDesktop bool

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPTo       string // comma-separated recipient list
	SMTPTLS      bool

	WebhookURL     string
	WebhookSecret  string
	WebhookEnabled bool
}

// BindFlags registers every config field as a cobra persistent flag,
// defaulting to the corresponding HOSTFLEETD_* environment variable.
func BindFlags(flags *cobraFlagSet, cfg *Config) {
	flags.StringVar(&cfg.HTTPAddr, "http-addr", envOrDefault("HOSTFLEETD_HTTP_ADDR", ":8080"), "HTTP admin API listen address")

	flags.StringVar(&cfg.DBDriver, "db-driver", envOrDefault("HOSTFLEETD_DB_DRIVER", "sqlite"), "Database driver (sqlite or postgres)")
	flags.StringVar(&cfg.DBDSN, "db-dsn", envOrDefault("HOSTFLEETD_DB_DSN", "./hostfleetd.db"), "Database DSN or file path for SQLite")

	flags.StringVar(&cfg.LogLevel, "log-level", envOrDefault("HOSTFLEETD_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	flags.StringVar(&cfg.EmacsSocketName, "emacs-socket-name", os.Getenv("EMACS_SOCKET_NAME"), "Default host id / socket name (empty = literal \"server\")")
	flags.StringVar(&cfg.EmacsClient, "emacsclient", envOrDefault("EMACSCLIENT", "emacsclient"), "Path to the RPC subprocess binary")
	flags.IntVar(&cfg.MaxTimeoutMs, "max-timeout-ms", envIntOrDefault("HOSTFLEETD_MAX_TIMEOUT_MS", 30000), "Eval timeout_ms ceiling; parsed but not passed to the RPC client, which uses a fixed 30000ms ceiling")

	flags.DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", envDurationOrDefault("HOSTFLEETD_HEARTBEAT_INTERVAL", 30*time.Second), "Heartbeat tick interval")
	flags.DurationVar(&cfg.CleanupInterval, "cleanup-interval", envDurationOrDefault("HOSTFLEETD_CLEANUP_INTERVAL", 2*time.Minute), "Stale-detection / heal / redistribution interval")
	flags.DurationVar(&cfg.StaleAfter, "stale-after", envDurationOrDefault("HOSTFLEETD_STALE_AFTER", 90*time.Second), "Duration of missed heartbeats before a host is marked stale")

	flags.BoolVar(&cfg.NotifyDesktop, "notify-desktop", envOrDefault("HOSTFLEETD_NOTIFY_DESKTOP", "true") == "true", "Enable desktop notifications via notify-send")

	flags.StringVar(&cfg.SMTPHost, "smtp-host", os.Getenv("HOSTFLEETD_SMTP_HOST"), "SMTP host for the email notification channel (empty = disabled)")
	flags.IntVar(&cfg.SMTPPort, "smtp-port", envIntOrDefault("HOSTFLEETD_SMTP_PORT", 587), "SMTP port")
	flags.StringVar(&cfg.SMTPUsername, "smtp-username", os.Getenv("HOSTFLEETD_SMTP_USERNAME"), "SMTP username")
	flags.StringVar(&cfg.SMTPPassword, "smtp-password", os.Getenv("HOSTFLEETD_SMTP_PASSWORD"), "SMTP password")
	flags.StringVar(&cfg.SMTPFrom, "smtp-from", os.Getenv("HOSTFLEETD_SMTP_FROM"), "SMTP From address")
	flags.StringVar(&cfg.SMTPTo, "smtp-to", os.Getenv("HOSTFLEETD_SMTP_TO"), "Comma-separated recipient addresses for the email channel")
	flags.BoolVar(&cfg.SMTPTLS, "smtp-tls", envOrDefault("HOSTFLEETD_SMTP_TLS", "false") == "true", "Use implicit TLS (SMTPS) for the email channel")

	flags.StringVar(&cfg.WebhookURL, "webhook-url", os.Getenv("HOSTFLEETD_WEBHOOK_URL"), "Outbound webhook URL (empty = disabled)")
	flags.StringVar(&cfg.WebhookSecret, "webhook-secret", os.Getenv("HOSTFLEETD_WEBHOOK_SECRET"), "HMAC-SHA256 signing secret for the webhook channel")
	flags.BoolVar(&cfg.WebhookEnabled, "webhook-enabled", envOrDefault("HOSTFLEETD_WEBHOOK_ENABLED", "false") == "true", "Enable the outbound webhook channel")
}

// cobraFlagSet is the subset of *pflag.FlagSet / *cobra.Command's flag
// registration methods BindFlags needs, letting BindFlags accept either a
// *cobra.Command's PersistentFlags() or Flags() return value directly.
type cobraFlagSet = flagRegistrar

type flagRegistrar interface {
	StringVar(p *string, name string, value string, usage string)
	IntVar(p *int, name string, value int, usage string)
	BoolVar(p *bool, name string, value bool, usage string)
	DurationVar(p *time.Duration, name string, value time.Duration, usage string)
}

// Flags registers cfg's fields as cmd's persistent flags.
func Flags(cmd *cobra.Command, cfg *Config) {
	BindFlags(cmd.PersistentFlags(), cfg)
}

// BuildLogger constructs a zap.Logger at the configured level, following
// the teacher's buildLogger.
func BuildLogger(level string) (*zap.Logger, error) {
	var zcfg zap.Config
	if level == "debug" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zcfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return zcfg.Build()
}

// GormLogLevel maps the application log level to a GORM logger level,
// following the teacher's gormLogLevel.
func GormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "info":
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func envDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
