// Command hostfleetd runs the host fleet supervisor: the heartbeat
// loop/circuit breaker/reaper/redistributor core plus its admin HTTP API,
// wired together following the teacher's cmd/server/main.go ordering
// (logger → database → collaborators → background loop → HTTP server →
// graceful shutdown on signal).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hive-agi/hostfleet/internal/api"
	"github.com/hive-agi/hostfleet/internal/config"
	"github.com/hive-agi/hostfleet/internal/eventbus"
	"github.com/hive-agi/hostfleet/internal/fleet"
	"github.com/hive-agi/hostfleet/internal/notifier"
	"github.com/hive-agi/hostfleet/internal/workerstore/gormstore"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:   "hostfleetd",
		Short: "hostfleetd — host fleet supervisor daemon",
		Long: `hostfleetd supervises a fleet of editor-host processes reachable via a
line-oriented RPC subprocess: it pings hosts, scores their health, places
new workers, and auto-heals or redistributes workers around dead or
overloaded hosts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())
	config.Flags(root, cfg)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hostfleetd %s (commit: %s)\n", version, commit)
		},
	}
}

// splitAndTrim splits a comma-separated flag value into its trimmed,
// non-empty parts.
func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting hostfleetd",
		zap.String("version", version),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("db_driver", cfg.DBDriver),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- 1. Worker store ---
	gormDB, err := gormstore.Open(gormstore.Config{
		Driver:   cfg.DBDriver,
		DSN:      cfg.DBDSN,
		Logger:   logger,
		LogLevel: config.GormLogLevel(cfg.LogLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to open worker store: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	store := gormstore.New(gormDB)

	// --- 2. Notifier ---
	notifierOpts := []notifier.Option{}
	if cfg.NotifyDesktop {
		notifierOpts = append(notifierOpts, notifier.WithDesktop())
	}
	if cfg.SMTPHost != "" {
		notifierOpts = append(notifierOpts, notifier.WithEmail(notifier.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			To:       splitAndTrim(cfg.SMTPTo),
			TLS:      cfg.SMTPTLS,
		}))
	}
	if cfg.WebhookEnabled {
		notifierOpts = append(notifierOpts, notifier.WithWebhook(notifier.WebhookConfig{
			URL:     cfg.WebhookURL,
			Secret:  cfg.WebhookSecret,
			Enabled: cfg.WebhookEnabled,
		}))
	}
	notify := notifier.New(logger, notifierOpts...)

	// --- 3. Event bus ---
	hub := eventbus.NewHub()
	go hub.Run(ctx)
	bus := eventbus.New(logger, hub)

	// --- 4. Fleet ---
	defaultHostID := cfg.EmacsSocketName
	if defaultHostID == "" {
		defaultHostID = "server"
	}

	fl := fleet.New(fleet.Config{
		DefaultHostID:     defaultHostID,
		EmacsClient:       cfg.EmacsClient,
		HeartbeatInterval: cfg.HeartbeatInterval,
		CleanupInterval:   cfg.CleanupInterval,
		StaleAfter:        cfg.StaleAfter,
	}, store, notify, bus, logger)

	if err := fl.Start(ctx); err != nil {
		return fmt.Errorf("failed to start fleet: %w", err)
	}
	defer func() {
		if err := fl.Stop(); err != nil {
			logger.Warn("fleet shutdown error", zap.Error(err))
		}
	}()

	// --- 5. HTTP server ---
	router := api.NewRouter(api.RouterConfig{
		Fleet:  fl,
		Hub:    hub,
		Logger: logger,
	})

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down hostfleetd")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("hostfleetd stopped")
	return nil
}
