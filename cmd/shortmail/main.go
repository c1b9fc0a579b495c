package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.io/infrasutra/shortmail/internal/api"
	"github.io/infrasutra/shortmail/internal/config"
	"github.io/infrasutra/shortmail/internal/ingest"
	"github.io/infrasutra/shortmail/internal/polling"
	"github.io/infrasutra/shortmail/internal/retention"
	"github.io/infrasutra/shortmail/internal/session"
	"github.io/infrasutra/shortmail/internal/smtpserver"
	"github.io/infrasutra/shortmail/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Error("ensure schema", "error", err)
		os.Exit(1)
	}
	if cfg.DBPath == "" {
		logger.Warn("DB_PATH not set; mail is kept in memory and lost on restart")
	}

	registry := session.NewRegistry()
	policy := ingest.NewPolicy(cfg.MailDomains, cfg.Blacklist, cfg.BannedSenderDomains)
	pipeline := ingest.NewPipeline(policy, db, registry, logger)
	if len(cfg.MailDomains) == 0 {
		logger.Warn("MAIL_DOMAIN not set; accepting mail for any domain")
	}

	pollingHandler := polling.NewHandler(registry, db, policy, cfg.SessionIdleTimeout, logger)
	apiServer := api.NewServer(cfg, pipeline, db, registry, pollingHandler, logger)

	smtpAuthCfg := smtpserver.AuthConfig{
		Enabled:  cfg.SMTPAuthEnabled,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	}
	if smtpAuthCfg.Enabled {
		logger.Info("smtp auth enabled", "username", smtpAuthCfg.Username)
	}

	smtpAddr := fmt.Sprintf(":%d", cfg.SMTPPort)
	smtpSrv := smtpserver.New(pipeline, logger, smtpAddr, smtpAuthCfg)

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           apiServer,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweeper := retention.NewSweeper(db, cfg.RetentionMaxAge, cfg.RetentionInterval, logger)
	go sweeper.Run(ctx)

	go func() {
		if err := smtpSrv.ListenAndServe(); err != nil {
			logger.Error("smtp server stopped", "error", err)
		}
	}()

	go func() {
		logger.Info("http server listening", "addr", httpAddr, "polling", cfg.PollingPath)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown http", "error", err)
	}
	if err := smtpSrv.Close(); err != nil {
		logger.Error("shutdown smtp", "error", err)
	}
	pollingHandler.Wait()
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
