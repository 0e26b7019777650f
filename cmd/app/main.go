package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"analysis-tracker/internal/config"
	"analysis-tracker/internal/infra/adapters/identity"
	"analysis-tracker/internal/infra/adapters/jobapi"
	"analysis-tracker/internal/infra/logging"
	"analysis-tracker/internal/infra/metrics"
	red "analysis-tracker/internal/infra/redis"
	"analysis-tracker/internal/infra/web"
	"analysis-tracker/internal/usecase"

	"github.com/oklog/ulid/v2"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Runtime.Dev {
		log.Printf("[DEV MODE] Enabled")
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// Each running instance gets its own identity so it can tell its own
	// storage writes apart from other instances'.
	instanceID := ulid.Make().String()
	logger.Info().Str("instance_id", instanceID).Msg("starting analysis tracker")

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()
	kv := red.NewKVStore(redisClient, instanceID, cfg.Tracker.MaxValueBytes, logger)
	limiter := red.NewRateLimiter(redisClient)

	// ---- Adapters ----
	api, err := jobapi.NewHTTPAdapter(cfg.API.BaseURL, cfg.API.APIKey, cfg.API.Timeout)
	if err != nil {
		log.Fatalf("job api adapter: %v", err)
	}
	idp := identity.NewJWTAdapter(cfg.Identity)

	// ---- Use cases ----
	historyUC := usecase.NewHistoryUseCase(kv, cfg.Tracker.HistoryKey, cfg.Tracker.HistoryCapacity, logger)
	if err := historyUC.Start(ctx); err != nil {
		log.Fatalf("history store: %v", err)
	}
	pollerUC := usecase.NewJobPollerUseCase(api, usecase.PollerOptions{
		Interval:    cfg.Tracker.PollInterval,
		MaxAttempts: cfg.Tracker.MaxAttempts,
	}, logger)
	flowStore := usecase.NewFlowContextStore(kv, "")
	subUC := usecase.NewSubmissionUseCase(pollerUC, historyUC, idp, flowStore, cfg.Tracker.Cooldown, logger)
	subUC.SetCallbacks(
		func(jobID string) { logger.Info().Str("job_id", jobID).Msg("analysis completed") },
		func(msg string) { logger.Warn().Str("reason", msg).Msg("analysis failed") },
		nil,
	)
	subUC.Start(ctx)

	// ---- Web facade ----
	server := web.NewServer(subUC, limiter, cfg.Web.RateLimit, logger)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Web.Port); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("web facade failed")
	}

	subUC.Cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
}
