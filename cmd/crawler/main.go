package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/user/medcrawl/internal/adapter/cfm"
	"github.com/user/medcrawl/internal/adapter/chromedp_solver"
	"github.com/user/medcrawl/internal/adapter/pegaplantao"
	"github.com/user/medcrawl/internal/adapter/postgres"
	redis_adapter "github.com/user/medcrawl/internal/adapter/redis"
	"github.com/user/medcrawl/internal/delivery/http/handler"
	"github.com/user/medcrawl/internal/delivery/http/router"
	"github.com/user/medcrawl/internal/entity"
	"github.com/user/medcrawl/internal/usecase"
	"github.com/user/medcrawl/pkg/backoff"
	"github.com/user/medcrawl/pkg/config"
	"github.com/user/medcrawl/pkg/logger"
	"github.com/user/medcrawl/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal("unable to connect to postgres", zap.Error(err))
	}
	defer dbpool.Close()
	if err := dbpool.Ping(ctx); err != nil {
		log.Fatal("postgres ping failed", zap.Error(err))
	}
	log.Info("postgres connection pool established")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("unable to connect to redis", zap.Error(err))
	}
	log.Info("redis connection established")

	tokenRepo := postgres.NewTokenRepo(dbpool)
	sink := postgres.NewRecordSink(dbpool)
	checkpoints := redis_adapter.NewCheckpointRepo(rdb)

	cfmClient := cfm.New(cfm.BaseURL, cfg.PageSize, cfg.RequestTimeout(), log)
	solver := chromedp_solver.New(cfm.PortalURL, cfg.SolverHeadless, cfg.CaptchaSolveTimeout(), log)
	ppClient := pegaplantao.New(
		cfg.PegaPlantaoBaseURL, cfg.PageSize,
		cfg.PegaPlantaoEmail, cfg.PegaPlantaoPassword,
		cfg.RequestTimeout(), cfg.SessionTTL(), log,
	)

	policy := backoff.Policy{
		Initial: time.Duration(cfg.BackoffInitialSec) * time.Second,
		Max:     time.Duration(cfg.BackoffMaxSec) * time.Second,
		Jitter:  cfg.BackoffJitter,
	}

	tokens := usecase.NewTokenManager(tokenRepo, map[string]usecase.Refresher{
		entity.SourceCFM: &usecase.CaptchaRefresher{
			Solver:      solver,
			Verifier:    cfmClient,
			TTL:         cfg.CaptchaTTL(),
			MaxAttempts: cfg.CaptchaAttempts,
			Policy:      policy,
			Logger:      log,
		},
		entity.SourcePegaPlantao: &usecase.SessionRefresher{
			Gateway: ppClient,
			Logger:  log,
		},
	}, log)

	opts := usecase.RunnerOptions{
		Workers:            cfg.Workers,
		MaxPageRetries:     cfg.MaxPageRetries,
		Backoff:            policy,
		RestartCheckpoints: cfg.RestartCheckpoints,
	}
	// One limiter per source: workers share it, sources do not.
	runners := map[string]*usecase.CrawlRunner{
		entity.SourceCFM: usecase.NewCrawlRunner(
			cfmClient, tokens, sink, checkpoints,
			rate.NewLimiter(rate.Every(cfg.RequestInterval()), 1), opts, log),
		entity.SourcePegaPlantao: usecase.NewCrawlRunner(
			ppClient, tokens, sink, checkpoints,
			rate.NewLimiter(rate.Every(cfg.RequestInterval()), 1), opts, log),
	}

	apiHandler := handler.NewHandler(runners, log)
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router.New(apiHandler, log),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
}
