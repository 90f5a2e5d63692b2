package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"

	"github.com/ahmadramadhannn/mudah-titip/agreement"
	"github.com/ahmadramadhannn/mudah-titip/app"
	"github.com/ahmadramadhannn/mudah-titip/auth"
	"github.com/ahmadramadhannn/mudah-titip/db"
	"github.com/ahmadramadhannn/mudah-titip/idempotency"
	"github.com/ahmadramadhannn/mudah-titip/metrics"
	"github.com/ahmadramadhannn/mudah-titip/notification"
	"github.com/ahmadramadhannn/mudah-titip/settlement"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *app.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return err
	}

	queue := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer queue.Close()

	m := metrics.New()
	m.Registerer().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store := agreement.NewPGStore(pool)
	publisher := notification.NewPublisher(queue).WithQueue(cfg.NotifyQueue)

	server := &Server{
		agreementService:    agreement.NewEngine(store, publisher, logger),
		settlementService:   settlement.NewCalculator(store).WithLanguage(language.Make(cfg.BreakdownLocale)),
		notificationService: notification.NewService(notification.NewRepository(pool), logger),
		authService:         auth.NewService(auth.NewRepository(pool), cfg.JWTSecret),
		idempotency:         idempotency.NewStore(redisClient, cfg.IdempotencyTTL),
		metrics:             m,
		validate:            validator.New(),
		logger:              logger,
		rateLimitPerMinute:  cfg.RateLimitPerMinute,
	}

	httpServer := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           server.routes(),
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", "addr", cfg.AppAddr, "env", cfg.AppEnv)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("api shutting down")
	return httpServer.Shutdown(shutdownCtx)
}
