package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-giftshop/internal/analytics"
	"github.com/noah-isme/backend-giftshop/internal/app"
	"github.com/noah-isme/backend-giftshop/internal/config"
	"github.com/noah-isme/backend-giftshop/internal/events"
	"github.com/noah-isme/backend-giftshop/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := app.NewRedis(ctx, cfg.RedisURL, false, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	forwarder := &analytics.Forwarder{
		HTTP:          app.NewOutboundClient(cfg, "ga4", logger),
		Endpoint:      cfg.GA4Endpoint,
		MeasurementID: cfg.GA4MeasurementID,
		APISecret:     cfg.GA4APISecret,
		Logger:        logger,
	}
	if !forwarder.Enabled() {
		logger.Warn().Msg("GA4 credentials missing; forwarded events will be dropped")
	}

	srv := asynq.NewServerFromRedisClient(redisClient, asynq.Config{
		Concurrency: cfg.QueueConcurrency,
		Logger:      taskLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error().Err(err).
				Str("task", task.Type()).
				Int("retry", retried).
				Int("max_retry", maxRetry).
				Msg("task failed")
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(events.TaskForward, forwarder.HandleForward)

	logger.Info().Int("concurrency", cfg.QueueConcurrency).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

// taskLogger routes asynq's internal logging through zerolog.
type taskLogger struct {
	logger zerolog.Logger
}

func (l taskLogger) Debug(args ...any) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l taskLogger) Info(args ...any)  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l taskLogger) Warn(args ...any)  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l taskLogger) Error(args ...any) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l taskLogger) Fatal(args ...any) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
