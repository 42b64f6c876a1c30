package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-giftshop/internal/config"
	"github.com/noah-isme/backend-giftshop/internal/events"
	"github.com/noah-isme/backend-giftshop/internal/payment"
	"github.com/noah-isme/backend-giftshop/internal/resilience"
)

// Dependencies enumerates the shared clients the builders below draw from.
type Dependencies struct {
	Redis  *redis.Client
	Tasks  events.Enqueuer
	Logger zerolog.Logger
}

// NewRedis parses url, instruments the client with OpenTelemetry and pings it.
func NewRedis(ctx context.Context, url string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewLimiterStore wires a rate limiter store backed by Redis, or an in-process
// store when no client is given.
func NewLimiterStore(rdb *redis.Client, prefix string) (limiter.Store, error) {
	if rdb == nil {
		return memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: prefix}), nil
	}
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
}

// NewTaskClient returns an asynq client sharing the application's Redis connection.
func NewTaskClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClientFromRedisClient(rdb)
}

// BuildSinks turns the configured sink names into event sinks. The returned
// closer releases broker connections opened along the way.
func BuildSinks(cfg *config.Config, deps Dependencies) ([]events.Sink, func() error, error) {
	var (
		sinks   []events.Sink
		closers []func() error
	)
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}
	seen := map[string]bool{}
	for _, name := range cfg.AnalyticsSinks {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		switch name {
		case "log":
			sinks = append(sinks, events.LogSink{Logger: deps.Logger})
		case "stream":
			if deps.Redis == nil {
				_ = closeAll()
				return nil, nil, errors.New("stream sink requires redis")
			}
			sinks = append(sinks, events.StreamSink{Redis: deps.Redis, Stream: cfg.AnalyticsStreamKey, MaxLen: cfg.AnalyticsStreamMaxLen})
		case "task":
			if deps.Tasks == nil {
				_ = closeAll()
				return nil, nil, errors.New("task sink requires a task client")
			}
			sinks = append(sinks, events.TaskSink{Client: deps.Tasks, MaxRetry: cfg.RetryMaxAttempts})
		case "amqp":
			if cfg.AMQPURL == "" {
				_ = closeAll()
				return nil, nil, errors.New("amqp sink requires AMQP_URL")
			}
			sink, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
			if err != nil {
				_ = closeAll()
				return nil, nil, err
			}
			closers = append(closers, sink.Close)
			sinks = append(sinks, sink)
		default:
			_ = closeAll()
			return nil, nil, fmt.Errorf("unknown analytics sink %q", name)
		}
	}
	return sinks, closeAll, nil
}

// NewGateway builds the Stripe gateway. Without a secret key it returns nil and
// checkout answers 503 PAYMENT_NOT_CONFIGURED.
func NewGateway(cfg *config.Config) (payment.Gateway, error) {
	if cfg.StripeSecretKey == "" {
		return nil, nil
	}
	gw, err := payment.NewStripe(payment.StripeOptions{
		SecretKey: cfg.StripeSecretKey,
		BaseURL:   cfg.StripeAPIBaseURL,
		Timeout:   cfg.PaymentTimeout,
	})
	if err != nil {
		return nil, err
	}
	return gw, nil
}

// NewOutboundClient returns a retrying, circuit-protected HTTP client for calls to target.
func NewOutboundClient(cfg *config.Config, target string, logger zerolog.Logger) resilience.HTTPClient {
	breaker := resilience.NewBreaker(resilience.BreakerSettings{
		Target:       target,
		MinRequests:  cfg.CircuitMinRequests,
		FailureRatio: cfg.CircuitFailureRate,
		OpenFor:      cfg.CircuitOpenFor,
	}, logger)
	return resilience.HTTPClient{
		Client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Breaker: breaker,
		Retry: resilience.RetryPolicy{
			Attempts: cfg.RetryMaxAttempts,
			Base:     cfg.RetryBase,
			Max:      cfg.OutboundTimeout,
			Jitter:   cfg.RetryJitterPercent,
		},
		Timeout: cfg.OutboundTimeout,
	}
}
