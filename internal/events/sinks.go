package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
	amqp "github.com/rabbitmq/amqp091-go"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-giftshop/internal/obs"
)

// LogSink writes events to the structured log.
type LogSink struct {
	Logger zerolog.Logger
}

func (LogSink) SinkName() string { return "log" }

func (s LogSink) Publish(ctx context.Context, ev Event) error {
	log := obs.LoggerFrom(ctx, s.Logger)
	log.Info().
		Str("event", ev.Name).
		Str("currency", ev.Currency).
		Float64("value", ev.Value).
		Int("items", len(ev.Items)).
		Str("client_id", ev.ClientID).
		Msg("analytics event")
	return nil
}

// StreamSink appends events to a capped Redis stream.
type StreamSink struct {
	Redis  redis.Cmdable
	Stream string
	MaxLen int64
}

func (StreamSink) SinkName() string { return "stream" }

func (s StreamSink) Publish(ctx context.Context, ev Event) error {
	if s.Redis == nil {
		return errors.New("stream sink: redis not configured")
	}
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	stream := s.Stream
	if stream == "" {
		stream = "analytics:events"
	}
	return s.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: s.MaxLen,
		Approx: s.MaxLen > 0,
		Values: map[string]any{
			"name":    ev.Name,
			"payload": string(payload),
		},
	}).Err()
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskSink schedules a forwarding task for each event.
type TaskSink struct {
	Client   Enqueuer
	Queue    string
	MaxRetry int
}

func (TaskSink) SinkName() string { return "task" }

func (s TaskSink) Publish(ctx context.Context, ev Event) error {
	if s.Client == nil {
		return errors.New("task sink: client not configured")
	}
	task, err := NewForwardTask(ev)
	if err != nil {
		return err
	}
	opts := []asynq.Option{}
	if s.Queue != "" {
		opts = append(opts, asynq.Queue(s.Queue))
	}
	if s.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(s.MaxRetry))
	}
	_, err = s.Client.EnqueueContext(ctx, task, opts...)
	return err
}

// NewForwardTask wraps the event in an asynq task.
func NewForwardTask(ev Event) (*asynq.Task, error) {
	payload, err := Encode(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskForward, payload), nil
}

// AMQPPublisher is satisfied by *amqp.Channel.
type AMQPPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes events on a topic exchange with routing key analytics.<name>.
type AMQPSink struct {
	Channel  AMQPPublisher
	Exchange string

	mu   sync.Mutex
	conn *amqp.Connection
}

func (*AMQPSink) SinkName() string { return "amqp" }

// DialAMQP connects to the broker and declares a durable topic exchange.
func DialAMQP(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp declare exchange: %w", err)
	}
	return &AMQPSink{Channel: ch, Exchange: exchange, conn: conn}, nil
}

// RoutingKey returns the routing key used for an event name.
func RoutingKey(name string) string {
	return "analytics." + name
}

func (s *AMQPSink) Publish(ctx context.Context, ev Event) error {
	if s == nil || s.Channel == nil {
		return errors.New("amqp sink: channel not configured")
	}
	body, err := Encode(ev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Channel.PublishWithContext(ctx, s.Exchange, RoutingKey(ev.Name), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.OccurredAt,
		Type:         ev.Name,
		Body:         body,
	})
}

// Close releases the broker connection opened by DialAMQP.
func (s *AMQPSink) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// MemorySink keeps published events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (*MemorySink) SinkName() string { return "memory" }

func (s *MemorySink) Publish(_ context.Context, ev Event) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of everything published so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}
