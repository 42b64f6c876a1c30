package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	amqp "github.com/rabbitmq/amqp091-go"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-giftshop/internal/events"
)

func sampleEvent() events.Event {
	return events.Event{
		Name:     events.NameAddToCart,
		Currency: "bgn",
		Value:    40,
		Items:    []events.Item{{ItemID: "p-1", ItemName: "Roses", Price: 20, Quantity: 2}},
	}
}

func TestEmitFansOutToAllSinks(t *testing.T) {
	first := &events.MemorySink{}
	second := &events.MemorySink{}
	fixed := time.Date(2024, 2, 14, 10, 0, 0, 0, time.UTC)
	bus := &events.Bus{Sinks: []events.Sink{first, nil, second}, Logger: zerolog.Nop(), Now: func() time.Time { return fixed }}

	require.NoError(t, bus.Emit(context.Background(), sampleEvent()))

	for _, sink := range []*events.MemorySink{first, second} {
		got := sink.Events()
		require.Len(t, got, 1)
		require.Equal(t, "BGN", got[0].Currency)
		require.Equal(t, fixed, got[0].OccurredAt)
	}
}

func TestEmitJoinsSinkErrors(t *testing.T) {
	boom := errors.New("boom")
	failing := &events.MemorySink{Err: boom}
	healthy := &events.MemorySink{}
	bus := &events.Bus{Sinks: []events.Sink{failing, healthy}, Logger: zerolog.Nop()}

	err := bus.Emit(context.Background(), sampleEvent())
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
	require.Len(t, healthy.Events(), 1)
}

func TestEmitRejectsInvalidEvents(t *testing.T) {
	sink := &events.MemorySink{}
	bus := &events.Bus{Sinks: []events.Sink{sink}, Logger: zerolog.Nop()}

	require.Error(t, bus.Emit(context.Background(), events.Event{Name: "page_view"}))
	require.Error(t, bus.Emit(context.Background(), events.Event{Name: events.NameViewItem, Value: -1}))
	require.Error(t, bus.Emit(context.Background(), events.Event{Name: events.NameViewItem, Items: []events.Item{{Quantity: 1}}}))
	require.Error(t, bus.Emit(context.Background(), events.Event{Name: events.NameViewItem, Items: []events.Item{{ItemID: "x", Quantity: 0}}}))
	require.Empty(t, sink.Events())
}

func TestStreamSinkAppendsToRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sink := events.StreamSink{Redis: client, Stream: "analytics:test"}
	ev := sampleEvent()
	ev.OccurredAt = time.Now().UTC()
	require.NoError(t, sink.Publish(context.Background(), ev))

	entries, err := client.XRange(context.Background(), "analytics:test", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, events.NameAddToCart, entries[0].Values["name"])

	decoded, err := events.Decode([]byte(entries[0].Values["payload"].(string)))
	require.NoError(t, err)
	require.Equal(t, ev.Items, decoded.Items)
}

type captureEnqueuer struct {
	tasks []*asynq.Task
}

func (c *captureEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type()}, nil
}

func TestTaskSinkEnqueuesForwardTask(t *testing.T) {
	enq := &captureEnqueuer{}
	sink := events.TaskSink{Client: enq, MaxRetry: 3}

	require.NoError(t, sink.Publish(context.Background(), sampleEvent()))
	require.Len(t, enq.tasks, 1)
	require.Equal(t, events.TaskForward, enq.tasks[0].Type())

	decoded, err := events.Decode(enq.tasks[0].Payload())
	require.NoError(t, err)
	require.Equal(t, events.NameAddToCart, decoded.Name)
}

type capturePublisher struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

func (c *capturePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return nil
}

func TestAMQPSinkUsesTopicRoutingKey(t *testing.T) {
	pub := &capturePublisher{}
	sink := &events.AMQPSink{Channel: pub, Exchange: "storefront.analytics"}

	ev := sampleEvent()
	ev.Name = events.NamePurchase
	require.NoError(t, sink.Publish(context.Background(), ev))
	require.Equal(t, "storefront.analytics", pub.exchange)
	require.Equal(t, "analytics.purchase", pub.key)
	require.Equal(t, "application/json", pub.msg.ContentType)

	decoded, err := events.Decode(pub.msg.Body)
	require.NoError(t, err)
	require.Equal(t, events.NamePurchase, decoded.Name)
}

func TestDecodeRejectsEmptyPayload(t *testing.T) {
	_, err := events.Decode(nil)
	require.Error(t, err)
}
