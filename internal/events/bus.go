package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-giftshop/internal/obs"
)

// Item is a single product line inside an analytics event.
type Item struct {
	ItemID   string  `json:"item_id,omitempty"`
	ItemName string  `json:"item_name,omitempty"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Event is a marketing analytics event. Value is expressed in major units of Currency.
type Event struct {
	Name       string    `json:"name"`
	Currency   string    `json:"currency,omitempty"`
	Value      float64   `json:"value"`
	Items      []Item    `json:"items,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	ClientID   string    `json:"client_id,omitempty"`
}

// Validate checks the event shape before it is handed to sinks.
func (e Event) Validate() error {
	if !KnownName(e.Name) {
		return fmt.Errorf("events: unknown event name %q", e.Name)
	}
	if e.Value < 0 {
		return errors.New("events: value must not be negative")
	}
	if e.Currency != "" && len(e.Currency) != 3 {
		return fmt.Errorf("events: invalid currency %q", e.Currency)
	}
	for i, it := range e.Items {
		if strings.TrimSpace(it.ItemID) == "" && strings.TrimSpace(it.ItemName) == "" {
			return fmt.Errorf("events: item %d needs an id or a name", i)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("events: item %d quantity must be positive", i)
		}
	}
	return nil
}

// Encode serialises the event for transport.
func Encode(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

// Decode parses an event produced by Encode.
func Decode(data []byte) (Event, error) {
	var ev Event
	if len(data) == 0 {
		return ev, errors.New("events: empty payload")
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("events: decode: %w", err)
	}
	return ev, nil
}

// Sink receives validated events.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Publisher is implemented by anything that accepts events, including Bus.
type Publisher interface {
	Emit(ctx context.Context, ev Event) error
}

// Bus validates events and fans them out to every configured sink.
type Bus struct {
	Sinks  []Sink
	Logger zerolog.Logger
	Now    func() time.Time
}

// Emit delivers the event to all sinks synchronously. Every sink is attempted;
// failures are joined into the returned error.
func (b *Bus) Emit(ctx context.Context, ev Event) error {
	if b == nil {
		return errors.New("events: bus not configured")
	}
	ev.Name = strings.TrimSpace(ev.Name)
	ev.Currency = strings.ToUpper(strings.TrimSpace(ev.Currency))
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = b.now()
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	var joined error
	for _, sink := range b.Sinks {
		if sink == nil {
			continue
		}
		name := sinkName(sink)
		if err := sink.Publish(ctx, ev); err != nil {
			obs.CountAnalyticsEvent(ev.Name, name, "error")
			joined = errors.Join(joined, fmt.Errorf("events: sink %s: %w", name, err))
			continue
		}
		obs.CountAnalyticsEvent(ev.Name, name, "ok")
	}
	if joined != nil {
		log := obs.LoggerFrom(ctx, b.Logger)
		log.Warn().Err(joined).Str("event", ev.Name).Msg("analytics event delivery incomplete")
	}
	return joined
}

func (b *Bus) now() time.Time {
	if b.Now != nil {
		return b.Now().UTC()
	}
	return time.Now().UTC()
}

type namedSink interface {
	SinkName() string
}

func sinkName(s Sink) string {
	if n, ok := s.(namedSink); ok {
		return n.SinkName()
	}
	return fmt.Sprintf("%T", s)
}
