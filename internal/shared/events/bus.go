package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"
	"github.com/gramseva/complaint-portal/internal/shared/config"
)

// Bus provides event publishing and subscription using KurrentDB. Each
// complaint gets its own stream so its lifecycle can be replayed.
type Bus struct {
	client *esdb.Client
	prefix string
}

// NewBus creates a new event bus connected to KurrentDB
func NewBus(ctx context.Context, cfg config.KurrentDBConfig) (*Bus, error) {
	settings, err := esdb.ParseConnectionString(buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	client, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create KurrentDB client: %w", err)
	}

	return &Bus{
		client: client,
		prefix: "portal",
	}, nil
}

// buildConnectionString creates the esdb:// connection string
func buildConnectionString(cfg config.KurrentDBConfig) string {
	var auth string
	if cfg.Username != "" && cfg.Password != "" {
		auth = fmt.Sprintf("%s:%s@", cfg.Username, cfg.Password)
	}

	params := ""
	if cfg.Insecure {
		params = "?tls=false&tlsVerifyCert=false&keepAliveInterval=10000&keepAliveTimeout=10000"
	}

	return fmt.Sprintf("esdb://%s%s:%d%s", auth, cfg.Host, cfg.Port, params)
}

// Publish appends the event to its aggregate stream
func (b *Bus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		eventID = uuid.New()
	}

	esdbEvent := esdb.EventData{
		EventType:   event.Type,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
		EventID:     eventID,
	}

	_, err = b.client.AppendToStream(ctx, streamName(b.prefix, event), esdb.AppendToStreamOptions{
		ExpectedRevision: esdb.Any{},
	}, esdbEvent)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Subscribe delivers events matching pattern to handler. "*" uses a
// persistent subscription on $all named after the consumer; narrower
// patterns use a filtered catch-up subscription from the end of $all.
func (b *Bus) Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error {
	if pattern == "*" || pattern == ">" {
		settings := esdb.SubscriptionSettingsDefault()
		settings.ResolveLinkTos = true

		err := b.client.CreatePersistentSubscriptionToAll(ctx, consumerName, esdb.PersistentAllSubscriptionOptions{
			Settings:  &settings,
			StartFrom: esdb.End{},
		})
		if esdbErr, ok := esdb.FromError(err); !ok && esdbErr.Code() != esdb.ErrorCodeResourceAlreadyExists {
			return fmt.Errorf("failed to create persistent subscription: %w", err)
		}

		sub, err := b.client.SubscribeToPersistentSubscriptionToAll(ctx, consumerName, esdb.SubscribeToPersistentSubscriptionOptions{})
		if err != nil {
			return fmt.Errorf("failed to subscribe to persistent subscription: %w", err)
		}
		go b.consumePersistent(ctx, sub, pattern, handler)
		return nil
	}

	sub, err := b.client.SubscribeToAll(ctx, esdb.SubscribeToAllOptions{
		From: esdb.End{},
		Filter: &esdb.SubscriptionFilter{
			Type:  esdb.EventFilterType,
			Regex: patternToRegex(pattern),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to pattern: %w", err)
	}

	go b.consumeCatchUp(ctx, sub, pattern, handler)
	return nil
}

// maxRedeliveries bounds how often a failing event is retried on the
// persistent subscription before it is parked
const maxRedeliveries = 5

type delivery int

const (
	delivered delivery = iota
	skipped
	unreadable
	rejected
)

// deliver decodes one recorded event and passes it to handler when its type
// matches pattern. System ($-prefixed) events are skipped.
func deliver(ctx context.Context, recorded *esdb.RecordedEvent, pattern string, handler Handler) delivery {
	if recorded == nil || strings.HasPrefix(recorded.EventType, "$") || !matchesPattern(recorded.EventType, pattern) {
		return skipped
	}

	event, err := recordedEventToEvent(recorded)
	if err != nil {
		log.Printf("events: unreadable %s %s: %v", recorded.EventType, recorded.EventID, err)
		return unreadable
	}
	if err := handler(ctx, event); err != nil {
		log.Printf("events: handler failed for %s %s: %v", event.Type, event.ID, err)
		return rejected
	}
	return delivered
}

// consumePersistent settles every message it receives: unreadable events
// and events that keep failing are parked, other failures are retried.
func (b *Bus) consumePersistent(ctx context.Context, sub *esdb.PersistentSubscription, pattern string, handler Handler) {
	defer sub.Close()

	for ctx.Err() == nil {
		msg := sub.Recv()
		if msg.SubscriptionDropped != nil {
			log.Printf("events: persistent subscription dropped: %v", msg.SubscriptionDropped.Error)
			return
		}
		if msg.EventAppeared == nil || msg.EventAppeared.Event == nil {
			continue
		}

		resolved := msg.EventAppeared.Event
		var err error
		switch deliver(ctx, resolved.Event, pattern, handler) {
		case unreadable:
			err = sub.Nack("unreadable event", esdb.NackActionPark, resolved)
		case rejected:
			action := esdb.NackActionRetry
			if msg.EventAppeared.RetryCount >= maxRedeliveries {
				action = esdb.NackActionPark
			}
			err = sub.Nack("handler error", action, resolved)
		default:
			err = sub.Ack(resolved)
		}
		if err != nil {
			log.Printf("events: failed to settle %s: %v", resolved.OriginalEvent().EventID, err)
		}
	}
}

// consumeCatchUp follows a filtered $all subscription. Nothing is
// acknowledged; a failed handler only logs.
func (b *Bus) consumeCatchUp(ctx context.Context, sub *esdb.Subscription, pattern string, handler Handler) {
	defer sub.Close()

	for ctx.Err() == nil {
		msg := sub.Recv()
		if msg.SubscriptionDropped != nil {
			log.Printf("events: catch-up subscription dropped: %v", msg.SubscriptionDropped.Error)
			return
		}
		if msg.EventAppeared == nil {
			continue
		}
		deliver(ctx, msg.EventAppeared.Event, pattern, handler)
	}
}

// recordedEventToEvent converts a KurrentDB event to our Event type
func recordedEventToEvent(recorded *esdb.RecordedEvent) (Event, error) {
	var event Event
	if err := json.Unmarshal(recorded.Data, &event); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.ID == "" {
		event.ID = recorded.EventID.String()
	}

	return event, nil
}

// Close closes the event bus connection
func (b *Bus) Close() {
	if b.client != nil {
		b.client.Close()
	}
}

// Health checks the KurrentDB connection
func (b *Bus) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := b.client.ReadStream(ctx, "$streams", esdb.ReadStreamOptions{
		From:      esdb.Start{},
		Direction: esdb.Forwards,
	}, 1)
	if err != nil {
		return fmt.Errorf("KurrentDB health check failed: %w", err)
	}
	defer stream.Close()

	return nil
}
