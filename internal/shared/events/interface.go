package events

import (
	"context"
	"fmt"
	"time"

	"github.com/gramseva/complaint-portal/internal/shared/config"
)

// EventBus defines the interface for event publishing and subscription
type EventBus interface {
	// Publish publishes an event to the bus
	Publish(ctx context.Context, event Event) error

	// Subscribe creates a subscription to events matching a pattern
	Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error

	// Close closes the event bus connection
	Close()

	// Health checks the event bus connection
	Health() error
}

// NewEventBus connects the backend selected in cfg.Events and returns it
// together with its name for logging and metrics
func NewEventBus(ctx context.Context, cfg *config.Config) (EventBus, string, error) {
	switch cfg.Events.Backend {
	case "kurrentdb":
		bus, err := tryKurrentDB(ctx, cfg.KurrentDB)
		if err != nil {
			return nil, "", err
		}
		return bus, "kurrentdb", nil
	case "rabbitmq":
		bus, err := NewAMQPBus(cfg.RabbitMQ)
		if err != nil {
			return nil, "", err
		}
		return bus, "rabbitmq", nil
	case "none":
		return NewLocalBus(), "local", nil
	default:
		return nil, "", fmt.Errorf("unknown event backend %q", cfg.Events.Backend)
	}
}

// tryKurrentDB connects over gRPC and verifies the connection
func tryKurrentDB(ctx context.Context, cfg config.KurrentDBConfig) (EventBus, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	bus, err := NewBus(timeoutCtx, cfg)
	if err != nil {
		return nil, err
	}

	if err := bus.Health(); err != nil {
		bus.Close()
		return nil, fmt.Errorf("KurrentDB health check failed: %w", err)
	}

	return bus, nil
}

var (
	_ EventBus = (*Bus)(nil)
	_ EventBus = (*AMQPBus)(nil)
	_ EventBus = (*LocalBus)(nil)
)
