package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gramseva/complaint-portal/internal/shared/types"
)

// Event represents a domain event
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`

	// Subject is the aggregate the event is about, e.g. a complaint ID
	Subject string `json:"subject,omitempty"`

	// Actor information
	ActorID   types.ID `json:"actor_id,omitempty"`
	ActorRole string   `json:"actor_role,omitempty"` // citizen, technician, admin, system

	// Event data
	Data any `json:"data"`
}

// NewEvent creates a new event with auto-generated ID and timestamp
func NewEvent(eventType, source string, data any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// WithActor sets the actor information on the event
func (e Event) WithActor(actorID types.ID, actorRole string) Event {
	e.ActorID = actorID
	e.ActorRole = actorRole
	return e
}

// WithSubject sets the aggregate the event belongs to
func (e Event) WithSubject(subject string) Event {
	e.Subject = subject
	return e
}

// WithCorrelation sets the correlation ID for request tracing
func (e Event) WithCorrelation(correlationID string) Event {
	e.CorrelationID = correlationID
	return e
}

// DecodeData decodes the payload into v. Events read back from a broker
// carry their payload as generic JSON, so this goes through a round trip.
func (e Event) DecodeData(v any) error {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode event data: %w", err)
	}
	return nil
}

// Handler is a function that handles an event
type Handler func(ctx context.Context, event Event) error

// matchesPattern checks if an event type matches a wildcard pattern.
// "complaint.*" matches "complaint.created"; "*" matches everything.
func matchesPattern(eventType, pattern string) bool {
	if pattern == "*" || pattern == ">" {
		return true
	}

	patternParts := strings.Split(pattern, ".")
	typeParts := strings.Split(eventType, ".")

	for i, pp := range patternParts {
		if pp == "*" {
			return true
		}
		if i >= len(typeParts) || pp != typeParts[i] {
			return false
		}
	}

	return len(patternParts) == len(typeParts)
}

// patternToRegex converts a wildcard pattern to a KurrentDB filter regex
func patternToRegex(pattern string) string {
	if pattern == "*" || pattern == ">" {
		return ".*"
	}
	return "^" + strings.ReplaceAll(strings.ReplaceAll(pattern, ".", `\.`), "*", ".*")
}

// streamName maps an event to its stream: one stream per aggregate
// instance when the subject is known, otherwise one per event type
func streamName(prefix string, e Event) string {
	if e.Subject != "" {
		aggregate, _, _ := strings.Cut(e.Type, ".")
		return fmt.Sprintf("%s-%s-%s", prefix, aggregate, e.Subject)
	}
	return fmt.Sprintf("%s-%s", prefix, strings.ReplaceAll(e.Type, ".", "-"))
}
