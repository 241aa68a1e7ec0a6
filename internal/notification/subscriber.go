package notification

import (
	"context"
	"fmt"

	"github.com/gramseva/complaint-portal/internal/complaint/domain"
	"github.com/gramseva/complaint-portal/internal/shared/events"
)

// Subscriber turns complaint lifecycle events into citizen messages
type Subscriber struct {
	svc *Service
	bus events.EventBus
}

// NewSubscriber creates a new notification subscriber
func NewSubscriber(svc *Service, bus events.EventBus) *Subscriber {
	return &Subscriber{svc: svc, bus: bus}
}

// Start subscribes to the events citizens are told about
func (s *Subscriber) Start(ctx context.Context) error {
	patterns := []struct {
		pattern      string
		consumerName string
	}{
		{domain.EventComplaintCreated, "notify-complaint-created"},
		{domain.EventComplaintAssigned, "notify-complaint-assigned"},
		{domain.EventComplaintResolved, "notify-complaint-resolved"},
		{domain.EventComplaintRejected, "notify-complaint-rejected"},
	}

	for _, p := range patterns {
		if err := s.bus.Subscribe(ctx, p.pattern, p.consumerName, s.handleEvent); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", p.pattern, err)
		}
	}

	return nil
}

func (s *Subscriber) handleEvent(ctx context.Context, event events.Event) error {
	var data domain.ComplaintEventData
	if err := event.DecodeData(&data); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", event.Type, err)
	}

	body := messageFor(event.Type, data)
	if body == "" || data.CitizenPhone == "" {
		return nil
	}

	return s.svc.Enqueue(&Notification{
		Phone:       data.CitizenPhone,
		Name:        data.CitizenName,
		Body:        body,
		ComplaintID: data.ComplaintID,
		EventID:     event.ID,
		EventType:   event.Type,
	})
}

// messageFor renders the SMS text for an event, or "" for events
// citizens are not told about
func messageFor(eventType string, d domain.ComplaintEventData) string {
	switch eventType {
	case domain.EventComplaintCreated:
		return fmt.Sprintf("Your %s complaint has been registered. Track it with ID %s.", d.Category, d.ComplaintID)
	case domain.EventComplaintAssigned:
		if d.TechnicianName != "" {
			return fmt.Sprintf("Complaint %s has been assigned to %s.", d.ComplaintID, d.TechnicianName)
		}
		return fmt.Sprintf("Complaint %s has been assigned to a technician.", d.ComplaintID)
	case domain.EventComplaintResolved:
		return fmt.Sprintf("Complaint %s has been resolved. Thank you for reporting it.", d.ComplaintID)
	case domain.EventComplaintRejected:
		return fmt.Sprintf("Complaint %s was closed without action. Please contact the office for details.", d.ComplaintID)
	}
	return ""
}
