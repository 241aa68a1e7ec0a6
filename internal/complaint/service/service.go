package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gramseva/complaint-portal/internal/complaint/domain"
	"github.com/gramseva/complaint-portal/internal/shared/errors"
	"github.com/gramseva/complaint-portal/internal/shared/events"
	"github.com/gramseva/complaint-portal/internal/shared/metrics"
	"github.com/gramseva/complaint-portal/internal/shared/types"
)

const eventSource = "complaint-service"

// errNoChange aborts a mutation without writing
var errNoChange = stderrors.New("no change")

// Actor is whoever triggered an operation. The engine records it in the
// status history and never makes authorization decisions on it.
type Actor struct {
	ID   types.ID
	Role string
}

// SystemActor is used for operations with no human initiator
var SystemActor = Actor{Role: "system"}

// Service coordinates complaints and technicians. Every mutation is a
// read, modify, compare-and-swap loop against the repositories.
type Service struct {
	complaints  domain.ComplaintRepository
	technicians domain.TechnicianRepository

	bus        events.EventBus
	busName    string
	now        func() time.Time
	location   *time.Location
	maxRetries int
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMaxRetries bounds optimistic-concurrency retries
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithEvents publishes lifecycle events on bus
func WithEvents(bus events.EventBus, name string) Option {
	return func(s *Service) {
		s.bus = bus
		s.busName = name
	}
}

// WithLocation sets the zone whose calendar month prefixes complaint codes
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// NewService creates the complaint service
func NewService(complaints domain.ComplaintRepository, technicians domain.TechnicianRepository, opts ...Option) *Service {
	s := &Service{
		complaints:  complaints,
		technicians: technicians,
		now:         time.Now,
		location:    time.Local,
		maxRetries:  5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the service clock's current time
func (s *Service) Now() time.Time {
	return s.now()
}

// mutateComplaint applies fn to a fresh copy of the complaint and writes it
// back. A lost race re-reads and re-applies fn, up to maxRetries times.
func (s *Service) mutateComplaint(ctx context.Context, id types.ID, fn func(c *domain.Complaint) error) (*domain.Complaint, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		c, err := s.complaints.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if err := fn(c); err != nil {
			if err == errNoChange {
				return c, nil
			}
			return nil, err
		}

		err = s.complaints.Update(ctx, c)
		if err == nil {
			return c, nil
		}
		if !stderrors.Is(err, domain.ErrVersionMismatch) {
			return nil, err
		}
		metrics.RecordOptimisticRetry("complaint")
	}

	metrics.RecordOptimisticConflict("complaint")
	return nil, errors.Conflict("complaint was modified concurrently, please retry")
}

// mutateTechnician is mutateComplaint for technician records
func (s *Service) mutateTechnician(ctx context.Context, id types.ID, fn func(t *domain.Technician) error) (*domain.Technician, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		t, err := s.technicians.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if err := fn(t); err != nil {
			if err == errNoChange {
				return t, nil
			}
			return nil, err
		}

		err = s.technicians.Update(ctx, t)
		if err == nil {
			return t, nil
		}
		if stderrors.Is(err, domain.ErrDuplicatePhone) {
			return nil, errors.Conflict("technician with this phone already exists")
		}
		if !stderrors.Is(err, domain.ErrVersionMismatch) {
			return nil, err
		}
		metrics.RecordOptimisticRetry("technician")
	}

	metrics.RecordOptimisticConflict("technician")
	return nil, errors.Conflict("technician was modified concurrently, please retry")
}

// adjustLedger applies a counter change to a technician after the
// complaint write has committed. A technician deleted in the meantime has
// no ledger left to adjust. Any other failure, including exhausted
// retries, is returned so the caller can report it.
func (s *Service) adjustLedger(ctx context.Context, technicianID types.ID, op string, fn func(t *domain.Technician)) error {
	_, err := s.mutateTechnician(ctx, technicianID, func(t *domain.Technician) error {
		fn(t)
		t.UpdatedAt = s.now()
		return nil
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, errors.ErrNotFound) {
		log.Printf("Ledger %s skipped: technician %s no longer exists", op, technicianID)
		return nil
	}
	log.Printf("Ledger %s failed for technician %s: %v", op, technicianID, err)
	return errors.Wrap(err, fmt.Sprintf("workload %s for technician %s not recorded", op, technicianID))
}

func (s *Service) publish(ctx context.Context, eventType string, subject types.ID, actor Actor, data any) {
	if s.bus == nil {
		return
	}

	event := events.NewEvent(eventType, eventSource, data).
		WithSubject(subject.String()).
		WithActor(actor.ID, actor.Role)
	event.Timestamp = s.now().UTC()
	// ties the event to the HTTP request log line
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		event = event.WithCorrelation(reqID)
	}

	err := s.bus.Publish(ctx, event)
	metrics.RecordEventPublished(s.busName, eventType, err)
	if err != nil {
		log.Printf("Failed to publish %s for %s: %v", eventType, subject, err)
	}
}
