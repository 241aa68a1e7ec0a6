package service

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/gramseva/complaint-portal/internal/complaint/domain"
	"github.com/gramseva/complaint-portal/internal/shared/errors"
	"github.com/gramseva/complaint-portal/internal/shared/metrics"
	"github.com/gramseva/complaint-portal/internal/shared/types"
)

// CreateComplaint validates and files a new complaint. Its code carries the
// filing month and the lifetime sequence: one more than the number of
// complaints ever filed.
func (s *Service) CreateComplaint(ctx context.Context, in domain.NewComplaintInput, actor Actor) (*domain.Complaint, error) {
	now := s.now()
	c, err := domain.NewComplaint(in, actor.ID, now)
	if err != nil {
		return nil, err
	}

	local := now.In(s.location)
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		count, err := s.complaints.Count(ctx, domain.ComplaintFilter{})
		if err != nil {
			return nil, err
		}

		code, err := domain.FormatComplaintCode(local, count+1+attempt)
		if err != nil {
			return nil, errors.Wrap(err, "failed to allocate complaint code")
		}
		c.ComplaintID = code

		err = s.complaints.Create(ctx, c)
		if err == nil {
			metrics.RecordComplaintCreated(string(c.Category))
			s.publish(ctx, domain.EventComplaintCreated, c.ID, actor, domain.NewComplaintEventData(c))
			return c, nil
		}
		if !stderrors.Is(err, domain.ErrDuplicateComplaintCode) {
			return nil, err
		}
		metrics.RecordOptimisticRetry("complaint_code")
	}

	metrics.RecordOptimisticConflict("complaint_code")
	return nil, errors.Conflict("could not allocate a complaint code, please retry")
}

// GetComplaint looks a complaint up by internal ID or by CMP code
func (s *Service) GetComplaint(ctx context.Context, ref string) (*domain.Complaint, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case domain.IsComplaintCode(ref):
		return s.complaints.FindByComplaintID(ctx, ref)
	case types.IsValidID(ref):
		return s.complaints.FindByID(ctx, types.ID(ref))
	default:
		return nil, errors.NotFound("complaint", ref)
	}
}

// ListComplaints returns one page of complaints and the total match count
func (s *Service) ListComplaints(ctx context.Context, filter domain.ComplaintFilter, page domain.Page) ([]domain.Complaint, int, error) {
	return s.complaints.List(ctx, filter, page.Normalize())
}

// AdvanceStatus moves a complaint along the lifecycle. Resolving an already
// resolved complaint returns it unchanged.
func (s *Service) AdvanceStatus(ctx context.Context, ref string, to domain.Status, notes string, actor Actor) (*domain.Complaint, error) {
	return s.transition(ctx, ref, to, notes, actor, nil)
}

// ResolveInput carries what a technician submits on resolution
type ResolveInput struct {
	Notes  string
	Images []domain.Image
}

// ResolveComplaint records resolution notes and photos and moves the
// complaint to resolved
func (s *Service) ResolveComplaint(ctx context.Context, ref string, in ResolveInput, actor Actor) (*domain.Complaint, error) {
	return s.transition(ctx, ref, domain.StatusResolved, "", actor, func(c *domain.Complaint) {
		c.SetResolution(in.Notes, in.Images, s.now())
	})
}

func (s *Service) transition(ctx context.Context, ref string, to domain.Status, notes string, actor Actor, prepare func(c *domain.Complaint)) (*domain.Complaint, error) {
	current, err := s.GetComplaint(ctx, ref)
	if err != nil {
		return nil, err
	}

	var result domain.TransitionResult
	c, err := s.mutateComplaint(ctx, current.ID, func(c *domain.Complaint) error {
		result = domain.TransitionResult{}
		if to == domain.StatusResolved && c.Status == domain.StatusResolved {
			return errNoChange
		}
		if prepare != nil && domain.CanTransition(c.Status, to) {
			prepare(c)
		}
		r, err := c.Transition(to, actor.ID, notes, s.now())
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.To == "" {
		// idempotent resolve
		return c, nil
	}

	// The complaint write has committed; ledger failures below are
	// reported after the events go out.
	var ledgerErrs []error
	if result.Resolved && result.Resolver != nil {
		hours := result.ResolutionHours
		ledgerErrs = append(ledgerErrs, s.adjustLedger(ctx, *result.Resolver, "resolve", func(t *domain.Technician) {
			t.OnResolve(hours)
		}))
		metrics.RecordResolution(string(c.Category), hours)
	}
	if result.Released != nil {
		ledgerErrs = append(ledgerErrs, s.adjustLedger(ctx, *result.Released, "release", func(t *domain.Technician) {
			t.OnUnassignOrReject()
		}))
	}

	metrics.RecordStatusChange(string(result.From), string(result.To))

	data := domain.NewComplaintEventData(c)
	data.FromStatus = result.From
	data.Notes = strings.TrimSpace(notes)
	if result.Released != nil {
		data.PreviousTechnicianID = result.Released
	}
	s.publish(ctx, domain.EventComplaintStatusChanged, c.ID, actor, data)
	switch result.To {
	case domain.StatusResolved:
		s.publish(ctx, domain.EventComplaintResolved, c.ID, actor, data)
	case domain.StatusRejected:
		s.publish(ctx, domain.EventComplaintRejected, c.ID, actor, data)
	}

	if err := stderrors.Join(ledgerErrs...); err != nil {
		return nil, err
	}
	return c, nil
}

// AddInternalNote appends a staff-only note to a complaint
func (s *Service) AddInternalNote(ctx context.Context, ref string, note string, actor Actor) (*domain.Complaint, error) {
	current, err := s.GetComplaint(ctx, ref)
	if err != nil {
		return nil, err
	}

	c, err := s.mutateComplaint(ctx, current.ID, func(c *domain.Complaint) error {
		return c.AddNote(note, actor.ID, s.now())
	})
	if err != nil {
		return nil, err
	}

	data := domain.NewComplaintEventData(c)
	data.Notes = strings.TrimSpace(note)
	s.publish(ctx, domain.EventComplaintNoteAdded, c.ID, actor, data)
	return c, nil
}
