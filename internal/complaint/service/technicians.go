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

// CreateTechnicianInput carries the fields of a new technician profile
type CreateTechnicianInput struct {
	UserID         types.ID
	Name           string
	Phone          string
	Specialization []domain.Category
	Location       *types.GeoPoint
}

// CreateTechnician registers a technician with an empty workload ledger
func (s *Service) CreateTechnician(ctx context.Context, in CreateTechnicianInput, actor Actor) (*domain.Technician, error) {
	t, err := domain.NewTechnician(in.UserID, in.Name, in.Phone, in.Specialization, s.now())
	if err != nil {
		return nil, err
	}
	if in.Location != nil {
		if err := in.Location.Validate(); err != nil {
			return nil, errors.Validation("invalid location", map[string]string{"location": err.Error()})
		}
		loc := *in.Location
		t.Location = &loc
	}

	if err := s.technicians.Create(ctx, t); err != nil {
		if stderrors.Is(err, domain.ErrDuplicatePhone) {
			return nil, errors.Conflict("technician with this phone already exists")
		}
		return nil, err
	}

	s.publish(ctx, domain.EventTechnicianCreated, t.ID, actor, technicianEventData(t))
	return t, nil
}

// TechnicianDetail is a technician with the complaints currently in its queue
type TechnicianDetail struct {
	*domain.Technician
	AssignedComplaints []domain.Complaint `json:"assigned_complaints"`
}

// GetTechnician returns a technician and its active complaints
func (s *Service) GetTechnician(ctx context.Context, id types.ID) (*TechnicianDetail, error) {
	t, err := s.technicians.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	active, err := s.complaints.Find(ctx, domain.ComplaintFilter{
		AssignedTo: &t.ID,
		Statuses:   domain.ActiveStatuses,
	})
	if err != nil {
		return nil, err
	}

	return &TechnicianDetail{Technician: t, AssignedComplaints: active}, nil
}

// GetTechnicianByUser returns the technician profile of a user account
func (s *Service) GetTechnicianByUser(ctx context.Context, userID types.ID) (*domain.Technician, error) {
	return s.technicians.FindByUserID(ctx, userID)
}

// ListTechnicians returns one page of technicians
func (s *Service) ListTechnicians(ctx context.Context, filter domain.TechnicianFilter, page domain.Page) ([]domain.Technician, int, error) {
	return s.technicians.List(ctx, filter, page.Normalize())
}

// UpdateTechnicianInput holds the editable profile fields; nil leaves a field alone
type UpdateTechnicianInput struct {
	Name           *string
	Phone          *string
	Specialization []domain.Category
	IsAvailable    *bool
	Location       *types.GeoPoint
}

// UpdateTechnician edits profile fields. Workload counters are never
// touched here.
func (s *Service) UpdateTechnician(ctx context.Context, id types.ID, in UpdateTechnicianInput, actor Actor) (*domain.Technician, error) {
	if in.Location != nil {
		if err := in.Location.Validate(); err != nil {
			return nil, errors.Validation("invalid location", map[string]string{"location": err.Error()})
		}
	}

	t, err := s.mutateTechnician(ctx, id, func(t *domain.Technician) error {
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return errors.Validation("invalid technician", map[string]string{"name": "is required"})
			}
			t.Name = name
		}
		if in.Phone != nil {
			phone := types.NormalizePhone(*in.Phone)
			if !types.IsValidMobile(phone) {
				return errors.Validation("invalid technician", map[string]string{"phone": "must be a 10-digit mobile number"})
			}
			t.Phone = phone
		}
		if in.Specialization != nil {
			if err := t.SetSpecialization(in.Specialization); err != nil {
				return err
			}
		}
		if in.IsAvailable != nil {
			t.IsAvailable = *in.IsAvailable
		}
		if in.Location != nil {
			loc := *in.Location
			t.Location = &loc
		}
		t.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.EventTechnicianUpdated, t.ID, actor, technicianEventData(t))
	return t, nil
}

// UpdateTechnicianLocation records the current position of the
// technician profile belonging to userID
func (s *Service) UpdateTechnicianLocation(ctx context.Context, userID types.ID, point types.GeoPoint) (*domain.Technician, error) {
	if err := point.Validate(); err != nil {
		return nil, errors.Validation("invalid location", map[string]string{"location": err.Error()})
	}

	current, err := s.technicians.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return s.mutateTechnician(ctx, current.ID, func(t *domain.Technician) error {
		p := point
		t.Location = &p
		t.UpdatedAt = s.now()
		return nil
	})
}

// ReconcileWorkload rebuilds a technician's ledger from the complaints
// that reference it: active count from assigned and in-progress
// complaints, resolution totals from resolved ones. It repairs counters
// left behind when a ledger update was reported as failed.
func (s *Service) ReconcileWorkload(ctx context.Context, id types.ID, actor Actor) (*domain.Technician, error) {
	active, err := s.complaints.Count(ctx, domain.ComplaintFilter{
		AssignedTo: &id,
		Statuses:   domain.ActiveStatuses,
	})
	if err != nil {
		return nil, err
	}

	resolvedStatus := domain.StatusResolved
	resolved, err := s.complaints.Find(ctx, domain.ComplaintFilter{
		AssignedTo: &id,
		Status:     &resolvedStatus,
	})
	if err != nil {
		return nil, err
	}
	var resolvedCount, totalHours int
	for i := range resolved {
		if h := resolved[i].ActualResolutionTime; h != nil {
			resolvedCount++
			totalHours += *h
		}
	}

	t, err := s.mutateTechnician(ctx, id, func(t *domain.Technician) error {
		t.ResetLedger(active, resolvedCount, totalHours)
		t.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.EventTechnicianUpdated, t.ID, actor, technicianEventData(t))
	return t, nil
}

// DeleteTechnician removes a technician with an empty queue. The check
// uses both the ledger counter and a live count of active complaints, and
// the delete itself is conditional on the version read.
func (s *Service) DeleteTechnician(ctx context.Context, id types.ID, actor Actor) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		t, err := s.technicians.FindByID(ctx, id)
		if err != nil {
			return err
		}

		live, err := s.complaints.Count(ctx, domain.ComplaintFilter{
			AssignedTo: &t.ID,
			Statuses:   domain.ActiveStatuses,
		})
		if err != nil {
			return err
		}
		if active := max(t.ActiveComplaints, live); active > 0 {
			return errors.HasActiveWork(t.ID.String(), active)
		}

		err = s.technicians.Delete(ctx, t.ID, t.Version)
		if err == nil {
			s.publish(ctx, domain.EventTechnicianDeleted, t.ID, actor, technicianEventData(t))
			return nil
		}
		if !stderrors.Is(err, domain.ErrVersionMismatch) {
			return err
		}
		metrics.RecordOptimisticRetry("technician")
	}

	metrics.RecordOptimisticConflict("technician")
	return errors.Conflict("technician was modified concurrently, please retry")
}

func technicianEventData(t *domain.Technician) domain.TechnicianEventData {
	return domain.TechnicianEventData{
		ID:             t.ID,
		Name:           t.Name,
		Specialization: t.Specialization,
		IsAvailable:    t.IsAvailable,
	}
}
