package service

import (
	"context"
	stderrors "errors"
	"log"

	"github.com/gramseva/complaint-portal/internal/complaint/domain"
	"github.com/gramseva/complaint-portal/internal/shared/errors"
	"github.com/gramseva/complaint-portal/internal/shared/metrics"
	"github.com/gramseva/complaint-portal/internal/shared/types"
)

// AssignComplaint hands a complaint to a technician whose specialization
// covers its category. Reassigning moves one unit of workload from the
// previous technician to the new one.
//
// The new technician is charged before the complaint is written, so a
// concurrent delete of that technician fails its version check instead of
// leaving a complaint pointing at a removed record. If the complaint write
// then fails the charge is refunded.
func (s *Service) AssignComplaint(ctx context.Context, ref string, technicianID types.ID, opts domain.AssignOptions, actor Actor) (*domain.Complaint, error) {
	current, err := s.GetComplaint(ctx, ref)
	if err != nil {
		return nil, err
	}
	tech, err := s.technicians.FindByID(ctx, technicianID)
	if err != nil {
		return nil, err
	}

	if !tech.CanHandle(current.Category) {
		return nil, errors.SpecializationMismatch(tech.SpecializationString(), string(current.Category))
	}
	if !domain.CanAssign(current.Status) {
		return nil, errors.InvalidTransition(string(current.Status), string(domain.StatusAssigned))
	}

	if current.IsAssignedTo(tech.ID) {
		return s.mutateComplaint(ctx, current.ID, func(c *domain.Complaint) error {
			if !c.IsAssignedTo(tech.ID) {
				return errors.Conflict("complaint was reassigned concurrently, please retry")
			}
			_, err := c.AssignTo(tech.ID, opts, actor.ID, s.now())
			return err
		})
	}

	tech, err = s.mutateTechnician(ctx, tech.ID, func(t *domain.Technician) error {
		if !t.CanHandle(current.Category) {
			return errors.SpecializationMismatch(t.SpecializationString(), string(current.Category))
		}
		t.OnAssign()
		t.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	var (
		previous     *types.ID
		fromStatus   domain.Status
		alreadyOwned bool
	)
	c, err := s.mutateComplaint(ctx, current.ID, func(c *domain.Complaint) error {
		previous, fromStatus, alreadyOwned = nil, c.Status, c.IsAssignedTo(tech.ID)
		p, err := c.AssignTo(tech.ID, opts, actor.ID, s.now())
		if err != nil {
			return err
		}
		previous = p
		return nil
	})
	if err != nil || alreadyOwned {
		refundErr := s.adjustLedger(ctx, tech.ID, "refund", func(t *domain.Technician) {
			t.OnUnassignOrReject()
		})
		if err != nil {
			return nil, stderrors.Join(err, refundErr)
		}
		if refundErr != nil {
			return nil, refundErr
		}
		return c, nil
	}

	// The complaint now points at tech; a failed release leaves the
	// previous technician over-counted and is reported to the caller.
	var releaseErr error
	if previous != nil {
		releaseErr = s.adjustLedger(ctx, *previous, "release", func(t *domain.Technician) {
			t.OnUnassignOrReject()
		})
	}

	metrics.RecordAssignment(string(c.Category), previous != nil)
	if fromStatus != domain.StatusAssigned {
		metrics.RecordStatusChange(string(fromStatus), string(domain.StatusAssigned))
	}

	data := domain.NewComplaintEventData(c)
	data.FromStatus = fromStatus
	data.TechnicianName = tech.Name
	data.PreviousTechnicianID = previous
	s.publish(ctx, domain.EventComplaintAssigned, c.ID, actor, data)

	if releaseErr != nil {
		return nil, releaseErr
	}
	if previous != nil {
		log.Printf("Complaint %s reassigned from %s to %s", c.ComplaintID, *previous, tech.ID)
	}
	return c, nil
}
