package domain

import (
	"context"
	"errors"
	"time"

	"github.com/gramseva/complaint-portal/internal/shared/types"
)

var (
	// ErrVersionMismatch is returned by Update when the stored record moved on
	ErrVersionMismatch = errors.New("record version mismatch")

	// ErrDuplicateComplaintCode is returned by Create when the code is taken
	ErrDuplicateComplaintCode = errors.New("duplicate complaint code")

	// ErrDuplicatePhone is returned by technician Create when the phone is taken
	ErrDuplicatePhone = errors.New("duplicate technician phone")
)

// ComplaintRepository persists complaints. Update is a compare-and-swap on
// Version: it succeeds only when the stored version equals c.Version and
// then increments c.Version.
type ComplaintRepository interface {
	Create(ctx context.Context, c *Complaint) error
	FindByID(ctx context.Context, id types.ID) (*Complaint, error)
	FindByComplaintID(ctx context.Context, code string) (*Complaint, error)
	Update(ctx context.Context, c *Complaint) error

	// Find returns every match ordered by creation time, newest first
	Find(ctx context.Context, filter ComplaintFilter) ([]Complaint, error)
	List(ctx context.Context, filter ComplaintFilter, page Page) ([]Complaint, int, error)
	Count(ctx context.Context, filter ComplaintFilter) (int, error)
}

// TechnicianRepository persists technicians with the same CAS contract
type TechnicianRepository interface {
	Create(ctx context.Context, t *Technician) error
	FindByID(ctx context.Context, id types.ID) (*Technician, error)
	FindByUserID(ctx context.Context, userID types.ID) (*Technician, error)
	Update(ctx context.Context, t *Technician) error

	// Delete removes the technician if its stored version still equals version
	Delete(ctx context.Context, id types.ID, version int) error

	List(ctx context.Context, filter TechnicianFilter, page Page) ([]Technician, int, error)
	Count(ctx context.Context, filter TechnicianFilter) (int, error)
}

// ComplaintFilter narrows a complaint query. Zero fields do not filter.
type ComplaintFilter struct {
	// CreatedFrom and CreatedTo bound creation time, both inclusive
	CreatedFrom *time.Time `json:"created_from,omitempty"`
	CreatedTo   *time.Time `json:"created_to,omitempty"`

	Category     *Category `json:"category,omitempty"`
	Status       *Status   `json:"status,omitempty"`
	Statuses     []Status  `json:"statuses,omitempty"`
	Priority     *Priority `json:"priority,omitempty"`
	AssignedTo   *types.ID `json:"assigned_to,omitempty"`
	CitizenPhone string    `json:"citizen_phone,omitempty"`
}

// Matches reports whether c satisfies the filter
func (f ComplaintFilter) Matches(c *Complaint) bool {
	if f.CreatedFrom != nil && c.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && c.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.Category != nil && c.Category != *f.Category {
		return false
	}
	if f.Status != nil && c.Status != *f.Status {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if c.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Priority != nil && c.Priority != *f.Priority {
		return false
	}
	if f.AssignedTo != nil && !c.IsAssignedTo(*f.AssignedTo) {
		return false
	}
	if f.CitizenPhone != "" && c.CitizenPhone != f.CitizenPhone {
		return false
	}
	return true
}

// TechnicianFilter narrows a technician query
type TechnicianFilter struct {
	Specialization *Category `json:"specialization,omitempty"`
	IsAvailable    *bool     `json:"is_available,omitempty"`
}

// Matches reports whether t satisfies the filter
func (f TechnicianFilter) Matches(t *Technician) bool {
	if f.Specialization != nil && !t.CanHandle(*f.Specialization) {
		return false
	}
	if f.IsAvailable != nil && t.IsAvailable != *f.IsAvailable {
		return false
	}
	return true
}

// Page selects a window of a sorted result
type Page struct {
	Page     int    `json:"page"`
	Limit    int    `json:"limit"`
	SortBy   string `json:"sort_by,omitempty"`
	SortDesc bool   `json:"sort_desc"`
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize applies defaults and bounds
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	switch p.SortBy {
	case "created_at", "updated_at", "priority", "status", "category", "complaint_id", "name":
	default:
		p.SortBy = ""
	}
	return p
}

// Offset is the number of records skipped before the page
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}
