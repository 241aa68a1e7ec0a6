package infrastructure

import (
	"context"
	"sort"
	"sync"

	"github.com/gramseva/complaint-portal/internal/complaint/domain"
	"github.com/gramseva/complaint-portal/internal/shared/errors"
	"github.com/gramseva/complaint-portal/internal/shared/types"
)

// MemoryComplaintRepository is an in-process domain.ComplaintRepository used
// by tests and by the server when no database is configured.
type MemoryComplaintRepository struct {
	mu     sync.RWMutex
	byID   map[types.ID]*domain.Complaint
	byCode map[string]types.ID
}

// NewMemoryComplaintRepository creates an empty repository
func NewMemoryComplaintRepository() *MemoryComplaintRepository {
	return &MemoryComplaintRepository{
		byID:   make(map[types.ID]*domain.Complaint),
		byCode: make(map[string]types.ID),
	}
}

// Create stores a new complaint
func (r *MemoryComplaintRepository) Create(ctx context.Context, c *domain.Complaint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[c.ID]; ok {
		return errors.Conflict("complaint already exists")
	}
	if _, ok := r.byCode[c.ComplaintID]; ok {
		return domain.ErrDuplicateComplaintCode
	}

	c.Version = 1
	r.byID[c.ID] = cloneComplaint(c)
	r.byCode[c.ComplaintID] = c.ID
	return nil
}

// FindByID returns a copy of the stored complaint
func (r *MemoryComplaintRepository) FindByID(ctx context.Context, id types.ID) (*domain.Complaint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, errors.NotFound("complaint", id.String())
	}
	return cloneComplaint(c), nil
}

// FindByComplaintID looks a complaint up by its human-facing code
func (r *MemoryComplaintRepository) FindByComplaintID(ctx context.Context, code string) (*domain.Complaint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCode[code]
	if !ok {
		return nil, errors.NotFound("complaint", code)
	}
	return cloneComplaint(r.byID[id]), nil
}

// Update replaces the complaint if its version is current
func (r *MemoryComplaintRepository) Update(ctx context.Context, c *domain.Complaint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[c.ID]
	if !ok {
		return errors.NotFound("complaint", c.ID.String())
	}
	if stored.Version != c.Version {
		return domain.ErrVersionMismatch
	}

	c.Version++
	r.byID[c.ID] = cloneComplaint(c)
	return nil
}

// Find returns every matching complaint, newest first
func (r *MemoryComplaintRepository) Find(ctx context.Context, filter domain.ComplaintFilter) ([]domain.Complaint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := r.match(filter)
	sortComplaints(result, "created_at", true)
	return result, nil
}

// List returns one page of matching complaints and the total match count
func (r *MemoryComplaintRepository) List(ctx context.Context, filter domain.ComplaintFilter, page domain.Page) ([]domain.Complaint, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	page = page.Normalize()
	result := r.match(filter)
	total := len(result)

	sortBy, desc := page.SortBy, page.SortDesc
	if sortBy == "" {
		sortBy, desc = "created_at", true
	}
	sortComplaints(result, sortBy, desc)

	start := min(page.Offset(), total)
	end := min(start+page.Limit, total)
	return result[start:end], total, nil
}

// Count returns the number of matching complaints
func (r *MemoryComplaintRepository) Count(ctx context.Context, filter domain.ComplaintFilter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, c := range r.byID {
		if filter.Matches(c) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryComplaintRepository) match(filter domain.ComplaintFilter) []domain.Complaint {
	result := make([]domain.Complaint, 0)
	for _, c := range r.byID {
		if filter.Matches(c) {
			result = append(result, *cloneComplaint(c))
		}
	}
	return result
}

func sortComplaints(list []domain.Complaint, sortBy string, desc bool) {
	less := func(a, b *domain.Complaint) bool {
		switch sortBy {
		case "updated_at":
			return a.UpdatedAt.Before(b.UpdatedAt)
		case "priority":
			return priorityRank(a.Priority) < priorityRank(b.Priority)
		case "status":
			return a.Status < b.Status
		case "category":
			return a.Category < b.Category
		case "complaint_id":
			return a.ComplaintID < b.ComplaintID
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if desc {
			return less(&list[j], &list[i])
		}
		return less(&list[i], &list[j])
	})
}

func priorityRank(p domain.Priority) int {
	for i, known := range domain.Priorities {
		if p == known {
			return i
		}
	}
	return -1
}

func cloneComplaint(c *domain.Complaint) *domain.Complaint {
	cp := *c
	cp.Images = append([]domain.Image(nil), c.Images...)
	cp.ResolutionImages = append([]domain.Image{}, c.ResolutionImages...)
	cp.StatusHistory = append([]domain.StatusChange(nil), c.StatusHistory...)
	cp.InternalNotes = append([]domain.InternalNote(nil), c.InternalNotes...)
	if c.AssignedTo != nil {
		cp.AssignedTo = c.AssignedTo.Ptr()
	}
	if c.AssignedAt != nil {
		t := *c.AssignedAt
		cp.AssignedAt = &t
	}
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		cp.ResolvedAt = &t
	}
	if c.EstimatedResolutionTime != nil {
		t := *c.EstimatedResolutionTime
		cp.EstimatedResolutionTime = &t
	}
	if c.ActualResolutionTime != nil {
		h := *c.ActualResolutionTime
		cp.ActualResolutionTime = &h
	}
	return &cp
}

// MemoryTechnicianRepository is the in-process domain.TechnicianRepository
type MemoryTechnicianRepository struct {
	mu   sync.RWMutex
	byID map[types.ID]*domain.Technician
}

// NewMemoryTechnicianRepository creates an empty repository
func NewMemoryTechnicianRepository() *MemoryTechnicianRepository {
	return &MemoryTechnicianRepository{byID: make(map[types.ID]*domain.Technician)}
}

// Create stores a new technician; phone numbers are unique
func (r *MemoryTechnicianRepository) Create(ctx context.Context, t *domain.Technician) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[t.ID]; ok {
		return errors.Conflict("technician already exists")
	}
	for _, existing := range r.byID {
		if existing.Phone == t.Phone {
			return domain.ErrDuplicatePhone
		}
	}

	t.Version = 1
	r.byID[t.ID] = cloneTechnician(t)
	return nil
}

// FindByID returns a copy of the stored technician
func (r *MemoryTechnicianRepository) FindByID(ctx context.Context, id types.ID) (*domain.Technician, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	if !ok {
		return nil, errors.NotFound("technician", id.String())
	}
	return cloneTechnician(t), nil
}

// FindByUserID returns the technician profile of a user account
func (r *MemoryTechnicianRepository) FindByUserID(ctx context.Context, userID types.ID) (*domain.Technician, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.byID {
		if t.UserID == userID {
			return cloneTechnician(t), nil
		}
	}
	return nil, errors.NotFound("technician", userID.String())
}

// Update replaces the technician if its version is current
func (r *MemoryTechnicianRepository) Update(ctx context.Context, t *domain.Technician) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[t.ID]
	if !ok {
		return errors.NotFound("technician", t.ID.String())
	}
	if stored.Version != t.Version {
		return domain.ErrVersionMismatch
	}
	for id, existing := range r.byID {
		if id != t.ID && existing.Phone == t.Phone {
			return domain.ErrDuplicatePhone
		}
	}

	t.Version++
	r.byID[t.ID] = cloneTechnician(t)
	return nil
}

// Delete removes the technician if version is current
func (r *MemoryTechnicianRepository) Delete(ctx context.Context, id types.ID, version int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[id]
	if !ok {
		return errors.NotFound("technician", id.String())
	}
	if stored.Version != version {
		return domain.ErrVersionMismatch
	}
	delete(r.byID, id)
	return nil
}

// List returns one page of matching technicians ordered by name
func (r *MemoryTechnicianRepository) List(ctx context.Context, filter domain.TechnicianFilter, page domain.Page) ([]domain.Technician, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	page = page.Normalize()
	result := make([]domain.Technician, 0)
	for _, t := range r.byID {
		if filter.Matches(t) {
			result = append(result, *cloneTechnician(t))
		}
	}
	total := len(result)

	sort.SliceStable(result, func(i, j int) bool {
		a, b := &result[i], &result[j]
		if page.SortDesc {
			a, b = b, a
		}
		if page.SortBy == "created_at" {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Name < b.Name
	})

	start := min(page.Offset(), total)
	end := min(start+page.Limit, total)
	return result[start:end], total, nil
}

// Count returns the number of matching technicians
func (r *MemoryTechnicianRepository) Count(ctx context.Context, filter domain.TechnicianFilter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, t := range r.byID {
		if filter.Matches(t) {
			n++
		}
	}
	return n, nil
}

func cloneTechnician(t *domain.Technician) *domain.Technician {
	cp := *t
	cp.Specialization = append([]domain.Category(nil), t.Specialization...)
	if t.Location != nil {
		loc := *t.Location
		cp.Location = &loc
	}
	return &cp
}
