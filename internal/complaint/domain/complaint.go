package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gramseva/complaint-portal/internal/shared/errors"
	"github.com/gramseva/complaint-portal/internal/shared/types"
)

// Category is the kind of civic problem a complaint reports
type Category string

const (
	CategoryWater       Category = "water"
	CategoryElectricity Category = "electricity"
	CategoryRoads       Category = "roads"
	CategorySanitation  Category = "sanitation"
	CategoryDrainage    Category = "drainage"
	CategoryStreetlight Category = "streetlight"
	CategoryOther       Category = "other"
)

// Categories lists every category in display order
var Categories = []Category{
	CategoryWater,
	CategoryElectricity,
	CategoryRoads,
	CategorySanitation,
	CategoryDrainage,
	CategoryStreetlight,
	CategoryOther,
}

// IsValid reports whether c is a known category
func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Priority defines complaint priority
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every priority from lowest to highest
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// IsValid reports whether p is a known priority
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Image is a reference to a file already stored by the upload collaborator
type Image struct {
	URL        string    `json:"url"`
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// StatusChange is one entry of the append-only status history
type StatusChange struct {
	Status    Status    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
	ChangedBy types.ID  `json:"changed_by,omitempty"`
}

// InternalNote is a staff-only remark on a complaint
type InternalNote struct {
	Note    string    `json:"note"`
	AddedBy types.ID  `json:"added_by,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

// Complaint is the aggregate root for a citizen-filed issue
type Complaint struct {
	ID          types.ID `json:"id"`
	ComplaintID string   `json:"complaint_id"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
	Images      []Image  `json:"images"`

	Location     types.Location `json:"location"`
	CitizenPhone string         `json:"citizen_phone"`
	CitizenName  string         `json:"citizen_name,omitempty"`

	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`

	AssignedTo              *types.ID  `json:"assigned_to,omitempty"`
	AssignedAt              *time.Time `json:"assigned_at,omitempty"`
	ResolvedAt              *time.Time `json:"resolved_at,omitempty"`
	EstimatedResolutionTime *time.Time `json:"estimated_resolution_time,omitempty"`
	ActualResolutionTime    *int       `json:"actual_resolution_time,omitempty"`

	ResolutionNotes  string  `json:"resolution_notes,omitempty"`
	ResolutionImages []Image `json:"resolution_images"`

	StatusHistory []StatusChange `json:"status_history"`
	InternalNotes []InternalNote `json:"internal_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Version is the optimistic-concurrency token; the store bumps it on every update
	Version int `json:"version"`
}

// NewComplaintInput carries the citizen-supplied fields of a new complaint
type NewComplaintInput struct {
	Category     Category
	Description  string
	Location     types.Location
	CitizenPhone string
	CitizenName  string
	Priority     Priority
	Images       []Image
}

// NewComplaint validates input and builds a submitted complaint. The
// complaint code is allocated separately by the store sequence.
func NewComplaint(in NewComplaintInput, actor types.ID, at time.Time) (*Complaint, error) {
	details := map[string]string{}

	if !in.Category.IsValid() {
		details["category"] = fmt.Sprintf("must be one of %s", joinCategories(Categories))
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		details["description"] = "is required"
	}
	if err := in.Location.Point().Validate(); err != nil {
		details["location"] = err.Error()
	}
	phone := types.NormalizePhone(in.CitizenPhone)
	if !types.IsValidMobile(phone) {
		details["citizen_phone"] = "must be a 10-digit mobile number"
	}
	priority := in.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.IsValid() {
		details["priority"] = "must be one of low, medium, high, urgent"
	}
	if len(details) > 0 {
		return nil, errors.Validation("invalid complaint", details)
	}

	images := make([]Image, 0, len(in.Images))
	for _, img := range in.Images {
		if img.UploadedAt.IsZero() {
			img.UploadedAt = at
		}
		images = append(images, img)
	}

	loc := in.Location
	loc.Address = strings.TrimSpace(loc.Address)

	return &Complaint{
		ID:               types.NewID(),
		Category:         in.Category,
		Description:      description,
		Images:           images,
		Location:         loc,
		CitizenPhone:     phone,
		CitizenName:      strings.TrimSpace(in.CitizenName),
		Status:           StatusSubmitted,
		Priority:         priority,
		ResolutionImages: []Image{},
		StatusHistory: []StatusChange{
			{Status: StatusSubmitted, ChangedAt: at, ChangedBy: actor},
		},
		CreatedAt: at,
		UpdatedAt: at,
	}, nil
}

// TransitionResult tells the caller which technician counters to adjust
// after a successful status change.
type TransitionResult struct {
	From Status
	To   Status

	// Released is the technician whose active count must drop because the
	// complaint left their queue without being resolved
	Released *types.ID

	// Resolved is set only when this call moved the complaint into resolved
	Resolved        bool
	Resolver        *types.ID
	ResolutionHours int
}

// Transition moves the complaint to a new status and records it in the
// history. Entering assigned requires an assignee to already be set.
func (c *Complaint) Transition(to Status, actor types.ID, notes string, at time.Time) (TransitionResult, error) {
	result := TransitionResult{From: c.Status, To: to}

	if !to.IsValid() {
		return result, errors.Validation("invalid status", map[string]string{"status": string(to)})
	}
	if !CanTransition(c.Status, to) {
		return result, errors.InvalidTransition(string(c.Status), string(to))
	}
	if to == StatusAssigned && c.AssignedTo == nil {
		return result, errors.MissingAssignment(c.ComplaintID)
	}

	switch to {
	case StatusResolved:
		if c.AssignedTo != nil {
			result.Resolver = c.AssignedTo.Ptr()
		}
		if hours, first := c.markResolved(at); first {
			result.Resolved = true
			result.ResolutionHours = hours
		}
	case StatusRejected:
		if c.AssignedTo != nil {
			result.Released = c.AssignedTo.Ptr()
			c.AssignedTo = nil
		}
	}

	c.Status = to
	c.appendStatus(to, actor, at)
	if strings.TrimSpace(notes) != "" {
		c.appendNote(notes, actor, at)
	}
	return result, nil
}

// AssignTo points the complaint at a technician and moves it to assigned.
// It returns the previous assignee when this is a reassignment. Assigning
// to the current assignee only updates the estimate and priority.
func (c *Complaint) AssignTo(technicianID types.ID, opts AssignOptions, actor types.ID, at time.Time) (previous *types.ID, err error) {
	if technicianID.IsZero() {
		return nil, errors.MissingAssignment(c.ComplaintID)
	}
	if !CanAssign(c.Status) {
		return nil, errors.InvalidTransition(string(c.Status), string(StatusAssigned))
	}
	if opts.Priority != nil && !opts.Priority.IsValid() {
		return nil, errors.Validation("invalid priority", map[string]string{"priority": string(*opts.Priority)})
	}

	if opts.EstimatedResolutionTime != nil {
		eta := *opts.EstimatedResolutionTime
		c.EstimatedResolutionTime = &eta
	}
	if opts.Priority != nil {
		c.Priority = *opts.Priority
	}

	if c.AssignedTo != nil && *c.AssignedTo == technicianID {
		c.UpdatedAt = at
		return nil, nil
	}

	previous = c.AssignedTo
	assignedAt := at
	c.AssignedTo = technicianID.Ptr()
	c.AssignedAt = &assignedAt
	c.Status = StatusAssigned
	c.appendStatus(StatusAssigned, actor, at)
	return previous, nil
}

// AssignOptions are the optional overrides an assigner may set
type AssignOptions struct {
	EstimatedResolutionTime *time.Time
	Priority                *Priority
}

// SetResolution records the technician's resolution notes and photos
func (c *Complaint) SetResolution(notes string, images []Image, at time.Time) {
	c.ResolutionNotes = strings.TrimSpace(notes)
	c.ResolutionImages = make([]Image, 0, len(images))
	for _, img := range images {
		if img.UploadedAt.IsZero() {
			img.UploadedAt = at
		}
		c.ResolutionImages = append(c.ResolutionImages, img)
	}
}

// AddNote appends a staff-only note
func (c *Complaint) AddNote(note string, actor types.ID, at time.Time) error {
	if strings.TrimSpace(note) == "" {
		return errors.Validation("note is required", map[string]string{"note": "is required"})
	}
	c.appendNote(note, actor, at)
	return nil
}

// IsAssignedTo reports whether the complaint currently sits with the technician
func (c *Complaint) IsAssignedTo(technicianID types.ID) bool {
	return c.AssignedTo != nil && *c.AssignedTo == technicianID
}

// markResolved stamps the resolution time once. Later calls leave both
// ResolvedAt and ActualResolutionTime untouched.
func (c *Complaint) markResolved(at time.Time) (int, bool) {
	if c.ResolvedAt != nil {
		return 0, false
	}
	resolvedAt := at
	hours := ComputeResolutionHours(c.CreatedAt, resolvedAt)
	c.ResolvedAt = &resolvedAt
	c.ActualResolutionTime = &hours
	return hours, true
}

func (c *Complaint) appendStatus(status Status, actor types.ID, at time.Time) {
	c.StatusHistory = append(c.StatusHistory, StatusChange{
		Status:    status,
		ChangedAt: at,
		ChangedBy: actor,
	})
	c.UpdatedAt = at
}

func (c *Complaint) appendNote(note string, actor types.ID, at time.Time) {
	c.InternalNotes = append(c.InternalNotes, InternalNote{
		Note:    strings.TrimSpace(note),
		AddedBy: actor,
		AddedAt: at,
	})
	c.UpdatedAt = at
}

// complaintCodePattern is the persisted shape CMP<YY><MM><seq5>
var complaintCodePattern = regexp.MustCompile(`^CMP\d{2}\d{2}\d{5}$`)

// MaxComplaintSequence is the largest sequence that fits the five-digit
// suffix. The sequence counts every complaint ever filed, so reaching it
// means the store can take no more complaints under this code shape.
const MaxComplaintSequence = 99999

// FormatComplaintCode builds the human-facing code for the seq-th complaint
// ever filed, prefixed with the year and month it was filed in.
func FormatComplaintCode(at time.Time, seq int) (string, error) {
	if seq < 1 {
		return "", fmt.Errorf("complaint sequence must be positive, got %d", seq)
	}
	if seq > MaxComplaintSequence {
		return "", errors.SequenceExhausted(MaxComplaintSequence)
	}
	return fmt.Sprintf("CMP%02d%02d%05d", at.Year()%100, int(at.Month()), seq), nil
}

// IsComplaintCode reports whether s has the complaint code shape
func IsComplaintCode(s string) bool {
	return complaintCodePattern.MatchString(s)
}

func joinCategories(categories []Category) string {
	parts := make([]string, len(categories))
	for i, c := range categories {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
