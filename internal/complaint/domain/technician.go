package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gramseva/complaint-portal/internal/shared/errors"
	"github.com/gramseva/complaint-portal/internal/shared/types"
)

// Technician is a field worker who resolves complaints in their specialization
type Technician struct {
	ID     types.ID `json:"id"`
	UserID types.ID `json:"user_id"`
	Name   string   `json:"name"`
	Phone  string   `json:"phone"`

	Specialization []Category `json:"specialization"`

	// Workload ledger
	ActiveComplaints    int `json:"active_complaints"`
	ResolvedCount       int `json:"resolved_count"`
	TotalResolutionTime int `json:"total_resolution_time"`
	AvgResolutionTime   int `json:"avg_resolution_time"`

	IsAvailable bool            `json:"is_available"`
	Location    *types.GeoPoint `json:"location,omitempty"`

	// Maintained by the rating feature, not by the engine
	Rating       float64 `json:"rating"`
	TotalRatings int     `json:"total_ratings"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

// NewTechnician validates and builds an available technician with an empty ledger
func NewTechnician(userID types.ID, name, phone string, specialization []Category, at time.Time) (*Technician, error) {
	details := map[string]string{}

	name = strings.TrimSpace(name)
	if name == "" {
		details["name"] = "is required"
	}
	phone = types.NormalizePhone(phone)
	if !types.IsValidMobile(phone) {
		details["phone"] = "must be a 10-digit mobile number"
	}
	specs, err := normalizeSpecialization(specialization)
	if err != nil {
		details["specialization"] = err.Error()
	}
	if len(details) > 0 {
		return nil, errors.Validation("invalid technician", details)
	}
	if userID.IsZero() {
		userID = types.NewID()
	}

	return &Technician{
		ID:             types.NewID(),
		UserID:         userID,
		Name:           name,
		Phone:          phone,
		Specialization: specs,
		IsAvailable:    true,
		CreatedAt:      at,
		UpdatedAt:      at,
	}, nil
}

// SetSpecialization replaces the specialization set
func (t *Technician) SetSpecialization(specialization []Category) error {
	specs, err := normalizeSpecialization(specialization)
	if err != nil {
		return errors.Validation("invalid specialization", map[string]string{"specialization": err.Error()})
	}
	t.Specialization = specs
	return nil
}

// CanHandle reports whether the technician is eligible for the category
func (t *Technician) CanHandle(category Category) bool {
	for _, c := range t.Specialization {
		if c == category {
			return true
		}
	}
	return false
}

// SpecializationString renders the specialization set for messages
func (t *Technician) SpecializationString() string {
	return joinCategories(t.Specialization)
}

// OnAssign records one more complaint in the technician's queue
func (t *Technician) OnAssign() {
	t.ActiveComplaints++
}

// OnResolve moves one complaint from active to resolved and folds its
// resolution time into the running average. The caller invokes it once
// per complaint entering resolved.
func (t *Technician) OnResolve(resolutionHours int) {
	if resolutionHours < 0 {
		resolutionHours = 0
	}
	t.ActiveComplaints = max(0, t.ActiveComplaints-1)
	t.ResolvedCount++
	t.TotalResolutionTime += resolutionHours
	t.AvgResolutionTime = averageHours(t.TotalResolutionTime, t.ResolvedCount)
}

// OnUnassignOrReject drops one complaint from the queue without crediting a resolution
func (t *Technician) OnUnassignOrReject() {
	t.ActiveComplaints = max(0, t.ActiveComplaints-1)
}

// ResetLedger overwrites the workload counters with recounted values
func (t *Technician) ResetLedger(active, resolvedCount, totalHours int) {
	t.ActiveComplaints = max(0, active)
	t.ResolvedCount = max(0, resolvedCount)
	t.TotalResolutionTime = max(0, totalHours)
	t.AvgResolutionTime = averageHours(t.TotalResolutionTime, t.ResolvedCount)
}

func averageHours(total, count int) int {
	if count <= 0 {
		return 0
	}
	return int(math.Round(float64(total) / float64(count)))
}

func normalizeSpecialization(specialization []Category) ([]Category, error) {
	seen := make(map[Category]bool, len(specialization))
	specs := make([]Category, 0, len(specialization))
	for _, c := range specialization {
		c = Category(strings.ToLower(strings.TrimSpace(string(c))))
		if !c.IsValid() {
			return nil, fmt.Errorf("unknown category %q", c)
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		specs = append(specs, c)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one category is required")
	}
	return specs, nil
}
