// Package report computes read-only aggregates over complaints: breakdowns,
// the monthly report and the admin dashboard.
package report

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/gramseva/complaint-portal/internal/complaint/domain"
	"github.com/gramseva/complaint-portal/internal/shared/errors"
	"github.com/gramseva/complaint-portal/internal/shared/types"
)

const (
	// UnknownLocation groups complaints filed without an address
	UnknownLocation = "Unknown"
	// UnknownTechnician names a performance row whose technician was deleted
	UnknownTechnician = "Unknown technician"

	recentLimit        = 10
	descriptionPreview = 100
)

// Aggregator reads complaints and technicians and folds them into reports
type Aggregator struct {
	complaints  domain.ComplaintRepository
	technicians domain.TechnicianRepository
	location    *time.Location
	now         func() time.Time
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithLocation sets the zone for day and month boundaries
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) {
		if loc != nil {
			a.location = loc
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates a reporting aggregator
func NewAggregator(complaints domain.ComplaintRepository, technicians domain.TechnicianRepository, opts ...Option) *Aggregator {
	a := &Aggregator{
		complaints:  complaints,
		technicians: technicians,
		location:    time.Local,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Stats is the breakdown of a filtered complaint set
type Stats struct {
	Total             int                     `json:"total"`
	Resolved          int                     `json:"resolved"`
	Unresolved        int                     `json:"unresolved"`
	AvgResolutionTime float64                 `json:"avg_resolution_time"`
	ByStatus          map[domain.Status]int   `json:"by_status"`
	ByCategory        map[domain.Category]int `json:"by_category"`
	ByPriority        map[domain.Priority]int `json:"by_priority"`
}

// Stats breaks the filtered complaints down by status, category and priority
func (a *Aggregator) Stats(ctx context.Context, filter domain.ComplaintFilter) (*Stats, error) {
	complaints, err := a.complaints.Find(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load complaints for stats")
	}
	return summarize(complaints), nil
}

func summarize(complaints []domain.Complaint) *Stats {
	s := &Stats{
		Total:      len(complaints),
		ByStatus:   make(map[domain.Status]int, len(domain.Statuses)),
		ByCategory: make(map[domain.Category]int, len(domain.Categories)),
		ByPriority: make(map[domain.Priority]int, len(domain.Priorities)),
	}
	for _, st := range domain.Statuses {
		s.ByStatus[st] = 0
	}
	for _, c := range domain.Categories {
		s.ByCategory[c] = 0
	}
	for _, p := range domain.Priorities {
		s.ByPriority[p] = 0
	}

	var totalHours, timed int
	for i := range complaints {
		c := &complaints[i]
		s.ByStatus[c.Status]++
		s.ByCategory[c.Category]++
		s.ByPriority[c.Priority]++

		if c.Status == domain.StatusResolved {
			s.Resolved++
			if c.ActualResolutionTime != nil {
				totalHours += *c.ActualResolutionTime
				timed++
			}
		}
	}

	s.Unresolved = s.Total - s.Resolved
	if timed > 0 {
		s.AvgResolutionTime = float64(totalHours) / float64(timed)
	}
	return s
}

// MonthOverMonthChange is the percentage change from prev to current,
// defined as 0 when prev is 0
func MonthOverMonthChange(current, prev int) int {
	if prev == 0 {
		return 0
	}
	return int(math.Round(100 * float64(current-prev) / float64(prev)))
}

// TechnicianStats is a technician's profile with stats over its complaints
type TechnicianStats struct {
	Technician TechnicianSummary `json:"technician"`
	Stats      *Stats            `json:"stats"`
}

// TechnicianSummary is the ledger view of a technician
type TechnicianSummary struct {
	ID                types.ID          `json:"id"`
	Name              string            `json:"name"`
	Phone             string            `json:"phone"`
	Specialization    []domain.Category `json:"specialization"`
	ActiveComplaints  int               `json:"active_complaints"`
	ResolvedCount     int               `json:"resolved_count"`
	AvgResolutionTime int               `json:"avg_resolution_time"`
	Rating            float64           `json:"rating"`
}

// TechnicianStats computes stats over the complaints assigned to a
// technician. The filter's assignee is replaced by technicianID.
func (a *Aggregator) TechnicianStats(ctx context.Context, technicianID types.ID, filter domain.ComplaintFilter) (*TechnicianStats, error) {
	t, err := a.technicians.FindByID(ctx, technicianID)
	if err != nil {
		return nil, err
	}

	filter.AssignedTo = &t.ID
	stats, err := a.Stats(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &TechnicianStats{
		Technician: TechnicianSummary{
			ID:                t.ID,
			Name:              t.Name,
			Phone:             t.Phone,
			Specialization:    t.Specialization,
			ActiveComplaints:  t.ActiveComplaints,
			ResolvedCount:     t.ResolvedCount,
			AvgResolutionTime: t.AvgResolutionTime,
			Rating:            t.Rating,
		},
		Stats: stats,
	}, nil
}

// CategoryCount is one row of the dashboard category distribution
type CategoryCount struct {
	Category domain.Category `json:"category"`
	Count    int             `json:"count"`
}

// RecentComplaint is the reduced projection shown on the dashboard
type RecentComplaint struct {
	ID          types.ID        `json:"id"`
	ComplaintID string          `json:"complaint_id"`
	Category    domain.Category `json:"category"`
	Status      domain.Status   `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	Address     string          `json:"address"`
}

// Overview is the admin dashboard snapshot
type Overview struct {
	TotalComplaints      int               `json:"total_complaints"`
	TodayComplaints      int               `json:"today_complaints"`
	PendingComplaints    int               `json:"pending_complaints"`
	InProgressComplaints int               `json:"in_progress_complaints"`
	ResolvedComplaints   int               `json:"resolved_complaints"`
	AvailableTechnicians int               `json:"available_technicians"`
	CategoryStats        []CategoryCount   `json:"category_stats"`
	RecentComplaints     []RecentComplaint `json:"recent_complaints"`
}

// DashboardOverview returns the current dashboard snapshot
func (a *Aggregator) DashboardOverview(ctx context.Context) (*Overview, error) {
	o := &Overview{
		CategoryStats:    []CategoryCount{},
		RecentComplaints: []RecentComplaint{},
	}

	count := func(f domain.ComplaintFilter) (int, error) {
		n, err := a.complaints.Count(ctx, f)
		if err != nil {
			return 0, errors.Wrap(err, "failed to count complaints")
		}
		return n, nil
	}

	var err error
	if o.TotalComplaints, err = count(domain.ComplaintFilter{}); err != nil {
		return nil, err
	}

	dayStart, dayEnd := domain.DayBounds(a.now(), a.location)
	if o.TodayComplaints, err = count(domain.ComplaintFilter{CreatedFrom: &dayStart, CreatedTo: &dayEnd}); err != nil {
		return nil, err
	}

	for _, target := range []struct {
		status domain.Status
		dst    *int
	}{
		{domain.StatusSubmitted, &o.PendingComplaints},
		{domain.StatusInProgress, &o.InProgressComplaints},
		{domain.StatusResolved, &o.ResolvedComplaints},
	} {
		status := target.status
		if *target.dst, err = count(domain.ComplaintFilter{Status: &status}); err != nil {
			return nil, err
		}
	}

	available := true
	if o.AvailableTechnicians, err = a.technicians.Count(ctx, domain.TechnicianFilter{IsAvailable: &available}); err != nil {
		return nil, errors.Wrap(err, "failed to count technicians")
	}

	for _, category := range domain.Categories {
		cat := category
		n, err := count(domain.ComplaintFilter{Category: &cat})
		if err != nil {
			return nil, err
		}
		if n > 0 {
			o.CategoryStats = append(o.CategoryStats, CategoryCount{Category: cat, Count: n})
		}
	}
	sort.SliceStable(o.CategoryStats, func(i, j int) bool {
		if o.CategoryStats[i].Count != o.CategoryStats[j].Count {
			return o.CategoryStats[i].Count > o.CategoryStats[j].Count
		}
		return o.CategoryStats[i].Category < o.CategoryStats[j].Category
	})

	recent, _, err := a.complaints.List(ctx, domain.ComplaintFilter{}, domain.Page{
		Page:     1,
		Limit:    recentLimit,
		SortBy:   "created_at",
		SortDesc: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load recent complaints")
	}
	for _, c := range recent {
		o.RecentComplaints = append(o.RecentComplaints, RecentComplaint{
			ID:          c.ID,
			ComplaintID: c.ComplaintID,
			Category:    c.Category,
			Status:      c.Status,
			CreatedAt:   c.CreatedAt,
			Address:     c.Location.Address,
		})
	}

	return o, nil
}
