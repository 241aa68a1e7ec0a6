package report

import (
	"context"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/gramseva/complaint-portal/internal/complaint/domain"
	"github.com/gramseva/complaint-portal/internal/shared/errors"
	"github.com/gramseva/complaint-portal/internal/shared/types"
)

// Period identifies the reported calendar month
type Period struct {
	Month int       `json:"month"`
	Year  int       `json:"year"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Summary is the headline block of a monthly report
type Summary struct {
	TotalComplaints      int `json:"total_complaints"`
	ResolvedComplaints   int `json:"resolved_complaints"`
	UnresolvedComplaints int `json:"unresolved_complaints"`
	AvgResolutionTime    int `json:"avg_resolution_time"`
	MonthOverMonthChange int `json:"month_over_month_change"`
}

// Breakdown holds the per-dimension counts of a report
type Breakdown struct {
	ByCategory map[domain.Category]int `json:"by_category"`
	ByStatus   map[domain.Status]int   `json:"by_status"`
	ByPriority map[domain.Priority]int `json:"by_priority"`
}

// TechnicianPerformance is one technician's line in a monthly report
type TechnicianPerformance struct {
	TechnicianID types.ID `json:"technician_id"`
	Name         string   `json:"name"`
	Phone        string   `json:"phone"`
	Assigned     int      `json:"assigned"`
	Resolved     int      `json:"resolved"`
	InProgress   int      `json:"in_progress"`
}

// LocationCount is the number of complaints filed at one address
type LocationCount struct {
	Location string `json:"location"`
	Count    int    `json:"count"`
}

// ComplaintLine is the reduced complaint projection listed in a report
type ComplaintLine struct {
	ComplaintID string          `json:"complaint_id"`
	Category    domain.Category `json:"category"`
	Description string          `json:"description"`
	Location    string          `json:"location"`
	Status      domain.Status   `json:"status"`
	Priority    domain.Priority `json:"priority"`
	CreatedAt   time.Time       `json:"created_at"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
	AssignedTo  string          `json:"assigned_to"`
}

// MonthlyReport is the full report for one calendar month
type MonthlyReport struct {
	Period                Period                  `json:"period"`
	Summary               Summary                 `json:"summary"`
	Breakdown             Breakdown               `json:"breakdown"`
	TechnicianPerformance []TechnicianPerformance `json:"technician_performance"`
	LocationDensity       []LocationCount         `json:"location_density"`
	Complaints            []ComplaintLine         `json:"complaints"`
}

// MonthlyReport builds the report for month/year. The period bounds replace
// any creation range in filter. The previous-month figure used for the
// change percentage counts every complaint of that month, unfiltered.
func (a *Aggregator) MonthlyReport(ctx context.Context, month, year int, filter domain.ComplaintFilter) (*MonthlyReport, error) {
	if month < 1 || month > 12 {
		return nil, errors.Validation("invalid report period", map[string]string{"month": fmt.Sprintf("%d is not between 1 and 12", month)})
	}
	if year < 1 {
		return nil, errors.Validation("invalid report period", map[string]string{"year": fmt.Sprintf("%d is not a valid year", year)})
	}

	start, end := domain.MonthBounds(year, time.Month(month), a.location)
	filter.CreatedFrom = &start
	filter.CreatedTo = &end

	complaints, err := a.complaints.Find(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load complaints for monthly report")
	}

	prevStart, prevEnd := domain.MonthBounds(year, time.Month(month)-1, a.location)
	prevTotal, err := a.complaints.Count(ctx, domain.ComplaintFilter{CreatedFrom: &prevStart, CreatedTo: &prevEnd})
	if err != nil {
		return nil, errors.Wrap(err, "failed to count previous month")
	}

	names, err := a.technicianDirectory(ctx, complaints)
	if err != nil {
		return nil, err
	}

	stats := summarize(complaints)
	r := &MonthlyReport{
		Period: Period{Month: month, Year: year, Start: start, End: end},
		Summary: Summary{
			TotalComplaints:      stats.Total,
			ResolvedComplaints:   stats.Resolved,
			UnresolvedComplaints: stats.Unresolved,
			AvgResolutionTime:    int(math.Round(stats.AvgResolutionTime)),
			MonthOverMonthChange: MonthOverMonthChange(stats.Total, prevTotal),
		},
		Breakdown: Breakdown{
			ByCategory: stats.ByCategory,
			ByStatus:   stats.ByStatus,
			ByPriority: stats.ByPriority,
		},
		TechnicianPerformance: technicianPerformance(complaints, names),
		LocationDensity:       locationDensity(complaints),
		Complaints:            make([]ComplaintLine, 0, len(complaints)),
	}

	for i := range complaints {
		r.Complaints = append(r.Complaints, projectComplaint(&complaints[i], names))
	}

	return r, nil
}

// technicianDirectory loads the technicians referenced by complaints.
// Technicians deleted since assignment map to nil.
func (a *Aggregator) technicianDirectory(ctx context.Context, complaints []domain.Complaint) (map[types.ID]*domain.Technician, error) {
	dir := make(map[types.ID]*domain.Technician)
	for i := range complaints {
		id := complaints[i].AssignedTo
		if id == nil {
			continue
		}
		if _, seen := dir[*id]; seen {
			continue
		}
		t, err := a.technicians.FindByID(ctx, *id)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				dir[*id] = nil
				continue
			}
			return nil, errors.Wrap(err, "failed to load technician for report")
		}
		dir[*id] = t
	}
	return dir, nil
}

func technicianPerformance(complaints []domain.Complaint, dir map[types.ID]*domain.Technician) []TechnicianPerformance {
	out := []TechnicianPerformance{}
	index := make(map[types.ID]int)

	for i := range complaints {
		c := &complaints[i]
		if c.AssignedTo == nil {
			continue
		}
		id := *c.AssignedTo

		pos, ok := index[id]
		if !ok {
			row := TechnicianPerformance{TechnicianID: id, Name: UnknownTechnician}
			if t := dir[id]; t != nil {
				row.Name, row.Phone = t.Name, t.Phone
			}
			pos = len(out)
			index[id] = pos
			out = append(out, row)
		}

		out[pos].Assigned++
		switch c.Status {
		case domain.StatusResolved:
			out[pos].Resolved++
		case domain.StatusInProgress:
			out[pos].InProgress++
		}
	}
	return out
}

func locationDensity(complaints []domain.Complaint) []LocationCount {
	out := []LocationCount{}
	index := make(map[string]int)

	for i := range complaints {
		key := complaints[i].Location.Address
		if key == "" {
			key = UnknownLocation
		}
		pos, ok := index[key]
		if !ok {
			pos = len(out)
			index[key] = pos
			out = append(out, LocationCount{Location: key})
		}
		out[pos].Count++
	}
	return out
}

func projectComplaint(c *domain.Complaint, dir map[types.ID]*domain.Technician) ComplaintLine {
	line := ComplaintLine{
		ComplaintID: c.ComplaintID,
		Category:    c.Category,
		Description: truncate(c.Description, descriptionPreview),
		Location:    c.Location.Address,
		Status:      c.Status,
		Priority:    c.Priority,
		CreatedAt:   c.CreatedAt,
		ResolvedAt:  c.ResolvedAt,
		AssignedTo:  "Unassigned",
	}
	if line.Location == "" {
		line.Location = "N/A"
	}
	if c.AssignedTo != nil {
		if t := dir[*c.AssignedTo]; t != nil {
			line.AssignedTo = t.Name
		}
	}
	return line
}

// truncate cuts s to n runes and marks the cut with "..."
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
