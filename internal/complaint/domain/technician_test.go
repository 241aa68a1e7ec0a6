package domain

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/gramseva/complaint-portal/internal/shared/errors"
	"github.com/gramseva/complaint-portal/internal/shared/types"
)

func TestNewTechnician(t *testing.T) {
	tech, err := NewTechnician(types.NewID(), "Ravi", "9876500000",
		[]Category{"Water", CategoryDrainage, CategoryWater}, time.Now())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !tech.IsAvailable {
		t.Error("Expected new technician to be available")
	}
	if len(tech.Specialization) != 2 {
		t.Errorf("Expected deduplicated specialization, got %v", tech.Specialization)
	}
	if !tech.CanHandle(CategoryWater) || tech.CanHandle(CategoryRoads) {
		t.Error("Expected specialization to drive CanHandle")
	}
	if tech.SpecializationString() != "water, drainage" {
		t.Errorf("Expected 'water, drainage', got %q", tech.SpecializationString())
	}
}

func TestTechnicianResetLedger(t *testing.T) {
	tests := []struct {
		name                          string
		active, resolved, total       int
		wantActive, wantResolved, avg int
	}{
		{"rebuilt", 2, 3, 10, 2, 3, 3},
		{"empty", 0, 0, 0, 0, 0, 0},
		{"negative inputs clamp", -1, -2, -5, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tech, err := NewTechnician(types.NewID(), "Ravi", "9876500000", []Category{CategoryWater}, time.Now())
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			tech.OnAssign()
			tech.OnAssign()
			tech.OnAssign()

			tech.ResetLedger(tt.active, tt.resolved, tt.total)
			if tech.ActiveComplaints != tt.wantActive {
				t.Errorf("Expected %d active, got %d", tt.wantActive, tech.ActiveComplaints)
			}
			if tech.ResolvedCount != tt.wantResolved {
				t.Errorf("Expected %d resolved, got %d", tt.wantResolved, tech.ResolvedCount)
			}
			if tech.AvgResolutionTime != tt.avg {
				t.Errorf("Expected average %d, got %d", tt.avg, tech.AvgResolutionTime)
			}
		})
	}
}

func TestNewTechnicianValidation(t *testing.T) {
	tests := []struct {
		name           string
		techName       string
		phone          string
		specialization []Category
	}{
		{"missing name", "", "9876500000", []Category{CategoryWater}},
		{"bad phone", "Ravi", "12345", []Category{CategoryWater}},
		{"empty specialization", "Ravi", "9876500000", nil},
		{"unknown specialization", "Ravi", "9876500000", []Category{"gardening"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTechnician(types.NewID(), tt.techName, tt.phone, tt.specialization, time.Now())
			if !errors.Is(err, apperrors.ErrValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestWorkloadLedger(t *testing.T) {
	tech := &Technician{}

	tech.OnAssign()
	tech.OnAssign()
	tech.OnAssign()
	if tech.ActiveComplaints != 3 {
		t.Fatalf("Expected 3 active, got %d", tech.ActiveComplaints)
	}

	tech.OnResolve(60)
	if tech.ActiveComplaints != 2 || tech.ResolvedCount != 1 {
		t.Errorf("Expected 2 active and 1 resolved, got %d and %d", tech.ActiveComplaints, tech.ResolvedCount)
	}
	if tech.AvgResolutionTime != 60 {
		t.Errorf("Expected average 60, got %d", tech.AvgResolutionTime)
	}

	tech.OnUnassignOrReject()
	if tech.ActiveComplaints != 1 {
		t.Errorf("Expected 1 active, got %d", tech.ActiveComplaints)
	}
	if tech.ResolvedCount != 1 {
		t.Error("Expected reject to leave resolved counters alone")
	}
}

func TestLedgerNeverNegative(t *testing.T) {
	tech := &Technician{}
	tech.OnUnassignOrReject()
	tech.OnResolve(4)
	if tech.ActiveComplaints != 0 {
		t.Errorf("Expected 0 active, got %d", tech.ActiveComplaints)
	}
}

func TestAverageResolutionTime(t *testing.T) {
	tech := &Technician{}
	hours := []int{3, 4, 4, 10, 1}
	total := 0
	for i, h := range hours {
		tech.OnAssign()
		tech.OnResolve(h)
		total += h
		want := averageHours(total, i+1)
		if tech.AvgResolutionTime != want {
			t.Errorf("After %d resolutions expected average %d, got %d", i+1, want, tech.AvgResolutionTime)
		}
	}
	// 22 / 5 = 4.4
	if tech.AvgResolutionTime != 4 {
		t.Errorf("Expected 4, got %d", tech.AvgResolutionTime)
	}
	if tech.TotalResolutionTime != 22 {
		t.Errorf("Expected total 22, got %d", tech.TotalResolutionTime)
	}

	tech2 := &Technician{}
	tech2.OnResolve(3)
	tech2.OnResolve(4)
	if tech2.AvgResolutionTime != 4 {
		t.Errorf("Expected 3.5 to round to 4, got %d", tech2.AvgResolutionTime)
	}
	if averageHours(10, 0) != 0 {
		t.Error("Expected zero average with no resolutions")
	}
}

func TestComplaintFilterMatches(t *testing.T) {
	c := newTestComplaint(t, CategoryWater)
	techID := types.NewID()
	c.AssignTo(techID, AssignOptions{}, adminID, filedAt)

	water, roads := CategoryWater, CategoryRoads
	assigned := StatusAssigned
	before, after := filedAt.Add(-time.Hour), filedAt.Add(time.Hour)
	other := types.NewID()

	tests := []struct {
		name   string
		filter ComplaintFilter
		want   bool
	}{
		{"empty", ComplaintFilter{}, true},
		{"category", ComplaintFilter{Category: &water}, true},
		{"wrong category", ComplaintFilter{Category: &roads}, false},
		{"status", ComplaintFilter{Status: &assigned}, true},
		{"active statuses", ComplaintFilter{Statuses: ActiveStatuses}, true},
		{"terminal statuses", ComplaintFilter{Statuses: []Status{StatusResolved}}, false},
		{"range", ComplaintFilter{CreatedFrom: &before, CreatedTo: &after}, true},
		{"inclusive bounds", ComplaintFilter{CreatedFrom: &filedAt, CreatedTo: &filedAt}, true},
		{"after range", ComplaintFilter{CreatedFrom: &after}, false},
		{"assignee", ComplaintFilter{AssignedTo: &techID}, true},
		{"other assignee", ComplaintFilter{AssignedTo: &other}, false},
		{"phone", ComplaintFilter{CitizenPhone: "9876543210"}, true},
		{"other phone", ComplaintFilter{CitizenPhone: "9000000000"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(c); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPageNormalize(t *testing.T) {
	p := Page{Page: 0, Limit: 500, SortBy: "drop table"}.Normalize()
	if p.Page != 1 || p.Limit != MaxPageLimit || p.SortBy != "" {
		t.Errorf("Expected normalized page, got %+v", p)
	}
	if (Page{Page: 3, Limit: 20}).Offset() != 40 {
		t.Error("Expected offset 40")
	}
}
