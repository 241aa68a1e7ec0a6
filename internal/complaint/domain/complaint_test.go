package domain

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/gramseva/complaint-portal/internal/shared/errors"
	"github.com/gramseva/complaint-portal/internal/shared/types"
)

var (
	citizenID = types.NewID()
	adminID   = types.NewID()
	filedAt   = time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)
)

func newTestComplaint(t *testing.T, category Category) *Complaint {
	t.Helper()
	c, err := NewComplaint(NewComplaintInput{
		Category:     category,
		Description:  "Pipeline burst near the temple",
		Location:     types.Location{Latitude: 21.17, Longitude: 72.83, Address: "Ward 4, Main Road"},
		CitizenPhone: "9876543210",
		CitizenName:  "Asha",
	}, citizenID, filedAt)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	c.ComplaintID = "CMP240200001"
	return c
}

func TestNewComplaint(t *testing.T) {
	c := newTestComplaint(t, CategoryWater)

	if c.ID.IsZero() {
		t.Error("Expected non-zero ID")
	}
	if c.Status != StatusSubmitted {
		t.Errorf("Expected status %s, got %s", StatusSubmitted, c.Status)
	}
	if c.Priority != PriorityMedium {
		t.Errorf("Expected default priority %s, got %s", PriorityMedium, c.Priority)
	}
	if c.AssignedTo != nil {
		t.Error("Expected no assignee on a new complaint")
	}
	if len(c.StatusHistory) != 1 || c.StatusHistory[0].Status != StatusSubmitted {
		t.Fatalf("Expected history seeded with submitted, got %+v", c.StatusHistory)
	}
	if c.StatusHistory[0].ChangedBy != citizenID {
		t.Error("Expected history entry to record the actor")
	}
}

func TestNewComplaintValidation(t *testing.T) {
	valid := NewComplaintInput{
		Category:     CategoryRoads,
		Description:  "Pothole",
		Location:     types.Location{Latitude: 10, Longitude: 10},
		CitizenPhone: "9876543210",
	}

	tests := []struct {
		name   string
		mutate func(in *NewComplaintInput)
		field  string
	}{
		{"unknown category", func(in *NewComplaintInput) { in.Category = "parks" }, "category"},
		{"empty description", func(in *NewComplaintInput) { in.Description = "   " }, "description"},
		{"bad latitude", func(in *NewComplaintInput) { in.Location.Latitude = 95 }, "location"},
		{"landline phone", func(in *NewComplaintInput) { in.CitizenPhone = "2612345678" }, "citizen_phone"},
		{"short phone", func(in *NewComplaintInput) { in.CitizenPhone = "98765" }, "citizen_phone"},
		{"bad priority", func(in *NewComplaintInput) { in.Priority = "critical" }, "priority"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := NewComplaint(in, citizenID, filedAt)
			if !errors.Is(err, apperrors.ErrValidation) {
				t.Fatalf("Expected validation error, got %v", err)
			}
			var appErr *apperrors.AppError
			if !errors.As(err, &appErr) {
				t.Fatal("Expected AppError")
			}
			if _, ok := appErr.Details[tt.field]; !ok {
				t.Errorf("Expected detail for %s, got %v", tt.field, appErr.Details)
			}
		})
	}
}

func TestComplaintCode(t *testing.T) {
	code, err := FormatComplaintCode(time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), 42)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if code != "CMP240200042" {
		t.Errorf("Expected CMP240200042, got %s", code)
	}
	if !IsComplaintCode(code) {
		t.Errorf("Expected %s to match the code pattern", code)
	}

	for _, seq := range []int{0, -1} {
		_, err := FormatComplaintCode(filedAt, seq)
		if err == nil {
			t.Errorf("Expected error for sequence %d", seq)
		}
		if errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("Expected sequence %d not to be a validation error", seq)
		}
	}

	last, err := FormatComplaintCode(filedAt, MaxComplaintSequence)
	if err != nil || last != "CMP240299999" {
		t.Errorf("Expected CMP240299999, got %s (%v)", last, err)
	}
	_, err = FormatComplaintCode(filedAt, MaxComplaintSequence+1)
	if !errors.Is(err, apperrors.ErrSequenceExhausted) {
		t.Errorf("Expected sequence exhausted, got %v", err)
	}
	if errors.Is(err, apperrors.ErrValidation) {
		t.Error("Expected exhausted sequence not to be a validation error")
	}

	for _, bad := range []string{"CMP2402001", "cmp240200001", "CMP24020000A", "XCMP240200001"} {
		if IsComplaintCode(bad) {
			t.Errorf("Expected %s not to match", bad)
		}
	}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusSubmitted, StatusAssigned, true},
		{StatusSubmitted, StatusRejected, true},
		{StatusSubmitted, StatusInProgress, false},
		{StatusSubmitted, StatusResolved, false},
		{StatusAssigned, StatusInProgress, true},
		{StatusAssigned, StatusResolved, true},
		{StatusAssigned, StatusRejected, true},
		{StatusInProgress, StatusResolved, true},
		{StatusInProgress, StatusRejected, false},
		{StatusInProgress, StatusSubmitted, false},
		{StatusResolved, StatusAssigned, false},
		{StatusResolved, StatusResolved, false},
		{StatusRejected, StatusSubmitted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.allowed {
				t.Errorf("Expected %v, got %v", tt.allowed, got)
			}
		})
	}
}

func TestTransitionToAssignedRequiresAssignee(t *testing.T) {
	c := newTestComplaint(t, CategoryWater)

	_, err := c.Transition(StatusAssigned, adminID, "", filedAt.Add(time.Hour))
	if !errors.Is(err, apperrors.ErrMissingAssignment) {
		t.Fatalf("Expected MissingAssignment, got %v", err)
	}
	if c.Status != StatusSubmitted || len(c.StatusHistory) != 1 {
		t.Error("Expected complaint unchanged after failed transition")
	}
}

func TestTransitionRejectsSkipAhead(t *testing.T) {
	c := newTestComplaint(t, CategoryWater)

	_, err := c.Transition(StatusResolved, adminID, "", filedAt.Add(time.Hour))
	if !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("Expected InvalidTransition, got %v", err)
	}
	if c.ResolvedAt != nil || c.ActualResolutionTime != nil {
		t.Error("Expected no resolution stamp after rejected transition")
	}
}

func TestLifecycle(t *testing.T) {
	c := newTestComplaint(t, CategoryWater)
	techID := types.NewID()

	previous, err := c.AssignTo(techID, AssignOptions{}, adminID, filedAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("Failed to assign: %v", err)
	}
	if previous != nil {
		t.Error("Expected no previous assignee")
	}
	if c.Status != StatusAssigned || !c.IsAssignedTo(techID) || c.AssignedAt == nil {
		t.Fatalf("Expected assigned to %s, got status %s", techID, c.Status)
	}

	if _, err := c.Transition(StatusInProgress, techID, "on site", filedAt.Add(2*time.Hour)); err != nil {
		t.Fatalf("Failed to start progress: %v", err)
	}
	if len(c.InternalNotes) != 1 || c.InternalNotes[0].Note != "on site" {
		t.Errorf("Expected note recorded, got %+v", c.InternalNotes)
	}

	resolvedAt := time.Date(2024, 2, 7, 12, 0, 0, 0, time.UTC)
	result, err := c.Transition(StatusResolved, techID, "", resolvedAt)
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if !result.Resolved || result.ResolutionHours != 60 {
		t.Errorf("Expected first resolution with 60 hours, got %+v", result)
	}
	if result.Resolver == nil || *result.Resolver != techID {
		t.Error("Expected resolver to be the assignee")
	}
	if c.ActualResolutionTime == nil || *c.ActualResolutionTime != 60 {
		t.Errorf("Expected actual resolution time 60, got %v", c.ActualResolutionTime)
	}
	if !c.IsAssignedTo(techID) {
		t.Error("Expected resolved complaint to keep its assignee")
	}

	wantHistory := []Status{StatusSubmitted, StatusAssigned, StatusInProgress, StatusResolved}
	if len(c.StatusHistory) != len(wantHistory) {
		t.Fatalf("Expected %d history entries, got %d", len(wantHistory), len(c.StatusHistory))
	}
	for i, s := range wantHistory {
		if c.StatusHistory[i].Status != s {
			t.Errorf("History[%d]: expected %s, got %s", i, s, c.StatusHistory[i].Status)
		}
	}

	if _, err := c.Transition(StatusResolved, techID, "", resolvedAt.Add(time.Hour)); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Errorf("Expected terminal state to refuse transitions, got %v", err)
	}
	if !c.ResolvedAt.Equal(resolvedAt) {
		t.Error("Expected resolvedAt unchanged")
	}
}

func TestMarkResolvedOnlyOnce(t *testing.T) {
	c := newTestComplaint(t, CategoryWater)
	first := filedAt.Add(5 * time.Hour)

	hours, ok := c.markResolved(first)
	if !ok || hours != 5 {
		t.Fatalf("Expected first stamp of 5 hours, got %d %v", hours, ok)
	}
	if _, ok := c.markResolved(first.Add(10 * time.Hour)); ok {
		t.Error("Expected second stamp to be ignored")
	}
	if *c.ActualResolutionTime != 5 || !c.ResolvedAt.Equal(first) {
		t.Error("Expected resolution fields unchanged by second stamp")
	}
}

func TestRejectReleasesAssignee(t *testing.T) {
	c := newTestComplaint(t, CategoryWater)
	techID := types.NewID()
	c.AssignTo(techID, AssignOptions{}, adminID, filedAt)

	result, err := c.Transition(StatusRejected, adminID, "duplicate", filedAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.Released == nil || *result.Released != techID {
		t.Error("Expected released technician to be reported")
	}
	if c.AssignedTo != nil {
		t.Error("Expected rejected complaint to have no assignee")
	}
}

func TestReassign(t *testing.T) {
	c := newTestComplaint(t, CategoryWater)
	first, second := types.NewID(), types.NewID()
	c.AssignTo(first, AssignOptions{}, adminID, filedAt)
	c.Transition(StatusInProgress, first, "", filedAt.Add(time.Hour))

	urgent := PriorityUrgent
	previous, err := c.AssignTo(second, AssignOptions{Priority: &urgent}, adminID, filedAt.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if previous == nil || *previous != first {
		t.Error("Expected previous assignee to be reported")
	}
	if c.Status != StatusAssigned || !c.IsAssignedTo(second) || c.Priority != PriorityUrgent {
		t.Errorf("Expected reassigned urgent complaint, got %s %s", c.Status, c.Priority)
	}

	historyLen := len(c.StatusHistory)
	previous, err = c.AssignTo(second, AssignOptions{}, adminID, filedAt.Add(3*time.Hour))
	if err != nil || previous != nil {
		t.Errorf("Expected same-technician assign to be a no-op, got %v %v", previous, err)
	}
	if len(c.StatusHistory) != historyLen {
		t.Error("Expected no history entry for same-technician assign")
	}
}

func TestAssignRequiresTechnician(t *testing.T) {
	c := newTestComplaint(t, CategoryWater)

	if _, err := c.AssignTo("", AssignOptions{}, adminID, filedAt); !errors.Is(err, apperrors.ErrMissingAssignment) {
		t.Fatalf("Expected MissingAssignment, got %v", err)
	}
	if c.Status != StatusSubmitted || c.AssignedTo != nil {
		t.Error("Expected complaint unchanged after failed assign")
	}
}

func TestAssignTerminalComplaint(t *testing.T) {
	c := newTestComplaint(t, CategoryWater)
	c.Transition(StatusRejected, adminID, "", filedAt)

	if _, err := c.AssignTo(types.NewID(), AssignOptions{}, adminID, filedAt); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Errorf("Expected InvalidTransition, got %v", err)
	}
}

func TestAddNote(t *testing.T) {
	c := newTestComplaint(t, CategoryWater)
	if err := c.AddNote("  ", adminID, filedAt); err == nil {
		t.Error("Expected error for empty note")
	}
	if err := c.AddNote("called citizen", adminID, filedAt); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(c.InternalNotes) != 1 || c.InternalNotes[0].AddedBy != adminID {
		t.Errorf("Expected one note by admin, got %+v", c.InternalNotes)
	}
}

func TestComputeResolutionHours(t *testing.T) {
	base := time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		resolved time.Time
		expected int
	}{
		{"sixty hours", time.Date(2024, 2, 7, 12, 0, 0, 0, time.UTC), 60},
		{"rounds half up", base.Add(90 * time.Minute), 2},
		{"rounds down", base.Add(89 * time.Minute), 1},
		{"same instant", base, 0},
		{"clock skew", base.Add(-3 * time.Hour), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeResolutionHours(base, tt.resolved); got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}
