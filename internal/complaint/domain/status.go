package domain

// Status is a complaint lifecycle state
type Status string

const (
	StatusSubmitted  Status = "submitted"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in-progress"
	StatusResolved   Status = "resolved"
	StatusRejected   Status = "rejected"
)

// Statuses lists every status in lifecycle order
var Statuses = []Status{
	StatusSubmitted,
	StatusAssigned,
	StatusInProgress,
	StatusResolved,
	StatusRejected,
}

// ActiveStatuses are the states that count against a technician's workload
var ActiveStatuses = []Status{StatusAssigned, StatusInProgress}

// transitions is the lifecycle table used by Transition. Reassignment
// (assigned or in-progress back to assigned) goes through AssignTo instead.
var transitions = map[Status][]Status{
	StatusSubmitted:  {StatusAssigned, StatusRejected},
	StatusAssigned:   {StatusInProgress, StatusResolved, StatusRejected},
	StatusInProgress: {StatusResolved},
	StatusResolved:   nil,
	StatusRejected:   nil,
}

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusRejected
}

// IsActive reports whether a complaint in s occupies its technician
func (s Status) IsActive() bool {
	return s == StatusAssigned || s == StatusInProgress
}

// HasAssignee reports whether a complaint in s must reference a technician
func (s Status) HasAssignee() bool {
	return s == StatusAssigned || s == StatusInProgress || s == StatusResolved
}

// CanTransition reports whether Transition may move a complaint from one status to another
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CanAssign reports whether a complaint in s may be (re)assigned
func CanAssign(s Status) bool {
	return s == StatusSubmitted || s == StatusAssigned || s == StatusInProgress
}
