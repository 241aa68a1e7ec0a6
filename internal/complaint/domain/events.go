package domain

import "github.com/gramseva/complaint-portal/internal/shared/types"

// Lifecycle event types published on the event bus
const (
	EventComplaintCreated       = "complaint.created"
	EventComplaintAssigned      = "complaint.assigned"
	EventComplaintStatusChanged = "complaint.status_changed"
	EventComplaintResolved      = "complaint.resolved"
	EventComplaintRejected      = "complaint.rejected"
	EventComplaintNoteAdded     = "complaint.note_added"

	EventTechnicianCreated = "technician.created"
	EventTechnicianUpdated = "technician.updated"
	EventTechnicianDeleted = "technician.deleted"
)

// ComplaintEventData is the payload of complaint.* events
type ComplaintEventData struct {
	ID           types.ID `json:"id"`
	ComplaintID  string   `json:"complaint_id"`
	Category     Category `json:"category"`
	Priority     Priority `json:"priority"`
	FromStatus   Status   `json:"from_status,omitempty"`
	Status       Status   `json:"status"`
	CitizenPhone string   `json:"citizen_phone"`
	CitizenName  string   `json:"citizen_name,omitempty"`

	TechnicianID         *types.ID `json:"technician_id,omitempty"`
	TechnicianName       string    `json:"technician_name,omitempty"`
	PreviousTechnicianID *types.ID `json:"previous_technician_id,omitempty"`

	ResolutionHours *int   `json:"resolution_hours,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// NewComplaintEventData snapshots the fields subscribers need
func NewComplaintEventData(c *Complaint) ComplaintEventData {
	return ComplaintEventData{
		ID:              c.ID,
		ComplaintID:     c.ComplaintID,
		Category:        c.Category,
		Priority:        c.Priority,
		Status:          c.Status,
		CitizenPhone:    c.CitizenPhone,
		CitizenName:     c.CitizenName,
		TechnicianID:    c.AssignedTo,
		ResolutionHours: c.ActualResolutionTime,
	}
}

// TechnicianEventData is the payload of technician.* events
type TechnicianEventData struct {
	ID             types.ID   `json:"id"`
	Name           string     `json:"name"`
	Specialization []Category `json:"specialization"`
	IsAvailable    bool       `json:"is_available"`
}
