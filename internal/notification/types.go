package notification

import (
	"time"
)

// Channel is the delivery channel of a notification
type Channel string

const (
	ChannelSMS Channel = "sms"
)

// Status represents notification delivery status
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Notification is one message to a citizen about a complaint
type Notification struct {
	ID      string  `json:"id"`
	Channel Channel `json:"channel"`
	Status  Status  `json:"status"`

	// Recipient
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`

	SenderID string `json:"sender_id,omitempty"`
	Body     string `json:"body"`

	// Source event
	ComplaintID string `json:"complaint_id"`
	EventID     string `json:"event_id,omitempty"`
	EventType   string `json:"event_type"`

	RetryCount   int        `json:"retry_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
}

// Stats counts delivery outcomes since start
type Stats struct {
	TotalSent    int64            `json:"total_sent"`
	TotalFailed  int64            `json:"total_failed"`
	ByEventType  map[string]int64 `json:"by_event_type"`
	DeliveryRate float64          `json:"delivery_rate"`
}
