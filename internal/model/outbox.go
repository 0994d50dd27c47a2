package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusRetry      OutboxStatus = "retry"
	OutboxStatusProcessed  OutboxStatus = "processed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// Event types written to the outbox.
const (
	EventReportSubmitted  = "report.submitted"
	EventReportDispatched = "report.dispatched"
	EventReportFalseAlarm = "report.false_alarm"
	EventAccountBlocked   = "account.blocked"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
}

// NewOutboxEvent marshals payload into a pending event.
func NewOutboxEvent(eventType string, payload interface{}) (*OutboxEvent, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   b,
		Status:    OutboxStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Envelope is what gets published for an outbox event.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type ReportEvent struct {
	ReportID    uuid.UUID    `json:"report_id"`
	UserID      uuid.UUID    `json:"user_id"`
	Status      ReportStatus `json:"status"`
	TriageLevel TriageLevel  `json:"triage_level"`
	HospitalID  *uuid.UUID   `json:"hospital_id,omitempty"`
	AmbulanceID *uuid.UUID   `json:"ambulance_id,omitempty"`
	Location    Location     `json:"location"`
	At          time.Time    `json:"at"`
}

type AccountBlockedEvent struct {
	AccountID uuid.UUID `json:"account_id"`
	Email     string    `json:"email"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}
