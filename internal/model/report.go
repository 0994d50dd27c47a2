package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ReportStatus string

const (
	ReportPending    ReportStatus = "pending"
	ReportDispatched ReportStatus = "dispatched"
	ReportFalseAlarm ReportStatus = "false_alarm"
	// ReportAttended is part of the vocabulary but nothing transitions into it.
	ReportAttended ReportStatus = "attended"
)

// CanTransition reports whether a report may move from s to next.
func (s ReportStatus) CanTransition(next ReportStatus) bool {
	if s != ReportPending {
		return false
	}
	return next == ReportDispatched || next == ReportFalseAlarm
}

type EmergencyReport struct {
	ID                  uuid.UUID      `json:"id" db:"id"`
	UserID              uuid.UUID      `json:"user_id" db:"user_id"`
	UserPhone           string         `json:"user_phone" db:"user_phone"`
	UserName            string         `json:"user_name" db:"user_name"`
	CreatedAt           time.Time      `json:"created_at" db:"created_at"`
	Location            Location       `json:"location"`
	Description         string         `json:"description,omitempty" db:"description"`
	AccidentType        AccidentType   `json:"accident_type" db:"accident_type"`
	InjuredCount        int            `json:"injured_count" db:"injured_count"`
	TriageAnswers       TriageAnswers  `json:"triage_answers" db:"triage_answers"`
	ImageURL            string         `json:"image_url" db:"image_url"`
	AIAnalysis          ReportAnalysis `json:"ai_analysis" db:"ai_analysis"`
	Status              ReportStatus   `json:"status" db:"status"`
	AssignedAmbulanceID *uuid.UUID     `json:"assigned_ambulance_id,omitempty" db:"assigned_ambulance_id"`
	DispatchedAt        *time.Time     `json:"dispatched_at,omitempty" db:"dispatched_at"`
	HospitalID          *uuid.UUID     `json:"hospital_id,omitempty" db:"hospital_id"`
}

// Dispatch applies the dispatch transition in memory. Callers persisting the
// change must guard the same precondition atomically.
func (r *EmergencyReport) Dispatch(hospitalID, ambulanceID uuid.UUID, at time.Time) error {
	if !r.Status.CanTransition(ReportDispatched) {
		return fmt.Errorf("cannot dispatch report in status %s", r.Status)
	}
	r.Status = ReportDispatched
	r.AssignedAmbulanceID = &ambulanceID
	r.DispatchedAt = &at
	r.HospitalID = &hospitalID
	return nil
}

func (r *EmergencyReport) MarkFalseAlarm() error {
	if !r.Status.CanTransition(ReportFalseAlarm) {
		return fmt.Errorf("cannot mark report in status %s as false alarm", r.Status)
	}
	r.Status = ReportFalseAlarm
	return nil
}

// ReportDraft is what the reporting flow collects before the report exists.
type ReportDraft struct {
	Account     *Account
	Location    Location
	Description string
	ImageURL    string
}

type ReportFilter struct {
	Status     *ReportStatus
	UserID     *uuid.UUID
	HospitalID *uuid.UUID
	// IncludeUntagged widens a HospitalID filter to reports with no hospital.
	IncludeUntagged bool
}

type DispatchRequest struct {
	AmbulanceID uuid.UUID `json:"ambulance_id" binding:"required"`
}

// OperatorSnapshot is what an operator dashboard needs on each refresh.
type OperatorSnapshot struct {
	Pending      []*EmergencyReport `json:"pending"`
	Ambulances   []*Ambulance       `json:"ambulances"`
	Drivers      []*Driver          `json:"drivers"`
	HasAvailable bool               `json:"has_available"`
	GeneratedAt  time.Time          `json:"generated_at"`
}
