package model

import (
	"time"

	"github.com/google/uuid"
)

type AmbulanceStatus string

const (
	AmbulanceAvailable AmbulanceStatus = "available"
	AmbulanceInUse     AmbulanceStatus = "in_use"
)

func (s AmbulanceStatus) Valid() bool {
	return s == AmbulanceAvailable || s == AmbulanceInUse
}

// Ambulance status is the single source of truth for dispatch eligibility.
type Ambulance struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	PlateNumber string          `json:"plate_number" db:"plate_number"`
	Status      AmbulanceStatus `json:"status" db:"status"`
	HospitalID  uuid.UUID       `json:"hospital_id" db:"hospital_id"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Driver may reference at most one ambulance, and an ambulance is referenced
// by at most one driver.
type Driver struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	FirstName     string     `json:"first_name" db:"first_name"`
	LastName      string     `json:"last_name" db:"last_name"`
	LicenseNumber string     `json:"license_number" db:"license_number"`
	HospitalID    uuid.UUID  `json:"hospital_id" db:"hospital_id"`
	AmbulanceID   *uuid.UUID `json:"ambulance_id,omitempty" db:"ambulance_id"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

type AmbulanceRequest struct {
	PlateNumber string          `json:"plate_number" binding:"required"`
	Status      AmbulanceStatus `json:"status" binding:"omitempty,oneof=available in_use"`
}

type DriverRequest struct {
	FirstName     string     `json:"first_name" binding:"required"`
	LastName      string     `json:"last_name" binding:"required"`
	LicenseNumber string     `json:"license_number" binding:"required"`
	AmbulanceID   *uuid.UUID `json:"ambulance_id"`
}

type FleetSummary struct {
	Ambulances          int  `json:"ambulances"`
	AvailableAmbulances int  `json:"available_ambulances"`
	InUseAmbulances     int  `json:"in_use_ambulances"`
	Drivers             int  `json:"drivers"`
	AssignedDrivers     int  `json:"assigned_drivers"`
	UnassignedDrivers   int  `json:"unassigned_drivers"`
	HasAvailable        bool `json:"has_available"`
}
