package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser     Role = "user"
	RoleOperator Role = "operator"
)

// Account identifies a principal. Email and phone are unique across all
// accounts. IsBlocked is a permanent ban and is never cleared.
type Account struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Phone        string    `json:"phone" db:"phone"`
	CI           string    `json:"ci,omitempty" db:"ci"`
	Role         Role      `json:"role" db:"role"`
	IsBlocked    bool      `json:"is_blocked" db:"is_blocked"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

func (a *Account) IsOperator() bool {
	return a.Role == RoleOperator
}

// DisplayName is what operators see as the reporter's name.
func (a *Account) DisplayName() string {
	return a.Email
}

const HospitalTypePrivate = "private"

// Hospital is owned 1:1 by an operator account and is immutable once created.
type Hospital struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Location   Location  `json:"location" db:"location"`
	Type       string    `json:"type" db:"type"`
	AdminPhone string    `json:"admin_phone" db:"admin_phone"`
	EntityID   string    `json:"entity_id" db:"entity_id"`
	Email      string    `json:"email" db:"email"`
	OperatorID uuid.UUID `json:"operator_id" db:"operator_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Phone    string `json:"phone" binding:"required,phone8"`
	CI       string `json:"ci" binding:"required,ci"`
}

type RegisterOperatorRequest struct {
	Email        string    `json:"email" binding:"required,email"`
	Password     string    `json:"password" binding:"required,min=6"`
	HospitalName string    `json:"hospital_name" binding:"required"`
	AdminPhone   string    `json:"admin_phone" binding:"required,phone8"`
	EntityID     string    `json:"entity_id" binding:"required"`
	Location     *Location `json:"location"`
	Address      string    `json:"address"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}
