package model

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Session is the server-side record behind a session token.
type Session struct {
	ID         string     `json:"id"`
	AccountID  uuid.UUID  `json:"account_id"`
	Role       Role       `json:"role"`
	HospitalID *uuid.UUID `json:"hospital_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

// AuthSession is the active session as returned to a client.
type AuthSession struct {
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	Account   *Account  `json:"account"`
	Hospital  *Hospital `json:"hospital,omitempty"`
	SessionID string    `json:"-"`
}

// TokenClaims represents JWT claims
type TokenClaims struct {
	jwt.RegisteredClaims
	SessionID string    `json:"sid"`
	AccountID uuid.UUID `json:"account_id"`
	Role      Role      `json:"role"`
}
