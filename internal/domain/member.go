package domain

import (
	"time"

	"github.com/google/uuid"
)

// Member represents an end user that can authenticate against the service.
// Federation-only members carry a hash of a random value so that password
// login can never succeed for them.
type Member struct {
	ID           uuid.UUID
	Email        string
	Nickname     string
	PasswordHash string
	Role         Role
	IsActivated  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FederatedIdentity links a Member to an external provider account. The pair
// (Provider, ProviderUserID) is unique; a row is written once at first login
// and reused afterwards.
type FederatedIdentity struct {
	ID             int64
	MemberID       uuid.UUID
	Provider       string
	ProviderUserID string
	Email          string
	AccessToken    string
	CreatedAt      time.Time
}
