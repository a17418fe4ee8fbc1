package postgres

import (
	"time"

	"github.com/google/uuid"
)

type Org struct {
	ID               uuid.UUID
	Name             string
	ClientIDHash     string
	ClientSecretHash string
	Active           bool
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type CreateOrgParams struct {
	ID               uuid.UUID
	Name             string
	ClientIDHash     string
	ClientSecretHash string
}

const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type User struct {
	ID                 uuid.UUID
	OrgID              uuid.UUID
	Email              string
	PasswordHash       string
	Role               string
	Active             bool
	FailedLoginAttempts int
	LockedUntil        *time.Time
	LastLoginAt        *time.Time
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type CreateUserParams struct {
	ID           uuid.UUID
	OrgID        uuid.UUID
	Email        string
	PasswordHash string
	Role         string
}

// RefreshTokenRecord tracks an issued refresh token so it can be revoked and
// so reuse after rotation can be detected and audited.
type RefreshTokenRecord struct {
	TokenID   uuid.UUID
	UserID    uuid.UUID
	OrgID     uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
	CreatedAt time.Time
}

type CreateRefreshTokenParams struct {
	TokenID   uuid.UUID
	UserID    uuid.UUID
	OrgID     uuid.UUID
	TokenHash string
	ExpiresAt time.Time
}

type AuditEntry struct {
	ID        uuid.UUID
	OrgID     uuid.UUID
	UserID    *uuid.UUID
	Action    string
	Resource  string
	Status    string
	Details   map[string]any
	IPAddress *string
	UserAgent *string
	CreatedAt time.Time
}

type CreateAuditEntryParams struct {
	ID        uuid.UUID
	OrgID     uuid.UUID
	UserID    *uuid.UUID
	Action    string
	Resource  string
	Status    string
	Details   map[string]any
	IPAddress *string
	UserAgent *string
}
