// Package identity is the IdentityStore and SessionStore: users,
// companies, functions, teams, memberships, manager assignments, and the
// refresh/invite/reset token records tied to a user's session lifecycle.
package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/vactrail/backend/internal/authz"
)

type Company struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	Domain    string
	Settings  map[string]interface{}
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

type Function struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Name      string
	Code      string
}

type Team struct {
	ID         uuid.UUID
	FunctionID uuid.UUID
	CompanyID  uuid.UUID
	Name       string
	Code       string
}

type User struct {
	ID                uuid.UUID
	CompanyID         uuid.UUID
	PrimaryFunctionID uuid.UUID
	Email             string
	FirstName         string
	LastName          string
	PasswordHash      string
	Role              authz.Role
	IsActive          bool
	EmailVerified     bool
	LastLoginAt       *time.Time
	FailedLoginCount  int
	LockedUntil       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
}

type TeamMembership struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TeamID    uuid.UUID
	IsPrimary bool
	JoinedAt  time.Time
	LeftAt    *time.Time
}

type ManagerAssignment struct {
	ID            uuid.UUID
	ManagerUserID uuid.UUID
	TeamID        uuid.UUID
	AssignedBy    uuid.UUID
	AssignedAt    time.Time
}

type RefreshTokenRecord struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	TokenHash    string
	FamilyID     uuid.UUID
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	LastUsedAt   *time.Time
	UserAgent    string
	IP           string
	IsRememberMe bool
	CreatedAt    time.Time
}

type InviteToken struct {
	ID           uuid.UUID
	TokenHash    string
	CompanyID    uuid.UUID
	FunctionID   uuid.UUID
	TeamIDs      []uuid.UUID
	Email        string
	RoleToAssign authz.Role
	InvitedBy    uuid.UUID
	ExpiresAt    time.Time
	UsedAt       *time.Time
	CreatedAt    time.Time
}

type PasswordResetToken struct {
	ID        uuid.UUID
	TokenHash string
	UserID    uuid.UUID
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}
