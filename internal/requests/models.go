// Package requests is the RequestEngine: the vacation request state
// machine from spec.md §4.8 — create, submit, approve, reject, cancel,
// withdraw, modify — with row-level locking for the approve/reject race
// and allocation debits/credits kept in the same transaction as the
// status transition.
package requests

import (
	"time"

	"github.com/google/uuid"
)

// Status is one of the six states in the request lifecycle.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusWithdrawn Status = "withdrawn"
)

// Type is the vacation_request_type enum.
type Type string

const (
	TypeAnnual   Type = "annual"
	TypeSick     Type = "sick"
	TypePersonal Type = "personal"
	TypeUnpaid   Type = "unpaid"
	TypeOther    Type = "other"
)

// nonTerminal are the statuses counted in the overlap check (I4) — draft
// is excluded per spec.md §4.8.
var nonTerminal = map[Status]bool{
	StatusPending:  true,
	StatusApproved: true,
}

// Request mirrors the vacation_requests row.
type Request struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	TeamID         *uuid.UUID
	StartDate      time.Time
	EndDate        time.Time
	RequestType    Type
	Status         Status
	Reason         string
	ApproverID     *uuid.UUID
	ApprovedAt     *time.Time
	RejectedReason *string
	PeriodID       *uuid.UUID
	DaysCount      *float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateInput is the payload for create/modify.
type CreateInput struct {
	UserID      uuid.UUID
	TeamID      *uuid.UUID
	StartDate   time.Time
	EndDate     time.Time
	RequestType Type
	Reason      string
}

// Config holds the policy flags spec.md §4.8/§9 leaves as explicit
// open-question decisions, read once at startup.
type Config struct {
	// AllowAllocationOverdraw permits approve to push days_used past
	// total_available instead of failing AllocationExceeded. Defaults to
	// false (hard deny) per spec.md §9's resolution of the two
	// disagreeing source documents.
	AllowAllocationOverdraw bool
}
