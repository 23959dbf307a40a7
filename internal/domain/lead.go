package domain

import (
	"time"

	"github.com/google/uuid"
)

// LeadStatus enumerates the call-outcome lifecycle of a lead.
type LeadStatus string

const (
	LeadStatusPending     LeadStatus = "pending"
	LeadStatusInProgress  LeadStatus = "in_progress"
	LeadStatusCompleted   LeadStatus = "completed"
	LeadStatusFailed      LeadStatus = "failed"
	LeadStatusBusy        LeadStatus = "busy"
	LeadStatusNoAnswer    LeadStatus = "no_answer"
	LeadStatusCancelled   LeadStatus = "cancelled"
	LeadStatusError       LeadStatus = "error"
	LeadStatusTimeout     LeadStatus = "timeout"
	LeadStatusScheduled   LeadStatus = "scheduled"
	LeadStatusBlacklisted LeadStatus = "blacklisted"
)

// IsTerminal reports whether the engine never revisits a lead in this status on its own.
func (s LeadStatus) IsTerminal() bool {
	switch s {
	case LeadStatusCompleted, LeadStatusFailed, LeadStatusBusy, LeadStatusNoAnswer,
		LeadStatusCancelled, LeadStatusError, LeadStatusTimeout:
		return true
	}
	return false
}

// IsDispatchable reports whether a lead in this status may be picked up by a dispatch run.
func (s LeadStatus) IsDispatchable() bool {
	return s == LeadStatusPending || s == LeadStatusScheduled
}

// Lead is a phone contact target within a campaign.
type Lead struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	CampaignID    uuid.UUID
	PhoneNumber   string
	Status        LeadStatus
	AttemptsMade  int
	CallSessionID *string
	LastError     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LeadStatusUpdate is a single-row, tenant-scoped status transition.
type LeadStatusUpdate struct {
	LeadID        uuid.UUID
	TenantID      uuid.UUID
	CampaignID    uuid.UUID
	Status        LeadStatus
	CallSessionID *string
	// CountAttempt increments attempts_made alongside the status write.
	CountAttempt bool
	LastError    *string
}
