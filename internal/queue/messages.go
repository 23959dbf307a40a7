package queue

import (
	"time"

	"github.com/google/uuid"
)

// Dispatch triggers.
const (
	TriggerStart  = "start"
	TriggerResume = "resume"
	TriggerSweep  = "sweep"
)

// DispatchRequest asks a worker to run Dispatch for one campaign.
type DispatchRequest struct {
	CampaignID  uuid.UUID `json:"campaign_id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Trigger     string    `json:"trigger"`
	RequestedAt time.Time `json:"requested_at"`
}

// LeadStatusEvent describes one persisted lead transition.
type LeadStatusEvent struct {
	LeadID        uuid.UUID `json:"lead_id"`
	CampaignID    uuid.UUID `json:"campaign_id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	Status        string    `json:"status"`
	CallSessionID string    `json:"call_session_id,omitempty"`
	AttemptsDelta int       `json:"attempts_delta"`
	Error         string    `json:"error,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
