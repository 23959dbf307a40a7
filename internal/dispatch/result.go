package dispatch

import (
	"github.com/google/uuid"

	"github.com/acme/ai-call-dispatch/internal/domain"
)

// HaltReason explains why a run stopped before exhausting its leads.
type HaltReason string

const (
	HaltCampaignInactive HaltReason = "campaign_inactive"
	HaltInterrupted      HaltReason = "interrupted"
	HaltLockLost         HaltReason = "lock_lost"
)

// Outcome is the recorded result of one attempted lead.
type Outcome struct {
	LeadID         uuid.UUID         `json:"lead_id"`
	Status         domain.LeadStatus `json:"status"`
	ProviderCallID string            `json:"provider_call_id,omitempty"`
	ErrorKind      string            `json:"error_kind,omitempty"`
	ErrorDetail    string            `json:"error_detail,omitempty"`
	// Persisted is false when the final status write could not be stored.
	Persisted bool `json:"persisted"`
}

// Result lists every lead attempted by one Dispatch call, in order.
type Result struct {
	CampaignID uuid.UUID  `json:"campaign_id"`
	TenantID   uuid.UUID  `json:"tenant_id"`
	Outcomes   []Outcome  `json:"outcomes"`
	HaltReason HaltReason `json:"halt_reason,omitempty"`
	// Skipped counts loaded leads that were not dispatchable or at the attempt cap.
	Skipped int `json:"skipped"`
}

// Halted reports whether the run stopped before running out of leads.
func (r Result) Halted() bool {
	return r.HaltReason != ""
}

// Summary aggregates a Result.
type Summary struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Summary counts completed leads as succeeded and everything else as failed.
func (r Result) Summary() Summary {
	s := Summary{Attempted: len(r.Outcomes)}
	for _, o := range r.Outcomes {
		if o.Status == domain.LeadStatusCompleted && o.Persisted {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}
