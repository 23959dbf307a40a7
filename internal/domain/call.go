package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProviderCallState is the telephony provider's view of a call, normalized.
type ProviderCallState string

const (
	ProviderCallQueued     ProviderCallState = "queued"
	ProviderCallRinging    ProviderCallState = "ringing"
	ProviderCallInProgress ProviderCallState = "in_progress"
	ProviderCallCompleted  ProviderCallState = "completed"
	ProviderCallBusy       ProviderCallState = "busy"
	ProviderCallFailed     ProviderCallState = "failed"
	ProviderCallNoAnswer   ProviderCallState = "no_answer"
	ProviderCallCancelled  ProviderCallState = "cancelled"
)

// ProviderCallStates lists every defined provider state.
var ProviderCallStates = []ProviderCallState{
	ProviderCallQueued,
	ProviderCallRinging,
	ProviderCallInProgress,
	ProviderCallCompleted,
	ProviderCallBusy,
	ProviderCallFailed,
	ProviderCallNoAnswer,
	ProviderCallCancelled,
}

// NormalizeProviderCallState maps raw provider vocabulary ("in-progress",
// "no-answer", "canceled") onto ProviderCallState. ok is false for unknown values.
func NormalizeProviderCallState(raw string) (ProviderCallState, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	if s == "canceled" {
		s = string(ProviderCallCancelled)
	}
	for _, known := range ProviderCallStates {
		if string(known) == s {
			return known, true
		}
	}
	return "", false
}

// JoinTarget is the opaque locator a placed call is bridged to.
type JoinTarget string

// Credentials are the tenant's telephony account settings.
type Credentials struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// SessionConfig is the tenant's AI conversation configuration.
type SessionConfig struct {
	APIKey       string
	Model        string
	Voice        string
	SystemPrompt string
	FirstSpeaker string
	Temperature  float64
}

// CallAttempt captures one dispatch iteration for a lead.
type CallAttempt struct {
	LeadID         uuid.UUID
	CampaignID     uuid.UUID
	TenantID       uuid.UUID
	AttemptNumber  int
	JoinTarget     JoinTarget
	ProviderCallID string
	ProviderState  ProviderCallState
	FinalStatus    LeadStatus
	Error          string
	PollCount      int
	StartedAt      time.Time
	EndedAt        time.Time
}

// Duration is the wall time from provisioning to classification.
func (a CallAttempt) Duration() time.Duration {
	if a.EndedAt.IsZero() || a.StartedAt.IsZero() {
		return 0
	}
	return a.EndedAt.Sub(a.StartedAt)
}
