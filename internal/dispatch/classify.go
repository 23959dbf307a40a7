package dispatch

import "github.com/acme/ai-call-dispatch/internal/domain"

// Classify maps a provider call state to the lead status it resolves to.
// terminal is false for states that keep the poll loop running.
func Classify(state domain.ProviderCallState) (status domain.LeadStatus, terminal bool) {
	switch state {
	case domain.ProviderCallCompleted:
		return domain.LeadStatusCompleted, true
	case domain.ProviderCallBusy:
		return domain.LeadStatusBusy, true
	case domain.ProviderCallFailed:
		return domain.LeadStatusFailed, true
	case domain.ProviderCallNoAnswer:
		return domain.LeadStatusNoAnswer, true
	case domain.ProviderCallCancelled:
		return domain.LeadStatusCancelled, true
	case domain.ProviderCallQueued, domain.ProviderCallRinging, domain.ProviderCallInProgress:
		return domain.LeadStatusInProgress, false
	default:
		return domain.LeadStatusInProgress, false
	}
}
