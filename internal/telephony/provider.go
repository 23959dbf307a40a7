package telephony

import (
	"context"

	"github.com/acme/ai-call-dispatch/internal/domain"
)

// PlaceCallRequest describes an outbound call bridged to an AI session.
type PlaceCallRequest struct {
	From        string
	To          string
	JoinTarget  domain.JoinTarget
	Credentials domain.Credentials
}

// Provider abstracts the telephony integration.
//
// Implementations wrap every transport, HTTP and credential failure in
// errors.ErrProvider.
type Provider interface {
	// PlaceCall initiates the call and returns the provider's call session id.
	PlaceCall(ctx context.Context, req PlaceCallRequest) (string, error)
	// FetchStatus returns the normalized state of a previously placed call.
	FetchStatus(ctx context.Context, callSessionID string, creds domain.Credentials) (domain.ProviderCallState, error)
}
