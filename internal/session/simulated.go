package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/acme/ai-call-dispatch/internal/domain"
)

// SimulatedRequester hands out local join targets without calling out.
type SimulatedRequester struct{}

// CreateSession implements Requester.
func (SimulatedRequester) CreateSession(ctx context.Context, _ domain.SessionConfig) (domain.JoinTarget, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return domain.JoinTarget("wss://sim.local/sessions/" + uuid.NewString()), nil
}
