package mock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acme/ai-call-dispatch/internal/domain"
	"github.com/acme/ai-call-dispatch/internal/telephony"
	apperrors "github.com/acme/ai-call-dispatch/pkg/errors"
)

// Provider simulates outbound call behaviour for local runs.
//
// Each placed call walks queued -> ringing -> in_progress and then settles on
// a terminal state drawn from the configured success rate.
type Provider struct {
	successRate float64
	stepsPerTick int

	mu    sync.Mutex
	rng   *rand.Rand
	calls map[string]*simulatedCall
}

type simulatedCall struct {
	polls    int
	terminal domain.ProviderCallState
}

var progression = []domain.ProviderCallState{
	domain.ProviderCallQueued,
	domain.ProviderCallRinging,
	domain.ProviderCallInProgress,
}

// NewProvider constructs a simulated provider.
func NewProvider() *Provider {
	return NewProviderWithSeed(time.Now().UnixNano(), 0.8)
}

// NewProviderWithSeed constructs a simulated provider with deterministic randomness.
func NewProviderWithSeed(seed int64, successRate float64) *Provider {
	return &Provider{
		successRate:  successRate,
		stepsPerTick: 1,
		rng:          rand.New(rand.NewSource(seed)),
		calls:        make(map[string]*simulatedCall),
	}
}

// PlaceCall registers a simulated call.
func (p *Provider) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("telephony: place call: %w: %v", apperrors.ErrProvider, err)
	}
	if req.To == "" || req.JoinTarget == "" {
		return "", fmt.Errorf("telephony: place call: %w: missing destination or join target", apperrors.ErrProvider)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	sid := "SIM" + uuid.NewString()
	p.calls[sid] = &simulatedCall{terminal: p.drawTerminal()}
	return sid, nil
}

// FetchStatus advances the simulated call by one step.
func (p *Provider) FetchStatus(ctx context.Context, callSessionID string, _ domain.Credentials) (domain.ProviderCallState, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("telephony: fetch status: %w: %v", apperrors.ErrProvider, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	call, ok := p.calls[callSessionID]
	if !ok {
		return "", fmt.Errorf("telephony: fetch status: %w: unknown call %s", apperrors.ErrProvider, callSessionID)
	}

	step := call.polls
	call.polls += p.stepsPerTick
	if step < len(progression) {
		return progression[step], nil
	}
	delete(p.calls, callSessionID)
	return call.terminal, nil
}

func (p *Provider) drawTerminal() domain.ProviderCallState {
	if p.rng.Float64() <= p.successRate {
		return domain.ProviderCallCompleted
	}
	failures := []domain.ProviderCallState{
		domain.ProviderCallBusy,
		domain.ProviderCallNoAnswer,
		domain.ProviderCallFailed,
	}
	return failures[p.rng.Intn(len(failures))]
}
