package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/acme/ai-call-dispatch/internal/domain"
	"github.com/acme/ai-call-dispatch/internal/session"
	"github.com/acme/ai-call-dispatch/internal/telephony"
	apperrors "github.com/acme/ai-call-dispatch/pkg/errors"
)

type fakeCampaigns struct {
	mu     sync.Mutex
	status domain.CampaignStatus
	err    error
	reads  int
}

func (f *fakeCampaigns) GetCampaignStatus(context.Context, uuid.UUID, uuid.UUID) (domain.CampaignStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.status, f.err
}

func (f *fakeCampaigns) set(status domain.CampaignStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

type fakeLeads struct {
	mu         sync.Mutex
	leads      []domain.Lead
	pendingErr error
	updates    []domain.LeadStatusUpdate
	failUpdate func(u domain.LeadStatusUpdate, call int) error
	calls      int
	inProgress []domain.Lead
	cutoff     time.Time
}

func (f *fakeLeads) GetPendingLeads(context.Context, uuid.UUID, uuid.UUID, int) ([]domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendingErr != nil {
		return nil, f.pendingErr
	}
	return append([]domain.Lead(nil), f.leads...), nil
}

func (f *fakeLeads) UpdateLeadStatus(_ context.Context, u domain.LeadStatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failUpdate != nil {
		if err := f.failUpdate(u, f.calls); err != nil {
			return err
		}
	}
	f.updates = append(f.updates, u)
	return nil
}

func (f *fakeLeads) ListInProgress(_ context.Context, _, _ uuid.UUID, updatedBefore time.Time) ([]domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoff = updatedBefore
	return append([]domain.Lead(nil), f.inProgress...), nil
}

func (f *fakeLeads) CountByStatus(context.Context, uuid.UUID, uuid.UUID) (map[domain.LeadStatus]int64, error) {
	return nil, nil
}

func (f *fakeLeads) CountPending(context.Context, uuid.UUID, uuid.UUID, int) (int64, error) {
	return 0, nil
}

func (f *fakeLeads) updatesFor(leadID uuid.UUID) []domain.LeadStatusUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.LeadStatusUpdate
	for _, u := range f.updates {
		if u.LeadID == leadID {
			out = append(out, u)
		}
	}
	return out
}

var testCreds = domain.Credentials{AccountSID: "AC1", AuthToken: "tok", FromNumber: "+15550000"}

type fakeProvisioner struct {
	mu   sync.Mutex
	n    int
	fail map[int]error
}

func (f *fakeProvisioner) Provision(context.Context, uuid.UUID) (session.Provisioned, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	if err := f.fail[f.n]; err != nil {
		return session.Provisioned{}, err
	}
	return session.Provisioned{
		JoinTarget:  domain.JoinTarget(fmt.Sprintf("wss://ai.test/join/%d", f.n)),
		Credentials: testCreds,
	}, nil
}

type fakeTelephony struct {
	mu         sync.Mutex
	n          int
	placeErr   map[int]error
	script     func(callID string, poll int) (domain.ProviderCallState, error)
	afterFetch func(callID string, poll int, state domain.ProviderCallState)
	placed     []string
	placedIn   []trace.SpanContext
	polls      map[string]int
	open       map[string]bool
	overlapped bool
}

func newFakeTelephony() *fakeTelephony {
	return &fakeTelephony{
		polls: make(map[string]int),
		open:  make(map[string]bool),
		script: func(_ string, poll int) (domain.ProviderCallState, error) {
			if poll < 2 {
				return domain.ProviderCallRinging, nil
			}
			return domain.ProviderCallCompleted, nil
		},
	}
}

func (f *fakeTelephony) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	if err := f.placeErr[f.n]; err != nil {
		return "", err
	}
	if len(f.open) > 0 {
		f.overlapped = true
	}
	callID := fmt.Sprintf("CA%d", f.n)
	f.placed = append(f.placed, req.To)
	f.placedIn = append(f.placedIn, trace.SpanContextFromContext(ctx))
	f.open[callID] = true
	return callID, nil
}

func (f *fakeTelephony) FetchStatus(_ context.Context, callID string, _ domain.Credentials) (domain.ProviderCallState, error) {
	f.mu.Lock()
	f.polls[callID]++
	poll := f.polls[callID]
	state, err := f.script(callID, poll)
	if err == nil {
		if _, terminal := Classify(state); terminal {
			delete(f.open, callID)
		}
	}
	hook := f.afterFetch
	f.mu.Unlock()

	if hook != nil && err == nil {
		hook(callID, poll, state)
	}
	return state, err
}

func (f *fakeTelephony) placedNumbers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.placed...)
}

type fakeEvents struct {
	mu      sync.Mutex
	updates []domain.LeadStatusUpdate
}

func (f *fakeEvents) PublishLeadStatus(_ context.Context, u domain.LeadStatusUpdate, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	return nil
}

type fakeAttempts struct {
	mu       sync.Mutex
	attempts []domain.CallAttempt
}

func (f *fakeAttempts) AppendAttempt(_ context.Context, a domain.CallAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, a)
	return nil
}

func (f *fakeAttempts) ListAttempts(context.Context, uuid.UUID, int) ([]domain.CallAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CallAttempt(nil), f.attempts...), nil
}

var errConfigMissing = fmt.Errorf("session: ai session config: %w", apperrors.ErrConfigurationMissing)
