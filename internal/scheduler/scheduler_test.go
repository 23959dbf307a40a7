package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/acme/ai-call-dispatch/internal/domain"
	"github.com/acme/ai-call-dispatch/internal/queue"
	"github.com/acme/ai-call-dispatch/internal/repository/mocks"
)

type stubLocks struct {
	held map[uuid.UUID]bool
	err  error
}

func (l stubLocks) IsHeld(_ context.Context, id uuid.UUID) (bool, error) {
	return l.held[id], l.err
}

type stubReconciler struct {
	settled map[uuid.UUID]int
	err     error
	calls   []uuid.UUID
}

func (r *stubReconciler) Reconcile(_ context.Context, campaignID, _ uuid.UUID) (int, error) {
	r.calls = append(r.calls, campaignID)
	return r.settled[campaignID], r.err
}

type recordingPublisher struct {
	requests []queue.DispatchRequest
	err      error
}

func (p *recordingPublisher) PublishDispatch(_ context.Context, req queue.DispatchRequest) error {
	if p.err != nil {
		return p.err
	}
	p.requests = append(p.requests, req)
	return nil
}

func activeCampaign() *domain.Campaign {
	return &domain.Campaign{ID: uuid.New(), TenantID: uuid.New(), Status: domain.CampaignStatusActive}
}

func TestTickRequeuesStalledCampaigns(t *testing.T) {
	stalled, running, drained := activeCampaign(), activeCampaign(), activeCampaign()

	campaigns := &mocks.CampaignStore{}
	campaigns.On("ListByStatus", mock.Anything, domain.CampaignStatusActive, 50).
		Return([]*domain.Campaign{stalled, running, drained}, nil)

	leads := &mocks.LeadStore{}
	leads.On("CountPending", mock.Anything, stalled.ID, stalled.TenantID, 3).Return(int64(2), nil)
	leads.On("CountPending", mock.Anything, drained.ID, drained.TenantID, 3).Return(int64(0), nil)

	pub := &recordingPublisher{}
	rec := &stubReconciler{settled: map[uuid.UUID]int{drained.ID: 1}}
	s := newScheduler(campaigns, leads, stubLocks{held: map[uuid.UUID]bool{running.ID: true}}, rec, pub, time.Minute, 50, 3, nil)

	queued, err := s.tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	require.Len(t, pub.requests, 1)
	assert.Equal(t, stalled.ID, pub.requests[0].CampaignID)
	assert.Equal(t, stalled.TenantID, pub.requests[0].TenantID)
	assert.Equal(t, queue.TriggerSweep, pub.requests[0].Trigger)
	assert.Equal(t, []uuid.UUID{stalled.ID, drained.ID}, rec.calls, "campaigns with a live run are not reconciled")
	campaigns.AssertExpectations(t)
	leads.AssertExpectations(t)
	leads.AssertNotCalled(t, "CountPending", mock.Anything, running.ID, running.TenantID, 3)
}

func TestTickReconcileFailureStillRequeues(t *testing.T) {
	c := activeCampaign()

	campaigns := &mocks.CampaignStore{}
	campaigns.On("ListByStatus", mock.Anything, domain.CampaignStatusActive, 200).Return([]*domain.Campaign{c}, nil)
	leads := &mocks.LeadStore{}
	leads.On("CountPending", mock.Anything, c.ID, c.TenantID, 3).Return(int64(1), nil)

	pub := &recordingPublisher{}
	rec := &stubReconciler{err: errors.New("credentials missing")}
	s := newScheduler(campaigns, leads, stubLocks{}, rec, pub, 0, 0, 3, nil)
	queued, err := s.tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, queued)
	assert.Equal(t, []uuid.UUID{c.ID}, rec.calls)
}

func TestTickSkipsOnLockOrPublishFailure(t *testing.T) {
	c := activeCampaign()

	campaigns := &mocks.CampaignStore{}
	campaigns.On("ListByStatus", mock.Anything, domain.CampaignStatusActive, 200).Return([]*domain.Campaign{c}, nil)
	leads := &mocks.LeadStore{}
	leads.On("CountPending", mock.Anything, c.ID, c.TenantID, 3).Return(int64(1), nil)

	pub := &recordingPublisher{}
	rec := &stubReconciler{}
	s := newScheduler(campaigns, leads, stubLocks{err: errors.New("redis down")}, rec, pub, 0, 0, 3, nil)
	queued, err := s.tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, queued)
	assert.Empty(t, pub.requests)
	assert.Empty(t, rec.calls)

	pub.err = errors.New("kafka down")
	s = newScheduler(campaigns, leads, stubLocks{}, rec, pub, 0, 0, 3, nil)
	queued, err = s.tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, queued)
}

func TestTickListFailure(t *testing.T) {
	campaigns := &mocks.CampaignStore{}
	campaigns.On("ListByStatus", mock.Anything, domain.CampaignStatusActive, 200).Return(nil, errors.New("db down"))

	s := newScheduler(campaigns, &mocks.LeadStore{}, stubLocks{}, &stubReconciler{}, &recordingPublisher{}, 0, 0, 3, nil)
	_, err := s.tick(context.Background())
	assert.Error(t, err)
}
