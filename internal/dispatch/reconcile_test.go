package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme/ai-call-dispatch/internal/domain"
	apperrors "github.com/acme/ai-call-dispatch/pkg/errors"
)

type stubCreds struct {
	err error
}

func (s stubCreds) GetTelephonyCredentials(context.Context, uuid.UUID) (domain.Credentials, error) {
	return testCreds, s.err
}

func inProgressLead(campaignID, tenantID uuid.UUID, callID string) domain.Lead {
	lead := domain.Lead{ID: uuid.New(), CampaignID: campaignID, TenantID: tenantID, Status: domain.LeadStatusInProgress, AttemptsMade: 1}
	if callID != "" {
		lead.CallSessionID = &callID
	}
	return lead
}

func TestReconcileSettlesStaleLeads(t *testing.T) {
	campaignID, tenantID := uuid.New(), uuid.New()
	completed := inProgressLead(campaignID, tenantID, "CA1")
	ringing := inProgressLead(campaignID, tenantID, "CA2")
	orphan := inProgressLead(campaignID, tenantID, "")
	unknown := inProgressLead(campaignID, tenantID, "CA4")

	leads := &fakeLeads{inProgress: []domain.Lead{completed, ringing, orphan, unknown}}
	phone := newFakeTelephony()
	phone.script = func(callID string, _ int) (domain.ProviderCallState, error) {
		switch callID {
		case "CA1":
			return domain.ProviderCallCompleted, nil
		case "CA2":
			return domain.ProviderCallRinging, nil
		}
		return "", apperrors.ErrProvider
	}
	events := &fakeEvents{}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := NewReconciler(leads, stubCreds{}, phone, events, 10*time.Minute, nil)
	rec.now = func() time.Time { return now }

	n, err := rec.Reconcile(context.Background(), campaignID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, now.Add(-10*time.Minute), leads.cutoff)

	want := map[uuid.UUID]domain.LeadStatus{
		completed.ID: domain.LeadStatusCompleted,
		ringing.ID:   domain.LeadStatusTimeout,
		orphan.ID:    domain.LeadStatusError,
		unknown.ID:   domain.LeadStatusError,
	}
	for id, status := range want {
		updates := leads.updatesFor(id)
		require.Len(t, updates, 1)
		assert.Equal(t, status, updates[0].Status)
		assert.False(t, updates[0].CountAttempt, "the attempt was counted when the call was placed")
		assert.Equal(t, tenantID, updates[0].TenantID)
	}
	assert.Nil(t, leads.updatesFor(completed.ID)[0].LastError)
	require.NotNil(t, leads.updatesFor(ringing.ID)[0].LastError)
	assert.Contains(t, *leads.updatesFor(ringing.ID)[0].LastError, "no terminal call state")
	assert.Len(t, events.updates, 4)
	assert.Empty(t, phone.placedNumbers())
}

func TestReconcileNothingStale(t *testing.T) {
	leads := &fakeLeads{}
	rec := NewReconciler(leads, stubCreds{err: errors.New("unused")}, newFakeTelephony(), nil, time.Minute, nil)

	n, err := rec.Reconcile(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReconcileCredentialsMissing(t *testing.T) {
	campaignID, tenantID := uuid.New(), uuid.New()
	lead := inProgressLead(campaignID, tenantID, "CA1")
	leads := &fakeLeads{inProgress: []domain.Lead{lead}}

	rec := NewReconciler(leads, stubCreds{err: apperrors.ErrNotFound}, newFakeTelephony(), nil, time.Minute, nil)
	_, err := rec.Reconcile(context.Background(), campaignID, tenantID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, leads.updatesFor(lead.ID))
}
