// Package mocks provides testify mocks of the repository interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/acme/ai-call-dispatch/internal/domain"
)

// CampaignStore mocks repository.CampaignStore.
type CampaignStore struct {
	mock.Mock
}

func (m *CampaignStore) Get(ctx context.Context, id, tenantID uuid.UUID) (*domain.Campaign, error) {
	args := m.Called(ctx, id, tenantID)
	campaign, _ := args.Get(0).(*domain.Campaign)
	return campaign, args.Error(1)
}

func (m *CampaignStore) GetCampaignStatus(ctx context.Context, id, tenantID uuid.UUID) (domain.CampaignStatus, error) {
	args := m.Called(ctx, id, tenantID)
	return args.Get(0).(domain.CampaignStatus), args.Error(1)
}

func (m *CampaignStore) TransitionStatus(ctx context.Context, id, tenantID uuid.UUID, from []domain.CampaignStatus, to domain.CampaignStatus) error {
	args := m.Called(ctx, id, tenantID, from, to)
	return args.Error(0)
}

func (m *CampaignStore) ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]*domain.Campaign, error) {
	args := m.Called(ctx, status, limit)
	campaigns, _ := args.Get(0).([]*domain.Campaign)
	return campaigns, args.Error(1)
}

// LeadStore mocks repository.LeadStore.
type LeadStore struct {
	mock.Mock
}

func (m *LeadStore) GetPendingLeads(ctx context.Context, campaignID, tenantID uuid.UUID, maxAttempts int) ([]domain.Lead, error) {
	args := m.Called(ctx, campaignID, tenantID, maxAttempts)
	leads, _ := args.Get(0).([]domain.Lead)
	return leads, args.Error(1)
}

func (m *LeadStore) UpdateLeadStatus(ctx context.Context, update domain.LeadStatusUpdate) error {
	args := m.Called(ctx, update)
	return args.Error(0)
}

func (m *LeadStore) ListInProgress(ctx context.Context, campaignID, tenantID uuid.UUID, updatedBefore time.Time) ([]domain.Lead, error) {
	args := m.Called(ctx, campaignID, tenantID, updatedBefore)
	leads, _ := args.Get(0).([]domain.Lead)
	return leads, args.Error(1)
}

func (m *LeadStore) CountByStatus(ctx context.Context, campaignID, tenantID uuid.UUID) (map[domain.LeadStatus]int64, error) {
	args := m.Called(ctx, campaignID, tenantID)
	counts, _ := args.Get(0).(map[domain.LeadStatus]int64)
	return counts, args.Error(1)
}

func (m *LeadStore) CountPending(ctx context.Context, campaignID, tenantID uuid.UUID, maxAttempts int) (int64, error) {
	args := m.Called(ctx, campaignID, tenantID, maxAttempts)
	return args.Get(0).(int64), args.Error(1)
}

// AttemptLog mocks repository.AttemptLog.
type AttemptLog struct {
	mock.Mock
}

func (m *AttemptLog) AppendAttempt(ctx context.Context, attempt domain.CallAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *AttemptLog) ListAttempts(ctx context.Context, leadID uuid.UUID, limit int) ([]domain.CallAttempt, error) {
	args := m.Called(ctx, leadID, limit)
	attempts, _ := args.Get(0).([]domain.CallAttempt)
	return attempts, args.Error(1)
}
