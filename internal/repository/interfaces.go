package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/acme/ai-call-dispatch/internal/domain"
	apperrors "github.com/acme/ai-call-dispatch/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates the row was not in the expected state.
	ErrConflict = apperrors.ErrConflict
)

// CampaignStore persists campaign records and status.
type CampaignStore interface {
	Get(ctx context.Context, id, tenantID uuid.UUID) (*domain.Campaign, error)
	GetCampaignStatus(ctx context.Context, id, tenantID uuid.UUID) (domain.CampaignStatus, error)
	// TransitionStatus moves the campaign to `to` only if its current status is one of `from`.
	TransitionStatus(ctx context.Context, id, tenantID uuid.UUID, from []domain.CampaignStatus, to domain.CampaignStatus) error
	ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]*domain.Campaign, error)
}

// LeadStore persists leads and their status transitions.
type LeadStore interface {
	// GetPendingLeads returns dispatchable leads below the attempt cap, in dispatch order.
	GetPendingLeads(ctx context.Context, campaignID, tenantID uuid.UUID, maxAttempts int) ([]domain.Lead, error)
	UpdateLeadStatus(ctx context.Context, update domain.LeadStatusUpdate) error
	// ListInProgress returns in_progress leads last written before updatedBefore.
	ListInProgress(ctx context.Context, campaignID, tenantID uuid.UUID, updatedBefore time.Time) ([]domain.Lead, error)
	CountByStatus(ctx context.Context, campaignID, tenantID uuid.UUID) (map[domain.LeadStatus]int64, error)
	CountPending(ctx context.Context, campaignID, tenantID uuid.UUID, maxAttempts int) (int64, error)
}

// TenantConfigStore resolves tenant-scoped provider configuration.
type TenantConfigStore interface {
	GetTelephonyCredentials(ctx context.Context, tenantID uuid.UUID) (domain.Credentials, error)
	GetAISessionConfig(ctx context.Context, tenantID uuid.UUID) (domain.SessionConfig, error)
}

// AttemptLog keeps the per-lead call attempt history.
type AttemptLog interface {
	AppendAttempt(ctx context.Context, attempt domain.CallAttempt) error
	ListAttempts(ctx context.Context, leadID uuid.UUID, limit int) ([]domain.CallAttempt, error)
}
