package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/ai-call-dispatch/internal/domain"
	"github.com/acme/ai-call-dispatch/internal/queue"
	"github.com/acme/ai-call-dispatch/internal/repository"
	apperrors "github.com/acme/ai-call-dispatch/pkg/errors"
	"github.com/acme/ai-call-dispatch/pkg/logger"
)

// MessageNoPendingLeads is reported when a start or resume finds nothing to call.
const MessageNoPendingLeads = "no pending leads"

// DispatchPublisher enqueues background dispatch runs.
type DispatchPublisher interface {
	PublishDispatch(ctx context.Context, req queue.DispatchRequest) error
}

// Service orchestrates campaign lifecycle operations.
type Service struct {
	campaigns   repository.CampaignStore
	leads       repository.LeadStore
	attempts    repository.AttemptLog
	publisher   DispatchPublisher
	maxAttempts int
	log         *logger.Logger
}

// NewService constructs a campaign service. attempts may be nil.
func NewService(
	campaigns repository.CampaignStore,
	leads repository.LeadStore,
	attempts repository.AttemptLog,
	publisher DispatchPublisher,
	maxAttempts int,
	log *logger.Logger,
) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		campaigns:   campaigns,
		leads:       leads,
		attempts:    attempts,
		publisher:   publisher,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// TransitionResult reports the outcome of a lifecycle action.
type TransitionResult struct {
	CampaignID     uuid.UUID
	Status         domain.CampaignStatus
	PendingLeads   int64
	DispatchQueued bool
	Message        string
}

// Start moves a draft campaign to active and queues its dispatch.
func (s *Service) Start(ctx context.Context, id, tenantID uuid.UUID) (*TransitionResult, error) {
	return s.activate(ctx, id, tenantID, domain.CampaignStatusDraft, queue.TriggerStart)
}

// Resume moves a paused campaign back to active and queues its dispatch.
func (s *Service) Resume(ctx context.Context, id, tenantID uuid.UUID) (*TransitionResult, error) {
	return s.activate(ctx, id, tenantID, domain.CampaignStatusPaused, queue.TriggerResume)
}

// Pause stops new calls. A call already bridged is left to finish.
func (s *Service) Pause(ctx context.Context, id, tenantID uuid.UUID) (*TransitionResult, error) {
	if err := s.campaigns.TransitionStatus(ctx, id, tenantID,
		[]domain.CampaignStatus{domain.CampaignStatusActive}, domain.CampaignStatusPaused); err != nil {
		return nil, fmt.Errorf("campaign service: pause: %w", err)
	}
	return s.withPending(ctx, id, tenantID, domain.CampaignStatusPaused)
}

// Complete closes the campaign from any status.
func (s *Service) Complete(ctx context.Context, id, tenantID uuid.UUID) (*TransitionResult, error) {
	from := []domain.CampaignStatus{
		domain.CampaignStatusDraft,
		domain.CampaignStatusActive,
		domain.CampaignStatusPaused,
		domain.CampaignStatusCompleted,
	}
	if err := s.campaigns.TransitionStatus(ctx, id, tenantID, from, domain.CampaignStatusCompleted); err != nil {
		return nil, fmt.Errorf("campaign service: complete: %w", err)
	}
	return s.withPending(ctx, id, tenantID, domain.CampaignStatusCompleted)
}

// Summary returns lead counts by status plus aggregates.
func (s *Service) Summary(ctx context.Context, id, tenantID uuid.UUID) (*domain.CampaignSummary, error) {
	campaign, err := s.campaigns.Get(ctx, id, tenantID)
	if err != nil {
		return nil, fmt.Errorf("campaign service: get: %w", err)
	}
	counts, err := s.leads.CountByStatus(ctx, id, tenantID)
	if err != nil {
		return nil, fmt.Errorf("campaign service: count leads: %w", err)
	}
	summary := domain.NewCampaignSummary(campaign.ID, campaign.Status, counts)
	return &summary, nil
}

// LeadAttempts returns the tenant's call attempt history for a lead, newest first.
func (s *Service) LeadAttempts(ctx context.Context, leadID, tenantID uuid.UUID, limit int) ([]domain.CallAttempt, error) {
	if s.attempts == nil {
		return nil, fmt.Errorf("%w: attempt history not configured", apperrors.ErrUnavailable)
	}
	attempts, err := s.attempts.ListAttempts(ctx, leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("campaign service: list attempts: %w", err)
	}
	owned := attempts[:0]
	for _, a := range attempts {
		if a.TenantID == tenantID {
			owned = append(owned, a)
		}
	}
	return owned, nil
}

func (s *Service) activate(ctx context.Context, id, tenantID uuid.UUID, from domain.CampaignStatus, trigger string) (*TransitionResult, error) {
	if err := s.campaigns.TransitionStatus(ctx, id, tenantID,
		[]domain.CampaignStatus{from}, domain.CampaignStatusActive); err != nil {
		return nil, fmt.Errorf("campaign service: %s: %w", trigger, err)
	}

	result, err := s.withPending(ctx, id, tenantID, domain.CampaignStatusActive)
	if err != nil {
		return nil, err
	}
	if result.PendingLeads == 0 {
		result.Message = MessageNoPendingLeads
		return result, nil
	}

	req := queue.DispatchRequest{
		CampaignID:  id,
		TenantID:    tenantID,
		Trigger:     trigger,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.publisher.PublishDispatch(ctx, req); err != nil {
		// The campaign is active; the sweeper re-enqueues it.
		s.log.Warn("dispatch request not published",
			zap.String("campaign_id", id.String()),
			zap.String("trigger", trigger),
			zap.Error(err))
		return nil, fmt.Errorf("%w: queue dispatch: %v", apperrors.ErrUnavailable, err)
	}

	result.DispatchQueued = true
	result.Message = fmt.Sprintf("dispatch queued for %d pending leads", result.PendingLeads)
	return result, nil
}

func (s *Service) withPending(ctx context.Context, id, tenantID uuid.UUID, status domain.CampaignStatus) (*TransitionResult, error) {
	pending, err := s.leads.CountPending(ctx, id, tenantID, s.maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("campaign service: count pending: %w", err)
	}
	return &TransitionResult{CampaignID: id, Status: status, PendingLeads: pending}, nil
}
