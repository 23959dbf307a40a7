package dispatch

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/ai-call-dispatch/internal/domain"
	"github.com/acme/ai-call-dispatch/internal/repository"
	"github.com/acme/ai-call-dispatch/pkg/logger"
)

// CampaignStatusReader is the slice of the campaign store the gate needs.
type CampaignStatusReader interface {
	GetCampaignStatus(ctx context.Context, id, tenantID uuid.UUID) (domain.CampaignStatus, error)
}

// Gate answers whether a campaign may still place calls. It never caches.
type Gate struct {
	campaigns CampaignStatusReader
	log       *logger.Logger
}

// NewGate constructs a gate over the campaign store.
func NewGate(campaigns CampaignStatusReader, log *logger.Logger) *Gate {
	if log == nil {
		log = logger.NewNop()
	}
	return &Gate{campaigns: campaigns, log: log}
}

// IsActive re-reads the persisted status. Missing campaigns and read
// failures count as inactive.
func (g *Gate) IsActive(ctx context.Context, campaignID, tenantID uuid.UUID) bool {
	status, err := g.campaigns.GetCampaignStatus(ctx, campaignID, tenantID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) && ctx.Err() == nil {
			g.log.Warn("gate status read failed",
				zap.String("campaign_id", campaignID.String()),
				zap.Error(err))
		}
		return false
	}
	return status == domain.CampaignStatusActive
}
