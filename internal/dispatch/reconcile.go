package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/ai-call-dispatch/internal/domain"
	"github.com/acme/ai-call-dispatch/internal/repository"
	"github.com/acme/ai-call-dispatch/internal/telephony"
	"github.com/acme/ai-call-dispatch/pkg/logger"
)

// CredentialSource resolves a tenant's telephony credentials.
type CredentialSource interface {
	GetTelephonyCredentials(ctx context.Context, tenantID uuid.UUID) (domain.Credentials, error)
}

// Reconciler settles leads left in_progress by a run that died after placing
// their call. It must only run for campaigns whose run lock is free.
type Reconciler struct {
	leads      repository.LeadStore
	creds      CredentialSource
	telephony  telephony.Provider
	events     StatusPublisher
	staleAfter time.Duration
	log        *logger.Logger
	now        func() time.Time
}

// NewReconciler constructs a reconciler. A lead is stale once it has been
// in_progress for staleAfter, which should match the dispatcher's max poll
// duration. events may be nil.
func NewReconciler(leads repository.LeadStore, creds CredentialSource, phone telephony.Provider, events StatusPublisher, staleAfter time.Duration, log *logger.Logger) *Reconciler {
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Reconciler{
		leads:      leads,
		creds:      creds,
		telephony:  phone,
		events:     events,
		staleAfter: staleAfter,
		log:        log,
		now:        time.Now,
	}
}

// Reconcile resolves every stale in_progress lead of the campaign through the
// provider and returns how many were written.
func (c *Reconciler) Reconcile(ctx context.Context, campaignID, tenantID uuid.UUID) (int, error) {
	stale, err := c.leads.ListInProgress(ctx, campaignID, tenantID, c.now().Add(-c.staleAfter))
	if err != nil {
		return 0, fmt.Errorf("reconcile: list in-progress leads: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	creds, err := c.creds.GetTelephonyCredentials(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("reconcile: telephony credentials: %w", err)
	}

	log := c.log.ForCampaign(campaignID, tenantID)
	settled := 0
	for _, lead := range stale {
		status, detail := c.resolve(ctx, lead, creds)
		update := domain.LeadStatusUpdate{
			LeadID:     lead.ID,
			TenantID:   tenantID,
			CampaignID: campaignID,
			Status:     status,
		}
		if detail != "" {
			update.LastError = &detail
		}

		if err := c.leads.UpdateLeadStatus(ctx, update); err != nil {
			log.Warn("reconcile: lead status write failed", zap.String("lead_id", lead.ID.String()), zap.Error(err))
			continue
		}
		if c.events != nil {
			if err := c.events.PublishLeadStatus(ctx, update, c.now().UTC()); err != nil {
				log.Warn("reconcile: lead status event not published", zap.String("lead_id", lead.ID.String()), zap.Error(err))
			}
		}
		log.Info("reconcile: stale lead settled",
			zap.String("lead_id", lead.ID.String()),
			zap.String("status", string(status)))
		settled++
	}
	return settled, nil
}

func (c *Reconciler) resolve(ctx context.Context, lead domain.Lead, creds domain.Credentials) (domain.LeadStatus, string) {
	if lead.CallSessionID == nil || *lead.CallSessionID == "" {
		return domain.LeadStatusError, "run ended before the call session was recorded"
	}

	state, err := c.telephony.FetchStatus(ctx, *lead.CallSessionID, creds)
	if err != nil {
		return domain.LeadStatusError, fmt.Sprintf("call state unavailable after run ended: %v", err)
	}
	if status, terminal := Classify(state); terminal {
		return status, ""
	}
	return domain.LeadStatusTimeout, fmt.Sprintf("no terminal call state after %s", c.staleAfter)
}
