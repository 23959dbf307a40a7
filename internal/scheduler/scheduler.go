package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/ai-call-dispatch/internal/app"
	"github.com/acme/ai-call-dispatch/internal/domain"
	"github.com/acme/ai-call-dispatch/internal/queue"
	"github.com/acme/ai-call-dispatch/pkg/logger"
)

type campaignLister interface {
	ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]*domain.Campaign, error)
}

type pendingCounter interface {
	CountPending(ctx context.Context, campaignID, tenantID uuid.UUID, maxAttempts int) (int64, error)
}

type lockInspector interface {
	IsHeld(ctx context.Context, campaignID uuid.UUID) (bool, error)
}

type staleLeadReconciler interface {
	Reconcile(ctx context.Context, campaignID, tenantID uuid.UUID) (int, error)
}

type dispatchPublisher interface {
	PublishDispatch(ctx context.Context, req queue.DispatchRequest) error
}

// Scheduler periodically re-queues active campaigns that still have pending
// leads but no dispatch run holding them. Leads a dead run left in_progress
// are settled first.
type Scheduler struct {
	campaigns   campaignLister
	leads       pendingCounter
	locks       lockInspector
	reconciler  staleLeadReconciler
	publisher   dispatchPublisher
	interval    time.Duration
	batchSize   int
	maxAttempts int
	log         *logger.Logger
	tracer      trace.Tracer
}

// New constructs a scheduler.
func New(container *app.Container) (*Scheduler, error) {
	reconciler, err := container.Reconciler()
	if err != nil {
		return nil, err
	}
	cfg := container.Config
	repos := container.Repositories()
	return newScheduler(
		repos.Campaign,
		repos.Leads,
		container.Locks().Run,
		reconciler,
		container.Publishers().Dispatch,
		cfg.Scheduler.TickInterval,
		cfg.Scheduler.CampaignBatchSize,
		cfg.Dispatch.MaxAttempts,
		container.Logger,
	), nil
}

func newScheduler(campaigns campaignLister, leads pendingCounter, locks lockInspector, reconciler staleLeadReconciler,
	publisher dispatchPublisher, interval time.Duration, batchSize, maxAttempts int, log *logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{
		campaigns:   campaigns,
		leads:       leads,
		locks:       locks,
		reconciler:  reconciler,
		publisher:   publisher,
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		log:         log,
		tracer:      otel.Tracer("github.com/acme/ai-call-dispatch/scheduler"),
	}
}

// Run executes the sweep loop until cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.tick(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("scheduler tick failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tick returns the number of campaigns re-queued.
func (s *Scheduler) tick(ctx context.Context) (int, error) {
	sctx, span := s.tracer.Start(ctx, "scheduler.tick")
	defer span.End()

	campaigns, err := s.campaigns.ListByStatus(sctx, domain.CampaignStatusActive, s.batchSize)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("campaign.count", len(campaigns)))

	queued := 0
	for _, c := range campaigns {
		if ctx.Err() != nil {
			return queued, ctx.Err()
		}
		if s.sweep(sctx, c) {
			queued++
		}
	}

	s.log.Info("scheduler: sweep finished", zap.Int("active", len(campaigns)), zap.Int("requeued", queued))
	return queued, nil
}

func (s *Scheduler) sweep(ctx context.Context, c *domain.Campaign) bool {
	log := s.log.ForCampaign(c.ID, c.TenantID)

	held, err := s.locks.IsHeld(ctx, c.ID)
	if err != nil {
		log.Warn("scheduler: inspect run lock", zap.Error(err))
		return false
	}
	if held {
		log.Debug("scheduler: dispatch already running")
		return false
	}

	if settled, err := s.reconciler.Reconcile(ctx, c.ID, c.TenantID); err != nil {
		log.Error("scheduler: reconcile stale leads", zap.Error(err))
	} else if settled > 0 {
		log.Info("scheduler: stale leads settled", zap.Int("settled", settled))
	}

	pending, err := s.leads.CountPending(ctx, c.ID, c.TenantID, s.maxAttempts)
	if err != nil {
		log.Error("scheduler: count pending", zap.Error(err))
		return false
	}
	if pending == 0 {
		return false
	}

	req := queue.DispatchRequest{
		CampaignID:  c.ID,
		TenantID:    c.TenantID,
		Trigger:     queue.TriggerSweep,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.publisher.PublishDispatch(ctx, req); err != nil {
		log.Error("scheduler: publish dispatch", zap.Error(err))
		return false
	}
	log.Info("scheduler: campaign re-queued", zap.Int64("pending", pending))
	return true
}
