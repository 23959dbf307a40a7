package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/acme/ai-call-dispatch/internal/app"
	"github.com/acme/ai-call-dispatch/internal/dispatch"
	"github.com/acme/ai-call-dispatch/internal/queue"
	apperrors "github.com/acme/ai-call-dispatch/pkg/errors"
	"github.com/acme/ai-call-dispatch/pkg/logger"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type campaignDispatcher interface {
	Dispatch(ctx context.Context, campaignID, tenantID uuid.UUID) (dispatch.Result, error)
}

type pendingCounter interface {
	CountPending(ctx context.Context, campaignID, tenantID uuid.UUID, maxAttempts int) (int64, error)
}

// Worker consumes dispatch requests and runs one campaign per request.
type Worker struct {
	reader      messageReader
	dispatcher  campaignDispatcher
	leads       pendingCounter
	maxAttempts int
	limit       int
	log         *logger.Logger
	tracer      trace.Tracer
}

// New creates a worker reading the dispatch topic.
func New(container *app.Container) (*Worker, error) {
	d, err := container.Dispatcher()
	if err != nil {
		return nil, err
	}
	cfg := container.Config
	reader := container.Kafka.NewReader(cfg.Kafka.DispatchTopic, cfg.Kafka.ConsumerGroupID)
	return newWorker(reader, d, container.Repositories().Leads, cfg.Dispatch.MaxAttempts, cfg.Worker.MaxConcurrentCampaigns, container.Logger), nil
}

func newWorker(reader messageReader, d campaignDispatcher, leads pendingCounter, maxAttempts, limit int, log *logger.Logger) *Worker {
	if limit <= 0 {
		limit = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Worker{
		reader:      reader,
		dispatcher:  d,
		leads:       leads,
		maxAttempts: maxAttempts,
		limit:       limit,
		log:         log,
		tracer:      otel.Tracer("github.com/acme/ai-call-dispatch/worker"),
	}
}

// Run consumes until ctx is cancelled, running at most limit campaigns at a time.
// Requests are committed on acceptance; a run lost to a crash is picked up by
// the recovery sweep.
func (w *Worker) Run(ctx context.Context) error {
	defer w.reader.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.limit)

	for {
		m, err := w.reader.FetchMessage(gctx)
		if err != nil {
			if gctx.Err() != nil {
				break
			}
			w.log.Error("dispatch worker: fetch message", zap.Error(err))
			continue
		}

		req, ok := w.accept(gctx, m)
		if !ok {
			continue
		}

		g.Go(func() error {
			w.handle(gctx, req)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (w *Worker) accept(ctx context.Context, m kafka.Message) (queue.DispatchRequest, bool) {
	var req queue.DispatchRequest
	decodeErr := json.Unmarshal(m.Value, &req)
	if decodeErr == nil && (req.CampaignID == uuid.Nil || req.TenantID == uuid.Nil) {
		decodeErr = errors.New("missing campaign or tenant id")
	}

	if err := w.reader.CommitMessages(ctx, m); err != nil {
		w.log.Error("dispatch worker: commit message", zap.Error(err), zap.Int64("offset", m.Offset))
	}

	if decodeErr != nil {
		w.log.Warn("dispatch worker: dropping malformed request",
			zap.Error(fmt.Errorf("decode dispatch request: %w", decodeErr)),
			zap.Int64("offset", m.Offset))
		return queue.DispatchRequest{}, false
	}
	return req, true
}

func (w *Worker) handle(ctx context.Context, req queue.DispatchRequest) {
	ctx, span := w.tracer.Start(ctx, "worker.dispatch", trace.WithAttributes(
		attribute.String("campaign.id", req.CampaignID.String()),
		attribute.String("tenant.id", req.TenantID.String()),
		attribute.String("dispatch.trigger", req.Trigger),
	))
	defer span.End()

	log := w.log.WithContext(ctx).ForCampaign(req.CampaignID, req.TenantID)

	result, err := w.dispatcher.Dispatch(ctx, req.CampaignID, req.TenantID)
	switch {
	case errors.Is(err, apperrors.ErrDispatchInProgress):
		log.Info("dispatch worker: campaign already running, skipping", zap.String("trigger", req.Trigger))
		return
	case errors.Is(err, apperrors.ErrRunLockLost):
		summary := result.Summary()
		log.Warn("dispatch worker: run lock lost, run halted",
			zap.String("trigger", req.Trigger),
			zap.Int("attempted", summary.Attempted),
			zap.Int("succeeded", summary.Succeeded))
		return
	case err != nil && ctx.Err() == nil:
		span.RecordError(err)
		log.Error("dispatch worker: dispatch failed", zap.Error(err), zap.String("trigger", req.Trigger))
		return
	}

	summary := result.Summary()
	fields := []zap.Field{
		zap.String("trigger", req.Trigger),
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.String("halt_reason", string(result.HaltReason)),
	}
	if ctx.Err() == nil && w.leads != nil {
		pending, err := w.leads.CountPending(ctx, req.CampaignID, req.TenantID, w.maxAttempts)
		if err != nil {
			log.Warn("dispatch worker: count remaining leads", zap.Error(err))
		} else {
			fields = append(fields, zap.Int64("remaining_pending", pending))
		}
	}
	log.Info("dispatch worker: run complete", fields...)
}
