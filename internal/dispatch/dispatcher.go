package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/ai-call-dispatch/internal/config"
	"github.com/acme/ai-call-dispatch/internal/domain"
	"github.com/acme/ai-call-dispatch/internal/repository"
	"github.com/acme/ai-call-dispatch/internal/service/concurrency"
	"github.com/acme/ai-call-dispatch/internal/session"
	"github.com/acme/ai-call-dispatch/internal/telephony"
	apperrors "github.com/acme/ai-call-dispatch/pkg/errors"
	"github.com/acme/ai-call-dispatch/pkg/logger"
)

// StatusPublisher receives every persisted lead transition.
type StatusPublisher interface {
	PublishLeadStatus(ctx context.Context, update domain.LeadStatusUpdate, occurredAt time.Time) error
}

// Options tunes a dispatcher.
type Options struct {
	PollInterval     time.Duration
	MaxPollDuration  time.Duration
	MaxFetchFailures int
	MaxAttempts      int
	PersistRetries   int
	PersistBackoff   time.Duration
}

// OptionsFromConfig converts the dispatch config section.
func OptionsFromConfig(cfg config.DispatchConfig) Options {
	return Options{
		PollInterval:     cfg.PollInterval,
		MaxPollDuration:  cfg.MaxPollDuration,
		MaxFetchFailures: cfg.MaxFetchFailures,
		MaxAttempts:      cfg.MaxAttempts,
		PersistRetries:   cfg.PersistRetries,
		PersistBackoff:   cfg.PersistBackoff,
	}
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.MaxPollDuration <= 0 {
		o.MaxPollDuration = 10 * time.Minute
	}
	if o.MaxFetchFailures <= 0 {
		o.MaxFetchFailures = 5
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.PersistRetries < 0 {
		o.PersistRetries = 0
	}
	if o.PersistBackoff <= 0 {
		o.PersistBackoff = 200 * time.Millisecond
	}
	return o
}

// Dependencies are the collaborators of a Dispatcher. Attempts, Events and
// Metrics are optional.
type Dependencies struct {
	Leads       repository.LeadStore
	Gate        *Gate
	Provisioner session.Provisioner
	Telephony   telephony.Provider
	Lock        concurrency.RunLock
	Attempts    repository.AttemptLog
	Events      StatusPublisher
	Metrics     *Metrics
	Logger      *logger.Logger
}

// Dispatcher walks a campaign's pending leads one call at a time.
type Dispatcher struct {
	deps   Dependencies
	opts   Options
	tracer trace.Tracer
	log    *logger.Logger
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(deps Dependencies, opts Options) *Dispatcher {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	if deps.Lock == nil {
		deps.Lock = concurrency.NewLocalRunLock()
	}
	return &Dispatcher{
		deps:   deps,
		opts:   opts.withDefaults(),
		tracer: otel.Tracer("github.com/acme/ai-call-dispatch/dispatch"),
		log:    log,
	}
}

// Dispatch runs the campaign's pending leads to completion or interruption.
//
// It returns errors.ErrDispatchInProgress when another run holds the
// campaign and an error when pending leads cannot be loaded. Per-lead
// failures are reported in the Result only. When ctx is cancelled the
// partial Result is returned together with ctx.Err(). When the run lock is
// lost the run halts the same way and returns errors.ErrRunLockLost.
func (d *Dispatcher) Dispatch(ctx context.Context, campaignID, tenantID uuid.UUID) (Result, error) {
	result := Result{CampaignID: campaignID, TenantID: tenantID}

	lease, err := d.deps.Lock.Acquire(ctx, campaignID)
	if err != nil {
		if errors.Is(err, apperrors.ErrDispatchInProgress) {
			return result, err
		}
		return result, fmt.Errorf("dispatch: acquire run lock: %w", err)
	}
	defer lease.Release()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-lease.Lost():
			cancel(apperrors.ErrRunLockLost)
		case <-ctx.Done():
		}
	}()

	ctx, span := d.tracer.Start(ctx, "dispatch.run", trace.WithAttributes(
		attribute.String("campaign.id", campaignID.String()),
		attribute.String("tenant.id", tenantID.String()),
	))
	defer span.End()

	leads, err := d.deps.Leads.GetPendingLeads(ctx, campaignID, tenantID, d.opts.MaxAttempts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load pending leads")
		return result, fmt.Errorf("dispatch: load pending leads: %w", err)
	}

	r := &run{
		d:      d,
		leads:  leads,
		result: result,
		log:    d.log.WithContext(ctx).ForCampaign(campaignID, tenantID),
	}
	r.log.Info("dispatch started", zap.Int("pending", len(leads)))

	for st := stateSelectNext; st != stateDone; {
		st = r.step(ctx, st)
	}

	summary := r.result.Summary()
	span.SetAttributes(
		attribute.Int("dispatch.attempted", summary.Attempted),
		attribute.String("dispatch.halt_reason", string(r.result.HaltReason)),
	)
	d.deps.Metrics.recordRun(ctx, r.result.HaltReason)
	r.log.Info("dispatch finished",
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", r.result.Skipped),
		zap.String("halt_reason", string(r.result.HaltReason)))

	switch r.result.HaltReason {
	case HaltInterrupted:
		return r.result, ctx.Err()
	case HaltLockLost:
		return r.result, fmt.Errorf("dispatch: %w", apperrors.ErrRunLockLost)
	}
	return r.result, nil
}

type state int

const (
	stateSelectNext state = iota
	stateGateCheck
	stateProvisioning
	statePlacing
	statePolling
	stateClassifying
	stateDone
)

func (s state) String() string {
	switch s {
	case stateSelectNext:
		return "select_next"
	case stateGateCheck:
		return "gate_check"
	case stateProvisioning:
		return "provisioning"
	case statePlacing:
		return "placing"
	case statePolling:
		return "polling"
	case stateClassifying:
		return "classifying"
	case stateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// run is the state owned by one Dispatch invocation.
type run struct {
	d      *Dispatcher
	leads  []domain.Lead
	next   int
	result Result
	log    *logger.Logger

	cur  *attempt
	halt HaltReason
}

// attempt is the in-flight call for one lead.
type attempt struct {
	lead        domain.Lead
	ctx         context.Context
	span        trace.Span
	log         *logger.Logger
	provisioned session.Provisioned
	callID      string
	providerSt  domain.ProviderCallState
	final       domain.LeadStatus
	err         error
	detail      string
	counted     bool
	polls       int
	startedAt   time.Time
}

func (r *run) step(ctx context.Context, st state) state {
	if r.cur != nil && r.cur.ctx != nil {
		ctx = r.cur.ctx
	}
	switch st {
	case stateSelectNext:
		return r.selectNext(ctx)
	case stateGateCheck:
		return r.gateCheck(ctx)
	case stateProvisioning:
		return r.provision(ctx)
	case statePlacing:
		return r.place(ctx)
	case statePolling:
		return r.poll(ctx)
	case stateClassifying:
		return r.classify(ctx)
	}
	panic(fmt.Sprintf("dispatch: unexpected state %s", st))
}

func (r *run) selectNext(ctx context.Context) state {
	if r.halt != "" {
		r.result.HaltReason = r.halt
		return stateDone
	}
	if ctx.Err() != nil {
		r.result.HaltReason, _ = interruption(ctx)
		return stateDone
	}

	for r.next < len(r.leads) {
		lead := r.leads[r.next]
		r.next++
		if !lead.Status.IsDispatchable() || lead.AttemptsMade >= r.d.opts.MaxAttempts {
			r.result.Skipped++
			continue
		}
		r.cur = &attempt{lead: lead}
		return stateGateCheck
	}
	return stateDone
}

func (r *run) gateCheck(ctx context.Context) state {
	if !r.d.deps.Gate.IsActive(ctx, r.result.CampaignID, r.result.TenantID) {
		r.log.Info("campaign no longer active, stopping dispatch",
			zap.Int("remaining", len(r.leads)-r.next+1))
		r.cur = nil
		if ctx.Err() != nil {
			r.result.HaltReason, _ = interruption(ctx)
		} else {
			r.result.HaltReason = HaltCampaignInactive
		}
		return stateDone
	}

	a := r.cur
	a.ctx, a.span = r.d.tracer.Start(ctx, "dispatch.lead", trace.WithAttributes(
		attribute.String("lead.id", a.lead.ID.String()),
	))
	a.log = r.log.WithContext(a.ctx).ForLead(a.lead.ID)
	a.startedAt = time.Now()
	return stateProvisioning
}

func (r *run) provision(ctx context.Context) state {
	a := r.cur
	provisioned, err := r.d.deps.Provisioner.Provision(ctx, r.result.TenantID)
	if err != nil {
		if ctx.Err() != nil {
			// Nothing was placed; the lead stays dispatchable.
			a.span.End()
			r.cur = nil
			r.result.HaltReason, _ = interruption(ctx)
			return stateDone
		}
		a.final = domain.LeadStatusFailed
		a.err = err
		return stateClassifying
	}
	a.provisioned = provisioned
	return statePlacing
}

func (r *run) place(ctx context.Context) state {
	a := r.cur
	callID, err := r.d.deps.Telephony.PlaceCall(ctx, telephony.PlaceCallRequest{
		From:        a.provisioned.Credentials.FromNumber,
		To:          a.lead.PhoneNumber,
		JoinTarget:  a.provisioned.JoinTarget,
		Credentials: a.provisioned.Credentials,
	})
	if err != nil {
		a.err = err
		if ctx.Err() != nil {
			a.final = domain.LeadStatusError
			r.halt, a.detail = interruption(ctx)
			return stateClassifying
		}
		a.final = domain.LeadStatusFailed
		return stateClassifying
	}
	a.callID = callID

	update := r.update(domain.LeadStatusInProgress, nil)
	if err := r.persist(ctx, update); err != nil {
		a.log.Error("failed to record call placement",
			zap.String("call_session_id", callID),
			zap.Error(err))
	} else {
		a.counted = true
		r.publish(ctx, update)
	}
	return statePolling
}

func (r *run) poll(ctx context.Context) state {
	a := r.cur
	opts := r.d.opts

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(opts.MaxPollDuration)
	defer deadline.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			a.final = domain.LeadStatusError
			r.halt, a.detail = interruption(ctx)
			return stateClassifying
		case <-deadline.C:
			a.final = domain.LeadStatusTimeout
			a.detail = fmt.Sprintf("no terminal call state after %s", opts.MaxPollDuration)
			return stateClassifying
		case <-ticker.C:
		}

		a.polls++
		r.d.deps.Metrics.recordPoll(ctx)

		if !r.d.deps.Gate.IsActive(ctx, r.result.CampaignID, r.result.TenantID) {
			if ctx.Err() != nil {
				continue
			}
			a.final = domain.LeadStatusCancelled
			r.halt = HaltCampaignInactive
			return stateClassifying
		}

		providerState, err := r.d.deps.Telephony.FetchStatus(ctx, a.callID, a.provisioned.Credentials)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			failures++
			a.log.Warn("call status fetch failed",
				zap.String("call_session_id", a.callID),
				zap.Int("consecutive_failures", failures),
				zap.Error(err))
			if failures >= opts.MaxFetchFailures {
				a.final = domain.LeadStatusError
				a.err = err
				return stateClassifying
			}
			continue
		}

		failures = 0
		a.providerSt = providerState
		if status, terminal := Classify(providerState); terminal {
			a.final = status
			return stateClassifying
		}
	}
}

func (r *run) classify(ctx context.Context) state {
	a := r.cur
	defer func() {
		a.span.End()
		r.cur = nil
	}()

	outcome := Outcome{
		LeadID:         a.lead.ID,
		Status:         a.final,
		ProviderCallID: a.callID,
		Persisted:      true,
	}
	if a.err != nil {
		outcome.ErrorKind = apperrors.Kind(a.err)
		outcome.ErrorDetail = a.err.Error()
	}
	if a.detail != "" {
		outcome.ErrorDetail = a.detail
	}

	var lastError *string
	if outcome.ErrorDetail != "" {
		detail := outcome.ErrorDetail
		lastError = &detail
	}

	// The checkpoint must land even when the run is being torn down.
	wctx := context.WithoutCancel(ctx)
	update := r.update(a.final, lastError)
	if err := r.persist(wctx, update); err != nil {
		outcome.Persisted = false
		outcome.ErrorKind = apperrors.KindPersistence
		if outcome.ErrorDetail != "" {
			outcome.ErrorDetail += "; "
		}
		outcome.ErrorDetail += err.Error()
		a.span.RecordError(err)
		a.span.SetStatus(codes.Error, "persist lead status")
		a.log.Error("failed to record lead outcome",
			zap.String("status", string(a.final)),
			zap.Error(err))
	} else {
		a.counted = true
		r.publish(wctx, update)
	}

	ended := time.Now()
	r.appendAttempt(wctx, a, ended)
	r.d.deps.Metrics.recordOutcome(wctx, outcome, ended.Sub(a.startedAt))

	a.span.SetAttributes(
		attribute.String("lead.status", string(outcome.Status)),
		attribute.String("call.id", outcome.ProviderCallID),
		attribute.Int("call.polls", a.polls),
	)
	a.log.Info("lead dispatched",
		zap.String("status", string(outcome.Status)),
		zap.String("call_session_id", outcome.ProviderCallID),
		zap.String("error_kind", outcome.ErrorKind),
		zap.Int("polls", a.polls))

	r.result.Outcomes = append(r.result.Outcomes, outcome)
	return stateSelectNext
}

// interruption names why ctx was cancelled and the detail recorded on the
// in-flight lead.
func interruption(ctx context.Context) (HaltReason, string) {
	if errors.Is(context.Cause(ctx), apperrors.ErrRunLockLost) {
		return HaltLockLost, "run lock lost"
	}
	return HaltInterrupted, "dispatch interrupted"
}

func (r *run) update(status domain.LeadStatus, lastError *string) domain.LeadStatusUpdate {
	a := r.cur
	u := domain.LeadStatusUpdate{
		LeadID:       a.lead.ID,
		TenantID:     r.result.TenantID,
		CampaignID:   r.result.CampaignID,
		Status:       status,
		CountAttempt: !a.counted,
		LastError:    lastError,
	}
	if a.callID != "" {
		callID := a.callID
		u.CallSessionID = &callID
	}
	return u
}

// persist writes a lead transition with bounded retries.
func (r *run) persist(ctx context.Context, update domain.LeadStatusUpdate) error {
	opts := r.d.opts

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = opts.PersistBackoff
	policy.MaxInterval = 10 * opts.PersistBackoff

	op := func() error {
		err := r.d.deps.Leads.UpdateLeadStatus(ctx, update)
		if errors.Is(err, repository.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(opts.PersistRetries)), ctx))
	if err != nil {
		return fmt.Errorf("%w: lead %s -> %s: %v", apperrors.ErrPersistence, update.LeadID, update.Status, err)
	}
	return nil
}

func (r *run) publish(ctx context.Context, update domain.LeadStatusUpdate) {
	if r.d.deps.Events == nil {
		return
	}
	if err := r.d.deps.Events.PublishLeadStatus(ctx, update, time.Now().UTC()); err != nil {
		r.log.Warn("lead status event not published",
			zap.String("lead_id", update.LeadID.String()),
			zap.Error(err))
	}
}

func (r *run) appendAttempt(ctx context.Context, a *attempt, ended time.Time) {
	if r.d.deps.Attempts == nil {
		return
	}
	record := domain.CallAttempt{
		LeadID:         a.lead.ID,
		CampaignID:     r.result.CampaignID,
		TenantID:       r.result.TenantID,
		AttemptNumber:  a.lead.AttemptsMade + 1,
		JoinTarget:     a.provisioned.JoinTarget,
		ProviderCallID: a.callID,
		ProviderState:  a.providerSt,
		FinalStatus:    a.final,
		Error:          a.detail,
		PollCount:      a.polls,
		StartedAt:      a.startedAt,
		EndedAt:        ended,
	}
	if record.Error == "" && a.err != nil {
		record.Error = a.err.Error()
	}
	if err := r.d.deps.Attempts.AppendAttempt(ctx, record); err != nil {
		a.log.Warn("attempt log write failed", zap.Error(err))
	}
}
