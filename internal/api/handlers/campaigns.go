package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/ai-call-dispatch/internal/domain"
	campaignsvc "github.com/acme/ai-call-dispatch/internal/service/campaign"
	apperrors "github.com/acme/ai-call-dispatch/pkg/errors"
)

// TenantHeader carries the caller's tenant id.
const TenantHeader = "X-Tenant-ID"

type transitionResponse struct {
	CampaignID     uuid.UUID             `json:"campaign_id"`
	Status         domain.CampaignStatus `json:"status"`
	PendingLeads   int64                 `json:"pending_leads"`
	DispatchQueued bool                  `json:"dispatch_queued"`
	Message        string                `json:"message,omitempty"`
}

type summaryResponse struct {
	CampaignID uuid.UUID                   `json:"campaign_id"`
	Status     domain.CampaignStatus       `json:"status"`
	ByStatus   map[domain.LeadStatus]int64 `json:"by_status"`
	Attempted  int64                       `json:"attempted"`
	Succeeded  int64                       `json:"succeeded"`
	Failed     int64                       `json:"failed"`
	Pending    int64                       `json:"pending"`
}

type attemptResponse struct {
	AttemptNumber  int                      `json:"attempt_number"`
	CampaignID     uuid.UUID                `json:"campaign_id"`
	ProviderCallID string                   `json:"provider_call_id,omitempty"`
	ProviderState  domain.ProviderCallState `json:"provider_state,omitempty"`
	FinalStatus    domain.LeadStatus        `json:"final_status"`
	Error          string                   `json:"error,omitempty"`
	PollCount      int                      `json:"poll_count"`
	StartedAt      time.Time                `json:"started_at"`
	EndedAt        time.Time                `json:"ended_at"`
	DurationMs     int64                    `json:"duration_ms"`
}

type listAttemptsResponse struct {
	LeadID   uuid.UUID         `json:"lead_id"`
	Attempts []attemptResponse `json:"attempts"`
}

type transitionFunc func(ctx context.Context, id, tenantID uuid.UUID) (*campaignsvc.TransitionResult, error)

func (h *HandlerSet) startCampaign(ctx *fiber.Ctx) error {
	return h.transition(ctx, h.campaigns.Start)
}

func (h *HandlerSet) pauseCampaign(ctx *fiber.Ctx) error {
	return h.transition(ctx, h.campaigns.Pause)
}

func (h *HandlerSet) resumeCampaign(ctx *fiber.Ctx) error {
	return h.transition(ctx, h.campaigns.Resume)
}

func (h *HandlerSet) completeCampaign(ctx *fiber.Ctx) error {
	return h.transition(ctx, h.campaigns.Complete)
}

func (h *HandlerSet) transition(ctx *fiber.Ctx, fn transitionFunc) error {
	id, tenantID, err := campaignScope(ctx)
	if err != nil {
		return translateError(err)
	}

	result, err := fn(ctx.UserContext(), id, tenantID)
	if err != nil {
		return translateError(err)
	}

	status := http.StatusOK
	if result.DispatchQueued {
		status = http.StatusAccepted
	}
	return ctx.Status(status).JSON(transitionResponse{
		CampaignID:     result.CampaignID,
		Status:         result.Status,
		PendingLeads:   result.PendingLeads,
		DispatchQueued: result.DispatchQueued,
		Message:        result.Message,
	})
}

func (h *HandlerSet) campaignSummary(ctx *fiber.Ctx) error {
	id, tenantID, err := campaignScope(ctx)
	if err != nil {
		return translateError(err)
	}

	summary, err := h.campaigns.Summary(ctx.UserContext(), id, tenantID)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(summaryResponse{
		CampaignID: summary.CampaignID,
		Status:     summary.Status,
		ByStatus:   summary.ByStatus,
		Attempted:  summary.Attempted,
		Succeeded:  summary.Succeeded,
		Failed:     summary.Failed,
		Pending:    summary.Pending,
	})
}

func (h *HandlerSet) leadAttempts(ctx *fiber.Ctx) error {
	leadID, tenantID, err := scope(ctx, "lead")
	if err != nil {
		return translateError(err)
	}
	limit, _ := strconv.Atoi(ctx.Query("limit", "50"))

	attempts, err := h.campaigns.LeadAttempts(ctx.UserContext(), leadID, tenantID, limit)
	if err != nil {
		return translateError(err)
	}

	resp := listAttemptsResponse{LeadID: leadID, Attempts: make([]attemptResponse, 0, len(attempts))}
	for _, a := range attempts {
		resp.Attempts = append(resp.Attempts, attemptResponse{
			AttemptNumber:  a.AttemptNumber,
			CampaignID:     a.CampaignID,
			ProviderCallID: a.ProviderCallID,
			ProviderState:  a.ProviderState,
			FinalStatus:    a.FinalStatus,
			Error:          a.Error,
			PollCount:      a.PollCount,
			StartedAt:      a.StartedAt,
			EndedAt:        a.EndedAt,
			DurationMs:     a.Duration().Milliseconds(),
		})
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}

func campaignScope(ctx *fiber.Ctx) (uuid.UUID, uuid.UUID, error) {
	return scope(ctx, "campaign")
}

// scope reads the :id path param and the tenant header.
func scope(ctx *fiber.Ctx, entity string) (uuid.UUID, uuid.UUID, error) {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: invalid %s id", apperrors.ErrValidation, entity)
	}
	tenantID, err := parseUUID(ctx.Get(TenantHeader))
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: missing or invalid %s header", apperrors.ErrValidation, TenantHeader)
	}
	return id, tenantID, nil
}

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(value)
}
