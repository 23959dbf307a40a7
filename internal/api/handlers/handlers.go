package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/ai-call-dispatch/internal/app"
	"github.com/acme/ai-call-dispatch/internal/domain"
	campaignsvc "github.com/acme/ai-call-dispatch/internal/service/campaign"
	"github.com/acme/ai-call-dispatch/pkg/logger"
)

// CampaignService is the lifecycle surface the handlers call.
type CampaignService interface {
	Start(ctx context.Context, id, tenantID uuid.UUID) (*campaignsvc.TransitionResult, error)
	Pause(ctx context.Context, id, tenantID uuid.UUID) (*campaignsvc.TransitionResult, error)
	Resume(ctx context.Context, id, tenantID uuid.UUID) (*campaignsvc.TransitionResult, error)
	Complete(ctx context.Context, id, tenantID uuid.UUID) (*campaignsvc.TransitionResult, error)
	Summary(ctx context.Context, id, tenantID uuid.UUID) (*domain.CampaignSummary, error)
	LeadAttempts(ctx context.Context, leadID, tenantID uuid.UUID, limit int) ([]domain.CallAttempt, error)
}

// HealthChecker pings backing stores and returns failures by name.
type HealthChecker interface {
	HealthCheck(ctx context.Context) map[string]string
}

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	campaigns CampaignService
	health    HealthChecker
	log       *logger.Logger
}

// NewHandlerSet creates a new handler bundle.
func NewHandlerSet(container *app.Container) *HandlerSet {
	return newHandlerSet(container.Services().Campaign, container, container.Logger)
}

func newHandlerSet(campaigns CampaignService, health HealthChecker, log *logger.Logger) *HandlerSet {
	if log == nil {
		log = logger.NewNop()
	}
	return &HandlerSet{campaigns: campaigns, health: health, log: log}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.healthz)

	api := app.Group("/api")
	v1 := api.Group("/v1")

	campaigns := v1.Group("/campaigns")
	campaigns.Post("/:id/start", h.startCampaign)
	campaigns.Post("/:id/pause", h.pauseCampaign)
	campaigns.Post("/:id/resume", h.resumeCampaign)
	campaigns.Post("/:id/complete", h.completeCampaign)
	campaigns.Get("/:id/summary", h.campaignSummary)

	leads := v1.Group("/leads")
	leads.Get("/:id/attempts", h.leadAttempts)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code == fiber.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", ctx.Path()), zap.Error(err))
	}

	return ctx.Status(code).JSON(fiber.Map{
		"error":    message,
		"trace_id": ctx.GetRespHeader("Trace-Id"),
	})
}

func (h *HandlerSet) healthz(ctx *fiber.Ctx) error {
	healthCtx, cancel := context.WithTimeout(ctx.Context(), 2*time.Second)
	defer cancel()

	errs := h.health.HealthCheck(healthCtx)

	status := fiber.StatusOK
	body := fiber.Map{"status": "ok", "errors": errs}
	if len(errs) > 0 {
		status = fiber.StatusServiceUnavailable
		body["status"] = "degraded"
	}

	return ctx.Status(status).JSON(body)
}
