package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/acme/ai-call-dispatch/internal/domain"
	"github.com/acme/ai-call-dispatch/internal/repository"
	apperrors "github.com/acme/ai-call-dispatch/pkg/errors"
)

// Provisioned is a ready-to-bridge AI session plus the tenant credentials
// the call must be placed with.
type Provisioned struct {
	JoinTarget  domain.JoinTarget
	Credentials domain.Credentials
}

// Provisioner requests a joinable AI conversation session for one call.
type Provisioner interface {
	Provision(ctx context.Context, tenantID uuid.UUID) (Provisioned, error)
}

// Requester creates a session with a resolved tenant configuration.
type Requester interface {
	CreateSession(ctx context.Context, cfg domain.SessionConfig) (domain.JoinTarget, error)
}

// TenantProvisioner resolves tenant configuration on every call and delegates
// session creation to a Requester.
type TenantProvisioner struct {
	configs   repository.TenantConfigStore
	requester Requester
}

// NewTenantProvisioner wires a provisioner.
func NewTenantProvisioner(configs repository.TenantConfigStore, requester Requester) *TenantProvisioner {
	return &TenantProvisioner{configs: configs, requester: requester}
}

// Provision implements Provisioner.
func (p *TenantProvisioner) Provision(ctx context.Context, tenantID uuid.UUID) (Provisioned, error) {
	creds, err := p.configs.GetTelephonyCredentials(ctx, tenantID)
	if err != nil {
		return Provisioned{}, configError("telephony credentials", err)
	}
	if creds.AccountSID == "" || creds.FromNumber == "" {
		return Provisioned{}, fmt.Errorf("session: telephony credentials: %w: incomplete", apperrors.ErrConfigurationMissing)
	}

	cfg, err := p.configs.GetAISessionConfig(ctx, tenantID)
	if err != nil {
		return Provisioned{}, configError("ai session config", err)
	}
	if cfg.APIKey == "" {
		return Provisioned{}, fmt.Errorf("session: ai session config: %w: api key empty", apperrors.ErrConfigurationMissing)
	}

	target, err := p.requester.CreateSession(ctx, cfg)
	if err != nil {
		return Provisioned{}, fmt.Errorf("session: create: %w", err)
	}

	return Provisioned{JoinTarget: target, Credentials: creds}, nil
}

func configError(what string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("session: %s: %w", what, apperrors.ErrConfigurationMissing)
	}
	return fmt.Errorf("session: %s: %w", what, err)
}
