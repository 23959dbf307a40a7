package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/ai-call-dispatch/internal/domain"
	"github.com/acme/ai-call-dispatch/internal/repository"
)

// TenantConfigRepository reads tenant provider settings.
type TenantConfigRepository struct {
	db *sqlx.DB
}

// NewTenantConfigRepository builds the repository.
func NewTenantConfigRepository(db *sqlx.DB) *TenantConfigRepository {
	return &TenantConfigRepository{db: db}
}

// GetTelephonyCredentials returns the tenant's telephony account.
func (r *TenantConfigRepository) GetTelephonyCredentials(ctx context.Context, tenantID uuid.UUID) (domain.Credentials, error) {
	var row struct {
		AccountSID string `db:"account_sid"`
		AuthToken  string `db:"auth_token"`
		FromNumber string `db:"from_number"`
	}
	err := r.db.QueryRowxContext(ctx, `SELECT account_sid, auth_token, from_number
		FROM tenant_telephony_configs WHERE tenant_id = $1`, tenantID).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Credentials{}, repository.ErrNotFound
		}
		return domain.Credentials{}, fmt.Errorf("tenant config: telephony: %w", err)
	}
	return domain.Credentials{
		AccountSID: row.AccountSID,
		AuthToken:  row.AuthToken,
		FromNumber: row.FromNumber,
	}, nil
}

// GetAISessionConfig returns the tenant's AI session settings.
func (r *TenantConfigRepository) GetAISessionConfig(ctx context.Context, tenantID uuid.UUID) (domain.SessionConfig, error) {
	var row struct {
		APIKey       string          `db:"api_key"`
		Model        sql.NullString  `db:"model"`
		Voice        sql.NullString  `db:"voice"`
		SystemPrompt string          `db:"system_prompt"`
		FirstSpeaker sql.NullString  `db:"first_speaker"`
		Temperature  sql.NullFloat64 `db:"temperature"`
	}
	err := r.db.QueryRowxContext(ctx, `SELECT api_key, model, voice, system_prompt, first_speaker, temperature
		FROM tenant_ai_session_configs WHERE tenant_id = $1`, tenantID).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SessionConfig{}, repository.ErrNotFound
		}
		return domain.SessionConfig{}, fmt.Errorf("tenant config: ai session: %w", err)
	}
	return domain.SessionConfig{
		APIKey:       row.APIKey,
		Model:        row.Model.String,
		Voice:        row.Voice.String,
		SystemPrompt: row.SystemPrompt,
		FirstSpeaker: row.FirstSpeaker.String,
		Temperature:  row.Temperature.Float64,
	}, nil
}
