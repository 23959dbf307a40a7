package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/ai-call-dispatch/internal/domain"
	"github.com/acme/ai-call-dispatch/internal/repository"
)

// LeadRepository persists campaign leads.
type LeadRepository struct {
	db *sqlx.DB
}

// NewLeadRepository constructs the repository.
func NewLeadRepository(db *sqlx.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// GetPendingLeads fetches dispatchable leads in import order.
func (r *LeadRepository) GetPendingLeads(ctx context.Context, campaignID, tenantID uuid.UUID, maxAttempts int) ([]domain.Lead, error) {
	return r.selectLeads(ctx, "select pending", `SELECT id, tenant_id, campaign_id, phone_number, status, attempts_made, call_session_id, last_error, created_at, updated_at
		FROM leads
		WHERE campaign_id = $1 AND tenant_id = $2
		  AND status IN ('pending', 'scheduled')
		  AND attempts_made < $3
		ORDER BY created_at ASC, id ASC`, campaignID, tenantID, maxAttempts)
}

// ListInProgress returns in_progress leads last written before updatedBefore.
func (r *LeadRepository) ListInProgress(ctx context.Context, campaignID, tenantID uuid.UUID, updatedBefore time.Time) ([]domain.Lead, error) {
	return r.selectLeads(ctx, "select in progress", `SELECT id, tenant_id, campaign_id, phone_number, status, attempts_made, call_session_id, last_error, created_at, updated_at
		FROM leads
		WHERE campaign_id = $1 AND tenant_id = $2
		  AND status = 'in_progress'
		  AND updated_at < $3
		ORDER BY updated_at ASC, id ASC`, campaignID, tenantID, updatedBefore)
}

func (r *LeadRepository) selectLeads(ctx context.Context, op, query string, args ...any) ([]domain.Lead, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lead repo: %s: %w", op, err)
	}
	defer rows.Close()

	var results []domain.Lead
	for rows.Next() {
		var rec leadRecord
		if err := rows.StructScan(&rec); err != nil {
			return nil, fmt.Errorf("lead repo: scan: %w", err)
		}
		results = append(results, rec.toDomain())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lead repo: rows err: %w", err)
	}

	return results, nil
}

// UpdateLeadStatus applies a single tenant-scoped status transition.
func (r *LeadRepository) UpdateLeadStatus(ctx context.Context, update domain.LeadStatusUpdate) error {
	increment := 0
	if update.CountAttempt {
		increment = 1
	}

	res, err := r.db.ExecContext(ctx, `UPDATE leads SET
		status = $1,
		call_session_id = COALESCE($2, call_session_id),
		attempts_made = attempts_made + $3,
		last_error = $4,
		updated_at = NOW()
	WHERE id = $5 AND tenant_id = $6`,
		string(update.Status),
		update.CallSessionID,
		increment,
		update.LastError,
		update.LeadID,
		update.TenantID,
	)
	if err != nil {
		return fmt.Errorf("lead repo: update status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("lead repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CountByStatus groups the campaign's leads by status.
func (r *LeadRepository) CountByStatus(ctx context.Context, campaignID, tenantID uuid.UUID) (map[domain.LeadStatus]int64, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT status, COUNT(*) AS total
		FROM leads WHERE campaign_id = $1 AND tenant_id = $2
		GROUP BY status`, campaignID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("lead repo: count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.LeadStatus]int64)
	for rows.Next() {
		var row struct {
			Status string `db:"status"`
			Total  int64  `db:"total"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("lead repo: scan count: %w", err)
		}
		counts[domain.LeadStatus(row.Status)] = row.Total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lead repo: rows err: %w", err)
	}
	return counts, nil
}

// CountPending counts the leads a dispatch run would pick up.
func (r *LeadRepository) CountPending(ctx context.Context, campaignID, tenantID uuid.UUID, maxAttempts int) (int64, error) {
	var total int64
	err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM leads
		WHERE campaign_id = $1 AND tenant_id = $2
		  AND status IN ('pending', 'scheduled')
		  AND attempts_made < $3`, campaignID, tenantID, maxAttempts).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("lead repo: count pending: %w", err)
	}
	return total, nil
}

type leadRecord struct {
	ID            uuid.UUID      `db:"id"`
	TenantID      uuid.UUID      `db:"tenant_id"`
	CampaignID    uuid.UUID      `db:"campaign_id"`
	PhoneNumber   string         `db:"phone_number"`
	Status        string         `db:"status"`
	AttemptsMade  int            `db:"attempts_made"`
	CallSessionID sql.NullString `db:"call_session_id"`
	LastError     sql.NullString `db:"last_error"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r leadRecord) toDomain() domain.Lead {
	lead := domain.Lead{
		ID:           r.ID,
		TenantID:     r.TenantID,
		CampaignID:   r.CampaignID,
		PhoneNumber:  r.PhoneNumber,
		Status:       domain.LeadStatus(r.Status),
		AttemptsMade: r.AttemptsMade,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.CallSessionID.Valid {
		s := r.CallSessionID.String
		lead.CallSessionID = &s
	}
	if r.LastError.Valid {
		s := r.LastError.String
		lead.LastError = &s
	}
	return lead
}
