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

// CampaignRepository implements repository.CampaignStore using PostgreSQL.
type CampaignRepository struct {
	db *sqlx.DB
}

// NewCampaignRepository constructs a new repository.
func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

const campaignColumns = `id, tenant_id, name, status, created_at, updated_at, started_at, completed_at`

// Get fetches a campaign by id within a tenant.
func (r *CampaignRepository) Get(ctx context.Context, id, tenantID uuid.UUID) (*domain.Campaign, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	var record campaignRecord
	if err := row.StructScan(&record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("campaign repo: get: %w", err)
	}

	campaign := record.toDomain()
	return &campaign, nil
}

// GetCampaignStatus reads only the current status column.
func (r *CampaignRepository) GetCampaignStatus(ctx context.Context, id, tenantID uuid.UUID) (domain.CampaignStatus, error) {
	var status string
	err := r.db.QueryRowxContext(ctx, `SELECT status FROM campaigns WHERE id = $1 AND tenant_id = $2`, id, tenantID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("campaign repo: get status: %w", err)
	}
	return domain.CampaignStatus(status), nil
}

// TransitionStatus performs a compare-and-set on the campaign status.
func (r *CampaignRepository) TransitionStatus(ctx context.Context, id, tenantID uuid.UUID, from []domain.CampaignStatus, to domain.CampaignStatus) error {
	if len(from) == 0 {
		return fmt.Errorf("campaign repo: transition: no source statuses")
	}

	expected := make([]string, 0, len(from))
	for _, s := range from {
		expected = append(expected, string(s))
	}

	query, args, err := sqlx.In(`UPDATE campaigns SET
		status = ?,
		updated_at = NOW(),
		started_at = CASE WHEN ? = 'active' AND started_at IS NULL THEN NOW() ELSE started_at END,
		completed_at = CASE WHEN ? = 'completed' THEN NOW() ELSE completed_at END
	 WHERE id = ? AND tenant_id = ? AND status IN (?)`,
		string(to), string(to), string(to), id, tenantID, expected)
	if err != nil {
		return fmt.Errorf("campaign repo: build transition: %w", err)
	}

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return fmt.Errorf("campaign repo: transition: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("campaign repo: rows affected: %w", err)
		}
		if n > 0 {
			return nil
		}

		var current string
		err = tx.QueryRowxContext(ctx, `SELECT status FROM campaigns WHERE id = $1 AND tenant_id = $2`, id, tenantID).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return repository.ErrNotFound
			}
			return fmt.Errorf("campaign repo: transition lookup: %w", err)
		}
		return fmt.Errorf("%w: campaign is %s, cannot move to %s", repository.ErrConflict, current, to)
	})
}

// ListByStatus returns campaigns across tenants filtered by status.
func (r *CampaignRepository) ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]*domain.Campaign, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT `+campaignColumns+`
		FROM campaigns WHERE status = $1 ORDER BY updated_at ASC LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("campaign repo: list by status: %w", err)
	}
	defer rows.Close()

	var results []*domain.Campaign
	for rows.Next() {
		var record campaignRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("campaign repo: scan: %w", err)
		}
		campaign := record.toDomain()
		results = append(results, &campaign)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign repo: rows err: %w", err)
	}

	return results, nil
}

type campaignRecord struct {
	ID          uuid.UUID    `db:"id"`
	TenantID    uuid.UUID    `db:"tenant_id"`
	Name        string       `db:"name"`
	Status      string       `db:"status"`
	CreatedAt   sql.NullTime `db:"created_at"`
	UpdatedAt   sql.NullTime `db:"updated_at"`
	StartedAt   sql.NullTime `db:"started_at"`
	CompletedAt sql.NullTime `db:"completed_at"`
}

func (r campaignRecord) toDomain() domain.Campaign {
	campaign := domain.Campaign{
		ID:        r.ID,
		TenantID:  r.TenantID,
		Name:      r.Name,
		Status:    domain.CampaignStatus(r.Status),
		CreatedAt: r.CreatedAt.Time,
		UpdatedAt: r.UpdatedAt.Time,
	}
	if r.StartedAt.Valid {
		t := r.StartedAt.Time
		campaign.StartedAt = &t
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		campaign.CompletedAt = &t
	}
	return campaign
}
