package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme/ai-call-dispatch/internal/domain"
	"github.com/acme/ai-call-dispatch/internal/repository"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "pgx"), mock
}

func TestCampaignRepository_GetCampaignStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)
	id, tenant := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT status FROM campaigns WHERE id = \$1 AND tenant_id = \$2`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("active"))

	status, err := repo.GetCampaignStatus(context.Background(), id, tenant)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusActive, status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepository_GetCampaignStatusMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	mock.ExpectQuery(`SELECT status FROM campaigns`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	_, err := repo.GetCampaignStatus(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepository_TransitionStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE campaigns SET`).
		WithArgs("active", "active", "active", sqlmock.AnyArg(), sqlmock.AnyArg(), "draft", "paused").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.TransitionStatus(context.Background(), uuid.New(), uuid.New(),
		[]domain.CampaignStatus{domain.CampaignStatusDraft, domain.CampaignStatusPaused}, domain.CampaignStatusActive)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepository_TransitionStatusConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE campaigns SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM campaigns`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))
	mock.ExpectRollback()

	err := repo.TransitionStatus(context.Background(), uuid.New(), uuid.New(),
		[]domain.CampaignStatus{domain.CampaignStatusActive}, domain.CampaignStatusPaused)
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepository_GetPendingLeads(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLeadRepository(db)
	campaignID, tenantID := uuid.New(), uuid.New()
	first, second := uuid.New(), uuid.New()
	now := time.Now().UTC()

	cols := []string{"id", "tenant_id", "campaign_id", "phone_number", "status", "attempts_made", "call_session_id", "last_error", "created_at", "updated_at"}
	rows := sqlmock.NewRows(cols).
		AddRow(first.String(), tenantID.String(), campaignID.String(), "+15550001", "pending", 0, nil, nil, now, now).
		AddRow(second.String(), tenantID.String(), campaignID.String(), "+15550002", "scheduled", 1, "CA123", "busy", now, now)

	mock.ExpectQuery(`SELECT (.+) FROM leads\s+WHERE campaign_id = \$1 AND tenant_id = \$2`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 3).
		WillReturnRows(rows)

	leads, err := repo.GetPendingLeads(context.Background(), campaignID, tenantID, 3)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, first, leads[0].ID)
	assert.Nil(t, leads[0].CallSessionID)
	assert.Equal(t, domain.LeadStatusScheduled, leads[1].Status)
	require.NotNil(t, leads[1].CallSessionID)
	assert.Equal(t, "CA123", *leads[1].CallSessionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepository_ListInProgress(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLeadRepository(db)
	campaignID, tenantID, leadID := uuid.New(), uuid.New(), uuid.New()
	cutoff := time.Now().UTC().Add(-10 * time.Minute)
	written := cutoff.Add(-time.Minute)

	cols := []string{"id", "tenant_id", "campaign_id", "phone_number", "status", "attempts_made", "call_session_id", "last_error", "created_at", "updated_at"}
	mock.ExpectQuery(`SELECT (.+) FROM leads\s+WHERE campaign_id = \$1 AND tenant_id = \$2\s+AND status = 'in_progress'\s+AND updated_at < \$3`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), cutoff).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(leadID.String(), tenantID.String(), campaignID.String(), "+15550001", "in_progress", 1, "CA9", nil, written, written))

	leads, err := repo.ListInProgress(context.Background(), campaignID, tenantID, cutoff)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, domain.LeadStatusInProgress, leads[0].Status)
	require.NotNil(t, leads[0].CallSessionID)
	assert.Equal(t, "CA9", *leads[0].CallSessionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepository_UpdateLeadStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLeadRepository(db)
	sid := "CA999"

	mock.ExpectExec(`UPDATE leads SET`).
		WithArgs("in_progress", sid, 1, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateLeadStatus(context.Background(), domain.LeadStatusUpdate{
		LeadID:        uuid.New(),
		TenantID:      uuid.New(),
		Status:        domain.LeadStatusInProgress,
		CallSessionID: &sid,
		CountAttempt:  true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepository_UpdateLeadStatusWrongTenant(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLeadRepository(db)

	mock.ExpectExec(`UPDATE leads SET`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateLeadStatus(context.Background(), domain.LeadStatusUpdate{
		LeadID:   uuid.New(),
		TenantID: uuid.New(),
		Status:   domain.LeadStatusCompleted,
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepository_CountByStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLeadRepository(db)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) AS total`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "total"}).
			AddRow("pending", 5).
			AddRow("completed", 2))

	counts, err := repo.CountByStatus(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, int64(5), counts[domain.LeadStatusPending])
	assert.Equal(t, int64(2), counts[domain.LeadStatusCompleted])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantConfigRepository(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTenantConfigRepository(db)
	tenant := uuid.New()

	mock.ExpectQuery(`FROM tenant_telephony_configs`).
		WillReturnRows(sqlmock.NewRows([]string{"account_sid", "auth_token", "from_number"}).
			AddRow("AC1", "secret", "+15559999"))
	mock.ExpectQuery(`FROM tenant_ai_session_configs`).
		WillReturnRows(sqlmock.NewRows([]string{"api_key", "model", "voice", "system_prompt", "first_speaker", "temperature"}))

	creds, err := repo.GetTelephonyCredentials(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, "+15559999", creds.FromNumber)

	_, err = repo.GetAISessionConfig(context.Background(), tenant)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
