package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/acme/ai-call-dispatch/internal/domain"
)

// AttemptLog persists call attempt history in Scylla, partitioned by lead.
type AttemptLog struct {
	session *gocql.Session
}

// NewAttemptLog creates a new attempt log.
func NewAttemptLog(session *gocql.Session) *AttemptLog {
	return &AttemptLog{session: session}
}

// AppendAttempt inserts one attempt row.
func (s *AttemptLog) AppendAttempt(ctx context.Context, attempt domain.CallAttempt) error {
	if err := s.session.Query(`INSERT INTO call_attempts_by_lead (lead_id, attempt_number, campaign_id, tenant_id, provider_call_id, join_target, provider_state, final_status, error, poll_count, started_at, ended_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.LeadID.String(), attempt.AttemptNumber, attempt.CampaignID.String(), attempt.TenantID.String(),
		attempt.ProviderCallID, string(attempt.JoinTarget), string(attempt.ProviderState), string(attempt.FinalStatus),
		attempt.Error, attempt.PollCount, attempt.StartedAt, attempt.EndedAt, attempt.Duration().Milliseconds(),
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("attempt log: insert: %w", err)
	}

	if attempt.ProviderCallID == "" {
		return nil
	}

	if err := s.session.Query(`INSERT INTO call_attempts_by_provider_call (provider_call_id, lead_id, attempt_number, final_status, ended_at)
		VALUES (?, ?, ?, ?, ?)`,
		attempt.ProviderCallID, attempt.LeadID.String(), attempt.AttemptNumber, string(attempt.FinalStatus), attempt.EndedAt,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("attempt log: insert provider index: %w", err)
	}

	return nil
}

// ListAttempts returns the most recent attempts for a lead, newest first.
func (s *AttemptLog) ListAttempts(ctx context.Context, leadID uuid.UUID, limit int) ([]domain.CallAttempt, error) {
	if limit <= 0 {
		limit = 50
	}

	iter := s.session.Query(`SELECT attempt_number, campaign_id, tenant_id, provider_call_id, join_target, provider_state, final_status, error, poll_count, started_at, ended_at
		FROM call_attempts_by_lead WHERE lead_id = ? LIMIT ?`, leadID.String(), limit).WithContext(ctx).Iter()

	var (
		attemptNumber int
		campaignIDStr string
		tenantIDStr   string
		providerCall  string
		joinTarget    string
		providerState string
		finalStatus   string
		errText       string
		pollCount     int
		startedAt     time.Time
		endedAt       time.Time
	)

	attempts := make([]domain.CallAttempt, 0, limit)
	for iter.Scan(&attemptNumber, &campaignIDStr, &tenantIDStr, &providerCall, &joinTarget, &providerState, &finalStatus, &errText, &pollCount, &startedAt, &endedAt) {
		campaignID, err := uuid.Parse(campaignIDStr)
		if err != nil {
			continue
		}
		tenantID, err := uuid.Parse(tenantIDStr)
		if err != nil {
			continue
		}

		attempts = append(attempts, domain.CallAttempt{
			LeadID:         leadID,
			CampaignID:     campaignID,
			TenantID:       tenantID,
			AttemptNumber:  attemptNumber,
			ProviderCallID: providerCall,
			JoinTarget:     domain.JoinTarget(joinTarget),
			ProviderState:  domain.ProviderCallState(providerState),
			FinalStatus:    domain.LeadStatus(finalStatus),
			Error:          errText,
			PollCount:      pollCount,
			StartedAt:      startedAt,
			EndedAt:        endedAt,
		})
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("attempt log: iter close: %w", err)
	}

	return attempts, nil
}
