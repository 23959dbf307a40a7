package domain

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStatus enumerates lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// Campaign models a tenant-owned outbound calling job.
type Campaign struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Name        string
	Status      CampaignStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// CampaignSummary aggregates lead outcomes for a campaign.
type CampaignSummary struct {
	CampaignID uuid.UUID
	Status     CampaignStatus
	ByStatus   map[LeadStatus]int64
	Attempted  int64
	Succeeded  int64
	Failed     int64
	Pending    int64
}

// NewCampaignSummary derives the aggregate counters from per-status counts.
func NewCampaignSummary(campaignID uuid.UUID, status CampaignStatus, counts map[LeadStatus]int64) CampaignSummary {
	s := CampaignSummary{CampaignID: campaignID, Status: status, ByStatus: counts}
	for st, n := range counts {
		switch {
		case st == LeadStatusPending || st == LeadStatusScheduled:
			s.Pending += n
		case st == LeadStatusCompleted:
			s.Succeeded += n
			s.Attempted += n
		case st.IsTerminal():
			s.Failed += n
			s.Attempted += n
		case st == LeadStatusInProgress:
			s.Attempted += n
		}
	}
	return s
}
