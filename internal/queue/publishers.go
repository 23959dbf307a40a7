package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/acme/ai-call-dispatch/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DispatchPublisher enqueues dispatch requests.
type DispatchPublisher struct {
	writer messageWriter
}

// NewDispatchPublisher constructs a publisher for the dispatch topic.
func NewDispatchPublisher(k *Kafka, topic string) *DispatchPublisher {
	return &DispatchPublisher{writer: k.NewWriter(topic)}
}

// PublishDispatch writes the request keyed by campaign so requests for one
// campaign stay ordered.
func (p *DispatchPublisher) PublishDispatch(ctx context.Context, req DispatchRequest) error {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	value, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("dispatch publisher: marshal message: %w", err)
	}

	record := kafka.Message{
		Key:   req.CampaignID[:],
		Value: value,
		Time:  req.RequestedAt,
	}
	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("dispatch publisher: write message: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *DispatchPublisher) Close() error {
	return p.writer.Close()
}

// LeadStatusPublisher emits lead transitions.
type LeadStatusPublisher struct {
	writer messageWriter
}

// NewLeadStatusPublisher constructs a publisher for the lead status topic.
func NewLeadStatusPublisher(k *Kafka, topic string) *LeadStatusPublisher {
	return &LeadStatusPublisher{writer: k.NewWriter(topic)}
}

// PublishLeadStatus converts the update to a LeadStatusEvent and writes it.
func (p *LeadStatusPublisher) PublishLeadStatus(ctx context.Context, update domain.LeadStatusUpdate, occurredAt time.Time) error {
	event := LeadStatusEvent{
		LeadID:     update.LeadID,
		CampaignID: update.CampaignID,
		TenantID:   update.TenantID,
		Status:     string(update.Status),
		OccurredAt: occurredAt,
	}
	if update.CallSessionID != nil {
		event.CallSessionID = *update.CallSessionID
	}
	if update.LastError != nil {
		event.Error = *update.LastError
	}
	if update.CountAttempt {
		event.AttemptsDelta = 1
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("lead status publisher: marshal message: %w", err)
	}
	record := kafka.Message{
		Key:   update.LeadID[:],
		Value: value,
		Time:  occurredAt,
	}
	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("lead status publisher: write message: %w", err)
	}
	return nil
}

// Close closes the publisher.
func (p *LeadStatusPublisher) Close() error {
	return p.writer.Close()
}
