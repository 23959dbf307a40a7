package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme/ai-call-dispatch/internal/config"
	"github.com/acme/ai-call-dispatch/internal/domain"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestDispatchPublisherKeysByCampaign(t *testing.T) {
	w := &recordingWriter{}
	p := &DispatchPublisher{writer: w}
	req := DispatchRequest{CampaignID: uuid.New(), TenantID: uuid.New(), Trigger: TriggerStart}

	require.NoError(t, p.PublishDispatch(context.Background(), req))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, req.CampaignID[:], w.msgs[0].Key)

	var decoded DispatchRequest
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, req.CampaignID, decoded.CampaignID)
	assert.Equal(t, TriggerStart, decoded.Trigger)
	assert.False(t, decoded.RequestedAt.IsZero())
}

func TestLeadStatusPublisherEvent(t *testing.T) {
	w := &recordingWriter{}
	p := &LeadStatusPublisher{writer: w}
	sid := "CA1"
	update := domain.LeadStatusUpdate{
		LeadID:        uuid.New(),
		TenantID:      uuid.New(),
		CampaignID:    uuid.New(),
		Status:        domain.LeadStatusInProgress,
		CallSessionID: &sid,
		CountAttempt:  true,
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, p.PublishLeadStatus(context.Background(), update, at))
	require.Len(t, w.msgs, 1)

	var event LeadStatusEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &event))
	assert.Equal(t, "in_progress", event.Status)
	assert.Equal(t, "CA1", event.CallSessionID)
	assert.Equal(t, 1, event.AttemptsDelta)
	assert.True(t, at.Equal(event.OccurredAt))
}

func TestPublisherWriteFailure(t *testing.T) {
	p := &DispatchPublisher{writer: &recordingWriter{err: errors.New("broker down")}}
	err := p.PublishDispatch(context.Background(), DispatchRequest{CampaignID: uuid.New()})
	assert.ErrorContains(t, err, "broker down")
}

func TestNewKafkaRequiresBrokers(t *testing.T) {
	_, err := NewKafka(config.KafkaConfig{})
	assert.Error(t, err)

	k, err := NewKafka(config.KafkaConfig{Brokers: []string{"localhost:9092"}, DispatchTopic: "d", LeadStatusTopic: "s"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "s"}, k.Topics())
}
