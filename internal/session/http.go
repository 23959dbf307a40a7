package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/acme/ai-call-dispatch/internal/config"
	"github.com/acme/ai-call-dispatch/internal/domain"
	apperrors "github.com/acme/ai-call-dispatch/pkg/errors"
)

// HTTPRequester creates sessions against an Ultravox-compatible API.
type HTTPRequester struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRequester builds a requester from config.
func NewHTTPRequester(cfg config.AISessionConfig, client *http.Client) *HTTPRequester {
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &HTTPRequester{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
	}
}

type createCallRequest struct {
	SystemPrompt string         `json:"systemPrompt"`
	Model        string         `json:"model,omitempty"`
	Voice        string         `json:"voice,omitempty"`
	FirstSpeaker string         `json:"firstSpeaker,omitempty"`
	Temperature  float64        `json:"temperature"`
	Medium       map[string]any `json:"medium"`
}

type createCallResponse struct {
	CallID  string `json:"callId"`
	JoinURL string `json:"joinUrl"`
	Detail  string `json:"detail"`
}

// CreateSession implements Requester.
func (r *HTTPRequester) CreateSession(ctx context.Context, cfg domain.SessionConfig) (domain.JoinTarget, error) {
	payload, err := json.Marshal(createCallRequest{
		SystemPrompt: cfg.SystemPrompt,
		Model:        cfg.Model,
		Voice:        cfg.Voice,
		FirstSpeaker: cfg.FirstSpeaker,
		Temperature:  cfg.Temperature,
		Medium:       map[string]any{"twilio": map[string]any{}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/calls", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrProvider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", cfg.APIKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", apperrors.ErrProvider, err)
	}

	var out createCallResponse
	if resp.StatusCode >= 300 {
		_ = json.Unmarshal(body, &out)
		return "", fmt.Errorf("%w: status %d: %s", apperrors.ErrProvider, resp.StatusCode, out.Detail)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", apperrors.ErrProvider, err)
	}
	if out.JoinURL == "" {
		return "", fmt.Errorf("%w: response missing joinUrl", apperrors.ErrProvider)
	}

	return domain.JoinTarget(out.JoinURL), nil
}
