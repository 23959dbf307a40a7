package rest

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/acme/ai-call-dispatch/internal/config"
	"github.com/acme/ai-call-dispatch/internal/domain"
	"github.com/acme/ai-call-dispatch/internal/telephony"
	apperrors "github.com/acme/ai-call-dispatch/pkg/errors"
)

// Provider talks to a Twilio-compatible REST API.
type Provider struct {
	baseURL string
	client  *http.Client
}

// NewProvider builds a REST provider from config.
func NewProvider(cfg config.TelephonyConfig, client *http.Client) *Provider {
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &Provider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
	}
}

type callResource struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// PlaceCall creates a call whose media is streamed to the join target.
func (p *Provider) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (string, error) {
	twiml, err := connectTwiML(req.JoinTarget)
	if err != nil {
		return "", fmt.Errorf("telephony: build twiml: %w", err)
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", req.From)
	form.Set("Twiml", twiml)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", p.baseURL, url.PathEscape(req.Credentials.AccountSID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("telephony: place call: %w: %v", apperrors.ErrProvider, err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var res callResource
	if err := p.do(httpReq, req.Credentials, &res); err != nil {
		return "", fmt.Errorf("telephony: place call: %w", err)
	}
	if res.SID == "" {
		return "", fmt.Errorf("telephony: place call: %w: response missing sid", apperrors.ErrProvider)
	}
	return res.SID, nil
}

// FetchStatus reads the current call state.
func (p *Provider) FetchStatus(ctx context.Context, callSessionID string, creds domain.Credentials) (domain.ProviderCallState, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls/%s.json", p.baseURL, url.PathEscape(creds.AccountSID), url.PathEscape(callSessionID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("telephony: fetch status: %w: %v", apperrors.ErrProvider, err)
	}

	var res callResource
	if err := p.do(httpReq, creds, &res); err != nil {
		return "", fmt.Errorf("telephony: fetch status: %w", err)
	}

	state, ok := domain.NormalizeProviderCallState(res.Status)
	if !ok {
		return "", fmt.Errorf("telephony: fetch status: %w: unknown call status %q", apperrors.ErrProvider, res.Status)
	}
	return state, nil
}

func (p *Provider) do(req *http.Request, creds domain.Credentials, out *callResource) error {
	req.SetBasicAuth(creds.AccountSID, creds.AuthToken)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", apperrors.ErrProvider, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: credentials rejected (status %d)", apperrors.ErrProvider, resp.StatusCode)
	case resp.StatusCode >= 300:
		_ = json.Unmarshal(body, out)
		return fmt.Errorf("%w: status %d after %s: %s", apperrors.ErrProvider, resp.StatusCode, time.Since(started).Round(time.Millisecond), out.Message)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", apperrors.ErrProvider, err)
	}
	return nil
}

func connectTwiML(target domain.JoinTarget) (string, error) {
	var escaped strings.Builder
	if err := xml.EscapeText(&escaped, []byte(target)); err != nil {
		return "", err
	}
	return `<Response><Connect><Stream url="` + escaped.String() + `"/></Connect></Response>`, nil
}
