// Package downstream is the HTTP client for the copilot and multiagent
// decision services.
package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spachava753/incidentbench/internal/models"
	"github.com/spachava753/incidentbench/internal/util"
)

// StatusError is returned when a service answers with a non-2xx status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// DecodeError is returned when a 2xx body is not the expected JSON.
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decoding response: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// AnalyzeResponse is the copilot /analyze payload.
type AnalyzeResponse struct {
	Summary string   `json:"summary"`
	Actions []string `json:"actions"`
}

// OrchestrateResponse is the multiagent /orchestrate payload.
type OrchestrateResponse struct {
	Brief        string            `json:"brief"`
	Actions      []string          `json:"actions"`
	AgentOutputs map[string]string `json:"agent_outputs"`
}

type incidentRequest struct {
	Context string `json:"context"`
}

// Client talks to one decision service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the service at baseURL. A nil httpClient
// uses http.DefaultClient. Per-call deadlines come from the context.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health probes GET /health and succeeds only on HTTP 200.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("probing health: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Endpoint: "/health", StatusCode: resp.StatusCode}
	}
	return nil
}

// Analyze posts the incident context to the copilot service.
func (c *Client) Analyze(ctx context.Context, incident string) (*AnalyzeResponse, error) {
	var out AnalyzeResponse
	if err := c.post(ctx, "/analyze", incident, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Orchestrate posts the incident context to the multiagent service.
func (c *Client) Orchestrate(ctx context.Context, incident string) (*OrchestrateResponse, error) {
	var out OrchestrateResponse
	if err := c.post(ctx, "/orchestrate", incident, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, endpoint, incident string, out any) error {
	body, err := json.Marshal(incidentRequest{Context: incident})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: truncateBody(data)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{Endpoint: endpoint, Err: err}
	}
	return nil
}

func truncateBody(data []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(data))
	if t := util.Truncate(s, limit); t != s {
		return t + "..."
	}
	return s
}

// Classify maps an error from Analyze or Orchestrate onto an ErrorType.
// ctx is the per-call context the request ran under.
func Classify(ctx context.Context, err error) models.ErrorType {
	var statusErr *StatusError
	var decodeErr *DecodeError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &statusErr):
		return models.ErrDownstreamStatus
	case errors.As(err, &decodeErr):
		return models.ErrDownstreamDecode
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return models.ErrDownstreamTimeout
	case isTimeout(err):
		return models.ErrDownstreamTimeout
	default:
		return models.ErrDownstreamTransport
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
