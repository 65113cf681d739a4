package aggregation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrStartFailed wraps every reason a start request did not yield a run id.
	ErrStartFailed = errors.New("aggregation start failed")
	// ErrUnknownRun is returned by the registry for run ids it does not track.
	ErrUnknownRun = errors.New("unknown aggregation run")
)

// StatusRecord is one element of the status endpoint's response array.
type StatusRecord struct {
	RunID     string          `json:"run_id,omitempty"`
	Status    string          `json:"status"`
	Summary   json.RawMessage `json:"summary,omitempty"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt string          `json:"updated_at,omitempty"`
}

// Client talks to the backend that runs aggregation jobs.
type Client interface {
	Start(ctx context.Context, domain string) (string, error)
	Status(ctx context.Context, domain, runID string) ([]StatusRecord, error)
}

type ClientConfig struct {
	BaseURL    string
	StartPath  string
	StatusPath string
	Timeout    time.Duration
}

// HTTPClient is the resty-backed Client. It never retries on its own: the controller's
// poll budget is the only retry policy.
type HTTPClient struct {
	rc         *resty.Client
	startPath  string
	statusPath string
}

func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	if cfg.StartPath == "" {
		cfg.StartPath = "/aggregate"
	}
	if cfg.StatusPath == "" {
		cfg.StatusPath = "/aggregate/status"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &HTTPClient{rc: rc, startPath: cfg.StartPath, statusPath: cfg.StatusPath}
}

type startResponse struct {
	OK    bool   `json:"ok"`
	RunID string `json:"run_id"`
}

func (c *HTTPClient) Start(ctx context.Context, domain string) (string, error) {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(map[string]string{"domain": domain}).
		Post(c.startPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStartFailed, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: status %d", ErrStartFailed, resp.StatusCode())
	}
	var out startResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("%w: malformed response: %v", ErrStartFailed, err)
	}
	runID := strings.TrimSpace(out.RunID)
	if !out.OK || runID == "" {
		return "", fmt.Errorf("%w: backend did not accept the job", ErrStartFailed)
	}
	return runID, nil
}

func (c *HTTPClient) Status(ctx context.Context, domain, runID string) ([]StatusRecord, error) {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"domain": domain, "run_id": runID}).
		Get(c.statusPath)
	if err != nil {
		return nil, fmt.Errorf("status request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("status request: unexpected status %d", resp.StatusCode())
	}
	var recs []StatusRecord
	if err := json.Unmarshal(resp.Body(), &recs); err != nil {
		return nil, fmt.Errorf("status response: %w", err)
	}
	return recs, nil
}
