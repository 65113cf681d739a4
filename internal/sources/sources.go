// Package sources fetches raw meeting payloads from upstream endpoints. Payloads are
// returned untouched; shape handling belongs to the meeting pipeline.
package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
)

// ErrEmptyPayload is returned when an upstream answered successfully with no body.
var ErrEmptyPayload = errors.New("empty payload")

type Kind string

const (
	// KindWebhook is a list endpoint fed by meeting webhooks, queried with GET.
	KindWebhook Kind = "webhook"
	// KindProxy is a raw API passthrough, queried with POST.
	KindProxy Kind = "proxy"
)

type Config struct {
	Name       string
	Kind       Kind
	URL        string
	Timeout    time.Duration
	MaxRetries int
}

// Source is one upstream of raw meeting payloads.
type Source interface {
	Name() string
	Fetch(ctx context.Context, domain string) ([]byte, error)
}

// HTTPSource fetches payloads over HTTP with bounded exponential retries.
type HTTPSource struct {
	cfg       Config
	rc        *resty.Client
	baseDelay time.Duration
}

type Option func(*HTTPSource)

// WithBaseDelay sets the first retry delay.
func WithBaseDelay(d time.Duration) Option {
	return func(s *HTTPSource) {
		if d > 0 {
			s.baseDelay = d
		}
	}
}

func New(cfg Config, opts ...Option) (*HTTPSource, error) {
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		cfg.Name = string(cfg.Kind)
	}
	switch cfg.Kind {
	case KindWebhook, KindProxy:
	default:
		return nil, fmt.Errorf("source %q: unknown kind %q", cfg.Name, cfg.Kind)
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("source %q: url required", cfg.Name)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	s := &HTTPSource{
		cfg:       cfg,
		baseDelay: 250 * time.Millisecond,
		rc: resty.New().
			SetTimeout(cfg.Timeout).
			SetHeader("Accept", "application/json"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *HTTPSource) Name() string { return s.cfg.Name }

func (s *HTTPSource) Kind() Kind { return s.cfg.Kind }

// Fetch returns the raw response body. Transport failures, 5xx and 429 responses are
// retried up to MaxRetries times.
func (s *HTTPSource) Fetch(ctx context.Context, domain string) ([]byte, error) {
	backoff := retry.WithMaxRetries(uint64(s.cfg.MaxRetries), retry.NewExponential(s.baseDelay))
	var body []byte
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := s.request(ctx, domain)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("source %s: %w", s.cfg.Name, err))
		}
		code := resp.StatusCode()
		if code >= 500 || code == http.StatusTooManyRequests {
			return retry.RetryableError(fmt.Errorf("source %s: status %d", s.cfg.Name, code))
		}
		if resp.IsError() {
			return fmt.Errorf("source %s: status %d", s.cfg.Name, code)
		}
		body = resp.Body()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, fmt.Errorf("source %s: %w", s.cfg.Name, ErrEmptyPayload)
	}
	return body, nil
}

func (s *HTTPSource) request(ctx context.Context, domain string) (*resty.Response, error) {
	req := s.rc.R().SetContext(ctx)
	if s.cfg.Kind == KindProxy {
		return req.
			SetHeader("Content-Type", "application/json").
			SetBody(map[string]string{"domain": domain}).
			Post(s.cfg.URL)
	}
	return req.SetQueryParam("domain", domain).Get(s.cfg.URL)
}
