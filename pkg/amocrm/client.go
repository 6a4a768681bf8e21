// Package amocrm provides a client for the amoCRM (Kommo) REST API v4 that
// creates leads with an embedded contact, tracking fields, tags and a note.
package amocrm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultPipelineName = "Administrators"
	defaultStatusName   = "Incoming"
	defaultDomain       = "amocrm.ru"
	defaultCacheTTL     = 5 * time.Minute

	// maxErrorBody bounds, in runes, how much of a failed response ends up in an error.
	maxErrorBody = 512
)

var (
	// ErrNotConfigured is returned when the base URL or access token is missing.
	ErrNotConfigured = eris.New("amocrm: not configured, set AMOCRM_BASE_URL or AMOCRM_SUBDOMAIN and AMOCRM_ACCESS_TOKEN")
	// ErrPipelineNotFound is returned when no pipeline matches the configured id or name.
	ErrPipelineNotFound = eris.New("amocrm: pipeline not found")
	// ErrStatusNotFound is returned when no status in the pipeline matches.
	ErrStatusNotFound = eris.New("amocrm: status not found")
	// ErrLeadIDNotFound is returned when a note was requested but the create
	// response carried no lead id to attach it to.
	ErrLeadIDNotFound = eris.New("amocrm: lead id not found in create response")
)

// Client defines the amoCRM operations used by the intake service.
type Client interface {
	// IsConfigured reports whether a base URL and an access token are present.
	IsConfigured() bool
	// SubmitLead creates a lead with its contact, tracking fields and tags,
	// then attaches the note if one was given.
	SubmitLead(ctx context.Context, lead Lead) (*SubmitResult, error)
	// ResolveTaxonomy returns the pipeline and status new leads go to.
	ResolveTaxonomy(ctx context.Context) (Taxonomy, error)
	// LeadCustomFields returns every lead-level custom field definition.
	LeadCustomFields(ctx context.Context) ([]CustomField, error)
}

// Config holds the account settings for a Client.
type Config struct {
	// BaseURL takes precedence over Subdomain. Both accept a bare subdomain,
	// a host, or a full URL.
	BaseURL       string
	Subdomain     string
	AccessToken   string
	PipelineID    int64
	PipelineName  string
	StatusID      int64
	StatusName    string
	DefaultDomain string
	CacheTTL      time.Duration
}

// APIError is a non-success response from amoCRM.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("amocrm: %s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// PublicMessage describes err without any amoCRM response body or transport
// detail, for showing to API callers. The full error belongs in the log.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if eris.As(err, &apiErr) {
		return fmt.Sprintf("amocrm: %s %s: unexpected status %d", apiErr.Method, apiErr.Path, apiErr.StatusCode)
	}
	for _, sentinel := range []error{ErrNotConfigured, ErrPipelineNotFound, ErrStatusNotFound, ErrLeadIDNotFound} {
		if eris.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	var netErr net.Error
	switch {
	case eris.Is(err, context.DeadlineExceeded), eris.As(err, &netErr) && netErr.Timeout():
		return "amocrm: request timed out"
	case eris.Is(err, context.Canceled):
		return "amocrm: request canceled"
	}
	return "amocrm: request failed"
}

// Option configures the amoCRM client.
type Option func(*httpClient)

// WithBaseURL overrides the normalized account URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURLOverride = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets a per-second rate limit for API calls.
// amoCRM allows 7 requests per second per integration.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithClock sets the time source for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(c *httpClient) {
		if now != nil {
			c.now = now
		}
	}
}

type httpClient struct {
	cfg             Config
	baseURLOverride string
	http            *http.Client
	limiter         *rate.Limiter
	now             func() time.Time

	taxonomy *Cache[Taxonomy]
	fields   *Cache[[]CustomField]
}

// NewClient creates a new amoCRM client.
func NewClient(cfg Config, opts ...Option) Client {
	if cfg.PipelineName == "" {
		cfg.PipelineName = defaultPipelineName
	}
	if cfg.StatusName == "" {
		cfg.StatusName = defaultStatusName
	}
	if cfg.DefaultDomain == "" {
		cfg.DefaultDomain = defaultDomain
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	cfg.AccessToken = strings.TrimSpace(cfg.AccessToken)

	c := &httpClient{
		cfg: cfg,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.taxonomy = NewCache[Taxonomy](cfg.CacheTTL, c.fetchTaxonomy, c.now)
	c.fields = NewCache[[]CustomField](cfg.CacheTTL, c.fetchCustomFields, c.now)
	return c
}

// baseURL returns the account origin, or empty when none is configured.
func (c *httpClient) baseURL() string {
	if c.baseURLOverride != "" {
		return c.baseURLOverride
	}
	raw := c.cfg.BaseURL
	if strings.TrimSpace(raw) == "" {
		raw = c.cfg.Subdomain
	}
	return NormalizeBaseURL(raw, c.cfg.DefaultDomain)
}

func (c *httpClient) IsConfigured() bool {
	return c.baseURL() != "" && c.cfg.AccessToken != ""
}

// do sends one request and returns the raw body and status code. Non-2xx
// statuses are not treated as errors here.
func (c *httpClient) do(ctx context.Context, method, baseURL, path string, payload any) ([]byte, int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, eris.Wrap(err, "amocrm: rate limit")
		}
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, eris.Wrap(err, "amocrm: marshal request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, body)
	if err != nil {
		return nil, 0, eris.Wrap(err, "amocrm: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "amocrm: %s %s", method, path)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, eris.Wrap(err, "amocrm: read response body")
	}
	return respBody, resp.StatusCode, nil
}

// getJSON fetches path into out. It reports false for 204 No Content, which
// amoCRM returns for empty collections.
func (c *httpClient) getJSON(ctx context.Context, baseURL, path string, out any) (bool, error) {
	body, status, err := c.do(ctx, http.MethodGet, baseURL, path, nil)
	if err != nil {
		return false, err
	}
	if status == http.StatusNoContent {
		return false, nil
	}
	if !successful(status) {
		return false, newAPIError(http.MethodGet, path, status, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, eris.Wrapf(err, "amocrm: unmarshal %s", path)
	}
	return true, nil
}

func successful(status int) bool {
	return status >= 200 && status < 300
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	text := truncateRunes(strings.TrimSpace(string(body)), maxErrorBody, "...")
	return &APIError{Method: method, Path: path, StatusCode: status, Body: text}
}
