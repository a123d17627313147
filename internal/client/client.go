// Package client talks to the three remote services: the Block Catalog, the
// Compatibility checker and the Model Builder.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Benny93/dnnmodeler-go/internal/catalog"
	"github.com/Benny93/dnnmodeler-go/internal/overlay"
	"github.com/Benny93/dnnmodeler-go/internal/submit"
)

// RequestIDHeader carries a per-request UUID for correlating service logs.
const RequestIDHeader = "X-Request-ID"

// Endpoints locates the services.
type Endpoints struct {
	BaseURL           string
	CatalogPath       string
	CompatibilityPath string
	BuildPath         string
}

// DefaultEndpoints returns the paths served by the reference backend.
func DefaultEndpoints(baseURL string) Endpoints {
	return Endpoints{
		BaseURL:           baseURL,
		CatalogPath:       "/available-blocks",
		CompatibilityPath: "/check-compatibility",
		BuildPath:         "/build-model",
	}
}

// StatusError is a non-2xx reply.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Client implements catalog.Source, overlay.Checker and submit.Builder over HTTP.
type Client struct {
	endpoints Endpoints
	http      *http.Client
	logger    *slog.Logger
}

var (
	_ catalog.Source  = (*Client)(nil)
	_ overlay.Checker = (*Client)(nil)
	_ submit.Builder  = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout bounds each request. Zero means no timeout. The client
// passed to WithHTTPClient is copied, not modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		var hc http.Client
		if c.http != nil {
			hc = *c.http
		}
		hc.Timeout = d
		c.http = &hc
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the given endpoints.
func New(endpoints Endpoints, opts ...Option) *Client {
	c := &Client{
		endpoints: endpoints,
		http:      &http.Client{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type catalogResponse struct {
	Blocks []catalog.BlockDefinition `json:"blocks"`
}

// FetchBlocks retrieves the block catalog.
func (c *Client) FetchBlocks(ctx context.Context) ([]catalog.BlockDefinition, error) {
	var resp catalogResponse
	if err := c.do(ctx, http.MethodGet, c.endpoints.CatalogPath, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching block catalog: %w", err)
	}
	return resp.Blocks, nil
}

// CheckCompatibility posts the resolved graph and decodes the per-edge map.
func (c *Client) CheckCompatibility(ctx context.Context, req overlay.Request) (overlay.Map, error) {
	var m overlay.Map
	if err := c.do(ctx, http.MethodPost, c.endpoints.CompatibilityPath, req, &m); err != nil {
		return nil, fmt.Errorf("checking compatibility: %w", err)
	}
	return m, nil
}

// Build posts a payload to the Model Builder. A non-2xx reply is returned as a
// *submit.BuildError carrying the service's detail.
func (c *Client) Build(ctx context.Context, p submit.Payload) (submit.Response, error) {
	var resp submit.Response
	err := c.do(ctx, http.MethodPost, c.endpoints.BuildPath, p, &resp)
	var se *StatusError
	if errors.As(err, &se) {
		detail := se.Detail
		if detail == "" {
			detail = se.Error()
		}
		return submit.Response{}, &submit.BuildError{Detail: detail}
	}
	if err != nil {
		return submit.Response{}, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	url := strings.TrimRight(c.endpoints.BaseURL, "/") + path

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	id := uuid.NewString()
	req.Header.Set(RequestIDHeader, id)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("service request", "method", method, "url", url, "request_id", id)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	c.logger.Debug("service response", "status", resp.StatusCode, "request_id", id)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// errorDetail extracts the "detail" field of an error body, falling back to
// the trimmed body text.
func errorDetail(data []byte) string {
	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Detail != nil {
		if s, ok := body.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(body.Detail); err == nil {
			return string(b)
		}
	}
	return strings.TrimSpace(string(data))
}
