// Package statcan is a rate-limited client for the Statistics Canada Web
// Data Service. Responses are returned as raw JSON; per-item status
// markers in batch responses are passed through untouched.
package statcan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"statcan/internal/config"
	"statcan/internal/logging"
	"statcan/internal/metrics"
)

// WDS endpoints.
const (
	EndpointAllCubesLite    = "getAllCubesListLite"
	EndpointCubeMetadata    = "getCubeMetadata"
	EndpointSeriesInfo      = "getSeriesInfoFromVector"
	EndpointDataLatestN     = "getDataFromVectorsAndLatestNPeriods"
	EndpointChangedCubeList = "getChangedCubeList"
)

// HTTPError is returned for any non-2xx response.
type HTTPError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("statcan %s %s: status %d", e.Method, e.Endpoint, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

const maxErrorBody = 512

// Client calls the WDS REST API. It is safe for concurrent use; every call
// first passes the shared limiter.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *Limiter
	log     *slog.Logger
	metrics *metrics.Registry
}

type Option func(*Client)

// WithHTTPClient replaces the HTTP client, including its timeout.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithLimiter(l *Limiter) Option { return func(c *Client) { c.limiter = l } }

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

func WithMetrics(m *metrics.Registry) Option { return func(c *Client) { c.metrics = m } }

// New returns a client for baseURL limited to 20 calls per second with a
// 60 second per-call timeout.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		limiter: NewLimiter(20, time.Second),
		log:     logging.Discard(),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With("component", "statcan")
	return c
}

// NewFromConfig applies the api section of the configuration.
func NewFromConfig(cfg config.APIConfig, opts ...Option) *Client {
	base := []Option{
		WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		WithLimiter(NewLimiter(cfg.CallsPerPeriod, cfg.Period)),
	}
	return New(cfg.BaseURL, append(base, opts...)...)
}

// Get issues a GET to endpoint with optional query parameters.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	u := c.baseURL + "/" + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, endpoint, u, nil)
}

// Post issues a POST to endpoint with body encoded as JSON.
func (c *Client) Post(ctx context.Context, endpoint string, body any) (json.RawMessage, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", endpoint, err)
	}
	return c.do(ctx, http.MethodPost, endpoint, c.baseURL+"/"+endpoint, b)
}

func (c *Client) do(ctx context.Context, method, endpoint, u string, body []byte) (json.RawMessage, error) {
	waited, err := c.limiter.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait for rate limit: %w", err)
	}
	if c.metrics != nil {
		c.metrics.ThrottleWait.Observe(waited.Seconds())
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(endpoint, "error")
		return nil, fmt.Errorf("statcan %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()
	c.observe(endpoint, strconv.Itoa(resp.StatusCode))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}
	c.log.Debug("api call", "method", method, "endpoint", endpoint, "status", resp.StatusCode,
		"bytes", len(data), "elapsed", time.Since(start), "throttled", waited)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(data)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody] + "..."
		}
		return nil, &HTTPError{Method: method, Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(snippet)}
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("statcan %s %s: response is not valid JSON", method, endpoint)
	}
	return json.RawMessage(data), nil
}

func (c *Client) observe(endpoint, code string) {
	if c.metrics == nil {
		return
	}
	name, _, _ := strings.Cut(endpoint, "/")
	c.metrics.APICalls.WithLabelValues(name, code).Inc()
}

// ListAllCubes returns the lightweight catalogue of every cube.
func (c *Client) ListAllCubes(ctx context.Context) (json.RawMessage, error) {
	return c.Get(ctx, EndpointAllCubesLite, nil)
}

type vectorRequest struct {
	VectorID int64 `json:"vectorId"`
	LatestN  int   `json:"latestN,omitempty"`
}

type productRequest struct {
	ProductID int64 `json:"productId"`
}

// GetSeriesInfo returns one {status, object} item per vector, in request order.
func (c *Client) GetSeriesInfo(ctx context.Context, vectorIDs []int64) (json.RawMessage, error) {
	if len(vectorIDs) == 0 {
		return nil, errors.New("no vector ids")
	}
	req := make([]vectorRequest, len(vectorIDs))
	for i, v := range vectorIDs {
		req[i] = vectorRequest{VectorID: v}
	}
	return c.Post(ctx, EndpointSeriesInfo, req)
}

// GetSeriesData returns the latest latestN observations of each vector as
// one {status, object} item per vector.
func (c *Client) GetSeriesData(ctx context.Context, vectorIDs []int64, latestN int) (json.RawMessage, error) {
	if len(vectorIDs) == 0 {
		return nil, errors.New("no vector ids")
	}
	if latestN <= 0 {
		return nil, fmt.Errorf("latestN must be positive, got %d", latestN)
	}
	req := make([]vectorRequest, len(vectorIDs))
	for i, v := range vectorIDs {
		req[i] = vectorRequest{VectorID: v, LatestN: latestN}
	}
	return c.Post(ctx, EndpointDataLatestN, req)
}

// GetCubeMetadata returns full metadata, dimensions included, for each
// product id.
func (c *Client) GetCubeMetadata(ctx context.Context, productIDs []int64) (json.RawMessage, error) {
	if len(productIDs) == 0 {
		return nil, errors.New("no product ids")
	}
	req := make([]productRequest, len(productIDs))
	for i, p := range productIDs {
		req[i] = productRequest{ProductID: p}
	}
	return c.Post(ctx, EndpointCubeMetadata, req)
}

// GetChangedCubeList lists cubes released on the given day.
func (c *Client) GetChangedCubeList(ctx context.Context, day time.Time) (json.RawMessage, error) {
	return c.Get(ctx, EndpointChangedCubeList+"/"+day.Format(time.DateOnly), nil)
}
