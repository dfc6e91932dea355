// Package raytrace provides a client for the remote ray-tracing engine that
// traces ray bundles through a posed, coated optical model and splits them
// into forward and reverse families at every coated interface.
package raytrace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/rayven/internal/model"
	"github.com/sells-group/rayven/internal/optic"
	"github.com/sells-group/rayven/internal/ray"
)

// Client defines the ray-tracing engine operations.
type Client interface {
	// TraceSplit traces rays through m, following every reflected and
	// transmitted branch until its flux falls below minFlux.
	TraceSplit(ctx context.Context, m *optic.Model, rays *ray.Vector, minFlux float64) (*SplitResult, error)
	// Health checks that the engine is reachable.
	Health(ctx context.Context) error
}

// SplitResult holds the ray families that left the model. Forward families
// reached the detector; reverse families exited back through the entrance.
type SplitResult struct {
	Forward []*model.RayFamily `json:"forward"`
	Reverse []*model.RayFamily `json:"reverse"`
}

// EngineError is returned for any non-2xx engine response.
type EngineError struct {
	StatusCode int
	Message    string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("raytrace: engine returned status %d: %s", e.StatusCode, e.Message)
}

type traceSplitRequest struct {
	Model   *optic.Model `json:"model"`
	Rays    *ray.Vector  `json:"rays"`
	MinFlux float64      `json:"min_flux"`
	Verbose bool         `json:"verbose,omitempty"`
}

// Option configures the engine client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit paces requests to rps with the given burst. A zero rps
// disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

// WithVerbose asks the engine to record ray paths in its own logs.
func WithVerbose(v bool) Option {
	return func(c *httpClient) {
		c.verbose = v
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	verbose bool
}

// NewClient creates an engine client for baseURL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 10 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends one request. Engine calls are never retried.
func (c *httpClient) do(ctx context.Context, req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "raytrace: rate limiter wait")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "raytrace: request failed")
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, eris.Wrap(readErr, "raytrace: read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &EngineError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
	}
	return body, nil
}

func (c *httpClient) TraceSplit(ctx context.Context, m *optic.Model, rays *ray.Vector, minFlux float64) (*SplitResult, error) {
	payload, err := json.Marshal(traceSplitRequest{Model: m, Rays: rays, MinFlux: minFlux, Verbose: c.verbose})
	if err != nil {
		return nil, eris.Wrap(err, "raytrace: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/trace-split", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "raytrace: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	var result SplitResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "raytrace: unmarshal response")
	}
	for _, fams := range [][]*model.RayFamily{result.Forward, result.Reverse} {
		for _, f := range fams {
			if err := ray.ValidateFamily(f); err != nil {
				return nil, eris.Wrap(err, "raytrace: malformed response")
			}
		}
	}
	return &result, nil
}

func (c *httpClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return eris.Wrap(err, "raytrace: create health request")
	}
	_, err = c.do(ctx, req)
	return err
}
