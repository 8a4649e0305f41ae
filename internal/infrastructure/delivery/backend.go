package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/storefront/analytics/internal/domain/tracking"
	"go.uber.org/zap"
)

// Backend endpoints
const (
	eventsPath      = "/api/analytics/events"
	sessionPath     = "/api/analytics/session"
	exportPath      = "/api/analytics/export"
	experimentsPath = "/api/experiments/active"
)

// Backend delivers envelopes to the origin analytics collector over HTTP.
// It is the only reliable destination: failures requeue the envelope
type Backend struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	logger     *zap.Logger
}

// BackendOption configures the backend client
type BackendOption func(*Backend)

// WithHTTPClient overrides the HTTP client, mainly for tests
func WithHTTPClient(client *http.Client) BackendOption {
	return func(b *Backend) {
		b.httpClient = client
	}
}

// WithAuthToken sets the bearer token sent on export requests
func WithAuthToken(token string) BackendOption {
	return func(b *Backend) {
		b.authToken = token
	}
}

// NewBackend creates a backend destination for the given collector base URL
func NewBackend(baseURL string, logger *zap.Logger, opts ...BackendOption) *Backend {
	b := &Backend{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name identifies the backend destination
func (b *Backend) Name() tracking.DestinationName {
	return tracking.DestinationBackend
}

// Reliable reports that backend failures should be retried
func (b *Backend) Reliable() bool {
	return true
}

// Deliver posts one envelope to the collector
func (b *Backend) Deliver(ctx context.Context, env tracking.Envelope) error {
	return b.post(ctx, eventsPath, env, nil)
}

// SendSessionBatch posts a heatmap batch. Callers treat failures as terminal:
// buffered telemetry is best-effort and not worth durable retry
func (b *Backend) SendSessionBatch(ctx context.Context, batch tracking.SessionBatch) error {
	return b.post(ctx, sessionPath, batch, nil)
}

// ExportRequest selects events for export
type ExportRequest struct {
	StartDate  string              `json:"startDate"`
	EndDate    string              `json:"endDate"`
	EventTypes []tracking.EventKind `json:"eventTypes,omitempty"`
}

// Export retrieves stored events from the collector
func (b *Backend) Export(ctx context.Context, req ExportRequest) ([]tracking.StoredEvent, error) {
	var response struct {
		Success bool `json:"success"`
		Data    struct {
			Events []tracking.StoredEvent `json:"events"`
		} `json:"data"`
	}
	if err := b.post(ctx, exportPath, req, &response); err != nil {
		return nil, err
	}
	return response.Data.Events, nil
}

// FetchActiveExperiments retrieves the experiment -> variant map used to seed
// local experiment assignments at engine init
func (b *Backend) FetchActiveExperiments(ctx context.Context) (map[string]string, error) {
	var response struct {
		Success bool              `json:"success"`
		Data    map[string]string `json:"data"`
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+experimentsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build experiments request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch active experiments: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch active experiments: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode experiments response: %w", err)
	}
	return response.Data, nil
}

// post sends a JSON body and optionally decodes a JSON response into out
func (b *Backend) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.authToken)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused before reporting the failure
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("post %s: unexpected status %d", path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response for %s: %w", path, err)
		}
	}
	return nil
}
