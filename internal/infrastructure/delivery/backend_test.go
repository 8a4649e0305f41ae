package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/storefront/analytics/internal/domain/shared"
	"github.com/storefront/analytics/internal/domain/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBackendDeliverPostsEnvelope(t *testing.T) {
	var got tracking.Envelope
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/analytics/events", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	backend := NewBackend(server.URL, zap.NewNop())
	env := tracking.NewEnvelope(shared.SystemClock{}, tracking.KindPageView, "sess-1", "user-1", map[string]any{"path": "/"})

	require.NoError(t, backend.Deliver(context.Background(), env))
	assert.Equal(t, env.EventID, got.EventID)
	assert.Equal(t, tracking.KindPageView, got.Kind)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "/", got.Properties["path"])
}

func TestBackendDeliverReportsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	backend := NewBackend(server.URL, zap.NewNop())
	env := tracking.NewEnvelope(shared.SystemClock{}, tracking.KindPageView, "sess-1", "", nil)

	err := backend.Deliver(context.Background(), env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestBackendSendSessionBatch(t *testing.T) {
	var got tracking.SessionBatch
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analytics/session", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	backend := NewBackend(server.URL, zap.NewNop())
	batch := tracking.SessionBatch{
		SessionID: "sess-1",
		Page:      "/products/42",
		Clicks: []tracking.ClickSample{
			{X: 10, Y: 20, Timestamp: 1000, ElementID: "buy-now", ElementType: "button"},
		},
	}

	require.NoError(t, backend.SendSessionBatch(context.Background(), batch))
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "/products/42", got.Page)
	require.Len(t, got.Clicks, 1)
	assert.Equal(t, "button", got.Clicks[0].ElementType)
}

func TestBackendExportSendsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analytics/export", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req ExportRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2026-01-01", req.StartDate)

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"events": []map[string]any{
					{"sessionId": "sess-1", "type": "purchase"},
					{"sessionId": "sess-2", "type": "page_view"},
				},
			},
		})
	}))
	defer server.Close()

	backend := NewBackend(server.URL, zap.NewNop(), WithAuthToken("secret"))
	events, err := backend.Export(context.Background(), ExportRequest{
		StartDate: "2026-01-01",
		EndDate:   "2026-01-31",
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "sess-1", events[0].SessionID)
}

func TestBackendFetchActiveExperiments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/experiments/active", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]string{"homepage_hero": "variant_b"},
		})
	}))
	defer server.Close()

	backend := NewBackend(server.URL, zap.NewNop())
	assignments, err := backend.FetchActiveExperiments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"homepage_hero": "variant_b"}, assignments)
}

func TestBackendFetchActiveExperimentsServerDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	backend := NewBackend(server.URL, zap.NewNop())
	_, err := backend.FetchActiveExperiments(context.Background())
	require.Error(t, err)
}
