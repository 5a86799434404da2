package dashboard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/dashboard-notifications/pkg/circuitbreaker"
	apperrors "github.com/jwalitptl/dashboard-notifications/pkg/errors"
)

func newTestClient(t *testing.T, h http.HandlerFunc, cfg Config) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	c := NewClient(cfg, srv.Client())
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c, srv
}

func TestClient_DashboardNotifications(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultNotificationsPath, r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"welcome","message":"Hola","timestamp":"2024-05-01T10:00:00Z","type":"welcome"}]`))
	}, Config{})

	got, err := c.DashboardNotifications(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "welcome", got[0].ID)
	assert.Equal(t, "welcome", got[0].Type)
	assert.Nil(t, got[0].SKU)
}

func TestClient_Alerts(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/alerts", r.URL.Path)
		w.Write([]byte(`[{"id":"7","message":"Low stock","sku":"SKU-1","createdAt":"2024-05-01T10:00:00Z"}]`))
	}, Config{AlertsPath: "/v2/alerts"})

	got, err := c.Alerts(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "SKU-1", got[0].SKU)
	assert.Equal(t, "2024-05-01T10:00:00Z", got[0].CreatedAt)
}

func TestClient_MissingCredential(t *testing.T) {
	var hits int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}, Config{})

	_, err := c.Alerts(context.Background(), "")
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   apperrors.ErrorCode
	}{
		{"unauthorized", http.StatusUnauthorized, "", apperrors.ErrUnauthorized},
		{"forbidden", http.StatusForbidden, "", apperrors.ErrForbidden},
		{"server error", http.StatusInternalServerError, "oops", apperrors.ErrUpstream},
		{"bad json", http.StatusOK, "{not json", apperrors.ErrBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, Config{})

			_, err := c.DashboardNotifications(context.Background(), "tok")
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
		})
	}
}

func TestClient_RetriesTooManyRequests(t *testing.T) {
	var hits int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[]`))
	}, Config{MaxRetries: 3})

	got, err := c.Alerts(context.Background(), "tok")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestClient_RetriesExhausted(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}, Config{MaxRetries: 1})

	_, err := c.Alerts(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrUpstream))
}

func TestClient_BodyLimit(t *testing.T) {
	body := `[{"id":"1","message":"Low stock","sku":"S1","createdAt":"2024-05-01T10:00:00Z"}]`
	limit := int64(len(body))
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DefaultAlertsPath {
			w.Write([]byte(body))
			return
		}
		w.Write([]byte(body + " "))
	}, Config{MaxBodyBytes: limit})

	alerts, err := c.Alerts(context.Background(), "tok")
	require.NoError(t, err)
	assert.Len(t, alerts, 1)

	_, err = c.DashboardNotifications(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadGateway))
	assert.Contains(t, err.Error(), "exceeds")
}

func TestClient_BreakerOpensPerPath(t *testing.T) {
	var hits int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path == DefaultAlertsPath {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}, Config{BreakerFailures: 2, BreakerTimeout: time.Minute})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := c.Alerts(ctx, "tok")
		require.Error(t, err)
	}
	_, err := c.Alerts(ctx, "tok")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	_, err = c.DashboardNotifications(ctx, "tok")
	assert.NoError(t, err)
}

func TestRetryAfterDuration(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	assert.Equal(t, time.Second, retryAfterDuration(resp, 0))
	assert.Equal(t, 4*time.Second, retryAfterDuration(resp, 2))
	assert.Equal(t, maxBackoff, retryAfterDuration(resp, 10))

	resp.Header.Set("Retry-After", "7")
	assert.Equal(t, 7*time.Second, retryAfterDuration(resp, 0))
}
