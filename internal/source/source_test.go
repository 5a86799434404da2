package source

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/dashboard-notifications/internal/model"
	apperrors "github.com/jwalitptl/dashboard-notifications/pkg/errors"
	"github.com/jwalitptl/dashboard-notifications/pkg/logger"
	"github.com/jwalitptl/dashboard-notifications/pkg/metrics"
)

type fakeAPI struct {
	notifications []model.DashboardNotification
	alerts        []model.Alert
	err           error
	tokens        []string
}

func (f *fakeAPI) DashboardNotifications(_ context.Context, token string) ([]model.DashboardNotification, error) {
	f.tokens = append(f.tokens, token)
	return f.notifications, f.err
}

func (f *fakeAPI) Alerts(_ context.Context, token string) ([]model.Alert, error) {
	f.tokens = append(f.tokens, token)
	return f.alerts, f.err
}

func TestDashboard_Fetch(t *testing.T) {
	m := metrics.NewTest()
	api := &fakeAPI{notifications: []model.DashboardNotification{{ID: "1"}, {ID: "2"}}}

	got := NewDashboard(api, logger.Nop(), m).Fetch(context.Background(), "tok")

	assert.Len(t, got, 2)
	assert.Equal(t, []string{"tok"}, api.tokens)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues(NameDashboard, statusSuccess)))
}

func TestFetch_FailuresDegradeToEmpty(t *testing.T) {
	errs := []error{
		errors.New("dial tcp: connection refused"),
		apperrors.Unauthorized(errors.New("no credential")),
		apperrors.Upstream(500, nil),
		fmt.Errorf("executing request: %w", context.Canceled),
	}

	for _, err := range errs {
		t.Run(err.Error(), func(t *testing.T) {
			m := metrics.NewTest()
			api := &fakeAPI{err: err}

			alerts := NewAlerts(api, logger.Nop(), m).Fetch(context.Background(), "")
			dash := NewDashboard(api, logger.Nop(), m).Fetch(context.Background(), "")

			assert.NotNil(t, alerts)
			assert.Empty(t, alerts)
			assert.NotNil(t, dash)
			assert.Empty(t, dash)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues(NameAlerts, statusError)))
			assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues(NameDashboard, statusError)))
		})
	}
}

func TestAlerts_NilBodyIsEmpty(t *testing.T) {
	got := NewAlerts(&fakeAPI{}, logger.Nop(), nil).Fetch(context.Background(), "tok")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFetch_RejectedCredentialRunsHook(t *testing.T) {
	tests := []struct {
		name  string
		token string
		err   error
		want  int
	}{
		{"rejected token", "tok", apperrors.Unauthorized(errors.New("401")), 2},
		{"missing token", "", apperrors.Unauthorized(errors.New("no credential")), 0},
		{"forbidden", "tok", apperrors.Forbidden(nil), 0},
		{"other failure", "tok", apperrors.Upstream(500, nil), 0},
		{"success", "tok", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			hook := OnRejected(func() { calls++ })
			api := &fakeAPI{err: tt.err}

			NewDashboard(api, logger.Nop(), nil, hook).Fetch(context.Background(), tt.token)
			NewAlerts(api, logger.Nop(), nil, hook).Fetch(context.Background(), tt.token)

			assert.Equal(t, tt.want, calls)
		})
	}
}
