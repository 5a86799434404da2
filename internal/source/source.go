// Package source holds the two notification fetchers. A fetcher never
// reports an error to its caller: every failure is logged, counted and
// degraded to an empty result so one source's outage cannot hide the
// other's data.
package source

import (
	"context"
	"time"

	"github.com/jwalitptl/dashboard-notifications/internal/model"
	apperrors "github.com/jwalitptl/dashboard-notifications/pkg/errors"
	"github.com/jwalitptl/dashboard-notifications/pkg/logger"
	"github.com/jwalitptl/dashboard-notifications/pkg/metrics"
)

const (
	NameDashboard = "dashboard"
	NameAlerts    = "alerts"

	statusSuccess = "success"
	statusError   = "error"
)

// Option configures a fetcher.
type Option func(*options)

type options struct {
	onRejected func()
}

// OnRejected registers fn to run when the upstream rejects a credential
// that was presented. A missing credential does not trigger it.
func OnRejected(fn func()) Option {
	return func(o *options) { o.onRejected = fn }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type notificationsAPI interface {
	DashboardNotifications(ctx context.Context, token string) ([]model.DashboardNotification, error)
}

type alertsAPI interface {
	Alerts(ctx context.Context, token string) ([]model.Alert, error)
}

// Dashboard fetches the general dashboard notifications.
type Dashboard struct {
	api     notificationsAPI
	logger  *logger.Logger
	metrics *metrics.Metrics
	opts    options
}

func NewDashboard(api notificationsAPI, log *logger.Logger, m *metrics.Metrics, opts ...Option) *Dashboard {
	return &Dashboard{
		api:     api,
		logger:  log.WithFields(map[string]interface{}{"source": NameDashboard}),
		metrics: m,
		opts:    buildOptions(opts),
	}
}

func (d *Dashboard) Fetch(ctx context.Context, token string) []model.DashboardNotification {
	start := time.Now()
	items, err := d.api.DashboardNotifications(ctx, token)
	observe(d.metrics, d.logger, NameDashboard, start, err)
	d.opts.rejected(token, err)
	if err != nil {
		return []model.DashboardNotification{}
	}
	if items == nil {
		items = []model.DashboardNotification{}
	}
	return items
}

// Alerts fetches the inventory alerts.
type Alerts struct {
	api     alertsAPI
	logger  *logger.Logger
	metrics *metrics.Metrics
	opts    options
}

func NewAlerts(api alertsAPI, log *logger.Logger, m *metrics.Metrics, opts ...Option) *Alerts {
	return &Alerts{
		api:     api,
		logger:  log.WithFields(map[string]interface{}{"source": NameAlerts}),
		metrics: m,
		opts:    buildOptions(opts),
	}
}

func (a *Alerts) Fetch(ctx context.Context, token string) []model.Alert {
	start := time.Now()
	items, err := a.api.Alerts(ctx, token)
	observe(a.metrics, a.logger, NameAlerts, start, err)
	a.opts.rejected(token, err)
	if err != nil {
		return []model.Alert{}
	}
	if items == nil {
		items = []model.Alert{}
	}
	return items
}

func observe(m *metrics.Metrics, log *logger.Logger, name string, start time.Time, err error) {
	status := statusSuccess
	if err != nil {
		status = statusError
	}
	if m != nil {
		m.FetchTotal.WithLabelValues(name, status).Inc()
		m.FetchDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	if err == nil {
		return
	}

	switch {
	case ctxDone(err):
		log.Debug("fetch abandoned", "error", err.Error())
	case apperrors.Is(err, apperrors.ErrUnauthorized):
		log.Warn("fetch skipped: credential missing or rejected", "error", err.Error())
	default:
		log.Error(err, "fetch failed, using empty result", "code", int(apperrors.CodeOf(err)))
	}
}

func (o options) rejected(token string, err error) {
	if o.onRejected != nil && token != "" && apperrors.Is(err, apperrors.ErrUnauthorized) {
		o.onRejected()
	}
}
