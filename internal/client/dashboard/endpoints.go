package dashboard

import (
	"context"

	"github.com/jwalitptl/dashboard-notifications/internal/model"
)

const (
	DefaultNotificationsPath = "/api/dashboard/notifications"
	DefaultAlertsPath        = "/api/alerts"
)

// DashboardNotifications lists the general dashboard notifications.
func (c *Client) DashboardNotifications(ctx context.Context, token string) ([]model.DashboardNotification, error) {
	var out []model.DashboardNotification
	if err := c.Get(ctx, c.cfg.NotificationsPath, token, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Alerts lists the inventory alerts.
func (c *Client) Alerts(ctx context.Context, token string) ([]model.Alert, error) {
	var out []model.Alert
	if err := c.Get(ctx, c.cfg.AlertsPath, token, &out); err != nil {
		return nil, err
	}
	return out, nil
}
