package model

import (
	"time"
)

// NotificationType classifies a feed entry by origin.
type NotificationType string

const (
	NotificationTypeAlert   NotificationType = "alert"
	NotificationTypeInfo    NotificationType = "info"
	NotificationTypeWelcome NotificationType = "welcome"
)

// ParseNotificationType maps a wire value to a NotificationType. Unknown
// values are treated as info.
func ParseNotificationType(s string) NotificationType {
	switch NotificationType(s) {
	case NotificationTypeAlert, NotificationTypeInfo, NotificationTypeWelcome:
		return NotificationType(s)
	default:
		return NotificationTypeInfo
	}
}

const (
	// WelcomeNotificationID is the id of the one-time welcome record the
	// dashboard endpoint returns for accounts with nothing else to show.
	WelcomeNotificationID = "welcome"

	// AlertIDPrefix namespaces alert ids inside the merged feed.
	AlertIDPrefix = "alert_"

	// DashboardIDPrefix is prepended to dashboard ids that would otherwise
	// fall into the alert namespace.
	DashboardIDPrefix = "dashboard_"

	// NoSKU is the sentinel the alerts endpoint uses for "no SKU".
	NoSKU = "N/A"
)

// Notification is the normalized record exposed to consumers.
type Notification struct {
	ID        string           `json:"id"`
	Message   string           `json:"message"`
	SKU       *string          `json:"sku,omitempty"`
	Timestamp string           `json:"timestamp"`
	Type      NotificationType `json:"type"`
}

// DashboardNotification is a record as returned by the dashboard
// notifications endpoint.
type DashboardNotification struct {
	ID        string  `json:"id" validate:"required"`
	Message   string  `json:"message"`
	SKU       *string `json:"sku,omitempty"`
	Timestamp string  `json:"timestamp"`
	Type      string  `json:"type"`
}

// Alert is a record as returned by the alerts endpoint.
type Alert struct {
	ID        string `json:"id" validate:"required"`
	Message   string `json:"message"`
	SKU       string `json:"sku"`
	CreatedAt string `json:"createdAt"`
}

// FeedState is the aggregate published to consumers. It is replaced
// wholesale on every publication.
type FeedState struct {
	Notifications []Notification `json:"notifications"`
	Loading       bool           `json:"loading"`
	Error         string         `json:"error"`
	HasUnread     bool           `json:"hasUnread"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Clone returns a deep copy of s.
func (s FeedState) Clone() FeedState {
	out := s
	if s.Notifications != nil {
		out.Notifications = make([]Notification, len(s.Notifications))
		for i, n := range s.Notifications {
			if n.SKU != nil {
				sku := *n.SKU
				n.SKU = &sku
			}
			out.Notifications[i] = n
		}
	}
	return out
}
