package notification

import (
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/dashboard-notifications/internal/model"
)

var validate = validator.New()

// timestampLayouts are tried in order when parsing source timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NormalizeAlert maps a raw alert to the feed shape. The "N/A" sentinel
// (and an empty sku) become an absent SKU and an info-type record.
func NormalizeAlert(a model.Alert) model.Notification {
	n := model.Notification{
		ID:        model.AlertIDPrefix + a.ID,
		Message:   a.Message,
		Timestamp: a.CreatedAt,
		Type:      model.NotificationTypeInfo,
	}
	if sku := strings.TrimSpace(a.SKU); sku != "" && sku != model.NoSKU {
		n.SKU = &sku
		n.Type = model.NotificationTypeAlert
	}
	return n
}

// NormalizeDashboard maps a dashboard record to the feed shape. Ids that
// already carry the alert prefix move to the dashboard namespace so they
// cannot collide with a normalized alert.
func NormalizeDashboard(d model.DashboardNotification) model.Notification {
	id := d.ID
	if strings.HasPrefix(id, model.AlertIDPrefix) {
		id = model.DashboardIDPrefix + id
	}
	n := model.Notification{
		ID:        id,
		Message:   d.Message,
		Timestamp: d.Timestamp,
		Type:      model.ParseNotificationType(d.Type),
	}
	if d.SKU != nil && *d.SKU != "" {
		sku := *d.SKU
		n.SKU = &sku
	}
	return n
}

// Merge concatenates dashboard records and normalized alerts and sorts
// them newest first. Equal timestamps keep concatenation order, so
// dashboard records precede alerts. Unparseable timestamps sort last.
// When a source repeats an id only its first record is kept.
func Merge(dashboard []model.DashboardNotification, alerts []model.Alert) []model.Notification {
	out, _ := merge(dashboard, alerts)
	return out
}

// merge is Merge that also reports how many duplicate records it dropped.
func merge(dashboard []model.DashboardNotification, alerts []model.Alert) ([]model.Notification, int) {
	type keyed struct {
		n  model.Notification
		at time.Time
		ok bool
	}

	items := make([]keyed, 0, len(dashboard)+len(alerts))
	seen := make(map[string]struct{}, len(dashboard)+len(alerts))
	duplicates := 0
	add := func(n model.Notification) {
		if _, dup := seen[n.ID]; dup {
			duplicates++
			return
		}
		seen[n.ID] = struct{}{}
		at, ok := ParseTimestamp(n.Timestamp)
		items = append(items, keyed{n: n, at: at, ok: ok})
	}
	for _, d := range dashboard {
		add(NormalizeDashboard(d))
	}
	for _, a := range alerts {
		add(NormalizeAlert(a))
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.ok != b.ok {
			return a.ok
		}
		return a.ok && a.at.After(b.at)
	})

	out := make([]model.Notification, len(items))
	for i, it := range items {
		out[i] = it.n
	}
	return out, duplicates
}

// HasUnread reports whether the feed deserves the attention badge. Alerts
// always count; otherwise only a dashboard result that is more than the
// lone welcome message does.
func HasUnread(dashboard []model.DashboardNotification, alerts []model.Alert) bool {
	if len(alerts) > 0 {
		return true
	}
	if len(dashboard) > 1 {
		return true
	}
	return len(dashboard) == 1 && dashboard[0].ID != model.WelcomeNotificationID
}

// ParseTimestamp parses an ISO-8601 source timestamp.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// validDashboard drops records that fail validation. It returns the kept
// records and the number dropped.
func validDashboard(in []model.DashboardNotification) ([]model.DashboardNotification, int) {
	out := make([]model.DashboardNotification, 0, len(in))
	for _, d := range in {
		if err := validate.Struct(d); err != nil {
			continue
		}
		out = append(out, d)
	}
	return out, len(in) - len(out)
}

func validAlerts(in []model.Alert) ([]model.Alert, int) {
	out := make([]model.Alert, 0, len(in))
	for _, a := range in {
		if err := validate.Struct(a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, len(in) - len(out)
}
