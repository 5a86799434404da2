package notification

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/dashboard-notifications/internal/model"
)

func sku(s string) *string { return &s }

func TestNormalizeAlert(t *testing.T) {
	tests := []struct {
		name     string
		in       model.Alert
		wantType model.NotificationType
		wantSKU  *string
	}{
		{"real sku", model.Alert{ID: "1", SKU: "SKU-42"}, model.NotificationTypeAlert, sku("SKU-42")},
		{"sentinel sku", model.Alert{ID: "2", SKU: "N/A"}, model.NotificationTypeInfo, nil},
		{"empty sku", model.Alert{ID: "3"}, model.NotificationTypeInfo, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.Message = "Stock bajo"
			tt.in.CreatedAt = "2024-05-01T10:00:00Z"

			got := NormalizeAlert(tt.in)

			assert.Equal(t, "alert_"+tt.in.ID, got.ID)
			assert.Equal(t, "Stock bajo", got.Message)
			assert.Equal(t, "2024-05-01T10:00:00Z", got.Timestamp)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantSKU, got.SKU)
		})
	}
}

func TestNormalizeDashboard(t *testing.T) {
	got := NormalizeDashboard(model.DashboardNotification{
		ID: "welcome", Message: "Bienvenido", Timestamp: "2024-05-01T10:00:00Z", Type: "welcome",
	})
	assert.Equal(t, model.NotificationTypeWelcome, got.Type)
	assert.Nil(t, got.SKU)

	got = NormalizeDashboard(model.DashboardNotification{ID: "x", Type: "something-new", SKU: sku("")})
	assert.Equal(t, model.NotificationTypeInfo, got.Type)
	assert.Nil(t, got.SKU)
}

func TestMerge_OrderAndTies(t *testing.T) {
	dashboard := []model.DashboardNotification{
		{ID: "d-old", Timestamp: "2024-05-01T08:00:00Z", Type: "info"},
		{ID: "d-tie", Timestamp: "2024-05-01T10:00:00Z", Type: "info"},
		{ID: "d-bad", Timestamp: "yesterday", Type: "info"},
	}
	alerts := []model.Alert{
		{ID: "a-tie", CreatedAt: "2024-05-01T10:00:00Z", SKU: "S1"},
		{ID: "a-new", CreatedAt: "2024-05-01T12:30:00.123Z", SKU: "N/A"},
		{ID: "a-bad", CreatedAt: "", SKU: "S2"},
	}

	got := Merge(dashboard, alerts)

	ids := make([]string, len(got))
	for i, n := range got {
		ids[i] = n.ID
	}
	assert.Equal(t, []string{"alert_a-new", "d-tie", "alert_a-tie", "d-old", "d-bad", "alert_a-bad"}, ids)
}

func TestMerge_NoIDCollision(t *testing.T) {
	got := Merge(
		[]model.DashboardNotification{{ID: "7", Timestamp: "2024-05-01T10:00:00Z"}},
		[]model.Alert{{ID: "7", CreatedAt: "2024-05-01T10:00:00Z"}},
	)

	require.Len(t, got, 2)
	seen := map[string]bool{}
	for _, n := range got {
		assert.False(t, seen[n.ID], "duplicate id %s", n.ID)
		seen[n.ID] = true
	}
	assert.True(t, seen["7"])
	assert.True(t, seen["alert_7"])
}

func TestMerge_DashboardIDInAlertNamespace(t *testing.T) {
	got := Merge(
		[]model.DashboardNotification{{ID: "alert_7", Timestamp: "2024-05-01T10:00:00Z"}},
		[]model.Alert{{ID: "7", CreatedAt: "2024-05-01T10:00:00Z"}},
	)

	require.Len(t, got, 2)
	assert.Equal(t, "dashboard_alert_7", got[0].ID)
	assert.Equal(t, "alert_7", got[1].ID)
}

func TestMerge_DuplicateIDsKeepFirst(t *testing.T) {
	got, duplicates := merge(
		[]model.DashboardNotification{
			{ID: "d-1", Message: "first", Timestamp: "2024-05-01T08:00:00Z"},
			{ID: "d-1", Message: "second", Timestamp: "2024-05-01T12:00:00Z"},
			{ID: "alert_9", Message: "renamed", Timestamp: "2024-05-01T07:00:00Z"},
			{ID: "dashboard_alert_9", Message: "clash", Timestamp: "2024-05-01T06:00:00Z"},
		},
		[]model.Alert{
			{ID: "3", Message: "first", CreatedAt: "2024-05-01T09:00:00Z"},
			{ID: "3", Message: "second", CreatedAt: "2024-05-01T11:00:00Z"},
		},
	)

	assert.Equal(t, 3, duplicates)
	require.Len(t, got, 3)
	assert.Equal(t, "alert_3", got[0].ID)
	assert.Equal(t, "first", got[0].Message)
	assert.Equal(t, "d-1", got[1].ID)
	assert.Equal(t, "first", got[1].Message)
	assert.Equal(t, "dashboard_alert_9", got[2].ID)
	assert.Equal(t, "renamed", got[2].Message)
}

func TestMerge_AlwaysSortedNonIncreasing(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stamp := func() string {
		return base.Add(time.Duration(rng.Intn(72)) * time.Hour).Format(time.RFC3339)
	}

	for round := 0; round < 50; round++ {
		var dashboard []model.DashboardNotification
		var alerts []model.Alert
		nd, na := rng.Intn(10), rng.Intn(10)
		for i := 0; i < nd; i++ {
			dashboard = append(dashboard, model.DashboardNotification{ID: fmt.Sprintf("d%d", i), Timestamp: stamp()})
		}
		for i := 0; i < na; i++ {
			alerts = append(alerts, model.Alert{ID: fmt.Sprintf("a%d", i), CreatedAt: stamp(), SKU: "N/A"})
		}

		got := Merge(dashboard, alerts)
		require.Len(t, got, len(dashboard)+len(alerts))
		for i := 1; i < len(got); i++ {
			prev, _ := ParseTimestamp(got[i-1].Timestamp)
			cur, _ := ParseTimestamp(got[i].Timestamp)
			assert.False(t, cur.After(prev), "round %d: %s before %s", round, got[i-1].Timestamp, got[i].Timestamp)
		}
	}
}

func TestHasUnread(t *testing.T) {
	welcome := model.DashboardNotification{ID: "welcome"}
	other := model.DashboardNotification{ID: "n1"}
	alert := model.Alert{ID: "1"}

	tests := []struct {
		name      string
		dashboard []model.DashboardNotification
		alerts    []model.Alert
		want      bool
	}{
		{"only welcome", []model.DashboardNotification{welcome}, nil, false},
		{"nothing at all", nil, nil, false},
		{"welcome plus alert", []model.DashboardNotification{welcome}, []model.Alert{alert}, true},
		{"alerts only", nil, []model.Alert{alert}, true},
		{"single non welcome", []model.DashboardNotification{other}, nil, true},
		{"two dashboard records", []model.DashboardNotification{welcome, other}, nil, true},
		{"alert without id", []model.DashboardNotification{welcome}, []model.Alert{{SKU: "X1"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasUnread(tt.dashboard, tt.alerts))
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	for _, s := range []string{
		"2024-05-01T10:00:00Z",
		"2024-05-01T10:00:00.5+02:00",
		"2024-05-01T10:00:00",
		"2024-05-01T10:00:00.250",
		"2024-05-01",
	} {
		_, ok := ParseTimestamp(s)
		assert.True(t, ok, s)
	}

	_, ok := ParseTimestamp("01/05/2024")
	assert.False(t, ok)
}

func TestValidRecordsDropsMissingIDs(t *testing.T) {
	dashboard, dropped := validDashboard([]model.DashboardNotification{{ID: "1"}, {Message: "no id"}})
	assert.Len(t, dashboard, 1)
	assert.Equal(t, 1, dropped)

	alerts, dropped := validAlerts([]model.Alert{{Message: "no id"}})
	assert.Empty(t, alerts)
	assert.Equal(t, 1, dropped)
}
