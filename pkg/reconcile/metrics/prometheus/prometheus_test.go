package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordEvent("updated", "ok")
	m.RecordEvent("updated", "ok")
	m.RecordEvent("created", "duplicate")

	if got := testutil.ToFloat64(m.eventsTotal.WithLabelValues("updated", "ok")); got != 2 {
		t.Errorf("events_total{updated,ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.eventsTotal.WithLabelValues("created", "duplicate")); got != 1 {
		t.Errorf("events_total{created,duplicate} = %v, want 1", got)
	}
}

func TestRecordEventDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordEventDuration("updated", 150*time.Millisecond)

	count, err := testutil.GatherAndCount(reg, "test_reconcile_event_duration_seconds")
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected one duration series, got %d", count)
	}
}

func TestRecordRoleAction(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordRoleAction("grant", "ok")
	m.RecordRoleAction("revoke", "error")

	if got := testutil.ToFloat64(m.roleActionsTotal.WithLabelValues("grant", "ok")); got != 1 {
		t.Errorf("role_actions_total{grant,ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.roleActionsTotal.WithLabelValues("revoke", "error")); got != 1 {
		t.Errorf("role_actions_total{revoke,error} = %v, want 1", got)
	}
}

func TestRecordNotification(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordNotification("ok")

	if got := testutil.ToFloat64(m.notificationsTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("notifications_total{ok} = %v, want 1", got)
	}
}
