package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSyncMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetrics(reg)

	m.IncMutation("add", OutcomeSuccess)
	m.IncMutation("add", OutcomeSuccess)
	m.IncMutation("remove", OutcomeRollback)
	m.IncRollback("remove")
	m.IncMerge(OutcomePartial)
	m.IncNotification("price_drop")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	mf := findMetricFamily(mfs, "wishlist_mutations_total")
	if mf == nil {
		t.Fatal("mutations metric not exported")
	}
	var adds float64
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), "kind", "add") && matchesLabel(metric.GetLabel(), "outcome", OutcomeSuccess) {
			adds = metric.GetCounter().GetValue()
		}
	}
	if adds != 2 {
		t.Fatalf("expected 2 successful adds, got %f", adds)
	}

	if got, err := fetchCounterValue(mfs, "wishlist_rollbacks_total", "kind", "remove"); err != nil || got != 1 {
		t.Fatalf("expected rollback=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "wishlist_merges_total", "outcome", OutcomePartial); err != nil || got != 1 {
		t.Fatalf("expected partial merge=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "wishlist_notifications_total", "kind", "price_drop"); err != nil || got != 1 {
		t.Fatalf("expected notification=1, got %f (%v)", got, err)
	}
}

func TestSyncMetricsNilSafe(t *testing.T) {
	var m *SyncMetrics
	m.IncMutation("add", OutcomeSuccess)
	m.IncRollback("add")
	m.IncMerge(OutcomeSuccess)
	m.IncNotification("stock")

	unregistered := NewSyncMetrics(nil)
	unregistered.IncMutation("add", OutcomeFailure)
}
