package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsRecordsPriceWatchRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	finished := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)

	m.ObserveRun("price-watch", OutcomeSuccess, finished, 90*time.Second)
	m.ObserveRun("price-watch", OutcomeFailure, finished.Add(time.Hour), 2*time.Second)
	m.ObserveRun("price-watch", OutcomeLocked, finished.Add(2*time.Hour), 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, outcome := range cronOutcomes {
		got, err := fetchCounter(mfs, "wishlist_cron_job_runs_total", map[string]string{"job": "price-watch", "outcome": outcome})
		if err != nil || got != 1 {
			t.Fatalf("expected one %s run, got %f (%v)", outcome, got, err)
		}
	}
	if got, err := fetchHistogramSum(mfs, "wishlist_cron_job_duration_seconds", "job", "price-watch"); err != nil || got != 92 {
		t.Fatalf("expected locked run left out of the duration, got %f (%v)", got, err)
	}
	if got, err := fetchGaugeValue(mfs, "wishlist_cron_job_last_success_timestamp_seconds", "job", "price-watch"); err != nil || got != float64(finished.Unix()) {
		t.Fatalf("expected last success at the successful run, got %f (%v)", got, err)
	}
}

func TestCronJobMetricsTrackStartsReminderSeriesAtZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.Track("wishlist-reminders")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	got, err := fetchCounter(mfs, "wishlist_cron_job_runs_total", map[string]string{"job": "wishlist-reminders", "outcome": OutcomeLocked})
	if err != nil || got != 0 {
		t.Fatalf("expected zero locked runs, got %f (%v)", got, err)
	}
}

func TestCronJobMetricsWithoutRegistererAreNoops(t *testing.T) {
	m := NewCronJobMetrics(nil)
	m.Track("share-retention")
	m.ObserveRun("share-retention", OutcomeSuccess, time.Now(), time.Second)

	var missing *CronJobMetrics
	missing.ObserveRun("notification-cleanup", OutcomeFailure, time.Now(), time.Second)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	return fetchCounter(mfs, name, map[string]string{label: value})
}

func fetchCounter(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func fetchGaugeValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetGauge().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("gauge %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(labels []*dto.LabelPair, want map[string]string) bool {
	for name, value := range want {
		if !matchesLabel(labels, name, value) {
			return false
		}
	}
	return true
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
