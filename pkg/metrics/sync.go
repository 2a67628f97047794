package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the sync counters.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomePartial  = "partial"
	OutcomeQueued   = "queued"
	OutcomeTimeout  = "timeout"
	OutcomeRollback = "rollback"
)

// SyncMetrics records client-side sync engine activity.
type SyncMetrics struct {
	mutations     *prometheus.CounterVec
	rollbacks     *prometheus.CounterVec
	merges        *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// NewSyncMetrics registers the sync engine metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wishlist_mutations_total",
		Help: "Wishlist mutations by kind and outcome.",
	}, []string{"kind", "outcome"})
	rollbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wishlist_rollbacks_total",
		Help: "Optimistic mutations rolled back after a remote failure.",
	}, []string{"kind"})
	merges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wishlist_merges_total",
		Help: "Guest to account merges by outcome.",
	}, []string{"outcome"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wishlist_notifications_total",
		Help: "Notification transitions dispatched by kind.",
	}, []string{"kind"})
	reg.MustRegister(mutations, rollbacks, merges, notifications)
	return &SyncMetrics{
		mutations:     mutations,
		rollbacks:     rollbacks,
		merges:        merges,
		notifications: notifications,
	}
}

// IncMutation counts a mutation of the given kind with its outcome.
func (m *SyncMetrics) IncMutation(kind, outcome string) {
	if m == nil || m.mutations == nil {
		return
	}
	m.mutations.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

// IncRollback counts a reverted optimistic mutation.
func (m *SyncMetrics) IncRollback(kind string) {
	if m == nil || m.rollbacks == nil {
		return
	}
	m.rollbacks.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncMerge counts a completed merge attempt.
func (m *SyncMetrics) IncMerge(outcome string) {
	if m == nil || m.merges == nil {
		return
	}
	m.merges.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncNotification counts a dispatched transition.
func (m *SyncMetrics) IncNotification(kind string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(normalizeLabel(kind)).Inc()
}
