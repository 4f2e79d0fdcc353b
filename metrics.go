package auth

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint8

const (
	// MetricLoginSuccess counts completed sign-ins.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected credential attempts.
	MetricLoginFailure
	// MetricLoginThrottled counts attempts refused by the rate limiter.
	MetricLoginThrottled
	// MetricTwoFactorPending counts sign-ins parked awaiting a second factor.
	MetricTwoFactorPending
	// MetricTwoFactorSuccess counts satisfied second factors.
	MetricTwoFactorSuccess
	// MetricTwoFactorFailure counts rejected second factors.
	MetricTwoFactorFailure
	// MetricTokenRotated counts successful persistent-token rotations.
	MetricTokenRotated
	// MetricReplayDetected counts persistent-token replays. Operational
	// alerting should watch this counter; callers only see a generic failure.
	MetricReplayDetected
	// MetricLogout counts sign-outs.
	MetricLogout
	// MetricSignOutEverywhere counts bulk session invalidations.
	MetricSignOutEverywhere
	// MetricLinkIssued counts issued user links.
	MetricLinkIssued
	// MetricLinkConsumed counts consumed user links.
	MetricLinkConsumed
	// MetricLinkRejected counts expired-or-invalid link presentations.
	MetricLinkRejected

	metricCount
)

// Metrics is a fixed set of atomic counters. Nil-safe: a nil *Metrics is the
// disabled state.
type Metrics struct {
	counters [metricCount]atomic.Uint64
}

func newMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	return &Metrics{}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies the counters. Safe to call concurrently with updates.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, int(metricCount))}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
