package provider

import (
	"sync"
	"time"
)

// providerMetrics accumulates per-provider counters for the router's
// metrics snapshot.
type providerMetrics struct {
	probes        int
	probeHits     int
	probeLatency  time.Duration
	successes     int
	retries       int
	failures      int
	firstProbedAt time.Time
	lastProbedAt  time.Time
}

// Metrics is a resettable snapshot of router activity: per-tick counts,
// running success rate, per-provider availability hit rate, average probe
// latency, and uptime percentage. The age of cached health entries is not
// tracked. A fresh Metrics is created whenever the router is destroyed and
// re-created.
type Metrics struct {
	mu        sync.Mutex
	ticks     int
	byName    map[string]*providerMetrics
	startedAt time.Time
}

// NewMetrics creates an empty Metrics, with its clock starting now.
func NewMetrics() *Metrics {
	return &Metrics{byName: make(map[string]*providerMetrics), startedAt: time.Now()}
}

func (m *Metrics) entry(name string) *providerMetrics {
	pm, ok := m.byName[name]
	if !ok {
		pm = &providerMetrics{}
		m.byName[name] = pm
	}
	return pm
}

func (m *Metrics) recordProbe(name string, available bool, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pm := m.entry(name)
	pm.probes++
	pm.probeLatency += latency
	if available {
		pm.probeHits++
	}
	now := time.Now()
	if pm.firstProbedAt.IsZero() {
		pm.firstProbedAt = now
	}
	pm.lastProbedAt = now
}

func (m *Metrics) recordTick() {
	m.mu.Lock()
	m.ticks++
	m.mu.Unlock()
}

func (m *Metrics) recordSuccess(name string) {
	m.mu.Lock()
	m.entry(name).successes++
	m.mu.Unlock()
}

func (m *Metrics) recordRetry(name string) {
	m.mu.Lock()
	m.entry(name).retries++
	m.mu.Unlock()
}

func (m *Metrics) recordFailure(name string) {
	m.mu.Lock()
	m.entry(name).failures++
	m.mu.Unlock()
}

// ProviderSnapshot is the point-in-time metrics view for one provider.
type ProviderSnapshot struct {
	Name                string
	ChecksPerformed     int
	AvailabilityHitRate float64
	AverageLatencyMs    float64
	Successes           int
	Retries             int
	Failures            int
	UptimePercent       float64
}

// Snapshot is the full, resettable router metrics view.
type Snapshot struct {
	Ticks        int
	SuccessRate  float64
	Providers    []ProviderSnapshot
	Uptime       time.Duration
}

// Snapshot returns a consistent point-in-time copy of the accumulated
// metrics.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var totalSuccess, totalAttempts int
	providers := make([]ProviderSnapshot, 0, len(m.byName))
	for name, pm := range m.byName {
		hitRate := 0.0
		avgLatency := 0.0
		if pm.probes > 0 {
			hitRate = float64(pm.probeHits) / float64(pm.probes)
			avgLatency = float64(pm.probeLatency.Milliseconds()) / float64(pm.probes)
		}
		attempts := pm.successes + pm.failures
		uptime := 0.0
		if attempts > 0 {
			uptime = float64(pm.successes) / float64(attempts) * 100
		}
		providers = append(providers, ProviderSnapshot{
			Name:                name,
			ChecksPerformed:     pm.probes,
			AvailabilityHitRate: hitRate,
			AverageLatencyMs:    avgLatency,
			Successes:           pm.successes,
			Retries:             pm.retries,
			Failures:            pm.failures,
			UptimePercent:       uptime,
		})
		totalSuccess += pm.successes
		totalAttempts += attempts
	}

	successRate := 0.0
	if totalAttempts > 0 {
		successRate = float64(totalSuccess) / float64(totalAttempts)
	}

	return Snapshot{
		Ticks:       m.ticks,
		SuccessRate: successRate,
		Providers:   providers,
		Uptime:      time.Since(m.startedAt),
	}
}
