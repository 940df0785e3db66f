package metrics

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2rkf/nekoi/core"
)

// topIdentities is how many identities a Snapshot lists.
const topIdentities = 10

// Metrics keeps in-process quota statistics for the JSON metrics endpoint.
// It implements quota.Recorder.
type Metrics struct {
	totalChecks   atomic.Int64
	allowedChecks atomic.Int64
	deniedChecks  atomic.Int64
	storeErrors   atomic.Int64
	extended      atomic.Int64

	mu        sync.RWMutex
	stats     map[string]*IdentityStats
	startTime time.Time
	now       func() time.Time
}

// IdentityStats tracks decisions for one identity since process start.
type IdentityStats struct {
	Identity      string    `json:"identity"`
	Checks        int64     `json:"checks"`
	Allowed       int64     `json:"allowed"`
	Denied        int64     `json:"denied"`
	LastRemaining int64     `json:"last_remaining"`
	FirstCheckAt  time.Time `json:"first_check_at"`
	LastCheckAt   time.Time `json:"last_check_at"`
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{
		stats:     make(map[string]*IdentityStats),
		startTime: time.Now(),
		now:       time.Now,
	}
}

// RecordCheck records one quota decision.
func (m *Metrics) RecordCheck(_ context.Context, identity string, tier core.Tier, status *core.Status, _ time.Duration) {
	m.totalChecks.Add(1)
	if status.Allowed {
		m.allowedChecks.Add(1)
	} else {
		m.deniedChecks.Add(1)
	}
	if tier == core.TierExtended {
		m.extended.Add(1)
	}

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stats[identity]
	if !ok {
		s = &IdentityStats{Identity: identity, FirstCheckAt: now}
		m.stats[identity] = s
	}
	s.Checks++
	if status.Allowed {
		s.Allowed++
	} else {
		s.Denied++
	}
	s.LastRemaining = status.Remaining
	s.LastCheckAt = now
}

// RecordStoreError counts a failed store round-trip.
func (m *Metrics) RecordStoreError(context.Context, string, error) {
	m.storeErrors.Add(1)
}

// Snapshot is a point-in-time view of the statistics.
type Snapshot struct {
	TotalChecks    int64            `json:"total_checks"`
	AllowedChecks  int64            `json:"allowed_checks"`
	DeniedChecks   int64            `json:"denied_checks"`
	ExtendedChecks int64            `json:"extended_checks"`
	StoreErrors    int64            `json:"store_errors"`
	Identities     int64            `json:"identities"`
	TopIdentities  []*IdentityStats `json:"top_identities"`
	UptimeSeconds  int64            `json:"uptime_seconds"`
	StartTime      time.Time        `json:"start_time"`
}

// GetSnapshot copies the current statistics. TopIdentities holds the ten
// identities with the most checks, ties broken by identity.
func (m *Metrics) GetSnapshot() *Snapshot {
	m.mu.RLock()
	top := make([]*IdentityStats, 0, len(m.stats))
	for _, s := range m.stats {
		c := *s
		top = append(top, &c)
	}
	identities := int64(len(m.stats))
	m.mu.RUnlock()

	sort.Slice(top, func(i, j int) bool {
		if top[i].Checks != top[j].Checks {
			return top[i].Checks > top[j].Checks
		}
		return top[i].Identity < top[j].Identity
	})
	if len(top) > topIdentities {
		top = top[:topIdentities]
	}

	return &Snapshot{
		TotalChecks:    m.totalChecks.Load(),
		AllowedChecks:  m.allowedChecks.Load(),
		DeniedChecks:   m.deniedChecks.Load(),
		ExtendedChecks: m.extended.Load(),
		StoreErrors:    m.storeErrors.Load(),
		Identities:     identities,
		TopIdentities:  top,
		UptimeSeconds:  int64(m.now().Sub(m.startTime).Seconds()),
		StartTime:      m.startTime,
	}
}

// Reset forgets the statistics of one identity, e.g. after its quota was
// reset by an operator.
func (m *Metrics) Reset(identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stats, identity)
}
