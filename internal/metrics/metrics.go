// Package metrics is an in-memory counter collector exposed via GET /info,
// trimmed from a per-worker/per-priority model down to the counters a queue
// server's operators actually want: jobs created, reserved, and resolved,
// by terminal status, plus control-loop reap counts.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/relayq/relayq/internal/model"
)

var (
	global *Collector
	once   sync.Once
)

// Collector tracks server-wide counters in memory. It is reset on process
// restart; nothing here is persisted to Redis.
type Collector struct {
	jobsCreated  atomic.Int64
	jobsReserved atomic.Int64
	startTime    time.Time

	mu             sync.RWMutex
	jobsByStatus   map[model.Status]int64
	timeoutsReaped int64
	retriesApplied int64
	jobsExpired    int64
}

// Snapshot is a point-in-time rendering of the collector, returned by
// GET /info.
type Snapshot struct {
	JobsCreated    int64                  `json:"jobs_created"`
	JobsReserved   int64                  `json:"jobs_reserved"`
	JobsByStatus   map[model.Status]int64 `json:"jobs_by_status"`
	TimeoutsReaped int64                  `json:"timeouts_reaped"`
	RetriesApplied int64                  `json:"retries_applied"`
	JobsExpired    int64                  `json:"jobs_expired"`
	Uptime         time.Duration          `json:"uptime"`
}

// Default returns the process-wide collector singleton.
func Default() *Collector {
	once.Do(func() { global = NewCollector() })
	return global
}

// NewCollector builds a fresh collector; used directly by tests that want
// isolation from the package singleton.
func NewCollector() *Collector {
	return &Collector{
		jobsByStatus: make(map[model.Status]int64),
		startTime:    time.Now(),
	}
}

// RecordJobCreated is called by the adapter after a successful create_job.
func (c *Collector) RecordJobCreated() {
	c.jobsCreated.Add(1)
	c.bumpStatus(model.StatusQueued, 1)
}

// RecordJobReserved is called after a successful next_queued_job.
func (c *Collector) RecordJobReserved() {
	c.jobsReserved.Add(1)
	c.bumpStatus(model.StatusQueued, -1)
	c.bumpStatus(model.StatusRunning, 1)
}

// RecordTransition is called after update_job_status resolves a job to a
// new status on the PATCH path; control-loop reaps use RecordTransitionN.
func (c *Collector) RecordTransition(from, to model.Status) {
	c.RecordTransitionN(from, to, 1)
}

// RecordTransitionN is RecordTransition for n jobs at once, for control-loop
// reconcilers that move a whole batch between statuses in a single pass.
func (c *Collector) RecordTransitionN(from, to model.Status, n int) {
	if n <= 0 {
		return
	}
	c.bumpStatus(from, -int64(n))
	c.bumpStatus(to, int64(n))
}

// RecordTimeoutsReaped adds n to the running reap count from the timeout
// control loop.
func (c *Collector) RecordTimeoutsReaped(n int) {
	if n == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeoutsReaped += int64(n)
}

// RecordRetriesApplied adds n to the retry reconciler's processed count.
func (c *Collector) RecordRetriesApplied(n int) {
	if n == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retriesApplied += int64(n)
}

// RecordJobsExpired adds n to the expiry reconciler's removed count.
func (c *Collector) RecordJobsExpired(n int) {
	if n == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobsExpired += int64(n)
}

// RecordExpiredStatuses removes the expiry reconciler's deleted jobs from
// jobs_by_status, keyed by whichever status each held at the moment it was
// deleted — a deletion is a removal from that bucket, not a transition.
func (c *Collector) RecordExpiredStatuses(byStatus map[model.Status]int) {
	for status, n := range byStatus {
		if n <= 0 {
			continue
		}
		c.bumpStatus(status, -int64(n))
	}
}

func (c *Collector) bumpStatus(s model.Status, delta int64) {
	if s == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobsByStatus[s] += delta
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byStatus := make(map[model.Status]int64, len(c.jobsByStatus))
	for k, v := range c.jobsByStatus {
		byStatus[k] = v
	}

	return Snapshot{
		JobsCreated:    c.jobsCreated.Load(),
		JobsReserved:   c.jobsReserved.Load(),
		JobsByStatus:   byStatus,
		TimeoutsReaped: c.timeoutsReaped,
		RetriesApplied: c.retriesApplied,
		JobsExpired:    c.jobsExpired,
		Uptime:         time.Since(c.startTime),
	}
}
