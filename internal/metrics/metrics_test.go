package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/relayq/relayq/internal/model"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	snap := c.Snapshot()

	if snap.JobsCreated != 0 {
		t.Errorf("expected JobsCreated = 0, got %d", snap.JobsCreated)
	}
	if snap.JobsReserved != 0 {
		t.Errorf("expected JobsReserved = 0, got %d", snap.JobsReserved)
	}
	if len(snap.JobsByStatus) != 0 {
		t.Errorf("expected empty JobsByStatus, got %d entries", len(snap.JobsByStatus))
	}
}

func TestRecordJobCreated(t *testing.T) {
	c := NewCollector()

	c.RecordJobCreated()
	c.RecordJobCreated()

	snap := c.Snapshot()
	if snap.JobsCreated != 2 {
		t.Errorf("expected JobsCreated = 2, got %d", snap.JobsCreated)
	}
	if snap.JobsByStatus[model.StatusQueued] != 2 {
		t.Errorf("expected queued = 2, got %d", snap.JobsByStatus[model.StatusQueued])
	}
}

func TestRecordJobReserved(t *testing.T) {
	c := NewCollector()

	c.RecordJobCreated()
	c.RecordJobReserved()

	snap := c.Snapshot()
	if snap.JobsReserved != 1 {
		t.Errorf("expected JobsReserved = 1, got %d", snap.JobsReserved)
	}
	if snap.JobsByStatus[model.StatusQueued] != 0 {
		t.Errorf("expected queued = 0, got %d", snap.JobsByStatus[model.StatusQueued])
	}
	if snap.JobsByStatus[model.StatusRunning] != 1 {
		t.Errorf("expected running = 1, got %d", snap.JobsByStatus[model.StatusRunning])
	}
}

func TestRecordTransition(t *testing.T) {
	c := NewCollector()

	c.RecordJobCreated()
	c.RecordJobReserved()
	c.RecordTransition(model.StatusRunning, model.StatusCompleted)

	snap := c.Snapshot()
	if snap.JobsByStatus[model.StatusRunning] != 0 {
		t.Errorf("expected running = 0, got %d", snap.JobsByStatus[model.StatusRunning])
	}
	if snap.JobsByStatus[model.StatusCompleted] != 1 {
		t.Errorf("expected completed = 1, got %d", snap.JobsByStatus[model.StatusCompleted])
	}
}

func TestRecordReaperCounters(t *testing.T) {
	c := NewCollector()

	c.RecordTimeoutsReaped(3)
	c.RecordRetriesApplied(2)
	c.RecordJobsExpired(1)
	c.RecordTimeoutsReaped(0)

	snap := c.Snapshot()
	if snap.TimeoutsReaped != 3 {
		t.Errorf("expected TimeoutsReaped = 3, got %d", snap.TimeoutsReaped)
	}
	if snap.RetriesApplied != 2 {
		t.Errorf("expected RetriesApplied = 2, got %d", snap.RetriesApplied)
	}
	if snap.JobsExpired != 1 {
		t.Errorf("expected JobsExpired = 1, got %d", snap.JobsExpired)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	c := NewCollector()
	c.RecordJobCreated()

	snap := c.Snapshot()
	snap.JobsByStatus[model.StatusQueued] = 99

	snap2 := c.Snapshot()
	if snap2.JobsByStatus[model.StatusQueued] != 1 {
		t.Errorf("expected mutating a snapshot to not affect the collector, got %d", snap2.JobsByStatus[model.StatusQueued])
	}
}

func TestUptime(t *testing.T) {
	c := NewCollector()
	time.Sleep(10 * time.Millisecond)

	snap := c.Snapshot()
	if snap.Uptime < 10*time.Millisecond {
		t.Errorf("expected Uptime >= 10ms, got %v", snap.Uptime)
	}
	if snap.Uptime > time.Second {
		t.Errorf("expected Uptime < 1s, got %v", snap.Uptime)
	}
}

func TestDefaultIsASingleton(t *testing.T) {
	if Default() != Default() {
		t.Error("expected Default() to return the same collector instance")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordJobCreated()
				c.RecordJobReserved()
				c.RecordTransition(model.StatusRunning, model.StatusCompleted)
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	if snap.JobsCreated != 1000 {
		t.Errorf("expected JobsCreated = 1000, got %d", snap.JobsCreated)
	}
	if snap.JobsByStatus[model.StatusCompleted] != 1000 {
		t.Errorf("expected completed = 1000, got %d", snap.JobsByStatus[model.StatusCompleted])
	}
}
