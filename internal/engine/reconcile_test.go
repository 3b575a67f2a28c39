package engine

import (
	"context"
	"testing"
	"time"

	"github.com/relayq/relayq/internal/model"
)

func TestCheckRunningTimeouts_HardTimeoutBecomesFailed(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := context.Background()

	settings := model.DefaultSettings()
	settings.Timeout = model.Duration(time.Second)
	mustCreateQueue(t, e, "q", settings)

	id, err := e.CreateJob(ctx, "q", model.CreateRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.NextQueuedJob(ctx, "q"); err != nil {
		t.Fatal(err)
	}

	n, toFailed, toTimedOut, err := e.CheckRunningTimeouts(ctx, time.Now().Add(2*time.Second).UnixMilli())
	if err != nil {
		t.Fatalf("CheckRunningTimeouts() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 job reaped, got %d", n)
	}
	if toFailed != 1 || toTimedOut != 0 {
		t.Errorf("expected 1 job to land failed and 0 timed_out, got toFailed=%d toTimedOut=%d", toFailed, toTimedOut)
	}

	job, err := e.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.StatusFailed {
		t.Errorf("expected status failed for a hard timeout, got %s", job.Status)
	}
}

func TestCheckRunningTimeouts_HeartbeatTimeoutBecomesTimedOut(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := context.Background()

	settings := model.DefaultSettings()
	settings.HeartbeatTimeout = model.Duration(time.Second)
	settings.Timeout = model.Duration(time.Hour)
	mustCreateQueue(t, e, "q", settings)

	id, err := e.CreateJob(ctx, "q", model.CreateRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.NextQueuedJob(ctx, "q"); err != nil {
		t.Fatal(err)
	}

	n, toFailed, toTimedOut, err := e.CheckRunningTimeouts(ctx, time.Now().Add(2*time.Second).UnixMilli())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 job reaped, got %d", n)
	}
	if toFailed != 0 || toTimedOut != 1 {
		t.Errorf("expected 0 jobs to land failed and 1 timed_out, got toFailed=%d toTimedOut=%d", toFailed, toTimedOut)
	}

	job, err := e.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.StatusTimedOut {
		t.Errorf("expected status timed_out for an expired heartbeat, got %s", job.Status)
	}
}

func TestCheckRunningTimeouts_NothingDue(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := context.Background()
	mustCreateQueue(t, e, "q", model.DefaultSettings())

	if _, err := e.CreateJob(ctx, "q", model.CreateRequest{}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.NextQueuedJob(ctx, "q"); err != nil {
		t.Fatal(err)
	}

	n, toFailed, toTimedOut, err := e.CheckRunningTimeouts(ctx, time.Now().UnixMilli())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected 0 jobs reaped before their deadline, got %d", n)
	}
	if toFailed != 0 || toTimedOut != 0 {
		t.Errorf("expected no status breakdown before the deadline, got toFailed=%d toTimedOut=%d", toFailed, toTimedOut)
	}
}

func TestCheckRetries_QueueDeletedBeforeRetryBecomesTerminal(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := context.Background()

	settings := model.DefaultSettings()
	settings.Retries = 3
	mustCreateQueue(t, e, "q", settings)

	id, err := e.CreateJob(ctx, "q", model.CreateRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.NextQueuedJob(ctx, "q"); err != nil {
		t.Fatal(err)
	}
	if err := e.UpdateJobStatus(ctx, id, model.StatusFailed); err != nil {
		t.Fatal(err)
	}

	if _, err := e.DeleteQueue(ctx, "q"); err != nil {
		t.Fatal(err)
	}

	n, rescheduled, err := e.CheckRetries(ctx, time.Now().Add(time.Hour).UnixMilli())
	if err != nil {
		t.Fatalf("CheckRetries() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 job processed, got %d", n)
	}
	if rescheduled != 0 {
		t.Errorf("expected 0 jobs rescheduled when their queue is gone, got %d", rescheduled)
	}

	job, err := e.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.StatusFailed {
		t.Errorf("expected job left terminal-failed when its queue is gone, got %s", job.Status)
	}
}

func TestCheckExpiry_DeletesTerminalJobsInConfiguredStatuses(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := context.Background()
	mustCreateQueue(t, e, "q", model.DefaultSettings())

	id, err := e.CreateJob(ctx, "q", model.CreateRequest{Tags: []string{"t"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.NextQueuedJob(ctx, "q"); err != nil {
		t.Fatal(err)
	}
	if err := e.UpdateJobStatus(ctx, id, model.StatusCompleted); err != nil {
		t.Fatal(err)
	}

	n, byStatus, err := e.CheckExpiry(ctx, time.Now().Add(48*time.Hour).UnixMilli(), []model.Status{model.StatusCompleted})
	if err != nil {
		t.Fatalf("CheckExpiry() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 job expired, got %d", n)
	}
	if byStatus[model.StatusCompleted] != 1 {
		t.Errorf("expected 1 completed job in the status breakdown, got %v", byStatus)
	}

	if _, err := e.GetJob(ctx, id); KindOf(err) != KindNoSuchJob {
		t.Errorf("expected job deleted after expiry, got %v", err)
	}
	tagged, err := e.GetTagged(ctx, "t")
	if err != nil {
		t.Fatal(err)
	}
	if len(tagged) != 0 {
		t.Errorf("expected tag index cleared after expiry, got %v", tagged)
	}
}

func TestCheckExpiry_LeavesStatusesOutsideConfiguredSet(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := context.Background()
	mustCreateQueue(t, e, "q", model.DefaultSettings())

	id, err := e.CreateJob(ctx, "q", model.CreateRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.NextQueuedJob(ctx, "q"); err != nil {
		t.Fatal(err)
	}
	if err := e.UpdateJobStatus(ctx, id, model.StatusCompleted); err != nil {
		t.Fatal(err)
	}

	// expiry_check_statuses configured without "completed": the job stays
	// in jobs:ended indefinitely (S6).
	n, byStatus, err := e.CheckExpiry(ctx, time.Now().Add(48*time.Hour).UnixMilli(), []model.Status{model.StatusFailed})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected 0 jobs expired when status is outside the configured set, got %d", n)
	}
	if len(byStatus) != 0 {
		t.Errorf("expected an empty status breakdown, got %v", byStatus)
	}

	if _, err := e.GetJob(ctx, id); err != nil {
		t.Errorf("expected job to still exist, got %v", err)
	}
}
