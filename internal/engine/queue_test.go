package engine

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/relayq/relayq/internal/model"
)

func setupTestEngine(t *testing.T) (*Engine, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client), mr
}

func TestCreateOrUpdateQueue_CreatedThenUpdated(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := context.Background()

	settings := model.DefaultSettings()
	created, err := e.CreateOrUpdateQueue(ctx, "emails", settings)
	if err != nil {
		t.Fatalf("CreateOrUpdateQueue() error = %v", err)
	}
	if !created {
		t.Error("expected first declaration to report created=true")
	}

	settings.Retries = 5
	created, err = e.CreateOrUpdateQueue(ctx, "emails", settings)
	if err != nil {
		t.Fatalf("CreateOrUpdateQueue() error = %v", err)
	}
	if created {
		t.Error("expected second declaration to report created=false")
	}

	got, err := e.GetQueueSettings(ctx, "emails")
	if err != nil {
		t.Fatalf("GetQueueSettings() error = %v", err)
	}
	if got.Retries != 5 {
		t.Errorf("expected updated retries = 5, got %d", got.Retries)
	}
}

func TestCreateOrUpdateQueue_RejectsBadName(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := context.Background()

	_, err := e.CreateOrUpdateQueue(ctx, "bad name!", model.DefaultSettings())
	if KindOf(err) != KindBadRequest {
		t.Errorf("expected BadRequest, got %v", err)
	}
}

func TestGetQueueSettings_NoSuchQueue(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := context.Background()

	_, err := e.GetQueueSettings(ctx, "nope")
	if KindOf(err) != KindNoSuchQueue {
		t.Errorf("expected NoSuchQueue, got %v", err)
	}
}

func TestDeleteQueue_RemovesJobsAndTags(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := context.Background()

	if _, err := e.CreateOrUpdateQueue(ctx, "q", model.DefaultSettings()); err != nil {
		t.Fatal(err)
	}
	id, err := e.CreateJob(ctx, "q", model.CreateRequest{Tags: []string{"x"}})
	if err != nil {
		t.Fatal(err)
	}

	existed, err := e.DeleteQueue(ctx, "q")
	if err != nil {
		t.Fatalf("DeleteQueue() error = %v", err)
	}
	if !existed {
		t.Error("expected existed=true")
	}

	if _, err := e.GetJob(ctx, id); KindOf(err) != KindNoSuchJob {
		t.Errorf("expected job to be deleted with its queue, got %v", err)
	}
	tagged, err := e.GetTagged(ctx, "x")
	if err != nil {
		t.Fatal(err)
	}
	if len(tagged) != 0 {
		t.Errorf("expected tag index cleared, got %v", tagged)
	}

	exists, err := e.QueueExists(ctx, "q")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("expected queue to no longer exist")
	}
}

func TestDeleteQueue_NotFound(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := context.Background()

	existed, err := e.DeleteQueue(ctx, "nope")
	if err != nil {
		t.Fatal(err)
	}
	if existed {
		t.Error("expected existed=false for a queue that was never declared")
	}
}

func TestQueueSizeAndJobIDs_FIFOOrder(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := context.Background()

	if _, err := e.CreateOrUpdateQueue(ctx, "q", model.DefaultSettings()); err != nil {
		t.Fatal(err)
	}

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := e.CreateJob(ctx, "q", model.CreateRequest{})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	size, err := e.QueueSize(ctx, "q")
	if err != nil {
		t.Fatal(err)
	}
	if size != 3 {
		t.Errorf("expected size 3, got %d", size)
	}

	gotIDs, err := e.QueueJobIDs(ctx, "q")
	if err != nil {
		t.Fatal(err)
	}
	if len(gotIDs) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(gotIDs))
	}
	// index 0 must be the next id NextQueuedJob will hand out.
	if gotIDs[0] != strconv.FormatInt(ids[0], 10) {
		t.Errorf("expected QueueJobIDs index 0 = %d, got %s", ids[0], gotIDs[0])
	}
	job, err := e.NextQueuedJob(ctx, "q")
	if err != nil {
		t.Fatal(err)
	}
	if job.ID != ids[0] {
		t.Errorf("expected FIFO: first reserved job = %d, got %d", ids[0], job.ID)
	}
}

func TestListQueues(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := context.Background()

	if _, err := e.CreateOrUpdateQueue(ctx, "a", model.DefaultSettings()); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CreateOrUpdateQueue(ctx, "b", model.DefaultSettings()); err != nil {
		t.Fatal(err)
	}

	names, err := e.ListQueues(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 {
		t.Errorf("expected 2 queues, got %v", names)
	}
}
