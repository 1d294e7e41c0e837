package auth

import (
	"testing"
)

func TestEnqueueIsIdempotent(t *testing.T) {
	q := NewQueue()

	q.Enqueue("123")
	q.Enqueue("123")
	q.Enqueue("456")

	if q.Size() != 2 {
		t.Errorf("Size() = %d, want 2 after duplicate enqueue", q.Size())
	}
	if !q.Contains("123") || !q.Contains("456") {
		t.Error("queue lost a member")
	}
}

func TestDrainSnapshotsFixedBatch(t *testing.T) {
	q := NewQueue()
	q.Enqueue("1")
	q.Enqueue("2")

	batch := q.Drain()
	if len(batch) != 2 || batch[0] != "1" || batch[1] != "2" {
		t.Fatalf("Drain() = %v, want ordered [1 2]", batch)
	}

	// In-flight IDs are still members so late enqueues dedupe against them
	if !q.Contains("1") {
		t.Error("in-flight ID no longer a member")
	}
	q.Enqueue("1")
	if q.PendingSize() != 0 {
		t.Error("enqueue of in-flight ID grew the pending backlog")
	}

	// A genuinely new ID starts the next batch, not the in-flight one
	q.Enqueue("3")
	if q.PendingSize() != 1 {
		t.Errorf("PendingSize() = %d, want 1", q.PendingSize())
	}
	next := q.Drain()
	if len(next) != 1 || next[0] != "3" {
		t.Errorf("second Drain() = %v, want [3]", next)
	}
}

func TestRemoveClearsMembership(t *testing.T) {
	q := NewQueue()
	q.Enqueue("1")
	q.Enqueue("2")
	q.Drain()

	q.Remove("1")
	if q.Contains("1") {
		t.Error("Contains(1) after Remove")
	}
	if !q.Contains("2") {
		t.Error("Remove(1) affected another member")
	}

	// Re-enqueue after removal must work
	q.Enqueue("1")
	if q.PendingSize() != 1 {
		t.Error("re-enqueue after Remove did not land in pending")
	}
}

func TestRequeueReturnsBatchToPending(t *testing.T) {
	q := NewQueue()
	q.Enqueue("1")
	q.Enqueue("2")
	batch := q.Drain()

	q.Requeue(batch)

	if q.PendingSize() != 2 {
		t.Errorf("PendingSize() = %d, want 2 after requeue", q.PendingSize())
	}
	redrained := q.Drain()
	if len(redrained) != 2 || redrained[0] != "1" {
		t.Errorf("re-drained batch = %v, want original order", redrained)
	}
}

func TestProgressLifecycle(t *testing.T) {
	q := NewQueue()

	if p := q.ProgressSnapshot(); p.Running {
		t.Error("progress running before any batch")
	}

	q.BeginBatch(3)
	q.SetCurrent("1")

	p := q.ProgressSnapshot()
	if !p.Running || p.Total != 3 || p.CurrentAccountID != "1" || p.Completed != 0 {
		t.Errorf("mid-batch progress = %+v", p)
	}

	q.CompleteOne()
	p = q.ProgressSnapshot()
	if p.Completed != 1 || p.CurrentAccountID != "" {
		t.Errorf("post-complete progress = %+v", p)
	}

	q.EndBatch()
	p = q.ProgressSnapshot()
	if p.Running || p.Completed != 0 || p.Total != 0 {
		t.Errorf("progress not reset to idle: %+v", p)
	}
}
