package auth

import (
	"sync"

	"github.com/ternarybob/adwatch/internal/models"
)

// Queue is the deduplicated, ordered backlog of account IDs awaiting
// (re)authorization, plus the progress record for the batch currently being
// drained. Membership (pending or in-flight) implies "needs
// (re)authorization"; the registry keeps membership and account status in
// lockstep. Queue membership covers both the pending backlog and the batch
// the worker is currently processing, so the membership/status invariant
// holds for the whole of a drain.
type Queue struct {
	mu      sync.Mutex
	pending []string
	active  map[string]bool
	member  map[string]bool

	progress models.AuthProgress
}

// NewQueue creates an empty authorization queue.
func NewQueue() *Queue {
	return &Queue{
		active: make(map[string]bool),
		member: make(map[string]bool),
	}
}

// Enqueue adds an account ID to the backlog. Idempotent: an ID already
// pending or in the in-flight batch is a no-op.
func (q *Queue) Enqueue(accountID string) {
	if accountID == "" {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.member[accountID] {
		return
	}
	q.member[accountID] = true
	q.pending = append(q.pending, accountID)
}

// Drain atomically snapshots the current pending set as a fixed work batch,
// moving it to the in-flight set. Enqueues that arrive while the batch is
// being processed start a new batch rather than growing the in-flight one,
// which bounds a single run and keeps progress reporting meaningful.
func (q *Queue) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	batch := q.pending
	q.pending = nil
	for _, id := range batch {
		q.active[id] = true
	}
	return batch
}

// Requeue returns in-flight IDs to the front of the pending backlog. Used
// when a drain is abandoned without resolving its accounts (operator
// cancelled the interactive login).
func (q *Queue) Requeue(accountIDs []string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var front []string
	for _, id := range accountIDs {
		if q.active[id] {
			delete(q.active, id)
			front = append(front, id)
		}
	}
	q.pending = append(front, q.pending...)
}

// Remove clears one account ID from the queue, whether pending or
// in-flight.
func (q *Queue) Remove(accountID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.member[accountID] {
		return
	}
	delete(q.member, accountID)
	delete(q.active, accountID)
	for i, id := range q.pending {
		if id == accountID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
}

// Contains reports whether the account ID is pending or in-flight.
func (q *Queue) Contains(accountID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.member[accountID]
}

// PendingSize returns the number of account IDs waiting for the next batch.
func (q *Queue) PendingSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Size returns the total number of queued account IDs, pending plus
// in-flight.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.member)
}

// BeginBatch marks a drain as running over a batch of the given size.
func (q *Queue) BeginBatch(total int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.progress = models.AuthProgress{Running: true, Total: total}
}

// SetCurrent records the account currently being authorized.
func (q *Queue) SetCurrent(accountID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.progress.CurrentAccountID = accountID
}

// CompleteOne increments the completed counter for the active batch.
func (q *Queue) CompleteOne() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.progress.Completed++
	q.progress.CurrentAccountID = ""
}

// EndBatch resets progress to idle.
func (q *Queue) EndBatch() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.progress = models.AuthProgress{}
}

// ProgressSnapshot returns a copy of the current progress record.
func (q *Queue) ProgressSnapshot() models.AuthProgress {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.progress
}
