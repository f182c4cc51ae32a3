// Package optimistic tracks client-issued mutations between intent and
// server confirmation, with a strict last-intent-wins policy per entity.
package optimistic

import (
	"sync"
	"time"

	"github.com/hochfrequenz/claude-session-monitor/internal/domain"
)

// staleAfter is the safety-net ceiling for pending operations whose
// confirm or rollback never arrived (dropped network event).
const staleAfter = 30 * time.Second

// Tracker holds at most one pending operation per entity. Registering a
// second intent supersedes the first; confirmations and rollbacks for
// superseded operations are ignored so a slow first request can never
// clobber a faster second one.
type Tracker struct {
	mu  sync.Mutex
	ops map[entityKey]*domain.PendingOperation
	seq map[entityKey]uint64
}

type entityKey struct {
	entityType domain.EntityType
	entityID   string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		ops: make(map[entityKey]*domain.PendingOperation),
		seq: make(map[entityKey]uint64),
	}
}

// Register records a new intent and returns the tracked operation with
// its sequence number assigned. An existing pending operation for the
// same entity is replaced; its original state is preserved only when
// the new operation supplies none, since the newest original reflects
// the last known-good truth.
func (t *Tracker) Register(op domain.PendingOperation) domain.PendingOperation {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := entityKey{op.EntityType, op.EntityID}
	if prev, ok := t.ops[key]; ok && op.OriginalState == nil {
		op.OriginalState = prev.OriginalState
	}

	t.seq[key]++
	op.Seq = t.seq[key]
	if op.StartedAt.IsZero() {
		op.StartedAt = time.Now()
	}
	t.ops[key] = &op
	return op
}

// Confirm removes the pending entry if operationID matches the
// currently tracked operation. A stale confirmation for a superseded
// operation is a no-op. Returns whether anything was removed.
func (t *Tracker) Confirm(entityType domain.EntityType, entityID, operationID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := entityKey{entityType, entityID}
	op, ok := t.ops[key]
	if !ok || op.OperationID != operationID {
		return false
	}
	delete(t.ops, key)
	return true
}

// Rollback removes the pending entry under the same matching rule as
// Confirm and returns the superseded operation. Callers should
// re-derive display state from the authoritative store, not from
// OriginalState directly, since the store may have moved on.
func (t *Tracker) Rollback(entityType domain.EntityType, entityID, operationID string) (domain.PendingOperation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := entityKey{entityType, entityID}
	op, ok := t.ops[key]
	if !ok || op.OperationID != operationID {
		return domain.PendingOperation{}, false
	}
	delete(t.ops, key)
	return *op, true
}

// Pending returns the currently tracked operation for an entity.
func (t *Tracker) Pending(entityType domain.EntityType, entityID string) (domain.PendingOperation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[entityKey{entityType, entityID}]
	if !ok {
		return domain.PendingOperation{}, false
	}
	return *op, true
}

// CleanupStale removes every pending entry older than the 30s ceiling
// regardless of operation id, and returns the dropped operations. Must
// be driven periodically by the owner; it is the safety net for lost
// confirmations.
func (t *Tracker) CleanupStale(now time.Time) []domain.PendingOperation {
	t.mu.Lock()
	defer t.mu.Unlock()

	var dropped []domain.PendingOperation
	for key, op := range t.ops {
		if now.Sub(op.StartedAt) >= staleAfter {
			dropped = append(dropped, *op)
			delete(t.ops, key)
		}
	}
	return dropped
}

// RemoveMatching drops pending operations selected by the predicate,
// used when a repository is unsubscribed and its in-flight intents
// must not dangle.
func (t *Tracker) RemoveMatching(match func(domain.PendingOperation) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, op := range t.ops {
		if match(*op) {
			delete(t.ops, key)
			removed++
		}
	}
	return removed
}

// Len reports how many operations are currently pending.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ops)
}
