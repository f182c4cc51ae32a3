package domain

import "time"

// PendingOperation records a client-issued mutation that has not yet
// been confirmed or rolled back by the server. At most one pending
// operation exists per entity; a newer intent supersedes the old one.
type PendingOperation struct {
	OperationID string
	EntityType  EntityType
	EntityID    string

	// OptimisticState is what the caller is already displaying.
	// OriginalState is the last known-good value before the intent,
	// kept so a rollback can be explained to the user. Both are
	// shaped by EntityType.
	OptimisticState interface{}
	OriginalState   interface{}

	StartedAt time.Time

	// Seq is assigned by the tracker and increases monotonically per
	// entity. Confirmations and rollbacks for superseded sequence
	// numbers are ignored.
	Seq uint64
}
