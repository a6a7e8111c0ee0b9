// Package pool implements the task manager / pool (C6): persistent keyed
// task records with status history, proofs, and backend handle IDs, backed
// by memory or Redis.
package pool

import (
	"context"
	"time"

	"github.com/taikoxyz/raiko-sub001/pkg/proofrequest"
)

// Entity is the opaque, backend-agnostic payload stored alongside a key's
// status chain — typically a serialized ProofRequest plus whatever
// bookkeeping the actor wants to recover across restarts.
type Entity struct {
	Request proofrequest.ProofRequest
}

// Record is what Get returns: the stored entity and its latest status.
type Record struct {
	Entity Entity
	Status proofrequest.TaskStatus
}

// Pool is the task manager contract of spec §4.6.
type Pool interface {
	// Enqueue is idempotent: if key already has a record, it returns
	// without mutation. Otherwise it persists (entity, initialStatus)
	// with the pool's configured TTL.
	Enqueue(ctx context.Context, key proofrequest.Key, entity Entity, initialStatus proofrequest.TaskStatus) error

	// Get returns the current record for key, or ok=false if absent.
	Get(ctx context.Context, key proofrequest.Key) (Record, bool, error)

	// UpdateStatus appends newStatus to key's chain iff it differs from
	// the latest recorded status (idempotence, spec §3/P2), optionally
	// carrying the proof hex (required for a Success transition). It
	// returns the prior status.
	UpdateStatus(ctx context.Context, key proofrequest.Key, newStatus proofrequest.TaskStatus, proofHex string) (proofrequest.TaskStatus, error)

	// GetStatusHistory returns the full append-only status chain for key.
	GetStatusHistory(ctx context.Context, key proofrequest.Key) (proofrequest.StatusRecords, error)

	// Remove deletes key's record (and its status history/IDs), returning
	// the number of records removed (0 or 1).
	Remove(ctx context.Context, key proofrequest.Key) (int, error)

	// List returns every record currently held by the pool, keyed by
	// request key.
	List(ctx context.Context) (map[proofrequest.Key]Record, error)

	// StoreID / ReadID / RemoveID persist an opaque backend-side handle
	// for key, used by long-running remote backends (spec §4.5) so
	// cancellation survives process restarts.
	StoreID(ctx context.Context, key proofrequest.Key, id string) error
	ReadID(ctx context.Context, key proofrequest.Key) (string, bool, error)
	RemoveID(ctx context.Context, key proofrequest.Key) error

	// Close releases any held connections.
	Close() error
}

// DefaultTTL is used by backends that support expiry (Redis) when the
// caller does not specify one explicitly.
const DefaultTTL = 7 * 24 * time.Hour
