// Package store persists job records. Every implementation offers lookup by
// id and filter, append-only history, and a version-guarded update.
package store

import (
	"context"
	"time"

	"github.com/printworks/jobtrack/internal/model"
)

// Store is the persistence collaborator of the lifecycle engine.
type Store interface {
	// Create inserts a new record. It fails with model.ErrDuplicate if the id
	// or display code is taken.
	Create(ctx context.Context, job *model.JobRecord) error
	// Get returns a snapshot the caller owns, or model.ErrNotFound.
	Get(ctx context.Context, id string) (*model.JobRecord, error)
	// List returns the records matching filter, oldest first.
	List(ctx context.Context, filter model.JobFilter) ([]*model.JobRecord, error)
	// Update replaces the record if the stored version still equals
	// expectedVersion and appends the history entries the store has not
	// seen yet. A moved-on record yields *model.StaleWriteError.
	Update(ctx context.Context, job *model.JobRecord, expectedVersion int64) error
	// History returns the status log in sequence order.
	History(ctx context.Context, id string) ([]model.HistoryEntry, error)
	// NextSequence hands out the numbers behind display codes.
	NextSequence(ctx context.Context) (int64, error)
	Close() error
}

// IdempotencyRecord is the request a client-supplied key was first applied to.
type IdempotencyRecord struct {
	JobID  string       `json:"jobId"`
	Action model.Action `json:"action"`
}

// IdempotencyStore remembers which job and action a key was applied to.
// The first Remember for a key wins.
type IdempotencyStore interface {
	Lookup(ctx context.Context, key string) (rec IdempotencyRecord, found bool, err error)
	Remember(ctx context.Context, key string, rec IdempotencyRecord, ttl time.Duration) error
}
