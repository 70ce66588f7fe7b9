// Package store persists apply records across runs. The store is the
// orchestrator's only memory: if it is unavailable, idempotency cannot be
// guaranteed and the whole run must abort.
package store

import (
	"context"
	"fmt"

	"github.com/lakekit-io/lakekit/internal/ir"
)

// Store is the key-value persistence boundary for apply records.
// Implementations must make Put/Delete atomic per node id.
type Store interface {
	// Get returns the record for a node id, or nil if none exists.
	Get(ctx context.Context, id string) (*ir.ApplyRecord, error)

	// Put writes the record for a node id.
	Put(ctx context.Context, id string, rec *ir.ApplyRecord) error

	// Delete removes the record for a node id. Removing an absent
	// record is not an error.
	Delete(ctx context.Context, id string) error

	// List returns all records keyed by node id.
	List(ctx context.Context) (map[string]*ir.ApplyRecord, error)

	// Lock acquires an exclusive lock on the record set.
	Lock() error

	// Unlock releases the lock.
	Unlock() error
}

// Error wraps a persistence failure. The engine treats any Error as fatal
// to the run.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("record store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config selects and configures a backend.
type Config struct {
	Type   string            // "local", "s3"
	Path   string            // local file path
	Config map[string]string // backend-specific settings
}

// New creates a record store from configuration.
func New(cfg *Config) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store configuration is nil")
	}
	switch cfg.Type {
	case "local", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("local store requires a path")
		}
		return NewLocal(cfg.Path), nil
	case "s3":
		return newS3Store(cfg.Config)
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
