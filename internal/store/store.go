package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/taskboard/internal/model"
)

// ErrNoSnapshot is returned by LoadSnapshot when nothing is cached for a key.
var ErrNoSnapshot = errors.New("no cached snapshot")

// Snapshot is the last successful load of one query.
type Snapshot struct {
	Key       string
	Tasks     []model.Task
	FetchedAt time.Time
}

// Store is the local cache of remote state. It is shown while the service
// is unreachable and is never written back to the service.
type Store interface {
	// === Task snapshots ===

	SaveSnapshot(ctx context.Context, key string, tasks []model.Task) error
	LoadSnapshot(ctx context.Context, key string) (*Snapshot, error)

	// === Users ===

	SaveUsers(ctx context.Context, users []model.User) error
	GetUsers(ctx context.Context) ([]model.User, error)

	// Clear drops everything; called on logout.
	Clear(ctx context.Context) error

	Close() error
}
