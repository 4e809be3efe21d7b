package ports

import (
	"context"

	"github.com/patricknitsch/grohe-smarthome/internal/domain"
)

// SnapshotRepository persists the latest poll snapshot so other processes
// (the status command) can read it.
type SnapshotRepository interface {
	Save(ctx context.Context, snapshot domain.Snapshot) error
	// Load returns the last saved snapshot, or domain.ErrNoSnapshot.
	Load(ctx context.Context) (domain.Snapshot, error)
}
