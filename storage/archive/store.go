package archive

import (
	"context"

	"cdctrl/internal/models"
)

// Store persists committed entries outside the process.
type Store interface {
	// InsertEntryBatch writes entries in one round trip. Entries already archived
	// (same identity) are ignored.
	InsertEntryBatch(ctx context.Context, entries []models.Entry) error

	// Close releases the underlying connections.
	Close()
}
