// Package store defines the Document Store Adapter (spec.md §6): load/save a
// document record by id, atomically with respect to concurrent saves, plus
// the off-hot-path findSharedOrOwned query for HTTP CRUD.
package store

import (
	"context"

	"github.com/collabtext/realtime-docs/internal/document"
)

// Adapter is the full Document Store Adapter contract.
type Adapter interface {
	GetByID(ctx context.Context, id string) (*document.Record, error)
	Save(ctx context.Context, rec *document.Record) error
	FindSharedOrOwned(ctx context.Context, userID string) ([]*document.Record, error)
}
