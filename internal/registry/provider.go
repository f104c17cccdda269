package registry

import (
	"context"

	"vocald/pkg/types"
)

// Provider is a source of model catalogs and artifacts. New sources are
// added by implementing this interface, never by type inspection.
type Provider interface {
	// Name identifies the provider ("huggingface", "local", ...).
	Name() string

	// ListKnown returns the provider's catalog, optionally filtered by
	// task (empty task means all). Status on returned entries is advisory;
	// the registry derives the authoritative status from presence.
	ListKnown(ctx context.Context, task types.Task) ([]types.ModelInfo, error)

	// GetInfo returns catalog metadata for one id. The bool is false when
	// the provider does not know the id (not an error).
	GetInfo(ctx context.Context, modelID string) (types.ModelInfo, bool, error)

	// Fetch downloads the model artifact into the provider's local store.
	// progress may be nil; when set it is called with cumulative
	// (downloaded, total) byte counts, total 0 meaning indeterminate.
	// A failed fetch must leave no partial artifact behind.
	Fetch(ctx context.Context, modelID string, progress func(downloaded, total int64)) error

	// IsPresent reports whether the artifact exists locally, returning
	// its path when it does.
	IsPresent(modelID string) (string, bool)

	// Remove deletes the local artifact. Removing an absent artifact is
	// not an error.
	Remove(modelID string) error
}
