// Package storage is the thin capability over the blob store used by the
// document finalization saga: staging uploads into the temp namespace,
// moving staged objects to their permanent location, and best-effort
// deletes.
package storage

import (
	"context"

	"github.com/haulhq/driveronboard/internal/server/models"
)

// ObjectStore is the contract the saga and handlers consume.
//
// Move must be atomic from the caller's point of view: either it returns a
// new permanent asset whose content matches the temp object, or it fails. In
// both cases the temp object survives, so a Move is repeatable until the
// caller deletes the staged original itself. Delete is best-effort and
// deleting a non-existent key is not an error.
type ObjectStore interface {
	// StagePutURL allocates a fresh temp key and returns it together with a
	// presigned PUT URL the client uploads the candidate file to.
	StagePutURL(ctx context.Context, mimeType string) (*models.FileAsset, error)

	// Move relocates a staged object under destPrefix and returns the
	// permanent asset.
	Move(ctx context.Context, tempKey, destPrefix string) (*models.FileAsset, error)

	// Delete removes the given keys, best-effort.
	Delete(ctx context.Context, keys []string) error

	// PresignGetURL returns a short-lived download URL for a stored object.
	PresignGetURL(ctx context.Context, key string) (string, error)
}
