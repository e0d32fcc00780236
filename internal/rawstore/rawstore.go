// Package rawstore persists immutable raw-page snapshots
// content-addressed by their sha256 digest. A blob is written exactly
// once per distinct byte sequence; callers persist the sidecar
// raw_pages row only after Put succeeds, so an orphan blob (row never
// written, e.g. because the process died) is always scavengeable and
// a row never points at a missing blob.
package rawstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Store persists and retrieves content-addressed blobs.
type Store interface {
	// Put writes data if its key is not already present and returns the
	// storage path (the key). Put is idempotent: calling it twice with
	// the same bytes is a no-op the second time.
	Put(ctx context.Context, data []byte) (storagePath string, err error)
	Get(ctx context.Context, storagePath string) ([]byte, error)
}

// Key returns the content address for data, used as the storage path
// by every Store implementation.
func Key(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
