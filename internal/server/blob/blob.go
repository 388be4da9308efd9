// Package blob stores opaque binary objects (selfies) and the S3 plumbing
// shared with the roster artifact store.
package blob

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store persists blobs under generated references.
type Store interface {
	// Save stores data and returns its reference.
	Save(ctx context.Context, data []byte, ext string) (string, error)
	// Open returns the blob content or common.ErrNotFound.
	Open(ctx context.Context, ref string) ([]byte, error)
	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, ref string) error
	// URL returns a location a client can fetch the blob from.
	URL(ctx context.Context, ref string) (string, error)
}

// now is a seam for tests.
var now = time.Now

// NewKey builds a date-partitioned random object key.
func NewKey(prefix, ext string) string {
	d := now().UTC()
	return fmt.Sprintf("%s/%d/%02d/%02d/%v%s", prefix, d.Year(), d.Month(), d.Day(), uuid.New(), ext)
}
