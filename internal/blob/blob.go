// Package blob defines the external Blob Store contract consumed by the
// upload pipeline and download handlers, plus a filesystem-backed
// implementation with HMAC-signed, time-limited read URLs.
package blob

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a blob with the requested key does not exist.
var ErrNotFound = errors.New("blob not found")

// Store is a name-addressed binary store. Keys must be globally unique; the
// upload pipeline guarantees this through the node unique-name scheme.
type Store interface {
	// Put writes data under key and returns a locator (a URL or path the
	// node record stores as its path).
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Get reads the blob back. Used by the signed-URL serving endpoint.
	Get(ctx context.Context, key string) ([]byte, string, error)
	// Delete removes the blob. Only the batch compensation path calls this.
	Delete(ctx context.Context, key string) error
	// SignedReadURL returns a stateless, time-limited download URL for key.
	SignedReadURL(key string, ttl time.Duration) (string, error)
}

// DownloadTTL is the validity window for signed download URLs.
const DownloadTTL = 15 * time.Minute
