// Package imagestore provides key-addressed blob storage for rendered card
// images. The stored object is the authoritative "is this artifact cached"
// signal; everything else (URL cache, queue records) is derived.
package imagestore

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Ext is the artifact file extension. One key per (subject, variant); a new
// render overwrites the previous object at the same key.
const Ext = "webp"

// ContentType is the MIME type served for stored artifacts.
const ContentType = "image/webp"

// ObjectInfo describes a stored artifact.
type ObjectInfo struct {
	Size         int64
	LastModified time.Time
	ETag         string
}

// Store is the object-storage contract used by the pipeline and the API.
type Store interface {
	// EnsureBucket provisions the container idempotently, applying the
	// public-read policy only on first-time setup.
	EnsureBucket(ctx context.Context) error

	Exists(ctx context.Context, key string) (bool, error)
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	GetStream(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, data []byte, metadata map[string]string) error
	Delete(ctx context.Context, key string) error
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)
	DeleteMany(ctx context.Context, keys []string) error

	// PublicURL derives the externally reachable URL for a key.
	PublicURL(key string) string
}

// ImageKey is the stable addressing scheme for one (subject, variant) pair.
// Changing it requires a storage migration.
func ImageKey(subject, variant string) string {
	return fmt.Sprintf("images/%s/%s.%s", subject, variant, Ext)
}

// SubjectPrefix is the listing/purge prefix covering all of one subject's
// artifacts.
func SubjectPrefix(subject string) string {
	return fmt.Sprintf("images/%s/", subject)
}
