// Package installs maintains the subject → installation mapping that gates
// whether a render may proceed. Populated by install webhooks, cleared on
// uninstall, looked up on every unauthenticated render request.
package installs

import (
	"context"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "github:installation:"

// Directory is the Redis-backed installation lookup.
type Directory struct {
	rdb *redis.Client
}

// NewDirectory returns a directory using the shared Redis client.
func NewDirectory(rdb *redis.Client) *Directory {
	return &Directory{rdb: rdb}
}

// keyFor normalizes the subject so case variants share one entry.
func keyFor(subject string) string {
	return keyPrefix + strings.ToLower(subject)
}

// Set records the installation for a subject. No TTL: entries live until an
// uninstall event removes them.
func (d *Directory) Set(ctx context.Context, subject string, installationID int64) error {
	return d.rdb.Set(ctx, keyFor(subject), strconv.FormatInt(installationID, 10), 0).Err()
}

// Get returns the installation id for a subject, or 0 when none exists.
func (d *Directory) Get(ctx context.Context, subject string) (int64, error) {
	val, err := d.rdb.Get(ctx, keyFor(subject)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// A corrupt entry behaves like no installation.
		return 0, nil
	}
	return id, nil
}

// Delete removes the subject's entry. Deleting a missing entry is not an
// error.
func (d *Directory) Delete(ctx context.Context, subject string) error {
	return d.rdb.Del(ctx, keyFor(subject)).Err()
}
