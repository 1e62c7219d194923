package imagestore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalFS implements Store on the local filesystem under a root directory.
// Used for development without a MinIO dependency and by package tests.
type LocalFS struct {
	root       string
	publicBase string
}

// NewLocalFS returns a filesystem-backed store rooted at root.
func NewLocalFS(root, publicBaseURL string) *LocalFS {
	return &LocalFS{
		root:       root,
		publicBase: strings.TrimSuffix(publicBaseURL, "/"),
	}
}

func (l *LocalFS) EnsureBucket(ctx context.Context) error {
	return os.MkdirAll(l.root, 0o755)
}

func (l *LocalFS) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

func (l *LocalFS) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(l.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (l *LocalFS) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	st, err := os.Stat(l.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	data, err := os.ReadFile(l.path(key))
	if err != nil {
		return nil, err
	}
	sum := md5.Sum(data)

	return &ObjectInfo{
		Size:         st.Size(),
		LastModified: st.ModTime(),
		ETag:         hex.EncodeToString(sum[:]),
	}, nil
}

func (l *LocalFS) GetStream(ctx context.Context, key string) (io.ReadCloser, error) {
	return os.Open(l.path(key))
}

func (l *LocalFS) Put(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	if key == "" {
		return fmt.Errorf("object key is required")
	}
	dst := l.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func (l *LocalFS) Delete(ctx context.Context, key string) error {
	err := os.Remove(l.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (l *LocalFS) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.Walk(l.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(l.root, path)
		if relErr != nil {
			return relErr
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (l *LocalFS) DeleteMany(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := l.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}

func (l *LocalFS) PublicURL(key string) string {
	if l.publicBase == "" {
		return "/" + key
	}
	return l.publicBase + "/" + key
}
