package imagestore

import (
	"context"
	"io"
	"testing"
)

func TestImageKey(t *testing.T) {
	tests := []struct {
		subject, variant, want string
	}{
		{"octocat", "readme-dark-gemini", "images/octocat/readme-dark-gemini.webp"},
		{"torvalds", "commit-graph-light-rain", "images/torvalds/commit-graph-light-rain.webp"},
	}
	for _, tt := range tests {
		if got := ImageKey(tt.subject, tt.variant); got != tt.want {
			t.Errorf("ImageKey(%s, %s) = %s, want %s", tt.subject, tt.variant, got, tt.want)
		}
	}
}

func TestSubjectPrefix(t *testing.T) {
	if got := SubjectPrefix("octocat"); got != "images/octocat/" {
		t.Errorf("SubjectPrefix = %s", got)
	}
}

func TestLocalFSPutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewLocalFS(t.TempDir(), "http://localhost:9000/github-stats")

	if err := store.EnsureBucket(ctx); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}

	key := ImageKey("octocat", "readme-dark-gemini")
	payload := []byte("webp-bytes")

	exists, err := store.Exists(ctx, key)
	if err != nil || exists {
		t.Fatalf("expected missing object before put, exists=%v err=%v", exists, err)
	}

	if err := store.Put(ctx, key, payload, map[string]string{"subject": "octocat"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	exists, err = store.Exists(ctx, key)
	if err != nil || !exists {
		t.Fatalf("expected object after put, exists=%v err=%v", exists, err)
	}

	info, err := store.Stat(ctx, key)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info == nil || info.Size != int64(len(payload)) {
		t.Errorf("unexpected stat: %+v", info)
	}
	if info.ETag == "" {
		t.Error("expected non-empty etag")
	}

	rc, err := store.GetStream(ctx, key)
	if err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if string(got) != string(payload) {
		t.Errorf("round-trip mismatch: %q", got)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	exists, _ = store.Exists(ctx, key)
	if exists {
		t.Error("expected object gone after delete")
	}

	// Deleting a missing key is not an error.
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("delete of missing key returned error: %v", err)
	}
}

func TestLocalFSStatMissing(t *testing.T) {
	store := NewLocalFS(t.TempDir(), "")
	info, err := store.Stat(context.Background(), "images/none/none.webp")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info != nil {
		t.Errorf("expected nil info for missing key, got %+v", info)
	}
}

func TestLocalFSListAndPurgePrefix(t *testing.T) {
	ctx := context.Background()
	store := NewLocalFS(t.TempDir(), "")

	for _, v := range []string{"readme-dark-gemini", "contribution-dark", "commit-streak-light"} {
		if err := store.Put(ctx, ImageKey("octocat", v), []byte(v), nil); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := store.Put(ctx, ImageKey("other", "readme-dark-gemini"), []byte("x"), nil); err != nil {
		t.Fatalf("Put: %v", err)
	}

	keys, err := store.ListByPrefix(ctx, SubjectPrefix("octocat"))
	if err != nil {
		t.Fatalf("ListByPrefix: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys for octocat, got %d: %v", len(keys), keys)
	}

	if err := store.DeleteMany(ctx, keys); err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}

	keys, _ = store.ListByPrefix(ctx, SubjectPrefix("octocat"))
	if len(keys) != 0 {
		t.Errorf("expected purge to remove all octocat keys, remaining: %v", keys)
	}

	// Other subjects are untouched by the purge.
	remaining, _ := store.ListByPrefix(ctx, SubjectPrefix("other"))
	if len(remaining) != 1 {
		t.Errorf("expected other subject's image to survive, got %v", remaining)
	}
}

func TestLocalFSPublicURL(t *testing.T) {
	store := NewLocalFS(t.TempDir(), "https://cdn.example.com/")
	got := store.PublicURL("images/octocat/readme-dark-gemini.webp")
	want := "https://cdn.example.com/images/octocat/readme-dark-gemini.webp"
	if got != want {
		t.Errorf("PublicURL = %s, want %s", got, want)
	}
}
