package installs

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testDirectory(t *testing.T) *Directory {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewDirectory(rdb)
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	dir := testDirectory(t)

	if err := dir.Set(ctx, "octocat", 12345); err != nil {
		t.Fatalf("Set: %v", err)
	}

	id, err := dir.Get(ctx, "octocat")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if id != 12345 {
		t.Errorf("Get = %d, want 12345", id)
	}

	if err := dir.Delete(ctx, "octocat"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	id, err = dir.Get(ctx, "octocat")
	if err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
	if id != 0 {
		t.Errorf("expected 0 after delete, got %d", id)
	}
}

func TestCaseNormalization(t *testing.T) {
	ctx := context.Background()
	dir := testDirectory(t)

	if err := dir.Set(ctx, "OctoCat", 777); err != nil {
		t.Fatalf("Set: %v", err)
	}

	for _, subject := range []string{"octocat", "OCTOCAT", "OctoCat"} {
		id, err := dir.Get(ctx, subject)
		if err != nil {
			t.Fatalf("Get(%s): %v", subject, err)
		}
		if id != 777 {
			t.Errorf("Get(%s) = %d, want 777", subject, id)
		}
	}
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	dir := testDirectory(t)

	id, err := dir.Get(ctx, "nobody")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if id != 0 {
		t.Errorf("expected 0 for missing subject, got %d", id)
	}
}

func TestDeleteMissingIsNoError(t *testing.T) {
	dir := testDirectory(t)
	if err := dir.Delete(context.Background(), "nobody"); err != nil {
		t.Errorf("Delete of missing entry: %v", err)
	}
}
