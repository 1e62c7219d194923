package transcode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"statscards/internal/pkg/errors"
	"statscards/internal/pkg/logger"
)

type stubRunner struct {
	stderr string
	err    error
	// writeOutput controls whether the stub produces the output file,
	// like a successful ffmpeg run would.
	writeOutput bool

	gotName string
	gotArgs []string
}

func (s *stubRunner) run(ctx context.Context, name string, args ...string) (string, error) {
	s.gotName = name
	s.gotArgs = args
	if s.writeOutput {
		out := args[len(args)-1]
		if err := os.WriteFile(out, []byte("RIFFWEBP"), 0o644); err != nil {
			return "", err
		}
	}
	return s.stderr, s.err
}

func testTranscoder(t *testing.T, stub *stubRunner) *Transcoder {
	t.Helper()
	tr := New("ffmpeg", t.TempDir(), 80, logger.New(logger.Config{Level: "error", Format: "text"}))
	tr.runner = stub
	return tr
}

func writeInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "render.mp4")
	if err := os.WriteFile(path, []byte("mp4"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func TestVideoToWebP(t *testing.T) {
	stub := &stubRunner{writeOutput: true}
	tr := testTranscoder(t, stub)
	input := writeInput(t)

	output, err := tr.VideoToWebP(context.Background(), input)
	if err != nil {
		t.Fatalf("VideoToWebP: %v", err)
	}
	if filepath.Ext(output) != ".webp" {
		t.Errorf("output = %q, want .webp", output)
	}
	if _, err := os.Stat(output); err != nil {
		t.Errorf("output missing: %v", err)
	}
	if _, err := os.Stat(input); !os.IsNotExist(err) {
		t.Error("input file should be removed after conversion")
	}
	if stub.gotName != "ffmpeg" {
		t.Errorf("ran %q, want ffmpeg", stub.gotName)
	}
}

func TestVideoToWebPCommandFailure(t *testing.T) {
	stub := &stubRunner{err: fmt.Errorf("exit status 1"), stderr: "Invalid data found"}
	tr := testTranscoder(t, stub)
	input := writeInput(t)

	_, err := tr.VideoToWebP(context.Background(), input)
	if !errors.IsCode(err, errors.CodeTranscodeFailed) {
		t.Fatalf("expected TRANSCODE_FAILED, got %v", err)
	}
	if _, err := os.Stat(input); !os.IsNotExist(err) {
		t.Error("input file should be removed even on failure")
	}
}

func TestVideoToWebPStderrError(t *testing.T) {
	// Exit code zero but an error on stderr still counts as failure.
	stub := &stubRunner{writeOutput: true, stderr: "Error while decoding stream"}
	tr := testTranscoder(t, stub)

	_, err := tr.VideoToWebP(context.Background(), writeInput(t))
	if !errors.IsCode(err, errors.CodeTranscodeFailed) {
		t.Fatalf("expected TRANSCODE_FAILED, got %v", err)
	}

	// No partial output left behind.
	entries, readErr := os.ReadDir(tr.tempDir)
	if readErr != nil {
		t.Fatalf("ReadDir: %v", readErr)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir not empty after failure: %v", entries)
	}
}

func TestVideoToWebPEmptyOutput(t *testing.T) {
	stub := &stubRunner{} // ffmpeg "succeeds" but writes nothing
	tr := testTranscoder(t, stub)

	_, err := tr.VideoToWebP(context.Background(), writeInput(t))
	if !errors.IsCode(err, errors.CodeTranscodeFailed) {
		t.Fatalf("expected TRANSCODE_FAILED, got %v", err)
	}
}

func TestConcurrentOutputsDoNotCollide(t *testing.T) {
	stub := &stubRunner{writeOutput: true}
	tr := testTranscoder(t, stub)

	first, err := tr.VideoToWebP(context.Background(), writeInput(t))
	if err != nil {
		t.Fatalf("first VideoToWebP: %v", err)
	}
	second, err := tr.VideoToWebP(context.Background(), writeInput(t))
	if err != nil {
		t.Fatalf("second VideoToWebP: %v", err)
	}
	if first == second {
		t.Errorf("output paths collide: %q", first)
	}
}
