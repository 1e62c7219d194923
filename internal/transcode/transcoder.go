// Package transcode converts rendered MP4 clips into animated WebP images
// with ffmpeg.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"statscards/internal/pkg/errors"
	"statscards/internal/pkg/logger"
)

// runner executes the ffmpeg process. Split out so tests can stub the
// binary.
type runner interface {
	run(ctx context.Context, name string, args ...string) (stderr string, err error)
}

type execRunner struct{}

func (execRunner) run(ctx context.Context, name string, args ...string) (string, error) {
	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}

// Transcoder shells out to ffmpeg for MP4 to animated-WebP conversion.
type Transcoder struct {
	ffmpegPath string
	tempDir    string
	quality    int
	log        *logger.Logger
	runner     runner
}

// New returns a transcoder writing its outputs under tempDir. ffmpegPath
// may be a bare binary name resolved through PATH.
func New(ffmpegPath, tempDir string, quality int, log *logger.Logger) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &Transcoder{
		ffmpegPath: ffmpegPath,
		tempDir:    tempDir,
		quality:    quality,
		log:        log.WithComponent("transcode"),
		runner:     execRunner{},
	}
}

// VideoToWebP converts the MP4 at inputPath into an animated WebP and
// returns the output path. The input file is always removed, success or
// not; the output is removed too when the conversion fails, so no partial
// artifacts survive.
func (t *Transcoder) VideoToWebP(ctx context.Context, inputPath string) (string, error) {
	defer os.Remove(inputPath)

	if err := os.MkdirAll(t.tempDir, 0o755); err != nil {
		return "", errors.WrapWithCode(err, errors.CodeTranscodeFailed, "transcode.VideoToWebP", "failed to create temp dir")
	}

	// Unique name so concurrent conversions never collide.
	outputPath := filepath.Join(t.tempDir, fmt.Sprintf("%d-%s.webp", time.Now().UnixNano(), uuid.NewString()))

	args := []string{
		"-y",
		"-i", inputPath,
		"-vcodec", "libwebp",
		"-filter:v", "fps=fps=30",
		"-lossless", "0",
		"-compression_level", "6",
		"-q:v", fmt.Sprintf("%d", t.quality),
		"-loop", "0",
		"-preset", "picture",
		"-an",
		"-fps_mode", "passthrough",
		outputPath,
	}

	start := time.Now()
	stderr, err := t.runner.run(ctx, t.ffmpegPath, args...)
	if err != nil {
		os.Remove(outputPath)
		return "", errors.WrapWithCode(err, errors.CodeTranscodeFailed, "transcode.VideoToWebP",
			fmt.Sprintf("ffmpeg failed: %s", tail(stderr, 300)))
	}

	// ffmpeg sometimes exits zero after logging a hard error.
	if bytes.Contains([]byte(stderr), []byte("Error")) {
		os.Remove(outputPath)
		return "", errors.New(errors.CodeTranscodeFailed,
			fmt.Sprintf("ffmpeg reported an error: %s", tail(stderr, 300)))
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		os.Remove(outputPath)
		return "", errors.New(errors.CodeTranscodeFailed, "ffmpeg produced no output")
	}

	t.log.Debug("transcoded video",
		"output", outputPath,
		"size_bytes", info.Size(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return outputPath, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
