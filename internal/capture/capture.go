// Package capture takes still images of the sort chamber.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/dwsmith1983/sortimate/pkg/types"
)

// SnapshotName is the file the latest frame is written to.
const SnapshotName = "current_image.jpg"

const maxFrameBytes = 32 << 20

// Camera returns one frame per trigger. Implementations must give up when ctx
// is done.
type Camera interface {
	Trigger(ctx context.Context) (*types.Image, error)
}

// HTTPCamera fetches a still from a camera snapshot endpoint.
type HTTPCamera struct {
	client      *http.Client
	url         string
	snapshotDir string
	logger      *slog.Logger
	now         func() time.Time
}

// NewHTTPCamera creates a camera for cfg.URL. When cfg.SnapshotDir is set the
// latest frame is also kept on disk.
func NewHTTPCamera(cfg types.CameraConfig, logger *slog.Logger) *HTTPCamera {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPCamera{
		client:      &http.Client{},
		url:         cfg.URL,
		snapshotDir: cfg.SnapshotDir,
		logger:      logger,
		now:         time.Now,
	}
}

// Trigger fetches one frame. A deadline on ctx surfaces as ErrCaptureTimeout,
// anything else as ErrCapture.
func (c *HTTPCamera) Trigger(ctx context.Context) (*types.Image, error) {
	img, err := c.fetch(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", types.ErrCaptureTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", types.ErrCapture, err)
	}

	if c.snapshotDir != "" {
		path := filepath.Join(c.snapshotDir, SnapshotName)
		if err := WriteSnapshot(path, img.Data); err != nil {
			c.logger.Warn("failed to persist snapshot", "path", path, "error", err)
		} else {
			img.Path = path
		}
	}
	return img, nil
}

func (c *HTTPCamera) fetch(ctx context.Context) (*types.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty snapshot")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &types.Image{Data: data, ContentType: contentType, CapturedAt: c.now()}, nil
}

// WriteSnapshot atomically replaces path with data, creating the directory if
// needed.
func WriteSnapshot(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending snapshot: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
