// Package camera provides still capture for scoring evidence.
package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Device takes one still photo and returns the path of the temporary file
// it wrote. The caller owns the file.
type Device interface {
	Capture(ctx context.Context) (string, error)
}

// StillCapture "captures" by copying a fixed image into the temp dir. It
// stands in for a real sensor on a bench station.
type StillCapture struct {
	Still   string
	TempDir string
}

func NewStillCapture(still, tempDir string) *StillCapture {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &StillCapture{Still: still, TempDir: tempDir}
}

func (c *StillCapture) Capture(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.Still == "" {
		return "", errors.New("no still image configured")
	}
	if err := os.MkdirAll(c.TempDir, 0o755); err != nil {
		return "", fmt.Errorf("capture temp dir: %w", err)
	}

	in, err := os.Open(c.Still)
	if err != nil {
		return "", fmt.Errorf("open still: %w", err)
	}
	defer in.Close()

	path := filepath.Join(c.TempDir, "capture-"+uuid.NewString()+".jpg")
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create capture: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write capture: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write capture: %w", err)
	}
	// a cancelled capture leaves nothing behind
	if err := ctx.Err(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}
