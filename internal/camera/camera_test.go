package camera

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStillCapture(t *testing.T) {
	dir := t.TempDir()
	still := filepath.Join(dir, "still.jpg")
	require.NoError(t, os.WriteFile(still, []byte("jpeg bytes"), 0o644))

	c := NewStillCapture(still, filepath.Join(dir, "tmp"))
	a, err := c.Capture(context.Background())
	require.NoError(t, err)
	b, err := c.Capture(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	data, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))
}

func TestStillCaptureErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewStillCapture("", dir).Capture(context.Background())
	assert.Error(t, err)

	_, err = NewStillCapture(filepath.Join(dir, "missing.jpg"), dir).Capture(context.Background())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewStillCapture(filepath.Join(dir, "missing.jpg"), dir).Capture(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
