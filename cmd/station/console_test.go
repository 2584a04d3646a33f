package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"judging-station/internal/camera"
	"judging-station/internal/config"
	"judging-station/internal/evidence"
	"judging-station/internal/frames"
	"judging-station/internal/roster"
	"judging-station/internal/station"
)

type noDecoder struct{}

func (noDecoder) Decode(frames.Frame) (string, bool) { return "", false }

func newTestConsole(t *testing.T, rosterCSV string) (*console, *bytes.Buffer, string) {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.RosterFile = filepath.Join(root, "roster.csv")
	cfg.EvidenceDir = filepath.Join(root, "evidence")
	cfg.TempDir = filepath.Join(root, "tmp")

	require.NoError(t, os.WriteFile(cfg.RosterFile, []byte(rosterCSV), 0o644))
	still := filepath.Join(root, "still.jpg")
	require.NoError(t, os.WriteFile(still, []byte("photo"), 0o644))

	r, err := roster.Open(cfg.RosterFile)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	st := station.New(cfg, station.Deps{
		Roster:   r,
		Evidence: evidence.New(cfg.EvidenceDir, cfg.Mode, nil),
		Decoder:  noDecoder{},
		Camera:   camera.NewStillCapture(still, cfg.TempDir),
	})
	out := &bytes.Buffer{}
	return newConsole(st, out, slog.Default()), out, root
}

func TestConsoleScript(t *testing.T) {
	c, out, root := newTestConsole(t, "entryCode,name\nE1,Ana\n")

	script := strings.Join([]string{
		"checkin",
		"code E1",
		"confirm",
		"list",
		"scoring",
		"outcome abc",
		"bogus",
		"quit",
		"status",
	}, "\n")

	quit := false
	require.NoError(t, c.run(context.Background(), strings.NewReader(script), func() { quit = true }))
	assert.True(t, quit)

	got := out.String()
	assert.Contains(t, got, "[checkin] entrant_confirmed E1 Ana")
	assert.Contains(t, got, "[checkin] scanning_artifact E1 Ana")
	assert.Contains(t, got, "ENTRY")
	assert.Contains(t, got, "[scoring] scanning")
	assert.Contains(t, got, "! outcome must be a number")
	assert.Contains(t, got, `unknown command "bogus"`)

	_, err := os.Stat(filepath.Join(root, "roster.csv"))
	assert.NoError(t, err)
}

func TestConsoleImportAndWipe(t *testing.T) {
	c, out, root := newTestConsole(t, "entryCode,name\nE1,Ana\n")
	ctx := context.Background()

	src := filepath.Join(root, "next.csv")
	require.NoError(t, os.WriteFile(src, []byte("entryCode,name\nN1,Nia\nN2,Noor\n"), 0o644))

	assert.False(t, c.exec(ctx, "import "+src))
	assert.Contains(t, out.String(), "imported 2 entrants")

	assert.False(t, c.exec(ctx, "import"))
	assert.Contains(t, out.String(), "usage: import <file>")

	assert.False(t, c.exec(ctx, "wipe"))
	assert.Contains(t, out.String(), "0 entrants")
	assert.NoFileExists(t, filepath.Join(root, "roster.csv"))

	assert.True(t, c.exec(ctx, "exit"))
}

func TestConsoleCaptureRetry(t *testing.T) {
	c, out, root := newTestConsole(t, "entryCode,name,group,project,team,advisor,artifactCode\nE1,Ana,,,,,WK1\n")
	ctx := context.Background()
	still := filepath.Join(root, "still.jpg")
	require.NoError(t, os.Remove(still))

	c.exec(ctx, "scoring")
	c.exec(ctx, "code WK1")
	require.Contains(t, out.String(), "[scoring] found WK1 Ana")

	c.exec(ctx, "capture")
	assert.Contains(t, out.String(), "! io failure")
	assert.Contains(t, out.String(), "[scoring] capturing WK1 Ana")

	require.NoError(t, os.WriteFile(still, []byte("photo"), 0o644))
	out.Reset()
	c.exec(ctx, "capture")
	assert.Contains(t, out.String(), "[scoring] photo_ready WK1 Ana photo=new")

	c.exec(ctx, "outcome 80")
	c.exec(ctx, "save")
	assert.Contains(t, out.String(), "[scoring] completed WK1 Ana outcome=80")
}
