package station

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"judging-station/internal/camera"
	"judging-station/internal/checkin"
	"judging-station/internal/clock"
	"judging-station/internal/config"
	"judging-station/internal/evidence"
	"judging-station/internal/frames"
	"judging-station/internal/models"
	"judging-station/internal/roster"
	"judging-station/internal/scoring"
)

const rosterCSV = `entryCode,name,group,project,team,advisor
E1,Ana,A,Bridge,Red,Dr. Ruiz
E2,Ben,B,Robot,Blue,
`

type noDecoder struct{}

func (noDecoder) Decode(frames.Frame) (string, bool) { return "", false }

type fixture struct {
	st     *Station
	roster *roster.Roster
	store  *evidence.Store
	clk    *clock.Fake
	root   string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.RosterFile = filepath.Join(root, "roster.csv")
	cfg.EvidenceDir = filepath.Join(root, "evidence")
	cfg.TempDir = filepath.Join(root, "tmp")
	require.NoError(t, cfg.Validate())

	require.NoError(t, os.WriteFile(cfg.RosterFile, []byte(rosterCSV), 0o644))
	r, err := roster.Open(cfg.RosterFile)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	still := filepath.Join(root, "still.jpg")
	require.NoError(t, os.WriteFile(still, []byte("photo"), 0o644))

	store := evidence.New(cfg.EvidenceDir, cfg.Mode, nil)
	clk := clock.NewFake(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	st := New(cfg, Deps{
		Roster:   r,
		Evidence: store,
		Decoder:  noDecoder{},
		Camera:   camera.NewStillCapture(still, cfg.TempDir),
		Clock:    clk,
	})
	return fixture{st: st, roster: r, store: store, clk: clk, root: root}
}

func TestStationCheckinThenScoring(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// nothing is active yet
	assert.True(t, fx.st.Submit(ctx, "E1"))
	assert.Equal(t, checkin.Idle, fx.st.Checkin().State())

	require.NoError(t, fx.st.SetMode(Checkin))
	assert.True(t, fx.st.Submit(ctx, "E1"))
	assert.Equal(t, checkin.EntrantConfirmed, fx.st.Checkin().State())
	require.NoError(t, fx.st.Checkin().Confirm())
	fx.clk.Advance(time.Second)
	assert.True(t, fx.st.Submit(ctx, "WK1"))
	assert.Equal(t, checkin.Completed, fx.st.Checkin().State())

	require.NoError(t, fx.st.SetMode(Scoring))
	assert.Equal(t, checkin.Idle, fx.st.Checkin().State())
	assert.Equal(t, scoring.Scanning, fx.st.Scoring().State())

	// the gate forgets the check-in scan on a mode switch
	assert.True(t, fx.st.Submit(ctx, "WK1"))
	sc := fx.st.Scoring()
	require.Equal(t, scoring.Found, sc.State())
	require.NoError(t, sc.BeginCapture())
	require.NoError(t, sc.Capture(ctx))
	require.NoError(t, sc.SetOutcome(88.5))
	require.NoError(t, sc.Commit(ctx))

	status, err := fx.st.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Scoring, status.Mode)
	assert.Equal(t, 2, status.Entrants)
	assert.Equal(t, 1, status.CheckedIn)
	assert.Equal(t, 1, status.Scored)
	assert.Equal(t, scoring.Completed, status.Scoring.State)
	assert.FileExists(t, filepath.Join(fx.store.Dir(), "WK1_88_5.jpg"))
}

func TestStationSetModeRejectsUnknown(t *testing.T) {
	fx := newFixture(t)
	assert.ErrorIs(t, fx.st.SetMode("judge"), models.ErrValidation)
	assert.Equal(t, Mode(""), fx.st.Mode())
}

func TestStationImportReplacesRosterAndEvidence(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(fx.store.Dir(), 0o755))
	old := filepath.Join(fx.store.Dir(), "WK1_50_0.jpg")
	require.NoError(t, os.WriteFile(old, []byte("old"), 0o644))
	require.NoError(t, fx.st.SetMode(Checkin))
	fx.st.Submit(ctx, "E1")

	src := filepath.Join(fx.root, "next.csv")
	require.NoError(t, os.WriteFile(src, []byte("entryCode,name\nN1,Nia\nN2,Noor\nN1,Dup\n"), 0o644))

	rep, err := fx.st.Import(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Imported)
	assert.Equal(t, []string{"N1"}, rep.Duplicates)
	assert.NoFileExists(t, old)
	assert.Equal(t, checkin.ScanningEntrant, fx.st.Checkin().State())

	entrants, err := fx.roster.Entrants(ctx)
	require.NoError(t, err)
	require.Len(t, entrants, 2)
	assert.Equal(t, "N1", entrants[0].EntryCode)
}

func TestStationImportMissingFileKeepsState(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(fx.store.Dir(), 0o755))
	kept := filepath.Join(fx.store.Dir(), "WK1_50_0.jpg")
	require.NoError(t, os.WriteFile(kept, []byte("kept"), 0o644))

	_, err := fx.st.Import(ctx, filepath.Join(fx.root, "missing.csv"))
	assert.ErrorIs(t, err, models.ErrIO)
	assert.FileExists(t, kept)

	entrants, err := fx.roster.Entrants(ctx)
	require.NoError(t, err)
	assert.Len(t, entrants, 2)
}

func TestStationReset(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(fx.store.Dir(), 0o755))
	require.NoError(t, fx.st.SetMode(Scoring))
	require.NoError(t, fx.st.Reset(ctx))

	assert.NoFileExists(t, fx.roster.Path())
	assert.NoDirExists(t, fx.store.Dir())
	assert.Equal(t, scoring.Scanning, fx.st.Scoring().State())

	status, err := fx.st.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.Entrants)
}

func TestStationRunWithoutSource(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, fx.st.Run(ctx))
}
