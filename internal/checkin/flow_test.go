package checkin

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"judging-station/internal/clock"
	"judging-station/internal/models"
	"judging-station/internal/roster"
	"judging-station/internal/scangate"
	"judging-station/internal/util"
)

const rosterCSV = `entryCode,name,group,project,team,advisor,artifactCode,checkedIn,outcome,evidencePath
E1,Ana,A,Bridge,Red,,,0,,
E2,Ben,B,Robot,Blue,,WK1,1,,
`

type fixture struct {
	flow   *Flow
	roster *roster.Roster
	gate   *scangate.Gate
	clk    *clock.Fake
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.csv")
	require.NoError(t, os.WriteFile(path, []byte(rosterCSV), 0o644))
	r, err := roster.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	clk := clock.NewFake(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	gate := scangate.New(1500*time.Millisecond, 750*time.Millisecond)
	f := New(r, gate, clk, nil, cfg)
	f.Start()
	return fixture{flow: f, roster: r, gate: gate, clk: clk}
}

// scan mimics the pipeline: gate first, then the flow.
func (fx fixture) scan(t *testing.T, code string) (bool, error) {
	t.Helper()
	if !fx.gate.Submit(code, fx.clk.Now()) {
		return false, nil
	}
	return true, fx.flow.HandleCode(context.Background(), code)
}

func TestCheckinHappyPath(t *testing.T) {
	fx := newFixture(t, Config{})
	ctx := context.Background()

	ok, err := fx.scan(t, "E1")
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, EntrantConfirmed, fx.flow.State())
	assert.Equal(t, "Ana", fx.flow.Snapshot().Entrant.Name)

	require.NoError(t, fx.flow.Confirm())
	assert.Equal(t, ScanningArtifact, fx.flow.State())

	// the entry code is still in front of the camera
	ok, _ = fx.scan(t, "E1")
	assert.False(t, ok)

	fx.clk.Advance(time.Second)
	ok, err = fx.scan(t, "WK2")
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, Completed, fx.flow.State())

	e, err := fx.roster.FindByEntryCode(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, "WK2", e.ArtifactCode)
	assert.True(t, e.CheckedIn())

	fx.clk.Advance(1500 * time.Millisecond)
	assert.Equal(t, ScanningEntrant, fx.flow.State())
	assert.Nil(t, fx.flow.Snapshot().Entrant)
	assert.Equal(t, "WK2", fx.gate.LastCode())
}

func TestCheckinDuplicateArtifactRejected(t *testing.T) {
	fx := newFixture(t, Config{})
	ctx := context.Background()

	_, err := fx.scan(t, "E1")
	require.NoError(t, err)
	require.NoError(t, fx.flow.Confirm())
	fx.clk.Advance(time.Second)

	_, err = fx.scan(t, "WK1")
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Equal(t, ScanningArtifact, fx.flow.State())
	assert.Contains(t, fx.flow.Notice(), "E2")

	e, err := fx.roster.FindByEntryCode(ctx, "E1")
	require.NoError(t, err)
	assert.Empty(t, e.ArtifactCode)

	// short suppression after the failure
	ok, _ := fx.scan(t, "WK3")
	assert.False(t, ok)
	fx.clk.Advance(time.Second)
	ok, err = fx.scan(t, "WK3")
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, Completed, fx.flow.State())
}

func TestCheckinRejectsUnknownAndRepeat(t *testing.T) {
	fx := newFixture(t, Config{NoticeTTL: 2 * time.Second})

	_, err := fx.scan(t, "E9")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, ScanningEntrant, fx.flow.State())
	assert.Equal(t, "not found: E9", fx.flow.Notice())

	_, err = fx.scan(t, "E2")
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Equal(t, ScanningEntrant, fx.flow.State())
	assert.Equal(t, "already checked in: E2", fx.flow.Notice())

	fx.clk.Advance(2 * time.Second)
	assert.Empty(t, fx.flow.Notice())
}

func TestCheckinFormatFilter(t *testing.T) {
	fx := newFixture(t, Config{
		EntryFormat:    util.CodeFormat{Prefix: "E", Length: 2},
		ArtifactFormat: util.CodeFormat{Prefix: "WK"},
	})

	_, err := fx.scan(t, "WK7")
	require.NoError(t, err)
	assert.Equal(t, ScanningEntrant, fx.flow.State())
	assert.Empty(t, fx.flow.Notice())

	_, err = fx.scan(t, "E1")
	require.NoError(t, err)
	require.NoError(t, fx.flow.Confirm())
	fx.clk.Advance(time.Second)

	_, err = fx.scan(t, "E2")
	require.NoError(t, err)
	assert.Equal(t, ScanningArtifact, fx.flow.State())
}

func TestCheckinIgnoresCodesWhileConfirming(t *testing.T) {
	fx := newFixture(t, Config{})

	_, err := fx.scan(t, "E1")
	require.NoError(t, err)
	fx.clk.Advance(2 * time.Second)
	require.NoError(t, fx.flow.HandleCode(context.Background(), "WK5"))
	assert.Equal(t, EntrantConfirmed, fx.flow.State())
}

func TestCheckinCancelAndManualReset(t *testing.T) {
	fx := newFixture(t, Config{ResetDelay: time.Minute})

	assert.Error(t, fx.flow.Confirm())

	_, err := fx.scan(t, "E1")
	require.NoError(t, err)
	fx.flow.Cancel()
	assert.Equal(t, ScanningEntrant, fx.flow.State())
	assert.Nil(t, fx.flow.Snapshot().Entrant)

	fx.clk.Advance(2 * time.Second)
	_, err = fx.scan(t, "E1")
	require.NoError(t, err)
	require.NoError(t, fx.flow.Confirm())
	fx.clk.Advance(time.Second)
	_, err = fx.scan(t, "WK2")
	require.NoError(t, err)
	require.Equal(t, Completed, fx.flow.State())

	assert.True(t, fx.flow.Reset())
	assert.Equal(t, ScanningEntrant, fx.flow.State())
	assert.False(t, fx.flow.Reset())
	assert.Equal(t, 0, fx.clk.Pending())
}

func TestCheckinStop(t *testing.T) {
	fx := newFixture(t, Config{})

	_, err := fx.scan(t, "E1")
	require.NoError(t, err)
	fx.flow.Stop()
	assert.Equal(t, Idle, fx.flow.State())
	require.NoError(t, fx.flow.HandleCode(context.Background(), "E1"))
	assert.Equal(t, Idle, fx.flow.State())
}
