// Package checkin binds an artifact code to an entrant: scan the entrant,
// confirm, scan the artifact.
package checkin

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"judging-station/internal/clock"
	"judging-station/internal/models"
	"judging-station/internal/util"
)

type State string

const (
	Idle             State = "idle"
	ScanningEntrant  State = "scanning_entrant"
	EntrantConfirmed State = "entrant_confirmed"
	ScanningArtifact State = "scanning_artifact"
	Completed        State = "completed"
)

type Roster interface {
	FindByEntryCode(ctx context.Context, code string) (models.Entrant, error)
	BindArtifact(ctx context.Context, entryCode, artifactCode string) (models.Entrant, error)
}

type Gate interface {
	Prime(code string, now time.Time)
	SuppressFor(now time.Time)
}

type Config struct {
	EntryFormat    util.CodeFormat
	ArtifactFormat util.CodeFormat
	ResetDelay     time.Duration
	NoticeTTL      time.Duration
}

type Snapshot struct {
	State        State
	Entrant      *models.Entrant
	ArtifactCode string
	Notice       string
}

type Flow struct {
	mu sync.Mutex

	roster Roster
	gate   Gate
	clk    clock.Clock
	log    *slog.Logger
	cfg    Config

	state    State
	entrant  *models.Entrant
	artifact string
	notice   models.Notice

	timer clock.Timer
	gen   uint64
}

func New(r Roster, g Gate, clk clock.Clock, log *slog.Logger, cfg Config) *Flow {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.ResetDelay <= 0 {
		cfg.ResetDelay = 1500 * time.Millisecond
	}
	if cfg.NoticeTTL <= 0 {
		cfg.NoticeTTL = 3 * time.Second
	}
	return &Flow{roster: r, gate: g, clk: clk, log: log, cfg: cfg, state: Idle}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Notice returns the current transient message, or "" once it expired.
func (f *Flow) Notice() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.noticeText()
}

func (f *Flow) noticeText() string {
	if f.notice.Active(f.clk.Now()) {
		return f.notice.Text
	}
	return ""
}

func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := Snapshot{State: f.state, ArtifactCode: f.artifact, Notice: f.noticeText()}
	if f.entrant != nil {
		e := f.entrant.Clone()
		s.Entrant = &e
	}
	return s
}

// Start begins scanning for entrants. It is a no-op when already running.
func (f *Flow) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Idle {
		f.to(ScanningEntrant)
	}
}

// Stop parks the flow in Idle, dropping any half-finished check-in.
func (f *Flow) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clear()
	f.to(Idle)
}

// HandleCode interprets an accepted scan according to the current state.
// Codes arriving in states that do not scan are ignored. Recoverable errors
// are also left as a notice; the flow always stays ready to scan.
func (f *Flow) HandleCode(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case ScanningEntrant:
		return f.scanEntrant(ctx, code)
	case ScanningArtifact:
		return f.scanArtifact(ctx, code)
	default:
		f.log.Debug("checkin: code ignored", "state", f.state, "code", code)
		return nil
	}
}

func (f *Flow) scanEntrant(ctx context.Context, code string) error {
	const op = "checkin.entrant"
	if !f.cfg.EntryFormat.Match(code) {
		f.log.Debug("checkin: not an entry code", "code", code)
		return nil
	}
	e, err := f.roster.FindByEntryCode(ctx, code)
	if err != nil {
		return f.fail(err)
	}
	if e.CheckedIn() {
		return f.fail(models.Conflict(op, code, "already checked in"))
	}
	f.entrant = &e
	f.to(EntrantConfirmed)
	return nil
}

func (f *Flow) scanArtifact(ctx context.Context, code string) error {
	if !f.cfg.ArtifactFormat.Match(code) {
		f.log.Debug("checkin: not an artifact code", "code", code)
		return nil
	}
	e, err := f.roster.BindArtifact(ctx, f.entrant.EntryCode, code)
	if err != nil {
		f.gate.SuppressFor(f.clk.Now())
		return f.fail(err)
	}
	f.entrant = &e
	f.artifact = code
	f.to(Completed)
	f.log.Info("checkin: bound", "entry", e.EntryCode, "artifact", code, "name", e.Name)
	f.scheduleReset()
	return nil
}

// Confirm moves from the confirmed entrant to artifact scanning. The entry
// code is primed into the gate so it cannot be read as an artifact.
func (f *Flow) Confirm() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != EntrantConfirmed {
		return models.Invalid("checkin.confirm", "no entrant to confirm")
	}
	f.gate.Prime(f.entrant.EntryCode, f.clk.Now())
	f.to(ScanningArtifact)
	return nil
}

// Cancel abandons the current check-in and goes back to scanning entrants.
func (f *Flow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Idle {
		return
	}
	f.clear()
	f.to(ScanningEntrant)
}

// Reset finishes a completed check-in early. It reports whether anything
// happened.
func (f *Flow) Reset() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completeReset()
}

func (f *Flow) completeReset() bool {
	if f.state != Completed {
		return false
	}
	f.gate.Prime(f.artifact, f.clk.Now())
	f.clear()
	f.to(ScanningEntrant)
	return true
}

func (f *Flow) scheduleReset() {
	gen := f.gen
	f.timer = f.clk.AfterFunc(f.cfg.ResetDelay, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.gen == gen {
			f.completeReset()
		}
	})
}

func (f *Flow) clear() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.entrant = nil
	f.artifact = ""
}

func (f *Flow) to(s State) {
	if f.state != s {
		f.log.Debug("checkin: state", "from", f.state, "to", s)
	}
	f.state = s
	f.gen++
}

func (f *Flow) fail(err error) error {
	f.notice = models.NewNotice(err, f.clk.Now(), f.cfg.NoticeTTL)
	if models.Recoverable(err) {
		f.log.Info("checkin: rejected", "err", err)
	} else {
		f.log.Error("checkin: failed", "err", err)
	}
	return err
}
