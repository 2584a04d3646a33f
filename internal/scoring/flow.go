// Package scoring records an outcome and a photo for a checked-in artifact.
package scoring

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"judging-station/internal/camera"
	"judging-station/internal/clock"
	"judging-station/internal/models"
	"judging-station/internal/util"
)

type State string

const (
	Idle       State = "idle"
	Scanning   State = "scanning"
	Found      State = "found"
	Capturing  State = "capturing"
	PhotoReady State = "photo_ready"
	Completed  State = "completed"
)

type Roster interface {
	FindByArtifactCode(ctx context.Context, code string) (models.Entrant, error)
	RecordOutcome(ctx context.Context, artifactCode string, outcome float64, evidencePath string) (models.Entrant, error)
	CountScored(ctx context.Context, excludeID string) (int, error)
}

type Evidence interface {
	Commit(tempPath, artifactCode string, outcome float64, prior string) (string, error)
	Rename(existingPath, artifactCode string, newOutcome float64) (string, error)
	Discard(tempPath string)
}

type Gate interface {
	Prime(code string, now time.Time)
}

type Config struct {
	Mode           models.Mode
	Min, Max       float64
	AllowRescore   bool
	ArtifactFormat util.CodeFormat
	ResetDelay     time.Duration
	NoticeTTL      time.Duration
}

type Snapshot struct {
	State   State
	Entrant *models.Entrant
	Outcome *float64
	Photo   string // temporary capture, not yet committed
	Prior   string // evidence on record when the entrant was found
	Notice  string
}

type Flow struct {
	mu sync.Mutex

	roster   Roster
	evidence Evidence
	camera   camera.Device
	gate     Gate
	clk      clock.Clock
	log      *slog.Logger
	cfg      Config

	state   State
	entrant *models.Entrant
	outcome *float64
	photo   string
	prior   string
	notice  models.Notice

	timer clock.Timer
	gen   uint64
}

type Deps struct {
	Roster   Roster
	Evidence Evidence
	Camera   camera.Device
	Gate     Gate
	Clock    clock.Clock
	Log      *slog.Logger
}

func New(d Deps, cfg Config) *Flow {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if cfg.Mode == "" {
		cfg.Mode = models.ModeScore
	}
	if cfg.Min == 0 && cfg.Max == 0 {
		cfg.Max = 100
	}
	if cfg.ResetDelay <= 0 {
		cfg.ResetDelay = 1500 * time.Millisecond
	}
	if cfg.NoticeTTL <= 0 {
		cfg.NoticeTTL = 3 * time.Second
	}
	return &Flow{
		roster:   d.Roster,
		evidence: d.Evidence,
		camera:   d.Camera,
		gate:     d.Gate,
		clk:      d.Clock,
		log:      d.Log,
		cfg:      cfg,
		state:    Idle,
	}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

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
	s := Snapshot{State: f.state, Photo: f.photo, Prior: f.prior, Notice: f.noticeText()}
	if f.entrant != nil {
		e := f.entrant.Clone()
		s.Entrant = &e
	}
	if f.outcome != nil {
		s.Outcome = models.Float(*f.outcome)
	}
	return s
}

func (f *Flow) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Idle {
		f.to(Scanning)
	}
}

func (f *Flow) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clear()
	f.to(Idle)
}

// HandleCode looks up a scanned artifact. Only the Scanning state reads
// codes; everything else ignores them.
func (f *Flow) HandleCode(ctx context.Context, code string) error {
	const op = "scoring.scan"
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Scanning {
		f.log.Debug("scoring: code ignored", "state", f.state, "code", code)
		return nil
	}
	if !f.cfg.ArtifactFormat.Match(code) {
		f.log.Debug("scoring: not an artifact code", "code", code)
		return nil
	}
	e, err := f.roster.FindByArtifactCode(ctx, code)
	if err != nil {
		return f.fail(err)
	}
	if e.Scored() && !f.cfg.AllowRescore {
		return f.fail(models.Conflict(op, code, "already scored"))
	}

	f.entrant = &e
	f.prior = e.EvidencePath
	if e.Outcome != nil && f.cfg.Mode == models.ModeScore {
		f.outcome = models.Float(*e.Outcome)
	}
	f.to(Found)
	f.log.Info("scoring: found", "artifact", code, "entry", e.EntryCode, "rescore", e.Scored())
	return nil
}

// BeginCapture readies the camera for the evidence photo.
func (f *Flow) BeginCapture() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Found {
		return models.Invalid("scoring.capture", "no artifact selected")
	}
	f.to(Capturing)
	return nil
}

// Capture takes one photo. A capture that fails or is cancelled leaves the
// flow in Capturing.
func (f *Flow) Capture(ctx context.Context) error {
	const op = "scoring.capture"
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Capturing {
		return models.Invalid(op, "camera is not ready")
	}
	path, err := f.camera.Capture(ctx)
	if err != nil {
		return f.fail(models.IO(op, err))
	}
	if ctx.Err() != nil {
		f.evidence.Discard(path)
		return ctx.Err()
	}
	f.photo = path
	f.to(PhotoReady)
	return nil
}

// Retake throws the captured photo away and returns to Capturing.
func (f *Flow) Retake() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != PhotoReady {
		return models.Invalid("scoring.retake", "no photo to retake")
	}
	f.evidence.Discard(f.photo)
	f.photo = ""
	f.to(Capturing)
	return nil
}

// SetOutcome enters the score. Ranks are computed on commit and cannot be
// entered.
func (f *Flow) SetOutcome(v float64) error {
	const op = "scoring.outcome"
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Found && f.state != PhotoReady {
		return models.Invalid(op, "no artifact selected")
	}
	if f.cfg.Mode == models.ModeRank {
		return f.fail(models.Invalid(op, "rank is computed on save"))
	}
	if math.IsNaN(v) || v < f.cfg.Min || v > f.cfg.Max {
		return f.fail(models.Invalid(op, "score out of range"))
	}
	f.outcome = models.Float(v)
	return nil
}

// Commit saves the outcome. A new photo replaces any earlier evidence;
// without one the earlier evidence is renamed for the new outcome; with
// neither the save is refused.
func (f *Flow) Commit(ctx context.Context) error {
	const op = "scoring.commit"
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Found && f.state != PhotoReady {
		return models.Invalid(op, "no artifact selected")
	}
	if f.photo == "" && f.prior == "" {
		return f.fail(models.Invalid(op, "photo required"))
	}

	outcome, err := f.resolveOutcome(ctx)
	if err != nil {
		return f.fail(err)
	}

	artifact := f.entrant.ArtifactCode
	var path string
	if f.photo != "" {
		path, err = f.evidence.Commit(f.photo, artifact, outcome, f.prior)
	} else {
		path, err = f.evidence.Rename(f.prior, artifact, outcome)
	}
	if err != nil {
		return f.fail(err)
	}
	// the photo now lives at path; a retry renames it
	f.photo = ""
	f.prior = path

	e, err := f.roster.RecordOutcome(ctx, artifact, outcome, path)
	if err != nil {
		return f.fail(err)
	}
	f.entrant = &e
	f.outcome = models.Float(outcome)
	f.to(Completed)
	f.log.Info("scoring: saved", "artifact", artifact, "entry", e.EntryCode,
		"outcome", models.FormatOutcome(e.Outcome), "evidence", path)
	f.scheduleReset()
	return nil
}

func (f *Flow) resolveOutcome(ctx context.Context) (float64, error) {
	if f.cfg.Mode == models.ModeRank {
		n, err := f.roster.CountScored(ctx, f.entrant.ID)
		if err != nil {
			return 0, err
		}
		return float64(n + 1), nil
	}
	if f.outcome == nil {
		return 0, models.Invalid("scoring.commit", "score required")
	}
	return *f.outcome, nil
}

// Cancel abandons the current artifact and goes back to scanning.
func (f *Flow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Idle {
		return
	}
	f.clear()
	f.to(Scanning)
}

// Reset finishes a completed scoring early.
func (f *Flow) Reset() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completeReset()
}

func (f *Flow) completeReset() bool {
	if f.state != Completed {
		return false
	}
	f.gate.Prime(f.entrant.ArtifactCode, f.clk.Now())
	f.clear()
	f.to(Scanning)
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
	if f.photo != "" {
		f.evidence.Discard(f.photo)
	}
	f.entrant = nil
	f.outcome = nil
	f.photo = ""
	f.prior = ""
}

func (f *Flow) to(s State) {
	if f.state != s {
		f.log.Debug("scoring: state", "from", f.state, "to", s)
	}
	f.state = s
	f.gen++
}

func (f *Flow) fail(err error) error {
	f.notice = models.NewNotice(err, f.clk.Now(), f.cfg.NoticeTTL)
	if models.Recoverable(err) {
		f.log.Info("scoring: rejected", "err", err)
	} else {
		f.log.Error("scoring: failed", "err", err)
	}
	return err
}
