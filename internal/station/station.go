// Package station wires one judging station: a camera feed through the
// scan gate into whichever flow is active, on top of the roster and the
// evidence store.
package station

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"judging-station/internal/camera"
	"judging-station/internal/checkin"
	"judging-station/internal/clock"
	"judging-station/internal/config"
	"judging-station/internal/evidence"
	"judging-station/internal/frames"
	"judging-station/internal/models"
	"judging-station/internal/roster"
	"judging-station/internal/scangate"
	"judging-station/internal/scoring"
)

type Mode string

const (
	Checkin Mode = "checkin"
	Scoring Mode = "scoring"
)

type Deps struct {
	Roster   *roster.Roster
	Evidence *evidence.Store
	Source   frames.Source // nil: manual entry only
	Decoder  frames.Decoder
	Camera   camera.Device
	Clock    clock.Clock
	Log      *slog.Logger
}

type Station struct {
	mu   sync.Mutex
	mode Mode

	roster   *roster.Roster
	evidence *evidence.Store
	gate     *scangate.Gate
	log      *slog.Logger

	checkin  *checkin.Flow
	scoring  *scoring.Flow
	pipeline *frames.Pipeline
}

func New(cfg config.Config, d Deps) *Station {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	gate := scangate.New(cfg.ScanDebounce, cfg.ScanCooldown)

	s := &Station{
		roster:   d.Roster,
		evidence: d.Evidence,
		gate:     gate,
		log:      d.Log,
	}
	s.checkin = checkin.New(d.Roster, gate, d.Clock, d.Log, checkin.Config{
		EntryFormat:    cfg.EntryCode,
		ArtifactFormat: cfg.ArtifactCode,
		ResetDelay:     cfg.CompleteResetDelay,
		NoticeTTL:      cfg.NoticeTTL,
	})
	s.scoring = scoring.New(scoring.Deps{
		Roster:   d.Roster,
		Evidence: d.Evidence,
		Camera:   d.Camera,
		Gate:     gate,
		Clock:    d.Clock,
		Log:      d.Log,
	}, scoring.Config{
		Mode:           cfg.Mode,
		Min:            cfg.ScoreMin,
		Max:            cfg.ScoreMax,
		AllowRescore:   cfg.AllowRescore,
		ArtifactFormat: cfg.ArtifactCode,
		ResetDelay:     cfg.CompleteResetDelay,
		NoticeTTL:      cfg.NoticeTTL,
	})
	s.pipeline = frames.NewPipeline(d.Source, d.Decoder, gate, s.dispatch,
		frames.WithClock(d.Clock), frames.WithLogger(d.Log))
	return s
}

func (s *Station) Checkin() *checkin.Flow     { return s.checkin }
func (s *Station) Scoring() *scoring.Flow     { return s.scoring }
func (s *Station) Pipeline() *frames.Pipeline { return s.pipeline }
func (s *Station) Roster() *roster.Roster     { return s.roster }

func (s *Station) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode makes one flow active and parks the other.
func (s *Station) SetMode(m Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch m {
	case Checkin, Scoring:
	default:
		return models.Invalid("station.mode", fmt.Sprintf("unknown mode %q", m))
	}
	if m == s.mode {
		return nil
	}
	s.stopFlows()
	s.mode = m
	s.gate.Reset()
	s.startFlow()
	s.log.Info("station: mode", "mode", m)
	return nil
}

// Run feeds camera frames to the active flow until ctx is done.
func (s *Station) Run(ctx context.Context) error {
	return s.pipeline.Run(ctx)
}

// Submit enters a code by hand. It goes through the same gate as scans.
func (s *Station) Submit(ctx context.Context, code string) bool {
	return s.pipeline.Inject(ctx, code)
}

func (s *Station) dispatch(ctx context.Context, code string) {
	s.mu.Lock()
	mode := s.mode
	s.mu.Unlock()

	var err error
	switch mode {
	case Checkin:
		err = s.checkin.HandleCode(ctx, code)
	case Scoring:
		err = s.scoring.HandleCode(ctx, code)
	default:
		s.log.Debug("station: no active flow", "code", code)
	}
	if err != nil && !models.Recoverable(err) {
		s.log.Error("station: handle code", "mode", mode, "code", code, "err", err)
	}
}

// Import replaces the roster with src. Evidence of the old roster is
// deleted once the new roster is in place; a file that cannot be read
// leaves everything as it was.
func (s *Station) Import(ctx context.Context, src string) (roster.ImportReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopFlows()
	defer s.startFlow()

	rep, err := s.roster.Import(ctx, src)
	if err != nil {
		return rep, err
	}
	if err := s.evidence.Purge(); err != nil {
		return rep, err
	}
	s.gate.Reset()
	s.log.Info("station: imported", "src", src, "entrants", rep.Imported, "skipped", rep.Skipped)
	return rep, nil
}

// Reset wipes the roster, its file and all evidence.
func (s *Station) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopFlows()
	defer s.startFlow()

	if err := s.roster.Reset(ctx); err != nil {
		return err
	}
	if err := s.evidence.Purge(); err != nil {
		return err
	}
	s.gate.Reset()
	s.log.Warn("station: wiped")
	return nil
}

type Status struct {
	Mode      Mode
	Checkin   checkin.Snapshot
	Scoring   scoring.Snapshot
	Frames    frames.Stats
	Entrants  int
	CheckedIn int
	Scored    int
}

func (s *Station) Status(ctx context.Context) (Status, error) {
	st := Status{
		Mode:    s.Mode(),
		Checkin: s.checkin.Snapshot(),
		Scoring: s.scoring.Snapshot(),
		Frames:  s.pipeline.Stats(),
	}
	entrants, err := s.roster.Entrants(ctx)
	if err != nil {
		return st, err
	}
	st.Entrants = len(entrants)
	for _, e := range entrants {
		if e.CheckedIn() {
			st.CheckedIn++
		}
		if e.Scored() {
			st.Scored++
		}
	}
	return st, nil
}

func (s *Station) stopFlows() {
	s.checkin.Stop()
	s.scoring.Stop()
}

func (s *Station) startFlow() {
	switch s.mode {
	case Checkin:
		s.checkin.Start()
	case Scoring:
		s.scoring.Start()
	}
}
