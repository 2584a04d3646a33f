// Package roster owns the in-memory entrant list and its flat-file mirror.
//
// A single goroutine owns the list. Every operation is sent to it as a
// closure and runs to completion, including the full rewrite of the backing
// file, before the next one starts. Separate processes writing the same file
// are not coordinated: the last save wins.
package roster

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"judging-station/internal/models"
)

var ErrClosed = errors.New("roster closed")

type Roster struct {
	path string
	log  *slog.Logger

	ops       chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// owned by the loop goroutine
	entrants []models.Entrant
}

type Option func(*Roster)

func WithLogger(l *slog.Logger) Option {
	return func(r *Roster) { r.log = l }
}

// Open loads path (a missing file is an empty roster) and starts the owner
// goroutine. Call Close to stop it.
func Open(path string, opts ...Option) (*Roster, error) {
	r := &Roster{
		path: path,
		log:  slog.Default(),
		ops:  make(chan func()),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	entrants, err := r.read()
	if err != nil {
		return nil, err
	}
	r.entrants = entrants
	go r.loop()
	return r, nil
}

func (r *Roster) Path() string { return r.path }

func (r *Roster) Close() error {
	r.closeOnce.Do(func() { close(r.quit) })
	<-r.done
	return nil
}

func (r *Roster) loop() {
	defer close(r.done)
	for {
		select {
		case f := <-r.ops:
			f()
		case <-r.quit:
			return
		}
	}
}

// do runs fn on the owner goroutine. Once fn is queued it always completes;
// ctx only bounds the wait to get in.
func (r *Roster) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case r.ops <- func() { errc <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrClosed
	}
	return <-errc
}

func (r *Roster) read() ([]models.Entrant, error) {
	entrants, rep, err := readFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.Entrant{}, nil
	}
	if err != nil {
		return nil, models.IO("roster.load", err)
	}
	r.logReport("roster: loaded", rep, len(entrants))
	return entrants, nil
}

func (r *Roster) logReport(msg string, rep DecodeReport, n int) {
	r.log.Info(msg, "path", r.path, "entrants", n, "skipped", rep.Skipped)
	if len(rep.Duplicates) > 0 {
		r.log.Warn("roster: duplicate entry codes dropped", "codes", rep.Duplicates)
	}
	if rep.Repaired > 0 {
		r.log.Warn("roster: inconsistent rows repaired", "rows", rep.Repaired)
	}
	if rep.FlagMismatch > 0 {
		r.log.Warn("roster: checkedIn set without artifact code, ignored", "rows", rep.FlagMismatch)
	}
}

// persist rewrites the backing file from the in-memory list. The list is
// not rolled back on failure.
func (r *Roster) persist(op string) error {
	for i := range r.entrants {
		r.entrants[i].Row = i + 1
	}
	if err := writeFile(r.path, r.entrants); err != nil {
		r.log.Error("roster: save failed", "op", op, "path", r.path, "err", err)
		return models.IO(op, err)
	}
	r.log.Debug("roster: saved", "op", op, "entrants", len(r.entrants))
	return nil
}

func snapshot(in []models.Entrant) []models.Entrant {
	out := make([]models.Entrant, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}

// Load re-reads the backing file, replacing the in-memory list.
func (r *Roster) Load(ctx context.Context) ([]models.Entrant, error) {
	var out []models.Entrant
	err := r.do(ctx, func() error {
		entrants, err := r.read()
		if err != nil {
			return err
		}
		r.entrants = entrants
		out = snapshot(entrants)
		return nil
	})
	return out, err
}

// Save replaces the whole list and rewrites the file. Entrants without an
// ID get one.
func (r *Roster) Save(ctx context.Context, entrants []models.Entrant) error {
	return r.do(ctx, func() error {
		next := snapshot(entrants)
		for i := range next {
			if next[i].ID == "" {
				next[i].ID = uuid.NewString()
			}
		}
		if err := validate(next); err != nil {
			return err
		}
		r.entrants = next
		return r.persist("roster.save")
	})
}

func (r *Roster) Entrants(ctx context.Context) ([]models.Entrant, error) {
	var out []models.Entrant
	err := r.do(ctx, func() error {
		out = snapshot(r.entrants)
		return nil
	})
	return out, err
}

func (r *Roster) FindByEntryCode(ctx context.Context, code string) (models.Entrant, error) {
	return r.find(ctx, "roster.find_entry", code, func(e models.Entrant) bool { return e.EntryCode == code })
}

func (r *Roster) FindByArtifactCode(ctx context.Context, code string) (models.Entrant, error) {
	return r.find(ctx, "roster.find_artifact", code, func(e models.Entrant) bool {
		return e.ArtifactCode != "" && e.ArtifactCode == code
	})
}

func (r *Roster) FindByID(ctx context.Context, id string) (models.Entrant, error) {
	return r.find(ctx, "roster.find_id", id, func(e models.Entrant) bool { return e.ID == id })
}

func (r *Roster) find(ctx context.Context, op, code string, match func(models.Entrant) bool) (models.Entrant, error) {
	var out models.Entrant
	err := r.do(ctx, func() error {
		i := r.indexWhere(match)
		if i < 0 {
			return models.NotFound(op, code)
		}
		out = r.entrants[i].Clone()
		return nil
	})
	return out, err
}

func (r *Roster) indexWhere(match func(models.Entrant) bool) int {
	for i, e := range r.entrants {
		if match(e) {
			return i
		}
	}
	return -1
}

// Update replaces the entrant with the same ID and rewrites the file.
func (r *Roster) Update(ctx context.Context, e models.Entrant) error {
	return r.do(ctx, func() error {
		return r.update("roster.update", e.Clone())
	})
}

func (r *Roster) update(op string, e models.Entrant) error {
	i := r.indexWhere(func(x models.Entrant) bool { return x.ID == e.ID })
	if i < 0 {
		return models.NotFound(op, e.ID)
	}
	if err := r.checkAgainstOthers(op, i, e); err != nil {
		return err
	}
	r.entrants[i] = e
	return r.persist(op)
}

func (r *Roster) checkAgainstOthers(op string, self int, e models.Entrant) error {
	if e.EntryCode == "" {
		return models.Invalid(op, "entry code is required")
	}
	if (e.Outcome == nil) != (e.EvidencePath == "") {
		return models.Invalid(op, "outcome and evidence path must be set together")
	}
	for i, o := range r.entrants {
		if i == self {
			continue
		}
		if o.EntryCode == e.EntryCode {
			return models.Conflict(op, e.EntryCode, "entry code already in use")
		}
		if e.ArtifactCode != "" && o.ArtifactCode == e.ArtifactCode {
			return models.Conflict(op, e.ArtifactCode, "artifact already bound")
		}
	}
	return nil
}

// BindArtifact binds artifactCode to the entrant with entryCode. Binding the
// same pair twice is a no-op.
func (r *Roster) BindArtifact(ctx context.Context, entryCode, artifactCode string) (models.Entrant, error) {
	const op = "roster.bind"
	var out models.Entrant
	err := r.do(ctx, func() error {
		if artifactCode == "" {
			return models.Invalid(op, "artifact code is required")
		}
		i := r.indexWhere(func(e models.Entrant) bool { return e.EntryCode == entryCode })
		if i < 0 {
			return models.NotFound(op, entryCode)
		}
		e := r.entrants[i].Clone()
		if e.ArtifactCode == artifactCode {
			out = e
			return nil
		}
		if j := r.indexWhere(func(o models.Entrant) bool { return o.ArtifactCode == artifactCode }); j >= 0 {
			return models.Conflict(op, artifactCode, fmt.Sprintf("artifact already bound to %s", r.entrants[j].EntryCode))
		}
		if e.Scored() {
			return models.Conflict(op, entryCode, "entrant already scored under another artifact")
		}
		e.ArtifactCode = artifactCode
		out = e.Clone()
		return r.update(op, e)
	})
	return out, err
}

// RecordOutcome sets outcome and evidence on the entrant bound to
// artifactCode. Removing a previous evidence file is the caller's job.
func (r *Roster) RecordOutcome(ctx context.Context, artifactCode string, outcome float64, evidencePath string) (models.Entrant, error) {
	const op = "roster.record"
	var out models.Entrant
	err := r.do(ctx, func() error {
		if evidencePath == "" {
			return models.Invalid(op, "evidence path is required")
		}
		i := r.indexWhere(func(e models.Entrant) bool { return e.ArtifactCode != "" && e.ArtifactCode == artifactCode })
		if i < 0 {
			return models.NotFound(op, artifactCode)
		}
		e := r.entrants[i].Clone()
		e.Outcome = models.Float(outcome)
		e.EvidencePath = evidencePath
		out = e.Clone()
		return r.update(op, e)
	})
	return out, err
}

// CountScored counts entrants with an outcome, ignoring excludeID.
func (r *Roster) CountScored(ctx context.Context, excludeID string) (int, error) {
	n := 0
	err := r.do(ctx, func() error {
		for _, e := range r.entrants {
			if e.Scored() && e.ID != excludeID {
				n++
			}
		}
		return nil
	})
	return n, err
}

// ImportReport summarises a roster import.
type ImportReport struct {
	DecodeReport
	Imported       int
	ClearedResults int
}

// Import replaces the roster with the contents of src. Outcomes in src are
// dropped because the evidence they point at is discarded with the old roster.
func (r *Roster) Import(ctx context.Context, src string) (ImportReport, error) {
	const op = "roster.import"
	var rep ImportReport
	err := r.do(ctx, func() error {
		entrants, drep, err := readFile(src)
		if err != nil {
			return models.IO(op, err)
		}
		rep.DecodeReport = drep
		for i := range entrants {
			if entrants[i].Scored() {
				entrants[i].Outcome = nil
				entrants[i].EvidencePath = ""
				rep.ClearedResults++
			}
		}
		rep.Imported = len(entrants)
		r.entrants = entrants
		r.logReport("roster: imported", drep, len(entrants))
		return r.persist(op)
	})
	return rep, err
}

// Reset empties the roster and deletes the backing file.
func (r *Roster) Reset(ctx context.Context) error {
	return r.do(ctx, func() error {
		r.entrants = []models.Entrant{}
		if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return models.IO("roster.reset", err)
		}
		r.log.Info("roster: reset", "path", r.path)
		return nil
	})
}

func validate(entrants []models.Entrant) error {
	const op = "roster.validate"
	entry := map[string]bool{}
	artifact := map[string]bool{}
	for _, e := range entrants {
		if e.EntryCode == "" {
			return models.Invalid(op, "entry code is required")
		}
		if entry[e.EntryCode] {
			return models.Conflict(op, e.EntryCode, "entry code already in use")
		}
		entry[e.EntryCode] = true
		if e.ArtifactCode != "" {
			if artifact[e.ArtifactCode] {
				return models.Conflict(op, e.ArtifactCode, "artifact already bound")
			}
			artifact[e.ArtifactCode] = true
		}
		if (e.Outcome == nil) != (e.EvidencePath == "") {
			return models.Invalid(op, "outcome and evidence path must be set together")
		}
	}
	return nil
}
