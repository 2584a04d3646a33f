// Package evidence keeps scoring photos named after the artifact and the
// outcome they document: {artifactCode}_{outcomeEncoded}.jpg in one flat
// directory.
package evidence

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"

	"judging-station/internal/models"
)

const ext = ".jpg"

// Evidence names end in exactly one encoded outcome, so the artifact code is
// everything before it. Scores take two underscore-separated segments, ranks
// one; the greedy prefix makes the split unique.
var (
	scoreName = regexp.MustCompile(`^(.+)_(-?[0-9]+_[0-9]+)\.jpg$`)
	rankName  = regexp.MustCompile(`^(.+)_(-?[0-9]+)\.jpg$`)
)

type Store struct {
	dir  string
	mode models.Mode
	log  *slog.Logger

	// OnCleanupError observes stale-file deletions that failed. The failure
	// never reaches the caller.
	OnCleanupError func(path string, err error)

	cleanupFailures atomic.Uint64
}

func New(dir string, mode models.Mode, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{dir: dir, mode: mode, log: log}
}

func (s *Store) Dir() string { return s.dir }

// CleanupFailures counts swallowed delete failures since New.
func (s *Store) CleanupFailures() uint64 { return s.cleanupFailures.Load() }

func (s *Store) PathFor(artifactCode string, outcome float64) string {
	return filepath.Join(s.dir, artifactCode+"_"+models.EncodeOutcome(s.mode, outcome)+ext)
}

// Commit moves the captured photo at tempPath to its final name. prior, the
// evidence on record for artifactCode, is deleted along with any other file
// named for artifactCode.
func (s *Store) Commit(tempPath, artifactCode string, outcome float64, prior string) (string, error) {
	const op = "evidence.commit"
	if artifactCode == "" {
		return "", models.Invalid(op, "artifact code is required")
	}
	if tempPath == "" {
		return "", models.Invalid(op, "photo is required")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", models.IO(op, err)
	}

	final := s.PathFor(artifactCode, outcome)
	if err := s.move(tempPath, final); err != nil {
		return "", models.IO(op, err)
	}
	if prior != "" && filepath.Clean(prior) != final {
		s.discard(prior)
	}
	s.removeStale(artifactCode, final)
	s.log.Info("evidence: committed", "artifact", artifactCode, "path", final)
	return final, nil
}

// Rename gives existing evidence the name for newOutcome. It is a no-op when
// the name already matches.
func (s *Store) Rename(existingPath, artifactCode string, newOutcome float64) (string, error) {
	const op = "evidence.rename"
	if existingPath == "" {
		return "", models.Invalid(op, "no existing evidence")
	}
	final := s.PathFor(artifactCode, newOutcome)
	if filepath.Clean(existingPath) == final {
		return final, nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", models.IO(op, err)
	}
	if err := s.move(existingPath, final); err != nil {
		return "", models.IO(op, err)
	}
	s.removeStale(artifactCode, final)
	s.log.Info("evidence: renamed", "artifact", artifactCode, "from", existingPath, "to", final)
	return final, nil
}

// Discard deletes a temporary capture that will not be committed.
func (s *Store) Discard(tempPath string) {
	if tempPath == "" {
		return
	}
	s.discard(tempPath)
}

// Purge deletes the whole evidence directory.
func (s *Store) Purge() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return models.IO("evidence.purge", err)
	}
	s.log.Info("evidence: purged", "dir", s.dir)
	return nil
}

// owner returns the artifact code an evidence filename belongs to.
func (s *Store) owner(name string) (string, bool) {
	re := scoreName
	if s.mode == models.ModeRank {
		re = rankName
	}
	m := re.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Files lists evidence filenames for artifactCode.
func (s *Store) Files(artifactCode string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, models.IO("evidence.list", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if code, ok := s.owner(e.Name()); ok && code == artifactCode {
			out = append(out, filepath.Join(s.dir, e.Name()))
		}
	}
	return out, nil
}

func (s *Store) removeStale(artifactCode, keep string) {
	files, err := s.Files(artifactCode)
	if err != nil {
		s.cleanupFailed(s.dir, err)
		return
	}
	for _, f := range files {
		if f != keep {
			s.discard(f)
		}
	}
}

func (s *Store) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.cleanupFailed(path, err)
	}
}

func (s *Store) cleanupFailed(path string, err error) {
	s.cleanupFailures.Add(1)
	s.log.Warn("evidence: cleanup failed", "path", path, "err", err)
	if s.OnCleanupError != nil {
		s.OnCleanupError(path, err)
	}
}

// move renames src to dst, copying when a rename is not possible (temp dir
// on another filesystem).
func (s *Store) move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := os.Remove(src); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.cleanupFailed(src, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	ok := false
	defer func() {
		_ = tmp.Close()
		if !ok {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := io.Copy(tmp, in); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return err
	}
	ok = true
	return nil
}
