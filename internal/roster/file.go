package roster

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"judging-station/internal/models"
)

func readFile(path string) ([]models.Entrant, DecodeReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, DecodeReport{}, err
	}
	defer f.Close()
	return Decode(f)
}

func writeFile(path string, entrants []models.Entrant) error {
	var buf bytes.Buffer
	if err := Encode(&buf, entrants); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes(), 0o644)
}

// writeFileAtomic writes to a sibling temp file, syncs it and renames it over
// path, so a crash leaves either the old or the new roster on disk.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	// some filesystems refuse fsync on directories
	if err := f.Sync(); err != nil && !errors.Is(err, fs.ErrInvalid) {
		return err
	}
	return nil
}
