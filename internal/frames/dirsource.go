package frames

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DirSource replays the images in a directory as a camera would: at a fixed
// rate, dropping a frame when the consumer has not taken the previous one.
type DirSource struct {
	Dir  string
	FPS  float64
	Loop bool
	Log  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	drops  uint64
}

func NewDirSource(dir string, fps float64, loop bool) *DirSource {
	return &DirSource{Dir: dir, FPS: fps, Loop: loop}
}

func (s *DirSource) Start(ctx context.Context) (<-chan Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil, errors.New("dir source already started")
	}
	files, err := listImages(s.Dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images in %s", s.Dir)
	}
	fps := s.FPS
	if fps <= 0 {
		fps = 10
	}
	log := s.Log
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	out := make(chan Frame, 1)

	go func() {
		defer close(s.done)
		defer close(out)

		ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
		defer ticker.Stop()

		var seq uint64
		for {
			for _, path := range files {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
				f, err := loadFrame(path)
				if err != nil {
					log.Warn("frames: skip unreadable image", "path", path, "err", err)
					continue
				}
				seq++
				f.Seq = seq
				f.Timestamp = time.Now()
				select {
				case out <- f:
				default:
					s.mu.Lock()
					s.drops++
					s.mu.Unlock()
				}
			}
			if !s.Loop {
				return
			}
		}
	}()

	log.Info("frames: replaying directory", "dir", s.Dir, "images", len(files), "fps", fps, "loop", s.Loop)
	return out, nil
}

func (s *DirSource) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Drops counts frames the consumer was too slow to take.
func (s *DirSource) Drops() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func loadFrame(path string) (Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, err
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Frame{}, err
	}
	f := Frame{Data: data, Width: cfg.Width, Height: cfg.Height, Format: FormatJPEG}
	if format == "png" {
		f.Format = FormatPNG
	}
	return f, nil
}
