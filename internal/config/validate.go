package config

import (
	"errors"
	"fmt"
	"math"

	"judging-station/internal/models"
)

// Validate checks ranges and required paths after env and file are merged.
func (c Config) Validate() error {
	if _, ok := models.ParseMode(string(c.Mode)); !ok {
		return fmt.Errorf("mode must be score or rank, got %q", c.Mode)
	}
	if c.RosterFile == "" {
		return errors.New("roster file must be set")
	}
	if c.EvidenceDir == "" {
		return errors.New("evidence dir must be set")
	}
	if c.Mode == models.ModeScore {
		if math.IsNaN(c.ScoreMin) || math.IsNaN(c.ScoreMax) || c.ScoreMin >= c.ScoreMax {
			return fmt.Errorf("score range [%v, %v] is empty", c.ScoreMin, c.ScoreMax)
		}
	}
	for name, d := range map[string]float64{
		"scan debounce":        c.ScanDebounce.Seconds(),
		"scan cooldown":        c.ScanCooldown.Seconds(),
		"complete reset delay": c.CompleteResetDelay.Seconds(),
		"notice ttl":           c.NoticeTTL.Seconds(),
		"frame fps":            c.FrameFPS,
	} {
		if !(d > 0) {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.EntryCode.Length < 0 || c.ArtifactCode.Length < 0 {
		return errors.New("code lengths must not be negative")
	}
	if c.EntryCode.Length > 0 && len(c.EntryCode.Prefix) > c.EntryCode.Length {
		return errors.New("entry code prefix is longer than the entry code")
	}
	if c.ArtifactCode.Length > 0 && len(c.ArtifactCode.Prefix) > c.ArtifactCode.Length {
		return errors.New("artifact code prefix is longer than the artifact code")
	}
	return nil
}
