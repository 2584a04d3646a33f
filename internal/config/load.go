package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"judging-station/internal/models"
)

// FileConfig mirrors the environment settings. Unset keys leave the
// environment value alone.
type FileConfig struct {
	DataDir     *string `yaml:"data_dir"`
	RosterFile  *string `yaml:"roster_file"`
	EvidenceDir *string `yaml:"evidence_dir"`
	TempDir     *string `yaml:"temp_dir"`

	Mode     *string  `yaml:"mode"`
	ScoreMin *float64 `yaml:"score_min"`
	ScoreMax *float64 `yaml:"score_max"`

	ScanDebounce       *time.Duration `yaml:"scan_debounce"`
	ScanCooldown       *time.Duration `yaml:"scan_cooldown"`
	CompleteResetDelay *time.Duration `yaml:"complete_reset_delay"`
	NoticeTTL          *time.Duration `yaml:"notice_ttl"`

	EntryCodePrefix    *string `yaml:"entry_code_prefix"`
	EntryCodeLength    *int    `yaml:"entry_code_length"`
	ArtifactCodePrefix *string `yaml:"artifact_code_prefix"`
	ArtifactCodeLength *int    `yaml:"artifact_code_length"`
	AllowRescore       *bool   `yaml:"allow_rescore"`

	FrameDir     *string  `yaml:"frame_dir"`
	FrameFPS     *float64 `yaml:"frame_fps"`
	FrameLoop    *bool    `yaml:"frame_loop"`
	CaptureStill *string  `yaml:"capture_still"`

	LogLevel *string `yaml:"log_level"`
}

// Load reads a station YAML file.
func Load(path string) (FileConfig, error) {
	var fc FileConfig
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fc, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("failed to parse config file: %w", err)
	}
	return fc, nil
}

// Overlay copies every key set in the file onto c.
func (fc FileConfig) Overlay(c *Config) error {
	set(&c.DataDir, fc.DataDir)
	set(&c.RosterFile, fc.RosterFile)
	set(&c.EvidenceDir, fc.EvidenceDir)
	set(&c.TempDir, fc.TempDir)

	if fc.Mode != nil {
		m, ok := models.ParseMode(*fc.Mode)
		if !ok {
			return fmt.Errorf("mode: unknown mode %q", *fc.Mode)
		}
		c.Mode = m
	}
	set(&c.ScoreMin, fc.ScoreMin)
	set(&c.ScoreMax, fc.ScoreMax)

	set(&c.ScanDebounce, fc.ScanDebounce)
	set(&c.ScanCooldown, fc.ScanCooldown)
	set(&c.CompleteResetDelay, fc.CompleteResetDelay)
	set(&c.NoticeTTL, fc.NoticeTTL)

	set(&c.EntryCode.Prefix, fc.EntryCodePrefix)
	set(&c.EntryCode.Length, fc.EntryCodeLength)
	set(&c.ArtifactCode.Prefix, fc.ArtifactCodePrefix)
	set(&c.ArtifactCode.Length, fc.ArtifactCodeLength)
	set(&c.AllowRescore, fc.AllowRescore)

	set(&c.FrameDir, fc.FrameDir)
	set(&c.FrameFPS, fc.FrameFPS)
	set(&c.FrameLoop, fc.FrameLoop)
	set(&c.CaptureStill, fc.CaptureStill)

	if fc.LogLevel != nil {
		if err := c.LogLevel.UnmarshalText([]byte(*fc.LogLevel)); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
