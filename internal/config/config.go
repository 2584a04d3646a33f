package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"judging-station/internal/models"
	"judging-station/internal/util"
)

type Config struct {
	DataDir     string
	RosterFile  string
	EvidenceDir string
	TempDir     string

	Mode     models.Mode
	ScoreMin float64
	ScoreMax float64

	ScanDebounce       time.Duration
	ScanCooldown       time.Duration
	CompleteResetDelay time.Duration
	NoticeTTL          time.Duration

	EntryCode    util.CodeFormat
	ArtifactCode util.CodeFormat
	AllowRescore bool

	FrameDir     string
	FrameFPS     float64
	FrameLoop    bool
	CaptureStill string

	LogLevel slog.Level

	ConfigFile string
}

func Default() Config {
	return Config{
		DataDir:            "./data",
		TempDir:            os.TempDir(),
		Mode:               models.ModeScore,
		ScoreMin:           0,
		ScoreMax:           100,
		ScanDebounce:       1500 * time.Millisecond,
		ScanCooldown:       750 * time.Millisecond,
		CompleteResetDelay: 1500 * time.Millisecond,
		NoticeTTL:          3 * time.Second,
		FrameFPS:           10,
		LogLevel:           slog.LevelInfo,
	}
}

// FromEnv reads the station settings from the environment, then applies the
// YAML file named by STATION_CONFIG, if any.
func FromEnv() (Config, error) {
	c := Default()
	var err error

	c.DataDir = envString("STATION_DATA_DIR", c.DataDir)
	c.RosterFile = envString("STATION_ROSTER_FILE", "")
	c.EvidenceDir = envString("STATION_EVIDENCE_DIR", "")
	c.TempDir = envString("STATION_TEMP_DIR", c.TempDir)

	if raw := envString("STATION_MODE", ""); raw != "" {
		m, ok := models.ParseMode(raw)
		if !ok {
			return c, fmt.Errorf("STATION_MODE: unknown mode %q", raw)
		}
		c.Mode = m
	}
	if c.ScoreMin, err = envFloat("SCORE_MIN", c.ScoreMin); err != nil {
		return c, err
	}
	if c.ScoreMax, err = envFloat("SCORE_MAX", c.ScoreMax); err != nil {
		return c, err
	}

	if c.ScanDebounce, err = envDuration("SCAN_DEBOUNCE", c.ScanDebounce); err != nil {
		return c, err
	}
	if c.ScanCooldown, err = envDuration("SCAN_COOLDOWN", c.ScanCooldown); err != nil {
		return c, err
	}
	if c.CompleteResetDelay, err = envDuration("COMPLETE_RESET_DELAY", c.CompleteResetDelay); err != nil {
		return c, err
	}
	if c.NoticeTTL, err = envDuration("NOTICE_TTL", c.NoticeTTL); err != nil {
		return c, err
	}

	c.EntryCode.Prefix = envString("ENTRY_CODE_PREFIX", "")
	if c.EntryCode.Length, err = envInt("ENTRY_CODE_LENGTH", 0); err != nil {
		return c, err
	}
	c.ArtifactCode.Prefix = envString("ARTIFACT_CODE_PREFIX", "")
	if c.ArtifactCode.Length, err = envInt("ARTIFACT_CODE_LENGTH", 0); err != nil {
		return c, err
	}
	c.AllowRescore = util.ParseFlag(os.Getenv("ALLOW_RESCORE"))

	c.FrameDir = envString("FRAME_DIR", "")
	if c.FrameFPS, err = envFloat("FRAME_FPS", c.FrameFPS); err != nil {
		return c, err
	}
	c.FrameLoop = util.ParseFlag(os.Getenv("FRAME_LOOP"))
	c.CaptureStill = envString("CAPTURE_STILL", "")

	if raw := envString("LOG_LEVEL", ""); raw != "" {
		if err := c.LogLevel.UnmarshalText([]byte(raw)); err != nil {
			return c, fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}

	c.ConfigFile = envString("STATION_CONFIG", "")
	if c.ConfigFile != "" {
		f, err := Load(c.ConfigFile)
		if err != nil {
			return c, err
		}
		if err := f.Overlay(&c); err != nil {
			return c, fmt.Errorf("%s: %w", c.ConfigFile, err)
		}
	}

	c.fillPaths()
	return c, c.Validate()
}

// fillPaths derives the roster and evidence locations from DataDir when
// they were not given explicitly.
func (c *Config) fillPaths() {
	if c.RosterFile == "" {
		c.RosterFile = filepath.Join(c.DataDir, "roster.csv")
	}
	if c.EvidenceDir == "" {
		c.EvidenceDir = filepath.Join(c.DataDir, "evidence")
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envFloat(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
