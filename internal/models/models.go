package models

import (
	"math"
	"strconv"
	"strings"
)

// Entrant is one roster row.
type Entrant struct {
	ID  string // stable, survives reloads
	Row int    // 1-based position in the last loaded file, 0 if never persisted

	EntryCode string
	Name      string
	Group     string
	Project   string
	Team      string
	Advisor   string

	ArtifactCode string

	Outcome      *float64
	EvidencePath string
}

// CheckedIn is derived from the artifact binding; there is no separate flag.
func (e Entrant) CheckedIn() bool {
	return e.ArtifactCode != ""
}

func (e Entrant) Scored() bool {
	return e.Outcome != nil
}

// Clone returns a copy that shares no pointers with e.
func (e Entrant) Clone() Entrant {
	c := e
	if e.Outcome != nil {
		v := *e.Outcome
		c.Outcome = &v
	}
	return c
}

type Mode string

const (
	ModeScore Mode = "score"
	ModeRank  Mode = "rank"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeScore:
		return ModeScore, true
	case ModeRank:
		return ModeRank, true
	default:
		return "", false
	}
}

// EncodeOutcome renders an outcome for use in evidence filenames.
// Scores keep at least one fractional digit with '.' replaced by '_'
// (85 -> "85_0", 72.5 -> "72_5"); ranks are bare integers.
func EncodeOutcome(mode Mode, v float64) string {
	if mode == ModeRank {
		return strconv.FormatInt(int64(math.Round(v)), 10)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return strings.ReplaceAll(s, ".", "_")
}

// FormatOutcome renders an outcome for the roster file.
func FormatOutcome(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func Float(v float64) *float64 { return &v }
