package util

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParseFlag accepts the truthy spellings seen in hand-edited roster files.
func ParseFlag(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "1", "yes", "true", "y", "x":
		return true
	default:
		return false
	}
}

func FormatFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// NormalizeCode trims a decoded or typed code and drops control characters
// that some scanners append (CR, LF, GS).
func NormalizeCode(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// CodeFormat is an optional shape check for scanned codes. The zero value
// accepts everything.
type CodeFormat struct {
	Prefix string
	Length int
}

func (f CodeFormat) Match(code string) bool {
	if f.Length > 0 && utf8.RuneCountInString(code) != f.Length {
		return false
	}
	return strings.HasPrefix(code, f.Prefix)
}
