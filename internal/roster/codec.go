package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"judging-station/internal/models"
	"judging-station/internal/util"
)

// Header is the fixed roster schema. The trailing id column carries the
// stable entrant identity; files with only the first 6 or 10 columns load fine.
var Header = []string{
	"entryCode", "name", "group", "project", "team", "advisor",
	"artifactCode", "checkedIn", "outcome", "evidencePath", "id",
}

const (
	colEntryCode = iota
	colName
	colGroup
	colProject
	colTeam
	colAdvisor
	colArtifactCode
	colCheckedIn
	colOutcome
	colEvidencePath
	colID
)

// DecodeReport describes what lenient decoding dropped or repaired.
type DecodeReport struct {
	Rows         int      // data records seen, blank ones excluded
	Skipped      int      // unparseable rows
	Duplicates   []string // entry codes seen more than once; first row wins
	Repaired     int      // rows whose artifact/outcome/evidence fields were cleared
	FlagMismatch int      // checkedIn=1 with no artifact code
	GeneratedIDs int
}

// Decode parses a roster file. Row 0 is the header and is ignored beyond
// stripping a BOM; columns are positional.
func Decode(r io.Reader) ([]models.Entrant, DecodeReport, error) {
	var rep DecodeReport

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, rep, nil
		}
		var pe *csv.ParseError
		if !errors.As(err, &pe) {
			return nil, rep, fmt.Errorf("read header: %w", err)
		}
	}

	out := []models.Entrant{}
	seenEntry := map[string]bool{}
	seenArtifact := map[string]bool{}
	seenID := map[string]bool{}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				rep.Skipped++
				continue
			}
			return nil, rep, fmt.Errorf("read row: %w", err)
		}
		if blank(row) {
			continue
		}
		rep.Rows++

		e, ok := parseRow(row, &rep)
		if !ok {
			rep.Skipped++
			continue
		}
		if seenEntry[e.EntryCode] {
			rep.Duplicates = append(rep.Duplicates, e.EntryCode)
			continue
		}
		seenEntry[e.EntryCode] = true

		if e.ArtifactCode != "" {
			if seenArtifact[e.ArtifactCode] {
				e.ArtifactCode = ""
				e.Outcome = nil
				e.EvidencePath = ""
				rep.Repaired++
			} else {
				seenArtifact[e.ArtifactCode] = true
			}
		}

		if e.ID == "" || seenID[e.ID] {
			e.ID = uuid.NewString()
			rep.GeneratedIDs++
		}
		seenID[e.ID] = true

		e.Row = len(out) + 1
		out = append(out, e)
	}
	return out, rep, nil
}

func parseRow(row []string, rep *DecodeReport) (models.Entrant, bool) {
	e := models.Entrant{
		EntryCode:    get(row, colEntryCode),
		Name:         get(row, colName),
		Group:        get(row, colGroup),
		Project:      get(row, colProject),
		Team:         get(row, colTeam),
		Advisor:      get(row, colAdvisor),
		ArtifactCode: get(row, colArtifactCode),
		EvidencePath: get(row, colEvidencePath),
	}
	if e.EntryCode == "" {
		return e, false
	}
	if raw := get(row, colOutcome); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return e, false
		}
		e.Outcome = &v
	}
	if util.ParseFlag(get(row, colCheckedIn)) && e.ArtifactCode == "" {
		rep.FlagMismatch++
	}
	if (e.Outcome == nil) != (e.EvidencePath == "") {
		e.Outcome = nil
		e.EvidencePath = ""
		rep.Repaired++
	}
	if id := get(row, colID); id != "" {
		if _, err := uuid.Parse(id); err == nil {
			e.ID = id
		}
	}
	return e, true
}

// Encode writes the header and one row per entrant. checkedIn is always
// written from the artifact binding.
func Encode(w io.Writer, entrants []models.Entrant) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, e := range entrants {
		rec := []string{
			e.EntryCode, e.Name, e.Group, e.Project, e.Team, e.Advisor,
			e.ArtifactCode,
			util.FormatFlag(e.CheckedIn()),
			models.FormatOutcome(e.Outcome),
			e.EvidencePath,
			e.ID,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// get returns column idx. Codes and flags are trimmed; descriptive text is
// returned as written.
func get(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	v := row[idx]
	switch idx {
	case colName, colGroup, colProject, colTeam, colAdvisor:
		return v
	case colEntryCode:
		v = strings.TrimPrefix(strings.TrimSpace(v), "\ufeff")
	}
	return strings.TrimSpace(v)
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
