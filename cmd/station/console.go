package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"

	"judging-station/internal/models"
	"judging-station/internal/roster"
	"judging-station/internal/scoring"
	"judging-station/internal/station"
)

const help = `commands:
  checkin | scoring        switch flow
  code <text>              enter a code by hand
  confirm                  check-in: go on to the artifact scan
  capture | retake         scoring: take or retake the photo
  outcome <n>              scoring: enter the score
  save                     scoring: save outcome and photo
  cancel                   abandon the current entrant
  reset-flow               leave the completed screen now
  import <file>            replace the roster (deletes all evidence);
                           the saved file gains an 11th "id" column
  wipe                     delete roster and evidence
  list | status | help | quit`

type console struct {
	st  *station.Station
	out io.Writer
	log *slog.Logger
}

func newConsole(st *station.Station, out io.Writer, log *slog.Logger) *console {
	return &console{st: st, out: out, log: log}
}

// run reads commands until quit, EOF or ctx is done. quit is called on the
// way out so the rest of the process stops too.
func (c *console) run(ctx context.Context, in io.Reader, quit func()) error {
	defer quit()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(c.out, "type help for commands")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if c.exec(ctx, line) {
				return nil
			}
		}
	}
}

// exec runs one command line and reports whether the console should exit.
func (c *console) exec(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch strings.ToLower(cmd) {
	case "":
		return false
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(c.out, help)
		return false
	case "checkin":
		err = c.st.SetMode(station.Checkin)
	case "scoring":
		err = c.st.SetMode(station.Scoring)
	case "code":
		if !c.st.Submit(ctx, arg) {
			fmt.Fprintln(c.out, "code ignored")
		}
	case "confirm":
		err = c.st.Checkin().Confirm()
	case "capture":
		// a failed capture leaves the camera ready; just try again
		sc := c.st.Scoring()
		if sc.State() == scoring.Found {
			err = sc.BeginCapture()
		}
		if err == nil {
			err = sc.Capture(ctx)
		}
	case "retake":
		sc := c.st.Scoring()
		if err = sc.Retake(); err == nil {
			err = sc.Capture(ctx)
		}
	case "outcome":
		var v float64
		v, err = strconv.ParseFloat(arg, 64)
		if err != nil {
			err = models.Invalid("console.outcome", "outcome must be a number")
		} else {
			err = c.st.Scoring().SetOutcome(v)
		}
	case "save":
		err = c.st.Scoring().Commit(ctx)
	case "cancel":
		switch c.st.Mode() {
		case station.Checkin:
			c.st.Checkin().Cancel()
		case station.Scoring:
			c.st.Scoring().Cancel()
		}
	case "reset-flow":
		c.st.Checkin().Reset()
		c.st.Scoring().Reset()
	case "import":
		if arg == "" {
			err = models.Invalid("console.import", "usage: import <file>")
			break
		}
		var rep roster.ImportReport
		if rep, err = c.st.Import(ctx, arg); err == nil {
			fmt.Fprintf(c.out, "imported %d entrants (%d rows skipped, %d duplicate codes, %d results cleared)\n",
				rep.Imported, rep.Skipped, len(rep.Duplicates), rep.ClearedResults)
		}
	case "wipe":
		err = c.st.Reset(ctx)
	case "list":
		if err = c.list(ctx); err != nil {
			fmt.Fprintf(c.out, "! %s\n", models.Message(err))
		}
		return false
	case "status":
	default:
		fmt.Fprintf(c.out, "unknown command %q, try help\n", cmd)
		return false
	}
	if err != nil {
		fmt.Fprintf(c.out, "! %s\n", models.Message(err))
	}
	c.status(ctx)
	return false
}

func (c *console) status(ctx context.Context) {
	st, err := c.st.Status(ctx)
	if err != nil {
		c.log.Error("console: status", "err", err)
		return
	}
	switch st.Mode {
	case station.Checkin:
		s := st.Checkin
		fmt.Fprintf(c.out, "[checkin] %s", s.State)
		if s.Entrant != nil {
			fmt.Fprintf(c.out, " %s %s", s.Entrant.EntryCode, s.Entrant.Name)
		}
		if s.ArtifactCode != "" {
			fmt.Fprintf(c.out, " -> %s", s.ArtifactCode)
		}
		printNotice(c.out, s.Notice)
	case station.Scoring:
		s := st.Scoring
		fmt.Fprintf(c.out, "[scoring] %s", s.State)
		if s.Entrant != nil {
			fmt.Fprintf(c.out, " %s %s", s.Entrant.ArtifactCode, s.Entrant.Name)
		}
		if s.Outcome != nil {
			fmt.Fprintf(c.out, " outcome=%s", models.FormatOutcome(s.Outcome))
		}
		if s.Photo != "" {
			fmt.Fprint(c.out, " photo=new")
		} else if s.Prior != "" {
			fmt.Fprint(c.out, " photo=prior")
		}
		printNotice(c.out, s.Notice)
	default:
		fmt.Fprint(c.out, "[idle] choose checkin or scoring")
		printNotice(c.out, "")
	}
	fmt.Fprintf(c.out, "  %d entrants, %d checked in, %d scored; frames %d seen, %d dropped (%d at source)\n",
		st.Entrants, st.CheckedIn, st.Scored, st.Frames.Received, st.Frames.Dropped, st.Frames.SourceDropped)
}

func printNotice(w io.Writer, n string) {
	if n != "" {
		fmt.Fprintf(w, "  ! %s", n)
	}
	fmt.Fprintln(w)
}

func (c *console) list(ctx context.Context) error {
	entrants, err := c.st.Roster().Entrants(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tENTRY\tNAME\tGROUP\tARTIFACT\tOUTCOME")
	for _, e := range entrants {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.Row, e.EntryCode, e.Name, e.Group, e.ArtifactCode, models.FormatOutcome(e.Outcome))
	}
	return tw.Flush()
}
