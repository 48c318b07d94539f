package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
)

// Summary aggregates the entries of one run.
type Summary struct {
	Run      string
	Total    int
	ByStatus map[Status]int
	Checks   int
	Took     time.Duration
	Started  time.Time
}

// OK reports whether every scenario passed.
func (s Summary) OK() bool { return s.Total > 0 && s.ByStatus[StatusPass] == s.Total }

func Summarize(run string, entries []Entry) Summary {
	s := Summary{Run: run, Total: len(entries), ByStatus: make(map[Status]int, 4)}
	for i, e := range entries {
		s.ByStatus[e.Status]++
		s.Checks += len(e.Checks)
		s.Took += e.Duration
		if i == 0 || e.Started.Before(s.Started) {
			s.Started = e.Started
		}
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("run %s: %d scenarios, %d pass, %d fail, %d inconclusive, %d error",
		s.Run, s.Total, s.ByStatus[StatusPass], s.ByStatus[StatusFail],
		s.ByStatus[StatusInconclusive], s.ByStatus[StatusError])
}

// WriteText renders one row per scenario followed by the summary line.
func WriteText(w io.Writer, run string, entries []Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSCENARIO\tSTATUS\tCHECKS\tTOOK\tDETAIL")
	for _, e := range entries {
		checks := fmt.Sprintf("%d/%d", len(e.Checks)-e.Mismatches(), len(e.Checks))
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.Seq, e.Scenario, e.Status, checks, e.Duration.Round(time.Millisecond), detail(e))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	s := Summarize(run, entries)
	_, err := fmt.Fprintf(w, "%s (started %s, %s checks)\n",
		s, humanize.Time(s.Started), humanize.Comma(int64(s.Checks)))
	return err
}

func detail(e Entry) string {
	var parts []string
	if e.Err != "" {
		parts = append(parts, e.Err)
	}
	for _, c := range e.Checks {
		if !c.Match {
			parts = append(parts, fmt.Sprintf("%s %s: expected %s, observed %s", c.Op, c.Key, c.Expected, c.Observed))
		}
	}
	if e.Attempts > 1 {
		parts = append(parts, fmt.Sprintf("%d attempts", e.Attempts))
	}
	parts = append(parts, e.Notes...)
	return strings.Join(parts, "; ")
}
