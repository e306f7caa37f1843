package sqlscript

import (
	"fmt"
	"strings"
	"time"
)

// Report summarises a replay
type Report struct {
	Script    string
	StartedAt time.Time
	Duration  time.Duration
	Results   []Result
	Aborted   bool // stopped early because of StopOnError
}

// Count returns how many statements ended with outcome o
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Failed reports whether any statement failed
func (r *Report) Failed() bool {
	return r.Count(OutcomeFailed) > 0
}

// FailedResults returns the failed statements in script order
func (r *Report) FailedResults() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			out = append(out, res)
		}
	}
	return out
}

// Summary is a one-line human readable digest
func (r *Report) Summary() string {
	s := fmt.Sprintf("%s: %d applied, %d skipped, %d failed in %s",
		r.Script, r.Count(OutcomeApplied), r.Count(OutcomeSkipped), r.Count(OutcomeFailed),
		r.Duration.Round(time.Millisecond))
	if r.Aborted {
		s += " (aborted)"
	}
	return s
}

// ManualInstructions renders the statements that could not be applied as a
// paste-ready SQL document with step by step instructions. It returns "" when
// nothing failed.
func ManualInstructions(reports []*Report, dashboardURL string) string {
	var failed []Result
	var scripts []string
	for _, r := range reports {
		if f := r.FailedResults(); len(f) > 0 {
			failed = append(failed, f...)
			scripts = append(scripts, r.Script)
		}
	}
	if len(failed) == 0 {
		return ""
	}

	editor := "the SQL editor of your database dashboard"
	if dashboardURL != "" {
		editor = dashboardURL
	}

	var b strings.Builder
	fmt.Fprintf(&b, "-- %d statement(s) from %s could not be applied automatically.\n", len(failed), strings.Join(scripts, ", "))
	b.WriteString("-- Apply them manually:\n")
	fmt.Fprintf(&b, "--   1. Open %s\n", editor)
	b.WriteString("--   2. Paste this whole file and run it; statements are in their original order.\n")
	b.WriteString("--   3. Run `nexupay-migrate verify` to confirm the schema.\n")

	for _, res := range failed {
		st := res.Statement
		fmt.Fprintf(&b, "\n-- #%d (line %d) %s", st.Ordinal, st.Line, st.Kind())
		if res.Err != nil {
			fmt.Fprintf(&b, ": %s", oneLine(res.Err.Error()))
		}
		fmt.Fprintf(&b, "\n%s;\n", st.Text)
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
