// Package report renders scan outcomes. It consumes the executor's outcome
// stream as it arrives, writes one line per probe, and prints a per-host
// summary table when the stream ends. The stream is treated as unordered;
// only the summary imposes an order.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/steeric1/qapper/internal/scanning"
)

// timeResolution is the rounding applied to displayed durations.
const timeResolution = time.Millisecond

// Reporter consumes probe outcomes and renders them.
type Reporter struct {
	out     io.Writer
	verbose bool
	summary *scanning.Summary
}

// New creates a reporter writing to the given stream.
func New(out io.Writer, verbose bool, summary *scanning.Summary) *Reporter {
	return &Reporter{
		out:     out,
		verbose: verbose,
		summary: summary,
	}
}

// Consume drains the outcome stream, rendering each outcome as it arrives
// and folding it into the summary. It returns when the stream closes.
func (r *Reporter) Consume(outcomes <-chan scanning.Outcome) {
	for outcome := range outcomes {
		r.summary.Record(outcome)
		r.renderOutcome(outcome)
	}
	r.summary.Complete()
}

// renderOutcome writes one result line. Verbose mode adds timing and, for
// errored outcomes, the underlying reason.
func (r *Reporter) renderOutcome(outcome scanning.Outcome) {
	if !r.verbose {
		// Quiet mode only surfaces open ports, the answer most scans
		// are after.
		if outcome.Status == scanning.StatusOpen {
			fmt.Fprintf(r.out, "%s %s\n", outcome.Target, outcome.Status)
		}
		return
	}

	if outcome.Status == scanning.StatusErrored && outcome.Reason != nil {
		fmt.Fprintf(r.out, "%s %s (%s) %s\n",
			outcome.Target, outcome.Status, outcome.Elapsed.Round(timeResolution), outcome.Reason)
		return
	}
	fmt.Fprintf(r.out, "%s %s (%s)\n",
		outcome.Target, outcome.Status, outcome.Elapsed.Round(timeResolution))
}

// PrintSummary renders the per-host summary table and run totals.
func (r *Reporter) PrintSummary() {
	s := r.summary

	fmt.Fprintln(r.out)
	table := tablewriter.NewWriter(r.out)
	table.Header("Host", "Open", "Closed", "Errored")
	for _, host := range s.Hosts() {
		_ = table.Append([]string{
			host.Addr.String(),
			host.Open.String(),
			host.Closed.String(),
			host.Errored.String(),
		})
	}
	_ = table.Render()

	fmt.Fprintf(r.out, "\n%d targets scanned in %s: %d open, %d closed, %d errored\n",
		s.Targets, s.Duration.Round(timeResolution),
		s.OpenCount, s.ClosedCount, s.ErroredCount)
}
