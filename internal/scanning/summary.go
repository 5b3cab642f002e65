package scanning

import (
	"net/netip"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/steeric1/qapper/internal/ports"
)

// HostSummary aggregates the outcomes for a single address, bucketed by
// terminal status.
type HostSummary struct {
	Addr    netip.Addr
	Open    ports.Set
	Closed  ports.Set
	Errored ports.Set
}

// Summary aggregates a whole run. It treats the outcome stream as an
// unordered multiset keyed by target; recording order does not matter.
type Summary struct {
	RunID     uuid.UUID
	StartTime time.Time
	Duration  time.Duration

	Targets      int
	OpenCount    int
	ClosedCount  int
	ErroredCount int

	hosts map[netip.Addr]*HostSummary
	order []netip.Addr
}

// NewSummary creates an empty summary for the given run.
func NewSummary(runID uuid.UUID) *Summary {
	return &Summary{
		RunID:     runID,
		StartTime: time.Now(),
		hosts:     make(map[netip.Addr]*HostSummary),
	}
}

// Record folds one outcome into the summary.
func (s *Summary) Record(outcome Outcome) {
	addr := outcome.Target.Addr
	host, ok := s.hosts[addr]
	if !ok {
		host = &HostSummary{Addr: addr}
		s.hosts[addr] = host
		s.order = append(s.order, addr)
	}

	s.Targets++
	switch outcome.Status {
	case StatusOpen:
		s.OpenCount++
		host.Open = append(host.Open, outcome.Target.Port)
	case StatusClosed:
		s.ClosedCount++
		host.Closed = append(host.Closed, outcome.Target.Port)
	case StatusErrored:
		s.ErroredCount++
		host.Errored = append(host.Errored, outcome.Target.Port)
	}
}

// Complete finalizes the summary: per-host port sets are sorted into
// normalized form and the run duration is fixed.
func (s *Summary) Complete() {
	for _, host := range s.hosts {
		sortSet(host.Open)
		sortSet(host.Closed)
		sortSet(host.Errored)
	}
	s.Duration = time.Since(s.StartTime)
}

// Hosts returns the per-address summaries in first-seen order.
func (s *Summary) Hosts() []*HostSummary {
	result := make([]*HostSummary, 0, len(s.order))
	for _, addr := range s.order {
		result = append(result, s.hosts[addr])
	}
	return result
}

// Host returns the summary for one address, or nil if it produced no
// outcomes.
func (s *Summary) Host(addr netip.Addr) *HostSummary {
	return s.hosts[addr]
}

func sortSet(set ports.Set) {
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })
}
