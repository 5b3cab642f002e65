package scanning

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	qerrors "github.com/steeric1/qapper/internal/errors"
	"github.com/steeric1/qapper/internal/logging"
	"github.com/steeric1/qapper/internal/metrics"
	"github.com/steeric1/qapper/internal/targets"
)

// DialFunc attempts a TCP connection to a host:port address. It exists so
// tests can substitute the network.
type DialFunc func(ctx context.Context, address string) (net.Conn, error)

// defaultDial dials over the real network. The context carries the
// per-attempt deadline; the dialer closes the socket when it expires, so a
// timed-out attempt cannot leak its connection.
func defaultDial(ctx context.Context, address string) (net.Conn, error) {
	var dialer net.Dialer
	return dialer.DialContext(ctx, "tcp", address)
}

// Executor drives concurrent connection attempts over a work set. Each
// target moves from pending to in-flight under the admission gate, then to
// exactly one terminal outcome. An Executor runs once.
type Executor struct {
	config Config
	runID  uuid.UUID
	dial   DialFunc
	gate   *admission
	logger *logging.Logger

	startOnce sync.Once
}

// NewExecutor creates an executor for one scan run. It fails if the
// configuration is invalid.
func NewExecutor(config Config) (*Executor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New()
	return &Executor{
		config: config,
		runID:  runID,
		dial:   defaultDial,
		gate:   newAdmission(config.Concurrency),
		logger: logging.Default().WithComponent("executor").WithRunID(runID.String()),
	}, nil
}

// RunID returns the unique identifier of this run.
func (e *Executor) RunID() uuid.UUID {
	return e.runID
}

// InFlight returns the number of attempts currently in flight.
func (e *Executor) InFlight() int {
	return e.gate.Active()
}

// PeakInFlight returns the highest number of simultaneously in-flight
// attempts observed during the run.
func (e *Executor) PeakInFlight() int {
	return e.gate.Peak()
}

// Run starts the scan and returns the outcome stream. Outcomes arrive as
// attempts resolve, not in work-set order. The channel closes once every
// admitted target has reached a terminal state; for an uncancelled run that
// is exactly one outcome per element of work. Cancelling the context stops
// admission; attempts already in flight finish or are abandoned without
// emitting an outcome.
//
// Run may be called once per Executor. Subsequent calls return a closed
// channel.
func (e *Executor) Run(ctx context.Context, work []targets.Target) <-chan Outcome {
	outcomes := make(chan Outcome, e.config.Concurrency)

	ran := false
	e.startOnce.Do(func() {
		ran = true

		e.logger.Info("Starting scan",
			"targets", len(work),
			"concurrency", e.config.Concurrency,
			"timeout", e.config.Timeout)
		metrics.Gauge(metrics.MetricTargetsTotal, float64(len(work)), nil)

		jobs := make(chan targets.Target)
		var wg sync.WaitGroup
		for i := 0; i < e.config.Concurrency; i++ {
			wg.Add(1)
			go e.worker(ctx, jobs, outcomes, &wg)
		}

		go func() {
			defer close(jobs)
			for _, target := range work {
				select {
				case jobs <- target:
				case <-ctx.Done():
					e.logger.Warn("Scan cancelled, admission stopped",
						"remaining", len(work))
					return
				}
			}
		}()

		go func() {
			wg.Wait()
			e.gate.Close()
			close(outcomes)
			e.logger.Debug("Outcome stream closed",
				"peak_in_flight", e.gate.Peak())
		}()
	})

	if !ran {
		close(outcomes)
	}
	return outcomes
}

// worker consumes targets from the jobs channel, probing one at a time. Its
// slot in the pool, together with the admission gate, bounds the number of
// simultaneous attempts.
func (e *Executor) worker(ctx context.Context, jobs <-chan targets.Target,
	outcomes chan<- Outcome, wg *sync.WaitGroup) {
	defer wg.Done()

	for target := range jobs {
		address := target.String()
		if err := e.gate.Acquire(ctx, address); err != nil {
			// Cancelled before admission: the target stays pending
			// and produces no outcome.
			return
		}

		outcome, ok := e.probe(ctx, target)
		e.gate.Release(address)
		if !ok {
			return
		}

		select {
		case outcomes <- outcome:
		case <-ctx.Done():
			return
		}
	}
}

// probe performs one connection attempt under the per-attempt timeout,
// measured from admission. It reports ok=false when the run was cancelled
// mid-attempt and the outcome must be abandoned rather than emitted.
func (e *Executor) probe(ctx context.Context, target targets.Target) (Outcome, bool) {
	address := target.String()
	if e.config.Verbose {
		e.logger.Debug("Probing target", "target", address)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	start := time.Now()
	conn, err := e.dial(attemptCtx, address)
	elapsed := time.Since(start)

	if conn != nil {
		_ = conn.Close()
	}
	if err != nil && ctx.Err() != nil {
		// The run was cancelled, not the individual attempt.
		return Outcome{}, false
	}

	status, reason := classify(err, address)
	metrics.RecordProbeOutcome(status.String(), elapsed)
	if qerrors.IsCode(reason, qerrors.CodeTimeout) {
		metrics.Counter(metrics.MetricProbeTimeouts, nil)
	}

	if e.config.Verbose {
		e.logger.Debug("Probe resolved",
			"target", address,
			"status", status.String(),
			"elapsed", elapsed,
			"reason", reason)
	}

	return Outcome{
		Target:  target,
		Status:  status,
		Elapsed: elapsed,
		Reason:  reason,
	}, true
}
