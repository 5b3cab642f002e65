// Package scanning provides the core probe engine for qapper. It expands no
// input itself; given a work set of (address, port) targets it drives
// bounded-concurrency TCP connection attempts, enforces a per-attempt
// timeout, and emits exactly one terminal outcome per target as attempts
// resolve.
package scanning

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	qerrors "github.com/steeric1/qapper/internal/errors"
	"github.com/steeric1/qapper/internal/logging"
	"github.com/steeric1/qapper/internal/metrics"
	"github.com/steeric1/qapper/internal/targets"
)

// Default configuration values.
const (
	DefaultTimeout     = 1000 * time.Millisecond
	DefaultConcurrency = 512

	// MaxConcurrency caps the admission limit; beyond this, file
	// descriptor exhaustion is likely under common ulimits.
	MaxConcurrency = 4096
)

// Config holds the parameters of one scan run. It is created once from
// validated input and never mutated afterwards.
type Config struct {
	// Timeout bounds each individual connection attempt, measured from
	// the moment the attempt is admitted.
	Timeout time.Duration `validate:"required,gt=0"`

	// Concurrency is the maximum number of attempts in flight at once.
	Concurrency int `validate:"required,gte=1"`

	// Verbose enables per-probe progress logging.
	Verbose bool
}

// DefaultConfig returns a scan configuration with default values.
func DefaultConfig() Config {
	return Config{
		Timeout:     DefaultTimeout,
		Concurrency: DefaultConcurrency,
	}
}

var validate = validator.New()

// Validate checks the configuration for semantic errors.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return qerrors.WrapConfigError(qerrors.CodeConfiguration,
			"invalid scan configuration", err)
	}
	if c.Concurrency > MaxConcurrency {
		return qerrors.NewConfigFieldError(qerrors.CodeConfiguration,
			"concurrency limit too high", "concurrency", c.Concurrency)
	}
	return nil
}

// Status classifies the terminal state of one probe.
type Status int

const (
	// StatusOpen means a listener accepted the connection.
	StatusOpen Status = iota
	// StatusClosed means the remote actively refused the connection
	// before the timeout.
	StatusClosed
	// StatusErrored means the attempt failed for any other reason,
	// including timeout.
	StatusErrored
)

// String returns the lower-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of probing one target. Exactly one Outcome
// is produced per admitted target; abandoned attempts produce none.
type Outcome struct {
	Target  targets.Target
	Status  Status
	Elapsed time.Duration

	// Reason carries the underlying cause for StatusErrored outcomes
	// and is nil otherwise.
	Reason error
}

// Run is a convenience wrapper that executes a full scan and collects the
// outcome stream into a Summary. Streaming consumers should drive an
// Executor directly.
func Run(ctx context.Context, config Config, work []targets.Target) (*Summary, error) {
	executor, err := NewExecutor(config)
	if err != nil {
		return nil, err
	}

	scanStart := time.Now()
	defer func() {
		metrics.RecordScanDuration(time.Since(scanStart))
	}()

	summary := NewSummary(executor.RunID())
	for outcome := range executor.Run(ctx, work) {
		summary.Record(outcome)
	}
	summary.Complete()

	if err := ctx.Err(); err != nil {
		metrics.IncrementScanTotal("canceled")
		return summary, qerrors.WrapScanError(qerrors.CodeCanceled,
			"scan interrupted", err)
	}

	metrics.IncrementScanTotal("success")
	logging.Info("Scan completed",
		"run_id", executor.RunID().String(),
		"targets", summary.Targets,
		"open", summary.OpenCount,
		"closed", summary.ClosedCount,
		"errored", summary.ErroredCount,
		"duration", summary.Duration)
	return summary, nil
}
