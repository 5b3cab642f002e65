package scanning

import (
	"context"
	"errors"
	"net"
	"syscall"

	qerrors "github.com/steeric1/qapper/internal/errors"
)

// classify maps a dial error to a terminal probe status and reason. A nil
// error is an accepted connection. An active refusal is the one definite
// "nothing is listening" signal; everything else, timeout included, is an
// errored outcome with the cause preserved.
func classify(err error, target string) (Status, error) {
	if err == nil {
		return StatusOpen, nil
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return StatusClosed, nil
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return StatusErrored, qerrors.WrapScanErrorWithTarget(qerrors.CodeTimeout,
			"connection attempt timed out", target, err)
	}

	if errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return StatusErrored, qerrors.WrapScanErrorWithTarget(qerrors.CodeHostUnreachable,
			"host unreachable", target, err)
	}

	return StatusErrored, qerrors.WrapScanErrorWithTarget(qerrors.CodeProbeFailed,
		"connection attempt failed", target, err)
}
