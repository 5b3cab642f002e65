package scanning

import (
	"context"
	"net"
	"net/netip"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/steeric1/qapper/internal/errors"
	"github.com/steeric1/qapper/internal/targets"
)

// fakeConn is a dial result that only needs to be closeable.
type fakeConn struct {
	net.Conn
}

func (fakeConn) Close() error { return nil }

func testConfig(concurrency int) Config {
	return Config{
		Timeout:     time.Second,
		Concurrency: concurrency,
	}
}

func makeWork(t *testing.T, count int) []targets.Target {
	t.Helper()
	work := make([]targets.Target, 0, count)
	addr := netip.MustParseAddr("192.0.2.1")
	for i := 0; i < count; i++ {
		work = append(work, targets.Target{Addr: addr, Port: uint16(1000 + i)})
	}
	return work
}

func collect(outcomes <-chan Outcome) []Outcome {
	var result []Outcome
	for outcome := range outcomes {
		result = append(result, outcome)
	}
	return result
}

func TestNewExecutorRejectsInvalidConfig(t *testing.T) {
	_, err := NewExecutor(Config{Timeout: 0, Concurrency: 8})
	require.Error(t, err)
	assert.Equal(t, qerrors.CodeConfiguration, qerrors.GetCode(err))

	_, err = NewExecutor(Config{Timeout: time.Second, Concurrency: 0})
	require.Error(t, err)

	_, err = NewExecutor(Config{Timeout: time.Second, Concurrency: MaxConcurrency + 1})
	require.Error(t, err)
}

func TestExecutorOneOutcomePerTarget(t *testing.T) {
	executor, err := NewExecutor(testConfig(8))
	require.NoError(t, err)
	executor.dial = func(_ context.Context, _ string) (net.Conn, error) {
		return fakeConn{}, nil
	}

	work := makeWork(t, 200)
	outcomes := collect(executor.Run(context.Background(), work))

	require.Len(t, outcomes, len(work))
	seen := make(map[targets.Target]struct{}, len(outcomes))
	for _, outcome := range outcomes {
		_, dup := seen[outcome.Target]
		assert.False(t, dup, "duplicate outcome for %s", outcome.Target)
		seen[outcome.Target] = struct{}{}
		assert.Equal(t, StatusOpen, outcome.Status)
		assert.NoError(t, outcome.Reason)
	}
}

func TestExecutorConcurrencyBound(t *testing.T) {
	const limit = 4

	executor, err := NewExecutor(testConfig(limit))
	require.NoError(t, err)

	var inFlight, peak atomic.Int64
	executor.dial = func(_ context.Context, _ string) (net.Conn, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return fakeConn{}, nil
	}

	work := makeWork(t, 64)
	outcomes := collect(executor.Run(context.Background(), work))

	require.Len(t, outcomes, len(work))
	assert.LessOrEqual(t, peak.Load(), int64(limit),
		"simultaneous attempts exceeded the admission limit")
	assert.LessOrEqual(t, executor.PeakInFlight(), limit)
	assert.Positive(t, executor.PeakInFlight())
	assert.Zero(t, executor.InFlight(), "no attempts in flight after completion")
}

func TestExecutorClassifiesRefused(t *testing.T) {
	executor, err := NewExecutor(testConfig(2))
	require.NoError(t, err)
	executor.dial = func(_ context.Context, _ string) (net.Conn, error) {
		return nil, &net.OpError{
			Op:  "dial",
			Err: os.NewSyscallError("connect", syscall.ECONNREFUSED),
		}
	}

	outcomes := collect(executor.Run(context.Background(), makeWork(t, 3)))

	require.Len(t, outcomes, 3)
	for _, outcome := range outcomes {
		assert.Equal(t, StatusClosed, outcome.Status)
		assert.NoError(t, outcome.Reason)
	}
}

func TestExecutorTimeoutIsErrored(t *testing.T) {
	const timeout = 50 * time.Millisecond

	executor, err := NewExecutor(Config{Timeout: timeout, Concurrency: 2})
	require.NoError(t, err)
	executor.dial = func(ctx context.Context, _ string) (net.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	start := time.Now()
	outcomes := collect(executor.Run(context.Background(), makeWork(t, 2)))
	elapsed := time.Since(start)

	require.Len(t, outcomes, 2)
	for _, outcome := range outcomes {
		assert.Equal(t, StatusErrored, outcome.Status)
		assert.Equal(t, qerrors.CodeTimeout, qerrors.GetCode(outcome.Reason))
		assert.GreaterOrEqual(t, outcome.Elapsed, timeout-5*time.Millisecond)
	}
	assert.GreaterOrEqual(t, elapsed, timeout,
		"attempts must run the full per-attempt timeout")
}

func TestExecutorCancellation(t *testing.T) {
	executor, err := NewExecutor(testConfig(2))
	require.NoError(t, err)

	started := make(chan struct{}, 64)
	executor.dial = func(ctx context.Context, _ string) (net.Conn, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	outcomes := executor.Run(ctx, makeWork(t, 64))

	// Wait for the first attempts to be in flight, then pull the plug.
	<-started
	cancel()

	collected := collect(outcomes)
	assert.Less(t, len(collected), 64,
		"cancellation must stop admission of pending targets")
	for _, outcome := range collected {
		assert.NotZero(t, outcome.Target.Port, "emitted outcomes stay well formed")
	}
}

func TestExecutorRunsOnce(t *testing.T) {
	executor, err := NewExecutor(testConfig(2))
	require.NoError(t, err)
	executor.dial = func(_ context.Context, _ string) (net.Conn, error) {
		return fakeConn{}, nil
	}

	first := collect(executor.Run(context.Background(), makeWork(t, 4)))
	require.Len(t, first, 4)

	second := executor.Run(context.Background(), makeWork(t, 4))
	_, open := <-second
	assert.False(t, open, "second Run must return a closed stream")
}

func TestExecutorAgainstLoopback(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	openPort := uint16(listener.Addr().(*net.TCPAddr).Port)

	// Grab a second ephemeral port and release it so nothing listens there.
	spare, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedPort := uint16(spare.Addr().(*net.TCPAddr).Port)
	require.NoError(t, spare.Close())

	loopback := netip.MustParseAddr("127.0.0.1")
	work := []targets.Target{
		{Addr: loopback, Port: openPort},
		{Addr: loopback, Port: closedPort},
	}

	executor, err := NewExecutor(testConfig(2))
	require.NoError(t, err)

	byPort := make(map[uint16]Outcome)
	for _, outcome := range collect(executor.Run(context.Background(), work)) {
		byPort[outcome.Target.Port] = outcome
	}

	require.Len(t, byPort, 2)
	assert.Equal(t, StatusOpen, byPort[openPort].Status)
	assert.Equal(t, StatusClosed, byPort[closedPort].Status)
}
