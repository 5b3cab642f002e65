package scanning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/steeric1/qapper/internal/errors"
)

func TestAdmissionAcquireRelease(t *testing.T) {
	gate := newAdmission(2)
	ctx := context.Background()

	require.NoError(t, gate.Acquire(ctx, "a"))
	require.NoError(t, gate.Acquire(ctx, "b"))
	assert.Equal(t, 2, gate.Active())
	assert.Equal(t, 0, gate.AvailableSlots())

	gate.Release("a")
	assert.Equal(t, 1, gate.Active())
	assert.Equal(t, 1, gate.AvailableSlots())

	gate.Release("b")
	assert.Equal(t, 0, gate.Active())
	assert.Equal(t, 2, gate.Peak())
}

func TestAdmissionBlocksAtCapacity(t *testing.T) {
	gate := newAdmission(1)
	require.NoError(t, gate.Acquire(context.Background(), "first"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := gate.Acquire(ctx, "second")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, gate.Active(), "blocked acquire must not register the target")
}

func TestAdmissionUnblocksOnRelease(t *testing.T) {
	gate := newAdmission(1)
	require.NoError(t, gate.Acquire(context.Background(), "first"))

	acquired := make(chan error, 1)
	go func() {
		acquired <- gate.Acquire(context.Background(), "second")
	}()

	time.Sleep(10 * time.Millisecond)
	gate.Release("first")

	select {
	case err := <-acquired:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("release did not unblock the waiting acquire")
	}
	assert.Equal(t, 1, gate.Active())
}

func TestAdmissionReleaseUnknownTarget(t *testing.T) {
	gate := newAdmission(1)
	gate.Release("never-acquired")
	assert.Equal(t, 0, gate.Active())
	assert.NoError(t, gate.Acquire(context.Background(), "a"))
}

func TestAdmissionClosed(t *testing.T) {
	gate := newAdmission(1)
	gate.Close()

	err := gate.Acquire(context.Background(), "a")
	require.Error(t, err)
	assert.Equal(t, qerrors.CodeCanceled, qerrors.GetCode(err))

	// Closing twice is harmless.
	gate.Close()
}

func TestAdmissionPeakTracksHighWater(t *testing.T) {
	gate := newAdmission(4)
	ctx := context.Background()

	require.NoError(t, gate.Acquire(ctx, "a"))
	require.NoError(t, gate.Acquire(ctx, "b"))
	require.NoError(t, gate.Acquire(ctx, "c"))
	gate.Release("a")
	gate.Release("b")
	require.NoError(t, gate.Acquire(ctx, "d"))

	assert.Equal(t, 3, gate.Peak())
	assert.Equal(t, 2, gate.Active())
}
