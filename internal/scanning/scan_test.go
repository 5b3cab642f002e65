package scanning

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/steeric1/qapper/internal/errors"
	"github.com/steeric1/qapper/internal/targets"
)

func TestRunCollectsSummary(t *testing.T) {
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

	loopback := netip.MustParseAddr("127.0.0.1")
	openPort := uint16(listener.Addr().(*net.TCPAddr).Port)
	work := []targets.Target{{Addr: loopback, Port: openPort}}

	summary, err := Run(context.Background(), testConfig(4), work)
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Equal(t, 1, summary.Targets)
	assert.Equal(t, 1, summary.OpenCount)
	assert.NotEqual(t, summary.RunID.String(), "", "run carries an identifier")
	assert.Positive(t, summary.Duration)

	host := summary.Host(loopback)
	require.NotNil(t, host)
	assert.True(t, host.Open.Contains(openPort))
}

func TestRunInvalidConfig(t *testing.T) {
	summary, err := Run(context.Background(), Config{}, nil)
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Equal(t, qerrors.CodeConfiguration, qerrors.GetCode(err))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	work := makeWork(t, 8)
	summary, err := Run(ctx, Config{Timeout: time.Second, Concurrency: 2}, work)
	require.Error(t, err)
	require.NotNil(t, summary, "partial summary survives cancellation")
	assert.Equal(t, qerrors.CodeCanceled, qerrors.GetCode(err))
	assert.LessOrEqual(t, summary.Targets, len(work))
}
