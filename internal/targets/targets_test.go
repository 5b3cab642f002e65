package targets

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/steeric1/qapper/internal/errors"
	"github.com/steeric1/qapper/internal/ports"
)

func TestTargetString(t *testing.T) {
	tests := []struct {
		name   string
		target Target
		want   string
	}{
		{
			name:   "ipv4",
			target: Target{Addr: netip.MustParseAddr("192.0.2.1"), Port: 80},
			want:   "192.0.2.1:80",
		},
		{
			name:   "ipv6 is bracketed",
			target: Target{Addr: netip.MustParseAddr("::1"), Port: 443},
			want:   "[::1]:443",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.target.String())
		})
	}
}

func TestExpand(t *testing.T) {
	addrs := []netip.Addr{
		netip.MustParseAddr("192.0.2.1"),
		netip.MustParseAddr("192.0.2.2"),
	}
	set := ports.Set{22, 80, 443}

	work, err := Expand(addrs, set)
	require.NoError(t, err)
	require.Len(t, work, len(addrs)*len(set))

	// Addresses iterate in input order, ports ascending within each address.
	assert.Equal(t, Target{Addr: addrs[0], Port: 22}, work[0])
	assert.Equal(t, Target{Addr: addrs[0], Port: 443}, work[2])
	assert.Equal(t, Target{Addr: addrs[1], Port: 22}, work[3])
	assert.Equal(t, Target{Addr: addrs[1], Port: 443}, work[5])

	seen := make(map[Target]struct{}, len(work))
	for _, target := range work {
		_, dup := seen[target]
		assert.False(t, dup, "pair %s covered more than once", target)
		seen[target] = struct{}{}
	}
}

func TestExpandEmptyInputs(t *testing.T) {
	addrs := []netip.Addr{netip.MustParseAddr("192.0.2.1")}

	work, err := Expand(nil, ports.Set{80})
	require.Error(t, err)
	assert.Nil(t, work)
	assert.Equal(t, qerrors.CodeNoTargets, qerrors.GetCode(err))

	work, err = Expand(addrs, ports.Set{})
	require.Error(t, err)
	assert.Nil(t, work)
	assert.Equal(t, qerrors.CodeNoTargets, qerrors.GetCode(err))
}

func TestResolveLiterals(t *testing.T) {
	r := NewResolver()

	addrs, err := r.Resolve([]string{"192.0.2.1", "::1", "192.0.2.1"})
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{
		netip.MustParseAddr("192.0.2.1"),
		netip.MustParseAddr("::1"),
	}, addrs, "duplicates drop, first occurrence order kept")
}

func TestResolveEmptyDefaultsToLoopback(t *testing.T) {
	r := NewResolver()

	addrs, err := r.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("127.0.0.1")}, addrs)
}

func TestResolveBadHostname(t *testing.T) {
	r := &Resolver{confPath: "/nonexistent/resolv.conf", timeout: defaultQueryTimeout}

	addrs, err := r.Resolve([]string{"host.invalid"})
	require.Error(t, err)
	assert.Nil(t, addrs)
	assert.Equal(t, qerrors.CodeResolveFailed, qerrors.GetCode(err))
}
