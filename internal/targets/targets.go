// Package targets builds the scan work set. It resolves address inputs into
// IP addresses and expands them against a port set into the full sequence of
// (address, port) pairs to probe.
package targets

import (
	"net"
	"net/netip"
	"strconv"

	"github.com/steeric1/qapper/internal/errors"
	"github.com/steeric1/qapper/internal/ports"
)

// Target is a single probe unit: one address and one port. It is a value
// type with no identity beyond its fields.
type Target struct {
	Addr netip.Addr
	Port uint16
}

// String renders the target as a dialable host:port, bracketing IPv6
// addresses.
func (t Target) String() string {
	return net.JoinHostPort(t.Addr.String(), strconv.Itoa(int(t.Port)))
}

// Expand computes the Cartesian product of the address sequence and the port
// set. The result covers every pair exactly once, iterating addresses in
// input order and ports in ascending order. It fails with CodeNoTargets when
// either input is empty.
func Expand(addrs []netip.Addr, set ports.Set) ([]Target, error) {
	if len(addrs) == 0 {
		return nil, errors.NewScanError(errors.CodeNoTargets,
			"no addresses to scan")
	}
	if len(set) == 0 {
		return nil, errors.NewScanError(errors.CodeNoTargets,
			"no ports to scan")
	}

	work := make([]Target, 0, len(addrs)*len(set))
	for _, addr := range addrs {
		for _, port := range set {
			work = append(work, Target{Addr: addr, Port: port})
		}
	}
	return work, nil
}
