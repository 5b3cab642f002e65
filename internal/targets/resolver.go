package targets

import (
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"

	"github.com/steeric1/qapper/internal/errors"
	"github.com/steeric1/qapper/internal/logging"
)

const (
	defaultResolvConf   = "/etc/resolv.conf"
	defaultQueryTimeout = 3 * time.Second
)

// loopbackDefault is the address scanned when no addresses are given.
var loopbackDefault = netip.MustParseAddr("127.0.0.1")

// Resolver turns address inputs into IP addresses. Literals are parsed
// directly; anything else is looked up as a hostname (A and AAAA records)
// against the system resolver configuration.
type Resolver struct {
	confPath string
	timeout  time.Duration
}

// NewResolver creates a resolver using the system resolver configuration.
func NewResolver() *Resolver {
	return &Resolver{
		confPath: defaultResolvConf,
		timeout:  defaultQueryTimeout,
	}
}

// SetTimeout sets the per-query timeout for hostname lookups.
func (r *Resolver) SetTimeout(timeout time.Duration) {
	r.timeout = timeout
}

// Resolve maps each input to one or more addresses, preserving input order
// and dropping duplicates. An empty input resolves to the loopback default
// so a bare port specification scans the local host.
func (r *Resolver) Resolve(inputs []string) ([]netip.Addr, error) {
	if len(inputs) == 0 {
		return []netip.Addr{loopbackDefault}, nil
	}

	seen := make(map[netip.Addr]struct{})
	addrs := make([]netip.Addr, 0, len(inputs))
	add := func(addr netip.Addr) {
		if _, dup := seen[addr]; dup {
			return
		}
		seen[addr] = struct{}{}
		addrs = append(addrs, addr)
	}

	for _, input := range inputs {
		if addr, err := netip.ParseAddr(input); err == nil {
			add(addr)
			continue
		}

		resolved, err := r.lookup(input)
		if err != nil {
			return nil, err
		}
		for _, addr := range resolved {
			add(addr)
		}
	}
	return addrs, nil
}

// lookup queries A and AAAA records for a hostname.
func (r *Resolver) lookup(name string) ([]netip.Addr, error) {
	conf, err := dns.ClientConfigFromFile(r.confPath)
	if err != nil {
		return nil, errors.WrapScanErrorWithTarget(errors.CodeResolveFailed,
			"cannot read resolver configuration", name, err)
	}
	if len(conf.Servers) == 0 {
		return nil, errors.NewScanErrorWithTarget(errors.CodeResolveFailed,
			"no nameservers configured", name)
	}

	client := &dns.Client{Timeout: r.timeout}
	var addrs []netip.Addr
	var lastErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(name), qtype)
		msg.RecursionDesired = true

		for _, server := range conf.Servers {
			in, _, err := client.Exchange(msg, net.JoinHostPort(server, conf.Port))
			if err != nil {
				lastErr = err
				continue
			}
			for _, rr := range in.Answer {
				switch record := rr.(type) {
				case *dns.A:
					if addr, ok := netip.AddrFromSlice(record.A.To4()); ok {
						addrs = append(addrs, addr)
					}
				case *dns.AAAA:
					if addr, ok := netip.AddrFromSlice(record.AAAA.To16()); ok {
						addrs = append(addrs, addr)
					}
				}
			}
			break
		}
	}

	if len(addrs) == 0 {
		logging.Warn("Hostname did not resolve to any address",
			"hostname", name, "error", lastErr)
		return nil, errors.WrapScanErrorWithTarget(errors.CodeResolveFailed,
			"hostname did not resolve to any address", name, lastErr)
	}

	logging.Debug("Resolved hostname", "hostname", name, "addresses", len(addrs))
	return addrs, nil
}
