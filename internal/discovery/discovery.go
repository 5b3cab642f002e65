// Package discovery provides host liveness checking for qapper. Before a
// scan it can ping each target address with an ICMP echo request and filter
// out hosts that never answer, so wide port ranges are not probed against
// machines that are off.
package discovery

import (
	"context"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/steeric1/qapper/internal/logging"
	"github.com/steeric1/qapper/internal/metrics"
)

const (
	// Default liveness check configuration values.
	defaultConcurrency = 16
	defaultTimeout     = 3 * time.Second

	// IANA protocol numbers for parsing echo replies.
	protoICMP     = 1
	protoIPv6ICMP = 58

	replyBufferSize = 1500
)

// Engine performs ICMP liveness checks.
type Engine struct {
	concurrency int
	timeout     time.Duration
}

// Result represents the liveness check outcome for a single address.
type Result struct {
	Addr  netip.Addr
	Alive bool
	RTT   time.Duration

	// Err is set when the check itself failed (no socket, no
	// privileges), as opposed to the host simply not answering.
	Err error
}

// NewEngine creates a liveness check engine with default settings.
func NewEngine() *Engine {
	return &Engine{
		concurrency: defaultConcurrency,
		timeout:     defaultTimeout,
	}
}

// SetConcurrency sets the number of concurrent liveness checks.
func (e *Engine) SetConcurrency(concurrency int) {
	if concurrency > 0 {
		e.concurrency = concurrency
	}
}

// SetTimeout sets the timeout for an individual liveness check.
func (e *Engine) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		e.timeout = timeout
	}
}

// Filter pings every address and returns those that should be scanned,
// preserving input order. A host is dropped only when it was confirmed
// silent; a failed check (for example, missing raw-socket privileges) keeps
// the address and logs a warning, so filtering can never silently shrink a
// scan by accident.
func (e *Engine) Filter(ctx context.Context, addrs []netip.Addr) []netip.Addr {
	results := make([]Result, len(addrs))

	var wg sync.WaitGroup
	slots := make(chan struct{}, e.concurrency)
	for i, addr := range addrs {
		wg.Add(1)
		go func(i int, addr netip.Addr) {
			defer wg.Done()
			slots <- struct{}{}
			defer func() { <-slots }()
			results[i] = e.Ping(ctx, addr)
		}(i, addr)
	}
	wg.Wait()

	live := make([]netip.Addr, 0, len(addrs))
	for _, result := range results {
		switch {
		case result.Err != nil:
			metrics.Counter(metrics.MetricPingErrors, nil)
			logging.ErrorDiscovery("Liveness check failed, keeping host",
				result.Addr.String(), result.Err)
			live = append(live, result.Addr)
		case result.Alive:
			metrics.Counter(metrics.MetricHostsAlive, nil)
			logging.InfoDiscovery("Host is responding",
				result.Addr.String(), "rtt", result.RTT)
			live = append(live, result.Addr)
		default:
			metrics.Counter(metrics.MetricHostsSilent, nil)
			logging.InfoDiscovery("Host is not responding, skipping",
				result.Addr.String())
		}
	}
	return live
}

// Ping sends a single ICMP echo request and waits for a matching reply
// until the engine timeout elapses.
func (e *Engine) Ping(ctx context.Context, addr netip.Addr) Result {
	result := Result{Addr: addr}

	conn, datagram, err := listenFor(addr)
	if err != nil {
		result.Err = err
		return result
	}
	defer func() { _ = conn.Close() }()

	echo := &icmp.Echo{
		ID:   os.Getpid() & 0xffff,
		Seq:  1,
		Data: []byte("qapper"),
	}
	msg := icmp.Message{Code: 0, Body: echo}
	proto := protoICMP
	if addr.Is4() || addr.Is4In6() {
		msg.Type = ipv4.ICMPTypeEcho
	} else {
		msg.Type = ipv6.ICMPTypeEchoRequest
		proto = protoIPv6ICMP
	}

	encoded, err := msg.Marshal(nil)
	if err != nil {
		result.Err = err
		return result
	}

	deadline := time.Now().Add(e.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		result.Err = err
		return result
	}

	start := time.Now()
	if _, err := conn.WriteTo(encoded, pingDest(addr, datagram)); err != nil {
		result.Err = err
		return result
	}

	reply := make([]byte, replyBufferSize)
	for {
		n, peer, err := conn.ReadFrom(reply)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// Clean timeout: the host is silent.
				return result
			}
			result.Err = err
			return result
		}

		parsed, err := icmp.ParseMessage(proto, reply[:n])
		if err != nil {
			continue
		}
		if parsed.Type != ipv4.ICMPTypeEchoReply && parsed.Type != ipv6.ICMPTypeEchoReply {
			continue
		}
		if !peerMatches(peer, addr) {
			continue
		}

		result.Alive = true
		result.RTT = time.Since(start)
		metrics.Histogram(metrics.MetricPingDuration, result.RTT.Seconds(), nil)
		return result
	}
}

// listenFor opens an ICMP socket for the address family, preferring
// unprivileged datagram sockets and falling back to raw sockets.
func listenFor(addr netip.Addr) (conn *icmp.PacketConn, datagram bool, err error) {
	if addr.Is4() || addr.Is4In6() {
		if conn, err = icmp.ListenPacket("udp4", "0.0.0.0"); err == nil {
			return conn, true, nil
		}
		conn, err = icmp.ListenPacket("ip4:icmp", "0.0.0.0")
		return conn, false, err
	}

	if conn, err = icmp.ListenPacket("udp6", "::"); err == nil {
		return conn, true, nil
	}
	conn, err = icmp.ListenPacket("ip6:ipv6-icmp", "::")
	return conn, false, err
}

// pingDest builds the destination address matching the socket type.
func pingDest(addr netip.Addr, datagram bool) net.Addr {
	ip := net.IP(addr.AsSlice())
	if datagram {
		return &net.UDPAddr{IP: ip}
	}
	return &net.IPAddr{IP: ip}
}

// peerMatches reports whether a reply came from the pinged address.
func peerMatches(peer net.Addr, addr netip.Addr) bool {
	var ip net.IP
	switch p := peer.(type) {
	case *net.UDPAddr:
		ip = p.IP
	case *net.IPAddr:
		ip = p.IP
	default:
		return false
	}
	return ip.Equal(net.IP(addr.AsSlice()))
}
