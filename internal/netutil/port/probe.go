package port

import (
	"context"
	"net"
	"strconv"
	"time"
)

const (
	// DefaultProbeHost is the host probed for port occupancy.
	DefaultProbeHost = "localhost"
	// defaultProbeTimeout bounds a single connect attempt.
	defaultProbeTimeout = 500 * time.Millisecond
)

// Prober reports whether something accepts connections on a port.
type Prober interface {
	InUse(ctx context.Context, port uint16) bool
}

// TCPProber probes ports by connecting to them.
type TCPProber struct {
	// Host defaults to DefaultProbeHost.
	Host string
	// Timeout defaults to 500ms.
	Timeout time.Duration
}

// InUse reports whether a TCP connection to the port succeeds.
func (p TCPProber) InUse(ctx context.Context, port uint16) bool {
	host := p.Host
	if host == "" {
		host = DefaultProbeHost
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	dialer := net.Dialer{Timeout: timeout}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return false
	}

	_ = conn.Close()

	return true
}
