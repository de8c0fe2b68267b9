package netprobe

import (
	"context"
	"net"
	"time"

	"skilltest/pkg/logging"
)

// Default polling parameters.
const (
	DefaultPortInterval = 200 * time.Millisecond
	DefaultDialTimeout  = 500 * time.Millisecond
	DefaultAPIInterval  = 300 * time.Millisecond
)

// Prober polls endpoints. The zero value uses the defaults.
type Prober struct {
	Interval    time.Duration
	DialTimeout time.Duration
}

func (p Prober) interval() time.Duration {
	if p.Interval > 0 {
		return p.Interval
	}
	return DefaultPortInterval
}

func (p Prober) dialTimeout() time.Duration {
	if p.DialTimeout > 0 {
		return p.DialTimeout
	}
	return DefaultDialTimeout
}

// WaitForPort polls a TCP connect to the loopback port until it succeeds or
// timeout elapses. It never returns an error; false means not reachable.
func (p Prober) WaitForPort(ctx context.Context, port int, timeout time.Duration) bool {
	addr := Address(port)
	dialer := net.Dialer{Timeout: p.dialTimeout()}
	return Poll(ctx, p.interval(), timeout, func(ctx context.Context) bool {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	})
}

// WaitForPortWithRetry waits for the primary window and, if the port is
// still closed, once more for the extended window. Slow cold starts of a
// job listener are common enough to warrant the second chance.
func (p Prober) WaitForPortWithRetry(ctx context.Context, port int, primary, extended time.Duration) bool {
	if p.WaitForPort(ctx, port, primary) {
		return true
	}
	if extended <= 0 || ctx.Err() != nil {
		return false
	}
	logging.Debug("Probe", "Port %d not ready after %s, retrying for %s", port, primary, extended)
	return p.WaitForPort(ctx, port, extended)
}

// Poll calls probe every interval until it reports true, timeout elapses or
// ctx is done. The first attempt is immediate.
func Poll(ctx context.Context, interval, timeout time.Duration, probe func(context.Context) bool) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if probe(ctx) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
