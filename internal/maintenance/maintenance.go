// Package maintenance runs background housekeeping for the daemon. It
// watches whether the media server is reachable so /api/health can report
// it and operators see outages in the log.
package maintenance

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"time"
)

const (
	defaultInterval = 30 * time.Second
	dialTimeout     = 3 * time.Second
)

// dialFunc is a variable so tests can inject a mock dialer.
var dialFunc = func(network, address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout(network, address, timeout)
}

// Service checks media server reachability periodically.
type Service struct {
	address  string
	interval time.Duration
	onChange func(bool) // called when reachability changes
	online   atomic.Bool
	checked  atomic.Bool
}

// New creates a service that dials host:port every interval. A zero
// interval uses the default.
func New(host string, port int, interval time.Duration, onChange func(bool)) *Service {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		address:  net.JoinHostPort(host, strconv.Itoa(port)),
		interval: interval,
		onChange: onChange,
	}
}

// Online reports the result of the last check. It is false until the first
// check completes.
func (s *Service) Online() bool {
	return s.online.Load()
}

// Start checks immediately and then once per interval. It blocks until ctx
// is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.check()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check()
		}
	}
}

func (s *Service) check() {
	conn, err := dialFunc("tcp", s.address, dialTimeout)
	online := err == nil
	if conn != nil {
		conn.Close()
	}

	prev := s.online.Swap(online)
	first := !s.checked.Swap(true)
	if first || prev != online {
		if online {
			slog.Info("maintenance: media server reachable", "addr", s.address)
		} else {
			slog.Warn("maintenance: media server unreachable", "addr", s.address, "err", err)
		}
		if s.onChange != nil {
			s.onChange(online)
		}
	}
}
