// Package zeroconf advertises the announcement API as an mDNS/DNS-SD
// service so LAN clients can find it without configuration.
package zeroconf

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	serviceType = "_lms-announce._tcp"
	apiPath     = "/api"
)

// Service manages mDNS service registration.
type Service struct {
	name  string
	port  int
	zones []string
}

// New creates a service that advertises the API on port. zones are listed
// in the TXT record.
func New(name string, port int, zones []string) *Service {
	return &Service{name: name, port: port, zones: zones}
}

// TXT returns the TXT records published with the service.
func (s *Service) TXT() []string {
	return []string{
		"path=" + apiPath,
		"zones=" + strconv.Itoa(len(s.zones)),
		"zone_ids=" + strings.Join(s.zones, ","),
	}
}

// Start registers the mDNS service and blocks until ctx is cancelled, at which
// point it shuts down the server cleanly.
func (s *Service) Start(ctx context.Context) error {
	txt := s.TXT()
	server, err := zeroconf.Register(s.name, serviceType, "local.", s.port, txt, nil)
	if err != nil {
		return fmt.Errorf("zeroconf register: %w", err)
	}
	slog.Info("zeroconf: registered mDNS service", "name", s.name, "port", s.port, "txt", txt)

	<-ctx.Done()

	server.Shutdown()
	slog.Info("zeroconf: mDNS service unregistered")
	return nil
}

// Port extracts the TCP port from a listen address such as ":8095".
func Port(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("zeroconf: listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("zeroconf: invalid port in %q", addr)
	}
	return port, nil
}
