package adapters

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync/atomic"
	"time"
)

// ConnectivityAdapter reports whether the collector is reachable.
// Implement this interface to plug in the host platform's network state.
type ConnectivityAdapter interface {
	// IsConnected probes the network. It must return promptly when ctx is done.
	IsConnected(ctx context.Context) bool
}

// DialConnectivityAdapter reports connectivity by opening a TCP connection to the
// collector host.
type DialConnectivityAdapter struct {
	address string
	dialer  net.Dialer
}

// Ensure DialConnectivityAdapter implements ConnectivityAdapter interface
var _ ConnectivityAdapter = (*DialConnectivityAdapter)(nil)

// NewDialConnectivityAdapter derives host and port from serverURL. Ports default to
// 80 and 443 by scheme.
func NewDialConnectivityAdapter(serverURL string, timeout time.Duration) (*DialConnectivityAdapter, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server url: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("server url %q has no host", serverURL)
	}

	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}

	return &DialConnectivityAdapter{
		address: net.JoinHostPort(u.Hostname(), port),
		dialer:  net.Dialer{Timeout: timeout},
	}, nil
}

func (d *DialConnectivityAdapter) IsConnected(ctx context.Context) bool {
	conn, err := d.dialer.DialContext(ctx, "tcp", d.address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// StaticConnectivityAdapter reports a state set by the host, for platforms that
// already receive reachability callbacks.
type StaticConnectivityAdapter struct {
	connected atomic.Bool
}

// Ensure StaticConnectivityAdapter implements ConnectivityAdapter interface
var _ ConnectivityAdapter = (*StaticConnectivityAdapter)(nil)

// NewStaticConnectivityAdapter creates an adapter reporting connected.
func NewStaticConnectivityAdapter(connected bool) *StaticConnectivityAdapter {
	s := &StaticConnectivityAdapter{}
	s.connected.Store(connected)
	return s
}

// Set changes the reported state.
func (s *StaticConnectivityAdapter) Set(connected bool) {
	s.connected.Store(connected)
}

func (s *StaticConnectivityAdapter) IsConnected(context.Context) bool {
	return s.connected.Load()
}
