package beacon

import (
	"context"
	"sync"
	"time"
)

// ConnectivityMonitor is the single source of truth for whether the collector is
// reachable. Listeners run only on real transitions.
type ConnectivityMonitor struct {
	mu        sync.Mutex
	connected bool
	listeners []func(connected bool)
}

// NewConnectivityMonitor starts from initial as the baseline; observing the same
// state again does not notify anyone.
func NewConnectivityMonitor(initial bool) *ConnectivityMonitor {
	return &ConnectivityMonitor{connected: initial}
}

func (m *ConnectivityMonitor) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// OnChange registers fn for every later transition.
func (m *ConnectivityMonitor) OnChange(fn func(connected bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Observe records the current state and reports whether it was a transition.
func (m *ConnectivityMonitor) Observe(connected bool) bool {
	m.mu.Lock()
	if m.connected == connected {
		m.mu.Unlock()
		return false
	}
	m.connected = connected
	listeners := make([]func(bool), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(connected)
	}
	return true
}

// Poll probes adapter every interval until ctx is done.
func (m *ConnectivityMonitor) Poll(ctx context.Context, adapter ConnectivityAdapter, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, interval)
			m.Observe(adapter.IsConnected(probeCtx))
			cancel()
		}
	}
}
