package beacon

import (
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle of the collector session.
type SessionState int

const (
	StateNoSession SessionState = iota
	StateStarting
	StateActive
	StateReauthenticating
)

func (s SessionState) String() string {
	switch s {
	case StateNoSession:
		return "no-session"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateReauthenticating:
		return "reauthenticating"
	}
	return "unknown"
}

const maxStartBackoff = 5 * time.Minute

// SessionSnapshot is a read-only copy of the gate state.
type SessionSnapshot struct {
	State            SessionState
	Code             string
	GateOpen         bool
	StartOutstanding bool
	Unauthorized     int
	StartFailures    int
}

// SessionGate owns the session code and decides whether lower-priority requests
// may be sent. Every method is safe for concurrent use.
type SessionGate struct {
	mu sync.Mutex

	state            SessionState
	code             string
	gateOpen         bool
	startOutstanding bool
	unauthorized     int
	startFailures    int
	restartAt        time.Time

	maxRetries int
	logger     LoggerAdapter
	now        func() time.Time
}

// NewSessionGate creates an open gate with no session.
func NewSessionGate(maxRetries int, logger LoggerAdapter) *SessionGate {
	return &SessionGate{
		gateOpen:   true,
		maxRetries: maxRetries,
		logger:     logger,
		now:        time.Now,
	}
}

// Code returns the session code, generating a time-based one when generate is set
// or no code exists yet.
func (g *SessionGate) Code(generate bool) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.codeLocked(generate)
}

func (g *SessionGate) codeLocked(generate bool) string {
	if generate || g.code == "" {
		id, err := uuid.NewUUID()
		if err != nil {
			id = uuid.New()
		}
		g.code = id.String()
	}
	return g.code
}

// Current returns the session code without generating one.
func (g *SessionGate) Current() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.code
}

// HasSession reports whether a session code exists.
func (g *SessionGate) HasSession() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.code != ""
}

// BeginStart records a session start being queued and returns its code.
func (g *SessionGate) BeginStart(generate bool) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateActive || g.state == StateReauthenticating {
		g.state = StateReauthenticating
	} else {
		g.state = StateStarting
	}
	g.startOutstanding = true
	g.restartAt = time.Time{}
	return g.codeLocked(generate)
}

// End clears the session.
func (g *SessionGate) End() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.code = ""
	g.state = StateNoSession
}

// Expire clears the session code after the collector rejected it. The next start
// generates a new one.
func (g *SessionGate) Expire() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.code = ""
	if g.state == StateActive {
		g.state = StateReauthenticating
	}
}

// Unauthorized handles a 401 for a request that has been sent attempt times.
// It closes the gate and reports whether the caller must issue a session start
// (only when none is outstanding) and whether the request may be sent again.
func (g *SessionGate) Unauthorized(attempt int) (issueStart, retry bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.unauthorized++
	g.gateOpen = false
	if !g.startOutstanding {
		issueStart = true
		g.startOutstanding = true
		g.state = StateReauthenticating
	}
	retry = attempt < g.maxRetries
	if !retry {
		g.logger.Warn("Dropping request after %d unauthorized attempts", attempt)
	}
	return issueStart, retry
}

// StartResult applies the outcome of a session start.
func (g *SessionGate) StartResult(status int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.startOutstanding = false
	switch status {
	case http.StatusOK:
		g.state = StateActive
		g.gateOpen = true
		g.unauthorized = 0
		g.startFailures = 0
		g.restartAt = time.Time{}
	case http.StatusPreconditionFailed:
		g.logger.Error("Failed to start session on server due to wrong account parameters")
		g.gateOpen = true
	case StatusNotSent:
		// stored with the offline cache; OfflineDelivered completes it unless the
		// restart comes due first
		if g.state == StateStarting || g.state == StateReauthenticating {
			delay := g.scheduleRestartLocked()
			g.logger.Debug("Session start was stored offline. Issuing it again in %v", delay)
		}
	default:
		delay := g.scheduleRestartLocked()
		g.logger.Error("Failed to start session on server, status %d. Retrying in %v", status, delay)
	}
}

func (g *SessionGate) scheduleRestartLocked() time.Duration {
	g.startFailures++
	delay := startBackoff(g.startFailures)
	g.restartAt = g.now().Add(delay)
	return delay
}

// OfflineDelivered completes a session start that travelled in an offline batch.
func (g *SessionGate) OfflineDelivered(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if code != "" {
		g.code = code
	}
	if g.startOutstanding || g.code == "" {
		return
	}
	if g.state == StateStarting || g.state == StateReauthenticating {
		g.state = StateActive
		g.gateOpen = true
		g.unauthorized = 0
		g.startFailures = 0
		g.restartAt = time.Time{}
	}
}

// RestartDue reports, once, that a failed session start should be issued again.
func (g *SessionGate) RestartDue() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.restartAt.IsZero() || g.startOutstanding || g.now().Before(g.restartAt) {
		return false
	}
	g.restartAt = time.Time{}
	return true
}

// Admit reports whether a request of priority p may be sent now.
func (g *SessionGate) Admit(p Priority) bool {
	if p == PrioritySession {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gateOpen
}

// SetGate opens or closes the lower-priority gate directly.
func (g *SessionGate) SetGate(open bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gateOpen = open
}

func (g *SessionGate) Snapshot() SessionSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return SessionSnapshot{
		State:            g.state,
		Code:             g.code,
		GateOpen:         g.gateOpen,
		StartOutstanding: g.startOutstanding,
		Unauthorized:     g.unauthorized,
		StartFailures:    g.startFailures,
	}
}

func startBackoff(failures int) time.Duration {
	shift := failures - 1
	if shift > 8 {
		shift = 8
	}
	backoff := time.Duration(1<<shift) * time.Second
	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond
	if backoff+jitter > maxStartBackoff {
		return maxStartBackoff
	}
	return backoff + jitter
}
