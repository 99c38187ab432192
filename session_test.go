package beacon

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldlogtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tap30/beacon-go/adapters"
)

func TestSessionGate_Code(t *testing.T) {
	gate := NewSessionGate(5, adapters.NewNoOpLoggerAdapter())
	assert.False(t, gate.HasSession())

	first := gate.Code(false)
	require.NotEmpty(t, first)
	assert.Equal(t, first, gate.Code(false))

	parsed, err := uuid.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(1), parsed.Version())

	second := gate.Code(true)
	assert.NotEqual(t, first, second)

	gate.End()
	assert.False(t, gate.HasSession())
	assert.Equal(t, StateNoSession, gate.Snapshot().State)
}

func TestSessionGate_StartLifecycle(t *testing.T) {
	gate := NewSessionGate(5, adapters.NewNoOpLoggerAdapter())

	gate.BeginStart(true)
	snap := gate.Snapshot()
	assert.Equal(t, StateStarting, snap.State)
	assert.True(t, snap.StartOutstanding)

	gate.StartResult(200)
	snap = gate.Snapshot()
	assert.Equal(t, StateActive, snap.State)
	assert.False(t, snap.StartOutstanding)
	assert.True(t, snap.GateOpen)
}

func TestSessionGate_Unauthorized(t *testing.T) {
	gate := NewSessionGate(5, adapters.NewNoOpLoggerAdapter())
	gate.BeginStart(true)
	gate.StartResult(200)

	issue, retry := gate.Unauthorized(1)
	assert.True(t, issue)
	assert.True(t, retry)
	assert.False(t, gate.Admit(PriorityScreen))
	assert.False(t, gate.Admit(PriorityEvent))
	assert.True(t, gate.Admit(PrioritySession))
	assert.Equal(t, StateReauthenticating, gate.Snapshot().State)

	t.Run("only one session start is issued while one is outstanding", func(t *testing.T) {
		issue, retry := gate.Unauthorized(2)
		assert.False(t, issue)
		assert.True(t, retry)
	})

	t.Run("gate reopens on session start success", func(t *testing.T) {
		gate.StartResult(200)
		assert.True(t, gate.Admit(PriorityEvent))
		assert.Zero(t, gate.Snapshot().Unauthorized)
	})
}

func TestSessionGate_RetryBound(t *testing.T) {
	mockLog := ldlogtest.NewMockLog()
	gate := NewSessionGate(5, adapters.NewLDLogLoggerAdapter(mockLog.Loggers))

	for attempt := 1; attempt < 5; attempt++ {
		_, retry := gate.Unauthorized(attempt)
		assert.True(t, retry, "attempt %d", attempt)
	}
	_, retry := gate.Unauthorized(5)
	assert.False(t, retry)
	mockLog.AssertMessageMatch(t, true, ldlog.Warn, "after 5 unauthorized attempts")
}

func TestSessionGate_PreconditionFailed(t *testing.T) {
	mockLog := ldlogtest.NewMockLog()
	gate := NewSessionGate(5, adapters.NewLDLogLoggerAdapter(mockLog.Loggers))

	gate.Unauthorized(1)
	gate.StartResult(412)

	assert.True(t, gate.Admit(PriorityEvent))
	assert.False(t, gate.Snapshot().StartOutstanding)
	mockLog.AssertMessageMatch(t, true, ldlog.Error, "wrong account parameters")
}

func TestSessionGate_FailedStartBacksOff(t *testing.T) {
	now := time.Unix(1700000000, 0)
	gate := NewSessionGate(5, adapters.NewNoOpLoggerAdapter())
	gate.now = func() time.Time { return now }

	gate.Unauthorized(1)
	gate.StartResult(503)

	snap := gate.Snapshot()
	assert.False(t, snap.GateOpen)
	assert.False(t, snap.StartOutstanding)
	assert.Equal(t, 1, snap.StartFailures)
	assert.False(t, gate.RestartDue())

	now = now.Add(3 * time.Second)
	assert.True(t, gate.RestartDue())
	assert.False(t, gate.RestartDue(), "restart is reported once")
}

func TestSessionGate_OfflineDelivered(t *testing.T) {
	gate := NewSessionGate(5, adapters.NewNoOpLoggerAdapter())
	gate.BeginStart(true)
	gate.Unauthorized(1)
	gate.StartResult(StatusNotSent)
	assert.False(t, gate.Admit(PriorityScreen))

	gate.OfflineDelivered("server-code")

	snap := gate.Snapshot()
	assert.Equal(t, "server-code", snap.Code)
	assert.Equal(t, StateActive, snap.State)
	assert.True(t, snap.GateOpen)
	assert.Zero(t, snap.StartFailures)
	assert.False(t, gate.RestartDue(), "a delivered start is not issued again")
}

func TestSessionGate_StoredStartIsIssuedAgain(t *testing.T) {
	now := time.Unix(1700000000, 0)
	gate := NewSessionGate(5, adapters.NewNoOpLoggerAdapter())
	gate.now = func() time.Time { return now }

	gate.BeginStart(true)
	gate.StartResult(http.StatusOK)
	gate.Unauthorized(1)
	gate.StartResult(StatusNotSent)

	snap := gate.Snapshot()
	assert.Equal(t, StateReauthenticating, snap.State)
	assert.False(t, snap.GateOpen)
	assert.Equal(t, 1, snap.StartFailures)
	assert.False(t, gate.RestartDue())

	now = now.Add(3 * time.Second)
	assert.True(t, gate.RestartDue())

	t.Run("should not schedule anything without a start in progress", func(t *testing.T) {
		idle := NewSessionGate(5, adapters.NewNoOpLoggerAdapter())
		idle.StartResult(StatusNotSent)
		assert.Zero(t, idle.Snapshot().StartFailures)
		assert.False(t, idle.RestartDue())
	})
}

func TestStartBackoff(t *testing.T) {
	first := startBackoff(1)
	assert.True(t, first >= time.Second && first < 2*time.Second, "got %v", first)
	assert.True(t, startBackoff(3) >= 4*time.Second)
	assert.True(t, startBackoff(50) <= maxStartBackoff)
}
