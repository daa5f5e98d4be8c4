package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocklinehq/stockline/pkg/api"
)

func TestMonitor_HeartbeatOnce(t *testing.T) {
	r := NewRegistry(setupTestLogger())
	m := NewMonitor(setupTestLogger(), r, testSettings())

	c, ft := newTestConn(testSettings())
	defer c.Close("")
	r.Register(c)

	before := c.LastActivity()
	time.Sleep(5 * time.Millisecond)

	now := time.Now().UTC()
	m.heartbeatOnce(now)

	msgs := ft.waitMessages(t, 1)
	require.Len(t, msgs, 1)
	assert.Equal(t, api.KindHeartbeat, msgs[0].Kind)

	var hb api.HeartbeatPayload
	require.NoError(t, msgs[0].DecodePayload(&hb))
	assert.WithinDuration(t, now, hb.Timestamp, time.Second)

	assert.True(t, c.LastActivity().After(before), "heartbeat must bump activity")
}

func TestMonitor_HeartbeatSkipsClosedConn(t *testing.T) {
	r := NewRegistry(setupTestLogger())
	m := NewMonitor(setupTestLogger(), r, testSettings())

	c, ft := newTestConn(testSettings())
	r.Register(c)
	c.Close("gone")

	// Must not panic or error; the closed connection is left to normal
	// close handling.
	m.heartbeatOnce(time.Now().UTC())
	assert.Empty(t, ft.messages(t))
}

func TestMonitor_SweepEvictsIdleConnections(t *testing.T) {
	settings := testSettings()
	settings.IdleTimeout = 10 * time.Minute

	r := NewRegistry(setupTestLogger())
	m := NewMonitor(setupTestLogger(), r, settings)

	idle, _ := newTestConn(settings)
	active, _ := newTestConn(settings)
	idle.ID = "idle"
	active.ID = "active"
	r.Register(idle)
	r.Register(active)

	// Backdate the idle connection past the threshold.
	idle.lastActivity.Store(time.Now().Add(-time.Hour).UnixNano())

	m.sweepOnce(time.Now().UTC())

	_, ok := r.Get("idle")
	assert.False(t, ok, "idle connection must be removed")
	_, ok = r.Get("active")
	assert.True(t, ok, "active connection must survive")

	assert.True(t, idle.Closed())
	assert.ErrorIs(t, idle.Send(api.KindHeartbeat, api.HeartbeatPayload{}), ErrConnClosed)
}

func TestMonitor_StartStop(t *testing.T) {
	settings := testSettings()
	settings.HeartbeatInterval = time.Millisecond
	settings.SweepInterval = time.Millisecond

	r := NewRegistry(setupTestLogger())
	m := NewMonitor(setupTestLogger(), r, settings)

	c, ft := newTestConn(settings)
	defer c.Close("")
	r.Register(c)

	m.Start()
	ft.waitMessages(t, 2)
	m.Stop()

	// Stop must be clean even when called with loops mid-tick.
	n := len(ft.messages(t))
	time.Sleep(10 * time.Millisecond)
	assert.InDelta(t, n, len(ft.messages(t)), 1, "loops must stop ticking after Stop")
}
