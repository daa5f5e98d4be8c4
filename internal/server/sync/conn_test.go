package sync

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocklinehq/stockline/pkg/api"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors in tests
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// testSettings removes pacing and shrinks timers so tests never sleep on
// production intervals.
func testSettings() *Settings {
	s := DefaultSettings()
	s.DatasetPacing = 0
	s.HeartbeatInterval = time.Hour
	s.SweepInterval = time.Hour
	return s
}

// fakeTransport is an in-memory transport double. Writes are recorded;
// reads block until fed or the transport closes.
type fakeTransport struct {
	mu       sync.Mutex
	frames   [][]byte
	writeErr error

	readCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		readCh: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.readCh:
		return 1, data, nil
	case <-f.done:
		return 0, nil, net.ErrClosed
	}
}

func (f *fakeTransport) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) WriteControl(messageType int, data []byte, deadline time.Time) error {
	return nil
}

func (f *fakeTransport) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

func (f *fakeTransport) setWriteErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// feed queues an inbound frame for ReadMessage.
func (f *fakeTransport) feed(t *testing.T, kind api.MessageKind, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(api.Message{Kind: kind, Payload: raw, IssuedAt: time.Now()})
	require.NoError(t, err)
	f.readCh <- data
}

// messages decodes all recorded frames.
func (f *fakeTransport) messages(t *testing.T) []api.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := make([]api.Message, 0, len(f.frames))
	for _, frame := range f.frames {
		var msg api.Message
		require.NoError(t, json.Unmarshal(frame, &msg))
		msgs = append(msgs, msg)
	}
	return msgs
}

// waitMessages polls until at least n frames have been written.
func (f *fakeTransport) waitMessages(t *testing.T, n int) []api.Message {
	t.Helper()
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.frames) >= n
	}, 2*time.Second, time.Millisecond)
	return f.messages(t)
}

func newTestConn(settings *Settings) (*Conn, *fakeTransport) {
	ft := newFakeTransport()
	c := newConn("conn-1", "alice", ft, setupTestLogger(), settings)
	go c.writeLoop()
	return c, ft
}

func TestConn_SequenceNumbersAreGapFree(t *testing.T) {
	c, ft := newTestConn(testSettings())
	defer c.Close("")

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Send(api.KindHeartbeat, api.HeartbeatPayload{Timestamp: time.Now()}))
	}

	msgs := ft.waitMessages(t, 10)
	for i, msg := range msgs {
		assert.Equal(t, uint64(i), msg.SequenceNumber)
	}
}

func TestConn_CompressionAppliedOnlyAboveThreshold(t *testing.T) {
	tests := []struct {
		name         string
		supports     bool
		payloadBytes int // serialized payload size
		want         bool
	}{
		{"capable and large", true, 2048, true},
		{"capable and just above threshold", true, 1025, true},
		{"capable and exactly threshold", true, 1024, false},
		{"capable and small", true, 16, false},
		{"incapable and large", false, 2048, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ft := newTestConn(testSettings())
			defer c.Close("")

			if tt.supports {
				c.SetCapabilities(api.Capabilities{SupportsCompression: true})
			}

			// A JSON string payload of n-2 characters serializes to
			// exactly n bytes (two quotes).
			payload := strings.Repeat("a", tt.payloadBytes-2)
			require.NoError(t, c.Send(api.KindSyncResponse, payload))

			msg := ft.waitMessages(t, 1)[0]
			assert.Equal(t, tt.want, msg.Compressed)

			var got string
			require.NoError(t, msg.DecodePayload(&got))
			assert.Equal(t, payload, got)
		})
	}
}

func TestConn_SendAfterCloseIsNoOp(t *testing.T) {
	c, ft := newTestConn(testSettings())

	c.Close("test over")
	err := c.Send(api.KindHeartbeat, api.HeartbeatPayload{Timestamp: time.Now()})
	assert.ErrorIs(t, err, ErrConnClosed)
	assert.Empty(t, ft.messages(t))
}

func TestConn_WriteFailureClosesConnection(t *testing.T) {
	c, ft := newTestConn(testSettings())
	ft.setWriteErr(errors.New("broken pipe"))

	require.NoError(t, c.Send(api.KindHeartbeat, api.HeartbeatPayload{Timestamp: time.Now()}))

	require.Eventually(t, c.Closed, 2*time.Second, time.Millisecond)
	assert.ErrorIs(t, c.Send(api.KindHeartbeat, api.HeartbeatPayload{Timestamp: time.Now()}), ErrConnClosed)
}

func TestConn_CapabilitiesDefaultOff(t *testing.T) {
	c, _ := newTestConn(testSettings())
	defer c.Close("")

	caps := c.Capabilities()
	assert.False(t, caps.SupportsCompression)
	assert.False(t, caps.IsElectronHost)
	assert.Nil(t, caps.DeviceInfo)
}

func TestConn_SetCapabilitiesIsIdempotent(t *testing.T) {
	c, _ := newTestConn(testSettings())
	defer c.Close("")

	caps := api.Capabilities{SupportsCompression: true, IsElectronHost: true}
	c.SetCapabilities(caps)
	first := c.Capabilities()
	c.SetCapabilities(caps)

	assert.Equal(t, first, c.Capabilities())
}
