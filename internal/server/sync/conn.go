package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stocklinehq/stockline/pkg/api"
)

// ErrConnClosed is returned by Send once a connection is dead; callers
// treat it as a signal to stop sending, not as a protocol error.
var ErrConnClosed = errors.New("connection closed")

// transport is the subset of *websocket.Conn the sync service uses,
// abstracted so tests can substitute an in-memory fake.
type transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn is one live sync connection. All outbound traffic funnels through a
// buffered queue drained by a single writer goroutine, which assigns the
// per-connection sequence numbers: 0, 1, 2, … in exact write order, no
// gaps, no repeats.
type Conn struct {
	// ID is unique for the process lifetime and never reused.
	ID string
	// User is the authenticated username that opened the connection.
	User string
	// ConnectedAt is when the transport was accepted.
	ConnectedAt time.Time

	ws       transport
	logger   *slog.Logger
	settings *Settings

	out  chan api.Message
	done chan struct{}

	closeOnce sync.Once
	dead      atomic.Bool
	syncing   atomic.Bool
	// lastActivity is unix nanoseconds, updated on every inbound message
	// and every heartbeat send.
	lastActivity atomic.Int64

	mu   sync.Mutex
	caps api.Capabilities

	// seq is owned exclusively by writeLoop.
	seq uint64
}

func newConn(id, user string, ws transport, logger *slog.Logger, settings *Settings) *Conn {
	c := &Conn{
		ID:          id,
		User:        user,
		ConnectedAt: time.Now().UTC(),
		ws:          ws,
		logger:      logger,
		settings:    settings,
		out:         make(chan api.Message, settings.SendQueueSize),
		done:        make(chan struct{}),
	}
	c.touch()
	return c
}

// Send marshals the payload and enqueues a message of the given kind.
// Returns ErrConnClosed when the connection is dead (the send is a no-op).
func (c *Conn) Send(kind api.MessageKind, payload any) error {
	return c.SendFrom("", kind, payload)
}

// SendFrom is Send with an origin connection id stamped on the envelope,
// used for broadcasts so recipients can tell where a change came from.
func (c *Conn) SendFrom(origin string, kind api.MessageKind, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}

	msg := api.Message{
		Kind:               kind,
		Payload:            raw,
		IssuedAt:           time.Now().UTC(),
		OriginConnectionID: origin,
	}

	if c.dead.Load() {
		return ErrConnClosed
	}
	select {
	case c.out <- msg:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		// A full queue means the client stopped draining; treat the
		// connection as dead rather than block the sender.
		c.logger.Warn("send queue overflow, closing connection")
		c.Close("send queue overflow")
		return ErrConnClosed
	}
}

// writeLoop drains the outbound queue, assigning sequence numbers and the
// per-recipient compression decision at write time. Exits when the
// connection closes; a failed write closes the connection so the read loop
// unblocks and normal close handling runs.
func (c *Conn) writeLoop() {
	for {
		select {
		case msg := <-c.out:
			msg.SequenceNumber = c.seq
			c.seq++

			data, err := c.encode(&msg)
			if err != nil {
				// Encoding failures are local bugs, not client errors; the
				// sequence number is already consumed, skipping the frame
				// would leave a gap, so close instead.
				c.logger.Error("failed to encode message", "kind", msg.Kind, "error", err)
				c.Close("internal error")
				return
			}

			if err := c.ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout)); err != nil {
				c.Close("")
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write failed", "kind", msg.Kind, "error", err)
				c.Close("")
				return
			}
		case <-c.done:
			return
		}
	}
}

// encode serializes the envelope, compressing the payload when the
// connection declared support and the payload exceeds the threshold.
func (c *Conn) encode(msg *api.Message) ([]byte, error) {
	if c.Capabilities().SupportsCompression && len(msg.Payload) > c.settings.CompressionThreshold {
		blob, err := api.CompressPayload(msg.Payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = blob
		msg.Compressed = true
	}
	return json.Marshal(msg)
}

// Close tears the connection down exactly once. A non-empty reason is sent
// to the client as a close frame before the socket drops.
func (c *Conn) Close(reason string) {
	c.closeOnce.Do(func() {
		c.dead.Store(true)
		if reason != "" {
			deadline := time.Now().Add(c.settings.WriteTimeout)
			frame := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
			// Best effort; the peer may already be gone.
			_ = c.ws.WriteControl(websocket.CloseMessage, frame, deadline)
		}
		_ = c.ws.Close()
		close(c.done)
	})
}

// Closed reports whether the connection has been torn down.
func (c *Conn) Closed() bool {
	return c.dead.Load()
}

// touch records activity now.
func (c *Conn) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the time of the most recent inbound message or
// heartbeat send.
func (c *Conn) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load()).UTC()
}

// SetCapabilities replaces the declared capabilities. Only the connection's
// own CAPABILITIES message calls this.
func (c *Conn) SetCapabilities(caps api.Capabilities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caps = caps
}

// Capabilities returns the declared capabilities; the zero value until the
// connection declares any.
func (c *Conn) Capabilities() api.Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

// SyncInProgress reports whether a sync stream is currently being served.
func (c *Conn) SyncInProgress() bool {
	return c.syncing.Load()
}

// Summary returns the redacted view exposed by the introspection endpoint.
func (c *Conn) Summary() api.ClientSummary {
	return api.ClientSummary{
		ID:             c.ID,
		User:           c.User,
		ConnectedAt:    c.ConnectedAt,
		LastActivity:   c.LastActivity(),
		Capabilities:   c.Capabilities(),
		SyncInProgress: c.SyncInProgress(),
	}
}
