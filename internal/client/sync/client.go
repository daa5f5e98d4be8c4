// Package sync implements the client side of the stockline sync protocol:
// it connects to the server's /sync endpoint, performs a full dataset sync
// and keeps a local bbolt mirror current from change broadcasts. A
// reconnecting client always issues a fresh full sync; the server keeps no
// replay log for missed messages.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stocklinehq/stockline/pkg/api"
)

// Client mirrors the server datasets into a local cache.
type Client struct {
	logger *slog.Logger
	cache  *Cache

	serverURL string
	token     string
	device    api.DeviceInfo

	// connectionID is assigned by the server in CONNECTION_INFO.
	connectionID string
	// lastSeq detects sequence gaps; valid once firstSeq is set.
	lastSeq  uint64
	firstSeq bool
}

// NewClient creates a sync client. serverURL is the ws:// or wss:// URL of
// the /sync endpoint; token is an access token from the login endpoint.
func NewClient(logger *slog.Logger, cache *Cache, serverURL, token string, device api.DeviceInfo) *Client {
	return &Client{
		logger:    logger,
		cache:     cache,
		serverURL: serverURL,
		token:     token,
		device:    device,
	}
}

// Run connects, declares capabilities, requests a full sync and then
// consumes broadcasts until the context is cancelled or the connection
// drops. The caller decides whether to reconnect; every new Run starts
// with a fresh full sync.
func (c *Client) Run(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer ws.Close()

	c.firstSeq = false

	// Unblock ReadMessage when the context ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client shutdown"),
				time.Now().Add(time.Second))
			_ = ws.Close()
		case <-stop:
		}
	}()

	if err := c.sendMessage(ws, api.KindCapabilities, api.Capabilities{
		SupportsCompression: true,
		DeviceInfo:          &c.device,
	}); err != nil {
		return err
	}
	if err := c.sendMessage(ws, api.KindSyncRequest, api.SyncRequestPayload{}); err != nil {
		return err
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("connection lost: %w", err)
		}

		var msg api.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("dropping malformed frame", "error", err)
			continue
		}

		c.checkSequence(&msg)

		if err := c.handle(&msg); err != nil {
			c.logger.Error("failed to handle message", "kind", msg.Kind, "error", err)
		}
	}
}

// checkSequence logs a warning on a sequence gap. Gaps are detection-only;
// recovery is a fresh full sync on the next connect.
func (c *Client) checkSequence(msg *api.Message) {
	if !c.firstSeq {
		c.firstSeq = true
		c.lastSeq = msg.SequenceNumber
		return
	}
	if msg.SequenceNumber != c.lastSeq+1 {
		c.logger.Warn("sequence gap detected",
			"expected", c.lastSeq+1, "got", msg.SequenceNumber)
	}
	c.lastSeq = msg.SequenceNumber
}

func (c *Client) handle(msg *api.Message) error {
	switch msg.Kind {
	case api.KindConnectionInfo:
		var p api.ConnectionInfoPayload
		if err := msg.DecodePayload(&p); err != nil {
			return err
		}
		c.connectionID = p.ConnectionID
		c.logger.Info("connected", "connection_id", p.ConnectionID, "features", p.Features)

	case api.KindSyncResponse:
		var p api.SyncResponsePayload
		if err := msg.DecodePayload(&p); err != nil {
			return err
		}
		if err := c.cache.ReplaceDataset(p.Dataset, p.Data); err != nil {
			return err
		}
		c.logger.Info("dataset synced", "dataset", p.Dataset, "count", p.Count)

	case api.KindSyncComplete:
		var p api.SyncCompletePayload
		if err := msg.DecodePayload(&p); err != nil {
			return err
		}
		c.logger.Info("sync complete", "datasets", p.Datasets, "snapshot", p.SnapshotTime)

	case api.KindDataChange:
		var p api.DataChangePayload
		if err := msg.DecodePayload(&p); err != nil {
			return err
		}
		if p.Ack {
			c.logger.Info("change acknowledged",
				"entity", p.Entity, "action", p.Action, "id", p.ID, "success", p.Success)
			return nil
		}
		// Changes this client caused are not echoed back; anything here
		// came from another connection or a server-side job.
		if err := c.cache.ApplyChange(p.Entity, p.Action, p.ID, p.Data); err != nil {
			return err
		}
		c.logger.Info("change applied", "entity", p.Entity, "action", p.Action, "id", p.ID)

	case api.KindSyncError:
		var p api.SyncErrorPayload
		if err := msg.DecodePayload(&p); err != nil {
			return err
		}
		c.logger.Error("server reported error", "code", p.Error, "message", p.Message)

	case api.KindHeartbeat:
		// Liveness only.

	default:
		c.logger.Warn("ignoring unexpected message", "kind", msg.Kind)
	}
	return nil
}

func (c *Client) sendMessage(ws *websocket.Conn, kind api.MessageKind, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	msg := api.Message{
		Kind:     kind,
		Payload:  raw,
		IssuedAt: time.Now().UTC(),
	}
	if err := ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", kind, err)
	}
	return nil
}
