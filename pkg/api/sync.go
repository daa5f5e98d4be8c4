package api

import (
	"encoding/json"
	"time"
)

// Dataset names the server can stream during a sync. A dataset name is an
// opaque key; the server resolves it to a storage read.
const (
	DatasetInventory  = "inventory"
	DatasetWarehouses = "warehouses"
	DatasetSuppliers  = "suppliers"
	DatasetCategories = "categories"
	DatasetUnits      = "units"
)

// DefaultDatasets returns the full dataset list used when a SYNC_REQUEST
// names none. Order matters: responses are streamed in this order.
func DefaultDatasets() []string {
	return []string{
		DatasetInventory,
		DatasetWarehouses,
		DatasetSuppliers,
		DatasetCategories,
		DatasetUnits,
	}
}

// Server feature identifiers advertised in CONNECTION_INFO.
const (
	FeatureCompression  = "compression"
	FeaturePartialSync  = "partialSync"
	FeatureDeltaUpdates = "deltaUpdates"
)

// ChangeAction is the mutation verb of a DATA_CHANGE.
type ChangeAction string

const (
	ActionCreate ChangeAction = "create"
	ActionUpdate ChangeAction = "update"
	ActionDelete ChangeAction = "delete"
)

// Valid reports whether a is a known change action.
func (a ChangeAction) Valid() bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionDelete
}

// DeviceInfo optionally describes the client host.
type DeviceInfo struct {
	Platform   string `json:"platform,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
	Hostname   string `json:"hostname,omitempty"`
}

// Capabilities are optional features a connection declares; everything
// defaults to off until a CAPABILITIES message arrives.
type Capabilities struct {
	SupportsCompression bool        `json:"supportsCompression"`
	IsElectronHost      bool        `json:"isElectronHost"`
	DeviceInfo          *DeviceInfo `json:"deviceInfo,omitempty"`
}

// ConnectionInfoPayload greets a freshly registered connection.
type ConnectionInfoPayload struct {
	ConnectionID string    `json:"connectionId"`
	ServerTime   time.Time `json:"serverTime"`
	Features     []string  `json:"features"`
}

// SyncRequestPayload asks the server to stream one or more datasets.
// An empty list means the full default set.
type SyncRequestPayload struct {
	Datasets []string `json:"datasets,omitempty"`
}

// SyncResponsePayload carries one dataset. SnapshotTime is fixed for the
// whole sync operation, computed once when the request starts.
type SyncResponsePayload struct {
	Dataset      string          `json:"dataset"`
	Data         json.RawMessage `json:"data"`
	SnapshotTime time.Time       `json:"snapshotTime"`
	Count        int             `json:"count"`
	Complete     bool            `json:"complete"`
}

// SyncCompletePayload ends a sync stream, listing exactly the datasets for
// which a SYNC_RESPONSE was sent.
type SyncCompletePayload struct {
	SnapshotTime time.Time `json:"snapshotTime"`
	Datasets     []string  `json:"datasets"`
}

// SyncErrorPayload is the structured error surface of the protocol. Error
// is a stable machine-readable code, Message an optional human hint.
type SyncErrorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// DataChangePayload serves double duty: as a broadcast it carries the
// mutated entity to every other connection; as an acknowledgment to the
// originating connection it has Ack set and reports the resulting id.
type DataChangePayload struct {
	Entity  string          `json:"entity"`
	Action  ChangeAction    `json:"action"`
	ID      int64           `json:"id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Ack     bool            `json:"ack,omitempty"`
	Success bool            `json:"success,omitempty"`
}

// HeartbeatPayload is the periodic liveness message.
type HeartbeatPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// ClientSummary is the redacted per-connection view exposed for
// operational visibility.
type ClientSummary struct {
	ID             string       `json:"id"`
	User           string       `json:"user,omitempty"`
	ConnectedAt    time.Time    `json:"connectedAt"`
	LastActivity   time.Time    `json:"lastActivity"`
	Capabilities   Capabilities `json:"capabilities"`
	SyncInProgress bool         `json:"syncInProgress"`
}

// ClientsResponse is returned by the introspection endpoint.
type ClientsResponse struct {
	Count   int             `json:"count"`
	Clients []ClientSummary `json:"clients"`
}
