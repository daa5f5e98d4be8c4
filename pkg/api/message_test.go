package api

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageKind_Valid(t *testing.T) {
	for _, k := range []MessageKind{
		KindSyncRequest, KindSyncResponse, KindSyncError, KindDataChange,
		KindSyncComplete, KindCapabilities, KindHeartbeat, KindConnectionInfo,
	} {
		assert.True(t, k.Valid(), string(k))
	}

	assert.False(t, MessageKind("").Valid())
	assert.False(t, MessageKind("SYNC").Valid())
	assert.False(t, MessageKind("sync_request").Valid(), "kinds are case-sensitive")
}

func TestChangeAction_Valid(t *testing.T) {
	assert.True(t, ActionCreate.Valid())
	assert.True(t, ActionUpdate.Valid())
	assert.True(t, ActionDelete.Valid())
	assert.False(t, ChangeAction("upsert").Valid())
	assert.False(t, ChangeAction("").Valid())
}

func TestCompressPayload_Roundtrip(t *testing.T) {
	original := json.RawMessage(`{"dataset":"inventory","rows":["` +
		strings.Repeat("x", 4096) + `"]}`)

	blob, err := CompressPayload(original)
	require.NoError(t, err)
	assert.Less(t, len(blob), len(original), "repetitive payload must shrink")
	assert.True(t, json.Valid(blob), "compressed wrapper must stay valid JSON")

	plain, err := DecompressPayload(blob)
	require.NoError(t, err)
	assert.JSONEq(t, string(original), string(plain))
}

func TestDecompressPayload_RejectsGarbage(t *testing.T) {
	_, err := DecompressPayload(json.RawMessage(`{"not":"a string"}`))
	assert.Error(t, err)

	// Valid base64 wrapper, but not a gzip stream.
	blob, err := json.Marshal([]byte("plain bytes"))
	require.NoError(t, err)
	_, err = DecompressPayload(blob)
	assert.Error(t, err)
}

func TestMessage_DecodePayload(t *testing.T) {
	payload := SyncErrorPayload{Error: "storage_error", Message: "record not found"}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	msg := Message{Kind: KindSyncError, Payload: raw}
	var got SyncErrorPayload
	require.NoError(t, msg.DecodePayload(&got))
	assert.Equal(t, payload, got)
}

func TestMessage_DecodePayload_TransparentDecompression(t *testing.T) {
	payload := SyncResponsePayload{Dataset: "inventory", Count: 3, Complete: true}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	blob, err := CompressPayload(raw)
	require.NoError(t, err)

	msg := Message{Kind: KindSyncResponse, Payload: blob, Compressed: true}
	var got SyncResponsePayload
	require.NoError(t, msg.DecodePayload(&got))
	assert.Equal(t, payload, got)
}

func TestMessage_DecodePayload_ErrorNamesKind(t *testing.T) {
	msg := Message{Kind: KindDataChange, Payload: json.RawMessage(`not json`)}
	var got DataChangePayload
	err := msg.DecodePayload(&got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATA_CHANGE")
}

func TestDefaultDatasets_OrderIsStable(t *testing.T) {
	assert.Equal(t, []string{
		DatasetInventory,
		DatasetWarehouses,
		DatasetSuppliers,
		DatasetCategories,
		DatasetUnits,
	}, DefaultDatasets())

	// Callers may mutate the returned slice without poisoning later calls.
	first := DefaultDatasets()
	first[0] = "mutated"
	assert.Equal(t, DatasetInventory, DefaultDatasets()[0])
}
