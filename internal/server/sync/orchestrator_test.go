package sync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocklinehq/stockline/internal/models"
	"github.com/stocklinehq/stockline/pkg/api"
)

// appliedChange records one ApplyChange call on the stub store.
type appliedChange struct {
	entity string
	action api.ChangeAction
	id     int64
	data   json.RawMessage
}

// stubStore implements DatasetStore and MutationStore in memory.
type stubStore struct {
	mu sync.Mutex

	items      []models.Item
	warehouses []models.Warehouse
	suppliers  []models.Supplier
	categories []models.Category
	units      []models.Unit

	listErr map[string]error

	applied  []appliedChange
	applyID  int64
	applyErr error
}

func newStubStore() *stubStore {
	return &stubStore{
		items:   []models.Item{{ID: 1, SKU: "SKU-1", Name: "Bolt M6", Quantity: 100}},
		units:   []models.Unit{{ID: 1, Name: "piece", Abbreviation: "pc"}},
		listErr: map[string]error{},
		applyID: 1,
	}
}

func (s *stubStore) ListInventory(ctx context.Context) ([]models.Item, error) {
	return s.items, s.listErr[api.DatasetInventory]
}

func (s *stubStore) ListWarehouses(ctx context.Context) ([]models.Warehouse, error) {
	return s.warehouses, s.listErr[api.DatasetWarehouses]
}

func (s *stubStore) ListSuppliers(ctx context.Context) ([]models.Supplier, error) {
	return s.suppliers, s.listErr[api.DatasetSuppliers]
}

func (s *stubStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.categories, s.listErr[api.DatasetCategories]
}

func (s *stubStore) ListUnits(ctx context.Context) ([]models.Unit, error) {
	return s.units, s.listErr[api.DatasetUnits]
}

func (s *stubStore) ApplyChange(ctx context.Context, entity string, action api.ChangeAction, id int64, data json.RawMessage) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, appliedChange{entity: entity, action: action, id: id, data: data})
	if s.applyErr != nil {
		return 0, s.applyErr
	}
	if id != 0 {
		return id, nil
	}
	return s.applyID, nil
}

func (s *stubStore) appliedChanges() []appliedChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]appliedChange(nil), s.applied...)
}

// waitSyncDone blocks until the connection's sync flag resets.
func waitSyncDone(t *testing.T, c *Conn) {
	t.Helper()
	require.Eventually(t, func() bool { return !c.SyncInProgress() },
		2*time.Second, time.Millisecond)
}

func TestOrchestrator_DefaultDatasetsInOrder(t *testing.T) {
	o := NewOrchestrator(setupTestLogger(), newStubStore(), testSettings())
	c, ft := newTestConn(testSettings())
	defer c.Close("")

	o.Serve(context.Background(), c, api.SyncRequestPayload{})
	waitSyncDone(t, c)

	// 5 dataset responses plus the completion.
	msgs := ft.waitMessages(t, 6)
	require.Len(t, msgs, 6)

	wantOrder := api.DefaultDatasets()
	var snapshot time.Time
	for i, name := range wantOrder {
		assert.Equal(t, api.KindSyncResponse, msgs[i].Kind)

		var p api.SyncResponsePayload
		require.NoError(t, msgs[i].DecodePayload(&p))
		assert.Equal(t, name, p.Dataset)
		assert.True(t, p.Complete)

		// One snapshot timestamp for the whole operation.
		if i == 0 {
			snapshot = p.SnapshotTime
		} else {
			assert.Equal(t, snapshot, p.SnapshotTime)
		}
	}

	last := msgs[5]
	assert.Equal(t, api.KindSyncComplete, last.Kind)
	var done api.SyncCompletePayload
	require.NoError(t, last.DecodePayload(&done))
	assert.Equal(t, wantOrder, done.Datasets)
	assert.Equal(t, snapshot, done.SnapshotTime)
}

func TestOrchestrator_SingleDataset(t *testing.T) {
	store := newStubStore()
	o := NewOrchestrator(setupTestLogger(), store, testSettings())
	c, ft := newTestConn(testSettings())
	defer c.Close("")

	o.Serve(context.Background(), c, api.SyncRequestPayload{Datasets: []string{"inventory"}})
	waitSyncDone(t, c)

	msgs := ft.waitMessages(t, 2)
	require.Len(t, msgs, 2)

	var p api.SyncResponsePayload
	require.NoError(t, msgs[0].DecodePayload(&p))
	assert.Equal(t, "inventory", p.Dataset)
	assert.Equal(t, 1, p.Count)

	var rows []models.Item
	require.NoError(t, json.Unmarshal(p.Data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "SKU-1", rows[0].SKU)

	var done api.SyncCompletePayload
	require.NoError(t, msgs[1].DecodePayload(&done))
	assert.Equal(t, []string{"inventory"}, done.Datasets)
}

func TestOrchestrator_UnknownDatasetSkipped(t *testing.T) {
	o := NewOrchestrator(setupTestLogger(), newStubStore(), testSettings())
	c, ft := newTestConn(testSettings())
	defer c.Close("")

	o.Serve(context.Background(), c, api.SyncRequestPayload{
		Datasets: []string{"inventory", "nonsense", "units"},
	})
	waitSyncDone(t, c)

	msgs := ft.waitMessages(t, 3)
	require.Len(t, msgs, 3)

	var done api.SyncCompletePayload
	require.NoError(t, msgs[2].DecodePayload(&done))
	// The unknown name is skipped, not fatal, and not listed as sent.
	assert.Equal(t, []string{"inventory", "units"}, done.Datasets)
}

func TestOrchestrator_StorageErrorSendsSyncError(t *testing.T) {
	store := newStubStore()
	store.listErr[api.DatasetInventory] = errors.New("disk exploded")

	o := NewOrchestrator(setupTestLogger(), store, testSettings())
	c, ft := newTestConn(testSettings())
	defer c.Close("")

	o.Serve(context.Background(), c, api.SyncRequestPayload{Datasets: []string{"inventory"}})
	waitSyncDone(t, c)

	msgs := ft.waitMessages(t, 1)
	require.Len(t, msgs, 1)
	assert.Equal(t, api.KindSyncError, msgs[0].Kind)

	var p api.SyncErrorPayload
	require.NoError(t, msgs[0].DecodePayload(&p))
	assert.Equal(t, "storage_error", p.Error)
	// Internal error text stays on the server.
	assert.NotContains(t, p.Message, "disk exploded")

	assert.False(t, c.SyncInProgress(), "flag must reset after failure")
}

func TestOrchestrator_RejectsOverlappingSync(t *testing.T) {
	o := NewOrchestrator(setupTestLogger(), newStubStore(), testSettings())
	c, ft := newTestConn(testSettings())
	defer c.Close("")

	// Simulate a stream already in flight.
	require.True(t, c.syncing.CompareAndSwap(false, true))

	o.Serve(context.Background(), c, api.SyncRequestPayload{})

	msgs := ft.waitMessages(t, 1)
	require.Len(t, msgs, 1)
	assert.Equal(t, api.KindSyncError, msgs[0].Kind)

	var p api.SyncErrorPayload
	require.NoError(t, msgs[0].DecodePayload(&p))
	assert.Equal(t, "sync_in_progress", p.Error)

	// The running stream's flag is untouched.
	assert.True(t, c.SyncInProgress())
}

func TestOrchestrator_AbortsWhenConnectionCloses(t *testing.T) {
	o := NewOrchestrator(setupTestLogger(), newStubStore(), testSettings())
	c, ft := newTestConn(testSettings())
	c.Close("client went away")

	o.Serve(context.Background(), c, api.SyncRequestPayload{})
	waitSyncDone(t, c)

	// No SYNC_COMPLETE is produced for a dead connection.
	for _, msg := range ft.messages(t) {
		assert.NotEqual(t, api.KindSyncComplete, msg.Kind)
	}
}
