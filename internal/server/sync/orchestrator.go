package sync

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/stocklinehq/stockline/internal/models"
	"github.com/stocklinehq/stockline/pkg/api"
)

// DatasetStore is the read side of the storage collaborator. Every call is
// a fresh read; the orchestrator never caches business data.
type DatasetStore interface {
	ListInventory(ctx context.Context) ([]models.Item, error)
	ListWarehouses(ctx context.Context) ([]models.Warehouse, error)
	ListSuppliers(ctx context.Context) ([]models.Supplier, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	ListUnits(ctx context.Context) ([]models.Unit, error)
}

// datasetReader resolves one dataset name to its rows and row count.
type datasetReader func(ctx context.Context) (any, int, error)

// Orchestrator serves SYNC_REQUESTs: one SYNC_RESPONSE per requested
// dataset, then a final SYNC_COMPLETE listing what was actually sent.
type Orchestrator struct {
	logger   *slog.Logger
	settings *Settings
	readers  map[string]datasetReader
}

// NewOrchestrator builds the dataset name resolution table over the store.
func NewOrchestrator(logger *slog.Logger, store DatasetStore, settings *Settings) *Orchestrator {
	return &Orchestrator{
		logger:   logger,
		settings: settings,
		readers: map[string]datasetReader{
			api.DatasetInventory: func(ctx context.Context) (any, int, error) {
				rows, err := store.ListInventory(ctx)
				return rows, len(rows), err
			},
			api.DatasetWarehouses: func(ctx context.Context) (any, int, error) {
				rows, err := store.ListWarehouses(ctx)
				return rows, len(rows), err
			},
			api.DatasetSuppliers: func(ctx context.Context) (any, int, error) {
				rows, err := store.ListSuppliers(ctx)
				return rows, len(rows), err
			},
			api.DatasetCategories: func(ctx context.Context) (any, int, error) {
				rows, err := store.ListCategories(ctx)
				return rows, len(rows), err
			},
			api.DatasetUnits: func(ctx context.Context) (any, int, error) {
				rows, err := store.ListUnits(ctx)
				return rows, len(rows), err
			},
		},
	}
}

// Serve handles one SYNC_REQUEST on the connection. Rejects overlapping
// requests with SYNC_ERROR instead of queueing them; the running stream is
// unaffected. The stream itself runs on its own goroutine so the caller's
// read loop keeps handling other traffic.
func (o *Orchestrator) Serve(ctx context.Context, c *Conn, req api.SyncRequestPayload) {
	if !c.syncing.CompareAndSwap(false, true) {
		o.logger.Warn("rejecting overlapping sync request", "connection_id", c.ID)
		_ = c.Send(api.KindSyncError, api.SyncErrorPayload{
			Error:   "sync_in_progress",
			Message: "sync already in progress",
		})
		return
	}

	go o.stream(ctx, c, req.Datasets)
}

// stream sends the dataset responses. The sync-in-progress flag always
// resets on exit, success or not.
func (o *Orchestrator) stream(ctx context.Context, c *Conn, datasets []string) {
	defer c.syncing.Store(false)

	if len(datasets) == 0 {
		datasets = api.DefaultDatasets()
	}

	// One snapshot timestamp for the whole operation.
	snapshot := time.Now().UTC()
	sent := make([]string, 0, len(datasets))

	o.logger.Info("sync started", "connection_id", c.ID, "datasets", datasets)

	for _, name := range datasets {
		read, ok := o.readers[name]
		if !ok {
			o.logger.Warn("unknown dataset requested, skipping",
				"connection_id", c.ID, "dataset", name)
			continue
		}

		rows, count, err := read(ctx)
		if err != nil {
			o.logger.Error("dataset read failed",
				"connection_id", c.ID, "dataset", name, "error", err)
			_ = c.Send(api.KindSyncError, api.SyncErrorPayload{
				Error:   "storage_error",
				Message: "failed to read dataset " + name,
			})
			return
		}

		data, err := json.Marshal(rows)
		if err != nil {
			o.logger.Error("dataset encode failed",
				"connection_id", c.ID, "dataset", name, "error", err)
			_ = c.Send(api.KindSyncError, api.SyncErrorPayload{
				Error:   "storage_error",
				Message: "failed to encode dataset " + name,
			})
			return
		}

		if err := c.Send(api.KindSyncResponse, api.SyncResponsePayload{
			Dataset:      name,
			Data:         data,
			SnapshotTime: snapshot,
			Count:        count,
			Complete:     true,
		}); err != nil {
			// Connection is gone; stop computing work for it.
			o.logger.Debug("sync aborted, connection closed",
				"connection_id", c.ID, "dataset", name)
			return
		}
		sent = append(sent, name)

		if o.settings.DatasetPacing > 0 {
			select {
			case <-time.After(o.settings.DatasetPacing):
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}

	_ = c.Send(api.KindSyncComplete, api.SyncCompletePayload{
		SnapshotTime: snapshot,
		Datasets:     sent,
	})

	o.logger.Info("sync completed", "connection_id", c.ID, "datasets", sent)
}
