// Package engine is the composition root: it wires the durable store,
// action queue, event bus, sync ledger, API boundary, connectivity monitor,
// and sync orchestrator, and runs the process until shutdown.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thornvale/offline-engine/internal/api/client"
	"github.com/thornvale/offline-engine/internal/config"
	"github.com/thornvale/offline-engine/internal/event"
	"github.com/thornvale/offline-engine/internal/ledger"
	"github.com/thornvale/offline-engine/internal/model"
	"github.com/thornvale/offline-engine/internal/queue"
	"github.com/thornvale/offline-engine/internal/store"
	syncer "github.com/thornvale/offline-engine/internal/sync"
)

// prefetchWorkers bounds concurrent asset downloads.
const prefetchWorkers = 4

// Engine owns every subsystem of the offline engine.
type Engine struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   store.Store
	queue   *queue.Queue
	bus     *event.Bus
	history *ledger.SyncLedger
	api     client.GameAPI
	conn    syncer.Connectivity
	orch    *syncer.Orchestrator
	fetcher *http.Client
}

// Stats combines sync status with per-partition storage counts.
type Stats struct {
	Sync    syncer.Stats `json:"sync"`
	Storage store.Stats  `json:"storage"`
}

// New builds a production Engine: Pebble store, HTTP API boundary, and a
// health-probe connectivity monitor.
func New(cfg *config.Config, logger *zap.Logger) *Engine {
	api := client.NewHTTPClient(cfg.API.BaseURL, cfg.API.Timeout, logger)
	conn := syncer.NewMonitor(api, cfg.API.HealthInterval, cfg.API.HealthTimeout, logger)
	return newEngine(cfg, logger, api, conn)
}

// NewWithBoundary builds an Engine with an injected API boundary and
// connectivity provider, primarily for tests and embedding.
func NewWithBoundary(cfg *config.Config, logger *zap.Logger, api client.GameAPI, conn syncer.Connectivity) *Engine {
	return newEngine(cfg, logger, api, conn)
}

func newEngine(cfg *config.Config, logger *zap.Logger, api client.GameAPI, conn syncer.Connectivity) *Engine {
	ps := store.NewPebbleStore(cfg.Storage.Path, cfg.Storage.FreshnessWindow, cfg.Storage.MaxRecordBytes, logger)
	q := queue.New(ps, func() int64 { return time.Now().UnixMilli() }, logger)
	bus := event.NewBus(logger)
	history := ledger.NewSyncLedger(cfg.Storage.LedgerRetention)
	orch := syncer.New(q, ps, api, bus, history, conn, syncer.Config{
		Interval:        cfg.Sync.Interval,
		BatchSize:       cfg.Sync.BatchSize,
		BatchDelay:      cfg.Sync.BatchDelay,
		CycleRetryDelay: cfg.Sync.CycleRetryDelay,
		DispatchTimeout: cfg.Sync.DispatchTimeout,
	}, logger)

	return &Engine{
		cfg:     cfg,
		logger:  logger,
		store:   ps,
		queue:   q,
		bus:     bus,
		history: history,
		api:     api,
		conn:    conn,
		orch:    orch,
		fetcher: &http.Client{Timeout: cfg.API.Timeout},
	}
}

// Init opens the durable store.
func (e *Engine) Init() error {
	if err := e.store.Init(); err != nil {
		return fmt.Errorf("store init: %w", err)
	}
	return nil
}

// Close stops the orchestrator and closes the store.
func (e *Engine) Close() error {
	e.orch.Stop()
	return e.store.Close()
}

// Run bootstraps all components and blocks until SIGINT/SIGTERM or ctx
// cancellation. startServer is invoked with the engine once everything
// below it is running (the REST layer hooks in here).
func (e *Engine) Run(ctx context.Context, startServer func(e *Engine) error) error {
	e.logger.Info("Starting offline engine",
		zap.String("store", e.cfg.Storage.Path),
		zap.String("backend", e.cfg.API.BaseURL),
	)

	// --- 1. Open the durable store ---
	if err := e.Init(); err != nil {
		return err
	}
	defer e.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// --- 2. Connectivity monitor ---
	if m, ok := e.conn.(*syncer.Monitor); ok {
		m.Start(runCtx)
	}

	// --- 3. Sync orchestrator ---
	e.orch.Start(runCtx)

	// --- 4. Maintenance schedulers ---
	e.startSchedulers(runCtx)

	// --- 5. UI-facing server ---
	if startServer != nil {
		go func() {
			if err := startServer(e); err != nil {
				e.logger.Error("server stopped", zap.Error(err))
				cancel()
			}
		}()
	}

	e.logger.Info("Engine running")

	// --- 6. Wait for shutdown signal ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		e.logger.Info("Shutdown signal received")
	case <-runCtx.Done():
		e.logger.Info("Context cancelled")
	}

	return nil
}

func (e *Engine) startSchedulers(ctx context.Context) {
	// Storage purge
	go func() {
		ticker := time.NewTicker(e.cfg.Storage.PurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := e.store.PurgeExpired(); err != nil {
					e.logger.Warn("purge failed", zap.Error(err))
				} else if n > 0 {
					e.logger.Info("purge removed records", zap.Int("count", n))
				}
			}
		}
	}()

	// Ledger cleanup
	go func() {
		ticker := time.NewTicker(e.cfg.Storage.PurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.history.CleanExpired()
			}
		}
	}()
}

// Queue enqueues a player mutation with the kind's default retry ceiling
// and applies it optimistically to the local snapshot where possible.
func (e *Engine) Queue(kind model.ActionKind, payload json.RawMessage) (model.OfflineAction, error) {
	if err := model.ValidatePayload(kind, payload); err != nil {
		return model.OfflineAction{}, err
	}
	a, err := e.queue.Queue(kind, payload)
	if err != nil {
		return model.OfflineAction{}, err
	}
	e.applyOptimistic(a)
	return a, nil
}

// QueueWithRetries is Queue with an explicit retry ceiling.
func (e *Engine) QueueWithRetries(kind model.ActionKind, payload json.RawMessage, maxRetries int) (model.OfflineAction, error) {
	if err := model.ValidatePayload(kind, payload); err != nil {
		return model.OfflineAction{}, err
	}
	a, err := e.queue.QueueWithRetries(kind, payload, maxRetries)
	if err != nil {
		return model.OfflineAction{}, err
	}
	e.applyOptimistic(a)
	return a, nil
}

// applyOptimistic folds the queued mutation into the local snapshot so the
// UI resumes from the player's latest position even before the server
// confirms. Only movement has a locally computable result; other kinds
// wait for the server's answer.
func (e *Engine) applyOptimistic(a model.OfflineAction) {
	if a.Kind != model.KindMove {
		return
	}
	var p model.MovePayload
	if err := json.Unmarshal(a.Payload, &p); err != nil {
		return
	}
	snap, err := e.store.LoadSnapshot()
	if err != nil {
		e.logger.Warn("optimistic apply skipped", zap.Error(err))
		return
	}
	if snap == nil {
		snap = &model.GameSnapshot{}
	}
	snap.CurrentMap = p.MapName
	snap.PositionX = p.X
	snap.PositionY = p.Y
	snap.SavedAt = time.Now().UnixMilli()
	if err := e.SaveSnapshot(snap); err != nil {
		e.logger.Warn("optimistic snapshot save failed", zap.Error(err))
	}
}

// Pending returns the queued actions sorted by timestamp.
func (e *Engine) Pending() ([]model.OfflineAction, error) {
	return e.queue.Pending()
}

// TriggerSync requests a sync cycle without blocking.
func (e *Engine) TriggerSync(reason string) {
	e.orch.TriggerSync(reason)
}

// ForceFullSync drains the queue then pushes the full snapshot. Errors
// while offline.
func (e *Engine) ForceFullSync(ctx context.Context) error {
	return e.orch.ForceFullSync(ctx)
}

// Stats returns combined sync and storage status.
func (e *Engine) Stats() Stats {
	storageStats, err := e.store.Stats()
	if err != nil {
		e.logger.Warn("storage stats unavailable", zap.Error(err))
	}
	return Stats{
		Sync:    e.orch.Stats(),
		Storage: storageStats,
	}
}

// Subscribe registers a sync event listener, returning its token.
func (e *Engine) Subscribe(l event.Listener) int {
	return e.bus.Subscribe(l)
}

// Unsubscribe removes a listener by token.
func (e *Engine) Unsubscribe(id int) {
	e.bus.Unsubscribe(id)
}

// History returns the sync ledger's cycle records.
func (e *Engine) History() []ledger.CycleRecord {
	return e.history.CycleSnapshot()
}

// SaveSnapshot persists the snapshot, purging and retrying once when the
// write trips the quota ceiling.
func (e *Engine) SaveSnapshot(snap *model.GameSnapshot) error {
	return e.withQuotaRetry(func() error {
		return e.store.SaveSnapshot(snap)
	})
}

// LoadSnapshot reads the current snapshot, nil when none was saved.
func (e *Engine) LoadSnapshot() (*model.GameSnapshot, error) {
	return e.store.LoadSnapshot()
}

// CacheNPCs stores fresh NPC records as they arrive from the network.
func (e *Engine) CacheNPCs(recs []model.NPCRecord) error {
	for _, rec := range recs {
		if err := e.withQuotaRetry(func() error { return e.store.CacheNPC(rec) }); err != nil {
			return err
		}
	}
	return nil
}

// NPCsByMap returns cached NPCs for a map (offline fallback read).
func (e *Engine) NPCsByMap(mapName string) ([]model.NPCRecord, error) {
	return e.store.NPCsByMap(mapName)
}

// CacheDialogue stores a fresh dialogue response.
func (e *Engine) CacheDialogue(npcID, response string) error {
	return e.withQuotaRetry(func() error { return e.store.CacheDialogue(npcID, response) })
}

// Dialogue returns a cached dialogue response, nil on miss or staleness.
func (e *Engine) Dialogue(npcID string) (*model.DialogueEntry, error) {
	return e.store.Dialogue(npcID)
}

// Asset returns a cached binary blob, nil on miss.
func (e *Engine) Asset(url string) ([]byte, error) {
	return e.store.Asset(url)
}

// PrefetchAssets downloads and caches the given URLs with bounded
// parallelism so images and audio are available for offline play.
func (e *Engine) PrefetchAssets(ctx context.Context, urls []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchWorkers)
	for _, url := range urls {
		url := url
		g.Go(func() error {
			data, err := e.fetchAsset(gctx, url)
			if err != nil {
				e.logger.Warn("asset prefetch failed", zap.String("url", url), zap.Error(err))
				return nil // best-effort; a missing asset is not fatal
			}
			return e.withQuotaRetry(func() error { return e.store.CacheAsset(url, data) })
		})
	}
	return g.Wait()
}

func (e *Engine) fetchAsset(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.fetcher.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// withQuotaRetry purges expired records and retries once when a write
// exceeds the quota.
func (e *Engine) withQuotaRetry(write func() error) error {
	err := write()
	if !errors.Is(err, store.ErrQuotaExceeded) {
		return err
	}
	e.logger.Warn("storage quota exceeded, purging and retrying")
	if _, perr := e.store.PurgeExpired(); perr != nil {
		return err
	}
	return write()
}
