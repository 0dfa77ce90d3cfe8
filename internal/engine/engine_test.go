package engine_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thornvale/offline-engine/internal/api/client"
	"github.com/thornvale/offline-engine/internal/config"
	"github.com/thornvale/offline-engine/internal/engine"
	"github.com/thornvale/offline-engine/internal/model"
)

// nullAPI accepts everything; engine tests never run a sync cycle.
type nullAPI struct{}

func (nullAPI) SubmitMove(context.Context, model.MovePayload, client.Meta) error       { return nil }
func (nullAPI) SubmitInteract(context.Context, model.InteractPayload, client.Meta) error { return nil }
func (nullAPI) SubmitCombat(context.Context, model.CombatPayload, client.Meta) error   { return nil }
func (nullAPI) SubmitInventory(context.Context, model.InventoryPayload, client.Meta) error {
	return nil
}
func (nullAPI) SubmitDialogue(context.Context, model.DialoguePayload, client.Meta) error { return nil }
func (nullAPI) SaveFullState(context.Context, *model.GameSnapshot, int64) error          { return nil }
func (nullAPI) Health(context.Context) error                                             { return nil }

// offlineConn reports a fixed connectivity state.
type offlineConn struct{ online atomic.Bool }

func (c *offlineConn) Online() bool             { return c.online.Load() }
func (c *offlineConn) Subscribe(func(bool))     {}

func setupEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := &config.Config{}
	cfg.Storage.Path = t.TempDir() + "/engine-pebble"
	cfg.Storage.FreshnessWindow = time.Hour
	cfg.Storage.MaxRecordBytes = 1 << 20
	cfg.Storage.PurgeInterval = time.Hour
	cfg.Storage.LedgerRetention = time.Hour
	cfg.Sync.Interval = time.Hour
	cfg.Sync.BatchSize = 10
	cfg.Sync.BatchDelay = time.Millisecond
	cfg.Sync.CycleRetryDelay = time.Hour
	cfg.Sync.DispatchTimeout = time.Second
	cfg.API.Timeout = time.Second

	logger, _ := zap.NewDevelopment()
	e := engine.NewWithBoundary(cfg, logger, nullAPI{}, &offlineConn{})
	require.NoError(t, e.Init())
	t.Cleanup(func() { e.Close() })
	return e
}

func TestQueueValidatesAtEnqueue(t *testing.T) {
	e := setupEngine(t)

	_, err := e.Queue(model.KindMove, json.RawMessage(`{"x":5,"y":3}`))
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)

	pending, err := e.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestQueueAppliesMoveOptimistically(t *testing.T) {
	e := setupEngine(t)

	require.NoError(t, e.SaveSnapshot(&model.GameSnapshot{CurrentMap: "town", PositionX: 1, PositionY: 1}))

	_, err := e.Queue(model.KindMove, json.RawMessage(`{"x":5,"y":3,"mapName":"forest"}`))
	require.NoError(t, err)

	snap, err := e.LoadSnapshot()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "forest", snap.CurrentMap)
	assert.Equal(t, 5, snap.PositionX)
	assert.Equal(t, 3, snap.PositionY)
}

func TestNonMoveKindsDoNotTouchSnapshot(t *testing.T) {
	e := setupEngine(t)

	_, err := e.Queue(model.KindDialogue, json.RawMessage(`{"npcId":"npc_1","message":"hi"}`))
	require.NoError(t, err)

	snap, err := e.LoadSnapshot()
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestStatsCombineSyncAndStorage(t *testing.T) {
	e := setupEngine(t)

	_, err := e.Queue(model.KindDialogue, json.RawMessage(`{"npcId":"npc_1","message":"hi"}`))
	require.NoError(t, err)
	require.NoError(t, e.CacheDialogue("npc_1", "well met"))

	stats := e.Stats()
	assert.Equal(t, 1, stats.Sync.PendingCount)
	assert.Equal(t, 1, stats.Storage.Actions)
	assert.Equal(t, 1, stats.Storage.Dialogues)
	assert.False(t, stats.Sync.IsOnline)
}

func TestDialoguePassthrough(t *testing.T) {
	e := setupEngine(t)

	require.NoError(t, e.CacheDialogue("npc_1", "The road north is washed out."))

	entry, err := e.Dialogue("npc_1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "The road north is washed out.", entry.Response)

	miss, err := e.Dialogue("npc_unknown")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestForceFullSyncOfflineSurfacesError(t *testing.T) {
	e := setupEngine(t)

	err := e.ForceFullSync(context.Background())
	assert.Error(t, err)
}

func TestCacheNPCsRoundTrip(t *testing.T) {
	e := setupEngine(t)

	require.NoError(t, e.CacheNPCs([]model.NPCRecord{
		{ID: "npc_1", Name: "Mara", MapName: "town"},
		{ID: "npc_2", Name: "Orin", MapName: "town"},
	}))

	town, err := e.NPCsByMap("town")
	require.NoError(t, err)
	assert.Len(t, town, 2)
}
