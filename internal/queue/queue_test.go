package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thornvale/offline-engine/internal/model"
	"github.com/thornvale/offline-engine/internal/queue"
	"github.com/thornvale/offline-engine/internal/store"
)

// setupQueue returns a queue whose clock replays the given timestamps.
func setupQueue(t *testing.T, stamps ...int64) *queue.Queue {
	t.Helper()
	dir := t.TempDir()
	logger, _ := zap.NewDevelopment()
	s := store.NewPebbleStore(dir+"/test-pebble", time.Hour, 1<<20, logger)
	require.NoError(t, s.Init())
	t.Cleanup(func() { s.Close() })

	i := 0
	now := func() int64 {
		if i < len(stamps) {
			ts := stamps[i]
			i++
			return ts
		}
		return time.Now().UnixMilli()
	}
	return queue.New(s, now, logger)
}

func TestQueueAssignsIdentity(t *testing.T) {
	q := setupQueue(t, 42)

	a, err := q.Queue(model.KindMove, model.MovePayload{X: 5, Y: 3, MapName: "town"})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, int64(42), a.Timestamp)
	assert.Equal(t, 0, a.RetryCount)
	assert.Equal(t, model.DefaultMaxRetries(model.KindMove), a.MaxRetries)
}

func TestPendingSortedRegardlessOfEnqueueOrder(t *testing.T) {
	// Clock runs backwards: later enqueues get earlier timestamps.
	q := setupQueue(t, 30, 10, 20)

	_, err := q.Queue(model.KindMove, model.MovePayload{X: 1, Y: 1, MapName: "town"})
	require.NoError(t, err)
	_, err = q.Queue(model.KindDialogue, model.DialoguePayload{NPCID: "n1", Message: "hi"})
	require.NoError(t, err)
	_, err = q.Queue(model.KindCombat, model.CombatPayload{BattleID: "b1", Move: "tackle"})
	require.NoError(t, err)

	pending, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, int64(10), pending[0].Timestamp)
	assert.Equal(t, model.KindDialogue, pending[0].Kind)
	assert.Equal(t, int64(20), pending[1].Timestamp)
	assert.Equal(t, int64(30), pending[2].Timestamp)
}

func TestDefaultRetryCeilings(t *testing.T) {
	assert.Equal(t, 3, model.DefaultMaxRetries(model.KindMove))
	assert.Equal(t, 3, model.DefaultMaxRetries(model.KindInteract))
	assert.Equal(t, 5, model.DefaultMaxRetries(model.KindCombat))
	assert.Equal(t, 5, model.DefaultMaxRetries(model.KindInventory))
	assert.Equal(t, 2, model.DefaultMaxRetries(model.KindDialogue))
}

func TestQueueWithExplicitRetries(t *testing.T) {
	q := setupQueue(t)

	a, err := q.QueueWithRetries(model.KindDialogue, model.DialoguePayload{NPCID: "n1", Message: "hi"}, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, a.MaxRetries)
}

func TestQueueRejectsUnknownKind(t *testing.T) {
	q := setupQueue(t)

	_, err := q.Queue(model.ActionKind("teleport"), map[string]any{})
	assert.Error(t, err)
}

func TestAckRemoves(t *testing.T) {
	q := setupQueue(t, 1, 2)

	a1, err := q.Queue(model.KindMove, model.MovePayload{X: 1, Y: 1, MapName: "town"})
	require.NoError(t, err)
	_, err = q.Queue(model.KindMove, model.MovePayload{X: 2, Y: 2, MapName: "town"})
	require.NoError(t, err)

	require.NoError(t, q.Ack(a1.ID))

	pending, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.NotEqual(t, a1.ID, pending[0].ID)
}

func TestBumpRetryPersists(t *testing.T) {
	q := setupQueue(t)

	a, err := q.Queue(model.KindCombat, model.CombatPayload{BattleID: "b1", Move: "tackle"})
	require.NoError(t, err)

	n, err := q.BumpRetry(a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = q.BumpRetry(a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pending, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].RetryCount)
}
