package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thornvale/offline-engine/internal/ledger"
)

func TestRecordAndSnapshot(t *testing.T) {
	sl := ledger.NewSyncLedger(time.Hour)

	sl.RecordCycle(ledger.CycleRecord{StartedAt: time.Now().UnixMilli(), Reason: "manual", Total: 2, Succeeded: 2})
	sl.RecordAttempt(ledger.AttemptRecord{ActionID: "a1", Kind: "move", At: time.Now().UnixMilli()})
	sl.RecordAttempt(ledger.AttemptRecord{ActionID: "a1", Kind: "move", Error: "timeout", Retry: 1, At: time.Now().UnixMilli()})

	cycles := sl.CycleSnapshot()
	require.Len(t, cycles, 1)
	assert.Equal(t, "manual", cycles[0].Reason)

	attempts := sl.AttemptSnapshot()
	require.Len(t, attempts["a1"], 2)
	assert.Equal(t, "timeout", attempts["a1"][1].Error)
}

func TestLastCycle(t *testing.T) {
	sl := ledger.NewSyncLedger(time.Hour)

	_, ok := sl.LastCycle()
	assert.False(t, ok)

	sl.RecordCycle(ledger.CycleRecord{Reason: "interval"})
	sl.RecordCycle(ledger.CycleRecord{Reason: "reconnect"})

	last, ok := sl.LastCycle()
	require.True(t, ok)
	assert.Equal(t, "reconnect", last.Reason)
}

func TestCleanExpiredDropsOldRecords(t *testing.T) {
	sl := ledger.NewSyncLedger(time.Minute)

	old := time.Now().Add(-2 * time.Minute).UnixMilli()
	fresh := time.Now().UnixMilli()

	sl.RecordCycle(ledger.CycleRecord{StartedAt: old, Reason: "interval"})
	sl.RecordCycle(ledger.CycleRecord{StartedAt: fresh, Reason: "manual"})
	sl.RecordAttempt(ledger.AttemptRecord{ActionID: "gone", At: old})
	sl.RecordAttempt(ledger.AttemptRecord{ActionID: "kept", At: fresh})

	assert.True(t, sl.CleanExpired())

	cycles := sl.CycleSnapshot()
	require.Len(t, cycles, 1)
	assert.Equal(t, "manual", cycles[0].Reason)

	attempts := sl.AttemptSnapshot()
	assert.NotContains(t, attempts, "gone")
	assert.Contains(t, attempts, "kept")

	// Nothing left to remove.
	assert.False(t, sl.CleanExpired())
}

func TestClearAll(t *testing.T) {
	sl := ledger.NewSyncLedger(time.Hour)
	sl.RecordCycle(ledger.CycleRecord{Reason: "manual"})
	sl.RecordAttempt(ledger.AttemptRecord{ActionID: "a1"})

	sl.ClearAll()

	assert.Empty(t, sl.CycleSnapshot())
	assert.Empty(t, sl.AttemptSnapshot())
}
