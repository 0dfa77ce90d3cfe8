// Package ledger provides thread-safe in-memory tracking of sync history:
// per-cycle outcomes and per-action attempt records. It backs the UI's
// "what happened while I was away" view and is trimmed on a retention
// window rather than persisted.
package ledger

import (
	"sync"
	"time"
)

// SyncLedger tracks cycle outcomes and per-action attempts.
type SyncLedger struct {
	mu        sync.RWMutex
	cycles    []CycleRecord
	attempts  map[string][]AttemptRecord // keyed by action ID
	retention time.Duration
}

// NewSyncLedger creates an empty ledger with the given retention window.
func NewSyncLedger(retention time.Duration) *SyncLedger {
	return &SyncLedger{
		attempts:  make(map[string][]AttemptRecord),
		retention: retention,
	}
}

// RecordCycle appends a completed cycle's summary.
func (sl *SyncLedger) RecordCycle(rec CycleRecord) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.cycles = append(sl.cycles, rec)
}

// RecordAttempt appends a dispatch attempt for an action.
func (sl *SyncLedger) RecordAttempt(rec AttemptRecord) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.attempts[rec.ActionID] = append(sl.attempts[rec.ActionID], rec)
}

// LastCycle returns the most recent cycle record, false when none exists.
func (sl *SyncLedger) LastCycle() (CycleRecord, bool) {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	if len(sl.cycles) == 0 {
		return CycleRecord{}, false
	}
	return sl.cycles[len(sl.cycles)-1], true
}

// CleanExpired drops records older than the retention window. Returns true
// if anything was removed.
func (sl *SyncLedger) CleanExpired() bool {
	cutoff := time.Now().Add(-sl.retention).UnixMilli()
	sl.mu.Lock()
	defer sl.mu.Unlock()
	removed := false

	kept := sl.cycles[:0]
	for _, c := range sl.cycles {
		if c.StartedAt >= cutoff {
			kept = append(kept, c)
		} else {
			removed = true
		}
	}
	sl.cycles = kept

	for id, recs := range sl.attempts {
		filtered := recs[:0]
		for _, r := range recs {
			if r.At >= cutoff {
				filtered = append(filtered, r)
			} else {
				removed = true
			}
		}
		if len(filtered) == 0 {
			delete(sl.attempts, id)
		} else {
			sl.attempts[id] = filtered
		}
	}

	return removed
}

// ClearAll empties the ledger.
func (sl *SyncLedger) ClearAll() {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.cycles = nil
	sl.attempts = make(map[string][]AttemptRecord)
}

// CycleSnapshot returns a copy of all cycle records (for serialization).
func (sl *SyncLedger) CycleSnapshot() []CycleRecord {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	snap := make([]CycleRecord, len(sl.cycles))
	copy(snap, sl.cycles)
	return snap
}

// AttemptSnapshot returns a copy of all attempt records keyed by action ID.
func (sl *SyncLedger) AttemptSnapshot() map[string][]AttemptRecord {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	snap := make(map[string][]AttemptRecord, len(sl.attempts))
	for k, v := range sl.attempts {
		cp := make([]AttemptRecord, len(v))
		copy(cp, v)
		snap[k] = cp
	}
	return snap
}
