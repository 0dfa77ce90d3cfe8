// Package store defines the Store interface for the crash-durable,
// partitioned local persistence layer.
package store

import (
	"errors"

	"github.com/thornvale/offline-engine/internal/model"
)

// ErrUnavailable is returned when the underlying persistence layer cannot
// be opened or is not initialized. Callers must not crash on it: reads are
// treated as cache misses and further writes are skipped rather than
// silently lost.
var ErrUnavailable = errors.New("store unavailable")

// ErrQuotaExceeded is returned when a single record exceeds the configured
// size ceiling. Callers respond by purging expired entries and retrying
// the write once.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Stats reports record counts per partition.
type Stats struct {
	Snapshots int `json:"snapshots"`
	NPCs      int `json:"npcs"`
	Dialogues int `json:"dialogues"`
	Actions   int `json:"actions"`
	Assets    int `json:"assets"`
}

// Store is the durable key/value persistence layer partitioned by purpose.
// Misses return (nil, nil); only infrastructure failures surface as errors.
type Store interface {
	// Init opens/creates the underlying store.
	Init() error
	// Close flushes and closes the store.
	Close() error

	// SaveSnapshot overwrites the single "current" game snapshot.
	SaveSnapshot(snap *model.GameSnapshot) error
	// LoadSnapshot reads the current snapshot, nil if none was saved.
	LoadSnapshot() (*model.GameSnapshot, error)

	// CacheNPC upserts an NPC record under its owning map.
	CacheNPC(rec model.NPCRecord) error
	// NPCsByMap returns all cached NPCs for a map.
	NPCsByMap(mapName string) ([]model.NPCRecord, error)

	// CacheDialogue upserts a dialogue response stamped with the current time.
	CacheDialogue(npcID, response string) error
	// Dialogue returns the cached response for an NPC, nil on miss or when
	// the freshness window has elapsed. Stale entries are not deleted on
	// read; PurgeExpired removes them.
	Dialogue(npcID string) (*model.DialogueEntry, error)

	// EnqueueAction appends an action to the durable queue.
	EnqueueAction(a model.OfflineAction) error
	// Actions returns all queued actions sorted by timestamp ascending.
	Actions() ([]model.OfflineAction, error)
	// RemoveAction deletes an action by ID.
	RemoveAction(id string) error
	// SetRetryCount persists a new retry count for an action.
	SetRetryCount(id string, n int) error
	// BumpRetryCount increments an action's retry count, returning the new value.
	BumpRetryCount(id string) (int, error)

	// CacheAsset stores a binary blob under its URL.
	CacheAsset(url string, data []byte) error
	// Asset returns a cached blob, nil on miss.
	Asset(url string) ([]byte, error)

	// PurgeExpired deletes stale dialogue entries and actions that exhausted
	// their retry budget. Safety net behind the orchestrator's own eviction.
	PurgeExpired() (int, error)
	// Stats counts records per partition.
	Stats() (Stats, error)
}
