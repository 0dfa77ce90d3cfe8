package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/thornvale/offline-engine/internal/model"
)

// Partition key prefixes. Action keys embed a zero-padded timestamp so
// pebble's sorted iteration yields the queue in timestamp order.
const (
	snapshotKey    = "snapshot/current"
	npcPrefix      = "npc/"
	dialoguePrefix = "dialogue/"
	actionPrefix   = "action/"
	assetPrefix    = "asset/"
)

// PebbleStore is a Pebble LSM-tree backed Store.
type PebbleStore struct {
	db        *pebble.DB
	path      string
	freshness time.Duration
	maxRecord int
	logger    *zap.Logger
}

// NewPebbleStore creates a PebbleStore instance (not yet opened).
// freshness is the dialogue cache window; maxRecord caps a single
// serialized record's byte size.
func NewPebbleStore(dbPath string, freshness time.Duration, maxRecord int, logger *zap.Logger) *PebbleStore {
	return &PebbleStore{
		path:      dbPath,
		freshness: freshness,
		maxRecord: maxRecord,
		logger:    logger,
	}
}

// Init opens the Pebble database.
func (p *PebbleStore) Init() error {
	opts := &pebble.Options{
		Logger: &pebbleLogger{p.logger},
	}
	db, err := pebble.Open(p.path, opts)
	if err != nil {
		p.logger.Error("pebble open failed", zap.String("path", p.path), zap.Error(err))
		return fmt.Errorf("pebble open %s: %w", p.path, ErrUnavailable)
	}
	p.db = db
	p.logger.Info("Pebble store opened", zap.String("path", p.path))
	return nil
}

// Close flushes and closes the database.
func (p *PebbleStore) Close() error {
	if p.db != nil {
		err := p.db.Close()
		p.db = nil
		return err
	}
	return nil
}

// set marshals and writes a record, enforcing the size ceiling.
func (p *PebbleStore) set(key string, v any) error {
	if p.db == nil {
		return ErrUnavailable
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if p.maxRecord > 0 && len(data) > p.maxRecord {
		return fmt.Errorf("record %s is %d bytes: %w", key, len(data), ErrQuotaExceeded)
	}
	if err := p.db.Set([]byte(key), data, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set %s: %w", key, err)
	}
	return nil
}

// get reads and unmarshals a record. Returns (false, nil) on a miss.
func (p *PebbleStore) get(key string, v any) (bool, error) {
	if p.db == nil {
		return false, ErrUnavailable
	}
	data, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pebble get %s: %w", key, err)
	}
	defer closer.Close()
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// SaveSnapshot overwrites the single current snapshot.
func (p *PebbleStore) SaveSnapshot(snap *model.GameSnapshot) error {
	return p.set(snapshotKey, snap)
}

// LoadSnapshot reads the current snapshot, nil if none exists.
func (p *PebbleStore) LoadSnapshot() (*model.GameSnapshot, error) {
	var snap model.GameSnapshot
	ok, err := p.get(snapshotKey, &snap)
	if err != nil || !ok {
		return nil, err
	}
	return &snap, nil
}

// CacheNPC upserts an NPC record under its owning map.
func (p *PebbleStore) CacheNPC(rec model.NPCRecord) error {
	return p.set(npcPrefix+rec.MapName+"/"+rec.ID, rec)
}

// NPCsByMap returns all cached NPCs for a map via prefix iteration.
func (p *PebbleStore) NPCsByMap(mapName string) ([]model.NPCRecord, error) {
	var out []model.NPCRecord
	err := p.iterPrefix(npcPrefix+mapName+"/", func(_, value []byte) error {
		var rec model.NPCRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil // skip corrupt record
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// CacheDialogue upserts a dialogue response stamped with the current time.
func (p *PebbleStore) CacheDialogue(npcID, response string) error {
	return p.set(dialoguePrefix+npcID, model.DialogueEntry{
		NPCID:    npcID,
		Response: response,
		CachedAt: time.Now().UnixMilli(),
	})
}

// Dialogue returns the cached response, nil on miss or past the freshness
// window. Stale entries stay on disk until PurgeExpired.
func (p *PebbleStore) Dialogue(npcID string) (*model.DialogueEntry, error) {
	var entry model.DialogueEntry
	ok, err := p.get(dialoguePrefix+npcID, &entry)
	if err != nil || !ok {
		return nil, err
	}
	if p.stale(entry.CachedAt) {
		return nil, nil
	}
	return &entry, nil
}

func (p *PebbleStore) stale(cachedAt int64) bool {
	return time.Since(time.UnixMilli(cachedAt)) > p.freshness
}

// actionKey embeds the zero-padded timestamp so key order is queue order.
func actionKey(timestamp int64, id string) string {
	return fmt.Sprintf("%s%020d/%s", actionPrefix, timestamp, id)
}

// EnqueueAction appends an action to the durable queue.
func (p *PebbleStore) EnqueueAction(a model.OfflineAction) error {
	return p.set(actionKey(a.Timestamp, a.ID), a)
}

// Actions returns queued actions sorted by timestamp ascending.
func (p *PebbleStore) Actions() ([]model.OfflineAction, error) {
	var out []model.OfflineAction
	err := p.iterPrefix(actionPrefix, func(_, value []byte) error {
		var a model.OfflineAction
		if err := json.Unmarshal(value, &a); err != nil {
			return nil
		}
		out = append(out, a)
		return nil
	})
	return out, err
}

// findActionKey locates the full key for an action ID.
func (p *PebbleStore) findActionKey(id string) (string, *model.OfflineAction, error) {
	var foundKey string
	var found *model.OfflineAction
	err := p.iterPrefix(actionPrefix, func(key, value []byte) error {
		if found != nil {
			return nil
		}
		var a model.OfflineAction
		if err := json.Unmarshal(value, &a); err != nil {
			return nil
		}
		if a.ID == id {
			foundKey = string(key)
			found = &a
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return foundKey, found, nil
}

// RemoveAction deletes an action by ID.
func (p *PebbleStore) RemoveAction(id string) error {
	if p.db == nil {
		return ErrUnavailable
	}
	key, found, err := p.findActionKey(id)
	if err != nil {
		return err
	}
	if found == nil {
		return nil
	}
	if err := p.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("pebble delete %s: %w", key, err)
	}
	return nil
}

// SetRetryCount persists a new retry count for an action.
func (p *PebbleStore) SetRetryCount(id string, n int) error {
	key, found, err := p.findActionKey(id)
	if err != nil {
		return err
	}
	if found == nil {
		return fmt.Errorf("action %s not queued", id)
	}
	found.RetryCount = n
	return p.set(key, found)
}

// BumpRetryCount increments an action's retry count in place.
func (p *PebbleStore) BumpRetryCount(id string) (int, error) {
	key, found, err := p.findActionKey(id)
	if err != nil {
		return 0, err
	}
	if found == nil {
		return 0, fmt.Errorf("action %s not queued", id)
	}
	found.RetryCount++
	if err := p.set(key, found); err != nil {
		return 0, err
	}
	return found.RetryCount, nil
}

// CacheAsset stores a binary blob under its URL.
func (p *PebbleStore) CacheAsset(url string, data []byte) error {
	return p.set(assetPrefix+url, model.AssetEntry{
		URL:      url,
		Data:     data,
		CachedAt: time.Now().UnixMilli(),
	})
}

// Asset returns a cached blob, nil on miss.
func (p *PebbleStore) Asset(url string) ([]byte, error) {
	var entry model.AssetEntry
	ok, err := p.get(assetPrefix+url, &entry)
	if err != nil || !ok {
		return nil, err
	}
	return entry.Data, nil
}

// PurgeExpired deletes dialogue entries older than the freshness window and
// actions whose retry budget is exhausted. Returns the count removed.
func (p *PebbleStore) PurgeExpired() (int, error) {
	if p.db == nil {
		return 0, ErrUnavailable
	}

	var doomed [][]byte
	err := p.iterPrefix(dialoguePrefix, func(key, value []byte) error {
		var entry model.DialogueEntry
		if err := json.Unmarshal(value, &entry); err != nil || p.stale(entry.CachedAt) {
			doomed = append(doomed, append([]byte(nil), key...))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	err = p.iterPrefix(actionPrefix, func(key, value []byte) error {
		var a model.OfflineAction
		if err := json.Unmarshal(value, &a); err != nil || a.RetryCount >= a.MaxRetries {
			doomed = append(doomed, append([]byte(nil), key...))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(doomed) == 0 {
		return 0, nil
	}

	batch := p.db.NewBatch()
	defer batch.Close()
	for _, k := range doomed {
		if err := batch.Delete(k, nil); err != nil {
			return 0, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, err
	}

	p.logger.Info("Purged expired records", zap.Int("count", len(doomed)))
	return len(doomed), nil
}

// Stats counts records per partition.
func (p *PebbleStore) Stats() (Stats, error) {
	var s Stats
	if p.db == nil {
		return s, ErrUnavailable
	}
	if snap, err := p.LoadSnapshot(); err == nil && snap != nil {
		s.Snapshots = 1
	}
	counts := []struct {
		prefix string
		dst    *int
	}{
		{npcPrefix, &s.NPCs},
		{dialoguePrefix, &s.Dialogues},
		{actionPrefix, &s.Actions},
		{assetPrefix, &s.Assets},
	}
	for _, c := range counts {
		n := 0
		if err := p.iterPrefix(c.prefix, func(_, _ []byte) error {
			n++
			return nil
		}); err != nil {
			return s, err
		}
		*c.dst = n
	}
	return s, nil
}

// iterPrefix walks all keys under a prefix in sorted order.
func (p *PebbleStore) iterPrefix(prefix string, fn func(key, value []byte) error) error {
	if p.db == nil {
		return ErrUnavailable
	}
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: keyUpperBound([]byte(prefix)),
	})
	if err != nil {
		return fmt.Errorf("pebble iter %s: %w", prefix, err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// keyUpperBound returns the smallest key greater than every key with the
// given prefix.
func keyUpperBound(b []byte) []byte {
	end := append([]byte(nil), b...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff; no upper bound
}

// pebbleLogger adapts zap.Logger to the pebble.Logger interface.
type pebbleLogger struct {
	z *zap.Logger
}

func (l *pebbleLogger) Infof(format string, args ...any) {
	l.z.Sugar().Infof(format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...any) {
	l.z.Sugar().Fatalf(format, args...)
}
