// Package queue is the thin semantic layer between the sync orchestrator
// and the durable store's action partition. It owns ID/timestamp assignment
// and per-kind retry ceilings; it has no other business logic.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thornvale/offline-engine/internal/model"
)

// Queue wraps the store's action partition.
type Queue struct {
	store  Storage
	now    func() int64
	logger *zap.Logger
}

// Storage is the slice of the durable store the queue needs.
type Storage interface {
	EnqueueAction(a model.OfflineAction) error
	Actions() ([]model.OfflineAction, error)
	RemoveAction(id string) error
	BumpRetryCount(id string) (int, error)
}

// New creates a Queue over the given storage.
func New(s Storage, now func() int64, logger *zap.Logger) *Queue {
	return &Queue{store: s, now: now, logger: logger}
}

// Queue enqueues a mutation with the kind's default retry ceiling.
func (q *Queue) Queue(kind model.ActionKind, payload any) (model.OfflineAction, error) {
	return q.QueueWithRetries(kind, payload, model.DefaultMaxRetries(kind))
}

// QueueWithRetries enqueues a mutation with an explicit retry ceiling,
// assigning its ID and timestamp.
func (q *Queue) QueueWithRetries(kind model.ActionKind, payload any, maxRetries int) (model.OfflineAction, error) {
	if !kind.Known() {
		return model.OfflineAction{}, fmt.Errorf("unknown action kind %q", kind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return model.OfflineAction{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	a := model.OfflineAction{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    raw,
		Timestamp:  q.now(),
		MaxRetries: maxRetries,
	}
	if err := q.store.EnqueueAction(a); err != nil {
		return model.OfflineAction{}, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	q.logger.Debug("action queued",
		zap.String("id", a.ID),
		zap.String("kind", string(kind)),
		zap.Int("maxRetries", maxRetries),
	)
	return a, nil
}

// Pending returns queued actions sorted by timestamp ascending.
func (q *Queue) Pending() ([]model.OfflineAction, error) {
	return q.store.Actions()
}

// Ack removes a processed action from the queue.
func (q *Queue) Ack(id string) error {
	return q.store.RemoveAction(id)
}

// BumpRetry increments an action's retry count, returning the new count.
func (q *Queue) BumpRetry(id string) (int, error) {
	return q.store.BumpRetryCount(id)
}
