// Package sync implements the connectivity-aware, mutually-exclusive,
// retrying replay of the offline action queue against the remote game API.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdsync "sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/thornvale/offline-engine/internal/api/client"
	"github.com/thornvale/offline-engine/internal/event"
	"github.com/thornvale/offline-engine/internal/ledger"
	"github.com/thornvale/offline-engine/internal/model"
	"github.com/thornvale/offline-engine/internal/queue"
)

// ErrOffline is returned when a full sync is requested without connectivity.
var ErrOffline = errors.New("cannot full-sync while offline")

// Config holds the orchestrator's timing and batching knobs.
type Config struct {
	Interval        time.Duration // periodic trigger while online
	BatchSize       int           // actions per batch
	BatchDelay      time.Duration // pause between batches
	CycleRetryDelay time.Duration // delay before retrying a failed cycle
	DispatchTimeout time.Duration // per-action network timeout
}

// SnapshotSource supplies the snapshot pushed by a full sync.
type SnapshotSource interface {
	LoadSnapshot() (*model.GameSnapshot, error)
}

// Stats is the orchestrator's UI-facing status.
type Stats struct {
	IsOnline     bool  `json:"isOnline"`
	IsSyncing    bool  `json:"isSyncing"`
	PendingCount int   `json:"pendingCount"`
	LastSync     int64 `json:"lastSync,omitempty"`
}

// Orchestrator drains the action queue in timestamp order, one action in
// flight at a time, with per-action retry/eviction and whole-cycle retry
// on infrastructural failure.
type Orchestrator struct {
	queue     *queue.Queue
	snapshots SnapshotSource
	api       client.GameAPI
	bus       *event.Bus
	history   *ledger.SyncLedger
	conn      Connectivity
	cfg       Config
	logger    *zap.Logger

	state    atomic.Int32
	lastSync atomic.Int64

	retryMu    stdsync.Mutex
	retryTimer *time.Timer
}

// New creates an Orchestrator. Call Start to arm the periodic trigger and
// the reconnect listener.
func New(q *queue.Queue, snaps SnapshotSource, api client.GameAPI, bus *event.Bus,
	history *ledger.SyncLedger, conn Connectivity, cfg Config, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		queue:     q,
		snapshots: snaps,
		api:       api,
		bus:       bus,
		history:   history,
		conn:      conn,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start arms the reconnect listener and the periodic ticker. The ticker is
// suppressed while offline; a reconnect triggers an immediate cycle.
func (o *Orchestrator) Start(ctx context.Context) {
	o.conn.Subscribe(func(online bool) {
		if online {
			o.TriggerSync("reconnect")
		}
	})

	go func() {
		ticker := time.NewTicker(o.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if o.conn.Online() {
					o.TriggerSync("interval")
				}
			}
		}
	}()
}

// Stop cancels any scheduled cycle retry.
func (o *Orchestrator) Stop() {
	o.retryMu.Lock()
	defer o.retryMu.Unlock()
	if o.retryTimer != nil {
		o.retryTimer.Stop()
		o.retryTimer = nil
	}
}

// TriggerSync requests a cycle without blocking the caller. A trigger while
// a cycle is in flight is a logged no-op.
func (o *Orchestrator) TriggerSync(reason string) {
	go func() {
		_ = o.SyncNow(context.Background(), reason)
	}()
}

// State reports the current cycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// LastSync returns the unix-millis watermark of the last completed cycle.
func (o *Orchestrator) LastSync() int64 {
	return o.lastSync.Load()
}

// Stats returns the UI-facing status snapshot.
func (o *Orchestrator) Stats() Stats {
	pending, err := o.queue.Pending()
	if err != nil {
		o.logger.Warn("pending count unavailable", zap.Error(err))
	}
	return Stats{
		IsOnline:     o.conn.Online(),
		IsSyncing:    o.State() == StateSyncing,
		PendingCount: len(pending),
		LastSync:     o.lastSync.Load(),
	}
}

// SyncNow runs one cycle synchronously. Exactly one cycle runs at a time;
// a concurrent call returns immediately. An empty queue is a silent no-op.
func (o *Orchestrator) SyncNow(ctx context.Context, reason string) error {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateSyncing)) {
		o.logger.Debug("sync already in progress, ignoring trigger", zap.String("reason", reason))
		return nil
	}
	defer o.state.Store(int32(StateIdle))

	started := time.Now()
	pending, err := o.queue.Pending()
	if err != nil {
		o.failCycle(reason, started, err)
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	total := len(pending)
	o.logger.Info("sync cycle starting",
		zap.String("reason", reason),
		zap.Int("pending", total),
	)
	o.bus.Publish(event.Start(total))

	completed := 0
	succeeded := 0
	evicted := 0
	var errs []string

	// Batches exist only to pace the backend; processing stays strictly
	// sequential so network dispatch order follows timestamp order.
	for start := 0; start < total; start += o.cfg.BatchSize {
		end := start + o.cfg.BatchSize
		if end > total {
			end = total
		}
		for _, a := range pending[start:end] {
			outcome, err := o.processAction(ctx, a)
			if err != nil {
				// Storage gave out mid-cycle; abort and retry the whole
				// cycle after a delay rather than busy-looping.
				o.failCycle(reason, started, err)
				return err
			}
			if outcome.succeeded {
				succeeded++
			}
			if outcome.evicted {
				evicted++
			}
			if outcome.errMsg != "" {
				errs = append(errs, outcome.errMsg)
			}
			completed++
			o.bus.Publish(event.Progress(completed, total, string(a.Kind)))
		}
		if end < total {
			select {
			case <-ctx.Done():
				o.failCycle(reason, started, ctx.Err())
				return ctx.Err()
			case <-time.After(o.cfg.BatchDelay):
			}
		}
	}

	if len(errs) > 0 {
		o.bus.Publish(event.Failed(errs))
	} else {
		o.bus.Publish(event.Complete())
	}
	o.lastSync.Store(time.Now().UnixMilli())
	o.history.RecordCycle(ledger.CycleRecord{
		StartedAt:  started.UnixMilli(),
		Reason:     reason,
		Total:      total,
		Succeeded:  succeeded,
		Evicted:    evicted,
		DurationMs: time.Since(started).Milliseconds(),
		Errors:     errs,
	})
	o.logger.Info("sync cycle finished",
		zap.Int("total", total),
		zap.Int("succeeded", succeeded),
		zap.Int("evicted", evicted),
		zap.Int("errors", len(errs)),
	)
	return nil
}

// ForceFullSync drains the queue, then pushes the full local snapshot for
// server-side reconciliation. Errors immediately while offline.
func (o *Orchestrator) ForceFullSync(ctx context.Context) error {
	if !o.conn.Online() {
		return ErrOffline
	}
	if err := o.SyncNow(ctx, "full-sync"); err != nil {
		return err
	}
	snap, err := o.snapshots.LoadSnapshot()
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if snap == nil {
		return nil
	}
	fctx, cancel := context.WithTimeout(ctx, o.cfg.DispatchTimeout)
	defer cancel()
	if err := o.api.SaveFullState(fctx, snap, o.lastSync.Load()); err != nil {
		return fmt.Errorf("push snapshot: %w", err)
	}
	return nil
}

// outcome classifies one processed action. errMsg is the human-readable
// string surfaced via the error event; a non-nil error from processAction
// means storage itself failed and the cycle must abort.
type outcome struct {
	succeeded bool
	evicted   bool
	errMsg    string
}

func (o *Orchestrator) processAction(ctx context.Context, a model.OfflineAction) (outcome, error) {
	now := time.Now().UnixMilli()
	disErr := o.dispatch(ctx, a)
	if disErr == nil {
		if err := o.queue.Ack(a.ID); err != nil {
			return outcome{}, fmt.Errorf("ack %s: %w", a.ID, err)
		}
		o.history.RecordAttempt(ledger.AttemptRecord{
			ActionID:   a.ID,
			Kind:       string(a.Kind),
			Retry:      a.RetryCount,
			MaxRetries: a.MaxRetries,
			At:         now,
		})
		return outcome{succeeded: true}, nil
	}

	// Local validation failures and permanent server rejections are
	// terminal: evict immediately, never retry.
	var verr *model.ValidationError
	if errors.As(disErr, &verr) || !client.Retryable(disErr) {
		if err := o.queue.Ack(a.ID); err != nil {
			return outcome{}, fmt.Errorf("evict %s: %w", a.ID, err)
		}
		msg := fmt.Sprintf("%s action rejected: %v", a.Kind, disErr)
		o.history.RecordAttempt(ledger.AttemptRecord{
			ActionID:   a.ID,
			Kind:       string(a.Kind),
			Error:      disErr.Error(),
			Retry:      a.RetryCount,
			MaxRetries: a.MaxRetries,
			Evicted:    true,
			At:         now,
		})
		return outcome{evicted: true, errMsg: msg}, nil
	}

	// Transient failure: bump the counter, or evict once the budget is
	// spent so one poisoned action cannot wedge the queue forever.
	newCount := a.RetryCount + 1
	if newCount >= a.MaxRetries {
		if err := o.queue.Ack(a.ID); err != nil {
			return outcome{}, fmt.Errorf("evict %s: %w", a.ID, err)
		}
		msg := fmt.Sprintf("max retries exceeded for %s action", a.Kind)
		o.history.RecordAttempt(ledger.AttemptRecord{
			ActionID:   a.ID,
			Kind:       string(a.Kind),
			Error:      disErr.Error(),
			Retry:      newCount,
			MaxRetries: a.MaxRetries,
			Evicted:    true,
			At:         now,
		})
		return outcome{evicted: true, errMsg: msg}, nil
	}

	if _, err := o.queue.BumpRetry(a.ID); err != nil {
		return outcome{}, fmt.Errorf("bump retry %s: %w", a.ID, err)
	}
	msg := fmt.Sprintf("retry %d/%d for %s action", newCount, a.MaxRetries, a.Kind)
	o.history.RecordAttempt(ledger.AttemptRecord{
		ActionID:   a.ID,
		Kind:       string(a.Kind),
		Error:      disErr.Error(),
		Retry:      newCount,
		MaxRetries: a.MaxRetries,
		At:         now,
	})
	return outcome{errMsg: msg}, nil
}

// dispatch validates the payload locally, then submits it with a bounded
// timeout so a hung call cannot stall the queue.
func (o *Orchestrator) dispatch(ctx context.Context, a model.OfflineAction) error {
	if err := model.ValidatePayload(a.Kind, a.Payload); err != nil {
		return err
	}

	dctx, cancel := context.WithTimeout(ctx, o.cfg.DispatchTimeout)
	defer cancel()
	meta := client.Meta{ActionID: a.ID, Timestamp: a.Timestamp}

	switch a.Kind {
	case model.KindMove:
		var p model.MovePayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return &model.ValidationError{Kind: a.Kind, Reason: err.Error()}
		}
		return o.api.SubmitMove(dctx, p, meta)
	case model.KindInteract:
		var p model.InteractPayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return &model.ValidationError{Kind: a.Kind, Reason: err.Error()}
		}
		return o.api.SubmitInteract(dctx, p, meta)
	case model.KindCombat:
		var p model.CombatPayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return &model.ValidationError{Kind: a.Kind, Reason: err.Error()}
		}
		return o.api.SubmitCombat(dctx, p, meta)
	case model.KindInventory:
		var p model.InventoryPayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return &model.ValidationError{Kind: a.Kind, Reason: err.Error()}
		}
		return o.api.SubmitInventory(dctx, p, meta)
	case model.KindDialogue:
		var p model.DialoguePayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return &model.ValidationError{Kind: a.Kind, Reason: err.Error()}
		}
		return o.api.SubmitDialogue(dctx, p, meta)
	default:
		return &model.ValidationError{Kind: a.Kind, Reason: "unknown action kind"}
	}
}

// failCycle surfaces an infrastructural failure and schedules a single
// delayed whole-cycle retry, replacing any previously scheduled one.
func (o *Orchestrator) failCycle(reason string, started time.Time, err error) {
	o.logger.Error("sync cycle failed", zap.String("reason", reason), zap.Error(err))
	o.bus.Publish(event.Failed([]string{err.Error()}))
	o.history.RecordCycle(ledger.CycleRecord{
		StartedAt:  started.UnixMilli(),
		Reason:     reason,
		DurationMs: time.Since(started).Milliseconds(),
		Errors:     []string{err.Error()},
	})
	o.scheduleCycleRetry()
}

func (o *Orchestrator) scheduleCycleRetry() {
	o.retryMu.Lock()
	defer o.retryMu.Unlock()
	if o.retryTimer != nil {
		o.retryTimer.Stop()
	}
	o.retryTimer = time.AfterFunc(o.cfg.CycleRetryDelay, func() {
		o.TriggerSync("cycle-retry")
	})
}
