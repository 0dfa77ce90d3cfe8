// Package client is the remote game API boundary: one call per action
// kind plus a full-state save and a health probe, consumed as a generic
// submit-or-fail capability by the sync orchestrator.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/thornvale/offline-engine/internal/model"
)

// Meta carries the queued action's identity into every submit call. The
// ID doubles as the idempotency key so a retried dispatch that already
// landed is a server-side no-op.
type Meta struct {
	ActionID  string
	Timestamp int64 // original enqueue time, unix millis
}

// GameAPI is the remote boundary consumed by the sync orchestrator.
type GameAPI interface {
	SubmitMove(ctx context.Context, p model.MovePayload, meta Meta) error
	SubmitInteract(ctx context.Context, p model.InteractPayload, meta Meta) error
	SubmitCombat(ctx context.Context, p model.CombatPayload, meta Meta) error
	SubmitInventory(ctx context.Context, p model.InventoryPayload, meta Meta) error
	SubmitDialogue(ctx context.Context, p model.DialoguePayload, meta Meta) error
	// SaveFullState pushes the whole snapshot for server-side reconciliation.
	SaveFullState(ctx context.Context, snap *model.GameSnapshot, lastSync int64) error
	// Health probes backend reachability.
	Health(ctx context.Context) error
}

// HTTPClient talks JSON over HTTP to the game backend.
type HTTPClient struct {
	base   string
	hc     *http.Client
	logger *zap.Logger
}

// NewHTTPClient creates a client for the given base URL with a bounded
// per-call timeout.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		base:   baseURL,
		hc:     &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// SubmitMove reports a player movement.
func (c *HTTPClient) SubmitMove(ctx context.Context, p model.MovePayload, meta Meta) error {
	body := map[string]any{"new_x": p.X, "new_y": p.Y, "new_map": p.MapName}
	return c.post(ctx, "/api/game/move", body, meta)
}

// SubmitInteract reports a non-dialogue NPC interaction.
func (c *HTTPClient) SubmitInteract(ctx context.Context, p model.InteractPayload, meta Meta) error {
	body := map[string]any{"action": p.Action}
	return c.post(ctx, "/api/npcs/"+p.NPCID+"/interact", body, meta)
}

// SubmitCombat reports one battle move.
func (c *HTTPClient) SubmitCombat(ctx context.Context, p model.CombatPayload, meta Meta) error {
	body := map[string]any{"battle_id": p.BattleID, "move": p.Move}
	return c.post(ctx, "/api/combat/action", body, meta)
}

// SubmitInventory reports an inventory mutation.
func (c *HTTPClient) SubmitInventory(ctx context.Context, p model.InventoryPayload, meta Meta) error {
	body := map[string]any{"item_slug": p.ItemSlug, "quantity": p.Quantity, "operation": p.Operation}
	return c.post(ctx, "/api/inventory/use", body, meta)
}

// SubmitDialogue delivers a player line to an NPC.
func (c *HTTPClient) SubmitDialogue(ctx context.Context, p model.DialoguePayload, meta Meta) error {
	body := map[string]any{"message": p.Message}
	return c.post(ctx, "/api/npcs/"+p.NPCID+"/dialogue", body, meta)
}

// SaveFullState pushes the full snapshot with the last sync watermark.
func (c *HTTPClient) SaveFullState(ctx context.Context, snap *model.GameSnapshot, lastSync int64) error {
	body := map[string]any{
		"current_map":         snap.CurrentMap,
		"position_x":          snap.PositionX,
		"position_y":          snap.PositionY,
		"story_progress":      snap.StoryProgress,
		"play_time_seconds":   snap.PlayTimeSeconds,
		"last_sync_timestamp": lastSync,
	}
	return c.post(ctx, "/api/game/save", body, Meta{Timestamp: snap.SavedAt})
}

// Health probes the backend.
func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("health request: %w", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return &NetworkError{Op: "health", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &ServerError{Status: resp.StatusCode, Message: "health check failed"}
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body any, meta Meta) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if meta.ActionID != "" {
		req.Header.Set("Idempotency-Key", meta.ActionID)
	}
	if meta.Timestamp != 0 {
		req.Header.Set("X-Client-Timestamp", strconv.FormatInt(meta.Timestamp, 10))
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return &NetworkError{Op: "POST " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 400 {
		return nil
	}

	msg := readErrorMessage(resp.Body)
	c.logger.Warn("submit rejected",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("detail", msg),
	)
	return &ServerError{
		Status:      resp.StatusCode,
		Message:     msg,
		AuthExpired: resp.StatusCode == http.StatusUnauthorized,
		Permanent:   permanentStatus(resp.StatusCode),
	}
}

// permanentStatus marks client errors a retry cannot fix. 401 stays
// retryable since the session layer may renew between cycles. 408/429 are
// transient by definition.
func permanentStatus(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusGone, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

func readErrorMessage(r io.Reader) string {
	var body struct {
		Detail string `json:"detail"`
	}
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Detail != "" {
		return body.Detail
	}
	return string(raw)
}
