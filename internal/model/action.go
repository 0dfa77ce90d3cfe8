// Package model defines the records persisted by the durable store and the
// offline action types replayed by the sync orchestrator.
package model

import (
	"encoding/json"
	"fmt"
)

// ActionKind identifies the closed set of queueable player mutations.
type ActionKind string

const (
	KindMove      ActionKind = "move"
	KindInteract  ActionKind = "interact"
	KindCombat    ActionKind = "combat"
	KindInventory ActionKind = "inventory"
	KindDialogue  ActionKind = "dialogue"
)

// Known returns true for a recognized action kind.
func (k ActionKind) Known() bool {
	switch k {
	case KindMove, KindInteract, KindCombat, KindInventory, KindDialogue:
		return true
	}
	return false
}

// DefaultMaxRetries returns the per-kind retry ceiling applied when the
// caller does not set one explicitly. Combat and inventory mutations are
// worth more attempts than a stale dialogue line.
func DefaultMaxRetries(k ActionKind) int {
	switch k {
	case KindCombat, KindInventory:
		return 5
	case KindDialogue:
		return 2
	default:
		return 3
	}
}

// OfflineAction is a queued player mutation awaiting server confirmation.
// The ID is assigned at enqueue time and stays stable for the action's
// lifetime; Timestamp is the queue's total order.
type OfflineAction struct {
	ID         string          `json:"id"`
	Kind       ActionKind      `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  int64           `json:"timestamp"` // unix millis
	RetryCount int             `json:"retryCount"`
	MaxRetries int             `json:"maxRetries"`
}

// MovePayload targets a tile on a named map.
type MovePayload struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	MapName string `json:"mapName"`
}

// InteractPayload is a non-dialogue NPC interaction (trade, gift, inspect).
type InteractPayload struct {
	NPCID  string `json:"npcId"`
	Action string `json:"action"`
}

// CombatPayload is one battle move inside an ongoing encounter.
type CombatPayload struct {
	BattleID string `json:"battleId"`
	Move     string `json:"move"`
}

// InventoryPayload mutates the player's inventory.
type InventoryPayload struct {
	ItemSlug  string `json:"itemSlug"`
	Quantity  int    `json:"quantity"`
	Operation string `json:"operation"` // use | drop | equip
}

// DialoguePayload is a player line addressed to an NPC.
type DialoguePayload struct {
	NPCID   string `json:"npcId"`
	Message string `json:"message"`
}

// ValidationError flags a locally malformed payload. Actions failing
// validation are never dispatched to the network and are evicted from the
// queue on first sight.
type ValidationError struct {
	Kind   ActionKind
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.Kind, e.Reason)
}

// World bounds enforced server-side; checking locally avoids a wasted round trip.
const (
	mapMinCoord = 0
	mapMaxCoord = 100
)

// ValidatePayload checks a payload against its kind's shape before any
// network dispatch. Every kind validates, not just move.
func ValidatePayload(kind ActionKind, payload json.RawMessage) error {
	switch kind {
	case KindMove:
		var p MovePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return &ValidationError{Kind: kind, Reason: err.Error()}
		}
		if p.MapName == "" {
			return &ValidationError{Kind: kind, Reason: "missing map name"}
		}
		if p.X < mapMinCoord || p.X > mapMaxCoord || p.Y < mapMinCoord || p.Y > mapMaxCoord {
			return &ValidationError{Kind: kind, Reason: fmt.Sprintf("coordinates (%d,%d) out of bounds", p.X, p.Y)}
		}
	case KindInteract:
		var p InteractPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return &ValidationError{Kind: kind, Reason: err.Error()}
		}
		if p.NPCID == "" {
			return &ValidationError{Kind: kind, Reason: "missing npc id"}
		}
	case KindCombat:
		var p CombatPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return &ValidationError{Kind: kind, Reason: err.Error()}
		}
		if p.BattleID == "" {
			return &ValidationError{Kind: kind, Reason: "missing battle id"}
		}
		if p.Move == "" {
			return &ValidationError{Kind: kind, Reason: "missing move"}
		}
	case KindInventory:
		var p InventoryPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return &ValidationError{Kind: kind, Reason: err.Error()}
		}
		if p.ItemSlug == "" {
			return &ValidationError{Kind: kind, Reason: "missing item slug"}
		}
		if p.Quantity < 1 {
			return &ValidationError{Kind: kind, Reason: "quantity must be positive"}
		}
		switch p.Operation {
		case "use", "drop", "equip":
		default:
			return &ValidationError{Kind: kind, Reason: fmt.Sprintf("unknown operation %q", p.Operation)}
		}
	case KindDialogue:
		var p DialoguePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return &ValidationError{Kind: kind, Reason: err.Error()}
		}
		if p.NPCID == "" {
			return &ValidationError{Kind: kind, Reason: "missing npc id"}
		}
		if p.Message == "" {
			return &ValidationError{Kind: kind, Reason: "empty message"}
		}
	default:
		return &ValidationError{Kind: kind, Reason: "unknown action kind"}
	}
	return nil
}
