package model_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thornvale/offline-engine/internal/model"
)

func TestValidatePayload(t *testing.T) {
	cases := []struct {
		name    string
		kind    model.ActionKind
		payload string
		wantErr bool
	}{
		{"valid move", model.KindMove, `{"x":5,"y":3,"mapName":"town"}`, false},
		{"move missing map", model.KindMove, `{"x":5,"y":3}`, true},
		{"move out of bounds", model.KindMove, `{"x":500,"y":3,"mapName":"town"}`, true},
		{"move negative coord", model.KindMove, `{"x":-1,"y":3,"mapName":"town"}`, true},
		{"move malformed json", model.KindMove, `{"x":"five"}`, true},
		{"valid interact", model.KindInteract, `{"npcId":"npc_1","action":"trade"}`, false},
		{"interact missing npc", model.KindInteract, `{"action":"trade"}`, true},
		{"valid combat", model.KindCombat, `{"battleId":"b1","move":"tackle"}`, false},
		{"combat missing battle", model.KindCombat, `{"move":"tackle"}`, true},
		{"combat missing move", model.KindCombat, `{"battleId":"b1"}`, true},
		{"valid inventory use", model.KindInventory, `{"itemSlug":"potion","quantity":1,"operation":"use"}`, false},
		{"valid inventory equip", model.KindInventory, `{"itemSlug":"sword","quantity":1,"operation":"equip"}`, false},
		{"inventory zero quantity", model.KindInventory, `{"itemSlug":"potion","quantity":0,"operation":"use"}`, true},
		{"inventory unknown op", model.KindInventory, `{"itemSlug":"potion","quantity":1,"operation":"eat"}`, true},
		{"inventory missing slug", model.KindInventory, `{"quantity":1,"operation":"use"}`, true},
		{"valid dialogue", model.KindDialogue, `{"npcId":"npc_1","message":"hello"}`, false},
		{"dialogue empty message", model.KindDialogue, `{"npcId":"npc_1","message":""}`, true},
		{"dialogue missing npc", model.KindDialogue, `{"message":"hello"}`, true},
		{"unknown kind", model.ActionKind("teleport"), `{}`, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := model.ValidatePayload(tc.kind, json.RawMessage(tc.payload))
			if tc.wantErr {
				assert.Error(t, err)
				var verr *model.ValidationError
				assert.ErrorAs(t, err, &verr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestKnownKinds(t *testing.T) {
	for _, k := range []model.ActionKind{
		model.KindMove, model.KindInteract, model.KindCombat, model.KindInventory, model.KindDialogue,
	} {
		assert.True(t, k.Known(), string(k))
	}
	assert.False(t, model.ActionKind("fly").Known())
}
