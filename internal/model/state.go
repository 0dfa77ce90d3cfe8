package model

// GameSnapshot is the last known local copy of player, party, and world
// state. A single record keyed under "current" in the durable store; read
// at process start so the game resumes without waiting on network.
type GameSnapshot struct {
	CurrentMap      string          `json:"currentMap"`
	PositionX       int             `json:"positionX"`
	PositionY       int             `json:"positionY"`
	StoryProgress   map[string]bool `json:"storyProgress,omitempty"`
	PlayTimeSeconds int             `json:"playTimeSeconds"`
	Party           []Monster       `json:"party,omitempty"`
	Inventory       []InventoryItem `json:"inventory,omitempty"`
	SavedAt         int64           `json:"savedAt"` // unix millis
}

// Monster is a party member summary.
type Monster struct {
	ID          string `json:"id"`
	SpeciesSlug string `json:"speciesSlug"`
	Name        string `json:"name"`
	Level       int    `json:"level"`
	CurrentHP   int    `json:"currentHp"`
	MaxHP       int    `json:"maxHp"`
}

// InventoryItem is an inventory line in the snapshot.
type InventoryItem struct {
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// NPCRecord is a cached NPC, indexed by its owning map for bulk retrieval
// while offline.
type NPCRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	MapName string `json:"mapName"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Sprite  string `json:"sprite,omitempty"`
	Role    string `json:"role,omitempty"`
}

// DialogueEntry is a cached NPC dialogue response. Entries older than the
// freshness window are treated as misses on read.
type DialogueEntry struct {
	NPCID    string `json:"npcId"`
	Response string `json:"response"`
	CachedAt int64  `json:"cachedAt"` // unix millis
}

// AssetEntry is a URL-keyed binary blob cached for offline play.
type AssetEntry struct {
	URL      string `json:"url"`
	Data     []byte `json:"data"`
	CachedAt int64  `json:"cachedAt"` // unix millis
}
