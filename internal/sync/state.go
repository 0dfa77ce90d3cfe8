package sync

// State is the orchestrator's cycle state. A trigger (reconnect, interval,
// manual) moves Idle to Syncing; completion or failure moves it back.
// Re-entrant triggers while Syncing are logged no-ops.
type State int32

const (
	// StateIdle means no cycle is in progress.
	StateIdle State = iota
	// StateSyncing means a cycle is draining the queue.
	StateSyncing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	default:
		return "unknown"
	}
}
