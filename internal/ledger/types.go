package ledger

// CycleRecord summarizes one completed sync cycle.
type CycleRecord struct {
	StartedAt  int64    `json:"startedAt"` // unix millis
	Reason     string   `json:"reason"`
	Total      int      `json:"total"`
	Succeeded  int      `json:"succeeded"`
	Evicted    int      `json:"evicted"`
	DurationMs int64    `json:"durationMs"`
	Errors     []string `json:"errors,omitempty"`
}

// AttemptRecord is one dispatch attempt for a queued action.
type AttemptRecord struct {
	ActionID   string `json:"actionId"`
	Kind       string `json:"kind"`
	Error      string `json:"error,omitempty"`
	Retry      int    `json:"retry"`
	MaxRetries int    `json:"maxRetries"`
	Evicted    bool   `json:"evicted"`
	At         int64  `json:"at"` // unix millis
}
