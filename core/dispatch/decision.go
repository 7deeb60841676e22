package dispatch

import (
	"sync"
	"time"
)

// State tracks an incident through the dispatch lifecycle.
type State string

const (
	StateNew        State = "new"
	StateSoliciting State = "soliciting"
	StateCollecting State = "collecting"
	StateSelecting  State = "selecting"
	StateDispatched State = "dispatched"
	StateFailed     State = "failed"
)

// Decision is the audit record of one dispatch attempt.
type Decision struct {
	IncidentID     string        `json:"incident_id"`
	State          State         `json:"state"`
	UnitID         string        `json:"unit_id,omitempty"`
	WinningScore   float64       `json:"winning_score,omitempty"`
	BidsConsidered int           `json:"bids_considered"`
	Fallback       bool          `json:"fallback"`
	Reason         string        `json:"reason,omitempty"`
	Window         time.Duration `json:"window"`
	DecidedAt      time.Time     `json:"decided_at"`
}

const decisionHistoryCap = 100

// decisionLog keeps a bounded ring of recent decisions for introspection.
type decisionLog struct {
	mu      sync.RWMutex
	entries []Decision
}

func (l *decisionLog) add(d Decision) {
	l.mu.Lock()
	l.entries = append(l.entries, d)
	if len(l.entries) > decisionHistoryCap {
		l.entries = l.entries[len(l.entries)-decisionHistoryCap:]
	}
	l.mu.Unlock()
}

// Recent returns a copy of the retained decisions, oldest first.
func (l *decisionLog) Recent() []Decision {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Decision, len(l.entries))
	copy(out, l.entries)
	return out
}
