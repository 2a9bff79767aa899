package engine

import "sync"

// Ledger tracks which round-completion and match-completion events have
// already been applied. The transport delivers at-least-once during
// reconnect replay; completion events mutate cumulative totals, so applying
// one twice would double-count. Cleared on MatchFound and on session reset.
type Ledger struct {
	mu      sync.Mutex
	rounds  map[string]struct{} // matchID:roundID
	matches map[string]struct{} // matchID
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{
		rounds:  make(map[string]struct{}),
		matches: make(map[string]struct{}),
	}
}

func roundKey(matchID, roundID string) string {
	return matchID + ":" + roundID
}

// MarkRoundEnded records a round completion. Returns false if the key was
// already recorded, meaning the event is a replay and must be dropped.
func (l *Ledger) MarkRoundEnded(matchID, roundID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := roundKey(matchID, roundID)
	if _, seen := l.rounds[key]; seen {
		return false
	}
	l.rounds[key] = struct{}{}
	return true
}

// SeenRoundEnded reports whether a round completion was already applied
func (l *Ledger) SeenRoundEnded(matchID, roundID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, seen := l.rounds[roundKey(matchID, roundID)]
	return seen
}

// MarkMatchEnded records a match completion. Returns false on replay.
func (l *Ledger) MarkMatchEnded(matchID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, seen := l.matches[matchID]; seen {
		return false
	}
	l.matches[matchID] = struct{}{}
	return true
}

// Reset clears both key sets. Called at MatchFound (new key space) and on
// full session reset.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rounds = make(map[string]struct{})
	l.matches = make(map[string]struct{})
}
