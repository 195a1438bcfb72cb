package state

import (
	"sync"
	"time"
)

// Snapshot describes the most recent loop iteration. It is observational
// only: the engine never reads it back to make a decision.
type Snapshot struct {
	Iteration     uint64    `json:"iteration"`
	Symbol        string    `json:"symbol"`
	LastRun       time.Time `json:"last_run"`
	LastBarTime   time.Time `json:"last_bar_time"`
	Balance       float64   `json:"balance"`
	Equity        float64   `json:"equity"`
	Close         float64   `json:"close"`
	SMA           float64   `json:"sma"`
	STD           float64   `json:"std"`
	UpperBand     float64   `json:"upper_band"`
	LowerBand     float64   `json:"lower_band"`
	Action        string    `json:"action"`
	Result        string    `json:"result"`
	OpenPositions int       `json:"open_positions"`
	LastError     string    `json:"last_error,omitempty"`
}

type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

func NewStore(symbol string) *Store {
	return &Store{snapshot: Snapshot{Symbol: symbol}}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Record replaces the snapshot and bumps the iteration counter.
func (s *Store) Record(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot.Iteration = s.snapshot.Iteration + 1
	if snapshot.Symbol == "" {
		snapshot.Symbol = s.snapshot.Symbol
	}
	s.snapshot = snapshot
}
