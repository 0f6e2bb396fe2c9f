package pipeline

import (
	"errors"
	"sync"
	"time"
)

// ErrNoData is returned by readers before the first run has finished.
var ErrNoData = errors.New("no pipeline run has completed")

// Snapshot is a Result tagged with the run that produced it.
type Snapshot struct {
	RunID      string
	Result     Result
	FinishedAt time.Time
}

// Latest holds the most recent successful bundle.
type Latest struct {
	mu   sync.RWMutex
	snap *Snapshot
}

func NewLatest() *Latest { return &Latest{} }

// Set replaces the current snapshot.
func (l *Latest) Set(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap = &s
}

// Get returns the current snapshot or ErrNoData.
func (l *Latest) Get() (Snapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.snap == nil {
		return Snapshot{}, ErrNoData
	}
	return *l.snap, nil
}
