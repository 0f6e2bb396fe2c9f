package events

import (
	"sync"
	"time"

	"aadhaar_pulse/internal/anomaly"
)

// Kind names what happened.
type Kind string

const (
	RunSucceeded Kind = "run.succeeded"
	RunFailed    Kind = "run.failed"
)

// Event describes the end of a pipeline run.
type Event struct {
	Kind      Kind
	RunID     string
	Month     string
	Anomalies []anomaly.Anomaly
	Err       string
	At        time.Time
}

const subscriberBuffer = 16

// Bus provides simple in-process pub/sub for run events. Slow subscribers
// miss events rather than block publishers.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
}

func NewBus() *Bus { return &Bus{} }

func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, ch)
	return ch
}

func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
