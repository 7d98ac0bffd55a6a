// Package events provides a typed in-process event bus used to report
// optimization progress to observers (websocket feed, logging, tests).
package events

import (
	"sync"
	"time"
)

// EventType identifies the kind of event published on the bus
type EventType string

const (
	IterationCompleted EventType = "iteration_completed"
	RunCompleted       EventType = "run_completed"
	RunFailed          EventType = "run_failed"
	CalibrationUpdated EventType = "calibration_updated"
)

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// Event is a published event with its payload and timestamp
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
}

// IterationCompletedData contains data for IterationCompleted events
type IterationCompletedData struct {
	RunID         string  `json:"run_id"`
	Iteration     int     `json:"iteration"`
	Objective     float64 `json:"objective"`
	BestObjective float64 `json:"best_objective"`
}

// EventType returns the event type for IterationCompletedData
func (d *IterationCompletedData) EventType() EventType {
	return IterationCompleted
}

// RunCompletedData contains data for RunCompleted events
type RunCompletedData struct {
	RunID          string  `json:"run_id"`
	Iterations     int     `json:"iterations"`
	BestObjective  float64 `json:"best_objective"`
	ExpectedReturn float64 `json:"expected_return"`
	PortfolioRisk  float64 `json:"portfolio_risk"`
}

// EventType returns the event type for RunCompletedData
func (d *RunCompletedData) EventType() EventType {
	return RunCompleted
}

// RunFailedData contains data for RunFailed events
type RunFailedData struct {
	RunID string `json:"run_id"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// EventType returns the event type for RunFailedData
func (d *RunFailedData) EventType() EventType {
	return RunFailed
}

// CalibrationUpdatedData contains data for CalibrationUpdated events
type CalibrationUpdatedData struct {
	Qubits int     `json:"qubits"`
	MaxP01 float64 `json:"max_p01"` // worst P(read 1 | prepared 0)
	MaxP10 float64 `json:"max_p10"` // worst P(read 0 | prepared 1)
}

// EventType returns the event type for CalibrationUpdatedData
func (d *CalibrationUpdatedData) EventType() EventType {
	return CalibrationUpdated
}

// Bus fans published events out to all subscribers. Publishing never blocks:
// a subscriber that falls behind drops events rather than stalling the
// optimization loop.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel is closed on unsubscribe.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 16
	}

	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
		b.mu.Unlock()
	}

	return ch, unsubscribe
}

// Publish delivers an event to all current subscribers
func (b *Bus) Publish(data EventData) {
	event := Event{
		Type:      data.EventType(),
		Timestamp: time.Now(),
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Slow subscriber, drop
		}
	}
}
