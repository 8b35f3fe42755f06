package core

import (
	"context"
	"time"
)

// EventType identifies a semantic event emitted by the runtime.
type EventType string

const (
	EventCycleStarted       EventType = "cycle.started"
	EventStateComposed      EventType = "cycle.state_composed"
	EventCycleCompleted     EventType = "cycle.completed"
	EventActionStarted      EventType = "action.started"
	EventActionCompleted    EventType = "action.completed"
	EventActionFailed       EventType = "action.failed"
	EventEvaluatorCompleted EventType = "evaluator.completed"
	EventServiceStarted     EventType = "service.started"
	EventServiceStopped     EventType = "service.stopped"
	EventPluginRegistered   EventType = "plugin.registered"
	EventModelInvoked       EventType = "model.invoked"
)

// Event captures a semantic runtime event.
type Event struct {
	ID      ID
	Type    EventType
	AgentID ID
	CycleID ID
	Time    time.Time
	Data    map[string]any
}

// EventEmitter receives runtime events. Implementations must not block the
// emitting cycle.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEmitter is the default emitter.
type NoopEmitter struct{}

// Emit implements EventEmitter.
func (NoopEmitter) Emit(_ context.Context, _ Event) {}

// ChanEmitter forwards events to a buffered channel, dropping when full.
// Useful for tests and tooling that tail a runtime.
type ChanEmitter struct {
	C chan Event
}

// NewChanEmitter returns an emitter buffering up to size events.
func NewChanEmitter(size int) *ChanEmitter {
	return &ChanEmitter{C: make(chan Event, size)}
}

// Emit implements EventEmitter.
func (e *ChanEmitter) Emit(_ context.Context, event Event) {
	select {
	case e.C <- event:
	default:
	}
}

// NewEvent builds an event stamped with a fresh id and the current time.
func NewEvent(eventType EventType, agentID, cycleID ID, data map[string]any) Event {
	return Event{
		ID:      NewID(),
		Type:    eventType,
		AgentID: agentID,
		CycleID: cycleID,
		Time:    time.Now().UTC(),
		Data:    data,
	}
}
