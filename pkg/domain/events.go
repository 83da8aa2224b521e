package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeStart   EventType = "node_start"
	EventNodeFinish  EventType = "node_finish"
	EventPhaseChange EventType = "phase_change"
	EventBreakerTrip EventType = "breaker_trip"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// NodeEvent reports the start or finish of a node execution.
type NodeEvent struct {
	EventBase
	Node     string        `json:"node"`
	Phase    Phase         `json:"phase"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      string        `json:"err,omitempty"`
}

// PhaseEvent reports a phase transition, forced or earned.
type PhaseEvent struct {
	EventBase
	From   Phase `json:"from"`
	To     Phase `json:"to"`
	Forced bool  `json:"forced,omitempty"`
}

// BreakerEvent reports a circuit breaker intervention.
type BreakerEvent struct {
	EventBase
	Node   string `json:"node"`
	Visits int    `json:"visits"`
	Forced string `json:"forced_node,omitempty"`
}

// LifecycleHooks defines callbacks for orchestrator observability.
// All hooks are optional; nil hooks are skipped.
type LifecycleHooks struct {
	OnNodeStart   func(context.Context, *NodeEvent)
	OnNodeFinish  func(context.Context, *NodeEvent)
	OnPhaseChange func(context.Context, *PhaseEvent)
	OnBreakerTrip func(context.Context, *BreakerEvent)
}

func (h LifecycleHooks) NodeStarted(ctx context.Context, ev *NodeEvent) {
	if h.OnNodeStart != nil {
		ev.Type = EventNodeStart
		h.OnNodeStart(ctx, ev)
	}
}

func (h LifecycleHooks) NodeFinished(ctx context.Context, ev *NodeEvent) {
	if h.OnNodeFinish != nil {
		ev.Type = EventNodeFinish
		h.OnNodeFinish(ctx, ev)
	}
}

func (h LifecycleHooks) PhaseChanged(ctx context.Context, ev *PhaseEvent) {
	if h.OnPhaseChange != nil {
		ev.Type = EventPhaseChange
		h.OnPhaseChange(ctx, ev)
	}
}

func (h LifecycleHooks) BreakerTripped(ctx context.Context, ev *BreakerEvent) {
	if h.OnBreakerTrip != nil {
		ev.Type = EventBreakerTrip
		h.OnBreakerTrip(ctx, ev)
	}
}
