// Package events provides a publish/subscribe event bus for debate
// observability. Events flow from the engine and snapshot layer to
// subscribers (the WebSocket handler, a future metrics collector). The
// bus is nil-safe: calling Publish on a nil *Bus is a no-op, so
// components do not need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceEngine identifies events from the debate engine.
	SourceEngine = "engine"
	// SourceSnapshot identifies events from the persistence layer.
	SourceSnapshot = "snapshot"
)

// Kind constants describe the type of event within a source.
const (
	// KindSessionStarted signals a new debate session.
	// Data: session_id, theme, mode, deck_len.
	KindSessionStarted = "session_started"
	// KindTurnStart signals a turn beginning for the peeked speaker.
	// Data: session_id, role, phase.
	KindTurnStart = "turn_start"
	// KindLLMCall signals the start of a generation call.
	// Data: session_id, role, prompt_bytes.
	KindLLMCall = "llm_call"
	// KindTurnComplete signals a turn was produced and committed.
	// Data: session_id, role, phase, deck_len, response_bytes.
	KindTurnComplete = "turn_complete"
	// KindStepStart signals the coordinator declared a step.
	// Data: session_id, step_id, step_name, estimated_turns.
	KindStepStart = "step_start"
	// KindStepCompleted signals the coordinator closed a step.
	// Data: session_id, step_id.
	KindStepCompleted = "step_completed"
	// KindExtensionRequested signals a pending step extension.
	// Data: session_id, step_id, additional_turns.
	KindExtensionRequested = "extension_requested"
	// KindPhaseCompleted signals the coordinator closed the phase.
	// Data: session_id, phase.
	KindPhaseCompleted = "phase_completed"
	// KindPhaseAdvanced signals the operator moved to the next phase.
	// Data: session_id, phase, completed.
	KindPhaseAdvanced = "phase_advanced"
	// KindDiscussionExtended signals an extra full round was appended.
	// Data: session_id, phase, added_turns.
	KindDiscussionExtended = "discussion_extended"
	// KindUserQuestion signals the debate paused on an operator question.
	// Data: session_id, role.
	KindUserQuestion = "user_question"

	// KindSnapshotSaved signals the session set was flushed to disk.
	// Data: sessions, bytes.
	KindSnapshotSaved = "snapshot_saved"
)

// Event is a single observability event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking the engine.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel handed to Subscribe
	// callers back to the bidirectional channel stored in subs, so
	// Unsubscribe can accept the caller's <-chan Event view.
	recvToSend map[<-chan Event]chan Event
}

// New creates an event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full the event is dropped for that
// subscriber. Safe to call on a nil receiver.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full; drop rather than block the engine.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 suits WebSocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Calling
// it again for the same channel is a no-op.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
