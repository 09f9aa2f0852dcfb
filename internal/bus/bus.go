// Package bus provides the async event bus between the platform adapter and
// the gateway. A single consumer drains the bus, preserving the one logical
// task queue the handlers assume.
package bus

import (
	"context"
	"time"
)

// EventType identifies an inbound platform event.
type EventType string

const (
	EventVoiceState    EventType = "voice_state"
	EventPresence      EventType = "presence"
	EventMemberJoin    EventType = "member_join"
	EventMemberLeave   EventType = "member_leave"
	EventChannelDelete EventType = "channel_delete"
	EventCommand       EventType = "command"
)

// Response is the user-facing result of a command. Private responses are
// shown only to the invoking member.
type Response struct {
	Text    string
	Private bool
}

// Command carries a slash-command invocation into the gateway.
type Command struct {
	Name      string            // e.g. "room", "stats", "kick"
	Sub       string            // subcommand, e.g. "lock"
	Args      map[string]string // named options
	ActorID   string
	ChannelID string
	Reply     func(Response) // set by the adapter; never nil for commands
}

// Event is an inbound platform event.
type Event struct {
	Type    EventType
	TraceID string

	MemberID  string
	MemberBot bool

	// Voice state transition.
	BeforeChannelID string
	AfterChannelID  string

	// Presence change.
	Activity string

	// Channel delete.
	ChannelID  string
	CategoryID string

	Command *Command

	At time.Time
}

// Bus decouples the platform adapter from the gateway.
type Bus struct {
	events chan *Event
}

// New creates a Bus with a bounded event queue.
func New() *Bus {
	return &Bus{events: make(chan *Event, 256)}
}

// Publish enqueues an event. Blocks if the queue is full, applying
// backpressure to the adapter.
func (b *Bus) Publish(ev *Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.events <- ev
}

// Consume blocks until an event is available or ctx is cancelled.
func (b *Bus) Consume(ctx context.Context) (*Event, error) {
	select {
	case ev := <-b.events:
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Size returns the number of pending events.
func (b *Bus) Size() int {
	return len(b.events)
}
