package runner

import (
	"time"

	"github.com/BaSui01/agentgraph/types"
)

// EventType classifies lifecycle events emitted by the runner.
type EventType string

const (
	EventNodeStarted   EventType = "node_started"
	EventNodeCompleted EventType = "node_completed"
	EventNodeFailed    EventType = "node_failed"
	EventRunPaused     EventType = "run_paused"
	EventRunResumed    EventType = "run_resumed"
	EventRunCompleted  EventType = "run_completed"
	EventRunFailed     EventType = "run_failed"
)

// Event is a telemetry record of one lifecycle moment in a run.
type Event struct {
	Type      EventType       `json:"type"`
	GraphID   string          `json:"graph_id"`
	NodeID    string          `json:"node_id,omitempty"`
	RunID     string          `json:"run_id"`
	Timestamp time.Time       `json:"timestamp"`
	Duration  time.Duration   `json:"duration,omitempty"`
	ErrorCode types.ErrorCode `json:"error_code,omitempty"`
}

// EventPublisher receives runner lifecycle events. Delivery is
// fire-and-forget: implementations must never block or fail the run.
type EventPublisher interface {
	Publish(event Event)
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}

// ChannelPublisher forwards events to a channel, dropping them when the
// channel is full so a slow consumer can never stall a run.
type ChannelPublisher struct {
	ch chan Event
}

// NewChannelPublisher creates a publisher buffering up to size events.
func NewChannelPublisher(size int) *ChannelPublisher {
	return &ChannelPublisher{ch: make(chan Event, size)}
}

// Events returns the receive side of the publisher.
func (p *ChannelPublisher) Events() <-chan Event { return p.ch }

func (p *ChannelPublisher) Publish(event Event) {
	select {
	case p.ch <- event:
	default:
	}
}
