package job

import (
	"time"

	"github.com/wardroster/wardroster/internal/types"
)

// EventType classifies run events. Per run, phase events arrive in state
// order, metric events are monotone improvements, and exactly one result
// or error event closes the stream.
type EventType string

const (
	EventPhase  EventType = "phase"
	EventLog    EventType = "log"
	EventMetric EventType = "metric"
	EventResult EventType = "result"
	EventError  EventType = "error"
)

// Event is one progress notification from a job run.
type Event struct {
	JobID   types.JobID   `json:"job_id"`
	Type    EventType     `json:"type"`
	Payload types.JSONMap `json:"payload,omitempty"`
	At      time.Time     `json:"at"`
}

// EventSink receives run events. Implementations must not block; a slow
// consumer must never stall a run.
type EventSink interface {
	Emit(Event)
}

// NopSink discards events.
type NopSink struct{}

// Emit implements EventSink.
func (NopSink) Emit(Event) {}

// ChannelSink forwards events to a buffered channel, dropping on overflow.
type ChannelSink struct {
	ch chan Event
}

// NewChannelSink returns a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 64
	}
	return &ChannelSink{ch: make(chan Event, buffer)}
}

// Events is the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event { return s.ch }

// Emit implements EventSink. Full buffer drops the event rather than
// blocking the run.
func (s *ChannelSink) Emit(e Event) {
	select {
	case s.ch <- e:
	default:
	}
}

// Close releases the channel. Call only after the run has finished.
func (s *ChannelSink) Close() { close(s.ch) }
