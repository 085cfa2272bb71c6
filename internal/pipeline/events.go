package pipeline

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/glassbox/pkg/models"
)

// EventStatus says what happened at a stage.
type EventStatus string

const (
	// EventStarted indicates a stage began executing.
	EventStarted EventStatus = "started"
	// EventCompleted indicates a stage finished and its boundary persisted.
	EventCompleted EventStatus = "completed"
	// EventDegraded indicates a unit inside a stage fell back instead of
	// failing the run.
	EventDegraded EventStatus = "degraded"
	// EventFailed indicates the stage failed and the run is over.
	EventFailed EventStatus = "failed"
)

// Event is one progress notification from the executor.
// These events are consumed by the CLI printer.
type Event struct {
	// Stage is the stage the event belongs to.
	Stage models.Stage
	// Status is the kind of event.
	Status EventStatus
	// Message provides additional context about the event.
	Message string
	// Time is when the event occurred.
	Time time.Time
}

// eventEmitter handles event emission for the executor.
// It provides a simple, thread-safe way to emit events to subscribers.
type eventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// newEventEmitter creates an emitter with the given buffer size.
func newEventEmitter(bufferSize int) *eventEmitter {
	return &eventEmitter{
		events: make(chan Event, bufferSize),
	}
}

// emit sends an event to the events channel.
// If the channel is full, it tries with a timeout before dropping the event.
func (e *eventEmitter) emit(event Event) {
	select {
	case e.events <- event:
		return
	default:
		// Channel full, try with timeout
	}

	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // Log every 10th drop to avoid spam
			log.Printf("[pipeline] WARNING: event channel full, dropped event (total dropped: %d): stage=%s status=%s",
				count, event.Stage, event.Status)
		}
	}
}

// close closes the events channel.
func (e *eventEmitter) close() {
	close(e.events)
}
