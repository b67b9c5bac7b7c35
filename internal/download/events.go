package download

import (
	"fmt"
	"sync"
	"time"

	"github.com/tunevault/tunevault-go/internal/extract"
)

// EventType identifies an orchestrator event
type EventType string

const (
	EventProgress EventType = "progress"
	EventStatus   EventType = "status"
	EventError    EventType = "error"
	EventFinished EventType = "finished"
	EventStopped  EventType = "stopped"
)

// Event is a single notification about a job. Finished events carry the
// fetched artifacts so a listener does not have to query the catalog to learn
// what landed on disk.
type Event struct {
	Type      EventType           `json:"type"`
	JobID     int64               `json:"job_id"`
	Percent   int                 `json:"percent,omitempty"`
	Bytes     int64               `json:"bytes,omitempty"`
	State     string              `json:"state,omitempty"`
	Message   string              `json:"message,omitempty"`
	Artifacts []*extract.Artifact `json:"artifacts,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// Notifier receives job lifecycle events. Implementations must not block;
// event delivery happens on job goroutines.
type Notifier interface {
	NotifyProgress(jobID int64, percent int)
	NotifyBytes(jobID int64, bytes int64)
	NotifyStatus(jobID int64, state string)
	NotifyError(jobID int64, message string)
	NotifyFinished(jobID int64, artifacts []*extract.Artifact)
	NotifyStopped(jobID int64)
}

// ChannelNotifier delivers events over a buffered channel. When the consumer
// falls behind, progress events are dropped rather than blocking a job.
type ChannelNotifier struct {
	events chan Event
	once   sync.Once
}

// NewChannelNotifier creates a ChannelNotifier with the given buffer size
func NewChannelNotifier(buffer int) *ChannelNotifier {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelNotifier{
		events: make(chan Event, buffer),
	}
}

// Events returns the consumer side of the event stream
func (n *ChannelNotifier) Events() <-chan Event {
	return n.events
}

// Close closes the event stream
func (n *ChannelNotifier) Close() {
	n.once.Do(func() { close(n.events) })
}

func (n *ChannelNotifier) send(ev Event, droppable bool) {
	ev.Timestamp = time.Now()
	if droppable {
		select {
		case n.events <- ev:
		default:
		}
		return
	}
	n.events <- ev
}

// NotifyProgress reports normalized progress for a job
func (n *ChannelNotifier) NotifyProgress(jobID int64, percent int) {
	n.send(Event{Type: EventProgress, JobID: jobID, Percent: percent}, true)
}

// NotifyBytes reports raw transferred bytes for a job whose total size is
// unknown. Like progress, these are liveness signals and may be dropped.
func (n *ChannelNotifier) NotifyBytes(jobID int64, bytes int64) {
	n.send(Event{
		Type:    EventStatus,
		JobID:   jobID,
		Bytes:   bytes,
		Message: fmt.Sprintf("%d bytes transferred", bytes),
	}, true)
}

// NotifyStatus reports a job state change
func (n *ChannelNotifier) NotifyStatus(jobID int64, state string) {
	n.send(Event{Type: EventStatus, JobID: jobID, State: state}, false)
}

// NotifyError reports a terminal job failure
func (n *ChannelNotifier) NotifyError(jobID int64, message string) {
	n.send(Event{Type: EventError, JobID: jobID, Message: message}, false)
}

// NotifyFinished reports successful completion together with the artifacts
// the job produced
func (n *ChannelNotifier) NotifyFinished(jobID int64, artifacts []*extract.Artifact) {
	n.send(Event{Type: EventFinished, JobID: jobID, Artifacts: artifacts}, false)
}

// NotifyStopped reports a user-requested stop taking effect
func (n *ChannelNotifier) NotifyStopped(jobID int64) {
	n.send(Event{Type: EventStopped, JobID: jobID}, false)
}
