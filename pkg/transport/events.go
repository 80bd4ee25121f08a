package transport

import (
	"sync"

	"github.com/mamalluca/mamalluca-go/pkg/wire"
)

// EventType identifies a session lifecycle or notification event.
type EventType uint8

const (
	// EventConnected is emitted after each successful WebSocket handshake.
	EventConnected EventType = iota + 1

	// EventDisconnected is emitted once per lost connection, after pending
	// calls have been failed.
	EventDisconnected

	// EventNotification carries a server push notification.
	EventNotification
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "CONNECTED"
	case EventDisconnected:
		return "DISCONNECTED"
	case EventNotification:
		return "NOTIFICATION"
	default:
		return "UNKNOWN"
	}
}

// Event is delivered on Session.Events in the order it happened.
type Event struct {
	Type EventType

	// ConnectionID identifies the connection epoch the event belongs to.
	ConnectionID string

	// Seq is the inbound frame sequence number of a notification. Frames
	// are numbered across connections in arrival order, responses
	// included, so Seq orders a notification against Result.Seq of a call.
	Seq uint64

	// Notification is set for EventNotification.
	Notification *wire.Notification

	// Err is the cause of an EventDisconnected, if known.
	Err error
}

// eventQueue is an unbounded FIFO between the read goroutine and the
// consumer. The reader never blocks on a slow consumer, so responses to
// calls the consumer is waiting on are always read.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Event{}, false
	}
	ev := q.items[0]
	q.items[0] = Event{}
	q.items = q.items[1:]
	return ev, true
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
