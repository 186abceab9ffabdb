package events

import (
	"sync"

	"github.com/google/uuid"
)

// maxQueuedEvents bounds a connection's pending-event queue. Past this
// cap, Broadcast drops the oldest non-terminal (progress) event to make
// room rather than blocking the publisher or growing without bound
// (spec.md §5 "Backpressure").
const maxQueuedEvents = 64

// Connection is a single client's subscription to one query's event
// stream. queue is guarded by mu because Broadcast (called from whatever
// goroutine is running the query) and the connection's own read loop
// (the SSE HTTP handler goroutine) both touch it; draining and appending
// are the only operations, so contention is brief.
type Connection struct {
	ID   string
	mu   sync.Mutex
	queue []Event
	wake chan struct{}
}

func newConnection() *Connection {
	return &Connection{ID: uuid.New().String(), wake: make(chan struct{}, 1)}
}

// enqueue appends evt, evicting the oldest non-terminal queued event
// first if the queue is full. A terminal evt is always appended.
func (c *Connection) enqueue(evt Event) {
	c.mu.Lock()
	if len(c.queue) >= maxQueuedEvents {
		evicted := false
		for i, e := range c.queue {
			if !e.Type.Terminal() {
				c.queue = append(c.queue[:i], c.queue[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted && !evt.Type.Terminal() {
			// Queue is saturated with terminal events (should not happen —
			// a terminal event ends the stream) — drop the incoming ping.
			c.mu.Unlock()
			return
		}
	}
	c.queue = append(c.queue, evt)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// drain removes and returns every currently queued event.
func (c *Connection) drain() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.queue
	c.queue = nil
	return q
}

// Wake is signalled whenever a new event is enqueued; the stream reader
// selects on it between drains.
func (c *Connection) Wake() <-chan struct{} {
	return c.wake
}

// stream holds one query's live subscribers plus its terminal event (if
// the query has already finished) for replay on reconnect.
type stream struct {
	mu          sync.Mutex
	subscribers map[string]*Connection
	final       *Event
}

// Manager fans out per-query SSE events to however many connections are
// watching each correlation id. One Manager instance per process, same
// as the teacher's one-ConnectionManager-per-pod model.
type Manager struct {
	mu      sync.RWMutex
	streams map[string]*stream
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{streams: make(map[string]*stream)}
}

func (m *Manager) streamFor(processID string) *stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[processID]
	if !ok {
		s = &stream{subscribers: make(map[string]*Connection)}
		m.streams[processID] = s
	}
	return s
}

// Broadcast delivers evt to every connection currently subscribed to
// evt.ProcessID. A terminal event is also retained for replay to future
// subscribers (spec.md §6.1 "Reconnecting to a terminal query replays its
// final event").
func (m *Manager) Broadcast(evt Event) {
	s := m.streamFor(evt.ProcessID)

	s.mu.Lock()
	if evt.Type.Terminal() {
		e := evt
		s.final = &e
	}
	conns := make([]*Connection, 0, len(s.subscribers))
	for _, c := range s.subscribers {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.enqueue(evt)
	}
}

// Subscribe registers a new connection for processID. If the query has
// already reached a terminal state, the returned replay event is
// non-nil and the connection is NOT registered as a live subscriber —
// there is nothing further to stream.
func (m *Manager) Subscribe(processID string) (conn *Connection, replay *Event, unsubscribe func()) {
	s := m.streamFor(processID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.final != nil {
		e := *s.final
		return nil, &e, func() {}
	}

	c := newConnection()
	s.subscribers[c.ID] = c
	return c, nil, func() {
		s.mu.Lock()
		delete(s.subscribers, c.ID)
		s.mu.Unlock()
	}
}

// ActiveStreams reports how many distinct queries currently have live
// subscribers or a retained terminal event. Used by /health and tests.
func (m *Manager) ActiveStreams() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.streams)
}

// Forget drops all retained state for processID (subscribers and any
// replayable terminal event). Called once a terminal query's result has
// been durably read back (e.g. from the artifacts file) and the server
// no longer needs to serve a replay.
func (m *Manager) Forget(processID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, processID)
}
