package rfb

import "sync"

// connID identifies a connection on the broadcast bus. A dedicated
// monotonic identity, independent of any listener or socket-level id,
// keeps "close all but me" logic simple regardless of how a connection
// was accepted.
type connID uint64

// subscriber is what the bus fans server-originated buffers out to:
// a bounded outbox drained by the connection's own writer goroutine,
// and a close signal for the "close all but me" takeover semantic.
type subscriber struct {
	id      connID
	outbox  chan []byte
	closeCh chan struct{}
	once    sync.Once
}

func newSubscriber(id connID) *subscriber {
	return &subscriber{
		id:      id,
		outbox:  make(chan []byte, 32),
		closeCh: make(chan struct{}),
	}
}

// requestClose signals the owning connection to close. Safe to call
// more than once.
func (s *subscriber) requestClose() {
	s.once.Do(func() { close(s.closeCh) })
}

// bus is the per-server broadcast registry: every accepted connection
// registers an outbox channel (for server-originated messages) and a
// closeCh (for exclusive-session takeover), both removed when the
// connection closes.
type bus struct {
	mu      sync.Mutex
	nextID  connID
	clients map[connID]*subscriber
}

func newBus() *bus {
	return &bus{clients: make(map[connID]*subscriber)}
}

// register adds a new subscriber and returns it, ready to receive
// broadcasts and close signals.
func (b *bus) register() *subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := newSubscriber(b.nextID)
	b.clients[sub.id] = sub
	return sub
}

// remove unregisters id's send_buffer and close_all listeners. Must
// be called when a connection's socket closes, to prevent dangling
// writes to a closed socket.
func (b *bus) remove(id connID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, id)
}

// broadcast fans buf out to every currently-registered subscriber.
// Delivery is asynchronous and best-effort: a subscriber whose outbox
// is full is skipped rather than blocking the broadcaster, so one slow
// client never stalls updates to the rest. For a single producing
// goroutine, every client sees buffers in the same order they were
// broadcast.
func (b *bus) broadcast(buf []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.clients {
		select {
		case sub.outbox <- buf:
		default:
			// client too slow; drop rather than block the broadcaster.
		}
	}
}

// closeAllExcept signals every subscriber but except to close. Used
// when a client's ClientInit requests an exclusive (non-shared)
// session: every other connection is torn down in its favor.
func (b *bus) closeAllExcept(except connID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.clients {
		if id != except {
			sub.requestClose()
		}
	}
}

// count returns the number of currently-registered subscribers.
func (b *bus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}
