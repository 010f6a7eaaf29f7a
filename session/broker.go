package session

import "sync"

// Change is one published session transition.
type Change struct {
	Subject string
	Event   Event
	Session Session
}

// Broker fans session changes out to subscribers over buffered channels.
// A subscriber that falls behind misses changes rather than blocking
// the publisher.
type Broker struct {
	mu     sync.Mutex
	subs   map[int]chan Change
	nextID int
	closed bool
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan Change)}
}

// Subscribe returns a channel of changes and a func that unsubscribes and
// closes the channel.
func (b *Broker) Subscribe(buffer int) (<-chan Change, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Change, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers c to every subscriber with room in its buffer and
// returns how many received it.
func (b *Broker) Publish(c Change) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- c:
			delivered++
		default:
		}
	}
	return delivered
}

// Dispatch reduces ev onto s, publishes the change and returns the new session.
func (b *Broker) Dispatch(s Session, ev Event) Session {
	next := Reduce(s, ev)
	subject := next.Subject()
	if subject == "" {
		subject = s.Subject()
	}
	b.Publish(Change{Subject: subject, Event: ev, Session: next})
	return next
}

// Close closes every subscriber channel. Later subscriptions get a closed channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
