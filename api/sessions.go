package api

import (
	"sort"
	"sync"
	"time"

	"github.com/eaziwage/advance-engine/session"
)

// ActiveSession is a subject seen with a valid token.
type ActiveSession struct {
	User      session.User `json:"user"`
	LastSeen  time.Time    `json:"last_seen"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// SessionTracker keeps the last-seen time of each authenticated subject by
// consuming session changes from a broker.
type SessionTracker struct {
	mu     sync.RWMutex
	active map[string]ActiveSession
	now    func() time.Time

	unsubscribe func()
	done        chan struct{}
}

func NewSessionTracker(b *session.Broker) *SessionTracker {
	ch, unsubscribe := b.Subscribe(64)
	t := &SessionTracker{
		active:      make(map[string]ActiveSession),
		now:         func() time.Time { return time.Now().UTC() },
		unsubscribe: unsubscribe,
		done:        make(chan struct{}),
	}
	go t.run(ch)
	return t
}

func (t *SessionTracker) run(ch <-chan session.Change) {
	defer close(t.done)
	for c := range ch {
		t.apply(c)
	}
}

func (t *SessionTracker) apply(c session.Change) {
	t.mu.Lock()
	defer t.mu.Unlock()

	u, ok := c.Session.User()
	if !ok {
		delete(t.active, c.Subject)
		return
	}
	t.active[c.Subject] = ActiveSession{User: u, LastSeen: t.now(), ExpiresAt: c.Session.ExpiresAt()}
}

// Active returns unexpired sessions, most recently seen first.
func (t *SessionTracker) Active() []ActiveSession {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	out := make([]ActiveSession, 0, len(t.active))
	for _, a := range t.active {
		if !a.ExpiresAt.IsZero() && a.ExpiresAt.Before(now) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].User.ID < out[j].User.ID
		}
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

// Stop unsubscribes and waits for pending changes to drain.
func (t *SessionTracker) Stop() {
	t.unsubscribe()
	<-t.done
}
