package relay

import (
	"context"
	"sync"

	"github.com/openpos/companysync/internal/nostr"
)

// Stream is the consumer's view of a subscription.
type Stream interface {
	Events() <-chan *nostr.Event
	EOSE() <-chan struct{}
	Unsubscribe()
}

// Client is the pool surface the services build on. *Pool implements it;
// tests substitute fakes.
type Client interface {
	Publish(ctx context.Context, ev *nostr.Event) (*PublishResult, error)
	Subscribe(ctx context.Context, filters ...nostr.Filter) (Stream, error)
}

// Subscription is one logical subscription spanning every read relay.
// Its lifetime is independent of the relay sockets: unsubscribing sends
// CLOSE frames but leaves the sockets to other users.
type Subscription struct {
	id   string
	pool *Pool

	events chan *nostr.Event
	eose   chan struct{}

	mu         sync.Mutex
	seen       map[string]struct{}
	waits      map[string]struct{}
	eoseClosed bool
	closed     bool

	once sync.Once
}

// Events is the stream of deduplicated events for this subscription.
func (s *Subscription) Events() <-chan *nostr.Event {
	return s.events
}

// EOSE is closed once every participating relay has delivered its stored
// events. Useful for bounded queries ("fetch what exists, then stop").
func (s *Subscription) EOSE() <-chan struct{} {
	return s.eose
}

// Unsubscribe closes this logical subscription on every relay it was
// established on. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		p := s.pool

		// stop dispatchers before closing the channel
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		p.mu.Lock()
		delete(p.subs, s.id)
		conns := append([]*connection(nil), p.conns...)
		p.mu.Unlock()

		data, err := nostr.EncodeCloseMessage(s.id)
		for _, c := range conns {
			c.mu.Lock()
			_, had := c.reqs[s.id]
			delete(c.reqs, s.id)
			c.mu.Unlock()
			if had && err == nil {
				_ = c.write(data)
			}
		}

		close(s.events)
	})
}
