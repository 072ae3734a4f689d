// Package relaytest provides an in-memory relay.Client for service
// tests: published events are captured, subscriptions replay a scripted
// store and then signal EOSE.
package relaytest

import (
	"context"
	"sync"

	"github.com/openpos/companysync/internal/nostr"
	"github.com/openpos/companysync/internal/relay"
)

// FakeClient implements relay.Client against an in-memory event store.
type FakeClient struct {
	mu sync.Mutex

	// PublishErr, when set, fails every publish.
	PublishErr error
	// SubscribeErr, when set, fails every subscribe.
	SubscribeErr error

	published []*nostr.Event
	stored    []*nostr.Event
	streams   []*fakeStream
}

// NewFakeClient returns an empty fake.
func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// Store seeds events that future subscriptions will replay.
func (f *FakeClient) Store(evs ...*nostr.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, evs...)
}

// Published returns every successfully published event in order.
func (f *FakeClient) Published() []*nostr.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*nostr.Event, len(f.published))
	copy(out, f.published)
	return out
}

// Deliver pushes an event into every live subscription whose filters
// match, as a relay would after EOSE.
func (f *FakeClient) Deliver(ev *nostr.Event) {
	f.mu.Lock()
	streams := make([]*fakeStream, len(f.streams))
	copy(streams, f.streams)
	f.mu.Unlock()

	for _, st := range streams {
		st.deliver(ev)
	}
}

func (f *FakeClient) Publish(_ context.Context, ev *nostr.Event) (*relay.PublishResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishErr != nil {
		return &relay.PublishResult{Results: map[string]error{"wss://fake.example": f.PublishErr}}, f.PublishErr
	}
	f.published = append(f.published, ev)
	// published events become visible to later subscriptions
	f.stored = append(f.stored, ev)
	return &relay.PublishResult{Acked: 1, Results: map[string]error{"wss://fake.example": nil}}, nil
}

func (f *FakeClient) Subscribe(_ context.Context, filters ...nostr.Filter) (relay.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}

	st := &fakeStream{
		client:  f,
		filters: filters,
		events:  make(chan *nostr.Event, 256),
		eose:    make(chan struct{}),
	}
	for _, ev := range f.stored {
		if st.matches(ev) {
			st.events <- ev
		}
	}
	close(st.eose)
	f.streams = append(f.streams, st)
	return st, nil
}

type fakeStream struct {
	client  *FakeClient
	filters []nostr.Filter
	events  chan *nostr.Event
	eose    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	closed  bool
}

func (s *fakeStream) Events() <-chan *nostr.Event { return s.events }
func (s *fakeStream) EOSE() <-chan struct{}       { return s.eose }

func (s *fakeStream) Unsubscribe() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		c := s.client
		c.mu.Lock()
		for i, st := range c.streams {
			if st == s {
				c.streams = append(c.streams[:i], c.streams[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
		close(s.events)
	})
}

func (s *fakeStream) matches(ev *nostr.Event) bool {
	if len(s.filters) == 0 {
		return true
	}
	for _, f := range s.filters {
		if f.Matches(ev) {
			return true
		}
	}
	return false
}

func (s *fakeStream) deliver(ev *nostr.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.matches(ev) {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}
