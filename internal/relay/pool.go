package relay

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/openpos/companysync/internal/common"
	"github.com/openpos/companysync/internal/logging"
	"github.com/openpos/companysync/internal/models"
	"github.com/openpos/companysync/internal/nostr"
)

const (
	// DefaultConnectTimeout bounds connection tests and dials.
	DefaultConnectTimeout = 5 * time.Second
	// DefaultPublishTimeout bounds the wait for a relay's OK ack.
	DefaultPublishTimeout = 5 * time.Second

	defaultMaxReconnects = 6
	subscriptionBuffer   = 256
)

// Pool manages the configured relay set. Individual relay failures only
// degrade redundancy; operations keep working while at least one relay of
// the needed role is reachable.
type Pool struct {
	dialer         Dialer
	log            logging.Logger
	connectTimeout time.Duration
	publishTimeout time.Duration
	maxReconnects  uint64

	mu     sync.Mutex
	conns  []*connection
	subs   map[string]*Subscription
	closed bool

	baseCtx   context.Context
	cancelAll context.CancelFunc
}

// Option customizes a Pool.
type Option func(*Pool)

// WithConnectTimeout overrides the dial/test timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(p *Pool) { p.connectTimeout = d }
}

// WithPublishTimeout overrides the per-relay ack wait.
func WithPublishTimeout(d time.Duration) Option {
	return func(p *Pool) { p.publishTimeout = d }
}

// NewPool constructs an empty pool using the given transport dialer.
func NewPool(dialer Dialer, log logging.Logger, opts ...Option) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		dialer:         dialer,
		log:            log,
		connectTimeout: DefaultConnectTimeout,
		publishTimeout: DefaultPublishTimeout,
		maxReconnects:  defaultMaxReconnects,
		subs:           make(map[string]*Subscription),
		baseCtx:        ctx,
		cancelAll:      cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddRelay registers a relay endpoint. The first relay added becomes
// primary. Adding an already-registered URL updates its roles.
func (p *Pool) AddRelay(url string, roles models.RelayRoles) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.conns {
		if c.url == url {
			c.mu.Lock()
			c.roles = roles
			c.mu.Unlock()
			return
		}
	}

	c := newConnection(p, url, roles)
	c.mu.Lock()
	c.primary = len(p.conns) == 0
	c.mu.Unlock()
	p.conns = append(p.conns, c)
}

// RemoveRelay drops a relay from the configuration, closing its
// transport. Removing the primary promotes the first remaining relay.
func (p *Pool) RemoveRelay(url string) error {
	p.mu.Lock()
	idx := -1
	for i, c := range p.conns {
		if c.url == url {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		return common.ErrRelayNotFound
	}

	removed := p.conns[idx]
	removed.mu.Lock()
	wasPrimary := removed.primary
	removed.mu.Unlock()
	p.conns = append(p.conns[:idx], p.conns[idx+1:]...)
	if wasPrimary && len(p.conns) > 0 {
		promoted := p.conns[0]
		promoted.mu.Lock()
		promoted.primary = true
		promoted.mu.Unlock()
	}
	p.mu.Unlock()

	removed.close()
	return nil
}

// SetPrimary flags one relay as primary; exactly one relay holds the flag.
func (p *Pool) SetPrimary(url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	found := false
	for _, c := range p.conns {
		if c.url == url {
			found = true
		}
	}
	if !found {
		return common.ErrRelayNotFound
	}
	for _, c := range p.conns {
		c.mu.Lock()
		c.primary = c.url == url
		c.mu.Unlock()
	}
	return nil
}

// TestRelay opens a fresh connection to measure time-to-open, bounded by
// the connect timeout. On failure the relay's status becomes error and
// its latency resets to unset.
func (p *Pool) TestRelay(ctx context.Context, url string) (models.RelayStatus, *int64, error) {
	dialCtx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()

	started := time.Now()
	conn, err := p.dialer.DialContext(dialCtx, url)
	if err != nil {
		err = classifyDialError(err)
		p.updateRelayHealth(url, models.RelayError, nil)
		return models.RelayError, nil, err
	}
	latency := time.Since(started).Milliseconds()
	_ = conn.Close()

	p.updateRelayHealth(url, models.RelayConnected, &latency)
	return models.RelayConnected, &latency, nil
}

func (p *Pool) updateRelayHealth(url string, status models.RelayStatus, latency *int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns {
		if c.url != url {
			continue
		}
		c.mu.Lock()
		// a live transport outranks a probe result
		if c.conn == nil {
			c.status = status
			c.latencyMs = latency
		}
		c.mu.Unlock()
	}
}

// PublishResult reports the per-relay outcome of a fan-out publish.
type PublishResult struct {
	Acked   int
	Results map[string]error
}

// Publish fans the signed event out to every write relay concurrently.
// The publish succeeds when at least one relay acknowledges it; per-relay
// failures are retained for diagnostics. When no relay acks, the combined
// error is returned.
func (p *Pool) Publish(ctx context.Context, ev *nostr.Event) (*PublishResult, error) {
	targets := p.relaysWithRole(func(r models.RelayRoles) bool { return r.Write })
	if len(targets) == 0 {
		return nil, common.ErrNoWriteRelays
	}

	var mu sync.Mutex
	result := &PublishResult{Results: make(map[string]error, len(targets))}

	var g errgroup.Group
	for _, c := range targets {
		g.Go(func() error {
			pubCtx, cancel := context.WithTimeout(ctx, p.publishTimeout)
			defer cancel()

			err := c.publish(pubCtx, ev)
			mu.Lock()
			result.Results[c.url] = err
			if err == nil {
				result.Acked++
			}
			mu.Unlock()
			return nil // relay failures never cancel sibling publishes
		})
	}
	_ = g.Wait()

	if result.Acked == 0 {
		var combined error
		for url, err := range result.Results {
			combined = multierr.Append(combined, &relayError{url: url, err: err})
		}
		return result, combined
	}
	return result, nil
}

type relayError struct {
	url string
	err error
}

func (e *relayError) Error() string { return e.url + ": " + e.err.Error() }
func (e *relayError) Unwrap() error { return e.err }

// Subscribe opens a logical subscription across every read relay.
// Duplicate events arriving from multiple relays are suppressed for the
// lifetime of the subscription. The returned Subscription must be
// released with Unsubscribe; releasing it never closes relay sockets
// still used by other subscriptions.
func (p *Pool) Subscribe(ctx context.Context, filters ...nostr.Filter) (Stream, error) {
	targets := p.relaysWithRole(func(r models.RelayRoles) bool { return r.Read })
	if len(targets) == 0 {
		return nil, common.ErrNoReadRelays
	}

	sub := &Subscription{
		id:     uuid.NewString(),
		pool:   p,
		events: make(chan *nostr.Event, subscriptionBuffer),
		eose:   make(chan struct{}),
		seen:   make(map[string]struct{}),
		waits:  make(map[string]struct{}, len(targets)),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.subs[sub.id] = sub
	p.mu.Unlock()

	var established int
	for _, c := range targets {
		if err := c.ensureConnected(ctx); err != nil {
			continue // an unreachable relay only loses redundancy
		}
		c.mu.Lock()
		c.reqs[sub.id] = filters
		c.mu.Unlock()
		if err := c.writeReq(sub.id, filters); err != nil {
			continue
		}
		sub.mu.Lock()
		sub.waits[c.url] = struct{}{}
		sub.mu.Unlock()
		established++
	}

	if established == 0 {
		sub.Unsubscribe()
		return nil, common.ErrNoReadRelays
	}
	return sub, nil
}

// dispatch routes an incoming event to its subscription, deduplicating by
// event id within the subscription's lifetime.
func (p *Pool) dispatch(subID, relayURL string, ev *nostr.Event) {
	p.mu.Lock()
	sub, ok := p.subs[subID]
	p.mu.Unlock()
	if !ok {
		return
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	if _, dup := sub.seen[ev.ID]; dup {
		return
	}
	sub.seen[ev.ID] = struct{}{}

	select {
	case sub.events <- ev:
	default:
		p.log.Warn("subscription buffer full, dropping event", "sub", subID, "relay", relayURL, "event", ev.ID)
	}
}

// dispatchEOSE closes the subscription's EOSE gate once every relay it
// was established on has delivered its stored events.
func (p *Pool) dispatchEOSE(subID, relayURL string) {
	p.mu.Lock()
	sub, ok := p.subs[subID]
	p.mu.Unlock()
	if !ok {
		return
	}

	sub.mu.Lock()
	delete(sub.waits, relayURL)
	done := len(sub.waits) == 0 && !sub.eoseClosed
	if done {
		sub.eoseClosed = true
	}
	sub.mu.Unlock()
	if done {
		close(sub.eose)
	}
}

// Health reports aggregate pool health for the UI.
func (p *Pool) Health() models.PoolHealth {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := models.PoolHealth{Total: len(p.conns)}
	for _, c := range p.conns {
		c.mu.Lock()
		if c.status == models.RelayConnected {
			h.ConnectedCount++
		}
		c.mu.Unlock()
	}
	return h
}

// Snapshot returns the configured relays and their health.
func (p *Pool) Snapshot() []models.RelayConnection {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.RelayConnection, 0, len(p.conns))
	for _, c := range p.conns {
		out = append(out, c.snapshot())
	}
	return out
}

// Close tears down every connection and subscription.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	conns := append([]*connection(nil), p.conns...)
	subs := make([]*Subscription, 0, len(p.subs))
	for _, s := range p.subs {
		subs = append(subs, s)
	}
	p.mu.Unlock()

	p.cancelAll()
	for _, s := range subs {
		s.Unsubscribe()
	}
	for _, c := range conns {
		c.close()
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool) hasRelay(url string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns {
		if c.url == url {
			return true
		}
	}
	return false
}

func (p *Pool) relaysWithRole(match func(models.RelayRoles) bool) []*connection {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*connection
	for _, c := range p.conns {
		c.mu.Lock()
		ok := match(c.roles)
		c.mu.Unlock()
		if ok {
			out = append(out, c)
		}
	}
	return out
}
