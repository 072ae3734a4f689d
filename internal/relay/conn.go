package relay

import (
	"context"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/openpos/companysync/internal/models"
	"github.com/openpos/companysync/internal/nostr"
)

// connection is the pool's view of one configured relay. It survives
// transport failures: the underlying Conn is replaced on reconnect while
// subscriptions and roles stay put.
type connection struct {
	url string

	mu         sync.Mutex
	roles      models.RelayRoles
	primary    bool
	status     models.RelayStatus
	latencyMs  *int64
	lastSyncAt *time.Time
	conn       Conn
	pendingOK  map[string]chan nostr.OKMessage
	reqs       map[string][]nostr.Filter
	generation int

	pool *Pool
}

func newConnection(pool *Pool, url string, roles models.RelayRoles) *connection {
	return &connection{
		url:       url,
		roles:     roles,
		status:    models.RelayDisconnected,
		pendingOK: make(map[string]chan nostr.OKMessage),
		reqs:      make(map[string][]nostr.Filter),
		pool:      pool,
	}
}

// ensureConnected dials the relay if no transport is up. The dial is
// bounded by connectTimeout and records time-to-open as the relay latency.
func (c *connection) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.status = models.RelayConnecting
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.pool.connectTimeout)
	defer cancel()

	started := time.Now()
	conn, err := c.pool.dialer.DialContext(dialCtx, c.url)
	if err != nil {
		c.mu.Lock()
		c.status = models.RelayError
		c.latencyMs = nil // unset, not zero: zero would read as "fast"
		c.mu.Unlock()
		return classifyDialError(err)
	}
	latency := time.Since(started).Milliseconds()

	c.mu.Lock()
	c.conn = conn
	c.status = models.RelayConnected
	c.latencyMs = &latency
	c.generation++
	gen := c.generation
	reqs := make(map[string][]nostr.Filter, len(c.reqs))
	for id, filters := range c.reqs {
		reqs[id] = filters
	}
	c.mu.Unlock()

	go c.readLoop(conn, gen)

	// re-establish subscriptions that survived a reconnect
	for id, filters := range reqs {
		if err := c.writeReq(id, filters); err != nil {
			break
		}
	}
	return nil
}

// readLoop drains one transport connection until it fails, dispatching
// frames to waiting publishers and to the pool's subscriptions.
func (c *connection) readLoop(conn Conn, gen int) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.transportLost(conn, gen)
			return
		}

		msg, err := nostr.ParseRelayMessage(data)
		if err != nil {
			continue // tolerate junk frames from misbehaving relays
		}

		switch m := msg.(type) {
		case nostr.OKMessage:
			c.mu.Lock()
			ch, ok := c.pendingOK[m.EventID]
			if ok {
				delete(c.pendingOK, m.EventID)
			}
			c.mu.Unlock()
			if ok {
				ch <- m
			}
		case nostr.EventMessage:
			now := time.Now()
			c.mu.Lock()
			c.lastSyncAt = &now
			c.mu.Unlock()
			c.pool.dispatch(m.SubID, c.url, m.Event)
		case nostr.EOSEMessage:
			c.pool.dispatchEOSE(m.SubID, c.url)
		case nostr.NoticeMessage:
			c.pool.log.Warn("relay notice", "relay", c.url, "notice", m.Message)
		}
	}
}

// transportLost marks the connection down and, while the relay is still
// configured, retries the dial with exponential backoff.
func (c *connection) transportLost(conn Conn, gen int) {
	c.mu.Lock()
	if c.conn != conn || c.generation != gen {
		c.mu.Unlock()
		return // an older transport; a newer one is already up
	}
	c.conn = nil
	c.status = models.RelayDisconnected
	c.latencyMs = nil
	for id, ch := range c.pendingOK {
		close(ch)
		delete(c.pendingOK, id)
	}
	hasSubs := len(c.reqs) > 0
	c.mu.Unlock()
	_ = conn.Close()

	if !hasSubs || c.pool.isClosed() {
		return
	}

	backoff := retry.WithMaxRetries(c.pool.maxReconnects, retry.NewExponential(500*time.Millisecond))
	_ = retry.Do(c.pool.baseCtx, backoff, func(ctx context.Context) error {
		if c.pool.isClosed() || !c.pool.hasRelay(c.url) {
			return nil
		}
		if err := c.ensureConnected(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// write sends one frame, guarded by the connection lock.
func (c *connection) write(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteMessage(data)
}

func (c *connection) writeReq(subID string, filters []nostr.Filter) error {
	data, err := nostr.EncodeReqMessage(subID, filters...)
	if err != nil {
		return err
	}
	return c.write(data)
}

// publish sends the event and waits for the relay's OK, bounded by ctx.
func (c *connection) publish(ctx context.Context, ev *nostr.Event) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	okCh := make(chan nostr.OKMessage, 1)
	c.mu.Lock()
	c.pendingOK[ev.ID] = okCh
	c.mu.Unlock()

	data, err := nostr.EncodeEventMessage(ev)
	if err != nil {
		return err
	}
	if err := c.write(data); err != nil {
		c.mu.Lock()
		delete(c.pendingOK, ev.ID)
		c.mu.Unlock()
		return err
	}

	select {
	case m, open := <-okCh:
		if !open {
			return ErrNotConnected
		}
		if !m.OK {
			return &RejectedError{Relay: c.url, Reason: m.Reason}
		}
		now := time.Now()
		c.mu.Lock()
		c.lastSyncAt = &now
		c.mu.Unlock()
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pendingOK, ev.ID)
		c.mu.Unlock()
		return ctx.Err()
	}
}

func (c *connection) snapshot() models.RelayConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.RelayConnection{
		URL:        c.url,
		Roles:      c.roles,
		IsPrimary:  c.primary,
		Status:     c.status,
		LatencyMs:  c.latencyMs,
		LastSyncAt: c.lastSyncAt,
	}
}

func (c *connection) close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.status = models.RelayDisconnected
	c.reqs = make(map[string][]nostr.Filter)
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
