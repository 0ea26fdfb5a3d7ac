// Package carrierimpl implements http1.Carrier over a single dialed
// socket.Conn, the production counterpart to the fake carriers the http1
// package's own tests use.
package carrierimpl

import (
	"sync"
	"sync/atomic"

	"github.com/wirehttp/wirehttp/internal/http1"
	"github.com/wirehttp/wirehttp/internal/socket"
)

// maxConsecutiveFailures is how many TrackFailure(err != nil) calls in a
// row flip the carrier to no-new-exchanges, mirroring the teacher's
// worker.go pattern of giving a connection a few tries before writing it
// off rather than retiring it on the very first hiccup.
const maxConsecutiveFailures = 3

// Carrier implements http1.Carrier over one *socket.Conn.
type Carrier struct {
	conn  *socket.Conn
	route http1.Route

	mu               sync.Mutex
	noNewExchanges   bool
	consecutiveFails int

	closeOnce sync.Once
	cancelled atomic.Bool
}

// New wraps conn as a Carrier reachable via route.
func New(conn *socket.Conn, route http1.Route) *Carrier {
	return &Carrier{conn: conn, route: route}
}

// Conn returns the underlying socket connection, for use by client.Do when
// constructing the http1.Http1ExchangeCodec.
func (c *Carrier) Conn() *socket.Conn { return c.conn }

func (c *Carrier) Route() http1.Route { return c.route }

func (c *Carrier) TrackFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.consecutiveFails = 0
		return
	}
	c.consecutiveFails++
	if c.consecutiveFails >= maxConsecutiveFailures {
		c.noNewExchanges = true
	}
}

func (c *Carrier) NoNewExchanges() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noNewExchanges = true
}

// Reusable reports whether this carrier may still be handed a new
// exchange: neither retired by NoNewExchanges nor cancelled.
func (c *Carrier) Reusable() bool {
	if c.cancelled.Load() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.noNewExchanges
}

func (c *Carrier) Cancel() {
	c.cancelled.Store(true)
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

var _ http1.Carrier = (*Carrier)(nil)
