// Package stream owns the long-lived inbound event connection for a
// dashboard session. It reconnects with exponential backoff and hands
// decoded events to a single consumer.
package stream

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/claude-session-monitor/internal/streamprotocol"
)

// Backoff constants for reconnection
const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// backoffDelay returns the delay before a retry using exponential
// backoff with full jitter: a uniform draw under the capped ceiling.
func backoffDelay(attempt int, rng *rand.Rand) time.Duration {
	ceiling := initialBackoff
	for i := 1; i < attempt; i++ {
		ceiling *= 2
		if ceiling >= maxBackoff {
			ceiling = maxBackoff
			break
		}
	}
	return time.Duration(rng.Int63n(int64(ceiling))) + time.Millisecond
}

// ConnState describes the transport's current condition.
type ConnState string

const (
	StateConnecting ConnState = "connecting"
	StateConnected  ConnState = "connected"
	StateError      ConnState = "error"
)

// Status is reported on every transport transition. Existing repo state
// is never cleared on transport failure; last-known data stays
// displayable while we retry.
type Status struct {
	State       ConnState
	Reason      string // set when State is error
	LastUpdated time.Time
}

// EventHandler receives decoded events, one at a time.
type EventHandler func(streamprotocol.Event)

// StatusHandler receives transport status transitions.
type StatusHandler func(Status)

// Client maintains one websocket connection to the event stream.
type Client struct {
	url      string
	onEvent  EventHandler
	onStatus StatusHandler

	mu          sync.Mutex
	conn        *websocket.Conn
	connected   bool
	lastUpdated time.Time
	rng         *rand.Rand

	// retryNow short-circuits a pending backoff timer.
	retryNow chan struct{}

	// Latest-event-per-repository coalescing. If the consumer falls
	// behind, older undelivered frames for a repository are replaced,
	// never queued.
	pendingMu sync.Mutex
	pending   map[string]streamprotocol.Event
	wake      chan struct{}
}

// NewClient creates a client for the given websocket URL. Events and
// status transitions are delivered from the client's dispatch goroutine,
// one at a time.
func NewClient(url string, onEvent EventHandler, onStatus StatusHandler) *Client {
	return &Client{
		url:      url,
		onEvent:  onEvent,
		onStatus: onStatus,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		retryNow: make(chan struct{}, 1),
		pending:  make(map[string]streamprotocol.Event),
		wake:     make(chan struct{}, 1),
	}
}

// Run connects and keeps the connection alive until ctx is cancelled.
// Transport failures are recovered internally and never returned.
func (c *Client) Run(ctx context.Context) error {
	go c.dispatchLoop(ctx)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		c.report(StateConnecting, "")
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			attempt++
			c.report(StateError, err.Error())
			if !c.waitRetry(ctx, backoffDelay(attempt, c.rng)) {
				return nil
			}
			continue
		}

		attempt = 0
		c.setConn(conn)
		c.report(StateConnected, "")

		err = c.readLoop(conn)
		c.setConn(nil)
		conn.Close()
		if ctx.Err() != nil {
			return nil
		}

		attempt++
		c.report(StateError, err.Error())
		if !c.waitRetry(ctx, backoffDelay(attempt, c.rng)) {
			return nil
		}
	}
}

// Reconnect forces an immediate retry. Safe to call at any time: while
// connected it is a no-op, while backing off it cancels the pending
// delay.
func (c *Client) Reconnect() {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if connected {
		return
	}
	select {
	case c.retryNow <- struct{}{}:
	default:
	}
}

// LastUpdated reports when the most recent event was successfully
// processed. It advances on events, not on reconnects.
func (c *Client) LastUpdated() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUpdated
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		ev, err := streamprotocol.Parse(data)
		if err != nil {
			log.Printf("stream: dropping frame: %v", err)
			continue
		}

		c.mu.Lock()
		c.lastUpdated = time.Now()
		c.mu.Unlock()

		c.enqueue(ev)
	}
}

// enqueue stores the event as the repository's latest and wakes the
// dispatcher.
func (c *Client) enqueue(ev streamprotocol.Event) {
	c.pendingMu.Lock()
	c.pending[ev.Repository()] = ev
	c.pendingMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}

		for {
			c.pendingMu.Lock()
			var repo string
			var ev streamprotocol.Event
			for r, e := range c.pending {
				repo, ev = r, e
				break
			}
			if ev == nil {
				c.pendingMu.Unlock()
				break
			}
			delete(c.pending, repo)
			c.pendingMu.Unlock()

			c.onEvent(ev)
		}
	}
}

// waitRetry blocks for the backoff delay. Returns false when ctx was
// cancelled, true when it is time to redial (either the delay elapsed
// or Reconnect fired).
func (c *Client) waitRetry(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-c.retryNow:
		return true
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.connected = conn != nil
	c.mu.Unlock()
}

func (c *Client) report(state ConnState, reason string) {
	if c.onStatus == nil {
		return
	}
	c.mu.Lock()
	last := c.lastUpdated
	c.mu.Unlock()
	c.onStatus(Status{State: state, Reason: reason, LastUpdated: last})
}
