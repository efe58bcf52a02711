package ws

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"voicetasks-backend/internal/tasks"
)

// Client connection states.
type ClientState int

const (
	StateDisconnected ClientState = iota
	StateConnected
	StateReconnecting
	StateAbandoned
)

func (s ClientState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateAbandoned:
		return "abandoned"
	default:
		return "disconnected"
	}
}

// ErrAbandoned is returned by Run when the reconnect budget is spent.
var ErrAbandoned = errors.New("reconnect attempts exhausted")

// Conn is one established sync channel from the client's point of view.
type Conn interface {
	Send(Message) error
	Receive(*Message) error
	Close() error
}

// Dialer establishes a Conn. Injected so reconnect behavior is testable
// without a network.
type Dialer func(ctx context.Context) (Conn, error)

const (
	DefaultInitialBackoff = 1 * time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultMaxAttempts    = 5
)

// Client maintains a local task view mirrored from the hub. On
// unexpected disconnect it retries with exponential backoff (1s
// doubling, capped at 30s, abandoning after 5 attempts); every
// successful connect resets the attempt counter and requests a full
// resync rather than trusting any buffered partial state.
type Client struct {
	dial  Dialer
	sleep func(time.Duration) // injected clock

	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxAttempts    int

	mu      sync.Mutex
	view    []tasks.Task
	state   ClientState
	attempt int
}

func NewClient(dial Dialer) *Client {
	return &Client{
		dial:           dial,
		sleep:          time.Sleep,
		initialBackoff: DefaultInitialBackoff,
		maxBackoff:     DefaultMaxBackoff,
		maxAttempts:    DefaultMaxAttempts,
	}
}

// WebsocketDialer dials a real hub endpoint.
func WebsocketDialer(url, origin string) Dialer {
	return func(_ context.Context) (Conn, error) {
		sock, err := websocket.Dial(url, "", origin)
		if err != nil {
			return nil, err
		}
		return jsonConn{sock}, nil
	}
}

type jsonConn struct{ sock *websocket.Conn }

func (c jsonConn) Send(m Message) error     { return websocket.JSON.Send(c.sock, m) }
func (c jsonConn) Receive(m *Message) error { return websocket.JSON.Receive(c.sock, m) }
func (c jsonConn) Close() error             { return c.sock.Close() }

// SetSleep overrides the backoff sleeper. Test hook.
func (c *Client) SetSleep(sleep func(time.Duration)) { c.sleep = sleep }

// SetReconnectPolicy overrides the backoff parameters. Test hook.
func (c *Client) SetReconnectPolicy(initial, max time.Duration, attempts int) {
	c.initialBackoff = initial
	c.maxBackoff = max
	c.maxAttempts = attempts
}

// State reports the connection state.
func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempt reports the current reconnect attempt counter.
func (c *Client) Attempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// Tasks returns a copy of the local task view.
func (c *Client) Tasks() []tasks.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]tasks.Task, len(c.view))
	copy(out, c.view)
	return out
}

// Run connects and keeps the local view in sync until ctx is done or
// the reconnect budget is exhausted.
func (c *Client) Run(ctx context.Context) error {
	for {
		conn, err := c.connect(ctx)
		if err != nil {
			return err
		}

		c.receive(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return ctx.Err()
		}
		// unexpected disconnect: fall through and reconnect
	}
}

// connect dials until success or the attempt budget is spent.
func (c *Client) connect(ctx context.Context) (Conn, error) {
	for {
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return nil, ctx.Err()
		}

		conn, err := c.dial(ctx)
		if err == nil {
			c.mu.Lock()
			c.state = StateConnected
			c.attempt = 0
			c.mu.Unlock()

			// never trust buffered partial state after a gap
			if err := conn.Send(Message{Type: TypeRequestResync}); err != nil {
				conn.Close()
				continue
			}
			return conn, nil
		}

		c.mu.Lock()
		c.attempt++
		attempt := c.attempt
		c.state = StateReconnecting
		if attempt >= c.maxAttempts {
			c.state = StateAbandoned
			c.mu.Unlock()
			return nil, fmt.Errorf("%w after %d attempts: %v", ErrAbandoned, attempt, err)
		}
		c.mu.Unlock()

		backoff := c.backoff(attempt)
		log.Printf("ws client: connect failed (attempt %d), retrying in %s: %v", attempt, backoff, err)
		c.sleep(backoff)
	}
}

// backoff is 1s doubled per attempt, capped.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.initialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.maxBackoff {
			return c.maxBackoff
		}
	}
	if d > c.maxBackoff {
		return c.maxBackoff
	}
	return d
}

func (c *Client) receive(ctx context.Context, conn Conn) {
	for {
		var m Message
		if err := conn.Receive(&m); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		c.Handle(&m, conn)
	}
}

// Handle applies one inbound message to the local view. A snapshot
// replaces the view wholesale; an upsert merges in place; a server
// ping is answered with a pong.
func (c *Client) Handle(m *Message, conn Conn) {
	switch m.Type {
	case TypeTasksUpdate:
		c.mu.Lock()
		c.view = append([]tasks.Task(nil), m.Tasks...)
		c.mu.Unlock()
	case TypeTaskUpdate:
		if m.Data == nil {
			return
		}
		c.mu.Lock()
		c.view = MergeUpsert(c.view, *m.Data)
		c.mu.Unlock()
	case TypePing:
		if conn != nil {
			_ = conn.Send(Message{Type: TypePong})
		}
	case TypePong:
		// liveness ack, nothing to merge
	}
}

func (c *Client) setState(s ClientState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
