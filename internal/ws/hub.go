package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"voicetasks-backend/internal/tasks"
)

// Liveness states for one connection.
const (
	stateAlive = iota
	stateSuspect
	stateClosed
)

const (
	// DefaultProbeInterval is how often the hub pings each connection.
	DefaultProbeInterval = 30 * time.Second
	// DefaultMissedLimit is how many unanswered probes close a
	// connection.
	DefaultMissedLimit = 2

	// outboundBuffer bounds the per-connection send queue. A client
	// that falls this far behind is treated as failed so broadcasts
	// never block on it.
	outboundBuffer = 32

	snapshotTimeout = 5 * time.Second
)

// conn is the owned state record for one live client channel.
type conn struct {
	sock *websocket.Conn
	out  chan Message

	mu       sync.Mutex
	state    int
	lastPong time.Time
	missed   int
}

// Hub owns all live connections. It is the single consumer of change
// events: the executor hands each accepted event to Broadcast, which
// never blocks and never fails the caller.
type Hub struct {
	store         tasks.Store
	probeInterval time.Duration
	missedLimit   int

	mu    sync.Mutex
	conns map[*conn]struct{}
}

func NewHub(store tasks.Store) *Hub {
	return &Hub{
		store:         store,
		probeInterval: DefaultProbeInterval,
		missedLimit:   DefaultMissedLimit,
		conns:         make(map[*conn]struct{}),
	}
}

// SetProbePolicy overrides the liveness probe interval and missed-probe
// limit. Test hook.
func (h *Hub) SetProbePolicy(interval time.Duration, missedLimit int) {
	h.probeInterval = interval
	h.missedLimit = missedLimit
}

// Handler returns the websocket endpoint handler.
func (h *Hub) Handler() websocket.Handler {
	return websocket.Handler(h.serve)
}

// Run drives the liveness probe loop until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.probe()
		}
	}
}

// Broadcast fans one event out to every live connection. Delivery to
// each connection is queued independently: one slow or dead client
// never blocks the others. A connection whose queue is full is closed.
func (h *Hub) Broadcast(m Message) {
	h.mu.Lock()
	targets := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		h.enqueue(c, m)
	}
}

// ConnCount reports the number of registered connections.
func (h *Hub) ConnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) serve(sock *websocket.Conn) {
	c := &conn{
		sock:     sock,
		out:      make(chan Message, outboundBuffer),
		state:    stateAlive,
		lastPong: time.Now(),
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	total := len(h.conns)
	h.mu.Unlock()
	log.Printf("ws: client connected (%d total)", total)

	go h.writeLoop(c)

	// a new client starts from a consistent full snapshot
	h.sendSnapshot(c)

	h.readLoop(c)
	h.remove(c)
}

func (h *Hub) writeLoop(c *conn) {
	for m := range c.out {
		if err := websocket.JSON.Send(c.sock, m); err != nil {
			log.Println("ws: send failed, dropping connection:", err)
			h.remove(c)
			return
		}
	}
}

func (h *Hub) readLoop(c *conn) {
	for {
		var m Message
		if err := websocket.JSON.Receive(c.sock, &m); err != nil {
			return
		}

		switch m.Type {
		case TypePing:
			h.enqueue(c, Message{Type: TypePong})
		case TypePong:
			c.mu.Lock()
			c.lastPong = time.Now()
			c.missed = 0
			if c.state == stateSuspect {
				c.state = stateAlive
			}
			c.mu.Unlock()
		case TypeRequestResync, TypeGetTasks:
			h.sendSnapshot(c)
		default:
			log.Printf("ws: unknown message type %q", m.Type)
		}
	}
}

func (h *Hub) sendSnapshot(c *conn) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	list, err := h.store.List(ctx, true)
	if err != nil {
		log.Println("ws: snapshot fetch failed:", err)
		return
	}
	h.enqueue(c, TasksUpdate(list))
}

// enqueue queues a message without blocking; a connection whose queue
// is saturated is closed and removed.
func (h *Hub) enqueue(c *conn, m Message) {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return
	}
	select {
	case c.out <- m:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		log.Println("ws: client not keeping up, dropping connection")
		h.remove(c)
	}
}

// probe sends a liveness ping to every connection and advances the
// alive -> suspect -> closed state machine for the ones that have not
// answered since the previous round.
func (h *Hub) probe() {
	h.mu.Lock()
	targets := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.mu.Lock()
		if time.Since(c.lastPong) > h.probeInterval {
			c.missed++
			if c.missed >= h.missedLimit {
				c.mu.Unlock()
				log.Println("ws: liveness probes unanswered, dropping connection")
				h.remove(c)
				continue
			}
			c.state = stateSuspect
		}
		c.mu.Unlock()
		h.enqueue(c, Message{Type: TypePing})
	}
}

func (h *Hub) remove(c *conn) {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return
	}
	c.state = stateClosed
	close(c.out)
	c.mu.Unlock()

	h.mu.Lock()
	delete(h.conns, c)
	total := len(h.conns)
	h.mu.Unlock()

	c.sock.Close()
	log.Printf("ws: client disconnected (%d total)", total)
}
