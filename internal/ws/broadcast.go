package ws

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/capture"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/session"
)

// ErrTooManyConnections is returned by AddClient once maxConns is reached.
var ErrTooManyConnections = errors.New("too many websocket connections")

const writeWait = 10 * time.Second

// Used when NewBroadcaster gets a non-positive interval.
const (
	defaultThrottle         = 100 * time.Millisecond
	defaultSnapshotInterval = 5 * time.Second
)

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

// Broadcaster fans scan session updates out to websocket clients. State
// changes are coalesced per session and flushed at most once per throttle
// interval; results and errors go out immediately.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	store    *session.Store
	maxConns int
	health   func() capture.HealthSnapshot

	throttle       time.Duration
	snapshotTicker *time.Ticker
	stop           chan struct{}
	stopOnce       sync.Once

	flushMu    sync.Mutex
	pending    map[string]*session.State
	order      []string
	flushTimer *time.Timer
}

// NewBroadcaster starts the periodic snapshot loop. maxConns of zero means
// unlimited clients.
func NewBroadcaster(store *session.Store, throttle, snapshotInterval time.Duration, maxConns int) *Broadcaster {
	if throttle <= 0 {
		throttle = defaultThrottle
	}
	if snapshotInterval <= 0 {
		snapshotInterval = defaultSnapshotInterval
	}
	b := &Broadcaster{
		clients:  make(map[*client]bool),
		store:    store,
		maxConns: maxConns,
		throttle: throttle,
		stop:     make(chan struct{}),
		pending:  make(map[string]*session.State),
	}

	b.snapshotTicker = time.NewTicker(snapshotInterval)
	go b.snapshotLoop()

	return b
}

// SetHealthSource includes device health in snapshots. Call before clients
// connect.
func (b *Broadcaster) SetHealthSource(fn func() capture.HealthSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.health = fn
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	c := &client{
		conn: conn,
		b:    b,
		send: make(chan []byte, 64),
	}

	// Queue the snapshot before the client is visible to anyone else.
	if data, err := json.Marshal(b.snapshot()); err != nil {
		log.Printf("snapshot marshal error: %v", err)
	} else {
		c.send <- data
	}

	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	b.clients[c] = true
	b.mu.Unlock()

	go c.writePump()
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

// QueueState schedules a delta for state. Several updates of one session
// within the throttle window collapse into the latest.
func (b *Broadcaster) QueueState(state *session.State) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	if _, seen := b.pending[state.ID]; !seen {
		b.order = append(b.order, state.ID)
	}
	b.pending[state.ID] = state.Clone()

	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

func (b *Broadcaster) BroadcastResult(sessionID, result string) {
	b.broadcast(WSMessage{
		Type:    MsgResult,
		Payload: ResultPayload{SessionID: sessionID, Result: result},
	})
}

func (b *Broadcaster) BroadcastError(sessionID, kind, message string) {
	b.broadcast(WSMessage{
		Type:    MsgError,
		Payload: ErrorPayload{SessionID: sessionID, Kind: kind, Message: message},
	})
}

func (b *Broadcaster) BroadcastHealth(snap capture.HealthSnapshot) {
	b.broadcast(WSMessage{Type: MsgHealth, Payload: snap})
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	updates := make([]*session.State, 0, len(b.order))
	for _, id := range b.order {
		updates = append(updates, b.pending[id])
	}
	b.pending = make(map[string]*session.State)
	b.order = nil
	b.flushTimer = nil
	b.flushMu.Unlock()

	if len(updates) == 0 {
		return
	}
	b.broadcast(WSMessage{Type: MsgDelta, Payload: DeltaPayload{Updates: updates}})
}

func (b *Broadcaster) snapshot() WSMessage {
	payload := SnapshotPayload{Recent: b.store.Recent()}
	if cur, ok := b.store.Current(); ok {
		payload.Current = cur
	}
	b.mu.RLock()
	health := b.health
	b.mu.RUnlock()
	if health != nil {
		snap := health()
		payload.Health = &snap
	}
	return WSMessage{Type: MsgSnapshot, Payload: payload}
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.stop:
			return
		case <-b.snapshotTicker.C:
			b.broadcast(b.snapshot())
		}
	}
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}

	// Sends happen under the read lock so RemoveClient cannot close a
	// channel mid-send.
	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		// Client can't keep up, disconnect it
		log.Printf("ws client too slow, disconnecting")
		b.RemoveClient(c)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Stop ends the snapshot loop and disconnects every client.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		b.snapshotTicker.Stop()
		close(b.stop)

		b.flushMu.Lock()
		if b.flushTimer != nil {
			b.flushTimer.Stop()
			b.flushTimer = nil
		}
		b.flushMu.Unlock()

		b.mu.Lock()
		for c := range b.clients {
			delete(b.clients, c)
			close(c.send)
		}
		b.mu.Unlock()
	})
}
