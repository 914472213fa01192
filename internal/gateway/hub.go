package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"trading-profilev1/internal/model"

	"github.com/gorilla/websocket"
)

const clientSendBuffer = 256

// Hub fans snapshots out to WebSocket clients. Every snapshot is wrapped in
// an envelope {"seq":n,"ts":"...","data":{...}} with a gateway-wide seq so
// clients can detect gaps and backfill from History.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	seq     int64

	history *History
	Latency *LatencyTracker

	now func() time.Time

	// OnClients is called with the client count after every connect and
	// disconnect.
	OnClients func(n int)
	// OnSlowClient is called when a client's send buffer is full and an
	// envelope is skipped for it.
	OnSlowClient func()
}

// NewHub creates a hub keeping historySize envelopes for backfill.
func NewHub(historySize int) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		history: NewHistory(historySize),
		Latency: NewLatencyTracker(10000),
		now:     time.Now,
	}
}

// Run broadcasts snapshots from in until it closes or ctx is cancelled,
// then disconnects every client.
func (h *Hub) Run(ctx context.Context, in <-chan model.Snapshot) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-in:
			if !ok {
				return
			}
			if err := h.Broadcast(snap); err != nil {
				slog.Warn("snapshot broadcast failed", "seq", snap.Seq, "error", err)
			}
		}
	}
}

// Broadcast encodes one snapshot, stores it in the history and sends it to
// every client without blocking.
func (h *Hub) Broadcast(snap model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %d: %w", snap.Seq, err)
	}
	now := h.now().UTC()
	if snap.TradeTime > 0 {
		h.Latency.Record(float64(now.UnixMilli() - snap.TradeTime))
	}

	h.mu.Lock()
	h.seq++
	seq := h.seq
	env := buildEnvelope(seq, now, data)
	h.history.Push(seq, env)

	// Held across the sends so envelopes reach each client in seq order.
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- env:
		default:
			if h.OnSlowClient != nil {
				h.OnSlowClient()
			}
		}
	}
	return nil
}

// buildEnvelope hand-assembles the envelope around already-encoded data.
func buildEnvelope(seq int64, ts time.Time, data []byte) []byte {
	buf := make([]byte, 0, len(data)+64)
	buf = append(buf, `{"seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, '}')
	return buf
}

// Serve registers an upgraded connection, sends it the latest envelope and
// starts its pumps.
func (h *Hub) Serve(conn *websocket.Conn) {
	c := &Client{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		hub:  h,
	}

	h.mu.Lock()
	if latest, _, ok := h.history.Latest(); ok {
		c.send <- latest
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	slog.Info("ws client connected", "remote", conn.RemoteAddr().String(), "clients", n)
	if h.OnClients != nil {
		h.OnClients(n)
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	slog.Info("ws client disconnected", "clients", n)
	if h.OnClients != nil {
		h.OnClients(n)
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c.conn)
	}
	h.mu.RUnlock()
	for _, conn := range conns {
		conn.Close()
	}
}

// Latest returns the newest envelope.
func (h *Hub) Latest() ([]byte, bool) {
	data, _, ok := h.history.Latest()
	return data, ok
}

// Missed returns buffered envelopes with seq in [from, to].
func (h *Hub) Missed(from, to int64) [][]byte {
	return h.history.Range(from, to)
}

// Seq returns the last assigned envelope seq.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
