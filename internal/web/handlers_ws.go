package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"paradox-go-home/internal/metrics"
	"paradox-go-home/internal/state"
)

// WSHub fans state events out to websocket clients.
type WSHub struct {
	clients map[*wsClient]struct{}
	mu      sync.RWMutex
	logger  *slog.Logger

	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan state.Event

	done     chan struct{}
	stopOnce sync.Once
}

// wsClient is one connection. A non-empty node filter limits change
// events to those nodes; other event types always pass.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte

	filterMu sync.RWMutex
	nodes    map[string]bool
}

func (c *wsClient) setNodes(nodes []string) {
	var m map[string]bool
	for _, n := range nodes {
		if n = strings.TrimSpace(n); n != "" {
			if m == nil {
				m = make(map[string]bool)
			}
			m[n] = true
		}
	}
	c.filterMu.Lock()
	c.nodes = m
	c.filterMu.Unlock()
}

func (c *wsClient) wants(ev state.Event) bool {
	ch, ok := ev.Data.(state.Change)
	if !ok {
		return true
	}
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	return c.nodes == nil || c.nodes[ch.Node]
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub(logger *slog.Logger) *WSHub {
	return &WSHub{
		clients:    make(map[*wsClient]struct{}),
		logger:     logger,
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan state.Event, 256),
		done:       make(chan struct{}),
	}
}

func (h *WSHub) setClients(n int) {
	metrics.WSClients.Set(float64(n))
}

// Run starts the hub event loop.
func (h *WSHub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.setClients(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws client connected", "total", total)
			h.setClients(total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws client disconnected", "total", total)
			h.setClients(total)

		case ev := <-h.broadcast:
			h.deliver(ev)
		}
	}
}

// deliver marshals ev once and queues it for every interested client.
// Clients whose queue is full are dropped.
func (h *WSHub) deliver(ev state.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("ws marshal", "type", ev.Type, "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	var slow []*wsClient
	for client := range h.clients {
		if !client.wants(ev) {
			continue
		}
		select {
		case client.send <- data:
		default:
			slow = append(slow, client)
		}
	}
	for _, client := range slow {
		delete(h.clients, client)
		close(client.send)
		h.logger.Warn("ws client evicted (too slow)")
	}
	if len(slow) > 0 {
		h.setClients(len(h.clients))
	}
}

// Stop signals the hub to shut down. Safe to call multiple times.
func (h *WSHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// Broadcast queues an event for all clients without blocking the bus.
func (h *WSHub) Broadcast(ev state.Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("ws broadcast channel full, dropping event", "type", ev.Type)
	}
}

// wsFilter is the only message clients send: {"nodes":["zone3","partition1"]}.
// An empty list subscribes to every node again.
type wsFilter struct {
	Nodes []string `json:"nodes"`
}

// handleWS streams bus events as {"type","data"} JSON messages. The first
// message is a snapshot of the whole model. ?nodes=zone3,partition1 sets
// the initial node filter.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if len(s.allowedOrigins) > 0 {
		opts.OriginPatterns = s.allowedOrigins
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Error("ws accept", "err", err)
		return
	}
	conn.SetReadLimit(4096)

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}
	if q := r.URL.Query().Get("nodes"); q != "" {
		client.setNodes(strings.Split(q, ","))
	}

	initial, err := json.Marshal(state.Event{Type: state.EventSnapshot, Data: s.source.Snapshot()})
	if err != nil {
		s.logger.Error("ws snapshot marshal", "err", err)
		conn.Close(websocket.StatusInternalError, "snapshot")
		return
	}
	client.send <- initial

	select {
	case s.wsHub.register <- client:
	case <-s.wsHub.done:
		conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}

	go s.wsWritePump(client)
	s.wsReadPump(client)
}

func (s *Server) wsWritePump(client *wsClient) {
	for msg := range client.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := client.conn.Write(ctx, websocket.MessageText, msg)
		cancel()
		if err != nil {
			return
		}
	}
	client.conn.Close(websocket.StatusNormalClosure, "")
}

// wsReadPump applies filter updates until the connection or the hub ends.
func (s *Server) wsReadPump(client *wsClient) {
	defer func() {
		select {
		case s.wsHub.unregister <- client:
		case <-s.wsHub.done:
			client.conn.Close(websocket.StatusGoingAway, "server shutdown")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.wsHub.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		_, data, err := client.conn.Read(ctx)
		if err != nil {
			return
		}
		var f wsFilter
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Debug("ws ignoring message", "err", err)
			continue
		}
		client.setNodes(f.Nodes)
	}
}
