package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jensholdgaard/player-auction/internal/bidding"
	"github.com/jensholdgaard/player-auction/internal/store"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Message is a live feed frame.
type Message struct {
	// Type is "snapshot", "session" or "bid".
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans session changes and bids on the player on the block out to
// WebSocket clients.
type Hub struct {
	surface  *bidding.Surface
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu    sync.RWMutex
	conns map[*conn]struct{}
}

type conn struct {
	ws   *websocket.Conn
	send chan []byte
}

// NewHub returns a Hub reading from surface.
func NewHub(surface *bidding.Surface, logger *slog.Logger) *Hub {
	return &Hub{
		surface: surface,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The feed is read-only and public.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
		conns:  make(map[*conn]struct{}),
	}
}

// Start subscribes to session changes and forwards them until ctx is done.
// When it returns the subscription is in place.
func (h *Hub) Start(ctx context.Context) error {
	sessions := make(chan store.Session, 16)
	err := h.surface.SubscribeSession(ctx, func(s store.Session) {
		select {
		case sessions <- s:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("subscribing hub to session: %w", err)
	}

	snap, err := h.surface.CurrentAuctionState(ctx)
	if err != nil {
		return fmt.Errorf("reading auction state: %w", err)
	}

	go h.loop(ctx, sessions, deref(snap.Session.CurrentPlayerID))
	return nil
}

func (h *Hub) loop(ctx context.Context, sessions <-chan store.Session, onBlock string) {
	var (
		watching   string
		cancelBids context.CancelFunc = func() {}
	)
	watch := func(playerID string) {
		if playerID == watching {
			return
		}
		cancelBids()
		cancelBids = func() {}
		watching = playerID
		if playerID == "" {
			return
		}
		bctx, cancel := context.WithCancel(ctx)
		cancelBids = cancel
		err := h.surface.SubscribeBids(bctx, playerID, func(b store.Bid) {
			h.Broadcast(Message{Type: "bid", Data: b})
		})
		if err != nil {
			h.logger.ErrorContext(ctx, "subscribing hub to bids",
				slog.String("player_id", playerID),
				slog.Any("error", err),
			)
		}
	}
	watch(onBlock)

	for {
		select {
		case <-ctx.Done():
			cancelBids()
			h.closeAll()
			return
		case s := <-sessions:
			// Subscribe to the new player's bids before clients learn about it.
			watch(deref(s.CurrentPlayerID))
			h.Broadcast(Message{Type: "session", Data: s})
		}
	}
}

// Broadcast sends msg to every client. Clients that cannot keep up miss it.
func (h *Hub) Broadcast(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encoding feed message", slog.Any("error", err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		select {
		case c.send <- b:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// ServeWS upgrades the request and streams the feed, starting with a snapshot.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	snap, err := h.surface.CurrentAuctionState(r.Context())
	if err != nil {
		http.Error(w, "system unavailable", http.StatusServiceUnavailable)
		return
	}
	first, err := json.Marshal(Message{Type: "snapshot", Data: snap})
	if err != nil {
		http.Error(w, "system unavailable", http.StatusServiceUnavailable)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", slog.Any("error", err))
		return
	}
	c := &conn{ws: ws, send: make(chan []byte, sendBuffer)}
	c.send <- first

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards client frames and notices when the peer goes away.
func (h *Hub) readPump(c *conn) {
	defer h.remove(c)
	c.ws.SetReadLimit(512)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; ok {
		delete(h.conns, c)
		close(c.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		delete(h.conns, c)
		close(c.send)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
