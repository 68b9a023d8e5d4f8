package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ernie/arena-queue/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const maxMatchMessage = 280

// getClientIP extracts the real client IP, checking proxy headers first
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (may contain multiple IPs, first is the client)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(allowedOrigins, origin)
		},
	}
}

// WebSocketClient is one connection of one player. A player may hold
// several at once.
type WebSocketClient struct {
	hub        *WebSocketHub
	conn       *websocket.Conn
	send       chan []byte
	playerID   string
	remoteAddr string
	rooms      map[string]bool
}

// clientFrame is what a client may send us
type clientFrame struct {
	Event   string `json:"event"`
	MatchID string `json:"match_id"`
	Message string `json:"message"`
}

// WebSocketHub tracks connections by player and groups them into match
// rooms. It is a matchmaking.Notifier.
type WebSocketHub struct {
	clients    map[*WebSocketClient]bool
	players    map[string]map[*WebSocketClient]bool
	rooms      map[string]map[*WebSocketClient]bool
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	log        *logrus.Entry
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub(log *logrus.Entry) *WebSocketHub {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &WebSocketHub{
		clients:    make(map[*WebSocketClient]bool),
		players:    make(map[string]map[*WebSocketClient]bool),
		rooms:      make(map[string]map[*WebSocketClient]bool),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		done:       make(chan struct{}),
		log:        log.WithField("component", "websocket"),
	}
}

// Run starts the hub's main loop and returns once Stop is called
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if h.players[client.playerID] == nil {
				h.players[client.playerID] = make(map[*WebSocketClient]bool)
			}
			h.players[client.playerID][client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.WithField("player_id", client.playerID).
				Infof("WebSocket client connected from %s (%d total)", client.remoteAddr, total)

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			total := len(h.clients)
			h.mu.Unlock()
			h.log.WithField("player_id", client.playerID).
				Infof("WebSocket client disconnected from %s (%d total)", client.remoteAddr, total)

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop disconnects every client and ends Run
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// removeLocked drops the client from every index. Callers hold h.mu.
func (h *WebSocketHub) removeLocked(client *WebSocketClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	if conns := h.players[client.playerID]; conns != nil {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.players, client.playerID)
		}
	}
	for matchID := range client.rooms {
		if members := h.rooms[matchID]; members != nil {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, matchID)
			}
		}
	}
	close(client.send)
}

// deliverLocked queues data on a client, dropping the client if it cannot
// keep up. Callers hold h.mu for writing.
func (h *WebSocketHub) deliverLocked(client *WebSocketClient, data []byte) {
	select {
	case client.send <- data:
	default:
		h.log.WithField("player_id", client.playerID).Warn("WebSocket client too slow, disconnecting")
		h.removeLocked(client)
	}
}

func (h *WebSocketHub) marshal(event domain.Event) ([]byte, bool) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).Errorf("Error marshaling %s event", event.Type)
		return nil, false
	}
	return data, true
}

// SendToPlayer delivers event to every connection playerID holds. Offline
// players miss it; their status is still available over HTTP.
func (h *WebSocketHub) SendToPlayer(playerID string, event domain.Event) {
	data, ok := h.marshal(event)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.players[playerID] {
		h.deliverLocked(client, data)
	}
}

// SendToRoom delivers event to every connection in the match room
func (h *WebSocketHub) SendToRoom(matchID string, event domain.Event) {
	data, ok := h.marshal(event)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.rooms[matchID] {
		h.deliverLocked(client, data)
	}
}

// JoinRoom adds every current connection of the given players to the match
// room
func (h *WebSocketHub) JoinRoom(matchID string, playerIDs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, playerID := range playerIDs {
		for client := range h.players[playerID] {
			if h.rooms[matchID] == nil {
				h.rooms[matchID] = make(map[*WebSocketClient]bool)
			}
			h.rooms[matchID][client] = true
			client.rooms[matchID] = true
		}
	}
}

// relay forwards a client's chat line to the rest of its match room
func (h *WebSocketHub) relay(from *WebSocketClient, frame clientFrame) {
	h.mu.RLock()
	inRoom := from.rooms[frame.MatchID]
	h.mu.RUnlock()
	if !inRoom {
		h.log.WithField("player_id", from.playerID).Debugf("Ignoring message for match %s outside the room", frame.MatchID)
		return
	}
	h.SendToRoom(frame.MatchID, domain.Event{
		Type:      domain.EventMatchMessage,
		MatchID:   frame.MatchID,
		Timestamp: time.Now().UTC(),
		Data:      domain.MatchMessage{From: from.playerID, Message: frame.Message},
	})
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Online reports whether playerID holds at least one connection
func (h *WebSocketHub) Online(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.players[playerID]) > 0
}

// RoomSize returns the number of connections in a match room
func (h *WebSocketHub) RoomSize(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[matchID])
}

// OnMatched tells one player about their match and puts them in its room
func (h *WebSocketHub) OnMatched(_ context.Context, e domain.MatchedEvent) {
	h.JoinRoom(e.MatchID, e.PlayerID)
	h.SendToPlayer(e.PlayerID, domain.Event{
		Type:      domain.EventMatched,
		MatchID:   e.MatchID,
		Timestamp: time.Now().UTC(),
		Data:      e,
	})
}

// OnPartyMatched gives every member of both parties their own view of the
// match
func (h *WebSocketHub) OnPartyMatched(_ context.Context, e domain.PartyMatchedEvent) {
	players := e.AffectedPlayers()
	h.JoinRoom(e.MatchID, players...)
	now := time.Now().UTC()
	for _, playerID := range players {
		payload, ok := e.PayloadFor(playerID)
		if !ok {
			continue
		}
		h.SendToPlayer(playerID, domain.Event{
			Type:      domain.EventPartyMatched,
			MatchID:   e.MatchID,
			Timestamp: now,
			Data:      payload,
		})
	}
}

// OnRosterUpdated tells current members, and anyone who just left
func (h *WebSocketHub) OnRosterUpdated(_ context.Context, e domain.RosterEvent) {
	event := domain.Event{Type: domain.EventRosterUpdated, Timestamp: time.Now().UTC(), Data: e}
	for _, playerID := range e.Recipients() {
		h.SendToPlayer(playerID, event)
	}
}

// OnPartyClosed tells the former members
func (h *WebSocketHub) OnPartyClosed(_ context.Context, e domain.PartyClosedEvent) {
	event := domain.Event{Type: domain.EventPartyClosed, Timestamp: time.Now().UTC(), Data: e}
	for _, playerID := range e.Members {
		h.SendToPlayer(playerID, event)
	}
}

// handleWebSocket upgrades HTTP to WebSocket for an authenticated player
func (r *Router) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	claims := r.getAuthClaims(req)
	if claims == nil {
		if token := req.URL.Query().Get("token"); token != "" {
			claims, _ = r.auth.ValidateToken(token)
		}
	}
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.WithError(err).Warn("WebSocket upgrade error")
		return
	}

	client := &WebSocketClient{
		hub:        r.wsHub,
		conn:       conn,
		send:       make(chan []byte, 256),
		playerID:   claims.PlayerID,
		remoteAddr: getClientIP(req),
		rooms:      make(map[string]bool),
	}

	select {
	case r.wsHub.register <- client:
	case <-r.wsHub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump reads client frames and relays match messages
func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				c.hub.log.WithError(err).Warn("WebSocket error")
			}
			break
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Event != domain.EventMatchMessage || frame.MatchID == "" {
			continue
		}
		frame.Message = strings.TrimSpace(frame.Message)
		if frame.Message == "" || len(frame.Message) > maxMatchMessage {
			continue
		}
		c.hub.relay(c, frame)
	}
}

// writePump sends messages to the WebSocket
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One event per frame so clients can decode each as JSON
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
