package lobby

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/portfolio-globe/backend/internal/util"
	"github.com/portfolio-globe/backend/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBufferSize = 256
)

// Message is what a client sends. The legacy form {"action":"message",
// "type":"setNickname"} is accepted next to {"action":"join"}.
type Message struct {
	Action    string `json:"action"`
	Type      string `json:"type,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	Direction string `json:"direction,omitempty"`
	Key       string `json:"key,omitempty"`
}

func (m Message) kind() string {
	k := m.Action
	if k == "message" || k == "" {
		k = m.Type
	}
	switch k {
	case "setNickname":
		return "join"
	case "keypress":
		return "key"
	}
	return k
}

// Outbound is what the hub sends.
type Outbound struct {
	Type         string   `json:"type"`
	ConnectionID string   `json:"connectionId,omitempty"`
	Player       *Player  `json:"player,omitempty"`
	Players      []Player `json:"players,omitempty"`
	Message      string   `json:"message,omitempty"`
}

type inbound struct {
	client *Client
	msg    Message
}

// Hub owns the lobby and every websocket connected to it. All lobby state
// is touched only from the run loop.
type Hub struct {
	lobby   *Lobby
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	queries    chan chan []Player

	upgrader websocket.Upgrader
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewHub starts the run loop. Close stops it.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		lobby:      New(),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		inbound:    make(chan inbound, 256),
		queries:    make(chan chan []Player),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return
		case c := <-h.register:
			h.clients[c] = true
			p := h.lobby.Connect(c.id)
			h.send(c, Outbound{Type: "welcome", ConnectionID: c.id, Player: &p})
			h.broadcastPlayers()
		case c := <-h.unregister:
			if h.drop(c) {
				h.broadcastPlayers()
			}
		case in := <-h.inbound:
			if h.clients[in.client] {
				h.handle(in.client, in.msg)
			}
		case reply := <-h.queries:
			reply <- h.lobby.Players()
		}
	}
}

func (h *Hub) handle(c *Client, msg Message) {
	var err error
	switch msg.kind() {
	case "join":
		_, err = h.lobby.Join(c.id, msg.Nickname)
	case "move":
		_, err = h.lobby.Move(c.id, msg.Direction)
	case "key":
		_, err = h.lobby.Key(c.id, msg.Key)
	case "shoot":
		logger.Debug("[Lobby] shot fired", "connection", c.id)
		return
	default:
		logger.Debug("[Lobby] ignoring message", "connection", c.id, "action", msg.Action, "type", msg.Type)
		return
	}
	if err != nil {
		text := err.Error()
		if errors.Is(err, ErrEmptyNickname) {
			text = "Nickname cannot be empty."
		}
		h.send(c, Outbound{Type: "error", Message: text})
		return
	}
	h.broadcastPlayers()
}

func (h *Hub) broadcastPlayers() {
	data, err := json.Marshal(Outbound{Type: "players", Players: h.lobby.Players()})
	if err != nil {
		logger.Error("[Lobby] marshal players failed", "err", err)
		return
	}
	var slow []*Client
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		logger.Warn("[Lobby] closing slow client", "connection", c.id)
		h.drop(c)
		c.conn.Close()
	}
}

func (h *Hub) send(c *Client, out Outbound) {
	data, err := json.Marshal(out)
	if err != nil {
		logger.Error("[Lobby] marshal message failed", "err", err)
		return
	}
	select {
	case c.send <- data:
	default:
		logger.Warn("[Lobby] send buffer full", "connection", c.id)
	}
}

// drop forgets a client. It reports whether the client was still known.
func (h *Hub) drop(c *Client) bool {
	if !h.clients[c] {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	h.lobby.Disconnect(c.id)
	logger.Debug("[Lobby] client left", "connection", c.id, "remaining", len(h.clients))
	return true
}

func (h *Hub) closeAll() {
	for c := range h.clients {
		close(c.send)
		c.conn.Close()
		h.lobby.Disconnect(c.id)
	}
	clear(h.clients)
}

// Players lists the current players. It returns nil once the hub is closed.
func (h *Hub) Players() []Player {
	reply := make(chan []Player, 1)
	select {
	case h.queries <- reply:
		return <-reply
	case <-h.done:
		return nil
	}
}

// Close disconnects every client and stops the run loop.
func (h *Hub) Close() {
	h.cancel()
	<-h.done
}

// ServeHTTP upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "lobby closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("[Lobby] upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	c := &Client{id: util.NewID(), hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		conn.Close()
		return
	}
	logger.Debug("[Lobby] client connected", "connection", c.id, "remote", r.RemoteAddr)
	go c.writePump()
	go c.readPump()
}

// Client is one websocket connection.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("[Lobby] read failed", "connection", c.id, "err", err)
			}
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		var msg Message
		if err := json.Unmarshal(bytes.TrimSpace(data), &msg); err != nil {
			logger.Debug("[Lobby] invalid message", "connection", c.id, "err", err)
			continue
		}
		select {
		case c.hub.inbound <- inbound{client: c, msg: msg}:
		case <-c.hub.ctx.Done():
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
