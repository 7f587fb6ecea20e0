package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wricardo/memory-match/game/engine"
	"github.com/wricardo/memory-match/game/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	sendBuffer = 256

	// Time allowed for the session layer to answer one client message.
	requestTimeout = 5 * time.Second
)

// Inbound message types handled by the hub itself. Everything else is
// forwarded as a session.Action.
const (
	messageJoin  = "join"
	messageLeave = "leave"
)

var (
	ErrNotInRoom        = errors.New("not in a room")
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnavailable      = errors.New("service unavailable")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ActionHandler receives the inbound messages of attached clients.
// session.Manager implements it.
type ActionHandler interface {
	Join(ctx context.Context, req session.JoinRequest) (string, error)
	Leave(ctx context.Context, roomID, userID string) error
	Disconnect(ctx context.Context, roomID, userID string) error
	Dispatch(ctx context.Context, roomID, userID string, action session.Action) error
}

// inbound is the envelope of every client message.
type inbound struct {
	Type     string               `json:"type"`
	RoomID   string               `json:"roomId,omitempty"`
	Password string               `json:"password,omitempty"`
	Settings *engine.RoomSettings `json:"settings,omitempty"`
}

// Client is one WebSocket connection of one user.
type Client struct {
	id          string
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	userID      string
	displayName string

	// room is the room the read goroutine acts on.
	room string

	// Owned by the hub loop.
	roomID  string
	joining bool
}

type directMessage struct {
	client *Client
	event  engine.Event
}

type bindRequest struct {
	client  *Client
	roomID  string
	joining bool
	done    chan struct{}
}

type unregisterRequest struct {
	client *Client
	// remaining receives how many other connections of the same user are
	// still attached to the client's room.
	remaining chan int
}

type countRequest struct {
	roomID string
	reply  chan int
}

// Hub maintains the set of active clients and routes events to them. All
// writes to client send channels happen on the Run loop.
type Hub struct {
	handler ActionHandler
	logger  *zap.Logger

	// Owned by Run.
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool
	users   map[string]map[*Client]bool

	broadcast  chan []engine.Event
	direct     chan directMessage
	register   chan *Client
	unregister chan unregisterRequest
	bind       chan bindRequest
	count      chan countRequest
	quit       chan struct{}
}

// NewHub creates a new WebSocket hub. Call SetHandler before serving
// connections.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:     logger.Named("websocket"),
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		users:      make(map[string]map[*Client]bool),
		broadcast:  make(chan []engine.Event, sendBuffer),
		direct:     make(chan directMessage, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan unregisterRequest),
		bind:       make(chan bindRequest),
		count:      make(chan countRequest),
		quit:       make(chan struct{}),
	}
}

// SetHandler wires the session layer. The hub and the session manager
// depend on each other, so the handler is set after construction.
func (h *Hub) SetHandler(handler ActionHandler) {
	h.handler = handler
}

// Run starts the hub's event loop and blocks until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return nil

		case client := <-h.register:
			h.registerClient(client)

		case req := <-h.unregister:
			req.remaining <- h.unregisterClient(req.client)

		case req := <-h.bind:
			h.bindClient(req.client, req.roomID, req.joining)
			close(req.done)

		case events := <-h.broadcast:
			h.route(events)

		case msg := <-h.direct:
			h.deliver(msg.client, msg.event)

		case req := <-h.count:
			req.reply <- len(h.rooms[req.roomID])
		}
	}
}

// Publish implements session.Publisher.
func (h *Hub) Publish(events []engine.Event) {
	select {
	case h.broadcast <- events:
	case <-h.quit:
	}
}

// RoomClients returns how many connections are attached to roomID.
func (h *Hub) RoomClients(roomID string) int {
	reply := make(chan int, 1)
	select {
	case h.count <- countRequest{roomID: roomID, reply: reply}:
		return <-reply
	case <-h.quit:
		return 0
	}
}

// ServeWS upgrades the request and attaches the connection for userID.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID, displayName string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	if displayName == "" {
		displayName = userID
	}

	client := &Client{
		id:          uuid.NewString(),
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		userID:      userID,
		displayName: displayName,
	}

	select {
	case h.register <- client:
	case <-h.quit:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) registerClient(client *Client) {
	h.clients[client] = true
	if h.users[client.userID] == nil {
		h.users[client.userID] = make(map[*Client]bool)
	}
	h.users[client.userID][client] = true

	h.logger.Debug("client registered",
		zap.String("conn_id", client.id),
		zap.String("user_id", client.userID),
		zap.Int("total_clients", len(h.clients)))
}

// unregisterClient removes the client and reports how many other
// connections of the same user remain in its room.
func (h *Hub) unregisterClient(client *Client) int {
	h.dropClient(client)

	remaining := 0
	if client.roomID != "" {
		for other := range h.rooms[client.roomID] {
			if other.userID == client.userID {
				remaining++
			}
		}
	}
	return remaining
}

// dropClient closes the client's send channel and removes it from every
// index. Dropping a client twice is a no-op.
func (h *Hub) dropClient(client *Client) {
	if !h.clients[client] {
		return
	}
	delete(h.clients, client)
	close(client.send)

	h.removeFromRoom(client)
	if clients, ok := h.users[client.userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.users, client.userID)
		}
	}

	h.logger.Debug("client unregistered",
		zap.String("conn_id", client.id),
		zap.String("user_id", client.userID),
		zap.Int("total_clients", len(h.clients)))
}

func (h *Hub) removeFromRoom(client *Client) {
	if clients, ok := h.rooms[client.roomID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, client.roomID)
		}
	}
}

func (h *Hub) bindClient(client *Client, roomID string, joining bool) {
	if !h.clients[client] {
		return
	}
	client.joining = joining
	if client.roomID == roomID {
		return
	}
	h.removeFromRoom(client)
	client.roomID = roomID
	if roomID == "" {
		return
	}
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
}

// route delivers events to the clients of their room. Targeted events go
// only to the named users. A joined event also attaches a connection that
// is waiting for its join to complete, which is how a client learns a
// room ID the server generated.
func (h *Hub) route(events []engine.Event) {
	for _, ev := range events {
		if len(ev.Recipients) == 0 {
			for client := range h.rooms[ev.RoomID] {
				h.deliver(client, ev)
			}
			continue
		}
		for _, userID := range ev.Recipients {
			for client := range h.users[userID] {
				switch {
				case client.roomID == ev.RoomID:
				case client.joining && ev.Kind == engine.EventJoined:
					h.bindClient(client, ev.RoomID, false)
				default:
					continue
				}
				h.deliver(client, ev)
			}
		}
	}
}

// deliver queues one event for the client. A client that cannot keep up
// is dropped.
func (h *Hub) deliver(client *Client, ev engine.Event) {
	if !h.clients[client] {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal event", zap.String("type", string(ev.Kind)), zap.Error(err))
		return
	}
	select {
	case client.send <- data:
	default:
		h.logger.Warn("client send buffer full, dropping connection",
			zap.String("conn_id", client.id),
			zap.String("user_id", client.userID))
		h.dropClient(client)
	}
}

func (h *Hub) closeAll() {
	close(h.quit)
	for client := range h.clients {
		h.dropClient(client)
	}
}

func (h *Hub) attach(client *Client, roomID string, joining bool) {
	req := bindRequest{client: client, roomID: roomID, joining: joining, done: make(chan struct{})}
	select {
	case h.bind <- req:
		<-req.done
	case <-h.quit:
	}
}

// detach unregisters the client. ok is false when the hub has stopped.
func (h *Hub) detach(client *Client) (remaining int, ok bool) {
	req := unregisterRequest{client: client, remaining: make(chan int, 1)}
	select {
	case h.unregister <- req:
		return <-req.remaining, true
	case <-h.quit:
		return 0, false
	}
}

// readPump pumps messages from the WebSocket connection to the session layer.
func (c *Client) readPump() {
	defer func() {
		remaining, ok := c.hub.detach(c)
		c.conn.Close()
		if ok && remaining == 0 && c.room != "" && c.hub.handler != nil {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			if err := c.hub.handler.Disconnect(ctx, c.room, c.userID); err != nil && !errors.Is(err, session.ErrRoomNotFound) {
				c.hub.logger.Debug("disconnect not applied",
					zap.String("room_id", c.room),
					zap.String("user_id", c.userID),
					zap.Error(err))
			}
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Info("WebSocket error", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	var env inbound
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		c.reject(env.Type, ErrMalformedMessage)
		return
	}
	handler := c.hub.handler
	if handler == nil {
		c.reject(env.Type, ErrUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch env.Type {
	case messageJoin:
		c.join(ctx, handler, env)

	case messageLeave:
		if c.room == "" {
			c.reject(env.Type, ErrNotInRoom)
			return
		}
		if err := handler.Leave(ctx, c.room, c.userID); err != nil && !errors.Is(err, session.ErrRoomNotFound) {
			c.reject(env.Type, err)
			return
		}
		c.hub.attach(c, "", false)
		c.room = ""

	default:
		if c.room == "" {
			c.reject(env.Type, ErrNotInRoom)
			return
		}
		var action session.Action
		if err := json.Unmarshal(data, &action); err != nil {
			c.reject(env.Type, ErrMalformedMessage)
			return
		}
		if err := handler.Dispatch(ctx, c.room, c.userID, action); err != nil {
			c.reject(env.Type, err)
		}
	}
}

func (c *Client) join(ctx context.Context, handler ActionHandler, env inbound) {
	target := session.NormalizeRoomID(env.RoomID)
	if c.room != "" && c.room != target {
		if err := handler.Leave(ctx, c.room, c.userID); err != nil && !errors.Is(err, session.ErrRoomNotFound) {
			c.reject(env.Type, err)
			return
		}
		c.room = ""
	}

	c.hub.attach(c, "", true)
	roomID, err := handler.Join(ctx, session.JoinRequest{
		RoomID:      env.RoomID,
		UserID:      c.userID,
		DisplayName: c.displayName,
		Password:    env.Password,
		Settings:    env.Settings,
	})
	if err != nil {
		c.hub.attach(c, c.room, false)
		c.reject(env.Type, err)
		return
	}
	c.room = roomID
	c.hub.attach(c, roomID, false)
	c.hub.logger.Debug("client joined room",
		zap.String("conn_id", c.id),
		zap.String("room_id", roomID),
		zap.String("user_id", c.userID))
}

// reject sends actionRejected to this connection only.
func (c *Client) reject(action string, err error) {
	ev := engine.Event{
		Kind:   engine.EventActionRejected,
		RoomID: c.room,
		Payload: engine.RejectedPayload{
			Action:  action,
			Reason:  reasonCode(err),
			Message: err.Error(),
		},
		Recipients: []string{c.userID},
	}
	select {
	case c.hub.direct <- directMessage{client: c, event: ev}:
	case <-c.hub.quit:
	}
}

func reasonCode(err error) string {
	switch {
	case errors.Is(err, ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, ErrMalformedMessage):
		return "malformed_message"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	}
	return session.ReasonCode(err)
}

// writePump pumps messages from the hub to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

