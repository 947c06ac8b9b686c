// Package realtime relays chat, presence and call signaling events between
// websocket connections. Clients join rooms and receive events sent to the
// rooms they are in or addressed to their user.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Event names exchanged with clients.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventOnlineUsers  = "onlineUsers"
	EventJoin         = "join"
	EventUserJoined   = "user-joined"
	EventNewMessage   = "new-message"
	EventLeftRoom     = "left-room"
	EventCallOffer    = "call-offer"
	EventCallAnswer   = "call-answer"
	EventICECandidate = "ice-candidate"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type roomPayload struct {
	Room    string          `json:"room"`
	Peer    string          `json:"peer,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client is one websocket connection of a user.
type Client struct {
	ID     string
	UserID string
	Send   chan []byte

	rooms map[string]struct{}
}

// NewClient creates a client with a buffered send queue.
func NewClient(id, userID string, buffer int) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		Send:   make(chan []byte, buffer),
		rooms:  make(map[string]struct{}),
	}
}

// Hub tracks connections, their users and their rooms. All methods are safe
// for concurrent use. Sends never block: a full client queue drops the frame.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	users   map[string]map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}

	presence PresenceRegistry
	logger   zerolog.Logger
}

// NewHub creates a Hub. A nil presence registry keeps presence in memory.
func NewHub(presence PresenceRegistry, logger zerolog.Logger) *Hub {
	if presence == nil {
		presence = NewMemoryRegistry()
	}
	return &Hub{
		clients:  make(map[*Client]struct{}),
		users:    make(map[string]map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		presence: presence,
		logger:   logger.With().Str("component", "realtime").Logger(),
	}
}

// Register adds a client, records its presence and announces it.
func (h *Hub) Register(ctx context.Context, client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	if h.users[client.UserID] == nil {
		h.users[client.UserID] = make(map[*Client]struct{})
	}
	h.users[client.UserID][client] = struct{}{}
	h.mu.Unlock()

	if err := h.presence.Add(ctx, client.ID, client.UserID); err != nil {
		h.logger.Error().Err(err).Str("user_id", client.UserID).Msg("failed to record presence")
	}
	h.Broadcast(EventConnected, map[string]string{"userId": client.UserID})
	h.broadcastOnline(ctx)
}

// Unregister removes a client from its rooms and presence, closes its send
// queue and announces the departure. It is a no-op for unknown clients.
func (h *Hub) Unregister(ctx context.Context, client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	for room := range client.rooms {
		h.leaveLocked(client, room)
	}
	if conns := h.users[client.UserID]; conns != nil {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.users, client.UserID)
		}
	}
	delete(h.clients, client)
	close(client.Send)
	h.mu.Unlock()

	if err := h.presence.Remove(ctx, client.ID); err != nil {
		h.logger.Error().Err(err).Str("user_id", client.UserID).Msg("failed to clear presence")
	}
	h.Broadcast(EventDisconnected, map[string]string{"userId": client.UserID})
	h.broadcastOnline(ctx)
}

// Join adds client to room and tells the room.
func (h *Hub) Join(client *Client, room, peer string) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][client] = struct{}{}
	client.rooms[room] = struct{}{}
	h.mu.Unlock()

	h.ToRoom(room, EventUserJoined, map[string]string{"userId": client.UserID, "peer": peer}, client)
}

// Leave tells the room and removes client from it.
func (h *Hub) Leave(client *Client, room, peer string) {
	h.ToRoom(room, EventLeftRoom, map[string]string{"userId": client.UserID, "peer": peer}, client)

	h.mu.Lock()
	h.leaveLocked(client, room)
	h.mu.Unlock()
}

func (h *Hub) leaveLocked(client *Client, room string) {
	delete(client.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// HandleMessage dispatches one inbound frame from client. Malformed frames
// and unknown events are ignored.
func (h *Hub) HandleMessage(client *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.logger.Debug().Err(err).Str("client_id", client.ID).Msg("ignoring malformed frame")
		return
	}
	var p roomPayload
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &p); err != nil {
			h.logger.Debug().Err(err).Str("event", env.Event).Msg("ignoring malformed payload")
			return
		}
	}
	if p.Room == "" {
		return
	}

	switch env.Event {
	case EventJoin:
		h.Join(client, p.Room, p.Peer)
	case EventLeftRoom:
		h.Leave(client, p.Room, p.Peer)
	case EventNewMessage:
		if h.inRoom(client, p.Room) {
			h.ToRoom(p.Room, EventNewMessage, map[string]interface{}{
				"room": p.Room, "userId": client.UserID, "message": p.Message,
			}, client)
		}
	case EventCallOffer, EventCallAnswer, EventICECandidate:
		if h.inRoom(client, p.Room) {
			h.ToRoom(p.Room, env.Event, map[string]interface{}{
				"room": p.Room, "userId": client.UserID, "payload": p.Payload,
			}, client)
		}
	}
}

func (h *Hub) inRoom(client *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][client]
	return ok
}

// SendToUser delivers an event to every connection of userID.
func (h *Hub) SendToUser(userID, event string, data interface{}) {
	frame, ok := h.encode(event, data)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.users[userID] {
		h.deliver(client, frame)
	}
}

// ToRoom delivers an event to the members of room except the sender.
func (h *Hub) ToRoom(room, event string, data interface{}, except *Client) {
	frame, ok := h.encode(event, data)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[room] {
		if client != except {
			h.deliver(client, frame)
		}
	}
}

// Broadcast delivers an event to every connection.
func (h *Hub) Broadcast(event string, data interface{}) {
	frame, ok := h.encode(event, data)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		h.deliver(client, frame)
	}
}

func (h *Hub) broadcastOnline(ctx context.Context) {
	users, err := h.presence.Online(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list online users")
		return
	}
	h.Broadcast(EventOnlineUsers, users)
}

// OnlineUsers lists the users holding at least one connection.
func (h *Hub) OnlineUsers(ctx context.Context) ([]string, error) {
	return h.presence.Online(ctx)
}

func (h *Hub) encode(event string, data interface{}) ([]byte, bool) {
	frame, err := json.Marshal(outbound{Event: event, Data: data})
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return nil, false
	}
	return frame, true
}

// deliver must be called with h.mu held.
func (h *Hub) deliver(client *Client, frame []byte) {
	select {
	case client.Send <- frame:
	default:
		h.logger.Warn().Str("client_id", client.ID).Msg("send queue full, dropping frame")
	}
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of connections in room.
func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
