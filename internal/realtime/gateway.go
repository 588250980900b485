package realtime

import (
	"context"
	"sync"

	"github.com/BusyMan009/my-thrift-backend/internal/config"
	"github.com/BusyMan009/my-thrift-backend/internal/security"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Gateway tracks connected clients and chat room membership, and fans
// events out to them. All delivery is fire-and-forget: a failed or slow
// client is dropped, never retried, and failures are not surfaced to the
// caller.
type Gateway struct {
	cfg *config.Config

	mu      sync.Mutex
	clients map[uuid.UUID]*Client
	rooms   map[uuid.UUID]map[*Client]bool
	closed  bool

	bridge *Bridge
}

// NewGateway creates an empty gateway.
func NewGateway(cfg *config.Config) *Gateway {
	return &Gateway{
		cfg:     cfg,
		clients: make(map[uuid.UUID]*Client),
		rooms:   make(map[uuid.UUID]map[*Client]bool),
	}
}

// StartBridge connects the gateway to Redis pub/sub so broadcasts reach
// clients attached to other instances. The subscriber goroutine runs until
// ctx is cancelled or Close is called.
func (g *Gateway) StartBridge(ctx context.Context, redisURL string) error {
	bridge, err := NewBridge(redisURL)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.bridge = bridge
	g.mu.Unlock()
	go bridge.run(ctx, g)
	return nil
}

// Register makes c the canonical connection for its user. An earlier
// connection for the same user is evicted first; its pending unregister
// must not displace the new mapping.
func (g *Gateway) Register(c *Client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		g.closeClientLocked(c)
		return
	}
	if prev, ok := g.clients[c.userID]; ok && prev != c {
		g.removeFromRoomsLocked(prev)
		g.closeClientLocked(prev)
	}
	g.clients[c.userID] = c
	c.counted = true
	if security.WebsocketConnections != nil {
		security.WebsocketConnections.Inc()
	}
	log.Debug("Realtime client registered", "userID", c.userID)
}

// Unregister drops c from the gateway. The identity mapping is removed only
// if c is still canonical, so an evicted connection's teardown never kicks
// out its replacement.
func (g *Gateway) Unregister(c *Client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if current, ok := g.clients[c.userID]; ok && current == c {
		delete(g.clients, c.userID)
	}
	g.removeFromRoomsLocked(c)
	g.closeClientLocked(c)
}

// JoinRoom subscribes c to a chat room. Idempotent.
func (g *Gateway) JoinRoom(c *Client, chatID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	room, ok := g.rooms[chatID]
	if !ok {
		room = make(map[*Client]bool)
		g.rooms[chatID] = room
	}
	room[c] = true
}

// LeaveRoom unsubscribes c from a chat room. Idempotent.
func (g *Gateway) LeaveRoom(c *Client, chatID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if room, ok := g.rooms[chatID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(g.rooms, chatID)
		}
	}
}

// BroadcastNewMessage pushes a new_message event to every client in the
// chat room, the sender included.
func (g *Gateway) BroadcastNewMessage(payload NewMessagePayload) {
	frame, err := marshalEnvelope(EventNewMessage, payload)
	if err != nil {
		log.Error("Failed to encode new_message event", "error", err)
		return
	}
	g.deliverToRoom(payload.ChatID, frame)
	g.publish(targetRoom, payload.ChatID.String(), frame)
	countBroadcast(EventNewMessage)
}

// BroadcastListUpdate pushes a conversation_list_update event to one user's
// canonical client, if connected.
func (g *Gateway) BroadcastListUpdate(payload ConversationListUpdatePayload) {
	frame, err := marshalEnvelope(EventConversationListUpdate, payload)
	if err != nil {
		log.Error("Failed to encode conversation_list_update event", "error", err)
		return
	}
	g.deliverToUser(payload.UserID, frame)
	g.publish(targetUser, payload.UserID.String(), frame)
	countBroadcast(EventConversationListUpdate)
}

// Close tears the gateway down: every client is closed and all state cleared.
func (g *Gateway) Close() {
	g.mu.Lock()
	bridge := g.bridge
	g.bridge = nil
	g.closed = true
	for _, c := range g.clients {
		g.closeClientLocked(c)
	}
	g.clients = make(map[uuid.UUID]*Client)
	g.rooms = make(map[uuid.UUID]map[*Client]bool)
	g.mu.Unlock()

	if bridge != nil {
		bridge.Close()
	}
}

// ConnectedUsers returns the ids of users with a live connection.
func (g *Gateway) ConnectedUsers() []uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(g.clients))
	for id := range g.clients {
		ids = append(ids, id)
	}
	return ids
}

// deliverToRoom sends a frame to every local client in the room.
func (g *Gateway) deliverToRoom(chatID uuid.UUID, frame []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for c := range g.rooms[chatID] {
		g.sendLocked(c, frame)
	}
}

// deliverToUser sends a frame to the user's canonical local client.
func (g *Gateway) deliverToUser(userID uuid.UUID, frame []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[userID]; ok {
		g.sendLocked(c, frame)
	}
}

// sendLocked performs a non-blocking send. A client whose buffer is full is
// dropped rather than allowed to stall everyone else.
func (g *Gateway) sendLocked(c *Client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		log.Warn("Dropping slow realtime client", "userID", c.userID)
		if current, ok := g.clients[c.userID]; ok && current == c {
			delete(g.clients, c.userID)
		}
		g.removeFromRoomsLocked(c)
		g.closeClientLocked(c)
	}
}

func (g *Gateway) removeFromRoomsLocked(c *Client) {
	for chatID, room := range g.rooms {
		if room[c] {
			delete(room, c)
			if len(room) == 0 {
				delete(g.rooms, chatID)
			}
		}
	}
}

// closeClientLocked closes the client's send channel exactly once; the
// write pump shuts the connection down when the channel drains. The gateway
// mutex serializes all calls, so the sendClosed flag needs no further guard.
func (g *Gateway) closeClientLocked(c *Client) {
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
	if c.counted {
		c.counted = false
		if security.WebsocketConnections != nil {
			security.WebsocketConnections.Dec()
		}
	}
}

func (g *Gateway) publish(kind, target string, frame []byte) {
	g.mu.Lock()
	bridge := g.bridge
	g.mu.Unlock()
	if bridge != nil {
		bridge.Publish(kind, target, frame)
	}
}

func countBroadcast(event string) {
	if security.BroadcastsTotal != nil {
		security.BroadcastsTotal.WithLabelValues(event).Inc()
	}
}
