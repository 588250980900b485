package realtime

import (
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// wsConn is the slice of *websocket.Conn the client uses. Tests substitute
// an in-memory implementation.
type wsConn interface {
	Close() error
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
}

// Client is one websocket connection bound to an authenticated user.
type Client struct {
	userID  uuid.UUID
	conn    wsConn
	gateway *Gateway

	// send is written only while holding the gateway mutex, which also
	// serializes the close of the channel. sendClosed and counted are
	// likewise guarded by the gateway mutex.
	send       chan []byte
	sendClosed bool
	counted    bool
}

// NewClient wraps an upgraded websocket connection. Register it with the
// gateway and call Run to start its pumps.
func NewClient(g *Gateway, conn *websocket.Conn, userID uuid.UUID) *Client {
	return newClient(g, conn, userID)
}

func newClient(g *Gateway, conn wsConn, userID uuid.UUID) *Client {
	return &Client{
		userID:  userID,
		conn:    conn,
		gateway: g,
		send:    make(chan []byte, g.cfg.WSSendBuffer),
	}
}

// UserID returns the authenticated user behind this connection.
func (c *Client) UserID() uuid.UUID { return c.userID }

// Run starts the read and write pumps.
func (c *Client) Run() {
	go c.writePump()
	go c.readPump()
}

// readPump consumes inbound frames until the connection drops. Room
// membership commands are applied to the gateway; anything else is ignored.
func (c *Client) readPump() {
	defer func() {
		c.gateway.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.gateway.cfg.WSMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.gateway.cfg.WSPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.gateway.cfg.WSPongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug("Websocket read failed", "userID", c.userID, "error", err)
			}
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			log.Debug("Ignoring malformed websocket frame", "userID", c.userID, "error", err)
			continue
		}

		switch cmd.Event {
		case commandJoin:
			// Identity comes from the token at upgrade time; nothing to do.
		case commandJoinChat:
			if chatID, err := uuid.Parse(cmd.ChatID); err == nil {
				c.gateway.JoinRoom(c, chatID)
			}
		case commandLeaveChat:
			if chatID, err := uuid.Parse(cmd.ChatID); err == nil {
				c.gateway.LeaveRoom(c, chatID)
			}
		default:
			log.Debug("Ignoring unknown websocket event", "userID", c.userID, "event", cmd.Event)
		}
	}
}

// writePump moves frames from the send channel to the wire and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.gateway.cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.gateway.cfg.WSWriteWait))
			if !ok {
				// Gateway closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.gateway.cfg.WSWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
