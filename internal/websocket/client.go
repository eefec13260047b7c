package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Dashboards only send small control frames.
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Handheld scanners connect from the LAN without an Origin we control
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	ID string

	// invoice the dashboard follows; empty follows all
	mu        sync.RWMutex
	invoiceID string
}

// ControlMessage is what dashboards send to the server
type ControlMessage struct {
	Type      string `json:"type"`
	InvoiceID string `json:"invoiceId,omitempty"`
	MsgID     string `json:"msgId,omitempty"`
}

func (c *Client) wants(invoiceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.invoiceID == "" || c.invoiceID == invoiceID
}

// readPump handles SUBSCRIBE/UNSUBSCRIBE control frames until the peer goes away.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("WS error", zap.String("client", c.ID), zap.Error(err))
			}
			break
		}

		var msg ControlMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "SUBSCRIBE":
			c.mu.Lock()
			c.invoiceID = msg.InvoiceID
			c.mu.Unlock()
		case "UNSUBSCRIBE":
			c.mu.Lock()
			c.invoiceID = ""
			c.mu.Unlock()
		default:
			continue
		}
		c.SendJSON(map[string]string{"type": "ACK", "msgId": msg.MsgID})
	}
}

// writePump pumps messages from the hub to the websocket connection.
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

// SendJSON queues a JSON message for the client, dropping it if the buffer is full
func (c *Client) SendJSON(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		return
	}
	defer func() { _ = recover() }() // send on a channel the hub already closed
	select {
	case c.send <- msg:
	default:
	}
}

// ServeWs upgrades the request and registers the connection with the hub.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Warn("WS upgrade failed", zap.Error(err))
		return
	}
	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		ID:        "web_" + uuid.NewString(),
		invoiceID: r.URL.Query().Get("invoice"),
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}
