package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards are served from other origins
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

	// Devices the client subscribed to; empty means all
	mu      sync.RWMutex
	devices map[uuid.UUID]bool
}

// controlMessage is what dashboards send us
type controlMessage struct {
	Type     string `json:"type"` // SUBSCRIBE, UNSUBSCRIBE
	DeviceID string `json:"deviceId,omitempty"`
	MsgID    string `json:"msgId,omitempty"`
}

func (c *Client) watches(deviceID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.devices) == 0 || c.devices[deviceID]
}

func (c *Client) handleControl(msg controlMessage) map[string]string {
	id, err := uuid.Parse(msg.DeviceID)
	if err != nil {
		return map[string]string{"type": "ERROR", "msgId": msg.MsgID, "error": "invalid deviceId"}
	}

	c.mu.Lock()
	switch msg.Type {
	case "SUBSCRIBE":
		c.devices[id] = true
	case "UNSUBSCRIBE":
		delete(c.devices, id)
	}
	c.mu.Unlock()

	return map[string]string{"type": "ACK", "msgId": msg.MsgID, "deviceId": id.String()}
}

// readPump pumps control messages from the websocket connection.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WS error: %v", err)
			}
			break
		}

		var msg controlMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "SUBSCRIBE" || msg.Type == "UNSUBSCRIBE" {
			c.SendJSON(c.handleControl(msg))
		}
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

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.hub.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			return
		}
	}
}

// SendJSON queues a JSON message for the client, dropping it when the buffer is full
func (c *Client) SendJSON(v interface{}) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case c.send <- msg:
	default:
	}
	return nil
}

// ServeWs handles websocket requests from dashboards.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	client := &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		ID:      "web_" + uuid.New().String(),
		devices: make(map[uuid.UUID]bool),
	}
	select {
	case client.hub.register <- client:
	case <-client.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
