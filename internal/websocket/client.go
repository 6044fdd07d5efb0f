package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

// Client represents a WebSocket client connection
type Client struct {
	ID            string
	Conn          *websocket.Conn
	Hub           *Hub
	Send          chan []byte
	Subscriptions map[string]bool // topic -> subscribed
	mu            sync.RWMutex
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, hub *Hub, id string) *Client {
	return &Client{
		ID:            id,
		Conn:          conn,
		Hub:           hub,
		Send:          make(chan []byte, sendBuffer),
		Subscriptions: make(map[string]bool),
	}
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		if !request(c.Hub, c.Hub.Unregister, c) {
			c.Hub.removeClient(c)
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("client_id", c.ID).Warn("WebSocket read error")
			}
			return
		}
		c.Hub.countReceived()
		c.handleMessage(message)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes incoming WebSocket messages
func (c *Client) handleMessage(message []byte) {
	var req SubscriptionRequest
	if err := json.Unmarshal(message, &req); err != nil {
		c.sendError("Invalid message format", http.StatusBadRequest)
		return
	}

	switch req.Type {
	case MessageTypeSubscribe:
		c.handleSubscription(req, true)
	case MessageTypeUnsubscribe:
		c.handleSubscription(req, false)
	case MessageTypePing:
		c.Hub.sendTo(c, Message{Type: MessageTypePong, Timestamp: time.Now()})
	default:
		c.sendError("Unknown message type", http.StatusBadRequest)
	}
}

// handleSubscription forwards a subscribe or unsubscribe request to the hub
func (c *Client) handleSubscription(req SubscriptionRequest, subscribe bool) {
	if req.Topic != string(TopicPools) {
		c.sendError("Invalid subscription topic", http.StatusBadRequest)
		return
	}
	if req.PoolID == "" {
		c.sendError("Pool ID required for pool subscription", http.StatusBadRequest)
		return
	}

	key := poolTopic(req.PoolID)
	sub := &Subscription{Client: c, Topic: key, PoolID: req.PoolID}

	c.mu.Lock()
	if subscribe {
		c.Subscriptions[key] = true
	} else {
		delete(c.Subscriptions, key)
	}
	c.mu.Unlock()

	if subscribe {
		request(c.Hub, c.Hub.Subscribe, sub)
	} else {
		request(c.Hub, c.Hub.Unsubscribe, sub)
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(errorMsg string, code int) {
	c.Hub.sendTo(c, Message{
		Type:      MessageTypeError,
		Error:     errorMsg,
		Code:      code,
		Timestamp: time.Now(),
	})
}

// IsSubscribed checks if the client is subscribed to a pool
func (c *Client) IsSubscribed(poolID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Subscriptions[poolTopic(poolID)]
}
