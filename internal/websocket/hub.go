package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/irfndi/AetherDEX/apps/staking/internal/metrics"
	"github.com/irfndi/AetherDEX/apps/staking/internal/models"
	"github.com/sirupsen/logrus"
)

// Subscription represents a client subscription to a topic
type Subscription struct {
	Client *Client
	Topic  string
	PoolID string
}

// Hub maintains the set of active clients and fans out staking updates
// to the clients subscribed to each pool.
//
// Client.Send is written only under mu.RLock by members of Clients and
// closed only under mu.Lock by removeClient.
type Hub struct {
	// Registered clients
	Clients map[*Client]bool

	// Register requests from the server
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// Subscribe requests from clients
	Subscribe chan *Subscription

	// Unsubscribe requests from clients
	Unsubscribe chan *Subscription

	// Topic subscriptions: topic -> clients
	Subscriptions map[string]map[*Client]bool

	Stats ConnectionStats

	mu       sync.RWMutex
	stop     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		Clients:       make(map[*Client]bool),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		Subscribe:     make(chan *Subscription),
		Unsubscribe:   make(chan *Subscription),
		Subscriptions: make(map[string]map[*Client]bool),
		stop:          make(chan struct{}),
		Stats: ConnectionStats{
			LastUpdate: time.Now(),
		},
	}
}

// Run starts the hub and handles client connections and subscriptions
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.removeClient(client)

		case subscription := <-h.Subscribe:
			h.subscribeClient(subscription)

		case subscription := <-h.Unsubscribe:
			h.unsubscribeClient(subscription)

		case <-h.stop:
			return
		}
	}
}

// request hands v to ch unless the hub has stopped
func request[T any](h *Hub, ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-h.stop:
		return false
	}
}

// registerClient registers a new client and starts its pumps
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.Clients[client] = true
	h.Stats.TotalConnections++
	h.Stats.ActiveConnections++
	h.Stats.LastUpdate = time.Now()
	active := h.Stats.ActiveConnections
	h.mu.Unlock()

	metrics.WebSocketClients.Inc()
	logrus.WithFields(logrus.Fields{
		"client_id": client.ID,
		"active":    active,
	}).Debug("WebSocket client registered")

	go client.WritePump()
	go client.ReadPump()
}

// removeClient unregisters a client, closes its send channel and drops its
// subscriptions. Safe to call more than once.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.Clients[client]; !ok {
		return
	}
	delete(h.Clients, client)
	close(client.Send)
	h.Stats.ActiveConnections--
	h.Stats.LastUpdate = time.Now()

	for topic, clients := range h.Subscriptions {
		if _, subscribed := clients[client]; subscribed {
			delete(clients, client)
			h.Stats.TotalSubscriptions--
			if len(clients) == 0 {
				delete(h.Subscriptions, topic)
			}
		}
	}

	metrics.WebSocketClients.Dec()
	logrus.WithField("client_id", client.ID).Debug("WebSocket client unregistered")
}

// subscribeClient subscribes a client to a topic and confirms it
func (h *Hub) subscribeClient(subscription *Subscription) {
	h.mu.Lock()
	if _, ok := h.Clients[subscription.Client]; !ok {
		h.mu.Unlock()
		return
	}
	if h.Subscriptions[subscription.Topic] == nil {
		h.Subscriptions[subscription.Topic] = make(map[*Client]bool)
	}
	if !h.Subscriptions[subscription.Topic][subscription.Client] {
		h.Subscriptions[subscription.Topic][subscription.Client] = true
		h.Stats.TotalSubscriptions++
		h.Stats.LastUpdate = time.Now()
	}
	h.mu.Unlock()

	h.sendTo(subscription.Client, Message{
		Type:      MessageTypeSubscribed,
		Topic:     string(TopicPools),
		PoolID:    subscription.PoolID,
		Timestamp: time.Now(),
	})
}

// unsubscribeClient unsubscribes a client from a topic and confirms it
func (h *Hub) unsubscribeClient(subscription *Subscription) {
	h.mu.Lock()
	if clients, exists := h.Subscriptions[subscription.Topic]; exists {
		if _, subscribed := clients[subscription.Client]; subscribed {
			delete(clients, subscription.Client)
			h.Stats.TotalSubscriptions--
			h.Stats.LastUpdate = time.Now()
			if len(clients) == 0 {
				delete(h.Subscriptions, subscription.Topic)
			}
		}
	}
	h.mu.Unlock()

	h.sendTo(subscription.Client, Message{
		Type:      MessageTypeUnsubscribed,
		Topic:     string(TopicPools),
		PoolID:    subscription.PoolID,
		Timestamp: time.Now(),
	})
}

// sendTo queues message for one client. A client with a full buffer is dropped.
func (h *Hub) sendTo(client *Client, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal websocket message")
		return
	}

	h.mu.RLock()
	_, ok := h.Clients[client]
	sent := false
	if ok {
		select {
		case client.Send <- data:
			sent = true
		default:
		}
	}
	h.mu.RUnlock()

	if ok && !sent {
		h.removeClient(client)
	}
}

// BroadcastToTopic broadcasts a message to all clients subscribed to a topic
func (h *Hub) BroadcastToTopic(topic string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		logrus.WithError(err).WithField("topic", topic).Error("Failed to marshal websocket message")
		return
	}

	var (
		slow []*Client
		sent int64
	)
	h.mu.RLock()
	for client := range h.Subscriptions[topic] {
		select {
		case client.Send <- data:
			sent++
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		logrus.WithField("client_id", client.ID).Warn("Dropping slow websocket client")
		h.removeClient(client)
	}

	if sent > 0 {
		h.mu.Lock()
		h.Stats.MessagesSent += sent
		h.Stats.LastUpdate = time.Now()
		h.mu.Unlock()
	}
}

// Notify publishes a committed staking operation to the pool's subscribers
func (h *Hub) Notify(event *models.StakeEvent, pool *models.StakingPool, position *models.UserPosition) {
	if event == nil || pool == nil {
		return
	}
	topic := poolTopic(pool.PoolID)
	now := time.Now()

	h.BroadcastToTopic(topic, Message{
		Type:   MessageTypePoolUpdate,
		Topic:  string(TopicPools),
		PoolID: pool.PoolID,
		Data: PoolUpdate{
			PoolID:       pool.PoolID,
			EventID:      event.EventID,
			Event:        string(event.Type),
			Actor:        event.Actor,
			APY:          pool.APY,
			LockDuration: pool.LockDuration,
			StartTime:    pool.StartTime,
			EndTime:      pool.EndTime,
			TotalStaked:  pool.TotalStaked,
			RewardPool:   pool.RewardPool,
			OccurredAt:   event.OccurredAt,
		},
		Timestamp: now,
	})

	if position == nil {
		return
	}
	h.BroadcastToTopic(topic, Message{
		Type:   MessageTypePositionUpdate,
		Topic:  string(TopicPools),
		PoolID: pool.PoolID,
		Data: PositionUpdate{
			PoolID:         position.PoolID,
			EventID:        event.EventID,
			Event:          string(event.Type),
			Owner:          position.Owner,
			StakedAmount:   position.StakedAmount,
			AccruedRewards: position.AccruedRewards,
			StakeTimestamp: position.StakeTimestamp,
			IsActive:       position.IsActive,
			Amount:         event.Amount,
			Rewards:        event.Rewards,
			OccurredAt:     event.OccurredAt,
		},
		Timestamp: now,
	})
}

func (h *Hub) countReceived() {
	h.mu.Lock()
	h.Stats.MessagesReceived++
	h.mu.Unlock()
}

// GetStats returns current connection statistics
func (h *Hub) GetStats() ConnectionStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.Stats
}

// GetClientCount returns the number of active clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.Clients)
}

// GetSubscriptionCount returns the total number of subscriptions
func (h *Hub) GetSubscriptionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, clients := range h.Subscriptions {
		count += len(clients)
	}
	return count
}

// Stop stops the hub and closes all client connections
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)

		h.mu.RLock()
		clients := make([]*Client, 0, len(h.Clients))
		for client := range h.Clients {
			clients = append(clients, client)
		}
		h.mu.RUnlock()

		// WritePump sends the close frame once Send is closed.
		for _, client := range clients {
			h.removeClient(client)
		}
	})
}
