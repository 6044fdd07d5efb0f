package websocket

import (
	"time"

	"github.com/shopspring/decimal"
)

// MessageType represents different types of WebSocket messages
type MessageType string

const (
	MessageTypeSubscribe      MessageType = "subscribe"
	MessageTypeSubscribed     MessageType = "subscribed"
	MessageTypeUnsubscribe    MessageType = "unsubscribe"
	MessageTypeUnsubscribed   MessageType = "unsubscribed"
	MessageTypePoolUpdate     MessageType = "pool_update"
	MessageTypePositionUpdate MessageType = "position_update"
	MessageTypeError          MessageType = "error"
	MessageTypePing           MessageType = "ping"
	MessageTypePong           MessageType = "pong"
)

// SubscriptionTopic represents different subscription topics
type SubscriptionTopic string

const (
	TopicPools SubscriptionTopic = "pools"
)

// poolTopic is the hub key for one pool's updates
func poolTopic(poolID string) string {
	return string(TopicPools) + ":" + poolID
}

// Message represents a generic WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Topic     string      `json:"topic,omitempty"`
	PoolID    string      `json:"pool_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Error     string      `json:"error,omitempty"`
	Code      int         `json:"code,omitempty"`
}

// PoolUpdate is the pool state after a committed operation
type PoolUpdate struct {
	PoolID       string          `json:"pool_id"`
	EventID      string          `json:"event_id"`
	Event        string          `json:"event"`
	Actor        string          `json:"actor"`
	APY          uint64          `json:"apy"`
	LockDuration int64           `json:"lock_duration"`
	StartTime    int64           `json:"start_time"`
	EndTime      int64           `json:"end_time"`
	TotalStaked  decimal.Decimal `json:"total_staked"`
	RewardPool   decimal.Decimal `json:"reward_pool"`
	OccurredAt   int64           `json:"occurred_at"`
}

// PositionUpdate is one participant's position after a committed operation
type PositionUpdate struct {
	PoolID         string          `json:"pool_id"`
	EventID        string          `json:"event_id"`
	Event          string          `json:"event"`
	Owner          string          `json:"owner"`
	StakedAmount   decimal.Decimal `json:"staked_amount"`
	AccruedRewards decimal.Decimal `json:"accrued_rewards"`
	StakeTimestamp int64           `json:"stake_timestamp"`
	IsActive       bool            `json:"is_active"`
	Amount         decimal.Decimal `json:"amount"`
	Rewards        decimal.Decimal `json:"rewards"`
	OccurredAt     int64           `json:"occurred_at"`
}

// SubscriptionRequest represents a subscription request
type SubscriptionRequest struct {
	Type   MessageType `json:"type"`
	Topic  string      `json:"topic"`
	PoolID string      `json:"pool_id,omitempty"`
}

// ConnectionStats represents WebSocket connection statistics
type ConnectionStats struct {
	TotalConnections   int       `json:"total_connections"`
	ActiveConnections  int       `json:"active_connections"`
	TotalSubscriptions int       `json:"total_subscriptions"`
	MessagesSent       int64     `json:"messages_sent"`
	MessagesReceived   int64     `json:"messages_received"`
	LastUpdate         time.Time `json:"last_update"`
}
