package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StakingPool is the persisted pool state: parameters fixed by the owner plus
// the aggregate counters every operation keeps in sync.
type StakingPool struct {
	ID           uint            `json:"-" gorm:"primaryKey"`
	PoolID       string          `json:"pool_id" gorm:"uniqueIndex;not null;size:66"`
	Owner        string          `json:"owner" gorm:"not null;size:42;index"`
	APY          uint64          `json:"apy" gorm:"not null"`           // Whole percent, 10 = 10%
	LockDuration int64           `json:"lock_duration" gorm:"not null"` // Seconds
	StartTime    int64           `json:"start_time" gorm:"not null"`
	EndTime      int64           `json:"end_time" gorm:"not null"`
	TotalStaked  decimal.Decimal `json:"total_staked" gorm:"type:decimal(36,0);not null"`
	RewardPool   decimal.Decimal `json:"reward_pool" gorm:"type:decimal(36,0);not null"`
	Version      int64           `json:"version" gorm:"not null;default:1"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TableName returns the table name for StakingPool model
func (StakingPool) TableName() string {
	return "staking_pools"
}

// BeforeCreate hook to validate pool data
func (p *StakingPool) BeforeCreate(tx *gorm.DB) error {
	if p.PoolID == "" || p.Owner == "" {
		return gorm.ErrInvalidData
	}
	if p.EndTime <= p.StartTime {
		return gorm.ErrInvalidData
	}
	if p.TotalStaked.IsNegative() || p.RewardPool.IsNegative() {
		return gorm.ErrInvalidData
	}
	return nil
}

// CustodyAccount is the ledger account holding the pool's principal and rewards.
func (p *StakingPool) CustodyAccount() string {
	return CustodyAccount(p.PoolID)
}

// CustodyAccount returns the ledger account for a pool id.
func CustodyAccount(poolID string) string {
	return "pool:" + poolID
}

// UserPosition is one participant's stake inside a pool.
type UserPosition struct {
	ID             uint            `json:"-" gorm:"primaryKey"`
	PoolID         string          `json:"pool_id" gorm:"not null;size:66;uniqueIndex:idx_position_pool_owner"`
	Owner          string          `json:"owner" gorm:"not null;size:42;uniqueIndex:idx_position_pool_owner"`
	StakedAmount   decimal.Decimal `json:"staked_amount" gorm:"type:decimal(36,0);not null"`
	StakeTimestamp int64           `json:"stake_timestamp"` // Most recent stake; lock is measured from here
	LastAccrualAt  int64           `json:"last_accrual_at"` // Accrual checkpoint
	AccruedRewards decimal.Decimal `json:"accrued_rewards" gorm:"type:decimal(36,0);not null"`
	IsActive       bool            `json:"is_active" gorm:"not null;default:false;index"`
	Version        int64           `json:"version" gorm:"not null;default:1"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName returns the table name for UserPosition model
func (UserPosition) TableName() string {
	return "user_positions"
}

// BeforeCreate hook to validate position data
func (up *UserPosition) BeforeCreate(tx *gorm.DB) error {
	if up.PoolID == "" || up.Owner == "" {
		return gorm.ErrInvalidData
	}
	if up.StakedAmount.IsNegative() || up.AccruedRewards.IsNegative() {
		return gorm.ErrInvalidData
	}
	return nil
}

// RefreshActive recomputes IsActive from the balances.
func (up *UserPosition) RefreshActive() {
	up.IsActive = up.StakedAmount.IsPositive() || up.AccruedRewards.IsPositive()
}

// StakeEventType represents the type of a committed staking operation
type StakeEventType string

const (
	StakeEventInitialize   StakeEventType = "initialize"
	StakeEventStake        StakeEventType = "stake"
	StakeEventUnstake      StakeEventType = "unstake"
	StakeEventClaimRewards StakeEventType = "claim_rewards"
	StakeEventFundRewards  StakeEventType = "fund_rewards"
	StakeEventUpdateParams StakeEventType = "update_params"
)

// StakeEvent is the append-only history of committed operations.
type StakeEvent struct {
	ID         uint            `json:"-" gorm:"primaryKey"`
	EventID    string          `json:"event_id" gorm:"uniqueIndex;not null;size:36"`
	PoolID     string          `json:"pool_id" gorm:"not null;size:66;index"`
	Actor      string          `json:"actor" gorm:"not null;size:42;index"`
	Type       StakeEventType  `json:"type" gorm:"not null;size:20"`
	Amount     decimal.Decimal `json:"amount" gorm:"type:decimal(36,0)"`  // Principal moved
	Rewards    decimal.Decimal `json:"rewards" gorm:"type:decimal(36,0)"` // Rewards paid
	OccurredAt int64           `json:"occurred_at" gorm:"not null;index"`
	CreatedAt  time.Time       `json:"created_at"`
}

// TableName returns the table name for StakeEvent model
func (StakeEvent) TableName() string {
	return "stake_events"
}

// TokenBalance is a ledger account balance in the smallest token unit.
type TokenBalance struct {
	ID        uint            `json:"-" gorm:"primaryKey"`
	Account   string          `json:"account" gorm:"uniqueIndex;not null;size:80"`
	Balance   decimal.Decimal `json:"balance" gorm:"type:decimal(36,0);not null"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName returns the table name for TokenBalance model
func (TokenBalance) TableName() string {
	return "token_balances"
}

// BeforeSave hook to reject negative balances
func (b *TokenBalance) BeforeSave(tx *gorm.DB) error {
	if b.Balance.IsNegative() {
		return gorm.ErrInvalidData
	}
	return nil
}

// All returns every model for auto-migration.
func All() []interface{} {
	return []interface{}{
		&StakingPool{},
		&UserPosition{},
		&StakeEvent{},
		&TokenBalance{},
	}
}
