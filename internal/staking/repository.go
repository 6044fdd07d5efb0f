package staking

import (
	"context"
	"errors"
	"fmt"

	"github.com/irfndi/AetherDEX/apps/staking/internal/ledger"
	"github.com/irfndi/AetherDEX/apps/staking/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Repository defines staking database operations
type Repository interface {
	GetPool(ctx context.Context, poolID string) (*models.StakingPool, error)
	ListPools(ctx context.Context, limit, offset int) ([]*models.StakingPool, error)
	CreatePool(ctx context.Context, pool *models.StakingPool) error
	UpdatePool(ctx context.Context, pool *models.StakingPool) error

	GetPosition(ctx context.Context, poolID, owner string) (*models.UserPosition, error)
	ListPositions(ctx context.Context, poolID string, activeOnly bool, limit, offset int) ([]*models.UserPosition, error)
	SavePosition(ctx context.Context, position *models.UserPosition) error
	SumStaked(ctx context.Context, poolID string) (decimal.Decimal, error)

	RecordEvent(ctx context.Context, event *models.StakeEvent) error
	ListEvents(ctx context.Context, poolID, actor string, limit, offset int) ([]*models.StakeEvent, error)

	// WithTx runs fn inside one database transaction. The repository and
	// ledger passed to fn are bound to it.
	WithTx(ctx context.Context, fn func(repo Repository, tokens ledger.Ledger) error) error
}

// repository implements Repository on gorm
type repository struct {
	db *gorm.DB
}

// NewRepository creates a new staking repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// GetPool retrieves a pool by its pool ID
func (r *repository) GetPool(ctx context.Context, poolID string) (*models.StakingPool, error) {
	if poolID == "" {
		return nil, errors.New("poolID cannot be empty")
	}

	var pool models.StakingPool
	err := r.db.WithContext(ctx).Where("pool_id = ?", poolID).First(&pool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pool, nil
}

// ListPools retrieves pools with pagination
func (r *repository) ListPools(ctx context.Context, limit, offset int) ([]*models.StakingPool, error) {
	var pools []*models.StakingPool
	err := r.db.WithContext(ctx).Order("id ASC").Limit(limit).Offset(offset).Find(&pools).Error
	return pools, err
}

// CreatePool inserts a new pool at version 1
func (r *repository) CreatePool(ctx context.Context, pool *models.StakingPool) error {
	if pool == nil {
		return errors.New("pool cannot be nil")
	}
	pool.Version = 1
	return r.db.WithContext(ctx).Create(pool).Error
}

// UpdatePool writes pool if its version is unchanged since it was read
func (r *repository) UpdatePool(ctx context.Context, pool *models.StakingPool) error {
	if pool == nil {
		return errors.New("pool cannot be nil")
	}
	if pool.ID == 0 {
		return errors.New("id cannot be zero")
	}

	result := r.db.WithContext(ctx).Model(&models.StakingPool{}).
		Where("id = ? AND version = ?", pool.ID, pool.Version).
		Updates(map[string]interface{}{
			"apy":           pool.APY,
			"lock_duration": pool.LockDuration,
			"start_time":    pool.StartTime,
			"end_time":      pool.EndTime,
			"total_staked":  pool.TotalStaked,
			"reward_pool":   pool.RewardPool,
			"version":       pool.Version + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: pool %s", ErrConflict, pool.PoolID)
	}
	pool.Version++
	return nil
}

// GetPosition retrieves the position of owner in a pool
func (r *repository) GetPosition(ctx context.Context, poolID, owner string) (*models.UserPosition, error) {
	if poolID == "" {
		return nil, errors.New("poolID cannot be empty")
	}
	if owner == "" {
		return nil, errors.New("owner cannot be empty")
	}

	var position models.UserPosition
	err := r.db.WithContext(ctx).
		Where("pool_id = ? AND owner = ?", poolID, owner).
		First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &position, nil
}

// ListPositions retrieves the positions of a pool with pagination
func (r *repository) ListPositions(ctx context.Context, poolID string, activeOnly bool, limit, offset int) ([]*models.UserPosition, error) {
	if poolID == "" {
		return nil, errors.New("poolID cannot be empty")
	}

	query := r.db.WithContext(ctx).Where("pool_id = ?", poolID)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var positions []*models.UserPosition
	err := query.Order("id ASC").Limit(limit).Offset(offset).Find(&positions).Error
	return positions, err
}

// SavePosition inserts a new position or writes an existing one if its
// version is unchanged since it was read
func (r *repository) SavePosition(ctx context.Context, position *models.UserPosition) error {
	if position == nil {
		return errors.New("position cannot be nil")
	}
	db := r.db.WithContext(ctx)

	if position.ID == 0 {
		position.Version = 1
		return db.Create(position).Error
	}

	result := db.Model(&models.UserPosition{}).
		Where("id = ? AND version = ?", position.ID, position.Version).
		Updates(map[string]interface{}{
			"staked_amount":   position.StakedAmount,
			"stake_timestamp": position.StakeTimestamp,
			"last_accrual_at": position.LastAccrualAt,
			"accrued_rewards": position.AccruedRewards,
			"is_active":       position.IsActive,
			"version":         position.Version + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: position %s/%s", ErrConflict, position.PoolID, position.Owner)
	}
	position.Version++
	return nil
}

// SumStaked adds up every position's stake in a pool
func (r *repository) SumStaked(ctx context.Context, poolID string) (decimal.Decimal, error) {
	var positions []*models.UserPosition
	err := r.db.WithContext(ctx).
		Select("staked_amount").
		Where("pool_id = ?", poolID).
		Find(&positions).Error
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.StakedAmount)
	}
	return total, nil
}

// RecordEvent appends an operation to the history
func (r *repository) RecordEvent(ctx context.Context, event *models.StakeEvent) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// ListEvents retrieves a pool's history, newest first, optionally for one actor
func (r *repository) ListEvents(ctx context.Context, poolID, actor string, limit, offset int) ([]*models.StakeEvent, error) {
	if poolID == "" {
		return nil, errors.New("poolID cannot be empty")
	}

	query := r.db.WithContext(ctx).Where("pool_id = ?", poolID)
	if actor != "" {
		query = query.Where("actor = ?", actor)
	}

	var events []*models.StakeEvent
	err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&events).Error
	return events, err
}

// WithTx runs fn in a transaction
func (r *repository) WithTx(ctx context.Context, fn func(repo Repository, tokens ledger.Ledger) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repository{db: tx}, ledger.NewLedger(tx))
	})
}
