package models_test

import (
	"testing"

	"github.com/irfndi/AetherDEX/apps/staking/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestStakingPool_BeforeCreate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		pool := &models.StakingPool{
			PoolID:    "pool-1",
			Owner:     "0x0000000000000000000000000000000000000001",
			StartTime: 100,
			EndTime:   200,
		}
		err := pool.BeforeCreate(nil)
		assert.NoError(t, err)
	})

	t.Run("EmptyWindow", func(t *testing.T) {
		pool := &models.StakingPool{
			PoolID:    "pool-1",
			Owner:     "0x0000000000000000000000000000000000000001",
			StartTime: 200,
			EndTime:   200,
		}
		err := pool.BeforeCreate(nil)
		assert.ErrorIs(t, err, gorm.ErrInvalidData)
	})

	t.Run("NegativeRewardPool", func(t *testing.T) {
		pool := &models.StakingPool{
			PoolID:     "pool-1",
			Owner:      "0x0000000000000000000000000000000000000001",
			StartTime:  100,
			EndTime:    200,
			RewardPool: decimal.NewFromInt(-1),
		}
		err := pool.BeforeCreate(nil)
		assert.ErrorIs(t, err, gorm.ErrInvalidData)
	})
}

func TestStakingPool_CustodyAccount(t *testing.T) {
	pool := &models.StakingPool{PoolID: "pool-1"}
	assert.Equal(t, "pool:pool-1", pool.CustodyAccount())
	assert.Equal(t, pool.CustodyAccount(), models.CustodyAccount("pool-1"))
}

func TestUserPosition_BeforeCreate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		pos := &models.UserPosition{
			PoolID:       "pool-1",
			Owner:        "0x0000000000000000000000000000000000000002",
			StakedAmount: decimal.NewFromInt(100),
		}
		assert.NoError(t, pos.BeforeCreate(nil))
	})

	t.Run("MissingOwner", func(t *testing.T) {
		pos := &models.UserPosition{PoolID: "pool-1"}
		assert.ErrorIs(t, pos.BeforeCreate(nil), gorm.ErrInvalidData)
	})
}

func TestUserPosition_RefreshActive(t *testing.T) {
	pos := &models.UserPosition{StakedAmount: decimal.NewFromInt(5)}
	pos.RefreshActive()
	assert.True(t, pos.IsActive)

	pos.StakedAmount = decimal.Zero
	pos.AccruedRewards = decimal.NewFromInt(1)
	pos.RefreshActive()
	assert.True(t, pos.IsActive)

	pos.AccruedRewards = decimal.Zero
	pos.RefreshActive()
	assert.False(t, pos.IsActive)
}

func TestTokenBalance_BeforeSave(t *testing.T) {
	assert.NoError(t, (&models.TokenBalance{Balance: decimal.Zero}).BeforeSave(nil))
	assert.ErrorIs(t, (&models.TokenBalance{Balance: decimal.NewFromInt(-1)}).BeforeSave(nil), gorm.ErrInvalidData)
}
