package staking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/irfndi/AetherDEX/apps/staking/internal/ledger"
	"github.com/irfndi/AetherDEX/apps/staking/internal/models"
	"github.com/shopspring/decimal"
)

// Transferer moves tokens between ledger accounts on behalf of the engine.
type Transferer interface {
	Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error
}

// Result is what a state transition produced.
type Result struct {
	Pool     *models.StakingPool  `json:"pool"`
	Position *models.UserPosition `json:"position,omitempty"`
	Amount   decimal.Decimal      `json:"amount"`  // Principal moved
	Rewards  decimal.Decimal      `json:"rewards"` // Rewards paid out
}

// Engine applies staking state transitions to pool and position records.
//
// Every method validates and computes against copies first, performs at most
// one transfer, and only then writes the caller's records. A failed call
// leaves its inputs untouched.
type Engine struct {
	tokens Transferer
}

// NewEngine creates an engine that settles through tokens.
func NewEngine(tokens Transferer) *Engine {
	return &Engine{tokens: tokens}
}

// Initialize creates a new pool owned by caller. existing is the record
// already stored under poolID, if any.
func (e *Engine) Initialize(existing *models.StakingPool, poolID, caller string, params Params) (*models.StakingPool, error) {
	if existing != nil {
		return nil, opError(OpInitialize, ErrAlreadyInitialized)
	}
	if strings.TrimSpace(poolID) == "" || caller == "" {
		return nil, opError(OpInitialize, ErrInvalidParameters)
	}
	if err := params.Validate(); err != nil {
		return nil, opError(OpInitialize, err)
	}

	return &models.StakingPool{
		PoolID:       poolID,
		Owner:        caller,
		APY:          params.APY,
		LockDuration: params.LockDuration,
		StartTime:    params.StartTime,
		EndTime:      params.EndTime,
		TotalStaked:  decimal.Zero,
		RewardPool:   decimal.Zero,
	}, nil
}

// Stake deposits amount for caller. position may be nil on the first stake.
func (e *Engine) Stake(ctx context.Context, pool *models.StakingPool, position *models.UserPosition, caller string, amount decimal.Decimal, now int64) (*Result, error) {
	if pool == nil {
		return nil, opError(OpStake, ErrPoolNotFound)
	}
	if !validAmount(amount) {
		return nil, opError(OpStake, ErrInvalidAmount)
	}
	if now < pool.StartTime || now > pool.EndTime {
		return nil, opError(OpStake, ErrPoolClosed)
	}
	if position == nil {
		position = &models.UserPosition{
			PoolID:         pool.PoolID,
			Owner:          caller,
			StakedAmount:   decimal.Zero,
			AccruedRewards: decimal.Zero,
		}
	}
	if err := checkPosition(pool, position, caller); err != nil {
		return nil, opError(OpStake, err)
	}

	nextPos := *position
	nextPos.AccruedRewards = position.AccruedRewards.Add(
		PendingRewards(position.StakedAmount, pool.APY, position.LastAccrualAt, now))
	nextPos.StakedAmount = position.StakedAmount.Add(amount)
	nextPos.StakeTimestamp = now
	nextPos.LastAccrualAt = now
	nextPos.RefreshActive()

	nextPool := *pool
	nextPool.TotalStaked = pool.TotalStaked.Add(amount)

	if err := e.transfer(ctx, caller, pool.CustodyAccount(), amount); err != nil {
		return nil, opError(OpStake, err)
	}

	*pool = nextPool
	*position = nextPos
	return &Result{Pool: pool, Position: position, Amount: amount, Rewards: decimal.Zero}, nil
}

// Unstake withdraws the full stake and pays every accrued reward.
func (e *Engine) Unstake(ctx context.Context, pool *models.StakingPool, position *models.UserPosition, caller string, now int64) (*Result, error) {
	if pool == nil {
		return nil, opError(OpUnstake, ErrPoolNotFound)
	}
	if position == nil || !position.StakedAmount.IsPositive() {
		return nil, opError(OpUnstake, ErrNoStake)
	}
	if err := checkPosition(pool, position, caller); err != nil {
		return nil, opError(OpUnstake, err)
	}
	if now < position.StakeTimestamp+pool.LockDuration {
		return nil, opError(OpUnstake, ErrLockActive)
	}

	principal := position.StakedAmount
	rewards := position.AccruedRewards.Add(
		PendingRewards(principal, pool.APY, position.LastAccrualAt, now))
	if pool.RewardPool.LessThan(rewards) {
		return nil, opError(OpUnstake, ErrInsufficientRewardPool)
	}

	nextPool := *pool
	nextPool.TotalStaked = pool.TotalStaked.Sub(principal)
	nextPool.RewardPool = pool.RewardPool.Sub(rewards)

	nextPos := *position
	nextPos.StakedAmount = decimal.Zero
	nextPos.AccruedRewards = decimal.Zero
	if now > position.LastAccrualAt {
		nextPos.LastAccrualAt = now
	}
	nextPos.RefreshActive()

	if err := e.transfer(ctx, pool.CustodyAccount(), caller, principal.Add(rewards)); err != nil {
		return nil, opError(OpUnstake, err)
	}

	*pool = nextPool
	*position = nextPos
	return &Result{Pool: pool, Position: position, Amount: principal, Rewards: rewards}, nil
}

// ClaimRewards pays accrued plus pending rewards and resets the accrual
// checkpoint to now. The lock is not affected.
func (e *Engine) ClaimRewards(ctx context.Context, pool *models.StakingPool, position *models.UserPosition, caller string, now int64) (*Result, error) {
	if pool == nil {
		return nil, opError(OpClaimRewards, ErrPoolNotFound)
	}
	if position == nil {
		return nil, opError(OpClaimRewards, ErrNoRewards)
	}
	if err := checkPosition(pool, position, caller); err != nil {
		return nil, opError(OpClaimRewards, err)
	}

	owed := position.AccruedRewards.Add(
		PendingRewards(position.StakedAmount, pool.APY, position.LastAccrualAt, now))
	if !owed.IsPositive() {
		return nil, opError(OpClaimRewards, ErrNoRewards)
	}
	if pool.RewardPool.LessThan(owed) {
		return nil, opError(OpClaimRewards, ErrInsufficientRewardPool)
	}

	nextPool := *pool
	nextPool.RewardPool = pool.RewardPool.Sub(owed)

	nextPos := *position
	nextPos.AccruedRewards = decimal.Zero
	if now > position.LastAccrualAt {
		nextPos.LastAccrualAt = now
	}
	nextPos.RefreshActive()

	if err := e.transfer(ctx, pool.CustodyAccount(), caller, owed); err != nil {
		return nil, opError(OpClaimRewards, err)
	}

	*pool = nextPool
	*position = nextPos
	return &Result{Pool: pool, Position: position, Amount: decimal.Zero, Rewards: owed}, nil
}

// FundRewards moves amount from the owner into the reward budget.
func (e *Engine) FundRewards(ctx context.Context, pool *models.StakingPool, caller string, amount decimal.Decimal) (*Result, error) {
	if pool == nil {
		return nil, opError(OpFundRewards, ErrPoolNotFound)
	}
	if !isOwner(pool, caller) {
		return nil, opError(OpFundRewards, ErrUnauthorized)
	}
	if !validAmount(amount) {
		return nil, opError(OpFundRewards, ErrInvalidAmount)
	}

	nextPool := *pool
	nextPool.RewardPool = pool.RewardPool.Add(amount)

	if err := e.transfer(ctx, caller, pool.CustodyAccount(), amount); err != nil {
		return nil, opError(OpFundRewards, err)
	}

	*pool = nextPool
	return &Result{Pool: pool, Amount: amount, Rewards: decimal.Zero}, nil
}

// UpdateParams replaces the pool settings. Counters are untouched.
func (e *Engine) UpdateParams(pool *models.StakingPool, caller string, params Params) (*Result, error) {
	if pool == nil {
		return nil, opError(OpUpdateParams, ErrPoolNotFound)
	}
	if !isOwner(pool, caller) {
		return nil, opError(OpUpdateParams, ErrUnauthorized)
	}
	if err := params.Validate(); err != nil {
		return nil, opError(OpUpdateParams, err)
	}

	pool.APY = params.APY
	pool.LockDuration = params.LockDuration
	pool.StartTime = params.StartTime
	pool.EndTime = params.EndTime
	return &Result{Pool: pool, Amount: decimal.Zero, Rewards: decimal.Zero}, nil
}

func (e *Engine) transfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	if e.tokens == nil {
		return errors.New("no token ledger configured")
	}
	if err := e.tokens.Transfer(ctx, from, to, amount); err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
		}
		return fmt.Errorf("transfer: %w", err)
	}
	return nil
}

func checkPosition(pool *models.StakingPool, position *models.UserPosition, caller string) error {
	if caller == "" {
		return ErrInvalidParameters
	}
	if position.PoolID != pool.PoolID || !strings.EqualFold(position.Owner, caller) {
		return ErrInvalidParameters
	}
	return nil
}

func isOwner(pool *models.StakingPool, caller string) bool {
	return caller != "" && strings.EqualFold(pool.Owner, caller)
}

func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.IsInteger()
}
