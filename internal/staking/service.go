package staking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/irfndi/AetherDEX/apps/staking/internal/database"
	"github.com/irfndi/AetherDEX/apps/staking/internal/ledger"
	"github.com/irfndi/AetherDEX/apps/staking/internal/lock"
	"github.com/irfndi/AetherDEX/apps/staking/internal/metrics"
	"github.com/irfndi/AetherDEX/apps/staking/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultLimit      = 10
	maxLimit          = 100
	defaultMaxRetries = 3
	defaultBackoff    = 10 * time.Millisecond
)

// Clock returns the current time.
type Clock func() time.Time

// Notifier is told about every committed operation. position is nil for
// operations that only touch the pool.
type Notifier interface {
	Notify(event *models.StakeEvent, pool *models.StakingPool, position *models.UserPosition)
}

// PositionView is a stored position plus values derived at read time.
type PositionView struct {
	*models.UserPosition
	ClaimableRewards decimal.Decimal `json:"claimable_rewards"`
	UnlockAt         int64           `json:"unlock_at"`
}

// Service defines staking operations
type Service interface {
	Initialize(ctx context.Context, poolID, caller string, params Params) (*models.StakingPool, error)
	Stake(ctx context.Context, poolID, caller string, amount decimal.Decimal) (*Result, error)
	Unstake(ctx context.Context, poolID, caller string) (*Result, error)
	ClaimRewards(ctx context.Context, poolID, caller string) (*Result, error)
	FundRewards(ctx context.Context, poolID, caller string, amount decimal.Decimal) (*Result, error)
	UpdateParams(ctx context.Context, poolID, caller string, params Params) (*models.StakingPool, error)

	GetPool(ctx context.Context, poolID string) (*models.StakingPool, error)
	ListPools(ctx context.Context, limit, offset int) ([]*models.StakingPool, error)
	GetPosition(ctx context.Context, poolID, owner string) (*PositionView, error)
	ListPositions(ctx context.Context, poolID string, activeOnly bool, limit, offset int) ([]*models.UserPosition, error)
	ListEvents(ctx context.Context, poolID, actor string, limit, offset int) ([]*models.StakeEvent, error)
}

// Options configures a Service. Zero values select defaults.
type Options struct {
	Locker     lock.Locker
	Notifier   Notifier
	Clock      Clock
	MaxRetries int
	Backoff    time.Duration
}

type service struct {
	repo       Repository
	locker     lock.Locker
	notifier   Notifier
	clock      Clock
	maxRetries int
	backoff    time.Duration
}

// NewService creates a new staking service
func NewService(repo Repository, opts Options) Service {
	s := &service{
		repo:       repo,
		locker:     opts.Locker,
		notifier:   opts.Notifier,
		clock:      opts.Clock,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
	}
	if s.locker == nil {
		s.locker = lock.NewLocalLocker()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.maxRetries <= 0 {
		s.maxRetries = defaultMaxRetries
	}
	if s.backoff <= 0 {
		s.backoff = defaultBackoff
	}
	return s
}

// txFunc runs one attempt of an operation inside a transaction.
type txFunc func(ctx context.Context, repo Repository, engine *Engine, now int64) (*Result, models.StakeEventType, error)

func (s *service) Initialize(ctx context.Context, poolID, caller string, params Params) (*models.StakingPool, error) {
	caller, err := callerAddress(OpInitialize, caller)
	if err != nil {
		return nil, err
	}

	res, err := s.execute(ctx, OpInitialize, poolID, caller, func(ctx context.Context, repo Repository, engine *Engine, now int64) (*Result, models.StakeEventType, error) {
		existing, err := repo.GetPool(ctx, poolID)
		if err != nil {
			return nil, "", err
		}
		pool, err := engine.Initialize(existing, poolID, caller, params)
		if err != nil {
			return nil, "", err
		}
		if err := repo.CreatePool(ctx, pool); err != nil {
			return nil, "", fmt.Errorf("create pool: %w", err)
		}
		return &Result{Pool: pool, Amount: decimal.Zero, Rewards: decimal.Zero}, models.StakeEventInitialize, nil
	})
	if err != nil {
		return nil, err
	}
	return res.Pool, nil
}

func (s *service) Stake(ctx context.Context, poolID, caller string, amount decimal.Decimal) (*Result, error) {
	caller, err := callerAddress(OpStake, caller)
	if err != nil {
		return nil, err
	}

	return s.execute(ctx, OpStake, poolID, caller, func(ctx context.Context, repo Repository, engine *Engine, now int64) (*Result, models.StakeEventType, error) {
		pool, position, err := loadState(ctx, repo, poolID, caller)
		if err != nil {
			return nil, "", err
		}
		res, err := engine.Stake(ctx, pool, position, caller, amount, now)
		if err != nil {
			return nil, "", err
		}
		return res, models.StakeEventStake, persist(ctx, repo, res)
	})
}

func (s *service) Unstake(ctx context.Context, poolID, caller string) (*Result, error) {
	caller, err := callerAddress(OpUnstake, caller)
	if err != nil {
		return nil, err
	}

	return s.execute(ctx, OpUnstake, poolID, caller, func(ctx context.Context, repo Repository, engine *Engine, now int64) (*Result, models.StakeEventType, error) {
		pool, position, err := loadState(ctx, repo, poolID, caller)
		if err != nil {
			return nil, "", err
		}
		res, err := engine.Unstake(ctx, pool, position, caller, now)
		if err != nil {
			return nil, "", err
		}
		return res, models.StakeEventUnstake, persist(ctx, repo, res)
	})
}

func (s *service) ClaimRewards(ctx context.Context, poolID, caller string) (*Result, error) {
	caller, err := callerAddress(OpClaimRewards, caller)
	if err != nil {
		return nil, err
	}

	return s.execute(ctx, OpClaimRewards, poolID, caller, func(ctx context.Context, repo Repository, engine *Engine, now int64) (*Result, models.StakeEventType, error) {
		pool, position, err := loadState(ctx, repo, poolID, caller)
		if err != nil {
			return nil, "", err
		}
		res, err := engine.ClaimRewards(ctx, pool, position, caller, now)
		if err != nil {
			return nil, "", err
		}
		return res, models.StakeEventClaimRewards, persist(ctx, repo, res)
	})
}

func (s *service) FundRewards(ctx context.Context, poolID, caller string, amount decimal.Decimal) (*Result, error) {
	caller, err := callerAddress(OpFundRewards, caller)
	if err != nil {
		return nil, err
	}

	return s.execute(ctx, OpFundRewards, poolID, caller, func(ctx context.Context, repo Repository, engine *Engine, now int64) (*Result, models.StakeEventType, error) {
		pool, err := repo.GetPool(ctx, poolID)
		if err != nil {
			return nil, "", err
		}
		res, err := engine.FundRewards(ctx, pool, caller, amount)
		if err != nil {
			return nil, "", err
		}
		return res, models.StakeEventFundRewards, persist(ctx, repo, res)
	})
}

func (s *service) UpdateParams(ctx context.Context, poolID, caller string, params Params) (*models.StakingPool, error) {
	caller, err := callerAddress(OpUpdateParams, caller)
	if err != nil {
		return nil, err
	}

	res, err := s.execute(ctx, OpUpdateParams, poolID, caller, func(ctx context.Context, repo Repository, engine *Engine, now int64) (*Result, models.StakeEventType, error) {
		pool, err := repo.GetPool(ctx, poolID)
		if err != nil {
			return nil, "", err
		}
		res, err := engine.UpdateParams(pool, caller, params)
		if err != nil {
			return nil, "", err
		}
		return res, models.StakeEventUpdateParams, persist(ctx, repo, res)
	})
	if err != nil {
		return nil, err
	}
	return res.Pool, nil
}

func (s *service) GetPool(ctx context.Context, poolID string) (*models.StakingPool, error) {
	pool, err := s.repo.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrPoolNotFound
	}
	return pool, nil
}

func (s *service) ListPools(ctx context.Context, limit, offset int) ([]*models.StakingPool, error) {
	limit, offset = page(limit, offset)
	return s.repo.ListPools(ctx, limit, offset)
}

func (s *service) GetPosition(ctx context.Context, poolID, owner string) (*PositionView, error) {
	owner, ok := NormalizeAddress(owner)
	if !ok {
		return nil, ErrInvalidParameters
	}
	pool, err := s.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	position, err := s.repo.GetPosition(ctx, poolID, owner)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, ErrPositionNotFound
	}

	now := s.clock().Unix()
	return &PositionView{
		UserPosition: position,
		ClaimableRewards: position.AccruedRewards.Add(
			PendingRewards(position.StakedAmount, pool.APY, position.LastAccrualAt, now)),
		UnlockAt: position.StakeTimestamp + pool.LockDuration,
	}, nil
}

func (s *service) ListPositions(ctx context.Context, poolID string, activeOnly bool, limit, offset int) ([]*models.UserPosition, error) {
	if _, err := s.GetPool(ctx, poolID); err != nil {
		return nil, err
	}
	limit, offset = page(limit, offset)
	return s.repo.ListPositions(ctx, poolID, activeOnly, limit, offset)
}

func (s *service) ListEvents(ctx context.Context, poolID, actor string, limit, offset int) ([]*models.StakeEvent, error) {
	if actor != "" {
		normalized, ok := NormalizeAddress(actor)
		if !ok {
			return nil, ErrInvalidParameters
		}
		actor = normalized
	}
	if _, err := s.GetPool(ctx, poolID); err != nil {
		return nil, err
	}
	limit, offset = page(limit, offset)
	return s.repo.ListEvents(ctx, poolID, actor, limit, offset)
}

// execute serializes op on the pool lock and runs fn in a transaction,
// retrying on version conflicts and serialization failures. The event row is
// written in the same transaction; listeners are notified after commit.
func (s *service) execute(ctx context.Context, op, poolID, caller string, fn txFunc) (*Result, error) {
	started := time.Now()
	logger := logrus.WithFields(logrus.Fields{
		"op":      op,
		"pool_id": poolID,
		"caller":  caller,
	})

	res, event, err := s.run(ctx, op, poolID, caller, fn)
	if err != nil {
		if OpOf(err) == "" {
			err = opError(op, err)
		}
		metrics.ObserveOperation(op, Code(err), started)
		if Code(err) == "INTERNAL_ERROR" {
			logger.WithError(err).Error("Staking operation failed")
		} else {
			logger.WithError(err).Info("Staking operation rejected")
		}
		return nil, err
	}

	metrics.ObserveOperation(op, "OK", started)
	logger.WithFields(logrus.Fields{
		"amount":  res.Amount.String(),
		"rewards": res.Rewards.String(),
	}).Info("Staking operation committed")

	if s.notifier != nil {
		s.notifier.Notify(event, res.Pool, res.Position)
	}
	return res, nil
}

func (s *service) run(ctx context.Context, op, poolID, caller string, fn txFunc) (*Result, *models.StakeEvent, error) {
	if poolID == "" {
		return nil, nil, ErrInvalidParameters
	}

	unlock, err := s.locker.Lock(ctx, "staking:pool:"+poolID)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire pool lock: %w", err)
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		var (
			res   *Result
			event *models.StakeEvent
		)
		err = s.repo.WithTx(ctx, func(repo Repository, tokens ledger.Ledger) error {
			now := s.clock().Unix()
			var (
				typ   models.StakeEventType
				txErr error
			)
			res, typ, txErr = fn(ctx, repo, NewEngine(tokens), now)
			if txErr != nil {
				return txErr
			}
			event = &models.StakeEvent{
				EventID:    uuid.NewString(),
				PoolID:     poolID,
				Actor:      caller,
				Type:       typ,
				Amount:     res.Amount,
				Rewards:    res.Rewards,
				OccurredAt: now,
			}
			return repo.RecordEvent(ctx, event)
		})
		if err == nil {
			return res, event, nil
		}
		if !retryable(err) || attempt >= s.maxRetries {
			return nil, nil, err
		}

		metrics.TxRetries.WithLabelValues(op).Inc()
		logrus.WithFields(logrus.Fields{
			"op":      op,
			"pool_id": poolID,
			"attempt": attempt,
		}).WithError(err).Warn("Retrying staking transaction")

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * s.backoff):
		}
	}
}

// loadState reads the pool and the caller's position, which may be nil
func loadState(ctx context.Context, repo Repository, poolID, owner string) (*models.StakingPool, *models.UserPosition, error) {
	pool, err := repo.GetPool(ctx, poolID)
	if err != nil || pool == nil {
		return nil, nil, err
	}
	position, err := repo.GetPosition(ctx, poolID, owner)
	if err != nil {
		return nil, nil, err
	}
	return pool, position, nil
}

// persist writes back what the engine changed
func persist(ctx context.Context, repo Repository, res *Result) error {
	if err := repo.UpdatePool(ctx, res.Pool); err != nil {
		return err
	}
	if res.Position != nil {
		if err := repo.SavePosition(ctx, res.Position); err != nil {
			return err
		}
	}
	return nil
}

func retryable(err error) bool {
	return errors.Is(err, ErrConflict) || database.IsSerializationFailure(err)
}

func callerAddress(op, caller string) (string, error) {
	addr, ok := NormalizeAddress(caller)
	if !ok {
		return "", opError(op, ErrInvalidParameters)
	}
	return addr, nil
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
