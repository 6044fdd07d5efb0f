package staking

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/irfndi/AetherDEX/apps/staking/internal/database"
	"github.com/irfndi/AetherDEX/apps/staking/internal/ledger"
	"github.com/irfndi/AetherDEX/apps/staking/internal/lock"
	"github.com/irfndi/AetherDEX/apps/staking/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

// flakyRepository fails the first n transactions with a version conflict
type flakyRepository struct {
	Repository
	mu       sync.Mutex
	failures int
	calls    int
}

func (r *flakyRepository) WithTx(ctx context.Context, fn func(repo Repository, tokens ledger.Ledger) error) error {
	r.mu.Lock()
	r.calls++
	fail := r.failures > 0
	if fail {
		r.failures--
	}
	r.mu.Unlock()

	if fail {
		return fmt.Errorf("%w: injected", ErrConflict)
	}
	return r.Repository.WithTx(ctx, fn)
}

// recordingNotifier keeps every notification
type recordingNotifier struct {
	mu     sync.Mutex
	events []*models.StakeEvent
}

func (n *recordingNotifier) Notify(event *models.StakeEvent, pool *models.StakingPool, position *models.UserPosition) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) types() []models.StakeEventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.StakeEventType
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

func checksum(s string) string {
	addr, ok := NormalizeAddress(s)
	if !ok {
		panic("bad test address " + s)
	}
	return addr
}

// ServiceTestSuite runs the service end to end against SQLite
type ServiceTestSuite struct {
	suite.Suite
	db       *gorm.DB
	repo     Repository
	tokens   ledger.Ledger
	notifier *recordingNotifier
	service  Service
	ctx      context.Context

	mu  sync.Mutex
	now int64

	owner string
	user  string
	other string
}

func (suite *ServiceTestSuite) SetupTest() {
	db, err := database.OpenSQLite(filepath.Join(suite.T().TempDir(), "service.db"))
	suite.Require().NoError(err)
	suite.db = db
	suite.repo = NewRepository(db)
	suite.tokens = ledger.NewLedger(db)
	suite.notifier = &recordingNotifier{}
	suite.ctx = context.Background()
	suite.now = baseTime

	suite.owner = checksum(testOwner)
	suite.user = checksum(testUser)
	suite.other = checksum(otherUser)

	suite.service = suite.newService(suite.repo)
}

func (suite *ServiceTestSuite) TearDownTest() {
	database.Close(suite.db)
}

func (suite *ServiceTestSuite) newService(repo Repository) Service {
	return NewService(repo, Options{
		Locker:   lock.NewLocalLocker(),
		Notifier: suite.notifier,
		Clock:    suite.clock,
		Backoff:  time.Millisecond,
	})
}

func (suite *ServiceTestSuite) clock() time.Time {
	suite.mu.Lock()
	defer suite.mu.Unlock()
	return time.Unix(suite.now, 0)
}

func (suite *ServiceTestSuite) setNow(ts int64) {
	suite.mu.Lock()
	defer suite.mu.Unlock()
	suite.now = ts
}

func (suite *ServiceTestSuite) mint(account string, amount int64) {
	suite.Require().NoError(suite.tokens.Mint(suite.ctx, account, decimal.NewFromInt(amount)))
}

func (suite *ServiceTestSuite) balance(account string) string {
	bal, err := suite.tokens.BalanceOf(suite.ctx, account)
	suite.Require().NoError(err)
	return bal.String()
}

func (suite *ServiceTestSuite) longPool(poolID string) *models.StakingPool {
	pool, err := suite.service.Initialize(suite.ctx, poolID, suite.owner, Params{
		APY:          10,
		LockDuration: thirtyDays,
		StartTime:    baseTime,
		EndTime:      baseTime + 365*24*60*60,
	})
	suite.Require().NoError(err)
	return pool
}

func (suite *ServiceTestSuite) TestScenario() {
	pool, err := suite.service.Initialize(suite.ctx, "pool-1", suite.owner, scenarioParams())
	suite.Require().NoError(err)
	suite.True(pool.TotalStaked.IsZero())
	suite.True(pool.RewardPool.IsZero())
	suite.Equal(uint64(10), pool.APY)
	suite.Equal(thirtyDays, pool.LockDuration)

	suite.mint(suite.user, 1000)
	suite.setNow(baseTime + 150)

	res, err := suite.service.Stake(suite.ctx, "pool-1", suite.user, amt(1000))
	suite.Require().NoError(err)
	suite.Equal("1000", res.Pool.TotalStaked.String())
	suite.Equal("1000", res.Position.StakedAmount.String())
	suite.Equal(baseTime+150, res.Position.StakeTimestamp)
	suite.True(res.Position.IsActive)

	_, err = suite.service.ClaimRewards(suite.ctx, "pool-1", suite.user)
	suite.ErrorIs(err, ErrNoRewards)
	suite.Equal(OpClaimRewards, OpOf(err))

	_, err = suite.service.Unstake(suite.ctx, "pool-1", suite.user)
	suite.ErrorIs(err, ErrLockActive)
	suite.Equal(OpUnstake, OpOf(err))

	stored, err := suite.service.GetPool(suite.ctx, "pool-1")
	suite.Require().NoError(err)
	suite.Equal("1000", stored.TotalStaked.String())
	suite.Equal("0", suite.balance(suite.user))
	suite.Equal("1000", suite.balance(models.CustodyAccount("pool-1")))

	suite.Equal([]models.StakeEventType{models.StakeEventInitialize, models.StakeEventStake}, suite.notifier.types())
}

func (suite *ServiceTestSuite) TestInitializeErrors() {
	suite.longPool("pool-1")

	_, err := suite.service.Initialize(suite.ctx, "pool-1", suite.other, scenarioParams())
	suite.ErrorIs(err, ErrAlreadyInitialized)

	bad := scenarioParams()
	bad.EndTime = bad.StartTime
	_, err = suite.service.Initialize(suite.ctx, "pool-2", suite.owner, bad)
	suite.ErrorIs(err, ErrInvalidParameters)

	_, err = suite.service.Initialize(suite.ctx, "pool-3", "not-an-address", scenarioParams())
	suite.ErrorIs(err, ErrInvalidParameters)
	suite.Equal(OpInitialize, OpOf(err))

	_, err = suite.service.GetPool(suite.ctx, "pool-2")
	suite.ErrorIs(err, ErrPoolNotFound)
}

func (suite *ServiceTestSuite) TestStakeErrorsLeaveNoTrace() {
	suite.Require().NotNil(suite.longPool("pool-1"))
	suite.mint(suite.user, 50)

	_, err := suite.service.Stake(suite.ctx, "missing", suite.user, amt(10))
	suite.ErrorIs(err, ErrPoolNotFound)

	_, err = suite.service.Stake(suite.ctx, "pool-1", suite.user, amt(51))
	suite.ErrorIs(err, ErrInsufficientFunds)

	_, err = suite.service.Stake(suite.ctx, "pool-1", suite.user, amt(0))
	suite.ErrorIs(err, ErrInvalidAmount)

	suite.setNow(baseTime - 1)
	_, err = suite.service.Stake(suite.ctx, "pool-1", suite.user, amt(10))
	suite.ErrorIs(err, ErrPoolClosed)

	pool, err := suite.service.GetPool(suite.ctx, "pool-1")
	suite.Require().NoError(err)
	suite.True(pool.TotalStaked.IsZero())
	suite.Equal(int64(1), pool.Version)
	suite.Equal("50", suite.balance(suite.user))

	_, err = suite.service.GetPosition(suite.ctx, "pool-1", suite.user)
	suite.ErrorIs(err, ErrPositionNotFound)

	events, err := suite.service.ListEvents(suite.ctx, "pool-1", "", 0, 0)
	suite.Require().NoError(err)
	suite.Len(events, 1)
}

func (suite *ServiceTestSuite) TestLifecycleWithRewards() {
	suite.longPool("pool-1")
	suite.mint(suite.owner, 1_000_000)
	suite.mint(suite.user, 1_000_000)

	_, err := suite.service.FundRewards(suite.ctx, "pool-1", suite.user, amt(1))
	suite.ErrorIs(err, ErrUnauthorized)

	res, err := suite.service.FundRewards(suite.ctx, "pool-1", suite.owner, amt(1_000_000))
	suite.Require().NoError(err)
	suite.Equal("1000000", res.Pool.RewardPool.String())

	_, err = suite.service.Stake(suite.ctx, "pool-1", suite.user, amt(1_000_000))
	suite.Require().NoError(err)

	suite.setNow(baseTime + thirtyDays/2)
	view, err := suite.service.GetPosition(suite.ctx, "pool-1", suite.user)
	suite.Require().NoError(err)
	suite.Equal("4109", view.ClaimableRewards.String())
	suite.Equal(baseTime+thirtyDays, view.UnlockAt)

	suite.setNow(baseTime + thirtyDays)
	res, err = suite.service.Unstake(suite.ctx, "pool-1", suite.user)
	suite.Require().NoError(err)
	suite.Equal("1000000", res.Amount.String())
	suite.Equal("8219", res.Rewards.String())
	suite.True(res.Pool.TotalStaked.IsZero())
	suite.Equal("991781", res.Pool.RewardPool.String())
	suite.False(res.Position.IsActive)

	suite.Equal("1008219", suite.balance(suite.user))
	suite.Equal("991781", suite.balance(models.CustodyAccount("pool-1")))

	_, err = suite.service.Unstake(suite.ctx, "pool-1", suite.user)
	suite.ErrorIs(err, ErrNoStake)

	mine, err := suite.service.ListEvents(suite.ctx, "pool-1", suite.user, 10, 0)
	suite.Require().NoError(err)
	suite.Require().Len(mine, 2)
	suite.Equal(models.StakeEventUnstake, mine[0].Type)
	suite.Equal("8219", mine[0].Rewards.String())
}

func (suite *ServiceTestSuite) TestClaimKeepsLock() {
	suite.longPool("pool-1")
	suite.mint(suite.owner, 10_000)
	suite.mint(suite.user, 1_000_000)
	_, err := suite.service.FundRewards(suite.ctx, "pool-1", suite.owner, amt(10_000))
	suite.Require().NoError(err)
	_, err = suite.service.Stake(suite.ctx, "pool-1", suite.user, amt(1_000_000))
	suite.Require().NoError(err)

	suite.setNow(baseTime + 10*24*60*60)
	res, err := suite.service.ClaimRewards(suite.ctx, "pool-1", suite.user)
	suite.Require().NoError(err)
	suite.True(res.Rewards.IsPositive())
	suite.Equal(baseTime, res.Position.StakeTimestamp)

	_, err = suite.service.Unstake(suite.ctx, "pool-1", suite.user)
	suite.ErrorIs(err, ErrLockActive)
}

func (suite *ServiceTestSuite) TestInsufficientRewardPoolRejects() {
	suite.longPool("pool-1")
	suite.mint(suite.user, 1_000_000)
	_, err := suite.service.Stake(suite.ctx, "pool-1", suite.user, amt(1_000_000))
	suite.Require().NoError(err)

	suite.setNow(baseTime + thirtyDays)
	_, err = suite.service.ClaimRewards(suite.ctx, "pool-1", suite.user)
	suite.ErrorIs(err, ErrInsufficientRewardPool)
	_, err = suite.service.Unstake(suite.ctx, "pool-1", suite.user)
	suite.ErrorIs(err, ErrInsufficientRewardPool)

	view, err := suite.service.GetPosition(suite.ctx, "pool-1", suite.user)
	suite.Require().NoError(err)
	suite.Equal("1000000", view.StakedAmount.String())
}

func (suite *ServiceTestSuite) TestUpdateParams() {
	suite.longPool("pool-1")

	next := Params{APY: 25, LockDuration: 60, StartTime: baseTime, EndTime: baseTime + 1000}
	_, err := suite.service.UpdateParams(suite.ctx, "pool-1", suite.other, next)
	suite.ErrorIs(err, ErrUnauthorized)

	pool, err := suite.service.UpdateParams(suite.ctx, "pool-1", suite.owner, next)
	suite.Require().NoError(err)
	suite.Equal(uint64(25), pool.APY)
	suite.Equal(int64(2), pool.Version)

	stored, err := suite.service.GetPool(suite.ctx, "pool-1")
	suite.Require().NoError(err)
	suite.Equal(int64(60), stored.LockDuration)
	suite.Equal(baseTime+1000, stored.EndTime)
}

func (suite *ServiceTestSuite) TestConcurrentStakesKeepTotalsConsistent() {
	suite.longPool("pool-1")

	const stakers = 8
	users := make([]string, stakers)
	for i := range users {
		users[i] = checksum(fmt.Sprintf("0x%040x", 0x1000+i))
		suite.mint(users[i], 500)
	}

	var wg sync.WaitGroup
	errs := make(chan error, stakers*2)
	for _, u := range users {
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				_, err := suite.service.Stake(suite.ctx, "pool-1", u, amt(100))
				errs <- err
			}(u)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		suite.NoError(err)
	}

	pool, err := suite.service.GetPool(suite.ctx, "pool-1")
	suite.Require().NoError(err)
	sum, err := suite.repo.SumStaked(suite.ctx, "pool-1")
	suite.Require().NoError(err)
	suite.Equal("1600", pool.TotalStaked.String())
	suite.True(pool.TotalStaked.Equal(sum))
	suite.Equal("1600", suite.balance(models.CustodyAccount("pool-1")))

	positions, err := suite.service.ListPositions(suite.ctx, "pool-1", true, 0, 0)
	suite.Require().NoError(err)
	suite.Len(positions, stakers)
}

func (suite *ServiceTestSuite) TestRetriesOnConflict() {
	flaky := &flakyRepository{Repository: suite.repo, failures: 2}
	service := suite.newService(flaky)

	_, err := service.Initialize(suite.ctx, "pool-1", suite.owner, scenarioParams())
	suite.Require().NoError(err)
	suite.Equal(3, flaky.calls)

	flaky.failures = 10
	_, err = service.UpdateParams(suite.ctx, "pool-1", suite.owner, scenarioParams())
	suite.ErrorIs(err, ErrConflict)
	suite.Equal(OpUpdateParams, OpOf(err))
	suite.Equal("CONFLICT", Code(err))
}

func (suite *ServiceTestSuite) TestListValidation() {
	_, err := suite.service.ListPositions(suite.ctx, "missing", false, 10, 0)
	suite.ErrorIs(err, ErrPoolNotFound)

	_, err = suite.service.ListEvents(suite.ctx, "missing", "", 10, 0)
	suite.ErrorIs(err, ErrPoolNotFound)

	suite.longPool("pool-1")
	_, err = suite.service.ListEvents(suite.ctx, "pool-1", "bogus", 10, 0)
	suite.ErrorIs(err, ErrInvalidParameters)

	_, err = suite.service.GetPosition(suite.ctx, "pool-1", "bogus")
	suite.ErrorIs(err, ErrInvalidParameters)

	suite.longPool("pool-2")
	pools, err := suite.service.ListPools(suite.ctx, -1, -5)
	suite.Require().NoError(err)
	suite.Len(pools, 2)
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}
