package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/irfndi/AetherDEX/apps/staking/internal/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

const (
	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
)

// LedgerTestSuite exercises the gorm-backed ledger against SQLite
type LedgerTestSuite struct {
	suite.Suite
	db     *gorm.DB
	ledger Ledger
	ctx    context.Context
}

func (suite *LedgerTestSuite) SetupTest() {
	db, err := database.OpenSQLite(filepath.Join(suite.T().TempDir(), "ledger.db"))
	suite.Require().NoError(err)
	suite.db = db
	suite.ledger = NewLedger(db)
	suite.ctx = context.Background()
}

func (suite *LedgerTestSuite) TearDownTest() {
	database.Close(suite.db)
}

func (suite *LedgerTestSuite) TestMintAndBalance() {
	bal, err := suite.ledger.BalanceOf(suite.ctx, alice)
	suite.NoError(err)
	suite.True(bal.IsZero())

	suite.NoError(suite.ledger.Mint(suite.ctx, alice, decimal.NewFromInt(500)))
	suite.NoError(suite.ledger.Mint(suite.ctx, alice, decimal.NewFromInt(250)))

	bal, err = suite.ledger.BalanceOf(suite.ctx, alice)
	suite.NoError(err)
	suite.Equal("750", bal.String())
}

func (suite *LedgerTestSuite) TestMintInvalidAmount() {
	suite.ErrorIs(suite.ledger.Mint(suite.ctx, alice, decimal.Zero), ErrInvalidAmount)
	suite.ErrorIs(suite.ledger.Mint(suite.ctx, alice, decimal.RequireFromString("1.5")), ErrInvalidAmount)
	suite.Error(suite.ledger.Mint(suite.ctx, "", decimal.NewFromInt(1)))
}

func (suite *LedgerTestSuite) TestTransfer() {
	suite.Require().NoError(suite.ledger.Mint(suite.ctx, alice, decimal.NewFromInt(1000)))

	suite.NoError(suite.ledger.Transfer(suite.ctx, alice, bob, decimal.NewFromInt(400)))

	a, _ := suite.ledger.BalanceOf(suite.ctx, alice)
	b, _ := suite.ledger.BalanceOf(suite.ctx, bob)
	suite.Equal("600", a.String())
	suite.Equal("400", b.String())
}

func (suite *LedgerTestSuite) TestTransferInsufficientBalance() {
	suite.Require().NoError(suite.ledger.Mint(suite.ctx, alice, decimal.NewFromInt(10)))

	err := suite.ledger.Transfer(suite.ctx, alice, bob, decimal.NewFromInt(11))
	suite.ErrorIs(err, ErrInsufficientBalance)

	err = suite.ledger.Transfer(suite.ctx, bob, alice, decimal.NewFromInt(1))
	suite.ErrorIs(err, ErrInsufficientBalance)

	a, _ := suite.ledger.BalanceOf(suite.ctx, alice)
	b, _ := suite.ledger.BalanceOf(suite.ctx, bob)
	suite.Equal("10", a.String())
	suite.True(b.IsZero())
}

func (suite *LedgerTestSuite) TestTransferValidation() {
	suite.ErrorIs(suite.ledger.Transfer(suite.ctx, alice, alice, decimal.NewFromInt(1)), ErrSameAccount)
	suite.ErrorIs(suite.ledger.Transfer(suite.ctx, alice, bob, decimal.NewFromInt(-1)), ErrInvalidAmount)
	suite.Error(suite.ledger.Transfer(suite.ctx, "", bob, decimal.NewFromInt(1)))
}

func (suite *LedgerTestSuite) TestTransferRollsBackWithTransaction() {
	suite.Require().NoError(suite.ledger.Mint(suite.ctx, alice, decimal.NewFromInt(100)))

	boom := errors.New("boom")
	err := suite.db.Transaction(func(tx *gorm.DB) error {
		if err := NewLedger(tx).Transfer(suite.ctx, alice, bob, decimal.NewFromInt(60)); err != nil {
			return err
		}
		return boom
	})
	suite.ErrorIs(err, boom)

	a, _ := suite.ledger.BalanceOf(suite.ctx, alice)
	b, _ := suite.ledger.BalanceOf(suite.ctx, bob)
	suite.Equal("100", a.String())
	suite.True(b.IsZero())
}

func TestLedgerTestSuite(t *testing.T) {
	suite.Run(t, new(LedgerTestSuite))
}
