package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/irfndi/AetherDEX/apps/staking/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrInvalidAmount       = errors.New("ledger: amount must be a positive integer")
	ErrSameAccount         = errors.New("ledger: source and destination are the same account")
)

// Ledger moves token balances between accounts. Implementations bound to a
// transaction commit or roll back together with it.
type Ledger interface {
	Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error
	BalanceOf(ctx context.Context, account string) (decimal.Decimal, error)
	Mint(ctx context.Context, account string, amount decimal.Decimal) error
}

// ledger implements Ledger on top of the token_balances table
type ledger struct {
	db *gorm.DB
}

// NewLedger creates a new ledger backed by db. Pass a transaction handle to
// make transfers part of a larger unit of work.
func NewLedger(db *gorm.DB) Ledger {
	return &ledger{db: db}
}

// Transfer debits from and credits to. Nothing is written when from lacks funds.
func (l *ledger) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	if from == "" || to == "" {
		return errors.New("account cannot be empty")
	}
	if from == to {
		return ErrSameAccount
	}
	if !validAmount(amount) {
		return ErrInvalidAmount
	}

	db := l.db.WithContext(ctx)
	src, err := l.load(db, from)
	if err != nil {
		return err
	}
	if src == nil || src.Balance.LessThan(amount) {
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, from)
	}

	dst, err := l.load(db, to)
	if err != nil {
		return err
	}
	if dst == nil {
		dst = &models.TokenBalance{Account: to, Balance: decimal.Zero}
	}

	src.Balance = src.Balance.Sub(amount)
	dst.Balance = dst.Balance.Add(amount)

	if err := db.Save(src).Error; err != nil {
		return fmt.Errorf("debit %s: %w", from, err)
	}
	if err := db.Save(dst).Error; err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}
	return nil
}

// BalanceOf returns zero for unknown accounts
func (l *ledger) BalanceOf(ctx context.Context, account string) (decimal.Decimal, error) {
	if account == "" {
		return decimal.Zero, errors.New("account cannot be empty")
	}
	bal, err := l.load(l.db.WithContext(ctx), account)
	if err != nil {
		return decimal.Zero, err
	}
	if bal == nil {
		return decimal.Zero, nil
	}
	return bal.Balance, nil
}

// Mint credits new tokens to account.
func (l *ledger) Mint(ctx context.Context, account string, amount decimal.Decimal) error {
	if account == "" {
		return errors.New("account cannot be empty")
	}
	if !validAmount(amount) {
		return ErrInvalidAmount
	}

	db := l.db.WithContext(ctx)
	bal, err := l.load(db, account)
	if err != nil {
		return err
	}
	if bal == nil {
		bal = &models.TokenBalance{Account: account, Balance: decimal.Zero}
	}
	bal.Balance = bal.Balance.Add(amount)
	return db.Save(bal).Error
}

func (l *ledger) load(db *gorm.DB, account string) (*models.TokenBalance, error) {
	var bal models.TokenBalance
	err := lockForUpdate(db).Where("account = ?", account).First(&bal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bal, nil
}

// lockForUpdate adds FOR UPDATE on dialects that support row locks.
func lockForUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector != nil && db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.IsInteger()
}
