package staking

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameters      = errors.New("staking: invalid parameters")
	ErrAlreadyInitialized     = errors.New("staking: pool already initialized")
	ErrPoolClosed             = errors.New("staking: pool is outside its staking window")
	ErrInvalidAmount          = errors.New("staking: amount must be a positive integer")
	ErrInsufficientFunds      = errors.New("staking: insufficient funds")
	ErrLockActive             = errors.New("staking: lock period has not elapsed")
	ErrNoStake                = errors.New("staking: nothing is staked")
	ErrNoRewards              = errors.New("staking: no rewards to claim")
	ErrInsufficientRewardPool = errors.New("staking: insufficient reward pool")
	ErrUnauthorized           = errors.New("staking: caller is not the pool owner")
	ErrPoolNotFound           = errors.New("staking: pool not found")
	ErrPositionNotFound       = errors.New("staking: position not found")
	ErrConflict               = errors.New("staking: concurrent update conflict")
)

// Operation names reported in OpError.
const (
	OpInitialize   = "initialize"
	OpStake        = "stake"
	OpUnstake      = "unstake"
	OpClaimRewards = "claimRewards"
	OpFundRewards  = "fundRewards"
	OpUpdateParams = "updateParams"
)

// OpError records the operation that failed and why.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func opError(op string, err error) error {
	return &OpError{Op: op, Err: err}
}

// OpOf returns the operation name carried by err, if any.
func OpOf(err error) string {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Op
	}
	return ""
}

// Code returns the stable API code for a staking error kind.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidParameters):
		return "INVALID_PARAMETERS"
	case errors.Is(err, ErrAlreadyInitialized):
		return "ALREADY_INITIALIZED"
	case errors.Is(err, ErrPoolClosed):
		return "POOL_CLOSED"
	case errors.Is(err, ErrInvalidAmount):
		return "INVALID_AMOUNT"
	case errors.Is(err, ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ErrLockActive):
		return "LOCK_ACTIVE"
	case errors.Is(err, ErrNoStake):
		return "NO_STAKE"
	case errors.Is(err, ErrNoRewards):
		return "NO_REWARDS"
	case errors.Is(err, ErrInsufficientRewardPool):
		return "INSUFFICIENT_REWARD_POOL"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrPoolNotFound):
		return "POOL_NOT_FOUND"
	case errors.Is(err, ErrPositionNotFound):
		return "POSITION_NOT_FOUND"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	default:
		return "INTERNAL_ERROR"
	}
}
