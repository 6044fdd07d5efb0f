package staking

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Params are the owner-controlled pool settings.
type Params struct {
	APY          uint64 `json:"apy"`
	LockDuration int64  `json:"lock_duration"`
	StartTime    int64  `json:"start_time"`
	EndTime      int64  `json:"end_time"`
}

// Validate rejects an empty staking window or a non-positive lock.
func (p Params) Validate() error {
	if p.EndTime <= p.StartTime {
		return ErrInvalidParameters
	}
	if p.LockDuration <= 0 {
		return ErrInvalidParameters
	}
	return nil
}

// NormalizeAddress returns the checksummed form of a hex address, or false if
// s is not one.
func NormalizeAddress(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", false
	}
	return common.HexToAddress(s).Hex(), true
}
