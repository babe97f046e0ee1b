package common

import (
	"errors"
	"math"
)

var (
	ErrBudgetExhausted       = errors.New("budget exhausted")
	ErrBudgetCounterOverflow = errors.New("budget counter overflow")
)

// Budget is the per-cycle ceiling on deferred work. A zero MaxUnits means the
// cycle may not execute anything.
type Budget struct {
	MaxUnits uint64
}

// BudgetNow captures the units consumed so far in a cycle.
type BudgetNow struct {
	Used    uint64
	CycleID uint64
}

// CheckBudget verifies whether add more units fit within the cycle. The
// returned BudgetNow reflects the updated counter when the budget is not
// exceeded; on denial the previous counter is returned unchanged.
func CheckBudget(b Budget, cycle uint64, prev BudgetNow, add uint64) (BudgetNow, error) {
	next := prev
	if prev.CycleID != cycle {
		next = BudgetNow{CycleID: cycle}
	}
	if next.Used > math.MaxUint64-add {
		return prev, ErrBudgetCounterOverflow
	}
	next.Used += add
	if next.Used > b.MaxUnits {
		return prev, ErrBudgetExhausted
	}
	return next, nil
}

// Remaining returns the units still available in now's cycle.
func (b Budget) Remaining(now BudgetNow) uint64 {
	if now.Used >= b.MaxUnits {
		return 0
	}
	return b.MaxUnits - now.Used
}
