// Package scheduler services deferred work in budgeted cycles. A cycle first
// scans every task for pending work without mutating anything, then executes
// pending tasks in round-robin order from a rotating cursor until the cycle
// budget is spent. Work left over waits for the next cycle.
package scheduler

import (
	"errors"
	"fmt"

	nativecommon "gravitywell/native/common"
)

// DefaultBudget is the number of task executions allowed per cycle.
const DefaultBudget uint64 = 4

// Task is one kind of deferred work.
type Task interface {
	Name() string
	// Pending reports whether Execute would have work to do. It must not
	// mutate state.
	Pending() bool
	// Execute services the task once. Deferral is not an error.
	Execute() error
}

// Report summarises one cycle.
type Report struct {
	Cycle           uint64
	Pending         []string
	Executed        []string
	Deferred        []string
	BudgetUsed      uint64
	BudgetRemaining uint64
}

// State is the persisted form of the scheduler.
type State struct {
	Cursor int
	Cycle  uint64
}

// Scheduler is not safe for concurrent use.
type Scheduler struct {
	budget nativecommon.Budget
	cursor int
	cycle  uint64
}

// New returns a scheduler allowing budget executions per cycle. Zero selects
// DefaultBudget.
func New(budget uint64) *Scheduler {
	if budget == 0 {
		budget = DefaultBudget
	}
	return &Scheduler{budget: nativecommon.Budget{MaxUnits: budget}}
}

// State returns the mutable state.
func (s *Scheduler) State() State { return State{Cursor: s.cursor, Cycle: s.cycle} }

// Restore replaces the mutable state.
func (s *Scheduler) Restore(state State) {
	s.cursor = state.Cursor
	s.cycle = state.Cycle
}

// Clone returns an independent copy used for checkpoints.
func (s *Scheduler) Clone() *Scheduler {
	clone := *s
	return &clone
}

// Scan lists the names of tasks with pending work.
func Scan(tasks []Task) []string {
	var pending []string
	for _, t := range tasks {
		if t.Pending() {
			pending = append(pending, t.Name())
		}
	}
	return pending
}

// Run executes one cycle over tasks. Task order must be stable across cycles
// for the cursor to rotate fairly. An Execute error aborts the cycle.
func (s *Scheduler) Run(tasks []Task) (Report, error) {
	s.cycle++
	report := Report{Cycle: s.cycle, BudgetRemaining: s.budget.MaxUnits}
	n := len(tasks)
	if n == 0 {
		return report, nil
	}
	if s.cursor < 0 || s.cursor >= n {
		s.cursor = 0
	}

	pending := make([]bool, n)
	for i, t := range tasks {
		if t.Pending() {
			pending[i] = true
			report.Pending = append(report.Pending, t.Name())
		}
	}

	usage := nativecommon.BudgetNow{CycleID: s.cycle}
	start := s.cursor
	for k := 0; k < n; k++ {
		i := (start + k) % n
		if !pending[i] {
			continue
		}
		next, err := nativecommon.CheckBudget(s.budget, s.cycle, usage, 1)
		if err != nil {
			if errors.Is(err, nativecommon.ErrBudgetExhausted) {
				report.Deferred = append(report.Deferred, tasks[i].Name())
				continue
			}
			return report, err
		}
		usage = next
		if err := tasks[i].Execute(); err != nil {
			return report, fmt.Errorf("scheduler: %s: %w", tasks[i].Name(), err)
		}
		report.Executed = append(report.Executed, tasks[i].Name())
		s.cursor = (i + 1) % n
	}
	report.BudgetUsed = usage.Used
	report.BudgetRemaining = s.budget.Remaining(usage)
	return report, nil
}
