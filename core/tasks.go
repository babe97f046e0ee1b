package core

import (
	"gravitywell/core/events"
	"gravitywell/core/types"
	"gravitywell/native/fees"
	"gravitywell/native/scheduler"
	"gravitywell/native/treasury"
)

const (
	taskZap     = "treasury.zap"
	taskConvert = "fees.convert"
)

// zapTask retries buffered treasury value into the pool.
type zapTask struct{ e *Engine }

func (zapTask) Name() string     { return taskZap }
func (t zapTask) Pending() bool  { return t.e.allocator.Pending(t.e.pool) }
func (t zapTask) Execute() error {
	res, err := t.e.allocator.Zap(t.e.pool)
	if err != nil {
		return err
	}
	if res.Deposited() {
		t.e.queueZap(res)
	}
	return nil
}

// convertTask retries deferred fee conversions and buffered native burns.
type convertTask struct{ e *Engine }

func (convertTask) Name() string    { return taskConvert }
func (t convertTask) Pending() bool { return t.e.fees.PendingConversion() }
func (t convertTask) Execute() error {
	res, err := t.e.fees.Convert(t.e.pool, t.e.curve)
	if err != nil {
		return err
	}
	t.e.queueConversion(res)
	return nil
}

// tasks lists deferred work in a fixed order so the scheduler cursor rotates
// fairly between them.
func (e *Engine) tasks() []scheduler.Task {
	return []scheduler.Task{zapTask{e: e}, convertTask{e: e}}
}

func (e *Engine) runCycle() (types.CycleOutcome, error) {
	report, err := e.scheduler.Run(e.tasks())
	if err != nil {
		return types.CycleOutcome{}, err
	}
	return types.CycleOutcome{
		Cycle:           report.Cycle,
		Pending:         report.Pending,
		Executed:        report.Executed,
		Deferred:        report.Deferred,
		BudgetUsed:      report.BudgetUsed,
		BudgetRemaining: report.BudgetRemaining,
	}, nil
}

// pending lists tasks with outstanding work without mutating anything.
func (e *Engine) pending() []string {
	return scheduler.Scan(e.tasks())
}

func (e *Engine) queueZap(res *treasury.ZapResult) {
	e.queue(events.ZapDeposited{
		LPMinted:     res.LPMinted,
		NativeAdded:  res.NativeAdded,
		ForeignAdded: res.ForeignAdded,
	})
}

// queueConversion records conversions and deferrals. Results below the
// minimum carry no information and are dropped.
func (e *Engine) queueConversion(res *fees.ConversionResult) {
	if res == nil {
		return
	}
	switch res.Status {
	case fees.ConversionConverted, fees.ConversionDeferred:
	default:
		return
	}
	e.queue(events.FeeConversion{
		Status:        string(res.Status),
		Reason:        res.Reason,
		ForeignIn:     res.ForeignIn,
		NativeBurned:  res.NativeBurned,
		RealizedPrice: res.RealizedPrice,
		SpotPrice:     res.SpotPrice,
		DeviationPPM:  res.DeviationPPM,
	})
}

// TaskNames lists the deferred tasks in scheduling order.
func TaskNames() []string { return []string{taskZap, taskConvert} }
