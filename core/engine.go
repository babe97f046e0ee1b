// Package core assembles the settlement components into one owning aggregate.
// Engine serialises every public call, applies it all-or-nothing and checks
// supply conservation before committing.
package core

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	coreerrors "gravitywell/core/errors"
	"gravitywell/core/events"
	"gravitywell/core/types"
	nativecommon "gravitywell/native/common"
	"gravitywell/native/curve"
	"gravitywell/native/fees"
	fp "gravitywell/native/fixedpoint"
	"gravitywell/native/pool"
	"gravitywell/native/router"
	"gravitywell/native/scheduler"
	"gravitywell/native/treasury"
)

var (
	errLedgerRequired = fmt.Errorf("core: ledger required: %w", coreerrors.ErrValidation)
	errInsufficient   = fmt.Errorf("core: insufficient balance: %w", coreerrors.ErrInsufficientAmount)
	errNativeCredit   = fmt.Errorf("core: native supply only changes through the curve: %w", coreerrors.ErrValidation)
	errZeroCredit     = fmt.Errorf("core: credit amount must be positive: %w", coreerrors.ErrInsufficientAmount)
)

// Ledger custodies account balances. The engine validates balances before it
// mutates anything and settles with the ledger last.
type Ledger interface {
	Balance(account string, asset types.Asset) *uint256.Int
	Debit(account string, asset types.Asset, amount *uint256.Int) error
	Credit(account string, asset types.Asset, amount *uint256.Int) error
}

// AccountLister is implemented by ledgers whose contents can be captured in a
// snapshot.
type AccountLister interface {
	Accounts() []types.Account
	Load(accounts []types.Account) error
}

// Config carries every construction parameter. Invalid parameters fail New.
type Config struct {
	Curve         curve.Params
	InitialSupply *uint256.Int
	PoolFeePPM    uint64
	Treasury      treasury.Config
	Fees          fees.Config
	Router        router.Config
	RetryBudget   uint64
}

// Engine owns the curve, pool, allocator, fee manager, router and scheduler.
// It is safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	cfg       Config
	curve     *curve.Curve
	pool      *pool.Pool
	allocator *treasury.Allocator
	fees      *fees.Manager
	router    *router.Router
	scheduler *scheduler.Scheduler

	// circulating is native held outside the engine; foreignIn and foreignOut
	// count foreign crossing the engine boundary.
	circulating *uint256.Int
	foreignIn   *uint256.Int
	foreignOut  *uint256.Int

	ledger    Ledger
	authority treasury.Authority
	pauses    nativecommon.PauseView
	emitter   events.Emitter
	queued    []events.Event
}

// New validates cfg and builds an engine settling against ledger.
func New(cfg Config, ledger Ledger) (*Engine, error) {
	if ledger == nil {
		return nil, errLedgerRequired
	}
	c, err := curve.New(cfg.Curve, cfg.InitialSupply)
	if err != nil {
		return nil, err
	}
	p, err := pool.New(cfg.PoolFeePPM)
	if err != nil {
		return nil, err
	}
	a, err := treasury.New(cfg.Treasury)
	if err != nil {
		return nil, err
	}
	m, err := fees.NewManager(cfg.Fees)
	if err != nil {
		return nil, err
	}
	r, err := router.New(cfg.Router)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:         cfg,
		curve:       c,
		pool:        p,
		allocator:   a,
		fees:        m,
		router:      r,
		scheduler:   scheduler.New(cfg.RetryBudget),
		circulating: fp.Clone(cfg.InitialSupply),
		foreignIn:   fp.Zero(),
		foreignOut:  fp.Zero(),
		ledger:      ledger,
		emitter:     events.NoopEmitter{},
	}, nil
}

// SetEmitter configures the event emitter used for committed operations.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetAuthority configures the unwind authority.
func (e *Engine) SetAuthority(auth treasury.Authority) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.authority = auth
}

// SetPauses wires a pause view into the router, allocator and fee manager.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauses = p
	e.router.SetPauses(p)
	e.allocator.SetPauses(p)
	e.fees.SetPauses(p)
}

// Config returns the construction parameters.
func (e *Engine) Config() Config { return e.cfg }

// checkpoint holds independent copies of every mutable component.
type checkpoint struct {
	curve       *curve.Curve
	pool        *pool.Pool
	allocator   *treasury.Allocator
	fees        *fees.Manager
	router      *router.Router
	scheduler   *scheduler.Scheduler
	circulating *uint256.Int
	foreignIn   *uint256.Int
	foreignOut  *uint256.Int
}

func (e *Engine) checkpoint() *checkpoint {
	return &checkpoint{
		curve:       e.curve.Clone(),
		pool:        e.pool.Clone(),
		allocator:   e.allocator.Clone(),
		fees:        e.fees.Clone(),
		router:      e.router.Clone(),
		scheduler:   e.scheduler.Clone(),
		circulating: fp.Clone(e.circulating),
		foreignIn:   fp.Clone(e.foreignIn),
		foreignOut:  fp.Clone(e.foreignOut),
	}
}

func (e *Engine) rollback(cp *checkpoint) {
	e.curve = cp.curve
	e.pool = cp.pool
	e.allocator = cp.allocator
	e.fees = cp.fees
	e.router = cp.router
	e.scheduler = cp.scheduler
	e.circulating = cp.circulating
	e.foreignIn = cp.foreignIn
	e.foreignOut = cp.foreignOut
	e.queued = nil
}

// commit checks conservation and settles with the ledger. Any failure rolls
// the components back to cp. Credits follow debits so a failed debit leaves
// the ledger untouched.
func (e *Engine) commit(cp *checkpoint, debits, credits []transfer) error {
	if err := e.checkConservation(); err != nil {
		e.rollback(cp)
		return err
	}
	for i, d := range debits {
		if err := e.ledger.Debit(d.account, d.asset, d.amount); err != nil {
			for _, done := range debits[:i] {
				_ = e.ledger.Credit(done.account, done.asset, done.amount)
			}
			e.rollback(cp)
			return err
		}
	}
	for _, c := range credits {
		if c.amount == nil || c.amount.IsZero() {
			continue
		}
		if err := e.ledger.Credit(c.account, c.asset, c.amount); err != nil {
			e.rollback(cp)
			return err
		}
	}
	for _, evt := range e.queued {
		e.emitter.Emit(evt)
	}
	e.queued = nil
	return nil
}

type transfer struct {
	account string
	asset   types.Asset
	amount  *uint256.Int
}

func (e *Engine) queue(evt events.Event) { e.queued = append(e.queued, evt) }

func (e *Engine) requireBalance(account string, asset types.Asset, amount *uint256.Int) error {
	if e.ledger.Balance(account, asset).Lt(fp.Clone(amount)) {
		return fmt.Errorf("%w: %s %s", errInsufficient, types.NormalizeAccount(account), asset)
	}
	return nil
}

// Credit funds account with foreign from outside the engine. It does not
// touch engine state; native can only be obtained through the curve or pool.
func (e *Engine) Credit(account string, asset types.Asset, amount *uint256.Int) error {
	if asset != types.AssetForeign {
		return errNativeCredit
	}
	if fp.IsZero(amount) {
		return errZeroCredit
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Credit(account, asset, amount)
}

// Balance returns an account balance from the ledger.
func (e *Engine) Balance(account string, asset types.Asset) *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Balance(account, asset)
}
