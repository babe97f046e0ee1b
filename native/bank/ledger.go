// Package bank is the in-memory reference account ledger.
package bank

import (
	"fmt"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	coreerrors "gravitywell/core/errors"
	"gravitywell/core/types"
	fp "gravitywell/native/fixedpoint"
)

var (
	errAccountRequired = fmt.Errorf("bank: account required: %w", coreerrors.ErrValidation)
	errUnknownAsset    = fmt.Errorf("bank: unknown asset: %w", coreerrors.ErrValidation)
	errInsufficient    = fmt.Errorf("bank: insufficient balance: %w", coreerrors.ErrInsufficientAmount)
)

// Ledger custodies native and foreign balances per account. It is safe for
// concurrent use.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]map[types.Asset]*uint256.Int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[string]map[types.Asset]*uint256.Int)}
}

func checkAsset(asset types.Asset) error {
	if asset != types.AssetNative && asset != types.AssetForeign {
		return fmt.Errorf("%w: %q", errUnknownAsset, asset)
	}
	return nil
}

// Balance returns the account's balance of asset, zero when unknown.
func (l *Ledger) Balance(account string, asset types.Asset) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fp.Clone(l.balances[types.NormalizeAccount(account)][asset])
}

// Credit adds amount to the account.
func (l *Ledger) Credit(account string, asset types.Asset, amount *uint256.Int) error {
	id := types.NormalizeAccount(account)
	if id == "" {
		return errAccountRequired
	}
	if err := checkAsset(asset); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	held := l.balances[id]
	if held == nil {
		held = make(map[types.Asset]*uint256.Int, 2)
		l.balances[id] = held
	}
	next, err := fp.Add(held[asset], amount)
	if err != nil {
		return err
	}
	held[asset] = next
	return nil
}

// Debit removes amount from the account or fails without change.
func (l *Ledger) Debit(account string, asset types.Asset, amount *uint256.Int) error {
	id := types.NormalizeAccount(account)
	if id == "" {
		return errAccountRequired
	}
	if err := checkAsset(asset); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	next, err := fp.Sub(l.balances[id][asset], amount)
	if err != nil {
		return fmt.Errorf("%w: %s has %s %s", errInsufficient, id, fp.String(l.balances[id][asset]), asset)
	}
	if l.balances[id] == nil {
		l.balances[id] = make(map[types.Asset]*uint256.Int, 2)
	}
	l.balances[id][asset] = next
	return nil
}

// Total sums every account's balance of asset.
func (l *Ledger) Total(asset types.Asset) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := fp.Zero()
	for _, held := range l.balances {
		if v := held[asset]; v != nil {
			total = new(uint256.Int).Add(total, v)
		}
	}
	return total
}

// Accounts returns every account sorted by id.
func (l *Ledger) Accounts() []types.Account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Account, 0, len(l.balances))
	for id, held := range l.balances {
		out = append(out, types.Account{
			ID:      id,
			Native:  fp.Clone(held[types.AssetNative]),
			Foreign: fp.Clone(held[types.AssetForeign]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Load replaces the ledger contents.
func (l *Ledger) Load(accounts []types.Account) error {
	balances := make(map[string]map[types.Asset]*uint256.Int, len(accounts))
	for _, acc := range accounts {
		id := types.NormalizeAccount(acc.ID)
		if id == "" {
			return errAccountRequired
		}
		balances[id] = map[types.Asset]*uint256.Int{
			types.AssetNative:  fp.Clone(acc.Native),
			types.AssetForeign: fp.Clone(acc.Foreign),
		}
	}
	l.mu.Lock()
	l.balances = balances
	l.mu.Unlock()
	return nil
}
