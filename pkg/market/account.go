package market

import (
	"context"
	"sync"

	"github.com/orderflow-labs/mmcore/pkg/core"
)

// Executor is the minimal surface Account needs from pkg/executor. Declared
// here (rather than importing pkg/executor directly) so pkg/executor is
// free to depend on pkg/market without an import cycle.
type Executor interface {
	Push(ctx context.Context, strategyID core.StrategyID, actions []core.Action) error
}

// Account is `{ID, DriverName, Executor, Flags, WSPrivate?, WSPublic?,
// BalanceCache}` (spec.md §3). The executor is exclusively owned by the
// account; markets never dispatch orders directly.
type Account struct {
	ID         core.AccountID
	DriverName string
	Flags      []string

	Executor Executor

	mu              sync.RWMutex
	balanceCache    map[string]core.Balance
	wsPrivateReady  bool
	wsPublicReady   bool
}

// NewAccount constructs an Account with an empty balance cache. Executor is
// wired in separately once the account's outbound rate limiter exists.
func NewAccount(id core.AccountID, driverName string, flags []string) *Account {
	return &Account{
		ID:           id,
		DriverName:   driverName,
		Flags:        flags,
		balanceCache: make(map[string]core.Balance),
	}
}

// Balances returns a snapshot of the cached balances.
func (a *Account) Balances() map[string]core.Balance {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]core.Balance, len(a.balanceCache))
	for k, v := range a.balanceCache {
		out[k] = v
	}
	return out
}

// SetBalances replaces the cached balances, keyed by currency.
func (a *Account) SetBalances(balances []core.Balance) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balanceCache = make(map[string]core.Balance, len(balances))
	for _, b := range balances {
		a.balanceCache[b.Currency] = b
	}
}

// SetWSPrivateReady records whether the account's private websocket is
// connected; Tick skips a strategy targeting an account that isn't.
func (a *Account) SetWSPrivateReady(ready bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.wsPrivateReady = ready
}

// SetWSPublicReady records whether the account's public websocket is
// connected.
func (a *Account) SetWSPublicReady(ready bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.wsPublicReady = ready
}

// WSPrivateReady reports the last-recorded private websocket state.
func (a *Account) WSPrivateReady() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.wsPrivateReady
}

// WSPublicReady reports the last-recorded public websocket state.
func (a *Account) WSPublicReady() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.wsPublicReady
}

// HasFlag reports whether the account was configured with the given flag.
func (a *Account) HasFlag(flag string) bool {
	for _, f := range a.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// AccountRegistry is a concurrency-safe lookup of accounts by ID.
type AccountRegistry struct {
	mu       sync.RWMutex
	accounts map[core.AccountID]*Account
	order    []core.AccountID
}

// NewAccountRegistry returns an empty account registry.
func NewAccountRegistry() *AccountRegistry {
	return &AccountRegistry{accounts: make(map[core.AccountID]*Account)}
}

// Put registers or replaces an account. Registering for the first time
// appends to the insertion order; replacing an already-registered account
// keeps its original position.
func (r *AccountRegistry) Put(a *Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[a.ID]; !ok {
		r.order = append(r.order, a.ID)
	}
	r.accounts[a.ID] = a
}

// Get returns an account by ID, or false if unregistered.
func (r *AccountRegistry) Get(id core.AccountID) (*Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	return a, ok
}

// All returns every registered account, in registration order.
func (r *AccountRegistry) All() []*Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Account, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.accounts[id])
	}
	return out
}
