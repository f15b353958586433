// Package token abstracts the fungible token ledger the vault settles
// against. The engine only needs transfer, allowance and supply queries;
// anything that satisfies Ledger can back it.
package token

import (
	"context"
	"sync"

	"cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/abraca-finance/bento/internal/types"
)

const codespace = "token"

var (
	ErrInsufficientFunds = errors.Register(codespace, 2, "insufficient token balance")
	ErrNotApproved       = errors.Register(codespace, 3, "spender not approved by owner")
	ErrInvalidAmount     = errors.Register(codespace, 4, "transfer amount must be positive")
)

// Ledger is the token backend used for all vault settlement legs.
// Transfer moves amount of mint from `from` to `to`; `by` identifies the
// signer executing the move and must either be the owner or hold an
// approval from the owner for that mint.
type Ledger interface {
	Transfer(ctx context.Context, mint, from, to types.Address, amount sdkmath.Int, by types.Address) error
	Approve(ctx context.Context, mint, owner, spender types.Address) error
	BalanceOf(ctx context.Context, mint, owner types.Address) (sdkmath.Int, error)
	Supply(ctx context.Context, mint types.Address) (sdkmath.Int, error)
}

type balanceKey struct {
	mint  types.Address
	owner types.Address
}

type approvalKey struct {
	mint    types.Address
	owner   types.Address
	spender types.Address
}

// MemLedger is an in-memory Ledger used by tests and the local runner.
type MemLedger struct {
	mu        sync.Mutex
	balances  map[balanceKey]sdkmath.Int
	approvals map[approvalKey]bool
}

func NewMemLedger() *MemLedger {
	return &MemLedger{
		balances:  make(map[balanceKey]sdkmath.Int),
		approvals: make(map[approvalKey]bool),
	}
}

// Mint credits owner with freshly created units of mint. Test setup helper,
// not part of Ledger.
func (l *MemLedger) Mint(mint, owner types.Address, amount sdkmath.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := balanceKey{mint: mint, owner: owner}
	l.balances[k] = l.balance(k).Add(amount)
}

func (l *MemLedger) balance(k balanceKey) sdkmath.Int {
	if b, ok := l.balances[k]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

func (l *MemLedger) Transfer(_ context.Context, mint, from, to types.Address, amount sdkmath.Int, by types.Address) error {
	if !amount.IsPositive() {
		if amount.IsZero() {
			return nil
		}
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if by != from && !l.approvals[approvalKey{mint: mint, owner: from, spender: by}] {
		return errors.Wrapf(ErrNotApproved, "%s moving %s funds", by, from)
	}
	src := balanceKey{mint: mint, owner: from}
	have := l.balance(src)
	if have.LT(amount) {
		return errors.Wrapf(ErrInsufficientFunds, "have %s, need %s", have, amount)
	}
	l.balances[src] = have.Sub(amount)
	dst := balanceKey{mint: mint, owner: to}
	l.balances[dst] = l.balance(dst).Add(amount)
	return nil
}

func (l *MemLedger) Approve(_ context.Context, mint, owner, spender types.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.approvals[approvalKey{mint: mint, owner: owner, spender: spender}] = true
	return nil
}

func (l *MemLedger) BalanceOf(_ context.Context, mint, owner types.Address) (sdkmath.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(balanceKey{mint: mint, owner: owner}), nil
}

func (l *MemLedger) Supply(_ context.Context, mint types.Address) (sdkmath.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := sdkmath.ZeroInt()
	for k, v := range l.balances {
		if k.mint == mint {
			total = total.Add(v)
		}
	}
	return total, nil
}
