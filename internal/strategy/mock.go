package strategy

import (
	"context"
	"sync"

	"cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/abraca-finance/bento/internal/token"
	"github.com/abraca-finance/bento/internal/types"
)

const codespace = "strategy"

var (
	ErrNothingDeployed = errors.Register(codespace, 2, "strategy has nothing deployed")
	ErrWithdrawTooMuch = errors.Register(codespace, 3, "withdraw exceeds deployed balance")
)

// Mock is a controllable Strategy backed by a token ledger. Tests set the
// pending yield directly; Harvest then mints profit to the caller or burns
// the loss out of the deployed position.
type Mock struct {
	mu sync.Mutex

	id        types.Address
	mint      types.Address
	ledger    *token.MemLedger
	invested  sdkmath.Int
	pending   sdkmath.Int
	executors map[types.Address]bool
}

func NewMock(id, mint types.Address, ledger *token.MemLedger) *Mock {
	return &Mock{
		id:        id,
		mint:      mint,
		ledger:    ledger,
		invested:  sdkmath.ZeroInt(),
		pending:   sdkmath.ZeroInt(),
		executors: make(map[types.Address]bool),
	}
}

func (m *Mock) ID() types.Address   { return m.id }
func (m *Mock) Mint() types.Address { return m.mint }

// SetYield queues profit (positive) or loss (negative) to be realized by
// the next Harvest or Exit.
func (m *Mock) SetYield(delta sdkmath.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = delta
}

func (m *Mock) SetExecutor(addr types.Address, allowed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executors[addr] = allowed
}

func (m *Mock) IsExecutor(addr types.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executors[addr]
}

func (m *Mock) Invested(_ context.Context) (sdkmath.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invested, nil
}

func (m *Mock) Harvest(ctx context.Context, to types.Address) (sdkmath.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.realize(ctx, to)
}

// realize settles the pending yield. Caller holds the lock.
func (m *Mock) realize(ctx context.Context, to types.Address) (sdkmath.Int, error) {
	delta := m.pending
	m.pending = sdkmath.ZeroInt()
	switch {
	case delta.IsPositive():
		m.ledger.Mint(m.mint, m.id, delta)
		if err := m.ledger.Transfer(ctx, m.mint, m.id, to, delta, m.id); err != nil {
			return sdkmath.ZeroInt(), err
		}
	case delta.IsNegative():
		loss := delta.Neg()
		if loss.GT(m.invested) {
			loss = m.invested
			delta = loss.Neg()
		}
		m.invested = m.invested.Sub(loss)
		if err := m.ledger.Transfer(ctx, m.mint, m.id, types.ZeroAddress, loss, m.id); err != nil {
			return sdkmath.ZeroInt(), err
		}
	}
	return delta, nil
}

func (m *Mock) Skim(_ context.Context, amount sdkmath.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invested = m.invested.Add(amount)
	return nil
}

func (m *Mock) Withdraw(ctx context.Context, amount sdkmath.Int, to types.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount.GT(m.invested) {
		return errors.Wrapf(ErrWithdrawTooMuch, "deployed %s, requested %s", m.invested, amount)
	}
	if err := m.ledger.Transfer(ctx, m.mint, m.id, to, amount, m.id); err != nil {
		return err
	}
	m.invested = m.invested.Sub(amount)
	return nil
}

func (m *Mock) Exit(ctx context.Context, to types.Address) (sdkmath.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delta := m.pending
	m.pending = sdkmath.ZeroInt()
	switch {
	case delta.IsPositive():
		m.ledger.Mint(m.mint, m.id, delta)
		m.invested = m.invested.Add(delta)
	case delta.IsNegative():
		loss := sdkmath.MinInt(delta.Neg(), m.invested)
		m.invested = m.invested.Sub(loss)
		if err := m.ledger.Transfer(ctx, m.mint, m.id, types.ZeroAddress, loss, m.id); err != nil {
			return sdkmath.ZeroInt(), err
		}
	}
	returned := m.invested
	if err := m.ledger.Transfer(ctx, m.mint, m.id, to, returned, m.id); err != nil {
		return sdkmath.ZeroInt(), err
	}
	m.invested = sdkmath.ZeroInt()
	return returned, nil
}
