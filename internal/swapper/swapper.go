// Package swapper abstracts the venue used to turn seized collateral into
// the borrow asset during liquidations.
package swapper

import (
	"context"
	"sync"

	"cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"github.com/abraca-finance/bento/internal/token"
	"github.com/abraca-finance/bento/internal/types"
)

const codespace = "swapper"

var (
	ErrSlippage = errors.Register(codespace, 2, "swap returned less than the required minimum")
)

// Swapper converts fromToken held by `from` into toToken delivered to `to`.
// It must return at least minOut or fail.
type Swapper interface {
	ID() types.Address
	Swap(ctx context.Context, fromToken, toToken, from, to types.Address, amountIn, minOut sdkmath.Int) (out sdkmath.Int, err error)
}

// Mock swaps at a fixed rate against a token ledger. Output tokens are
// minted, input tokens are burned, which is enough fidelity for exercising
// liquidation flows.
type Mock struct {
	mu     sync.Mutex
	id     types.Address
	ledger *token.MemLedger
	rate   decimal.Decimal
}

func NewMock(id types.Address, ledger *token.MemLedger, rate decimal.Decimal) *Mock {
	return &Mock{id: id, ledger: ledger, rate: rate}
}

func (m *Mock) ID() types.Address { return m.id }

func (m *Mock) SetRate(rate decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rate = rate
}

func (m *Mock) Swap(ctx context.Context, fromToken, toToken, from, to types.Address, amountIn, minOut sdkmath.Int) (sdkmath.Int, error) {
	m.mu.Lock()
	rate := m.rate
	m.mu.Unlock()

	out, ok := sdkmath.NewIntFromString(decimal.NewFromBigInt(amountIn.BigInt(), 0).Mul(rate).Floor().String())
	if !ok {
		return sdkmath.ZeroInt(), errors.Wrap(ErrSlippage, "swap output out of range")
	}
	if out.LT(minOut) {
		return sdkmath.ZeroInt(), errors.Wrapf(ErrSlippage, "out %s, min %s", out, minOut)
	}
	if err := m.ledger.Transfer(ctx, fromToken, from, types.ZeroAddress, amountIn, m.id); err != nil {
		return sdkmath.ZeroInt(), err
	}
	m.ledger.Mint(toToken, to, out)
	return out, nil
}
