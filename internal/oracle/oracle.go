// Package oracle defines the price feed surface consumed by the lending
// market. Prices carry the slot they were published at so callers can apply
// their own staleness policy.
package oracle

import (
	"context"
	"sync"

	"cosmossdk.io/errors"
	"github.com/shopspring/decimal"

	"github.com/abraca-finance/bento/internal/types"
)

const codespace = "oracle"

var (
	ErrNoResult = errors.Register(codespace, 2, "feed has no published result")
)

// Price is a published oracle result. Value is the collateral price in
// borrow-asset terms; Slot is the chain slot the result landed in.
type Price struct {
	Value decimal.Decimal
	Slot  uint64
}

// Mantissa decomposes the price into an integer mantissa and a decimal
// scale such that Value = mantissa / 10^scale. The market's solvency and
// liquidation math operates on this pair.
func (p Price) Mantissa() (mantissa decimal.Decimal, scale int32) {
	scale = -p.Value.Exponent()
	if scale < 0 {
		scale = 0
	}
	return p.Value.Shift(scale), scale
}

// Feed is a single price feed account.
type Feed interface {
	// ID returns the feed's address, checked against the market's
	// configured feed on every read.
	ID() types.Address
	Result(ctx context.Context) (Price, error)
}

// MockFeed is an in-memory Feed with a settable result.
type MockFeed struct {
	mu    sync.Mutex
	id    types.Address
	price *Price
}

func NewMockFeed(id types.Address) *MockFeed {
	return &MockFeed{id: id}
}

func (f *MockFeed) ID() types.Address { return f.id }

func (f *MockFeed) Set(value decimal.Decimal, slot uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = &Price{Value: value, Slot: slot}
}

func (f *MockFeed) Result(_ context.Context) (Price, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.price == nil {
		return Price{}, ErrNoResult
	}
	return *f.price, nil
}
