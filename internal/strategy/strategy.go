// Package strategy defines the interface a yield strategy exposes to the
// vault. The vault moves tokens to and from the strategy's account; the
// strategy reports what it has deployed and realizes profit or loss on
// harvest.
package strategy

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/abraca-finance/bento/internal/types"
)

// Strategy is a yield venue for a single token.
type Strategy interface {
	// ID is the strategy's account address. Tokens skimmed into the
	// strategy are held under this address.
	ID() types.Address
	// Mint is the token the strategy accepts.
	Mint() types.Address
	// Invested is the amount the strategy currently has deployed.
	Invested(ctx context.Context) (sdkmath.Int, error)
	// Harvest realizes accrued profit or loss. Profit is transferred to
	// `to` before returning; the result is positive for profit, negative
	// for loss, zero when flat.
	Harvest(ctx context.Context, to types.Address) (sdkmath.Int, error)
	// Skim deploys amount that the caller has already transferred to the
	// strategy's account.
	Skim(ctx context.Context, amount sdkmath.Int) error
	// Withdraw returns amount of deployed tokens to `to`.
	Withdraw(ctx context.Context, amount sdkmath.Int, to types.Address) error
	// Exit unwinds the whole position, transfers everything recovered to
	// `to` and returns the recovered amount. The caller settles the
	// difference against its own records.
	Exit(ctx context.Context, to types.Address) (returned sdkmath.Int, err error)
	// IsExecutor reports whether addr may drive restricted harvests.
	IsExecutor(addr types.Address) bool
}
