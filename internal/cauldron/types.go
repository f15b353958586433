// Package cauldron implements an isolated collateralized lending market on
// top of the bentobox vault: users post collateral shares, borrow the
// market's asset against them, pay continuously accruing interest and get
// liquidated when the oracle price moves them under water.
package cauldron

import (
	sdkmath "cosmossdk.io/math"

	"github.com/abraca-finance/bento/internal/rebase"
	"github.com/abraca-finance/bento/internal/types"
)

// Precisions used by the market's fixed point parameters.
var (
	CollaterizationRatePrecision   = sdkmath.NewInt(100_000)
	LiquidationMultiplierPrecision = sdkmath.NewInt(100_000)
	BorrowOpeningFeePrecision      = sdkmath.NewInt(100_000)
	DistributionPart               = sdkmath.NewInt(10)
	DistributionPrecision          = sdkmath.NewInt(100)
	// RateScale is the fixed point base of InterestPerSecond.
	RateScale = sdkmath.NewIntFromUint64(1_000_000_000_000_000_000)
	// OnePercentRate is 1% APR expressed as a per-second rate in
	// RateScale units.
	OnePercentRate = sdkmath.NewInt(317_097_920)
)

// InterestRateCooldown is the minimum seconds between interest rate
// changes.
const InterestRateCooldown = int64(259_200)

// Constants are a market's immutable-by-default risk parameters.
type Constants struct {
	// CollaterizationRate is the fraction of collateral value that can be
	// borrowed against, in CollaterizationRatePrecision units.
	CollaterizationRate sdkmath.Int
	// LiquidationMultiplier prices seized collateral, in
	// LiquidationMultiplierPrecision units. Above the precision the
	// excess is the liquidator bonus.
	LiquidationMultiplier sdkmath.Int
	// BorrowOpeningFee is charged on every borrow, in
	// BorrowOpeningFeePrecision units.
	BorrowOpeningFee sdkmath.Int
	// InterestPerSecond in RateScale units.
	InterestPerSecond sdkmath.Int
}

// AccrueInfo carries the lazy interest accumulator.
type AccrueInfo struct {
	LastAccrued int64
	FeesEarned  sdkmath.Int
}

// BorrowLimit caps the market's debt. Zero values mean unlimited.
type BorrowLimit struct {
	// Total caps the market's elastic debt.
	Total sdkmath.Int
	// PerAddress caps one user's debt, in asset amount terms.
	PerAddress sdkmath.Int
}

// Cauldron is the root market record.
type Cauldron struct {
	ID             types.Address
	Authority      types.Address
	BentoBox       types.Address
	CollateralMint types.Address
	AssetMint      types.Address
	OracleFeed     types.Address
	// FeeTo receives accrued fees on WithdrawFees.
	FeeTo     types.Address
	Constants Constants
	Accrue    AccrueInfo
	Limit     BorrowLimit
	// LastInterestUpdate is the unix time of the last rate change.
	LastInterestUpdate int64
	// StaleAfterSlots is how many slots an oracle result stays usable.
	StaleAfterSlots uint64
	// LiquidationDeadline is the seconds an open liquidation stays
	// reserved for its origin liquidator.
	LiquidationDeadline int64
}

// Total aggregates the market's positions: total collateral shares posted
// and a rebase of borrow parts (Base) against owed asset amount (Elastic).
type Total struct {
	Cauldron        types.Address
	CollateralShare sdkmath.Int
	Borrow          rebase.Rebase
}

// UserBalance is one user's position.
type UserBalance struct {
	Cauldron        types.Address
	Owner           types.Address
	CollateralShare sdkmath.Int
	BorrowPart      sdkmath.Int
}

// LiquidationState tracks the phases of an open liquidation.
type LiquidationState uint8

const (
	LiquidationOpened LiquidationState = iota
	LiquidationSwapped
	LiquidationCompleted
)

func (s LiquidationState) String() string {
	switch s {
	case LiquidationOpened:
		return "opened"
	case LiquidationSwapped:
		return "swapped"
	case LiquidationCompleted:
		return "completed"
	}
	return "unknown"
}

// LiquidatorAccount is the checkpoint record of a phased liquidation. The
// position is settled at open; the record tracks the collateral being
// turned back into the asset across the swap and completion phases.
type LiquidatorAccount struct {
	ID               types.Address
	Cauldron         types.Address
	OriginLiquidator types.Address
	State            LiquidationState
	// CollateralShare removed from the position at open.
	CollateralShare sdkmath.Int
	// CollateralAmount of tokens withdrawn from the vault for swapping.
	CollateralAmount sdkmath.Int
	// BorrowAmount owed back to the market, distribution fee included.
	BorrowAmount sdkmath.Int
	// BorrowShare is BorrowAmount in vault shares at open.
	BorrowShare sdkmath.Int
	// RealAmount received from the swap.
	RealAmount sdkmath.Int
	// Deadline after which anyone may drive the remaining phases.
	Deadline int64
}
