package cauldron

import "cosmossdk.io/errors"

const codespace = "cauldron"

var (
	ErrNotFound                       = errors.Register(codespace, 2, "record not found")
	ErrUnauthorized                   = errors.Register(codespace, 3, "signer is not authorized")
	ErrUserInsolvent                  = errors.Register(codespace, 4, "position would be insolvent")
	ErrUserIsSolvent                  = errors.Register(codespace, 5, "position is solvent")
	ErrSkimTooMuch                    = errors.Register(codespace, 6, "skim exceeds unaccounted shares")
	ErrBorrowLimitReached             = errors.Register(codespace, 7, "borrow limit reached")
	ErrIncompatibleSwitchboardDataFeed = errors.Register(codespace, 8, "oracle feed does not match the market")
	ErrStaleSwitchboardPrice          = errors.Register(codespace, 9, "oracle price is stale")
	ErrNotValidInterestRate           = errors.Register(codespace, 10, "interest rate change out of bounds")
	ErrTooSoonToUpdateInterestRate    = errors.Register(codespace, 11, "interest rate updated too recently")
	ErrInvalidSwapper                 = errors.Register(codespace, 12, "swapper not registered for this market")
	ErrInvalidLiquidationState        = errors.Register(codespace, 13, "liquidation is not in the required phase")
	ErrTooSoon                        = errors.Register(codespace, 14, "only the origin liquidator may act before the deadline")
	ErrLiquidationInFlight            = errors.Register(codespace, 15, "an open liquidation already exists for this position")
	ErrInvalidAmount                  = errors.Register(codespace, 16, "amount must not be negative")
	ErrRepayExceedsDebt               = errors.Register(codespace, 17, "repay part exceeds outstanding debt")
	ErrRemoveExceedsCollateral        = errors.Register(codespace, 18, "removal exceeds posted collateral")
)
