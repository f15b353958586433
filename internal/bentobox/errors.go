package bentobox

import "cosmossdk.io/errors"

const codespace = "bentobox"

var (
	ErrNotFound                        = errors.Register(codespace, 2, "record not found")
	ErrUnauthorized                    = errors.Register(codespace, 3, "signer is not authorized")
	ErrWithdrawAmountTooHigh           = errors.Register(codespace, 4, "withdraw exceeds available balance")
	ErrWithdrawCannotEmpty             = errors.Register(codespace, 5, "withdraw may not leave a dust share balance")
	ErrDepositSkimTooMuch              = errors.Register(codespace, 6, "skim deposit exceeds unaccounted tokens")
	ErrBentoBoxNoTokens                = errors.Register(codespace, 7, "token has no supply")
	ErrTooEarlyStrategyStartDate       = errors.Register(codespace, 8, "strategy activation delay has not elapsed")
	ErrInvalidStrategyAccount          = errors.Register(codespace, 9, "strategy does not match the pending or active record")
	ErrStrategyNotSet                  = errors.Register(codespace, 10, "no active strategy for token")
	ErrUnauthorizedSafeHarvest         = errors.Register(codespace, 11, "signer is not a safe harvest executor")
	ErrMasterContractNotWhitelisted    = errors.Register(codespace, 12, "master contract is not whitelisted")
	ErrMasterContractNotApproved       = errors.Register(codespace, 13, "master contract is not approved by user")
	ErrCauldronSignMismatch            = errors.Register(codespace, 14, "signer is not the master contract authority")
	ErrInvalidCauldronAccount          = errors.Register(codespace, 15, "delegation records do not match the master contract")
	ErrSameAuthority                   = errors.Register(codespace, 16, "new authority equals the current authority")
	ErrEmptyAuthorityAddress           = errors.Register(codespace, 17, "authority address is empty")
	ErrEmptyPendingAuthorityAddress    = errors.Register(codespace, 18, "no pending authority to claim")
	ErrInvalidClaimAuthority           = errors.Register(codespace, 19, "signer is not the pending authority")
	ErrAuthorityTransferRenounced      = errors.Register(codespace, 20, "authority transfers have been renounced")
	ErrTransferAmountTooHigh           = errors.Register(codespace, 21, "transfer exceeds share balance")
	ErrEmptyTransferReceiversList      = errors.Register(codespace, 22, "batch transfer requires at least one receiver")
	ErrMismatchSharesAndReceivers      = errors.Register(codespace, 23, "batch transfer shares do not match receivers")
	ErrStrategyTargetPercentageTooHigh = errors.Register(codespace, 24, "strategy target percentage above maximum")
	ErrStrategyMintMismatch            = errors.Register(codespace, 25, "strategy token does not match vault token")
	ErrInvalidAmount                   = errors.Register(codespace, 26, "amount must not be negative")
)
