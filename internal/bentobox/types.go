// Package bentobox implements the rebasing token vault: per-token share
// accounting, vault-to-vault transfers, a master contract capability
// registry, and a strategy allocator that deploys idle funds.
package bentobox

import (
	sdkmath "cosmossdk.io/math"

	"github.com/abraca-finance/bento/internal/rebase"
	"github.com/abraca-finance/bento/internal/types"
)

// BentoBox is the root vault record.
type BentoBox struct {
	ID        types.Address
	Authority types.Address
	// PendingAuthority is set by TransferAuthority and consumed by
	// ClaimAuthority. Empty when no handover is in flight.
	PendingAuthority types.Address
	// Renounced permanently disables further authority transfers.
	Renounced bool
	// StrategyDelay is the seconds a queued strategy must wait before it
	// can be activated.
	StrategyDelay int64
	// MinimumShareBalance is the dust floor: share balances may be zero
	// or at least this value, never in between.
	MinimumShareBalance sdkmath.Int
	// MaxTargetPercentage caps strategy allocation, in whole percent.
	MaxTargetPercentage uint8
}

// Total tracks a token's pool: Amount.Base is total shares outstanding,
// Amount.Elastic is the token amount those shares represent, including
// funds deployed to the strategy.
type Total struct {
	BentoBox types.Address
	Mint     types.Address
	Amount   rebase.Rebase
}

// Balance is a user's share balance for one token.
type Balance struct {
	BentoBox types.Address
	Mint     types.Address
	Owner    types.Address
	Share    sdkmath.Int
}

// StrategyData is the allocator record for one token.
type StrategyData struct {
	BentoBox types.Address
	Mint     types.Address
	// Pending is the queued strategy address, empty when none.
	Pending types.Address
	// Active is the strategy funds flow to, empty when none.
	Active types.Address
	// StartDate is the unix time the pending strategy becomes activatable.
	StartDate int64
	// TargetPercentage of the token's elastic total to keep deployed.
	TargetPercentage uint8
	// Balance is the amount recorded as deployed to the active strategy.
	Balance sdkmath.Int
}

// MasterContractWhitelisted marks a master contract as eligible for user
// approvals. Its address is derived from the vault and master contract.
type MasterContractWhitelisted struct {
	ID             types.Address
	BentoBox       types.Address
	MasterContract types.Address
	Whitelisted    bool
}

// MasterContractApproved records one user's grant to a master contract.
type MasterContractApproved struct {
	ID             types.Address
	BentoBox       types.Address
	MasterContract types.Address
	Owner          types.Address
	Approved       bool
}

// Delegation is the proof a master contract presents when acting for a
// user: the whitelist and approval record addresses it claims authority
// under.
type Delegation struct {
	MasterContract types.Address
	WhitelistID    types.Address
	ApprovalID     types.Address
}

// Auth identifies the caller of a balance-moving operation. Signer is the
// transaction signer; Delegation is set when a master contract authority
// signs on behalf of the principal.
type Auth struct {
	Signer     types.Address
	Delegation *Delegation
}

// Sign builds a direct Auth for addr.
func Sign(addr types.Address) Auth {
	return Auth{Signer: addr}
}
