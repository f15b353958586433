package types

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// Address identifies a principal, record or collaborator in the ledger.
// Addresses are opaque; derived record addresses are produced by Derive.
type Address string

// ZeroAddress is the sentinel "none" identity.
const ZeroAddress Address = ""

// IsZero reports whether the address is the sentinel "none" value.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) String() string {
	return string(a)
}

// Seed parts for derived record addresses. Every per-asset / per-user record
// is reachable from (owning entity, record kind, discriminants), so two
// subsystems can agree on a record's address without coordination.
const (
	bentoboxSeed           = "bentobox"
	cauldronSeed           = "cauldron"
	balanceSeed            = "bentoboxtokenbalancekey"
	totalSeed              = "bentoboxtotalkey"
	strategyDataSeed       = "bentoboxstrategydatakey"
	whitelistedContractSed = "whitelistedmastercontractkey"
	approvedContractSeed   = "approvedmastercontractkey"
	userBalanceSeed        = "userbalance"
	liquidatorAccountSeed  = "liquidatoraccount"
)

// Derive produces a deterministic address from seed parts.
func Derive(parts ...string) Address {
	h := blake3.New(32, nil)
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return Address(hex.EncodeToString(h.Sum(nil)))
}

// VaultAuthority is the pooled holding authority of a vault. Tokens deposited
// into the vault are owned by this principal on the token ledger.
func VaultAuthority(bentobox Address) Address {
	return Derive(bentoboxSeed, string(bentobox))
}

// CauldronAuthority is the pooled sub-account of a lending market. The market
// holds its own vault balances (collateral and borrow asset) under it.
func CauldronAuthority(cauldron Address) Address {
	return Derive(cauldronSeed, string(cauldron))
}

// BalanceAddress locates a principal's share balance for a mint.
func BalanceAddress(bentobox, mint, owner Address) Address {
	return Derive(balanceSeed, string(bentobox), string(mint), string(owner))
}

// TotalAddress locates the per-mint rebase pool of a vault.
func TotalAddress(bentobox, mint Address) Address {
	return Derive(totalSeed, string(bentobox), string(mint))
}

// StrategyDataAddress locates the per-mint strategy state of a vault.
func StrategyDataAddress(bentobox, mint Address) Address {
	return Derive(strategyDataSeed, string(bentobox), string(mint))
}

// WhitelistAddress locates a master contract's whitelist record on a vault.
func WhitelistAddress(bentobox, masterContract Address) Address {
	return Derive(whitelistedContractSed, string(bentobox), string(masterContract))
}

// ApprovalAddress locates a principal's approval record for a master contract.
func ApprovalAddress(bentobox, masterContract, owner Address) Address {
	return Derive(approvedContractSeed, string(bentobox), string(masterContract), string(owner))
}

// UserBalanceAddress locates a user's position record on a market.
func UserBalanceAddress(cauldron, user Address) Address {
	return Derive(userBalanceSeed, string(cauldron), string(user))
}

// LiquidatorAccountAddress locates a liquidator's escrow record on a market.
func LiquidatorAccountAddress(cauldron, liquidator Address) Address {
	return Derive(liquidatorAccountSeed, string(cauldron), string(liquidator))
}
