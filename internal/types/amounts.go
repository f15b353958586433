package types

import (
	sdkmath "cosmossdk.io/math"
)

// AmountShareOut is the result of a vault deposit or withdrawal: the raw token
// amount actually moved and the share amount it represents.
type AmountShareOut struct {
	Amount sdkmath.Int `json:"amount_out"`
	Share  sdkmath.Int `json:"share_out"`
}

// ZeroAmountShareOut is returned by deposits that were skipped (for example a
// first deposit below the minimum share floor).
func ZeroAmountShareOut() AmountShareOut {
	return AmountShareOut{Amount: sdkmath.ZeroInt(), Share: sdkmath.ZeroInt()}
}
