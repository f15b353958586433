package bentobox

import (
	"context"

	"cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/abraca-finance/bento/internal/types"
)

// CreateStrategyData initializes the allocator record for a token. Vault
// authority only.
func (e *Engine) CreateStrategyData(ctx context.Context, auth Auth, id, mint types.Address) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := requireAuthority(tx, id, auth); err != nil {
		return err
	}
	sd, err := tx.StrategyData(id, mint)
	if err != nil {
		return err
	}
	if sd != nil {
		return tx.Commit()
	}
	if err := tx.PutStrategyData(&StrategyData{
		BentoBox: id,
		Mint:     mint,
		Balance:  sdkmath.ZeroInt(),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func requireStrategyData(tx Tx, id, mint types.Address) (*StrategyData, error) {
	sd, err := tx.StrategyData(id, mint)
	if err != nil {
		return nil, err
	}
	if sd == nil {
		return nil, errors.Wrapf(ErrNotFound, "strategy data for token %s", mint)
	}
	return sd, nil
}

// SetStrategyTargetPercentage sets how much of the token's elastic total
// the allocator keeps deployed.
func (e *Engine) SetStrategyTargetPercentage(ctx context.Context, auth Auth, id, mint types.Address, target uint8) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	b, err := requireAuthority(tx, id, auth)
	if err != nil {
		return err
	}
	if target > b.MaxTargetPercentage {
		return errors.Wrapf(ErrStrategyTargetPercentageTooHigh, "target %d, max %d", target, b.MaxTargetPercentage)
	}
	sd, err := requireStrategyData(tx, id, mint)
	if err != nil {
		return err
	}
	sd.TargetPercentage = target
	if err := tx.PutStrategyData(sd); err != nil {
		return err
	}
	return tx.Commit()
}

// SetStrategy queues a strategy on first call and activates it on a second
// call with the same strategy once the vault's delay has elapsed.
// Activation exits any previously active strategy and settles its final
// profit or loss against the token's elastic total.
func (e *Engine) SetStrategy(ctx context.Context, auth Auth, id, mint, strategyID types.Address) error {
	strat, err := e.strategyByID(strategyID)
	if err != nil {
		return err
	}
	if strat.Mint() != mint {
		return errors.Wrapf(ErrStrategyMintMismatch, "strategy token %s, vault token %s", strat.Mint(), mint)
	}
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	b, err := requireAuthority(tx, id, auth)
	if err != nil {
		return err
	}
	sd, err := requireStrategyData(tx, id, mint)
	if err != nil {
		return err
	}

	if sd.Pending != strategyID {
		sd.Pending = strategyID
		sd.StartDate = e.now() + b.StrategyDelay
		if err := tx.PutStrategyData(sd); err != nil {
			return err
		}
		e.log.Info().
			Str("mint", string(mint)).
			Str("strategy", string(strategyID)).
			Int64("start_date", sd.StartDate).
			Msg("strategy queued")
		return tx.Commit()
	}

	if e.now() < sd.StartDate {
		return errors.Wrapf(ErrTooEarlyStrategyStartDate, "activatable at %d", sd.StartDate)
	}
	if !sd.Active.IsZero() {
		old, err := e.strategyByID(sd.Active)
		if err != nil {
			return err
		}
		returned, err := old.Exit(ctx, types.VaultAuthority(id))
		if err != nil {
			return err
		}
		t, err := requireTotal(tx, id, mint)
		if err != nil {
			return err
		}
		// Settle the exit against the recorded deployment.
		t.Amount.Elastic = t.Amount.Elastic.Add(returned).Sub(sd.Balance)
		if err := tx.PutTotal(t); err != nil {
			return err
		}
	}
	sd.Active = strategyID
	sd.Pending = types.ZeroAddress
	sd.StartDate = 0
	sd.Balance = sdkmath.ZeroInt()
	if err := tx.PutStrategyData(sd); err != nil {
		return err
	}
	e.log.Info().Str("mint", string(mint)).Str("strategy", string(strategyID)).Msg("strategy activated")
	return tx.Commit()
}

// Harvest realizes the active strategy's profit or loss and, when
// rebalance is set, tops the deployment up or draws it down toward the
// target percentage. A zero maxChangeAmount leaves the rebalance unclamped.
// Callable by anyone.
func (e *Engine) Harvest(ctx context.Context, id, mint types.Address, rebalance bool, maxChangeAmount sdkmath.Int) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.harvest(ctx, tx, id, mint, rebalance, maxChangeAmount); err != nil {
		return err
	}
	return tx.Commit()
}

// SafeHarvest is Harvest restricted to the vault authority and the
// strategy's executor allow-list, with an optional elastic-total cap that
// suppresses redeployment when the vault has grown past it.
func (e *Engine) SafeHarvest(ctx context.Context, auth Auth, id, mint types.Address, maxBentoboxBalance *sdkmath.Int, rebalance bool, maxChangeAmount sdkmath.Int, harvestRewards bool) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	b, err := requireBentoBox(tx, id)
	if err != nil {
		return err
	}
	sd, err := requireStrategyData(tx, id, mint)
	if err != nil {
		return err
	}
	if sd.Active.IsZero() {
		return ErrStrategyNotSet
	}
	strat, err := e.strategyByID(sd.Active)
	if err != nil {
		return err
	}
	if auth.Signer != b.Authority && !strat.IsExecutor(auth.Signer) {
		return errors.Wrapf(ErrUnauthorizedSafeHarvest, "signer %s", auth.Signer)
	}
	if harvestRewards {
		if rh, ok := strat.(interface{ HarvestRewards(context.Context) error }); ok {
			if err := rh.HarvestRewards(ctx); err != nil {
				return err
			}
		}
	}
	if maxBentoboxBalance != nil {
		t, err := requireTotal(tx, id, mint)
		if err != nil {
			return err
		}
		if t.Amount.Elastic.GT(*maxBentoboxBalance) {
			rebalance = false
		}
	}
	if err := e.harvest(ctx, tx, id, mint, rebalance, maxChangeAmount); err != nil {
		return err
	}
	return tx.Commit()
}

func (e *Engine) harvest(ctx context.Context, tx Tx, id, mint types.Address, rebalance bool, maxChangeAmount sdkmath.Int) error {
	sd, err := requireStrategyData(tx, id, mint)
	if err != nil {
		return err
	}
	if sd.Active.IsZero() {
		return ErrStrategyNotSet
	}
	strat, err := e.strategyByID(sd.Active)
	if err != nil {
		return err
	}
	t, err := requireTotal(tx, id, mint)
	if err != nil {
		return err
	}
	vaultAcct := types.VaultAuthority(id)

	delta, err := strat.Harvest(ctx, vaultAcct)
	if err != nil {
		return err
	}
	switch {
	case delta.IsPositive():
		t.Amount.Elastic = t.Amount.Elastic.Add(delta)
	case delta.IsNegative():
		loss := delta.Neg()
		t.Amount.Elastic = t.Amount.Elastic.Sub(loss)
		sd.Balance = sd.Balance.Sub(loss)
	}

	if rebalance {
		target := t.Amount.Elastic.MulRaw(int64(sd.TargetPercentage)).QuoRaw(100)
		switch {
		case sd.Balance.LT(target):
			out := target.Sub(sd.Balance)
			if !maxChangeAmount.IsZero() && out.GT(maxChangeAmount) {
				out = maxChangeAmount
			}
			if err := e.ledger.Transfer(ctx, mint, vaultAcct, strat.ID(), out, vaultAcct); err != nil {
				return err
			}
			if err := strat.Skim(ctx, out); err != nil {
				return err
			}
			sd.Balance = sd.Balance.Add(out)
		case sd.Balance.GT(target):
			in := sd.Balance.Sub(target)
			if !maxChangeAmount.IsZero() && in.GT(maxChangeAmount) {
				in = maxChangeAmount
			}
			if err := strat.Withdraw(ctx, in, vaultAcct); err != nil {
				return err
			}
			sd.Balance = sd.Balance.Sub(in)
		}
	}

	if err := tx.PutTotal(t); err != nil {
		return err
	}
	if err := tx.PutStrategyData(sd); err != nil {
		return err
	}
	e.log.Debug().
		Str("mint", string(mint)).
		Str("delta", delta.String()).
		Str("deployed", sd.Balance.String()).
		Msg("harvest")
	return nil
}
