package cauldron

import (
	"context"

	"cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/abraca-finance/bento/internal/bentobox"
	"github.com/abraca-finance/bento/internal/types"
)

func requireMarketAuthority(tx Tx, id types.Address, auth bentobox.Auth) (*Cauldron, error) {
	c, err := requireCauldron(tx, id)
	if err != nil {
		return nil, err
	}
	if auth.Signer != c.Authority {
		return nil, errors.Wrapf(ErrUnauthorized, "signer %s is not market authority", auth.Signer)
	}
	return c, nil
}

// WithdrawFees accrues and moves the earned fees, as asset shares, from
// the market's vault balance to the configured fee receiver.
func (e *Engine) WithdrawFees(ctx context.Context, id types.Address) (sdkmath.Int, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	defer tx.Rollback()
	c, err := requireCauldron(tx, id)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	t, err := requireCauldronTotal(tx, id)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	e.accrue(c, t)

	fees := c.Accrue.FeesEarned
	if fees.IsZero() {
		if err := tx.PutCauldron(c); err != nil {
			return sdkmath.ZeroInt(), err
		}
		if err := tx.PutCauldronTotal(t); err != nil {
			return sdkmath.ZeroInt(), err
		}
		return sdkmath.ZeroInt(), tx.Commit()
	}
	bentoAsset, err := tx.Total(c.BentoBox, c.AssetMint)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if bentoAsset == nil {
		return sdkmath.ZeroInt(), errors.Wrapf(ErrNotFound, "vault total for %s", c.AssetMint)
	}
	share := bentoAsset.Amount.ToBase(fees, false)
	c.Accrue.FeesEarned = sdkmath.ZeroInt()

	if err := tx.PutCauldron(c); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := tx.PutCauldronTotal(t); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := e.vault.TransferTx(ctx, tx, selfAuth(c), c.BentoBox, c.AssetMint, types.CauldronAuthority(id), c.FeeTo, share); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := tx.Commit(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	e.log.Info().Str("cauldron", string(id)).Str("fees", fees.String()).Msg("fees withdrawn")
	return share, nil
}

// SetFeeTo changes the fee receiver. Market authority only.
func (e *Engine) SetFeeTo(ctx context.Context, auth bentobox.Auth, id, feeTo types.Address) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	c, err := requireMarketAuthority(tx, id, auth)
	if err != nil {
		return err
	}
	c.FeeTo = feeTo
	if err := tx.PutCauldron(c); err != nil {
		return err
	}
	return tx.Commit()
}

// ChangeBorrowLimit updates the market's debt caps. Market authority only.
func (e *Engine) ChangeBorrowLimit(ctx context.Context, auth bentobox.Auth, id types.Address, total, perAddress sdkmath.Int) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	c, err := requireMarketAuthority(tx, id, auth)
	if err != nil {
		return err
	}
	c.Limit = BorrowLimit{Total: total, PerAddress: perAddress}
	if err := tx.PutCauldron(c); err != nil {
		return err
	}
	return tx.Commit()
}

// ChangeInterestRate updates the per-second rate. The change accrues at
// the old rate first, is limited to 2.5x the current rate unless the new
// rate is at most one percent APR, and may happen at most once per
// cooldown window.
func (e *Engine) ChangeInterestRate(ctx context.Context, auth bentobox.Auth, id types.Address, newRate sdkmath.Int) error {
	if newRate.IsNegative() {
		return ErrNotValidInterestRate
	}
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	c, err := requireMarketAuthority(tx, id, auth)
	if err != nil {
		return err
	}
	if e.now() < c.LastInterestUpdate+InterestRateCooldown {
		return errors.Wrapf(ErrTooSoonToUpdateInterestRate, "next change at %d", c.LastInterestUpdate+InterestRateCooldown)
	}
	ceiling := c.Constants.InterestPerSecond.MulRaw(250).QuoRaw(100)
	if newRate.GT(ceiling) && newRate.GT(OnePercentRate) {
		return errors.Wrapf(ErrNotValidInterestRate, "rate %s, ceiling %s", newRate, ceiling)
	}
	t, err := requireCauldronTotal(tx, id)
	if err != nil {
		return err
	}
	e.accrue(c, t)
	c.Constants.InterestPerSecond = newRate
	c.LastInterestUpdate = e.now()
	if err := tx.PutCauldron(c); err != nil {
		return err
	}
	if err := tx.PutCauldronTotal(t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.log.Info().Str("cauldron", string(id)).Str("rate", newRate.String()).Msg("interest rate changed")
	return nil
}

// ReduceSupply withdraws unlent asset tokens from the market's vault
// balance back to the authority's token account, clamped to what is
// actually available.
func (e *Engine) ReduceSupply(ctx context.Context, auth bentobox.Auth, id types.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	if amount.IsNegative() {
		return sdkmath.ZeroInt(), ErrInvalidAmount
	}
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	defer tx.Rollback()
	c, err := requireMarketAuthority(tx, id, auth)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	authority := types.CauldronAuthority(id)
	held, err := tx.Balance(c.BentoBox, c.AssetMint, authority)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	bentoAsset, err := tx.Total(c.BentoBox, c.AssetMint)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if held == nil || bentoAsset == nil {
		return sdkmath.ZeroInt(), errors.Wrapf(ErrNotFound, "vault records for %s", c.AssetMint)
	}
	available := bentoAsset.Amount.ToElastic(held.Share, false)
	if amount.GT(available) {
		amount = available
	}
	if amount.IsZero() {
		return sdkmath.ZeroInt(), tx.Commit()
	}
	out, err := e.vault.WithdrawTx(ctx, tx, selfAuth(c), c.BentoBox, c.AssetMint, authority, c.Authority, amount, sdkmath.ZeroInt())
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := tx.Commit(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return out.Amount, nil
}

// UpdateSwitchboardDataFeed points the market at a different oracle feed.
// The feed must be registered. Market authority only.
func (e *Engine) UpdateSwitchboardDataFeed(ctx context.Context, auth bentobox.Auth, id, feed types.Address) error {
	if _, err := e.feedByID(feed); err != nil {
		return err
	}
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	c, err := requireMarketAuthority(tx, id, auth)
	if err != nil {
		return err
	}
	c.OracleFeed = feed
	if err := tx.PutCauldron(c); err != nil {
		return err
	}
	return tx.Commit()
}
