package cauldron

import (
	"context"

	"cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/abraca-finance/bento/internal/bentobox"
	"github.com/abraca-finance/bento/internal/types"
)

// AddCollateral moves collateral shares from the signer's vault balance
// into the market and credits `to`'s position. With skim set, shares
// already sitting unaccounted on the market's vault balance are claimed
// instead of pulled from the signer.
func (e *Engine) AddCollateral(ctx context.Context, auth bentobox.Auth, id, to types.Address, share sdkmath.Int, skim bool) error {
	if share.IsNegative() {
		return ErrInvalidAmount
	}
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	c, err := requireCauldron(tx, id)
	if err != nil {
		return err
	}
	t, err := requireCauldronTotal(tx, id)
	if err != nil {
		return err
	}
	authority := types.CauldronAuthority(id)

	if skim {
		held, err := tx.Balance(c.BentoBox, c.CollateralMint, authority)
		if err != nil {
			return err
		}
		have := sdkmath.ZeroInt()
		if held != nil {
			have = held.Share
		}
		if share.GT(have.Sub(t.CollateralShare)) {
			return errors.Wrapf(ErrSkimTooMuch, "share %s, unaccounted %s", share, have.Sub(t.CollateralShare))
		}
	} else {
		if err := e.vault.TransferTx(ctx, tx, delegation(c, auth.Signer), c.BentoBox, c.CollateralMint, auth.Signer, authority, share); err != nil {
			return err
		}
	}

	u, err := getOrNewUserBalance(tx, id, to)
	if err != nil {
		return err
	}
	u.CollateralShare = u.CollateralShare.Add(share)
	if err := tx.PutUserBalance(u); err != nil {
		return err
	}
	t.CollateralShare = t.CollateralShare.Add(share)
	if err := tx.PutCauldronTotal(t); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveCollateral returns collateral shares from the signer's position to
// `to`'s vault balance. The position must stay solvent at the current
// price.
func (e *Engine) RemoveCollateral(ctx context.Context, auth bentobox.Auth, id, to types.Address, share sdkmath.Int) error {
	if share.IsNegative() {
		return ErrInvalidAmount
	}
	price, err := e.SwitchboardPrice(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	c, err := requireCauldron(tx, id)
	if err != nil {
		return err
	}
	t, err := requireCauldronTotal(tx, id)
	if err != nil {
		return err
	}
	e.accrue(c, t)

	u, err := getOrNewUserBalance(tx, id, auth.Signer)
	if err != nil {
		return err
	}
	if u.CollateralShare.LT(share) {
		return errors.Wrapf(ErrRemoveExceedsCollateral, "share %s, posted %s", share, u.CollateralShare)
	}
	u.CollateralShare = u.CollateralShare.Sub(share)
	t.CollateralShare = t.CollateralShare.Sub(share)

	solvent, err := isSolvent(tx, c, t, u, price)
	if err != nil {
		return err
	}
	if !solvent {
		return errors.Wrapf(ErrUserInsolvent, "user %s", auth.Signer)
	}

	if err := tx.PutUserBalance(u); err != nil {
		return err
	}
	if err := tx.PutCauldronTotal(t); err != nil {
		return err
	}
	if err := tx.PutCauldron(c); err != nil {
		return err
	}
	if err := e.vault.TransferTx(ctx, tx, selfAuth(c), c.BentoBox, c.CollateralMint, types.CauldronAuthority(id), to, share); err != nil {
		return err
	}
	return tx.Commit()
}

// Borrow draws the asset against the signer's collateral: debt parts are
// minted with the opening fee folded in and the borrowed shares land on
// `to`'s vault balance. Fails if a borrow limit is hit or the position
// would go insolvent.
func (e *Engine) Borrow(ctx context.Context, auth bentobox.Auth, id, to types.Address, amount sdkmath.Int) (types.AmountShareOut, error) {
	zero := types.ZeroAmountShareOut()
	if amount.IsNegative() {
		return zero, ErrInvalidAmount
	}
	price, err := e.SwitchboardPrice(ctx, id)
	if err != nil {
		return zero, err
	}
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return zero, err
	}
	defer tx.Rollback()
	c, err := requireCauldron(tx, id)
	if err != nil {
		return zero, err
	}
	t, err := requireCauldronTotal(tx, id)
	if err != nil {
		return zero, err
	}
	e.accrue(c, t)

	fee := amount.Mul(c.Constants.BorrowOpeningFee).Quo(BorrowOpeningFeePrecision)
	part := t.Borrow.AddElastic(amount.Add(fee), true)
	c.Accrue.FeesEarned = c.Accrue.FeesEarned.Add(fee)

	if !c.Limit.Total.IsZero() && t.Borrow.Elastic.GT(c.Limit.Total) {
		return zero, errors.Wrapf(ErrBorrowLimitReached, "total debt %s, limit %s", t.Borrow.Elastic, c.Limit.Total)
	}

	u, err := getOrNewUserBalance(tx, id, auth.Signer)
	if err != nil {
		return zero, err
	}
	u.BorrowPart = u.BorrowPart.Add(part)
	if !c.Limit.PerAddress.IsZero() {
		owed := t.Borrow.ToElastic(u.BorrowPart, true)
		if owed.GT(c.Limit.PerAddress) {
			return zero, errors.Wrapf(ErrBorrowLimitReached, "user debt %s, limit %s", owed, c.Limit.PerAddress)
		}
	}

	solvent, err := isSolvent(tx, c, t, u, price)
	if err != nil {
		return zero, err
	}
	if !solvent {
		return zero, errors.Wrapf(ErrUserInsolvent, "user %s", auth.Signer)
	}

	if err := tx.PutUserBalance(u); err != nil {
		return zero, err
	}
	if err := tx.PutCauldronTotal(t); err != nil {
		return zero, err
	}
	if err := tx.PutCauldron(c); err != nil {
		return zero, err
	}

	bentoAsset, err := tx.Total(c.BentoBox, c.AssetMint)
	if err != nil {
		return zero, err
	}
	if bentoAsset == nil {
		return zero, errors.Wrapf(ErrNotFound, "vault total for %s", c.AssetMint)
	}
	share := bentoAsset.Amount.ToBase(amount, false)
	if err := e.vault.TransferTx(ctx, tx, selfAuth(c), c.BentoBox, c.AssetMint, types.CauldronAuthority(id), to, share); err != nil {
		return zero, err
	}
	if err := tx.Commit(); err != nil {
		return zero, err
	}
	e.log.Debug().
		Str("cauldron", string(id)).
		Str("user", string(auth.Signer)).
		Str("amount", amount.String()).
		Str("part", part.String()).
		Msg("borrow")
	return types.AmountShareOut{Amount: amount, Share: share}, nil
}

// Repay burns `part` of `to`'s debt, pulling the equivalent asset shares
// from the signer's vault balance. With skim set the shares are claimed
// from the market's unaccounted vault balance instead.
func (e *Engine) Repay(ctx context.Context, auth bentobox.Auth, id, to types.Address, part sdkmath.Int, skim bool) (types.AmountShareOut, error) {
	zero := types.ZeroAmountShareOut()
	if part.IsNegative() {
		return zero, ErrInvalidAmount
	}
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return zero, err
	}
	defer tx.Rollback()
	c, err := requireCauldron(tx, id)
	if err != nil {
		return zero, err
	}
	t, err := requireCauldronTotal(tx, id)
	if err != nil {
		return zero, err
	}
	e.accrue(c, t)

	u, err := getOrNewUserBalance(tx, id, to)
	if err != nil {
		return zero, err
	}
	if u.BorrowPart.LT(part) {
		return zero, errors.Wrapf(ErrRepayExceedsDebt, "part %s, debt %s", part, u.BorrowPart)
	}
	amount := t.Borrow.SubBase(part, true)
	u.BorrowPart = u.BorrowPart.Sub(part)

	bentoAsset, err := tx.Total(c.BentoBox, c.AssetMint)
	if err != nil {
		return zero, err
	}
	if bentoAsset == nil {
		return zero, errors.Wrapf(ErrNotFound, "vault total for %s", c.AssetMint)
	}
	share := bentoAsset.Amount.ToBase(amount, true)
	authority := types.CauldronAuthority(id)

	if skim {
		held, err := tx.Balance(c.BentoBox, c.AssetMint, authority)
		if err != nil {
			return zero, err
		}
		have := sdkmath.ZeroInt()
		if held != nil {
			have = held.Share
		}
		accounted := bentoAsset.Amount.ToBase(c.Accrue.FeesEarned, true)
		if share.GT(have.Sub(accounted)) {
			return zero, errors.Wrapf(ErrSkimTooMuch, "share %s", share)
		}
	} else {
		if err := e.vault.TransferTx(ctx, tx, delegation(c, auth.Signer), c.BentoBox, c.AssetMint, auth.Signer, authority, share); err != nil {
			return zero, err
		}
	}

	if err := tx.PutUserBalance(u); err != nil {
		return zero, err
	}
	if err := tx.PutCauldronTotal(t); err != nil {
		return zero, err
	}
	if err := tx.PutCauldron(c); err != nil {
		return zero, err
	}
	if err := tx.Commit(); err != nil {
		return zero, err
	}
	return types.AmountShareOut{Amount: amount, Share: share}, nil
}

// GetRepayShare quotes the vault shares needed to repay `part` of debt at
// current interest.
func (e *Engine) GetRepayShare(ctx context.Context, id types.Address, part sdkmath.Int) (sdkmath.Int, error) {
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
	amount := t.Borrow.ToElastic(part, true)
	bentoAsset, err := tx.Total(c.BentoBox, c.AssetMint)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if bentoAsset == nil {
		return sdkmath.ZeroInt(), errors.Wrapf(ErrNotFound, "vault total for %s", c.AssetMint)
	}
	return bentoAsset.Amount.ToBase(amount, true), nil
}

// GetRepayPart quotes the debt parts covered by repaying `amount`.
func (e *Engine) GetRepayPart(ctx context.Context, id types.Address, amount sdkmath.Int) (sdkmath.Int, error) {
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
	return t.Borrow.ToBase(amount, false), nil
}

// BentoDeposit forwards a vault deposit through the market's delegation,
// letting an approved user fund their vault balance in the same flow as
// their market actions.
func (e *Engine) BentoDeposit(ctx context.Context, auth bentobox.Auth, id, mint, to types.Address, amount, share sdkmath.Int) (types.AmountShareOut, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return types.ZeroAmountShareOut(), err
	}
	defer tx.Rollback()
	c, err := requireCauldron(tx, id)
	if err != nil {
		return types.ZeroAmountShareOut(), err
	}
	out, err := e.vault.DepositTx(ctx, tx, delegation(c, auth.Signer), c.BentoBox, mint, auth.Signer, to, amount, share)
	if err != nil {
		return types.ZeroAmountShareOut(), err
	}
	return out, tx.Commit()
}

// BentoWithdraw forwards a vault withdrawal through the market's
// delegation.
func (e *Engine) BentoWithdraw(ctx context.Context, auth bentobox.Auth, id, mint, to types.Address, amount, share sdkmath.Int) (types.AmountShareOut, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return types.ZeroAmountShareOut(), err
	}
	defer tx.Rollback()
	c, err := requireCauldron(tx, id)
	if err != nil {
		return types.ZeroAmountShareOut(), err
	}
	out, err := e.vault.WithdrawTx(ctx, tx, delegation(c, auth.Signer), c.BentoBox, mint, auth.Signer, to, amount, share)
	if err != nil {
		return types.ZeroAmountShareOut(), err
	}
	return out, tx.Commit()
}

// BentoTransfer forwards a vault share transfer through the market's
// delegation.
func (e *Engine) BentoTransfer(ctx context.Context, auth bentobox.Auth, id, mint, to types.Address, share sdkmath.Int) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	c, err := requireCauldron(tx, id)
	if err != nil {
		return err
	}
	if err := e.vault.TransferTx(ctx, tx, delegation(c, auth.Signer), c.BentoBox, mint, auth.Signer, to, share); err != nil {
		return err
	}
	return tx.Commit()
}
