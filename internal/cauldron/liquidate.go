package cauldron

import (
	"context"

	"cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/abraca-finance/bento/internal/bentobox"
	"github.com/abraca-finance/bento/internal/oracle"
	"github.com/abraca-finance/bento/internal/types"
)

// liquidationCut settles an insolvent position inside tx: removes up to
// maxBorrowPart of debt and the collateral it prices to at the liquidation
// multiplier, credits the distribution fee and returns what moved.
type liquidationCut struct {
	part            sdkmath.Int
	borrowAmount    sdkmath.Int // fee included
	borrowShare     sdkmath.Int
	collateralShare sdkmath.Int
}

func (e *Engine) cutPosition(tx Tx, c *Cauldron, t *Total, user types.Address, maxBorrowPart sdkmath.Int, price oracle.Price) (liquidationCut, error) {
	var cut liquidationCut
	u, err := getOrNewUserBalance(tx, c.ID, user)
	if err != nil {
		return cut, err
	}
	solvent, err := isSolvent(tx, c, t, u, price)
	if err != nil {
		return cut, err
	}
	if solvent {
		return cut, errors.Wrapf(ErrUserIsSolvent, "user %s", user)
	}

	part := sdkmath.MinInt(maxBorrowPart, u.BorrowPart)
	borrowAmount := t.Borrow.ToElastic(part, false)

	mantissa, scale := price.Mantissa()
	pow := sdkmath.NewIntWithDecimal(1, int(scale))
	seized := borrowAmount.
		Mul(c.Constants.LiquidationMultiplier).
		Mul(intFromDecimal(mantissa)).
		Quo(LiquidationMultiplierPrecision).
		Quo(pow)

	bentoColl, err := tx.Total(c.BentoBox, c.CollateralMint)
	if err != nil {
		return cut, err
	}
	if bentoColl == nil {
		return cut, errors.Wrapf(ErrNotFound, "vault total for %s", c.CollateralMint)
	}
	collateralShare := bentoColl.Amount.ToBase(seized, false)
	if collateralShare.GT(u.CollateralShare) {
		collateralShare = u.CollateralShare
	}

	u.CollateralShare = u.CollateralShare.Sub(collateralShare)
	t.CollateralShare = t.CollateralShare.Sub(collateralShare)
	u.BorrowPart = u.BorrowPart.Sub(part)
	t.Borrow.Sub(borrowAmount, part)

	// The liquidator repays the debt plus a slice of the bonus, which the
	// protocol keeps as a fee.
	bonus := borrowAmount.
		Mul(c.Constants.LiquidationMultiplier).
		Quo(LiquidationMultiplierPrecision).
		Sub(borrowAmount)
	distribution := bonus.Mul(DistributionPart).Quo(DistributionPrecision)
	borrowAmount = borrowAmount.Add(distribution)
	c.Accrue.FeesEarned = c.Accrue.FeesEarned.Add(distribution)

	bentoAsset, err := tx.Total(c.BentoBox, c.AssetMint)
	if err != nil {
		return cut, err
	}
	if bentoAsset == nil {
		return cut, errors.Wrapf(ErrNotFound, "vault total for %s", c.AssetMint)
	}
	borrowShare := bentoAsset.Amount.ToBase(borrowAmount, true)

	if err := tx.PutUserBalance(u); err != nil {
		return cut, err
	}
	return liquidationCut{
		part:            part,
		borrowAmount:    borrowAmount,
		borrowShare:     borrowShare,
		collateralShare: collateralShare,
	}, nil
}

// Liquidate settles an insolvent position in one step: the signer pays
// asset shares from their vault balance and receives the seized collateral
// shares on `to`.
func (e *Engine) Liquidate(ctx context.Context, auth bentobox.Auth, id, user, to types.Address, maxBorrowPart sdkmath.Int) error {
	if maxBorrowPart.IsNegative() || maxBorrowPart.IsZero() {
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

	cut, err := e.cutPosition(tx, c, t, user, maxBorrowPart, price)
	if err != nil {
		return err
	}
	if err := tx.PutCauldronTotal(t); err != nil {
		return err
	}
	if err := tx.PutCauldron(c); err != nil {
		return err
	}

	authority := types.CauldronAuthority(id)
	if err := e.vault.TransferTx(ctx, tx, selfAuth(c), c.BentoBox, c.CollateralMint, authority, to, cut.collateralShare); err != nil {
		return err
	}
	if err := e.vault.TransferTx(ctx, tx, delegation(c, auth.Signer), c.BentoBox, c.AssetMint, auth.Signer, authority, cut.borrowShare); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.log.Info().
		Str("cauldron", string(id)).
		Str("user", string(user)).
		Str("liquidator", string(auth.Signer)).
		Str("part", cut.part.String()).
		Msg("position liquidated")
	return nil
}

// BeginLiquidate opens a phased liquidation: the position is settled
// immediately, the seized collateral is withdrawn from the vault to the
// market's token account for swapping, and a checkpoint record reserves
// the flow for the origin liquidator until the deadline.
func (e *Engine) BeginLiquidate(ctx context.Context, auth bentobox.Auth, id, user types.Address, maxBorrowPart sdkmath.Int) (types.Address, error) {
	if maxBorrowPart.IsNegative() || maxBorrowPart.IsZero() {
		return types.ZeroAddress, ErrInvalidAmount
	}
	price, err := e.SwitchboardPrice(ctx, id)
	if err != nil {
		return types.ZeroAddress, err
	}
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return types.ZeroAddress, err
	}
	defer tx.Rollback()
	c, err := requireCauldron(tx, id)
	if err != nil {
		return types.ZeroAddress, err
	}
	t, err := requireCauldronTotal(tx, id)
	if err != nil {
		return types.ZeroAddress, err
	}
	e.accrue(c, t)

	accountID := types.LiquidatorAccountAddress(id, auth.Signer)
	if existing, err := tx.LiquidatorAccount(accountID); err != nil {
		return types.ZeroAddress, err
	} else if existing != nil {
		return types.ZeroAddress, errors.Wrapf(ErrLiquidationInFlight, "liquidator %s", auth.Signer)
	}

	cut, err := e.cutPosition(tx, c, t, user, maxBorrowPart, price)
	if err != nil {
		return types.ZeroAddress, err
	}
	if err := tx.PutCauldronTotal(t); err != nil {
		return types.ZeroAddress, err
	}
	if err := tx.PutCauldron(c); err != nil {
		return types.ZeroAddress, err
	}

	// Pull the seized collateral out of the vault so the swap phase can
	// work with raw tokens.
	authority := types.CauldronAuthority(id)
	out, err := e.vault.WithdrawTx(ctx, tx, selfAuth(c), c.BentoBox, c.CollateralMint, authority, authority, sdkmath.ZeroInt(), cut.collateralShare)
	if err != nil {
		return types.ZeroAddress, err
	}

	if err := tx.PutLiquidatorAccount(&LiquidatorAccount{
		ID:               accountID,
		Cauldron:         id,
		OriginLiquidator: auth.Signer,
		State:            LiquidationOpened,
		CollateralShare:  cut.collateralShare,
		CollateralAmount: out.Amount,
		BorrowAmount:     cut.borrowAmount,
		BorrowShare:      cut.borrowShare,
		RealAmount:       sdkmath.ZeroInt(),
		Deadline:         e.now() + c.LiquidationDeadline,
	}); err != nil {
		return types.ZeroAddress, err
	}
	if err := tx.Commit(); err != nil {
		return types.ZeroAddress, err
	}
	e.log.Info().
		Str("cauldron", string(id)).
		Str("user", string(user)).
		Str("origin", string(auth.Signer)).
		Msg("liquidation opened")
	return accountID, nil
}

func (e *Engine) liquidatorAccount(tx Tx, accountID types.Address, auth bentobox.Auth, want LiquidationState) (*LiquidatorAccount, error) {
	l, err := tx.LiquidatorAccount(accountID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, errors.Wrapf(ErrNotFound, "liquidator account %s", accountID)
	}
	if l.State != want {
		return nil, errors.Wrapf(ErrInvalidLiquidationState, "state %s, want %s", l.State, want)
	}
	if auth.Signer != l.OriginLiquidator && e.now() < l.Deadline {
		return nil, errors.Wrapf(ErrTooSoon, "reserved until %d", l.Deadline)
	}
	return l, nil
}

// LiquidateSwap turns an opened liquidation's collateral tokens into the
// asset through a registered swapper, requiring at least the owed amount
// back.
func (e *Engine) LiquidateSwap(ctx context.Context, auth bentobox.Auth, accountID, swapperID types.Address) error {
	sw, err := e.swapperByID(swapperID)
	if err != nil {
		return err
	}
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	l, err := e.liquidatorAccount(tx, accountID, auth, LiquidationOpened)
	if err != nil {
		return err
	}
	c, err := requireCauldron(tx, l.Cauldron)
	if err != nil {
		return err
	}
	authority := types.CauldronAuthority(c.ID)
	if err := e.vault.Ledger().Approve(ctx, c.CollateralMint, authority, swapperID); err != nil {
		return err
	}
	out, err := sw.Swap(ctx, c.CollateralMint, c.AssetMint, authority, authority, l.CollateralAmount, l.BorrowAmount)
	if err != nil {
		return err
	}
	l.RealAmount = out
	l.State = LiquidationSwapped
	if err := tx.PutLiquidatorAccount(l); err != nil {
		return err
	}
	return tx.Commit()
}

// CompleteLiquidate closes a swapped liquidation: the asset proceeds are
// deposited back into the vault, the owed shares stay with the market and
// the surplus lands on the origin liquidator's vault balance.
func (e *Engine) CompleteLiquidate(ctx context.Context, auth bentobox.Auth, accountID types.Address) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	l, err := e.liquidatorAccount(tx, accountID, auth, LiquidationSwapped)
	if err != nil {
		return err
	}
	c, err := requireCauldron(tx, l.Cauldron)
	if err != nil {
		return err
	}
	authority := types.CauldronAuthority(c.ID)

	out, err := e.vault.DepositTx(ctx, tx, selfAuth(c), c.BentoBox, c.AssetMint, authority, authority, l.RealAmount, sdkmath.ZeroInt())
	if err != nil {
		return err
	}
	if profit := out.Share.Sub(l.BorrowShare); profit.IsPositive() {
		if err := e.vault.TransferTx(ctx, tx, selfAuth(c), c.BentoBox, c.AssetMint, authority, l.OriginLiquidator, profit); err != nil {
			return err
		}
	}
	if err := tx.DeleteLiquidatorAccount(l.ID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.log.Info().
		Str("cauldron", string(c.ID)).
		Str("origin", string(l.OriginLiquidator)).
		Str("proceeds", l.RealAmount.String()).
		Msg("liquidation completed")
	return nil
}
