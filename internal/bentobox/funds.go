package bentobox

import (
	"context"

	"cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/abraca-finance/bento/internal/rebase"
	"github.com/abraca-finance/bento/internal/types"
)

func newTotal(id, mint types.Address) *Total {
	return &Total{BentoBox: id, Mint: mint, Amount: rebase.New()}
}

func newBalance(id, mint, owner types.Address) *Balance {
	return &Balance{BentoBox: id, Mint: mint, Owner: owner, Share: sdkmath.ZeroInt()}
}

func requireTotal(tx Tx, id, mint types.Address) (*Total, error) {
	t, err := tx.Total(id, mint)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.Wrapf(ErrNotFound, "total for token %s", mint)
	}
	return t, nil
}

func getOrNewBalance(tx Tx, id, mint, owner types.Address) (*Balance, error) {
	b, err := tx.Balance(id, mint, owner)
	if err != nil {
		return nil, err
	}
	if b == nil {
		b = newBalance(id, mint, owner)
	}
	return b, nil
}

// ToShare converts a token amount to shares at the current rate.
func (e *Engine) ToShare(ctx context.Context, id, mint types.Address, amount sdkmath.Int, roundUp bool) (sdkmath.Int, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	defer tx.Rollback()
	t, err := requireTotal(tx, id, mint)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return t.Amount.ToBase(amount, roundUp), nil
}

// ToAmount converts shares to a token amount at the current rate.
func (e *Engine) ToAmount(ctx context.Context, id, mint types.Address, share sdkmath.Int, roundUp bool) (sdkmath.Int, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	defer tx.Rollback()
	t, err := requireTotal(tx, id, mint)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return t.Amount.ToElastic(share, roundUp), nil
}

// Deposit credits `to` with shares for tokens pulled from `from`. Exactly
// one of amount and share should be non-zero; the other is derived. When
// from is the vault's own authority the deposit skims tokens already
// sitting unaccounted in the vault account instead of pulling new ones.
// A share-zero deposit whose derived share would leave the pool below the
// minimum share balance is a silent no-op returning zeros.
func (e *Engine) Deposit(ctx context.Context, auth Auth, id, mint, from, to types.Address, amount, share sdkmath.Int) (types.AmountShareOut, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return types.ZeroAmountShareOut(), err
	}
	defer tx.Rollback()
	out, err := e.DepositTx(ctx, tx, auth, id, mint, from, to, amount, share)
	if err != nil {
		return types.ZeroAmountShareOut(), err
	}
	return out, tx.Commit()
}

// DepositTx is Deposit inside a caller-owned transaction.
func (e *Engine) DepositTx(ctx context.Context, tx Tx, auth Auth, id, mint, from, to types.Address, amount, share sdkmath.Int) (types.AmountShareOut, error) {
	zero := types.ZeroAmountShareOut()
	if amount.IsNegative() || share.IsNegative() {
		return zero, ErrInvalidAmount
	}
	b, err := requireBentoBox(tx, id)
	if err != nil {
		return zero, err
	}
	if err := allowed(tx, id, auth, from); err != nil {
		return zero, err
	}
	t, err := requireTotal(tx, id, mint)
	if err != nil {
		return zero, err
	}
	if t.Amount.Elastic.IsZero() {
		supply, err := e.ledger.Supply(ctx, mint)
		if err != nil {
			return zero, err
		}
		if supply.IsZero() {
			return zero, ErrBentoBoxNoTokens
		}
	}
	if share.IsZero() {
		share = t.Amount.ToBase(amount, false)
		if t.Amount.Base.Add(share).LT(b.MinimumShareBalance) {
			return zero, nil
		}
	} else {
		amount = t.Amount.ToElastic(share, true)
	}

	vaultAcct := types.VaultAuthority(id)
	if from == vaultAcct {
		held, err := e.ledger.BalanceOf(ctx, mint, vaultAcct)
		if err != nil {
			return zero, err
		}
		// Funds deployed to the strategy still belong to the pool, so
		// they count toward the accounted-for elastic total.
		sd, err := tx.StrategyData(id, mint)
		if err != nil {
			return zero, err
		}
		if sd != nil {
			held = held.Add(sd.Balance)
		}
		unaccounted := held.Sub(t.Amount.Elastic)
		if amount.GT(unaccounted) {
			return zero, errors.Wrapf(ErrDepositSkimTooMuch, "amount %s, unaccounted %s", amount, unaccounted)
		}
	} else {
		if err := e.ledger.Transfer(ctx, mint, from, vaultAcct, amount, from); err != nil {
			return zero, err
		}
	}

	t.Amount.Add(amount, share)
	if err := tx.PutTotal(t); err != nil {
		return zero, err
	}
	bal, err := getOrNewBalance(tx, id, mint, to)
	if err != nil {
		return zero, err
	}
	bal.Share = bal.Share.Add(share)
	if err := tx.PutBalance(bal); err != nil {
		return zero, err
	}
	return types.AmountShareOut{Amount: amount, Share: share}, nil
}

// Withdraw burns shares from `from` and pays tokens out to `to`. The pool
// may not be left with a nonzero share total below the minimum.
func (e *Engine) Withdraw(ctx context.Context, auth Auth, id, mint, from, to types.Address, amount, share sdkmath.Int) (types.AmountShareOut, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return types.ZeroAmountShareOut(), err
	}
	defer tx.Rollback()
	out, err := e.WithdrawTx(ctx, tx, auth, id, mint, from, to, amount, share)
	if err != nil {
		return types.ZeroAmountShareOut(), err
	}
	return out, tx.Commit()
}

// WithdrawTx is Withdraw inside a caller-owned transaction.
func (e *Engine) WithdrawTx(ctx context.Context, tx Tx, auth Auth, id, mint, from, to types.Address, amount, share sdkmath.Int) (types.AmountShareOut, error) {
	zero := types.ZeroAmountShareOut()
	if amount.IsNegative() || share.IsNegative() {
		return zero, ErrInvalidAmount
	}
	b, err := requireBentoBox(tx, id)
	if err != nil {
		return zero, err
	}
	if err := allowed(tx, id, auth, from); err != nil {
		return zero, err
	}
	t, err := requireTotal(tx, id, mint)
	if err != nil {
		return zero, err
	}
	if share.IsZero() {
		share = t.Amount.ToBase(amount, true)
	} else {
		amount = t.Amount.ToElastic(share, false)
	}

	bal, err := getOrNewBalance(tx, id, mint, from)
	if err != nil {
		return zero, err
	}
	if bal.Share.LT(share) {
		return zero, errors.Wrapf(ErrWithdrawAmountTooHigh, "share %s, balance %s", share, bal.Share)
	}
	remaining := t.Amount.Base.Sub(share)
	if !remaining.IsZero() && remaining.LT(b.MinimumShareBalance) {
		return zero, errors.Wrapf(ErrWithdrawCannotEmpty, "remaining shares %s", remaining)
	}

	bal.Share = bal.Share.Sub(share)
	if err := tx.PutBalance(bal); err != nil {
		return zero, err
	}
	t.Amount.Sub(amount, share)
	if err := tx.PutTotal(t); err != nil {
		return zero, err
	}
	vaultAcct := types.VaultAuthority(id)
	if err := e.ledger.Transfer(ctx, mint, vaultAcct, to, amount, vaultAcct); err != nil {
		return zero, err
	}
	return types.AmountShareOut{Amount: amount, Share: share}, nil
}

// Transfer moves shares between balances without touching tokens.
func (e *Engine) Transfer(ctx context.Context, auth Auth, id, mint, from, to types.Address, share sdkmath.Int) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.TransferTx(ctx, tx, auth, id, mint, from, to, share); err != nil {
		return err
	}
	return tx.Commit()
}

// TransferTx is Transfer inside a caller-owned transaction.
func (e *Engine) TransferTx(_ context.Context, tx Tx, auth Auth, id, mint, from, to types.Address, share sdkmath.Int) error {
	if share.IsNegative() {
		return ErrInvalidAmount
	}
	if _, err := requireBentoBox(tx, id); err != nil {
		return err
	}
	if err := allowed(tx, id, auth, from); err != nil {
		return err
	}
	src, err := getOrNewBalance(tx, id, mint, from)
	if err != nil {
		return err
	}
	if src.Share.LT(share) {
		return errors.Wrapf(ErrTransferAmountTooHigh, "share %s, balance %s", share, src.Share)
	}
	src.Share = src.Share.Sub(share)
	if err := tx.PutBalance(src); err != nil {
		return err
	}
	dst, err := getOrNewBalance(tx, id, mint, to)
	if err != nil {
		return err
	}
	dst.Share = dst.Share.Add(share)
	return tx.PutBalance(dst)
}

// BatchTransfer moves shares from one balance to several receivers in a
// single transaction.
func (e *Engine) BatchTransfer(ctx context.Context, auth Auth, id, mint, from types.Address, receivers []types.Address, shares []sdkmath.Int) error {
	if len(receivers) == 0 {
		return ErrEmptyTransferReceiversList
	}
	if len(receivers) != len(shares) {
		return errors.Wrapf(ErrMismatchSharesAndReceivers, "%d receivers, %d shares", len(receivers), len(shares))
	}
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for i, to := range receivers {
		if err := e.TransferTx(ctx, tx, auth, id, mint, from, to, shares[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}
