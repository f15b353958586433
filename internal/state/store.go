// ./internal/state/store.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/abraca-finance/bento/internal/bentobox"
	"github.com/abraca-finance/bento/internal/cauldron"
	"github.com/abraca-finance/bento/internal/types"
)

// Store is the PostgreSQL-backed record store for both the vault and the
// markets. Every engine transaction maps to one database transaction and
// reads take row locks, so concurrent operations on the same records
// serialize on the database.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Begin(ctx context.Context) (cauldron.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

// VaultStore narrows Store to the vault's store interface.
type VaultStore struct {
	*Store
}

func (s VaultStore) Begin(ctx context.Context) (bentobox.Tx, error) {
	return s.Store.Begin(ctx)
}

type pgTx struct {
	tx *sql.Tx
}

func parseInt(raw string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("malformed numeric %q", raw)
	}
	return v, nil
}

func (t *pgTx) Commit() error {
	err := t.tx.Commit()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func (t *pgTx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func (t *pgTx) BentoBox(id types.Address) (*bentobox.BentoBox, error) {
	row := t.tx.QueryRow(`
		SELECT id, authority, pending_authority, renounced, strategy_delay, minimum_share_balance, max_target_percentage
		FROM bento_boxes WHERE id = $1 FOR UPDATE`, string(id))
	var (
		b       bentobox.BentoBox
		minimum string
	)
	err := row.Scan(&b.ID, &b.Authority, &b.PendingAuthority, &b.Renounced, &b.StrategyDelay, &minimum, &b.MaxTargetPercentage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load bentobox: %w", err)
	}
	if b.MinimumShareBalance, err = parseInt(minimum); err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *pgTx) PutBentoBox(b *bentobox.BentoBox) error {
	_, err := t.tx.Exec(`
		INSERT INTO bento_boxes (id, authority, pending_authority, renounced, strategy_delay, minimum_share_balance, max_target_percentage)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			authority = EXCLUDED.authority,
			pending_authority = EXCLUDED.pending_authority,
			renounced = EXCLUDED.renounced,
			strategy_delay = EXCLUDED.strategy_delay,
			minimum_share_balance = EXCLUDED.minimum_share_balance,
			max_target_percentage = EXCLUDED.max_target_percentage`,
		string(b.ID), string(b.Authority), string(b.PendingAuthority), b.Renounced,
		b.StrategyDelay, b.MinimumShareBalance.String(), b.MaxTargetPercentage)
	if err != nil {
		return fmt.Errorf("store bentobox: %w", err)
	}
	return nil
}

func (t *pgTx) Total(box, mint types.Address) (*bentobox.Total, error) {
	row := t.tx.QueryRow(`
		SELECT base, elastic FROM bento_totals
		WHERE bentobox = $1 AND mint = $2 FOR UPDATE`, string(box), string(mint))
	var base, elastic string
	err := row.Scan(&base, &elastic)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load total: %w", err)
	}
	total := &bentobox.Total{BentoBox: box, Mint: mint}
	if total.Amount.Base, err = parseInt(base); err != nil {
		return nil, err
	}
	if total.Amount.Elastic, err = parseInt(elastic); err != nil {
		return nil, err
	}
	return total, nil
}

func (t *pgTx) PutTotal(total *bentobox.Total) error {
	_, err := t.tx.Exec(`
		INSERT INTO bento_totals (bentobox, mint, base, elastic)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (bentobox, mint) DO UPDATE SET
			base = EXCLUDED.base,
			elastic = EXCLUDED.elastic`,
		string(total.BentoBox), string(total.Mint), total.Amount.Base.String(), total.Amount.Elastic.String())
	if err != nil {
		return fmt.Errorf("store total: %w", err)
	}
	return nil
}

func (t *pgTx) Balance(box, mint, owner types.Address) (*bentobox.Balance, error) {
	row := t.tx.QueryRow(`
		SELECT share FROM bento_balances
		WHERE bentobox = $1 AND mint = $2 AND owner = $3 FOR UPDATE`,
		string(box), string(mint), string(owner))
	var share string
	err := row.Scan(&share)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	b := &bentobox.Balance{BentoBox: box, Mint: mint, Owner: owner}
	if b.Share, err = parseInt(share); err != nil {
		return nil, err
	}
	return b, nil
}

func (t *pgTx) PutBalance(b *bentobox.Balance) error {
	_, err := t.tx.Exec(`
		INSERT INTO bento_balances (bentobox, mint, owner, share)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (bentobox, mint, owner) DO UPDATE SET share = EXCLUDED.share`,
		string(b.BentoBox), string(b.Mint), string(b.Owner), b.Share.String())
	if err != nil {
		return fmt.Errorf("store balance: %w", err)
	}
	return nil
}

func (t *pgTx) StrategyData(box, mint types.Address) (*bentobox.StrategyData, error) {
	row := t.tx.QueryRow(`
		SELECT pending, active, start_date, target_percentage, balance
		FROM strategy_data WHERE bentobox = $1 AND mint = $2 FOR UPDATE`,
		string(box), string(mint))
	var (
		sd      bentobox.StrategyData
		balance string
	)
	err := row.Scan(&sd.Pending, &sd.Active, &sd.StartDate, &sd.TargetPercentage, &balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load strategy data: %w", err)
	}
	sd.BentoBox = box
	sd.Mint = mint
	if sd.Balance, err = parseInt(balance); err != nil {
		return nil, err
	}
	return &sd, nil
}

func (t *pgTx) PutStrategyData(sd *bentobox.StrategyData) error {
	_, err := t.tx.Exec(`
		INSERT INTO strategy_data (bentobox, mint, pending, active, start_date, target_percentage, balance)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (bentobox, mint) DO UPDATE SET
			pending = EXCLUDED.pending,
			active = EXCLUDED.active,
			start_date = EXCLUDED.start_date,
			target_percentage = EXCLUDED.target_percentage,
			balance = EXCLUDED.balance`,
		string(sd.BentoBox), string(sd.Mint), string(sd.Pending), string(sd.Active),
		sd.StartDate, sd.TargetPercentage, sd.Balance.String())
	if err != nil {
		return fmt.Errorf("store strategy data: %w", err)
	}
	return nil
}

func (t *pgTx) Whitelist(id types.Address) (*bentobox.MasterContractWhitelisted, error) {
	row := t.tx.QueryRow(`
		SELECT id, bentobox, master_contract, whitelisted
		FROM master_contract_whitelists WHERE id = $1 FOR UPDATE`, string(id))
	var w bentobox.MasterContractWhitelisted
	err := row.Scan(&w.ID, &w.BentoBox, &w.MasterContract, &w.Whitelisted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load whitelist: %w", err)
	}
	return &w, nil
}

func (t *pgTx) PutWhitelist(w *bentobox.MasterContractWhitelisted) error {
	_, err := t.tx.Exec(`
		INSERT INTO master_contract_whitelists (id, bentobox, master_contract, whitelisted)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET whitelisted = EXCLUDED.whitelisted`,
		string(w.ID), string(w.BentoBox), string(w.MasterContract), w.Whitelisted)
	if err != nil {
		return fmt.Errorf("store whitelist: %w", err)
	}
	return nil
}

func (t *pgTx) Approval(id types.Address) (*bentobox.MasterContractApproved, error) {
	row := t.tx.QueryRow(`
		SELECT id, bentobox, master_contract, owner, approved
		FROM master_contract_approvals WHERE id = $1 FOR UPDATE`, string(id))
	var a bentobox.MasterContractApproved
	err := row.Scan(&a.ID, &a.BentoBox, &a.MasterContract, &a.Owner, &a.Approved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load approval: %w", err)
	}
	return &a, nil
}

func (t *pgTx) PutApproval(a *bentobox.MasterContractApproved) error {
	_, err := t.tx.Exec(`
		INSERT INTO master_contract_approvals (id, bentobox, master_contract, owner, approved)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET approved = EXCLUDED.approved`,
		string(a.ID), string(a.BentoBox), string(a.MasterContract), string(a.Owner), a.Approved)
	if err != nil {
		return fmt.Errorf("store approval: %w", err)
	}
	return nil
}

func (t *pgTx) Cauldron(id types.Address) (*cauldron.Cauldron, error) {
	row := t.tx.QueryRow(`
		SELECT id, authority, bentobox, collateral_mint, asset_mint, oracle_feed, fee_to,
			collaterization_rate, liquidation_multiplier, borrow_opening_fee, interest_per_second,
			last_accrued, fees_earned, borrow_limit_total, borrow_limit_per_address,
			last_interest_update, stale_after_slots, liquidation_deadline
		FROM cauldrons WHERE id = $1 FOR UPDATE`, string(id))
	var (
		c                                        cauldron.Cauldron
		collRate, liqMult, openFee, rate         string
		feesEarned, limitTotal, limitPerAddress  string
	)
	err := row.Scan(&c.ID, &c.Authority, &c.BentoBox, &c.CollateralMint, &c.AssetMint, &c.OracleFeed, &c.FeeTo,
		&collRate, &liqMult, &openFee, &rate,
		&c.Accrue.LastAccrued, &feesEarned, &limitTotal, &limitPerAddress,
		&c.LastInterestUpdate, &c.StaleAfterSlots, &c.LiquidationDeadline)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cauldron: %w", err)
	}
	if c.Constants.CollaterizationRate, err = parseInt(collRate); err != nil {
		return nil, err
	}
	if c.Constants.LiquidationMultiplier, err = parseInt(liqMult); err != nil {
		return nil, err
	}
	if c.Constants.BorrowOpeningFee, err = parseInt(openFee); err != nil {
		return nil, err
	}
	if c.Constants.InterestPerSecond, err = parseInt(rate); err != nil {
		return nil, err
	}
	if c.Accrue.FeesEarned, err = parseInt(feesEarned); err != nil {
		return nil, err
	}
	if c.Limit.Total, err = parseInt(limitTotal); err != nil {
		return nil, err
	}
	if c.Limit.PerAddress, err = parseInt(limitPerAddress); err != nil {
		return nil, err
	}
	return &c, nil
}

func (t *pgTx) PutCauldron(c *cauldron.Cauldron) error {
	_, err := t.tx.Exec(`
		INSERT INTO cauldrons (id, authority, bentobox, collateral_mint, asset_mint, oracle_feed, fee_to,
			collaterization_rate, liquidation_multiplier, borrow_opening_fee, interest_per_second,
			last_accrued, fees_earned, borrow_limit_total, borrow_limit_per_address,
			last_interest_update, stale_after_slots, liquidation_deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			authority = EXCLUDED.authority,
			oracle_feed = EXCLUDED.oracle_feed,
			fee_to = EXCLUDED.fee_to,
			interest_per_second = EXCLUDED.interest_per_second,
			last_accrued = EXCLUDED.last_accrued,
			fees_earned = EXCLUDED.fees_earned,
			borrow_limit_total = EXCLUDED.borrow_limit_total,
			borrow_limit_per_address = EXCLUDED.borrow_limit_per_address,
			last_interest_update = EXCLUDED.last_interest_update,
			stale_after_slots = EXCLUDED.stale_after_slots,
			liquidation_deadline = EXCLUDED.liquidation_deadline`,
		string(c.ID), string(c.Authority), string(c.BentoBox), string(c.CollateralMint), string(c.AssetMint),
		string(c.OracleFeed), string(c.FeeTo),
		c.Constants.CollaterizationRate.String(), c.Constants.LiquidationMultiplier.String(),
		c.Constants.BorrowOpeningFee.String(), c.Constants.InterestPerSecond.String(),
		c.Accrue.LastAccrued, c.Accrue.FeesEarned.String(),
		c.Limit.Total.String(), c.Limit.PerAddress.String(),
		c.LastInterestUpdate, c.StaleAfterSlots, c.LiquidationDeadline)
	if err != nil {
		return fmt.Errorf("store cauldron: %w", err)
	}
	return nil
}

func (t *pgTx) CauldronTotal(id types.Address) (*cauldron.Total, error) {
	row := t.tx.QueryRow(`
		SELECT collateral_share, borrow_base, borrow_elastic
		FROM cauldron_totals WHERE cauldron = $1 FOR UPDATE`, string(id))
	var collShare, base, elastic string
	err := row.Scan(&collShare, &base, &elastic)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cauldron total: %w", err)
	}
	total := &cauldron.Total{Cauldron: id}
	if total.CollateralShare, err = parseInt(collShare); err != nil {
		return nil, err
	}
	if total.Borrow.Base, err = parseInt(base); err != nil {
		return nil, err
	}
	if total.Borrow.Elastic, err = parseInt(elastic); err != nil {
		return nil, err
	}
	return total, nil
}

func (t *pgTx) PutCauldronTotal(total *cauldron.Total) error {
	_, err := t.tx.Exec(`
		INSERT INTO cauldron_totals (cauldron, collateral_share, borrow_base, borrow_elastic)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cauldron) DO UPDATE SET
			collateral_share = EXCLUDED.collateral_share,
			borrow_base = EXCLUDED.borrow_base,
			borrow_elastic = EXCLUDED.borrow_elastic`,
		string(total.Cauldron), total.CollateralShare.String(),
		total.Borrow.Base.String(), total.Borrow.Elastic.String())
	if err != nil {
		return fmt.Errorf("store cauldron total: %w", err)
	}
	return nil
}

func (t *pgTx) UserBalance(id, owner types.Address) (*cauldron.UserBalance, error) {
	row := t.tx.QueryRow(`
		SELECT collateral_share, borrow_part FROM cauldron_user_balances
		WHERE cauldron = $1 AND owner = $2 FOR UPDATE`, string(id), string(owner))
	var collShare, part string
	err := row.Scan(&collShare, &part)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user balance: %w", err)
	}
	u := &cauldron.UserBalance{Cauldron: id, Owner: owner}
	if u.CollateralShare, err = parseInt(collShare); err != nil {
		return nil, err
	}
	if u.BorrowPart, err = parseInt(part); err != nil {
		return nil, err
	}
	return u, nil
}

func (t *pgTx) PutUserBalance(u *cauldron.UserBalance) error {
	_, err := t.tx.Exec(`
		INSERT INTO cauldron_user_balances (cauldron, owner, collateral_share, borrow_part)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cauldron, owner) DO UPDATE SET
			collateral_share = EXCLUDED.collateral_share,
			borrow_part = EXCLUDED.borrow_part`,
		string(u.Cauldron), string(u.Owner), u.CollateralShare.String(), u.BorrowPart.String())
	if err != nil {
		return fmt.Errorf("store user balance: %w", err)
	}
	return nil
}

func (t *pgTx) LiquidatorAccount(id types.Address) (*cauldron.LiquidatorAccount, error) {
	row := t.tx.QueryRow(`
		SELECT id, cauldron, origin_liquidator, state, collateral_share, collateral_amount,
			borrow_amount, borrow_share, real_amount, deadline
		FROM liquidator_accounts WHERE id = $1 FOR UPDATE`, string(id))
	var (
		l                                      cauldron.LiquidatorAccount
		state                                  int16
		collShare, collAmount, bAmount, bShare string
		realAmount                             string
	)
	err := row.Scan(&l.ID, &l.Cauldron, &l.OriginLiquidator, &state,
		&collShare, &collAmount, &bAmount, &bShare, &realAmount, &l.Deadline)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load liquidator account: %w", err)
	}
	l.State = cauldron.LiquidationState(state)
	if l.CollateralShare, err = parseInt(collShare); err != nil {
		return nil, err
	}
	if l.CollateralAmount, err = parseInt(collAmount); err != nil {
		return nil, err
	}
	if l.BorrowAmount, err = parseInt(bAmount); err != nil {
		return nil, err
	}
	if l.BorrowShare, err = parseInt(bShare); err != nil {
		return nil, err
	}
	if l.RealAmount, err = parseInt(realAmount); err != nil {
		return nil, err
	}
	return &l, nil
}

func (t *pgTx) PutLiquidatorAccount(l *cauldron.LiquidatorAccount) error {
	_, err := t.tx.Exec(`
		INSERT INTO liquidator_accounts (id, cauldron, origin_liquidator, state, collateral_share,
			collateral_amount, borrow_amount, borrow_share, real_amount, deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			real_amount = EXCLUDED.real_amount`,
		string(l.ID), string(l.Cauldron), string(l.OriginLiquidator), int16(l.State),
		l.CollateralShare.String(), l.CollateralAmount.String(), l.BorrowAmount.String(),
		l.BorrowShare.String(), l.RealAmount.String(), l.Deadline)
	if err != nil {
		return fmt.Errorf("store liquidator account: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteLiquidatorAccount(id types.Address) error {
	_, err := t.tx.Exec(`DELETE FROM liquidator_accounts WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("delete liquidator account: %w", err)
	}
	return nil
}
