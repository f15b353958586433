package cauldron

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/abraca-finance/bento/internal/bentobox"
	"github.com/abraca-finance/bento/internal/oracle"
	"github.com/abraca-finance/bento/internal/swapper"
	"github.com/abraca-finance/bento/internal/token"
	"github.com/abraca-finance/bento/internal/types"
)

const (
	mktBox     = types.Address("box-mkt")
	mktID      = types.Address("cauldron-mim")
	collatMint = types.Address("mint-collat")
	assetMint  = types.Address("mint-mim")
	feedID     = types.Address("feed-collat")
	mktAdmin   = types.Address("mkt-admin")
	feeTaker   = types.Address("fee-taker")
	funder     = types.Address("funder")
	userA      = types.Address("user-a")
	userB      = types.Address("user-b")
	liqor      = types.Address("liquidator")
)

type marketEnv struct {
	ledger *token.MemLedger
	vstore *bentobox.MemStore
	store  *MemStore
	vault  *bentobox.Engine
	engine *Engine
	feed   *oracle.MockFeed
	clock  int64
	slot   uint64
}

// price of one asset unit in collateral units, at scale 9.
func price(milli int64) decimal.Decimal {
	return decimal.New(milli*1_000_000, -9)
}

func newMarketEnv(t *testing.T, p InitParams) *marketEnv {
	t.Helper()
	env := &marketEnv{
		ledger: token.NewMemLedger(),
		clock:  1_700_000_000,
		slot:   10_000,
	}
	env.vstore = bentobox.NewMemStore()
	env.store = NewMemStore(env.vstore)
	env.vault = bentobox.NewEngine(env.vstore, env.ledger, bentobox.WithClock(func() int64 { return env.clock }))
	env.engine = NewEngine(env.vault, env.store,
		WithClock(func() int64 { return env.clock }),
		WithSlotSource(func() uint64 { return env.slot }))
	env.feed = oracle.NewMockFeed(feedID)
	env.feed.Set(price(100), env.slot) // 0.1 collateral per asset
	env.engine.RegisterFeed(env.feed)

	ctx := context.Background()
	require.NoError(t, env.vault.Create(ctx, mktBox, mktAdmin, bentobox.CreateParams{}))

	p.ID = mktID
	p.Authority = mktAdmin
	p.BentoBox = mktBox
	p.CollateralMint = collatMint
	p.AssetMint = assetMint
	p.OracleFeed = feedID
	p.FeeTo = feeTaker
	require.NoError(t, env.engine.Initialize(ctx, p))

	require.NoError(t, env.vault.SetMasterContractWhitelist(ctx, bentobox.Sign(mktAdmin), mktBox, mktID, true))
	for _, u := range []types.Address{userA, liqor, funder} {
		require.NoError(t, env.engine.ApproveToCauldron(ctx, bentobox.Sign(u), mktID, true))
	}

	// Market asset liquidity: the funder seeds the market's vault balance.
	env.ledger.Mint(assetMint, funder, sdkmath.NewInt(5_000_000))
	_, err := env.vault.Deposit(ctx, bentobox.Sign(funder), mktBox, assetMint, funder, types.CauldronAuthority(mktID), sdkmath.NewInt(2_000_000), sdkmath.ZeroInt())
	require.NoError(t, err)

	// userA posts 100k collateral.
	env.ledger.Mint(collatMint, userA, sdkmath.NewInt(500_000))
	_, err = env.vault.Deposit(ctx, bentobox.Sign(userA), mktBox, collatMint, userA, userA, sdkmath.NewInt(100_000), sdkmath.ZeroInt())
	require.NoError(t, err)
	require.NoError(t, env.engine.AddCollateral(ctx, bentobox.Sign(userA), mktID, userA, sdkmath.NewInt(100_000), false))
	return env
}

func (env *marketEnv) userBalance(t *testing.T, owner types.Address) *UserBalance {
	t.Helper()
	tx, err := env.store.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	u, err := tx.UserBalance(mktID, owner)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

func (env *marketEnv) marketState(t *testing.T) (*Cauldron, *Total) {
	t.Helper()
	tx, err := env.store.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	c, err := tx.Cauldron(mktID)
	require.NoError(t, err)
	total, err := tx.CauldronTotal(mktID)
	require.NoError(t, err)
	require.NotNil(t, c)
	require.NotNil(t, total)
	return c, total
}

func (env *marketEnv) vaultShare(t *testing.T, mint, owner types.Address) sdkmath.Int {
	t.Helper()
	tx, err := env.vstore.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	b, err := tx.Balance(mktBox, mint, owner)
	require.NoError(t, err)
	if b == nil {
		return sdkmath.ZeroInt()
	}
	return b.Share
}

func TestBorrowChargesOpeningFee(t *testing.T) {
	env := newMarketEnv(t, InitParams{})
	ctx := context.Background()

	out, err := env.engine.Borrow(ctx, bentobox.Sign(userA), mktID, userA, sdkmath.NewInt(500_000))
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(500_000), out.Amount)
	require.Equal(t, sdkmath.NewInt(500_000), env.vaultShare(t, assetMint, userA))

	u := env.userBalance(t, userA)
	require.Equal(t, sdkmath.NewInt(500_250), u.BorrowPart)

	c, total := env.marketState(t)
	require.Equal(t, sdkmath.NewInt(500_250), total.Borrow.Elastic)
	require.Equal(t, sdkmath.NewInt(250), c.Accrue.FeesEarned)
}

func TestBorrowRejectsInsolvent(t *testing.T) {
	env := newMarketEnv(t, InitParams{})
	// 100k collateral at 0.1 and 75% supports 750k of debt; 800k is over.
	_, err := env.engine.Borrow(context.Background(), bentobox.Sign(userA), mktID, userA, sdkmath.NewInt(800_000))
	require.ErrorIs(t, err, ErrUserInsolvent)
}

func TestBorrowLimits(t *testing.T) {
	env := newMarketEnv(t, InitParams{
		BorrowLimitTotal:      sdkmath.NewInt(550_000),
		BorrowLimitPerAddress: sdkmath.NewInt(300_000),
	})
	ctx := context.Background()

	_, err := env.engine.Borrow(ctx, bentobox.Sign(userA), mktID, userA, sdkmath.NewInt(400_000))
	require.ErrorIs(t, err, ErrBorrowLimitReached)

	_, err = env.engine.Borrow(ctx, bentobox.Sign(userA), mktID, userA, sdkmath.NewInt(250_000))
	require.NoError(t, err)
}

func TestAccrueIsDeterministicAndIdempotent(t *testing.T) {
	// 1e12 per second at RateScale is one part per thousand per 1000s.
	env := newMarketEnv(t, InitParams{InterestPerSecond: sdkmath.NewInt(1_000_000_000_000)})
	ctx := context.Background()

	_, err := env.engine.Borrow(ctx, bentobox.Sign(userA), mktID, userA, sdkmath.NewInt(500_000))
	require.NoError(t, err)

	env.clock += 1000
	require.NoError(t, env.engine.Accrue(ctx, mktID))

	c, total := env.marketState(t)
	// 500250 * 1e12 * 1000 / 1e18 = 500
	require.Equal(t, sdkmath.NewInt(500_750), total.Borrow.Elastic)
	require.Equal(t, sdkmath.NewInt(500_250), total.Borrow.Base)
	require.Equal(t, sdkmath.NewInt(750), c.Accrue.FeesEarned)

	// Same second again changes nothing.
	require.NoError(t, env.engine.Accrue(ctx, mktID))
	_, total = env.marketState(t)
	require.Equal(t, sdkmath.NewInt(500_750), total.Borrow.Elastic)
}

func TestRepayWithInterest(t *testing.T) {
	env := newMarketEnv(t, InitParams{InterestPerSecond: sdkmath.NewInt(1_000_000_000_000)})
	ctx := context.Background()

	_, err := env.engine.Borrow(ctx, bentobox.Sign(userA), mktID, userA, sdkmath.NewInt(500_000))
	require.NoError(t, err)
	env.clock += 1000

	_, err = env.engine.Repay(ctx, bentobox.Sign(userA), mktID, userA, sdkmath.NewInt(600_000), false)
	require.ErrorIs(t, err, ErrRepayExceedsDebt)

	// The user tops up their vault balance to cover fee and interest.
	env.ledger.Mint(assetMint, userA, sdkmath.NewInt(10_000))
	_, err = env.vault.Deposit(ctx, bentobox.Sign(userA), mktBox, assetMint, userA, userA, sdkmath.NewInt(10_000), sdkmath.ZeroInt())
	require.NoError(t, err)

	share, err := env.engine.GetRepayShare(ctx, mktID, sdkmath.NewInt(500_250))
	require.NoError(t, err)

	out, err := env.engine.Repay(ctx, bentobox.Sign(userA), mktID, userA, sdkmath.NewInt(500_250), false)
	require.NoError(t, err)
	require.Equal(t, share, out.Share)
	// Full principal plus the 1000s of interest.
	require.Equal(t, sdkmath.NewInt(500_750), out.Amount)

	u := env.userBalance(t, userA)
	require.True(t, u.BorrowPart.IsZero())
	_, total := env.marketState(t)
	require.True(t, total.Borrow.Base.IsZero())
	require.True(t, total.Borrow.Elastic.IsZero())
}

func TestRemoveCollateralKeepsSolvency(t *testing.T) {
	env := newMarketEnv(t, InitParams{})
	ctx := context.Background()

	_, err := env.engine.Borrow(ctx, bentobox.Sign(userA), mktID, userA, sdkmath.NewInt(500_000))
	require.NoError(t, err)

	err = env.engine.RemoveCollateral(ctx, bentobox.Sign(userA), mktID, userA, sdkmath.NewInt(200_000))
	require.ErrorIs(t, err, ErrRemoveExceedsCollateral)

	// Dropping to 60k collateral leaves only 450k of borrow capacity
	// against 500250 of debt.
	err = env.engine.RemoveCollateral(ctx, bentobox.Sign(userA), mktID, userA, sdkmath.NewInt(40_000))
	require.ErrorIs(t, err, ErrUserInsolvent)

	require.NoError(t, env.engine.RemoveCollateral(ctx, bentobox.Sign(userA), mktID, userA, sdkmath.NewInt(20_000)))
	require.Equal(t, sdkmath.NewInt(20_000), env.vaultShare(t, collatMint, userA))

	u := env.userBalance(t, userA)
	require.Equal(t, sdkmath.NewInt(80_000), u.CollateralShare)
}

func TestLiquidateRequiresInsolvency(t *testing.T) {
	env := newMarketEnv(t, InitParams{})
	ctx := context.Background()

	_, err := env.engine.Borrow(ctx, bentobox.Sign(userA), mktID, userA, sdkmath.NewInt(500_000))
	require.NoError(t, err)

	err = env.engine.Liquidate(ctx, bentobox.Sign(liqor), mktID, userA, liqor, sdkmath.NewInt(600_000))
	require.ErrorIs(t, err, ErrUserIsSolvent)
}

func TestLiquidateDirect(t *testing.T) {
	env := newMarketEnv(t, InitParams{})
	ctx := context.Background()

	_, err := env.engine.Borrow(ctx, bentobox.Sign(userA), mktID, userA, sdkmath.NewInt(500_000))
	require.NoError(t, err)

	// The liquidator funds their vault balance with the asset.
	env.ledger.Mint(assetMint, liqor, sdkmath.NewInt(600_000))
	_, err = env.vault.Deposit(ctx, bentobox.Sign(liqor), mktBox, assetMint, liqor, liqor, sdkmath.NewInt(600_000), sdkmath.ZeroInt())
	require.NoError(t, err)

	// Asset doubles against the collateral; the position is under water.
	env.feed.Set(price(200), env.slot)

	feesBefore, _ := env.marketState(t)
	require.NoError(t, env.engine.Liquidate(ctx, bentobox.Sign(liqor), mktID, userA, liqor, sdkmath.NewInt(600_000)))

	u := env.userBalance(t, userA)
	require.True(t, u.BorrowPart.IsZero())
	require.True(t, u.CollateralShare.IsZero())

	// All 100k collateral seized, 502751 asset shares paid: 500250 of
	// debt plus a 2501 distribution fee.
	require.Equal(t, sdkmath.NewInt(100_000), env.vaultShare(t, collatMint, liqor))
	require.Equal(t, sdkmath.NewInt(97_249), env.vaultShare(t, assetMint, liqor))

	c, total := env.marketState(t)
	require.True(t, total.Borrow.Base.IsZero())
	require.Equal(t, feesBefore.Accrue.FeesEarned.Add(sdkmath.NewInt(2_501)), c.Accrue.FeesEarned)
}

func TestLiquidationSaga(t *testing.T) {
	env := newMarketEnv(t, InitParams{})
	ctx := context.Background()

	_, err := env.engine.Borrow(ctx, bentobox.Sign(userA), mktID, userA, sdkmath.NewInt(500_000))
	require.NoError(t, err)
	env.feed.Set(price(200), env.slot)

	accountID, err := env.engine.BeginLiquidate(ctx, bentobox.Sign(liqor), mktID, userA, sdkmath.NewInt(600_000))
	require.NoError(t, err)
	require.Equal(t, types.LiquidatorAccountAddress(mktID, liqor), accountID)

	// Only one open liquidation per liquidator.
	_, err = env.engine.BeginLiquidate(ctx, bentobox.Sign(liqor), mktID, userA, sdkmath.NewInt(600_000))
	require.ErrorIs(t, err, ErrLiquidationInFlight)

	// Phases must run in order.
	err = env.engine.CompleteLiquidate(ctx, bentobox.Sign(liqor), accountID)
	require.ErrorIs(t, err, ErrInvalidLiquidationState)

	sw := swapper.NewMock(types.Address("swapper-1"), env.ledger, decimal.NewFromFloat(5.1))
	env.engine.RegisterSwapper(sw)

	// Before the deadline the flow is reserved for the origin liquidator.
	err = env.engine.LiquidateSwap(ctx, bentobox.Sign(funder), accountID, sw.ID())
	require.ErrorIs(t, err, ErrTooSoon)

	require.NoError(t, env.engine.LiquidateSwap(ctx, bentobox.Sign(liqor), accountID, sw.ID()))
	require.NoError(t, env.engine.CompleteLiquidate(ctx, bentobox.Sign(liqor), accountID))

	// 100k collateral swapped at 5.1 gives 510000; 502751 covers the debt
	// and fee, the rest is the origin liquidator's profit.
	require.Equal(t, sdkmath.NewInt(7_249), env.vaultShare(t, assetMint, liqor))

	// The checkpoint is gone and the position is clean.
	tx, err := env.store.Begin(ctx)
	require.NoError(t, err)
	l, err := tx.LiquidatorAccount(accountID)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	require.Nil(t, l)
	u := env.userBalance(t, userA)
	require.True(t, u.BorrowPart.IsZero())
}

func TestBeginLiquidateOnePerLiquidator(t *testing.T) {
	env := newMarketEnv(t, InitParams{})
	ctx := context.Background()

	// A second borrower with the same position as userA.
	require.NoError(t, env.engine.ApproveToCauldron(ctx, bentobox.Sign(userB), mktID, true))
	env.ledger.Mint(collatMint, userB, sdkmath.NewInt(500_000))
	_, err := env.vault.Deposit(ctx, bentobox.Sign(userB), mktBox, collatMint, userB, userB, sdkmath.NewInt(100_000), sdkmath.ZeroInt())
	require.NoError(t, err)
	require.NoError(t, env.engine.AddCollateral(ctx, bentobox.Sign(userB), mktID, userB, sdkmath.NewInt(100_000), false))

	_, err = env.engine.Borrow(ctx, bentobox.Sign(userA), mktID, userA, sdkmath.NewInt(500_000))
	require.NoError(t, err)
	_, err = env.engine.Borrow(ctx, bentobox.Sign(userB), mktID, userB, sdkmath.NewInt(500_000))
	require.NoError(t, err)
	env.feed.Set(price(200), env.slot)

	// The checkpoint belongs to the liquidator, so a second open against
	// a different borrower is still blocked.
	_, err = env.engine.BeginLiquidate(ctx, bentobox.Sign(liqor), mktID, userA, sdkmath.NewInt(600_000))
	require.NoError(t, err)
	_, err = env.engine.BeginLiquidate(ctx, bentobox.Sign(liqor), mktID, userB, sdkmath.NewInt(600_000))
	require.ErrorIs(t, err, ErrLiquidationInFlight)

	// Another liquidator is free to open against the second borrower.
	otherID, err := env.engine.BeginLiquidate(ctx, bentobox.Sign(funder), mktID, userB, sdkmath.NewInt(600_000))
	require.NoError(t, err)
	require.Equal(t, types.LiquidatorAccountAddress(mktID, funder), otherID)
}

func TestChangeInterestRateGuards(t *testing.T) {
	env := newMarketEnv(t, InitParams{})
	ctx := context.Background()

	err := env.engine.ChangeInterestRate(ctx, bentobox.Sign(mktAdmin), mktID, OnePercentRate.MulRaw(2))
	require.ErrorIs(t, err, ErrTooSoonToUpdateInterestRate)

	env.clock += InterestRateCooldown
	err = env.engine.ChangeInterestRate(ctx, bentobox.Sign(mktAdmin), mktID, OnePercentRate.MulRaw(10))
	require.ErrorIs(t, err, ErrNotValidInterestRate)

	require.NoError(t, env.engine.ChangeInterestRate(ctx, bentobox.Sign(mktAdmin), mktID, OnePercentRate.MulRaw(2)))

	err = env.engine.ChangeInterestRate(ctx, bentobox.Sign(userA), mktID, OnePercentRate)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestWithdrawFees(t *testing.T) {
	env := newMarketEnv(t, InitParams{})
	ctx := context.Background()

	_, err := env.engine.Borrow(ctx, bentobox.Sign(userA), mktID, userA, sdkmath.NewInt(500_000))
	require.NoError(t, err)

	share, err := env.engine.WithdrawFees(ctx, mktID)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(250), share)
	require.Equal(t, sdkmath.NewInt(250), env.vaultShare(t, assetMint, feeTaker))

	c, _ := env.marketState(t)
	require.True(t, c.Accrue.FeesEarned.IsZero())
}

func TestOracleStaleness(t *testing.T) {
	env := newMarketEnv(t, InitParams{StaleAfterSlots: 100})
	ctx := context.Background()

	require.True(t, env.engine.IsValidPrice(ctx, mktID))

	env.slot += 101
	require.False(t, env.engine.IsValidPrice(ctx, mktID))
	_, err := env.engine.Borrow(ctx, bentobox.Sign(userA), mktID, userA, sdkmath.NewInt(1_000))
	require.ErrorIs(t, err, ErrStaleSwitchboardPrice)

	env.feed.Set(price(100), env.slot)
	require.True(t, env.engine.IsValidPrice(ctx, mktID))
}

func TestUpdateSwitchboardDataFeed(t *testing.T) {
	env := newMarketEnv(t, InitParams{})
	ctx := context.Background()

	err := env.engine.UpdateSwitchboardDataFeed(ctx, bentobox.Sign(mktAdmin), mktID, types.Address("feed-unknown"))
	require.ErrorIs(t, err, ErrIncompatibleSwitchboardDataFeed)

	next := oracle.NewMockFeed(types.Address("feed-next"))
	next.Set(price(100), env.slot)
	env.engine.RegisterFeed(next)
	require.NoError(t, env.engine.UpdateSwitchboardDataFeed(ctx, bentobox.Sign(mktAdmin), mktID, next.ID()))

	p, err := env.engine.SwitchboardPrice(ctx, mktID)
	require.NoError(t, err)
	require.Equal(t, env.slot, p.Slot)
}

func TestBentoPassthrough(t *testing.T) {
	env := newMarketEnv(t, InitParams{})
	ctx := context.Background()

	env.ledger.Mint(assetMint, userA, sdkmath.NewInt(50_000))
	out, err := env.engine.BentoDeposit(ctx, bentobox.Sign(userA), mktID, assetMint, userA, sdkmath.NewInt(50_000), sdkmath.ZeroInt())
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(50_000), out.Share)

	require.NoError(t, env.engine.BentoTransfer(ctx, bentobox.Sign(userA), mktID, assetMint, funder, sdkmath.NewInt(10_000)))
	require.Equal(t, sdkmath.NewInt(10_000), env.vaultShare(t, assetMint, funder))

	out, err = env.engine.BentoWithdraw(ctx, bentobox.Sign(userA), mktID, assetMint, userA, sdkmath.NewInt(40_000), sdkmath.ZeroInt())
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(40_000), out.Amount)
	have, err := env.ledger.BalanceOf(ctx, assetMint, userA)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(40_000), have)
}

func TestReduceSupply(t *testing.T) {
	env := newMarketEnv(t, InitParams{})
	ctx := context.Background()

	_, err := env.engine.ReduceSupply(ctx, bentobox.Sign(userA), mktID, sdkmath.NewInt(1))
	require.ErrorIs(t, err, ErrUnauthorized)

	got, err := env.engine.ReduceSupply(ctx, bentobox.Sign(mktAdmin), mktID, sdkmath.NewInt(3_000_000))
	require.NoError(t, err)
	// Clamped to the 2M the market actually holds.
	require.Equal(t, sdkmath.NewInt(2_000_000), got)
	have, err := env.ledger.BalanceOf(ctx, assetMint, mktAdmin)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(2_000_000), have)
}
