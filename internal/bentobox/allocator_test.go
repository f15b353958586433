package bentobox

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/abraca-finance/bento/internal/strategy"
	"github.com/abraca-finance/bento/internal/types"
)

const stratID = types.Address("strategy-mock")

func newStrategyEnv(t *testing.T) (*testEnv, *strategy.Mock) {
	t.Helper()
	env := newTestEnv(t)
	ctx := context.Background()
	mock := strategy.NewMock(stratID, testMint, env.ledger)
	env.engine.RegisterStrategy(mock)
	require.NoError(t, env.engine.CreateStrategyData(ctx, Sign(testAdmin), testBox, testMint))
	return env, mock
}

func activate(t *testing.T, env *testEnv) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.engine.SetStrategy(ctx, Sign(testAdmin), testBox, testMint, stratID))
	env.clock += DefaultStrategyDelay
	require.NoError(t, env.engine.SetStrategy(ctx, Sign(testAdmin), testBox, testMint, stratID))
}

func TestSetStrategyQueueAndActivate(t *testing.T) {
	env, _ := newStrategyEnv(t)
	ctx := context.Background()

	require.NoError(t, env.engine.SetStrategy(ctx, Sign(testAdmin), testBox, testMint, stratID))

	// Second call before the delay elapses is rejected.
	err := env.engine.SetStrategy(ctx, Sign(testAdmin), testBox, testMint, stratID)
	require.ErrorIs(t, err, ErrTooEarlyStrategyStartDate)

	env.clock += DefaultStrategyDelay
	require.NoError(t, env.engine.SetStrategy(ctx, Sign(testAdmin), testBox, testMint, stratID))

	tx, err := env.store.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	sd, err := tx.StrategyData(testBox, testMint)
	require.NoError(t, err)
	require.Equal(t, stratID, sd.Active)
	require.True(t, sd.Pending.IsZero())
}

func TestSetStrategyRejectsUnknownOrMismatched(t *testing.T) {
	env, _ := newStrategyEnv(t)
	ctx := context.Background()

	err := env.engine.SetStrategy(ctx, Sign(testAdmin), testBox, testMint, types.Address("never-registered"))
	require.ErrorIs(t, err, ErrInvalidStrategyAccount)

	other := strategy.NewMock(types.Address("strategy-other"), types.Address("mint-other"), env.ledger)
	env.engine.RegisterStrategy(other)
	err = env.engine.SetStrategy(ctx, Sign(testAdmin), testBox, testMint, other.ID())
	require.ErrorIs(t, err, ErrStrategyMintMismatch)
}

func TestHarvestRebalanceTowardTarget(t *testing.T) {
	env, _ := newStrategyEnv(t)
	ctx := context.Background()

	_, err := env.engine.Deposit(ctx, Sign(alice), testBox, testMint, alice, alice, sdkmath.NewInt(2000), sdkmath.ZeroInt())
	require.NoError(t, err)
	require.NoError(t, env.engine.SetStrategyTargetPercentage(ctx, Sign(testAdmin), testBox, testMint, 10))
	activate(t, env)

	// 10% of 2000 is 200; maxChangeAmount 500 does not clamp it.
	require.NoError(t, env.engine.Harvest(ctx, testBox, testMint, true, sdkmath.NewInt(500)))

	tx, err := env.store.Begin(ctx)
	require.NoError(t, err)
	sd, err := tx.StrategyData(testBox, testMint)
	require.NoError(t, err)
	total, err := tx.Total(testBox, testMint)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	require.Equal(t, sdkmath.NewInt(200), sd.Balance)
	require.Equal(t, sdkmath.NewInt(2000), total.Amount.Elastic)

	held, err := env.ledger.BalanceOf(ctx, testMint, stratID)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(200), held)

	// Dropping the target draws funds back, clamped by maxChangeAmount.
	require.NoError(t, env.engine.SetStrategyTargetPercentage(ctx, Sign(testAdmin), testBox, testMint, 0))
	require.NoError(t, env.engine.Harvest(ctx, testBox, testMint, true, sdkmath.NewInt(150)))
	tx, err = env.store.Begin(ctx)
	require.NoError(t, err)
	sd, err = tx.StrategyData(testBox, testMint)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	require.Equal(t, sdkmath.NewInt(50), sd.Balance)
}

func TestHarvestProfitRaisesElastic(t *testing.T) {
	env, mock := newStrategyEnv(t)
	ctx := context.Background()

	_, err := env.engine.Deposit(ctx, Sign(alice), testBox, testMint, alice, alice, sdkmath.NewInt(2000), sdkmath.ZeroInt())
	require.NoError(t, err)
	require.NoError(t, env.engine.SetStrategyTargetPercentage(ctx, Sign(testAdmin), testBox, testMint, 50))
	activate(t, env)
	require.NoError(t, env.engine.Harvest(ctx, testBox, testMint, true, sdkmath.ZeroInt()))

	mock.SetYield(sdkmath.NewInt(300))
	require.NoError(t, env.engine.Harvest(ctx, testBox, testMint, false, sdkmath.ZeroInt()))

	total := env.total(t)
	require.Equal(t, sdkmath.NewInt(2300), total.Amount.Elastic)
	require.Equal(t, sdkmath.NewInt(2000), total.Amount.Base)

	// Shares now redeem for more than they were deposited at.
	amount, err := env.engine.ToAmount(ctx, testBox, testMint, sdkmath.NewInt(2000), false)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(2300), amount)
}

func TestHarvestLossReducesElasticAndDeployment(t *testing.T) {
	env, mock := newStrategyEnv(t)
	ctx := context.Background()

	_, err := env.engine.Deposit(ctx, Sign(alice), testBox, testMint, alice, alice, sdkmath.NewInt(2000), sdkmath.ZeroInt())
	require.NoError(t, err)
	require.NoError(t, env.engine.SetStrategyTargetPercentage(ctx, Sign(testAdmin), testBox, testMint, 50))
	activate(t, env)
	require.NoError(t, env.engine.Harvest(ctx, testBox, testMint, true, sdkmath.ZeroInt()))

	mock.SetYield(sdkmath.NewInt(-100))
	require.NoError(t, env.engine.Harvest(ctx, testBox, testMint, false, sdkmath.ZeroInt()))

	total := env.total(t)
	require.Equal(t, sdkmath.NewInt(1900), total.Amount.Elastic)

	tx, err := env.store.Begin(ctx)
	require.NoError(t, err)
	sd, err := tx.StrategyData(testBox, testMint)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	require.Equal(t, sdkmath.NewInt(900), sd.Balance)
}

func TestStrategySwitchExitsOldPosition(t *testing.T) {
	env, mock := newStrategyEnv(t)
	ctx := context.Background()

	_, err := env.engine.Deposit(ctx, Sign(alice), testBox, testMint, alice, alice, sdkmath.NewInt(2000), sdkmath.ZeroInt())
	require.NoError(t, err)
	require.NoError(t, env.engine.SetStrategyTargetPercentage(ctx, Sign(testAdmin), testBox, testMint, 50))
	activate(t, env)
	require.NoError(t, env.engine.Harvest(ctx, testBox, testMint, true, sdkmath.ZeroInt()))

	// Old strategy exits with a pending profit of 40.
	mock.SetYield(sdkmath.NewInt(40))

	next := strategy.NewMock(types.Address("strategy-next"), testMint, env.ledger)
	env.engine.RegisterStrategy(next)
	require.NoError(t, env.engine.SetStrategy(ctx, Sign(testAdmin), testBox, testMint, next.ID()))
	env.clock += DefaultStrategyDelay
	require.NoError(t, env.engine.SetStrategy(ctx, Sign(testAdmin), testBox, testMint, next.ID()))

	total := env.total(t)
	require.Equal(t, sdkmath.NewInt(2040), total.Amount.Elastic)

	tx, err := env.store.Begin(ctx)
	require.NoError(t, err)
	sd, err := tx.StrategyData(testBox, testMint)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	require.Equal(t, next.ID(), sd.Active)
	require.True(t, sd.Balance.IsZero())

	// Everything is back in the vault account.
	held, err := env.ledger.BalanceOf(ctx, testMint, types.VaultAuthority(testBox))
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(2040), held)
}

func TestSafeHarvestExecutorGate(t *testing.T) {
	env, mock := newStrategyEnv(t)
	ctx := context.Background()

	_, err := env.engine.Deposit(ctx, Sign(alice), testBox, testMint, alice, alice, sdkmath.NewInt(2000), sdkmath.ZeroInt())
	require.NoError(t, err)
	require.NoError(t, env.engine.SetStrategyTargetPercentage(ctx, Sign(testAdmin), testBox, testMint, 10))
	activate(t, env)

	err = env.engine.SafeHarvest(ctx, Sign(bob), testBox, testMint, nil, true, sdkmath.ZeroInt(), false)
	require.ErrorIs(t, err, ErrUnauthorizedSafeHarvest)

	mock.SetExecutor(bob, true)
	require.NoError(t, env.engine.SafeHarvest(ctx, Sign(bob), testBox, testMint, nil, true, sdkmath.ZeroInt(), false))

	// The vault authority may always call it.
	require.NoError(t, env.engine.SafeHarvest(ctx, Sign(testAdmin), testBox, testMint, nil, true, sdkmath.ZeroInt(), false))
}

func TestSafeHarvestBalanceCapSkipsRebalance(t *testing.T) {
	env, _ := newStrategyEnv(t)
	ctx := context.Background()

	_, err := env.engine.Deposit(ctx, Sign(alice), testBox, testMint, alice, alice, sdkmath.NewInt(2000), sdkmath.ZeroInt())
	require.NoError(t, err)
	require.NoError(t, env.engine.SetStrategyTargetPercentage(ctx, Sign(testAdmin), testBox, testMint, 10))
	activate(t, env)

	cap := sdkmath.NewInt(1500)
	require.NoError(t, env.engine.SafeHarvest(ctx, Sign(testAdmin), testBox, testMint, &cap, true, sdkmath.ZeroInt(), false))

	tx, err := env.store.Begin(ctx)
	require.NoError(t, err)
	sd, err := tx.StrategyData(testBox, testMint)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	require.True(t, sd.Balance.IsZero())
}

func TestSetStrategyTargetPercentageCap(t *testing.T) {
	env, _ := newStrategyEnv(t)
	err := env.engine.SetStrategyTargetPercentage(context.Background(), Sign(testAdmin), testBox, testMint, 96)
	require.ErrorIs(t, err, ErrStrategyTargetPercentageTooHigh)
}

func TestDepositSkimWithDeployedFunds(t *testing.T) {
	env, _ := newStrategyEnv(t)
	ctx := context.Background()
	vaultAcct := types.VaultAuthority(testBox)

	_, err := env.engine.Deposit(ctx, Sign(alice), testBox, testMint, alice, alice, sdkmath.NewInt(2000), sdkmath.ZeroInt())
	require.NoError(t, err)
	require.NoError(t, env.engine.SetStrategyTargetPercentage(ctx, Sign(testAdmin), testBox, testMint, 10))
	activate(t, env)
	require.NoError(t, env.engine.Harvest(ctx, testBox, testMint, true, sdkmath.ZeroInt()))

	// The vault account now holds 1800 with 200 deployed; elastic is
	// still 2000. Tokens sent straight to the vault account are the only
	// unaccounted funds.
	require.NoError(t, env.ledger.Transfer(ctx, testMint, bob, vaultAcct, sdkmath.NewInt(100), bob))

	_, err = env.engine.Deposit(ctx, Sign(vaultAcct), testBox, testMint, vaultAcct, bob, sdkmath.NewInt(101), sdkmath.ZeroInt())
	require.ErrorIs(t, err, ErrDepositSkimTooMuch)

	out, err := env.engine.Deposit(ctx, Sign(vaultAcct), testBox, testMint, vaultAcct, bob, sdkmath.NewInt(100), sdkmath.ZeroInt())
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(100), out.Amount)
}
