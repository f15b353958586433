package bentobox

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/abraca-finance/bento/internal/token"
	"github.com/abraca-finance/bento/internal/types"
)

const (
	testBox   = types.Address("box-main")
	testMint  = types.Address("mint-usdc")
	testAdmin = types.Address("admin")
	alice     = types.Address("alice")
	bob       = types.Address("bob")
)

type testEnv struct {
	engine *Engine
	ledger *token.MemLedger
	store  *MemStore
	clock  int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		ledger: token.NewMemLedger(),
		store:  NewMemStore(),
		clock:  1_700_000_000,
	}
	env.engine = NewEngine(env.store, env.ledger, WithClock(func() int64 { return env.clock }))
	ctx := context.Background()
	require.NoError(t, env.engine.Create(ctx, testBox, testAdmin, CreateParams{}))
	require.NoError(t, env.engine.CreateVault(ctx, testBox, testMint))
	env.ledger.Mint(testMint, alice, sdkmath.NewInt(1_000_000_000_000_000))
	env.ledger.Mint(testMint, bob, sdkmath.NewInt(1_000_000_000_000_000))
	return env
}

func (env *testEnv) total(t *testing.T) *Total {
	t.Helper()
	tx, err := env.store.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	total, err := tx.Total(testBox, testMint)
	require.NoError(t, err)
	require.NotNil(t, total)
	return total
}

func (env *testEnv) share(t *testing.T, owner types.Address) sdkmath.Int {
	t.Helper()
	tx, err := env.store.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	bal, err := tx.Balance(testBox, testMint, owner)
	require.NoError(t, err)
	if bal == nil {
		return sdkmath.ZeroInt()
	}
	return bal.Share
}

func TestDepositFirstIsOneToOne(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	out, err := env.engine.Deposit(ctx, Sign(alice), testBox, testMint, alice, alice, sdkmath.NewInt(100_000), sdkmath.ZeroInt())
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(100_000), out.Amount)
	require.Equal(t, sdkmath.NewInt(100_000), out.Share)
	require.Equal(t, sdkmath.NewInt(100_000), env.share(t, alice))

	total := env.total(t)
	require.Equal(t, sdkmath.NewInt(100_000), total.Amount.Base)
	require.Equal(t, sdkmath.NewInt(100_000), total.Amount.Elastic)
}

func TestDepositAfterYieldRoundsSharesDown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	amt := func(v int64) sdkmath.Int { return sdkmath.NewInt(v).MulRaw(1_000_000_000) }
	_, err := env.engine.Deposit(ctx, Sign(alice), testBox, testMint, alice, alice, amt(1000), sdkmath.ZeroInt())
	require.NoError(t, err)

	// 200e9 of yield arrives in the vault account and gets skimmed into
	// the elastic total without issuing shares.
	env.ledger.Mint(testMint, types.VaultAuthority(testBox), amt(200))
	tx, err := env.store.Begin(ctx)
	require.NoError(t, err)
	total, err := tx.Total(testBox, testMint)
	require.NoError(t, err)
	total.Amount.Elastic = total.Amount.Elastic.Add(amt(200))
	require.NoError(t, tx.PutTotal(total))
	require.NoError(t, tx.Commit())

	out, err := env.engine.Deposit(ctx, Sign(bob), testBox, testMint, bob, bob, amt(1000), sdkmath.ZeroInt())
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(833_333_333_333), out.Share)
	require.Equal(t, amt(1000), out.Amount)
}

func TestDepositByShareChargesAmountUp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.Deposit(ctx, Sign(alice), testBox, testMint, alice, alice, sdkmath.NewInt(1000), sdkmath.ZeroInt())
	require.NoError(t, err)
	tx, err := env.store.Begin(ctx)
	require.NoError(t, err)
	total, err := tx.Total(testBox, testMint)
	require.NoError(t, err)
	total.Amount.Elastic = sdkmath.NewInt(1200)
	require.NoError(t, tx.PutTotal(total))
	require.NoError(t, tx.Commit())

	// 100 shares at 1000/1200 cost ceil(100*1200/1000) = 120 tokens.
	out, err := env.engine.Deposit(ctx, Sign(bob), testBox, testMint, bob, bob, sdkmath.ZeroInt(), sdkmath.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(120), out.Amount)
	require.Equal(t, sdkmath.NewInt(100), out.Share)
}

func TestDepositBelowMinimumShareIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	before, err := env.ledger.BalanceOf(ctx, testMint, alice)
	require.NoError(t, err)
	out, err := env.engine.Deposit(ctx, Sign(alice), testBox, testMint, alice, alice, sdkmath.NewInt(999), sdkmath.ZeroInt())
	require.NoError(t, err)
	require.True(t, out.Amount.IsZero())
	require.True(t, out.Share.IsZero())
	after, err := env.ledger.BalanceOf(ctx, testMint, alice)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.True(t, env.total(t).Amount.Base.IsZero())
}

func TestDepositUnknownTokenFails(t *testing.T) {
	env := newTestEnv(t)
	ghost := types.Address("mint-ghost")
	require.NoError(t, env.engine.CreateVault(context.Background(), testBox, ghost))
	_, err := env.engine.Deposit(context.Background(), Sign(alice), testBox, ghost, alice, alice, sdkmath.NewInt(1000), sdkmath.ZeroInt())
	require.ErrorIs(t, err, ErrBentoBoxNoTokens)
}

func TestDepositSkim(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vaultAcct := types.VaultAuthority(testBox)

	_, err := env.engine.Deposit(ctx, Sign(alice), testBox, testMint, alice, alice, sdkmath.NewInt(100_000), sdkmath.ZeroInt())
	require.NoError(t, err)

	// Tokens sent straight to the vault account are unaccounted until a
	// skim deposit claims them.
	require.NoError(t, env.ledger.Transfer(ctx, testMint, bob, vaultAcct, sdkmath.NewInt(5000), bob))

	_, err = env.engine.Deposit(ctx, Sign(vaultAcct), testBox, testMint, vaultAcct, bob, sdkmath.NewInt(5001), sdkmath.ZeroInt())
	require.ErrorIs(t, err, ErrDepositSkimTooMuch)

	out, err := env.engine.Deposit(ctx, Sign(vaultAcct), testBox, testMint, vaultAcct, bob, sdkmath.NewInt(5000), sdkmath.ZeroInt())
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(5000), out.Amount)
	require.Equal(t, sdkmath.NewInt(5000), env.share(t, bob))
}

func TestWithdraw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.Deposit(ctx, Sign(alice), testBox, testMint, alice, alice, sdkmath.NewInt(100_000), sdkmath.ZeroInt())
	require.NoError(t, err)

	out, err := env.engine.Withdraw(ctx, Sign(alice), testBox, testMint, alice, bob, sdkmath.NewInt(40_000), sdkmath.ZeroInt())
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(40_000), out.Amount)
	require.Equal(t, sdkmath.NewInt(60_000), env.share(t, alice))

	_, err = env.engine.Withdraw(ctx, Sign(alice), testBox, testMint, alice, alice, sdkmath.ZeroInt(), sdkmath.NewInt(70_000))
	require.ErrorIs(t, err, ErrWithdrawAmountTooHigh)
}

func TestWithdrawCannotLeaveDust(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.Deposit(ctx, Sign(alice), testBox, testMint, alice, alice, sdkmath.NewInt(100_000), sdkmath.ZeroInt())
	require.NoError(t, err)

	// Leaving 500 shares would put the pool under the 1000 share floor.
	_, err = env.engine.Withdraw(ctx, Sign(alice), testBox, testMint, alice, alice, sdkmath.ZeroInt(), sdkmath.NewInt(99_500))
	require.ErrorIs(t, err, ErrWithdrawCannotEmpty)

	// Emptying the pool entirely is fine.
	out, err := env.engine.Withdraw(ctx, Sign(alice), testBox, testMint, alice, alice, sdkmath.ZeroInt(), sdkmath.NewInt(100_000))
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(100_000), out.Amount)
	require.True(t, env.total(t).Amount.Base.IsZero())
}

func TestTransferAndBatchTransfer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	carol := types.Address("carol")

	_, err := env.engine.Deposit(ctx, Sign(alice), testBox, testMint, alice, alice, sdkmath.NewInt(100_000), sdkmath.ZeroInt())
	require.NoError(t, err)

	require.NoError(t, env.engine.Transfer(ctx, Sign(alice), testBox, testMint, alice, bob, sdkmath.NewInt(10_000)))
	require.Equal(t, sdkmath.NewInt(10_000), env.share(t, bob))

	err = env.engine.Transfer(ctx, Sign(alice), testBox, testMint, alice, bob, sdkmath.NewInt(1_000_000))
	require.ErrorIs(t, err, ErrTransferAmountTooHigh)

	err = env.engine.BatchTransfer(ctx, Sign(alice), testBox, testMint, alice, nil, nil)
	require.ErrorIs(t, err, ErrEmptyTransferReceiversList)

	err = env.engine.BatchTransfer(ctx, Sign(alice), testBox, testMint, alice,
		[]types.Address{bob, carol}, []sdkmath.Int{sdkmath.NewInt(1)})
	require.ErrorIs(t, err, ErrMismatchSharesAndReceivers)

	require.NoError(t, env.engine.BatchTransfer(ctx, Sign(alice), testBox, testMint, alice,
		[]types.Address{bob, carol}, []sdkmath.Int{sdkmath.NewInt(2_000), sdkmath.NewInt(3_000)}))
	require.Equal(t, sdkmath.NewInt(12_000), env.share(t, bob))
	require.Equal(t, sdkmath.NewInt(3_000), env.share(t, carol))
	require.Equal(t, sdkmath.NewInt(85_000), env.share(t, alice))
}

func TestTransferRequiresAuthorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.Deposit(ctx, Sign(alice), testBox, testMint, alice, alice, sdkmath.NewInt(100_000), sdkmath.ZeroInt())
	require.NoError(t, err)

	err = env.engine.Transfer(ctx, Sign(bob), testBox, testMint, alice, bob, sdkmath.NewInt(1))
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestMasterContractDelegation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	master := types.Address("market-1")
	masterAuthority := types.CauldronAuthority(master)
	del := &Delegation{
		MasterContract: master,
		WhitelistID:    types.WhitelistAddress(testBox, master),
		ApprovalID:     types.ApprovalAddress(testBox, master, alice),
	}
	delegated := Auth{Signer: masterAuthority, Delegation: del}

	_, err := env.engine.Deposit(ctx, Sign(alice), testBox, testMint, alice, alice, sdkmath.NewInt(100_000), sdkmath.ZeroInt())
	require.NoError(t, err)

	// Not whitelisted yet.
	err = env.engine.Transfer(ctx, delegated, testBox, testMint, alice, masterAuthority, sdkmath.NewInt(1000))
	require.ErrorIs(t, err, ErrMasterContractNotWhitelisted)

	// Approval may only be recorded against a whitelisted master.
	err = env.engine.ApproveMasterContract(ctx, Sign(alice), testBox, master, true)
	require.ErrorIs(t, err, ErrMasterContractNotWhitelisted)

	require.NoError(t, env.engine.SetMasterContractWhitelist(ctx, Sign(testAdmin), testBox, master, true))

	// Whitelisted but not approved by alice.
	err = env.engine.Transfer(ctx, delegated, testBox, testMint, alice, masterAuthority, sdkmath.NewInt(1000))
	require.ErrorIs(t, err, ErrMasterContractNotApproved)

	require.NoError(t, env.engine.ApproveMasterContract(ctx, Sign(alice), testBox, master, true))

	// A signer other than the master's derived authority is rejected even
	// with a valid proof attached.
	err = env.engine.Transfer(ctx, Auth{Signer: bob, Delegation: del}, testBox, testMint, alice, masterAuthority, sdkmath.NewInt(1000))
	require.ErrorIs(t, err, ErrCauldronSignMismatch)

	// Proof records must be the derived ones for this vault and master.
	badDel := &Delegation{MasterContract: master, WhitelistID: types.Address("bogus"), ApprovalID: del.ApprovalID}
	err = env.engine.Transfer(ctx, Auth{Signer: masterAuthority, Delegation: badDel}, testBox, testMint, alice, masterAuthority, sdkmath.NewInt(1000))
	require.ErrorIs(t, err, ErrInvalidCauldronAccount)

	require.NoError(t, env.engine.Transfer(ctx, delegated, testBox, testMint, alice, masterAuthority, sdkmath.NewInt(1000)))
	require.Equal(t, sdkmath.NewInt(1000), env.share(t, masterAuthority))

	// Revocation is honored.
	require.NoError(t, env.engine.ApproveMasterContract(ctx, Sign(alice), testBox, master, false))
	err = env.engine.Transfer(ctx, delegated, testBox, testMint, alice, masterAuthority, sdkmath.NewInt(1000))
	require.ErrorIs(t, err, ErrMasterContractNotApproved)
}

func TestAuthorityHandover(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.engine.TransferAuthority(ctx, Sign(alice), testBox, bob, false, false)
	require.ErrorIs(t, err, ErrUnauthorized)

	err = env.engine.TransferAuthority(ctx, Sign(testAdmin), testBox, testAdmin, false, false)
	require.ErrorIs(t, err, ErrSameAuthority)

	err = env.engine.TransferAuthority(ctx, Sign(testAdmin), testBox, types.ZeroAddress, true, false)
	require.ErrorIs(t, err, ErrEmptyAuthorityAddress)

	require.NoError(t, env.engine.TransferAuthority(ctx, Sign(testAdmin), testBox, bob, false, false))

	err = env.engine.ClaimAuthority(ctx, Sign(alice), testBox)
	require.ErrorIs(t, err, ErrInvalidClaimAuthority)
	require.NoError(t, env.engine.ClaimAuthority(ctx, Sign(bob), testBox))

	err = env.engine.ClaimAuthority(ctx, Sign(bob), testBox)
	require.ErrorIs(t, err, ErrEmptyPendingAuthorityAddress)

	// bob is now the authority and renounces.
	require.NoError(t, env.engine.TransferAuthority(ctx, Sign(bob), testBox, alice, true, true))
	err = env.engine.TransferAuthority(ctx, Sign(alice), testBox, bob, true, false)
	require.ErrorIs(t, err, ErrAuthorityTransferRenounced)
}
