package cauldron

import (
	"context"
	"sync"
	"time"

	"cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/abraca-finance/bento/internal/bentobox"
	"github.com/abraca-finance/bento/internal/logger"
	"github.com/abraca-finance/bento/internal/oracle"
	"github.com/abraca-finance/bento/internal/rebase"
	"github.com/abraca-finance/bento/internal/swapper"
	"github.com/abraca-finance/bento/internal/types"
)

// Default market parameters applied by Initialize when the caller passes
// zero values.
var (
	DefaultCollaterizationRate   = sdkmath.NewInt(75_000)  // 75%
	DefaultLiquidationMultiplier = sdkmath.NewInt(105_000) // 5% bonus
	DefaultBorrowOpeningFee      = sdkmath.NewInt(50)      // 0.05%
)

const (
	DefaultStaleAfterSlots     = uint64(250)
	DefaultLiquidationDeadline = int64(600)
)

// Engine executes market operations. Vault legs go through the vault
// engine inside the market's own transaction, so both ledgers move
// atomically.
type Engine struct {
	vault *bentobox.Engine
	store Store
	now   func() int64
	slot  func() uint64
	log   zerolog.Logger

	mu       sync.RWMutex
	feeds    map[types.Address]oracle.Feed
	swappers map[types.Address]swapper.Swapper
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the unix-time source.
func WithClock(now func() int64) Option {
	return func(e *Engine) { e.now = now }
}

// WithSlotSource overrides the chain slot source used for oracle
// staleness checks.
func WithSlotSource(slot func() uint64) Option {
	return func(e *Engine) { e.slot = slot }
}

func NewEngine(vault *bentobox.Engine, store Store, opts ...Option) *Engine {
	e := &Engine{
		vault:    vault,
		store:    store,
		now:      func() int64 { return time.Now().Unix() },
		slot:     func() uint64 { return 0 },
		log:      logger.GetForComponent("cauldron"),
		feeds:    make(map[types.Address]oracle.Feed),
		swappers: make(map[types.Address]swapper.Swapper),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterFeed makes an oracle feed resolvable by its address.
func (e *Engine) RegisterFeed(f oracle.Feed) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.feeds[f.ID()] = f
}

// RegisterSwapper makes a swapper resolvable by its address.
func (e *Engine) RegisterSwapper(s swapper.Swapper) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.swappers[s.ID()] = s
}

func (e *Engine) feedByID(id types.Address) (oracle.Feed, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.feeds[id]
	if !ok {
		return nil, errors.Wrapf(ErrIncompatibleSwitchboardDataFeed, "feed %s not registered", id)
	}
	return f, nil
}

func (e *Engine) swapperByID(id types.Address) (swapper.Swapper, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.swappers[id]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidSwapper, "swapper %s not registered", id)
	}
	return s, nil
}

// InitParams describe a new market. Zero-valued risk parameters fall back
// to the defaults.
type InitParams struct {
	ID             types.Address
	Authority      types.Address
	BentoBox       types.Address
	CollateralMint types.Address
	AssetMint      types.Address
	OracleFeed     types.Address
	FeeTo          types.Address

	CollaterizationRate   sdkmath.Int
	LiquidationMultiplier sdkmath.Int
	BorrowOpeningFee      sdkmath.Int
	InterestPerSecond     sdkmath.Int

	BorrowLimitTotal      sdkmath.Int
	BorrowLimitPerAddress sdkmath.Int
	StaleAfterSlots       uint64
	LiquidationDeadline   int64
}

func orDefault(v, def sdkmath.Int) sdkmath.Int {
	if v.IsNil() || v.IsZero() {
		return def
	}
	return v
}

// Initialize creates the market record and its vault-side accounts: share
// pools for both tokens and the market authority's balances.
func (e *Engine) Initialize(ctx context.Context, p InitParams) error {
	if p.Authority.IsZero() {
		return errors.Wrap(ErrUnauthorized, "authority required")
	}
	if err := e.vault.CreateVault(ctx, p.BentoBox, p.CollateralMint); err != nil {
		return err
	}
	if err := e.vault.CreateVault(ctx, p.BentoBox, p.AssetMint); err != nil {
		return err
	}
	authority := types.CauldronAuthority(p.ID)
	if err := e.vault.CreateBalance(ctx, p.BentoBox, p.CollateralMint, authority); err != nil {
		return err
	}
	if err := e.vault.CreateBalance(ctx, p.BentoBox, p.AssetMint, authority); err != nil {
		return err
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if existing, err := tx.Cauldron(p.ID); err != nil {
		return err
	} else if existing != nil {
		return errors.Wrapf(ErrUnauthorized, "cauldron %s already exists", p.ID)
	}
	staleAfter := p.StaleAfterSlots
	if staleAfter == 0 {
		staleAfter = DefaultStaleAfterSlots
	}
	deadline := p.LiquidationDeadline
	if deadline == 0 {
		deadline = DefaultLiquidationDeadline
	}
	c := &Cauldron{
		ID:             p.ID,
		Authority:      p.Authority,
		BentoBox:       p.BentoBox,
		CollateralMint: p.CollateralMint,
		AssetMint:      p.AssetMint,
		OracleFeed:     p.OracleFeed,
		FeeTo:          p.FeeTo,
		Constants: Constants{
			CollaterizationRate:   orDefault(p.CollaterizationRate, DefaultCollaterizationRate),
			LiquidationMultiplier: orDefault(p.LiquidationMultiplier, DefaultLiquidationMultiplier),
			BorrowOpeningFee:      orDefault(p.BorrowOpeningFee, DefaultBorrowOpeningFee),
			InterestPerSecond:     orDefault(p.InterestPerSecond, OnePercentRate),
		},
		Accrue: AccrueInfo{LastAccrued: e.now(), FeesEarned: sdkmath.ZeroInt()},
		Limit: BorrowLimit{
			Total:      orDefault(p.BorrowLimitTotal, sdkmath.ZeroInt()),
			PerAddress: orDefault(p.BorrowLimitPerAddress, sdkmath.ZeroInt()),
		},
		LastInterestUpdate:  e.now(),
		StaleAfterSlots:     staleAfter,
		LiquidationDeadline: deadline,
	}
	if err := tx.PutCauldron(c); err != nil {
		return err
	}
	if err := tx.PutCauldronTotal(&Total{
		Cauldron:        p.ID,
		CollateralShare: sdkmath.ZeroInt(),
		Borrow:          rebase.New(),
	}); err != nil {
		return err
	}
	e.log.Info().
		Str("cauldron", string(p.ID)).
		Str("collateral", string(p.CollateralMint)).
		Str("asset", string(p.AssetMint)).
		Msg("market initialized")
	return tx.Commit()
}

func requireCauldron(tx Tx, id types.Address) (*Cauldron, error) {
	c, err := tx.Cauldron(id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.Wrapf(ErrNotFound, "cauldron %s", id)
	}
	return c, nil
}

func requireCauldronTotal(tx Tx, id types.Address) (*Total, error) {
	t, err := tx.CauldronTotal(id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.Wrapf(ErrNotFound, "totals for cauldron %s", id)
	}
	return t, nil
}

func getOrNewUserBalance(tx Tx, id, owner types.Address) (*UserBalance, error) {
	u, err := tx.UserBalance(id, owner)
	if err != nil {
		return nil, err
	}
	if u == nil {
		u = &UserBalance{
			Cauldron:        id,
			Owner:           owner,
			CollateralShare: sdkmath.ZeroInt(),
			BorrowPart:      sdkmath.ZeroInt(),
		}
	}
	return u, nil
}

// CreateUserBalance initializes owner's position record.
func (e *Engine) CreateUserBalance(ctx context.Context, id, owner types.Address) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := requireCauldron(tx, id); err != nil {
		return err
	}
	u, err := getOrNewUserBalance(tx, id, owner)
	if err != nil {
		return err
	}
	if err := tx.PutUserBalance(u); err != nil {
		return err
	}
	return tx.Commit()
}

// delegation builds the proof the market presents to the vault when it
// moves a user's shares.
func delegation(c *Cauldron, principal types.Address) bentobox.Auth {
	return bentobox.Auth{
		Signer: types.CauldronAuthority(c.ID),
		Delegation: &bentobox.Delegation{
			MasterContract: c.ID,
			WhitelistID:    types.WhitelistAddress(c.BentoBox, c.ID),
			ApprovalID:     types.ApprovalAddress(c.BentoBox, c.ID, principal),
		},
	}
}

// selfAuth signs as the market's own vault identity.
func selfAuth(c *Cauldron) bentobox.Auth {
	return bentobox.Sign(types.CauldronAuthority(c.ID))
}

// ApproveToCauldron records the signer's vault-level grant to this market.
// The market must already be whitelisted on the vault.
func (e *Engine) ApproveToCauldron(ctx context.Context, auth bentobox.Auth, id types.Address, approved bool) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	c, err := requireCauldron(tx, id)
	if err != nil {
		return err
	}
	bentoBox := c.BentoBox
	if err := tx.Commit(); err != nil {
		return err
	}
	return e.vault.ApproveMasterContract(ctx, auth, bentoBox, id, approved)
}

// accrue folds elapsed interest into the debt rebase and the fee
// accumulator. Idempotent within a second.
func (e *Engine) accrue(c *Cauldron, t *Total) {
	elapsed := e.now() - c.Accrue.LastAccrued
	if elapsed <= 0 {
		return
	}
	c.Accrue.LastAccrued = e.now()
	if t.Borrow.Base.IsZero() {
		return
	}
	interest := t.Borrow.Elastic.
		Mul(c.Constants.InterestPerSecond).
		MulRaw(elapsed).
		Quo(RateScale)
	t.Borrow.Elastic = t.Borrow.Elastic.Add(interest)
	c.Accrue.FeesEarned = c.Accrue.FeesEarned.Add(interest)
}

// Accrue realizes pending interest outside of any other operation.
func (e *Engine) Accrue(ctx context.Context, id types.Address) error {
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
	if err := tx.PutCauldron(c); err != nil {
		return err
	}
	if err := tx.PutCauldronTotal(t); err != nil {
		return err
	}
	return tx.Commit()
}

// SwitchboardPrice reads the market's feed, rejecting mismatched feeds and
// results older than the staleness window.
func (e *Engine) SwitchboardPrice(ctx context.Context, id types.Address) (oracle.Price, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return oracle.Price{}, err
	}
	c, err := requireCauldron(tx, id)
	if rerr := tx.Rollback(); rerr != nil {
		return oracle.Price{}, rerr
	}
	if err != nil {
		return oracle.Price{}, err
	}
	return e.price(ctx, c)
}

func (e *Engine) price(ctx context.Context, c *Cauldron) (oracle.Price, error) {
	feed, err := e.feedByID(c.OracleFeed)
	if err != nil {
		return oracle.Price{}, err
	}
	if feed.ID() != c.OracleFeed {
		return oracle.Price{}, errors.Wrapf(ErrIncompatibleSwitchboardDataFeed, "feed %s", feed.ID())
	}
	p, err := feed.Result(ctx)
	if err != nil {
		return oracle.Price{}, err
	}
	current := e.slot()
	if current > p.Slot && current-p.Slot > c.StaleAfterSlots {
		return oracle.Price{}, errors.Wrapf(ErrStaleSwitchboardPrice, "result slot %d, current %d", p.Slot, current)
	}
	return p, nil
}

// IsValidPrice reports whether the market's feed currently serves a usable
// price.
func (e *Engine) IsValidPrice(ctx context.Context, id types.Address) bool {
	_, err := e.SwitchboardPrice(ctx, id)
	return err == nil
}

func intFromDecimal(d decimal.Decimal) sdkmath.Int {
	return sdkmath.NewIntFromBigInt(d.BigInt())
}

// isSolvent checks the position against the collateralization rate at the
// given price. Debt-free positions are always solvent; positions with debt
// and no collateral never are.
func isSolvent(tx Tx, c *Cauldron, t *Total, u *UserBalance, price oracle.Price) (bool, error) {
	if u.BorrowPart.IsZero() {
		return true, nil
	}
	if u.CollateralShare.IsZero() {
		return false, nil
	}
	bentoColl, err := tx.Total(c.BentoBox, c.CollateralMint)
	if err != nil {
		return false, err
	}
	if bentoColl == nil {
		return false, errors.Wrapf(ErrNotFound, "vault total for %s", c.CollateralMint)
	}
	mantissa, scale := price.Mantissa()
	pow := sdkmath.NewIntWithDecimal(1, int(scale))

	weighted := u.CollateralShare.
		Mul(pow).
		Mul(c.Constants.CollaterizationRate).
		Quo(CollaterizationRatePrecision)
	collateralValue := bentoColl.Amount.ToElastic(weighted, false)

	debtValue := u.BorrowPart.
		Mul(t.Borrow.Elastic).
		Mul(intFromDecimal(mantissa)).
		Quo(t.Borrow.Base)

	return collateralValue.GTE(debtValue), nil
}
