package bentobox

import (
	"context"
	"sync"
	"time"

	"cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/abraca-finance/bento/internal/logger"
	"github.com/abraca-finance/bento/internal/strategy"
	"github.com/abraca-finance/bento/internal/token"
	"github.com/abraca-finance/bento/internal/types"
)

// Default vault parameters applied by Create when the caller passes zero
// values.
const (
	DefaultStrategyDelay       = int64(1209600) // two weeks
	DefaultMaxTargetPercentage = uint8(95)
)

var DefaultMinimumShareBalance = sdkmath.NewInt(1000)

// Engine executes vault operations against a Store and a token Ledger.
// It holds no record state itself; a single Engine serves any number of
// vaults.
type Engine struct {
	store  Store
	ledger token.Ledger
	now    func() int64
	log    zerolog.Logger

	mu         sync.RWMutex
	strategies map[types.Address]strategy.Strategy
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the unix-time source, used by tests to control
// strategy delays.
func WithClock(now func() int64) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Store, ledger token.Ledger, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		ledger:     ledger,
		now:        func() int64 { return time.Now().Unix() },
		log:        logger.GetForComponent("bentobox"),
		strategies: make(map[types.Address]strategy.Strategy),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ledger exposes the token backend, used by markets built on the vault.
func (e *Engine) Ledger() token.Ledger { return e.ledger }

// Now returns the engine's current unix time.
func (e *Engine) Now() int64 { return e.now() }

// Begin opens a store transaction. Market engines compose their own
// transactions around this.
func (e *Engine) Begin(ctx context.Context) (Tx, error) { return e.store.Begin(ctx) }

// RegisterStrategy makes a strategy resolvable by its address. SetStrategy
// and the harvest operations only accept registered strategies.
func (e *Engine) RegisterStrategy(s strategy.Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[s.ID()] = s
}

func (e *Engine) strategyByID(id types.Address) (strategy.Strategy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.strategies[id]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidStrategyAccount, "strategy %s not registered", id)
	}
	return s, nil
}

// CreateParams are the tunables for a new vault. Zero values fall back to
// the defaults.
type CreateParams struct {
	StrategyDelay       int64
	MinimumShareBalance sdkmath.Int
	MaxTargetPercentage uint8
}

// Create initializes a vault record under id, owned by authority.
func (e *Engine) Create(ctx context.Context, id, authority types.Address, params CreateParams) error {
	if authority.IsZero() {
		return ErrEmptyAuthorityAddress
	}
	if params.StrategyDelay == 0 {
		params.StrategyDelay = DefaultStrategyDelay
	}
	if params.MinimumShareBalance.IsNil() || params.MinimumShareBalance.IsZero() {
		params.MinimumShareBalance = DefaultMinimumShareBalance
	}
	if params.MaxTargetPercentage == 0 {
		params.MaxTargetPercentage = DefaultMaxTargetPercentage
	}
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if existing, err := tx.BentoBox(id); err != nil {
		return err
	} else if existing != nil {
		return errors.Wrapf(ErrUnauthorized, "bentobox %s already exists", id)
	}
	if err := tx.PutBentoBox(&BentoBox{
		ID:                  id,
		Authority:           authority,
		StrategyDelay:       params.StrategyDelay,
		MinimumShareBalance: params.MinimumShareBalance,
		MaxTargetPercentage: params.MaxTargetPercentage,
	}); err != nil {
		return err
	}
	e.log.Info().Str("bentobox", string(id)).Str("authority", string(authority)).Msg("vault created")
	return tx.Commit()
}

// requireBentoBox loads the vault or fails.
func requireBentoBox(tx Tx, id types.Address) (*BentoBox, error) {
	b, err := tx.BentoBox(id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errors.Wrapf(ErrNotFound, "bentobox %s", id)
	}
	return b, nil
}

func requireAuthority(tx Tx, id types.Address, auth Auth) (*BentoBox, error) {
	b, err := requireBentoBox(tx, id)
	if err != nil {
		return nil, err
	}
	if auth.Signer != b.Authority {
		return nil, errors.Wrapf(ErrUnauthorized, "signer %s is not vault authority", auth.Signer)
	}
	return b, nil
}

// allowed validates that auth may move funds belonging to principal: the
// principal signed directly, or an approved whitelisted master contract's
// authority signed with a delegation proof.
func allowed(tx Tx, id types.Address, auth Auth, principal types.Address) error {
	if auth.Signer == principal {
		return nil
	}
	del := auth.Delegation
	if del == nil {
		return errors.Wrapf(ErrUnauthorized, "signer %s may not act for %s", auth.Signer, principal)
	}
	if auth.Signer != types.CauldronAuthority(del.MasterContract) {
		return errors.Wrapf(ErrCauldronSignMismatch, "signer %s", auth.Signer)
	}
	if del.WhitelistID != types.WhitelistAddress(id, del.MasterContract) {
		return errors.Wrapf(ErrInvalidCauldronAccount, "whitelist %s", del.WhitelistID)
	}
	if del.ApprovalID != types.ApprovalAddress(id, del.MasterContract, principal) {
		return errors.Wrapf(ErrInvalidCauldronAccount, "approval %s", del.ApprovalID)
	}
	wl, err := tx.Whitelist(del.WhitelistID)
	if err != nil {
		return err
	}
	if wl == nil || !wl.Whitelisted {
		return errors.Wrapf(ErrMasterContractNotWhitelisted, "master contract %s", del.MasterContract)
	}
	ap, err := tx.Approval(del.ApprovalID)
	if err != nil {
		return err
	}
	if ap == nil || !ap.Approved {
		return errors.Wrapf(ErrMasterContractNotApproved, "master contract %s, owner %s", del.MasterContract, principal)
	}
	return nil
}

// SetStrategyDelay updates the activation delay for queued strategies.
func (e *Engine) SetStrategyDelay(ctx context.Context, auth Auth, id types.Address, delay int64) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	b, err := requireAuthority(tx, id, auth)
	if err != nil {
		return err
	}
	b.StrategyDelay = delay
	if err := tx.PutBentoBox(b); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateVault initializes the share pool for a token.
func (e *Engine) CreateVault(ctx context.Context, id, mint types.Address) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := requireBentoBox(tx, id); err != nil {
		return err
	}
	t, err := tx.Total(id, mint)
	if err != nil {
		return err
	}
	if t != nil {
		return tx.Commit()
	}
	if err := tx.PutTotal(newTotal(id, mint)); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateBalance initializes owner's share balance record for a token.
func (e *Engine) CreateBalance(ctx context.Context, id, mint, owner types.Address) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := requireBentoBox(tx, id); err != nil {
		return err
	}
	bal, err := tx.Balance(id, mint, owner)
	if err != nil {
		return err
	}
	if bal != nil {
		return tx.Commit()
	}
	if err := tx.PutBalance(newBalance(id, mint, owner)); err != nil {
		return err
	}
	return tx.Commit()
}
