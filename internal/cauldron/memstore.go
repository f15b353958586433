package cauldron

import (
	"context"
	"sync"

	"github.com/abraca-finance/bento/internal/bentobox"
	"github.com/abraca-finance/bento/internal/types"
)

// MemStore is an in-memory Store layered over a vault MemStore so that
// market and vault mutations share one transaction.
type MemStore struct {
	vault *bentobox.MemStore

	mu          sync.Mutex
	cauldrons   map[types.Address]*Cauldron
	totals      map[types.Address]*Total
	users       map[[2]types.Address]*UserBalance
	liquidators map[types.Address]*LiquidatorAccount
}

func NewMemStore(vault *bentobox.MemStore) *MemStore {
	return &MemStore{
		vault:       vault,
		cauldrons:   make(map[types.Address]*Cauldron),
		totals:      make(map[types.Address]*Total),
		users:       make(map[[2]types.Address]*UserBalance),
		liquidators: make(map[types.Address]*LiquidatorAccount),
	}
}

func (s *MemStore) Begin(ctx context.Context) (Tx, error) {
	vtx, err := s.vault.Begin(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &memTx{Tx: vtx, store: s}, nil
}

type memTx struct {
	bentobox.Tx
	store *MemStore
	done  bool

	cauldrons   map[types.Address]*Cauldron
	totals      map[types.Address]*Total
	users       map[[2]types.Address]*UserBalance
	liquidators map[types.Address]*LiquidatorAccount
	// deleted liquidator accounts, applied on commit
	tombstones map[types.Address]bool
}

func cloneCauldron(c *Cauldron) *Cauldron {
	if c == nil {
		return nil
	}
	cc := *c
	return &cc
}

func cloneTotal(t *Total) *Total {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneUser(u *UserBalance) *UserBalance {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func cloneLiquidator(l *LiquidatorAccount) *LiquidatorAccount {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

func (tx *memTx) Cauldron(id types.Address) (*Cauldron, error) {
	if tx.cauldrons != nil {
		if c, ok := tx.cauldrons[id]; ok {
			return cloneCauldron(c), nil
		}
	}
	return cloneCauldron(tx.store.cauldrons[id]), nil
}

func (tx *memTx) PutCauldron(c *Cauldron) error {
	if tx.cauldrons == nil {
		tx.cauldrons = make(map[types.Address]*Cauldron)
	}
	tx.cauldrons[c.ID] = cloneCauldron(c)
	return nil
}

func (tx *memTx) CauldronTotal(cauldron types.Address) (*Total, error) {
	if tx.totals != nil {
		if t, ok := tx.totals[cauldron]; ok {
			return cloneTotal(t), nil
		}
	}
	return cloneTotal(tx.store.totals[cauldron]), nil
}

func (tx *memTx) PutCauldronTotal(t *Total) error {
	if tx.totals == nil {
		tx.totals = make(map[types.Address]*Total)
	}
	tx.totals[t.Cauldron] = cloneTotal(t)
	return nil
}

func (tx *memTx) UserBalance(cauldron, owner types.Address) (*UserBalance, error) {
	k := [2]types.Address{cauldron, owner}
	if tx.users != nil {
		if u, ok := tx.users[k]; ok {
			return cloneUser(u), nil
		}
	}
	return cloneUser(tx.store.users[k]), nil
}

func (tx *memTx) PutUserBalance(u *UserBalance) error {
	if tx.users == nil {
		tx.users = make(map[[2]types.Address]*UserBalance)
	}
	tx.users[[2]types.Address{u.Cauldron, u.Owner}] = cloneUser(u)
	return nil
}

func (tx *memTx) LiquidatorAccount(id types.Address) (*LiquidatorAccount, error) {
	if tx.tombstones[id] {
		return nil, nil
	}
	if tx.liquidators != nil {
		if l, ok := tx.liquidators[id]; ok {
			return cloneLiquidator(l), nil
		}
	}
	return cloneLiquidator(tx.store.liquidators[id]), nil
}

func (tx *memTx) PutLiquidatorAccount(l *LiquidatorAccount) error {
	if tx.liquidators == nil {
		tx.liquidators = make(map[types.Address]*LiquidatorAccount)
	}
	delete(tx.tombstones, l.ID)
	tx.liquidators[l.ID] = cloneLiquidator(l)
	return nil
}

func (tx *memTx) DeleteLiquidatorAccount(id types.Address) error {
	if tx.tombstones == nil {
		tx.tombstones = make(map[types.Address]bool)
	}
	tx.tombstones[id] = true
	delete(tx.liquidators, id)
	return nil
}

func (tx *memTx) Commit() error {
	if tx.done {
		return nil
	}
	tx.done = true
	for k, v := range tx.cauldrons {
		tx.store.cauldrons[k] = v
	}
	for k, v := range tx.totals {
		tx.store.totals[k] = v
	}
	for k, v := range tx.users {
		tx.store.users[k] = v
	}
	for k, v := range tx.liquidators {
		tx.store.liquidators[k] = v
	}
	for k := range tx.tombstones {
		delete(tx.store.liquidators, k)
	}
	tx.store.mu.Unlock()
	return tx.Tx.Commit()
}

func (tx *memTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.store.mu.Unlock()
	return tx.Tx.Rollback()
}
