package bentobox

import (
	"context"
	"sync"

	"github.com/abraca-finance/bento/internal/types"
)

// MemStore is an in-memory Store. Transactions are serialized with a
// single mutex, which is enough for tests and the local runner.
type MemStore struct {
	mu         sync.Mutex
	bentoboxes map[types.Address]*BentoBox
	totals     map[[2]types.Address]*Total
	balances   map[[3]types.Address]*Balance
	strategies map[[2]types.Address]*StrategyData
	whitelists map[types.Address]*MasterContractWhitelisted
	approvals  map[types.Address]*MasterContractApproved
}

func NewMemStore() *MemStore {
	return &MemStore{
		bentoboxes: make(map[types.Address]*BentoBox),
		totals:     make(map[[2]types.Address]*Total),
		balances:   make(map[[3]types.Address]*Balance),
		strategies: make(map[[2]types.Address]*StrategyData),
		whitelists: make(map[types.Address]*MasterContractWhitelisted),
		approvals:  make(map[types.Address]*MasterContractApproved),
	}
}

func (s *MemStore) Begin(_ context.Context) (Tx, error) {
	s.mu.Lock()
	return &memTx{store: s}, nil
}

type memTx struct {
	store *MemStore
	done  bool

	bentoboxes map[types.Address]*BentoBox
	totals     map[[2]types.Address]*Total
	balances   map[[3]types.Address]*Balance
	strategies map[[2]types.Address]*StrategyData
	whitelists map[types.Address]*MasterContractWhitelisted
	approvals  map[types.Address]*MasterContractApproved
}

func cloneBentoBox(b *BentoBox) *BentoBox {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

func cloneTotal(t *Total) *Total {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneBalance(b *Balance) *Balance {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

func cloneStrategyData(s *StrategyData) *StrategyData {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func cloneWhitelist(w *MasterContractWhitelisted) *MasterContractWhitelisted {
	if w == nil {
		return nil
	}
	c := *w
	return &c
}

func cloneApproval(a *MasterContractApproved) *MasterContractApproved {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

func (tx *memTx) BentoBox(id types.Address) (*BentoBox, error) {
	if tx.bentoboxes != nil {
		if b, ok := tx.bentoboxes[id]; ok {
			return cloneBentoBox(b), nil
		}
	}
	return cloneBentoBox(tx.store.bentoboxes[id]), nil
}

func (tx *memTx) PutBentoBox(b *BentoBox) error {
	if tx.bentoboxes == nil {
		tx.bentoboxes = make(map[types.Address]*BentoBox)
	}
	tx.bentoboxes[b.ID] = cloneBentoBox(b)
	return nil
}

func (tx *memTx) Total(bentobox, mint types.Address) (*Total, error) {
	k := [2]types.Address{bentobox, mint}
	if tx.totals != nil {
		if t, ok := tx.totals[k]; ok {
			return cloneTotal(t), nil
		}
	}
	return cloneTotal(tx.store.totals[k]), nil
}

func (tx *memTx) PutTotal(t *Total) error {
	if tx.totals == nil {
		tx.totals = make(map[[2]types.Address]*Total)
	}
	tx.totals[[2]types.Address{t.BentoBox, t.Mint}] = cloneTotal(t)
	return nil
}

func (tx *memTx) Balance(bentobox, mint, owner types.Address) (*Balance, error) {
	k := [3]types.Address{bentobox, mint, owner}
	if tx.balances != nil {
		if b, ok := tx.balances[k]; ok {
			return cloneBalance(b), nil
		}
	}
	return cloneBalance(tx.store.balances[k]), nil
}

func (tx *memTx) PutBalance(b *Balance) error {
	if tx.balances == nil {
		tx.balances = make(map[[3]types.Address]*Balance)
	}
	tx.balances[[3]types.Address{b.BentoBox, b.Mint, b.Owner}] = cloneBalance(b)
	return nil
}

func (tx *memTx) StrategyData(bentobox, mint types.Address) (*StrategyData, error) {
	k := [2]types.Address{bentobox, mint}
	if tx.strategies != nil {
		if s, ok := tx.strategies[k]; ok {
			return cloneStrategyData(s), nil
		}
	}
	return cloneStrategyData(tx.store.strategies[k]), nil
}

func (tx *memTx) PutStrategyData(s *StrategyData) error {
	if tx.strategies == nil {
		tx.strategies = make(map[[2]types.Address]*StrategyData)
	}
	tx.strategies[[2]types.Address{s.BentoBox, s.Mint}] = cloneStrategyData(s)
	return nil
}

func (tx *memTx) Whitelist(id types.Address) (*MasterContractWhitelisted, error) {
	if tx.whitelists != nil {
		if w, ok := tx.whitelists[id]; ok {
			return cloneWhitelist(w), nil
		}
	}
	return cloneWhitelist(tx.store.whitelists[id]), nil
}

func (tx *memTx) PutWhitelist(w *MasterContractWhitelisted) error {
	if tx.whitelists == nil {
		tx.whitelists = make(map[types.Address]*MasterContractWhitelisted)
	}
	tx.whitelists[w.ID] = cloneWhitelist(w)
	return nil
}

func (tx *memTx) Approval(id types.Address) (*MasterContractApproved, error) {
	if tx.approvals != nil {
		if a, ok := tx.approvals[id]; ok {
			return cloneApproval(a), nil
		}
	}
	return cloneApproval(tx.store.approvals[id]), nil
}

func (tx *memTx) PutApproval(a *MasterContractApproved) error {
	if tx.approvals == nil {
		tx.approvals = make(map[types.Address]*MasterContractApproved)
	}
	tx.approvals[a.ID] = cloneApproval(a)
	return nil
}

func (tx *memTx) Commit() error {
	if tx.done {
		return nil
	}
	tx.done = true
	for k, v := range tx.bentoboxes {
		tx.store.bentoboxes[k] = v
	}
	for k, v := range tx.totals {
		tx.store.totals[k] = v
	}
	for k, v := range tx.balances {
		tx.store.balances[k] = v
	}
	for k, v := range tx.strategies {
		tx.store.strategies[k] = v
	}
	for k, v := range tx.whitelists {
		tx.store.whitelists[k] = v
	}
	for k, v := range tx.approvals {
		tx.store.approvals[k] = v
	}
	tx.store.mu.Unlock()
	return nil
}

func (tx *memTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.store.mu.Unlock()
	return nil
}
