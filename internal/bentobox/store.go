package bentobox

import (
	"context"

	"github.com/abraca-finance/bento/internal/types"
)

// Store provides transactional access to vault records.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a unit of work over vault records. Reads return nil without error
// when the record does not exist. Writes are visible to later reads in the
// same Tx and durable only after Commit. Rollback after Commit is a no-op,
// so `defer tx.Rollback()` is the standard pattern.
type Tx interface {
	BentoBox(id types.Address) (*BentoBox, error)
	PutBentoBox(b *BentoBox) error

	Total(bentobox, mint types.Address) (*Total, error)
	PutTotal(t *Total) error

	Balance(bentobox, mint, owner types.Address) (*Balance, error)
	PutBalance(b *Balance) error

	StrategyData(bentobox, mint types.Address) (*StrategyData, error)
	PutStrategyData(s *StrategyData) error

	Whitelist(id types.Address) (*MasterContractWhitelisted, error)
	PutWhitelist(w *MasterContractWhitelisted) error

	Approval(id types.Address) (*MasterContractApproved, error)
	PutApproval(a *MasterContractApproved) error

	Commit() error
	Rollback() error
}
