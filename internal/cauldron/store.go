package cauldron

import (
	"context"

	"github.com/abraca-finance/bento/internal/bentobox"
	"github.com/abraca-finance/bento/internal/types"
)

// Store provides transactional access to market records. A market
// transaction spans the vault's records too, so a borrow and its share
// transfer commit or roll back together.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx extends a vault transaction with market records. Reads return nil
// without error when the record does not exist.
type Tx interface {
	bentobox.Tx

	Cauldron(id types.Address) (*Cauldron, error)
	PutCauldron(c *Cauldron) error

	CauldronTotal(cauldron types.Address) (*Total, error)
	PutCauldronTotal(t *Total) error

	UserBalance(cauldron, owner types.Address) (*UserBalance, error)
	PutUserBalance(u *UserBalance) error

	LiquidatorAccount(id types.Address) (*LiquidatorAccount, error)
	PutLiquidatorAccount(l *LiquidatorAccount) error
	DeleteLiquidatorAccount(id types.Address) error
}
