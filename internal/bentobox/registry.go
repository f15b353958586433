package bentobox

import (
	"context"

	"cosmossdk.io/errors"

	"github.com/abraca-finance/bento/internal/types"
)

// SetMasterContractWhitelist creates or updates the whitelist record for a
// master contract. Vault authority only.
func (e *Engine) SetMasterContractWhitelist(ctx context.Context, auth Auth, id, masterContract types.Address, whitelisted bool) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := requireAuthority(tx, id, auth); err != nil {
		return err
	}
	if err := tx.PutWhitelist(&MasterContractWhitelisted{
		ID:             types.WhitelistAddress(id, masterContract),
		BentoBox:       id,
		MasterContract: masterContract,
		Whitelisted:    whitelisted,
	}); err != nil {
		return err
	}
	e.log.Info().
		Str("bentobox", string(id)).
		Str("master_contract", string(masterContract)).
		Bool("whitelisted", whitelisted).
		Msg("master contract whitelist updated")
	return tx.Commit()
}

// ApproveMasterContract records the signer's grant (or revocation) to a
// whitelisted master contract.
func (e *Engine) ApproveMasterContract(ctx context.Context, auth Auth, id, masterContract types.Address, approved bool) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := requireBentoBox(tx, id); err != nil {
		return err
	}
	if err := putApproval(tx, id, masterContract, auth.Signer, approved); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateAuthorityApproval lets the vault authority record an approval on
// behalf of owner, used to bootstrap markets.
func (e *Engine) CreateAuthorityApproval(ctx context.Context, auth Auth, id, masterContract, owner types.Address, approved bool) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := requireAuthority(tx, id, auth); err != nil {
		return err
	}
	if err := putApproval(tx, id, masterContract, owner, approved); err != nil {
		return err
	}
	return tx.Commit()
}

func putApproval(tx Tx, id, masterContract, owner types.Address, approved bool) error {
	wl, err := tx.Whitelist(types.WhitelistAddress(id, masterContract))
	if err != nil {
		return err
	}
	if wl == nil || !wl.Whitelisted {
		return errors.Wrapf(ErrMasterContractNotWhitelisted, "master contract %s", masterContract)
	}
	return tx.PutApproval(&MasterContractApproved{
		ID:             types.ApprovalAddress(id, masterContract, owner),
		BentoBox:       id,
		MasterContract: masterContract,
		Owner:          owner,
		Approved:       approved,
	})
}

// TransferAuthority hands the vault over. With direct set the change is
// immediate; otherwise newAuthority must claim it. Renounce permanently
// disables further transfers and allows an empty newAuthority.
func (e *Engine) TransferAuthority(ctx context.Context, auth Auth, id, newAuthority types.Address, direct, renounce bool) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	b, err := requireAuthority(tx, id, auth)
	if err != nil {
		return err
	}
	if b.Renounced {
		return ErrAuthorityTransferRenounced
	}
	if newAuthority == b.Authority {
		return ErrSameAuthority
	}
	if newAuthority.IsZero() && !renounce {
		return ErrEmptyAuthorityAddress
	}
	if direct {
		b.Authority = newAuthority
		b.PendingAuthority = types.ZeroAddress
		b.Renounced = renounce
	} else {
		b.PendingAuthority = newAuthority
	}
	if err := tx.PutBentoBox(b); err != nil {
		return err
	}
	e.log.Info().
		Str("bentobox", string(id)).
		Str("new_authority", string(newAuthority)).
		Bool("direct", direct).
		Msg("authority transfer")
	return tx.Commit()
}

// ClaimAuthority completes a two-step handover. Only the pending authority
// may claim.
func (e *Engine) ClaimAuthority(ctx context.Context, auth Auth, id types.Address) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	b, err := requireBentoBox(tx, id)
	if err != nil {
		return err
	}
	if b.PendingAuthority.IsZero() {
		return ErrEmptyPendingAuthorityAddress
	}
	if auth.Signer != b.PendingAuthority {
		return errors.Wrapf(ErrInvalidClaimAuthority, "signer %s", auth.Signer)
	}
	b.Authority = b.PendingAuthority
	b.PendingAuthority = types.ZeroAddress
	if err := tx.PutBentoBox(b); err != nil {
		return err
	}
	return tx.Commit()
}
