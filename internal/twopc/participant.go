// Package twopc implements the participant half of two-phase commit: the
// prepare_withdraw / prepare_deposit / commit_* / abort_* handlers every
// branch exposes so a remote coordinator can drive an inter-branch transfer
// through it.
//
// A small per-role type wrapping the branch's lock, deciding only for
// itself rather than aggregating votes from other participants.
package twopc

import (
	"fmt"

	"bankfed/internal/config"
	"bankfed/internal/journal"
	"bankfed/internal/ledger"
	"bankfed/internal/store"
	"bankfed/internal/wire"
)

// Participant answers 2PC messages against one branch's ledger.
type Participant struct {
	branch *ledger.Branch
	log    *journal.Journal
}

// New builds a Participant bound to branch. log may be nil (no audit trail).
func New(branch *ledger.Branch, log *journal.Journal) *Participant {
	return &Participant{branch: branch, log: log}
}

func (p *Participant) record(event, txid string) {
	if p.log == nil {
		return
	}
	p.log.Append(event, txid)
}

// PrepareWithdraw verifies the account exists and balance >= amount, then
// journals a withdraw-typed pending row without touching the balance; the
// balance change happens only at commit. The vote is implicit in the
// returned error: nil means yes.
func (p *Participant) PrepareWithdraw(txid, accountNo string, amount float64) error {
	if txid == "" || accountNo == "" {
		return fmt.Errorf("missing txid/account_no")
	}
	b := p.branch
	b.Lock()
	defer b.Unlock()
	acct, err := b.Store().GetAccount(accountNo)
	if err != nil {
		return err
	}
	if acct == nil || acct.Balance < amount {
		return fmt.Errorf("insufficient funds or account not found")
	}
	if err := b.Store().UpsertPendingTx(store.PendingTx{
		TxID: txid, AccountNo: accountNo, Amount: amount, Type: store.TypeWithdraw,
	}); err != nil {
		return err
	}
	config.Debugf("branch %s: TXN%s prepared withdraw of %v on %s", b.Name, txid, amount, accountNo)
	p.record("prepare_withdraw", txid)
	return nil
}

// PrepareDeposit verifies the destination account exists, then journals a
// deposit-typed pending row.
func (p *Participant) PrepareDeposit(txid, accountNo string, amount float64) error {
	if txid == "" || accountNo == "" {
		return fmt.Errorf("missing txid/account_no")
	}
	b := p.branch
	b.Lock()
	defer b.Unlock()
	acct, err := b.Store().GetAccount(accountNo)
	if err != nil {
		return err
	}
	if acct == nil {
		return fmt.Errorf("destination account not found")
	}
	if err := b.Store().UpsertPendingTx(store.PendingTx{
		TxID: txid, AccountNo: accountNo, Amount: amount, Type: store.TypeDeposit,
	}); err != nil {
		return err
	}
	config.Debugf("branch %s: TXN%s prepared deposit of %v on %s", b.Name, txid, amount, accountNo)
	p.record("prepare_deposit", txid)
	return nil
}

// CommitWithdraw re-checks sufficiency and debits the account, deleting the
// pending row either way. Commit can still fail after a yes vote under the
// narrow race where the account balance drained between prepare and commit.
func (p *Participant) CommitWithdraw(txid string) error {
	if txid == "" {
		return fmt.Errorf("missing txid")
	}
	b := p.branch
	b.Lock()
	pending, err := b.Store().GetPendingTx(txid, store.TypeWithdraw)
	if err != nil {
		b.Unlock()
		return err
	}
	if pending == nil {
		b.Unlock()
		return fmt.Errorf("no such tx")
	}
	acct, err := b.Store().GetAccount(pending.AccountNo)
	if err != nil {
		b.Unlock()
		return err
	}
	if acct == nil {
		_ = b.Store().DeletePendingTx(txid)
		b.Unlock()
		return fmt.Errorf("account not found")
	}
	if acct.Balance < pending.Amount {
		_ = b.Store().DeletePendingTx(txid)
		b.Unlock()
		return fmt.Errorf("insufficient funds at commit")
	}
	newBal := acct.Balance - pending.Amount
	if err := b.Store().UpdateBalance(pending.AccountNo, newBal); err != nil {
		b.Unlock()
		return err
	}
	if err := b.Store().DeletePendingTx(txid); err != nil {
		b.Unlock()
		return err
	}
	b.Unlock()
	config.Debugf("branch %s: TXN%s committed withdraw of %v on %s", b.Name, txid, pending.Amount, pending.AccountNo)
	p.record("commit_withdraw", txid)
	b.Replicate(wire.ActionWithdraw, map[string]interface{}{
		"account_no": pending.AccountNo, "amount": pending.Amount,
	})
	return nil
}

// CommitDeposit re-checks the account still exists and credits it, deleting
// the pending row either way.
func (p *Participant) CommitDeposit(txid string) error {
	if txid == "" {
		return fmt.Errorf("missing txid")
	}
	b := p.branch
	b.Lock()
	pending, err := b.Store().GetPendingTx(txid, store.TypeDeposit)
	if err != nil {
		b.Unlock()
		return err
	}
	if pending == nil {
		b.Unlock()
		return fmt.Errorf("no such tx")
	}
	acct, err := b.Store().GetAccount(pending.AccountNo)
	if err != nil {
		b.Unlock()
		return err
	}
	if acct == nil {
		_ = b.Store().DeletePendingTx(txid)
		b.Unlock()
		return fmt.Errorf("account not found")
	}
	newBal := acct.Balance + pending.Amount
	if err := b.Store().UpdateBalance(pending.AccountNo, newBal); err != nil {
		b.Unlock()
		return err
	}
	if err := b.Store().DeletePendingTx(txid); err != nil {
		b.Unlock()
		return err
	}
	b.Unlock()
	config.Debugf("branch %s: TXN%s committed deposit of %v on %s", b.Name, txid, pending.Amount, pending.AccountNo)
	p.record("commit_deposit", txid)
	b.Replicate(wire.ActionDeposit, map[string]interface{}{
		"account_no": pending.AccountNo, "amount": pending.Amount,
	})
	return nil
}

// AbortWithdraw deletes the withdraw-typed pending row if present. Always
// succeeds — abort is idempotent.
func (p *Participant) AbortWithdraw(txid string) error {
	return p.abort(txid, store.TypeWithdraw)
}

// AbortDeposit deletes the deposit-typed pending row if present.
func (p *Participant) AbortDeposit(txid string) error {
	return p.abort(txid, store.TypeDeposit)
}

func (p *Participant) abort(txid, typ string) error {
	if txid == "" {
		return fmt.Errorf("missing txid")
	}
	b := p.branch
	b.Lock()
	err := b.Store().DeletePendingTxTyped(txid, typ)
	b.Unlock()
	if err != nil {
		return err
	}
	config.Debugf("branch %s: TXN%s aborted %s", b.Name, txid, typ)
	p.record("abort_"+typ, txid)
	return nil
}
