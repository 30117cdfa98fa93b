// Package coordinator drives an inter-branch transfer as the two-phase
// commit coordinator: the source branch always plays this role, the
// destination branch is the sole remote participant.
//
// Four-step ordering and compensation logic (prepare local, prepare remote,
// commit local, commit remote — a failure at step 4, after step 3 has
// committed the local debit, leaves the source debited and the destination
// not credited, a known accepted defect), following a
// coordinator type that owns a txn's lifecycle; a synchronous two-party
// call chain rather than an async N-participant broadcast-and-collect-ACKs
// protocol, since a transfer has exactly one remote participant.
package coordinator

import (
	"fmt"
	"math/rand"
	"time"

	"bankfed/internal/config"
	"bankfed/internal/journal"
	"bankfed/internal/ledger"
	"bankfed/internal/twopc"
	"bankfed/internal/wire"
)

// Coordinator is bound to the branch acting as transfer source.
type Coordinator struct {
	branch      *ledger.Branch
	participant *twopc.Participant
	log         *journal.Journal
}

// New builds a Coordinator over branch's own participant logic.
func New(branch *ledger.Branch, participant *twopc.Participant, log *journal.Journal) *Coordinator {
	return &Coordinator{branch: branch, participant: participant, log: log}
}

// Result is the transfer_complete payload returned on success.
type Result struct {
	TxID   string
	Amount float64
	From   string
	To     string
}

func (c *Coordinator) record(event, txid string) {
	if c.log == nil {
		return
	}
	c.log.Append(event, txid)
}

func newTxID(branchName string) string {
	return fmt.Sprintf("%s-%d-%04d", branchName, time.Now().UnixMilli(), rand.Intn(9000)+1000)
}

// Transfer runs the four-step inter-branch protocol:
//  1. prepare local withdraw
//  2. prepare remote deposit
//  3. commit local withdraw
//  4. commit remote deposit
//
// Any failure at step 1 or 2 aborts cleanly with no side effect; failure at
// step 3 best-effort aborts the remote prepare; failure at step 4 is
// reported as an error but the local debit has already committed — an
// accepted inconsistency window, not a bug to paper over.
func (c *Coordinator) Transfer(srcAccount, destHost string, destPort int, destAccount string, amount float64) (Result, error) {
	if srcAccount == "" || destHost == "" || destPort == 0 || destAccount == "" {
		return Result{}, fmt.Errorf("missing parameters")
	}
	txid := newTxID(c.branch.Name)
	c.record("begin_transfer", txid)

	if err := c.participant.PrepareWithdraw(txid, srcAccount, amount); err != nil {
		return Result{}, fmt.Errorf("local prepare failed: %w", err)
	}

	resp := wire.SendRequest(destHost, destPort, wire.ActionPrepareDeposit, map[string]interface{}{
		"txid": txid, "account_no": destAccount, "amount": amount,
	}, config.RemoteCallTimeout)
	if resp.Status != wire.StatusOK {
		_ = c.participant.AbortWithdraw(txid)
		return Result{}, fmt.Errorf("destination prepare failed: %s", resp.Error)
	}

	if err := c.participant.CommitWithdraw(txid); err != nil {
		wire.SendRequest(destHost, destPort, wire.ActionAbortDeposit, map[string]interface{}{"txid": txid}, config.RemoteCallTimeout)
		return Result{}, fmt.Errorf("local commit failed: %w", err)
	}

	commitRemote := wire.SendRequest(destHost, destPort, wire.ActionCommitDeposit, map[string]interface{}{"txid": txid}, config.RemoteCallTimeout)
	if commitRemote.Status != wire.StatusOK {
		config.Warnf("branch %s: TXN%s local committed but remote commit failed: %s", c.branch.Name, txid, commitRemote.Error)
		return Result{}, fmt.Errorf("remote commit failed: %s", commitRemote.Error)
	}

	config.Debugf("branch %s: TXN%s transfer complete", c.branch.Name, txid)
	c.record("transfer_complete", txid)
	return Result{
		TxID:   txid,
		Amount: amount,
		From:   fmt.Sprintf("%s:%s", c.branch.Name, srcAccount),
		To:     fmt.Sprintf("%s:%s", destHost, destAccount),
	}, nil
}
