// Package recovery runs once at branch startup: presumed-abort crash
// recovery. Every row still sitting in pending_tx when a branch restarts
// represents a 2PC leg that never reached a terminal commit/abort before
// the crash; presumed-abort means the branch unilaterally deletes it rather
// than trying to learn the coordinator's outcome.
package recovery

import (
	"bankfed/internal/config"
	"bankfed/internal/ledger"
)

// Run scans and clears every pending_tx row on branch, logging each abort.
func Run(branch *ledger.Branch) error {
	branch.Lock()
	defer branch.Unlock()
	pending, err := branch.Store().AllPendingTx()
	if err != nil {
		return err
	}
	for _, p := range pending {
		if err := branch.Store().DeletePendingTx(p.TxID); err != nil {
			return err
		}
		config.Warnf("branch %s: recovered (aborted) stale TXN%s (%s %v on %s)",
			branch.Name, p.TxID, p.Type, p.Amount, p.AccountNo)
	}
	if len(pending) > 0 {
		config.Debugf("branch %s: recovery aborted %d pending transaction(s)", branch.Name, len(pending))
	}
	return nil
}
