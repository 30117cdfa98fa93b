// Package journal is a diagnostic, append-only record of 2PC phase
// transitions: every prepare/commit/abort a branch processes, in order.
// Recovery at startup works from pending_tx alone and never reads this log
// — it exists purely so an operator can replay what a branch actually did.
//
// A github.com/tidwall/wal-backed append log with a latch-guarded write
// path, simplified to a single synchronous write per event since this log
// is read by humans, not replayed by a recovery routine.
package journal

import (
	"fmt"
	"sync"

	"github.com/tidwall/wal"

	"bankfed/internal/config"
)

// Journal appends one line per 2PC event to a branch-local WAL file.
type Journal struct {
	mu  sync.Mutex
	log *wal.Log
	idx uint64
}

// Open creates (or reuses) the audit log at "<dataDir>/<branchName>.journal".
// On failure it returns a nil *Journal and the error; callers that don't
// want a journal should pass nil to twopc.New instead.
func Open(dataDir, branchName string) (*Journal, error) {
	log, err := wal.Open(fmt.Sprintf("%s/%s.journal", dataDir, branchName), nil)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	last, err := log.LastIndex()
	if err != nil {
		log.Close()
		return nil, err
	}
	return &Journal{log: log, idx: last}, nil
}

// Append records one event (e.g. "prepare_withdraw") against a txid.
// Failures are logged, not surfaced — the journal is diagnostic, a write
// failure here must never block a 2PC step.
func (j *Journal) Append(event, txid string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.idx++
	line := fmt.Sprintf("%s txid=%s", event, txid)
	if err := j.log.Write(j.idx, []byte(line)); err != nil {
		config.Warnf("journal: write failed: %v", err)
	}
}

// Close releases the underlying WAL file.
func (j *Journal) Close() error {
	if j == nil || j.log == nil {
		return nil
	}
	return j.log.Close()
}
