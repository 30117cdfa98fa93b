// Package replication is the best-effort, fire-and-retry fan-out of local
// mutations to a branch's replica set. A replicated call failing is logged
// and otherwise ignored — it never blocks or fails the local mutation that
// triggered it.
//
// Uses github.com/deckarep/golang-set to track the branch's peer set and
// the set of (peer, action) pairs whose delivery is still in progress
// (first attempt or a retry). Retry shape:
// a fixed attempt count, a per-attempt timeout, and a short sleep between
// attempts.
package replication

import (
	"strconv"
	"time"

	set "github.com/deckarep/golang-set"

	"bankfed/internal/config"
	"bankfed/internal/wire"
)

// Peer is one replica branch's address.
type Peer struct {
	Host string
	Port int
}

// Replicator sends "replicate" RPCs to every configured peer, retrying each
// independently. It implements ledger.Replicator.
type Replicator struct {
	branch   string
	peers    []Peer
	peerSet  set.Set
	inFlight set.Set
}

// New builds a Replicator for branch with the given replica peers.
func New(branch string, peers []Peer) *Replicator {
	ps := set.NewSet()
	for _, p := range peers {
		ps.Add(p)
	}
	config.Debugf("branch %s: replicating to %d distinct peer(s)", branch, ps.Cardinality())
	return &Replicator{branch: branch, peers: peers, peerSet: ps, inFlight: set.NewSet()}
}

// PeerCount returns the number of distinct replica peers configured.
func (r *Replicator) PeerCount() int {
	return r.peerSet.Cardinality()
}

// InFlight returns the "host:port:action" keys of deliveries still in
// progress, whether on their first attempt or a retry.
func (r *Replicator) InFlight() []interface{} {
	return r.inFlight.ToSlice()
}

// Replicate fans out (action, params) to every peer, spawning one goroutine
// per peer so a slow or down replica never delays the others. By the time
// this is called the branch lock is already released, and one peer's
// retries must not delay delivery to the rest.
func (r *Replicator) Replicate(action string, params map[string]interface{}) {
	for _, p := range r.peers {
		go r.sendWithRetry(p, action, params)
	}
}

func (r *Replicator) sendWithRetry(p Peer, action string, params map[string]interface{}) {
	key := p.Host + ":" + strconv.Itoa(p.Port) + ":" + action
	r.inFlight.Add(key)
	defer r.inFlight.Remove(key)

	wrapped := map[string]interface{}{
		"action": action,
		"params": params,
	}
	var lastErr string
	for attempt := 0; attempt < config.ReplicationRetries; attempt++ {
		resp := wire.SendRequest(p.Host, p.Port, wire.ActionReplicate, wrapped, config.ReplicationTimeout)
		if resp.Status == wire.StatusOK {
			config.Debugf("branch %s: replicated %s to %s:%d", r.branch, action, p.Host, p.Port)
			return
		}
		lastErr = resp.Error
		if attempt < config.ReplicationRetries-1 {
			time.Sleep(config.ReplicationBackoff)
		}
	}
	config.Warnf("branch %s: giving up replicating %s to %s:%d: %s", r.branch, action, p.Host, p.Port, lastErr)
}
