package server

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"bankfed/internal/coordinator"
	"bankfed/internal/ledger"
	"bankfed/internal/recovery"
	"bankfed/internal/store"
	"bankfed/internal/twopc"
	"bankfed/internal/wire"
)

// branchFixture is a branch wired in cmd/branch's order (store, preload,
// recovery, participant, coordinator), minus CLI parsing, replicas and the
// journal, and registering only the handlers these scenarios call; used to
// exercise end-to-end scenarios over a real TCP socket.
type branchFixture struct {
	branch *ledger.Branch
	srv    *Server
	addr   *net.TCPAddr
}

func newBranchFixture(t *testing.T, name string, preload bool) *branchFixture {
	t.Helper()
	st, err := store.Open(t.TempDir(), name)
	assert.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	if preload {
		assert.NoError(t, st.Preload(name))
	}

	b := ledger.New(name, st)
	assert.NoError(t, recovery.Run(b))
	p := twopc.New(b, nil)
	c := coordinator.New(b, p, nil)

	srv, err := New(name, "127.0.0.1:0")
	assert.NoError(t, err)

	srv.Handle(wire.ActionBalance, func(params map[string]interface{}) wire.Response {
		acc, _ := params["account_no"].(string)
		bal, nm, err := b.Balance(acc)
		if err != nil {
			return wire.Err(err.Error())
		}
		return wire.OK(map[string]interface{}{"balance": bal, "name": nm})
	})
	srv.Handle(wire.ActionDeposit, func(params map[string]interface{}) wire.Response {
		acc, _ := params["account_no"].(string)
		amt, _ := params["amount"].(float64)
		bal, err := b.Deposit(acc, amt)
		if err != nil {
			return wire.Err(err.Error())
		}
		return wire.OK(map[string]interface{}{"balance": bal})
	})
	srv.Handle(wire.ActionWithdraw, func(params map[string]interface{}) wire.Response {
		acc, _ := params["account_no"].(string)
		amt, _ := params["amount"].(float64)
		bal, err := b.Withdraw(acc, amt)
		if err != nil {
			return wire.Err(err.Error())
		}
		return wire.OK(map[string]interface{}{"balance": bal})
	})
	srv.Handle(wire.ActionInterBranchTransfer, func(params map[string]interface{}) wire.Response {
		srcAcc, _ := params["src_account_no"].(string)
		destHost, _ := params["dest_host"].(string)
		destPort, _ := params["dest_port"].(float64)
		destAcc, _ := params["dest_account_no"].(string)
		amt, _ := params["amount"].(float64)
		res, err := c.Transfer(srcAcc, destHost, int(destPort), destAcc, amt)
		if err != nil {
			return wire.Err(err.Error())
		}
		return wire.OK(map[string]interface{}{"status": "transfer_complete", "txid": res.TxID})
	})
	srv.Handle(wire.ActionPrepareDeposit, func(params map[string]interface{}) wire.Response {
		txid, _ := params["txid"].(string)
		acc, _ := params["account_no"].(string)
		amt, _ := params["amount"].(float64)
		if err := p.PrepareDeposit(txid, acc, amt); err != nil {
			return wire.Err(err.Error())
		}
		return wire.OK(nil)
	})
	srv.Handle(wire.ActionCommitDeposit, func(params map[string]interface{}) wire.Response {
		txid, _ := params["txid"].(string)
		if err := p.CommitDeposit(txid); err != nil {
			return wire.Err(err.Error())
		}
		return wire.OK(nil)
	})
	srv.Handle(wire.ActionAbortDeposit, func(params map[string]interface{}) wire.Response {
		txid, _ := params["txid"].(string)
		if err := p.AbortDeposit(txid); err != nil {
			return wire.Err(err.Error())
		}
		return wire.OK(nil)
	})

	go srv.Serve()
	t.Cleanup(func() { srv.Close() })
	return &branchFixture{branch: b, srv: srv, addr: srv.Addr().(*net.TCPAddr)}
}

func (f *branchFixture) call(t *testing.T, action string, params map[string]interface{}) wire.Response {
	t.Helper()
	return wire.SendRequest("127.0.0.1", f.addr.Port, action, params, 2*time.Second)
}

// S1: preloaded branch, balance query returns the seeded account.
func TestScenarioS1PreloadedBalanceQuery(t *testing.T) {
	a := newBranchFixture(t, "branch-a-s1", true)
	resp := a.call(t, wire.ActionBalance, map[string]interface{}{"account_no": "1001"})
	assert.Equal(t, wire.StatusOK, resp.Status)
	result := resp.Result.(map[string]interface{})
	assert.Equal(t, 1000.0, result["balance"])
	assert.Equal(t, "User_branch-a-s1_1", result["name"])
}

// S2: deposit then balance reflects the credit.
func TestScenarioS2DepositThenBalance(t *testing.T) {
	a := newBranchFixture(t, "branch-a-s2", true)
	resp := a.call(t, wire.ActionDeposit, map[string]interface{}{"account_no": "1001", "amount": 250.0})
	assert.Equal(t, wire.StatusOK, resp.Status)
	assert.Equal(t, 1250.0, resp.Result.(map[string]interface{})["balance"])

	resp = a.call(t, wire.ActionBalance, map[string]interface{}{"account_no": "1001"})
	assert.Equal(t, 1250.0, resp.Result.(map[string]interface{})["balance"])
}

// S3: withdraw more than the balance fails, balance unchanged.
func TestScenarioS3WithdrawInsufficientFunds(t *testing.T) {
	a := newBranchFixture(t, "branch-a-s3", true)
	resp := a.call(t, wire.ActionWithdraw, map[string]interface{}{"account_no": "1001", "amount": 5000.0})
	assert.Equal(t, wire.StatusError, resp.Status)
	assert.Equal(t, "insufficient funds", resp.Error)

	resp = a.call(t, wire.ActionBalance, map[string]interface{}{"account_no": "1001"})
	assert.Equal(t, 1000.0, resp.Result.(map[string]interface{})["balance"])
}

// S4: successful inter-branch transfer moves funds between two branches.
func TestScenarioS4InterBranchTransferSucceeds(t *testing.T) {
	a := newBranchFixture(t, "branch-a-s4", true)
	b := newBranchFixture(t, "branch-b-s4", true)

	resp := a.call(t, wire.ActionInterBranchTransfer, map[string]interface{}{
		"src_account_no": "1001", "dest_host": "127.0.0.1", "dest_port": float64(b.addr.Port),
		"dest_account_no": "1001", "amount": 300.0,
	})
	assert.Equal(t, wire.StatusOK, resp.Status)

	respA := a.call(t, wire.ActionBalance, map[string]interface{}{"account_no": "1001"})
	assert.Equal(t, 700.0, respA.Result.(map[string]interface{})["balance"])
	respB := b.call(t, wire.ActionBalance, map[string]interface{}{"account_no": "1001"})
	assert.Equal(t, 1300.0, respB.Result.(map[string]interface{})["balance"])
}

// S5: destination unreachable, local prepare rolled back, no pending rows left.
func TestScenarioS5DestinationUnreachableRollsBackLocalPrepare(t *testing.T) {
	a := newBranchFixture(t, "branch-a-s5", true)

	resp := a.call(t, wire.ActionInterBranchTransfer, map[string]interface{}{
		"src_account_no": "1001", "dest_host": "127.0.0.1", "dest_port": float64(1), // closed port
		"dest_account_no": "1001", "amount": 300.0,
	})
	assert.Equal(t, wire.StatusError, resp.Status)

	respA := a.call(t, wire.ActionBalance, map[string]interface{}{"account_no": "1001"})
	assert.Equal(t, 1000.0, respA.Result.(map[string]interface{})["balance"])

	pending, err := a.branch.Store().AllPendingTx()
	assert.NoError(t, err)
	assert.Empty(t, pending)
}

// S6: a branch restarted mid-2PC (pending row present, no commit) presumed-aborts.
func TestScenarioS6RestartAfterPrepareButBeforeCommitPresumedAborts(t *testing.T) {
	a := newBranchFixture(t, "branch-a-s6", true)

	// simulate a crash: a pending withdraw row survives with no commit/abort.
	assert.NoError(t, a.branch.Store().UpsertPendingTx(store.PendingTx{
		TxID: "branch-a-s6-123-4567", AccountNo: "1001", Amount: 300.0, Type: store.TypeWithdraw,
	}))

	// restart: re-run recovery against the same store.
	assert.NoError(t, recovery.Run(a.branch))

	pending, err := a.branch.Store().AllPendingTx()
	assert.NoError(t, err)
	assert.Empty(t, pending)

	bal, _, err := a.branch.Balance("1001")
	assert.NoError(t, err)
	assert.Equal(t, 1000.0, bal)
}
