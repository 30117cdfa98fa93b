package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bankfed/internal/store"
)

func newTestBranch(t *testing.T) *Branch {
	t.Helper()
	st, err := store.Open(t.TempDir(), "test-branch")
	assert.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New("test-branch", st)
}

func TestCreateAccountRejectsDuplicate(t *testing.T) {
	b := newTestBranch(t)
	assert.NoError(t, b.CreateAccount("1001", "Alice", 100.0))
	assert.ErrorIs(t, b.CreateAccount("1001", "Alice2", 1.0), ErrAccountExists)
}

func TestCreateAccountRejectsInvalidAmount(t *testing.T) {
	b := newTestBranch(t)
	assert.ErrorIs(t, b.CreateAccount("1001", "Alice", -1.0), ErrInvalidAmount)
}

func TestDepositAndWithdrawRoundTrip(t *testing.T) {
	b := newTestBranch(t)
	assert.NoError(t, b.CreateAccount("1001", "Alice", 100.0))

	bal, err := b.Deposit("1001", 50.0)
	assert.NoError(t, err)
	assert.Equal(t, 150.0, bal)

	bal, err = b.Withdraw("1001", 30.0)
	assert.NoError(t, err)
	assert.Equal(t, 120.0, bal)
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	b := newTestBranch(t)
	assert.NoError(t, b.CreateAccount("1001", "Alice", 10.0))
	_, err := b.Withdraw("1001", 20.0)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestWithdrawUnknownAccount(t *testing.T) {
	b := newTestBranch(t)
	_, err := b.Withdraw("ghost", 1.0)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestLocalTransferIsAtomic(t *testing.T) {
	b := newTestBranch(t)
	assert.NoError(t, b.CreateAccount("src", "Alice", 100.0))
	assert.NoError(t, b.CreateAccount("dst", "Bob", 10.0))

	res, err := b.LocalTransfer("src", "dst", 40.0)
	assert.NoError(t, err)
	assert.Equal(t, 60.0, res.SrcBalance)
	assert.Equal(t, 50.0, res.DestBalance)

	srcBal, _, err := b.Balance("src")
	assert.NoError(t, err)
	assert.Equal(t, 60.0, srcBal)
}

func TestLocalTransferRejectsInsufficientFunds(t *testing.T) {
	b := newTestBranch(t)
	assert.NoError(t, b.CreateAccount("src", "Alice", 5.0))
	assert.NoError(t, b.CreateAccount("dst", "Bob", 0.0))

	_, err := b.LocalTransfer("src", "dst", 40.0)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// balances must be unchanged after a rejected transfer.
	srcBal, _, err := b.Balance("src")
	assert.NoError(t, err)
	assert.Equal(t, 5.0, srcBal)
}

func TestLocalTransferUnknownDestinationIsWrapped(t *testing.T) {
	b := newTestBranch(t)
	assert.NoError(t, b.CreateAccount("src", "Alice", 5.0))
	_, err := b.LocalTransfer("src", "ghost", 1.0)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

type recordingReplicator struct {
	calls []string
}

func (r *recordingReplicator) Replicate(action string, params map[string]interface{}) {
	r.calls = append(r.calls, action)
}

func TestMutationsReplicateInCallOrder(t *testing.T) {
	b := newTestBranch(t)
	rep := &recordingReplicator{}
	b.SetReplicator(rep)

	assert.NoError(t, b.CreateAccount("1001", "Alice", 100.0))
	_, err := b.Deposit("1001", 10.0)
	assert.NoError(t, err)

	assert.Equal(t, []string{"create_account", "deposit"}, rep.calls)
}

func TestApplyReplicatedCreateIsIdempotent(t *testing.T) {
	b := newTestBranch(t)
	params := map[string]interface{}{"account_no": "9001", "name": "Replica", "balance": 5.0}
	assert.NoError(t, b.ApplyReplicated("create_account", params))
	assert.NoError(t, b.ApplyReplicated("create_account", params))

	bal, _, err := b.Balance("9001")
	assert.NoError(t, err)
	assert.Equal(t, 5.0, bal)
}

func TestWithdrawExactBalanceSucceedsOneOverFails(t *testing.T) {
	b := newTestBranch(t)
	assert.NoError(t, b.CreateAccount("1001", "Alice", 100.0))

	bal, err := b.Withdraw("1001", 100.0)
	assert.NoError(t, err)
	assert.Equal(t, 0.0, bal)

	assert.NoError(t, b.CreateAccount("1002", "Bob", 100.0))
	_, err = b.Withdraw("1002", 100.01)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestDepositWithdrawRoundTripRestoresBalance(t *testing.T) {
	b := newTestBranch(t)
	assert.NoError(t, b.CreateAccount("1001", "Alice", 500.0))

	_, err := b.Deposit("1001", 37.0)
	assert.NoError(t, err)
	bal, err := b.Withdraw("1001", 37.0)
	assert.NoError(t, err)
	assert.Equal(t, 500.0, bal)
}

func TestDepositOfZeroSucceedsAndStillReplicates(t *testing.T) {
	b := newTestBranch(t)
	rep := &recordingReplicator{}
	b.SetReplicator(rep)
	assert.NoError(t, b.CreateAccount("1001", "Alice", 100.0))

	bal, err := b.Deposit("1001", 0.0)
	assert.NoError(t, err)
	assert.Equal(t, 100.0, bal)
	assert.Contains(t, rep.calls, "deposit")
}

func TestApplyReplicatedDepositWithdrawAreNotIdempotent(t *testing.T) {
	b := newTestBranch(t)
	assert.NoError(t, b.CreateAccount("1001", "Alice", 100.0))

	params := map[string]interface{}{"account_no": "1001", "amount": 10.0}
	assert.NoError(t, b.ApplyReplicated("deposit", params))
	assert.NoError(t, b.ApplyReplicated("deposit", params))

	bal, _, err := b.Balance("1001")
	assert.NoError(t, err)
	assert.Equal(t, 120.0, bal) // applied twice, by design — no dedup on replayed mutations
}
