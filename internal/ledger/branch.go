// Package ledger is the branch state machine: it owns a branch's accounts,
// serializes every mutation behind a single exclusive lock, and exposes the
// immediate deposit/withdraw/balance/list/create operations.
//
// Uses github.com/viney-shih/go-lock's CASMutex as a single branch-wide
// lock rather than one lock per in-flight transaction: operations on
// different accounts on the same branch deliberately do not parallelize,
// so one CASMutex per branch is exactly the right granularity.
package ledger

import (
	"errors"
	"fmt"
	"math"

	lock "github.com/viney-shih/go-lock"

	"bankfed/internal/config"
	"bankfed/internal/store"
	"bankfed/internal/wire"
)

// Replicator fires a best-effort apply message to every configured replica
// after a successful local mutation. Kept as an interface here
// so ledger never imports internal/replication (replication, in turn,
// depends on nothing in ledger — it only sends wire requests).
type Replicator interface {
	Replicate(action string, params map[string]interface{})
}

// noopReplicator is used when a branch has no configured replicas.
type noopReplicator struct{}

func (noopReplicator) Replicate(string, map[string]interface{}) {}

// Branch is one federation member: a name, a durable store, and the single
// exclusive lock held around every accounts/pending_tx mutation.
type Branch struct {
	Name       string
	store      *store.Store
	mu         lock.Mutex
	replicator Replicator
}

// New wraps an already-open Store into a Branch. SetReplicator may be called
// afterwards once the replica set is known.
func New(name string, st *store.Store) *Branch {
	return &Branch{
		Name:       name,
		store:      st,
		mu:         lock.NewCASMutex(),
		replicator: noopReplicator{},
	}
}

// SetReplicator installs the branch's replicator.
func (b *Branch) SetReplicator(r Replicator) {
	if r == nil {
		r = noopReplicator{}
	}
	b.replicator = r
}

// Store exposes the underlying persistent store so internal/twopc can
// journal pending_tx rows under this same branch lock. twopc takes the
// lock via Lock/Unlock below; it never re-enters Branch's own locked
// methods, so there is no nested acquisition.
func (b *Branch) Store() *store.Store { return b.store }

// Lock and Unlock expose the branch's single exclusive lock to internal/twopc,
// which must serialize prepare/commit/abort under the very same mutex that
// guards immediate deposit/withdraw.
func (b *Branch) Lock()   { b.mu.Lock() }
func (b *Branch) Unlock() { b.mu.Unlock() }

// Replicate exposes the branch's replicator to internal/twopc so a committed
// 2PC leg fans out to replicas the same way an immediate deposit/withdraw
// does. Must be called with the branch lock already released.
func (b *Branch) Replicate(action string, params map[string]interface{}) {
	b.replicator.Replicate(action, params)
}

// Domain errors, surfaced verbatim to callers.
var (
	ErrMissingAccountNo = errors.New("missing account_no")
	ErrAccountExists     = errors.New("account exists")
	ErrAccountNotFound   = errors.New("account not found")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

func validAmount(amount float64) bool {
	return !math.IsNaN(amount) && !math.IsInf(amount, 0) && amount >= 0
}

// CreateAccount inserts a new account row.
func (b *Branch) CreateAccount(accountNo, name string, balance float64) error {
	if accountNo == "" {
		return ErrMissingAccountNo
	}
	if !validAmount(balance) {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	existing, err := b.store.GetAccount(accountNo)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if existing != nil {
		b.mu.Unlock()
		return ErrAccountExists
	}
	if err := b.store.InsertAccount(accountNo, name, balance); err != nil {
		b.mu.Unlock()
		return err
	}
	b.mu.Unlock()
	config.Debugf("branch %s: created account %s", b.Name, accountNo)
	b.replicator.Replicate(wire.ActionCreateAccount, map[string]interface{}{
		"account_no": accountNo, "name": name, "balance": balance,
	})
	return nil
}

// ListAccounts returns every account on the branch.
func (b *Branch) ListAccounts() ([]store.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.ListAccounts()
}

// Balance returns the balance and display name of an account.
func (b *Branch) Balance(accountNo string) (float64, string, error) {
	if accountNo == "" {
		return 0, "", ErrMissingAccountNo
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	acct, err := b.store.GetAccount(accountNo)
	if err != nil {
		return 0, "", err
	}
	if acct == nil {
		return 0, "", ErrAccountNotFound
	}
	return acct.Balance, acct.Name, nil
}

// Deposit credits amount to accountNo and replicates the result.
func (b *Branch) Deposit(accountNo string, amount float64) (float64, error) {
	if accountNo == "" {
		return 0, ErrMissingAccountNo
	}
	if !validAmount(amount) {
		return 0, ErrInvalidAmount
	}
	b.mu.Lock()
	acct, err := b.store.GetAccount(accountNo)
	if err != nil {
		b.mu.Unlock()
		return 0, err
	}
	if acct == nil {
		b.mu.Unlock()
		return 0, ErrAccountNotFound
	}
	newBal := acct.Balance + amount
	if err := b.store.UpdateBalance(accountNo, newBal); err != nil {
		b.mu.Unlock()
		return 0, err
	}
	b.mu.Unlock()
	b.replicator.Replicate(wire.ActionDeposit, map[string]interface{}{
		"account_no": accountNo, "amount": amount,
	})
	return newBal, nil
}

// Withdraw debits amount from accountNo, rejecting insufficient funds, and
// replicates the result.
func (b *Branch) Withdraw(accountNo string, amount float64) (float64, error) {
	if accountNo == "" {
		return 0, ErrMissingAccountNo
	}
	if !validAmount(amount) {
		return 0, ErrInvalidAmount
	}
	b.mu.Lock()
	acct, err := b.store.GetAccount(accountNo)
	if err != nil {
		b.mu.Unlock()
		return 0, err
	}
	if acct == nil {
		b.mu.Unlock()
		return 0, ErrAccountNotFound
	}
	if acct.Balance < amount {
		b.mu.Unlock()
		return 0, ErrInsufficientFunds
	}
	newBal := acct.Balance - amount
	if err := b.store.UpdateBalance(accountNo, newBal); err != nil {
		b.mu.Unlock()
		return 0, err
	}
	b.mu.Unlock()
	b.replicator.Replicate(wire.ActionWithdraw, map[string]interface{}{
		"account_no": accountNo, "amount": amount,
	})
	return newBal, nil
}

// TransferResult is returned by LocalTransfer.
type TransferResult struct {
	SrcBalance  float64
	DestBalance float64
}

// LocalTransfer debits src and credits dest atomically under one lock hold,
// fully atomic within the branch.
func (b *Branch) LocalTransfer(src, dest string, amount float64) (TransferResult, error) {
	if src == "" || dest == "" {
		return TransferResult{}, ErrMissingAccountNo
	}
	if !validAmount(amount) {
		return TransferResult{}, ErrInvalidAmount
	}
	b.mu.Lock()
	srcAcct, err := b.store.GetAccount(src)
	if err != nil {
		b.mu.Unlock()
		return TransferResult{}, err
	}
	if srcAcct == nil {
		b.mu.Unlock()
		return TransferResult{}, fmt.Errorf("source %w", ErrAccountNotFound)
	}
	destAcct, err := b.store.GetAccount(dest)
	if err != nil {
		b.mu.Unlock()
		return TransferResult{}, err
	}
	if destAcct == nil {
		b.mu.Unlock()
		return TransferResult{}, fmt.Errorf("destination %w", ErrAccountNotFound)
	}
	if srcAcct.Balance < amount {
		b.mu.Unlock()
		return TransferResult{}, ErrInsufficientFunds
	}
	newSrcBal := srcAcct.Balance - amount
	newDestBal := destAcct.Balance + amount
	if err := b.store.UpdateBalance(src, newSrcBal); err != nil {
		b.mu.Unlock()
		return TransferResult{}, err
	}
	if err := b.store.UpdateBalance(dest, newDestBal); err != nil {
		b.mu.Unlock()
		return TransferResult{}, err
	}
	b.mu.Unlock()
	b.replicator.Replicate(wire.ActionWithdraw, map[string]interface{}{"account_no": src, "amount": amount})
	b.replicator.Replicate(wire.ActionDeposit, map[string]interface{}{"account_no": dest, "amount": amount})
	return TransferResult{SrcBalance: newSrcBal, DestBalance: newDestBal}, nil
}

// ApplyReplicated applies an inbound "replicate" message the way a replica
// would: create is insert-or-ignore; deposit/withdraw mutate the balance
// directly and are NOT idempotent by design — replaying the same message
// twice double-applies it, an accepted trade-off of fire-and-retry
// replication that does not wait for replica acknowledgment.
func (b *Branch) ApplyReplicated(action string, params map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch action {
	case wire.ActionCreateAccount:
		accountNo, _ := params["account_no"].(string)
		name, _ := params["name"].(string)
		balance, _ := params["balance"].(float64)
		return b.store.InsertAccountIfAbsent(accountNo, name, balance)
	case wire.ActionDeposit:
		accountNo, _ := params["account_no"].(string)
		amount, _ := params["amount"].(float64)
		acct, err := b.store.GetAccount(accountNo)
		if err != nil || acct == nil {
			return err
		}
		return b.store.UpdateBalance(accountNo, acct.Balance+amount)
	case wire.ActionWithdraw:
		accountNo, _ := params["account_no"].(string)
		amount, _ := params["amount"].(float64)
		acct, err := b.store.GetAccount(accountNo)
		if err != nil || acct == nil {
			return err
		}
		return b.store.UpdateBalance(accountNo, acct.Balance-amount)
	default:
		// other replicate actions are a no-op on a replica.
		return nil
	}
}
