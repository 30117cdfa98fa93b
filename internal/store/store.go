// Package store is the per-branch embedded relational database: one sqlite
// file per branch holding the accounts and pending_tx tables.
//
// A single *sql.DB capped to one open connection with schema applied on
// open, against a single embedded backend rather than a pluggable
// multi-backend abstraction — a branch only ever needs the one store.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"bankfed/internal/config"
)

// Account is a row of the accounts table.
type Account struct {
	AccountNo string
	Name      string
	Balance   float64
}

// PendingTx is a row of the pending_tx table.
type PendingTx struct {
	TxID      string
	AccountNo string
	Amount    float64
	Type      string // "withdraw" | "deposit"
}

const (
	TypeWithdraw = "withdraw"
	TypeDeposit  = "deposit"
)

// Store wraps the single sqlite connection for one branch, shared across
// workers with auto-commit. sqlite only supports one writer at a time, so
// the pool is capped at one open connection.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates (or reuses) "<branchName>.db" in dataDir and applies schema.
func Open(dataDir, branchName string) (*Store, error) {
	path := fmt.Sprintf("%s/%s.db", dataDir, branchName)
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS accounts (
		account_no TEXT PRIMARY KEY,
		name TEXT,
		balance REAL
	);
	CREATE TABLE IF NOT EXISTS pending_tx (
		txid TEXT PRIMARY KEY,
		account_no TEXT,
		amount REAL,
		type TEXT
	);`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetAccount returns the account row, or (nil, nil) if it does not exist.
func (s *Store) GetAccount(accountNo string) (*Account, error) {
	row := s.db.QueryRow("SELECT account_no, name, balance FROM accounts WHERE account_no = ?", accountNo)
	var a Account
	if err := row.Scan(&a.AccountNo, &a.Name, &a.Balance); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// InsertAccount adds a new account row. Callers must already have verified
// the account does not exist (the branch lock covers that check).
func (s *Store) InsertAccount(accountNo, name string, balance float64) error {
	_, err := s.db.Exec("INSERT INTO accounts (account_no, name, balance) VALUES (?, ?, ?)", accountNo, name, balance)
	return err
}

// InsertAccountIfAbsent is the idempotent create used when applying a
// replicated create_account: create is insert-or-ignore.
func (s *Store) InsertAccountIfAbsent(accountNo, name string, balance float64) error {
	_, err := s.db.Exec("INSERT OR IGNORE INTO accounts (account_no, name, balance) VALUES (?, ?, ?)", accountNo, name, balance)
	return err
}

// UpdateBalance overwrites an account's balance.
func (s *Store) UpdateBalance(accountNo string, newBalance float64) error {
	_, err := s.db.Exec("UPDATE accounts SET balance = ? WHERE account_no = ?", newBalance, accountNo)
	return err
}

// ListAccounts returns every account row.
func (s *Store) ListAccounts() ([]Account, error) {
	rows, err := s.db.Query("SELECT account_no, name, balance FROM accounts")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.AccountNo, &a.Name, &a.Balance); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountAccounts is used by preload to decide whether sample accounts are needed.
func (s *Store) CountAccounts() (int, error) {
	row := s.db.QueryRow("SELECT COUNT(*) FROM accounts")
	var n int
	err := row.Scan(&n)
	return n, err
}

// UpsertPendingTx inserts or replaces a pending_tx row by txid: a txid may
// appear in at most one pending row per branch, and re-preparing with the
// same txid overwrites it.
func (s *Store) UpsertPendingTx(p PendingTx) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO pending_tx (txid, account_no, amount, type) VALUES (?, ?, ?, ?)",
		p.TxID, p.AccountNo, p.Amount, p.Type)
	return err
}

// GetPendingTx looks up a pending row by (txid, type). Returns (nil, nil) if absent.
func (s *Store) GetPendingTx(txid, typ string) (*PendingTx, error) {
	row := s.db.QueryRow("SELECT txid, account_no, amount, type FROM pending_tx WHERE txid = ? AND type = ?", txid, typ)
	var p PendingTx
	if err := row.Scan(&p.TxID, &p.AccountNo, &p.Amount, &p.Type); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// DeletePendingTx removes a pending row regardless of type.
func (s *Store) DeletePendingTx(txid string) error {
	_, err := s.db.Exec("DELETE FROM pending_tx WHERE txid = ?", txid)
	return err
}

// DeletePendingTxTyped removes a pending row only if its type matches,
// since abort_withdraw/abort_deposit are type-matched.
func (s *Store) DeletePendingTxTyped(txid, typ string) error {
	_, err := s.db.Exec("DELETE FROM pending_tx WHERE txid = ? AND type = ?", txid, typ)
	return err
}

// AllPendingTx returns every pending_tx row, used by recovery at startup.
func (s *Store) AllPendingTx() ([]PendingTx, error) {
	rows, err := s.db.Query("SELECT txid, account_no, amount, type FROM pending_tx")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PendingTx
	for rows.Next() {
		var p PendingTx
		if err := rows.Scan(&p.TxID, &p.AccountNo, &p.Amount, &p.Type); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Preload inserts two sample accounts (1001, 1002) at balance 1000.0 if the
// accounts table is empty.
func (s *Store) Preload(branchName string) error {
	n, err := s.CountAccounts()
	if err != nil {
		return err
	}
	if n != 0 {
		return nil
	}
	for i := 1; i <= 2; i++ {
		acc := fmt.Sprintf("%d", 1000+i)
		name := fmt.Sprintf("User_%s_%d", branchName, i)
		if err := s.InsertAccountIfAbsent(acc, name, 1000.0); err != nil {
			return err
		}
	}
	config.Debugf("preloaded sample accounts on branch %s", branchName)
	return nil
}
