// internal/storage/sqlite/store.go

// Package sqlite 提供交易紀錄的 SQLite 稽核副本。
// Store 實作 txlog.Sink：每筆成功的交易在寫入記憶體紀錄後同步落地，
// 管理員可於重啟後仍依時間順序查詢。
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"atmnet/internal/txlog"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id             INTEGER PRIMARY KEY,
	kind           TEXT    NOT NULL,
	occurred_at    INTEGER NOT NULL,
	atm_serial     TEXT    NOT NULL,
	card_number    TEXT    NOT NULL,
	bank_id        TEXT    NOT NULL,
	account_number TEXT    NOT NULL,
	amount         INTEGER NOT NULL,
	fee            INTEGER NOT NULL,
	note           TEXT    NOT NULL DEFAULT '',
	target_bank    TEXT,
	target_account TEXT
);
CREATE INDEX IF NOT EXISTS transactions_account ON transactions (bank_id, account_number);
`

// Store 為 SQLite 稽核紀錄。
type Store struct {
	sqlDB *sql.DB
}

var _ txlog.Sink = (*Store)(nil)

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open 開啟（必要時建立）資料庫並套用 schema。
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("audit db path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close 關閉資料庫。
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Record 寫入一筆交易。相同 ID 已存在時視為已寫入。
func (s *Store) Record(ctx context.Context, tx txlog.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("audit store is not configured")
	}
	if tx.ID <= 0 {
		return fmt.Errorf("transaction id is required")
	}
	var targetBank, targetAccount sql.NullString
	if tx.Target != nil {
		targetBank = sql.NullString{String: tx.Target.BankID, Valid: true}
		targetAccount = sql.NullString{String: tx.Target.AccountNumber, Valid: true}
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO transactions (
		   id, kind, occurred_at, atm_serial, card_number, bank_id, account_number,
		   amount, fee, note, target_bank, target_account
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, string(tx.Kind), toMillis(tx.Time), tx.ATMSerial, tx.CardNumber, tx.BankID, tx.AccountNumber,
		tx.Amount, tx.Fee, tx.Note, targetBank, targetAccount,
	)
	if err != nil {
		if isDuplicate(err) {
			return nil
		}
		return fmt.Errorf("insert transaction %d: %w", tx.ID, err)
	}
	return nil
}

// List 依 ID 遞增回傳全部交易。
func (s *Store) List(ctx context.Context) ([]txlog.Transaction, error) {
	return s.query(ctx, `SELECT `+columns+` FROM transactions ORDER BY id`)
}

// ListForAccount 回傳涉及指定帳戶（來源或目標）的交易。
func (s *Store) ListForAccount(ctx context.Context, bankID, number string) ([]txlog.Transaction, error) {
	return s.query(ctx,
		`SELECT `+columns+` FROM transactions
		 WHERE (bank_id = ? AND account_number = ?) OR (target_bank = ? AND target_account = ?)
		 ORDER BY id`,
		bankID, number, bankID, number,
	)
}

const columns = `id, kind, occurred_at, atm_serial, card_number, bank_id, account_number,
	amount, fee, note, target_bank, target_account`

func (s *Store) query(ctx context.Context, q string, args ...any) ([]txlog.Transaction, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("audit store is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []txlog.Transaction
	for rows.Next() {
		var (
			tx            txlog.Transaction
			kind          string
			occurredAt    int64
			targetBank    sql.NullString
			targetAccount sql.NullString
		)
		if err := rows.Scan(&tx.ID, &kind, &occurredAt, &tx.ATMSerial, &tx.CardNumber, &tx.BankID,
			&tx.AccountNumber, &tx.Amount, &tx.Fee, &tx.Note, &targetBank, &targetAccount); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Kind = txlog.Kind(kind)
		tx.Time = fromMillis(occurredAt)
		if targetBank.Valid {
			tx.Target = &txlog.Counterparty{BankID: targetBank.String, AccountNumber: targetAccount.String}
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func isDuplicate(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
