// Package sqlite implements the storage interfaces on an embedded SQLite file using the
// pure-Go modernc driver. The schema is managed by golang-migrate from embedded SQL files.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

const (
	cacheTableName   = "transactions"
	pendingTableName = "pending_transactions"
)

type Repository struct {
	db *sql.DB
}

// NewRepository opens (creating if needed) the database at dbPath and migrates it.
func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; SQLite serializes anyway and this avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Stores exposes the repository through the storage capability interfaces.
func (r *Repository) Stores() storage.Stores {
	return storage.Stores{
		Cache:    &transactionTable{db: r.db, table: cacheTableName},
		Pending:  &pendingTable{transactionTable: transactionTable{db: r.db, table: pendingTableName}},
		Accounts: &accountTable{db: r.db},
	}
}

type transactionTable struct {
	db    *sql.DB
	table string
}

const txColumns = "id, account_id, category_id, amount, transaction_date, comment, created_at, updated_at, is_synced, client_key"

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		t         core.Transaction
		date      int64
		comment   sql.NullString
		createdAt sql.NullInt64
		updatedAt sql.NullInt64
		synced    int64
		clientKey sql.NullString
	)
	if err := row.Scan(&t.ID, &t.AccountID, &t.CategoryID, &t.Amount, &date, &comment, &createdAt, &updatedAt, &synced, &clientKey); err != nil {
		return core.Transaction{}, err
	}
	t.TransactionDate = fromMillis(date)
	if comment.Valid {
		c := comment.String
		t.Comment = &c
	}
	t.CreatedAt = nullableTime(createdAt)
	t.UpdatedAt = nullableTime(updatedAt)
	t.IsSynced = synced != 0
	t.ClientKey = clientKey.String
	return t, nil
}

func txArgs(t core.Transaction) []any {
	var comment sql.NullString
	if t.Comment != nil {
		comment = sql.NullString{String: *t.Comment, Valid: true}
	}
	synced := 0
	if t.IsSynced {
		synced = 1
	}
	return []any{
		t.ID, t.AccountID, t.CategoryID, t.Amount, toMillis(t.TransactionDate),
		comment, nullableMillis(t.CreatedAt), nullableMillis(t.UpdatedAt), synced,
		sql.NullString{String: t.ClientKey, Valid: t.ClientKey != ""},
	}
}

func (s *transactionTable) query(ctx context.Context, op, where string, args ...any) ([]core.Transaction, error) {
	q := fmt.Sprintf("SELECT %s FROM %s %s ORDER BY seq", txColumns, s.table, where)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storage.Wrap(op, err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, storage.Wrap(op, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap(op, err)
	}
	return out, nil
}

func (s *transactionTable) FetchAll(ctx context.Context) ([]core.Transaction, error) {
	return s.query(ctx, "fetch all "+s.table, "")
}

func (s *transactionTable) FetchByPeriod(ctx context.Context, p core.Period) ([]core.Transaction, error) {
	return s.query(ctx, "fetch period "+s.table, "WHERE transaction_date BETWEEN ? AND ?",
		toMillis(p.From), toMillis(p.To))
}

func (s *transactionTable) FetchByID(ctx context.Context, id int64) (core.Transaction, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", txColumns, s.table)
	t, err := scanTransaction(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, storage.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, storage.Wrap("fetch "+s.table, err)
	}
	return t, nil
}

func (s *transactionTable) Create(ctx context.Context, t core.Transaction) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING", s.table, txColumns)
	res, err := s.db.ExecContext(ctx, q, txArgs(t)...)
	if err != nil {
		return storage.Wrap("insert "+s.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.Wrap("insert "+s.table, err)
	}
	if n == 0 {
		return storage.ErrAlreadyExists
	}
	return nil
}

func (s *transactionTable) Edit(ctx context.Context, t core.Transaction) error {
	q := fmt.Sprintf(`UPDATE %s SET account_id = ?, category_id = ?, amount = ?, transaction_date = ?,
		comment = ?, created_at = ?, updated_at = ?, is_synced = ?, client_key = ? WHERE id = ?`, s.table)
	args := txArgs(t)
	res, err := s.db.ExecContext(ctx, q, append(args[1:], t.ID)...)
	if err != nil {
		return storage.Wrap("update "+s.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.Wrap("update "+s.table, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *transactionTable) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.table), id); err != nil {
		return storage.Wrap("delete "+s.table, err)
	}
	return nil
}

// Upsert writes all records in one transaction. Existing rows keep their seq.
func (s *transactionTable) Upsert(ctx context.Context, txs ...core.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Wrap("begin upsert "+s.table, err)
	}
	defer dbtx.Rollback()

	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			category_id = excluded.category_id,
			amount = excluded.amount,
			transaction_date = excluded.transaction_date,
			comment = excluded.comment,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			is_synced = excluded.is_synced,
			client_key = excluded.client_key`, s.table, txColumns)
	stmt, err := dbtx.PrepareContext(ctx, q)
	if err != nil {
		return storage.Wrap("prepare upsert "+s.table, err)
	}
	defer stmt.Close()

	for _, t := range txs {
		if _, err := stmt.ExecContext(ctx, txArgs(t)...); err != nil {
			return storage.Wrap("upsert "+s.table, err)
		}
	}
	if err := dbtx.Commit(); err != nil {
		return storage.Wrap("commit upsert "+s.table, err)
	}
	return nil
}

type pendingTable struct {
	transactionTable
}

func (p *pendingTable) FetchPendingDeletions(ctx context.Context) ([]int64, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT id FROM pending_deletions ORDER BY marked_at, id")
	if err != nil {
		return nil, storage.Wrap("fetch deletions", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storage.Wrap("fetch deletions", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("fetch deletions", err)
	}
	return out, nil
}

func (p *pendingTable) MarkDeletion(ctx context.Context, id int64) error {
	_, err := p.db.ExecContext(ctx,
		"INSERT INTO pending_deletions (id, marked_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING",
		id, time.Now().UnixMilli())
	if err != nil {
		return storage.Wrap("mark deletion", err)
	}
	return nil
}

func (p *pendingTable) ClearDeletionMark(ctx context.Context, id int64) error {
	if _, err := p.db.ExecContext(ctx, "DELETE FROM pending_deletions WHERE id = ?", id); err != nil {
		return storage.Wrap("clear deletion", err)
	}
	return nil
}

type accountTable struct {
	db *sql.DB
}

func (a *accountTable) LoadAccount(ctx context.Context) (core.Account, error) {
	var (
		acct             core.Account
		balance          string
		created, updated int64
		state            int64
	)
	err := a.db.QueryRowContext(ctx,
		"SELECT id, user_id, name, balance, currency, created_at, updated_at, state FROM account WHERE slot = 1").
		Scan(&acct.ID, &acct.UserID, &acct.Name, &balance, &acct.Currency, &created, &updated, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, storage.ErrNotFound
	}
	if err != nil {
		return core.Account{}, storage.Wrap("load account", err)
	}
	acct.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return core.Account{}, storage.Wrap("parse account balance", err)
	}
	acct.CreatedAt = fromMillis(created)
	acct.UpdatedAt = fromMillis(updated)
	acct.State = core.BalanceState(state)
	return acct, nil
}

func (a *accountTable) SaveAccount(ctx context.Context, acct core.Account) error {
	_, err := a.db.ExecContext(ctx, `INSERT INTO account (slot, id, user_id, name, balance, currency, created_at, updated_at, state)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			id = excluded.id,
			user_id = excluded.user_id,
			name = excluded.name,
			balance = excluded.balance,
			currency = excluded.currency,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			state = excluded.state`,
		acct.ID, acct.UserID, acct.Name, acct.Balance.String(), acct.Currency,
		toMillis(acct.CreatedAt), toMillis(acct.UpdatedAt), int64(acct.State))
	if err != nil {
		return storage.Wrap("save account", err)
	}
	return nil
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullableMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func nullableTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
