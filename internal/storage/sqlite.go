package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	logx "tgmon/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Accounts ----

func (s *sqliteStore) AddAccount(ctx context.Context, a Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts(name, token, enabled) VALUES(?,?,?)`,
		a.Name, a.Token, boolInt(a.Enabled),
	)
	return err
}

func (s *sqliteStore) GetAccount(ctx context.Context, name string) (Account, error) {
	var a Account
	var enabled int
	err := s.db.QueryRowContext(ctx,
		`SELECT name, token, enabled FROM accounts WHERE name = ?`, name,
	).Scan(&a.Name, &a.Token, &enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	a.Enabled = enabled != 0
	return a, nil
}

func (s *sqliteStore) ListAccounts(ctx context.Context, enabledOnly bool) ([]Account, error) {
	q := `SELECT name, token, enabled FROM accounts`
	if enabledOnly {
		q += ` WHERE enabled = 1`
	}
	q += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		var enabled int
		if err := rows.Scan(&a.Name, &a.Token, &enabled); err != nil {
			return nil, err
		}
		a.Enabled = enabled != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SetAccountEnabled(ctx context.Context, name string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET enabled = ? WHERE name = ?`, boolInt(enabled), name)
	return oneRow(res, err)
}

func (s *sqliteStore) RemoveAccount(ctx context.Context, name string) error {
	// Watches belong to the account; remove them together.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM watches WHERE account_name = ?`, name); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE name = ?`, name)
	return oneRow(res, err)
}

// ---- Watches ----

func (s *sqliteStore) AddWatch(ctx context.Context, w Watch) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO watches(account_name, chat_ref, enabled) VALUES(?,?,?)`,
		w.AccountName, w.ChatRef, boolInt(w.Enabled),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) ListWatches(ctx context.Context, accountName string, enabledOnly bool) ([]Watch, error) {
	q := `SELECT id, account_name, chat_ref, chat_id, chat_title, enabled FROM watches`
	var (
		conds []string
		args  []any
	)
	if accountName != "" {
		conds = append(conds, `account_name = ?`)
		args = append(args, accountName)
	}
	if enabledOnly {
		conds = append(conds, `enabled = 1`)
	}
	for i, c := range conds {
		if i == 0 {
			q += ` WHERE ` + c
		} else {
			q += ` AND ` + c
		}
	}
	q += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Watch
	for rows.Next() {
		var w Watch
		var chatID sql.NullInt64
		var chatTitle sql.NullString
		var enabled int
		if err := rows.Scan(&w.ID, &w.AccountName, &w.ChatRef, &chatID, &chatTitle, &enabled); err != nil {
			return nil, err
		}
		if chatID.Valid {
			v := chatID.Int64
			w.ChatID = &v
		}
		if chatTitle.Valid {
			v := chatTitle.String
			w.ChatTitle = &v
		}
		w.Enabled = enabled != 0
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SetWatchEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE watches SET enabled = ? WHERE id = ?`, boolInt(enabled), id)
	return oneRow(res, err)
}

func (s *sqliteStore) RemoveWatch(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM watches WHERE id = ?`, id)
	return oneRow(res, err)
}

func (s *sqliteStore) UpdateWatchResolved(ctx context.Context, id int64, chatID int64, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE watches SET chat_id = ?, chat_title = ? WHERE id = ?`,
		chatID, title, id)
	return oneRow(res, err)
}

// ---- Aggregator ----

func (s *sqliteStore) SetAggregator(ctx context.Context, a Aggregator) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO aggregator(id, chat_ref, account_name, chat_id, chat_title)
		 VALUES(1,?,?,NULL,NULL)
		 ON CONFLICT(id) DO UPDATE SET
		   chat_ref=excluded.chat_ref, account_name=excluded.account_name,
		   chat_id=NULL, chat_title=NULL`,
		a.ChatRef, a.AccountName,
	)
	return err
}

func (s *sqliteStore) GetAggregator(ctx context.Context) (Aggregator, error) {
	var a Aggregator
	var chatID sql.NullInt64
	var chatTitle sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_ref, account_name, chat_id, chat_title FROM aggregator WHERE id = 1`,
	).Scan(&a.ChatRef, &a.AccountName, &chatID, &chatTitle)
	if errors.Is(err, sql.ErrNoRows) {
		return Aggregator{}, ErrNotFound
	}
	if err != nil {
		return Aggregator{}, err
	}
	if chatID.Valid {
		v := chatID.Int64
		a.ChatID = &v
	}
	if chatTitle.Valid {
		v := chatTitle.String
		a.ChatTitle = &v
	}
	return a, nil
}

func (s *sqliteStore) UpdateAggregatorResolved(ctx context.Context, chatID int64, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE aggregator SET chat_id = ?, chat_title = ? WHERE id = 1`,
		chatID, title)
	return oneRow(res, err)
}

// ---- helpers ----

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func oneRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
