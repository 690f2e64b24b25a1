package accounts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"golang.org/x/oauth2"
	_ "modernc.org/sqlite"

	"github.com/teemow/inboxglance/internal/gmail"
	"github.com/teemow/inboxglance/internal/secrets"
)

// SQLiteStore persists accounts in a SQLite database. Token sets are sealed
// with the configured secrets.Box before they are written.
type SQLiteStore struct {
	db  *sqlx.DB
	box *secrets.Box
}

type accountRow struct {
	ID       int64  `db:"id"`
	Email    string `db:"email"`
	Token    string `db:"token"`
	Messages string `db:"messages"`
}

// NewSQLiteStore opens (or creates) the database at dbPath, enables WAL
// mode, and applies pending migrations. dbPath ":memory:" gives a private
// in-memory database. box may be nil to store tokens unencrypted.
func NewSQLiteStore(dbPath string, box *secrets.Box) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, box: box}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

func (s *SQLiteStore) UpsertIfAbsent(ctx context.Context, acct Account) (bool, error) {
	if err := validate(acct); err != nil {
		return false, err
	}

	token, err := s.sealToken(acct.Token)
	if err != nil {
		return false, err
	}
	messages := acct.Messages
	if messages == nil {
		messages = []gmail.MessageRecord{}
	}
	rawMessages, err := json.Marshal(messages)
	if err != nil {
		return false, fmt.Errorf("marshaling messages for account: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (email, token, messages) VALUES (?, ?, ?)
		 ON CONFLICT(email) DO NOTHING`,
		acct.Email, token, string(rawMessages),
	)
	if err != nil {
		return false, fmt.Errorf("inserting account: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading inserted rows: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Account, error) {
	var rows []accountRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT id, email, token, messages FROM accounts ORDER BY id"); err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}

	out := make([]Account, 0, len(rows))
	for _, row := range rows {
		acct, err := s.toAccount(row)
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, nil
}

func (s *SQLiteStore) Remove(ctx context.Context, email string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM accounts WHERE email = ?", email)
	if err != nil {
		return false, fmt.Errorf("removing account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading removed rows: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) sealToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", nil
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return "", fmt.Errorf("marshaling token: %w", err)
	}
	sealed, err := s.box.Seal(raw)
	if err != nil {
		return "", fmt.Errorf("sealing token: %w", err)
	}
	return sealed, nil
}

func (s *SQLiteStore) toAccount(row accountRow) (Account, error) {
	acct := Account{Email: row.Email}

	if row.Token != "" {
		raw, err := s.box.Open(row.Token)
		if err != nil {
			return Account{}, fmt.Errorf("opening token for account %d: %w", row.ID, err)
		}
		var tok oauth2.Token
		if err := json.Unmarshal(raw, &tok); err != nil {
			return Account{}, fmt.Errorf("unmarshaling token for account %d: %w", row.ID, err)
		}
		acct.Token = &tok
	}

	if err := json.Unmarshal([]byte(row.Messages), &acct.Messages); err != nil {
		return Account{}, fmt.Errorf("unmarshaling messages for account %d: %w", row.ID, err)
	}
	return acct, nil
}

var _ Store = (*SQLiteStore)(nil)
