package statestore

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLStore implements Store using database/sql. It works with both
// Postgres and SQLite via standard drivers.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS vaultgate_state (
	slot TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at TIMESTAMP,
	PRIMARY KEY (slot, key)
);
`

// Init creates the backing table if it does not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Begin starts a database transaction.
func (s *SQLStore) Begin(ctx context.Context) (Txn, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTxn{tx: tx}, nil
}

type sqlTxn struct {
	tx     *sql.Tx
	closed bool
}

func (t *sqlTxn) Get(ctx context.Context, slot SlotID, key string) ([]byte, bool, error) {
	if t.closed {
		return nil, false, ErrTxnClosed
	}
	query := `SELECT value FROM vaultgate_state WHERE slot = $1 AND key = $2`
	var value string
	err := t.tx.QueryRowContext(ctx, query, slot.String(), key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return []byte(value), true, nil
}

func (t *sqlTxn) Put(ctx context.Context, slot SlotID, key string, value []byte) error {
	if t.closed {
		return ErrTxnClosed
	}
	query := `
		INSERT INTO vaultgate_state (slot, key, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (slot, key) DO UPDATE SET value = $3, updated_at = $4
	`
	_, err := t.tx.ExecContext(ctx, query, slot.String(), key, string(value), time.Now().UTC())
	return err
}

func (t *sqlTxn) Delete(ctx context.Context, slot SlotID, key string) error {
	if t.closed {
		return ErrTxnClosed
	}
	query := `DELETE FROM vaultgate_state WHERE slot = $1 AND key = $2`
	_, err := t.tx.ExecContext(ctx, query, slot.String(), key)
	return err
}

func (t *sqlTxn) Commit() error {
	if t.closed {
		return ErrTxnClosed
	}
	t.closed = true
	return t.tx.Commit()
}

func (t *sqlTxn) Rollback() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.tx.Rollback()
}
