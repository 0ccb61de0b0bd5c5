package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	_ "modernc.org/sqlite" // SQLite driver
)

// maxSerializationRetries bounds how often a Postgres transaction is re-run
// after losing a serialization conflict.
const maxSerializationRetries = 5

// Dialect selects the SQL flavour used for schema creation.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLStore implements Backend using database/sql.
// It supports both Postgres and SQLite via standard drivers.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// OpenSQLite opens (creating if needed) a SQLite database file and
// initializes the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// A single connection keeps SQLite writers from tripping over each other.
	db.SetMaxOpenConns(1)
	s := NewSQLStore(db, DialectSQLite)
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres connects to Postgres and initializes the schema.
func OpenPostgres(ctx context.Context, url string) (*SQLStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	s := NewSQLStore(db, DialectPostgres)
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) schema() string {
	valueType := "BLOB"
	if s.dialect == DialectPostgres {
		valueType = "BYTEA"
	}
	return `
CREATE TABLE IF NOT EXISTS seal_kv (
	k TEXT PRIMARY KEY,
	v ` + valueType + ` NOT NULL
);
`
}

// Init creates the key/value table if it does not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.schema()); err != nil {
		return fmt.Errorf("failed to init state schema: %w", err)
	}
	return nil
}

// Update runs fn in one transaction. Postgres transactions are
// SERIALIZABLE and re-run on serialization failure, so concurrent
// read-modify-write cycles never interleave; SQLite writers are already
// exclusive.
func (s *SQLStore) Update(ctx context.Context, fn func(kv KV) error) error {
	if s.dialect != DialectPostgres {
		return s.update(ctx, nil, fn)
	}
	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}
	for attempt := 0; attempt < maxSerializationRetries; attempt++ {
		err := s.update(ctx, opts, fn)
		if !isSerializationFailure(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrConflict, maxSerializationRetries)
}

func (s *SQLStore) update(ctx context.Context, opts *sql.TxOptions, fn func(kv KV) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&sqlKV{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isSerializationFailure reports a Postgres serialization_failure or
// deadlock_detected error.
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

func (s *SQLStore) View(ctx context.Context, fn func(kv KV) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: s.dialect == DialectPostgres})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(&sqlKV{tx: tx, readOnly: true})
}

func (s *SQLStore) Close() error { return s.db.Close() }

type sqlKV struct {
	tx       *sql.Tx
	readOnly bool
}

func (kv *sqlKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	row := kv.tx.QueryRowContext(ctx, "SELECT v FROM seal_kv WHERE k = $1", key)
	var v []byte
	err := row.Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return v, true, nil
}

func (kv *sqlKV) Set(ctx context.Context, key string, value []byte) error {
	if kv.readOnly {
		return ErrReadOnly
	}
	if value == nil {
		value = []byte{}
	}
	query := `
		INSERT INTO seal_kv (k, v) VALUES ($1, $2)
		ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v
	`
	if _, err := kv.tx.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (kv *sqlKV) Delete(ctx context.Context, key string) error {
	if kv.readOnly {
		return ErrReadOnly
	}
	if _, err := kv.tx.ExecContext(ctx, "DELETE FROM seal_kv WHERE k = $1", key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
