package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

// Postgres is a Backend backed by a single table keyed on (namespace, key).
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool against dsn and ensures the storage
// table exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("storage: ping postgres: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS plaid_storage (
	namespace TEXT NOT NULL,
	key TEXT NOT NULL,
	value BYTEA NOT NULL,
	PRIMARY KEY (namespace, key)
)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("storage: create table: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Insert(ctx context.Context, ns, key string, value []byte) (int, error) {
	var existingLen int
	row := p.db.QueryRowContext(ctx, `SELECT length(value) FROM plaid_storage WHERE namespace=$1 AND key=$2`, ns, key)
	if err := row.Scan(&existingLen); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("storage: lookup existing: %w", err)
	}

	_, err := p.db.ExecContext(ctx, `
INSERT INTO plaid_storage (namespace, key, value) VALUES ($1, $2, $3)
ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value`, ns, key, value)
	if err != nil {
		return 0, fmt.Errorf("storage: insert: %w", err)
	}
	return existingLen, nil
}

func (p *Postgres) Get(ctx context.Context, ns, key string) ([]byte, bool, error) {
	var value []byte
	row := p.db.QueryRowContext(ctx, `SELECT value FROM plaid_storage WHERE namespace=$1 AND key=$2`, ns, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("storage: get: %w", err)
	}
	return value, true, nil
}

func (p *Postgres) Delete(ctx context.Context, ns, key string) (int, bool, error) {
	var deletedLen int
	row := p.db.QueryRowContext(ctx, `SELECT length(value) FROM plaid_storage WHERE namespace=$1 AND key=$2`, ns, key)
	if err := row.Scan(&deletedLen); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("storage: lookup for delete: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, `DELETE FROM plaid_storage WHERE namespace=$1 AND key=$2`, ns, key); err != nil {
		return 0, false, fmt.Errorf("storage: delete: %w", err)
	}
	return deletedLen, true, nil
}

func (p *Postgres) ListKeys(ctx context.Context, ns string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT key FROM plaid_storage WHERE namespace=$1`, ns)
	if err != nil {
		return nil, fmt.Errorf("storage: list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("storage: scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (p *Postgres) GetNamespaceByteSize(ctx context.Context, ns string) (uint64, error) {
	var total sql.NullInt64
	row := p.db.QueryRowContext(ctx, `SELECT SUM(length(key) + length(value)) FROM plaid_storage WHERE namespace=$1`, ns)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("storage: namespace size: %w", err)
	}
	if !total.Valid {
		return 0, nil
	}
	return uint64(total.Int64), nil
}

func (p *Postgres) IsPersistent() bool { return true }
