package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store over a single partitioned key-value table. This
// is the remote-table backend: one row per record, values stored as JSONB.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a PostgreSQL-backed store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// InitSchema creates the kv_records table if it does not exist.
func (s *Postgres) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS kv_records (
			partition TEXT NOT NULL,
			key       TEXT NOT NULL,
			value     JSONB NOT NULL,
			PRIMARY KEY (partition, key)
		)`)
	if err != nil {
		return fmt.Errorf("kv: init schema: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, p Partition, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM kv_records WHERE partition = $1 AND key = $2`,
		string(p), key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: get %s/%s: %w", p, key, err)
	}
	return value, nil
}

func (s *Postgres) Put(ctx context.Context, p Partition, key string, value []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv_records (partition, key, value) VALUES ($1, $2, $3)
		 ON CONFLICT (partition, key) DO UPDATE SET value = EXCLUDED.value`,
		string(p), key, value)
	if err != nil {
		return fmt.Errorf("kv: put %s/%s: %w", p, key, err)
	}
	return nil
}

func (s *Postgres) QueryByPrefix(ctx context.Context, p Partition, prefix string) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, value FROM kv_records
		 WHERE partition = $1 AND key LIKE $2 || '%'`,
		string(p), escapeLike(prefix))
	if err != nil {
		return nil, fmt.Errorf("kv: query %s/%s*: %w", p, prefix, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Key, &r.Value); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Postgres) Delete(ctx context.Context, p Partition, key string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM kv_records WHERE partition = $1 AND key = $2`,
		string(p), key)
	if err != nil {
		return fmt.Errorf("kv: delete %s/%s: %w", p, key, err)
	}
	return nil
}

// escapeLike escapes LIKE metacharacters so a key prefix matches literally.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
