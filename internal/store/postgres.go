package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultListLimit = 1000

// PostgresKV implements KV on a single kv table. The conditional write maps
// to INSERT ... ON CONFLICT DO NOTHING, which is what lets reservation-style
// claims be first-writer-wins instead of check-then-act.
type PostgresKV struct {
	pool *pgxpool.Pool
}

// NewPostgresKV creates a PostgresKV backed by the given pool.
func NewPostgresKV(pool *pgxpool.Pool) *PostgresKV {
	return &PostgresKV{pool: pool}
}

func (p *PostgresKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM kv
		 WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`,
		key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		// Opportunistically clear an expired row so PutIfAbsent can reclaim it.
		_, _ = p.pool.Exec(ctx, `DELETE FROM kv WHERE key = $1 AND expires_at <= now()`, key)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (p *PostgresKV) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, expiry(ttl))
	return err
}

func (p *PostgresKV) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	// An expired row still occupies the key; reclaim it first so the
	// conditional insert sees the key as truly absent.
	_, _ = p.pool.Exec(ctx, `DELETE FROM kv WHERE key = $1 AND expires_at <= now()`, key)

	tag, err := p.pool.Exec(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO NOTHING`,
		key, value, expiry(ttl))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyExists
	}
	return nil
}

func (p *PostgresKV) Delete(ctx context.Context, key string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM kv WHERE key = $1`, key)
	return err
}

func (p *PostgresKV) List(ctx context.Context, prefix string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	// Range scan on the primary key; avoids LIKE so prefixes containing
	// pattern metacharacters ('_' in names) behave.
	rows, err := p.pool.Query(ctx,
		`SELECT key, value FROM kv
		 WHERE key >= $1 AND key < $2 AND (expires_at IS NULL OR expires_at > now())
		 ORDER BY key
		 LIMIT $3`,
		prefix, prefixEnd(prefix), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (p *PostgresKV) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func expiry(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := time.Now().UTC().Add(ttl)
	return &t
}

// prefixEnd returns the smallest string greater than every string with the
// given prefix, for a half-open range scan.
func prefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return string(append(b, 0xff))
}
