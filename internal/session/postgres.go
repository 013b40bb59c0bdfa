package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id          TEXT PRIMARY KEY,
    doc         JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore persists each session as a single JSONB document. Put is
// an atomic full-document replace, which matches the engine's
// persist-session contract: the caller always writes a complete session
// snapshot produced inside the exclusive section.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// NewPostgresStore wraps the pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

// EnsureSchema creates the sessions table if it does not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if p == nil || p.Pool == nil {
		return errors.New("session: postgres store not configured")
	}
	_, err := p.Pool.Exec(ctx, schema)
	return err
}

// Get loads and decodes the session document.
func (p *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	var doc []byte
	err := p.Pool.QueryRow(ctx, `SELECT doc FROM sessions WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: load %s: %w", id, err)
	}
	var s Session
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", id, err)
	}
	return &s, nil
}

// Put upserts the full session document.
func (p *PostgresStore) Put(ctx context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return errors.New("session: missing id")
	}
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", s.ID, err)
	}
	_, err = p.Pool.Exec(ctx, `
		INSERT INTO sessions (id, doc, created_at, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		s.ID, doc, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("session: persist %s: %w", s.ID, err)
	}
	return nil
}

// List returns all sessions ordered by creation time.
func (p *PostgresStore) List(ctx context.Context) ([]*Session, error) {
	rows, err := p.Pool.Query(ctx, `SELECT doc FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	defer rows.Close()
	var out []*Session
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var s Session
		if err := json.Unmarshal(doc, &s); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
