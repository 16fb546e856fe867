package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// NewDB creates a Postgres connection with sane defaults.
func NewDB(ctx context.Context, connString string) (*sql.DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Postgres keeps the collections in two tables and replaces them inside a
// single transaction.
type Postgres struct {
	db *sql.DB
}

// NewPostgres migrates the schema on db.
func NewPostgres(ctx context.Context, db *sql.DB) (*Postgres, error) {
	p := &Postgres{db: db}
	if err := p.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS users (
		seq        BIGSERIAL PRIMARY KEY,
		id         INTEGER NOT NULL UNIQUE,
		name       TEXT NOT NULL,
		encoding   JSONB NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS history (
		seq       BIGSERIAL PRIMARY KEY,
		user_id   TEXT NOT NULL,
		name      TEXT NOT NULL,
		type      TEXT NOT NULL,
		occurred_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_user ON history(user_id);
	`)
	return err
}

// Load implements Backend.
func (p *Postgres) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	rows, err := p.db.QueryContext(ctx, `SELECT id, name, encoding, created_at FROM users ORDER BY seq`)
	if err != nil {
		return Snapshot{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			u   UserRecord
			enc []byte
		)
		if err := rows.Scan(&u.ID, &u.Name, &enc, &u.CreatedAt); err != nil {
			return Snapshot{}, err
		}
		if err := json.Unmarshal(enc, &u.Encoding); err != nil {
			return Snapshot{}, fmt.Errorf("%w: user %d encoding: %v", ErrCorrupt, u.ID, err)
		}
		snap.Users = append(snap.Users, u)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	hrows, err := p.db.QueryContext(ctx, `SELECT user_id, name, type, occurred_at FROM history ORDER BY seq`)
	if err != nil {
		return Snapshot{}, err
	}
	defer hrows.Close()
	for hrows.Next() {
		var h HistoryRecord
		if err := hrows.Scan(&h.UserID, &h.Name, &h.Type, &h.Timestamp); err != nil {
			return Snapshot{}, err
		}
		snap.History = append(snap.History, h)
	}
	return snap, hrows.Err()
}

// Replace implements Backend.
func (p *Postgres) Replace(ctx context.Context, snap Snapshot) error {
	snap.normalize()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return err
	}
	for _, u := range snap.Users {
		enc, err := json.Marshal(u.Encoding)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, name, encoding, created_at) VALUES ($1, $2, $3, $4)`,
			u.ID, u.Name, string(enc), u.CreatedAt); err != nil {
			return fmt.Errorf("insert user %d: %w", u.ID, err)
		}
	}
	for _, h := range snap.History {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO history (user_id, name, type, occurred_at) VALUES ($1, $2, $3, $4)`,
			h.UserID, h.Name, h.Type, h.Timestamp); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
	}
	return tx.Commit()
}

// Close closes the underlying connection.
func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
