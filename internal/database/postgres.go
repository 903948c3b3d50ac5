package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const (
	createStateTableQuery = "CREATE TABLE IF NOT EXISTS state_entries (" +
		"key TEXT PRIMARY KEY, value TEXT NOT NULL, updated_at TIMESTAMP NOT NULL)"
	loadStateQuery = "SELECT value FROM state_entries WHERE key = $1 LIMIT 1"
	saveStateQuery = "INSERT INTO state_entries (key, value, updated_at) VALUES ($1, $2, $3) " +
		"ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at"
)

type PgRepository struct {
	conn *sql.DB
}

func NewPgRepository(dsn string) (*PgRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return newPgRepository(db)
}

func newPgRepository(db *sql.DB) (*PgRepository, error) {
	if _, err := db.Exec(createStateTableQuery); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &PgRepository{conn: db}, nil
}

func (db *PgRepository) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *PgRepository) Load(ctx context.Context, key string, v any) (bool, error) {
	var raw string
	err := db.conn.QueryRowContext(ctx, loadStateQuery, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("load %q: %w", key, err)
	}

	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return true, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

func (db *PgRepository) Save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}

	if _, err := db.conn.ExecContext(ctx, saveStateQuery, key, string(raw), time.Now().UTC()); err != nil {
		return fmt.Errorf("save %q: %w", key, err)
	}
	return nil
}

func (db *PgRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
