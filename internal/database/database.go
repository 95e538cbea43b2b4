// Copyright (c) 2025, hui-shao and the byre contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package database owns the embedded SQLite store used for the plan
// audit trail.
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Querier is the common surface of *sql.DB and *sql.Tx, so stores can
// run inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS plan_runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	site        TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	applied     BOOLEAN NOT NULL DEFAULT 0,
	added       INTEGER NOT NULL DEFAULT 0,
	renamed     INTEGER NOT NULL DEFAULT 0,
	removed     INTEGER NOT NULL DEFAULT 0,
	kept        INTEGER NOT NULL DEFAULT 0,
	actions     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_plan_runs_site ON plan_runs (site, created_at DESC);
`

type DB struct {
	conn *sql.DB
}

func New(dbPath string) (*DB, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", dbPath, err)
	}

	// modernc sqlite serializes writes itself; a single connection
	// avoids SQLITE_BUSY churn.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.Debug().Str("path", dbPath).Msg("Database ready")
	return &DB{conn: conn}, nil
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) Close() error {
	return db.conn.Close()
}
