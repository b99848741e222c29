// internal/db/db.go
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Connect opens a Postgres connection from a DSN and verifies it with a ping.
// The caller owns the returned handle and closes it on shutdown; nothing in
// this package keeps a global.
func Connect(dsn string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}

	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	return conn, nil
}

// Schema creates the tables the scheduler needs. Used by cmd/seeder and by
// tests against a scratch database.
const Schema = `
CREATE TABLE IF NOT EXISTS campaigns (
    id               TEXT PRIMARY KEY,
    owner_email      TEXT NOT NULL,
    from_email       TEXT NOT NULL,
    subject          TEXT NOT NULL,
    body             TEXT NOT NULL,
    status           TEXT NOT NULL DEFAULT 'scheduled',
    scheduled_at     TIMESTAMPTZ NOT NULL,
    delay_between_ms BIGINT NOT NULL DEFAULT 0,
    hourly_limit     INT NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS recipient_jobs (
    id           TEXT PRIMARY KEY,
    campaign_id  TEXT NOT NULL REFERENCES campaigns(id),
    to_email     TEXT NOT NULL,
    status       TEXT NOT NULL DEFAULT 'scheduled',
    scheduled_at TIMESTAMPTZ NOT NULL,
    sent_at      TIMESTAMPTZ,
    last_error   TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_recipient_jobs_campaign ON recipient_jobs(campaign_id);
CREATE INDEX IF NOT EXISTS idx_recipient_jobs_status ON recipient_jobs(status);
`
