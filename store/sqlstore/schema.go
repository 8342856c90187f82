package sqlstore

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the SQL flavor of the backing database.
type Dialect int

const (
	// Postgres targets PostgreSQL through github.com/lib/pq.
	Postgres Dialect = iota
	// SQLite targets SQLite through modernc.org/sqlite.
	SQLite
)

func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return "dialect(" + strconv.Itoa(int(d)) + ")"
	}
}

// ParseDialect maps a driver name to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return 0, fmt.Errorf("unsupported sql dialect %q", name)
	}
}

// driverName is the database/sql driver registered for d.
func (d Dialect) driverName() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// rebind rewrites ? placeholders into $n for Postgres.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var (
		b strings.Builder
		n int
	)
	b.Grow(len(query) + 8)
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// schema returns the statements Migrate runs, in order.
func (d Dialect) schema() []string {
	var (
		backupCodes = "TEXT NOT NULL DEFAULT '[]'"
		serial      = "INTEGER PRIMARY KEY AUTOINCREMENT"
		metadata    = "TEXT"
	)
	if d == Postgres {
		backupCodes = "TEXT[] NOT NULL DEFAULT '{}'"
		serial = "BIGSERIAL PRIMARY KEY"
		metadata = "JSONB"
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			failed_attempts INTEGER NOT NULL DEFAULT 0,
			locked_until TIMESTAMP NULL,
			email_verified BOOLEAN NOT NULL DEFAULT FALSE,
			two_factor_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			two_factor_secret TEXT NOT NULL DEFAULT '',
			backup_codes ` + backupCodes + `,
			last_totp_counter BIGINT NOT NULL DEFAULT 0,
			verification_token_hash TEXT NOT NULL DEFAULT '',
			verification_expires_at TIMESTAMP NULL,
			reset_token_hash TEXT NOT NULL DEFAULT '',
			reset_expires_at TIMESTAMP NULL,
			registration_ip TEXT NOT NULL DEFAULT '',
			last_login_at TIMESTAMP NULL,
			last_login_ip TEXT NOT NULL DEFAULT '',
			password_changed_at TIMESTAMP NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_verification_token ON users(verification_token_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_users_reset_token ON users(reset_token_hash)`,
		`CREATE TABLE IF NOT EXISTS login_attempts (
			id ` + serial + `,
			email TEXT NOT NULL,
			ip_address TEXT NOT NULL,
			user_agent TEXT NOT NULL DEFAULT '',
			success BOOLEAN NOT NULL,
			failure_reason TEXT NOT NULL DEFAULT '',
			attempted_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_login_attempts_email_time ON login_attempts(email, attempted_at)`,
		`CREATE TABLE IF NOT EXISTS security_events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			actor_id TEXT NOT NULL DEFAULT '',
			ip_address TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL,
			metadata ` + metadata + `,
			occurred_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_security_events_actor ON security_events(actor_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_security_events_type ON security_events(event_type)`,
	}
}
