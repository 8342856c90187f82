package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/secureauth"
	"github.com/google/uuid"
	"github.com/lib/pq"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// pgUniqueViolation is the SQLSTATE of a unique constraint failure.
const pgUniqueViolation = "23505"

// Store is a secureauth.UserStore over database/sql.
//
// Commands run inside a transaction: the row is read (FOR UPDATE on
// Postgres), the command is applied in memory, and every mutable column is
// written back. A command that fails rolls the transaction back.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ secureauth.UserStore = (*Store)(nil)

// New wraps an open database.
func New(db *sql.DB, dialect Dialect) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &Store{db: db, dialect: dialect}, nil
}

// Open opens dsn with the driver registered for dialect. SQLite is limited
// to one connection so writers serialize instead of failing with SQLITE_BUSY.
func Open(dialect Dialect, dsn string) (*Store, error) {
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		db.SetMaxOpenConns(1)
	}
	return New(db, dialect)
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying handle.
func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

const userColumns = `id, first_name, last_name, email, password_hash, role,
	failed_attempts, locked_until, email_verified, two_factor_enabled,
	two_factor_secret, backup_codes, last_totp_counter, verification_token_hash,
	verification_expires_at, reset_token_hash, reset_expires_at,
	registration_ip, last_login_at, last_login_ip, password_changed_at,
	created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanUser(row rowScanner) (*secureauth.User, error) {
	var (
		u           secureauth.User
		role        string
		codes       any
		pgCodes     []string
		sqliteCodes string
		lockedUntil sql.NullTime
		verifyExp   sql.NullTime
		resetExp    sql.NullTime
		lastLogin   sql.NullTime
		pwChangedAt sql.NullTime
	)
	if s.dialect == Postgres {
		codes = pq.Array(&pgCodes)
	} else {
		codes = &sqliteCodes
	}

	err := row.Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &role,
		&u.Security.FailedAttempts, &lockedUntil, &u.Security.EmailVerified, &u.Security.TwoFactorEnabled,
		&u.Security.TwoFactorSecret, codes, &u.Security.LastTOTPCounter, &u.VerificationTokenHash,
		&verifyExp, &u.ResetTokenHash, &resetExp,
		&u.RegistrationIP, &lastLogin, &u.LastLoginIP, &pwChangedAt,
		&u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, secureauth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.Role = secureauth.Role(role)
	u.Security.LockedUntil = timeOf(lockedUntil)
	u.VerificationExpiresAt = timeOf(verifyExp)
	u.ResetExpiresAt = timeOf(resetExp)
	u.LastLoginAt = timeOf(lastLogin)
	u.PasswordChangedAt = timeOf(pwChangedAt)
	u.CreatedAt = u.CreatedAt.UTC()

	if s.dialect == Postgres {
		u.Security.BackupCodeHashes = pgCodes
	} else if sqliteCodes != "" {
		if err := json.Unmarshal([]byte(sqliteCodes), &u.Security.BackupCodeHashes); err != nil {
			return nil, fmt.Errorf("failed to decode backup codes: %w", err)
		}
	}
	if len(u.Security.BackupCodeHashes) == 0 {
		u.Security.BackupCodeHashes = nil
	}
	return &u, nil
}

func (s *Store) encodeCodes(codes []string) (any, error) {
	if codes == nil {
		codes = []string{}
	}
	if s.dialect == Postgres {
		return pq.Array(codes), nil
	}
	data, err := json.Marshal(codes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode backup codes: %w", err)
	}
	return string(data), nil
}

func timeOf(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func (s *Store) findOne(ctx context.Context, where string, args ...any) (*secureauth.User, error) {
	query := s.dialect.rebind("SELECT " + userColumns + " FROM users WHERE " + where)
	return s.scanUser(s.db.QueryRowContext(ctx, query, args...))
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*secureauth.User, error) {
	return s.findOne(ctx, "email = ?", email)
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*secureauth.User, error) {
	return s.findOne(ctx, "id = ?", id)
}

func (s *Store) FindUserByVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*secureauth.User, error) {
	if tokenHash == "" {
		return nil, secureauth.ErrUserNotFound
	}
	return s.findOne(ctx, "verification_token_hash = ? AND verification_expires_at > ?", tokenHash, now.UTC())
}

func (s *Store) FindUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (*secureauth.User, error) {
	if tokenHash == "" {
		return nil, secureauth.ErrUserNotFound
	}
	return s.findOne(ctx, "reset_token_hash = ? AND reset_expires_at > ?", tokenHash, now.UTC())
}

// CreateUser inserts u, assigning an ID when u.ID is empty.
func (s *Store) CreateUser(ctx context.Context, u *secureauth.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	codes, err := s.encodeCodes(u.Security.BackupCodeHashes)
	if err != nil {
		return err
	}

	query := s.dialect.rebind(`INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, query,
		u.ID, u.FirstName, u.LastName, u.Email, u.PasswordHash, string(u.Role),
		u.Security.FailedAttempts, nullTime(u.Security.LockedUntil), u.Security.EmailVerified, u.Security.TwoFactorEnabled,
		u.Security.TwoFactorSecret, codes, u.Security.LastTOTPCounter, u.VerificationTokenHash,
		nullTime(u.VerificationExpiresAt), u.ResetTokenHash, nullTime(u.ResetExpiresAt),
		u.RegistrationIP, nullTime(u.LastLoginAt), u.LastLoginIP, nullTime(u.PasswordChangedAt),
		u.CreatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return secureauth.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Apply runs cmd against the user row inside a transaction.
func (s *Store) Apply(ctx context.Context, userID string, cmd secureauth.Command) (*secureauth.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := "SELECT " + userColumns + " FROM users WHERE id = ?"
	if s.dialect == Postgres {
		query += " FOR UPDATE"
	}
	u, err := s.scanUser(tx.QueryRowContext(ctx, s.dialect.rebind(query), userID))
	if err != nil {
		return nil, err
	}

	if err := cmd.ApplyTo(u); err != nil {
		return nil, err
	}

	codes, err := s.encodeCodes(u.Security.BackupCodeHashes)
	if err != nil {
		return nil, err
	}
	update := s.dialect.rebind(`UPDATE users SET
		failed_attempts = ?, locked_until = ?, email_verified = ?,
		two_factor_enabled = ?, two_factor_secret = ?, backup_codes = ?,
		last_totp_counter = ?,
		verification_token_hash = ?, verification_expires_at = ?,
		reset_token_hash = ?, reset_expires_at = ?,
		password_hash = ?, password_changed_at = ?,
		last_login_at = ?, last_login_ip = ?
		WHERE id = ?`)
	_, err = tx.ExecContext(ctx, update,
		u.Security.FailedAttempts, nullTime(u.Security.LockedUntil), u.Security.EmailVerified,
		u.Security.TwoFactorEnabled, u.Security.TwoFactorSecret, codes,
		u.Security.LastTOTPCounter,
		u.VerificationTokenHash, nullTime(u.VerificationExpiresAt),
		u.ResetTokenHash, nullTime(u.ResetExpiresAt),
		u.PasswordHash, nullTime(u.PasswordChangedAt),
		nullTime(u.LastLoginAt), u.LastLoginIP,
		u.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit %s: %w", cmd.Name(), err)
	}
	return u, nil
}

func (s *Store) CountRecentFailedAttempts(ctx context.Context, email string, since time.Time) (int, error) {
	query := s.dialect.rebind(`SELECT COUNT(*) FROM login_attempts
		WHERE email = ? AND success = ? AND attempted_at >= ?`)
	var n int
	if err := s.db.QueryRowContext(ctx, query, email, false, since.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count login attempts: %w", err)
	}
	return n, nil
}

func (s *Store) RecordLoginAttempt(ctx context.Context, a secureauth.LoginAttempt) error {
	query := s.dialect.rebind(`INSERT INTO login_attempts
		(email, ip_address, user_agent, success, failure_reason, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query, a.Email, a.IP, a.UserAgent, a.Success, string(a.FailureReason), a.At.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert login attempt: %w", err)
	}
	return nil
}

func (s *Store) AppendSecurityEvent(ctx context.Context, e secureauth.SecurityEvent) error {
	metadata, err := json.Marshal(e.Metadata())
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	query := s.dialect.rebind(`INSERT INTO security_events
		(id, event_type, actor_id, ip_address, user_agent, description, metadata, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, query,
		e.ID, string(e.Type), e.ActorID, e.IP, e.UserAgent, e.Description(), string(metadata), e.OccurredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert security event: %w", err)
	}
	return nil
}

// PruneAttempts deletes login attempts older than before and returns how
// many were removed.
func (s *Store) PruneAttempts(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind("DELETE FROM login_attempts WHERE attempted_at < ?"), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune login attempts: %w", err)
	}
	return res.RowsAffected()
}

// RecentEvents returns up to limit events for actorID, newest first.
func (s *Store) RecentEvents(ctx context.Context, actorID string, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.dialect.rebind(`SELECT id, event_type, actor_id, ip_address, user_agent, description, metadata, occurred_at
		FROM security_events WHERE actor_id = ? ORDER BY occurred_at DESC LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, query, actorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var (
			ev       StoredEvent
			typ      string
			metadata []byte
		)
		if err := rows.Scan(&ev.ID, &typ, &ev.ActorID, &ev.IP, &ev.UserAgent, &ev.Description, &metadata, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		ev.Type = secureauth.EventType(typ)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode event metadata: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// StoredEvent is a security event read back from the database. The typed
// detail is flattened into Metadata.
type StoredEvent struct {
	ID          string
	Type        secureauth.EventType
	ActorID     string
	IP          string
	UserAgent   string
	Description string
	Metadata    map[string]string
	OccurredAt  time.Time
}
