package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/wispberry-tech/wispy-guard/core"
)

var _ core.Storage = (*PostgresStorage)(nil)

// PostgresStorage implements Storage interface for PostgreSQL databases
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(databaseDSN string) (*PostgresStorage, error) {
	// Parse the connection string
	config, err := pgx.ParseConfig(databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}

	db := stdlib.OpenDB(*config)

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return NewPostgresStorageFromDB(db)
}

// NewPostgresStorageFromDB creates a new PostgreSQL storage from an existing database connection
func NewPostgresStorageFromDB(db *sql.DB) (*PostgresStorage, error) {
	p := &PostgresStorage{db: db}

	// Auto-create missing tables
	schemaManager := core.NewSchemaManager(db, "postgres")
	if err := schemaManager.EnsureCoreSchema(); err != nil {
		return nil, fmt.Errorf("failed to ensure core schema: %w", err)
	}

	return p, nil
}

// DB returns the underlying database handle
func (p *PostgresStorage) DB() *sql.DB {
	return p.db
}

const postgresAccountColumns = `id, email, given_name, family_name, role, password_hash,
	active, locked, failed_attempts, locked_at, created_at, updated_at`

// Account operations
func (p *PostgresStorage) CreateAccount(ctx context.Context, account *core.Account) error {
	query := `INSERT INTO accounts (id, email, given_name, family_name, role, password_hash,
			  active, locked, failed_attempts, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := p.db.ExecContext(ctx, query,
		account.ID, account.Email, account.GivenName, account.FamilyName, account.Role,
		account.PasswordHash, account.Active, account.Locked, account.FailedAttempts,
		account.CreatedAt.UTC(), account.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (p *PostgresStorage) GetAccountByEmail(ctx context.Context, email string) (*core.Account, error) {
	query := `SELECT ` + postgresAccountColumns + ` FROM accounts WHERE email = $1`

	account, err := scanAccount(p.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}
	return account, nil
}

func (p *PostgresStorage) GetAccountByID(ctx context.Context, id string) (*core.Account, error) {
	query := `SELECT ` + postgresAccountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(p.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account by id: %w", err)
	}
	return account, nil
}

func (p *PostgresStorage) ActivateAccount(ctx context.Context, id string) error {
	query := `UPDATE accounts SET active = TRUE, updated_at = $1 WHERE id = $2`
	if _, err := p.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to activate account: %w", err)
	}
	return nil
}

func (p *PostgresStorage) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE accounts SET password_hash = $1, updated_at = $2 WHERE id = $3`
	if _, err := p.db.ExecContext(ctx, query, passwordHash, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	return nil
}

func (p *PostgresStorage) ListAccounts(ctx context.Context, limit, offset int) ([]*core.Account, error) {
	query := `SELECT ` + postgresAccountColumns + ` FROM accounts
			  ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`

	rows, err := p.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*core.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (p *PostgresStorage) EarliestAccountTimestamp(ctx context.Context) (*time.Time, error) {
	return p.earliest(ctx, `SELECT MIN(created_at) FROM accounts`, "account")
}

// Lockout operations
func (p *PostgresStorage) RegisterFailedLogin(ctx context.Context, id string, threshold int) (int, bool, error) {
	query := `UPDATE accounts SET
			  failed_attempts = failed_attempts + 1,
			  locked = CASE WHEN failed_attempts + 1 >= $1 THEN TRUE ELSE locked END,
			  locked_at = CASE WHEN failed_attempts + 1 >= $1 AND NOT locked THEN $2 ELSE locked_at END,
			  updated_at = $2
			  WHERE id = $3
			  RETURNING failed_attempts, locked`

	var attempts int
	var locked bool
	err := p.db.QueryRowContext(ctx, query, threshold, time.Now().UTC(), id).Scan(&attempts, &locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, fmt.Errorf("failed to register failed login: account %s not found", id)
		}
		return 0, false, fmt.Errorf("failed to register failed login: %w", err)
	}
	return attempts, locked, nil
}

func (p *PostgresStorage) ResetFailedLogins(ctx context.Context, id string) error {
	query := `UPDATE accounts SET failed_attempts = 0, updated_at = $1 WHERE id = $2`
	if _, err := p.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to reset failed logins: %w", err)
	}
	return nil
}

func (p *PostgresStorage) UnlockAccount(ctx context.Context, id string) error {
	query := `UPDATE accounts SET locked = FALSE, locked_at = NULL, failed_attempts = 0, updated_at = $1
			  WHERE id = $2`
	if _, err := p.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to unlock account: %w", err)
	}
	return nil
}

// Session operations
const postgresSessionColumns = `id, account_id, token_hash, ip_address, device_fingerprint,
	revoked, last_used_at, expires_at, created_at`

func (p *PostgresStorage) CreateSession(ctx context.Context, session *core.Session) error {
	query := `INSERT INTO sessions (id, account_id, token_hash, ip_address, device_fingerprint,
			  revoked, last_used_at, expires_at, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := p.db.ExecContext(ctx, query,
		session.ID, session.AccountID, session.TokenHash, session.IPAddress,
		session.DeviceFingerprint, session.Revoked, session.LastUsedAt.UTC(),
		session.ExpiresAt.UTC(), session.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (p *PostgresStorage) GetSessionByHash(ctx context.Context, tokenHash, accountID string) (*core.Session, error) {
	query := `SELECT ` + postgresSessionColumns + ` FROM sessions WHERE token_hash = $1 AND account_id = $2`

	session, err := scanSession(p.db.QueryRowContext(ctx, query, tokenHash, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (p *PostgresStorage) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*core.Session, error) {
	query := `SELECT ` + postgresSessionColumns + ` FROM sessions WHERE token_hash = $1`

	session, err := scanSession(p.db.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (p *PostgresStorage) TouchSession(ctx context.Context, id string, lastUsedAt time.Time) error {
	if _, err := p.db.ExecContext(ctx, `UPDATE sessions SET last_used_at = $1 WHERE id = $2`, lastUsedAt.UTC(), id); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (p *PostgresStorage) RevokeSession(ctx context.Context, id string) (bool, error) {
	result, err := p.db.ExecContext(ctx, `UPDATE sessions SET revoked = TRUE WHERE id = $1 AND NOT revoked`, id)
	if err != nil {
		return false, fmt.Errorf("failed to revoke session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected == 1, nil
}

func (p *PostgresStorage) RevokeAccountSessions(ctx context.Context, accountID string) error {
	query := `UPDATE sessions SET revoked = TRUE WHERE account_id = $1 AND NOT revoked`
	if _, err := p.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("failed to revoke account sessions: %w", err)
	}
	return nil
}

func (p *PostgresStorage) ListAccountSessions(ctx context.Context, accountID string) ([]*core.Session, error) {
	query := `SELECT ` + postgresSessionColumns + ` FROM sessions
			  WHERE account_id = $1 ORDER BY last_used_at DESC`

	rows, err := p.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*core.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// Audit operations
func (p *PostgresStorage) CreateAuditEvent(ctx context.Context, event *core.AuditEvent) error {
	query := `INSERT INTO audit_events (action, account_id, ip_address, created_at)
			  VALUES ($1, $2, $3, $4) RETURNING id`

	err := p.db.QueryRowContext(ctx, query,
		string(event.Action), nullString(event.AccountID), event.IPAddress, event.CreatedAt.UTC()).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to create audit event: %w", err)
	}
	return nil
}

func (p *PostgresStorage) CountAuditEventsByIPSince(ctx context.Context, since time.Time) (map[string]int, error) {
	query := `SELECT ip_address, COUNT(*) FROM audit_events
			  WHERE created_at >= $1 GROUP BY ip_address`

	rows, err := p.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to count audit events by ip: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var ip string
		var count int
		if err := rows.Scan(&ip, &count); err != nil {
			return nil, fmt.Errorf("failed to scan audit count: %w", err)
		}
		counts[ip] = count
	}
	return counts, rows.Err()
}

func (p *PostgresStorage) CountAuditEventsByDay(ctx context.Context, since time.Time) ([]core.DailyActionCount, error) {
	query := `SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, action, COUNT(*)
			  FROM audit_events WHERE created_at >= $1 GROUP BY day, action ORDER BY day`

	rows, err := p.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to count audit events by day: %w", err)
	}
	defer rows.Close()

	var counts []core.DailyActionCount
	for rows.Next() {
		var row core.DailyActionCount
		var action string
		if err := rows.Scan(&row.Day, &action, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily audit count: %w", err)
		}
		row.Action = core.AuditAction(action)
		counts = append(counts, row)
	}
	return counts, rows.Err()
}

func (p *PostgresStorage) EarliestAuditTimestamp(ctx context.Context) (*time.Time, error) {
	return p.earliest(ctx, `SELECT MIN(created_at) FROM audit_events`, "audit")
}

func (p *PostgresStorage) ListAuditEvents(ctx context.Context, limit, offset int) ([]*core.AuditEvent, error) {
	query := `SELECT id, action, account_id, ip_address, created_at FROM audit_events
			  ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	rows, err := p.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*core.AuditEvent
	for rows.Next() {
		event := &core.AuditEvent{}
		var action string
		var accountID sql.NullString
		if err := rows.Scan(&event.ID, &action, &accountID, &event.IPAddress, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		event.Action = core.AuditAction(action)
		if accountID.Valid {
			event.AccountID = &accountID.String
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Blacklist operations
func (p *PostgresStorage) GetBlacklistEntry(ctx context.Context, ip string) (*core.BlacklistEntry, error) {
	entry := &core.BlacklistEntry{}
	query := `SELECT id, ip_address, reason, created_at FROM blacklist_entries WHERE ip_address = $1`

	err := p.db.QueryRowContext(ctx, query, ip).Scan(&entry.ID, &entry.IPAddress, &entry.Reason, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get blacklist entry: %w", err)
	}
	return entry, nil
}

func (p *PostgresStorage) CreateBlacklistEntry(ctx context.Context, entry *core.BlacklistEntry) (bool, error) {
	query := `INSERT INTO blacklist_entries (ip_address, reason, created_at) VALUES ($1, $2, $3)
			  ON CONFLICT (ip_address) DO NOTHING RETURNING id`

	err := p.db.QueryRowContext(ctx, query, entry.IPAddress, entry.Reason, entry.CreatedAt.UTC()).Scan(&entry.ID)
	if err != nil {
		// DO NOTHING returns no row when the address is already listed
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create blacklist entry: %w", err)
	}
	return true, nil
}

func (p *PostgresStorage) ListBlacklistEntries(ctx context.Context, limit, offset int) ([]*core.BlacklistEntry, error) {
	query := `SELECT id, ip_address, reason, created_at FROM blacklist_entries
			  ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	rows, err := p.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list blacklist entries: %w", err)
	}
	defer rows.Close()

	var entries []*core.BlacklistEntry
	for rows.Next() {
		entry := &core.BlacklistEntry{}
		if err := rows.Scan(&entry.ID, &entry.IPAddress, &entry.Reason, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan blacklist entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (p *PostgresStorage) CountBlacklistEntriesByDay(ctx context.Context, since time.Time) (map[string]int, error) {
	query := `SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
			  FROM blacklist_entries WHERE created_at >= $1 GROUP BY day`

	rows, err := p.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to count blacklist entries by day: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var day string
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("failed to scan blacklist count: %w", err)
		}
		counts[day] = count
	}
	return counts, rows.Err()
}

func (p *PostgresStorage) EarliestBlacklistTimestamp(ctx context.Context) (*time.Time, error) {
	return p.earliest(ctx, `SELECT MIN(created_at) FROM blacklist_entries`, "blacklist")
}

// Email verification operations
func (p *PostgresStorage) CreateVerificationCode(ctx context.Context, code *core.VerificationCode) error {
	query := `INSERT INTO verification_codes (account_id, code, expires_at, created_at)
			  VALUES ($1, $2, $3, $4) RETURNING id`

	err := p.db.QueryRowContext(ctx, query,
		code.AccountID, code.Code, code.ExpiresAt.UTC(), code.CreatedAt.UTC()).Scan(&code.ID)
	if err != nil {
		return fmt.Errorf("failed to create verification code: %w", err)
	}
	return nil
}

func (p *PostgresStorage) GetLatestVerificationCode(ctx context.Context, accountID string) (*core.VerificationCode, error) {
	code := &core.VerificationCode{}
	query := `SELECT id, account_id, code, expires_at, created_at FROM verification_codes
			  WHERE account_id = $1 ORDER BY id DESC LIMIT 1`

	err := p.db.QueryRowContext(ctx, query, accountID).Scan(
		&code.ID, &code.AccountID, &code.Code, &code.ExpiresAt, &code.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get verification code: %w", err)
	}
	return code, nil
}

func (p *PostgresStorage) DeleteVerificationCodes(ctx context.Context, accountID string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("failed to delete verification codes: %w", err)
	}
	return nil
}

// Password reset operations
func (p *PostgresStorage) CreatePasswordReset(ctx context.Context, reset *core.PasswordReset) error {
	query := `INSERT INTO password_resets (account_id, token_hash, used, expires_at, created_at)
			  VALUES ($1, $2, $3, $4, $5) RETURNING id`

	err := p.db.QueryRowContext(ctx, query,
		reset.AccountID, reset.TokenHash, reset.Used, reset.ExpiresAt.UTC(), reset.CreatedAt.UTC()).Scan(&reset.ID)
	if err != nil {
		return fmt.Errorf("failed to create password reset: %w", err)
	}
	return nil
}

func (p *PostgresStorage) GetPasswordResetByHash(ctx context.Context, tokenHash string) (*core.PasswordReset, error) {
	query := `SELECT id, account_id, token_hash, used, expires_at, created_at
			  FROM password_resets WHERE token_hash = $1`
	return p.getPasswordReset(ctx, query, tokenHash)
}

func (p *PostgresStorage) GetPendingPasswordReset(ctx context.Context, accountID string, now time.Time) (*core.PasswordReset, error) {
	query := `SELECT id, account_id, token_hash, used, expires_at, created_at
			  FROM password_resets WHERE account_id = $1 AND NOT used AND expires_at > $2
			  ORDER BY created_at DESC LIMIT 1`
	return p.getPasswordReset(ctx, query, accountID, now.UTC())
}

func (p *PostgresStorage) getPasswordReset(ctx context.Context, query string, args ...any) (*core.PasswordReset, error) {
	reset := &core.PasswordReset{}
	err := p.db.QueryRowContext(ctx, query, args...).Scan(
		&reset.ID, &reset.AccountID, &reset.TokenHash, &reset.Used, &reset.ExpiresAt, &reset.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get password reset: %w", err)
	}
	return reset, nil
}

func (p *PostgresStorage) CompletePasswordReset(ctx context.Context, id int64, accountID, passwordHash string) (bool, error) {
	err := withTx(ctx, p.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE password_resets SET used = TRUE WHERE id = $1 AND NOT used`, id)
		if err != nil {
			return fmt.Errorf("failed to mark password reset used: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if affected == 0 {
			return errResetConsumed
		}

		query := `UPDATE accounts SET password_hash = $1, updated_at = $2 WHERE id = $3`
		if _, err := tx.ExecContext(ctx, query, passwordHash, time.Now().UTC(), accountID); err != nil {
			return fmt.Errorf("failed to update password hash: %w", err)
		}
		return nil
	})
	if errors.Is(err, errResetConsumed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *PostgresStorage) earliest(ctx context.Context, query, what string) (*time.Time, error) {
	var ts sql.NullTime
	if err := p.db.QueryRowContext(ctx, query).Scan(&ts); err != nil {
		return nil, fmt.Errorf("failed to get earliest %s timestamp: %w", what, err)
	}
	if !ts.Valid {
		return nil, nil
	}
	return &ts.Time, nil
}

// Health check
func (p *PostgresStorage) Ping() error {
	return p.db.Ping()
}

func (p *PostgresStorage) Close() error {
	return p.db.Close()
}
