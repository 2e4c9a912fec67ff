package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/wispberry-tech/wispy-guard/core"
)

var _ core.Storage = (*SQLiteStorage)(nil)

// SQLiteStorage is a production-ready SQLite storage implementation for core auth
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return NewSQLiteStorageFromDB(db)
}

// NewSQLiteStorageFromDB creates a new SQLite storage from an existing database connection
func NewSQLiteStorageFromDB(db *sql.DB) (*SQLiteStorage, error) {
	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStorage{db: db}

	// Auto-create missing tables
	schemaManager := core.NewSchemaManager(db, "sqlite")
	if err := schemaManager.EnsureCoreSchema(); err != nil {
		return nil, fmt.Errorf("failed to ensure core schema: %w", err)
	}

	return s, nil
}

// NewInMemorySQLiteStorage creates a new in-memory SQLite storage instance for testing
func NewInMemorySQLiteStorage() (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory SQLite database: %w", err)
	}

	// Every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	return NewSQLiteStorageFromDB(db)
}

// DB returns the underlying database handle
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

const sqliteAccountColumns = `id, email, given_name, family_name, role, password_hash,
	active, locked, failed_attempts, locked_at, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*core.Account, error) {
	account := &core.Account{}
	var lockedAt sql.NullTime
	err := row.Scan(
		&account.ID, &account.Email, &account.GivenName, &account.FamilyName, &account.Role,
		&account.PasswordHash, &account.Active, &account.Locked, &account.FailedAttempts,
		&lockedAt, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lockedAt.Valid {
		t := lockedAt.Time
		account.LockedAt = &t
	}
	return account, nil
}

// Account operations
func (s *SQLiteStorage) CreateAccount(ctx context.Context, account *core.Account) error {
	query := `INSERT INTO accounts (id, email, given_name, family_name, role, password_hash,
			  active, locked, failed_attempts, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		account.ID, account.Email, account.GivenName, account.FamilyName, account.Role,
		account.PasswordHash, account.Active, account.Locked, account.FailedAttempts,
		sqliteTime(account.CreatedAt), sqliteTime(account.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetAccountByEmail(ctx context.Context, email string) (*core.Account, error) {
	query := `SELECT ` + sqliteAccountColumns + ` FROM accounts WHERE email = ?`

	account, err := scanAccount(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}
	return account, nil
}

func (s *SQLiteStorage) GetAccountByID(ctx context.Context, id string) (*core.Account, error) {
	query := `SELECT ` + sqliteAccountColumns + ` FROM accounts WHERE id = ?`

	account, err := scanAccount(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account by id: %w", err)
	}
	return account, nil
}

func (s *SQLiteStorage) ActivateAccount(ctx context.Context, id string) error {
	query := `UPDATE accounts SET active = 1, updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, sqliteTime(time.Now()), id); err != nil {
		return fmt.Errorf("failed to activate account: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, passwordHash, sqliteTime(time.Now()), id); err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListAccounts(ctx context.Context, limit, offset int) ([]*core.Account, error) {
	query := `SELECT ` + sqliteAccountColumns + ` FROM accounts
			  ORDER BY created_at DESC, id LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
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

func (s *SQLiteStorage) EarliestAccountTimestamp(ctx context.Context) (*time.Time, error) {
	return s.earliest(ctx, `SELECT created_at FROM accounts ORDER BY created_at ASC LIMIT 1`, "account")
}

// Lockout operations
func (s *SQLiteStorage) RegisterFailedLogin(ctx context.Context, id string, threshold int) (int, bool, error) {
	now := sqliteTime(time.Now())
	query := `UPDATE accounts SET
			  failed_attempts = failed_attempts + 1,
			  locked = CASE WHEN failed_attempts + 1 >= ? THEN 1 ELSE locked END,
			  locked_at = CASE WHEN failed_attempts + 1 >= ? AND locked = 0 THEN ? ELSE locked_at END,
			  updated_at = ?
			  WHERE id = ?
			  RETURNING failed_attempts, locked`

	var attempts int
	var locked bool
	err := s.db.QueryRowContext(ctx, query, threshold, threshold, now, now, id).Scan(&attempts, &locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, fmt.Errorf("failed to register failed login: account %s not found", id)
		}
		return 0, false, fmt.Errorf("failed to register failed login: %w", err)
	}
	return attempts, locked, nil
}

func (s *SQLiteStorage) ResetFailedLogins(ctx context.Context, id string) error {
	query := `UPDATE accounts SET failed_attempts = 0, updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, sqliteTime(time.Now()), id); err != nil {
		return fmt.Errorf("failed to reset failed logins: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UnlockAccount(ctx context.Context, id string) error {
	query := `UPDATE accounts SET locked = 0, locked_at = NULL, failed_attempts = 0, updated_at = ?
			  WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, sqliteTime(time.Now()), id); err != nil {
		return fmt.Errorf("failed to unlock account: %w", err)
	}
	return nil
}

// Session operations
const sqliteSessionColumns = `id, account_id, token_hash, ip_address, device_fingerprint,
	revoked, last_used_at, expires_at, created_at`

func scanSession(row interface{ Scan(...any) error }) (*core.Session, error) {
	session := &core.Session{}
	err := row.Scan(
		&session.ID, &session.AccountID, &session.TokenHash, &session.IPAddress,
		&session.DeviceFingerprint, &session.Revoked, &session.LastUsedAt,
		&session.ExpiresAt, &session.CreatedAt)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SQLiteStorage) CreateSession(ctx context.Context, session *core.Session) error {
	query := `INSERT INTO sessions (id, account_id, token_hash, ip_address, device_fingerprint,
			  revoked, last_used_at, expires_at, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.AccountID, session.TokenHash, session.IPAddress,
		session.DeviceFingerprint, session.Revoked, sqliteTime(session.LastUsedAt),
		sqliteTime(session.ExpiresAt), sqliteTime(session.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetSessionByHash(ctx context.Context, tokenHash, accountID string) (*core.Session, error) {
	query := `SELECT ` + sqliteSessionColumns + ` FROM sessions WHERE token_hash = ? AND account_id = ?`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, tokenHash, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (s *SQLiteStorage) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*core.Session, error) {
	query := `SELECT ` + sqliteSessionColumns + ` FROM sessions WHERE token_hash = ?`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (s *SQLiteStorage) TouchSession(ctx context.Context, id string, lastUsedAt time.Time) error {
	query := `UPDATE sessions SET last_used_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, sqliteTime(lastUsedAt), id); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) RevokeSession(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE sessions SET revoked = 1 WHERE id = ? AND revoked = 0`, id)
	if err != nil {
		return false, fmt.Errorf("failed to revoke session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected == 1, nil
}

func (s *SQLiteStorage) RevokeAccountSessions(ctx context.Context, accountID string) error {
	query := `UPDATE sessions SET revoked = 1 WHERE account_id = ? AND revoked = 0`
	if _, err := s.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("failed to revoke account sessions: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListAccountSessions(ctx context.Context, accountID string) ([]*core.Session, error) {
	query := `SELECT ` + sqliteSessionColumns + ` FROM sessions
			  WHERE account_id = ? ORDER BY last_used_at DESC`

	rows, err := s.db.QueryContext(ctx, query, accountID)
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
func (s *SQLiteStorage) CreateAuditEvent(ctx context.Context, event *core.AuditEvent) error {
	query := `INSERT INTO audit_events (action, account_id, ip_address, created_at)
			  VALUES (?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		string(event.Action), nullString(event.AccountID), event.IPAddress, sqliteTime(event.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create audit event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit event ID: %w", err)
	}
	event.ID = id
	return nil
}

func (s *SQLiteStorage) CountAuditEventsByIPSince(ctx context.Context, since time.Time) (map[string]int, error) {
	query := `SELECT ip_address, COUNT(*) FROM audit_events
			  WHERE created_at >= ? GROUP BY ip_address`

	rows, err := s.db.QueryContext(ctx, query, sqliteTime(since))
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

func (s *SQLiteStorage) CountAuditEventsByDay(ctx context.Context, since time.Time) ([]core.DailyActionCount, error) {
	query := `SELECT substr(created_at, 1, 10) AS day, action, COUNT(*) FROM audit_events
			  WHERE created_at >= ? GROUP BY day, action ORDER BY day`

	rows, err := s.db.QueryContext(ctx, query, sqliteTime(since))
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

func (s *SQLiteStorage) EarliestAuditTimestamp(ctx context.Context) (*time.Time, error) {
	return s.earliest(ctx, `SELECT created_at FROM audit_events ORDER BY created_at ASC LIMIT 1`, "audit")
}

func (s *SQLiteStorage) ListAuditEvents(ctx context.Context, limit, offset int) ([]*core.AuditEvent, error) {
	query := `SELECT id, action, account_id, ip_address, created_at FROM audit_events
			  ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
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
func (s *SQLiteStorage) GetBlacklistEntry(ctx context.Context, ip string) (*core.BlacklistEntry, error) {
	entry := &core.BlacklistEntry{}
	query := `SELECT id, ip_address, reason, created_at FROM blacklist_entries WHERE ip_address = ?`

	err := s.db.QueryRowContext(ctx, query, ip).Scan(&entry.ID, &entry.IPAddress, &entry.Reason, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get blacklist entry: %w", err)
	}
	return entry, nil
}

func (s *SQLiteStorage) CreateBlacklistEntry(ctx context.Context, entry *core.BlacklistEntry) (bool, error) {
	query := `INSERT INTO blacklist_entries (ip_address, reason, created_at) VALUES (?, ?, ?)
			  ON CONFLICT(ip_address) DO NOTHING`

	result, err := s.db.ExecContext(ctx, query, entry.IPAddress, entry.Reason, sqliteTime(entry.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to create blacklist entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get blacklist entry ID: %w", err)
	}
	entry.ID = id
	return true, nil
}

func (s *SQLiteStorage) ListBlacklistEntries(ctx context.Context, limit, offset int) ([]*core.BlacklistEntry, error) {
	query := `SELECT id, ip_address, reason, created_at FROM blacklist_entries
			  ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
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

func (s *SQLiteStorage) CountBlacklistEntriesByDay(ctx context.Context, since time.Time) (map[string]int, error) {
	query := `SELECT substr(created_at, 1, 10) AS day, COUNT(*) FROM blacklist_entries
			  WHERE created_at >= ? GROUP BY day`

	rows, err := s.db.QueryContext(ctx, query, sqliteTime(since))
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

func (s *SQLiteStorage) EarliestBlacklistTimestamp(ctx context.Context) (*time.Time, error) {
	return s.earliest(ctx, `SELECT created_at FROM blacklist_entries ORDER BY created_at ASC LIMIT 1`, "blacklist")
}

// Email verification operations
func (s *SQLiteStorage) CreateVerificationCode(ctx context.Context, code *core.VerificationCode) error {
	query := `INSERT INTO verification_codes (account_id, code, expires_at, created_at)
			  VALUES (?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query, code.AccountID, code.Code, sqliteTime(code.ExpiresAt), sqliteTime(code.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create verification code: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get verification code ID: %w", err)
	}
	code.ID = id
	return nil
}

func (s *SQLiteStorage) GetLatestVerificationCode(ctx context.Context, accountID string) (*core.VerificationCode, error) {
	code := &core.VerificationCode{}
	query := `SELECT id, account_id, code, expires_at, created_at FROM verification_codes
			  WHERE account_id = ? ORDER BY id DESC LIMIT 1`

	err := s.db.QueryRowContext(ctx, query, accountID).Scan(
		&code.ID, &code.AccountID, &code.Code, &code.ExpiresAt, &code.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get verification code: %w", err)
	}
	return code, nil
}

func (s *SQLiteStorage) DeleteVerificationCodes(ctx context.Context, accountID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("failed to delete verification codes: %w", err)
	}
	return nil
}

// Password reset operations
func (s *SQLiteStorage) CreatePasswordReset(ctx context.Context, reset *core.PasswordReset) error {
	query := `INSERT INTO password_resets (account_id, token_hash, used, expires_at, created_at)
			  VALUES (?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		reset.AccountID, reset.TokenHash, reset.Used, sqliteTime(reset.ExpiresAt), sqliteTime(reset.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create password reset: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get password reset ID: %w", err)
	}
	reset.ID = id
	return nil
}

func (s *SQLiteStorage) GetPasswordResetByHash(ctx context.Context, tokenHash string) (*core.PasswordReset, error) {
	query := `SELECT id, account_id, token_hash, used, expires_at, created_at
			  FROM password_resets WHERE token_hash = ?`
	return s.getPasswordReset(ctx, query, tokenHash)
}

func (s *SQLiteStorage) GetPendingPasswordReset(ctx context.Context, accountID string, now time.Time) (*core.PasswordReset, error) {
	query := `SELECT id, account_id, token_hash, used, expires_at, created_at
			  FROM password_resets WHERE account_id = ? AND used = 0 AND expires_at > ?
			  ORDER BY created_at DESC LIMIT 1`
	return s.getPasswordReset(ctx, query, accountID, sqliteTime(now))
}

func (s *SQLiteStorage) getPasswordReset(ctx context.Context, query string, args ...any) (*core.PasswordReset, error) {
	reset := &core.PasswordReset{}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&reset.ID, &reset.AccountID, &reset.TokenHash, &reset.Used, &reset.ExpiresAt, &reset.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get password reset: %w", err)
	}
	return reset, nil
}

func (s *SQLiteStorage) CompletePasswordReset(ctx context.Context, id int64, accountID, passwordHash string) (bool, error) {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE password_resets SET used = 1 WHERE id = ? AND used = 0`, id)
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

		query := `UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, query, passwordHash, sqliteTime(time.Now()), accountID); err != nil {
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

func (s *SQLiteStorage) earliest(ctx context.Context, query, what string) (*time.Time, error) {
	var ts time.Time
	err := s.db.QueryRowContext(ctx, query).Scan(&ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get earliest %s timestamp: %w", what, err)
	}
	return &ts, nil
}

// Health check
func (s *SQLiteStorage) Ping() error {
	return s.db.Ping()
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// sqliteTimeLayout is fixed width so that text comparison and ORDER BY follow time order
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
