package core

import (
	"context"
	"time"
)

// Account represents a registered identity and its login security state.
type Account struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Role       string `json:"role"`

	PasswordHash string `json:"-"` // Hide password from JSON

	// Login Security
	Active         bool       `json:"active"` // false until the email is verified
	Locked         bool       `json:"locked"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedAt       *time.Time `json:"locked_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session is the persisted record of an issued refresh token. The raw token is never stored.
type Session struct {
	ID                string    `json:"id"`
	AccountID         string    `json:"account_id"`
	TokenHash         string    `json:"-"`
	IPAddress         string    `json:"ip_address"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	Revoked           bool      `json:"revoked"`
	LastUsedAt        time.Time `json:"last_used_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	CreatedAt         time.Time `json:"created_at"`
}

// AuditAction enumerates the kinds of recorded authentication events.
type AuditAction string

// Audit actions
const (
	ActionSuccessfulRegistration      AuditAction = "SUCCESSFUL_REGISTRATION"
	ActionFailedRegistration          AuditAction = "FAILED_REGISTRATION"
	ActionSuccessfulLogin             AuditAction = "SUCCESSFUL_LOGIN"
	ActionFailedLogin                 AuditAction = "FAILED_LOGIN"
	ActionBlockedAccount              AuditAction = "BLOCKED_ACCOUNT"
	ActionUnlockedAccount             AuditAction = "UNLOCKED_ACCOUNT"
	ActionLogout                      AuditAction = "LOGOUT"
	ActionRefreshToken                AuditAction = "REFRESH_TOKEN"
	ActionFailedRefreshToken          AuditAction = "FAILED_REFRESH_TOKEN"
	ActionSuccessfulEmailVerification AuditAction = "SUCCESSFUL_EMAIL_VERIFICATION"
	ActionFailedEmailVerification     AuditAction = "FAILED_EMAIL_VERIFICATION"
	ActionResetPassword               AuditAction = "RESET_PASSWORD"
)

// AuditEvent is an immutable record of an authentication event.
type AuditEvent struct {
	ID        int64       `json:"id"`
	Action    AuditAction `json:"action"`
	AccountID *string     `json:"account_id,omitempty"` // nil when the account could not be resolved
	IPAddress string      `json:"ip_address"`
	CreatedAt time.Time   `json:"created_at"`
}

// BlacklistEntry marks a source IP as blocked. At most one entry exists per IP.
type BlacklistEntry struct {
	ID        int64     `json:"id"`
	IPAddress string    `json:"ip_address"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// VerificationCode is a pending email verification code for an account.
type VerificationCode struct {
	ID        int64     `json:"id"`
	AccountID string    `json:"account_id"`
	Code      string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// PasswordReset is a pending password reset. Only the token hash is stored.
type PasswordReset struct {
	ID        int64     `json:"id"`
	AccountID string    `json:"account_id"`
	TokenHash string    `json:"-"`
	Used      bool      `json:"used"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// DailyActionCount is one row of the per-day audit aggregate. Day is formatted YYYY-MM-DD (UTC).
type DailyActionCount struct {
	Day    string
	Action AuditAction
	Count  int
}

// Storage defines the contract for persisting accounts, sessions, audit events and blacklist entries.
// Lookups return nil, nil when the record does not exist.
type Storage interface {
	// Account operations
	CreateAccount(ctx context.Context, account *Account) error
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	GetAccountByID(ctx context.Context, id string) (*Account, error)
	ActivateAccount(ctx context.Context, id string) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	ListAccounts(ctx context.Context, limit, offset int) ([]*Account, error)
	EarliestAccountTimestamp(ctx context.Context) (*time.Time, error)

	// Lockout operations. RegisterFailedLogin increments the counter and sets the lock
	// once it reaches threshold in a single atomic statement.
	RegisterFailedLogin(ctx context.Context, id string, threshold int) (attempts int, locked bool, err error)
	ResetFailedLogins(ctx context.Context, id string) error
	UnlockAccount(ctx context.Context, id string) error

	// Session operations. RevokeSession reports false when the session was already revoked.
	CreateSession(ctx context.Context, session *Session) error
	GetSessionByHash(ctx context.Context, tokenHash, accountID string) (*Session, error)
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	TouchSession(ctx context.Context, id string, lastUsedAt time.Time) error
	RevokeSession(ctx context.Context, id string) (bool, error)
	RevokeAccountSessions(ctx context.Context, accountID string) error
	ListAccountSessions(ctx context.Context, accountID string) ([]*Session, error)

	// Audit operations
	CreateAuditEvent(ctx context.Context, event *AuditEvent) error
	CountAuditEventsByIPSince(ctx context.Context, since time.Time) (map[string]int, error)
	CountAuditEventsByDay(ctx context.Context, since time.Time) ([]DailyActionCount, error)
	EarliestAuditTimestamp(ctx context.Context) (*time.Time, error)
	ListAuditEvents(ctx context.Context, limit, offset int) ([]*AuditEvent, error)

	// Blacklist operations. CreateBlacklistEntry reports false when the IP was already present.
	GetBlacklistEntry(ctx context.Context, ip string) (*BlacklistEntry, error)
	CreateBlacklistEntry(ctx context.Context, entry *BlacklistEntry) (bool, error)
	ListBlacklistEntries(ctx context.Context, limit, offset int) ([]*BlacklistEntry, error)
	CountBlacklistEntriesByDay(ctx context.Context, since time.Time) (map[string]int, error)
	EarliestBlacklistTimestamp(ctx context.Context) (*time.Time, error)

	// Email verification operations
	CreateVerificationCode(ctx context.Context, code *VerificationCode) error
	GetLatestVerificationCode(ctx context.Context, accountID string) (*VerificationCode, error)
	DeleteVerificationCodes(ctx context.Context, accountID string) error

	// Password reset operations. CompletePasswordReset marks the reset used and stores the new
	// password hash atomically. It reports false when the reset was already used.
	CreatePasswordReset(ctx context.Context, reset *PasswordReset) error
	GetPasswordResetByHash(ctx context.Context, tokenHash string) (*PasswordReset, error)
	GetPendingPasswordReset(ctx context.Context, accountID string, now time.Time) (*PasswordReset, error)
	CompletePasswordReset(ctx context.Context, id int64, accountID, passwordHash string) (bool, error)

	// Health check
	Ping() error
	Close() error
}
