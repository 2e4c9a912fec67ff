package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRole is assigned to newly registered accounts
const DefaultRole = "USER"

// AdminRole grants access to the administrative handlers
const AdminRole = "ADMIN"

// SessionTokens is the result of a successful authentication.
type SessionTokens struct {
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	// RefreshToken is delivered out of band (cookie) by the transport layer.
	RefreshToken string   `json:"-"`
	Account      *Account `json:"account"`
}

// RegisterInput carries the fields needed to create an account.
type RegisterInput struct {
	Email      string
	Password   string
	GivenName  string
	FamilyName string
}

// dummyHash is compared against when the email is unknown so both paths cost one bcrypt verification.
var dummyHash = sync.OnceValue(func() string {
	hash, err := hashPassword(uuid.NewString())
	if err != nil {
		return ""
	}
	return hash
})

// AccountGuard owns the failed-login counter and lockout state of every account.
//
// An account moves from Active to Locked when its counter reaches MaxLoginAttempts.
// With LockoutDuration == 0 the lock only ends through Unlock; otherwise it is lifted
// on the first authentication after LockedAt + LockoutDuration.
type AccountGuard struct {
	storage  Storage
	audit    *AuditTrail
	signer   *TokenSigner
	sessions *SessionManager
	config   SecurityConfig
	now      func() time.Time
}

// NewAccountGuard creates an AccountGuard.
func NewAccountGuard(storage Storage, audit *AuditTrail, signer *TokenSigner, sessions *SessionManager, config SecurityConfig) *AccountGuard {
	return &AccountGuard{
		storage:  storage,
		audit:    audit,
		signer:   signer,
		sessions: sessions,
		config:   config,
		now:      time.Now,
	}
}

// Authenticate verifies credentials and, on success, issues an access token and a bound refresh token.
//
// A locked account is rejected before the password is checked. The active check runs after the
// password check, so a wrong password against an unverified account counts as a failed login.
func (g *AccountGuard) Authenticate(ctx context.Context, email, password, sourceIP, fingerprint string) (*SessionTokens, error) {
	tokens, err := g.authenticate(ctx, email, password, sourceIP, fingerprint)
	loginAttemptsTotal.WithLabelValues(outcomeLabel(err)).Inc()
	return tokens, err
}

func (g *AccountGuard) authenticate(ctx context.Context, email, password, sourceIP, fingerprint string) (*SessionTokens, error) {
	account, err := g.storage.GetAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, infraError("get account by email", err)
	}
	if account == nil {
		checkPasswordHash(password, dummyHash())
		slog.Debug("Login attempt for unknown email", "ip_address", sourceIP)
		g.audit.Record(ActionFailedLogin, nil, sourceIP)
		return nil, ErrAuthenticationFailed
	}

	if account.Locked {
		if !g.lockExpired(account) {
			slog.Warn("Login attempt on locked account", "account_id", account.ID, "ip_address", sourceIP)
			g.audit.Record(ActionBlockedAccount, &account.ID, sourceIP)
			return nil, ErrAccountLocked
		}
		if err := g.storage.UnlockAccount(ctx, account.ID); err != nil {
			return nil, infraError("unlock account", err)
		}
		slog.Info("Lockout expired, account unlocked", "account_id", account.ID)
		g.audit.Record(ActionUnlockedAccount, &account.ID, sourceIP)
		account.Locked = false
		account.LockedAt = nil
		account.FailedAttempts = 0
	}

	if !checkPasswordHash(password, account.PasswordHash) {
		attempts, locked, err := g.storage.RegisterFailedLogin(ctx, account.ID, g.config.MaxLoginAttempts)
		if err != nil {
			return nil, infraError("register failed login", err)
		}
		account.FailedAttempts = attempts
		if locked {
			slog.Warn("Account locked after failed login attempts", "account_id", account.ID, "attempts", attempts, "ip_address", sourceIP)
			g.audit.Record(ActionBlockedAccount, &account.ID, sourceIP)
			return nil, ErrAccountLocked
		}
		slog.Debug("Invalid password", "account_id", account.ID, "attempts", attempts)
		g.audit.Record(ActionFailedLogin, &account.ID, sourceIP)
		return nil, ErrAuthenticationFailed
	}

	if !account.Active {
		slog.Debug("Login attempt before email verification", "account_id", account.ID)
		g.audit.Record(ActionFailedLogin, &account.ID, sourceIP)
		return nil, ErrEmailNotVerified
	}

	if err := g.storage.ResetFailedLogins(ctx, account.ID); err != nil {
		return nil, infraError("reset failed logins", err)
	}
	account.FailedAttempts = 0
	g.audit.Record(ActionSuccessfulLogin, &account.ID, sourceIP)

	accessToken, err := g.signer.IssueAccessToken(account.ID, claimsFor(account))
	if err != nil {
		return nil, infraError("issue access token", err)
	}
	refreshToken, err := g.sessions.Issue(ctx, account, sourceIP, fingerprint)
	if err != nil {
		return nil, err
	}

	return &SessionTokens{
		AccessToken:     accessToken,
		AccessExpiresAt: g.now().Add(g.signer.AccessTTL()),
		RefreshToken:    refreshToken,
		Account:         account,
	}, nil
}

// Register creates an inactive account. It fails with ErrEmailAlreadyUsed when the email is taken.
func (g *AccountGuard) Register(ctx context.Context, input RegisterInput, sourceIP string) (*Account, error) {
	email := normalizeEmail(input.Email)

	existing, err := g.storage.GetAccountByEmail(ctx, email)
	if err != nil {
		return nil, infraError("get account by email", err)
	}
	if existing != nil {
		slog.Debug("Registration with existing email", "account_id", existing.ID)
		g.audit.Record(ActionFailedRegistration, &existing.ID, sourceIP)
		return nil, ErrEmailAlreadyUsed
	}

	hashedPassword, err := hashPassword(input.Password)
	if err != nil {
		return nil, infraError("hash password", err)
	}

	now := g.now().UTC()
	account := &Account{
		ID:           uuid.NewString(),
		Email:        email,
		GivenName:    input.GivenName,
		FamilyName:   input.FamilyName,
		Role:         DefaultRole,
		PasswordHash: hashedPassword,
		Active:       false,
		Locked:       false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := g.storage.CreateAccount(ctx, account); err != nil {
		return nil, infraError("create account", err)
	}

	slog.Info("Account registered", "account_id", account.ID)
	g.audit.Record(ActionSuccessfulRegistration, &account.ID, sourceIP)
	return account, nil
}

// VerifyEmail activates the account.
func (g *AccountGuard) VerifyEmail(ctx context.Context, accountID, sourceIP string) (*Account, error) {
	account, err := g.storage.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, infraError("get account by id", err)
	}
	if account == nil {
		g.audit.Record(ActionFailedEmailVerification, nil, sourceIP)
		return nil, ErrAccountNotFound
	}
	if account.Active {
		g.audit.Record(ActionFailedEmailVerification, &account.ID, sourceIP)
		return nil, ErrAlreadyVerified
	}

	if err := g.storage.ActivateAccount(ctx, account.ID); err != nil {
		return nil, infraError("activate account", err)
	}
	account.Active = true

	g.audit.Record(ActionSuccessfulEmailVerification, &account.ID, sourceIP)
	return account, nil
}

// Unlock clears the lock and the failed-login counter.
func (g *AccountGuard) Unlock(ctx context.Context, accountID, sourceIP string) (*Account, error) {
	account, err := g.storage.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, infraError("get account by id", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	if err := g.storage.UnlockAccount(ctx, account.ID); err != nil {
		return nil, infraError("unlock account", err)
	}
	account.Locked = false
	account.LockedAt = nil
	account.FailedAttempts = 0

	slog.Info("Account unlocked", "account_id", account.ID, "ip_address", sourceIP)
	g.audit.Record(ActionUnlockedAccount, &account.ID, sourceIP)
	return account, nil
}

// List returns accounts, newest first.
func (g *AccountGuard) List(ctx context.Context, limit, offset int) ([]*Account, error) {
	accounts, err := g.storage.ListAccounts(ctx, limit, offset)
	if err != nil {
		return nil, infraError("list accounts", err)
	}
	return accounts, nil
}

func (g *AccountGuard) lockExpired(account *Account) bool {
	if g.config.LockoutDuration <= 0 || account.LockedAt == nil {
		return false
	}
	return g.now().After(account.LockedAt.Add(g.config.LockoutDuration))
}

func claimsFor(account *Account) TokenClaims {
	return TokenClaims{
		Email:      account.Email,
		Role:       account.Role,
		GivenName:  account.GivenName,
		FamilyName: account.FamilyName,
	}
}
