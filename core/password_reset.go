package core

import (
	"context"
	"log/slog"
	"time"
)

// PasswordResetter handles forgotten-password requests.
type PasswordResetter struct {
	storage  Storage
	sessions *SessionManager
	audit    *AuditTrail
	notifier Notifier
	tokenTTL time.Duration
	now      func() time.Time
}

// NewPasswordResetter creates a PasswordResetter.
func NewPasswordResetter(storage Storage, sessions *SessionManager, audit *AuditTrail, notifier Notifier, tokenTTL time.Duration) *PasswordResetter {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &PasswordResetter{
		storage:  storage,
		sessions: sessions,
		audit:    audit,
		notifier: notifier,
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

// Request creates a reset token for email and publishes it. Unknown emails succeed silently.
func (p *PasswordResetter) Request(ctx context.Context, email, sourceIP string) error {
	account, err := p.storage.GetAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return infraError("get account by email", err)
	}
	if account == nil {
		slog.Debug("Password reset requested for unknown email", "ip_address", sourceIP)
		return nil
	}

	now := p.now().UTC()
	pending, err := p.storage.GetPendingPasswordReset(ctx, account.ID, now)
	if err != nil {
		return infraError("get pending password reset", err)
	}
	if pending != nil {
		return ErrResetAlreadyRequested
	}

	token := generateResetToken()
	reset := &PasswordReset{
		AccountID: account.ID,
		TokenHash: hashToken(token),
		ExpiresAt: now.Add(p.tokenTTL),
		CreatedAt: now,
	}
	if err := p.storage.CreatePasswordReset(ctx, reset); err != nil {
		return infraError("create password reset", err)
	}

	if p.notifier == nil {
		slog.Warn("No notifier configured, password reset not sent", "account_id", account.ID)
		return nil
	}
	if err := p.notifier.SendPasswordReset(ctx, account.Email, token); err != nil {
		slog.Error("Failed to publish password reset", "account_id", account.ID, "error", err)
	}
	return nil
}

// Reset sets a new password using a reset token and revokes every session of the account.
// The caller is responsible for validating password strength.
func (p *PasswordResetter) Reset(ctx context.Context, token, newPassword, sourceIP string) error {
	reset, err := p.storage.GetPasswordResetByHash(ctx, hashToken(token))
	if err != nil {
		return infraError("get password reset", err)
	}
	if reset == nil || reset.Used || p.now().After(reset.ExpiresAt) {
		return ErrResetTokenInvalid
	}

	hashedPassword, err := hashPassword(newPassword)
	if err != nil {
		return infraError("hash password", err)
	}
	completed, err := p.storage.CompletePasswordReset(ctx, reset.ID, reset.AccountID, hashedPassword)
	if err != nil {
		return infraError("complete password reset", err)
	}
	if !completed {
		return ErrResetTokenInvalid
	}
	if err := p.sessions.RevokeAll(ctx, reset.AccountID); err != nil {
		return err
	}

	slog.Info("Password reset", "account_id", reset.AccountID)
	p.audit.Record(ActionResetPassword, &reset.AccountID, sourceIP)
	return nil
}
