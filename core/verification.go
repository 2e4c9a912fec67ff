package core

import (
	"context"
	"log/slog"
	"time"
)

// Notifier delivers verification codes and password reset tokens. Delivery is fire-and-forget:
// a nil error means the message was handed off, not that it arrived.
type Notifier interface {
	SendVerificationCode(ctx context.Context, recipient, code string) error
	SendPasswordReset(ctx context.Context, recipient, token string) error
}

// EmailVerifier issues and confirms email verification codes.
type EmailVerifier struct {
	storage  Storage
	guard    *AccountGuard
	audit    *AuditTrail
	notifier Notifier
	codeTTL  time.Duration
	now      func() time.Time
}

// NewEmailVerifier creates an EmailVerifier. notifier may be nil, in which case codes are only stored.
func NewEmailVerifier(storage Storage, guard *AccountGuard, audit *AuditTrail, notifier Notifier, codeTTL time.Duration) *EmailVerifier {
	if codeTTL <= 0 {
		codeTTL = 24 * time.Hour
	}
	return &EmailVerifier{
		storage:  storage,
		guard:    guard,
		audit:    audit,
		notifier: notifier,
		codeTTL:  codeTTL,
		now:      time.Now,
	}
}

// SendCode stores a new code for account and publishes it. Publish failures are logged only.
func (v *EmailVerifier) SendCode(ctx context.Context, account *Account) error {
	code, err := generateVerificationCode()
	if err != nil {
		return infraError("generate verification code", err)
	}

	now := v.now().UTC()
	record := &VerificationCode{
		AccountID: account.ID,
		Code:      code,
		ExpiresAt: now.Add(v.codeTTL),
		CreatedAt: now,
	}
	if err := v.storage.CreateVerificationCode(ctx, record); err != nil {
		return infraError("create verification code", err)
	}

	if v.notifier == nil {
		slog.Warn("No notifier configured, verification code not sent", "account_id", account.ID)
		return nil
	}
	if err := v.notifier.SendVerificationCode(ctx, account.Email, code); err != nil {
		slog.Error("Failed to publish verification code", "account_id", account.ID, "error", err)
	}
	return nil
}

// Confirm checks code for the account registered under email and activates it.
func (v *EmailVerifier) Confirm(ctx context.Context, email, code, sourceIP string) (*Account, error) {
	account, err := v.storage.GetAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, infraError("get account by email", err)
	}
	if account == nil {
		v.audit.Record(ActionFailedEmailVerification, nil, sourceIP)
		return nil, ErrAccountNotFound
	}
	if account.Active {
		v.audit.Record(ActionFailedEmailVerification, &account.ID, sourceIP)
		return nil, ErrAlreadyVerified
	}

	record, err := v.storage.GetLatestVerificationCode(ctx, account.ID)
	if err != nil {
		return nil, infraError("get verification code", err)
	}
	if record == nil || v.now().After(record.ExpiresAt) || !constantTimeEqual(record.Code, code) {
		slog.Debug("Invalid verification code", "account_id", account.ID)
		v.audit.Record(ActionFailedEmailVerification, &account.ID, sourceIP)
		return nil, ErrInvalidVerificationCode
	}

	verified, err := v.guard.VerifyEmail(ctx, account.ID, sourceIP)
	if err != nil {
		return nil, err
	}

	if err := v.storage.DeleteVerificationCodes(ctx, account.ID); err != nil {
		slog.Error("Failed to delete verification codes", "account_id", account.ID, "error", err)
	}
	return verified, nil
}

// Resend issues a new code for an unverified account. Unknown or active accounts are ignored.
func (v *EmailVerifier) Resend(ctx context.Context, email string) error {
	account, err := v.storage.GetAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return infraError("get account by email", err)
	}
	if account == nil || account.Active {
		return nil
	}
	return v.SendCode(ctx, account)
}
