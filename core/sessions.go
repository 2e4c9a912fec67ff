package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RotateResult is returned by SessionManager.Rotate. RefreshToken is only set when
// refresh token rotation is enabled.
type RotateResult struct {
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	RefreshToken    string    `json:"-"`
}

// SessionManager owns refresh token issuance, validation, rotation and revocation.
// Each refresh token is bound to the IP address and device fingerprint it was issued to.
type SessionManager struct {
	storage Storage
	signer  *TokenSigner
	audit   *AuditTrail
	config  SecurityConfig
	now     func() time.Time
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(storage Storage, signer *TokenSigner, audit *AuditTrail, config SecurityConfig) *SessionManager {
	return &SessionManager{
		storage: storage,
		signer:  signer,
		audit:   audit,
		config:  config,
		now:     time.Now,
	}
}

// Issue mints a refresh token for account and stores its hash bound to sourceIP and fingerprint.
func (m *SessionManager) Issue(ctx context.Context, account *Account, sourceIP, fingerprint string) (string, error) {
	refreshToken, err := m.signer.IssueRefreshToken(account.ID)
	if err != nil {
		return "", infraError("issue refresh token", err)
	}

	now := m.now().UTC()
	session := &Session{
		ID:                uuid.NewString(),
		AccountID:         account.ID,
		TokenHash:         hashToken(refreshToken),
		IPAddress:         sourceIP,
		DeviceFingerprint: fingerprint,
		Revoked:           false,
		LastUsedAt:        now,
		ExpiresAt:         now.Add(m.signer.RefreshTTL()),
		CreatedAt:         now,
	}

	if err := m.storage.CreateSession(ctx, session); err != nil {
		return "", infraError("create session", err)
	}

	slog.Debug("Session created", "account_id", account.ID, "session_id", session.ID)
	return refreshToken, nil
}

// Rotate exchanges a refresh token for a fresh access token.
func (m *SessionManager) Rotate(ctx context.Context, refreshToken, sourceIP, fingerprint string) (*RotateResult, error) {
	result, accountID, err := m.rotate(ctx, refreshToken, sourceIP, fingerprint)
	tokenRefreshTotal.WithLabelValues(outcomeLabel(err)).Inc()

	switch {
	case err == nil:
		m.audit.Record(ActionRefreshToken, &accountID, sourceIP)
	case IsBusinessError(err):
		var ref *string
		if accountID != "" {
			ref = &accountID
		}
		m.audit.Record(ActionFailedRefreshToken, ref, sourceIP)
	}
	return result, err
}

func (m *SessionManager) rotate(ctx context.Context, refreshToken, sourceIP, fingerprint string) (*RotateResult, string, error) {
	if !m.signer.Validate(refreshToken) {
		slog.Debug("Refresh token failed validation", "ip_address", sourceIP)
		return nil, "", ErrTokenInvalid
	}

	accountID, err := m.signer.ExtractSubject(refreshToken)
	if err != nil {
		return nil, "", err
	}

	session, err := m.storage.GetSessionByHash(ctx, hashToken(refreshToken), accountID)
	if err != nil {
		return nil, accountID, infraError("get session", err)
	}
	if session == nil {
		slog.Debug("Refresh token not recognized", "account_id", accountID)
		return nil, accountID, ErrTokenInvalid
	}

	if session.Revoked {
		slog.Warn("Revoked refresh token presented", "account_id", accountID, "session_id", session.ID, "ip_address", sourceIP)
		return nil, accountID, ErrTokenRevoked
	}

	if !constantTimeEqual(session.IPAddress, sourceIP) || !constantTimeEqual(session.DeviceFingerprint, fingerprint) {
		slog.Warn("Refresh token presented from a different context",
			"account_id", accountID,
			"session_id", session.ID,
			"bound_ip", session.IPAddress,
			"ip_address", sourceIP)
		return nil, accountID, ErrContextMismatch
	}

	now := m.now().UTC()
	if err := m.storage.TouchSession(ctx, session.ID, now); err != nil {
		return nil, accountID, infraError("touch session", err)
	}

	account, err := m.storage.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, accountID, infraError("get account by id", err)
	}
	if account == nil {
		return nil, accountID, ErrAccountNotFound
	}

	accessToken, err := m.signer.IssueAccessToken(account.ID, claimsFor(account))
	if err != nil {
		return nil, accountID, infraError("issue access token", err)
	}

	result := &RotateResult{
		AccessToken:     accessToken,
		AccessExpiresAt: now.Add(m.signer.AccessTTL()),
	}

	if m.config.RotateRefreshTokens {
		revoked, err := m.storage.RevokeSession(ctx, session.ID)
		if err != nil {
			return nil, accountID, infraError("revoke rotated session", err)
		}
		if !revoked {
			slog.Warn("Refresh token rotated concurrently", "account_id", accountID, "session_id", session.ID, "ip_address", sourceIP)
			return nil, accountID, ErrTokenRevoked
		}
		newRefresh, err := m.Issue(ctx, account, sourceIP, fingerprint)
		if err != nil {
			return nil, accountID, err
		}
		result.RefreshToken = newRefresh
	}

	return result, accountID, nil
}

// Revoke marks the session of refreshToken as revoked and records a logout.
func (m *SessionManager) Revoke(ctx context.Context, refreshToken, sourceIP string) error {
	session, err := m.storage.GetSessionByTokenHash(ctx, hashToken(refreshToken))
	if err != nil {
		return infraError("get session", err)
	}
	if session == nil {
		return ErrTokenInvalid
	}

	if _, err := m.storage.RevokeSession(ctx, session.ID); err != nil {
		return infraError("revoke session", err)
	}

	slog.Debug("Session revoked", "account_id", session.AccountID, "session_id", session.ID)
	m.audit.Record(ActionLogout, &session.AccountID, sourceIP)
	return nil
}

// RevokeAll revokes every session of an account.
func (m *SessionManager) RevokeAll(ctx context.Context, accountID string) error {
	if err := m.storage.RevokeAccountSessions(ctx, accountID); err != nil {
		return infraError("revoke account sessions", err)
	}
	return nil
}

// List returns the sessions of an account.
func (m *SessionManager) List(ctx context.Context, accountID string) ([]*Session, error) {
	sessions, err := m.storage.ListAccountSessions(ctx, accountID)
	if err != nil {
		return nil, infraError("list sessions", err)
	}
	return sessions, nil
}
