package core

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// mustLogin authenticates the account and returns its refresh token
func mustLogin(t *testing.T, authService *AuthService, account *Account) string {
	t.Helper()

	tokens, err := authService.Guard().Authenticate(context.Background(), account.Email, testPassword, testIP, testFingerprint)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	return tokens.RefreshToken
}

func TestSessionManager_Rotate(t *testing.T) {
	authService, storage, _ := mustCreateTestAuthService(t)
	ctx := context.Background()
	account := mustCreateActiveAccount(t, authService)
	refreshToken := mustLogin(t, authService, account)

	result, err := authService.Sessions().Rotate(ctx, refreshToken, testIP, testFingerprint)
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}

	claims, err := authService.Signer().ParseAccessToken(result.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken() error = %v", err)
	}
	if claims.Subject != account.ID {
		t.Errorf("access token subject = %s, want %s", claims.Subject, account.ID)
	}
	if result.RefreshToken != "" {
		t.Error("Rotate() without rotation enabled must not issue a refresh token")
	}

	last := storage.lastAudit()
	if last.Action != ActionRefreshToken || last.AccountID == nil || *last.AccountID != account.ID {
		t.Errorf("last audit = %+v, want %s for the account", last, ActionRefreshToken)
	}

	// The same refresh token stays usable
	if _, err := authService.Sessions().Rotate(ctx, refreshToken, testIP, testFingerprint); err != nil {
		t.Errorf("second Rotate() error = %v", err)
	}
}

func TestSessionManager_Rotate_ContextMismatch(t *testing.T) {
	authService, storage, _ := mustCreateTestAuthService(t)
	ctx := context.Background()
	account := mustCreateActiveAccount(t, authService)
	refreshToken := mustLogin(t, authService, account)

	tests := []struct {
		name        string
		ip          string
		fingerprint string
	}{
		{name: "different_ip", ip: "203.0.113.77", fingerprint: testFingerprint},
		{name: "different_fingerprint", ip: testIP, fingerprint: "curl/8.0"},
		{name: "both_different", ip: "203.0.113.77", fingerprint: "curl/8.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := authService.Sessions().Rotate(ctx, refreshToken, tt.ip, tt.fingerprint)
			if !errors.Is(err, ErrContextMismatch) {
				t.Fatalf("Rotate() error = %v, want %v", err, ErrContextMismatch)
			}

			last := storage.lastAudit()
			if last.Action != ActionFailedRefreshToken || last.IPAddress != tt.ip {
				t.Errorf("last audit = %+v, want %s from %s", last, ActionFailedRefreshToken, tt.ip)
			}
		})
	}

	// A mismatch does not revoke the session for its bound context
	if _, err := authService.Sessions().Rotate(ctx, refreshToken, testIP, testFingerprint); err != nil {
		t.Errorf("Rotate() from bound context error = %v", err)
	}
}

func TestSessionManager_Rotate_InvalidTokens(t *testing.T) {
	authService, _, _ := mustCreateTestAuthService(t)
	ctx := context.Background()
	account := mustCreateActiveAccount(t, authService)

	otherSigner, err := NewTokenSigner(TokenSignerConfig{Secret: "another-secret"})
	if err != nil {
		t.Fatalf("NewTokenSigner() error = %v", err)
	}
	foreign, _ := otherSigner.IssueRefreshToken(account.ID)

	// Correctly signed but never stored
	unknown, _ := authService.Signer().IssueRefreshToken(account.ID)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "empty", token: ""},
		{name: "foreign_signature", token: foreign},
		{name: "unknown_session", token: unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := authService.Sessions().Rotate(ctx, tt.token, testIP, testFingerprint); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("Rotate() error = %v, want %v", err, ErrTokenInvalid)
			}
		})
	}
}

func TestSessionManager_Revoke(t *testing.T) {
	authService, storage, _ := mustCreateTestAuthService(t)
	ctx := context.Background()
	account := mustCreateActiveAccount(t, authService)
	refreshToken := mustLogin(t, authService, account)
	sessions := authService.Sessions()

	if err := sessions.Revoke(ctx, refreshToken, testIP); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if last := storage.lastAudit(); last.Action != ActionLogout {
		t.Errorf("last audit = %s, want %s", last.Action, ActionLogout)
	}

	if _, err := sessions.Rotate(ctx, refreshToken, testIP, testFingerprint); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Rotate() after revoke error = %v, want %v", err, ErrTokenRevoked)
	}

	if err := sessions.Revoke(ctx, "unknown-token", testIP); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Revoke(unknown) error = %v, want %v", err, ErrTokenInvalid)
	}
}

func TestSessionManager_RotationEnabled(t *testing.T) {
	storage := mustCreateTestStorage(t)
	cfg := testConfig(storage, nil)
	cfg.SecurityConfig.RotateRefreshTokens = true
	authService, err := NewAuthService(cfg)
	if err != nil {
		t.Fatalf("NewAuthService() error = %v", err)
	}
	defer authService.Close()

	ctx := context.Background()
	account := mustCreateActiveAccount(t, authService)
	original := mustLogin(t, authService, account)

	result, err := authService.Sessions().Rotate(ctx, original, testIP, testFingerprint)
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if result.RefreshToken == "" || result.RefreshToken == original {
		t.Fatalf("Rotate() refresh token = %q, want a new token", result.RefreshToken)
	}

	if _, err := authService.Sessions().Rotate(ctx, original, testIP, testFingerprint); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Rotate(original) error = %v, want %v", err, ErrTokenRevoked)
	}
	if _, err := authService.Sessions().Rotate(ctx, result.RefreshToken, testIP, testFingerprint); err != nil {
		t.Errorf("Rotate(rotated) error = %v", err)
	}
}

// racingStorage lets a test interfere between the session lookup and its revocation
type racingStorage struct {
	*mockStorage
	afterLookup func(session *Session)
	revokeErr   error
}

func (r *racingStorage) GetSessionByHash(ctx context.Context, tokenHash, accountID string) (*Session, error) {
	session, err := r.mockStorage.GetSessionByHash(ctx, tokenHash, accountID)
	if session != nil && r.afterLookup != nil {
		r.afterLookup(session)
	}
	return session, err
}

func (r *racingStorage) RevokeSession(ctx context.Context, id string) (bool, error) {
	if r.revokeErr != nil {
		return false, r.revokeErr
	}
	return r.mockStorage.RevokeSession(ctx, id)
}

func newRotatingService(t *testing.T, storage Storage) *AuthService {
	t.Helper()
	cfg := testConfig(storage, nil)
	cfg.SecurityConfig.RotateRefreshTokens = true
	authService, err := NewAuthService(cfg)
	if err != nil {
		t.Fatalf("NewAuthService() error = %v", err)
	}
	t.Cleanup(func() { authService.Close() })
	return authService
}

func liveSessions(storage *mockStorage, accountID string) int {
	storage.mu.RLock()
	defer storage.mu.RUnlock()

	live := 0
	for _, session := range storage.sessions {
		if session.AccountID == accountID && !session.Revoked {
			live++
		}
	}
	return live
}

func TestSessionManager_Rotation_LostRace(t *testing.T) {
	storage := &racingStorage{mockStorage: mustCreateTestStorage(t)}
	authService := newRotatingService(t, storage)
	ctx := context.Background()
	account := mustCreateActiveAccount(t, authService)
	original := mustLogin(t, authService, account)

	// Another rotation revokes the session after this one has read it
	storage.afterLookup = func(session *Session) {
		storage.mockStorage.RevokeSession(ctx, session.ID)
	}

	if _, err := authService.Sessions().Rotate(ctx, original, testIP, testFingerprint); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Rotate() error = %v, want %v", err, ErrTokenRevoked)
	}
	if live := liveSessions(storage.mockStorage, account.ID); live != 0 {
		t.Errorf("live sessions = %d, want 0", live)
	}
}

func TestSessionManager_Rotation_RevokeFailure(t *testing.T) {
	storage := &racingStorage{mockStorage: mustCreateTestStorage(t)}
	authService := newRotatingService(t, storage)
	ctx := context.Background()
	account := mustCreateActiveAccount(t, authService)
	original := mustLogin(t, authService, account)

	storage.revokeErr = errTestStorage
	if _, err := authService.Sessions().Rotate(ctx, original, testIP, testFingerprint); !errors.Is(err, ErrInfrastructure) {
		t.Errorf("Rotate() error = %v, want %v", err, ErrInfrastructure)
	}
	if live := liveSessions(storage.mockStorage, account.ID); live != 1 {
		t.Errorf("live sessions = %d, want only the original", live)
	}
}

func TestSessionManager_Rotation_Concurrent(t *testing.T) {
	storage := mustCreateTestStorage(t)
	authService := newRotatingService(t, storage)
	ctx := context.Background()
	account := mustCreateActiveAccount(t, authService)
	original := mustLogin(t, authService, account)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := authService.Sessions().Rotate(ctx, original, testIP, testFingerprint)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, ErrTokenRevoked):
			t.Errorf("Rotate() error = %v, want nil or %v", err, ErrTokenRevoked)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d rotations succeeded, want 1", succeeded)
	}
	if live := liveSessions(storage, account.ID); live != 1 {
		t.Errorf("live sessions = %d, want 1", live)
	}
}

func TestSessionManager_RevokeAllAndList(t *testing.T) {
	authService, _, _ := mustCreateTestAuthService(t)
	ctx := context.Background()
	account := mustCreateActiveAccount(t, authService)
	first := mustLogin(t, authService, account)
	second := mustLogin(t, authService, account)

	sessions, err := authService.Sessions().List(ctx, account.ID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("List() returned %d sessions, want 2", len(sessions))
	}

	if err := authService.Sessions().RevokeAll(ctx, account.ID); err != nil {
		t.Fatalf("RevokeAll() error = %v", err)
	}

	for _, token := range []string{first, second} {
		if _, err := authService.Sessions().Rotate(ctx, token, testIP, testFingerprint); !errors.Is(err, ErrTokenRevoked) {
			t.Errorf("Rotate() after RevokeAll error = %v, want %v", err, ErrTokenRevoked)
		}
	}
}
