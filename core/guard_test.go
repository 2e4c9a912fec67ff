package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	testIP          = "192.0.2.10"
	testFingerprint = "wispy-test/1.0"
)

// failingStorage wraps a Storage and fails account lookups
type failingStorage struct {
	Storage
	err error
}

func (f *failingStorage) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	return nil, f.err
}

func TestAccountGuard_Authenticate(t *testing.T) {
	authService, storage, _ := mustCreateTestAuthService(t)
	ctx := context.Background()
	account := mustCreateActiveAccount(t, authService)

	tokens, err := authService.Guard().Authenticate(ctx, account.Email, testPassword, testIP, testFingerprint)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("Authenticate() returned empty tokens: %+v", tokens)
	}
	if tokens.Account == nil || tokens.Account.ID != account.ID {
		t.Errorf("Authenticate() account = %+v, want id %s", tokens.Account, account.ID)
	}

	claims, err := authService.Signer().ParseAccessToken(tokens.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken() error = %v", err)
	}
	if claims.Subject != account.ID || claims.Role != DefaultRole || claims.Email != account.Email {
		t.Errorf("access token claims = %+v", claims)
	}

	session, _ := storage.GetSessionByTokenHash(ctx, hashToken(tokens.RefreshToken))
	if session == nil {
		t.Fatal("refresh token session was not stored")
	}
	if session.IPAddress != testIP || session.DeviceFingerprint != testFingerprint {
		t.Errorf("session bound to %s/%s, want %s/%s", session.IPAddress, session.DeviceFingerprint, testIP, testFingerprint)
	}
	if session.TokenHash == tokens.RefreshToken {
		t.Error("raw refresh token must not be stored")
	}

	if last := storage.lastAudit(); last == nil || last.Action != ActionSuccessfulLogin {
		t.Errorf("last audit event = %+v, want %s", last, ActionSuccessfulLogin)
	}
}

func TestAccountGuard_Authenticate_EmailIsCaseInsensitive(t *testing.T) {
	authService, _, _ := mustCreateTestAuthService(t)
	account := mustCreateActiveAccount(t, authService)

	upper := "  " + strings.ToUpper(account.Email) + " "
	if _, err := authService.Guard().Authenticate(context.Background(), upper, testPassword, testIP, testFingerprint); err != nil {
		t.Errorf("Authenticate() with differently cased email error = %v", err)
	}
}

func TestAccountGuard_Authenticate_UnknownEmail(t *testing.T) {
	authService, storage, _ := mustCreateTestAuthService(t)

	_, err := authService.Guard().Authenticate(context.Background(), "nobody@example.com", testPassword, testIP, testFingerprint)
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("Authenticate() error = %v, want %v", err, ErrAuthenticationFailed)
	}

	last := storage.lastAudit()
	if last == nil || last.Action != ActionFailedLogin {
		t.Fatalf("last audit event = %+v, want %s", last, ActionFailedLogin)
	}
	if last.AccountID != nil {
		t.Errorf("audit account = %v, want nil for unknown email", *last.AccountID)
	}
	if last.IPAddress != testIP {
		t.Errorf("audit ip = %s, want %s", last.IPAddress, testIP)
	}
}

// Three wrong passwords lock the account; the correct password is then rejected too.
func TestAccountGuard_Lockout(t *testing.T) {
	authService, storage, _ := mustCreateTestAuthService(t)
	ctx := context.Background()
	account := mustCreateActiveAccount(t, authService)
	guard := authService.Guard()

	wantErrs := []error{ErrAuthenticationFailed, ErrAuthenticationFailed, ErrAccountLocked}
	for i, want := range wantErrs {
		_, err := guard.Authenticate(ctx, account.Email, "WrongPassword1!", testIP, testFingerprint)
		if !errors.Is(err, want) {
			t.Fatalf("attempt %d: error = %v, want %v", i+1, err, want)
		}
	}

	stored, _ := storage.GetAccountByID(ctx, account.ID)
	if !stored.Locked || stored.LockedAt == nil || stored.FailedAttempts != 3 {
		t.Fatalf("account after lockout = %+v", stored)
	}

	if _, err := guard.Authenticate(ctx, account.Email, testPassword, testIP, testFingerprint); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("correct password on locked account: error = %v, want %v", err, ErrAccountLocked)
	}

	stored, _ = storage.GetAccountByID(ctx, account.ID)
	if stored.FailedAttempts != 3 {
		t.Errorf("locked login changed counter to %d", stored.FailedAttempts)
	}

	actions := storage.actions()
	wantTail := []AuditAction{ActionFailedLogin, ActionFailedLogin, ActionBlockedAccount, ActionBlockedAccount}
	if len(actions) < len(wantTail) {
		t.Fatalf("audit actions = %v", actions)
	}
	tail := actions[len(actions)-len(wantTail):]
	for i := range wantTail {
		if tail[i] != wantTail[i] {
			t.Errorf("audit actions = %v, want suffix %v", actions, wantTail)
			break
		}
	}
}

func TestAccountGuard_ConcurrentFailedLogins(t *testing.T) {
	const attempts = 8

	storage := mustCreateTestStorage(t)
	cfg := testConfig(storage, nil)
	cfg.SecurityConfig.MaxLoginAttempts = attempts
	authService, err := NewAuthService(cfg)
	if err != nil {
		t.Fatalf("NewAuthService() error = %v", err)
	}
	defer authService.Close()

	ctx := context.Background()
	account := mustCreateActiveAccount(t, authService)
	before := len(storage.actions())

	// With the threshold equal to the number of attempts, every attempt reads an unlocked
	// account and exactly the last increment locks it.
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := authService.Guard().Authenticate(ctx, account.Email, "WrongPassword1!", testIP, testFingerprint)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var failed, locked int
	for err := range errs {
		switch {
		case errors.Is(err, ErrAuthenticationFailed):
			failed++
		case errors.Is(err, ErrAccountLocked):
			locked++
		default:
			t.Errorf("unexpected error = %v", err)
		}
	}
	if locked != 1 || failed != attempts-1 {
		t.Errorf("got %d locked and %d failed results, want 1 and %d", locked, failed, attempts-1)
	}

	stored, _ := storage.GetAccountByID(ctx, account.ID)
	if stored.FailedAttempts != attempts || !stored.Locked {
		t.Errorf("account after concurrent failures = %+v", stored)
	}

	var blocked int
	for _, action := range storage.actions()[before:] {
		if action == ActionBlockedAccount {
			blocked++
		}
	}
	if blocked != 1 {
		t.Errorf("recorded %d BLOCKED_ACCOUNT events, want 1", blocked)
	}
}

func TestAccountGuard_SuccessResetsCounter(t *testing.T) {
	authService, storage, _ := mustCreateTestAuthService(t)
	ctx := context.Background()
	account := mustCreateActiveAccount(t, authService)
	guard := authService.Guard()

	for i := 0; i < 2; i++ {
		if _, err := guard.Authenticate(ctx, account.Email, "WrongPassword1!", testIP, testFingerprint); !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("attempt %d: error = %v", i+1, err)
		}
	}
	if _, err := guard.Authenticate(ctx, account.Email, testPassword, testIP, testFingerprint); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	stored, _ := storage.GetAccountByID(ctx, account.ID)
	if stored.FailedAttempts != 0 {
		t.Errorf("FailedAttempts after success = %d, want 0", stored.FailedAttempts)
	}

	// Another two failures must not lock the account
	for i := 0; i < 2; i++ {
		if _, err := guard.Authenticate(ctx, account.Email, "WrongPassword1!", testIP, testFingerprint); !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("attempt %d after reset: error = %v", i+1, err)
		}
	}
}

func TestAccountGuard_TimedUnlock(t *testing.T) {
	storage := mustCreateTestStorage(t)
	cfg := testConfig(storage, nil)
	cfg.SecurityConfig.LockoutDuration = 10 * time.Minute
	authService, err := NewAuthService(cfg)
	if err != nil {
		t.Fatalf("NewAuthService() error = %v", err)
	}
	defer authService.Close()

	ctx := context.Background()
	account := mustCreateActiveAccount(t, authService)
	guard := authService.Guard()

	for i := 0; i < 3; i++ {
		guard.Authenticate(ctx, account.Email, "WrongPassword1!", testIP, testFingerprint)
	}

	if _, err := guard.Authenticate(ctx, account.Email, testPassword, testIP, testFingerprint); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("before lockout expiry: error = %v, want %v", err, ErrAccountLocked)
	}

	guard.now = func() time.Time { return time.Now().Add(11 * time.Minute) }

	if _, err := guard.Authenticate(ctx, account.Email, testPassword, testIP, testFingerprint); err != nil {
		t.Fatalf("after lockout expiry: error = %v", err)
	}

	stored, _ := storage.GetAccountByID(ctx, account.ID)
	if stored.Locked || stored.FailedAttempts != 0 {
		t.Errorf("account after timed unlock = %+v", stored)
	}

	found := false
	for _, action := range storage.actions() {
		if action == ActionUnlockedAccount {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s audit event, got %v", ActionUnlockedAccount, storage.actions())
	}
}

func TestAccountGuard_ManualUnlock(t *testing.T) {
	authService, storage, _ := mustCreateTestAuthService(t)
	ctx := context.Background()
	account := mustCreateActiveAccount(t, authService)
	guard := authService.Guard()

	for i := 0; i < 3; i++ {
		guard.Authenticate(ctx, account.Email, "WrongPassword1!", testIP, testFingerprint)
	}

	// LockoutDuration 0 never expires on its own
	guard.now = func() time.Time { return time.Now().Add(365 * 24 * time.Hour) }
	if _, err := guard.Authenticate(ctx, account.Email, testPassword, testIP, testFingerprint); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("error = %v, want %v", err, ErrAccountLocked)
	}

	unlocked, err := guard.Unlock(ctx, account.ID, "198.51.100.1")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if unlocked.Locked || unlocked.FailedAttempts != 0 {
		t.Errorf("Unlock() returned %+v", unlocked)
	}
	if last := storage.lastAudit(); last.Action != ActionUnlockedAccount {
		t.Errorf("last audit = %s, want %s", last.Action, ActionUnlockedAccount)
	}

	if _, err := guard.Authenticate(ctx, account.Email, testPassword, testIP, testFingerprint); err != nil {
		t.Errorf("Authenticate() after unlock error = %v", err)
	}

	if _, err := guard.Unlock(ctx, "missing", testIP); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("Unlock(missing) error = %v, want %v", err, ErrAccountNotFound)
	}
}

func TestAccountGuard_Unverified(t *testing.T) {
	authService, storage, _ := mustCreateTestAuthService(t)
	ctx := context.Background()
	guard := authService.Guard()

	account, err := guard.Register(ctx, RegisterInput{Email: testEmail(t), Password: testPassword}, testIP)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if _, err := guard.Authenticate(ctx, account.Email, testPassword, testIP, testFingerprint); !errors.Is(err, ErrEmailNotVerified) {
		t.Errorf("correct password: error = %v, want %v", err, ErrEmailNotVerified)
	}

	if _, err := guard.Authenticate(ctx, account.Email, "WrongPassword1!", testIP, testFingerprint); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("wrong password: error = %v, want %v", err, ErrAuthenticationFailed)
	}

	stored, _ := storage.GetAccountByID(ctx, account.ID)
	if stored.FailedAttempts != 1 {
		t.Errorf("FailedAttempts = %d, want 1", stored.FailedAttempts)
	}
}

func TestAccountGuard_Register(t *testing.T) {
	authService, storage, _ := mustCreateTestAuthService(t)
	ctx := context.Background()
	guard := authService.Guard()

	account, err := guard.Register(ctx, RegisterInput{
		Email:      "New.User@Example.com",
		Password:   testPassword,
		GivenName:  "New",
		FamilyName: "User",
	}, testIP)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if account.Email != "new.user@example.com" {
		t.Errorf("Email = %s, want normalized address", account.Email)
	}
	if account.Active || account.Locked || account.FailedAttempts != 0 {
		t.Errorf("new account state = %+v", account)
	}
	if account.Role != DefaultRole {
		t.Errorf("Role = %s, want %s", account.Role, DefaultRole)
	}
	if account.PasswordHash == testPassword || !checkPasswordHash(testPassword, account.PasswordHash) {
		t.Error("password was not hashed")
	}
	if last := storage.lastAudit(); last.Action != ActionSuccessfulRegistration {
		t.Errorf("last audit = %s, want %s", last.Action, ActionSuccessfulRegistration)
	}

	_, err = guard.Register(ctx, RegisterInput{Email: "NEW.USER@example.com", Password: testPassword}, testIP)
	if !errors.Is(err, ErrEmailAlreadyUsed) {
		t.Errorf("duplicate Register() error = %v, want %v", err, ErrEmailAlreadyUsed)
	}
	if last := storage.lastAudit(); last.Action != ActionFailedRegistration {
		t.Errorf("last audit = %s, want %s", last.Action, ActionFailedRegistration)
	}
}

func TestAccountGuard_VerifyEmail(t *testing.T) {
	authService, storage, _ := mustCreateTestAuthService(t)
	ctx := context.Background()
	guard := authService.Guard()

	account, err := guard.Register(ctx, RegisterInput{Email: testEmail(t), Password: testPassword}, testIP)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	verified, err := guard.VerifyEmail(ctx, account.ID, testIP)
	if err != nil {
		t.Fatalf("VerifyEmail() error = %v", err)
	}
	if !verified.Active {
		t.Error("VerifyEmail() did not activate the account")
	}
	if last := storage.lastAudit(); last.Action != ActionSuccessfulEmailVerification {
		t.Errorf("last audit = %s, want %s", last.Action, ActionSuccessfulEmailVerification)
	}

	if _, err := guard.VerifyEmail(ctx, account.ID, testIP); !errors.Is(err, ErrAlreadyVerified) {
		t.Errorf("second VerifyEmail() error = %v, want %v", err, ErrAlreadyVerified)
	}
	if _, err := guard.VerifyEmail(ctx, "missing", testIP); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("VerifyEmail(missing) error = %v, want %v", err, ErrAccountNotFound)
	}
	if last := storage.lastAudit(); last.Action != ActionFailedEmailVerification || last.AccountID != nil {
		t.Errorf("last audit = %+v, want %s without account", last, ActionFailedEmailVerification)
	}
}

func TestAccountGuard_StorageFailure(t *testing.T) {
	storage := &failingStorage{Storage: mustCreateTestStorage(t), err: errTestStorage}
	authService, err := NewAuthService(testConfig(storage, nil))
	if err != nil {
		t.Fatalf("NewAuthService() error = %v", err)
	}
	defer authService.Close()

	_, err = authService.Guard().Authenticate(context.Background(), "someone@example.com", testPassword, testIP, testFingerprint)
	if !errors.Is(err, ErrInfrastructure) || !errors.Is(err, errTestStorage) {
		t.Errorf("error = %v, want infrastructure failure wrapping the cause", err)
	}
	if IsBusinessError(err) {
		t.Error("storage failure must not be a business error")
	}
}
