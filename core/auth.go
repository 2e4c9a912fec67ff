// Package core provides the account-authentication core of wispy-guard.
//
// This package includes:
//   - Email/password authentication with brute-force lockout
//   - Access and refresh token lifecycle with IP and device binding
//   - Security event auditing
//   - IP blacklisting and periodic abuse detection
//   - Email verification codes and password resets
//
// ## Key Features:
//   - Closed error taxonomy so the transport layer can map each failure to its own status
//   - Return-based handlers - maximum control over HTTP responses
//   - Works with any HTTP router (Chi, Gorilla Mux, stdlib, etc.)
//
// ## Quick Start:
//
//	authService, err := core.NewAuthService(core.Config{
//		Storage:       storage,
//		SigningSecret: os.Getenv("JWT_SECRET"),
//		Notifier:      notifier,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer authService.Close()
//
//	go authService.AbuseScheduler().Run(ctx)
//
//	r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
//		result := authService.LoginHandler(r)
//		core.SetRefreshCookie(w, result.RefreshToken, authService.SecurityConfig())
//		w.WriteHeader(result.StatusCode)
//		json.NewEncoder(w).Encode(result)
//	})
package core

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
)

// SecurityConfig defines security-related configuration options
type SecurityConfig struct {
	// Password policy
	PasswordMinLength      int
	PasswordRequireUpper   bool
	PasswordRequireLower   bool
	PasswordRequireNumber  bool
	PasswordRequireSpecial bool

	// Login security
	MaxLoginAttempts int           // Failed attempts before the account locks
	LockoutDuration  time.Duration // 0 keeps accounts locked until an administrator unlocks them

	// Tokens
	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration
	RotateRefreshTokens bool // issue a new refresh token on every refresh and revoke the old one

	// Email flows
	VerificationCodeTTL time.Duration
	PasswordResetTTL    time.Duration

	// Cookies
	SecureCookies bool
}

// DefaultSecurityConfig returns a secure default configuration
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		PasswordMinLength:      8,
		PasswordRequireUpper:   true,
		PasswordRequireLower:   true,
		PasswordRequireNumber:  true,
		PasswordRequireSpecial: true,
		MaxLoginAttempts:       3,
		LockoutDuration:        0,
		AccessTokenTTL:         15 * time.Minute,
		RefreshTokenTTL:        7 * 24 * time.Hour,
		RotateRefreshTokens:    false,
		VerificationCodeTTL:    24 * time.Hour,
		PasswordResetTTL:       time.Hour,
		SecureCookies:          true,
	}
}

// Config contains the configuration for the AuthService
type Config struct {
	Storage        Storage        // Storage implementation (required)
	SigningSecret  string         // HMAC secret for tokens (required)
	Issuer         string         // "iss" claim of issued tokens
	SecurityConfig SecurityConfig // Security configuration
	AuditConfig    AuditConfig    // Audit dispatch configuration
	AbuseConfig    AbuseConfig    // Abuse scan configuration
	Notifier       Notifier       // Outbound email collaborator (optional)
	BlacklistCache BlacklistCache // Blacklist cache (optional)
	TrustedProxies []string       // IPs or CIDRs allowed to set X-Forwarded-For and X-Real-IP
}

// AuthService wires the authentication components together and exposes HTTP handlers.
type AuthService struct {
	storage        Storage
	securityConfig SecurityConfig
	validator      *validator.Validate
	proxies        *ProxyList

	signer    *TokenSigner
	audit     *AuditTrail
	guard     *AccountGuard
	sessions  *SessionManager
	blacklist *BlacklistGate
	verifier  *EmailVerifier
	resetter  *PasswordResetter
	monitor   *Monitor
	abuse     *AbuseScheduler
}

// NewAuthService creates a new authentication service
func NewAuthService(cfg Config) (*AuthService, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}

	// Test storage connection
	if err := cfg.Storage.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to storage: %w", err)
	}

	securityConfig := withSecurityDefaults(cfg.SecurityConfig)

	proxies, err := ParseProxyList(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	signer, err := NewTokenSigner(TokenSignerConfig{
		Secret:     cfg.SigningSecret,
		Issuer:     cfg.Issuer,
		AccessTTL:  securityConfig.AccessTokenTTL,
		RefreshTTL: securityConfig.RefreshTokenTTL,
	})
	if err != nil {
		return nil, err
	}

	auditConfig := cfg.AuditConfig
	if auditConfig == (AuditConfig{}) {
		auditConfig = DefaultAuditConfig()
	}

	audit := NewAuditTrail(cfg.Storage, auditConfig)
	sessions := NewSessionManager(cfg.Storage, signer, audit, securityConfig)
	guard := NewAccountGuard(cfg.Storage, audit, signer, sessions, securityConfig)
	blacklist := NewBlacklistGate(cfg.Storage, cfg.BlacklistCache)

	return &AuthService{
		storage:        cfg.Storage,
		securityConfig: securityConfig,
		validator:      validator.New(),
		proxies:        proxies,
		signer:         signer,
		audit:          audit,
		guard:          guard,
		sessions:       sessions,
		blacklist:      blacklist,
		verifier:       NewEmailVerifier(cfg.Storage, guard, audit, cfg.Notifier, securityConfig.VerificationCodeTTL),
		resetter:       NewPasswordResetter(cfg.Storage, sessions, audit, cfg.Notifier, securityConfig.PasswordResetTTL),
		monitor:        NewMonitor(cfg.Storage),
		abuse:          NewAbuseScheduler(audit, blacklist, cfg.AbuseConfig),
	}, nil
}

// withSecurityDefaults fills zero-valued numeric settings from DefaultSecurityConfig.
// A config with no settings at all is replaced by the defaults.
func withSecurityDefaults(cfg SecurityConfig) SecurityConfig {
	defaults := DefaultSecurityConfig()
	if cfg == (SecurityConfig{}) {
		return defaults
	}
	if cfg.PasswordMinLength == 0 {
		cfg.PasswordMinLength = defaults.PasswordMinLength
	}
	if cfg.MaxLoginAttempts == 0 {
		cfg.MaxLoginAttempts = defaults.MaxLoginAttempts
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = defaults.AccessTokenTTL
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = defaults.RefreshTokenTTL
	}
	if cfg.VerificationCodeTTL == 0 {
		cfg.VerificationCodeTTL = defaults.VerificationCodeTTL
	}
	if cfg.PasswordResetTTL == 0 {
		cfg.PasswordResetTTL = defaults.PasswordResetTTL
	}
	return cfg
}

// SecurityConfig returns the effective security configuration.
func (a *AuthService) SecurityConfig() SecurityConfig { return a.securityConfig }

// Signer returns the token signer.
func (a *AuthService) Signer() *TokenSigner { return a.signer }

// Audit returns the audit trail.
func (a *AuthService) Audit() *AuditTrail { return a.audit }

// Guard returns the account guard.
func (a *AuthService) Guard() *AccountGuard { return a.guard }

// Sessions returns the session manager.
func (a *AuthService) Sessions() *SessionManager { return a.sessions }

// Blacklist returns the blacklist gate.
func (a *AuthService) Blacklist() *BlacklistGate { return a.blacklist }

// Verifier returns the email verifier.
func (a *AuthService) Verifier() *EmailVerifier { return a.verifier }

// Resetter returns the password resetter.
func (a *AuthService) Resetter() *PasswordResetter { return a.resetter }

// Monitor returns the activity monitor.
func (a *AuthService) Monitor() *Monitor { return a.monitor }

// AbuseScheduler returns the abuse scheduler. Start it with Run.
func (a *AuthService) AbuseScheduler() *AbuseScheduler { return a.abuse }

// ClientIP returns the client address of r, following forwarding headers only from trusted proxies.
func (a *AuthService) ClientIP(r *http.Request) string { return a.proxies.ClientIP(r) }

// Close flushes pending audit events and closes storage
func (a *AuthService) Close() error {
	a.audit.Close()
	return a.storage.Close()
}
