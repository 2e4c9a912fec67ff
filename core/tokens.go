package core

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the "typ" claim
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenClaims are the claims embedded in access tokens. Refresh tokens carry only the registered claims.
type TokenClaims struct {
	jwt.RegisteredClaims
	Type       string `json:"typ"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
}

// TokenSignerConfig configures a TokenSigner.
type TokenSignerConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration // default 15 minutes
	RefreshTTL time.Duration // default 7 days
}

// TokenSigner produces and validates HS256 signed, expiring bearer tokens.
type TokenSigner struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	parser     *jwt.Parser
}

// NewTokenSigner creates a signer. It fails when the secret is empty.
func NewTokenSigner(cfg TokenSignerConfig) (*TokenSigner, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("signing secret is required")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}

	return &TokenSigner{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
		),
	}, nil
}

// AccessTTL returns the lifetime of access tokens.
func (s *TokenSigner) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the lifetime of refresh tokens.
func (s *TokenSigner) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccessToken signs a short-lived token for accountID carrying the supplied claims.
// Registered claims and the token type in claims are overwritten.
func (s *TokenSigner) IssueAccessToken(accountID string, claims TokenClaims) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = s.registeredClaims(accountID, now, s.accessTTL)
	claims.Type = TokenTypeAccess
	return s.sign(claims)
}

// IssueRefreshToken signs a long-lived token carrying only the subject.
func (s *TokenSigner) IssueRefreshToken(accountID string) (string, error) {
	now := time.Now()
	return s.sign(TokenClaims{
		RegisteredClaims: s.registeredClaims(accountID, now, s.refreshTTL),
		Type:             TokenTypeRefresh,
	})
}

// Validate reports whether the token has a valid signature, structure and unexpired lifetime.
func (s *TokenSigner) Validate(token string) bool {
	_, err := s.parse(token)
	return err == nil
}

// ExtractSubject returns the subject of a verified token or ErrTokenMalformed.
func (s *TokenSigner) ExtractSubject(token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}
	return claims.Subject, nil
}

// ParseAccessToken verifies an access token and returns its claims.
func (s *TokenSigner) ParseAccessToken(token string) (*TokenClaims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Type != TokenTypeAccess {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrTokenInvalid, claims.Type)
	}
	return claims, nil
}

func (s *TokenSigner) registeredClaims(accountID string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    s.issuer,
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (s *TokenSigner) sign(claims TokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *TokenSigner) parse(tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		if !errors.Is(err, jwt.ErrTokenExpired) {
			slog.Debug("Failed to parse token", "error", err)
		}
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	return claims, nil
}
