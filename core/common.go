package core

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// RefreshTokenCookie is the cookie carrying the refresh token
const RefreshTokenCookie = "refresh_token"

// passwordSpecialChars are the characters accepted as "special" by the password policy
const passwordSpecialChars = "@#$%^&+=!"

// Password utilities
func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func checkPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// hashToken returns the hex SHA-256 digest stored in place of a raw token
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// generateVerificationCode returns a uniformly distributed 6 digit code
func generateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// generateResetToken returns 64 hex characters built from two random UUIDs
func generateResetToken() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

// Password validation
func validatePasswordStrength(password string, config SecurityConfig) error {
	if len(password) < config.PasswordMinLength {
		return fmt.Errorf("password must be at least %d characters long", config.PasswordMinLength)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsSpace(r):
			return fmt.Errorf("password must not contain whitespace")
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasNumber = true
		case strings.ContainsRune(passwordSpecialChars, r):
			hasSpecial = true
		}
	}

	if config.PasswordRequireUpper && !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if config.PasswordRequireLower && !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if config.PasswordRequireNumber && !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}
	if config.PasswordRequireSpecial && !hasSpecial {
		return fmt.Errorf("password must contain at least one special character (%s)", passwordSpecialChars)
	}

	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// IP utilities

// ProxyList holds the networks whose forwarding headers are honored.
type ProxyList struct {
	nets []*net.IPNet
}

// ParseProxyList parses IPs and CIDR ranges. An empty list trusts no proxy.
func ParseProxyList(entries []string) (*ProxyList, error) {
	list := &ProxyList{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			list.nets = append(list.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		list.nets = append(list.nets, network)
	}
	return list, nil
}

func (p *ProxyList) trusts(ip string) bool {
	if p == nil {
		return false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, network := range p.nets {
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}

// ClientIP returns the client address of r. Forwarding headers are only read when the
// immediate peer is a trusted proxy. X-Forwarded-For is walked from the right and the
// first hop that is not itself a trusted proxy wins.
func (p *ProxyList) ClientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !p.trusts(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				break
			}
			if !p.trusts(hop) {
				return hop
			}
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(realIP) != nil {
		return realIP
	}
	return peer
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// ClientIP returns the host part of r.RemoteAddr. Forwarding headers are ignored; use
// AuthService.ClientIP to honor them behind trusted proxies.
func ClientIP(r *http.Request) string {
	return remoteHost(r.RemoteAddr)
}

// DeviceFingerprint returns the device fingerprint a refresh token is bound to
func DeviceFingerprint(r *http.Request) string {
	return r.UserAgent()
}

// extractBearerToken extracts an access token from the Authorization header
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	slog.Debug("Authorization header without Bearer prefix", "remote_addr", r.RemoteAddr)
	return ""
}

// extractRefreshToken reads the refresh token cookie, falling back to the supplied body value
func extractRefreshToken(r *http.Request, fromBody string) string {
	if cookie, err := r.Cookie(RefreshTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return fromBody
}

// Helper function to format validation errors
func formatValidationErrors(err error) string {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var errorMessages []string
		for _, fieldError := range validationErrors {
			switch fieldError.Tag() {
			case "required":
				errorMessages = append(errorMessages, fmt.Sprintf("%s is required", fieldError.Field()))
			case "email":
				errorMessages = append(errorMessages, fmt.Sprintf("%s must be a valid email address", fieldError.Field()))
			case "min":
				errorMessages = append(errorMessages, fmt.Sprintf("%s must be at least %s characters long", fieldError.Field(), fieldError.Param()))
			case "max":
				errorMessages = append(errorMessages, fmt.Sprintf("%s must be at most %s characters long", fieldError.Field(), fieldError.Param()))
			case "len":
				errorMessages = append(errorMessages, fmt.Sprintf("%s must be exactly %s characters long", fieldError.Field(), fieldError.Param()))
			case "numeric":
				errorMessages = append(errorMessages, fmt.Sprintf("%s must be numeric", fieldError.Field()))
			case "ip":
				errorMessages = append(errorMessages, fmt.Sprintf("%s must be a valid IP address", fieldError.Field()))
			default:
				errorMessages = append(errorMessages, fmt.Sprintf("%s is invalid", fieldError.Field()))
			}
		}
		return strings.Join(errorMessages, "; ")
	}
	return err.Error()
}
