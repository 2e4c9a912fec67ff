package core

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Request and Response Types

// RegisterRequest represents an account registration request
type RegisterRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8,max=72"`
	GivenName  string `json:"given_name" validate:"required,max=100"`
	FamilyName string `json:"family_name" validate:"required,max=100"`
}

// RegisterResponse represents the response for account registration
type RegisterResponse struct {
	Account    *Account `json:"account,omitempty"` // Created account (inactive until verified)
	Message    string   `json:"message,omitempty"`
	StatusCode int      `json:"-"`               // HTTP status code (not serialized)
	Error      string   `json:"error,omitempty"` // Error message if any
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"` // Account email address
	Password string `json:"password" validate:"required"`    // Plaintext password
}

// LoginResponse represents the response for authentication. The refresh token is not
// serialized; set it with SetRefreshCookie.
type LoginResponse struct {
	AccessToken     string    `json:"access_token,omitempty"`
	TokenType       string    `json:"token_type,omitempty"`
	AccessExpiresAt time.Time `json:"access_expires_at,omitempty"`
	Account         *Account  `json:"account,omitempty"`
	RefreshToken    string    `json:"-"`
	StatusCode      int       `json:"-"`               // HTTP status code (not serialized)
	Error           string    `json:"error,omitempty"` // Error message if any
}

// RefreshRequest optionally carries the refresh token when no cookie is present
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshResponse represents the response for a token refresh
type RefreshResponse struct {
	AccessToken     string    `json:"access_token,omitempty"`
	TokenType       string    `json:"token_type,omitempty"`
	AccessExpiresAt time.Time `json:"access_expires_at,omitempty"`
	RefreshToken    string    `json:"-"` // Set only when refresh rotation is enabled
	StatusCode      int       `json:"-"`
	Error           string    `json:"error,omitempty"`
}

// VerifyEmailRequest represents an email verification request
type VerifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// AccountResponse represents a response carrying a single account
type AccountResponse struct {
	Account    *Account `json:"account,omitempty"`
	StatusCode int      `json:"-"`
	Error      string   `json:"error,omitempty"`
}

// EmailRequest carries only an email address
type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest represents a password reset confirmation
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required,len=64,hexadecimal"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

// MessageResponse represents a response carrying only a message
type MessageResponse struct {
	Message    string `json:"message,omitempty"`
	StatusCode int    `json:"-"`
	Error      string `json:"error,omitempty"`
}

// SessionsResponse represents the response for session listing
type SessionsResponse struct {
	Sessions   []*Session `json:"sessions"`
	StatusCode int        `json:"-"`
	Error      string     `json:"error,omitempty"`
}

// AccountsResponse represents a page of accounts
type AccountsResponse struct {
	Accounts   []*Account `json:"accounts"`
	Limit      int        `json:"limit"`
	Offset     int        `json:"offset"`
	StatusCode int        `json:"-"`
	Error      string     `json:"error,omitempty"`
}

// AuditEventsResponse represents a page of audit events
type AuditEventsResponse struct {
	Events     []*AuditEvent `json:"events"`
	Limit      int           `json:"limit"`
	Offset     int           `json:"offset"`
	StatusCode int           `json:"-"`
	Error      string        `json:"error,omitempty"`
}

// BlacklistResponse represents a page of blacklist entries
type BlacklistResponse struct {
	Entries    []*BlacklistEntry `json:"entries"`
	Limit      int               `json:"limit"`
	Offset     int               `json:"offset"`
	StatusCode int               `json:"-"`
	Error      string            `json:"error,omitempty"`
}

// BlockIPRequest represents a manual blacklist request
type BlockIPRequest struct {
	IPAddress string `json:"ip_address" validate:"required,ip"`
	Reason    string `json:"reason" validate:"required,max=255"`
}

// BlockIPResponse represents the response for a manual blacklist request
type BlockIPResponse struct {
	IPAddress  string `json:"ip_address,omitempty"`
	Created    bool   `json:"created"`
	StatusCode int    `json:"-"`
	Error      string `json:"error,omitempty"`
}

// StatsResponse represents the daily activity report
type StatsResponse struct {
	Stats      []DailyStats `json:"stats"`
	StatusCode int          `json:"-"`
	Error      string       `json:"error,omitempty"`
}

var errorMessages = map[error]string{
	ErrAuthenticationFailed:    "Invalid credentials",
	ErrAccountLocked:           "Account is locked",
	ErrEmailNotVerified:        "Email address is not verified",
	ErrEmailAlreadyUsed:        "Email address is already in use",
	ErrAccountNotFound:         "Account not found",
	ErrAlreadyVerified:         "Account is already verified",
	ErrTokenInvalid:            "Invalid refresh token",
	ErrTokenRevoked:            "Refresh token has been revoked",
	ErrContextMismatch:         "Refresh token was issued to a different device or network",
	ErrTokenMalformed:          "Malformed token",
	ErrInvalidVerificationCode: "Invalid or expired verification code",
	ErrResetTokenInvalid:       "Invalid or expired password reset token",
	ErrResetAlreadyRequested:   "A password reset is already pending",
}

// Status returns the HTTP status code of the result
func (r RegisterResponse) Status() int    { return r.StatusCode }
func (r LoginResponse) Status() int       { return r.StatusCode }
func (r RefreshResponse) Status() int     { return r.StatusCode }
func (r AccountResponse) Status() int     { return r.StatusCode }
func (r MessageResponse) Status() int     { return r.StatusCode }
func (r SessionsResponse) Status() int    { return r.StatusCode }
func (r AccountsResponse) Status() int    { return r.StatusCode }
func (r AuditEventsResponse) Status() int { return r.StatusCode }
func (r BlacklistResponse) Status() int   { return r.StatusCode }
func (r BlockIPResponse) Status() int     { return r.StatusCode }
func (r StatsResponse) Status() int       { return r.StatusCode }

// errorMessage returns the client-facing message for err
func errorMessage(err error) string {
	for target, message := range errorMessages {
		if errors.Is(err, target) {
			return message
		}
	}
	return "Internal server error"
}

// logHandlerError logs infrastructure failures at error level and business failures at debug level
func logHandlerError(operation string, err error) {
	if IsBusinessError(err) {
		slog.Debug(operation+" rejected", "error", err)
		return
	}
	slog.Error(operation+" failed", "error", err)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return io.EOF
	}
	return json.NewDecoder(r.Body).Decode(dst)
}

// RegisterHandler processes account registration requests
func (a *AuthService) RegisterHandler(r *http.Request) RegisterResponse {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.Debug("Failed to decode register request", "error", err)
		return RegisterResponse{StatusCode: http.StatusBadRequest, Error: "Invalid request format"}
	}

	if err := a.validator.Struct(req); err != nil {
		slog.Debug("Register validation failed", "error", err)
		return RegisterResponse{StatusCode: http.StatusBadRequest, Error: formatValidationErrors(err)}
	}

	if err := validatePasswordStrength(req.Password, a.securityConfig); err != nil {
		slog.Debug("Password validation failed", "error", err)
		return RegisterResponse{StatusCode: http.StatusBadRequest, Error: err.Error()}
	}

	account, err := a.guard.Register(r.Context(), RegisterInput{
		Email:      req.Email,
		Password:   req.Password,
		GivenName:  req.GivenName,
		FamilyName: req.FamilyName,
	}, a.ClientIP(r))
	if err != nil {
		logHandlerError("Registration", err)
		return RegisterResponse{StatusCode: StatusCode(err), Error: errorMessage(err)}
	}

	if err := a.verifier.SendCode(r.Context(), account); err != nil {
		slog.Error("Failed to issue verification code", "account_id", account.ID, "error", err)
	}

	return RegisterResponse{
		Account:    account,
		Message:    "Account created, check your email for the verification code",
		StatusCode: http.StatusCreated,
	}
}

// LoginHandler processes login requests
func (a *AuthService) LoginHandler(r *http.Request) LoginResponse {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.Debug("Failed to decode login request", "error", err)
		return LoginResponse{StatusCode: http.StatusBadRequest, Error: "Invalid request format"}
	}

	if err := a.validator.Struct(req); err != nil {
		slog.Debug("Login validation failed", "error", err)
		return LoginResponse{StatusCode: http.StatusBadRequest, Error: formatValidationErrors(err)}
	}

	tokens, err := a.guard.Authenticate(r.Context(), req.Email, req.Password, a.ClientIP(r), DeviceFingerprint(r))
	if err != nil {
		logHandlerError("Login", err)
		return LoginResponse{StatusCode: StatusCode(err), Error: errorMessage(err)}
	}

	return LoginResponse{
		AccessToken:     tokens.AccessToken,
		TokenType:       "Bearer",
		AccessExpiresAt: tokens.AccessExpiresAt,
		Account:         tokens.Account,
		RefreshToken:    tokens.RefreshToken,
		StatusCode:      http.StatusOK,
	}
}

// RefreshHandler exchanges the refresh token (cookie or body) for a new access token
func (a *AuthService) RefreshHandler(r *http.Request) RefreshResponse {
	var req RefreshRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		slog.Debug("Failed to decode refresh request", "error", err)
		return RefreshResponse{StatusCode: http.StatusBadRequest, Error: "Invalid request format"}
	}

	refreshToken := extractRefreshToken(r, req.RefreshToken)
	if refreshToken == "" {
		return RefreshResponse{StatusCode: http.StatusUnauthorized, Error: "Refresh token is required"}
	}

	result, err := a.sessions.Rotate(r.Context(), refreshToken, a.ClientIP(r), DeviceFingerprint(r))
	if err != nil {
		logHandlerError("Token refresh", err)
		return RefreshResponse{StatusCode: StatusCode(err), Error: errorMessage(err)}
	}

	return RefreshResponse{
		AccessToken:     result.AccessToken,
		TokenType:       "Bearer",
		AccessExpiresAt: result.AccessExpiresAt,
		RefreshToken:    result.RefreshToken,
		StatusCode:      http.StatusOK,
	}
}

// LogoutHandler revokes the presented refresh token
func (a *AuthService) LogoutHandler(r *http.Request) MessageResponse {
	var req RefreshRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		slog.Debug("Failed to decode logout request", "error", err)
		return MessageResponse{StatusCode: http.StatusBadRequest, Error: "Invalid request format"}
	}

	refreshToken := extractRefreshToken(r, req.RefreshToken)
	if refreshToken == "" {
		return MessageResponse{StatusCode: http.StatusUnauthorized, Error: "Refresh token is required"}
	}

	if err := a.sessions.Revoke(r.Context(), refreshToken, a.ClientIP(r)); err != nil {
		logHandlerError("Logout", err)
		return MessageResponse{StatusCode: StatusCode(err), Error: errorMessage(err)}
	}

	return MessageResponse{Message: "Logged out successfully", StatusCode: http.StatusOK}
}

// VerifyEmailHandler confirms an email verification code
func (a *AuthService) VerifyEmailHandler(r *http.Request) AccountResponse {
	var req VerifyEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.Debug("Failed to decode verify email request", "error", err)
		return AccountResponse{StatusCode: http.StatusBadRequest, Error: "Invalid request format"}
	}

	if err := a.validator.Struct(req); err != nil {
		return AccountResponse{StatusCode: http.StatusBadRequest, Error: formatValidationErrors(err)}
	}

	account, err := a.verifier.Confirm(r.Context(), req.Email, req.Code, a.ClientIP(r))
	if err != nil {
		logHandlerError("Email verification", err)
		return AccountResponse{StatusCode: StatusCode(err), Error: errorMessage(err)}
	}

	return AccountResponse{Account: account, StatusCode: http.StatusOK}
}

// ResendVerificationHandler issues a new verification code. The response does not reveal
// whether the email is registered.
func (a *AuthService) ResendVerificationHandler(r *http.Request) MessageResponse {
	var req EmailRequest
	if err := decodeJSON(r, &req); err != nil {
		return MessageResponse{StatusCode: http.StatusBadRequest, Error: "Invalid request format"}
	}

	if err := a.validator.Struct(req); err != nil {
		return MessageResponse{StatusCode: http.StatusBadRequest, Error: formatValidationErrors(err)}
	}

	if err := a.verifier.Resend(r.Context(), req.Email); err != nil {
		logHandlerError("Resend verification", err)
		return MessageResponse{StatusCode: StatusCode(err), Error: errorMessage(err)}
	}

	return MessageResponse{
		Message:    "If the account exists and is not verified, a new code has been sent",
		StatusCode: http.StatusOK,
	}
}

// ForgotPasswordHandler starts a password reset. Unknown emails get the same response.
func (a *AuthService) ForgotPasswordHandler(r *http.Request) MessageResponse {
	var req EmailRequest
	if err := decodeJSON(r, &req); err != nil {
		return MessageResponse{StatusCode: http.StatusBadRequest, Error: "Invalid request format"}
	}

	if err := a.validator.Struct(req); err != nil {
		return MessageResponse{StatusCode: http.StatusBadRequest, Error: formatValidationErrors(err)}
	}

	if err := a.resetter.Request(r.Context(), req.Email, a.ClientIP(r)); err != nil {
		logHandlerError("Password reset request", err)
		return MessageResponse{StatusCode: StatusCode(err), Error: errorMessage(err)}
	}

	return MessageResponse{
		Message:    "If the account exists, a password reset link has been sent",
		StatusCode: http.StatusOK,
	}
}

// ResetPasswordHandler sets a new password using a reset token
func (a *AuthService) ResetPasswordHandler(r *http.Request) MessageResponse {
	var req ResetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		return MessageResponse{StatusCode: http.StatusBadRequest, Error: "Invalid request format"}
	}

	if err := a.validator.Struct(req); err != nil {
		return MessageResponse{StatusCode: http.StatusBadRequest, Error: formatValidationErrors(err)}
	}

	if err := validatePasswordStrength(req.NewPassword, a.securityConfig); err != nil {
		return MessageResponse{StatusCode: http.StatusBadRequest, Error: err.Error()}
	}

	if err := a.resetter.Reset(r.Context(), req.Token, req.NewPassword, a.ClientIP(r)); err != nil {
		logHandlerError("Password reset", err)
		return MessageResponse{StatusCode: StatusCode(err), Error: errorMessage(err)}
	}

	return MessageResponse{Message: "Password has been reset", StatusCode: http.StatusOK}
}

// MeHandler returns the account of the access token in the request context
func (a *AuthService) MeHandler(r *http.Request) AccountResponse {
	claims := GetClaimsFromContext(r)
	if claims == nil {
		return AccountResponse{StatusCode: http.StatusUnauthorized, Error: "Unauthorized"}
	}

	account, err := a.storage.GetAccountByID(r.Context(), claims.Subject)
	if err != nil {
		slog.Error("Failed to get account", "account_id", claims.Subject, "error", err)
		return AccountResponse{StatusCode: http.StatusInternalServerError, Error: "Internal server error"}
	}
	if account == nil {
		return AccountResponse{StatusCode: http.StatusNotFound, Error: errorMessage(ErrAccountNotFound)}
	}

	return AccountResponse{Account: account, StatusCode: http.StatusOK}
}

// SessionsHandler lists the sessions of the authenticated account
func (a *AuthService) SessionsHandler(r *http.Request) SessionsResponse {
	claims := GetClaimsFromContext(r)
	if claims == nil {
		return SessionsResponse{StatusCode: http.StatusUnauthorized, Error: "Unauthorized"}
	}

	sessions, err := a.sessions.List(r.Context(), claims.Subject)
	if err != nil {
		logHandlerError("List sessions", err)
		return SessionsResponse{StatusCode: StatusCode(err), Error: errorMessage(err)}
	}
	if sessions == nil {
		sessions = []*Session{}
	}

	return SessionsResponse{Sessions: sessions, StatusCode: http.StatusOK}
}

// AccountsHandler lists accounts (admin)
func (a *AuthService) AccountsHandler(r *http.Request) AccountsResponse {
	limit, offset := pagination(r)

	accounts, err := a.guard.List(r.Context(), limit, offset)
	if err != nil {
		logHandlerError("List accounts", err)
		return AccountsResponse{StatusCode: StatusCode(err), Error: errorMessage(err)}
	}
	if accounts == nil {
		accounts = []*Account{}
	}

	return AccountsResponse{Accounts: accounts, Limit: limit, Offset: offset, StatusCode: http.StatusOK}
}

// AuditEventsHandler lists audit events (admin)
func (a *AuthService) AuditEventsHandler(r *http.Request) AuditEventsResponse {
	limit, offset := pagination(r)

	events, err := a.audit.List(r.Context(), limit, offset)
	if err != nil {
		logHandlerError("List audit events", err)
		return AuditEventsResponse{StatusCode: StatusCode(err), Error: errorMessage(err)}
	}
	if events == nil {
		events = []*AuditEvent{}
	}

	return AuditEventsResponse{Events: events, Limit: limit, Offset: offset, StatusCode: http.StatusOK}
}

// BlacklistHandler lists blacklisted IPs (admin)
func (a *AuthService) BlacklistHandler(r *http.Request) BlacklistResponse {
	limit, offset := pagination(r)

	entries, err := a.blacklist.List(r.Context(), limit, offset)
	if err != nil {
		logHandlerError("List blacklist", err)
		return BlacklistResponse{StatusCode: StatusCode(err), Error: errorMessage(err)}
	}
	if entries == nil {
		entries = []*BlacklistEntry{}
	}

	return BlacklistResponse{Entries: entries, Limit: limit, Offset: offset, StatusCode: http.StatusOK}
}

// BlockIPHandler adds an IP to the blacklist (admin)
func (a *AuthService) BlockIPHandler(r *http.Request) BlockIPResponse {
	var req BlockIPRequest
	if err := decodeJSON(r, &req); err != nil {
		return BlockIPResponse{StatusCode: http.StatusBadRequest, Error: "Invalid request format"}
	}

	if err := a.validator.Struct(req); err != nil {
		return BlockIPResponse{StatusCode: http.StatusBadRequest, Error: formatValidationErrors(err)}
	}

	created, err := a.blacklist.Block(r.Context(), req.IPAddress, req.Reason)
	if err != nil {
		logHandlerError("Block IP", err)
		return BlockIPResponse{StatusCode: StatusCode(err), Error: errorMessage(err)}
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return BlockIPResponse{IPAddress: req.IPAddress, Created: created, StatusCode: status}
}

// UnlockAccountHandler unlocks a locked account (admin)
func (a *AuthService) UnlockAccountHandler(r *http.Request, accountID string) AccountResponse {
	if accountID == "" {
		return AccountResponse{StatusCode: http.StatusBadRequest, Error: "Account id is required"}
	}

	account, err := a.guard.Unlock(r.Context(), accountID, a.ClientIP(r))
	if err != nil {
		logHandlerError("Unlock account", err)
		return AccountResponse{StatusCode: StatusCode(err), Error: errorMessage(err)}
	}

	return AccountResponse{Account: account, StatusCode: http.StatusOK}
}

// StatsHandler returns the daily activity report (admin)
func (a *AuthService) StatsHandler(r *http.Request) StatsResponse {
	stats, err := a.monitor.DailyStats(r.Context())
	if err != nil {
		logHandlerError("Daily stats", err)
		return StatsResponse{StatusCode: StatusCode(err), Error: errorMessage(err)}
	}

	return StatsResponse{Stats: stats, StatusCode: http.StatusOK}
}

// SetRefreshCookie writes the refresh token cookie. An empty token leaves the response untouched.
func SetRefreshCookie(w http.ResponseWriter, token string, config SecurityConfig) {
	if token == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    token,
		Path:     "/auth",
		MaxAge:   int(config.RefreshTokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   config.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearRefreshCookie expires the refresh token cookie
func ClearRefreshCookie(w http.ResponseWriter, config SecurityConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

// pagination reads limit and offset query parameters
func pagination(r *http.Request) (int, int) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
