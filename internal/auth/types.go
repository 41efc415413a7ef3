package auth

import (
	"time"
)

// Roles carried in operator tokens
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// OperatorClaims represents the JWT claims for an operator
type OperatorClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// IsAdmin reports whether the operator may change trading state
func (c OperatorClaims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// LoginRequest represents an operator login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse represents a successful login response
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"` // Access token expiry in seconds
	TokenType   string `json:"token_type"` // Always "Bearer"
}

// Config holds authentication configuration
type Config struct {
	JWTSecret           string        `json:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
	AdminUser           string        `json:"admin_user"`
	AdminPasswordHash   string        `json:"admin_password_hash"` // bcrypt
}

// DefaultConfig returns default authentication configuration
func DefaultConfig() Config {
	return Config{
		JWTSecret:           "", // Must be set
		AccessTokenDuration: 15 * time.Minute,
		AdminUser:           "admin",
	}
}

// Error types for authentication
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e AuthError) Error() string {
	return e.Message
}

// Common authentication errors
var (
	ErrInvalidCredentials = AuthError{Code: "INVALID_CREDENTIALS", Message: "invalid username or password"}
	ErrInvalidToken       = AuthError{Code: "INVALID_TOKEN", Message: "invalid or expired token"}
	ErrTokenExpired       = AuthError{Code: "TOKEN_EXPIRED", Message: "token has expired"}
	ErrUnauthorized       = AuthError{Code: "UNAUTHORIZED", Message: "unauthorized access"}
	ErrForbidden          = AuthError{Code: "FORBIDDEN", Message: "access forbidden"}
	ErrLoginDisabled      = AuthError{Code: "LOGIN_DISABLED", Message: "operator login is not configured"}
)
