package auth

import (
	"crypto/subtle"
	"errors"

	"github.com/rs/zerolog"
)

// Service authenticates the single configured operator
type Service struct {
	jwtManager *JWTManager
	config     Config
	logger     zerolog.Logger
}

// NewService creates a new authentication service
func NewService(config Config, logger zerolog.Logger) (*Service, error) {
	if config.JWTSecret == "" {
		return nil, errors.New("auth: JWT secret is required")
	}

	return &Service{
		jwtManager: NewJWTManager(config.JWTSecret, config.AccessTokenDuration),
		config:     config,
		logger:     logger.With().Str("component", "auth").Logger(),
	}, nil
}

// GetJWTManager returns the JWT manager for use in middleware
func (s *Service) GetJWTManager() *JWTManager {
	return s.jwtManager
}

// Login exchanges operator credentials for an admin access token
func (s *Service) Login(req LoginRequest) (*TokenResponse, error) {
	if s.config.AdminPasswordHash == "" {
		return nil, ErrLoginDisabled
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.config.AdminUser)) == 1
	// Always run bcrypt so unknown usernames cost the same
	passOK := VerifyPassword(req.Password, s.config.AdminPasswordHash)
	if !userOK || !passOK {
		s.logger.Warn().Str("username", req.Username).Msg("Rejected operator login")
		return nil, ErrInvalidCredentials
	}

	resp, err := s.jwtManager.IssueToken(OperatorClaims{Username: req.Username, Role: RoleAdmin})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("username", req.Username).Msg("Operator logged in")
	return resp, nil
}
