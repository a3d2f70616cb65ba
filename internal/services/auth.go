package services

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/pandeptwidyaop/macrosync/internal/config"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidOTP   = errors.New("invalid one-time code")
)

// AuthService checks API tokens against a bcrypt hash and, when a TOTP
// secret is configured, a second factor for mutating requests.
type AuthService struct {
	cfg config.AuthConfig
}

func NewAuthService(cfg config.AuthConfig) *AuthService {
	return &AuthService{cfg: cfg}
}

// Enabled reports whether requests must carry a token.
func (s *AuthService) Enabled() bool {
	return s.cfg.TokenHash != ""
}

// TOTPEnabled reports whether a second factor is required.
func (s *AuthService) TOTPEnabled() bool {
	return s.cfg.TOTPSecret != ""
}

func (s *AuthService) HashToken(token string) (string, error) {
	cost := s.cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	return string(bytes), err
}

func (s *AuthService) CheckToken(token string) error {
	if !s.Enabled() {
		return nil
	}
	if token == "" {
		return ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.TokenHash), []byte(token)); err != nil {
		return ErrInvalidToken
	}
	return nil
}

func (s *AuthService) CheckOTP(code string) error {
	if !s.TOTPEnabled() {
		return nil
	}
	if !totp.Validate(strings.TrimSpace(code), s.cfg.TOTPSecret) {
		return ErrInvalidOTP
	}
	return nil
}

// GenerateToken returns a random URL-safe token of the given length.
func GenerateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes)[:length], nil
}
