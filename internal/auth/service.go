// Package auth authenticates requests to the status server with HTTP basic
// credentials (bcrypt hashes) or HS256 bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// DefaultTokenTTL is the lifetime of issued tokens when none is configured.
const DefaultTokenTTL = time.Hour

const issuer = "foxy"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoSecret           = errors.New("auth: jwt_secret is not configured")
)

// Config enables authentication on the status server.
//
//	[serve.auth]
//	enabled = true
//	jwt_secret = "..."
//	[serve.auth.users]
//	ops = "$2a$10$..."   # foxy auth hash-password
type Config struct {
	Enabled   bool              `mapstructure:"enabled"`
	JWTSecret string            `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration     `mapstructure:"token_ttl"`
	Users     map[string]string `mapstructure:"users"` // username -> bcrypt hash
}

// Validate reports unusable settings.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.JWTSecret == "" && len(c.Users) == 0 {
		return errors.New("auth: enabled without jwt_secret or users")
	}
	if c.TokenTTL < 0 {
		return errors.New("auth: token_ttl must not be negative")
	}
	for name, hash := range c.Users {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return fmt.Errorf("auth: user %q: password must be a bcrypt hash: %w", name, err)
		}
	}
	return nil
}

// Claims are the JWT claims of an issued token.
type Claims struct {
	jwt.RegisteredClaims
}

// Service checks credentials and issues tokens.
type Service struct {
	secret []byte
	users  map[string][]byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService validates c and returns a Service.
func NewService(c Config) (*Service, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	ttl := c.TokenTTL
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	users := make(map[string][]byte, len(c.Users))
	for name, hash := range c.Users {
		users[name] = []byte(hash)
	}
	return &Service{secret: []byte(c.JWTSecret), users: users, ttl: ttl, now: time.Now}, nil
}

// HashPassword returns the bcrypt hash stored in the users table.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword verifies a basic-auth pair and returns the username.
func (s *Service) CheckPassword(username, password string) (string, error) {
	hash, ok := s.users[username]
	if !ok {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return username, nil
}

// IssueToken signs a token for subject. A zero ttl uses the configured TTL.
func (s *Service) IssueToken(subject string, ttl time.Duration) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.now()
	exp := now.Add(ttl)
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return tok, exp, nil
}

// VerifyToken validates a bearer token and returns its subject.
func (s *Service) VerifyToken(token string) (string, error) {
	if len(s.secret) == 0 || token == "" {
		return "", ErrInvalidCredentials
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidCredentials
	}
	return claims.Subject, nil
}
