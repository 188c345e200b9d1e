package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrDevLoginDisabled   = errors.New("dev login disabled")
)

// Verifier turns a bearer token into a stable user identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*User, error)
}

type User struct {
	ID string `json:"id"`
}

type Claims struct {
	jwt.RegisteredClaims
}

type Service struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
	devLogin DevLoginConfig
	now      func() time.Time
}

type ServiceConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
	DevLogin  DevLoginConfig
}

// DevLoginConfig enables a single local account for development. The
// password is only ever held as a bcrypt hash.
type DevLoginConfig struct {
	Enabled      bool
	Username     string
	PasswordHash string
}

type IssuedToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 8 * time.Hour
	}
	cfg.DevLogin.Username = strings.TrimSpace(cfg.DevLogin.Username)
	if cfg.DevLogin.Enabled && (cfg.DevLogin.Username == "" || cfg.DevLogin.PasswordHash == "") {
		return nil, errors.New("dev login needs a username and password hash")
	}

	return &Service{
		secret:   []byte(cfg.JWTSecret),
		issuer:   strings.TrimSpace(cfg.Issuer),
		tokenTTL: cfg.TokenTTL,
		devLogin: cfg.DevLogin,
		now:      time.Now,
	}, nil
}

// Verify accepts HS256 tokens signed with the configured secret. The subject
// claim is the user id.
func (s *Service) Verify(ctx context.Context, token string) (*User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthorized
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	return &User{ID: sub}, nil
}

func (s *Service) IssueToken(userID string) (*IssuedToken, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &IssuedToken{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt.UTC(),
		User:        &User{ID: userID},
	}, nil
}

// AuthenticatePassword checks the dev account credentials.
func (s *Service) AuthenticatePassword(ctx context.Context, username, password string) (*User, error) {
	if !s.devLogin.Enabled {
		return nil, ErrDevLoginDisabled
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	// The hash is compared even on a username mismatch.
	hashErr := bcrypt.CompareHashAndPassword([]byte(s.devLogin.PasswordHash), []byte(password))
	if username != s.devLogin.Username || hashErr != nil {
		return nil, ErrInvalidCredentials
	}
	return &User{ID: username}, nil
}
