// Package auth verifies passwords, issues and resolves bearer tokens, and
// registers users.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"twok/config"
	"twok/database"
	"twok/models"
	"twok/utils"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidToken covers every way a bearer token can fail to resolve to a
// user: malformed, expired, wrongly signed, or naming an unknown subject.
var ErrInvalidToken = errors.New("invalid token")

// TokenType is reported alongside every issued token.
const TokenType = "bearer"

// Service binds the user table to a signing secret.
type Service struct {
	users    *database.UserTable
	secret   []byte
	lifetime time.Duration

	// Now is the clock used for issuing tokens. Tests may replace it.
	Now func() time.Time
}

func NewService(users *database.UserTable, secret string) *Service {
	return &Service{
		users:    users,
		secret:   []byte(secret),
		lifetime: config.TokenLifetime,
		Now:      utils.GetTime,
	}
}

// HashPassword returns the bcrypt hash of plain.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", models.Invalid("Password is too long")
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether plain matches hash.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// Authenticate returns the user whose credentials match, or an Unauthorized error.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.ByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.Unauthorized("Incorrect username or password")
		}
		return nil, err
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return nil, models.Unauthorized("Incorrect username or password")
	}
	return user, nil
}

// IssueToken signs a token for user with the username as subject.
func (s *Service) IssueToken(user *models.User) (models.Token, error) {
	now := s.Now()
	claims := jwt.RegisteredClaims{
		Subject:   user.Username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return models.Token{}, fmt.Errorf("sign token: %w", err)
	}
	return models.Token{AccessToken: signed, TokenType: TokenType}, nil
}

// ResolveToken verifies tokenStr and loads the user it names.
func (s *Service) ResolveToken(ctx context.Context, tokenStr string) (*models.User, error) {
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.Now))
	if err != nil || !tok.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	user, err := s.users.ByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}

// Register creates a user with no role. A taken username is a Conflict.
func (s *Service) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > config.MaxUsernameLen {
		return nil, models.Invalid(fmt.Sprintf("Username must be between 1 and %d characters", config.MaxUsernameLen))
	}
	if password == "" {
		return nil, models.Invalid("Password must not be empty")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return s.users.InsertIfAbsent(ctx, database.Fields{
		"username":      username,
		"password_hash": hash,
		"user_role":     models.RoleNone,
	})
}

// ResetPassword replaces the password of user.
func (s *Service) ResetPassword(ctx context.Context, user *models.User, password string) (*models.User, error) {
	if password == "" {
		return nil, models.Invalid("Password must not be empty")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return s.users.Update(ctx, user.ID, database.Fields{"password_hash": hash})
}
