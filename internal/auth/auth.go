// Package auth owns credential verification: bcrypt password checks,
// HS256 access tokens and rotating refresh tokens. Everything else in
// the system only ever sees a resolved user id (or nil for anonymous).
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alphabot-ai/murmur/internal/model"
	"github.com/alphabot-ai/murmur/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrInvalidRefresh     = errors.New("invalid or expired refresh token")
)

type Service struct {
	users      store.UserStore
	secret     []byte
	tokenTTL   time.Duration
	refreshTTL time.Duration
}

func NewService(users store.UserStore, secret string, tokenTTL, refreshTTL time.Duration) *Service {
	return &Service{
		users:      users,
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
		refreshTTL: refreshTTL,
	}
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Login verifies username+password and issues a fresh token pair.
func (s *Service) Login(ctx context.Context, username, password string) (model.User, model.TokenPair, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.User{}, model.TokenPair{}, ErrInvalidCredentials
		}
		return model.User{}, model.TokenPair{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.User{}, model.TokenPair{}, ErrInvalidCredentials
	}
	pair, err := s.IssueTokens(ctx, user)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}
	return user, pair, nil
}

// IssueTokens signs an access token and rotates the user's refresh token.
func (s *Service) IssueTokens(ctx context.Context, user model.User) (model.TokenPair, error) {
	now := time.Now()
	accessExp := now.Add(s.tokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(user.ID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(accessExp),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh := uuid.NewString()
	refreshExp := now.Add(s.refreshTTL)
	if err := s.users.UpdateRefreshToken(ctx, user.ID, refresh, refreshExp.Unix()); err != nil {
		return model.TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}

	return model.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Refresh trades a standing refresh token for a new pair. The old token
// is invalidated by the rotation inside IssueTokens.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (model.User, model.TokenPair, error) {
	if refreshToken == "" {
		return model.User{}, model.TokenPair{}, ErrInvalidRefresh
	}
	user, err := s.users.GetUserByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.User{}, model.TokenPair{}, ErrInvalidRefresh
		}
		return model.User{}, model.TokenPair{}, err
	}
	if user.RefreshExpiresAt == nil || time.Now().After(*user.RefreshExpiresAt) {
		return model.User{}, model.TokenPair{}, ErrInvalidRefresh
	}
	pair, err := s.IssueTokens(ctx, user)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}
	return user, pair, nil
}

// Resolve turns a bearer credential into an optional user id. Absence
// or any parse/validation failure means anonymous, never an error:
// anonymous is a first-class caller identity here.
func (s *Service) Resolve(bearer string) *int64 {
	if bearer == "" {
		return nil
	}
	token, err := jwt.ParseWithClaims(bearer, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return nil
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}
