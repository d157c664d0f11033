package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alphabot-ai/murmur/internal/model"
	"github.com/alphabot-ai/murmur/internal/store/sqlite"
)

func newTestService(t *testing.T, tokenTTL time.Duration) (*Service, *sqlite.Store) {
	t.Helper()
	st, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewService(st, "test-secret", tokenTTL, time.Hour), st
}

func registerUser(t *testing.T, st *sqlite.Store, username, password string) int64 {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	id, err := st.CreateUser(context.Background(), &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id
}

func TestLoginAndResolve(t *testing.T) {
	svc, st := newTestService(t, time.Hour)
	id := registerUser(t, st, "loginuser", "correct horse")

	user, pair, err := svc.Login(context.Background(), "loginuser", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != id {
		t.Fatalf("expected user id %d, got %d", id, user.ID)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}

	resolved := svc.Resolve(pair.AccessToken)
	if resolved == nil || *resolved != id {
		t.Fatalf("expected token to resolve to %d, got %v", id, resolved)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, st := newTestService(t, time.Hour)
	registerUser(t, st, "badcreds", "rightpassword")

	if _, _, err := svc.Login(context.Background(), "badcreds", "wrongpassword"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "nobody", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestResolveAnonymousOnFailure(t *testing.T) {
	svc, st := newTestService(t, time.Hour)
	id := registerUser(t, st, "resolver", "some password")

	if got := svc.Resolve(""); got != nil {
		t.Fatalf("empty bearer should be anonymous, got %v", got)
	}
	if got := svc.Resolve("not.a.token"); got != nil {
		t.Fatalf("garbage bearer should be anonymous, got %v", got)
	}

	// Token signed under another secret is anonymous, not an error.
	other := NewService(st, "other-secret", time.Hour, time.Hour)
	user, _ := st.GetUser(context.Background(), id)
	pair, err := other.IssueTokens(context.Background(), user)
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}
	if got := svc.Resolve(pair.AccessToken); got != nil {
		t.Fatalf("foreign-signed token should be anonymous, got %v", got)
	}
}

func TestResolveExpiredToken(t *testing.T) {
	svc, st := newTestService(t, -time.Minute)
	id := registerUser(t, st, "expired", "some password")

	user, _ := st.GetUser(context.Background(), id)
	pair, err := svc.IssueTokens(context.Background(), user)
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}
	if got := svc.Resolve(pair.AccessToken); got != nil {
		t.Fatalf("expired token should be anonymous, got %v", got)
	}
}

func TestRefreshRotation(t *testing.T) {
	svc, st := newTestService(t, time.Hour)
	id := registerUser(t, st, "rotator", "some password")

	user, _ := st.GetUser(context.Background(), id)
	first, err := svc.IssueTokens(context.Background(), user)
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}

	_, second, err := svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	// The old token is dead after rotation.
	if _, _, err := svc.Refresh(context.Background(), first.RefreshToken); !errors.Is(err, ErrInvalidRefresh) {
		t.Fatalf("expected ErrInvalidRefresh for stale token, got %v", err)
	}
	if _, _, err := svc.Refresh(context.Background(), ""); !errors.Is(err, ErrInvalidRefresh) {
		t.Fatalf("expected ErrInvalidRefresh for empty token, got %v", err)
	}
}
