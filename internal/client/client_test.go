package client

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alphabot-ai/murmur/internal/auth"
	"github.com/alphabot-ai/murmur/internal/config"
	httpapp "github.com/alphabot-ai/murmur/internal/http"
	"github.com/alphabot-ai/murmur/internal/rate"
	"github.com/alphabot-ai/murmur/internal/service"
	"github.com/alphabot-ai/murmur/internal/store/sqlite"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	st, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Config{JWTSecret: "test-secret", TokenTTL: time.Hour, RefreshTTL: time.Hour}
	authSvc := auth.NewService(st, cfg.JWTSecret, cfg.TokenTTL, cfg.RefreshTTL)
	srv := httpapp.NewServer(st, authSvc, rate.NewMemory(), cfg, zap.NewNop().Sugar())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return New(ts.URL)
}

func registration(username string) service.RegisterInput {
	return service.RegisterInput{
		Username:        username,
		Email:           username + "@example.com",
		Password:        "longenough",
		ConfirmPassword: "longenough",
	}
}

func TestClientRoundTrip(t *testing.T) {
	c := newTestClient(t)

	user, err := c.Register(registration("clientuser"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if c.Token == "" {
		t.Fatal("register should authenticate the client")
	}

	me, err := c.Me()
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if me.ID != user.ID {
		t.Fatalf("expected user %d, got %d", user.ID, me.ID)
	}

	post, err := c.CreatePost("hello from the client", "testing")
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if post.AuthorName != "clientuser" {
		t.Fatalf("expected authored post, got %+v", post)
	}

	updated, err := c.UpdatePost(post.ID, "edited from the client")
	if err != nil {
		t.Fatalf("update post: %v", err)
	}
	if updated.Content != "edited from the client" {
		t.Fatalf("content not updated: %q", updated.Content)
	}

	found, err := c.SearchPosts("from the client")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 result, got %d", len(found))
	}

	if err := c.DeletePost(post.ID); err != nil {
		t.Fatalf("delete post: %v", err)
	}
	if _, err := c.GetPost(post.ID); err == nil {
		t.Fatal("expected error fetching deleted post")
	}
}

func TestClientVoting(t *testing.T) {
	c := newTestClient(t)

	if _, err := c.Register(registration("clientvoter")); err != nil {
		t.Fatalf("register: %v", err)
	}
	post, err := c.CreatePost("score me", "")
	if err != nil {
		t.Fatalf("create post: %v", err)
	}

	score, err := c.Upvote(post.ID)
	if err != nil {
		t.Fatalf("upvote: %v", err)
	}
	if score != 1 {
		t.Fatalf("expected score 1, got %d", score)
	}

	if _, err := c.Upvote(post.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on repeat, got %v", err)
	}

	score, err = c.Downvote(post.ID)
	if err != nil {
		t.Fatalf("downvote: %v", err)
	}
	if score != -1 {
		t.Fatalf("expected score -1 after flip, got %d", score)
	}
}

func TestClientAnonymousAndRefresh(t *testing.T) {
	c := newTestClient(t)

	// No token set, so the post is anonymous.
	post, err := c.CreatePost("anonymous via client", "")
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if post.AuthorID != nil {
		t.Fatalf("expected authorless post, got author %d", *post.AuthorID)
	}

	if _, err := c.Register(registration("clientrefresh")); err != nil {
		t.Fatalf("register: %v", err)
	}
	old := c.RefreshToken
	if err := c.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if c.RefreshToken == old {
		t.Fatal("refresh token was not rotated")
	}
	if _, err := c.Me(); err != nil {
		t.Fatalf("me after refresh: %v", err)
	}
}

func TestClientDuplicateRegister(t *testing.T) {
	c := newTestClient(t)

	if _, err := c.Register(registration("clientdupe")); err != nil {
		t.Fatalf("register: %v", err)
	}
	other := New(c.BaseURL)
	if _, err := other.Register(registration("clientdupe")); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
