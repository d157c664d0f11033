package store

import (
	"context"
	"errors"

	"github.com/alphabot-ai/murmur/internal/model"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrNotOwner          = errors.New("not the author")
	ErrDuplicateVote     = errors.New("duplicate vote")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrUnavailable       = errors.New("storage unavailable")
)

// PostListOpts narrows ListPosts. The zero value lists everything,
// newest first.
type PostListOpts struct {
	Category string
	Limit    int
}

type Store interface {
	UserStore
	PostStore
	VoteStore
	Close() error
}

type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) (int64, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	ListUsers(ctx context.Context, limit int) ([]model.User, error)
	UpdateUserProfile(ctx context.Context, id int64, bio, location string) error
	// DeleteUser removes the account, retracts its votes (adjusting the
	// affected posts' scores) and detaches its authored posts, all in
	// one transaction.
	DeleteUser(ctx context.Context, id int64) error
	UpdateRefreshToken(ctx context.Context, id int64, token string, expiresAt int64) error
	GetUserByRefreshToken(ctx context.Context, token string) (model.User, error)
}

type PostStore interface {
	CreatePost(ctx context.Context, post *model.Post) (int64, error)
	GetPost(ctx context.Context, id int64) (model.Post, error)
	ListPosts(ctx context.Context, opts PostListOpts) ([]model.Post, error)
	SearchPosts(ctx context.Context, query string) ([]model.Post, error)
	// UpdatePostContent mutates content only when authorID matches the
	// stored author, in a single statement. ErrNotOwner covers both a
	// different author and an authorless post.
	UpdatePostContent(ctx context.Context, id, authorID int64, content string) error
	// DeletePost removes the post and its votes in one transaction.
	// With override false the caller must be the author.
	DeletePost(ctx context.Context, id, callerID int64, override bool) error
}

type VoteStore interface {
	// CastVote applies the directional-vote protocol for (userID, postID)
	// atomically and returns the post's new score. A standing vote in the
	// same direction yields ErrDuplicateVote; an opposite one is flipped
	// and the score moves by twice the value.
	CastVote(ctx context.Context, userID, postID int64, value int) (int, error)
	GetVote(ctx context.Context, userID, postID int64) (model.Vote, error)
	// SumVotes recomputes a post's score from its vote rows.
	SumVotes(ctx context.Context, postID int64) (int, error)
}
