package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alphabot-ai/murmur/internal/model"
	"github.com/alphabot-ai/murmur/internal/store"
)

const DefaultCategory = "general"

// Posts owns post records. Mutation goes through the ownership gate;
// score changes only ever come from the vote ledger.
type Posts struct {
	store store.Store
}

func NewPosts(st store.Store) *Posts {
	return &Posts{store: st}
}

// Create accepts an optional author: a nil authorID makes an anonymous
// post, which is permanently immutable (no owner to authorize an edit).
func (p *Posts) Create(ctx context.Context, authorID *int64, content, category string) (model.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Post{}, invalidf("content must not be empty")
	}
	if authorID != nil {
		if _, err := p.store.GetUser(ctx, *authorID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return model.Post{}, fmt.Errorf("author %d: %w", *authorID, ErrNotFound)
			}
			return model.Post{}, fromStore(err)
		}
	}
	category = strings.TrimSpace(category)
	if category == "" {
		category = DefaultCategory
	}

	now := time.Now()
	post := model.Post{
		Content:   content,
		AuthorID:  authorID,
		Category:  category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := p.store.CreatePost(ctx, &post)
	if err != nil {
		return model.Post{}, fromStore(err)
	}
	return p.Get(ctx, id)
}

func (p *Posts) Get(ctx context.Context, id int64) (model.Post, error) {
	post, err := p.store.GetPost(ctx, id)
	if err != nil {
		return model.Post{}, fromStore(err)
	}
	return post, nil
}

func (p *Posts) List(ctx context.Context, category string, limit int) ([]model.Post, error) {
	posts, err := p.store.ListPosts(ctx, store.PostListOpts{Category: strings.TrimSpace(category), Limit: limit})
	if err != nil {
		return nil, fromStore(err)
	}
	return posts, nil
}

// Search matches a case-insensitive substring against post content, or
// against the author's username for authored posts.
func (p *Posts) Search(ctx context.Context, query string) ([]model.Post, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, invalidf("search query must not be empty")
	}
	posts, err := p.store.SearchPosts(ctx, query)
	if err != nil {
		return nil, fromStore(err)
	}
	return posts, nil
}

// Update rewrites a post's content. Only the author passes the gate;
// authorless posts fail ErrForbidden for every caller.
func (p *Posts) Update(ctx context.Context, callerID, postID int64, content string) (model.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Post{}, invalidf("content must not be empty")
	}
	if err := p.store.UpdatePostContent(ctx, postID, callerID, content); err != nil {
		return model.Post{}, fromStore(err)
	}
	return p.Get(ctx, postID)
}

// Delete removes a post and its votes. The author may delete their own
// post; an admin may delete any post.
func (p *Posts) Delete(ctx context.Context, callerID, postID int64) error {
	caller, err := p.store.GetUser(ctx, callerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("caller %d: %w", callerID, ErrUnauthenticated)
		}
		return fromStore(err)
	}
	return fromStore(p.store.DeletePost(ctx, postID, callerID, caller.IsAdmin))
}
