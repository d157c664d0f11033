package service

import (
	"context"

	"github.com/alphabot-ai/murmur/internal/model"
	"github.com/alphabot-ai/murmur/internal/store"
)

const (
	Upvote   = 1
	Downvote = -1
)

// Votes is the ledger of directional votes. It never lets a post's
// score and its vote set diverge: the store applies both sides of every
// change in one transaction.
type Votes struct {
	store store.Store
}

func NewVotes(st store.Store) *Votes {
	return &Votes{store: st}
}

// Cast records, flips or rejects a vote and returns the post's new
// score. A repeat of a standing vote in the same direction is an
// ErrConflict, deliberately: it surfaces double submissions instead of
// masking them.
func (v *Votes) Cast(ctx context.Context, userID, postID int64, value int) (int, error) {
	if value != Upvote && value != Downvote {
		return 0, invalidf("vote value must be %d or %d", Upvote, Downvote)
	}
	score, err := v.store.CastVote(ctx, userID, postID, value)
	if err != nil {
		return 0, fromStore(err)
	}
	return score, nil
}

// Standing returns the caller's current vote on a post, if any.
func (v *Votes) Standing(ctx context.Context, userID, postID int64) (model.Vote, error) {
	vote, err := v.store.GetVote(ctx, userID, postID)
	if err != nil {
		return model.Vote{}, fromStore(err)
	}
	return vote, nil
}
