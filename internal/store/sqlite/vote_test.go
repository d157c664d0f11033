package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/alphabot-ai/murmur/internal/store"
)

func TestCastVoteProtocol(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()

	voter := createTestUser(t, st, "votecaster")
	post := createTestPost(t, st, nil, "vote on me", "general")

	// First vote lands at full value.
	score, err := st.CastVote(context.Background(), voter, post, 1)
	if err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	if score != 1 {
		t.Fatalf("expected score 1, got %d", score)
	}

	// Repeating the same direction is a conflict, score untouched.
	if _, err := st.CastVote(context.Background(), voter, post, 1); !errors.Is(err, store.ErrDuplicateVote) {
		t.Fatalf("expected ErrDuplicateVote, got %v", err)
	}
	p, _ := st.GetPost(context.Background(), post)
	if p.Score != 1 {
		t.Fatalf("score changed on duplicate vote: %d", p.Score)
	}

	// Opposite direction flips the standing vote, swinging the score by 2.
	score, err = st.CastVote(context.Background(), voter, post, -1)
	if err != nil {
		t.Fatalf("flip vote: %v", err)
	}
	if score != -1 {
		t.Fatalf("expected score -1 after flip, got %d", score)
	}

	// And flips back.
	score, err = st.CastVote(context.Background(), voter, post, 1)
	if err != nil {
		t.Fatalf("flip back: %v", err)
	}
	if score != 1 {
		t.Fatalf("expected score 1 after second flip, got %d", score)
	}
}

func TestCastVoteMultipleVoters(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()

	a := createTestUser(t, st, "votera")
	b := createTestUser(t, st, "voterb")
	c := createTestUser(t, st, "voterc")
	post := createTestPost(t, st, nil, "popular", "general")

	if _, err := st.CastVote(context.Background(), a, post, 1); err != nil {
		t.Fatalf("vote a: %v", err)
	}
	if _, err := st.CastVote(context.Background(), b, post, 1); err != nil {
		t.Fatalf("vote b: %v", err)
	}
	score, err := st.CastVote(context.Background(), c, post, -1)
	if err != nil {
		t.Fatalf("vote c: %v", err)
	}
	if score != 1 {
		t.Fatalf("expected score 1, got %d", score)
	}

	// Denormalized score stays in step with the ledger.
	sum, err := st.SumVotes(context.Background(), post)
	if err != nil {
		t.Fatalf("sum votes: %v", err)
	}
	p, _ := st.GetPost(context.Background(), post)
	if sum != p.Score {
		t.Fatalf("score %d does not match vote sum %d", p.Score, sum)
	}
}

func TestCastVoteMissingPost(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()

	voter := createTestUser(t, st, "lonelyvoter")
	if _, err := st.CastVote(context.Background(), voter, 12345, 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetVote(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()

	voter := createTestUser(t, st, "getvoter")
	post := createTestPost(t, st, nil, "standing", "general")

	if _, err := st.GetVote(context.Background(), voter, post); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before voting, got %v", err)
	}

	if _, err := st.CastVote(context.Background(), voter, post, -1); err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	v, err := st.GetVote(context.Background(), voter, post)
	if err != nil {
		t.Fatalf("get vote: %v", err)
	}
	if v.Value != -1 {
		t.Fatalf("expected standing value -1, got %d", v.Value)
	}
}

func TestDeletePostCascadesVotes(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()

	author := createTestUser(t, st, "cascadeauthor")
	voter := createTestUser(t, st, "cascadevoter")
	post := createTestPost(t, st, &author, "doomed", "general")

	if _, err := st.CastVote(context.Background(), voter, post, 1); err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	if err := st.DeletePost(context.Background(), post, author, false); err != nil {
		t.Fatalf("delete post: %v", err)
	}

	if _, err := st.GetVote(context.Background(), voter, post); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected vote gone after delete, got %v", err)
	}
	if _, err := st.CastVote(context.Background(), voter, post, 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound voting on deleted post, got %v", err)
	}
}
