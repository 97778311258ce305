package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollpulse/pollpulse/internal/models"
)

func newTestPoll(t *testing.T, store *MemoryStore, optionTexts ...string) *models.Poll {
	t.Helper()

	now := time.Now().UTC()
	poll := &models.Poll{
		ID:        uuid.New().String(),
		Title:     "Favorite language?",
		Slug:      "favorite-language-" + uuid.New().String()[:8],
		IsActive:  true,
		IsPublic:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var options []*models.Option
	for i, text := range optionTexts {
		options = append(options, &models.Option{
			ID:       uuid.New().String(),
			PollID:   poll.ID,
			Text:     text,
			Position: i,
		})
	}

	require.NoError(t, store.CreatePoll(context.Background(), poll, options))

	stored, err := store.GetPoll(context.Background(), poll.ID)
	require.NoError(t, err)
	return stored
}

func TestMemoryStore_CreateAndGetPoll(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	poll := newTestPoll(t, store, "Go", "Rust", "Python")

	assert.Equal(t, "Favorite language?", poll.Title)
	require.Len(t, poll.Options, 3)
	assert.Equal(t, "Go", poll.Options[0].Text)
	assert.Equal(t, 2, poll.Options[2].Position)

	bySlug, err := store.GetPollBySlug(ctx, poll.Slug)
	require.NoError(t, err)
	assert.Equal(t, poll.ID, bySlug.ID)

	_, err = store.GetPoll(ctx, uuid.New().String())
	assert.ErrorIs(t, err, models.ErrPollNotFound)
}

func TestMemoryStore_DuplicateSlug(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	poll := newTestPoll(t, store, "Yes", "No")

	dup := &models.Poll{
		ID:       uuid.New().String(),
		Title:    "Another",
		Slug:     poll.Slug,
		IsActive: true,
	}
	err := store.CreatePoll(ctx, dup, nil)
	assert.ErrorIs(t, err, models.ErrSlugTaken)
}

func TestMemoryStore_CreateVotesUpdatesCounters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	poll := newTestPoll(t, store, "Go", "Rust")
	voter := models.UserIdentity(uuid.New().String())

	vote := &models.Vote{
		ID:        uuid.New().String(),
		PollID:    poll.ID,
		OptionID:  poll.Options[0].ID,
		Voter:     voter,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateVotes(ctx, []*models.Vote{vote}))

	updated, err := store.GetPoll(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.TotalVotes)
	assert.Equal(t, 1, updated.Options[0].VoteCount)
	assert.Equal(t, 0, updated.Options[1].VoteCount)

	// Same voter, same option: rejected, counters untouched.
	dup := &models.Vote{
		ID:       uuid.New().String(),
		PollID:   poll.ID,
		OptionID: poll.Options[0].ID,
		Voter:    voter,
	}
	err = store.CreateVotes(ctx, []*models.Vote{dup})
	assert.ErrorIs(t, err, models.ErrDuplicateVote)

	updated, err = store.GetPoll(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.TotalVotes)

	// One batch repeating the same (option, voter) pair: rejected whole.
	other := models.UserIdentity(uuid.New().String())
	batch := []*models.Vote{
		{ID: uuid.New().String(), PollID: poll.ID, OptionID: poll.Options[1].ID, Voter: other},
		{ID: uuid.New().String(), PollID: poll.ID, OptionID: poll.Options[1].ID, Voter: other},
	}
	err = store.CreateVotes(ctx, batch)
	assert.ErrorIs(t, err, models.ErrDuplicateVote)

	updated, err = store.GetPoll(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.TotalVotes)
	assert.Equal(t, 0, updated.Options[1].VoteCount)
}

func TestMemoryStore_DeleteVoteDecrementsCounters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	poll := newTestPoll(t, store, "Go", "Rust")
	vote := &models.Vote{
		ID:       uuid.New().String(),
		PollID:   poll.ID,
		OptionID: poll.Options[0].ID,
		Voter:    models.AnonIdentity("tok-1"),
	}
	require.NoError(t, store.CreateVotes(ctx, []*models.Vote{vote}))
	require.NoError(t, store.DeleteVote(ctx, vote.ID))

	updated, err := store.GetPoll(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.TotalVotes)
	assert.Equal(t, 0, updated.Options[0].VoteCount)

	err = store.DeleteVote(ctx, vote.ID)
	assert.ErrorIs(t, err, models.ErrVoteNotFound)
}

func TestMemoryStore_UpdateVoteOptionShiftsCount(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	poll := newTestPoll(t, store, "Go", "Rust")
	vote := &models.Vote{
		ID:       uuid.New().String(),
		PollID:   poll.ID,
		OptionID: poll.Options[0].ID,
		Voter:    models.UserIdentity(uuid.New().String()),
	}
	require.NoError(t, store.CreateVotes(ctx, []*models.Vote{vote}))
	require.NoError(t, store.UpdateVoteOption(ctx, vote.ID, poll.Options[1].ID))

	updated, err := store.GetPoll(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Options[0].VoteCount)
	assert.Equal(t, 1, updated.Options[1].VoteCount)
	assert.Equal(t, 1, updated.TotalVotes, "poll total unchanged by a move")
}

func TestMemoryStore_LikeLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	poll := newTestPoll(t, store, "Yes", "No")
	liker := models.AnonIdentity("tok-9")

	like := &models.Like{
		ID:        uuid.New().String(),
		PollID:    poll.ID,
		Liker:     liker,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateLike(ctx, like))

	err := store.CreateLike(ctx, &models.Like{
		ID:     uuid.New().String(),
		PollID: poll.ID,
		Liker:  liker,
	})
	assert.ErrorIs(t, err, models.ErrAlreadyLiked)

	found, err := store.GetLikeByLiker(ctx, poll.ID, liker)
	require.NoError(t, err)
	assert.Equal(t, like.ID, found.ID)

	updated, _ := store.GetPoll(ctx, poll.ID)
	assert.Equal(t, 1, updated.LikesCount)

	require.NoError(t, store.DeleteLikeByLiker(ctx, poll.ID, liker))
	updated, _ = store.GetPoll(ctx, poll.ID)
	assert.Equal(t, 0, updated.LikesCount)

	err = store.DeleteLikeByLiker(ctx, poll.ID, liker)
	assert.ErrorIs(t, err, models.ErrNotLiked)
}

func TestMemoryStore_AddOptionAssignsNextPosition(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	poll := newTestPoll(t, store, "A", "B")

	opt, err := store.AddOption(ctx, poll.ID, "C")
	require.NoError(t, err)
	assert.Equal(t, 2, opt.Position)

	require.NoError(t, store.DeleteOption(ctx, poll.Options[0].ID))

	// Positions are never reused after a delete.
	opt2, err := store.AddOption(ctx, poll.ID, "D")
	require.NoError(t, err)
	assert.Equal(t, 3, opt2.Position)
}

func TestMemoryStore_ReorderOptions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	poll := newTestPoll(t, store, "A", "B", "C")

	err := store.ReorderOptions(ctx, poll.ID, map[string]int{
		poll.Options[0].ID: 2,
		poll.Options[1].ID: 0,
		poll.Options[2].ID: 1,
	})
	require.NoError(t, err)

	options, err := store.GetOptionsByPoll(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, "B", options[0].Text)
	assert.Equal(t, "C", options[1].Text)
	assert.Equal(t, "A", options[2].Text)
}

func TestMemoryStore_ListExpiredActivePolls(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	expired := newTestPoll(t, store, "A", "B")
	expired.ExpiresAt = &past
	require.NoError(t, store.UpdatePoll(ctx, expired))

	newTestPoll(t, store, "C", "D") // never expires

	polls, err := store.ListExpiredActivePolls(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, polls, 1)
	assert.Equal(t, expired.ID, polls[0].ID)
}

func TestMemoryStore_DeletePollCascades(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	poll := newTestPoll(t, store, "A", "B")
	vote := &models.Vote{
		ID:       uuid.New().String(),
		PollID:   poll.ID,
		OptionID: poll.Options[0].ID,
		Voter:    models.AnonIdentity("tok-2"),
	}
	require.NoError(t, store.CreateVotes(ctx, []*models.Vote{vote}))
	require.NoError(t, store.DeletePoll(ctx, poll.ID))

	_, err := store.GetPoll(ctx, poll.ID)
	assert.ErrorIs(t, err, models.ErrPollNotFound)
	_, err = store.GetVote(ctx, vote.ID)
	assert.ErrorIs(t, err, models.ErrVoteNotFound)
	_, err = store.GetOption(ctx, poll.Options[0].ID)
	assert.ErrorIs(t, err, models.ErrOptionNotFound)
}
