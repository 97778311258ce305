package voting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollpulse/pollpulse/internal/locks"
	"github.com/pollpulse/pollpulse/internal/models"
	"github.com/pollpulse/pollpulse/internal/realtime"
	"github.com/pollpulse/pollpulse/internal/storage"
)

type likeFixture struct {
	store       *storage.MemoryStore
	engine      *LikeEngine
	broadcaster *recordingBroadcaster
}

func newLikeFixture(t *testing.T) *likeFixture {
	t.Helper()

	store := storage.NewMemoryStore()
	broadcaster := newRecordingBroadcaster()
	engine := NewLikeEngine(store, locks.NewKeyedMutex(), broadcaster, nil)
	return &likeFixture{store: store, engine: engine, broadcaster: broadcaster}
}

func (f *likeFixture) createPoll(t *testing.T, active bool, expiresAt *time.Time) *models.Poll {
	t.Helper()

	now := time.Now().UTC()
	poll := &models.Poll{
		ID:        uuid.New().String(),
		Title:     "Likeable poll",
		Slug:      "likeable-" + uuid.New().String()[:8],
		IsActive:  active,
		IsPublic:  true,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	options := []*models.Option{
		{ID: uuid.New().String(), PollID: poll.ID, Text: "Yes", Position: 0},
		{ID: uuid.New().String(), PollID: poll.ID, Text: "No", Position: 1},
	}
	require.NoError(t, f.store.CreatePoll(context.Background(), poll, options))
	return poll
}

func TestLikeEngine_LikeOnce(t *testing.T) {
	f := newLikeFixture(t)
	poll := f.createPoll(t, true, nil)
	liker := models.UserIdentity(uuid.New().String())

	result, err := f.engine.Like(context.Background(), poll.ID, liker, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "liked", result.Action)
	assert.True(t, result.HasLiked)
	assert.Equal(t, 1, result.LikesCount)

	_, err = f.engine.Like(context.Background(), poll.ID, liker, "10.0.0.1")
	assert.ErrorIs(t, err, models.ErrAlreadyLiked)

	updated, _ := f.store.GetPoll(context.Background(), poll.ID)
	assert.Equal(t, 1, updated.LikesCount, "never double-counted")

	require.Eventually(t, func() bool {
		return len(f.broadcaster.forPoll(poll.ID)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, realtime.MessageTypeLikeCast, f.broadcaster.forPoll(poll.ID)[0].Type)
}

func TestLikeEngine_ToggleRoundTrip(t *testing.T) {
	f := newLikeFixture(t)
	poll := f.createPoll(t, true, nil)
	liker := models.AnonIdentity("tok-1")

	first, err := f.engine.Toggle(context.Background(), poll.ID, liker, "")
	require.NoError(t, err)
	assert.Equal(t, "liked", first.Action)
	assert.Equal(t, 1, first.LikesCount)

	second, err := f.engine.Toggle(context.Background(), poll.ID, liker, "")
	require.NoError(t, err)
	assert.Equal(t, "unliked", second.Action)
	assert.False(t, second.HasLiked)
	assert.Equal(t, 0, second.LikesCount, "toggle twice nets to zero")
}

func TestLikeEngine_UnlikeWithoutLike(t *testing.T) {
	f := newLikeFixture(t)
	poll := f.createPoll(t, true, nil)

	_, err := f.engine.Unlike(context.Background(), poll.ID, models.AnonIdentity("tok"))
	assert.ErrorIs(t, err, models.ErrNotLiked)

	updated, _ := f.store.GetPoll(context.Background(), poll.ID)
	assert.Equal(t, 0, updated.LikesCount, "counter never goes negative")
}

func TestLikeEngine_LikesAllowedOnClosedPolls(t *testing.T) {
	f := newLikeFixture(t)

	past := time.Now().UTC().Add(-time.Hour)
	expired := f.createPoll(t, true, &past)
	inactive := f.createPoll(t, false, nil)

	// No lifecycle guard on likes: closed polls still take reactions.
	_, err := f.engine.Like(context.Background(), expired.ID, models.AnonIdentity("tok-a"), "")
	assert.NoError(t, err)

	_, err = f.engine.Like(context.Background(), inactive.ID, models.AnonIdentity("tok-b"), "")
	assert.NoError(t, err)
}

func TestLikeEngine_LikeUnknownPoll(t *testing.T) {
	f := newLikeFixture(t)

	_, err := f.engine.Like(context.Background(), uuid.New().String(), models.AnonIdentity("tok"), "")
	assert.ErrorIs(t, err, models.ErrPollNotFound)
}

func TestLikeEngine_ConcurrentTogglesStayConsistent(t *testing.T) {
	f := newLikeFixture(t)
	poll := f.createPoll(t, true, nil)

	const likers = 40
	var wg sync.WaitGroup
	for i := 0; i < likers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			liker := models.UserIdentity(uuid.New().String())
			_, err := f.engine.Toggle(context.Background(), poll.ID, liker, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	updated, err := f.store.GetPoll(context.Background(), poll.ID)
	require.NoError(t, err)
	assert.Equal(t, likers, updated.LikesCount)
}

func TestLikeEngine_HasLiked(t *testing.T) {
	f := newLikeFixture(t)
	poll := f.createPoll(t, true, nil)
	liker := models.AnonIdentity("tok-h")

	liked, err := f.engine.HasLiked(context.Background(), poll.ID, liker)
	require.NoError(t, err)
	assert.False(t, liked)

	_, err = f.engine.Like(context.Background(), poll.ID, liker, "")
	require.NoError(t, err)

	liked, err = f.engine.HasLiked(context.Background(), poll.ID, liker)
	require.NoError(t, err)
	assert.True(t, liked)
}
