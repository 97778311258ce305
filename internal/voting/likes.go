package voting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pollpulse/pollpulse/internal/locks"
	"github.com/pollpulse/pollpulse/internal/models"
	"github.com/pollpulse/pollpulse/internal/realtime"
	"github.com/pollpulse/pollpulse/internal/storage"
	"github.com/pollpulse/pollpulse/pkg/logger"
)

// LikeEngine enforces like integrity: at most one like per identity per
// poll, with likes_count kept consistent with the like rows. Likes carry no
// lifecycle guard, so a closed or expired poll can still be reacted to.
type LikeEngine struct {
	store       storage.PollStore
	pollLocks   *locks.KeyedMutex
	broadcaster realtime.Broadcaster
	events      EventSink
}

// NewLikeEngine creates a new like engine. The event sink may be nil.
func NewLikeEngine(store storage.PollStore, pollLocks *locks.KeyedMutex, broadcaster realtime.Broadcaster, events EventSink) *LikeEngine {
	return &LikeEngine{
		store:       store,
		pollLocks:   pollLocks,
		broadcaster: broadcaster,
		events:      events,
	}
}

// ToggleResult is the outcome of a like mutation.
type ToggleResult struct {
	Action     string `json:"action"` // "liked" or "unliked"
	HasLiked   bool   `json:"has_liked"`
	LikesCount int    `json:"likes_count"`
}

// Like records a like for the identity. A second like from the same
// identity is rejected, never double-counted.
func (e *LikeEngine) Like(ctx context.Context, pollID string, liker models.Identity, ipAddress string) (*ToggleResult, error) {
	if liker.IsZero() {
		return nil, models.ErrInvalidIdentity
	}

	e.pollLocks.Lock(pollID)
	defer e.pollLocks.Unlock(pollID)

	if _, err := e.store.GetPoll(ctx, pollID); err != nil {
		return nil, err
	}

	like := &models.Like{
		ID:        uuid.New().String(),
		PollID:    pollID,
		Liker:     liker,
		IPAddress: ipAddress,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.CreateLike(ctx, like); err != nil {
		return nil, err
	}
	likesToggledTotal.WithLabelValues("liked").Inc()

	return e.finish(ctx, pollID, "liked", true)
}

// Unlike removes the identity's like.
func (e *LikeEngine) Unlike(ctx context.Context, pollID string, liker models.Identity) (*ToggleResult, error) {
	if liker.IsZero() {
		return nil, models.ErrInvalidIdentity
	}

	e.pollLocks.Lock(pollID)
	defer e.pollLocks.Unlock(pollID)

	if err := e.store.DeleteLikeByLiker(ctx, pollID, liker); err != nil {
		return nil, err
	}
	likesToggledTotal.WithLabelValues("unliked").Inc()

	return e.finish(ctx, pollID, "unliked", false)
}

// Toggle flips the identity's like state and reports the resulting state.
func (e *LikeEngine) Toggle(ctx context.Context, pollID string, liker models.Identity, ipAddress string) (*ToggleResult, error) {
	if liker.IsZero() {
		return nil, models.ErrInvalidIdentity
	}

	e.pollLocks.Lock(pollID)
	defer e.pollLocks.Unlock(pollID)

	if _, err := e.store.GetPoll(ctx, pollID); err != nil {
		return nil, err
	}

	_, err := e.store.GetLikeByLiker(ctx, pollID, liker)
	switch {
	case err == nil:
		if err := e.store.DeleteLikeByLiker(ctx, pollID, liker); err != nil {
			return nil, err
		}
		likesToggledTotal.WithLabelValues("unliked").Inc()
		return e.finish(ctx, pollID, "unliked", false)

	case errors.Is(err, models.ErrLikeNotFound):
		like := &models.Like{
			ID:        uuid.New().String(),
			PollID:    pollID,
			Liker:     liker,
			IPAddress: ipAddress,
			CreatedAt: time.Now().UTC(),
		}
		if err := e.store.CreateLike(ctx, like); err != nil {
			return nil, err
		}
		likesToggledTotal.WithLabelValues("liked").Inc()
		return e.finish(ctx, pollID, "liked", true)

	default:
		return nil, err
	}
}

// HasLiked reports whether the identity currently likes the poll.
func (e *LikeEngine) HasLiked(ctx context.Context, pollID string, liker models.Identity) (bool, error) {
	_, err := e.store.GetLikeByLiker(ctx, pollID, liker)
	if err != nil {
		if errors.Is(err, models.ErrLikeNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (e *LikeEngine) finish(ctx context.Context, pollID, action string, hasLiked bool) (*ToggleResult, error) {
	poll, err := e.store.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}

	logger.Info("Like toggled",
		logger.String("poll_id", pollID),
		logger.String("action", action),
		logger.Int("likes_count", poll.LikesCount),
	)

	payload := map[string]interface{}{
		"poll_id":     pollID,
		"action":      action,
		"likes_count": poll.LikesCount,
	}
	// Fanout happens off the mutation path. The toggle has committed, so
	// the caller gets its response while deliveries proceed on their own.
	go func() {
		e.broadcaster.BroadcastToPoll(pollID, realtime.NewLikeCastEvent(pollID, payload))

		if e.events != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := e.events.PublishPollEvent(ctx, "like_"+action, pollID, payload); err != nil {
				logger.Warn("Failed to publish like event",
					logger.ErrorField(err),
					logger.String("poll_id", pollID),
				)
			}
		}
	}()

	return &ToggleResult{
		Action:     action,
		HasLiked:   hasLiked,
		LikesCount: poll.LikesCount,
	}, nil
}
