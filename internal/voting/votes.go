// Package voting implements the vote and like integrity engines: identity
// uniqueness, lifecycle-guarded writes, and counter updates that stay
// consistent with the underlying rows under concurrency.
package voting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pollpulse/pollpulse/internal/locks"
	"github.com/pollpulse/pollpulse/internal/models"
	"github.com/pollpulse/pollpulse/internal/polls"
	"github.com/pollpulse/pollpulse/internal/realtime"
	"github.com/pollpulse/pollpulse/internal/storage"
	"github.com/pollpulse/pollpulse/pkg/logger"
)

var (
	votesCastTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votes_cast_total",
			Help: "Total number of vote attempts by result",
		},
		[]string{"result"}, // accepted, duplicate, rejected
	)

	likesToggledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "likes_toggled_total",
			Help: "Total number of like toggles by action",
		},
		[]string{"action"}, // liked, unliked
	)
)

// EventSink receives committed mutation events for out-of-process
// consumers. Implementations must not block the caller.
type EventSink interface {
	PublishPollEvent(ctx context.Context, eventType, pollID string, data map[string]interface{}) error
}

// VoteEngine enforces vote integrity: one vote per identity per poll (or
// per option for multi-choice polls), lifecycle-guarded, with atomic
// counter updates. All writes against one poll are serialized through a
// per-poll lock so the check-then-insert window cannot race.
type VoteEngine struct {
	store       storage.PollStore
	guard       *polls.Guard
	pollLocks   *locks.KeyedMutex
	broadcaster realtime.Broadcaster
	events      EventSink
}

// NewVoteEngine creates a new vote engine. The event sink may be nil.
func NewVoteEngine(store storage.PollStore, guard *polls.Guard, pollLocks *locks.KeyedMutex, broadcaster realtime.Broadcaster, events EventSink) *VoteEngine {
	return &VoteEngine{
		store:       store,
		guard:       guard,
		pollLocks:   pollLocks,
		broadcaster: broadcaster,
		events:      events,
	}
}

// VoteResult is the outcome of a successful cast.
type VoteResult struct {
	Votes []*models.Vote `json:"votes"`
	Poll  *models.Poll   `json:"poll"`
}

// CastVote validates and records a vote for one or more options. The poll
// must be active and unexpired, every option must belong to the poll, and
// the voter must not already hold a conflicting vote. The committed change
// is broadcast to the poll's subscribers.
func (e *VoteEngine) CastVote(ctx context.Context, pollID string, optionIDs []string, voter models.Identity, ipAddress, userAgent string) (*VoteResult, error) {
	if voter.IsZero() {
		votesCastTotal.WithLabelValues("rejected").Inc()
		return nil, models.ErrInvalidIdentity
	}
	if len(optionIDs) == 0 {
		votesCastTotal.WithLabelValues("rejected").Inc()
		return nil, models.ErrNoOptionsSelected
	}

	e.pollLocks.Lock(pollID)
	defer e.pollLocks.Unlock(pollID)

	poll, err := e.store.GetPoll(ctx, pollID)
	if err != nil {
		votesCastTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if err := e.guard.CanVote(poll); err != nil {
		votesCastTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if !poll.AllowMultiple && len(optionIDs) > 1 {
		votesCastTotal.WithLabelValues("rejected").Inc()
		return nil, models.ErrMultipleNotAllowed
	}

	valid := make(map[string]bool, len(poll.Options))
	for _, opt := range poll.Options {
		valid[opt.ID] = true
	}
	seen := make(map[string]bool, len(optionIDs))
	for _, optionID := range optionIDs {
		// An option listed twice in one request is as invalid as an
		// option from another poll.
		if !valid[optionID] || seen[optionID] {
			votesCastTotal.WithLabelValues("rejected").Inc()
			return nil, models.ErrInvalidOption
		}
		seen[optionID] = true
	}

	existing, err := e.store.GetVotesByVoter(ctx, pollID, voter)
	if err != nil {
		votesCastTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if !poll.AllowMultiple && len(existing) > 0 {
		votesCastTotal.WithLabelValues("duplicate").Inc()
		return nil, models.ErrDuplicateVote
	}
	voted := make(map[string]bool, len(existing))
	for _, v := range existing {
		voted[v.OptionID] = true
	}
	for _, optionID := range optionIDs {
		if voted[optionID] {
			votesCastTotal.WithLabelValues("duplicate").Inc()
			return nil, models.ErrDuplicateVote
		}
	}

	now := time.Now().UTC()
	votes := make([]*models.Vote, 0, len(optionIDs))
	for _, optionID := range optionIDs {
		votes = append(votes, &models.Vote{
			ID:        uuid.New().String(),
			PollID:    pollID,
			OptionID:  optionID,
			Voter:     voter,
			IPAddress: ipAddress,
			UserAgent: userAgent,
			CreatedAt: now,
		})
	}

	if err := e.store.CreateVotes(ctx, votes); err != nil {
		votesCastTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	votesCastTotal.WithLabelValues("accepted").Inc()

	updated, err := e.store.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}

	logger.Info("Vote cast",
		logger.String("poll_id", pollID),
		logger.String("voter", voter.String()),
		logger.Int("options", len(optionIDs)),
		logger.Int("total_votes", updated.TotalVotes),
	)

	e.broadcastStats(updated, realtime.NewVoteCastEvent(pollID, statsPayload(updated)), "vote_cast")

	// An authenticated voter's other sessions learn about the action too.
	if userID := voter.UserID(); userID != "" {
		go e.broadcaster.BroadcastToUser(userID, realtime.NewUserActivityEvent(userID, map[string]string{
			"action":  "vote_cast",
			"poll_id": pollID,
		}))
	}

	return &VoteResult{Votes: votes, Poll: updated}, nil
}

// DeleteVote removes a vote. Only the authenticated identity that cast it
// may delete it; anonymous votes stay put. Counters decrement symmetrically.
func (e *VoteEngine) DeleteVote(ctx context.Context, voteID string, requester models.Identity) error {
	if requester.UserID() == "" {
		return models.ErrForbidden
	}

	vote, err := e.store.GetVote(ctx, voteID)
	if err != nil {
		return err
	}

	e.pollLocks.Lock(vote.PollID)
	defer e.pollLocks.Unlock(vote.PollID)

	// Re-read under the lock; a concurrent delete may have won the race.
	vote, err = e.store.GetVote(ctx, voteID)
	if err != nil {
		return err
	}
	if vote.Voter.Key() != requester.Key() {
		return models.ErrForbidden
	}

	if err := e.store.DeleteVote(ctx, voteID); err != nil {
		return err
	}

	updated, err := e.store.GetPoll(ctx, vote.PollID)
	if err != nil {
		return err
	}

	logger.Info("Vote deleted",
		logger.String("poll_id", vote.PollID),
		logger.String("vote_id", voteID),
	)

	e.broadcastStats(updated, realtime.NewVoteCastEvent(vote.PollID, statsPayload(updated)), "vote_deleted")
	return nil
}

// ChangeVote moves the voter's existing vote to a different option on a
// single-choice poll. The poll total is unchanged.
func (e *VoteEngine) ChangeVote(ctx context.Context, pollID, newOptionID string, voter models.Identity) (*VoteResult, error) {
	if voter.IsZero() {
		return nil, models.ErrInvalidIdentity
	}

	e.pollLocks.Lock(pollID)
	defer e.pollLocks.Unlock(pollID)

	poll, err := e.store.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if err := e.guard.CanVote(poll); err != nil {
		return nil, err
	}
	if poll.AllowMultiple {
		return nil, models.ErrMultipleNotAllowed
	}

	valid := false
	for _, opt := range poll.Options {
		if opt.ID == newOptionID {
			valid = true
			break
		}
	}
	if !valid {
		return nil, models.ErrInvalidOption
	}

	existing, err := e.store.GetVotesByVoter(ctx, pollID, voter)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, models.ErrVoteNotFound
	}
	vote := existing[0]
	if vote.OptionID == newOptionID {
		return nil, models.ErrDuplicateVote
	}

	if err := e.store.UpdateVoteOption(ctx, vote.ID, newOptionID); err != nil {
		return nil, err
	}
	vote.OptionID = newOptionID

	updated, err := e.store.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}

	logger.Info("Vote changed",
		logger.String("poll_id", pollID),
		logger.String("voter", voter.String()),
		logger.String("option_id", newOptionID),
	)

	e.broadcastStats(updated, realtime.NewVoteCastEvent(pollID, statsPayload(updated)), "vote_changed")
	return &VoteResult{Votes: []*models.Vote{vote}, Poll: updated}, nil
}

// VoterStatus reports whether the identity has voted on the poll and which
// options it picked.
func (e *VoteEngine) VoterStatus(ctx context.Context, pollID string, voter models.Identity) (*Status, error) {
	if _, err := e.store.GetPoll(ctx, pollID); err != nil {
		return nil, err
	}

	votes, err := e.store.GetVotesByVoter(ctx, pollID, voter)
	if err != nil {
		return nil, err
	}

	status := &Status{HasVoted: len(votes) > 0}
	for _, v := range votes {
		status.OptionIDs = append(status.OptionIDs, v.OptionID)
	}
	return status, nil
}

// Status reports an identity's voting state on one poll.
type Status struct {
	HasVoted  bool     `json:"has_voted"`
	OptionIDs []string `json:"option_ids,omitempty"`
}

// broadcastStats fans the committed counters out on its own goroutine so
// the mutation response never waits on slow subscribers and the per-poll
// lock is released before any delivery work starts. The request context is
// gone by then, so the stream publish carries its own deadline.
func (e *VoteEngine) broadcastStats(poll *models.Poll, msg realtime.ServerMessage, eventType string) {
	go func() {
		e.broadcaster.BroadcastToPoll(poll.ID, msg)

		if e.events != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := e.events.PublishPollEvent(ctx, eventType, poll.ID, statsPayload(poll)); err != nil {
				logger.Warn("Failed to publish poll event",
					logger.ErrorField(err),
					logger.String("poll_id", poll.ID),
					logger.String("event_type", eventType),
				)
			}
		}
	}()
}

// statsPayload builds the counter snapshot broadcast after a commit.
func statsPayload(poll *models.Poll) map[string]interface{} {
	options := make([]map[string]interface{}, 0, len(poll.Options))
	for _, opt := range poll.Options {
		options = append(options, map[string]interface{}{
			"id":         opt.ID,
			"text":       opt.Text,
			"vote_count": opt.VoteCount,
			"percentage": opt.Percentage(poll.TotalVotes),
		})
	}
	return map[string]interface{}{
		"poll_id":     poll.ID,
		"total_votes": poll.TotalVotes,
		"likes_count": poll.LikesCount,
		"options":     options,
	}
}
