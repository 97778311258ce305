package storage

import (
	"context"
	"time"

	"github.com/pollpulse/pollpulse/internal/models"
)

// PollStore defines the persistence contract required by the poll service
// and the vote/like integrity engines. Implementations must apply each
// vote/like mutation and its counter updates as a single atomic unit.
type PollStore interface {
	// Poll operations
	CreatePoll(ctx context.Context, poll *models.Poll, options []*models.Option) error
	GetPoll(ctx context.Context, pollID string) (*models.Poll, error)
	GetPollBySlug(ctx context.Context, slug string) (*models.Poll, error)
	ListPublicPolls(ctx context.Context, limit, offset int) ([]*models.Poll, error)
	ListExpiredActivePolls(ctx context.Context, now time.Time) ([]*models.Poll, error)
	UpdatePoll(ctx context.Context, poll *models.Poll) error
	DeletePoll(ctx context.Context, pollID string) error
	IncrementViews(ctx context.Context, pollID string) error

	// Option operations
	GetOption(ctx context.Context, optionID string) (*models.Option, error)
	GetOptionsByPoll(ctx context.Context, pollID string) ([]*models.Option, error)
	AddOption(ctx context.Context, pollID, text string) (*models.Option, error)
	UpdateOptionText(ctx context.Context, optionID, text string) error
	DeleteOption(ctx context.Context, optionID string) error
	ReorderOptions(ctx context.Context, pollID string, positions map[string]int) error

	// Vote operations. CreateVotes inserts every row and increments the
	// option and poll counters in one transaction.
	CreateVotes(ctx context.Context, votes []*models.Vote) error
	GetVote(ctx context.Context, voteID string) (*models.Vote, error)
	GetVotesByVoter(ctx context.Context, pollID string, voter models.Identity) ([]*models.Vote, error)
	DeleteVote(ctx context.Context, voteID string) error
	UpdateVoteOption(ctx context.Context, voteID, newOptionID string) error

	// Like operations, counter-symmetric like votes.
	CreateLike(ctx context.Context, like *models.Like) error
	GetLikeByLiker(ctx context.Context, pollID string, liker models.Identity) (*models.Like, error)
	DeleteLikeByLiker(ctx context.Context, pollID string, liker models.Identity) error

	// Close closes the storage connection
	Close() error
}
