// Package polls implements poll lifecycle management: creation, metadata
// and option editing, expiry, and the guard rules voting depends on.
package polls

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

// minOptions is the smallest option set a poll may have.
const minOptions = 2

// slugRetries bounds how many collision suffixes creation will try.
const slugRetries = 3

// Service manages polls and their option sets. Structural edits against
// one poll serialize on the same per-poll lock the voting engines use, so
// an option cannot disappear mid-vote.
type Service struct {
	store       storage.PollStore
	guard       *Guard
	pollLocks   *locks.KeyedMutex
	broadcaster realtime.Broadcaster
}

// NewService creates a new poll service
func NewService(store storage.PollStore, guard *Guard, pollLocks *locks.KeyedMutex, broadcaster realtime.Broadcaster) *Service {
	return &Service{
		store:       store,
		guard:       guard,
		pollLocks:   pollLocks,
		broadcaster: broadcaster,
	}
}

// CreatePollInput carries the fields for poll creation.
type CreatePollInput struct {
	Title         string
	Description   string
	Options       []string
	AuthorID      string
	IsPublic      bool
	AllowMultiple bool
	ExpiresAt     *time.Time
}

// CreatePoll creates a poll with at least two options. The slug derives
// from the title; collisions get a random suffix.
func (s *Service) CreatePoll(ctx context.Context, input CreatePollInput) (*models.Poll, error) {
	if len(input.Options) < minOptions {
		return nil, models.ErrTooFewOptions
	}

	now := time.Now().UTC()
	poll := &models.Poll{
		ID:            uuid.New().String(),
		Title:         input.Title,
		Description:   input.Description,
		Slug:          Slugify(input.Title),
		AuthorID:      input.AuthorID,
		IsActive:      true,
		IsPublic:      input.IsPublic,
		AllowMultiple: input.AllowMultiple,
		ExpiresAt:     input.ExpiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	options := make([]*models.Option, 0, len(input.Options))
	for i, text := range input.Options {
		options = append(options, &models.Option{
			ID:       uuid.New().String(),
			PollID:   poll.ID,
			Text:     text,
			Position: i,
		})
	}

	err := s.store.CreatePoll(ctx, poll, options)
	for retries := 0; errors.Is(err, models.ErrSlugTaken) && retries < slugRetries; retries++ {
		poll.Slug = UniqueSuffix(Slugify(input.Title))
		err = s.store.CreatePoll(ctx, poll, options)
	}
	if err != nil {
		return nil, err
	}
	poll.Options = options

	logger.Info("Poll created",
		logger.String("poll_id", poll.ID),
		logger.String("slug", poll.Slug),
		logger.Int("options", len(options)),
	)

	s.broadcaster.BroadcastGlobal(realtime.NewPollCreatedEvent(poll.ID, map[string]string{
		"title": poll.Title,
		"slug":  poll.Slug,
	}))

	if poll.AuthorID != "" {
		s.broadcaster.BroadcastToUser(poll.AuthorID,
			realtime.NewUserUpdateEvent(poll.AuthorID, "poll_created", map[string]string{
				"poll_id": poll.ID,
				"title":   poll.Title,
			}))
	}
	return poll, nil
}

// GetPoll retrieves a poll by ID.
func (s *Service) GetPoll(ctx context.Context, pollID string) (*models.Poll, error) {
	return s.store.GetPoll(ctx, pollID)
}

// GetPollBySlug retrieves a poll by slug.
func (s *Service) GetPollBySlug(ctx context.Context, slug string) (*models.Poll, error) {
	return s.store.GetPollBySlug(ctx, slug)
}

// ListPolls lists active public polls.
func (s *Service) ListPolls(ctx context.Context, limit, offset int) ([]*models.Poll, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.ListPublicPolls(ctx, limit, offset)
}

// RecordView bumps the poll's view counter.
func (s *Service) RecordView(ctx context.Context, pollID string) error {
	return s.store.IncrementViews(ctx, pollID)
}

// UpdatePollInput carries optional poll metadata updates; nil fields are
// left unchanged.
type UpdatePollInput struct {
	Title       *string
	Description *string
	IsActive    *bool
	IsPublic    *bool
	ExpiresAt   *time.Time
	ClearExpiry bool
}

// UpdatePoll applies metadata changes. Only the author may edit.
func (s *Service) UpdatePoll(ctx context.Context, pollID string, requester models.Identity, input UpdatePollInput) (*models.Poll, error) {
	s.pollLocks.Lock(pollID)
	defer s.pollLocks.Unlock(pollID)

	poll, err := s.store.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(poll, requester); err != nil {
		return nil, err
	}

	if input.Title != nil {
		poll.Title = *input.Title
	}
	if input.Description != nil {
		poll.Description = *input.Description
	}
	if input.IsActive != nil {
		poll.IsActive = *input.IsActive
	}
	if input.IsPublic != nil {
		poll.IsPublic = *input.IsPublic
	}
	if input.ClearExpiry {
		poll.ExpiresAt = nil
	} else if input.ExpiresAt != nil {
		poll.ExpiresAt = input.ExpiresAt
	}

	if err := s.store.UpdatePoll(ctx, poll); err != nil {
		return nil, err
	}

	s.broadcaster.BroadcastToPoll(pollID,
		realtime.NewPollUpdateEvent(pollID, "metadata_updated", map[string]interface{}{
			"title":     poll.Title,
			"is_active": poll.IsActive,
		}))
	return s.store.GetPoll(ctx, pollID)
}

// DeletePoll removes a poll entirely. Only the author may delete.
func (s *Service) DeletePoll(ctx context.Context, pollID string, requester models.Identity) error {
	s.pollLocks.Lock(pollID)
	defer s.pollLocks.Unlock(pollID)

	poll, err := s.store.GetPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if err := s.authorize(poll, requester); err != nil {
		return err
	}

	if err := s.store.DeletePoll(ctx, pollID); err != nil {
		return err
	}

	logger.Info("Poll deleted", logger.String("poll_id", pollID))

	s.broadcaster.BroadcastToPoll(pollID,
		realtime.NewPollUpdateEvent(pollID, "poll_deleted", nil))
	return nil
}

// AddOption appends an option to an active poll.
func (s *Service) AddOption(ctx context.Context, pollID string, requester models.Identity, text string) (*models.Option, error) {
	s.pollLocks.Lock(pollID)
	defer s.pollLocks.Unlock(pollID)

	poll, err := s.store.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(poll, requester); err != nil {
		return nil, err
	}
	if err := s.guard.CanEditOptions(poll); err != nil {
		return nil, err
	}

	opt, err := s.store.AddOption(ctx, pollID, text)
	if err != nil {
		return nil, err
	}

	s.broadcaster.BroadcastToPoll(pollID,
		realtime.NewPollUpdateEvent(pollID, "option_added", map[string]interface{}{
			"option_id": opt.ID,
			"text":      opt.Text,
			"position":  opt.Position,
		}))
	return opt, nil
}

// UpdateOptionText renames an option.
func (s *Service) UpdateOptionText(ctx context.Context, pollID, optionID string, requester models.Identity, text string) error {
	s.pollLocks.Lock(pollID)
	defer s.pollLocks.Unlock(pollID)

	poll, err := s.store.GetPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if err := s.authorize(poll, requester); err != nil {
		return err
	}
	if err := s.optionBelongs(poll, optionID); err != nil {
		return err
	}

	if err := s.store.UpdateOptionText(ctx, optionID, text); err != nil {
		return err
	}

	s.broadcaster.BroadcastToPoll(pollID,
		realtime.NewPollUpdateEvent(pollID, "option_updated", map[string]string{
			"option_id": optionID,
			"text":      text,
		}))
	return nil
}

// RemoveOption deletes an option. Rejected when the poll is inactive, the
// option has votes, or removal would leave fewer than two options.
func (s *Service) RemoveOption(ctx context.Context, pollID, optionID string, requester models.Identity) error {
	s.pollLocks.Lock(pollID)
	defer s.pollLocks.Unlock(pollID)

	poll, err := s.store.GetPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if err := s.authorize(poll, requester); err != nil {
		return err
	}
	if err := s.guard.CanEditOptions(poll); err != nil {
		return err
	}
	if err := s.optionBelongs(poll, optionID); err != nil {
		return err
	}

	if len(poll.Options) <= minOptions {
		return models.ErrTooFewOptions
	}
	for _, opt := range poll.Options {
		if opt.ID == optionID && opt.VoteCount > 0 {
			return models.ErrOptionHasVotes
		}
	}

	if err := s.store.DeleteOption(ctx, optionID); err != nil {
		return err
	}

	s.broadcaster.BroadcastToPoll(pollID,
		realtime.NewPollUpdateEvent(pollID, "option_removed", map[string]string{
			"option_id": optionID,
		}))
	return nil
}

// ReorderOptions rewrites the poll's option ordering. The positions map
// must cover every option exactly once with distinct positions.
func (s *Service) ReorderOptions(ctx context.Context, pollID string, requester models.Identity, positions map[string]int) error {
	s.pollLocks.Lock(pollID)
	defer s.pollLocks.Unlock(pollID)

	poll, err := s.store.GetPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if err := s.authorize(poll, requester); err != nil {
		return err
	}
	if err := s.guard.CanEditOptions(poll); err != nil {
		return err
	}

	if len(positions) != len(poll.Options) {
		return models.ErrInvalidOption
	}
	seen := make(map[int]bool, len(positions))
	for optionID, position := range positions {
		if err := s.optionBelongs(poll, optionID); err != nil {
			return err
		}
		if seen[position] {
			return models.ErrDuplicatePosition
		}
		seen[position] = true
	}

	if err := s.store.ReorderOptions(ctx, pollID, positions); err != nil {
		return err
	}

	s.broadcaster.BroadcastToPoll(pollID,
		realtime.NewPollUpdateEvent(pollID, "options_reordered", nil))
	return nil
}

// authorize allows edits by the poll's author only. Authorless polls
// cannot be edited over the API.
func (s *Service) authorize(poll *models.Poll, requester models.Identity) error {
	if poll.AuthorID == "" || requester.UserID() != poll.AuthorID {
		return models.ErrForbidden
	}
	return nil
}

func (s *Service) optionBelongs(poll *models.Poll, optionID string) error {
	for _, opt := range poll.Options {
		if opt.ID == optionID {
			return nil
		}
	}
	return models.ErrOptionNotFound
}
