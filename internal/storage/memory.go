package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pollpulse/pollpulse/internal/models"
)

// MemoryStore is an in-memory implementation of PollStore for testing and
// single-node development. All mutations happen under one mutex, so the
// row-plus-counters atomicity contract holds trivially.
type MemoryStore struct {
	mu      sync.RWMutex
	polls   map[string]*models.Poll
	options map[string]*models.Option
	votes   map[string]*models.Vote
	likes   map[string]*models.Like
}

// NewMemoryStore creates a new in-memory poll store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		polls:   make(map[string]*models.Poll),
		options: make(map[string]*models.Option),
		votes:   make(map[string]*models.Vote),
		likes:   make(map[string]*models.Like),
	}
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

func copyPoll(p *models.Poll) *models.Poll {
	c := *p
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		c.ExpiresAt = &t
	}
	c.Options = nil
	return &c
}

func copyOption(o *models.Option) *models.Option {
	c := *o
	return &c
}

func copyVote(v *models.Vote) *models.Vote {
	c := *v
	return &c
}

func copyLike(l *models.Like) *models.Like {
	c := *l
	return &c
}

// optionsForPoll returns copies of a poll's options ordered by position.
// Caller must hold at least the read lock.
func (s *MemoryStore) optionsForPoll(pollID string) []*models.Option {
	var options []*models.Option
	for _, o := range s.options {
		if o.PollID == pollID {
			options = append(options, copyOption(o))
		}
	}
	sort.Slice(options, func(i, j int) bool {
		return options[i].Position < options[j].Position
	})
	return options
}

// CreatePoll stores a poll and its options.
func (s *MemoryStore) CreatePoll(_ context.Context, poll *models.Poll, options []*models.Option) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.polls {
		if p.Slug == poll.Slug {
			return models.ErrSlugTaken
		}
	}

	s.polls[poll.ID] = copyPoll(poll)
	for _, opt := range options {
		s.options[opt.ID] = copyOption(opt)
	}
	return nil
}

// GetPoll retrieves a poll with its options.
func (s *MemoryStore) GetPoll(_ context.Context, pollID string) (*models.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.polls[pollID]
	if !ok {
		return nil, models.ErrPollNotFound
	}
	poll := copyPoll(p)
	poll.Options = s.optionsForPoll(pollID)
	return poll, nil
}

// GetPollBySlug retrieves a poll by its slug.
func (s *MemoryStore) GetPollBySlug(_ context.Context, slug string) (*models.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.polls {
		if p.Slug == slug {
			poll := copyPoll(p)
			poll.Options = s.optionsForPoll(p.ID)
			return poll, nil
		}
	}
	return nil, models.ErrPollNotFound
}

// ListPublicPolls lists active public polls, newest first.
func (s *MemoryStore) ListPublicPolls(_ context.Context, limit, offset int) ([]*models.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var polls []*models.Poll
	for _, p := range s.polls {
		if p.IsPublic && p.IsActive {
			polls = append(polls, copyPoll(p))
		}
	}
	sort.Slice(polls, func(i, j int) bool {
		return polls[i].CreatedAt.After(polls[j].CreatedAt)
	})

	if offset >= len(polls) {
		return nil, nil
	}
	polls = polls[offset:]
	if limit > 0 && limit < len(polls) {
		polls = polls[:limit]
	}
	return polls, nil
}

// ListExpiredActivePolls lists polls whose deadline has passed but are
// still flagged active.
func (s *MemoryStore) ListExpiredActivePolls(_ context.Context, now time.Time) ([]*models.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var polls []*models.Poll
	for _, p := range s.polls {
		if p.IsActive && p.ExpiresAt != nil && p.ExpiresAt.Before(now) {
			polls = append(polls, copyPoll(p))
		}
	}
	return polls, nil
}

// UpdatePoll updates a poll's mutable fields. Counters are left alone.
func (s *MemoryStore) UpdatePoll(_ context.Context, poll *models.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.polls[poll.ID]
	if !ok {
		return models.ErrPollNotFound
	}
	for _, p := range s.polls {
		if p.ID != poll.ID && p.Slug == poll.Slug {
			return models.ErrSlugTaken
		}
	}

	existing.Title = poll.Title
	existing.Description = poll.Description
	existing.Slug = poll.Slug
	existing.IsActive = poll.IsActive
	existing.IsPublic = poll.IsPublic
	existing.AllowMultiple = poll.AllowMultiple
	if poll.ExpiresAt != nil {
		t := *poll.ExpiresAt
		existing.ExpiresAt = &t
	} else {
		existing.ExpiresAt = nil
	}
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

// DeletePoll deletes a poll and everything attached to it.
func (s *MemoryStore) DeletePoll(_ context.Context, pollID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.polls[pollID]; !ok {
		return models.ErrPollNotFound
	}
	delete(s.polls, pollID)
	for id, o := range s.options {
		if o.PollID == pollID {
			delete(s.options, id)
		}
	}
	for id, v := range s.votes {
		if v.PollID == pollID {
			delete(s.votes, id)
		}
	}
	for id, l := range s.likes {
		if l.PollID == pollID {
			delete(s.likes, id)
		}
	}
	return nil
}

// IncrementViews bumps the poll's view counter.
func (s *MemoryStore) IncrementViews(_ context.Context, pollID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.polls[pollID]
	if !ok {
		return models.ErrPollNotFound
	}
	p.ViewsCount++
	return nil
}

// GetOption retrieves a single option.
func (s *MemoryStore) GetOption(_ context.Context, optionID string) (*models.Option, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.options[optionID]
	if !ok {
		return nil, models.ErrOptionNotFound
	}
	return copyOption(o), nil
}

// GetOptionsByPoll retrieves a poll's options ordered by position.
func (s *MemoryStore) GetOptionsByPoll(_ context.Context, pollID string) ([]*models.Option, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.optionsForPoll(pollID), nil
}

// AddOption appends an option at the next free position.
func (s *MemoryStore) AddOption(_ context.Context, pollID, text string) (*models.Option, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.polls[pollID]; !ok {
		return nil, models.ErrPollNotFound
	}

	position := 0
	for _, o := range s.options {
		if o.PollID == pollID && o.Position >= position {
			position = o.Position + 1
		}
	}

	opt := &models.Option{
		ID:       newID(),
		PollID:   pollID,
		Text:     text,
		Position: position,
	}
	s.options[opt.ID] = opt
	return copyOption(opt), nil
}

// UpdateOptionText updates an option's text.
func (s *MemoryStore) UpdateOptionText(_ context.Context, optionID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.options[optionID]
	if !ok {
		return models.ErrOptionNotFound
	}
	o.Text = text
	return nil
}

// DeleteOption deletes an option.
func (s *MemoryStore) DeleteOption(_ context.Context, optionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.options[optionID]; !ok {
		return models.ErrOptionNotFound
	}
	delete(s.options, optionID)
	return nil
}

// ReorderOptions rewrites option positions.
func (s *MemoryStore) ReorderOptions(_ context.Context, pollID string, positions map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for optionID := range positions {
		o, ok := s.options[optionID]
		if !ok || o.PollID != pollID {
			return models.ErrOptionNotFound
		}
	}
	for optionID, position := range positions {
		s.options[optionID].Position = position
	}
	return nil
}

// CreateVotes stores vote rows and increments the option and poll counters.
// All effects apply under one lock acquisition, or none do.
func (s *MemoryStore) CreateVotes(_ context.Context, votes []*models.Vote) error {
	if len(votes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	poll, ok := s.polls[votes[0].PollID]
	if !ok {
		return models.ErrPollNotFound
	}
	batch := make(map[string]bool, len(votes))
	for _, v := range votes {
		if _, ok := s.options[v.OptionID]; !ok {
			return models.ErrOptionNotFound
		}
		key := v.OptionID + "|" + v.Voter.Key()
		if batch[key] {
			return models.ErrDuplicateVote
		}
		batch[key] = true
		for _, existing := range s.votes {
			if existing.PollID == v.PollID && existing.OptionID == v.OptionID &&
				existing.Voter.Key() == v.Voter.Key() {
				return models.ErrDuplicateVote
			}
		}
	}

	for _, v := range votes {
		s.votes[v.ID] = copyVote(v)
		s.options[v.OptionID].VoteCount++
	}
	poll.TotalVotes += len(votes)
	return nil
}

// GetVote retrieves a vote by ID.
func (s *MemoryStore) GetVote(_ context.Context, voteID string) (*models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.votes[voteID]
	if !ok {
		return nil, models.ErrVoteNotFound
	}
	return copyVote(v), nil
}

// GetVotesByVoter retrieves the identity's votes on a poll.
func (s *MemoryStore) GetVotesByVoter(_ context.Context, pollID string, voter models.Identity) ([]*models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var votes []*models.Vote
	for _, v := range s.votes {
		if v.PollID == pollID && v.Voter.Key() == voter.Key() {
			votes = append(votes, copyVote(v))
		}
	}
	sort.Slice(votes, func(i, j int) bool {
		return votes[i].CreatedAt.Before(votes[j].CreatedAt)
	})
	return votes, nil
}

// DeleteVote deletes a vote and decrements the counters symmetrically.
// Counters never drop below zero.
func (s *MemoryStore) DeleteVote(_ context.Context, voteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.votes[voteID]
	if !ok {
		return models.ErrVoteNotFound
	}
	delete(s.votes, voteID)

	if o, ok := s.options[v.OptionID]; ok && o.VoteCount > 0 {
		o.VoteCount--
	}
	if p, ok := s.polls[v.PollID]; ok && p.TotalVotes > 0 {
		p.TotalVotes--
	}
	return nil
}

// UpdateVoteOption moves a vote to a different option, shifting one count
// between the two options.
func (s *MemoryStore) UpdateVoteOption(_ context.Context, voteID, newOptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.votes[voteID]
	if !ok {
		return models.ErrVoteNotFound
	}
	newOption, ok := s.options[newOptionID]
	if !ok {
		return models.ErrOptionNotFound
	}

	if old, ok := s.options[v.OptionID]; ok && old.VoteCount > 0 {
		old.VoteCount--
	}
	newOption.VoteCount++
	v.OptionID = newOptionID
	return nil
}

// CreateLike stores a like row and increments likes_count.
func (s *MemoryStore) CreateLike(_ context.Context, like *models.Like) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	poll, ok := s.polls[like.PollID]
	if !ok {
		return models.ErrPollNotFound
	}
	for _, existing := range s.likes {
		if existing.PollID == like.PollID && existing.Liker.Key() == like.Liker.Key() {
			return models.ErrAlreadyLiked
		}
	}

	s.likes[like.ID] = copyLike(like)
	poll.LikesCount++
	return nil
}

// GetLikeByLiker retrieves the identity's like on a poll.
func (s *MemoryStore) GetLikeByLiker(_ context.Context, pollID string, liker models.Identity) (*models.Like, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.likes {
		if l.PollID == pollID && l.Liker.Key() == liker.Key() {
			return copyLike(l), nil
		}
	}
	return nil, models.ErrLikeNotFound
}

// DeleteLikeByLiker removes the identity's like and decrements likes_count.
func (s *MemoryStore) DeleteLikeByLiker(_ context.Context, pollID string, liker models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, l := range s.likes {
		if l.PollID == pollID && l.Liker.Key() == liker.Key() {
			delete(s.likes, id)
			if p, ok := s.polls[pollID]; ok && p.LikesCount > 0 {
				p.LikesCount--
			}
			return nil
		}
	}
	return models.ErrNotLiked
}
