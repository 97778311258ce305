package models

import "errors"

// Not-found errors
var (
	ErrPollNotFound   = errors.New("poll not found")
	ErrOptionNotFound = errors.New("option not found")
	ErrVoteNotFound   = errors.New("vote not found")
	ErrLikeNotFound   = errors.New("like not found")
)

// Conflict errors
var (
	ErrDuplicateVote = errors.New("identity has already voted on this poll")
	ErrAlreadyLiked  = errors.New("identity has already liked this poll")
	ErrNotLiked      = errors.New("identity has not liked this poll")
	ErrSlugTaken     = errors.New("poll slug already in use")
)

// Invalid-state errors
var (
	ErrPollExpired        = errors.New("poll has expired and is no longer accepting votes")
	ErrPollInactive       = errors.New("poll is not active")
	ErrInvalidOption      = errors.New("option does not belong to poll")
	ErrMultipleNotAllowed = errors.New("poll does not allow multiple votes")
	ErrNoOptionsSelected  = errors.New("at least one option must be selected")
	ErrTooFewOptions      = errors.New("poll must have at least 2 options")
	ErrOptionHasVotes     = errors.New("cannot delete option with existing votes")
	ErrDuplicatePosition  = errors.New("option positions must be unique within a poll")
	ErrInvalidIdentity    = errors.New("identity must be authenticated or anonymous")
)

// Authorization errors
var (
	ErrForbidden = errors.New("requester does not own this resource")
)
