package models

import (
	"time"
)

// Vote records a single choice by an identity on a poll option.
type Vote struct {
	ID        string    `json:"id"`
	PollID    string    `json:"poll_id"`
	OptionID  string    `json:"option_id"`
	Voter     Identity  `json:"-"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate validates a Vote
func (v *Vote) Validate() error {
	if v.PollID == "" {
		return ErrPollNotFound
	}
	if v.OptionID == "" {
		return ErrOptionNotFound
	}
	if v.Voter.IsZero() {
		return ErrInvalidIdentity
	}
	return nil
}

// Like records a single like by an identity on a poll.
type Like struct {
	ID        string    `json:"id"`
	PollID    string    `json:"poll_id"`
	Liker     Identity  `json:"-"`
	IPAddress string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate validates a Like
func (l *Like) Validate() error {
	if l.PollID == "" {
		return ErrPollNotFound
	}
	if l.Liker.IsZero() {
		return ErrInvalidIdentity
	}
	return nil
}
