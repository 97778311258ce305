package models

import (
	"time"
)

// Poll represents a poll with its denormalized engagement counters.
// TotalVotes, LikesCount and ViewsCount are caches over the Vote/Like/view
// detail rows; only the integrity engines mutate them.
type Poll struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Slug          string     `json:"slug"`
	AuthorID      string     `json:"author_id,omitempty"`
	IsActive      bool       `json:"is_active"`
	IsPublic      bool       `json:"is_public"`
	AllowMultiple bool       `json:"allow_multiple"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	TotalVotes int `json:"total_votes"`
	LikesCount int `json:"likes_count"`
	ViewsCount int `json:"views_count"`

	Options []*Option `json:"options,omitempty"`
}

// IsExpired reports whether the poll's deadline has passed at the given time.
// Polls without a deadline never expire.
func (p *Poll) IsExpired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// Option represents one choice of a poll. Position is unique per poll and
// assigned at creation time; VoteCount is a denormalized cache over Vote rows.
type Option struct {
	ID        string `json:"id"`
	PollID    string `json:"poll_id"`
	Text      string `json:"text"`
	Position  int    `json:"position"`
	VoteCount int    `json:"vote_count"`
}

// Percentage returns the option's share of the given vote total.
func (o *Option) Percentage(totalVotes int) float64 {
	if totalVotes <= 0 {
		return 0
	}
	return float64(o.VoteCount) / float64(totalVotes) * 100
}
