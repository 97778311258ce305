package polls

import (
	"time"

	"github.com/pollpulse/pollpulse/internal/models"
)

// Guard enforces poll lifecycle rules. Voting requires an active,
// unexpired poll; liking only requires that the poll exists, so reactions
// keep working after a poll closes; structural edits require an active poll.
type Guard struct {
	now func() time.Time
}

// NewGuard creates a lifecycle guard using the given clock. A nil clock
// defaults to time.Now.
func NewGuard(now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{now: now}
}

// CanVote returns nil when the poll accepts votes. Expiry is checked
// against the deadline even if the expiry watcher has not flipped
// is_active yet.
func (g *Guard) CanVote(poll *models.Poll) error {
	if !poll.IsActive {
		return models.ErrPollInactive
	}
	if poll.IsExpired(g.now()) {
		return models.ErrPollExpired
	}
	return nil
}

// CanEditOptions returns nil when the poll's option set may be changed.
func (g *Guard) CanEditOptions(poll *models.Poll) error {
	if !poll.IsActive {
		return models.ErrPollInactive
	}
	return nil
}

// IsExpired reports whether the poll's deadline has passed.
func (g *Guard) IsExpired(poll *models.Poll) bool {
	return poll.IsExpired(g.now())
}
