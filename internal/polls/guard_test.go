package polls

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pollpulse/pollpulse/internal/models"
)

func TestGuard_CanVote(t *testing.T) {
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	guard := NewGuard(func() time.Time { return frozen })

	past := frozen.Add(-time.Minute)
	future := frozen.Add(time.Minute)

	tests := []struct {
		name    string
		poll    *models.Poll
		wantErr error
	}{
		{
			name: "active poll without deadline",
			poll: &models.Poll{IsActive: true},
		},
		{
			name: "active poll before deadline",
			poll: &models.Poll{IsActive: true, ExpiresAt: &future},
		},
		{
			name:    "inactive poll",
			poll:    &models.Poll{IsActive: false},
			wantErr: models.ErrPollInactive,
		},
		{
			name:    "deadline passed but not yet swept",
			poll:    &models.Poll{IsActive: true, ExpiresAt: &past},
			wantErr: models.ErrPollExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.CanVote(tt.poll)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGuard_CanEditOptions(t *testing.T) {
	guard := NewGuard(nil)

	assert.NoError(t, guard.CanEditOptions(&models.Poll{IsActive: true}))
	assert.ErrorIs(t, guard.CanEditOptions(&models.Poll{IsActive: false}), models.ErrPollInactive)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"What should we build next?", "what-should-we-build-next"},
		{"  spaces   everywhere  ", "spaces-everywhere"},
		{"Go vs. Rust: 2026 edition!", "go-vs-rust-2026-edition"},
		{"UPPER lower", "upper-lower"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.title))
	}

	// Titles with no usable characters fall back to a random slug.
	fallback := Slugify("!!!")
	assert.NotEmpty(t, fallback)
	assert.Contains(t, fallback, "poll-")
}
