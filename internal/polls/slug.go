package polls

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const maxSlugLength = 60

// Slugify turns a poll title into a URL-safe slug: lowercase ASCII letters,
// digits and hyphens. Titles that reduce to nothing fall back to a random
// slug.
func Slugify(title string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) && r < 128, unicode.IsDigit(r) && r < 128:
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
		if b.Len() >= maxSlugLength {
			break
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "poll-" + uuid.New().String()[:8]
	}
	return slug
}

// UniqueSuffix appends a short random suffix, used when a slug collides.
func UniqueSuffix(slug string) string {
	return slug + "-" + uuid.New().String()[:8]
}
