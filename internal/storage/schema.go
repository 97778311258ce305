package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed by the poll store.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS polls (
    id UUID PRIMARY KEY,
    title VARCHAR(200) NOT NULL,
    description TEXT,
    slug VARCHAR(250) UNIQUE NOT NULL,
    author_id UUID,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    is_public BOOLEAN NOT NULL DEFAULT TRUE,
    allow_multiple BOOLEAN NOT NULL DEFAULT FALSE,
    expires_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    total_votes INTEGER NOT NULL DEFAULT 0 CHECK (total_votes >= 0),
    likes_count INTEGER NOT NULL DEFAULT 0 CHECK (likes_count >= 0),
    views_count INTEGER NOT NULL DEFAULT 0 CHECK (views_count >= 0)
);

CREATE INDEX IF NOT EXISTS idx_polls_slug ON polls(slug);
CREATE INDEX IF NOT EXISTS idx_polls_author_id ON polls(author_id);

CREATE TABLE IF NOT EXISTS options (
    id UUID PRIMARY KEY,
    poll_id UUID NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
    text VARCHAR(100) NOT NULL,
    position INTEGER NOT NULL DEFAULT 0,
    vote_count INTEGER NOT NULL DEFAULT 0 CHECK (vote_count >= 0),
    UNIQUE (poll_id, position)
);

CREATE INDEX IF NOT EXISTS idx_options_poll_id ON options(poll_id);

CREATE TABLE IF NOT EXISTS votes (
    id UUID PRIMARY KEY,
    poll_id UUID NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
    option_id UUID NOT NULL REFERENCES options(id) ON DELETE CASCADE,
    user_id UUID,
    anon_id VARCHAR(255),
    ip_address VARCHAR(45),
    user_agent VARCHAR(500),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (user_id IS NOT NULL OR anon_id IS NOT NULL)
);

-- Backstop for the per-poll serialization in the vote engine: an identity
-- may hold at most one row per option even on multi-choice polls.
CREATE UNIQUE INDEX IF NOT EXISTS idx_votes_user_option
    ON votes(poll_id, option_id, user_id) WHERE user_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_votes_anon_option
    ON votes(poll_id, option_id, anon_id) WHERE anon_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_votes_poll_id ON votes(poll_id);

CREATE TABLE IF NOT EXISTS likes (
    id UUID PRIMARY KEY,
    poll_id UUID NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
    user_id UUID,
    anon_id VARCHAR(255),
    ip_address VARCHAR(45),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (user_id IS NOT NULL OR anon_id IS NOT NULL)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_likes_user_poll
    ON likes(poll_id, user_id) WHERE user_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_likes_anon_poll
    ON likes(poll_id, anon_id) WHERE anon_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_likes_poll_id ON likes(poll_id);
`
