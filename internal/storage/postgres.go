package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pollpulse/pollpulse/internal/config"
	"github.com/pollpulse/pollpulse/internal/models"
	"github.com/pollpulse/pollpulse/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Metrics for poll store operations
	pollStoreTxTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_store_tx_total",
			Help: "Total number of poll store transactions",
		},
		[]string{"operation", "status"}, // status is "success" or "error"
	)

	pollStoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poll_store_latency_seconds",
			Help:    "Poll store operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"operation"},
	)
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations
const uniqueViolation = "23505"

// PostgresStore implements PollStore backed by PostgreSQL
type PostgresStore struct {
	db       *sql.DB
	dbConfig config.DatabaseConfig
}

// NewPostgresStore creates a new PostgreSQL-backed poll store
func NewPostgresStore(dbConfig config.DatabaseConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Database,
		dbConfig.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(dbConfig.MaxConnections)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := CreateSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Connected to PostgreSQL",
		logger.String("host", dbConfig.Host),
		logger.Int("port", dbConfig.Port),
		logger.String("database", dbConfig.Database),
	)

	return &PostgresStore{db: db, dbConfig: dbConfig}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func observe(operation string, start time.Time, err error) {
	pollStoreLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	pollStoreTxTotal.WithLabelValues(operation, status).Inc()
}

// identityColumns returns nullable user_id / anon_id values for SQL arguments.
func identityColumns(id models.Identity) (interface{}, interface{}) {
	var userID, anonID interface{}
	if id.UserID() != "" {
		userID = id.UserID()
	}
	if id.AnonID() != "" {
		anonID = id.AnonID()
	}
	return userID, anonID
}

func identityFromColumns(userID, anonID sql.NullString) models.Identity {
	if userID.Valid {
		return models.UserIdentity(userID.String)
	}
	if anonID.Valid {
		return models.AnonIdentity(anonID.String)
	}
	return models.Identity{}
}

// identityPredicate returns the WHERE fragment matching the given identity.
// Authenticated identities match on user_id, anonymous ones on anon_id.
func identityPredicate(id models.Identity, argIndex int) (string, interface{}) {
	if id.UserID() != "" {
		return fmt.Sprintf("user_id = $%d", argIndex), id.UserID()
	}
	return fmt.Sprintf("anon_id = $%d", argIndex), id.AnonID()
}

const pollColumns = `id, title, COALESCE(description, ''), slug, COALESCE(author_id::text, ''), is_active, is_public,
	allow_multiple, expires_at, created_at, updated_at, total_votes, likes_count, views_count`

func scanPoll(row interface{ Scan(...interface{}) error }) (*models.Poll, error) {
	var p models.Poll
	var expiresAt sql.NullTime
	err := row.Scan(
		&p.ID, &p.Title, &p.Description, &p.Slug, &p.AuthorID, &p.IsActive, &p.IsPublic,
		&p.AllowMultiple, &expiresAt, &p.CreatedAt, &p.UpdatedAt,
		&p.TotalVotes, &p.LikesCount, &p.ViewsCount,
	)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		p.ExpiresAt = &t
	}
	return &p, nil
}

// CreatePoll inserts a poll and its options in a single transaction.
func (s *PostgresStore) CreatePoll(ctx context.Context, poll *models.Poll, options []*models.Option) (err error) {
	start := time.Now()
	defer func() { observe("create_poll", start, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var authorID interface{}
	if poll.AuthorID != "" {
		authorID = poll.AuthorID
	}
	var expiresAt interface{}
	if poll.ExpiresAt != nil {
		expiresAt = *poll.ExpiresAt
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO polls (id, title, description, slug, author_id, is_active, is_public,
			allow_multiple, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		poll.ID, poll.Title, poll.Description, poll.Slug, authorID, poll.IsActive,
		poll.IsPublic, poll.AllowMultiple, expiresAt, poll.CreatedAt, poll.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrSlugTaken
		}
		return fmt.Errorf("failed to insert poll: %w", err)
	}

	for _, opt := range options {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO options (id, poll_id, text, position)
			VALUES ($1, $2, $3, $4)`,
			opt.ID, opt.PollID, opt.Text, opt.Position,
		)
		if err != nil {
			return fmt.Errorf("failed to insert option: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit poll creation: %w", err)
	}
	return nil
}

// GetPoll retrieves a poll with its options, ordered by position.
func (s *PostgresStore) GetPoll(ctx context.Context, pollID string) (*models.Poll, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pollColumns+` FROM polls WHERE id = $1`, pollID)
	poll, err := scanPoll(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrPollNotFound
		}
		return nil, fmt.Errorf("failed to query poll: %w", err)
	}

	poll.Options, err = s.GetOptionsByPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	return poll, nil
}

// GetPollBySlug retrieves a poll by its slug, with options.
func (s *PostgresStore) GetPollBySlug(ctx context.Context, slug string) (*models.Poll, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pollColumns+` FROM polls WHERE slug = $1`, slug)
	poll, err := scanPoll(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrPollNotFound
		}
		return nil, fmt.Errorf("failed to query poll by slug: %w", err)
	}

	poll.Options, err = s.GetOptionsByPoll(ctx, poll.ID)
	if err != nil {
		return nil, err
	}
	return poll, nil
}

// ListPublicPolls lists active public polls, newest first.
func (s *PostgresStore) ListPublicPolls(ctx context.Context, limit, offset int) ([]*models.Poll, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pollColumns+` FROM polls
		WHERE is_public = TRUE AND is_active = TRUE
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list public polls: %w", err)
	}
	defer rows.Close()

	var polls []*models.Poll
	for rows.Next() {
		poll, err := scanPoll(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan poll: %w", err)
		}
		polls = append(polls, poll)
	}
	return polls, rows.Err()
}

// ListExpiredActivePolls lists polls whose deadline has passed but are still
// flagged active. Used by the expiry watcher.
func (s *PostgresStore) ListExpiredActivePolls(ctx context.Context, now time.Time) ([]*models.Poll, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pollColumns+` FROM polls
		WHERE is_active = TRUE AND expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired polls: %w", err)
	}
	defer rows.Close()

	var polls []*models.Poll
	for rows.Next() {
		poll, err := scanPoll(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan poll: %w", err)
		}
		polls = append(polls, poll)
	}
	return polls, rows.Err()
}

// UpdatePoll updates a poll's mutable fields.
func (s *PostgresStore) UpdatePoll(ctx context.Context, poll *models.Poll) (err error) {
	start := time.Now()
	defer func() { observe("update_poll", start, err) }()

	var expiresAt interface{}
	if poll.ExpiresAt != nil {
		expiresAt = *poll.ExpiresAt
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE polls
		SET title = $2, description = $3, slug = $4, is_active = $5, is_public = $6,
			allow_multiple = $7, expires_at = $8, updated_at = $9
		WHERE id = $1`,
		poll.ID, poll.Title, poll.Description, poll.Slug, poll.IsActive, poll.IsPublic,
		poll.AllowMultiple, expiresAt, time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrSlugTaken
		}
		return fmt.Errorf("failed to update poll: %w", err)
	}
	return requireRow(res, models.ErrPollNotFound)
}

// DeletePoll deletes a poll; options, votes and likes cascade.
func (s *PostgresStore) DeletePoll(ctx context.Context, pollID string) (err error) {
	start := time.Now()
	defer func() { observe("delete_poll", start, err) }()

	res, err := s.db.ExecContext(ctx, `DELETE FROM polls WHERE id = $1`, pollID)
	if err != nil {
		return fmt.Errorf("failed to delete poll: %w", err)
	}
	return requireRow(res, models.ErrPollNotFound)
}

// IncrementViews bumps the poll's view counter atomically.
func (s *PostgresStore) IncrementViews(ctx context.Context, pollID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE polls SET views_count = views_count + 1 WHERE id = $1`, pollID)
	if err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}
	return requireRow(res, models.ErrPollNotFound)
}

// GetOption retrieves a single option.
func (s *PostgresStore) GetOption(ctx context.Context, optionID string) (*models.Option, error) {
	var o models.Option
	err := s.db.QueryRowContext(ctx, `
		SELECT id, poll_id, text, position, vote_count FROM options WHERE id = $1`, optionID,
	).Scan(&o.ID, &o.PollID, &o.Text, &o.Position, &o.VoteCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrOptionNotFound
		}
		return nil, fmt.Errorf("failed to query option: %w", err)
	}
	return &o, nil
}

// GetOptionsByPoll retrieves a poll's options ordered by position.
func (s *PostgresStore) GetOptionsByPoll(ctx context.Context, pollID string) ([]*models.Option, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, poll_id, text, position, vote_count
		FROM options WHERE poll_id = $1 ORDER BY position`, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to query options: %w", err)
	}
	defer rows.Close()

	var options []*models.Option
	for rows.Next() {
		var o models.Option
		if err := rows.Scan(&o.ID, &o.PollID, &o.Text, &o.Position, &o.VoteCount); err != nil {
			return nil, fmt.Errorf("failed to scan option: %w", err)
		}
		options = append(options, &o)
	}
	return options, rows.Err()
}

// AddOption appends an option at the next free position.
func (s *PostgresStore) AddOption(ctx context.Context, pollID, text string) (opt *models.Option, err error) {
	start := time.Now()
	defer func() { observe("add_option", start, err) }()

	opt = &models.Option{PollID: pollID, Text: text}
	opt.ID = newID()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO options (id, poll_id, text, position)
		VALUES ($1, $2, $3,
			(SELECT COALESCE(MAX(position) + 1, 0) FROM options WHERE poll_id = $2))
		RETURNING position`,
		opt.ID, pollID, text,
	).Scan(&opt.Position)
	if err != nil {
		return nil, fmt.Errorf("failed to insert option: %w", err)
	}
	return opt, nil
}

// UpdateOptionText updates an option's text.
func (s *PostgresStore) UpdateOptionText(ctx context.Context, optionID, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE options SET text = $2 WHERE id = $1`, optionID, text)
	if err != nil {
		return fmt.Errorf("failed to update option: %w", err)
	}
	return requireRow(res, models.ErrOptionNotFound)
}

// DeleteOption deletes an option. Integrity checks (min options, no votes)
// are the poll service's responsibility, under the poll's mutex.
func (s *PostgresStore) DeleteOption(ctx context.Context, optionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM options WHERE id = $1`, optionID)
	if err != nil {
		return fmt.Errorf("failed to delete option: %w", err)
	}
	return requireRow(res, models.ErrOptionNotFound)
}

// ReorderOptions rewrites option positions in one transaction. Positions are
// first shifted out of range so intermediate states never collide with the
// (poll_id, position) unique constraint.
func (s *PostgresStore) ReorderOptions(ctx context.Context, pollID string, positions map[string]int) (err error) {
	start := time.Now()
	defer func() { observe("reorder_options", start, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE options SET position = position + 1000000 WHERE poll_id = $1`, pollID)
	if err != nil {
		return fmt.Errorf("failed to shift positions: %w", err)
	}

	for optionID, position := range positions {
		res, err := tx.ExecContext(ctx,
			`UPDATE options SET position = $3 WHERE id = $1 AND poll_id = $2`,
			optionID, pollID, position)
		if err != nil {
			return fmt.Errorf("failed to reorder option: %w", err)
		}
		if err := requireRow(res, models.ErrOptionNotFound); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reorder: %w", err)
	}
	return nil
}

// CreateVotes inserts vote rows and increments the option and poll counters
// in a single transaction. Either every effect applies or none does.
func (s *PostgresStore) CreateVotes(ctx context.Context, votes []*models.Vote) (err error) {
	start := time.Now()
	defer func() { observe("create_votes", start, err) }()

	if len(votes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, v := range votes {
		userID, anonID := identityColumns(v.Voter)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO votes (id, poll_id, option_id, user_id, anon_id, ip_address, user_agent, created_at)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)`,
			v.ID, v.PollID, v.OptionID, userID, anonID, v.IPAddress, v.UserAgent, v.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return models.ErrDuplicateVote
			}
			return fmt.Errorf("failed to insert vote: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE options SET vote_count = vote_count + 1 WHERE id = $1`, v.OptionID)
		if err != nil {
			return fmt.Errorf("failed to increment option count: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE polls SET total_votes = total_votes + $2 WHERE id = $1`,
		votes[0].PollID, len(votes))
	if err != nil {
		return fmt.Errorf("failed to increment poll total: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit votes: %w", err)
	}
	return nil
}

const voteColumns = `id, poll_id, option_id, user_id, anon_id,
	COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at`

func scanVote(row interface{ Scan(...interface{}) error }) (*models.Vote, error) {
	var v models.Vote
	var userID, anonID sql.NullString
	err := row.Scan(&v.ID, &v.PollID, &v.OptionID, &userID, &anonID,
		&v.IPAddress, &v.UserAgent, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	v.Voter = identityFromColumns(userID, anonID)
	return &v, nil
}

// GetVote retrieves a vote by ID.
func (s *PostgresStore) GetVote(ctx context.Context, voteID string) (*models.Vote, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+voteColumns+` FROM votes WHERE id = $1`, voteID)
	vote, err := scanVote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrVoteNotFound
		}
		return nil, fmt.Errorf("failed to query vote: %w", err)
	}
	return vote, nil
}

// GetVotesByVoter retrieves the identity's votes on a poll.
func (s *PostgresStore) GetVotesByVoter(ctx context.Context, pollID string, voter models.Identity) ([]*models.Vote, error) {
	predicate, arg := identityPredicate(voter, 2)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+voteColumns+` FROM votes WHERE poll_id = $1 AND `+predicate, pollID, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes: %w", err)
	}
	defer rows.Close()

	var votes []*models.Vote
	for rows.Next() {
		vote, err := scanVote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		votes = append(votes, vote)
	}
	return votes, rows.Err()
}

// DeleteVote deletes a vote and decrements the counters symmetrically.
func (s *PostgresStore) DeleteVote(ctx context.Context, voteID string) (err error) {
	start := time.Now()
	defer func() { observe("delete_vote", start, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var pollID, optionID string
	err = tx.QueryRowContext(ctx,
		`DELETE FROM votes WHERE id = $1 RETURNING poll_id, option_id`, voteID,
	).Scan(&pollID, &optionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrVoteNotFound
		}
		return fmt.Errorf("failed to delete vote: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE options SET vote_count = GREATEST(vote_count - 1, 0) WHERE id = $1`, optionID)
	if err != nil {
		return fmt.Errorf("failed to decrement option count: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE polls SET total_votes = GREATEST(total_votes - 1, 0) WHERE id = $1`, pollID)
	if err != nil {
		return fmt.Errorf("failed to decrement poll total: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit vote deletion: %w", err)
	}
	return nil
}

// UpdateVoteOption moves a vote to a different option, shifting one count
// between the two options. The poll total is unchanged.
func (s *PostgresStore) UpdateVoteOption(ctx context.Context, voteID, newOptionID string) (err error) {
	start := time.Now()
	defer func() { observe("update_vote", start, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var oldOptionID string
	err = tx.QueryRowContext(ctx,
		`SELECT option_id FROM votes WHERE id = $1 FOR UPDATE`, voteID,
	).Scan(&oldOptionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrVoteNotFound
		}
		return fmt.Errorf("failed to lock vote: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE votes SET option_id = $2 WHERE id = $1`, voteID, newOptionID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateVote
		}
		return fmt.Errorf("failed to update vote: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE options SET vote_count = GREATEST(vote_count - 1, 0) WHERE id = $1`, oldOptionID)
	if err != nil {
		return fmt.Errorf("failed to decrement old option: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE options SET vote_count = vote_count + 1 WHERE id = $1`, newOptionID)
	if err != nil {
		return fmt.Errorf("failed to increment new option: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit vote update: %w", err)
	}
	return nil
}

// CreateLike inserts a like row and increments likes_count in one transaction.
func (s *PostgresStore) CreateLike(ctx context.Context, like *models.Like) (err error) {
	start := time.Now()
	defer func() { observe("create_like", start, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	userID, anonID := identityColumns(like.Liker)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO likes (id, poll_id, user_id, anon_id, ip_address, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`,
		like.ID, like.PollID, userID, anonID, like.IPAddress, like.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrAlreadyLiked
		}
		return fmt.Errorf("failed to insert like: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE polls SET likes_count = likes_count + 1 WHERE id = $1`, like.PollID)
	if err != nil {
		return fmt.Errorf("failed to increment likes count: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit like: %w", err)
	}
	return nil
}

// GetLikeByLiker retrieves the identity's like on a poll.
func (s *PostgresStore) GetLikeByLiker(ctx context.Context, pollID string, liker models.Identity) (*models.Like, error) {
	predicate, arg := identityPredicate(liker, 2)
	var l models.Like
	var userID, anonID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, poll_id, user_id, anon_id, COALESCE(ip_address, ''), created_at
		FROM likes WHERE poll_id = $1 AND `+predicate, pollID, arg,
	).Scan(&l.ID, &l.PollID, &userID, &anonID, &l.IPAddress, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrLikeNotFound
		}
		return nil, fmt.Errorf("failed to query like: %w", err)
	}
	l.Liker = identityFromColumns(userID, anonID)
	return &l, nil
}

// DeleteLikeByLiker removes the identity's like and decrements likes_count.
func (s *PostgresStore) DeleteLikeByLiker(ctx context.Context, pollID string, liker models.Identity) (err error) {
	start := time.Now()
	defer func() { observe("delete_like", start, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	predicate, arg := identityPredicate(liker, 2)
	res, err := tx.ExecContext(ctx,
		`DELETE FROM likes WHERE poll_id = $1 AND `+predicate, pollID, arg)
	if err != nil {
		return fmt.Errorf("failed to delete like: %w", err)
	}
	if err := requireRow(res, models.ErrNotLiked); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE polls SET likes_count = GREATEST(likes_count - 1, 0) WHERE id = $1`, pollID)
	if err != nil {
		return fmt.Errorf("failed to decrement likes count: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit unlike: %w", err)
	}
	return nil
}

// Helper functions

func newID() string {
	return uuid.New().String()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
