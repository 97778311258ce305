package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollpulse/pollpulse/internal/config"
	"github.com/pollpulse/pollpulse/internal/locks"
	"github.com/pollpulse/pollpulse/internal/models"
	"github.com/pollpulse/pollpulse/internal/polls"
	"github.com/pollpulse/pollpulse/internal/realtime"
	"github.com/pollpulse/pollpulse/internal/storage"
	"github.com/pollpulse/pollpulse/internal/voting"
)

const testJWTSecret = "handler-test-secret"

type apiFixture struct {
	router *mux.Router
	store  *storage.MemoryStore
	hub    *realtime.Hub
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	cfg := config.RealtimeConfig{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		PingInterval:      30 * time.Second,
		StaleThreshold:    5 * time.Minute,
		SweepInterval:     30 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		MaxConnections:    100,
		SendBufferSize:    16,
	}

	store := storage.NewMemoryStore()
	hub := realtime.NewHub(cfg)
	auth := realtime.NewAuthManager(testJWTSecret)
	guard := polls.NewGuard(nil)
	pollLocks := locks.NewKeyedMutex()

	pollService := polls.NewService(store, guard, pollLocks, hub)
	voteEngine := voting.NewVoteEngine(store, guard, pollLocks, hub, nil)
	likeEngine := voting.NewLikeEngine(store, pollLocks, hub, nil)

	router := NewRouter(RouterDeps{
		Polls: NewPollHandler(pollService, nil),
		Votes: NewVoteHandler(voteEngine, likeEngine, nil),
		WS:    NewWSHandler(hub, auth, cfg),
		Hub:   hub,
		Auth:  auth,
	})

	return &apiFixture{router: router, store: store, hub: hub}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func authHeaders(t *testing.T, userID string) map[string]string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + signed}
}

func anonHeaders(token string) map[string]string {
	return map[string]string{"X-Anon-Token": token}
}

func (f *apiFixture) createPoll(t *testing.T, headers map[string]string) *models.Poll {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/v1/polls", map[string]interface{}{
		"title":   "Lunch options",
		"options": []string{"Pizza", "Sushi", "Tacos"},
	}, headers)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var poll models.Poll
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &poll))
	return &poll
}

func TestAPI_CreatePoll(t *testing.T) {
	f := newAPIFixture(t)

	poll := f.createPoll(t, anonHeaders("tok-1"))
	assert.Equal(t, "Lunch options", poll.Title)
	assert.Len(t, poll.Options, 3)
	assert.Equal(t, "lunch-options", poll.Slug)
}

func TestAPI_CreatePollValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/polls", map[string]interface{}{
		"title":   "Too small",
		"options": []string{"Only"},
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/polls", map[string]interface{}{
		"options": []string{"A", "B"},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_GetPoll(t *testing.T) {
	f := newAPIFixture(t)
	poll := f.createPoll(t, nil)

	rec := f.do(t, http.MethodGet, "/api/v1/polls/"+poll.ID, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/polls/slug/"+poll.Slug, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/polls/nonexistent", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_UpdatePollAuthorization(t *testing.T) {
	f := newAPIFixture(t)
	poll := f.createPoll(t, authHeaders(t, "author-1"))

	body := map[string]interface{}{"title": "Renamed"}

	rec := f.do(t, http.MethodPatch, "/api/v1/polls/"+poll.ID, body, authHeaders(t, "intruder"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPatch, "/api/v1/polls/"+poll.ID, body, authHeaders(t, "author-1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	var updated models.Poll
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "Renamed", updated.Title)
}

func TestAPI_CastVote(t *testing.T) {
	f := newAPIFixture(t)
	poll := f.createPoll(t, nil)

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/polls/%s/votes", poll.ID),
		map[string]string{"option_id": poll.Options[0].ID}, anonHeaders("voter-1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result voting.VoteResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Poll.TotalVotes)

	// Duplicate from the same anonymous token conflicts.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/polls/%s/votes", poll.ID),
		map[string]string{"option_id": poll.Options[1].ID}, anonHeaders("voter-1"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// A different token is a different voter.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/polls/%s/votes", poll.ID),
		map[string]string{"option_id": poll.Options[1].ID}, anonHeaders("voter-2"))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestAPI_CastVoteOnExpiredPoll(t *testing.T) {
	f := newAPIFixture(t)
	poll := f.createPoll(t, nil)

	stored, err := f.store.GetPoll(httptest.NewRequest("GET", "/", nil).Context(), poll.ID)
	require.NoError(t, err)
	past := time.Now().UTC().Add(-time.Hour)
	stored.ExpiresAt = &past
	require.NoError(t, f.store.UpdatePoll(httptest.NewRequest("GET", "/", nil).Context(), stored))

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/polls/%s/votes", poll.ID),
		map[string]string{"option_id": poll.Options[0].ID}, anonHeaders("tok"))
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestAPI_VoterStatusAndChangeVote(t *testing.T) {
	f := newAPIFixture(t)
	poll := f.createPoll(t, nil)
	headers := anonHeaders("voter-s")

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/polls/%s/votes", poll.ID),
		map[string]string{"option_id": poll.Options[0].ID}, headers)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/polls/%s/votes/me", poll.ID), nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	var status voting.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.HasVoted)

	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/polls/%s/votes", poll.ID),
		map[string]string{"option_id": poll.Options[1].ID}, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	var result voting.VoteResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Poll.TotalVotes)
	assert.Equal(t, 1, result.Poll.Options[1].VoteCount)
}

func TestAPI_ToggleLike(t *testing.T) {
	f := newAPIFixture(t)
	poll := f.createPoll(t, nil)
	headers := anonHeaders("liker-1")

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/polls/%s/like", poll.ID), nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	var result voting.ToggleResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "liked", result.Action)
	assert.Equal(t, 1, result.LikesCount)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/polls/%s/like", poll.ID), nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "unliked", result.Action)
	assert.Equal(t, 0, result.LikesCount)
}

func TestAPI_OptionManagement(t *testing.T) {
	f := newAPIFixture(t)
	headers := authHeaders(t, "author-9")
	poll := f.createPoll(t, headers)

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/polls/%s/options", poll.ID),
		map[string]string{"text": "Ramen"}, headers)
	require.Equal(t, http.StatusCreated, rec.Code)

	var opt models.Option
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &opt))
	assert.Equal(t, 3, opt.Position)

	rec = f.do(t, http.MethodDelete,
		fmt.Sprintf("/api/v1/polls/%s/options/%s", poll.ID, opt.ID), nil, headers)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Anonymous callers cannot edit options.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/polls/%s/options", poll.ID),
		map[string]string{"text": "Sneaky"}, anonHeaders("tok"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_PollStats(t *testing.T) {
	f := newAPIFixture(t)
	poll := f.createPoll(t, nil)

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/polls/%s/votes", poll.ID),
		map[string]string{"option_id": poll.Options[0].ID}, anonHeaders("stats-voter"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/polls/%s/stats", poll.ID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var stats pollStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, poll.ID, stats.PollID)
	assert.Equal(t, 1, stats.TotalVotes)
	require.Len(t, stats.Options, 3)
	assert.Equal(t, 1, stats.Options[0].VoteCount)
	assert.InDelta(t, 100.0, stats.Options[0].Percentage, 0.01)
	assert.Equal(t, 0, stats.Options[1].VoteCount)
}

func TestAPI_HealthAndStats(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/stats", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
