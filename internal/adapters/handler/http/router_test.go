package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	handler "github.com/vncsmyrnk/livepoll/internal/adapters/handler/http"
	"github.com/vncsmyrnk/livepoll/internal/adapters/identity/jwtauth"
	"github.com/vncsmyrnk/livepoll/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/services"
)

const secret = "test-secret"

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func setupRouter(t *testing.T) http.Handler {
	t.Helper()
	store := memory.NewStore()
	projector := services.NewResultProjector(store.Polls(), services.ProjectorOptions{
		Interval:  10 * time.Millisecond,
		KeepAlive: time.Hour,
		Logger:    discard,
	})
	return handler.NewHandler(handler.Handlers{
		Polls:   handler.NewPollHandler(services.NewPollService(store.Polls(), discard), discard),
		Votes:   handler.NewVoteHandler(services.NewVoteService(store, discard), discard),
		Streams: handler.NewStreamHandler(projector, discard),
	}, jwtauth.NewVerifier(secret), []string{"http://localhost:3000"})
}

func token(t *testing.T, principalID string) string {
	t.Helper()
	tok, err := jwtauth.NewVerifier(secret).Issue(principalID, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, h http.Handler, method, path, principalID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if principalID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, principalID))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createPoll(t *testing.T, h http.Handler, creator string, options ...string) domain.Poll {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/polls", creator, map[string]any{
		"question": "Best color?",
		"options":  options,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[domain.Poll](t, rec)
}

func vote(t *testing.T, h http.Handler, route string, poll domain.Poll, user string, option int) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, h, http.MethodPost, "/api/polls/"+poll.ID.String()+"/"+route, user, map[string]string{
		"option_id": poll.Options[option].ID.String(),
	})
}

func TestCreatePoll(t *testing.T) {
	h := setupRouter(t)

	poll := createPoll(t, h, "alice", " Red ", "Blue", " ")
	assert.Equal(t, "Best color?", poll.Question)
	assert.Equal(t, "alice", poll.CreatorID)
	require.Len(t, poll.Options, 2)
	assert.Equal(t, "Red", poll.Options[0].Text)
	assert.False(t, poll.IsClosed)

	rec := do(t, h, http.MethodPost, "/api/polls", "alice", map[string]any{"question": "Q?", "options": []string{"only"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[errorBody](t, rec).Error)

	rec = do(t, h, http.MethodPost, "/api/polls", "alice", map[string]any{"question": "Q?", "options": []string{"A", "B", "A"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "poll options must be unique", decode[errorBody](t, rec).Message)

	req := httptest.NewRequest(http.MethodPost, "/api/polls", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+token(t, "alice"))
	bad := httptest.NewRecorder()
	h.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Equal(t, "BAD_REQUEST", decode[errorBody](t, bad).Error)
}

func TestAuthRequired(t *testing.T) {
	h := setupRouter(t)
	poll := createPoll(t, h, "alice", "A", "B")
	id := poll.ID.String()

	routes := []struct{ method, path string }{
		{http.MethodPost, "/api/polls"},
		{http.MethodGet, "/api/polls/user"},
		{http.MethodPost, "/api/polls/" + id + "/vote"},
		{http.MethodPost, "/api/polls/" + id + "/change-vote"},
		{http.MethodGet, "/api/polls/" + id + "/vote/check"},
		{http.MethodPost, "/api/polls/" + id + "/close"},
		{http.MethodPost, "/api/polls/" + id + "/reset"},
	}
	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			rec := do(t, h, route.method, route.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "UNAUTHORIZED", decode[errorBody](t, rec).Error)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/polls/user", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthCookie(t *testing.T) {
	h := setupRouter(t)
	createPoll(t, h, "alice", "A", "B")

	req := httptest.NewRequest(http.MethodGet, "/api/polls/user", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token(t, "alice")})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Poll](t, rec), 1)
}

func TestGetAndListPolls(t *testing.T) {
	h := setupRouter(t)
	p := createPoll(t, h, "alice", "A", "B")
	createPoll(t, h, "bob", "A", "B")

	rec := do(t, h, http.MethodGet, "/api/polls/"+p.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, p.ID, decode[domain.Poll](t, rec).ID)

	rec = do(t, h, http.MethodGet, "/api/polls/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[errorBody](t, rec).Error)

	rec = do(t, h, http.MethodGet, "/api/polls/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/polls", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Poll](t, rec), 2)

	rec = do(t, h, http.MethodGet, "/api/polls?creator=bob", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Poll](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/api/polls?closed=true", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/polls?closed=false", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Poll](t, rec), 2, "closed=false does not filter")

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/polls/"+p.ID.String()+"/close", "alice", nil).Code)
	rec = do(t, h, http.MethodGet, "/api/polls?closed=true", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	closedPolls := decode[[]domain.Poll](t, rec)
	require.Len(t, closedPolls, 1)
	assert.Equal(t, p.ID, closedPolls[0].ID)
	rec = do(t, h, http.MethodGet, "/api/polls?closed=false", "", nil)
	assert.Len(t, decode[[]domain.Poll](t, rec), 2)

	rec = do(t, h, http.MethodGet, "/api/polls?closed=maybe", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/polls/user", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[[]domain.Poll](t, rec)
	require.Len(t, mine, 1)
	assert.Equal(t, p.ID, mine[0].ID)
}

func TestVotingFlow(t *testing.T) {
	h := setupRouter(t)
	poll := createPoll(t, h, "U1", "Red", "Blue")
	id := poll.ID.String()

	rec := vote(t, h, "vote", poll, "U2", 0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[domain.Poll](t, rec)
	assert.EqualValues(t, 1, got.TotalVotes)
	assert.EqualValues(t, 1, got.Options[0].Votes)

	rec = vote(t, h, "vote", poll, "U2", 1)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", decode[errorBody](t, rec).Error)

	rec = do(t, h, http.MethodGet, "/api/polls/"+id+"/vote/check", "U2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[domain.VoteStatus](t, rec)
	assert.True(t, status.HasVoted)
	assert.Equal(t, poll.Options[0].ID, *status.OptionID)

	rec = vote(t, h, "change-vote", poll, "U2", 1)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[domain.Poll](t, rec)
	assert.Zero(t, got.Options[0].Votes)
	assert.EqualValues(t, 1, got.Options[1].Votes)

	rec = vote(t, h, "change-vote", poll, "U2", 1)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = vote(t, h, "change-vote", poll, "U3", 0)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/polls/"+id+"/vote", "U3", map[string]string{"option_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid option id", decode[errorBody](t, rec).Message)

	rec = do(t, h, http.MethodPost, "/api/polls/"+id+"/vote", "U3", map[string]string{"option_id": uuid.NewString()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/polls/"+id+"/close", "U2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decode[errorBody](t, rec).Error)

	rec = do(t, h, http.MethodPost, "/api/polls/"+id+"/close", "U1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[domain.Poll](t, rec).IsClosed)

	rec = vote(t, h, "vote", poll, "U3", 0)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/polls/"+id+"/reset", "U1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[domain.Poll](t, rec)
	assert.False(t, got.IsClosed)
	assert.Zero(t, got.TotalVotes)

	rec = do(t, h, http.MethodGet, "/api/polls/"+id+"/vote/check", "U2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"has_voted":false}`, rec.Body.String())
}

type sseEvent struct {
	name string
	data string
}

func readEvent(t *testing.T, scanner *bufio.Scanner) (sseEvent, bool) {
	t.Helper()
	var ev sseEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if ev.name != "" {
				return ev, true
			}
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			ev.data = strings.TrimPrefix(line, "data:")
		}
	}
	return ev, false
}

func TestStreamPoll(t *testing.T) {
	h := setupRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	poll := createPoll(t, h, "U1", "Red", "Blue")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/polls/"+poll.ID.String()+"/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	scanner := bufio.NewScanner(resp.Body)

	ev, ok := readEvent(t, scanner)
	require.True(t, ok)
	assert.Equal(t, "poll", ev.name)
	var snap domain.Poll
	require.NoError(t, json.Unmarshal([]byte(ev.data), &snap))
	assert.Zero(t, snap.TotalVotes)

	require.Equal(t, http.StatusOK, vote(t, h, "vote", poll, "U2", 1).Code)
	ev, ok = readEvent(t, scanner)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal([]byte(ev.data), &snap))
	assert.EqualValues(t, 1, snap.TotalVotes)
	assert.EqualValues(t, 1, snap.Options[1].Votes)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/polls/"+poll.ID.String()+"/close", "U1", nil).Code)
	ev, ok = readEvent(t, scanner)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal([]byte(ev.data), &snap))
	assert.True(t, snap.IsClosed)

	_, ok = readEvent(t, scanner)
	assert.False(t, ok, "stream ends once the poll is closed")
}

func TestStreamPoll_NotFound(t *testing.T) {
	h := setupRouter(t)
	rec := do(t, h, http.MethodGet, "/api/polls/"+uuid.NewString()+"/stream", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamPolls(t *testing.T) {
	h := setupRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	first := createPoll(t, h, "alice", "A", "B")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/polls/stream?creator=alice", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	scanner := bufio.NewScanner(resp.Body)

	ev, ok := readEvent(t, scanner)
	require.True(t, ok)
	var snap domain.Poll
	require.NoError(t, json.Unmarshal([]byte(ev.data), &snap))
	assert.Equal(t, first.ID, snap.ID)

	createPoll(t, h, "bob", "A", "B")
	second := createPoll(t, h, "alice", "A", "B")
	ev, ok = readEvent(t, scanner)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal([]byte(ev.data), &snap))
	assert.Equal(t, second.ID, snap.ID, "polls outside the filter are never sent")
}
