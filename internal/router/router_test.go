package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/anonto42/campus-feed/backend/internal/middleware"
	"github.com/anonto42/campus-feed/backend/internal/repositories"
	"github.com/anonto42/campus-feed/backend/internal/store"
	"github.com/anonto42/campus-feed/backend/validators"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t *testing.T
	e *echo.Echo
}

func newTestServer(t *testing.T) *testServer {
	e := echo.New()
	e.Validator = validators.NewValidator()
	SetupMiddleware(e, zerolog.Nop())
	SetupRoutes(e, Dependencies{
		Store:             store.NewMemoryStore(),
		Queue:             repositories.NewMemoryReconcileRepository(),
		Auth:              middleware.JWTAuthMiddleware(testSecret),
		InstitutionDomain: "srit.ac.in",
		Logger:            zerolog.Nop(),
	})
	return &testServer{t: t, e: e}
}

func (s *testServer) do(method, path, userID, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		token, err := middleware.SignToken(testSecret, userID, "", time.Hour)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) register(userID, name string, year int) {
	body := `{"name":"` + name + `","email":"` + userID + `@srit.ac.in","branch":"CSE","year":` + strconv.Itoa(year) + `}`
	rec := s.do(http.MethodPost, "/api/v1/auth/register", userID, body)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.True(t, env.Success)
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestAPIRequiresToken(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/api/v1/posts", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegister(t *testing.T) {
	s := newTestServer(t)
	s.register("alice", "Alice", 3)

	rec := s.do(http.MethodGet, "/api/v1/profile", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var me struct {
		ID          string `json:"id"`
		IsSenior    bool   `json:"isSenior"`
		TotalPoints int64  `json:"totalPoints"`
	}
	decode(t, rec, &me)
	assert.Equal(t, "alice", me.ID)
	assert.True(t, me.IsSenior)
	assert.Zero(t, me.TotalPoints)

	again := s.do(http.MethodPost, "/api/v1/auth/register", "alice",
		`{"name":"Alice","email":"alice@srit.ac.in","branch":"CSE","year":3}`)
	assert.Equal(t, http.StatusConflict, again.Code)

	wrongDomain := s.do(http.MethodPost, "/api/v1/auth/register", "bob",
		`{"name":"Bob","email":"bob@gmail.com","branch":"CSE","year":1}`)
	assert.Equal(t, http.StatusBadRequest, wrongDomain.Code)

	badYear := s.do(http.MethodPost, "/api/v1/auth/register", "bob",
		`{"name":"Bob","email":"bob@srit.ac.in","branch":"CSE","year":7}`)
	assert.Equal(t, http.StatusBadRequest, badYear.Code)
}

func TestPostLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.register("alice", "Alice", 3)
	s.register("bob", "Bob", 1)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/users/alice/follow", "bob", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/users/bob/follow", "bob", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/v1/users/ghost/follow", "bob", "").Code)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/posts", "alice", `{"content":"   "}`).Code)

	rec := s.do(http.MethodPost, "/api/v1/posts", "alice", `{"content":"hello campus"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Post struct {
			ID string `json:"id"`
		} `json:"post"`
	}
	decode(t, rec, &created)
	postID := created.Post.ID
	require.NotEmpty(t, postID)

	rec = s.do(http.MethodGet, "/api/v1/notifications", "bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var inbox struct {
		UnreadCount   int `json:"unreadCount"`
		Notifications []struct {
			PostID  string `json:"postId"`
			Message string `json:"message"`
		} `json:"notifications"`
	}
	decode(t, rec, &inbox)
	require.Equal(t, 1, inbox.UnreadCount)
	assert.Equal(t, postID, inbox.Notifications[0].PostID)
	assert.Equal(t, "Alice shared a new post.", inbox.Notifications[0].Message)

	rec = s.do(http.MethodPut, "/api/v1/notifications/read-all", "bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, "/api/v1/notifications", "bob", "")
	decode(t, rec, &inbox)
	assert.Zero(t, inbox.UnreadCount)

	rec = s.do(http.MethodPost, "/api/v1/posts/"+postID+"/likes", "bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var like struct {
		Likes int `json:"likes"`
	}
	decode(t, rec, &like)
	assert.Equal(t, 1, like.Likes)

	rec = s.do(http.MethodPost, "/api/v1/posts/"+postID+"/comments", "bob", `{"text":"nice"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var comment struct {
		ID string `json:"id"`
	}
	decode(t, rec, &comment)

	rec = s.do(http.MethodPost, "/api/v1/posts/"+postID+"/comments", "alice",
		`{"text":"thanks","parentCommentId":"`+comment.ID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/posts/"+postID+"/comments", "alice",
		`{"text":"lost","parentCommentId":"missing"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/posts/"+postID, "bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Thread []struct {
			Replies []json.RawMessage `json:"replies"`
		} `json:"thread"`
	}
	decode(t, rec, &view)
	require.Len(t, view.Thread, 1)
	assert.Len(t, view.Thread[0].Replies, 1)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, "/api/v1/posts/"+postID+"/comments/"+comment.ID, "alice", "").Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/v1/posts/"+postID+"/comments/"+comment.ID, "bob", "").Code)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, "/api/v1/posts/"+postID, "bob", "").Code)

	rec = s.do(http.MethodGet, "/api/v1/leaderboard", "bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var board []struct {
		ID          string `json:"id"`
		TotalPoints int64  `json:"totalPoints"`
	}
	decode(t, rec, &board)
	require.Len(t, board, 2)
	assert.Equal(t, "alice", board[0].ID)
	assert.Equal(t, int64(7), board[0].TotalPoints)

	assert.Equal(t, http.StatusOK, s.do(http.MethodDelete, "/api/v1/posts/"+postID, "alice", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/posts/"+postID, "bob", "").Code)

	rec = s.do(http.MethodGet, "/api/v1/users/alice", "bob", "")
	var alice struct {
		TotalPoints int64 `json:"totalPoints"`
	}
	decode(t, rec, &alice)
	assert.Equal(t, int64(5), alice.TotalPoints)
}

func TestFollowLists(t *testing.T) {
	s := newTestServer(t)
	s.register("alice", "Alice", 2)
	s.register("bob", "Bob", 1)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/users/alice/follow", "bob", "").Code)

	rec := s.do(http.MethodGet, "/api/v1/users/alice/followers", "bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var followers []struct {
		ID string `json:"id"`
	}
	decode(t, rec, &followers)
	require.Len(t, followers, 1)
	assert.Equal(t, "bob", followers[0].ID)

	require.Equal(t, http.StatusOK, s.do(http.MethodDelete, "/api/v1/users/alice/follow", "bob", "").Code)
	rec = s.do(http.MethodGet, "/api/v1/users/bob/following", "bob", "")
	var following []json.RawMessage
	decode(t, rec, &following)
	assert.Empty(t, following)
}
