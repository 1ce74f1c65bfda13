package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"messenger/internal/apperr"
	"messenger/internal/auth"
	"messenger/internal/chat"
	"messenger/internal/logging"
	"messenger/internal/user"
	"messenger/internal/websocket"
	"messenger/mocks"
	"messenger/pkg/database"
	"messenger/pkg/models"
)

var testSecret = []byte("router-test-secret")

type fakeNotifier struct{ got []string }

func (f *fakeNotifier) Broadcast(kind, message string) int {
	f.got = append(f.got, kind+":"+message)
	return 1
}

type testEnv struct {
	t        *testing.T
	router   *gin.Engine
	db       *sql.DB
	feed     chan models.MessageEvent
	notifier *fakeNotifier
}

func newTestEnv(t *testing.T, adminIDs ...int64) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	user.HashCost = bcrypt.MinCost

	db, err := database.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	log := logging.Discard()
	hub := websocket.NewHub(log)
	go hub.Run(ctx)

	env := &testEnv{
		t:        t,
		db:       db,
		feed:     make(chan models.MessageEvent, 16),
		notifier: &fakeNotifier{},
	}
	env.router = NewRouter(Deps{
		DB:       db,
		Chats:    chat.NewService(chat.NewRepo(db), log),
		Hub:      hub,
		Feed:     env.feed,
		Notifier: env.notifier,
		Secret:   testSecret,
		TokenTTL: time.Hour,
		AdminIDs: adminIDs,
		Log:      log,
	})
	return env
}

func (e *testEnv) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// signup registers and logs in, returning the user id and token.
func (e *testEnv) signup(username, name string) (int64, string) {
	e.t.Helper()
	w := e.do(http.MethodPost, "/register", gin.H{"username": username, "password": "pw-" + username, "name": name}, "")
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	var reg struct {
		ID int64 `json:"id"`
	}
	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &reg))

	w = e.do(http.MethodPost, "/login", gin.H{"username": username, "password": "pw-" + username}, "")
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &login))
	require.NotEmpty(e.t, login.Token)
	return reg.ID, login.Token
}

type chatResp struct {
	Message string `json:"message"`
	ChatID  int64  `json:"chatId"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.signup("alice", "Alice")

	t.Run("duplicate username is a conflict", func(t *testing.T) {
		w := env.do(http.MethodPost, "/register", gin.H{"username": "alice", "password": "x", "name": "A"}, "")
		require.Equal(t, http.StatusConflict, w.Code)
		require.JSONEq(t, `{"error":"username already taken"}`, w.Body.String())
	})

	t.Run("missing name is rejected", func(t *testing.T) {
		w := env.do(http.MethodPost, "/register", gin.H{"username": "zed", "password": "x"}, "")
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		w := env.do(http.MethodPost, "/login", gin.H{"username": "alice", "password": "nope"}, "")
		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.Contains(t, w.Body.String(), "invalid username or password")
	})

	t.Run("login sets an http-only cookie", func(t *testing.T) {
		w := env.do(http.MethodPost, "/login", gin.H{"username": "alice", "password": "pw-alice"}, "")
		require.Equal(t, http.StatusOK, w.Code)
		cookie := w.Result().Cookies()[0]
		require.Equal(t, auth.CookieName, cookie.Name)
		require.True(t, cookie.HttpOnly)
		require.NotEmpty(t, cookie.Value)
	})

	t.Run("logout expires the cookie", func(t *testing.T) {
		w := env.do(http.MethodPost, "/logout", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		cookie := w.Result().Cookies()[0]
		require.Equal(t, auth.CookieName, cookie.Name)
		require.Empty(t, cookie.Value)
		require.Negative(t, cookie.MaxAge)
	})

	t.Run("protected routes", func(t *testing.T) {
		w := env.do(http.MethodGet, "/chats", nil, "")
		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.Empty(t, w.Body.String())

		w = env.do(http.MethodGet, "/chats", nil, "not-a-jwt")
		require.Equal(t, http.StatusForbidden, w.Code)
		require.Empty(t, w.Body.String())
	})
}

func TestCreateChat_AliceAndBob(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceTok := env.signup("alice", "Alice")
	bobID, bobTok := env.signup("bob", "Bob")

	w := env.do(http.MethodPost, "/createChat", gin.H{"friendId": bobID}, aliceTok)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[chatResp](t, w)
	require.Positive(t, first.ChatID)

	w = env.do(http.MethodPost, "/createChat", gin.H{"friendId": bobID}, aliceTok)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, first.ChatID, decode[chatResp](t, w).ChatID)

	w = env.do(http.MethodPost, "/createChat", gin.H{"friendId": aliceID}, bobTok)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, first.ChatID, decode[chatResp](t, w).ChatID)

	t.Run("self chat", func(t *testing.T) {
		w := env.do(http.MethodPost, "/createChat", gin.H{"friendId": aliceID}, aliceTok)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown friend", func(t *testing.T) {
		w := env.do(http.MethodPost, "/createChat", gin.H{"friendId": bobID + 50}, aliceTok)
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing friendId", func(t *testing.T) {
		w := env.do(http.MethodPost, "/createChat", gin.H{}, aliceTok)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("chat list shows the friend's name", func(t *testing.T) {
		w := env.do(http.MethodGet, "/chats", nil, aliceTok)
		require.Equal(t, http.StatusOK, w.Code)
		chats := decode[[]models.ChatSummary](t, w)
		require.Len(t, chats, 1)
		require.Equal(t, "Bob", chats[0].Name)
		require.Nil(t, chats[0].LastMessage)
	})
}

func TestMessages(t *testing.T) {
	env := newTestEnv(t)
	_, aliceTok := env.signup("alice", "Alice")
	bobID, _ := env.signup("bob", "Bob")
	_, eveTok := env.signup("eve", "Eve")

	w := env.do(http.MethodPost, "/createChat", gin.H{"friendId": bobID}, aliceTok)
	require.Equal(t, http.StatusCreated, w.Code)
	chatID := decode[chatResp](t, w).ChatID
	path := "/messages/" + strconv.FormatInt(chatID, 10)

	t.Run("empty text is rejected and nothing is stored", func(t *testing.T) {
		for _, text := range []string{"", "   "} {
			w := env.do(http.MethodPost, "/message", gin.H{"chatId": chatID, "text": text}, aliceTok)
			require.Equal(t, http.StatusBadRequest, w.Code)
		}
		w := env.do(http.MethodGet, path, nil, aliceTok)
		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `[]`, w.Body.String())
	})

	t.Run("post then list", func(t *testing.T) {
		req := require.New(t)
		var ids []int64
		for _, text := range []string{"one", "two", "three"} {
			w := env.do(http.MethodPost, "/message", gin.H{"chatId": chatID, "text": text}, aliceTok)
			req.Equal(http.StatusCreated, w.Code, w.Body.String())
			resp := decode[struct {
				ID        int64     `json:"id"`
				Timestamp time.Time `json:"timestamp"`
			}](t, w)
			ids = append(ids, resp.ID)

			evt := <-env.feed
			req.Equal(resp.ID, evt.ID)
			req.Equal(text, evt.Text)
			req.Equal(resp.Timestamp.UnixMilli(), evt.Timestamp)
		}

		w := env.do(http.MethodGet, path, nil, aliceTok)
		req.Equal(http.StatusOK, w.Code)
		msgs := decode[[]models.Message](t, w)
		req.Len(msgs, 3)
		for i, m := range msgs {
			req.Equal(ids[i], m.ID)
			req.Equal("Alice", m.SenderName)
			if i > 0 {
				req.False(m.Timestamp.Before(msgs[i-1].Timestamp))
			}
		}

		w = env.do(http.MethodGet, path+"?limit=2", nil, aliceTok)
		req.Equal(http.StatusOK, w.Code)
		page := decode[[]models.Message](t, w)
		req.Len(page, 2)
		req.Equal(ids[1], page[0].ID)
		req.Equal(ids[2], page[1].ID)
	})

	t.Run("outsider cannot post", func(t *testing.T) {
		w := env.do(http.MethodPost, "/message", gin.H{"chatId": chatID, "text": "hi"}, eveTok)
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unknown chat", func(t *testing.T) {
		w := env.do(http.MethodPost, "/message", gin.H{"chatId": chatID + 99, "text": "hi"}, aliceTok)
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad chat id", func(t *testing.T) {
		w := env.do(http.MethodGet, "/messages/abc", nil, aliceTok)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestProfileAndSearch(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceTok := env.signup("alice", "Alice")
	_, _ = env.signup("alex", "Alex")

	w := env.do(http.MethodGet, "/user", nil, aliceTok)
	require.Equal(t, http.StatusOK, w.Code)
	p := decode[models.Profile](t, w)
	require.Equal(t, aliceID, p.ID)
	require.Equal(t, "alice", p.Username)

	w = env.do(http.MethodPut, "/user/profile", gin.H{"avatar": "a.png"}, aliceTok)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodPut, "/user/profile", gin.H{}, aliceTok)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/searchUsers?q=al", nil, aliceTok)
	require.Equal(t, http.StatusOK, w.Code)
	found := decode[[]models.Profile](t, w)
	require.Len(t, found, 1)
	require.Equal(t, "Alex", found[0].Name)

	w = env.do(http.MethodGet, "/searchUsers", nil, aliceTok)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `[]`, w.Body.String())
}

func TestAdminNotify(t *testing.T) {
	// ids start at 1 in a fresh database, so the first signup is the admin.
	env := newTestEnv(t, 1)
	opsID, tok := env.signup("ops", "Ops")
	require.Equal(t, int64(1), opsID)
	_, userTok := env.signup("mallory", "Mallory")

	t.Run("non-admin is forbidden", func(t *testing.T) {
		w := env.do(http.MethodPost, "/admin/notify", gin.H{"message": "free pizza"}, userTok)
		require.Equal(t, http.StatusForbidden, w.Code)
		require.Empty(t, env.notifier.got)
	})

	t.Run("anonymous is unauthorized", func(t *testing.T) {
		w := env.do(http.MethodPost, "/admin/notify", gin.H{"message": "free pizza"}, "")
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("admin broadcasts", func(t *testing.T) {
		w := env.do(http.MethodPost, "/admin/notify", gin.H{"message": "deploy at 5"}, tok)
		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `{"ok":true,"sent":1}`, w.Body.String())
		require.Equal(t, []string{"notification:deploy at 5"}, env.notifier.got)

		w = env.do(http.MethodPost, "/admin/notify", gin.H{"message": " "}, tok)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdminNotify_DisabledWithoutAdmins(t *testing.T) {
	env := newTestEnv(t)
	_, tok := env.signup("ops", "Ops")

	w := env.do(http.MethodPost, "/admin/notify", gin.H{"message": "hi"}, tok)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Empty(t, env.notifier.got)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestErrorMapping_WithMockedService(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mocks.NewMockIService(ctrl)
	log := logging.Discard()
	r := NewRouter(Deps{Chats: svc, Hub: websocket.NewHub(log), Secret: testSecret, TokenTTL: time.Hour, Log: log})
	tok, err := auth.SignJWT(testSecret, 5, "mock", time.Minute)
	require.NoError(t, err)

	call := func(method, path string, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("storage failures are hidden", func(t *testing.T) {
		svc.EXPECT().ListChatsFor(gomock.Any(), int64(5)).
			Return(nil, apperr.Storage("list chats", errors.New("disk I/O error")))

		w := call(http.MethodGet, "/chats", "")
		require.Equal(t, http.StatusInternalServerError, w.Code)
		require.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
	})

	t.Run("an existing chat answers 200", func(t *testing.T) {
		svc.EXPECT().FindOrCreatePrivateChat(gomock.Any(), int64(5), int64(6)).Return(int64(3), false, nil)

		w := call(http.MethodPost, "/createChat", `{"friendId":6}`)
		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `{"message":"chat exists","chatId":3}`, w.Body.String())
	})

	t.Run("paging parameters select the bounded read", func(t *testing.T) {
		svc.EXPECT().ListMessagesPage(gomock.Any(), int64(4), int64(10), 20).Return([]models.Message{}, nil)

		w := call(http.MethodGet, "/messages/4?before=10&limit=20", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `[]`, w.Body.String())
	})

	t.Run("no feed configured still answers 201", func(t *testing.T) {
		svc.EXPECT().PostMessage(gomock.Any(), int64(5), int64(4), "hi").
			Return(models.Message{ID: 1, ChatID: 4, SenderID: 5, Text: "hi", Timestamp: time.UnixMilli(1000).UTC()}, nil)

		w := call(http.MethodPost, "/message", `{"chatId":4,"text":"hi"}`)
		require.Equal(t, http.StatusCreated, w.Code)
	})
}
