package https_server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"presence_chat_server/internal/config"
	"presence_chat_server/internal/gateway/websocket"
	"presence_chat_server/internal/handler"
	"presence_chat_server/internal/infrastructure/middleware"
	"presence_chat_server/internal/service/auth"
	"presence_chat_server/internal/service/chat"
	"presence_chat_server/pkg/errorx"
	"presence_chat_server/pkg/util/jwt"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var transOnce sync.Once

type mapCache struct {
	mu     sync.Mutex
	values map[string]string
}

func (c *mapCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *mapCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key], nil
}

func (c *mapCache) Delete(context.Context, string) error                       { return nil }
func (c *mapCache) AddToSet(context.Context, string, ...interface{}) error      { return nil }
func (c *mapCache) GetSetMembers(context.Context, string) ([]string, error)     { return nil, nil }
func (c *mapCache) RemoveFromSet(context.Context, string, ...interface{}) error { return nil }

type nopConn struct{}

func (nopConn) Send(chat.OutboundEvent) error { return nil }
func (nopConn) Close() error                  { return nil }

type envelope struct {
	Code int             `json:"code"`
	Msg  json.RawMessage `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type testServer struct {
	engine *gin.Engine
	coord  *chat.Coordinator
	tokens *jwt.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	transOnce.Do(func() { require.NoError(t, handler.InitTrans("en")) })

	tokens := jwt.NewManager("secret", 60)
	authSvc := auth.NewAuthService(tokens, &mapCache{values: map[string]string{}})
	coord := chat.NewCoordinator(chat.Deps{
		Verifier: authSvc,
		Principals: chat.NewMemoryPrincipalStore(
			chat.Principal{ID: "user1", DisplayName: "john_doe"},
			chat.Principal{ID: "user2", DisplayName: "jane_smith"},
		),
	})
	require.NoError(t, coord.SeedRooms([]chat.RoomSpec{
		{ID: "general", Name: "General", CreatedBy: "user1", Participants: []string{"user2"}},
		{ID: "secret", Name: "Secret", CreatedBy: "user2", IsPrivate: true},
	}))

	gw := websocket.NewGateway(coord, websocket.Options{
		SendBufferSize: 8, MaxFrameBytes: 1024,
		PongWait: time.Second, PingPeriod: 500 * time.Millisecond, WriteWait: time.Second,
	})
	handlers := handler.NewHandlers(coord, gw, authSvc, gw)
	engine := Init(&config.MainConfig{Mode: "dev"}, handlers, middleware.JWTAuth(authSvc))
	return &testServer{engine: engine, coord: coord, tokens: tokens}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := s.tokens.GenerateAccessToken(userID, "", "")
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, errorx.CodeSuccess, env.Code)
	assert.JSONEq(t, `{"status":"ok","connections":0}`, string(env.Data))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/rooms", "/profile", "/users", "/users/online", "/rooms/general/messages"} {
		code, _ := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, code, path)
	}
}

func TestRoomsAndHistory(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	tok1 := s.token(t, "user1")

	// 通过真实会话写入三条消息
	s.coord.Connect("s1", nopConn{})
	_, err := s.coord.Authenticate(ctx, "s1", tok1)
	require.NoError(t, err)
	_, err = s.coord.JoinRoom(ctx, "s1", "general")
	require.NoError(t, err)
	for _, body := range []string{"one", "two", "three"} {
		_, err := s.coord.SendMessage(ctx, "s1", "general", body, chat.MessageText)
		require.NoError(t, err)
	}

	code, env := s.do(t, http.MethodGet, "/rooms", tok1, nil)
	require.Equal(t, http.StatusOK, code)
	var rooms []chat.Room
	require.NoError(t, json.Unmarshal(env.Data, &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "general", rooms[0].ID)

	_, env = s.do(t, http.MethodGet, "/rooms/general/messages?limit=2", tok1, nil)
	require.Equal(t, errorx.CodeSuccess, env.Code)
	var msgs []chat.Message
	require.NoError(t, json.Unmarshal(env.Data, &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "three", msgs[0].Body)
	assert.Equal(t, "two", msgs[1].Body)

	_, env = s.do(t, http.MethodGet, "/rooms/general/messages?limit=-1", tok1, nil)
	assert.Equal(t, errorx.CodeInvalidParam, env.Code)

	_, env = s.do(t, http.MethodGet, "/rooms/secret/messages", tok1, nil)
	assert.Equal(t, errorx.CodeNotAMember, env.Code)

	_, env = s.do(t, http.MethodGet, "/rooms/nowhere/messages", tok1, nil)
	assert.Equal(t, errorx.CodeRoomNotFound, env.Code)
}

func TestCreateAndLeaveRoom(t *testing.T) {
	s := newTestServer(t)
	tok2 := s.token(t, "user2")

	_, env := s.do(t, http.MethodPost, "/rooms", tok2, map[string]any{"kind": "channel"})
	assert.Equal(t, errorx.CodeInvalidParam, env.Code)

	_, env = s.do(t, http.MethodPost, "/rooms", tok2, map[string]any{
		"name": "Design", "participants": []string{"user1"}, "isPrivate": true,
	})
	require.Equal(t, errorx.CodeSuccess, env.Code)
	var room chat.Room
	require.NoError(t, json.Unmarshal(env.Data, &room))
	assert.Equal(t, "user2", room.CreatedBy)
	assert.Equal(t, []string{"user2", "user1"}, room.Participants)
	assert.Equal(t, chat.RoomChannel, room.Kind)

	_, env = s.do(t, http.MethodDelete, "/rooms/"+room.ID+"/membership", tok2, nil)
	require.Equal(t, errorx.CodeSuccess, env.Code)
	_, env = s.do(t, http.MethodDelete, "/rooms/"+room.ID+"/membership", tok2, nil)
	assert.Equal(t, errorx.CodeNotAMember, env.Code)
}

func TestProfileOnlineAndLogout(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	tok1 := s.token(t, "user1")

	_, env := s.do(t, http.MethodGet, "/profile", tok1, nil)
	require.Equal(t, errorx.CodeSuccess, env.Code)
	var me chat.Principal
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "john_doe", me.DisplayName)
	assert.Equal(t, chat.StatusOffline, me.Status)

	s.coord.Connect("s1", nopConn{})
	_, err := s.coord.Authenticate(ctx, "s1", tok1)
	require.NoError(t, err)

	_, env = s.do(t, http.MethodGet, "/users/online", tok1, nil)
	var online []chat.Principal
	require.NoError(t, json.Unmarshal(env.Data, &online))
	require.Len(t, online, 1)
	assert.Equal(t, chat.StatusOnline, online[0].Status)

	_, env = s.do(t, http.MethodPost, "/auth/logout", tok1, nil)
	require.Equal(t, errorx.CodeSuccess, env.Code)

	code, _ := s.do(t, http.MethodGet, "/profile", tok1, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	// 已注销的 token 也不能再认证新的会话
	s.coord.Connect("s2", nopConn{})
	_, err = s.coord.Authenticate(ctx, "s2", tok1)
	assert.Equal(t, errorx.CodeInvalidToken, errorx.GetCode(err))
}

func TestJoinRoomMembership(t *testing.T) {
	s := newTestServer(t)
	tok1 := s.token(t, "user1")
	tok2 := s.token(t, "user2")

	_, env := s.do(t, http.MethodPost, "/rooms", tok1, map[string]any{"name": "Lobby"})
	require.Equal(t, errorx.CodeSuccess, env.Code)
	var lobby chat.Room
	require.NoError(t, json.Unmarshal(env.Data, &lobby))

	for i := 0; i < 2; i++ {
		_, env = s.do(t, http.MethodPost, "/rooms/"+lobby.ID+"/join", tok2, nil)
		require.Equal(t, errorx.CodeSuccess, env.Code)
		var joined chat.Room
		require.NoError(t, json.Unmarshal(env.Data, &joined))
		assert.Equal(t, []string{"user1", "user2"}, joined.Participants)
	}

	_, env = s.do(t, http.MethodGet, "/rooms", tok2, nil)
	var rooms []chat.Room
	require.NoError(t, json.Unmarshal(env.Data, &rooms))
	ids := []string{}
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"general", "secret", lobby.ID}, ids)

	_, env = s.do(t, http.MethodPost, "/rooms/secret/join", tok1, nil)
	assert.Equal(t, errorx.CodeNotAMember, env.Code)
	_, env = s.do(t, http.MethodPost, "/rooms/nowhere/join", tok1, nil)
	assert.Equal(t, errorx.CodeRoomNotFound, env.Code)
}

func TestListUsers(t *testing.T) {
	s := newTestServer(t)
	tok1 := s.token(t, "user1")

	s.coord.Connect("s1", nopConn{})
	_, err := s.coord.Authenticate(context.Background(), "s1", tok1)
	require.NoError(t, err)

	_, env := s.do(t, http.MethodGet, "/users", tok1, nil)
	require.Equal(t, errorx.CodeSuccess, env.Code)
	var users []chat.Principal
	require.NoError(t, json.Unmarshal(env.Data, &users))
	require.Len(t, users, 2)
	assert.Equal(t, "user1", users[0].ID)
	assert.Equal(t, chat.StatusOnline, users[0].Status)
	assert.Equal(t, "user2", users[1].ID)
	assert.Equal(t, chat.StatusOffline, users[1].Status)
}
