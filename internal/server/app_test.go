package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leoalsantos/custosmart-chat/internal/auth"
	"github.com/leoalsantos/custosmart-chat/internal/config"
	"github.com/leoalsantos/custosmart-chat/internal/stats"
	"github.com/leoalsantos/custosmart-chat/internal/testutil"
	"github.com/leoalsantos/custosmart-chat/internal/transport"
	"github.com/leoalsantos/custosmart-chat/internal/types"
)

var testSecret = base64.StdEncoding.EncodeToString([]byte("app-test-secret"))

type testApp struct {
	app    *ChatApp
	store  *Store
	hub    *Hub
	server *httptest.Server
	cfg    *config.ServerConfig
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	cfg, err := config.NewServerConfig("127.0.0.1:0", testSecret, []string{"*"}, t.TempDir())
	require.NoError(t, err)

	logger := testutil.TestLogger(t)
	store := NewStore()
	hub := NewHub(logger, store, &stats.MockStatsUpdater{})
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	app, err := NewChatApp(http.NewServeMux(), logger, hub, store, cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	return &testApp{app: app, store: store, hub: hub, server: srv, cfg: cfg}
}

func (ta *testApp) login(t *testing.T, username string) (string, types.ChatUser) {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"username": username})
	resp, err := http.Post(ta.server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var lr loginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lr))
	require.NotEmpty(t, lr.Token)
	return lr.Token, lr.User
}

func (ta *testApp) doAuthed(t *testing.T, method, path, token string, body io.Reader) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, ta.server.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestLogin(t *testing.T) {
	ta := newTestApp(t)

	token, user := ta.login(t, "alice")
	assert.Equal(t, "alice", user.Username)
	assert.NotZero(t, user.Id)

	identity, err := auth.ParseToken(ta.cfg.SigningKey, token)
	require.NoError(t, err)
	assert.Equal(t, user.Id, identity.UserId)
	assert.Equal(t, "alice", identity.Username)

	// logging in again returns the same user
	_, again := ta.login(t, "alice")
	assert.Equal(t, user.Id, again.Id)
}

func TestLoginRequiresUsername(t *testing.T) {
	ta := newTestApp(t)

	resp, err := http.Post(ta.server.URL+"/api/auth/login", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthMiddleware(t *testing.T) {
	ta := newTestApp(t)

	t.Run("missing token", func(t *testing.T) {
		resp, err := http.Get(ta.server.URL + "/api/chat/rooms")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("garbage token", func(t *testing.T) {
		resp := ta.doAuthed(t, http.MethodGet, "/api/chat/rooms", "not-a-token", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid token", func(t *testing.T) {
		token, _ := ta.login(t, "alice")
		resp := ta.doAuthed(t, http.MethodGet, "/api/chat/rooms", token, nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestCreateAndListRooms(t *testing.T) {
	ta := newTestApp(t)
	token, user := ta.login(t, "alice")

	body := `{"name":"general","type":"group","participants":[1,2,3]}`
	resp := ta.doAuthed(t, http.MethodPost, "/api/chat/rooms", token, strings.NewReader(body))
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var room types.ChatRoom
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&room))
	assert.Equal(t, "general", room.Name)
	assert.Equal(t, types.RoomTypeGroup, room.Type)
	assert.Equal(t, user.Id, room.CreatedBy)

	resp = ta.doAuthed(t, http.MethodGet, "/api/chat/rooms", token, nil)
	defer resp.Body.Close()
	var rooms []types.ChatRoom
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, room.Id, rooms[0].Id)
}

func TestCreateRoomValidation(t *testing.T) {
	ta := newTestApp(t)
	token, _ := ta.login(t, "alice")

	for name, body := range map[string]string{
		"missing name": `{"type":"group"}`,
		"bad type":     `{"name":"x","type":"broadcast"}`,
		"bad json":     `{`,
	} {
		t.Run(name, func(t *testing.T) {
			resp := ta.doAuthed(t, http.MethodPost, "/api/chat/rooms", token, strings.NewReader(body))
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestListUsers(t *testing.T) {
	ta := newTestApp(t)
	token, _ := ta.login(t, "alice")
	ta.login(t, "bob")

	resp := ta.doAuthed(t, http.MethodGet, "/api/chat/users", token, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var users []types.ChatUser
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
	require.Len(t, users, 2)
}

func uploadRequest(t *testing.T, url, token, filename, roomId string, content []byte) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	if roomId != "" {
		require.NoError(t, mw.WriteField("roomId", roomId))
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url+"/api/chat/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestUpload(t *testing.T) {
	ta := newTestApp(t)
	token, _ := ta.login(t, "alice")

	resp := uploadRequest(t, ta.server.URL, token, "notes.txt", "1", []byte("hello"))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	fileUrl := result["fileUrl"]
	require.True(t, strings.HasPrefix(fileUrl, "/uploads/"), "unexpected fileUrl %q", fileUrl)
	assert.True(t, strings.HasSuffix(fileUrl, "_notes.txt"))

	// saved under the configured upload dir and served back
	saved, err := os.ReadFile(filepath.Join(ta.cfg.UploadDir, strings.TrimPrefix(fileUrl, "/uploads/")))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), saved)

	get, err := http.Get(ta.server.URL + fileUrl)
	require.NoError(t, err)
	defer get.Body.Close()
	body, err := io.ReadAll(get.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), body)
}

func TestUploadValidation(t *testing.T) {
	ta := newTestApp(t)
	token, _ := ta.login(t, "alice")

	t.Run("missing roomId", func(t *testing.T) {
		resp := uploadRequest(t, ta.server.URL, token, "notes.txt", "", []byte("hello"))
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("oversized file", func(t *testing.T) {
		resp := uploadRequest(t, ta.server.URL, token, "big.bin", "1", make([]byte, maxUploadSize+1))
		defer resp.Body.Close()
		assert.NotEqual(t, http.StatusOK, resp.StatusCode)
	})
}

// dialWs opens an authenticated websocket against the test server.
func (ta *testApp) dialWs(t *testing.T, token string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ta.server.URL, "http") + "/ws"
	header := http.Header{"Authorization": {"Bearer " + token}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readServerEvent(t *testing.T, conn *websocket.Conn) *transport.ServerEvent {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	ev, err := transport.DecodeServerEvent(raw)
	require.NoError(t, err)
	return ev
}

func TestServeWsRequiresAuth(t *testing.T) {
	ta := newTestApp(t)

	wsURL := "ws" + strings.TrimPrefix(ta.server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWsSessionRoundTrip(t *testing.T) {
	ta := newTestApp(t)
	token, user := ta.login(t, "alice")
	room := ta.store.CreateRoom("general", types.RoomTypeGroup, user.Id)

	conn := ta.dialWs(t, token)

	ev := readServerEvent(t, conn)
	require.NotNil(t, ev.OnlineUsers, "presence snapshot pushed on connect")
	assert.Equal(t, []int{user.Id}, ev.OnlineUsers.UserIds)

	join := &transport.ClientEvent{Join: &transport.JoinRoom{RoomId: room.Id}}
	raw, err := join.Encode()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))

	ev = readServerEvent(t, conn)
	require.NotNil(t, ev.RoomHistory)
	assert.Equal(t, room.Id, ev.RoomHistory.RoomId)
	assert.Empty(t, ev.RoomHistory.Messages)

	send := &transport.ClientEvent{Send: &transport.SendMessage{
		RoomId:        room.Id,
		Content:       "hello from ws",
		Type:          types.MessageTypeText,
		CorrelationId: "ws-corr",
	}}
	raw, err = send.Encode()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))

	ev = readServerEvent(t, conn)
	require.NotNil(t, ev.NewMessage)
	assert.Equal(t, "hello from ws", ev.NewMessage.Content)
	assert.Equal(t, "ws-corr", ev.NewMessage.CorrelationId)
	require.NotNil(t, ev.NewMessage.Sender)
	assert.Equal(t, "alice", ev.NewMessage.Sender.Username)

	// second join replays the stored message
	raw, err = join.Encode()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
	ev = readServerEvent(t, conn)
	require.NotNil(t, ev.RoomHistory)
	require.Len(t, ev.RoomHistory.Messages, 1)
	assert.Equal(t, "hello from ws", ev.RoomHistory.Messages[0].Content)
}

func TestWsInvalidEvent(t *testing.T) {
	ta := newTestApp(t)
	token, _ := ta.login(t, "alice")

	conn := ta.dialWs(t, token)
	readServerEvent(t, conn) // onlineUsers

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"bogus"}`)))

	ev := readServerEvent(t, conn)
	require.NotNil(t, ev.Error)
	assert.Equal(t, "invalid event", ev.Error.Message)
}

func TestWsTokenQueryParam(t *testing.T) {
	ta := newTestApp(t)
	token, user := ta.login(t, "alice")

	wsURL := "ws" + strings.TrimPrefix(ta.server.URL, "http") + "/ws?userId=" + strconv.Itoa(user.Id) + "&token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	ev := readServerEvent(t, conn)
	require.NotNil(t, ev.OnlineUsers)
}
