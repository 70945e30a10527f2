package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"

	"github.com/leoalsantos/custosmart-chat/internal/auth"
	"github.com/leoalsantos/custosmart-chat/internal/config"
	"github.com/leoalsantos/custosmart-chat/internal/types"
)

const maxUploadSize = 10 << 20 // 10 MiB, mirrors the client-side gate

// ChatApp is the reference server's HTTP surface: the collaborator
// endpoints the client core consumes plus the websocket upgrade.
type ChatApp struct {
	log        *log.Logger
	store      *Store
	hub        *Hub
	srv        *http.Server
	signingKey []byte
	uploadDir  string
	sid        *shortid.Shortid
}

func NewChatApp(mux *http.ServeMux, logger *log.Logger, hub *Hub, store *Store, cfg *config.ServerConfig) (*ChatApp, error) {
	sid, err := shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		return nil, fmt.Errorf("shortid: %w", err)
	}

	a := &ChatApp{
		log:        logger,
		store:      store,
		hub:        hub,
		signingKey: cfg.SigningKey,
		uploadDir:  cfg.UploadDir,
		sid:        sid,
	}

	mux.HandleFunc("POST /api/auth/login", a.login)
	mux.Handle("GET /api/chat/rooms", a.authMiddleware(a.listRooms))
	mux.Handle("POST /api/chat/rooms", a.authMiddleware(a.createRoom))
	mux.Handle("GET /api/chat/users", a.authMiddleware(a.listUsers))
	mux.Handle("POST /api/chat/upload", a.authMiddleware(a.upload))
	mux.Handle("GET /ws", a.authMiddleware(a.serveWs))
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	a.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return a, nil
}

func (a *ChatApp) Start() error {
	a.log.Printf("starting server on %s\n", a.srv.Addr)
	return a.srv.ListenAndServe()
}

func (a *ChatApp) Shutdown(ctx context.Context) error {
	a.log.Println("shutting down HTTP server...")
	if err := a.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

// Handler exposes the configured handler for in-process tests.
func (a *ChatApp) Handler() http.Handler {
	return a.srv.Handler
}

func (a *ChatApp) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Printf("json encode: %v", err)
	}
}

type errorResponse struct {
	Message string `json:"message"`
}

func (a *ChatApp) writeError(w http.ResponseWriter, statusCode int, message string) {
	if message == "" {
		message = strings.ToLower(http.StatusText(statusCode))
	}
	a.writeJson(w, statusCode, errorResponse{Message: message})
}

type contextKey string

const identityKey contextKey = "identity"

func requestIdentity(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	return id, ok
}

// authMiddleware resolves the bearer token (or token query parameter)
// into an identity.
func (a *ChatApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			a.writeError(w, http.StatusUnauthorized, "")
			return
		}

		identity, err := auth.ParseToken(a.signingKey, token)
		if err != nil {
			a.log.Println("parse token:", err)
			a.writeError(w, http.StatusUnauthorized, "")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next(w, r.WithContext(ctx))
	}
}

type loginRequest struct {
	Username string `json:"username"`
}

type loginResponse struct {
	Token string         `json:"token"`
	User  types.ChatUser `json:"user"`
}

// login is the dev-grade session endpoint: it registers the username
// and mints a token. Real credential checks live in the surrounding
// application, not here.
func (a *ChatApp) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		a.writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	user := a.store.UpsertUser(req.Username)

	token, err := auth.SignToken(a.signingKey, auth.Identity{UserId: user.Id, Username: user.Username})
	if err != nil {
		a.log.Println("sign token:", err)
		a.writeError(w, http.StatusInternalServerError, "")
		return
	}

	a.writeJson(w, http.StatusOK, loginResponse{Token: token, User: user})
}

func (a *ChatApp) listRooms(w http.ResponseWriter, r *http.Request) {
	a.writeJson(w, http.StatusOK, a.store.Rooms())
}

func (a *ChatApp) listUsers(w http.ResponseWriter, r *http.Request) {
	a.writeJson(w, http.StatusOK, a.store.Users())
}

type createRoomRequest struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Participants []int  `json:"participants"`
}

func (a *ChatApp) createRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := requestIdentity(r.Context())
	if !ok {
		a.writeError(w, http.StatusUnauthorized, "")
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "")
		return
	}
	if req.Name == "" {
		a.writeError(w, http.StatusBadRequest, "room name is required")
		return
	}
	if req.Type != types.RoomTypeGroup && req.Type != types.RoomTypeDirect {
		a.writeError(w, http.StatusBadRequest, "invalid room type")
		return
	}

	room := a.store.CreateRoom(req.Name, req.Type, identity.UserId)
	a.writeJson(w, http.StatusCreated, room)
}

func (a *ChatApp) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if header.Size > maxUploadSize {
		a.writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the 10MB limit")
		return
	}
	if r.FormValue("roomId") == "" {
		a.writeError(w, http.StatusBadRequest, "roomId field is required")
		return
	}

	id, err := a.sid.Generate()
	if err != nil {
		a.log.Println("generate id:", err)
		a.writeError(w, http.StatusInternalServerError, "")
		return
	}

	name := id + "_" + filepath.Base(header.Filename)
	dst, err := os.Create(filepath.Join(a.uploadDir, name))
	if err != nil {
		a.log.Println("create upload file:", err)
		a.writeError(w, http.StatusInternalServerError, "")
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		a.log.Println("write upload file:", err)
		a.writeError(w, http.StatusInternalServerError, "")
		return
	}

	a.writeJson(w, http.StatusOK, map[string]string{"fileUrl": "/uploads/" + name})
}

func (a *ChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	identity, ok := requestIdentity(r.Context())
	if !ok {
		a.writeError(w, http.StatusUnauthorized, "")
		return
	}

	user, ok := a.store.User(identity.UserId)
	if !ok {
		a.writeError(w, http.StatusNotFound, "unknown user")
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Println("error upgrading connection:", err)
		return
	}

	sessionId, err := a.sid.Generate()
	if err != nil {
		a.log.Println("generate session id:", err)
		conn.Close()
		return
	}

	client := NewClient(sessionId, user, conn, a.hub, a.log)
	a.hub.RegisterChan <- client

	go client.Write()
	go client.Read()
}
