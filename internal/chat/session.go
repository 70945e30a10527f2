// Package chat is the synchronization engine of the realtime chat core.
// A Session converts local intents (send, join, leave, create, delete,
// typing) into transport events plus optimistic store writes, and
// reduces server-pushed events back into the store.
package chat

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leoalsantos/custosmart-chat/internal/api"
	"github.com/leoalsantos/custosmart-chat/internal/auth"
	"github.com/leoalsantos/custosmart-chat/internal/notify"
	"github.com/leoalsantos/custosmart-chat/internal/state"
	"github.com/leoalsantos/custosmart-chat/internal/transport"
	"github.com/leoalsantos/custosmart-chat/internal/types"
)

const defaultTypingTimeout = 3000 * time.Millisecond

// Transport is the connection manager as the engine sees it.
type Transport interface {
	Connect() error
	Disconnect()
	Connected() bool
	Emit(ev *transport.ClientEvent) error
	Events() <-chan *transport.ServerEvent
}

// RoomService is the HTTP collaborator surface (room CRUD, user
// directory, upload endpoint).
type RoomService interface {
	ListRooms(ctx context.Context) ([]types.ChatRoom, error)
	ListUsers(ctx context.Context) ([]types.ChatUser, error)
	CreateRoom(ctx context.Context, name string, participants []int) (types.ChatRoom, error)
	Upload(ctx context.Context, roomId int, file api.File) (string, error)
}

// Confirmer gates destructive actions behind the UI. Deleting a room
// proceeds only when Confirm returns true.
type Confirmer interface {
	Confirm(prompt string) bool
}

type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

type Session struct {
	log      *log.Logger
	tp       Transport
	svc      RoomService
	store    *state.Store
	notifier notify.Notifier
	identity auth.Identity
	confirm  Confirmer

	// TypingTimeout is the inactivity window after which a trailing
	// "stopped typing" is emitted. Tests shrink it.
	TypingTimeout time.Duration

	typingMu    sync.Mutex
	typingTimer *time.Timer

	now           func() time.Time
	correlationId func() string

	stop chan struct{}
	done chan struct{}
}

func NewSession(l *log.Logger, tp Transport, svc RoomService, store *state.Store,
	identity auth.Identity, n notify.Notifier, confirm Confirmer) *Session {
	return &Session{
		log:           l,
		tp:            tp,
		svc:           svc,
		store:         store,
		notifier:      n,
		identity:      identity,
		confirm:       confirm,
		TypingTimeout: defaultTypingTimeout,
		now:           types.Now,
		correlationId: uuid.NewString,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

func (s *Session) Store() *state.Store {
	return s.store
}

// Run reduces inbound transport events into the store until Stop. All
// server-pushed state transitions funnel through this single loop.
func (s *Session) Run() {
	for {
		select {
		case ev := <-s.tp.Events():
			s.dispatch(ev)
		case <-s.stop:
			close(s.done)
			return
		}
	}
}

func (s *Session) Stop() {
	s.clearTypingTimer()
	close(s.stop)
	<-s.done
}

// Bootstrap loads the room list and user directory over HTTP and
// optionally joins an initial room once rooms are present.
func (s *Session) Bootstrap(ctx context.Context, initialRoomId int) error {
	defer s.store.SetLoading(false)

	rooms, err := s.svc.ListRooms(ctx)
	if err != nil {
		s.notifier.Notify(notify.Notification{
			Severity: notify.SeverityError,
			Title:    "Error",
			Detail:   "Could not load chat rooms.",
		})
		return fmt.Errorf("list rooms: %w", err)
	}
	s.store.SetRooms(rooms)

	users, err := s.svc.ListUsers(ctx)
	if err != nil {
		// the directory is non-critical, the chat still works
		s.log.Println("list users:", err)
	} else {
		s.store.SetUsers(users)
	}

	if initialRoomId != 0 {
		if _, ok := s.store.RoomById(initialRoomId); ok {
			return s.JoinRoom(initialRoomId)
		}
	}

	return nil
}

// SendMessage appends an optimistic copy to the active room's message
// list and emits the send event. The optimistic copy carries a
// correlation id so the server echo can replace it.
func (s *Session) SendMessage(content, msgType string) error {
	if !s.tp.Connected() {
		s.notifyError("Error", "Could not send the message. Check your connection.")
		return ErrNotConnected
	}

	active, ok := s.store.ActiveRoom()
	if !ok {
		s.notifyError("Error", "Could not send the message. No active room.")
		return ErrNoActiveRoom
	}

	now := s.now()
	optimistic := types.ChatMessage{
		Id:            int(now.UnixMilli()),
		RoomId:        active.Id,
		UserId:        s.identity.UserId,
		Content:       content,
		Type:          msgType,
		CreatedAt:     now,
		Read:          false,
		CorrelationId: s.correlationId(),
	}
	s.store.AppendMessage(optimistic)

	if err := s.tp.Emit(&transport.ClientEvent{Send: &transport.SendMessage{
		RoomId:        active.Id,
		Content:       content,
		Type:          msgType,
		CorrelationId: optimistic.CorrelationId,
	}}); err != nil {
		return err
	}

	// sending supersedes any pending typing state
	if s.clearTypingTimer() {
		s.emitTyping(active.Id, false)
	}

	return nil
}

// JoinRoom activates a room from the already-fetched list. A different
// active room is left first; the visible message list is cleared before
// the join so no stale messages bleed across rooms. The server pushes
// history asynchronously.
func (s *Session) JoinRoom(roomId int) error {
	if !s.tp.Connected() {
		s.notifyError("Connection error", "Could not join the room. Check your connection.")
		return ErrNotConnected
	}

	if active, ok := s.store.ActiveRoom(); ok && active.Id != roomId {
		s.tp.Emit(&transport.ClientEvent{Leave: &transport.LeaveRoom{RoomId: active.Id}})
	}

	room, ok := s.store.RoomById(roomId)
	if !ok {
		s.notifyError("Error", "Room not found.")
		return ErrRoomNotFound
	}

	s.store.SetActiveRoom(room)

	return s.tp.Emit(&transport.ClientEvent{Join: &transport.JoinRoom{RoomId: roomId}})
}

// LeaveRoom emits the leave event and clears local state when the room
// being left is the active one. Best-effort when disconnected.
func (s *Session) LeaveRoom(roomId int) error {
	if !s.tp.Connected() {
		return nil
	}

	if err := s.tp.Emit(&transport.ClientEvent{Leave: &transport.LeaveRoom{RoomId: roomId}}); err != nil {
		return err
	}

	if active, ok := s.store.ActiveRoom(); ok && active.Id == roomId {
		s.store.ClearActiveRoom()
	}

	return nil
}

// CreateRoom issues the room-create call, mirrors the new room locally,
// activates it and joins it over the transport.
func (s *Session) CreateRoom(ctx context.Context, name string, participants []int) error {
	room, err := s.svc.CreateRoom(ctx, name, participants)
	if err != nil {
		s.notifyError("Error", "Could not create the room.")
		return fmt.Errorf("%w: %v", ErrCreateRoomFailed, err)
	}

	s.store.AppendRoom(room)
	s.store.SetActiveRoom(room)

	if s.tp.Connected() {
		s.tp.Emit(&transport.ClientEvent{Join: &transport.JoinRoom{RoomId: room.Id}})
	}

	s.notifier.Notify(notify.Notification{
		Severity: notify.SeverityInfo,
		Title:    "Success",
		Detail:   "Room created.",
	})

	return nil
}

// DeleteRoom requests deletion over the transport after the UI confirms.
// Local removal happens only on the server's roomDeleted event, never
// optimistically.
func (s *Session) DeleteRoom(roomId int) error {
	if !s.tp.Connected() {
		s.notifyError("Connection error", "Could not delete the room. Check your connection.")
		return ErrNotConnected
	}

	if !s.confirm.Confirm("Delete this chat room? This cannot be undone.") {
		return nil
	}

	if err := s.tp.Emit(&transport.ClientEvent{Delete: &transport.DeleteRoom{RoomId: roomId}}); err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteRoomFailed, err)
	}

	s.notifier.Notify(notify.Notification{
		Severity: notify.SeverityInfo,
		Title:    "Request sent",
		Detail:   "Room deletion requested.",
	})

	return nil
}

// SetTyping signals the local user's typing state. Typing is
// best-effort: without a connection or an active room it is a silent
// no-op. A true signal arms (or re-arms) the inactivity timer that
// auto-emits the trailing false.
func (s *Session) SetTyping(isTyping bool) {
	if !s.tp.Connected() {
		return
	}
	active, ok := s.store.ActiveRoom()
	if !ok {
		return
	}

	s.clearTypingTimer()
	s.emitTyping(active.Id, isTyping)

	if isTyping {
		roomId := active.Id
		s.typingMu.Lock()
		s.typingTimer = time.AfterFunc(s.TypingTimeout, func() {
			s.typingMu.Lock()
			s.typingTimer = nil
			s.typingMu.Unlock()
			s.emitTyping(roomId, false)
		})
		s.typingMu.Unlock()
	}
}

// TypingUsers reports who is typing in the active room, excluding the
// local user. A set containing only the local user reads as nobody
// typing.
func (s *Session) TypingUsers() []int {
	active, ok := s.store.ActiveRoom()
	if !ok {
		return nil
	}

	var out []int
	for _, id := range s.store.TypingUsers(active.Id) {
		if id != s.identity.UserId {
			out = append(out, id)
		}
	}
	return out
}

// UploadFile validates and uploads an attachment out-of-band from the
// event transport, then sends the returned file reference as a chat
// message, typed image or file from the attachment's media type.
func (s *Session) UploadFile(ctx context.Context, file api.File) error {
	if !s.tp.Connected() {
		s.notifyError("Connection error", "Could not send the file. Check your connection.")
		return ErrNotConnected
	}
	active, ok := s.store.ActiveRoom()
	if !ok {
		s.notifyError("Connection error", "Could not send the file. No active room.")
		return ErrNoActiveRoom
	}

	fileUrl, err := s.svc.Upload(ctx, active.Id, file)
	if err != nil {
		s.notifyError("Upload error", err.Error())
		return err
	}

	msgType := types.MessageTypeFile
	if strings.HasPrefix(file.ContentType, "image/") {
		msgType = types.MessageTypeImage
	}

	if err := s.SendMessage(fileUrl, msgType); err != nil {
		return err
	}

	s.notifier.Notify(notify.Notification{
		Severity: notify.SeverityInfo,
		Title:    "File sent",
		Detail:   fmt.Sprintf("%s was sent.", file.Name),
	})

	return nil
}

// dispatch reduces one server event into the store.
func (s *Session) dispatch(ev *transport.ServerEvent) {
	switch {
	case ev.OnlineUsers != nil:
		s.store.SetOnlineUsers(ev.OnlineUsers.UserIds)

	case ev.RoomHistory != nil:
		msgs := append([]types.ChatMessage(nil), ev.RoomHistory.Messages...)
		slices.SortStableFunc(msgs, func(a, b types.ChatMessage) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		})
		s.store.SetMessages(ev.RoomHistory.RoomId, msgs)

	case ev.NewMessage != nil:
		msg := *ev.NewMessage
		if active, ok := s.store.ActiveRoom(); ok && active.Id == msg.RoomId {
			if !s.store.ReplaceMessageByCorrelation(msg) {
				s.store.AppendMessage(msg)
			}
		}
		s.store.TouchRoomOnMessage(msg)

	case ev.UserTyping != nil:
		if active, ok := s.store.ActiveRoom(); ok && active.Id == ev.UserTyping.RoomId {
			s.store.SetTypingUsers(ev.UserTyping.RoomId, ev.UserTyping.Users)
		}

	case ev.RoomDeleted != nil:
		if s.store.RemoveRoom(ev.RoomDeleted.RoomId) {
			s.notifier.Notify(notify.Notification{
				Severity: notify.SeverityInfo,
				Title:    "Room deleted",
				Detail:   "The chat room was deleted.",
			})
		}

	case ev.RoomDeleteSuccess != nil:
		s.notifier.Notify(notify.Notification{
			Severity: notify.SeverityInfo,
			Title:    "Success",
			Detail:   "Room deleted.",
		})

	case ev.Error != nil:
		// already surfaced by the transport
		s.log.Println("server error:", ev.Error.Message)
	}
}

func (s *Session) emitTyping(roomId int, isTyping bool) {
	if err := s.tp.Emit(&transport.ClientEvent{Typing: &transport.Typing{
		RoomId:   roomId,
		IsTyping: isTyping,
	}}); err != nil {
		s.log.Println("emit typing:", err)
	}
}

// clearTypingTimer stops a pending trailing-false emission. Reports
// whether a timer was armed.
func (s *Session) clearTypingTimer() bool {
	s.typingMu.Lock()
	defer s.typingMu.Unlock()
	if s.typingTimer == nil {
		return false
	}
	s.typingTimer.Stop()
	s.typingTimer = nil
	return true
}

func (s *Session) notifyError(title, detail string) {
	s.notifier.Notify(notify.Notification{
		Severity: notify.SeverityError,
		Title:    title,
		Detail:   detail,
	})
}
