// Package state holds the client's in-memory view of the chat: rooms,
// the active room, the visible message list, known users, the online
// set and per-room typing sets. Only the sync engine, the presence
// tracker and the connection manager write to it; the UI reads
// snapshots. Every mutation replaces the relevant slice or map
// wholesale so state transitions stay observable and cheap to diff.
package state

import (
	"sync"

	"github.com/leoalsantos/custosmart-chat/internal/types"
)

type Store struct {
	mu         sync.RWMutex
	rooms      []types.ChatRoom
	activeRoom *types.ChatRoom
	messages   []types.ChatMessage
	users      []types.ChatUser
	online     []int
	typing     map[int][]int
	loading    bool
}

func NewStore() *Store {
	return &Store{
		typing:  make(map[int][]int),
		loading: true,
	}
}

func (s *Store) Rooms() []types.ChatRoom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.ChatRoom(nil), s.rooms...)
}

func (s *Store) SetRooms(rooms []types.ChatRoom) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = append([]types.ChatRoom(nil), rooms...)
}

func (s *Store) AppendRoom(room types.ChatRoom) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]types.ChatRoom, 0, len(s.rooms)+1)
	next = append(next, s.rooms...)
	next = append(next, room)
	s.rooms = next
}

// RemoveRoom drops the room from the list. If it was the active room,
// the active room and visible messages are cleared as well. Reports
// whether the removed room was active.
func (s *Store) RemoveRoom(roomId int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]types.ChatRoom, 0, len(s.rooms))
	for _, r := range s.rooms {
		if r.Id != roomId {
			next = append(next, r)
		}
	}
	s.rooms = next

	if s.activeRoom != nil && s.activeRoom.Id == roomId {
		s.activeRoom = nil
		s.messages = nil
		return true
	}
	return false
}

// RoomById looks a room up in the already-fetched list. The store never
// fetches unknown rooms on demand.
func (s *Store) RoomById(roomId int) (types.ChatRoom, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rooms {
		if r.Id == roomId {
			return r, true
		}
	}
	return types.ChatRoom{}, false
}

func (s *Store) ActiveRoom() (types.ChatRoom, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeRoom == nil {
		return types.ChatRoom{}, false
	}
	return *s.activeRoom, true
}

// SetActiveRoom switches the active room and clears the visible message
// list; history is not cached across room switches.
func (s *Store) SetActiveRoom(room types.ChatRoom) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := room
	s.activeRoom = &r
	s.messages = nil
}

func (s *Store) ClearActiveRoom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeRoom = nil
	s.messages = nil
}

func (s *Store) Messages() []types.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.ChatMessage(nil), s.messages...)
}

// SetMessages installs a full message list for the room, but only if
// that room is still the active one at the time of the call. Late
// history for a room the user has since left is discarded.
func (s *Store) SetMessages(roomId int, messages []types.ChatMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeRoom == nil || s.activeRoom.Id != roomId {
		return false
	}
	s.messages = append([]types.ChatMessage(nil), messages...)
	return true
}

func (s *Store) AppendMessage(msg types.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]types.ChatMessage, 0, len(s.messages)+1)
	next = append(next, s.messages...)
	next = append(next, msg)
	s.messages = next
}

// ReplaceMessageByCorrelation swaps the optimistic copy carrying the
// correlation id for the confirmed message. Reports whether a swap
// happened.
func (s *Store) ReplaceMessageByCorrelation(msg types.ChatMessage) bool {
	if msg.CorrelationId == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.messages {
		if m.CorrelationId == msg.CorrelationId {
			next := append([]types.ChatMessage(nil), s.messages...)
			next[i] = msg
			s.messages = next
			return true
		}
	}
	return false
}

// TouchRoomOnMessage updates lastMessage for the message's room and
// bumps its unread count unless the room is active, whose unread count
// stays zero.
func (s *Store) TouchRoomOnMessage(msg types.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.activeRoom != nil && s.activeRoom.Id == msg.RoomId
	next := append([]types.ChatRoom(nil), s.rooms...)
	for i := range next {
		if next[i].Id != msg.RoomId {
			continue
		}
		m := msg
		next[i].LastMessage = &m
		if active {
			next[i].UnreadCount = 0
		} else {
			next[i].UnreadCount++
		}
	}
	s.rooms = next
}

func (s *Store) Users() []types.ChatUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.ChatUser(nil), s.users...)
}

func (s *Store) SetUsers(users []types.ChatUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append([]types.ChatUser(nil), users...)
}

func (s *Store) OnlineUsers() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.online...)
}

// SetOnlineUsers replaces the online set wholesale; presence is never
// patched incrementally.
func (s *Store) SetOnlineUsers(userIds []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = append([]int(nil), userIds...)
}

func (s *Store) TypingUsers(roomId int) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.typing[roomId]...)
}

// SetTypingUsers replaces the typing set for one room wholesale.
func (s *Store) SetTypingUsers(roomId int, userIds []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[int][]int, len(s.typing)+1)
	for k, v := range s.typing {
		next[k] = v
	}
	next[roomId] = append([]int(nil), userIds...)
	s.typing = next
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
}
