package server

import (
	"sort"
	"sync"

	"github.com/leoalsantos/custosmart-chat/internal/types"
)

// Store is the reference server's in-memory state: rooms, per-room
// message history and the user directory. Nothing survives a restart.
type Store struct {
	mu         sync.Mutex
	nextRoomId int
	nextMsgId  int
	nextUserId int
	rooms      map[int]types.ChatRoom
	messages   map[int][]types.ChatMessage
	users      map[int]types.ChatUser
}

func NewStore() *Store {
	return &Store{
		rooms:    make(map[int]types.ChatRoom),
		messages: make(map[int][]types.ChatMessage),
		users:    make(map[int]types.ChatUser),
	}
}

// UpsertUser registers a user by username, assigning an id on first
// sight.
func (s *Store) UpsertUser(username string) types.ChatUser {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			return u
		}
	}

	s.nextUserId++
	u := types.ChatUser{Id: s.nextUserId, Username: username}
	s.users[u.Id] = u
	return u
}

func (s *Store) User(id int) (types.ChatUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok
}

func (s *Store) Users() []types.ChatUser {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.ChatUser, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

func (s *Store) Rooms() []types.ChatRoom {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.ChatRoom, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

func (s *Store) Room(id int) (types.ChatRoom, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	return r, ok
}

func (s *Store) CreateRoom(name, roomType string, createdBy int) types.ChatRoom {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextRoomId++
	room := types.ChatRoom{
		Id:        s.nextRoomId,
		Name:      name,
		Type:      roomType,
		CreatedAt: types.Now(),
		CreatedBy: createdBy,
	}
	s.rooms[room.Id] = room
	return room
}

func (s *Store) DeleteRoom(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[id]; !ok {
		return false
	}
	delete(s.rooms, id)
	delete(s.messages, id)
	return true
}

// AppendMessage assigns a server id and persists the message in the
// room's history.
func (s *Store) AppendMessage(msg types.ChatMessage) types.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMsgId++
	msg.Id = s.nextMsgId
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = types.Now()
	}
	s.messages[msg.RoomId] = append(s.messages[msg.RoomId], msg)
	return msg
}

func (s *Store) History(roomId int) []types.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ChatMessage(nil), s.messages[roomId]...)
}
