package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leoalsantos/custosmart-chat/internal/types"
)

func TestNewStore(t *testing.T) {
	s := NewStore()

	assert.True(t, s.Loading(), "expected a new store to be loading")
	assert.Empty(t, s.Rooms(), "expected no rooms initially")
	assert.Empty(t, s.Messages(), "expected no messages initially")
	_, ok := s.ActiveRoom()
	assert.False(t, ok, "expected no active room initially")
}

func TestRooms(t *testing.T) {
	s := NewStore()
	s.SetRooms([]types.ChatRoom{{Id: 1, Name: "general"}})
	s.AppendRoom(types.ChatRoom{Id: 2, Name: "random"})

	rooms := s.Rooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, "general", rooms[0].Name)
	assert.Equal(t, "random", rooms[1].Name)

	room, ok := s.RoomById(2)
	assert.True(t, ok, "expected room 2 to be found")
	assert.Equal(t, "random", room.Name)

	_, ok = s.RoomById(3)
	assert.False(t, ok, "expected room 3 to be missing")
}

func TestRoomsSnapshotIsolation(t *testing.T) {
	s := NewStore()
	s.SetRooms([]types.ChatRoom{{Id: 1, Name: "general"}})

	snapshot := s.Rooms()
	snapshot[0].Name = "mutated"

	rooms := s.Rooms()
	assert.Equal(t, "general", rooms[0].Name, "expected store state to be isolated from snapshots")
}

func TestActiveRoomSwitchClearsMessages(t *testing.T) {
	s := NewStore()
	s.SetActiveRoom(types.ChatRoom{Id: 1})
	s.AppendMessage(types.ChatMessage{Id: 10, RoomId: 1, Content: "old"})
	require.Len(t, s.Messages(), 1)

	s.SetActiveRoom(types.ChatRoom{Id: 2})
	assert.Empty(t, s.Messages(), "expected message list to be cleared on room switch")
}

func TestSetMessages(t *testing.T) {
	s := NewStore()
	s.SetActiveRoom(types.ChatRoom{Id: 1})

	ok := s.SetMessages(1, []types.ChatMessage{{Id: 1}, {Id: 2}})
	assert.True(t, ok, "expected history for the active room to install")
	assert.Len(t, s.Messages(), 2)

	// history for a room that is no longer active is discarded
	ok = s.SetMessages(99, []types.ChatMessage{{Id: 3}})
	assert.False(t, ok, "expected history for a non-active room to be discarded")
	assert.Len(t, s.Messages(), 2)
}

func TestReplaceMessageByCorrelation(t *testing.T) {
	s := NewStore()
	s.SetActiveRoom(types.ChatRoom{Id: 1})
	s.AppendMessage(types.ChatMessage{Id: 1700000000000, RoomId: 1, Content: "hi", CorrelationId: "abc"})

	t.Run("replaces matching optimistic copy", func(t *testing.T) {
		confirmed := types.ChatMessage{Id: 7, RoomId: 1, Content: "hi", CorrelationId: "abc"}
		assert.True(t, s.ReplaceMessageByCorrelation(confirmed), "expected a replacement")

		msgs := s.Messages()
		require.Len(t, msgs, 1, "expected exactly one visible copy")
		assert.Equal(t, 7, msgs[0].Id, "expected the server id to win")
	})

	t.Run("no correlation id appends instead", func(t *testing.T) {
		assert.False(t, s.ReplaceMessageByCorrelation(types.ChatMessage{Id: 8, RoomId: 1}),
			"expected no replacement without a correlation id")
	})
}

func TestTouchRoomOnMessage(t *testing.T) {
	s := NewStore()
	s.SetRooms([]types.ChatRoom{{Id: 1}, {Id: 2}})
	s.SetActiveRoom(types.ChatRoom{Id: 1})

	// messages for the active room never bump unread
	s.TouchRoomOnMessage(types.ChatMessage{Id: 1, RoomId: 1, Content: "a"})
	s.TouchRoomOnMessage(types.ChatMessage{Id: 2, RoomId: 1, Content: "b"})

	// three messages for a background room bump unread three times
	for i := 0; i < 3; i++ {
		s.TouchRoomOnMessage(types.ChatMessage{Id: 10 + i, RoomId: 2})
	}

	rooms := s.Rooms()
	assert.Zero(t, rooms[0].UnreadCount, "expected active room unread to stay zero")
	assert.Equal(t, 3, rooms[1].UnreadCount, "expected background room unread to count each message")
	require.NotNil(t, rooms[0].LastMessage)
	assert.Equal(t, "b", rooms[0].LastMessage.Content, "expected lastMessage to track the newest message")
}

func TestRemoveRoom(t *testing.T) {
	s := NewStore()
	s.SetRooms([]types.ChatRoom{{Id: 1}, {Id: 2}})
	s.SetActiveRoom(types.ChatRoom{Id: 1})
	s.AppendMessage(types.ChatMessage{Id: 1, RoomId: 1})

	wasActive := s.RemoveRoom(1)
	assert.True(t, wasActive, "expected removal of the active room to be reported")
	assert.Empty(t, s.Messages(), "expected messages to be cleared with the active room")
	_, ok := s.ActiveRoom()
	assert.False(t, ok, "expected no active room after removal")

	assert.False(t, s.RemoveRoom(2), "expected removal of a background room to report not-active")
	assert.Empty(t, s.Rooms())
}

func TestPresenceAndTyping(t *testing.T) {
	s := NewStore()

	s.SetOnlineUsers([]int{1, 2})
	s.SetOnlineUsers([]int{3})
	assert.Equal(t, []int{3}, s.OnlineUsers(), "expected full replacement of the online set")

	s.SetTypingUsers(1, []int{1, 2})
	s.SetTypingUsers(1, []int{2})
	assert.Equal(t, []int{2}, s.TypingUsers(1), "expected full replacement of the typing set")
	assert.Empty(t, s.TypingUsers(2), "expected no typing users for an untouched room")
}
