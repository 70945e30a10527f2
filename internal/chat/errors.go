package chat

import "errors"

// Operational errors surfaced to the caller. None of them are fatal to
// the connection; each maps to a user-visible notification.
var (
	ErrNotConnected     = errors.New("not connected to chat server")
	ErrNoActiveRoom     = errors.New("no active room")
	ErrRoomNotFound     = errors.New("room not found")
	ErrCreateRoomFailed = errors.New("create room failed")
	ErrDeleteRoomFailed = errors.New("delete room failed")
)
