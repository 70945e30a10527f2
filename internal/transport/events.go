package transport

import (
	"encoding/json"
	"fmt"

	"github.com/leoalsantos/custosmart-chat/internal/types"
)

// Wire event names. These are part of the wire contract and must match
// the server verbatim.
const (
	EventJoinRoom          = "joinRoom"
	EventLeaveRoom         = "leaveRoom"
	EventSendMessage       = "sendMessage"
	EventTyping            = "typing"
	EventDeleteRoom        = "deleteRoom"
	EventOnlineUsers       = "onlineUsers"
	EventRoomHistory       = "roomHistory"
	EventNewMessage        = "newMessage"
	EventUserTyping        = "userTyping"
	EventRoomDeleted       = "roomDeleted"
	EventRoomDeleteSuccess = "roomDeleteSuccess"
	EventError             = "error"
)

// Envelope is the framing for every event in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ClientEvent is an outbound event. Exactly one field is set.
type ClientEvent struct {
	Join   *JoinRoom    `json:"join,omitempty"`
	Leave  *LeaveRoom   `json:"leave,omitempty"`
	Send   *SendMessage `json:"send,omitempty"`
	Typing *Typing      `json:"typing,omitempty"`
	Delete *DeleteRoom  `json:"delete,omitempty"`
}

type JoinRoom struct {
	RoomId int `json:"roomId"`
}

type LeaveRoom struct {
	RoomId int `json:"roomId"`
}

type SendMessage struct {
	RoomId        int    `json:"roomId"`
	Content       string `json:"content"`
	Type          string `json:"type"`
	CorrelationId string `json:"correlationId,omitempty"`
}

type Typing struct {
	RoomId   int  `json:"roomId"`
	IsTyping bool `json:"isTyping"`
}

type DeleteRoom struct {
	RoomId int `json:"roomId"`
}

// Encode frames the event for the wire.
func (e *ClientEvent) Encode() ([]byte, error) {
	var (
		name    string
		payload any
	)

	switch {
	case e.Join != nil:
		name, payload = EventJoinRoom, e.Join
	case e.Leave != nil:
		name, payload = EventLeaveRoom, e.Leave
	case e.Send != nil:
		name, payload = EventSendMessage, e.Send
	case e.Typing != nil:
		name, payload = EventTyping, e.Typing
	case e.Delete != nil:
		name, payload = EventDeleteRoom, e.Delete
	default:
		return nil, fmt.Errorf("empty client event")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", name, err)
	}

	return json.Marshal(Envelope{Event: name, Data: data})
}

// ServerEvent is an inbound event. Exactly one field is set.
type ServerEvent struct {
	OnlineUsers       *OnlineUsers       `json:"onlineUsers,omitempty"`
	RoomHistory       *RoomHistory       `json:"roomHistory,omitempty"`
	NewMessage        *types.ChatMessage `json:"newMessage,omitempty"`
	UserTyping        *UserTyping        `json:"userTyping,omitempty"`
	RoomDeleted       *RoomDeleted       `json:"roomDeleted,omitempty"`
	RoomDeleteSuccess *RoomDeleteSuccess `json:"roomDeleteSuccess,omitempty"`
	Error             *ServerError       `json:"error,omitempty"`
}

type OnlineUsers struct {
	UserIds []int `json:"userIds"`
}

type RoomHistory struct {
	RoomId   int                 `json:"roomId"`
	Messages []types.ChatMessage `json:"messages"`
}

type UserTyping struct {
	RoomId int   `json:"roomId"`
	Users  []int `json:"users"`
}

type RoomDeleted struct {
	RoomId int `json:"roomId"`
}

type RoomDeleteSuccess struct {
	RoomId int `json:"roomId"`
}

type ServerError struct {
	Message string `json:"message"`
}

// DecodeServerEvent parses a framed inbound event. Unknown event names
// are an error so at-least-once peers can evolve without silent drops
// going unlogged.
func DecodeServerEvent(raw []byte) (*ServerEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	ev := &ServerEvent{}
	var dst any

	switch env.Event {
	case EventOnlineUsers:
		ev.OnlineUsers = &OnlineUsers{}
		dst = ev.OnlineUsers
	case EventRoomHistory:
		ev.RoomHistory = &RoomHistory{}
		dst = ev.RoomHistory
	case EventNewMessage:
		ev.NewMessage = &types.ChatMessage{}
		dst = ev.NewMessage
	case EventUserTyping:
		ev.UserTyping = &UserTyping{}
		dst = ev.UserTyping
	case EventRoomDeleted:
		ev.RoomDeleted = &RoomDeleted{}
		dst = ev.RoomDeleted
	case EventRoomDeleteSuccess:
		ev.RoomDeleteSuccess = &RoomDeleteSuccess{}
		dst = ev.RoomDeleteSuccess
	case EventError:
		ev.Error = &ServerError{}
		dst = ev.Error
	default:
		return nil, fmt.Errorf("unknown event %q", env.Event)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, dst); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Event, err)
		}
	}

	return ev, nil
}

// EncodeServerEvent frames an event for pushing to a client. Used by the
// server side of the wire contract.
func EncodeServerEvent(ev *ServerEvent) ([]byte, error) {
	var (
		name    string
		payload any
	)

	switch {
	case ev.OnlineUsers != nil:
		name, payload = EventOnlineUsers, ev.OnlineUsers
	case ev.RoomHistory != nil:
		name, payload = EventRoomHistory, ev.RoomHistory
	case ev.NewMessage != nil:
		name, payload = EventNewMessage, ev.NewMessage
	case ev.UserTyping != nil:
		name, payload = EventUserTyping, ev.UserTyping
	case ev.RoomDeleted != nil:
		name, payload = EventRoomDeleted, ev.RoomDeleted
	case ev.RoomDeleteSuccess != nil:
		name, payload = EventRoomDeleteSuccess, ev.RoomDeleteSuccess
	case ev.Error != nil:
		name, payload = EventError, ev.Error
	default:
		return nil, fmt.Errorf("empty server event")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", name, err)
	}

	return json.Marshal(Envelope{Event: name, Data: data})
}

// DecodeClientEvent parses a framed outbound event. Used by the server
// side of the wire contract.
func DecodeClientEvent(raw []byte) (*ClientEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	ev := &ClientEvent{}
	var dst any

	switch env.Event {
	case EventJoinRoom:
		ev.Join = &JoinRoom{}
		dst = ev.Join
	case EventLeaveRoom:
		ev.Leave = &LeaveRoom{}
		dst = ev.Leave
	case EventSendMessage:
		ev.Send = &SendMessage{}
		dst = ev.Send
	case EventTyping:
		ev.Typing = &Typing{}
		dst = ev.Typing
	case EventDeleteRoom:
		ev.Delete = &DeleteRoom{}
		dst = ev.Delete
	default:
		return nil, fmt.Errorf("unknown event %q", env.Event)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, dst); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Event, err)
		}
	}

	return ev, nil
}
