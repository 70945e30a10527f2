package types

import (
	"time"
)

// Wire-level data model shared by the client core and the reference
// server. Field names follow the chat wire contract (camelCase).

type ChatRoom struct {
	Id          int          `json:"id"`
	Name        string       `json:"name"`
	Type        string       `json:"type"` // "group" or "direct"
	CreatedAt   time.Time    `json:"createdAt"`
	CreatedBy   int          `json:"createdBy"`
	UnreadCount int          `json:"unreadCount,omitempty"`
	LastMessage *ChatMessage `json:"lastMessage,omitempty"`
}

const (
	RoomTypeGroup  = "group"
	RoomTypeDirect = "direct"
)

type ChatMessage struct {
	Id            int       `json:"id"`
	RoomId        int       `json:"roomId"`
	UserId        int       `json:"userId"`
	Content       string    `json:"content"`
	Type          string    `json:"type"` // "text", "image" or "file"
	CreatedAt     time.Time `json:"createdAt"`
	Read          bool      `json:"read"`
	CorrelationId string    `json:"correlationId,omitempty"`
	Sender        *ChatUser `json:"sender,omitempty"`
	FileUrl       string    `json:"fileUrl,omitempty"`
}

const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeFile  = "file"
)

type ChatUser struct {
	Id         int    `json:"id"`
	Username   string `json:"username"`
	FullName   string `json:"fullName,omitempty"`
	Email      string `json:"email,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
	Status     string `json:"status,omitempty"`
	Department string `json:"department,omitempty"`
	Role       string `json:"role,omitempty"`
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
