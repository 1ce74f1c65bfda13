package models

import "time"

// users table
type User struct {
	ID         int64      `json:"id"`
	Username   string     `json:"username"`
	Password   string     `json:"-"`
	Name       string     `json:"name"`
	Avatar     string     `json:"avatar"`
	Status     string     `json:"status"`
	LastOnline *time.Time `json:"last_online,omitempty"`
}

// Profile is what GET /user and the search endpoint expose.
type Profile struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar"`
}

// dùng cho seed từ file JSON (dev)
type SeedUser struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
}

// chats.type của chat 1-1
const ChatTypePrivate = "private"

// ChatSummary is one row of a user's chat list. LastMessage is nil when the
// chat has no messages yet.
type ChatSummary struct {
	ID            int64      `json:"id"`
	Type          string     `json:"type"`
	Name          string     `json:"name"`
	LastMessage   *string    `json:"last_message"`
	LastMessageAt *time.Time `json:"last_message_at"`
}

// messages table (+ tên người gửi khi list)
type Message struct {
	ID         int64     `json:"id"`
	ChatID     int64     `json:"chatId"`
	SenderID   int64     `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// MessageEvent is pushed on the TCP feed after a message is persisted.
type MessageEvent struct {
	ID        int64  `json:"id"`
	ChatID    int64  `json:"chatId"`
	SenderID  int64  `json:"senderId"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// LivePayload is the shape browsers push over /ws. The hub never decodes it;
// it is documented here for clients only.
type LivePayload struct {
	ChatID     int64     `json:"chatId"`
	Text       string    `json:"text"`
	SenderID   int64     `json:"senderId"`
	SenderName string    `json:"senderName"`
	Timestamp  time.Time `json:"timestamp"`
}
