package models

import "time"

// Sender identifies who authored a chat message
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// ChatMessage is one turn of a chat transcript
type ChatMessage struct {
	Sequence  int       `json:"sequence"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatState is a snapshot of a chat session
type ChatState struct {
	Transcript []ChatMessage `json:"transcript"`
	Pending    bool          `json:"pending"`
}
