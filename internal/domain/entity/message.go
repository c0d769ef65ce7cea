package entity

import "time"

type SenderType string

const (
	SenderUser  SenderType = "user"
	SenderOwner SenderType = "owner"
)

// Opposite returns the counterpart role, i.e. the viewer a message of this
// sender type is unread for.
func (s SenderType) Opposite() SenderType {
	if s == SenderUser {
		return SenderOwner
	}
	return SenderUser
}

func (s SenderType) Valid() bool {
	return s == SenderUser || s == SenderOwner
}

// Message belongs to exactly one chat and is deleted only as a cascade of chat
// deletion. Seq is a per-chat monotonic sequence assigned by the store so that
// ordering never depends on clock resolution.
type Message struct {
	ID         string     `json:"id"`
	ChatID     string     `json:"chat_id"`
	Seq        int64      `json:"seq"`
	SenderType SenderType `json:"sender_type"`
	Text       string     `json:"text"`
	CreatedAt  time.Time  `json:"created_at"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
}
