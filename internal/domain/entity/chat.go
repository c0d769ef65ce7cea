package entity

import "time"

type ChatStatus string

const (
	ChatStatusActive   ChatStatus = "active"
	ChatStatusArchived ChatStatus = "archived"
)

// Chat is a conversation between the inquiring user and the listing owner
// about one pet. At most one active chat exists per (pet, user, owner) triple.
type Chat struct {
	ID         string     `json:"id"`
	PetID      string     `json:"pet_id"`
	UserID     string     `json:"user_id"`
	OwnerID    string     `json:"owner_id"`
	Status     ChatStatus `json:"status"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	ArchivedBy string     `json:"archived_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// HasParticipant reports whether id is on either side of the conversation.
func (c *Chat) HasParticipant(id string) bool {
	return id == c.UserID || id == c.OwnerID
}

// RoleOf maps a participant id to its viewer role. The second return is false
// for non-participants.
func (c *Chat) RoleOf(id string) (SenderType, bool) {
	switch id {
	case c.UserID:
		return SenderUser, true
	case c.OwnerID:
		return SenderOwner, true
	}
	return "", false
}

// ChatView is a chat joined with its pet summary, latest message and resolved
// participant emails, as rendered in listings.
type ChatView struct {
	*Chat
	Pet         *PetSummary `json:"pet,omitempty"`
	LastMessage *Message    `json:"last_message,omitempty"`
	UserEmail   string      `json:"user_email"`
	OwnerEmail  string      `json:"owner_email"`
}
