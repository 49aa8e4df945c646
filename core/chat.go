package core

import (
	"errors"
	"strings"
	"time"
)

// ProvisionalChatPrefix prefixes the ID of a chat that was synthesized locally
// and has not been confirmed by the server yet.
const ProvisionalChatPrefix = "temp_dm_"

var (
	// ErrInvalidDestination is returned when a message destination addresses
	// neither an existing chat nor a counterparty user.
	ErrInvalidDestination = errors.New("invalid destination")
	// ErrChatNotFound is returned when a chat cannot be located client-side.
	ErrChatNotFound = errors.New("chat not found")
)

// Chat represents a conversation. A chat is either confirmed (the ID was
// issued by the server) or provisional (the ID was synthesized locally while
// the first message round-trips).
type Chat struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Direct    bool      `json:"direct"`
	MemberIDs []string  `json:"member_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// Provisional reports whether the chat was synthesized locally.
func (c Chat) Provisional() bool {
	return strings.HasPrefix(c.ID, ProvisionalChatPrefix)
}

// HasMember reports whether the user is a member of the chat.
func (c Chat) HasMember(userID string) bool {
	for _, id := range c.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Counterparty returns the other member of a direct chat.
func (c Chat) Counterparty(selfID string) (string, bool) {
	if !c.Direct {
		return "", false
	}
	for _, id := range c.MemberIDs {
		if id != selfID {
			return id, true
		}
	}
	return "", false
}

// ProvisionalDirectChatID derives the sentinel ID used for a not-yet-created
// direct chat with the given counterparty.
func ProvisionalDirectChatID(userID string) string {
	return ProvisionalChatPrefix + userID
}

// NewProvisionalDirectChat synthesizes a placeholder direct chat with the
// given counterparty. It is replaced, not merged, once the server-confirmed
// chat is found.
func NewProvisionalDirectChat(selfID, userID string) Chat {
	return Chat{
		ID:        ProvisionalDirectChatID(userID),
		Direct:    true,
		MemberIDs: []string{selfID, userID},
		CreatedAt: time.Now(),
	}
}

// Message represents a chat message as consumed by the client. NotificationID
// is the server-issued identifier of the unseen-message notification attached
// to this message, distinct from the message's own ID; it is nil for messages
// that never produced a notification for the current user.
type Message struct {
	ID             string    `json:"id"`
	ChatID         string    `json:"chat_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	ReplyToID      string    `json:"reply_to_id,omitempty"`
	NotificationID *string   `json:"notification_id,omitempty"`
	Unseen         bool      `json:"unseen"`
	SentAt         time.Time `json:"sent_at"`
}

// Notification represents an unseen-message notification.
type Notification struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	MessageID string    `json:"message_id"`
	Seen      bool      `json:"seen"`
	CreatedAt time.Time `json:"created_at"`
}

// Attachment represents an uploaded file referenced by a message.
type Attachment struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
}

// Destination addresses an outgoing message. It is a tagged union: a message
// goes either to an existing chat or to a counterparty user with no chat yet,
// never both. The zero value is invalid.
type Destination struct {
	chatID string
	userID string
}

// ToChat addresses an existing chat.
func ToChat(chatID string) Destination {
	return Destination{chatID: chatID}
}

// ToUser addresses a counterparty user that has no chat with the current user
// yet. The server creates the chat as a side effect of accepting the message.
func ToUser(userID string) Destination {
	return Destination{userID: userID}
}

// ChatID returns the target chat ID, empty when the destination is a user.
func (d Destination) ChatID() string { return d.chatID }

// UserID returns the target user ID, empty when the destination is a chat.
func (d Destination) UserID() string { return d.userID }

// Validate rejects the zero value. Both-set cannot be constructed.
func (d Destination) Validate() error {
	if d.chatID == "" && d.userID == "" {
		return ErrInvalidDestination
	}
	return nil
}
