package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxMessageLength is counted in characters, not bytes.
const MaxMessageLength = 5000

// Message is immutable after insert except for ReadAt, which only moves
// from nil to set and only for readers other than the sender.
type Message struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ConversationID uuid.UUID  `json:"conversationId" gorm:"type:uuid;not null;index"`
	SenderID       uuid.UUID  `json:"senderId" gorm:"type:uuid;not null"`
	Content        string     `json:"content" gorm:"type:text;not null"`
	CreatedAt      time.Time  `json:"createdAt" gorm:"index"`
	ReadAt         *time.Time `json:"readAt"`

	Conversation *Conversation `json:"-" gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

// IsUnreadFor reports whether the message counts as unread for readerID.
func (m *Message) IsUnreadFor(readerID uuid.UUID) bool {
	return m.SenderID != readerID && m.ReadAt == nil
}

// ValidateMessageContent checks a message body before it is sent.
func ValidateMessageContent(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ValidationFailed("content", "message must not be empty")
	}
	if utf8.RuneCountInString(trimmed) > MaxMessageLength {
		return ValidationFailed("content", "message is too long")
	}
	return nil
}
