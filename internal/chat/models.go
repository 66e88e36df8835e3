package chat

import "time"

const (
	SenderUser  = "user"
	SenderModel = "model"
)

// PlaceholderContent is the body of a model message whose reply is still
// streaming. The row is updated with the final text, or deleted when the
// stream yields nothing.
const PlaceholderContent = "..."

type Session struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"session_id"`
	UserID    string    `gorm:"type:varchar(64);index;not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Session) TableName() string { return "chat_sessions" }

type Message struct {
	MessageID string    `gorm:"type:varchar(36);primaryKey" json:"message_id"`
	SessionID string    `gorm:"type:varchar(26);not null;index:idx_chat_msg_session_created,priority:1" json:"session_id"`
	UserID    string    `gorm:"type:varchar(64);not null;index" json:"-"`
	Sender    string    `gorm:"type:varchar(16);not null" json:"sender"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index:idx_chat_msg_session_created,priority:2" json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }
