package chat

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultChatName is used until the first user message renames the chat.
const DefaultChatName = "New chat"

type Chat struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"chat_id"`
	UserID    uint64    `gorm:"index;not null" json:"-"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Chat) TableName() string { return "chats" }

// Message rows always carry the role column; the reconciler's merge and the
// display ordering both depend on it.
type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID    uint64    `gorm:"not null;index:idx_msg_user_chat,priority:2" json:"chat_id"`
	UserID    uint64    `gorm:"not null;index:idx_msg_user_chat,priority:1" json:"-"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }
