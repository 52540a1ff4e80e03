package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ChatThread is one persisted conversation of a client session.
type ChatThread struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	SessionID string     `json:"session_id" gorm:"type:varchar(255);not null;index"`
	Title     string     `json:"title" gorm:"type:varchar(255);default:''"`
	BatchID   *uuid.UUID `json:"batch_id,omitempty" gorm:"type:uuid"`
	FileName  string     `json:"file_name" gorm:"type:varchar(255);default:''"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	Messages []ChatMessage `json:"-" gorm:"foreignKey:ThreadID;constraint:OnDelete:CASCADE"`
}

func (ChatThread) TableName() string {
	return "chat_threads"
}

func (t *ChatThread) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

type ChatMessage struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	ThreadID    uuid.UUID      `json:"thread_id" gorm:"type:uuid;not null;index"`
	Role        string         `json:"role" gorm:"type:varchar(50);not null"`
	Content     string         `json:"content" gorm:"type:text;not null"`
	Suggestions datatypes.JSON `json:"suggestions"`
	Context     datatypes.JSON `json:"context"`
	Timestamp   time.Time      `json:"timestamp" gorm:"not null;index"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return nil
}
