// medmine/sources/psql/dao/dao.chat_thread.go
package dao

import (
	"context"
	"errors"
	"time"

	"medmine/medmine/sources/psql/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatThreadDAO struct {
	DB *gorm.DB
}

func NewChatThreadDAO(db *gorm.DB) *ChatThreadDAO {
	return &ChatThreadDAO{DB: db}
}

// ThreadSummary is a thread with the number of messages it holds.
type ThreadSummary struct {
	ID           uuid.UUID
	Title        string
	CreatedAt    time.Time
	MessageCount int
}

func (dao *ChatThreadDAO) CreateThread(ctx context.Context, thread *models.ChatThread) error {
	return dao.DB.WithContext(ctx).Create(thread).Error
}

// GetThread returns the thread only when it belongs to sessionID.
func (dao *ChatThreadDAO) GetThread(ctx context.Context, sessionID string, id uuid.UUID) (*models.ChatThread, error) {
	var thread models.ChatThread
	err := dao.DB.WithContext(ctx).
		Where("id = ? AND session_id = ?", id, sessionID).
		First(&thread).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

// ListThreads returns the threads of a session, most recently active first.
func (dao *ChatThreadDAO) ListThreads(ctx context.Context, sessionID string) ([]ThreadSummary, error) {
	var threads []models.ChatThread
	err := dao.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("updated_at DESC").
		Find(&threads).Error
	if err != nil {
		return nil, err
	}
	if len(threads) == 0 {
		return []ThreadSummary{}, nil
	}

	ids := make([]uuid.UUID, 0, len(threads))
	for _, t := range threads {
		ids = append(ids, t.ID)
	}
	var counts []struct {
		ThreadID uuid.UUID
		N        int
	}
	err = dao.DB.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Select("thread_id, COUNT(*) AS n").
		Where("thread_id IN ?", ids).
		Group("thread_id").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	byThread := make(map[uuid.UUID]int, len(counts))
	for _, c := range counts {
		byThread[c.ThreadID] = c.N
	}

	out := make([]ThreadSummary, 0, len(threads))
	for _, t := range threads {
		out = append(out, ThreadSummary{ID: t.ID, Title: t.Title, CreatedAt: t.CreatedAt, MessageCount: byThread[t.ID]})
	}
	return out, nil
}

// AppendMessages stores msgs in order and bumps the thread's updated_at.
func (dao *ChatThreadDAO) AppendMessages(ctx context.Context, threadID uuid.UUID, msgs ...*models.ChatMessage) error {
	return dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range msgs {
			m.ThreadID = threadID
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.ChatThread{}).Where("id = ?", threadID).Update("updated_at", time.Now().UTC()).Error
	})
}

// AttachBatch records the file the thread is currently held against.
func (dao *ChatThreadDAO) AttachBatch(ctx context.Context, threadID, batchID uuid.UUID, fileName string) error {
	return dao.DB.WithContext(ctx).Model(&models.ChatThread{}).Where("id = ?", threadID).Updates(map[string]interface{}{
		"batch_id":  batchID,
		"file_name": fileName,
	}).Error
}

// ListMessages returns the messages of a thread in conversation order.
func (dao *ChatThreadDAO) ListMessages(ctx context.Context, threadID uuid.UUID) ([]models.ChatMessage, error) {
	msgs := []models.ChatMessage{}
	err := dao.DB.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("timestamp ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// RecentMessages returns up to limit newest messages, oldest first.
func (dao *ChatThreadDAO) RecentMessages(ctx context.Context, threadID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := dao.DB.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (dao *ChatThreadDAO) DeleteThread(ctx context.Context, sessionID string, id uuid.UUID) error {
	return dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND session_id = ?", id, sessionID).Delete(&models.ChatThread{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("thread_id = ?", id).Delete(&models.ChatMessage{}).Error
	})
}
