// medmine/sources/psql/dao/dao.batch.go
package dao

import (
	"context"
	"encoding/json"
	"errors"

	"medmine/medmine/sources/psql/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const insertChunk = 500

type BatchDAO struct {
	DB *gorm.DB
}

func NewBatchDAO(db *gorm.DB) *BatchDAO {
	return &BatchDAO{DB: db}
}

func (dao *BatchDAO) CreateBatch(ctx context.Context, batch *models.Batch) error {
	return dao.DB.WithContext(ctx).Create(batch).Error
}

// CreateBatchWithRows stores the batch and all of its rows atomically.
func (dao *BatchDAO) CreateBatchWithRows(ctx context.Context, batch *models.Batch, rows []map[string]string) error {
	return dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(batch).Error; err != nil {
			return err
		}
		return insertRows(tx, batch.ID, rows)
	})
}

func (dao *BatchDAO) GetBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	var batch models.Batch
	err := dao.DB.WithContext(ctx).First(&batch, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// StoreRows replaces the rows of a batch and marks it successful.
func (dao *BatchDAO) StoreRows(ctx context.Context, id uuid.UUID, rows []map[string]string) error {
	return dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("batch_id = ?", id).Delete(&models.BatchRow{}).Error; err != nil {
			return err
		}
		if err := insertRows(tx, id, rows); err != nil {
			return err
		}
		return tx.Model(&models.Batch{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":      "success",
			"rows_loaded": len(rows),
			"detail":      "",
		}).Error
	})
}

func (dao *BatchDAO) MarkFailed(ctx context.Context, id uuid.UUID, detail string) error {
	return dao.DB.WithContext(ctx).Model(&models.Batch{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status": "failed",
		"detail": detail,
	}).Error
}

// ListRows returns rows [offset, offset+limit) in upload order.
func (dao *BatchDAO) ListRows(ctx context.Context, id uuid.UUID, offset, limit int) ([]models.BatchRow, error) {
	rows := []models.BatchRow{}
	err := dao.DB.WithContext(ctx).
		Where("batch_id = ?", id).
		Order("position ASC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (dao *BatchDAO) DeleteBatch(ctx context.Context, id uuid.UUID) error {
	return dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("batch_id = ?", id).Delete(&models.BatchRow{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Batch{}).Error
	})
}

func insertRows(tx *gorm.DB, id uuid.UUID, rows []map[string]string) error {
	if len(rows) == 0 {
		return nil
	}
	records := make([]models.BatchRow, 0, len(rows))
	for i, r := range rows {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		records = append(records, models.BatchRow{BatchID: id, Position: i, Data: datatypes.JSON(data)})
	}
	return tx.Omit(clause.Associations).CreateInBatches(records, insertChunk).Error
}
