// medmine/sources/psql/models/batch.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Batch is one uploaded table. Rows live in BatchRow.
type Batch struct {
	ID         uuid.UUID      `json:"batch_id" gorm:"type:uuid;primaryKey"`
	FileName   string         `json:"file_name" gorm:"type:varchar(255);not null"`
	ObjectKey  string         `json:"object_key" gorm:"type:varchar(512);default:''"`
	Status     string         `json:"status" gorm:"type:varchar(20);not null;index"`
	RowsLoaded int            `json:"rows_loaded" gorm:"not null;default:0"`
	Columns    datatypes.JSON `json:"columns"`
	Detail     string         `json:"detail,omitempty" gorm:"type:text;default:''"`
	CreatedAt  time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Batch) TableName() string {
	return "batches"
}

func (b *Batch) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// BatchRow is one data row. Position is zero-based and dense within a batch;
// the public row id is Position+1.
type BatchRow struct {
	ID       uint           `json:"-" gorm:"primaryKey;autoIncrement"`
	BatchID  uuid.UUID      `json:"batch_id" gorm:"type:uuid;not null;index:idx_batch_rows_position,priority:1"`
	Batch    Batch          `json:"-" gorm:"foreignKey:BatchID;references:ID;constraint:OnDelete:CASCADE"`
	Position int            `json:"position" gorm:"not null;index:idx_batch_rows_position,priority:2"`
	Data     datatypes.JSON `json:"data" gorm:"not null"`
}

func (BatchRow) TableName() string {
	return "batch_rows"
}
