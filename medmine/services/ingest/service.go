// Package ingest turns uploaded files into stored batches of rows.
//
// Small tables are stored while the upload request waits and are answered
// with status "success". Larger ones are answered "enqueued" as soon as
// they are parsed and stored by the background Queue; watchers learn about
// the outcome through the Broker.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"medmine/medmine/sources/psql/dao"
	"medmine/medmine/sources/psql/models"
	"medmine/medmine/utils/logging"
	"medmine/medmine/utils/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

var (
	ErrBatchNotFound = errors.New("batch not found")
	ErrNotArchived   = errors.New("original upload is not archived")
)

// Archiver keeps the raw bytes of uploads.
type Archiver interface {
	ArchiveUpload(ctx context.Context, batchID uuid.UUID, filename, contentType string, data []byte) (string, error)
	GetUpload(ctx context.Context, key string) ([]byte, error)
}

type Service struct {
	batches  *dao.BatchDAO
	queue    *Queue
	broker   *Broker
	archive  Archiver
	syncRows int
}

type Option func(*Service)

// WithArchive stores every accepted upload through a.
func WithArchive(a Archiver) Option {
	return func(s *Service) {
		s.archive = a
	}
}

// WithSyncRows sets the largest table stored inline.
func WithSyncRows(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.syncRows = n
		}
	}
}

func NewService(batches *dao.BatchDAO, queue *Queue, broker *Broker, opts ...Option) *Service {
	s := &Service{
		batches:  batches,
		queue:    queue,
		broker:   broker,
		syncRows: 500,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process parses one upload and creates its batch.
func (s *Service) Process(ctx context.Context, filename string, data []byte) (*types.ProcessResponse, error) {
	defer logging.LogDuration(ctx, "ingest_process")()
	filename = filepath.Base(filename)

	table, err := Parse(filename, data)
	if err != nil {
		return nil, err
	}
	records := table.Records()
	cols, err := json.Marshal(table.Columns)
	if err != nil {
		return nil, err
	}
	batch := &models.Batch{
		ID:         uuid.New(),
		FileName:   filename,
		RowsLoaded: len(records),
		Columns:    datatypes.JSON(cols),
	}

	if s.archive != nil {
		key, err := s.archive.ArchiveUpload(ctx, batch.ID, filename, http.DetectContentType(data), data)
		if err != nil {
			// the rows are still usable without the raw file
			logging.ErrorLogger.Warn("upload archive failed", zap.String("batch_id", batch.ID.String()), zap.Error(err))
		} else {
			batch.ObjectKey = key
		}
	}

	if len(records) <= s.syncRows || s.queue == nil {
		batch.Status = types.StatusSuccess
		if err := s.batches.CreateBatchWithRows(ctx, batch, records); err != nil {
			return nil, fmt.Errorf("store batch: %w", err)
		}
	} else {
		batch.Status = types.StatusEnqueued
		if err := s.batches.CreateBatch(ctx, batch); err != nil {
			return nil, fmt.Errorf("store batch: %w", err)
		}
		job := Job{BatchID: batch.ID, FileName: filename, Columns: table.Columns, Rows: records}
		if err := s.queue.Enqueue(job); err != nil {
			if mErr := s.batches.MarkFailed(ctx, batch.ID, err.Error()); mErr != nil {
				logging.ErrorLogger.Error("mark batch failed", zap.String("batch_id", batch.ID.String()), zap.Error(mErr))
			}
			return nil, err
		}
	}

	logging.AppLogger.Info("batch created",
		zap.String("batch_id", batch.ID.String()),
		zap.String("file", filename),
		zap.String("status", batch.Status),
		zap.Int("rows", batch.RowsLoaded),
	)
	return &types.ProcessResponse{
		Status:     batch.Status,
		BatchID:    batch.ID.String(),
		RowsLoaded: batch.RowsLoaded,
		Columns:    table.Columns,
	}, nil
}

// Rows returns one page of a batch. Every row carries its 1-based id.
// Rows of an enqueued batch are empty until the queue has stored them.
func (s *Service) Rows(ctx context.Context, batchID string, offset, limit int) ([]map[string]string, error) {
	batch, err := s.lookup(ctx, batchID)
	if err != nil {
		return nil, err
	}
	offset, limit = ClampPage(offset, limit)
	rows, err := s.batches.ListRows(ctx, batch.ID, offset, limit)
	if err != nil {
		return nil, err
	}
	return RowMaps(rows)
}

// Status reports the stored state of a batch.
func (s *Service) Status(ctx context.Context, batchID string) (*types.BatchStatus, error) {
	batch, err := s.lookup(ctx, batchID)
	if err != nil {
		return nil, err
	}
	st := statusOf(batch)
	return &st, nil
}

// Watch calls send with the current status of a batch and then with every
// change until the batch is terminal or ctx is done.
func (s *Service) Watch(ctx context.Context, batchID string, send func(types.BatchStatus) error) error {
	updates, cancel := s.broker.Subscribe(batchID)
	defer cancel()

	st, err := s.Status(ctx, batchID)
	if err != nil {
		return err
	}
	if err := send(*st); err != nil || st.Terminal() {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case next := <-updates:
			if err := send(next); err != nil || next.Terminal() {
				return err
			}
		}
	}
}

// Original returns the archived upload of a batch.
func (s *Service) Original(ctx context.Context, batchID string) (string, []byte, error) {
	batch, err := s.lookup(ctx, batchID)
	if err != nil {
		return "", nil, err
	}
	if s.archive == nil || batch.ObjectKey == "" {
		return "", nil, ErrNotArchived
	}
	data, err := s.archive.GetUpload(ctx, batch.ObjectKey)
	if err != nil {
		return "", nil, err
	}
	return batch.FileName, data, nil
}

func (s *Service) lookup(ctx context.Context, batchID string) (*models.Batch, error) {
	id, err := uuid.Parse(batchID)
	if err != nil {
		return nil, ErrBatchNotFound
	}
	batch, err := s.batches.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, ErrBatchNotFound
	}
	return batch, nil
}

// ClampPage applies the default and maximum page size.
func ClampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return offset, limit
}

// RowMaps decodes stored rows and adds the row id.
func RowMaps(rows []models.BatchRow) ([]map[string]string, error) {
	out := make([]map[string]string, 0, len(rows))
	for _, r := range rows {
		m := map[string]string{}
		if err := json.Unmarshal(r.Data, &m); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", r.Position, err)
		}
		m[types.RowIDField] = strconv.Itoa(r.Position + 1)
		out = append(out, m)
	}
	return out, nil
}

// Columns decodes the column list of a batch.
func Columns(b *models.Batch) []string {
	var cols []string
	if len(b.Columns) > 0 {
		_ = json.Unmarshal(b.Columns, &cols)
	}
	return cols
}

func statusOf(b *models.Batch) types.BatchStatus {
	return types.BatchStatus{
		BatchID:    b.ID.String(),
		Status:     b.Status,
		RowsLoaded: b.RowsLoaded,
		Columns:    Columns(b),
		Detail:     b.Detail,
	}
}
