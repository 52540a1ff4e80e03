package controllers

import (
	"context"

	"medmine/medmine/services/ingest"
	"medmine/medmine/utils/types"
)

// IngestController exposes the ingestion service to the HTTP layer.
type IngestController struct {
	svc *ingest.Service
}

func NewIngestController(svc *ingest.Service) *IngestController {
	return &IngestController{svc: svc}
}

func (c *IngestController) Process(ctx context.Context, filename string, data []byte) (*types.ProcessResponse, error) {
	return c.svc.Process(ctx, filename, data)
}

func (c *IngestController) Data(ctx context.Context, batchID string, offset, limit int) ([]map[string]string, error) {
	return c.svc.Rows(ctx, batchID, offset, limit)
}

func (c *IngestController) Batch(ctx context.Context, batchID string) (*types.BatchStatus, error) {
	return c.svc.Status(ctx, batchID)
}

func (c *IngestController) Watch(ctx context.Context, batchID string, send func(types.BatchStatus) error) error {
	return c.svc.Watch(ctx, batchID, send)
}

func (c *IngestController) Original(ctx context.Context, batchID string) (string, []byte, error) {
	return c.svc.Original(ctx, batchID)
}
