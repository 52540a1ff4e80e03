package dao

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"medmine/medmine/sources/psql/models"
	"medmine/medmine/sources/psql/psqltest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchDAO_RowsRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := NewBatchDAO(psqltest.New(t))

	batch := &models.Batch{FileName: "orders.csv", Status: "success", RowsLoaded: 3}
	rows := []map[string]string{
		{"item": "Gloves", "price": "450"},
		{"item": "IV Bags", "price": "275.5"},
		{"item": "Masks", "price": "12"},
	}
	require.NoError(t, d.CreateBatchWithRows(ctx, batch, rows))
	require.NotEqual(t, uuid.Nil, batch.ID)

	page, err := d.ListRows(ctx, batch.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 1, page[0].Position)

	var first map[string]string
	require.NoError(t, json.Unmarshal(page[0].Data, &first))
	assert.Equal(t, "IV Bags", first["item"])

	empty, err := d.ListRows(ctx, batch.ID, 50, 10)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestBatchDAO_GetMissing(t *testing.T) {
	d := NewBatchDAO(psqltest.New(t))
	b, err := d.GetBatch(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestBatchDAO_StoreRowsAndFail(t *testing.T) {
	ctx := context.Background()
	d := NewBatchDAO(psqltest.New(t))

	batch := &models.Batch{FileName: "big.csv", Status: "enqueued", RowsLoaded: 2}
	require.NoError(t, d.CreateBatch(ctx, batch))

	require.NoError(t, d.StoreRows(ctx, batch.ID, []map[string]string{{"a": "1"}, {"a": "2"}}))
	got, err := d.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, "success", got.Status)
	assert.Equal(t, 2, got.RowsLoaded)

	require.NoError(t, d.MarkFailed(ctx, batch.ID, "disk full"))
	got, err = d.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, "disk full", got.Detail)

	require.NoError(t, d.DeleteBatch(ctx, batch.ID))
	got, err = d.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestChatThreadDAO(t *testing.T) {
	ctx := context.Background()
	d := NewChatThreadDAO(psqltest.New(t))

	thread := &models.ChatThread{SessionID: "s-1", Title: "Gloves"}
	require.NoError(t, d.CreateThread(ctx, thread))
	other := &models.ChatThread{SessionID: "s-2", Title: "Other"}
	require.NoError(t, d.CreateThread(ctx, other))

	now := time.Now().UTC()
	require.NoError(t, d.AppendMessages(ctx, thread.ID,
		&models.ChatMessage{Role: "user", Content: "total gloves?", Timestamp: now},
		&models.ChatMessage{Role: "assistant", Content: "$450", Timestamp: now.Add(time.Millisecond)},
	))

	list, err := d.ListThreads(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, thread.ID, list[0].ID)
	assert.Equal(t, 2, list[0].MessageCount)

	none, err := d.ListThreads(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)

	got, err := d.GetThread(ctx, "s-2", thread.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "threads are scoped to their session")

	msgs, err := d.ListMessages(ctx, thread.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)

	recent, err := d.RecentMessages(ctx, thread.ID, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "$450", recent[0].Content)

	batchID := uuid.New()
	require.NoError(t, d.AttachBatch(ctx, thread.ID, batchID, "orders.csv"))
	got, err = d.GetThread(ctx, "s-1", thread.ID)
	require.NoError(t, err)
	require.NotNil(t, got.BatchID)
	assert.Equal(t, batchID, *got.BatchID)

	require.NoError(t, d.DeleteThread(ctx, "s-1", thread.ID))
	assert.Error(t, d.DeleteThread(ctx, "s-1", thread.ID))
}
