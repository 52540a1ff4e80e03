package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestUploadKey(t *testing.T) {
	id := uuid.MustParse("5f1b6f2e-3c1a-4a47-9a54-0d3c8f1e2b7a")
	at := time.Date(2025, 7, 6, 23, 30, 0, 0, time.FixedZone("X", -2*3600))

	key := UploadKey(id, "../../etc/orders.csv", at)
	assert.Equal(t, "uploads/2025/07/07/5f1b6f2e-3c1a-4a47-9a54-0d3c8f1e2b7a/orders.csv", key)
}
