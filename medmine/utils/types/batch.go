package types

const (
	StatusEnqueued = "enqueued"
	StatusSuccess  = "success"
	StatusFailed   = "failed"
)

// RowIDField is the synthetic row identity the backend adds to every data row.
const RowIDField = "id"

// ProcessResponse is the acknowledgment of POST /process.
type ProcessResponse struct {
	Status     string   `json:"status"`
	BatchID    string   `json:"batch_id"`
	RowsLoaded int      `json:"rows_loaded"`
	Columns    []string `json:"columns,omitempty"`
	Detail     string   `json:"detail,omitempty"`
}

// BatchStatus is returned by GET /batches/{id} and streamed by its websocket.
type BatchStatus struct {
	BatchID    string   `json:"batch_id"`
	Status     string   `json:"status"`
	RowsLoaded int      `json:"rows_loaded"`
	Columns    []string `json:"columns,omitempty"`
	Detail     string   `json:"detail,omitempty"`
}

func (s BatchStatus) Terminal() bool {
	return s.Status == StatusSuccess || s.Status == StatusFailed
}
