// medmine/utils/types/chat.go
package types

import (
	"encoding/json"
	"time"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message   string   `json:"message"`
	SessionID string   `json:"session_id"`
	ChatID    string   `json:"chat_id,omitempty"`
	CSVData   *CSVData `json:"csv_data"`
}

// CSVData is the bounded sample of an uploaded table sent with a chat turn.
type CSVData struct {
	Filename string              `json:"filename"`
	BatchID  string              `json:"batch_id,omitempty"`
	Headers  []string            `json:"headers"`
	Data     []map[string]string `json:"data"`
	RowCount int                 `json:"row_count"`
}

type ChatResponse struct {
	Response    string          `json:"response"`
	Suggestions []string        `json:"suggestions,omitempty"`
	Context     json.RawMessage `json:"context,omitempty"`
	ChatID      string          `json:"chat_id,omitempty"`
}

// For the history panel
type ChatSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
}

type ChatListResponse struct {
	Chats []ChatSummary `json:"chats"`
}

type HistoryMessage struct {
	ID          string          `json:"id"`
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	Timestamp   time.Time       `json:"timestamp"`
	Suggestions []string        `json:"suggestions,omitempty"`
	Context     json.RawMessage `json:"context,omitempty"`
}

// ChatHistoryResponse is one resumed chat. FileInfo and FileData are set
// when the chat was held against an uploaded batch.
type ChatHistoryResponse struct {
	Messages []HistoryMessage    `json:"messages"`
	FileInfo *FileInfo           `json:"file_info,omitempty"`
	FileData []map[string]string `json:"file_data,omitempty"`
}

type FileInfo struct {
	Name       string   `json:"name"`
	BatchID    string   `json:"batch_id"`
	RowsLoaded int      `json:"rows_loaded"`
	Columns    []string `json:"columns,omitempty"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}
