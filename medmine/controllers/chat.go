package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"medmine/medmine/services/ingest"
	"medmine/medmine/services/llm"
	"medmine/medmine/sources/psql/dao"
	"medmine/medmine/sources/psql/models"
	"medmine/medmine/utils/jsonutils"
	"medmine/medmine/utils/logging"
	"medmine/medmine/utils/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	historyTurns   = 10
	maxPromptRows  = 200
	titleLength    = 60
	resumePageSize = 100
)

var (
	ErrEmptyMessage = errors.New("message must not be empty")
	ErrNoSession    = errors.New("session_id is required")
	ErrChatNotFound = errors.New("chat not found")
)

// AssistantError is a failure of the language model behind /chat.
type AssistantError struct {
	Err error
}

func (e *AssistantError) Error() string {
	return "assistant unavailable: " + e.Err.Error()
}

func (e *AssistantError) Unwrap() error {
	return e.Err
}

const systemPrompt = `You are Earl, an assistant for hospital purchase order and procurement data analysis.
Answer using the data sample when one is provided. If the sample cannot answer the question, say so.
Provide a concise response with a direct answer, relevant examples from the data and any patterns observed.
Reply with a single JSON object and nothing else:
{"response": "<answer in markdown>", "suggestions": ["<follow-up question>", "..."]}
Give at most three suggestions.`

type ChatController struct {
	threads *dao.ChatThreadDAO
	batches *dao.BatchDAO
	runner  llm.Runner
	model   string
}

func NewChatController(threads *dao.ChatThreadDAO, batches *dao.BatchDAO, runner llm.Runner, model string) *ChatController {
	return &ChatController{threads: threads, batches: batches, runner: runner, model: model}
}

func (c *ChatController) Chat(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	defer logging.LogDuration(ctx, "chat_controller_chat")()
	question := strings.TrimSpace(req.Message)
	if question == "" {
		return nil, ErrEmptyMessage
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, ErrNoSession
	}

	thread, err := c.thread(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.CSVData != nil {
		if id, err := uuid.Parse(req.CSVData.BatchID); err == nil && (thread.BatchID == nil || *thread.BatchID != id) {
			if err := c.threads.AttachBatch(ctx, thread.ID, id, req.CSVData.Filename); err != nil {
				return nil, err
			}
		}
	}

	history, err := c.threads.RecentMessages(ctx, thread.ID, historyTurns*2)
	if err != nil {
		return nil, err
	}
	messages := []llm.Message{{Role: "system", Content: systemPrompt}}
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: BuildPrompt(question, req.CSVData)})

	raw, err := c.runner.Run(ctx, llm.ChatRequest{Model: c.model, Messages: messages})
	if err != nil {
		logging.ErrorLogger.Error("llm run failed", zap.String("chat_id", thread.ID.String()), zap.Error(err))
		return nil, &AssistantError{Err: err}
	}
	answer, suggestions := parseAnswer(raw)
	echo := contextEcho(req.CSVData)

	now := time.Now().UTC()
	userMsg := &models.ChatMessage{Role: "user", Content: question, Timestamp: now}
	botMsg := &models.ChatMessage{
		Role:        "assistant",
		Content:     answer,
		Suggestions: jsonOrNil(suggestions),
		Context:     datatypes.JSON(echo),
		Timestamp:   now.Add(time.Millisecond),
	}
	if err := c.threads.AppendMessages(ctx, thread.ID, userMsg, botMsg); err != nil {
		return nil, err
	}

	return &types.ChatResponse{
		Response:    answer,
		Suggestions: suggestions,
		Context:     echo,
		ChatID:      thread.ID.String(),
	}, nil
}

func (c *ChatController) thread(ctx context.Context, req types.ChatRequest) (*models.ChatThread, error) {
	if req.ChatID != "" {
		id, err := uuid.Parse(req.ChatID)
		if err != nil {
			return nil, ErrChatNotFound
		}
		t, err := c.threads.GetThread(ctx, req.SessionID, id)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, ErrChatNotFound
		}
		return t, nil
	}
	t := &models.ChatThread{SessionID: req.SessionID, Title: Title(req.Message)}
	if req.CSVData != nil {
		t.FileName = req.CSVData.Filename
		if id, err := uuid.Parse(req.CSVData.BatchID); err == nil {
			t.BatchID = &id
		}
	}
	if err := c.threads.CreateThread(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (c *ChatController) ListChats(ctx context.Context, sessionID string) (*types.ChatListResponse, error) {
	threads, err := c.threads.ListThreads(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := &types.ChatListResponse{Chats: make([]types.ChatSummary, 0, len(threads))}
	for _, t := range threads {
		out.Chats = append(out.Chats, types.ChatSummary{
			ID:           t.ID.String(),
			Title:        t.Title,
			CreatedAt:    t.CreatedAt,
			MessageCount: t.MessageCount,
		})
	}
	return out, nil
}

// GetChat returns a thread's messages and, when it was held against a
// batch that still exists, the file info and first page of that batch.
func (c *ChatController) GetChat(ctx context.Context, sessionID, chatID string) (*types.ChatHistoryResponse, error) {
	id, err := uuid.Parse(chatID)
	if err != nil {
		return nil, ErrChatNotFound
	}
	thread, err := c.threads.GetThread(ctx, sessionID, id)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, ErrChatNotFound
	}
	msgs, err := c.threads.ListMessages(ctx, thread.ID)
	if err != nil {
		return nil, err
	}

	out := &types.ChatHistoryResponse{Messages: make([]types.HistoryMessage, 0, len(msgs))}
	for _, m := range msgs {
		hm := types.HistoryMessage{
			ID:        m.ID.String(),
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp,
		}
		if len(m.Suggestions) > 0 {
			_ = json.Unmarshal(m.Suggestions, &hm.Suggestions)
		}
		if len(m.Context) > 0 {
			hm.Context = json.RawMessage(m.Context)
		}
		out.Messages = append(out.Messages, hm)
	}

	if thread.BatchID == nil {
		return out, nil
	}
	batch, err := c.batches.GetBatch(ctx, *thread.BatchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		logging.AppLogger.Info("chat batch is gone", zap.String("chat_id", chatID), zap.String("batch_id", thread.BatchID.String()))
		return out, nil
	}
	name := thread.FileName
	if name == "" {
		name = batch.FileName
	}
	out.FileInfo = &types.FileInfo{
		Name:       name,
		BatchID:    batch.ID.String(),
		RowsLoaded: batch.RowsLoaded,
		Columns:    ingest.Columns(batch),
	}
	rows, err := c.batches.ListRows(ctx, batch.ID, 0, resumePageSize)
	if err != nil {
		return nil, err
	}
	if out.FileData, err = ingest.RowMaps(rows); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ChatController) DeleteChat(ctx context.Context, sessionID, chatID string) error {
	id, err := uuid.Parse(chatID)
	if err != nil {
		return ErrChatNotFound
	}
	thread, err := c.threads.GetThread(ctx, sessionID, id)
	if err != nil {
		return err
	}
	if thread == nil {
		return ErrChatNotFound
	}
	return c.threads.DeleteThread(ctx, sessionID, id)
}

// BuildPrompt renders the question with a markdown table of the sample.
func BuildPrompt(question string, data *types.CSVData) string {
	if data == nil || len(data.Data) == 0 {
		return "No data file is attached.\n\nUser Question: " + question
	}
	headers := data.Headers
	if len(headers) == 0 {
		for k := range data.Data[0] {
			if k != types.RowIDField {
				headers = append(headers, k)
			}
		}
		sort.Strings(headers)
	}

	var b strings.Builder
	rows := data.Data
	if len(rows) > maxPromptRows {
		rows = rows[:maxPromptRows]
	}
	fmt.Fprintf(&b, "Data file %q (%d rows in this sample, showing %d):\n\n", data.Filename, data.RowCount, len(rows))
	b.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat("---|", len(headers)) + "\n")
	for _, row := range rows {
		cells := make([]string, len(headers))
		for i, h := range headers {
			cells[i] = cell(row[h])
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	b.WriteString("\nUser Question: ")
	b.WriteString(question)
	return b.String()
}

// Title is the first line of the opening message, shortened.
func Title(message string) string {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(message), "\n", 2)[0])
	if utf8.RuneCountInString(line) <= titleLength {
		return line
	}
	r := []rune(line)
	return strings.TrimSpace(string(r[:titleLength-3])) + "..."
}

func cell(v string) string {
	v = strings.ReplaceAll(v, "|", `\|`)
	return strings.Join(strings.Fields(v), " ")
}

// parseAnswer accepts the requested JSON reply and falls back to plain text.
func parseAnswer(raw string) (string, []string) {
	var out struct {
		Response    string   `json:"response"`
		Suggestions []string `json:"suggestions"`
	}
	if err := jsonutils.DecodeLLMObject(raw, &out); err != nil || strings.TrimSpace(out.Response) == "" {
		return strings.TrimSpace(raw), nil
	}
	suggestions := out.Suggestions[:0:0]
	for _, s := range out.Suggestions {
		if s = strings.TrimSpace(s); s != "" {
			suggestions = append(suggestions, s)
		}
	}
	if len(suggestions) == 0 {
		suggestions = nil
	}
	return strings.TrimSpace(out.Response), suggestions
}

func contextEcho(data *types.CSVData) json.RawMessage {
	if data == nil {
		return nil
	}
	b, err := json.Marshal(map[string]interface{}{
		"filename":      data.Filename,
		"batch_id":      data.BatchID,
		"rows_analyzed": len(data.Data),
		"summary":       fmt.Sprintf("Analyzed %d rows", len(data.Data)),
	})
	if err != nil {
		return nil
	}
	return b
}

func jsonOrNil(v []string) datatypes.JSON {
	if len(v) == 0 {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
