// Package chat sends user turns to the assistant and records the replies.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"medmine/medmine/client/api"
	"medmine/medmine/client/conversation"
	"medmine/medmine/utils/types"

	"go.uber.org/zap"
)

var (
	// ErrSendInProgress is returned while a previous turn is unresolved.
	ErrSendInProgress = errors.New("chat: a message is already being sent")
	// ErrStale is returned when the conversation was reset before the reply arrived.
	ErrStale = errors.New("chat: stale reply dropped")
)

// ErrorPrefix starts the assistant message of a failed turn.
const ErrorPrefix = "⚠️ Error: "

// ChatError is a failed turn. The user message stays in the log.
type ChatError struct {
	Message string
	Err     error
}

func (e *ChatError) Error() string {
	return fmt.Sprintf("chat %q: %v", e.Message, e.Err)
}

func (e *ChatError) Unwrap() error {
	return e.Err
}

// Backend is the part of the API the dispatcher needs.
type Backend interface {
	Chat(ctx context.Context, body types.ChatRequest) (*types.ChatResponse, error)
}

// DataSource provides the data sample attached to each turn; nil when no
// page is held.
type DataSource interface {
	DataContext() *types.CSVData
}

// Turn is one user message and the reply it produced.
type Turn struct {
	User  conversation.Message
	Reply conversation.Message
}

type Dispatcher struct {
	api       Backend
	store     *conversation.Store
	data      DataSource
	sessionID func() string
	log       *zap.Logger
	onLoading func(bool)

	mu      sync.Mutex
	loading bool
	chatID  string
}

type Option func(*Dispatcher)

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		d.log = l
	}
}

// WithDataSource attaches the sample of the held data page to each turn.
func WithDataSource(ds DataSource) Option {
	return func(d *Dispatcher) {
		d.data = ds
	}
}

// OnLoading registers fn to be told when the loading indicator changes.
func OnLoading(fn func(bool)) Option {
	return func(d *Dispatcher) {
		d.onLoading = fn
	}
}

// NewDispatcher builds a dispatcher. sessionID is read on every send.
func NewDispatcher(backend Backend, store *conversation.Store, sessionID func() string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		api:       backend,
		store:     store,
		sessionID: sessionID,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send runs one turn. Blank text is a no-op and returns (nil, nil).
func (d *Dispatcher) Send(ctx context.Context, text string) (*Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	d.mu.Lock()
	if d.loading {
		d.mu.Unlock()
		return nil, ErrSendInProgress
	}
	d.loading = true
	chatID := d.chatID
	d.mu.Unlock()
	d.notifyLoading(true)
	defer d.finish()

	epoch := d.store.Epoch()
	user := d.store.Append(conversation.Message{Role: conversation.RoleUser, Text: text})

	req := types.ChatRequest{
		Message:   text,
		SessionID: d.sessionID(),
		ChatID:    chatID,
	}
	if d.data != nil {
		req.CSVData = d.data.DataContext()
	}

	resp, err := d.api.Chat(ctx, req)
	if err != nil {
		d.log.Warn("chat failed", zap.Error(err))
		reply, ok := d.store.AppendAt(epoch, conversation.Message{
			Role: conversation.RoleAssistant,
			Text: ErrorPrefix + describe(err),
		})
		if !ok {
			return nil, ErrStale
		}
		return &Turn{User: user, Reply: reply}, &ChatError{Message: text, Err: err}
	}

	reply, ok := d.store.AppendAt(epoch, conversation.Message{
		Role:        conversation.RoleAssistant,
		Text:        resp.Response,
		Suggestions: resp.Suggestions,
		Context:     resp.Context,
	})
	if !ok {
		return nil, ErrStale
	}
	if resp.ChatID != "" && !d.SetChatIDAt(epoch, resp.ChatID) {
		return nil, ErrStale
	}
	return &Turn{User: user, Reply: reply}, nil
}

// Loading reports whether a turn is outstanding.
func (d *Dispatcher) Loading() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loading
}

// ChatID is the server thread the next turn continues; empty starts a new one.
func (d *Dispatcher) ChatID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chatID
}

func (d *Dispatcher) SetChatID(id string) {
	d.mu.Lock()
	d.chatID = id
	d.mu.Unlock()
}

// SetChatIDAt sets the chat id only while epoch is the current epoch of
// the conversation.
func (d *Dispatcher) SetChatIDAt(epoch uint64, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if epoch != d.store.Epoch() {
		return false
	}
	d.chatID = id
	return true
}

func (d *Dispatcher) finish() {
	d.mu.Lock()
	d.loading = false
	d.mu.Unlock()
	d.notifyLoading(false)
}

func (d *Dispatcher) notifyLoading(v bool) {
	if d.onLoading != nil {
		d.onLoading(v)
	}
}

func describe(err error) string {
	return api.Describe(err)
}
