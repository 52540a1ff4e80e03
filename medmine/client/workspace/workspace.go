// Package workspace wires the client components into one chat session:
// identity, transport, conversation log, ingestion and dispatch.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"medmine/medmine/client/api"
	"medmine/medmine/client/chat"
	"medmine/medmine/client/conversation"
	"medmine/medmine/client/identity"
	"medmine/medmine/client/ingest"
	"medmine/medmine/config"
	"medmine/medmine/utils/types"

	"go.uber.org/zap"
)

// StarterQueries are offered before the assistant has suggested anything.
var StarterQueries = []string{
	"What's our total spending on gloves this year?",
	"Compare vendor A and vendor B for IV bags",
	"Which department purchased the most items?",
	"Show me the top 5 most expensive purchases",
	"How has our PPE spending changed over time?",
}

const exportTimeLayout = "2006-01-02 15:04:05"

// ErrStale is returned when the conversation was reset while a chat was
// being loaded.
var ErrStale = errors.New("workspace: stale chat dropped")

type Options struct {
	Config     config.ClientConfig
	Storage    identity.Storage
	HTTPClient *http.Client
	Logger     *zap.Logger
	Clock      func() time.Time

	// OnLoading and OnIngest forward to the dispatcher and ingestion client.
	OnLoading func(bool)
	OnIngest  func(ingest.State)
}

type Workspace struct {
	Identity *identity.Store
	API      *api.Client
	Store    *conversation.Store
	Ingest   *ingest.Client
	Chat     *chat.Dispatcher

	log *zap.Logger
	now func() time.Time
}

func New(opts Options) *Workspace {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	storage := opts.Storage
	if storage == nil && opts.Config.StateFile != "" {
		storage = identity.NewFileStorage(opts.Config.StateFile)
	}

	apiOpts := []api.Option{api.WithLogger(log.Named("api")), api.WithToken(opts.Config.Token)}
	if opts.Config.APIURL != "" {
		apiOpts = append(apiOpts, api.WithBaseURL(opts.Config.APIURL))
	}
	switch {
	case opts.HTTPClient != nil:
		apiOpts = append(apiOpts, api.WithHTTPClient(opts.HTTPClient))
	case opts.Config.Timeout > 0:
		apiOpts = append(apiOpts, api.WithHTTPClient(&http.Client{Timeout: opts.Config.Timeout}))
	}

	w := &Workspace{
		Identity: identity.NewStore(storage, identity.WithLogger(log.Named("identity"))),
		API:      api.New(apiOpts...),
		Store:    conversation.NewStore(conversation.WithClock(now)),
		log:      log,
		now:      now,
	}

	ingestOpts := []ingest.Option{ingest.WithLogger(log.Named("ingest")), ingest.WithPageSize(opts.Config.PageSize)}
	if opts.OnIngest != nil {
		ingestOpts = append(ingestOpts, ingest.WithOnChange(opts.OnIngest))
	}
	w.Ingest = ingest.NewClient(w.API, w.Store, ingestOpts...)

	chatOpts := []chat.Option{chat.WithLogger(log.Named("chat")), chat.WithDataSource(w.Ingest)}
	if opts.OnLoading != nil {
		chatOpts = append(chatOpts, chat.OnLoading(opts.OnLoading))
	}
	w.Chat = chat.NewDispatcher(w.API, w.Store, w.Identity.GetOrCreateSessionID, chatOpts...)
	return w
}

// SessionID is the durable conversation identity.
func (w *Workspace) SessionID() string {
	return w.Identity.GetOrCreateSessionID()
}

// History lists the persisted chats of the session. A failure is also left
// in the conversation as one system message unless it was reset meanwhile.
func (w *Workspace) History(ctx context.Context) ([]types.ChatSummary, error) {
	epoch := w.Store.Epoch()
	chats, err := w.API.ListChats(ctx, w.SessionID())
	if err != nil {
		w.log.Warn("list chats failed", zap.Error(err))
		w.systemNoteAt(epoch, "Failed to load chat history: "+api.Describe(err))
		return nil, err
	}
	return chats, nil
}

// Resume replaces the conversation with a persisted chat and restores the
// file context it was held against. A chat that arrives after the
// conversation was reset or replaced is dropped with ErrStale.
func (w *Workspace) Resume(ctx context.Context, chatID string) error {
	epoch := w.Store.Epoch()
	h, err := w.API.GetChat(ctx, w.SessionID(), chatID)
	if err != nil {
		w.log.Warn("load chat failed", zap.String("chat_id", chatID), zap.Error(err))
		if !w.systemNoteAt(epoch, "Failed to load chat session: "+api.Describe(err)) {
			return ErrStale
		}
		return err
	}

	msgs := make([]conversation.Message, 0, len(h.Messages))
	for _, m := range h.Messages {
		msgs = append(msgs, conversation.Message{
			Role:        roleOf(m.Role),
			Text:        m.Content,
			CreatedAt:   m.Timestamp,
			Suggestions: m.Suggestions,
			Context:     m.Context,
		})
	}
	loaded, ok := w.Store.LoadFromAt(epoch, msgs)
	if !ok {
		w.log.Info("stale chat dropped", zap.String("chat_id", chatID))
		return ErrStale
	}
	if !w.Chat.SetChatIDAt(loaded, chatID) {
		return ErrStale
	}

	var file *ingest.UploadedFile
	var batch *ingest.Batch
	var page ingest.DataPage
	if h.FileInfo != nil {
		file = &ingest.UploadedFile{
			Name:      h.FileInfo.Name,
			Extension: strings.ToLower(filepath.Ext(h.FileInfo.Name)),
		}
		if h.FileInfo.BatchID != "" {
			batch = &ingest.Batch{
				ID:        h.FileInfo.BatchID,
				TotalRows: h.FileInfo.RowsLoaded,
				Columns:   h.FileInfo.Columns,
			}
		}
		if h.FileData != nil {
			page = make(ingest.DataPage, 0, len(h.FileData))
			for _, r := range h.FileData {
				page = append(page, ingest.Row(r))
			}
		}
	}
	if !w.Ingest.RestoreAt(loaded, file, batch, page) {
		return ErrStale
	}
	return nil
}

// NewChat starts an empty conversation. The session id is kept.
func (w *Workspace) NewChat() {
	w.Store.Reset()
	w.Ingest.Clear()
	w.Chat.SetChatID("")
}

// Export writes a plain-text transcript of the conversation.
func (w *Workspace) Export(out io.Writer) error {
	var b strings.Builder
	b.WriteString("MedMine Chat Export\n")
	fmt.Fprintf(&b, "Date: %s\n", w.now().Format(exportTimeLayout))
	if f := w.Ingest.State().File; f != nil {
		fmt.Fprintf(&b, "Data File: %s\n", f.Name)
	} else {
		b.WriteString("No data file uploaded\n")
	}
	b.WriteString(strings.Repeat("=", 50))
	b.WriteString("\n\n")

	for i, m := range w.Store.Messages() {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s] %s: %s", m.CreatedAt.Format(exportTimeLayout), Sender(m.Role), m.Text)
	}
	b.WriteString("\n")

	_, err := io.WriteString(out, b.String())
	return err
}

// ExportFileName is the default transcript name for the given day.
func ExportFileName(t time.Time) string {
	return "medmine-chat-" + t.Format("2006-01-02") + ".txt"
}

// Suggestions returns the newest assistant suggestions, or the starter
// queries when there are none.
func (w *Workspace) Suggestions() []string {
	msgs := w.Store.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != conversation.RoleAssistant {
			continue
		}
		if len(msgs[i].Suggestions) > 0 {
			return append([]string(nil), msgs[i].Suggestions...)
		}
		break
	}
	return append([]string(nil), StarterQueries...)
}

// Sender is the display name of a role.
func Sender(r conversation.Role) string {
	switch r {
	case conversation.RoleUser:
		return "You"
	case conversation.RoleAssistant:
		return "Earl"
	default:
		return "System"
	}
}

func (w *Workspace) systemNoteAt(epoch uint64, text string) bool {
	_, ok := w.Store.AppendAt(epoch, conversation.Message{Role: conversation.RoleSystem, Text: text})
	return ok
}

func roleOf(s string) conversation.Role {
	switch conversation.Role(s) {
	case conversation.RoleUser, conversation.RoleAssistant:
		return conversation.Role(s)
	default:
		return conversation.RoleSystem
	}
}
