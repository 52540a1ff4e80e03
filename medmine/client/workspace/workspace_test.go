package workspace

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"medmine/medmine/client/conversation"
	"medmine/medmine/client/identity"
	"medmine/medmine/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixed = time.Date(2025, 7, 6, 22, 10, 0, 0, time.UTC)

func newWorkspace(t *testing.T, h http.HandlerFunc) *Workspace {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	storage := identity.NewMemoryStorage()
	require.NoError(t, storage.Set(identity.SessionKey, "s-1"))
	return New(Options{
		Config:  config.ClientConfig{APIURL: srv.URL + "/api/v1", PageSize: 100},
		Storage: storage,
		Clock:   func() time.Time { return fixed },
	})
}

func TestResume_LoadsHistoryAndFile(t *testing.T) {
	w := newWorkspace(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/chats/s-1/c1":
			w.Write([]byte(`{
				"messages":[
					{"id":"m1","role":"user","content":"total gloves?","timestamp":"2025-07-06T22:10:00Z"},
					{"id":"m2","role":"assistant","content":"$450","timestamp":"2025-07-06T22:10:05Z","suggestions":["By vendor"]}
				],
				"file_info":{"name":"orders.csv","batch_id":"b1","rows_loaded":2,"columns":["item","price"]},
				"file_data":[{"id":"1","item":"Gloves","price":"450"}]
			}`))
		case "/api/v1/chat":
			w.Write([]byte(`{"response":"ok","chat_id":"c1"}`))
		default:
			http.NotFound(w, r)
		}
	})

	require.NoError(t, w.Resume(context.Background(), "c1"))

	msgs := w.Store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, conversation.RoleUser, msgs[0].Role)
	assert.Equal(t, "$450", msgs[1].Text)
	assert.Equal(t, []string{"By vendor"}, w.Suggestions())
	assert.Equal(t, "c1", w.Chat.ChatID())

	st := w.Ingest.State()
	require.NotNil(t, st.File)
	assert.Equal(t, "orders.csv", st.File.Name)
	require.NotNil(t, st.Batch)
	assert.Equal(t, "b1", st.Batch.ID)
	require.Len(t, st.Page, 1)

	data := w.Ingest.DataContext()
	require.NotNil(t, data)
	assert.Equal(t, []string{"item", "price"}, data.Headers)
}

func TestResume_FailureLeavesSystemMessage(t *testing.T) {
	w := newWorkspace(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"chat not found"}`))
	})

	err := w.Resume(context.Background(), "missing")
	require.Error(t, err)
	last := w.Store.Last()
	assert.Equal(t, conversation.RoleSystem, last.Role)
	assert.Contains(t, last.Text, "chat not found")
}

func TestResume_DroppedAfterNewChat(t *testing.T) {
	requested := make(chan struct{})
	release := make(chan struct{})
	w := newWorkspace(t, func(w http.ResponseWriter, r *http.Request) {
		close(requested)
		<-release
		w.Write([]byte(`{
			"messages":[{"id":"m1","role":"user","content":"old question","timestamp":"2025-07-06T22:10:00Z"}],
			"file_info":{"name":"orders.csv","batch_id":"b1","rows_loaded":1,"columns":["item"]},
			"file_data":[{"id":"1","item":"Gloves"}]
		}`))
	})

	done := make(chan error, 1)
	go func() {
		done <- w.Resume(context.Background(), "c1")
	}()
	<-requested
	w.NewChat()
	close(release)

	assert.ErrorIs(t, <-done, ErrStale)
	require.Equal(t, 1, w.Store.Len())
	assert.Equal(t, conversation.Greeting, w.Store.Last().Text)
	assert.Empty(t, w.Chat.ChatID())
	st := w.Ingest.State()
	assert.Nil(t, st.File)
	assert.Nil(t, st.Batch)
}

func TestResume_FailureAfterNewChatLeavesNoNote(t *testing.T) {
	requested := make(chan struct{})
	release := make(chan struct{})
	w := newWorkspace(t, func(w http.ResponseWriter, r *http.Request) {
		close(requested)
		<-release
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"chat not found"}`))
	})

	done := make(chan error, 1)
	go func() {
		done <- w.Resume(context.Background(), "c1")
	}()
	<-requested
	w.NewChat()
	close(release)

	assert.ErrorIs(t, <-done, ErrStale)
	require.Equal(t, 1, w.Store.Len())
	assert.Equal(t, conversation.Greeting, w.Store.Last().Text)
}

func TestHistory_FailureAfterNewChatLeavesNoNote(t *testing.T) {
	requested := make(chan struct{})
	release := make(chan struct{})
	w := newWorkspace(t, func(w http.ResponseWriter, r *http.Request) {
		close(requested)
		<-release
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"database down"}`))
	})

	done := make(chan error, 1)
	go func() {
		_, err := w.History(context.Background())
		done <- err
	}()
	<-requested
	w.NewChat()
	close(release)

	require.Error(t, <-done)
	require.Equal(t, 1, w.Store.Len())
	assert.Equal(t, conversation.Greeting, w.Store.Last().Text)
}

func TestHistory(t *testing.T) {
	w := newWorkspace(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chats/s-1", r.URL.Path)
		w.Write([]byte(`{"chats":[{"id":"c1","title":"Gloves","created_at":"2025-07-06T22:10:00Z","message_count":2}]}`))
	})

	chats, err := w.History(context.Background())
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "Gloves", chats[0].Title)
}

func TestNewChat_ClearsEverything(t *testing.T) {
	w := newWorkspace(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"hi","suggestions":["Next"],"chat_id":"c9"}`))
	})
	_, err := w.Chat.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "c9", w.Chat.ChatID())

	w.NewChat()

	assert.Equal(t, 1, w.Store.Len())
	assert.Equal(t, conversation.Greeting, w.Store.Last().Text)
	assert.Empty(t, w.Chat.ChatID())
	assert.Nil(t, w.Ingest.State().File)
	assert.Equal(t, StarterQueries, w.Suggestions())
	assert.Equal(t, "s-1", w.SessionID())
}

func TestExport(t *testing.T) {
	w := newWorkspace(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"$1,120.75"}`))
	})
	_, err := w.Chat.Send(context.Background(), "What's total spending?")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, w.Export(&buf))

	want := strings.Join([]string{
		"MedMine Chat Export",
		"Date: 2025-07-06 22:10:00",
		"No data file uploaded",
		strings.Repeat("=", 50),
		"",
		"[2025-07-06 22:10:00] Earl: " + conversation.Greeting,
		"",
		"[2025-07-06 22:10:00] You: What's total spending?",
		"",
		"[2025-07-06 22:10:00] Earl: $1,120.75",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
	assert.Equal(t, "medmine-chat-2025-07-06.txt", ExportFileName(fixed))
}
