package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"medmine/medmine/client/api"
	"medmine/medmine/client/conversation"
	"medmine/medmine/utils/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	requests []types.ChatRequest
	resp     *types.ChatResponse
	err      error
	hook     func()
}

func (f *fakeBackend) Chat(_ context.Context, body types.ChatRequest) (*types.ChatResponse, error) {
	f.requests = append(f.requests, body)
	if f.hook != nil {
		f.hook()
	}
	return f.resp, f.err
}

type staticData struct{ data *types.CSVData }

func (s staticData) DataContext() *types.CSVData { return s.data }

func session() string { return "s-1" }

func TestSend_BlankIsNoop(t *testing.T) {
	backend := &fakeBackend{}
	store := conversation.NewStore()
	d := NewDispatcher(backend, store, session)

	turn, err := d.Send(context.Background(), "   \n")
	assert.NoError(t, err)
	assert.Nil(t, turn)
	assert.Empty(t, backend.requests)
	assert.Equal(t, 1, store.Len())
}

func TestSend_NoFileOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, "null", string(raw["csv_data"]))
		w.Write([]byte(`{"response":"$1,120.75","suggestions":["Compare vendors"]}`))
	}))
	defer srv.Close()

	store := conversation.NewStore()
	d := NewDispatcher(api.New(api.WithBaseURL(srv.URL)), store, session)

	turn, err := d.Send(context.Background(), "What's total spending?")
	require.NoError(t, err)
	require.NotNil(t, turn)

	msgs := store.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, conversation.RoleUser, msgs[1].Role)
	assert.Equal(t, "What's total spending?", msgs[1].Text)
	assert.Equal(t, conversation.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "$1,120.75", msgs[2].Text)
	assert.Equal(t, []string{"Compare vendors"}, msgs[2].Suggestions)
	assert.Equal(t, turn.Reply.ID, msgs[2].ID)
}

func TestSend_AttachesDataContext(t *testing.T) {
	backend := &fakeBackend{resp: &types.ChatResponse{Response: "ok", ChatID: "c1"}}
	sample := &types.CSVData{Filename: "orders.csv", Headers: []string{"item"}, Data: []map[string]string{{"item": "Gloves"}}, RowCount: 1}
	d := NewDispatcher(backend, conversation.NewStore(), session, WithDataSource(staticData{sample}))

	_, err := d.Send(context.Background(), "top vendor?")
	require.NoError(t, err)
	require.Len(t, backend.requests, 1)
	assert.Equal(t, sample, backend.requests[0].CSVData)
	assert.Equal(t, "s-1", backend.requests[0].SessionID)
	assert.Empty(t, backend.requests[0].ChatID)
	assert.Equal(t, "c1", d.ChatID())

	_, err = d.Send(context.Background(), "and the second?")
	require.NoError(t, err)
	assert.Equal(t, "c1", backend.requests[1].ChatID)
}

func TestSend_FailureKeepsUserMessage(t *testing.T) {
	backend := &fakeBackend{err: &api.TransportError{Op: "chat", StatusCode: 500, Detail: "model offline"}}
	store := conversation.NewStore()
	d := NewDispatcher(backend, store, session)

	turn, err := d.Send(context.Background(), "hello")
	var ce *ChatError
	require.ErrorAs(t, err, &ce)
	require.NotNil(t, turn)

	msgs := store.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "hello", msgs[1].Text)
	assert.Equal(t, conversation.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "⚠️ Error: model offline", msgs[2].Text)
	assert.False(t, d.Loading())
}

func TestSend_RejectsConcurrentSend(t *testing.T) {
	backend := &fakeBackend{resp: &types.ChatResponse{Response: "first"}}
	store := conversation.NewStore()
	d := NewDispatcher(backend, store, session)

	var inner error
	backend.hook = func() {
		assert.True(t, d.Loading())
		_, inner = d.Send(context.Background(), "second")
	}

	_, err := d.Send(context.Background(), "first")
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrSendInProgress)
	assert.Len(t, backend.requests, 1)
	assert.Equal(t, 3, store.Len())
}

func TestSend_StaleReplyDropped(t *testing.T) {
	backend := &fakeBackend{resp: &types.ChatResponse{Response: "late"}}
	store := conversation.NewStore()
	var loading []bool
	d := NewDispatcher(backend, store, session, OnLoading(func(v bool) { loading = append(loading, v) }))
	backend.hook = store.Reset

	_, err := d.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrStale)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, []bool{true, false}, loading)
}
