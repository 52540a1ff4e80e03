package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"medmine/medmine/utils/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(WithBaseURL(srv.URL+"/api/v1/"), WithToken("tok"))
}

func TestProcess_SendsMultipartFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/process", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		body, _ := io.ReadAll(f)
		assert.Equal(t, "orders.csv", hdr.Filename)
		assert.Equal(t, "item,price\nGloves,450\n", string(body))
		json.NewEncoder(w).Encode(types.ProcessResponse{Status: "enqueued", BatchID: "b1", RowsLoaded: 120})
	})

	resp, err := c.Process(context.Background(), "orders.csv", strings.NewReader("item,price\nGloves,450\n"))
	require.NoError(t, err)
	assert.Equal(t, "enqueued", resp.Status)
	assert.Equal(t, "b1", resp.BatchID)
	assert.Equal(t, 120, resp.RowsLoaded)
}

func TestProcess_ErrorCarriesDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"file has no header row"}`))
	})

	_, err := c.Process(context.Background(), "orders.csv", strings.NewReader(""))
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusBadRequest, te.StatusCode)
	assert.Equal(t, "file has no header row", te.Message())
}

func TestProcess_ErrorWithoutDetailUsesStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := c.Process(context.Background(), "orders.csv", strings.NewReader("x"))
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "HTTP 502: Bad Gateway", te.Message())
}

func TestFetchData_StringifiesValues(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/data/b1", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("offset"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Write([]byte(`[{"id":"11","item":"IV Bags","price":275.5,"urgent":true,"note":null}]`))
	})

	rows, err := c.FetchData(context.Background(), "b1", 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]string{"id": "11", "item": "IV Bags", "price": "275.5", "urgent": "true", "note": ""}, rows[0])
}

func TestFetchData_EmptyArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	rows, err := c.FetchData(context.Background(), "b1", 0, 100)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestFetchData_MalformedIsBackendLogicError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rows": []}`))
	})

	_, err := c.FetchData(context.Background(), "b1", 0, 100)
	var be *BackendLogicError
	assert.True(t, errors.As(err, &be))
}

func TestChat_OmitsCSVDataWhenAbsent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, "null", string(raw["csv_data"]))
		assert.Equal(t, `"s-1"`, string(raw["session_id"]))
		w.Write([]byte(`{"response":"$1,120.75","suggestions":["Compare vendors"],"context":{"rows":0}}`))
	})

	resp, err := c.Chat(context.Background(), types.ChatRequest{Message: "What's total spending?", SessionID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, "$1,120.75", resp.Response)
	assert.Equal(t, []string{"Compare vendors"}, resp.Suggestions)
	assert.JSONEq(t, `{"rows":0}`, string(resp.Context))
}

func TestListAndGetChats(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/chats/s-1":
			w.Write([]byte(`{"chats":[{"id":"c1","title":"Gloves","created_at":"2025-07-06T22:10:00Z","message_count":4}]}`))
		case "/api/v1/chats/s-1/c1":
			w.Write([]byte(`{"messages":[{"id":"m1","role":"user","content":"hi","timestamp":"2025-07-06T22:10:00Z"}],"file_info":{"name":"orders.csv","batch_id":"b1","rows_loaded":2}}`))
		default:
			http.NotFound(w, r)
		}
	})

	chats, err := c.ListChats(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, 4, chats[0].MessageCount)

	h, err := c.GetChat(context.Background(), "s-1", "c1")
	require.NoError(t, err)
	require.Len(t, h.Messages, 1)
	require.NotNil(t, h.FileInfo)
	assert.Equal(t, "b1", h.FileInfo.BatchID)
}

func TestToWebSocketURL(t *testing.T) {
	u, err := toWebSocketURL("https://example.com/api/v1/batches/b1/ws")
	require.NoError(t, err)
	assert.Equal(t, "wss://example.com/api/v1/batches/b1/ws", u)

	_, err = toWebSocketURL("ftp://example.com")
	assert.Error(t, err)
}
