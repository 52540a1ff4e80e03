// Package api is the HTTP client for the medmine backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"medmine/medmine/utils/types"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "http://localhost:8000/api/v1"

	maxErrorBody = 64 << 10
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
	log        *zap.Logger
}

// Option is a functional option for configuring the client
type Option func(*Client)

// WithBaseURL sets the API root, e.g. http://localhost:8000/api/v1
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.BaseURL = strings.TrimSuffix(u, "/")
	}
}

// WithToken sets the bearer token sent with every request
func WithToken(token string) Option {
	return func(c *Client) {
		c.Token = token
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.HTTPClient = httpClient
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		BaseURL: DefaultBaseURL,
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Process uploads one file as multipart field "file" to POST /process.
func (c *Client) Process(ctx context.Context, filename string, file io.Reader) (*types.ProcessResponse, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/process", pr)
	if err != nil {
		pr.CloseWithError(err)
		return nil, &TransportError{Op: "process", Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out types.ProcessResponse
	if err := c.do(req, "process", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchData reads rows [offset, offset+limit) of a batch. Values are
// rendered as strings whatever JSON type the backend used.
func (c *Client) FetchData(ctx context.Context, batchID string, offset, limit int) ([]map[string]string, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	req, err := c.newRequest(ctx, http.MethodGet, "/data/"+url.PathEscape(batchID)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &TransportError{Op: "data", Err: err}
	}

	var raw []map[string]interface{}
	if err := c.do(req, "data", &raw); err != nil {
		return nil, err
	}
	rows := make([]map[string]string, 0, len(raw))
	for _, r := range raw {
		row := make(map[string]string, len(r))
		for k, v := range r {
			row[k] = stringify(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Batch returns the current status of a batch.
func (c *Client) Batch(ctx context.Context, batchID string) (*types.BatchStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/batches/"+url.PathEscape(batchID), nil)
	if err != nil {
		return nil, &TransportError{Op: "batch", Err: err}
	}
	var out types.BatchStatus
	if err := c.do(req, "batch", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitBatch follows the batch status websocket until the batch is terminal
// or ctx is done.
func (c *Client) WaitBatch(ctx context.Context, batchID string) (*types.BatchStatus, error) {
	wsURL, err := toWebSocketURL(c.BaseURL + "/batches/" + url.PathEscape(batchID) + "/ws")
	if err != nil {
		return nil, &TransportError{Op: "watch", Err: err}
	}
	opts := &websocket.DialOptions{HTTPClient: c.wsHTTPClient()}
	if c.Token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + c.Token}}
	}
	conn, resp, err := websocket.Dial(ctx, wsURL, opts)
	if err != nil {
		te := &TransportError{Op: "watch", Err: err}
		if resp != nil {
			te.StatusCode = resp.StatusCode
		}
		return nil, te
	}
	defer conn.CloseNow()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return nil, &TransportError{Op: "watch", Err: err}
		}
		var st types.BatchStatus
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, &BackendLogicError{Op: "watch", Reason: "malformed status: " + err.Error()}
		}
		c.log.Debug("batch status", zap.String("batch_id", st.BatchID), zap.String("status", st.Status))
		if st.Terminal() {
			conn.Close(websocket.StatusNormalClosure, "")
			return &st, nil
		}
	}
}

func (c *Client) Chat(ctx context.Context, body types.ChatRequest) (*types.ChatResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Op: "chat", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	var out types.ChatResponse
	if err := c.do(req, "chat", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListChats returns the persisted chats of a session.
func (c *Client) ListChats(ctx context.Context, sessionID string) ([]types.ChatSummary, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/chats/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, &TransportError{Op: "chats", Err: err}
	}
	var out types.ChatListResponse
	if err := c.do(req, "chats", &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

// GetChat returns one persisted chat with its file context.
func (c *Client) GetChat(ctx context.Context, sessionID, chatID string) (*types.ChatHistoryResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/chats/"+url.PathEscape(sessionID)+"/"+url.PathEscape(chatID), nil)
	if err != nil {
		return nil, &TransportError{Op: "chat history", Err: err}
	}
	var out types.ChatHistoryResponse
	if err := c.do(req, "chat history", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, op string, result interface{}) error {
	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.log.Warn("request failed", zap.String("op", op), zap.Error(err))
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.log.Debug("request done",
		zap.String("op", op),
		zap.String("url", req.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Detail:     detailOf(body),
			Err:        fmt.Errorf("unexpected status code %d", resp.StatusCode),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return &BackendLogicError{Op: op, Reason: "failed to decode response: " + err.Error()}
	}
	return nil
}

// wsHTTPClient drops the overall timeout: a status stream legitimately
// outlives a normal request.
func (c *Client) wsHTTPClient() *http.Client {
	if c.HTTPClient == nil {
		return nil
	}
	hc := *c.HTTPClient
	hc.Timeout = 0
	return &hc
}

// detailOf pulls {"detail": "..."} out of an error body.
func detailOf(body []byte) string {
	var e struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err != nil || len(e.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Detail, &s); err == nil {
		return s
	}
	return string(e.Detail)
}

func toWebSocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.New("unsupported scheme " + u.Scheme)
	}
	return u.String(), nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
