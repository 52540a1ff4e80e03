// Package ingest drives the upload → enqueue → paginated read protocol of
// one tabular file and mirrors its batch and current page locally.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"medmine/medmine/client/api"
	"medmine/medmine/client/conversation"
	"medmine/medmine/utils/types"

	"go.uber.org/zap"
)

// DefaultPageSize is the limit used when the caller does not pick one.
const DefaultPageSize = 100

var allowedExtensions = map[string]bool{".csv": true, ".xlsx": true, ".xls": true}

// Backend is the part of the API the ingestion client talks to.
type Backend interface {
	Process(ctx context.Context, filename string, file io.Reader) (*types.ProcessResponse, error)
	FetchData(ctx context.Context, batchID string, offset, limit int) ([]map[string]string, error)
	Batch(ctx context.Context, batchID string) (*types.BatchStatus, error)
	WaitBatch(ctx context.Context, batchID string) (*types.BatchStatus, error)
}

type UploadedFile struct {
	Name      string
	Extension string
}

type Batch struct {
	ID        string
	TotalRows int
	Status    string
	Columns   []string
}

// Row maps a normalized column name to its value. It includes the
// synthetic types.RowIDField.
type Row map[string]string

// DataPage is one replaceable slice of a batch. nil means no page is held;
// an empty non-nil page is a legitimate answer for a batch still enqueued.
type DataPage []Row

// State is a snapshot for the presentation layer.
type State struct {
	File   *UploadedFile
	Batch  *Batch
	Page   DataPage
	Offset int
	Limit  int
}

type Client struct {
	api      Backend
	store    *conversation.Store
	log      *zap.Logger
	pageSize int
	onChange func(State)

	mu      sync.Mutex
	attempt uint64
	file    *UploadedFile
	batch   *Batch
	page    DataPage
	offset  int
	limit   int
}

type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithOnChange registers fn to run after every change of the mirrored state.
func WithOnChange(fn func(State)) Option {
	return func(c *Client) {
		c.onChange = fn
	}
}

func NewClient(backend Backend, store *conversation.Store, opts ...Option) *Client {
	c := &Client{
		api:      backend,
		store:    store,
		log:      zap.NewNop(),
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.limit = c.pageSize
	return c
}

// ValidateFileName returns the lower-cased extension of name when it is one
// of .csv, .xlsx or .xls.
func ValidateFileName(name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtensions[ext] {
		return "", &UnsupportedFileTypeError{Name: filepath.Base(name), Extension: ext}
	}
	return ext, nil
}

// UploadFile opens path and uploads it.
func (c *Client) UploadFile(ctx context.Context, path string) (*Batch, error) {
	if _, err := ValidateFileName(path); err != nil {
		c.rejectUnsupported(path)
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		c.store.Append(systemMessage(fmt.Sprintf("Error processing file %q: %v", filepath.Base(path), err)))
		return nil, &IngestError{Stage: "upload", FileName: filepath.Base(path), Err: err}
	}
	defer f.Close()
	return c.Upload(ctx, filepath.Base(path), f)
}

// Upload sends one file to the backend and loads the first page of its
// batch. Exactly one terminal system message is left per attempt.
func (c *Client) Upload(ctx context.Context, name string, file io.Reader) (*Batch, error) {
	name = filepath.Base(name)
	ext, err := ValidateFileName(name)
	if err != nil {
		c.rejectUnsupported(name)
		return nil, err
	}

	epoch := c.store.Epoch()
	c.mu.Lock()
	c.attempt++
	attempt := c.attempt
	c.file = &UploadedFile{Name: name, Extension: ext}
	c.batch = nil
	c.page = nil
	c.offset, c.limit = 0, c.pageSize
	limit := c.pageSize
	c.mu.Unlock()
	c.changed()

	tx, ok := c.store.Begin(epoch, systemMessage(fmt.Sprintf("Uploading %q... Please wait.", name)))
	if !ok {
		c.mu.Lock()
		if attempt == c.attempt {
			c.rollbackLocked()
		}
		c.mu.Unlock()
		c.changed()
		return nil, ErrStale
	}
	c.log.Info("upload started", zap.String("file", name))

	batch, page, err := c.process(ctx, name, file, limit)

	c.mu.Lock()
	current := attempt == c.attempt && epoch == c.store.Epoch()
	if current {
		if err != nil {
			c.rollbackLocked()
		} else {
			c.batch = batch
			c.page = page
		}
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("upload failed", zap.String("file", name), zap.Error(err))
		c.store.Resolve(tx, systemMessage(fmt.Sprintf("Error processing file %q: %s", name, describe(err))))
		if !current {
			return nil, ErrStale
		}
		c.changed()
		return nil, &IngestError{Stage: "upload", FileName: name, Err: err}
	}

	c.store.Resolve(tx, systemMessage(uploadOutcome(name, batch)))
	if !current {
		return nil, ErrStale
	}
	c.log.Info("upload accepted",
		zap.String("file", name),
		zap.String("batch_id", batch.ID),
		zap.String("status", batch.Status),
		zap.Int("rows", batch.TotalRows),
	)
	c.changed()
	out := *batch
	return &out, nil
}

func (c *Client) process(ctx context.Context, name string, file io.Reader, limit int) (*Batch, DataPage, error) {
	resp, err := c.api.Process(ctx, name, file)
	if err != nil {
		return nil, nil, err
	}
	if resp.Status != types.StatusSuccess && resp.Status != types.StatusEnqueued {
		reason := fmt.Sprintf("unexpected status %q", resp.Status)
		if resp.Detail != "" {
			reason = resp.Detail
		}
		return nil, nil, &api.BackendLogicError{Op: "process", Reason: reason}
	}
	if resp.BatchID == "" {
		return nil, nil, &api.BackendLogicError{Op: "process", Reason: "response has no batch_id"}
	}
	batch := &Batch{
		ID:        resp.BatchID,
		TotalRows: resp.RowsLoaded,
		Status:    resp.Status,
		Columns:   resp.Columns,
	}
	rows, err := c.api.FetchData(ctx, batch.ID, 0, limit)
	if err != nil {
		return nil, nil, err
	}
	return batch, toPage(rows), nil
}

// FetchPage reads one page of the held batch and replaces the held page
// with it. batchID must name the held batch.
func (c *Client) FetchPage(ctx context.Context, batchID string, offset, limit int) (DataPage, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = c.pageSize
	}
	epoch := c.store.Epoch()
	c.mu.Lock()
	switch {
	case c.batch == nil:
		c.mu.Unlock()
		return nil, ErrNoBatch
	case c.batch.ID != batchID:
		held := c.batch.ID
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is loaded, not %s", ErrOtherBatch, held, batchID)
	}
	attempt := c.attempt
	c.mu.Unlock()

	rows, err := c.api.FetchData(ctx, batchID, offset, limit)

	c.mu.Lock()
	if attempt != c.attempt || epoch != c.store.Epoch() {
		c.mu.Unlock()
		return nil, ErrStale
	}
	if err != nil {
		name := c.fileNameLocked()
		c.rollbackLocked()
		c.mu.Unlock()
		c.changed()
		c.log.Warn("page fetch failed", zap.String("batch_id", batchID), zap.Error(err))
		c.store.AppendAt(epoch, systemMessage(fmt.Sprintf("Error loading rows of batch %s: %s", batchID, describe(err))))
		return nil, &IngestError{Stage: "fetch", FileName: name, Err: err}
	}
	page := toPage(rows)
	c.page = page
	c.offset, c.limit = offset, limit
	c.mu.Unlock()
	c.changed()
	return clonePage(page), nil
}

// Refresh re-reads the held page window. This is the manual refresh for
// batches that were still enqueued when first read.
func (c *Client) Refresh(ctx context.Context) (DataPage, error) {
	c.mu.Lock()
	if c.batch == nil {
		c.mu.Unlock()
		return nil, ErrNoBatch
	}
	id, offset, limit := c.batch.ID, c.offset, c.limit
	c.mu.Unlock()
	return c.FetchPage(ctx, id, offset, limit)
}

// RefreshBatch re-reads the batch status. Only TotalRows, Status and
// Columns are updated.
func (c *Client) RefreshBatch(ctx context.Context) (*Batch, error) {
	return c.followBatch(ctx, "status", c.api.Batch)
}

// AwaitBatch blocks on the batch status stream until the backend reports
// the batch terminal, then reloads the held page window. Callers bound the
// wait through ctx; nothing here polls on its own.
func (c *Client) AwaitBatch(ctx context.Context) (*Batch, error) {
	epoch := c.store.Epoch()
	b, err := c.followBatch(ctx, "wait", c.api.WaitBatch)
	if err != nil {
		return nil, err
	}
	if _, err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	if _, ok := c.store.AppendAt(epoch, systemMessage(fmt.Sprintf("Batch %s is ready: %d records loaded.", b.ID, b.TotalRows))); !ok {
		return nil, ErrStale
	}
	return b, nil
}

func (c *Client) followBatch(ctx context.Context, stage string, get func(context.Context, string) (*types.BatchStatus, error)) (*Batch, error) {
	epoch := c.store.Epoch()
	c.mu.Lock()
	if c.batch == nil {
		c.mu.Unlock()
		return nil, ErrNoBatch
	}
	attempt, id := c.attempt, c.batch.ID
	c.mu.Unlock()

	st, err := get(ctx, id)
	if err == nil && st.Status == types.StatusFailed {
		reason := st.Detail
		if reason == "" {
			reason = "processing failed"
		}
		err = &api.BackendLogicError{Op: stage, Reason: reason}
	}

	c.mu.Lock()
	if attempt != c.attempt || epoch != c.store.Epoch() {
		c.mu.Unlock()
		return nil, ErrStale
	}
	if err != nil {
		name := c.fileNameLocked()
		c.rollbackLocked()
		c.mu.Unlock()
		c.changed()
		c.store.AppendAt(epoch, systemMessage(fmt.Sprintf("Error processing batch %s: %s", id, describe(err))))
		return nil, &IngestError{Stage: stage, FileName: name, Err: err}
	}
	c.batch.TotalRows = st.RowsLoaded
	c.batch.Status = st.Status
	if len(st.Columns) > 0 {
		c.batch.Columns = st.Columns
	}
	out := *c.batch
	c.mu.Unlock()
	c.changed()
	return &out, nil
}

// Clear forgets the uploaded file and everything derived from it. Answers
// still in flight are dropped.
func (c *Client) Clear() {
	c.mu.Lock()
	c.attempt++
	c.rollbackLocked()
	c.mu.Unlock()
	c.changed()
}

// Restore installs a file context recovered from chat history.
func (c *Client) Restore(file *UploadedFile, batch *Batch, page DataPage) {
	c.mu.Lock()
	c.restoreLocked(file, batch, page)
	c.mu.Unlock()
	c.changed()
}

// RestoreAt is Restore for a history loaded at epoch. Nothing is installed
// once the conversation has moved past epoch.
func (c *Client) RestoreAt(epoch uint64, file *UploadedFile, batch *Batch, page DataPage) bool {
	c.mu.Lock()
	if epoch != c.store.Epoch() {
		c.mu.Unlock()
		return false
	}
	c.restoreLocked(file, batch, page)
	c.mu.Unlock()
	c.changed()
	return true
}

func (c *Client) restoreLocked(file *UploadedFile, batch *Batch, page DataPage) {
	c.attempt++
	c.file, c.batch, c.page = file, batch, page
	c.offset, c.limit = 0, c.pageSize
	if page != nil && len(page) > c.limit {
		c.limit = len(page)
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// DataContext is the bounded sample attached to chat turns: the held
// page's columns and rows without the synthetic id. nil without a page.
func (c *Client) DataContext() *types.CSVData {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.page == nil {
		return nil
	}

	data := &types.CSVData{
		Filename: "uploaded_file.csv",
		Headers:  c.headersLocked(),
		Data:     make([]map[string]string, 0, len(c.page)),
		RowCount: len(c.page),
	}
	if c.file != nil {
		data.Filename = c.file.Name
	}
	if c.batch != nil {
		data.BatchID = c.batch.ID
	}
	for _, row := range c.page {
		stripped := make(map[string]string, len(row))
		for k, v := range row {
			if k != types.RowIDField {
				stripped[k] = v
			}
		}
		data.Data = append(data.Data, stripped)
	}
	return data
}

func (c *Client) headersLocked() []string {
	headers := []string{}
	if c.batch != nil && len(c.batch.Columns) > 0 {
		for _, col := range c.batch.Columns {
			if col != types.RowIDField {
				headers = append(headers, col)
			}
		}
		return headers
	}
	if len(c.page) == 0 {
		return headers
	}
	for k := range c.page[0] {
		if k != types.RowIDField {
			headers = append(headers, k)
		}
	}
	sort.Strings(headers)
	return headers
}

func (c *Client) stateLocked() State {
	st := State{Page: clonePage(c.page), Offset: c.offset, Limit: c.limit}
	if c.file != nil {
		f := *c.file
		st.File = &f
	}
	if c.batch != nil {
		b := *c.batch
		b.Columns = append([]string(nil), c.batch.Columns...)
		st.Batch = &b
	}
	return st
}

func (c *Client) rollbackLocked() {
	c.file = nil
	c.batch = nil
	c.page = nil
	c.offset, c.limit = 0, c.pageSize
}

func (c *Client) fileNameLocked() string {
	if c.file == nil {
		return ""
	}
	return c.file.Name
}

func (c *Client) rejectUnsupported(name string) {
	c.log.Info("rejected upload", zap.String("file", name))
	c.store.Append(systemMessage(fmt.Sprintf(
		"Unsupported file type for %q. Please upload a CSV or Excel (.xlsx, .xls) file.", filepath.Base(name))))
}

func (c *Client) changed() {
	if c.onChange == nil {
		return
	}
	c.onChange(c.State())
}

func uploadOutcome(name string, b *Batch) string {
	if b.Status == types.StatusEnqueued {
		return fmt.Sprintf("File %q accepted as batch %s with %d records. Processing continues in the background; refresh to load the rows.",
			name, b.ID, b.TotalRows)
	}
	return fmt.Sprintf("File %q processed successfully as batch %s. %d records loaded.", name, b.ID, b.TotalRows)
}

func systemMessage(text string) conversation.Message {
	return conversation.Message{Role: conversation.RoleSystem, Text: text}
}

func toPage(rows []map[string]string) DataPage {
	page := make(DataPage, 0, len(rows))
	for _, r := range rows {
		page = append(page, Row(r))
	}
	return page
}

func clonePage(p DataPage) DataPage {
	if p == nil {
		return nil
	}
	out := make(DataPage, len(p))
	for i, r := range p {
		row := make(Row, len(r))
		for k, v := range r {
			row[k] = v
		}
		out[i] = row
	}
	return out
}
