package ingest

import (
	"errors"
	"fmt"

	"medmine/medmine/client/api"
)

var (
	// ErrStale is returned when an answer arrives for an upload that was
	// superseded or for a conversation that was reset meanwhile.
	ErrStale = errors.New("ingest: stale response dropped")
	// ErrNoBatch is returned by operations that need a held batch.
	ErrNoBatch = errors.New("ingest: no batch loaded")
	// ErrOtherBatch is returned when a page of a batch other than the held
	// one is requested.
	ErrOtherBatch = errors.New("ingest: batch is not the loaded batch")
)

// UnsupportedFileTypeError is raised before any network call.
type UnsupportedFileTypeError struct {
	Name      string
	Extension string
}

func (e *UnsupportedFileTypeError) Error() string {
	if e.Extension == "" {
		return fmt.Sprintf("unsupported file type: %q has no extension", e.Name)
	}
	return fmt.Sprintf("unsupported file type %q: %s", e.Extension, e.Name)
}

// IngestError wraps a transport or backend failure with the stage it
// happened in: "upload", "fetch", "status" or "wait".
type IngestError struct {
	Stage    string
	FileName string
	Err      error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s %s: %v", e.Stage, e.FileName, e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

func describe(err error) string {
	return api.Describe(err)
}
