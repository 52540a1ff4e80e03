package api

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError is a network failure or a non-2xx answer.
type TransportError struct {
	Op         string // "process", "data", "chat", ...
	StatusCode int    // 0 when no response arrived
	Detail     string // server provided detail, when any
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Detail)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Message is the human readable part of the error, without the op prefix.
func (e *TransportError) Message() string {
	switch {
	case e.Detail != "":
		return e.Detail
	case e.StatusCode != 0:
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "request failed"
	}
}

// BackendLogicError is a 2xx answer that does not hold what was expected.
type BackendLogicError struct {
	Op     string
	Reason string
}

func (e *BackendLogicError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Describe renders err for an in-conversation message.
func Describe(err error) string {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Message()
	}
	var be *BackendLogicError
	if errors.As(err, &be) {
		return be.Reason
	}
	return err.Error()
}
