package repository

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies gateway failures so handlers can pick a status code
type Kind int

const (
	// KindUnknown is reported for errors that carry no kind
	KindUnknown Kind = iota
	// KindBadRequest covers malformed paths, wrong segment counts and wrong extensions
	KindBadRequest
	// KindConfiguration means an expected directory exists but is not a directory
	KindConfiguration
	// KindIO covers directory creation and file write failures
	KindIO
	// KindSubprocess means the indexer failed to spawn or exited non-zero
	KindSubprocess
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindConfiguration:
		return "configuration_error"
	case KindIO:
		return "io_error"
	case KindSubprocess:
		return "subprocess_error"
	default:
		return "unknown"
	}
}

// HTTPStatus returns the status code a handler responds with for this kind
func (k Kind) HTTPStatus() int {
	if k == KindBadRequest {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Error is the error type returned by the resolver, the store and the refresh coordinator
type Error struct {
	Kind Kind
	Op   string
	Path string
	// ExitCode is set for KindSubprocess when the indexer ran and exited non-zero
	ExitCode int
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}

	switch {
	case e.Op != "" && e.Path != "":
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// BadRequest creates a client-attributable error
func BadRequest(msg string) *Error {
	return &Error{Kind: KindBadRequest, Msg: msg}
}

// KindOf extracts the kind of err, or KindUnknown when err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusOf maps err to an HTTP status code
func StatusOf(err error) int {
	return KindOf(err).HTTPStatus()
}
