package server

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyRequest       = errors.New("empty request line")
	ErrRequestLineTooLong = errors.New("request line too long")
	ErrServerClosed       = errors.New("server closed")
)

type ErrorKind int

const (
	KindParse ErrorKind = iota + 1
	KindNotFound
	KindMethodNotSupported
	KindValidation
	KindIO
)

func (k ErrorKind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindNotFound:
		return "not_found"
	case KindMethodNotSupported:
		return "method_not_supported"
	case KindValidation:
		return "validation"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// RequestError is a failure that is terminal for the current request.
// Msg is the client-facing text; Err, when set, is the underlying cause.
type RequestError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *RequestError) Unwrap() error { return e.Err }

func newRequestError(kind ErrorKind, msg string, err error) *RequestError {
	return &RequestError{Kind: kind, Msg: msg, Err: err}
}

// StatusForError maps a request failure to the status recorded for it.
func StatusForError(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var re *RequestError
	if !errors.As(err, &re) {
		if errors.Is(err, ErrEmptyRequest) || errors.Is(err, ErrRequestLineTooLong) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}

	switch re.Kind {
	case KindParse, KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindMethodNotSupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage returns the text sent back on an ERROR line.
func clientMessage(err error) string {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Msg
	}
	return err.Error()
}
