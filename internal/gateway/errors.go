package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthMissing is returned when an operation that propagates errors is
	// called without a token. It never reaches the backend.
	ErrAuthMissing = errors.New("authentication missing")

	// ErrEmptySelection is returned for uploads with no files and blank queries.
	ErrEmptySelection = errors.New("empty selection")
)

// Op names a gateway operation in errors and logs.
type Op string

const (
	OpHistory Op = "history"
	OpAsk     Op = "ask"
	OpList    Op = "list_files"
	OpUpload  Op = "upload"
	OpDelete  Op = "delete_file"
)

// genericMessages are shown when the server provides no detail.
var genericMessages = map[Op]string{
	OpHistory: "Failed to fetch history",
	OpAsk:     "Failed to send message",
	OpList:    "Failed to list files",
	OpUpload:  "Upload failed. Server rejected the files.",
	OpDelete:  "Failed to delete file",
}

// RequestError is a non-success HTTP response.
type RequestError struct {
	Op     Op
	Status int
	Detail string // server-provided detail, may be empty
}

// Error returns the server detail verbatim when present.
func (e *RequestError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	if msg, ok := genericMessages[e.Op]; ok {
		return msg
	}
	return fmt.Sprintf("%s failed with status %d", e.Op, e.Status)
}

// NetworkError is a transport-level failure: no response, a timeout, or an
// unreadable body. No server detail is available.
type NetworkError struct {
	Op  Op
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsRequestError reports whether err is (or wraps) a RequestError.
func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}

// IsNetworkError reports whether err is (or wraps) a NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
