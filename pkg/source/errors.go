package source

import (
	"errors"
	"fmt"

	"github.com/vpnda/bankpoll/pkg/models"
)

// ErrInvalidJSONResponse is returned when the process exits cleanly but its
// stdout is not a JSON document.
var ErrInvalidJSONResponse = errors.New("invalid JSON response from source")

// Error is a structured failure reported by the external source itself.
type Error struct {
	Code         models.ErrorCode
	Message      string
	ShortMessage string
}

func (e *Error) Error() string {
	if e.Message == "" || e.Message == string(e.Code) {
		return fmt.Sprintf("source error %s", e.Code)
	}
	return fmt.Sprintf("source error %s: %s", e.Code, e.Message)
}

// NewError builds an Error whose message defaults to the code.
func NewError(code models.ErrorCode, message string) *Error {
	if message == "" {
		message = string(code)
	}
	return &Error{Code: code, Message: message}
}

// CrashError means the process died without producing a parseable answer.
type CrashError struct {
	ExitCode int
	Stderr   string
	TimedOut bool
}

func (e *CrashError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("source process killed after timeout (exit code %d)", e.ExitCode)
	}
	return fmt.Sprintf("source process exited with non-zero code %d: %s", e.ExitCode, e.Stderr)
}

// CodeOf returns the error code carried by err, or the empty code when err
// is nil or not a source Error.
func CodeOf(err error) models.ErrorCode {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Code
	}
	return models.FetchStatusOK
}

// IsCrash reports whether err belongs to the transport/crash class.
func IsCrash(err error) bool {
	var crash *CrashError
	return errors.As(err, &crash) || errors.Is(err, ErrInvalidJSONResponse)
}
