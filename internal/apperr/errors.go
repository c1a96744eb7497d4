// Package apperr defines the errors the auth boundary reports to callers.
package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Code is a machine-readable error class.
type Code string

const (
	// CodeAuth is a missing or rejected credential at the session boundary.
	CodeAuth Code = "AUTH"
	// CodeOAuth is a failure to construct the provider login flow.
	CodeOAuth Code = "OAUTH"
	// CodeToken is a verification failure. It is translated to CodeAuth
	// before leaving the session and user services.
	CodeToken Code = "TOKEN"
	// CodeSession is an invalid session request.
	CodeSession Code = "SESSION"
)

// Status maps the code to its HTTP status.
func (c Code) Status() int {
	switch c {
	case CodeAuth, CodeToken:
		return http.StatusUnauthorized
	case CodeOAuth, CodeSession:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is the boundary error type.
type Error struct {
	Code    Code
	Message string // user-visible detail
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is checks by class.
var (
	ErrAuth    = &Error{Code: CodeAuth}
	ErrOAuth   = &Error{Code: CodeOAuth}
	ErrToken   = &Error{Code: CodeToken}
	ErrSession = &Error{Code: CodeSession}
)

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Auth(message string) *Error {
	if message == "" {
		message = "Authentication failed"
	}
	return New(CodeAuth, message)
}

func AuthWrap(message string, cause error) *Error {
	return Wrap(CodeAuth, message, cause)
}

func OAuth(message string, cause error) *Error {
	if message == "" {
		message = "OAuth flow failed"
	}
	return Wrap(CodeOAuth, message, cause)
}

func Session(message string) *Error {
	if message == "" {
		message = "Session error"
	}
	return New(CodeSession, message)
}

// As extracts the boundary error from err. Anything else is reported as an
// opaque internal error so causes never leak into responses.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(Code("INTERNAL"), "Internal server error", err)
}

// Body is the JSON error payload.
type Body struct {
	Detail string `json:"detail"`
}

// WriteJSON renders err as {"detail": ...} with the status of its code.
func WriteJSON(w http.ResponseWriter, err error) {
	e := As(err)
	status := e.Code.Status()
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Body{Detail: e.Message})
}
