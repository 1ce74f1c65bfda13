// Package apperr is the error taxonomy shared by the store, the chat service
// and the HTTP layer.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuth
	KindConflict
	KindNotFound
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error carries a Kind, a message safe to show to clients, and an optional
// cause that is only ever logged.
type Error struct {
	Kind   Kind
	Msg    string
	Status int // overrides the Kind's default status when non-zero
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Msg + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrSelfChat           = &Error{Kind: KindConflict, Msg: "cannot create a chat with yourself", Status: http.StatusBadRequest}
	ErrFriendNotFound     = &Error{Kind: KindNotFound, Msg: "user not found"}
	ErrChatNotFound       = &Error{Kind: KindNotFound, Msg: "chat not found"}
	ErrUserNotFound       = &Error{Kind: KindNotFound, Msg: "user not found"}
	ErrDuplicateUsername  = &Error{Kind: KindConflict, Msg: "username already taken"}
	ErrInvalidCredentials = &Error{Kind: KindAuth, Msg: "invalid username or password", Status: http.StatusUnauthorized}
	ErrNotParticipant     = &Error{Kind: KindAuth, Msg: "not a participant of this chat", Status: http.StatusForbidden}
)

func Validation(msg string) error { return &Error{Kind: KindValidation, Msg: msg} }

func Auth(msg string) error { return &Error{Kind: KindAuth, Msg: msg} }

func Conflict(msg string, cause error) error {
	return &Error{Kind: KindConflict, Msg: msg, Err: cause}
}

func NotFound(msg string, cause error) error {
	return &Error{Kind: KindNotFound, Msg: msg, Err: cause}
}

func Storage(op string, cause error) error {
	return &Error{Kind: KindStorage, Msg: op, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain. Errors outside
// the taxonomy are treated as storage failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text put in the JSON error body. Storage failures and
// anything outside the taxonomy collapse to a generic string; auth errors
// without an explicit message carry no detail.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindStorage {
		return "internal error"
	}
	return e.Msg
}
