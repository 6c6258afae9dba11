package common

import (
	"errors"
	"fmt"
)

// Kind is the top-level classification of an *Error.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindStorage    Kind = "storage"
	KindNetwork    Kind = "network"
	KindAuth       Kind = "auth"
)

// Reasons refine Conflict, Network and Auth errors.
const (
	ReasonDuplicate        = "duplicate"
	ReasonVersionConflict  = "version_conflict"
	ReasonWipLimitExceeded = "wip_limit_exceeded"

	ReasonConnectionFailed = "connection_failed"
	ReasonTimeout          = "timeout"
	ReasonServerError      = "server_error"

	ReasonInvalidCredentials = "invalid_credentials"
	ReasonTokenExpired       = "token_expired"
	ReasonUnauthorized       = "unauthorized"
	ReasonAccountDisabled    = "account_disabled"
)

// Error is the single error type crossing every Altair boundary.
// Callers match it with errors.Is against the sentinels below, or
// errors.As to read the structured fields.
type Error struct {
	Kind    Kind   `json:"kind"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`

	EntityType string `json:"entityType,omitempty"`
	EntityID   string `json:"entityId,omitempty"`
	Field      string `json:"field,omitempty"`

	// Code is the upstream status code of a ServerError.
	Code int `json:"code,omitempty"`

	// Current and Limit describe a WipLimitExceeded conflict.
	Current int `json:"current,omitempty"`
	Limit   int `json:"limit,omitempty"`

	ServerVersion int64 `json:"serverVersion,omitempty"`
	ClientVersion int64 `json:"clientVersion,omitempty"`

	Err error `json:"-"`
}

func (e *Error) Error() string {
	s := string(e.Kind)
	if e.Reason != "" {
		s += "/" + e.Reason
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a sentinel of the same kind. A sentinel
// with an empty Reason matches every reason of its kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

var (
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrValidation = &Error{Kind: KindValidation}
	ErrStorage    = &Error{Kind: KindStorage}

	ErrConflict         = &Error{Kind: KindConflict}
	ErrDuplicate        = &Error{Kind: KindConflict, Reason: ReasonDuplicate}
	ErrVersionConflict  = &Error{Kind: KindConflict, Reason: ReasonVersionConflict}
	ErrWipLimitExceeded = &Error{Kind: KindConflict, Reason: ReasonWipLimitExceeded}

	ErrNetwork          = &Error{Kind: KindNetwork}
	ErrConnectionFailed = &Error{Kind: KindNetwork, Reason: ReasonConnectionFailed}
	ErrTimeout          = &Error{Kind: KindNetwork, Reason: ReasonTimeout}
	ErrServerError      = &Error{Kind: KindNetwork, Reason: ReasonServerError}

	ErrAuth               = &Error{Kind: KindAuth}
	ErrInvalidCredentials = &Error{Kind: KindAuth, Reason: ReasonInvalidCredentials}
	ErrTokenExpired       = &Error{Kind: KindAuth, Reason: ReasonTokenExpired}
	ErrUnauthorized       = &Error{Kind: KindAuth, Reason: ReasonUnauthorized}
	ErrAccountDisabled    = &Error{Kind: KindAuth, Reason: ReasonAccountDisabled}
)

func NotFound(entityType string, id ID) *Error {
	return &Error{
		Kind:       KindNotFound,
		EntityType: entityType,
		EntityID:   id.String(),
		Message:    fmt.Sprintf("%s %s not found", entityType, id),
	}
}

func Validation(field, reason string) *Error {
	return &Error{
		Kind:    KindValidation,
		Field:   field,
		Message: fmt.Sprintf("%s: %s", field, reason),
	}
}

func Duplicate(entityType string, id ID) *Error {
	return &Error{
		Kind:       KindConflict,
		Reason:     ReasonDuplicate,
		EntityType: entityType,
		EntityID:   id.String(),
		Message:    fmt.Sprintf("%s %s already exists", entityType, id),
	}
}

func VersionConflict(entityType string, id ID, serverVersion, clientVersion int64) *Error {
	return &Error{
		Kind:          KindConflict,
		Reason:        ReasonVersionConflict,
		EntityType:    entityType,
		EntityID:      id.String(),
		ServerVersion: serverVersion,
		ClientVersion: clientVersion,
		Message: fmt.Sprintf("%s %s: server version %d, client version %d",
			entityType, id, serverVersion, clientVersion),
	}
}

// WipLimitExceeded names the quest that currently holds the WIP slot.
func WipLimitExceeded(activeQuestID ID, current, limit int) *Error {
	return &Error{
		Kind:       KindConflict,
		Reason:     ReasonWipLimitExceeded,
		EntityType: "quest",
		EntityID:   activeQuestID.String(),
		Current:    current,
		Limit:      limit,
		Message:    fmt.Sprintf("quest %s is already active (%d/%d)", activeQuestID, current, limit),
	}
}

func Storage(message string, err error) *Error {
	return &Error{Kind: KindStorage, Message: message, Err: err}
}

func ConnectionFailed(err error) *Error {
	return &Error{Kind: KindNetwork, Reason: ReasonConnectionFailed, Err: err}
}

func Timeout(err error) *Error {
	return &Error{Kind: KindNetwork, Reason: ReasonTimeout, Err: err}
}

func ServerError(code int, message string) *Error {
	return &Error{Kind: KindNetwork, Reason: ReasonServerError, Code: code, Message: message}
}

func AuthError(reason, message string) *Error {
	return &Error{Kind: KindAuth, Reason: reason, Message: message}
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether repeating the failed operation may succeed.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindStorage:
		return true
	case KindNetwork:
		return e.Reason == ReasonConnectionFailed || e.Reason == ReasonTimeout
	default:
		return false
	}
}
