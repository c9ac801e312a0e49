// Package apperror defines the error taxonomy shared by the gateway, the local
// store and the front ends. Every failure that reaches a user is one of these
// kinds and carries a human-readable message.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindTimeout
	KindValidation
	KindNotFound
	KindRateLimit
	KindService
	KindStorage
	KindClipboard
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "NetworkError"
	case KindTimeout:
		return "TimeoutError"
	case KindValidation:
		return "ValidationError"
	case KindNotFound:
		return "NotFoundError"
	case KindRateLimit:
		return "RateLimitError"
	case KindService:
		return "ServiceError"
	case KindStorage:
		return "StorageError"
	case KindClipboard:
		return "ClipboardError"
	default:
		return "UnknownError"
	}
}

var defaultMessages = map[Kind]string{
	KindNetwork:    "Network connection failed. Please check your internet connection.",
	KindTimeout:    "Request timed out. Please try again.",
	KindValidation: "Please check your input and try again.",
	KindNotFound:   "Resource not found",
	KindRateLimit:  "Too many requests. Please wait a moment and try again.",
	KindService:    "Service temporarily unavailable. Please try again later.",
	KindStorage:    "Failed to save data. Please check your storage settings.",
	KindClipboard:  "Failed to copy to clipboard. Please try manually.",
	KindUnknown:    "An unexpected error occurred. Please try again.",
}

// Message returns the default user-facing message for a kind.
func Message(k Kind) string {
	if msg, ok := defaultMessages[k]; ok {
		return msg
	}
	return defaultMessages[KindUnknown]
}

// Error is a classified failure. Status is the HTTP status when the failure
// came from a backend response, zero otherwise.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return Message(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error, falling back to the kind's default message when msg is empty.
func New(kind Kind, msg string, cause error) *Error {
	if msg == "" {
		msg = Message(kind)
	}
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// Newf is New with a formatted message and no cause.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...), nil)
}

// KindOf reports the kind of err, or KindUnknown when err is not classified.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
