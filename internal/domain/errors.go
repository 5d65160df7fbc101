package domain

import (
	"errors"
	"fmt"
)

// Kind classifies failures so boundary layers can map them to responses.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindPermissionDenied
	KindInvalidState
	KindConflict
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindPermissionDenied:
		return "permission denied"
	case KindInvalidState:
		return "invalid state"
	case KindConflict:
		return "conflict"
	case KindInvalidInput:
		return "invalid input"
	}
	return "unknown"
}

var (
	// ErrNotFound is matched by every "entity absent" error.
	ErrNotFound = &Error{Kind: KindNotFound}
	// ErrPermissionDenied is matched when the caller lacks role or ownership.
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	// ErrInvalidState is matched when an operation is illegal for the lifecycle state.
	ErrInvalidState = &Error{Kind: KindInvalidState}
	// ErrConflict is matched on duplicate pending reports and double resolution.
	ErrConflict = &Error{Kind: KindConflict}
	// ErrInvalidInput is matched on malformed values.
	ErrInvalidInput = &Error{Kind: KindInvalidInput}
)

var (
	ErrQuizNotFound     = E(KindNotFound, "quiz not found")
	ErrAttemptNotFound  = E(KindNotFound, "quiz attempt not found")
	ErrReportNotFound   = E(KindNotFound, "report not found")
	ErrPostNotFound     = E(KindNotFound, "post not found")
	ErrAdminRequired    = E(KindPermissionDenied, "admin capability required")
	ErrNotQuizOwner     = E(KindPermissionDenied, "only the quiz creator or a super admin may change this quiz")
	ErrNotAttemptOwner  = E(KindPermissionDenied, "attempt belongs to another user")
	ErrNoQuestions      = E(KindInvalidState, "quiz has no questions")
	ErrQuizNotPublished = E(KindInvalidState, "quiz is not published")
	ErrAttemptCompleted = E(KindInvalidState, "attempt already completed")
	ErrDuplicateReport  = E(KindConflict, "a pending report for this post already exists")
	ErrReportResolved   = E(KindConflict, "report is not pending")
	ErrInvalidDecision  = E(KindInvalidInput, "decision must be APPROVE or REJECT")
	ErrInvalidCategory  = E(KindInvalidInput, "category is not one of the allowed values")
)

// Error carries a Kind plus optional context. Two Errors match under
// errors.Is when their kinds match and the target carries no message,
// or when they are the same value.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// E builds a kinded error with a message.
func E(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Errorf builds a kinded error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t == e {
		return true
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Wrap attaches a cause to a kinded error without losing its identity.
func Wrap(kinded *Error, cause error) error {
	return &Error{Kind: kinded.Kind, Msg: kinded.Msg, Err: &wrapped{base: kinded, cause: cause}}
}

// wrapped lets errors.Is find both the original sentinel and the cause.
type wrapped struct {
	base  *Error
	cause error
}

func (w *wrapped) Error() string   { return w.cause.Error() }
func (w *wrapped) Unwrap() []error { return []error{w.base, w.cause} }

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
