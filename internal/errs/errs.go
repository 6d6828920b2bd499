// Package errs defines the failure taxonomy of an expansion run.
//
// Every fatal error that leaves the pipeline is an *Error carrying a Kind and
// the stage that failed. Callers test the kind with errors.Is against the
// ErrData / ErrRange / ErrWrite / ErrCanceled sentinels and still reach the
// underlying cause with errors.Unwrap / errors.As.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a fatal error.
type Kind int

const (
	// KindData: the input store is missing, unreadable or malformed.
	KindData Kind = iota + 1
	// KindRange: a sampled value left its declared bound, or a weight table is invalid.
	KindRange
	// KindWrite: the destination (table store or database export) could not be written.
	KindWrite
	// KindCanceled: the run was canceled or timed out before the stage ran.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data error"
	case KindRange:
		return "range error"
	case KindWrite:
		return "write error"
	case KindCanceled:
		return "canceled"
	default:
		return "error"
	}
}

// Sentinels for errors.Is. They compare equal to any *Error of the same kind.
var (
	ErrData     = &Error{Kind: KindData}
	ErrRange    = &Error{Kind: KindRange}
	ErrWrite    = &Error{Kind: KindWrite}
	ErrCanceled = &Error{Kind: KindCanceled}
)

// Error is a classified, stage-tagged failure.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	var msg string
	switch {
	case e.Stage != "" && e.Err != nil:
		msg = fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
	case e.Err != nil:
		msg = fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Stage != "":
		msg = fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	default:
		msg = e.Kind.String()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind only, so wrapped errors of any stage satisfy
// errors.Is(err, ErrData) and friends.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Data builds a KindData error.
func Data(stage string, format string, a ...any) error {
	return &Error{Kind: KindData, Stage: stage, Err: fmt.Errorf(format, a...)}
}

// Range builds a KindRange error.
func Range(stage string, format string, a ...any) error {
	return &Error{Kind: KindRange, Stage: stage, Err: fmt.Errorf(format, a...)}
}

// Write builds a KindWrite error.
func Write(stage string, format string, a ...any) error {
	return &Error{Kind: KindWrite, Stage: stage, Err: fmt.Errorf(format, a...)}
}

// Canceled builds a KindCanceled error around a context error.
func Canceled(stage string, err error) error {
	return &Error{Kind: KindCanceled, Stage: stage, Err: err}
}

// WithStage tags err with stage. If err already is an *Error it keeps its
// kind and only fills an empty stage; otherwise it is classified as def.
func WithStage(err error, stage string, def Kind) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Stage != "" {
			return err
		}
		return &Error{Kind: e.Kind, Stage: stage, Err: e.Err}
	}
	return &Error{Kind: def, Stage: stage, Err: err}
}

// KindOf reports the kind of err, or 0 if err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
