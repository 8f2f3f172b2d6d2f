// Package failure classifies the errors an analysis invocation can surface to
// its caller. Every component wraps its internal error into a *failure.Error so
// callers can tell "bad audio" apart from "transcription service down".
package failure

import (
	"errors"
	"fmt"
)

// Kind identifies the class of an invocation failure
type Kind int

const (
	// Unknown is reported for errors that were never classified
	Unknown Kind = iota
	// Decode means the audio was unreadable, corrupt or empty
	Decode
	// Analysis means the input was degenerate (silence, too short) for a feature
	Analysis
	// TranscriptionUnavailable means full mode was requested and the transcriber
	// was missing or failed
	TranscriptionUnavailable
	// InvalidRequest means the caller supplied bad input
	InvalidRequest
)

func (k Kind) String() string {
	switch k {
	case Decode:
		return "decode_error"
	case Analysis:
		return "analysis_error"
	case TranscriptionUnavailable:
		return "transcription_unavailable"
	case InvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against a kind
var (
	ErrDecode                   = &Error{Kind: Decode}
	ErrAnalysis                 = &Error{Kind: Analysis}
	ErrTranscriptionUnavailable = &Error{Kind: TranscriptionUnavailable}
	ErrInvalidRequest           = &Error{Kind: InvalidRequest}
)

// Error is a classified error. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error of the same kind. Op and Err are ignored
// so the package sentinels match any error of their kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New wraps err with a kind and operation name. A nil err still produces an error.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a classified error from a format string
func Newf(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
