package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrBuild     = errors.New("index build failed")
	ErrIndexLoad = errors.New("index load failed")
	ErrEmbedding = errors.New("embedding failed")
	ErrQuery     = errors.New("invalid query")

	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrZeroVector        = errors.New("zero-norm vector")
	ErrMisaligned        = errors.New("vectors and texts are misaligned")
)

// Error carries an error kind, the failing operation and the corpus it
// concerns. Both Kind and Err are visible to errors.Is and errors.As.
type Error struct {
	Kind   error
	Op     string
	Corpus string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Corpus != "" {
		msg = fmt.Sprintf("%s (corpus %q)", msg, e.Corpus)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds an *Error of the given kind.
func NewError(kind error, op, corpus string, err error) *Error {
	return &Error{Kind: kind, Op: op, Corpus: corpus, Err: err}
}

// Errorf builds an *Error whose cause is a formatted message.
func Errorf(kind error, op, corpus, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Corpus: corpus, Err: fmt.Errorf(format, args...)}
}
