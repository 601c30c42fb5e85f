package domain

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies failures surfaced by the chunker, index manager and orchestrator.
type Kind int

const (
	// KindUnknown is never produced by this package; it is what KindOf
	// reports for foreign errors.
	KindUnknown Kind = iota
	// KindInput is a caller error: blank question, bad file, bad parameters.
	KindInput
	// KindEmbedding is a failure of the embedding backend.
	KindEmbedding
	// KindIndex is a failure of the vector collection backend.
	KindIndex
	// KindGeneration is a failure of the language model backend.
	KindGeneration
	// KindPartialBatch means an add failed after some batches were committed.
	KindPartialBatch
	// KindDeadline means a backend call exceeded its deadline.
	KindDeadline
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input error"
	case KindEmbedding:
		return "embedding failure"
	case KindIndex:
		return "index failure"
	case KindGeneration:
		return "generation failure"
	case KindPartialBatch:
		return "partial batch failure"
	case KindDeadline:
		return "deadline exceeded"
	default:
		return "unknown error"
	}
}

// Sentinels for errors.Is checks against a Kind.
var (
	ErrInput        = &Error{Kind: KindInput}
	ErrEmbedding    = &Error{Kind: KindEmbedding}
	ErrIndex        = &Error{Kind: KindIndex}
	ErrGeneration   = &Error{Kind: KindGeneration}
	ErrPartialBatch = &Error{Kind: KindPartialBatch}
	ErrDeadline     = &Error{Kind: KindDeadline}
)

// Common input failures.
var (
	ErrEmptyQuestion = errors.New("empty question provided")
	ErrNoDocuments   = errors.New("no documents")
)

// Error is a classified failure. Op names the operation that failed
// ("index.add", "rag.query"); Err is the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error

	// Committed is the number of batches durably written before a
	// KindPartialBatch failure.
	Committed int
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Kind == KindPartialBatch {
		msg += fmt.Sprintf(" (%d batches committed)", e.Committed)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind, so errors.Is(err, ErrIndex) works on any
// index failure regardless of Op or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// E builds a classified error. Context deadline errors are promoted to
// KindDeadline whatever kind the caller asked for.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindDeadline
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
