package study

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies an error for the presentation layer.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindState
	KindGeneration
	KindLookup
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindState:
		return "state"
	case KindGeneration:
		return "generation"
	case KindLookup:
		return "lookup"
	default:
		return "unknown"
	}
}

type kindError struct {
	kind Kind
	msg  string
}

func (e *kindError) Error() string { return e.msg }

// Validation errors: bad user input.
var (
	ErrEmptyTopic        = &kindError{KindValidation, "topic is empty"}
	ErrInvalidIndex      = &kindError{KindValidation, "question index out of range"}
	ErrInvalidOption     = &kindError{KindValidation, "option is not one of the question's choices"}
	ErrInvalidDifficulty = &kindError{KindValidation, "difficulty must be easy, medium or hard"}
	ErrInvalidStrategy   = &kindError{KindValidation, "strategy must be random, incomplete or all"}
	ErrInvalidCount      = &kindError{KindValidation, "question count must be at least 1"}
)

// Lookup failures for addressed entities.
var (
	ErrItemNotFound    = &kindError{KindNotFound, "checklist item not found"}
	ErrSessionNotFound = &kindError{KindNotFound, "session not found"}
)

// State errors: the action is not valid in the current lifecycle state.
var (
	ErrNoTopic           = &kindError{KindState, "set a topic first"}
	ErrNoChecklist       = &kindError{KindState, "generate a checklist before starting a quiz"}
	ErrNoQuiz            = &kindError{KindState, "no active quiz"}
	ErrEmptyPool         = &kindError{KindState, "no checklist items match the selection strategy"}
	ErrAlreadySubmitted  = &kindError{KindState, "quiz already submitted"}
	ErrIncompleteAnswers = &kindError{KindState, "not every question has been answered"}
	ErrQuizClosed        = &kindError{KindState, "quiz is submitted and no longer accepts answers"}
	ErrNotSubmitted      = &kindError{KindState, "quiz has not been submitted yet"}
)

// IncompleteAnswersError lists the 1-based indices that still need an answer.
type IncompleteAnswersError struct {
	Missing []int
}

func (e *IncompleteAnswersError) Error() string {
	parts := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		parts[i] = strconv.Itoa(m)
	}
	return fmt.Sprintf("unanswered questions: %s", strings.Join(parts, ", "))
}

func (e *IncompleteAnswersError) Is(target error) bool {
	return target == ErrIncompleteAnswers
}

// GenerationError wraps a failure of the text generation service or output
// that could not be turned into usable content.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// LookupError wraps a failed video lookup. It is logged, never returned to
// callers of the orchestrator.
type LookupError struct {
	Query string
	Err   error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup %q: %v", e.Query, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// ParseFailure reports generator output that does not have the expected shape.
type ParseFailure struct {
	Raw    string
	Reason string
}

func (e *ParseFailure) Error() string {
	return "unparseable generator output: " + e.Reason
}

// KindOf classifies err. Wrapped errors are unwrapped.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return KindGeneration
	}
	var pf *ParseFailure
	if errors.As(err, &pf) {
		return KindGeneration
	}
	var le *LookupError
	if errors.As(err, &le) {
		return KindLookup
	}
	var ie *IncompleteAnswersError
	if errors.As(err, &ie) {
		return KindState
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}

// MissingAnswers returns the unanswered indices carried by err, if any.
func MissingAnswers(err error) []int {
	var ie *IncompleteAnswersError
	if errors.As(err, &ie) {
		return ie.Missing
	}
	return nil
}
