// Package errs provides error classification for the control plane.
//
// It defines sentinel error kinds and a classified wrapper so callers can
// use errors.Is/errors.As for typed assertions rather than string matching.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrNotFound indicates a workspace, scenario, run, or artifact is absent.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates structured per-field validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates a name collision, a running simulation blocking
	// the operation, or an attempt to leave a terminal state.
	ErrConflict = errors.New("conflict")

	// ErrPrecondition indicates a missing input (census file, database).
	ErrPrecondition = errors.New("precondition failed")

	// ErrLaunch indicates the engine subprocess failed to start.
	ErrLaunch = errors.New("engine launch failed")

	// ErrEngine indicates the engine subprocess exited non-zero.
	ErrEngine = errors.New("engine failed")

	// ErrIO indicates a filesystem write failure or an invalid archive.
	ErrIO = errors.New("i/o failure")

	// ErrChecksumMismatch indicates a bundle checksum mismatch (warning-grade).
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrCancelled indicates a run or batch was cancelled by request.
	ErrCancelled = errors.New("cancelled")

	// ErrResourceLimit indicates a size or memory limit was exceeded.
	ErrResourceLimit = errors.New("resource limit exceeded")
)

// Error wraps an underlying error with a classified kind.
// It preserves the original error in the chain for errors.As inspection.
type Error struct {
	// Kind is the sentinel kind (e.g., ErrNotFound).
	Kind error
	// Op is the operation that failed (e.g., "create_workspace").
	Op string
	// Path is the filesystem path or entity id involved, if any.
	Path string
	// Err is the underlying error, may be nil.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// New creates a classified error.
func New(kind error, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// NotFound creates an ErrNotFound error for an entity id.
func NotFound(op, id string) *Error {
	return New(ErrNotFound, op, id, nil)
}

// Conflict creates an ErrConflict error with a reason.
func Conflict(op string, reason error) *Error {
	return New(ErrConflict, op, "", reason)
}

// IO wraps a filesystem failure. Returns nil if err is nil.
func IO(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return New(ErrIO, op, path, err)
}

// FieldError is one structured validation failure.
type FieldError struct {
	// Section names the config section ("promotion_hazard", "age_bands", …).
	Section string `json:"section"`
	// Field names the offending field ("base_rate", "band[2].min_value", …).
	Field string `json:"field"`
	// Code classifies the failure: required, invalid_type, invalid_range,
	// coverage, gap, overlap.
	Code string `json:"code"`
	// Message is the human-readable description.
	Message string `json:"message"`
}

func (f FieldError) Error() string {
	return fmt.Sprintf("%s.%s: %s (%s)", f.Section, f.Field, f.Message, f.Code)
}

// ValidationError aggregates field errors for one rejected update.
type ValidationError struct {
	Fields []FieldError
}

func (v *ValidationError) Error() string {
	if len(v.Fields) == 1 {
		return fmt.Sprintf("validation failed: %v", v.Fields[0])
	}
	return fmt.Sprintf("validation failed: %d field errors", len(v.Fields))
}

// Is reports ErrValidation so callers can match without the concrete type.
func (v *ValidationError) Is(target error) bool {
	return errors.Is(ErrValidation, target)
}
