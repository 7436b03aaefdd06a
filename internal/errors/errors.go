// Package errors provides sentinel errors and error types shared by the
// analysis pipeline. Errors are inspected with errors.Is() and errors.As();
// every per-item failure is wrapped in an ItemError so callers can count and
// skip it without aborting a batch.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure conditions.
var (
	// ErrInvalidFEN indicates a malformed or impossible FEN string.
	ErrInvalidFEN = errors.New("invalid FEN string")

	// ErrIllegalMove indicates a move that is not legal in its position,
	// or SAN/UCI text that does not resolve to a legal move.
	ErrIllegalMove = errors.New("illegal move")

	// ErrOracleUnavailable indicates the evaluation engine could not answer
	// (not running, crashed, timed out).
	ErrOracleUnavailable = errors.New("evaluation oracle unavailable")

	// ErrStaleBestMove indicates a recorded best move that is not legal in
	// the position it was recorded for.
	ErrStaleBestMove = errors.New("stale best move")

	// ErrInvalidConfig indicates invalid configuration values.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ItemError wraps a per-move or per-puzzle failure with its location in the
// game. Ply is 1-based; zero means the failure is not tied to a ply.
type ItemError struct {
	Err  error
	Ply  int
	Move string
}

// Error returns a formatted message including the available context.
func (e *ItemError) Error() string {
	var parts []string
	if e.Ply > 0 {
		parts = append(parts, fmt.Sprintf("ply %d", e.Ply))
	}
	if e.Move != "" {
		parts = append(parts, fmt.Sprintf("move %q", e.Move))
	}
	context := strings.Join(parts, ", ")

	switch {
	case context == "" && e.Err != nil:
		return e.Err.Error()
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", context, e.Err)
	case context != "":
		return context
	}
	return "item error"
}

// Unwrap returns the underlying error.
func (e *ItemError) Unwrap() error {
	return e.Err
}

// AtPly wraps err with ply and move context. A nil err stays nil.
func AtPly(err error, ply int, move string) error {
	if err == nil {
		return nil
	}
	return &ItemError{Err: err, Ply: ply, Move: move}
}

// Wrap adds context to an error while preserving the underlying error.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf adds formatted context to an error while preserving the underlying error.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// IsSkippable reports whether err should skip a single item rather than
// abort the whole batch.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrIllegalMove) ||
		errors.Is(err, ErrOracleUnavailable) ||
		errors.Is(err, ErrStaleBestMove)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return errors.As(err, target) }
