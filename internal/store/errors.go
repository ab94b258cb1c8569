package store

// errors.go defines the error taxonomy for the data-access layer.
//
// Every failure surfaced by this package is wrapped in exactly one of the
// types below so callers can branch with errors.As instead of inspecting
// driver internals. The underlying cause stays reachable through Unwrap.
// Nothing here retries or recovers; errors always propagate to the caller.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ConnectionError reports an unreachable host or rejected credentials.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return "store: connection: " + e.Err.Error() }
func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError reports a malformed statement or a store-side execution
// failure that is not covered by a more specific type.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string { return "store: query: " + e.Err.Error() }
func (e *QueryError) Unwrap() error { return e.Err }

// IntegrityError reports a constraint violation, most commonly a
// primary-key collision in append mode.
type IntegrityError struct {
	Table string
	Err   error
}

func (e *IntegrityError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("store: integrity violation on %s: %v", e.Table, e.Err)
	}
	return "store: integrity violation: " + e.Err.Error()
}
func (e *IntegrityError) Unwrap() error { return e.Err }

// TypeConversionError reports a value that cannot be represented in its
// target column type.
type TypeConversionError struct {
	Column string
	Err    error
}

func (e *TypeConversionError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("store: cannot convert value for column %s: %v", e.Column, e.Err)
	}
	return "store: cannot convert value: " + e.Err.Error()
}
func (e *TypeConversionError) Unwrap() error { return e.Err }

// SchemaError reports a mismatch against the known table shape: missing
// or unexpected columns, an invalid primary-key selection, or an unknown
// requested field.
type SchemaError struct {
	Msg string
	Err error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return "store: schema: " + e.Msg + ": " + e.Err.Error()
	}
	return "store: schema: " + e.Msg
}
func (e *SchemaError) Unwrap() error { return e.Err }

// ValidationError reports invalid caller input, such as an inverted date
// range or an empty key selection.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "store: validation: " + e.Msg }

// classify wraps a driver error in the matching taxonomy type.
//
// SQLSTATE class 23 is an integrity violation and class 22 a data or
// conversion failure. Undefined columns, tables, and conflict targets
// (42703, 42P01, 42P10) are schema mismatches; the rest of class 42 is a
// malformed statement. Classes 08 and 28 are connection failures.
// Context cancellation passes through untouched so callers can keep
// matching errors.Is(err, context.Canceled).
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := pgErr.Code
		switch {
		case strings.HasPrefix(code, "23"):
			return &IntegrityError{Table: pgErr.TableName, Err: err}
		case strings.HasPrefix(code, "22"):
			return &TypeConversionError{Column: pgErr.ColumnName, Err: err}
		case code == "42703" || code == "42P01" || code == "42P10":
			return &SchemaError{Msg: pgErr.Message, Err: err}
		case strings.HasPrefix(code, "08") || strings.HasPrefix(code, "28"):
			return &ConnectionError{Err: err}
		}
		return &QueryError{Err: err}
	}
	return &QueryError{Err: err}
}
