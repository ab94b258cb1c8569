package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		// Integrity (class 23)
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: "integrity"},
		{name: "foreign key violation", err: &pgconn.PgError{Code: "23503"}, want: "integrity"},
		{name: "not null violation", err: &pgconn.PgError{Code: "23502"}, want: "integrity"},

		// Conversion (class 22)
		{name: "numeric overflow", err: &pgconn.PgError{Code: "22003"}, want: "conversion"},
		{name: "invalid text representation", err: &pgconn.PgError{Code: "22P02"}, want: "conversion"},
		{name: "bad datetime format", err: &pgconn.PgError{Code: "22007"}, want: "conversion"},

		// Schema
		{name: "undefined column", err: &pgconn.PgError{Code: "42703"}, want: "schema"},
		{name: "undefined table", err: &pgconn.PgError{Code: "42P01"}, want: "schema"},
		{name: "no matching conflict target", err: &pgconn.PgError{Code: "42P10"}, want: "schema"},

		// Connection
		{name: "connection failure", err: &pgconn.PgError{Code: "08006"}, want: "connection"},
		{name: "bad password", err: &pgconn.PgError{Code: "28P01"}, want: "connection"},

		// Query fallback
		{name: "syntax error", err: &pgconn.PgError{Code: "42601"}, want: "query"},
		{name: "plain error", err: fmt.Errorf("socket closed"), want: "query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			var ok bool
			switch tt.want {
			case "integrity":
				var e *IntegrityError
				ok = errors.As(got, &e)
			case "conversion":
				var e *TypeConversionError
				ok = errors.As(got, &e)
			case "schema":
				var e *SchemaError
				ok = errors.As(got, &e)
			case "connection":
				var e *ConnectionError
				ok = errors.As(got, &e)
			case "query":
				var e *QueryError
				ok = errors.As(got, &e)
			}
			if !ok {
				t.Errorf("classify(%v) = %T, want %s error", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyNil(t *testing.T) {
	if got := classify(nil); got != nil {
		t.Errorf("classify(nil) = %v, want nil", got)
	}
}

func TestClassifyKeepsCancellation(t *testing.T) {
	wrapped := fmt.Errorf("query aborted: %w", context.Canceled)
	got := classify(wrapped)
	if !errors.Is(got, context.Canceled) {
		t.Errorf("classify lost context.Canceled: %v", got)
	}
	var qe *QueryError
	if errors.As(got, &qe) {
		t.Error("cancellation should not be reported as a QueryError")
	}
}

func TestClassifyPreservesCause(t *testing.T) {
	cause := &pgconn.PgError{Code: "23505", Message: "duplicate key", TableName: "indicadores"}
	got := classify(cause)

	var pgErr *pgconn.PgError
	if !errors.As(got, &pgErr) {
		t.Fatal("wrapped error no longer reaches the PgError cause")
	}
	if pgErr.Code != "23505" {
		t.Errorf("cause code = %s, want 23505", pgErr.Code)
	}

	var intErr *IntegrityError
	if !errors.As(got, &intErr) {
		t.Fatal("expected IntegrityError")
	}
	if intErr.Table != "indicadores" {
		t.Errorf("Table = %q, want indicadores", intErr.Table)
	}
}
