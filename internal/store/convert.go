package store

// convert.go normalizes cell values crossing the store boundary.
//
// The write side accepts loosely typed rows from JSON payloads, CSV
// ingestion, and Go callers, and coerces them into driver-friendly
// values. The read side turns generic result cells back into the typed
// values the shaping layer works with. Both directions fail with
// TypeConversionError rather than letting driver errors leak through.

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	"github.com/jackc/pgx/v5/pgtype"
)

// dateLayouts are accepted when parsing dates from string cells.
// ISO forms come first since every internal feed writes them.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"20060102",
	time.RFC3339,
}

// coerceRow prepares one dataset row for binding: checks arity against
// the column list and coerces each cell. The returned slice is freshly
// allocated so callers can flatten it into a statement argument list.
func coerceRow(columns []string, row []any) ([]any, error) {
	if len(row) != len(columns) {
		return nil, &SchemaError{Msg: fmt.Sprintf("row has %d values, want %d", len(row), len(columns))}
	}
	out := make([]any, len(row))
	for i, v := range row {
		cv, err := coerceValue(v)
		if err != nil {
			return nil, &TypeConversionError{Column: columns[i], Err: err}
		}
		out[i] = cv
	}
	return out, nil
}

// coerceValue maps a cell value onto a type the driver can bind.
// NaN and infinities become NULL, matching how float feeds mark absent
// observations. civil dates become midnight UTC timestamps. Values the
// driver already understands pass through unchanged.
func coerceValue(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, nil
		}
		return x, nil
	case float32:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, nil
		}
		return f, nil
	case civil.Date:
		return x.In(time.UTC), nil
	case *civil.Date:
		if x == nil {
			return nil, nil
		}
		return x.In(time.UTC), nil
	case string, bool, []byte, time.Time,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return v, nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

// AsFloat converts a result cell to float64.
func AsFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int:
		return float64(x), nil
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil {
			return 0, &TypeConversionError{Err: err}
		}
		if !f.Valid {
			return 0, &TypeConversionError{Err: fmt.Errorf("numeric is null")}
		}
		return f.Float64, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, &TypeConversionError{Err: fmt.Errorf("parse %q as float: %w", x, err)}
		}
		return f, nil
	}
	return 0, &TypeConversionError{Err: fmt.Errorf("cannot read %T as float", v)}
}

// AsDate converts a result cell to a civil date. Timestamps are read in
// their own location so a stored date never shifts across midnight.
func AsDate(v any) (civil.Date, error) {
	switch x := v.(type) {
	case time.Time:
		return civil.DateOf(x), nil
	case civil.Date:
		return x, nil
	case pgtype.Date:
		if !x.Valid {
			return civil.Date{}, &TypeConversionError{Err: fmt.Errorf("date is null")}
		}
		return civil.DateOf(x.Time), nil
	case string:
		return ParseDate(x)
	}
	return civil.Date{}, &TypeConversionError{Err: fmt.Errorf("cannot read %T as date", v)}
}

// AsString converts a result cell to a string.
func AsString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	}
	return "", &TypeConversionError{Err: fmt.Errorf("cannot read %T as string", v)}
}

// ParseDate parses a date string against the accepted layouts.
func ParseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}, &TypeConversionError{Err: fmt.Errorf("empty date")}
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return civil.DateOf(t), nil
		}
	}
	return civil.Date{}, &TypeConversionError{Err: fmt.Errorf("unrecognized date %q", s)}
}
