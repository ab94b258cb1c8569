package web

// errors.go maps errors onto HTTP responses.
//
// The store taxonomy carries the failure class, so the mapping is typed
// rather than string-matched: each class gets a status, a stable code for
// support reference, and an action hint. Store internals (connection
// strings, SQL) never reach the client; the full error is logged
// server-side with the request id for correlation.

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/atlasquant/marketdata/internal/ingest"
	"github.com/atlasquant/marketdata/internal/store"
)

// ErrorResponse is the JSON structure for API error responses.
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Action string `json:"action,omitempty"`
}

// respondError logs the technical error and writes the mapped response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := mapError(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", resp.Code,
		"request_id", chimw.GetReqID(r.Context()),
	)

	writeJSON(w, status, resp)
}

// mapError translates an error into an HTTP status and client response.
func mapError(err error) (int, ErrorResponse) {
	var (
		validation *store.ValidationError
		schema     *store.SchemaError
		conversion *store.TypeConversionError
		integrity  *store.IntegrityError
		connection *store.ConnectionError
		query      *store.QueryError
	)

	switch {
	case errors.Is(err, ingest.ErrTooManyIngests):
		return http.StatusTooManyRequests, ErrorResponse{
			Error:  "too many concurrent ingestions",
			Code:   "ING001",
			Action: "Wait a moment and retry",
		}

	case errors.Is(err, ingest.ErrNoData):
		return http.StatusBadGateway, ErrorResponse{
			Error:  "provider returned no data",
			Code:   "PROV001",
			Action: "Check the provider status and the configured codes",
		}

	case errors.As(err, &validation):
		return http.StatusBadRequest, ErrorResponse{
			Error:  validation.Error(),
			Code:   "VAL001",
			Action: "Fix the request parameters and retry",
		}

	case errors.As(err, &schema):
		return http.StatusBadRequest, ErrorResponse{
			Error:  schema.Error(),
			Code:   "SCH001",
			Action: "Check column and table names against the data model",
		}

	case errors.As(err, &conversion):
		return http.StatusBadRequest, ErrorResponse{
			Error:  conversion.Error(),
			Code:   "VAL002",
			Action: "Fix the malformed values and retry",
		}

	case errors.As(err, &integrity):
		return http.StatusConflict, ErrorResponse{
			Error:  "rows conflict with existing primary keys",
			Code:   "DB001",
			Action: "Use upsert mode or remove the conflicting rows",
		}

	case errors.As(err, &connection):
		return http.StatusServiceUnavailable, ErrorResponse{
			Error:  "database unavailable",
			Code:   "DB002",
			Action: "Try again in a few moments",
		}

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorResponse{
			Error:  "request timed out",
			Code:   "CTX002",
			Action: "Narrow the query window or try again later",
		}

	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, ErrorResponse{
			Error:  "request cancelled",
			Code:   "CTX001",
			Action: "Retry the request",
		}

	case errors.As(err, &query):
		return http.StatusInternalServerError, ErrorResponse{
			Error:  "query failed",
			Code:   "DB003",
			Action: "Try again or check the server logs",
		}

	default:
		return http.StatusInternalServerError, ErrorResponse{
			Error:  "unexpected error",
			Code:   "ERR000",
			Action: "Try again or check the server logs",
		}
	}
}
