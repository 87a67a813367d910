package web

// errors.go renders every handler error the same way:
//  1. the technical error is logged with the request ID
//  2. the client receives core.MapError's message, action and code
//  3. the status code follows the error kind

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/JonMunkholm/curvefit/internal/core"
	"github.com/JonMunkholm/curvefit/internal/dataset"
	"github.com/JonMunkholm/curvefit/internal/fitting"
	"github.com/JonMunkholm/curvefit/internal/ingest"
	"github.com/JonMunkholm/curvefit/internal/logging"
	"github.com/JonMunkholm/curvefit/internal/plot"
	"github.com/JonMunkholm/curvefit/internal/table"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

var (
	errBadRequest = errors.New("invalid request")
	errNoFile     = errors.New("no file provided")
)

// statusRules maps sentinel errors to status codes; the first match wins.
var statusRules = []struct {
	status int
	errs   []error
}{
	{http.StatusNotFound, []error{core.ErrSessionNotFound}},
	{http.StatusServiceUnavailable, []error{core.ErrTooManySessions, core.ErrTooManyFits}},
	{http.StatusUnsupportedMediaType, []error{ingest.ErrUnsupportedFormat}},
	{http.StatusConflict, []error{
		dataset.ErrEmptySelection, dataset.ErrRoleUnbound,
		core.ErrNoModel, core.ErrNoResult, core.ErrNoInitialGuess,
		fitting.ErrTooFewPoints,
	}},
	{http.StatusUnprocessableEntity, []error{
		table.ErrInvalidCellSyntax, table.ErrDuplicateColumn, table.ErrUnknownColumn,
		table.ErrRowOutOfRange, table.ErrInvalidColumnName, table.ErrNoColumns,
		dataset.ErrUnknownRole, dataset.ErrRoleRequired, dataset.ErrMaskLength,
		fitting.ErrParamCount, fitting.ErrUnknownModel, fitting.ErrInvalidDegree,
		fitting.ErrInvalidExpression, fitting.ErrNotConverged, fitting.ErrSingularFit,
		core.ErrInvalidModelSpec, plot.ErrInvalidDomain, plot.ErrLogScale,
		ingest.ErrEmptyFile, ingest.ErrNoDataRows, ingest.ErrRaggedRow,
		ingest.ErrNoNumericColumns, ingest.ErrSheetNotFound,
	}},
	{http.StatusBadRequest, []error{errBadRequest, errNoFile}},
	{http.StatusGatewayTimeout, []error{context.DeadlineExceeded}},
}

// statusFor picks the response status for err.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	for _, rule := range statusRules {
		for _, target := range rule.errs {
			if errors.Is(err, target) {
				return rule.status
			}
		}
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes the mapped message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	if status >= 500 {
		logger.Error("request error", "path", r.URL.Path, "status", status, "code", msg.Code, "error", err)
	} else {
		logger.Debug("request rejected", "path", r.URL.Path, "status", status, "code", msg.Code, "error", err)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSONStatus(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v. Encoding errors are only logged since the header
// is already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(context.Background()).Error("json encode error", "error", err)
	}
}
