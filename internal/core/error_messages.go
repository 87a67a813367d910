package core

// # Error Codes Reference
//
// User-facing errors carry a code that users can quote to support staff.
// Codes are grouped by category:
//
//	CELL001 - Cell is not a number            (table.ErrInvalidCellSyntax)
//	COL001  - Column name already used        (table.ErrDuplicateColumn)
//	COL002  - Column does not exist           (table.ErrUnknownColumn)
//	COL003  - Column name is empty            (table.ErrInvalidColumnName)
//	ROW001  - Row number out of range         (table.ErrRowOutOfRange)
//	SEL001  - No records selected             (dataset.ErrEmptySelection)
//	SEL002  - Selection has wrong length      (dataset.ErrMaskLength)
//	ROLE001 - Unknown role name               (dataset.ErrUnknownRole)
//	ROLE002 - x and y cannot be unbound       (dataset.ErrRoleRequired)
//	ROLE003 - Role has no column              (dataset.ErrRoleUnbound)
//	FIT001  - Too few points                  (fitting.ErrTooFewPoints)
//	FIT002  - Fit did not converge            (fitting.ErrNotConverged)
//	FIT003  - Parameters are degenerate       (fitting.ErrSingularFit)
//	FIT004  - Unknown model                   (fitting.ErrUnknownModel, ErrInvalidDegree, ErrInvalidModelSpec)
//	FIT005  - Expression does not compile     (fitting.ErrInvalidExpression)
//	FIT006  - Wrong number of parameters      (fitting.ErrParamCount)
//	FIT007  - No model selected               (ErrNoModel)
//	FIT008  - Nothing to plot yet             (ErrNoResult, ErrNoInitialGuess)
//	FIT009  - Too many fits running           (ErrTooManyFits)
//	PLOT001 - X domain is empty               (plot.ErrInvalidDomain)
//	PLOT002 - Log axis has values <= 0        (plot.ErrLogScale)
//	FILE001 - File too large                  ("file too large", "request body too large")
//	FILE002 - Unsupported format              (ingest.ErrUnsupportedFormat)
//	FILE003 - File has no data                (ingest.ErrEmptyFile, ErrNoDataRows)
//	FILE004 - Rows have different lengths     (ingest.ErrRaggedRow)
//	FILE005 - No numeric columns              (ingest.ErrNoNumericColumns, table.ErrNoColumns)
//	FILE006 - Sheet not found                 (ingest.ErrSheetNotFound)
//	SES001  - Session expired                 (ErrSessionNotFound)
//	SES002  - Too many sessions               (ErrTooManySessions)
//	REQ001  - Request cancelled               (context.Canceled)
//	REQ002  - Request timed out               (context.DeadlineExceeded)
//	RATE001 - Too many requests               ("rate limit")
//	ERR000  - Anything else
//
// Sentinel errors are matched with errors.Is first, in table order. Errors
// that only exist as text (from the HTTP layer or drivers) are then matched
// case-insensitively by substring. When a user reports ERR000 the original
// error is in the server log.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/curvefit/internal/dataset"
	"github.com/JonMunkholm/curvefit/internal/fitting"
	"github.com/JonMunkholm/curvefit/internal/ingest"
	"github.com/JonMunkholm/curvefit/internal/plot"
	"github.com/JonMunkholm/curvefit/internal/table"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Support reference
}

type sentinelMessage struct {
	errs []error
	msg  UserMessage
}

var sentinelMessages = []sentinelMessage{
	{[]error{table.ErrInvalidCellSyntax}, UserMessage{
		Message: "Cell value is not a number",
		Action:  "Enter a decimal number such as 1.5 or 2e-3",
		Code:    "CELL001",
	}},
	{[]error{table.ErrDuplicateColumn}, UserMessage{
		Message: "Another column already has this name",
		Action:  "Choose a different column name",
		Code:    "COL001",
	}},
	{[]error{table.ErrUnknownColumn}, UserMessage{
		Message: "Column does not exist",
		Action:  "Check the column name against the table header",
		Code:    "COL002",
	}},
	{[]error{table.ErrInvalidColumnName}, UserMessage{
		Message: "Column name is empty",
		Action:  "Enter a column name",
		Code:    "COL003",
	}},
	{[]error{table.ErrRowOutOfRange}, UserMessage{
		Message: "Record number is out of range",
		Action:  "Records are numbered from 0",
		Code:    "ROW001",
	}},
	{[]error{dataset.ErrEmptySelection}, UserMessage{
		Message: "No records are selected",
		Action:  "Select at least one record",
		Code:    "SEL001",
	}},
	{[]error{dataset.ErrMaskLength}, UserMessage{
		Message: "Selection does not match the number of records",
		Action:  "Send one value per record",
		Code:    "SEL002",
	}},
	{[]error{dataset.ErrUnknownRole}, UserMessage{
		Message: "Unknown column role",
		Action:  "Use one of x, xerr, y, yerr",
		Code:    "ROLE001",
	}},
	{[]error{dataset.ErrRoleRequired}, UserMessage{
		Message: "The x and y columns cannot be cleared",
		Action:  "Choose another column instead",
		Code:    "ROLE002",
	}},
	{[]error{dataset.ErrRoleUnbound}, UserMessage{
		Message: "The x or y column is not chosen",
		Action:  "Choose the x and y columns",
		Code:    "ROLE003",
	}},
	{[]error{fitting.ErrTooFewPoints}, UserMessage{
		Message: "Not enough records for this model",
		Action:  "Select more records or choose a model with fewer parameters",
		Code:    "FIT001",
	}},
	{[]error{fitting.ErrNotConverged}, UserMessage{
		Message: "The fit did not converge",
		Action:  "Try a closer initial guess",
		Code:    "FIT002",
	}},
	{[]error{fitting.ErrSingularFit}, UserMessage{
		Message: "The parameters cannot be determined from this data",
		Action:  "Check that x varies across the selected records",
		Code:    "FIT003",
	}},
	{[]error{fitting.ErrUnknownModel, fitting.ErrInvalidDegree, ErrInvalidModelSpec}, UserMessage{
		Message: "Unknown fit model",
		Action:  "Pick a model from the list",
		Code:    "FIT004",
	}},
	{[]error{fitting.ErrInvalidExpression}, UserMessage{
		Message: "The model expression is not valid",
		Action:  "Write the expression in terms of x and a[0], a[1], ...",
		Code:    "FIT005",
	}},
	{[]error{fitting.ErrParamCount}, UserMessage{
		Message: "Wrong number of parameters",
		Action:  "Enter one value per model parameter",
		Code:    "FIT006",
	}},
	{[]error{ErrNoModel}, UserMessage{
		Message: "No fit model is selected",
		Action:  "Choose a fit model first",
		Code:    "FIT007",
	}},
	{[]error{ErrNoResult, ErrNoInitialGuess}, UserMessage{
		Message: "Nothing to plot yet",
		Action:  "Set an initial guess or run the fit first",
		Code:    "FIT008",
	}},
	{[]error{ErrTooManyFits}, UserMessage{
		Message: "Too many fits are running",
		Action:  "Please wait a moment and try again",
		Code:    "FIT009",
	}},
	{[]error{plot.ErrInvalidDomain}, UserMessage{
		Message: "The x domain is not valid",
		Action:  "Enter numbers with the minimum below the maximum",
		Code:    "PLOT001",
	}},
	{[]error{plot.ErrLogScale}, UserMessage{
		Message: "A log axis cannot show zero or negative values",
		Action:  "Switch the axis back to linear or deselect those records",
		Code:    "PLOT002",
	}},
	{[]error{ingest.ErrUnsupportedFormat}, UserMessage{
		Message: "File format is not supported",
		Action:  "Upload a .csv, .xlsx or .parquet file",
		Code:    "FILE002",
	}},
	{[]error{ingest.ErrEmptyFile, ingest.ErrNoDataRows}, UserMessage{
		Message: "The file has no data",
		Action:  "Upload a file with a header row and at least one record",
		Code:    "FILE003",
	}},
	{[]error{ingest.ErrRaggedRow}, UserMessage{
		Message: "Rows have different numbers of cells",
		Action:  "Make every row as long as the header",
		Code:    "FILE004",
	}},
	{[]error{ingest.ErrNoNumericColumns, table.ErrNoColumns}, UserMessage{
		Message: "The file has no numeric columns",
		Action:  "Check that the file holds numbers",
		Code:    "FILE005",
	}},
	{[]error{ingest.ErrSheetNotFound}, UserMessage{
		Message: "Sheet not found in the workbook",
		Action:  "Check the sheet name",
		Code:    "FILE006",
	}},
	{[]error{ErrSessionNotFound}, UserMessage{
		Message: "Session not found",
		Action:  "The session may have expired. Please upload the file again",
		Code:    "SES001",
	}},
	{[]error{ErrTooManySessions}, UserMessage{
		Message: "Too many open sessions",
		Action:  "Close a session or try again later",
		Code:    "SES002",
	}},
	{[]error{context.Canceled}, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "REQ001",
	}},
	{[]error{context.DeadlineExceeded}, UserMessage{
		Message: "Request timed out",
		Action:  "Select fewer records or try again later",
		Code:    "REQ002",
	}},
}

// errorPattern maps text found in an error to a message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{"file too large", UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Upload a smaller file",
		Code:    "FILE001",
	}},
	{"request body too large", UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Upload a smaller file",
		Code:    "FILE001",
	}},
	{"rate limit", UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		for _, target := range sm.errs {
			if errors.Is(err, target) {
				return sm.msg
			}
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
