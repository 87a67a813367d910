package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/JonMunkholm/curvefit/internal/dataset"
	"github.com/JonMunkholm/curvefit/internal/fitting"
	"github.com/JonMunkholm/curvefit/internal/ingest"
	"github.com/JonMunkholm/curvefit/internal/plot"
	"github.com/JonMunkholm/curvefit/internal/table"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"cell error", &table.CellError{Row: 2, Column: "x", Value: "abc", Err: table.ErrInvalidCellSyntax}, "CELL001"},
		{"wrapped duplicate column", fmt.Errorf("rename: %w", table.ErrDuplicateColumn), "COL001"},
		{"unknown column", table.ErrUnknownColumn, "COL002"},
		{"row out of range", table.ErrRowOutOfRange, "ROW001"},
		{"empty selection", dataset.ErrEmptySelection, "SEL001"},
		{"role required", dataset.ErrRoleRequired, "ROLE002"},
		{"role unbound", fmt.Errorf("y: %w", dataset.ErrRoleUnbound), "ROLE003"},
		{"too few points", fitting.ErrTooFewPoints, "FIT001"},
		{"invalid degree shares unknown model code", fitting.ErrInvalidDegree, "FIT004"},
		{"no initial guess", ErrNoInitialGuess, "FIT008"},
		{"too many fits", ErrTooManyFits, "FIT009"},
		{"empty x domain", fmt.Errorf("%w: [2, 1]", plot.ErrInvalidDomain), "PLOT001"},
		{"log axis", plot.ErrLogScale, "PLOT002"},
		{"ragged row inside load", fmt.Errorf("load a.csv: %w", ingest.ErrRaggedRow), "FILE004"},
		{"session not found", fmt.Errorf("%w: abc", ErrSessionNotFound), "SES001"},
		{"deadline", context.DeadlineExceeded, "REQ002"},
		{"body too large text", errors.New("http: request body too large"), "FILE001"},
		{"rate limit text", errors.New("Rate Limit exceeded"), "RATE001"},
		{"unknown error", errors.New("some random internal error"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapError(tt.err).Code; got != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(dataset.ErrEmptySelection)
	want := "No records are selected (Code: SEL001). Select at least one record"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", ErrNoModel, true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	if got := NewUserError(nil); got != nil {
		t.Errorf("NewUserError(nil) = %v, want nil", got)
	}

	ue := NewUserError(ErrNoModel)
	if ue.Error() != "No fit model is selected" {
		t.Errorf("Error() = %q, want user message", ue.Error())
	}
	if !errors.Is(ue, ErrNoModel) {
		t.Error("Unwrap() should return original error")
	}
}
