// Package core provides the session service behind the HTTP front end.
//
// A session is one uploaded data file wrapped in a [dataset.Dataset], plus
// the fitting state built on it: the selected model, the initial guess and
// the current fit result. The package is independent of any transport and
// can be driven by web handlers, a CLI or tests.
//
// # Sessions
//
// [Service.Open] parses a file with the ingest package and preselects the
// column roles. Sessions are addressed by UUID and closed explicitly with
// [Service.Close] or by the idle sweeper started with [Service.StartSweeper].
//
// # Invalidation
//
// Every session subscribes to its dataset. Any role, selection, cell or
// header change clears the current fit result and appends an [EditEntry] to
// the session history. A fit that finishes after such a change is returned
// to its caller but not kept as the current result.
//
// # Fitting
//
// Fits run under a [FitLimiter] and the configured timeout. Results are
// persisted through a [ResultStore] when one is configured.
//
// # Error Handling
//
// Errors are mapped to user-friendly messages with [MapError]. Each category
// has a code for support reference:
//
//   - CELL, COL, ROW: table edits
//   - SEL, ROLE: selection and column roles
//   - FIT: models, initial guesses and the solver
//   - FILE: uploads
//   - SES, REQ, RATE: sessions and requests
package core
