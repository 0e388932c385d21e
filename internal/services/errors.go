// Package services defines the business logic around availability checking.
// This file centralizes common service-level error values so that they can
// be consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; the
// handler layer translates them into HTTP statuses.
package services

import "errors"

var (
	// ErrRunInProgress is returned when a check run is requested while
	// another run is still executing. Runs are serialized: two concurrent
	// runs would double-probe the same rows and race on deletions.
	ErrRunInProgress = errors.New("availability check already running")

	// ErrNoReport is returned when the last-run report is requested before
	// any run has completed.
	ErrNoReport = errors.New("no availability run has completed yet")
)
