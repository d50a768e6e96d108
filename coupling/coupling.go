// Package coupling writes atmospheric model data in the layouts read by the
// SOWFA solver: time series and profiles for internal (mesoscale source
// term) coupling, and per-timestep boundaryData snapshots for boundary
// coupling.
package coupling

import (
	"errors"
	"log/slog"
)

var (
	// ErrInvalidInput marks input whose shape does not fit the requested
	// output: missing fields, wrong vector arity, unexpected axes or an empty
	// time window.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIncomplete marks a field that holds missing (NaN) values where the
	// output needs every value.
	ErrIncomplete = errors.New("incomplete field")
)

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
