package optimization

import "errors"

var (
	// ErrInsufficientData is returned when the return window is too short to estimate covariance.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInfeasibleConstraints is returned when bounds, caps and bands cannot be jointly satisfied.
	ErrInfeasibleConstraints = errors.New("infeasible constraints")
	// ErrInvalidRequest is returned for malformed optimization requests.
	ErrInvalidRequest = errors.New("invalid optimization request")
)
