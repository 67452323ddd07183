package planner

import "errors"

// ErrMalformedPlan indicates the delegate's terminal output did not
// parse or validate as a plan. No fallback plan is synthesized.
var ErrMalformedPlan = errors.New("malformed plan")
