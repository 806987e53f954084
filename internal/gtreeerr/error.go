// Package gtreeerr provides the gravity solver's standardized error type.
//
// Four fatal error kinds cover the core: allocation failure, degenerate
// insertion, cross-rank protocol mismatch, and configuration error at
// configure-time. There are no retryable errors here — a partial walk
// leaves the particle container inconsistent and the whole force
// evaluation must be redone by the caller.
package gtreeerr

import (
	"fmt"
	"runtime"
)

// Category classifies a gravity-tree error by the fatal kind it represents.
type Category string

const (
	CategoryAllocation    Category = "ALLOCATION"
	CategoryDegenerate    Category = "DEGENERATE"
	CategoryProtocol      Category = "PROTOCOL"
	CategoryConfiguration Category = "CONFIGURATION"
)

// Fields carries structured context alongside an Error.
type Fields map[string]interface{}

// Error is the standardized error type returned by this module's core
// packages (pool, gravtree, transport).
type Error struct {
	Category Category
	Code     string
	Message  string
	Context  Fields
	Caller   string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s:%s] %s (at %s)", e.Category, e.Code, e.Message, e.Caller)
}

// New creates a standardized Error, capturing the immediate caller.
func New(category Category, code, message string, context Fields) *Error {
	pc, _, _, ok := runtime.Caller(1)
	caller := "unknown"

	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &Error{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  context,
		Caller:   caller,
	}
}

// Degenerate reports two distinct particles that collide at the
// sibling-collision depth cap (coincident or near-coincident positions
// that repeated splitting could not separate).
func Degenerate(i, j int, depth int) *Error {
	return New(CategoryDegenerate, "DEGENERATE_INSERTION",
		fmt.Sprintf("particles %d and %d could not be separated after %d splits", i, j, depth),
		Fields{"particle_i": i, "particle_j": j, "depth": depth})
}

// Protocol reports a cross-rank inconsistency detected during the
// remote-moment exchange or the parallel walk.
func Protocol(format string, args ...interface{}) *Error {
	return New(CategoryProtocol, "PROTOCOL_MISMATCH", fmt.Sprintf(format, args...), nil)
}

// Configuration reports a configure-time validation failure.
func Configuration(format string, args ...interface{}) *Error {
	return New(CategoryConfiguration, "INVALID_CONFIGURATION", fmt.Sprintf(format, args...), nil)
}
