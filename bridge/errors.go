// Copyright © 2024 The pikelsp authors

package bridge

import (
	"fmt"
	"time"
)

// ProcessError indicates the compiler subprocess could not be spawned,
// crashed, or was forcefully killed. It is fatal to all requests pending
// at the time; the bridge is unavailable until a restart succeeds.
type ProcessError struct {
	Op  string // spawn, exit, write, stop
	Err error
}

func (e *ProcessError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("pike process: %s", e.Op)
	}
	return fmt.Sprintf("pike process: %s: %v", e.Op, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// TimeoutError indicates a request exceeded its deadline waiting for a
// correlated response. The subprocess may still be computing; the
// underlying work is not cancelled or retried.
type TimeoutError struct {
	Method  string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %q timed out after %s", e.Method, e.Elapsed)
}

// ProtocolError indicates a malformed line on the wire. The offending
// line is dropped and the stream continues; only the correlated request
// (when an id was recoverable) observes the error.
type ProtocolError struct {
	Line string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ValidationError indicates a wire response whose shape does not match
// the expected contract. It guards against trusting an ambiguous absent
// value from the subprocess as if it were a valid empty result.
type ValidationError struct {
	Method string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s response: field %q: %s", e.Method, e.Field, e.Reason)
}

// RPCError is an error object carried inside a wire response. For
// compile-type methods these surface as data (diagnostics, failure maps)
// rather than Go errors; the facade only returns an RPCError directly
// for transport-level method failures.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("pike error %d: %s", e.Code, e.Message)
}
