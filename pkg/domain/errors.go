package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrVersionConflict is returned by a compare-and-swap write whose expected
// version no longer matches the stored one. The caller must re-read and
// recompute the transition; blind overwrites are not permitted.
var ErrVersionConflict = errors.New("state version conflict")

// ErrStateCorrupt is returned when stored state fails structural validation
// on read. The session is reset to the initial stage with an explicit notice.
var ErrStateCorrupt = errors.New("stored state failed validation")

// ErrClassification marks classifier unavailability or malformed output.
// Handled by the deterministic keyword fallback, never fatal.
var ErrClassification = errors.New("classification failed")

// ErrExecTimeout is returned when a sandboxed execution exceeds its
// wall-clock budget and is forcibly terminated.
var ErrExecTimeout = errors.New("execution timed out")

// ErrInvalidOutput is returned when sandbox output fails sanitization.
// Retryable: the execution is re-attempted once with a stricter template.
var ErrInvalidOutput = errors.New("execution produced invalid output")

// ErrPolicyViolation is returned when a script requests a capability outside
// the sandbox allowlist. The offending statement is never executed.
var ErrPolicyViolation = errors.New("sandbox policy violation")
