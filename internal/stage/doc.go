// Package stage runs one pipeline stage: a single external worker invocation
// plus verification that the worker actually produced its output.
//
// Execute never retries and never returns an error value. Every outcome,
// including cancellation before launch, is reported as an immutable Result so
// the supervisor can record it without inspecting worker internals.
package stage
