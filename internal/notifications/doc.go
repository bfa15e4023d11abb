// Package notifications pushes job outcomes to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// the supervisor can call it unconditionally. Per-outcome toggles in the
// [notifications] config section suppress individual messages.
package notifications
