// Package config loads, normalizes, and validates vidscribe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VIDSCRIBE_API_TOKEN. The Config type centralizes every knob the daemon and
// CLI need: where transcripts and scratch workspaces live, which external
// worker binaries perform extraction and transcription, and how long each
// stage may run before it is terminated.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, rendered worker arguments, and clear validation errors.
package config
