// Package daemonctl launches, stops, and inspects the background daemon on
// behalf of the CLI, falling back to on-disk state when it is offline.
package daemonctl
