// Package preflight provides readiness checks for the worker binaries,
// filesystem paths, and optional ntfy endpoint that vidscribe depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failing check.
//   - The CLI "vidscribe deps" and "vidscribe status" commands render the
//     same results as tables.
package preflight
