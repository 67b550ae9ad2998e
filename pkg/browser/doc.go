// Package browser is the browser capability behind the run loop.
//
// It has three parts:
//
//  1. Driver: the narrow interface the run loop drives (screenshot, current
//     URL, viewport, perform one canonical action, close).
//  2. Session and SessionManager: a Playwright-backed Driver and the
//     registry that owns Playwright and the named sessions started on it.
//  3. Executor: runs one action on a Driver, retrying transient failures
//     (timeouts, navigation interruptions, detached frames) with a linear
//     backoff and reporting everything else as a fatal *ActionError.
//
// # Coordinates
//
// Canonical actions carry coordinates on a 0-1000 grid. Session scales them
// to the viewport at execution time, so the same action works at any window
// size.
//
// # Lifecycle
//
// Sessions belong to whoever started them (the CLI or server), not to a run.
// A run borrows a Session as a Driver and never closes it; the owner calls
// SessionManager.Shutdown when the hosting process exits.
package browser
