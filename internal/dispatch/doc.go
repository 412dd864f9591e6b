// Package dispatch routes decoded realtime events to typed handlers.
//
// The Dispatcher:
//   - Decodes each inbound frame into one wire.Event variant
//   - Invokes at most one registered handler per frame
//   - Raises toasts for transactions, system and error notifications
//   - Logs and drops malformed frames and unknown types
//   - Optionally records every decoded envelope (see journal)
package dispatch
