// Package client implements the asynchronous connection engine for the
// streaming data feed.
//
// A Client owns one persistent WebSocket connection and drives it
// through the lifecycle Disconnected -> Connecting -> Open ->
// Authenticated -> Closing -> Disconnected. Two concurrent loops run
// while the socket is open:
//
//   - The read loop decodes every inbound transport message into
//     packets and classifies each one: heartbeats are echoed and fire
//     ping; a protocol_error message fires error and force-closes;
//     session-addressed packets (p[0] matches a registered session)
//     are delivered to that session's handler synchronously, in
//     arrival order; the first unrouted packet before authentication
//     fires logged; everything else fires data.
//
//   - The write loop drains the unbounded send queue onto the socket,
//     gated on the authenticated flag. Send never blocks and may be
//     called before Connect. Write failures are logged and counted but
//     do not stop the loop.
//
// Authentication is a heuristic: the first inbound message implies the
// handshake completed. The server sends no explicit acknowledgment, so
// the engine keeps the behavior of every existing feed reader rather
// than inventing a stricter check.
//
// # Events
//
// Callbacks register per event name (connected, disconnected, logged,
// ping, data, error) plus a wildcard channel receiving every event.
// The registry is per-client. Handlers implement the Callback
// contract; CallbackFunc runs inline and blocks the firer, Async
// schedules the function on its own goroutine. Panics in handlers are
// contained at the dispatch boundary. Firing error with no error
// handler registered writes to the diagnostic log instead of dropping.
//
// # Shutdown
//
// Close is idempotent and cooperative: it closes the socket to unblock
// the read loop and cancels the connect context to stop the write
// loop. Connect blocks until cleanup completes and always fires
// disconnected, even when the dial failed or Close arrived first.
//
// The engine imposes no idle timeouts of its own; the application
// heartbeat echo is the liveness mechanism, replacing WebSocket
// protocol-level ping/pong.
package client
