// Package capture records the raw event stream of a client for replay
// and debugging: every fired event, timestamped, as JSON lines.
//
// A Recorder attaches to the client's wildcard event channel, so it
// sees connection lifecycle, heartbeats, and every data packet without
// altering routing. Records go to a Sink: FileSink appends locally,
// S3Sink batches uploads to an object store.
package capture
