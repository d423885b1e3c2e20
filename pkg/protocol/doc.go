// Package protocol implements the text-multiplexed wire format used by
// the streaming data feed.
//
// The feed multiplexes JSON messages and keep-alive tokens over a
// single WebSocket text stream. Every logical message is wrapped in a
// length-prefixed frame:
//
//	~m~<length>~m~<payload>
//
// where <length> is the decimal ASCII byte count of <payload>. A single
// transport message may carry several concatenated frames. Payloads are
// either:
//
//   - a bare decimal integer: a heartbeat that must be echoed back
//     verbatim (prefixed with ~h~ on the wire),
//   - a method call object {"m": <method>, "p": [<params>...]}, where
//     session-addressed methods carry the session id at p[0], or
//   - any other JSON value (handshake and server status blobs).
//
// # Leniency
//
// ParsePackets never returns an error. The upstream service emits
// occasional partial or padded chunks, and established feed readers
// treat those as "fewer messages", not as a protocol violation. The
// scanner mirrors that: malformed lengths stop the scan, bad JSON
// drops the one message, truncated payloads are clipped to the buffer.
//
// Encoding is strict about one service quirk: JSON null tokens are
// rewritten to empty strings, because the service rejects frames
// containing null.
//
// # JSON strategy
//
// JSON marshaling is injectable via the JSONCodec interface. The
// default uses encoding/json; FastCodec selects goccy/go-json once at
// construction for hot decode paths. There is no runtime probing.
//
// # Compressed payloads
//
// Some study and series payloads arrive out of band as base64-encoded,
// zlib-compressed JSON. ParseCompressed handles these and, unlike the
// frame scanner, treats any failure as a hard error.
package protocol
