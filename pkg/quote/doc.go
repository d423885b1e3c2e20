// Package quote implements the quote session layered on the connection
// engine: a subscription channel for per-symbol field updates (last
// price, change, volume and friends).
//
// A Session registers itself with the engine under a generated qs_ id,
// announces itself with quote_create_session / quote_set_fields, and
// merges incoming qsd updates into a per-symbol value map. Field
// semantics are the feed's business; this package only merges and
// forwards them.
package quote
