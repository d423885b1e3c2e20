package protocol

// Packet is the decoded logical content of one frame. It is one of
// three shapes: a bare-integer heartbeat, a structured method call
// {"m": <method>, "p": [<params>...]}, or an opaque JSON value.
type Packet struct {
	heartbeat   int64
	isHeartbeat bool
	value       any
}

// NewPacket wraps an already-decoded JSON value as a Packet. It is
// mostly useful in tests and capture replay.
func NewPacket(v any) Packet {
	return Packet{value: v}
}

// NewHeartbeat returns a heartbeat Packet carrying the given id.
func NewHeartbeat(id int64) Packet {
	return Packet{heartbeat: id, isHeartbeat: true}
}

// Heartbeat reports whether the packet is a keep-alive, and its id.
func (p Packet) Heartbeat() (int64, bool) {
	return p.heartbeat, p.isHeartbeat
}

// Value returns the decoded JSON value. Heartbeats return nil.
func (p Packet) Value() any {
	return p.value
}

// Method returns the "m" field of a structured packet, or "" if the
// packet is not an object or has no method.
func (p Packet) Method() string {
	obj, ok := p.value.(map[string]any)
	if !ok {
		return ""
	}
	m, _ := obj["m"].(string)
	return m
}

// Params returns the "p" parameter list of a structured packet, or nil.
func (p Packet) Params() []any {
	obj, ok := p.value.(map[string]any)
	if !ok {
		return nil
	}
	params, _ := obj["p"].([]any)
	return params
}

// SessionID returns the first parameter of a structured packet as a
// string. Session-addressed messages carry their session id at p[0].
func (p Packet) SessionID() string {
	params := p.Params()
	if len(params) == 0 {
		return ""
	}
	id, _ := params[0].(string)
	return id
}
