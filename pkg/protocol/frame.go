package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Frame markers used by the text-multiplexed wire format.
const (
	// FrameMarker delimits the length header: ~m~<length>~m~<payload>.
	FrameMarker = "~m~"

	// HeartbeatMarker prefixes bare-integer keep-alive payloads. It is
	// never length-prefixed and must be stripped before frame scanning.
	HeartbeatMarker = "~h~"
)

// FormatPacket serializes a packet for the wire using the default codec.
//
// A structured value is marshaled to compact JSON with every JSON null
// rewritten to an empty string (the service rejects null tokens), then
// wrapped as ~m~<byte length>~m~<json>. A string value is assumed to be
// pre-serialized (heartbeat echoes) and is wrapped unchanged.
func FormatPacket(v any) (string, error) {
	return DefaultCodec.FormatPacket(v)
}

// FormatPacket serializes a packet using the codec's JSON strategy.
func (c *PacketCodec) FormatPacket(v any) (string, error) {
	var payload string
	switch s := v.(type) {
	case string:
		payload = s
	default:
		raw, err := c.json.Marshal(v)
		if err != nil {
			return "", &EncodeError{Err: err}
		}
		payload = strings.ReplaceAll(string(raw), "null", `""`)
	}
	return fmt.Sprintf("%s%d%s%s", FrameMarker, len(payload), FrameMarker, payload), nil
}

// ParsePackets scans a raw inbound chunk for concatenated frames and
// returns the decoded packets in wire order, using the default codec.
//
// The scanner is deliberately lenient: heartbeat markers are stripped
// first, scanning stops at the first byte that is not a frame start or
// at a non-numeric length field, a payload that fails to parse as JSON
// is dropped while scanning continues, and a declared length that runs
// past the end of the buffer truncates. ParsePackets never fails; it
// degrades to returning fewer packets.
func ParsePackets(buf string) []Packet {
	return DefaultCodec.ParsePackets(buf)
}

// ParsePackets scans a raw chunk using the codec's JSON strategy.
func (c *PacketCodec) ParsePackets(buf string) []Packet {
	if strings.Contains(buf, HeartbeatMarker) {
		buf = strings.ReplaceAll(buf, HeartbeatMarker, "")
	}

	var packets []Packet
	idx := 0
	for idx < len(buf) {
		if !strings.HasPrefix(buf[idx:], FrameMarker) {
			break
		}
		idx += len(FrameMarker)

		next := strings.Index(buf[idx:], FrameMarker)
		if next < 0 || next > MaxLengthDigits {
			break
		}

		length, err := strconv.Atoi(buf[idx : idx+next])
		if err != nil || length < 0 || length > MaxPayloadBytes {
			break
		}

		idx += next + len(FrameMarker)

		end := idx + length
		if end > len(buf) {
			end = len(buf)
		}
		payload := buf[idx:end]

		if payload != "" {
			if pkt, err := c.parsePayload(payload); err == nil {
				packets = append(packets, pkt)
			}
		}

		idx = end
	}
	return packets
}

// parsePayload decodes one frame payload into a Packet.
func (c *PacketCodec) parsePayload(payload string) (Packet, error) {
	// Heartbeats arrive as bare decimal integers.
	if n, err := strconv.ParseInt(payload, 10, 64); err == nil {
		return Packet{heartbeat: n, isHeartbeat: true}, nil
	}

	var v any
	if err := c.json.Unmarshal([]byte(payload), &v); err != nil {
		return Packet{}, &DecodeError{Payload: payload, Err: err}
	}
	return Packet{value: v}, nil
}
