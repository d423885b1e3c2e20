package protocol

// Protocol limits.
//
// The scanner trusts the declared frame length to locate the next frame
// boundary, so a corrupt length field could otherwise force a huge
// allocation. These bounds cap what a single frame may claim.
const (
	// MaxPayloadBytes is the largest payload a single frame may
	// declare. Observed production payloads (full timescale updates)
	// stay well under 8MB.
	MaxPayloadBytes = 32 << 20

	// MaxLengthDigits is the widest length field the scanner accepts.
	MaxLengthDigits = 8
)
