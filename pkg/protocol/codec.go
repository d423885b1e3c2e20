package protocol

import (
	"encoding/json"

	gojson "github.com/goccy/go-json"
)

// JSONCodec is the pluggable JSON strategy used by a PacketCodec.
// Implementations must produce compact output (no indentation, no
// spaces after separators) because frame lengths count payload bytes.
type JSONCodec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// PacketCodec encodes and decodes wire packets with a fixed JSON
// strategy. The strategy is chosen once at construction; there is no
// runtime fallback.
type PacketCodec struct {
	json JSONCodec
}

// NewCodec returns a PacketCodec using the given JSON strategy.
// A nil strategy selects the standard library implementation.
func NewCodec(j JSONCodec) *PacketCodec {
	if j == nil {
		j = stdJSON{}
	}
	return &PacketCodec{json: j}
}

// DefaultCodec is the package-level codec backed by encoding/json.
// The top-level FormatPacket, ParsePackets and ParseCompressed helpers
// delegate to it.
var DefaultCodec = NewCodec(stdJSON{})

// FastCodec returns a PacketCodec backed by goccy/go-json. It decodes
// identically to the default codec but is noticeably faster on the
// small, repetitive objects this protocol carries.
func FastCodec() *PacketCodec {
	return NewCodec(fastJSON{})
}

// stdJSON is the encoding/json strategy.
type stdJSON struct{}

func (stdJSON) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (stdJSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// fastJSON is the goccy/go-json strategy.
type fastJSON struct{}

func (fastJSON) Marshal(v any) ([]byte, error)      { return gojson.Marshal(v) }
func (fastJSON) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }
