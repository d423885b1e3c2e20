package protocol

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"io"
)

// ParseCompressed decodes an out-of-band compressed payload: base64,
// then zlib inflate, then JSON. Unlike ParsePackets this is strict --
// compressed payloads are length-correct by construction, so any
// failure here is a real error and is returned to the caller.
func ParseCompressed(data string) (any, error) {
	return DefaultCodec.ParseCompressed(data)
}

// ParseCompressed decodes a compressed payload using the codec's JSON
// strategy.
func (c *PacketCodec) ParseCompressed(data string) (any, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, &DecodeError{Payload: data, Err: err}
	}

	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Payload: data, Err: err}
	}
	defer zr.Close()

	inflated, err := io.ReadAll(zr)
	if err != nil {
		return nil, &DecodeError{Payload: data, Err: err}
	}

	var v any
	if err := c.json.Unmarshal(inflated, &v); err != nil {
		return nil, &DecodeError{Payload: string(inflated), Err: err}
	}
	return v, nil
}
