package codec

import (
	"github.com/bytedance/sonic"
)

// JSONCodec uses sonic in encoding/json compatible mode. Byte fields travel
// as base64 strings, route descriptors as objects of their text fields.
// Pros: human-readable, easy to debug with a packet dump.
// Cons: larger payload, the record content is opaque base64 anyway.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return sonic.ConfigStd.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return sonic.ConfigStd.Unmarshal(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
