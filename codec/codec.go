// Package codec serializes message envelopes for the frame body.
package codec

import (
	"errors"
	"fmt"
)

type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
)

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeBinary:
		return "binary"
	}
	return fmt.Sprintf("codec(%d)", byte(t))
}

var (
	ErrUnsupported = errors.New("codec: unsupported value type")
	ErrShortBuffer = errors.New("codec: short buffer")
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=Binary
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}

	return &BinaryCodec{}
}

// ParseCodecType maps a configuration name to a codec type. Unknown names
// select the binary codec.
func ParseCodecType(name string) CodecType {
	if name == "json" {
		return CodecTypeJSON
	}
	return CodecTypeBinary
}
