// Package codec serializes envelopes for stream transports.
package codec

import "github.com/DANIELAGORA/leiberluna/message"

type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
)

type Codec interface {
	Encode(env *message.Envelope) ([]byte, error)
	Decode(data []byte, env *message.Envelope) error
	Type() CodecType
}

// GetCodec returns the codec for a wire codec type. Unknown types get JSON.
func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeBinary {
		return &BinaryCodec{}
	}
	return &JSONCodec{}
}

// ParseCodecType maps a configuration name ("json", "binary") onto a CodecType.
func ParseCodecType(name string) CodecType {
	if name == "binary" {
		return CodecTypeBinary
	}
	return CodecTypeJSON
}
