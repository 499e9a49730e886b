package codec

import (
	"encoding/json"

	"github.com/DANIELAGORA/leiberluna/message"
)

// JSONCodec is the canonical wire format; WebSocket peers always use it.
type JSONCodec struct{}

func (c *JSONCodec) Encode(env *message.Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func (c *JSONCodec) Decode(data []byte, env *message.Envelope) error {
	return json.Unmarshal(data, env)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
