package codec

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/DANIELAGORA/leiberluna/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecsPreserveEnvelope(t *testing.T) {
	envelopes := []*message.Envelope{
		{ID: "c1", Method: "generate", Params: json.RawMessage(`{"prompt":"hola"}`)},
		{ID: "r1", Result: json.RawMessage(`"texto generado"`)},
		message.NewError("r2", message.CodeMethodNotFound, "unknown method: \"nonexistent_op\""),
	}

	for _, cdc := range []Codec{GetCodec(CodecTypeJSON), GetCodec(CodecTypeBinary)} {
		for _, original := range envelopes {
			data, err := cdc.Encode(original)
			require.NoError(t, err)

			var decoded message.Envelope
			require.NoError(t, cdc.Decode(data, &decoded))
			assert.Equal(t, original.ID, decoded.ID)
			assert.Equal(t, original.Method, decoded.Method)
			assert.Equal(t, string(original.Params), string(decoded.Params))
			assert.Equal(t, string(original.Result), string(decoded.Result))
			assert.Equal(t, original.Error, decoded.Error)
		}
	}
}

func TestBinaryCodecRejectsTruncatedInput(t *testing.T) {
	cdc := &BinaryCodec{}
	data, err := cdc.Encode(&message.Envelope{ID: "c1", Method: "generate", Params: json.RawMessage(`{}`)})
	require.NoError(t, err)

	var env message.Envelope
	assert.Error(t, cdc.Decode(data[:len(data)-3], &env))
	assert.Error(t, cdc.Decode([]byte{0xff}, &env))
}

func TestBinaryCodecTruncatesLongMessageOnRuneBoundary(t *testing.T) {
	// "ó" is two bytes, so the u16 limit falls inside a rune
	msg := strings.Repeat("ó", math.MaxUint16/2+10)
	cdc := &BinaryCodec{}
	data, err := cdc.Encode(message.NewError("r3", message.CodeHandlerError, msg))
	require.NoError(t, err)

	var decoded message.Envelope
	require.NoError(t, cdc.Decode(data, &decoded))
	require.NotNil(t, decoded.Error)
	assert.True(t, utf8.ValidString(decoded.Error.Message))
	assert.LessOrEqual(t, len(decoded.Error.Message), math.MaxUint16)
	assert.Equal(t, math.MaxUint16-1, len(decoded.Error.Message))
	assert.True(t, strings.HasPrefix(msg, decoded.Error.Message))
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "hola", truncateUTF8("hola", 10))
	assert.Equal(t, "acusaci", truncateUTF8("acusación", 8))
	assert.Equal(t, "acusació", truncateUTF8("acusación", 9))
	assert.Equal(t, "", truncateUTF8("ñ", 1))
}

func TestParseCodecType(t *testing.T) {
	assert.Equal(t, CodecTypeBinary, ParseCodecType("binary"))
	assert.Equal(t, CodecTypeJSON, ParseCodecType("json"))
	assert.Equal(t, CodecTypeJSON, ParseCodecType(""))
}
