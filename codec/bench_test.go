package codec

import (
	"testing"

	"github.com/DANIELAGORA/leiberluna/message"
)

func benchmarkCodec(b *testing.B, cdc Codec) {
	env := &message.Envelope{
		ID:     "cq3v1s0000000000000g",
		Method: message.MethodGenerate,
		Params: []byte(`{"prompt":"Resume el expediente","temperature":0.2}`),
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, err := cdc.Encode(env)
		if err != nil {
			b.Fatal(err)
		}
		var out message.Envelope
		if err := cdc.Decode(data, &out); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCodecJSON(b *testing.B) {
	benchmarkCodec(b, GetCodec(CodecTypeJSON))
}

func BenchmarkCodecBinary(b *testing.B) {
	benchmarkCodec(b, GetCodec(CodecTypeBinary))
}
