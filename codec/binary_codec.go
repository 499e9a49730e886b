package codec

import (
	"encoding/binary"
	"errors"
	"math"
	"unicode/utf8"

	"github.com/DANIELAGORA/leiberluna/message"
)

var errShortBuffer = errors.New("BinaryCodec: truncated envelope")

// BinaryCodec lays an envelope out as length-prefixed fields:
//
//	idLen u16 | id | methodLen u16 | method | paramsLen u32 | params |
//	resultLen u32 | result | hasError u8 | [code i32 | msgLen u16 | msg]
//
// Params and result stay JSON; only the envelope skeleton is binary.
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(env *message.Envelope) ([]byte, error) {
	if len(env.ID) > math.MaxUint16 || len(env.Method) > math.MaxUint16 {
		return nil, errors.New("BinaryCodec: id or method too long")
	}
	total := 2 + len(env.ID) + 2 + len(env.Method) + 4 + len(env.Params) + 4 + len(env.Result) + 1
	var msg string
	if env.Error != nil {
		msg = env.Error.Message
		msg = truncateUTF8(msg, math.MaxUint16)
		total += 4 + 2 + len(msg)
	}

	buf := make([]byte, 0, total)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(env.ID)))
	buf = append(buf, env.ID...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(env.Method)))
	buf = append(buf, env.Method...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(env.Params)))
	buf = append(buf, env.Params...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(env.Result)))
	buf = append(buf, env.Result...)
	if env.Error == nil {
		return append(buf, 0), nil
	}
	buf = append(buf, 1)
	buf = binary.BigEndian.AppendUint32(buf, uint32(int32(env.Error.Code)))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(msg)))
	buf = append(buf, msg...)
	return buf, nil
}

func (c *BinaryCodec) Decode(data []byte, env *message.Envelope) error {
	r := reader{data: data}

	env.ID = string(r.bytes(int(r.u16())))
	env.Method = string(r.bytes(int(r.u16())))
	env.Params = copyOrNil(r.bytes(int(r.u32())))
	env.Result = copyOrNil(r.bytes(int(r.u32())))
	env.Error = nil
	if flag := r.bytes(1); len(flag) == 1 && flag[0] == 1 {
		code := int32(r.u32())
		msg := string(r.bytes(int(r.u16())))
		env.Error = &message.RPCError{Code: int(code), Message: msg}
	}
	return r.err
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

// reader walks a buffer and latches the first truncation error.
type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = errShortBuffer
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u16() uint16 {
	b := r.bytes(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func copyOrNil(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
