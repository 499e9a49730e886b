// Package protocol implements the frame format of the TCP stream transport.
//
// A fixed 10-byte header precedes every body, so the reader always knows how many
// bytes belong to the next envelope. Correlation lives in the envelope id, not in
// the frame.
//
//	0      3  4  5  6         10
//	┌──────┬──┬──┬──┬─────────┬───────────────┐
//	│magic │v │ct│mt│ bodyLen │    body ...    │
//	│ mcp  │01│  │  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic bytes "mcp" reject peers that are not speaking this protocol, such as an
// HTTP client pointed at the wrong port.
const (
	MagicByte1 byte = 0x6d // 'm'
	MagicByte2 byte = 0x63 // 'c'
	MagicByte3 byte = 0x70 // 'p'
	Version    byte = 0x01
	HeaderSize int  = 10

	// MaxBodyLen bounds a single frame.
	MaxBodyLen uint32 = 50 << 20
)

// MsgType distinguishes envelope frames from keepalive frames.
type MsgType byte

const (
	MsgTypeRequest   MsgType = 0 // Client → Server call envelope
	MsgTypeResponse  MsgType = 1 // Server → Client response envelope
	MsgTypeHeartbeat MsgType = 2 // keepalive, no body
)

// Codec type constants, mirrored from the codec package to avoid an import cycle.
const (
	CodecTypeJSON   byte = 0
	CodecTypeBinary byte = 1
)

type Header struct {
	CodecType byte
	MsgType   MsgType
	BodyLen   uint32
}

// Encode writes header and body as one buffer.
// Callers sharing a writer must serialize calls to Encode.
func Encode(w io.Writer, h *Header, body []byte) error {
	if uint32(len(body)) != h.BodyLen {
		return fmt.Errorf("header body length %d does not match body of %d bytes", h.BodyLen, len(body))
	}
	if h.BodyLen > MaxBodyLen {
		return fmt.Errorf("frame body of %d bytes exceeds limit", h.BodyLen)
	}
	buf := make([]byte, HeaderSize, HeaderSize+len(body))
	buf[0], buf[1], buf[2] = MagicByte1, MagicByte2, MagicByte3
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[6:10], h.BodyLen)
	buf = append(buf, body...)

	_, err := w.Write(buf)
	return err
}

// Decode reads exactly one frame from r.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicByte1 || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}
	if headerBuf[4] != CodecTypeJSON && headerBuf[4] != CodecTypeBinary {
		return nil, nil, fmt.Errorf("unsupported codec type: %d", headerBuf[4])
	}
	msgType := MsgType(headerBuf[5])
	if msgType != MsgTypeRequest && msgType != MsgTypeResponse && msgType != MsgTypeHeartbeat {
		return nil, nil, fmt.Errorf("unsupported message type: %d", msgType)
	}

	bodyLen := binary.BigEndian.Uint32(headerBuf[6:10])
	if bodyLen > MaxBodyLen {
		return nil, nil, fmt.Errorf("frame body of %d bytes exceeds limit", bodyLen)
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		CodecType: headerBuf[4],
		MsgType:   msgType,
		BodyLen:   bodyLen,
	}, body, nil
}
