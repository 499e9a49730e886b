package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DANIELAGORA/leiberluna/codec"
	"github.com/DANIELAGORA/leiberluna/message"
)

// WSConn carries envelopes over a WebSocket. JSON envelopes travel as text
// messages and binary-codec envelopes as binary messages; the receiver picks the
// codec from the message type.
type WSConn struct {
	ws        *websocket.Conn
	codec     codec.Codec
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewWSConn wraps an established WebSocket, such as one returned by an Upgrader.
func NewWSConn(ws *websocket.Conn, codecType codec.CodecType) *WSConn {
	return &WSConn{ws: ws, codec: codec.GetCodec(codecType)}
}

func (c *WSConn) Send(ctx context.Context, env *message.Envelope) error {
	data, err := c.codec.Encode(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	msgType := websocket.TextMessage
	if c.codec.Type() == codec.CodecTypeBinary {
		msgType = websocket.BinaryMessage
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var deadline time.Time
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(msgType, data)
}

func (c *WSConn) Receive() (*message.Envelope, error) {
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}

		var cdc codec.Codec
		switch msgType {
		case websocket.TextMessage:
			cdc = codec.GetCodec(codec.CodecTypeJSON)
		case websocket.BinaryMessage:
			cdc = codec.GetCodec(codec.CodecTypeBinary)
		default:
			continue
		}

		env := &message.Envelope{}
		if err := cdc.Decode(data, env); err != nil {
			pe := &message.ProtocolError{Err: err}
			if msgType == websocket.TextMessage {
				pe.ID = message.SalvageID(data)
			}
			return nil, pe
		}
		return env, nil
	}
}

// Close sends a close frame and releases the socket. Safe to call more than once.
func (c *WSConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// IsNormalClose reports whether err is the peer closing the WebSocket on purpose.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// WSDialer dials ws:// and wss:// URLs.
type WSDialer struct {
	Dialer *websocket.Dialer // nil uses websocket.DefaultDialer
	Codec  codec.CodecType
	Header http.Header
}

func (d *WSDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, addr, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: %s: %w", addr, resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", addr, err)
	}
	return NewWSConn(ws, d.Codec), nil
}
