package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/DANIELAGORA/leiberluna/codec"
	"github.com/DANIELAGORA/leiberluna/message"
	"github.com/DANIELAGORA/leiberluna/protocol"
)

// TCPConn carries envelopes over a byte stream using the protocol frame format.
//
// Every Send writes one complete frame under writeMu, since concurrent writers would
// otherwise interleave header and body bytes from different envelopes. A heartbeat
// goroutine keeps idle connections alive; the reader skips heartbeat frames.
type TCPConn struct {
	conn      net.Conn
	codec     codec.Codec
	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewTCPConn wraps conn. A positive heartbeat interval starts the heartbeat loop.
func NewTCPConn(conn net.Conn, codecType codec.CodecType, heartbeat time.Duration) *TCPConn {
	c := &TCPConn{
		conn:  conn,
		codec: codec.GetCodec(codecType),
		done:  make(chan struct{}),
	}
	if heartbeat > 0 {
		go c.heartbeatLoop(heartbeat)
	}
	return c
}

func (c *TCPConn) Send(ctx context.Context, env *message.Envelope) error {
	body, err := c.codec.Encode(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	msgType := protocol.MsgTypeResponse
	if env.IsCall() {
		msgType = protocol.MsgTypeRequest
	}
	header := &protocol.Header{
		CodecType: byte(c.codec.Type()),
		MsgType:   msgType,
		BodyLen:   uint32(len(body)),
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	var deadline time.Time
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return protocol.Encode(c.conn, header, body)
}

func (c *TCPConn) Receive() (*message.Envelope, error) {
	for {
		header, body, err := protocol.Decode(c.conn)
		if err != nil {
			select {
			case <-c.done:
				return nil, ErrConnClosed
			default:
			}
			// A bad frame header leaves the stream unsynchronized, so it is fatal.
			return nil, err
		}
		if header.MsgType == protocol.MsgTypeHeartbeat {
			continue
		}

		cdc := codec.GetCodec(codec.CodecType(header.CodecType))
		env := &message.Envelope{}
		if err := cdc.Decode(body, env); err != nil {
			pe := &message.ProtocolError{Err: err}
			if cdc.Type() == codec.CodecTypeJSON {
				pe.ID = message.SalvageID(body)
			}
			return nil, pe
		}
		return env, nil
	}
}

func (c *TCPConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *TCPConn) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}
		header := &protocol.Header{MsgType: protocol.MsgTypeHeartbeat}
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(interval))
		err := protocol.Encode(c.conn, header, nil)
		c.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// TCPDialer dials host:port addresses and speaks the framed protocol.
type TCPDialer struct {
	Codec     codec.CodecType
	Heartbeat time.Duration
	Timeout   time.Duration
}

func (d *TCPDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp dial %s: %w", addr, err)
	}
	return NewTCPConn(conn, d.Codec, d.Heartbeat), nil
}

// IsClosed reports whether err means the connection ended rather than misbehaved.
func IsClosed(err error) bool {
	return errors.Is(err, ErrConnClosed) || errors.Is(err, net.ErrClosed) || IsNormalClose(err)
}
