package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/DANIELAGORA/leiberluna/codec"
	"github.com/DANIELAGORA/leiberluna/message"
)

const pipeBuffer = 16

// PipeConn is one end of an in-process connection created by Pipe.
// Envelopes cross the pipe JSON-encoded, so both ends see the same decode
// behaviour as a network transport.
type PipeConn struct {
	in    <-chan []byte
	out   chan<- []byte
	done  chan struct{}
	once  *sync.Once
	codec codec.Codec
}

// Pipe returns two connected ends. Closing either end closes both.
func Pipe() (*PipeConn, *PipeConn) {
	a2b := make(chan []byte, pipeBuffer)
	b2a := make(chan []byte, pipeBuffer)
	done := make(chan struct{})
	once := &sync.Once{}
	cdc := codec.GetCodec(codec.CodecTypeJSON)

	a := &PipeConn{in: b2a, out: a2b, done: done, once: once, codec: cdc}
	b := &PipeConn{in: a2b, out: b2a, done: done, once: once, codec: cdc}
	return a, b
}

func (p *PipeConn) Send(ctx context.Context, env *message.Envelope) error {
	data, err := p.codec.Encode(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return p.SendRaw(ctx, data)
}

// SendRaw delivers bytes to the peer without encoding them.
func (p *PipeConn) SendRaw(ctx context.Context, data []byte) error {
	select {
	case <-p.done:
		return ErrConnClosed
	default:
	}
	select {
	case <-p.done:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.out <- data:
		return nil
	}
}

func (p *PipeConn) Receive() (*message.Envelope, error) {
	select {
	case <-p.done:
		return nil, ErrConnClosed
	case data := <-p.in:
		env := &message.Envelope{}
		if err := p.codec.Decode(data, env); err != nil {
			return nil, &message.ProtocolError{ID: message.SalvageID(data), Err: err}
		}
		return env, nil
	}
}

func (p *PipeConn) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
