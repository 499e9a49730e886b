// Package transport abstracts the persistent bidirectional connection between the RPC
// client and server.
//
// A Conn moves whole envelopes. Implementations exist for WebSocket, a framed TCP
// stream and an in-process pipe; the sim package adds a canned-response Dialer.
//
//	client.Call ──Send──┐                    ┌──Send── server handler
//	                    ├──→ Conn ←──→ Conn ←┤
//	client readLoop ←Receive                 Receive→ server read loop
package transport

import (
	"context"
	"errors"

	"github.com/DANIELAGORA/leiberluna/message"
)

// ErrConnClosed is returned by Send and Receive once the connection is closed locally.
var ErrConnClosed = errors.New("transport: connection closed")

// Conn is one established connection.
//
// Send may be called from many goroutines; Receive from exactly one. Receive returns a
// *message.ProtocolError for an inbound message that could not be decoded but left the
// connection usable. Any other error means the connection is gone.
type Conn interface {
	Send(ctx context.Context, env *message.Envelope) error
	Receive() (*message.Envelope, error)
	Close() error
}

// Dialer opens connections to a server address.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, addr string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, addr string) (Conn, error) {
	return f(ctx, addr)
}

// IsProtocolError reports whether err is a recoverable decode failure.
func IsProtocolError(err error) bool {
	var pe *message.ProtocolError
	return errors.As(err, &pe)
}
