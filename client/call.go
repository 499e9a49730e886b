package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/DANIELAGORA/leiberluna/message"
	"github.com/DANIELAGORA/leiberluna/transport"
)

// RemoteError is a failure reported by the server in an error envelope.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// ensureConn returns the open connection, connecting first when needed.
func (c *Client) ensureConn(ctx context.Context) (transport.Conn, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.state == StateOpen && c.conn != nil {
		conn := c.conn
		c.mu.Unlock()
		return conn, nil
	}
	c.mu.Unlock()

	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, errDisconnected
	}
	return c.conn, nil
}

// Call invokes method with params and decodes the result into out, which may be
// nil. It fails with ErrTimeout when no response arrives within the call timeout,
// with *RemoteError when the server answers with an error envelope, and with
// ctx.Err() when ctx ends first. A response arriving after the call gave up is
// discarded.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	conn, err := c.ensureConn(ctx)
	if err != nil {
		return err
	}
	return c.roundTrip(ctx, conn, method, params, out, func() bool { return !c.closed })
}

// callOn is Call pinned to the connection of generation gen. It never dials: once
// that connection is replaced or Disconnect was requested it fails with
// errDisconnected before anything is sent.
func (c *Client) callOn(ctx context.Context, conn transport.Conn, gen uint64, method string, params, out any) error {
	return c.roundTrip(ctx, conn, method, params, out, func() bool {
		return !c.closed && !c.manual && c.gen == gen && c.conn == conn
	})
}

// roundTrip sends one call on conn and waits for its response. admit runs under
// mu and must hold for the call to be registered.
func (c *Client) roundTrip(ctx context.Context, conn transport.Conn, method string, params, out any, admit func() bool) error {
	id := xid.New().String()
	call, err := message.NewCall(id, method, params)
	if err != nil {
		return err
	}

	p := &pendingCall{method: method, ch: make(chan *message.Envelope, 1), created: time.Now()}
	c.mu.Lock()
	if !admit() {
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return ErrClosed
		}
		return errDisconnected
	}
	c.pending[id] = p
	c.mu.Unlock()

	if err := conn.Send(ctx, call); err != nil {
		c.forget(id)
		return fmt.Errorf("send %s: %w", method, err)
	}

	timer := time.NewTimer(c.callTimeout)
	defer timer.Stop()

	select {
	case resp := <-p.ch:
		if resp.Error != nil {
			return &RemoteError{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	case <-timer.C:
		c.forget(id)
		c.log.Warn().Str("method", method).Str("id", id).Dur("after", c.callTimeout).Msg("call timed out")
		return fmt.Errorf("%s (id %s): %w", method, id, ErrTimeout)
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-c.closedCh:
		c.forget(id)
		return ErrClosed
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
