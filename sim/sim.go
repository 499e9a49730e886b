// Package sim provides a canned-response transport. A client dialed through it
// talks to an in-process responder instead of a server, with artificial latency,
// so the rest of the stack runs unchanged without a network or a model backend.
package sim

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/DANIELAGORA/leiberluna/assistant"
	"github.com/DANIELAGORA/leiberluna/message"
	"github.com/DANIELAGORA/leiberluna/transport"
)

// Latency is the range of artificial processing delay per call.
type Latency struct {
	Min time.Duration
	Max time.Duration
}

// DefaultLatency is 800ms to 2s.
func DefaultLatency() Latency {
	return Latency{Min: 800 * time.Millisecond, Max: 2 * time.Second}
}

// Pick draws a delay uniformly from [Min, Max).
func (l Latency) Pick() time.Duration {
	if l.Max <= l.Min {
		return l.Min
	}
	return l.Min + rand.N(l.Max-l.Min)
}

// Dialer opens simulated connections. The zero value answers without delay.
type Dialer struct {
	Latency   Latency
	Templates assistant.Templates // nil uses assistant.DefaultTemplates
	Log       zerolog.Logger

	now func() time.Time
}

// NewDialer returns a Dialer with the default latency.
func NewDialer(log zerolog.Logger) *Dialer {
	return &Dialer{Latency: DefaultLatency(), Log: log}
}

// Dial never fails; addr is ignored.
func (d *Dialer) Dial(context.Context, string) (transport.Conn, error) {
	cli, srv := transport.Pipe()

	tpl := d.Templates
	if tpl == nil {
		tpl = assistant.DefaultTemplates()
	}
	now := d.now
	if now == nil {
		now = time.Now
	}
	r := &responder{
		latency:   d.Latency,
		templates: tpl,
		now:       now,
		log:       d.Log.With().Str("component", "sim").Logger(),
		stop:      make(chan struct{}),
	}
	go r.serve(srv)
	return &Conn{PipeConn: cli}, nil
}

// Conn is the client end of a simulated connection. It knows its capabilities up
// front, so a client fills its registry without a list_capabilities round trip.
type Conn struct {
	*transport.PipeConn
}

func (c *Conn) Capabilities() []message.Capability {
	return Capabilities()
}

type responder struct {
	latency   Latency
	templates assistant.Templates
	now       func() time.Time
	log       zerolog.Logger
	stop      chan struct{}
}

func (r *responder) serve(conn transport.Conn) {
	defer close(r.stop)
	for {
		env, err := conn.Receive()
		if err != nil {
			var pe *message.ProtocolError
			if errors.As(err, &pe) {
				r.log.Warn().Err(err).Msg("malformed call")
				if pe.ID != "" {
					r.send(conn, message.NewError(pe.ID, message.CodeInvalidRequest, pe.Error()))
				}
				continue
			}
			return
		}
		if err := env.ValidateCall(); err != nil {
			if env.ID != "" {
				r.send(conn, message.NewError(env.ID, message.CodeInvalidRequest, err.Error()))
			}
			continue
		}
		go r.respond(conn, env)
	}
}

func (r *responder) respond(conn transport.Conn, call *message.Envelope) {
	if d := r.latency.Pick(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-r.stop:
			return
		}
	}
	r.log.Debug().Str("method", call.Method).Str("id", call.ID).Msg("simulated call")
	r.send(conn, r.answer(call))
}

func (r *responder) send(conn transport.Conn, env *message.Envelope) {
	if err := conn.Send(context.Background(), env); err != nil {
		r.log.Debug().Err(err).Str("id", env.ID).Msg("simulated response dropped")
	}
}
