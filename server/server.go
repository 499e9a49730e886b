// Package server implements the RPC server: listeners, a per-connection read loop,
// the middleware chain around the dispatcher, registry announcement and graceful
// shutdown.
//
// Request processing pipeline:
//
//	Accept conn → ServeConn (single goroutine reads envelopes)
//	  → for each call: go handleCall (parallel processing)
//	    → Middleware Chain → dispatch (typed request switch) → write response
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/DANIELAGORA/leiberluna/codec"
	"github.com/DANIELAGORA/leiberluna/message"
	"github.com/DANIELAGORA/leiberluna/middleware"
	"github.com/DANIELAGORA/leiberluna/registry"
	"github.com/DANIELAGORA/leiberluna/transport"
	"github.com/DANIELAGORA/leiberluna/upstream"
)

type Options struct {
	// Listen addresses; an empty address disables that listener.
	WSAddr   string
	HTTPAddr string
	TCPAddr  string

	Codec     codec.CodecType // response codec on the TCP listener
	Heartbeat time.Duration   // TCP heartbeat interval, 0 disables

	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Models is reported by /health.
	Models upstream.Models

	// Registry announcement. Advertise addresses must be routable from clients,
	// e.g. ws://10.0.0.5:3002/ rather than the ":3002" listen address.
	Registry     registry.Registry
	ServiceName  string
	AdvertiseWS  string
	AdvertiseTCP string
	RegistryTTL  int64
	Weight       int
	Version      string

	// CheckOrigin filters WebSocket upgrades; nil accepts every origin.
	CheckOrigin func(r *http.Request) bool
}

func (o *Options) setDefaults() {
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.ShutdownTimeout == 0 {
		o.ShutdownTimeout = 15 * time.Second
	}
	if o.ServiceName == "" {
		o.ServiceName = "leiberluna"
	}
	if o.RegistryTTL == 0 {
		o.RegistryTTL = 10
	}
	if o.Weight == 0 {
		o.Weight = 1
	}
	if o.CheckOrigin == nil {
		o.CheckOrigin = func(*http.Request) bool { return true }
	}
}

// Server serves the operations of a Service over every configured listener.
type Server struct {
	svc  Service
	opts Options
	log  zerolog.Logger
	id   string

	middlewares []middleware.Middleware
	handlerOnce sync.Once
	handler     middleware.HandlerFunc
	upgrader    websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	conns       map[transport.Conn]struct{}
	listeners   []net.Listener
	httpServers []*http.Server
	registered  []registry.ServiceInstance

	calls        sync.WaitGroup // in-flight calls, drained by Shutdown
	shutdown     atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
	done         chan struct{}
}

func New(svc Service, opts Options, log zerolog.Logger) *Server {
	opts.setDefaults()
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		svc:      svc,
		opts:     opts,
		id:       id,
		log:      log.With().Str("component", "server").Str("instance", id).Logger(),
		upgrader: websocket.Upgrader{CheckOrigin: opts.CheckOrigin},
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[transport.Conn]struct{}),
		done:     make(chan struct{}),
	}
}

// Use registers a middleware. Middlewares apply in the order added; register them
// all before serving.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// ID returns the instance id of this server.
func (s *Server) ID() string {
	return s.id
}

func (s *Server) handle(ctx context.Context, call *message.Envelope) *message.Envelope {
	s.handlerOnce.Do(func() {
		s.handler = middleware.Chain(s.middlewares...)(s.dispatch)
	})
	return s.handler(ctx, call)
}

func (s *Server) baseContext() context.Context {
	return s.ctx
}

// ServeConn runs the read loop of one connection until it closes. Reads are
// sequential; every call is handled in its own goroutine and answered under the
// connection's own write serialization, so responses may leave out of order.
func (s *Server) ServeConn(ctx context.Context, conn transport.Conn) {
	if !s.trackConn(conn) {
		conn.Close()
		return
	}
	defer s.untrackConn(conn)
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		env, err := conn.Receive()
		if err != nil {
			var pe *message.ProtocolError
			if errors.As(err, &pe) {
				s.log.Warn().Err(pe.Err).Str("id", pe.ID).Msg("malformed message")
				if pe.ID != "" {
					s.reply(conn, message.NewError(pe.ID, message.CodeInvalidRequest, "malformed message: "+pe.Err.Error()))
				}
				continue
			}
			if !transport.IsClosed(err) && !s.shutdown.Load() {
				s.log.Debug().Err(err).Msg("connection read ended")
			}
			return
		}

		if err := env.ValidateCall(); err != nil {
			s.log.Warn().Err(err).Str("id", env.ID).Msg("invalid call envelope")
			if env.ID != "" {
				s.reply(conn, message.NewError(env.ID, message.CodeInvalidRequest, err.Error()))
			}
			continue
		}

		s.mu.Lock()
		if s.shutdown.Load() {
			s.mu.Unlock()
			s.reply(conn, message.NewError(env.ID, message.CodeUnavailable, "server shutting down"))
			continue
		}
		s.calls.Add(1)
		s.mu.Unlock()

		go s.handleCall(ctx, conn, env)
	}
}

func (s *Server) handleCall(ctx context.Context, conn transport.Conn, call *message.Envelope) {
	defer s.calls.Done()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("method", call.Method).Str("id", call.ID).Interface("panic", r).Msg("call panicked")
			s.reply(conn, message.NewError(call.ID, message.CodeInternal, "internal error"))
		}
	}()

	resp := s.handle(ctx, call)
	if resp == nil {
		resp = message.NewError(call.ID, message.CodeInternal, "handler returned no response")
	}
	resp.ID = call.ID
	resp.Method = ""
	resp.Params = nil
	s.reply(conn, resp)
}

func (s *Server) reply(conn transport.Conn, resp *message.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
	defer cancel()
	if err := conn.Send(ctx, resp); err != nil {
		s.log.Warn().Err(err).Str("id", resp.ID).Msg("failed to write response")
	}
}

func (s *Server) trackConn(conn transport.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrackConn(conn transport.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// ServeTCP accepts framed TCP connections on ln until Shutdown.
func (s *Server) ServeTCP(ln net.Listener) error {
	if !s.trackListener(ln) {
		return nil
	}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("tcp listener started")
	for {
		raw, err := ln.Accept()
		if err != nil {
			// Shutdown closes the listener, which surfaces here as an Accept error.
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		go s.ServeConn(s.baseContext(), transport.NewTCPConn(raw, s.opts.Codec, s.opts.Heartbeat))
	}
}

// ServeHTTP serves handler on ln until Shutdown.
func (s *Server) ServeHTTP(ln net.Listener, handler http.Handler) error {
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.httpServers = append(s.httpServers, srv)
	s.mu.Unlock()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("http listener started")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) trackListener(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		ln.Close()
		return false
	}
	s.listeners = append(s.listeners, ln)
	return true
}

// Run opens every configured listener, announces the server in the registry and
// serves until ctx ends or a listener fails; then it shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	type binding struct {
		addr  string
		serve func(net.Listener) error
	}
	var bindings []binding
	if s.opts.WSAddr != "" {
		bindings = append(bindings, binding{s.opts.WSAddr, func(ln net.Listener) error { return s.ServeHTTP(ln, s.WSHandler()) }})
	}
	if s.opts.HTTPAddr != "" {
		bindings = append(bindings, binding{s.opts.HTTPAddr, func(ln net.Listener) error { return s.ServeHTTP(ln, s.HTTPHandler()) }})
	}
	if s.opts.TCPAddr != "" {
		bindings = append(bindings, binding{s.opts.TCPAddr, s.ServeTCP})
	}
	if len(bindings) == 0 {
		return errors.New("server: no listen address configured")
	}

	listeners := make([]net.Listener, 0, len(bindings))
	for _, b := range bindings {
		ln, err := net.Listen("tcp", b.addr)
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return fmt.Errorf("listen %s: %w", b.addr, err)
		}
		listeners = append(listeners, ln)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range bindings {
		ln, serve := listeners[i], b.serve
		g.Go(func() error { return serve(ln) })
	}

	if err := s.announce(gctx); err != nil {
		s.log.Error().Err(err).Msg("registry announcement failed")
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return s.Shutdown(s.opts.ShutdownTimeout)
		case <-s.done:
			return nil
		}
	})
	return g.Wait()
}

func (s *Server) announce(ctx context.Context) error {
	if s.opts.Registry == nil {
		return nil
	}
	var instances []registry.ServiceInstance
	if s.opts.AdvertiseWS != "" {
		instances = append(instances, registry.ServiceInstance{Addr: s.opts.AdvertiseWS, Transport: "ws", Weight: s.opts.Weight, Version: s.opts.Version})
	}
	if s.opts.AdvertiseTCP != "" {
		instances = append(instances, registry.ServiceInstance{Addr: s.opts.AdvertiseTCP, Transport: "tcp", Weight: s.opts.Weight, Version: s.opts.Version})
	}

	var errs []error
	for _, inst := range instances {
		if err := s.opts.Registry.Register(ctx, s.opts.ServiceName, inst, s.opts.RegistryTTL); err != nil {
			errs = append(errs, fmt.Errorf("register %s: %w", inst.Addr, err))
			continue
		}
		s.mu.Lock()
		s.registered = append(s.registered, inst)
		s.mu.Unlock()
		s.log.Info().Str("service", s.opts.ServiceName).Str("addr", inst.Addr).Msg("registered")
	}
	return errors.Join(errs...)
}

// Shutdown stops the server gracefully:
//  1. deregister from the registry so clients stop resolving this instance
//  2. stop accepting connections and calls
//  3. wait up to timeout for in-flight calls
//  4. close every remaining connection
//
// Calls after the first return the first result.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdownNow(timeout)
		close(s.done)
	})
	return s.shutdownErr
}

func (s *Server) shutdownNow(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.mu.Lock()
	registered := s.registered
	s.registered = nil
	s.mu.Unlock()
	for _, inst := range registered {
		if err := s.opts.Registry.Deregister(ctx, s.opts.ServiceName, inst.Addr); err != nil {
			s.log.Warn().Err(err).Str("addr", inst.Addr).Msg("deregister failed")
		}
	}

	// The flag flips under mu so no call can be admitted after the drain starts.
	s.mu.Lock()
	s.shutdown.Store(true)
	listeners, httpServers := s.listeners, s.httpServers
	s.mu.Unlock()

	for _, ln := range listeners {
		ln.Close()
	}
	for _, srv := range httpServers {
		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
		}
	}

	drained := make(chan struct{})
	go func() {
		s.calls.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = errors.New("timeout waiting for ongoing requests to finish")
	}

	s.cancel()
	s.mu.Lock()
	conns := make([]transport.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
	s.log.Info().Msg("server stopped")
	return err
}
