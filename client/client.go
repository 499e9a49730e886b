// Package client implements the RPC client: one persistent connection, many
// concurrent calls multiplexed over it by correlation id.
//
//	goroutine-1 ──Call(id=a)──┐
//	goroutine-2 ──Call(id=b)──┼──→ Conn ──→ Server
//	goroutine-3 ──Call(id=c)──┘
//
//	readLoop: ←── response(id=b) → pending[b] ← response → goroutine-2 wakes up
//
// An unexpected disconnect schedules a reconnect through the Backoff policy.
// Calls in flight at that moment are not failed by the disconnect; each ends by
// its own response or timeout.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/DANIELAGORA/leiberluna/message"
	"github.com/DANIELAGORA/leiberluna/transport"
)

var (
	ErrTimeout = errors.New("client: call timed out")
	ErrClosed  = errors.New("client: closed")

	errDisconnected = errors.New("client: disconnected while connecting")
)

// State is the connection state of a Client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type connectOp struct {
	done chan struct{}
	err  error
}

type pendingCall struct {
	method  string
	ch      chan *message.Envelope // buffered, receives exactly one response
	created time.Time
}

// Client is safe for concurrent use.
type Client struct {
	id             string
	dialer         transport.Dialer
	resolver       Resolver
	backoff        Backoff
	maxAttempts    int
	callTimeout    time.Duration
	connectTimeout time.Duration
	capTimeout     time.Duration
	log            zerolog.Logger
	onState        func(State)

	mu         sync.Mutex
	state      State
	conn       transport.Conn
	gen        uint64 // bumped per connection, so a stale read loop cannot tear down its successor
	connecting *connectOp
	pending    map[string]*pendingCall
	attempts   int
	reconnect  *time.Timer
	manual     bool // Disconnect was requested; no automatic reconnect
	closed     bool

	caps      atomic.Pointer[CapabilityRegistry]
	closedCh  chan struct{}
	closeOnce sync.Once
}

type Option func(*Client)

// WithDialer selects the transport. The default dials WebSocket URLs.
func WithDialer(d transport.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithResolver replaces the static address given to New.
func WithResolver(r Resolver) Option {
	return func(c *Client) { c.resolver = r }
}

func WithBackoff(b Backoff) Option {
	return func(c *Client) { c.backoff = b }
}

// WithMaxReconnectAttempts stops automatic reconnection after n consecutive
// failures. Zero means unlimited.
func WithMaxReconnectAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.callTimeout = d }
}

func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) { c.connectTimeout = d }
}

func WithCapabilityTimeout(d time.Duration) Option {
	return func(c *Client) { c.capTimeout = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithStateHook is called on every state change, with the client lock held; the
// hook must not call back into the client.
func WithStateHook(fn func(State)) Option {
	return func(c *Client) { c.onState = fn }
}

// New returns a disconnected client for addr. Nothing is dialed until Connect or
// the first Call.
func New(addr string, opts ...Option) *Client {
	c := &Client{
		id:             uuid.NewString(),
		dialer:         &transport.WSDialer{},
		resolver:       StaticResolver(addr),
		backoff:        DefaultBackoff(),
		callTimeout:    30 * time.Second,
		connectTimeout: 10 * time.Second,
		capTimeout:     10 * time.Second,
		log:            zerolog.Nop(),
		pending:        make(map[string]*pendingCall),
		closedCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "client").Str("client", c.id).Logger()
	c.caps.Store(NewCapabilityRegistry(nil))
	return c
}

// ID is the client's instance id, also used as the balancer key.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Capabilities returns the snapshot fetched for the current connection. It is
// empty until the first fetch completes.
func (c *Client) Capabilities() *CapabilityRegistry {
	return c.caps.Load()
}

// Pending returns the number of calls awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.log.Debug().Stringer("from", c.state).Stringer("to", s).Msg("state change")
	c.state = s
	if c.onState != nil {
		c.onState(s)
	}
}

// Connect opens the connection. It returns immediately when already open, and
// concurrent callers share one attempt. The attempt itself is bounded by the
// connect timeout, not by ctx; ctx only bounds how long this caller waits.
func (c *Client) Connect(ctx context.Context) error {
	return c.connect(ctx, false)
}

// connect with auto set is a scheduled reconnect, which yields to a Disconnect
// issued after it was armed.
func (c *Client) connect(ctx context.Context, auto bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if auto && c.manual {
		c.mu.Unlock()
		return errDisconnected
	}
	c.manual = false
	if c.state == StateOpen {
		c.mu.Unlock()
		return nil
	}
	op := c.connecting
	if op == nil {
		op = &connectOp{done: make(chan struct{})}
		c.connecting = op
		c.setStateLocked(StateConnecting)
		go c.dial(op)
	}
	c.mu.Unlock()

	select {
	case <-op.done:
		return op.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) dial(op *connectOp) {
	defer close(op.done)

	ctx, cancel := context.WithTimeout(context.Background(), c.connectTimeout)
	defer cancel()

	addr, err := c.resolver.Resolve(ctx, c.id)
	var conn transport.Conn
	if err == nil {
		conn, err = c.dialer.Dial(ctx, addr)
	}

	c.mu.Lock()
	c.connecting = nil
	if err == nil && (c.closed || c.manual) {
		conn.Close()
		err = errDisconnected
		if c.closed {
			err = ErrClosed
		}
	}
	if err != nil {
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		op.err = err
		c.log.Warn().Err(err).Str("addr", addr).Msg("connect failed")
		return
	}

	c.conn = conn
	c.gen++
	gen := c.gen
	c.attempts = 0
	c.setStateLocked(StateOpen)
	c.mu.Unlock()

	c.log.Info().Str("addr", addr).Msg("connected")
	go c.readLoop(conn, gen)

	if src, ok := conn.(CapabilitySource); ok {
		c.caps.Store(NewCapabilityRegistry(src.Capabilities()))
	} else {
		go c.fetchCapabilities(conn, gen)
	}
}

// fetchCapabilities lists the capabilities of the connection dialed as gen. It
// must not reconnect, so it goes through callOn rather than Call.
func (c *Client) fetchCapabilities(conn transport.Conn, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.capTimeout)
	defer cancel()

	var caps []message.Capability
	if err := c.callOn(ctx, conn, gen, message.MethodListCapabilities, nil, &caps); err != nil {
		if errors.Is(err, errDisconnected) || errors.Is(err, ErrClosed) {
			c.log.Debug().Err(err).Msg("capability discovery skipped")
			return
		}
		c.log.Warn().Err(err).Msg("capability discovery failed")
		return
	}
	c.mu.Lock()
	current := c.gen == gen
	c.mu.Unlock()
	if current {
		c.caps.Store(NewCapabilityRegistry(caps))
		c.log.Debug().Int("count", len(caps)).Msg("capabilities cached")
	}
}

// readLoop is the only reader of conn. It routes each response to its pending call.
func (c *Client) readLoop(conn transport.Conn, gen uint64) {
	for {
		env, err := conn.Receive()
		if err != nil {
			if transport.IsProtocolError(err) {
				c.log.Warn().Err(err).Msg("dropping malformed message")
				continue
			}
			c.handleDisconnect(conn, gen, err)
			return
		}
		if err := env.ValidateResponse(); err != nil {
			c.log.Warn().Err(err).Str("id", env.ID).Msg("dropping invalid response")
			continue
		}
		c.resolve(env)
	}
}

func (c *Client) resolve(env *message.Envelope) {
	c.mu.Lock()
	p, ok := c.pending[env.ID]
	delete(c.pending, env.ID)
	c.mu.Unlock()

	if !ok {
		c.log.Debug().Str("id", env.ID).Msg("discarding response for unknown or expired call")
		return
	}
	p.ch <- env
}

func (c *Client) handleDisconnect(conn transport.Conn, gen uint64, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.conn != conn {
		return
	}
	c.conn = nil
	conn.Close()
	c.setStateLocked(StateDisconnected)
	if c.closed || c.manual {
		return
	}
	c.log.Warn().Err(cause).Int("pending", len(c.pending)).Msg("connection lost")
	c.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms a single reconnect timer.
func (c *Client) scheduleReconnectLocked() {
	if c.reconnect != nil {
		return
	}
	if c.maxAttempts > 0 && c.attempts >= c.maxAttempts {
		c.log.Error().Int("attempts", c.attempts).Msg("giving up reconnecting")
		return
	}
	delay := c.backoff.Next(c.attempts)
	c.attempts++
	c.log.Info().Dur("delay", delay).Int("attempt", c.attempts).Msg("reconnect scheduled")
	c.reconnect = time.AfterFunc(delay, c.reconnectNow)
}

func (c *Client) reconnectNow() {
	c.mu.Lock()
	c.reconnect = nil
	if c.closed || c.manual || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.connect(context.Background(), true); err != nil {
		c.mu.Lock()
		if !c.closed && !c.manual && c.state == StateDisconnected {
			c.scheduleReconnectLocked()
		}
		c.mu.Unlock()
	}
}

// Disconnect closes the connection without scheduling a reconnect. Pending calls
// are left to their timeouts. A later Connect or Call reopens the connection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manual = true
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	conn := c.conn
	c.conn = nil
	c.gen++
	if conn == nil {
		if c.state != StateConnecting {
			c.setStateLocked(StateDisconnected)
		}
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateClosing)
	c.mu.Unlock()

	conn.Close()

	c.mu.Lock()
	if c.state == StateClosing {
		c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()
	c.log.Info().Msg("disconnected")
}

// Close disconnects for good. Calls still waiting fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Disconnect()
	c.closeOnce.Do(func() { close(c.closedCh) })
	return nil
}
