package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/go-resiliency/retrier"
	"github.com/gorilla/websocket"

	"chatsphere-client/internal/auth"
	"chatsphere-client/internal/clienterr"
	"chatsphere-client/internal/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum inbound frame size allowed from the server
	maxFrameSize = 1 << 20

	// Close code the backend sends when the credential is rejected
	closeCodeAuthFailure = 4001

	eventBuffer = 256
	stateBuffer = 16
)

var (
	// ErrUnauthenticated means the bearer credential is missing, expired or
	// was rejected by the server. The reconnect loop never retries it.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotConnected is returned by Send when the socket is not open.
	ErrNotConnected = errors.New("not connected")

	// errCleanClose marks a server-initiated normal closure.
	errCleanClose = errors.New("clean close")
)

// Options configures a Conn. Zero fields fall back to defaults.
type Options struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8000/ws.
	URL string

	// Tokens supplies the bearer credential appended as the token query
	// parameter. A Token() error fails Connect immediately without a dial.
	Tokens auth.TokenSource

	DialTimeout  time.Duration
	PingInterval time.Duration
	// PongTimeout is the dead-peer watchdog: if no pong arrives within this
	// window after a ping the socket is forcibly closed.
	PongTimeout time.Duration

	// MaxReconnectAttempts bounds consecutive failed connection attempts
	// before the manager goes terminal.
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration

	Dialer *websocket.Dialer
	Logger *slog.Logger
}

func (o *Options) withDefaults() {
	if o.DialTimeout == 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.PingInterval == 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.PongTimeout == 0 {
		o.PongTimeout = 45 * time.Second
	}
	if o.MaxReconnectAttempts == 0 {
		o.MaxReconnectAttempts = 5
	}
	if o.ReconnectBaseDelay == 0 {
		o.ReconnectBaseDelay = time.Second
	}
	if o.ReconnectMaxDelay == 0 {
		o.ReconnectMaxDelay = 30 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Conn owns the one physical socket of the session: lifecycle, heartbeat and
// reconnect policy. Decoded inbound events are delivered on Events(), state
// transitions on States(). No other component touches the socket.
type Conn struct {
	opts Options
	log  *slog.Logger

	mu        sync.Mutex
	state     State
	ws        *websocket.Conn
	runCancel context.CancelFunc

	writeMu sync.Mutex
	manual  atomic.Bool
	wg      sync.WaitGroup

	events chan protocol.Event
	states chan StateChange
	pongCh chan struct{}
}

// New builds a Conn. The socket is not dialed until Connect.
func New(opts Options) *Conn {
	opts.withDefaults()
	return &Conn{
		opts:   opts,
		log:    opts.Logger,
		state:  StateIdle,
		events: make(chan protocol.Event, eventBuffer),
		states: make(chan StateChange, stateBuffer),
		pongCh: make(chan struct{}, 1),
	}
}

// Events returns the stream of decoded inbound events. The channel is shared
// across reconnects and is never closed.
func (c *Conn) Events() <-chan protocol.Event {
	return c.events
}

// States returns the stream of lifecycle transitions.
func (c *Conn) States() <-chan StateChange {
	return c.states
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the connection loop. Calling it while a socket is live or
// being dialed is a no-op: a second live socket would be a correctness bug,
// not merely wasteful.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateOpen {
		state := c.state
		c.mu.Unlock()
		c.log.Debug("connect ignored, socket already live", "state", state)
		return nil
	}
	if _, err := c.opts.Tokens.Token(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.runCancel = cancel
	c.manual.Store(false)
	c.setStateLocked(StateConnecting, nil)
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(runCtx)
	return nil
}

// Disconnect tears the connection down and suppresses the reconnect path.
// Heartbeat and reconnect timers are stopped before it returns, so the
// caller can discard the Conn without leaked timers firing later.
func (c *Conn) Disconnect() {
	c.manual.Store(true)

	c.mu.Lock()
	if c.state == StateIdle || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	cancel := c.runCancel
	ws := c.ws
	c.setStateLocked(StateClosing, nil)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ws != nil {
		deadline := time.Now().Add(writeWait)
		c.writeMu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.writeMu.Unlock()
		_ = ws.Close()
	}
	c.wg.Wait()
}

// Reconnect is the explicit user-triggered retry: it resets the attempt
// budget and the manual-disconnect flag, tears down any live socket and
// dials again.
func (c *Conn) Reconnect(ctx context.Context) error {
	c.Disconnect()
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	return c.Connect(ctx)
}

// Send encodes and transmits an outbound intent on the live socket.
func (c *Conn) Send(frameType protocol.FrameType, payload any) error {
	c.mu.Lock()
	ws, state := c.ws, c.state
	c.mu.Unlock()
	if state != StateOpen || ws == nil {
		return fmt.Errorf("%w: state=%s", ErrNotConnected, state)
	}

	frame, err := protocol.Encode(frameType, payload)
	if err != nil {
		return err
	}
	return c.writeFrame(ws, frame)
}

func (c *Conn) writeFrame(ws *websocket.Conn, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.TextMessage, frame)
}

// run is the connection loop: dial with backoff, serve until the socket
// drops, decide whether to go around again.
func (c *Conn) run(ctx context.Context) {
	defer c.wg.Done()

	for {
		ws, err := c.dialWithRetry(ctx)
		if err != nil {
			if c.manual.Load() || ctx.Err() != nil {
				c.terminate(nil)
			} else {
				c.terminate(err)
			}
			return
		}

		c.mu.Lock()
		c.ws = ws
		c.setStateLocked(StateOpen, nil)
		c.mu.Unlock()
		c.log.Info("websocket open", "url", c.opts.URL)

		reason := c.serve(ctx, ws)

		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		_ = ws.Close()

		switch {
		case c.manual.Load() || ctx.Err() != nil:
			c.terminate(nil)
			return
		case errors.Is(reason, ErrUnauthenticated):
			c.terminate(reason)
			return
		case errors.Is(reason, errCleanClose):
			c.log.Info("server closed the connection cleanly")
			c.terminate(nil)
			return
		default:
			c.log.Warn("abnormal close, reconnecting", "err", reason)
			c.setState(StateConnecting, nil)
		}
	}
}

// dialWithRetry runs the capped exponential backoff schedule over dial
// attempts. The attempt budget is fresh on every call, which is what resets
// the counter after each successful open.
func (c *Conn) dialWithRetry(ctx context.Context) (*websocket.Conn, error) {
	backoff := retrier.LimitedExponentialBackoff(
		c.opts.MaxReconnectAttempts-1,
		c.opts.ReconnectBaseDelay,
		c.opts.ReconnectMaxDelay,
	)
	r := retrier.New(backoff, retrier.BlacklistClassifier{ErrUnauthenticated})

	var ws *websocket.Conn
	attempt := 0
	err := r.RunCtx(ctx, func(ctx context.Context) error {
		if c.manual.Load() {
			return context.Canceled
		}
		attempt++
		conn, err := c.dial(ctx)
		if err != nil {
			c.log.Warn("dial failed", "attempt", attempt, "max", c.opts.MaxReconnectAttempts, "err", err)
			return err
		}
		ws = conn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ws, nil
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	token, err := c.opts.Tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	ws, resp, err := c.opts.Dialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake rejected with %d", ErrUnauthenticated, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	return ws, nil
}

// serve reads frames until the socket goes down and returns the reason.
func (c *Conn) serve(ctx context.Context, ws *websocket.Conn) error {
	stop := make(chan struct{})
	hbDone := make(chan struct{})
	go c.heartbeat(ws, stop, hbDone)
	defer func() {
		close(stop)
		<-hbDone
	}()

	ws.SetReadLimit(maxFrameSize)

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				switch ce.Code {
				case closeCodeAuthFailure:
					return fmt.Errorf("%w: close code %d: %s", ErrUnauthenticated, ce.Code, ce.Text)
				case websocket.CloseNormalClosure, websocket.CloseGoingAway:
					return errCleanClose
				}
			}
			return err
		}

		ev, err := protocol.Decode(frame)
		if err != nil {
			// Decode failures are log-and-drop, never fatal.
			c.log.Warn("dropping undecodable frame", "err", err)
			continue
		}

		if _, ok := ev.(protocol.PongEvent); ok {
			select {
			case c.pongCh <- struct{}{}:
			default:
			}
			continue
		}

		select {
		case c.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// heartbeat sends application-level pings on a fixed interval and force
// closes the socket when the pong watchdog expires. It models a dead-peer
// detector independent of OS-level keepalive.
func (c *Conn) heartbeat(ws *websocket.Conn, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	watchdog := time.NewTimer(c.opts.PongTimeout)
	if !watchdog.Stop() {
		<-watchdog.C
	}
	defer watchdog.Stop()
	pending := false

	for {
		select {
		case <-ticker.C:
			frame, err := protocol.Encode(protocol.FramePing, nil)
			if err != nil {
				c.log.Error("encode ping", "err", err)
				continue
			}
			if err := c.writeFrame(ws, frame); err != nil {
				c.log.Debug("ping write failed", "err", err)
				_ = ws.Close()
				return
			}
			if !pending {
				watchdog.Reset(c.opts.PongTimeout)
				pending = true
			}

		case <-c.pongCh:
			if pending {
				if !watchdog.Stop() {
					<-watchdog.C
				}
				pending = false
			}

		case <-watchdog.C:
			c.log.Warn("pong watchdog expired, forcing close", "timeout", c.opts.PongTimeout)
			_ = ws.Close()
			return

		case <-stop:
			return
		}
	}
}

func (c *Conn) terminate(reason error) {
	if reason != nil && clienterr.KindOf(reason) == "" {
		reason = clienterr.New(clienterr.KindTransport, "connection", reason)
	}
	c.mu.Lock()
	c.setStateLocked(StateClosed, reason)
	c.mu.Unlock()
	if reason != nil {
		c.log.Error("connection terminated", "err", reason)
	}
}

func (c *Conn) setState(next State, err error) {
	c.mu.Lock()
	c.setStateLocked(next, err)
	c.mu.Unlock()
}

func (c *Conn) setStateLocked(next State, err error) {
	if c.state == next {
		return
	}
	change := StateChange{Old: c.state, New: next, Err: err}
	c.state = next
	select {
	case c.states <- change:
	default:
		c.log.Warn("state change dropped, listener too slow", "old", change.Old, "new", change.New)
	}
}
