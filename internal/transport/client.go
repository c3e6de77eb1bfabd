// ABOUTME: Reconnecting WebSocket client for the research progress stream
// ABOUTME: Runs the read loop, the heartbeat ticker and the bounded reconnect policy

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/2389/research-flow/internal/metrics"
	"github.com/2389/research-flow/internal/progress"
)

// Defaults applied by NewClient for zero-valued options.
const (
	DefaultHeartbeatInterval    = 25 * time.Second
	DefaultReconnectDelay       = 2 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultDialTimeout          = 10 * time.Second
)

// heartbeatFrame is the literal keepalive the backend expects.
const heartbeatFrame = "ping"

const writeTimeout = 10 * time.Second

// State is the connection state reported to StateListener callbacks.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateReconnecting
	StateDisconnected
	StateGaveUp
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	case StateGaveUp:
		return "gave-up"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Change describes a connection state transition. Attempt is the reconnect
// attempt number (0 for the initial connect). Err carries the cause for
// Reconnecting and GaveUp.
type Change struct {
	State   State
	Attempt int
	Err     error
}

// StateListener observes connection state changes. It is called without
// client locks held and must not block for long.
type StateListener func(Change)

// Options configures a Client.
type Options struct {
	URL                  string
	HeartbeatInterval    time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	DialTimeout          time.Duration

	Clock         clockwork.Clock
	Dialer        *websocket.Dialer
	Logger        *slog.Logger
	Metrics       *metrics.Transport
	OnStateChange StateListener
}

// Client owns at most one live socket at a time.
type Client struct {
	url               string
	heartbeatInterval time.Duration
	reconnectDelay    time.Duration
	maxAttempts       int
	dialTimeout       time.Duration
	clock             clockwork.Clock
	dialer            *websocket.Dialer
	logger            *slog.Logger
	metrics           *metrics.Transport
	onState           StateListener

	registry *Registry

	// dialMu serializes Connect so a manual call and a timer-driven
	// reconnect never race to open two sockets.
	dialMu sync.Mutex

	mu             sync.Mutex
	conn           *websocket.Conn
	stop           chan struct{} // closed when conn stops being current
	attempts       int
	closed         bool
	reconnectTimer clockwork.Timer

	writeMu sync.Mutex
}

// NewClient validates opts and returns an unconnected client.
func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing progress url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("progress url %q: scheme must be ws or wss", opts.URL)
	}

	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Dialer == nil {
		d := *websocket.DefaultDialer
		opts.Dialer = &d
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	logger := opts.Logger.With("component", "transport")
	return &Client{
		url:               opts.URL,
		heartbeatInterval: opts.HeartbeatInterval,
		reconnectDelay:    opts.ReconnectDelay,
		maxAttempts:       opts.MaxReconnectAttempts,
		dialTimeout:       opts.DialTimeout,
		clock:             opts.Clock,
		dialer:            opts.Dialer,
		logger:            logger,
		metrics:           opts.Metrics,
		onState:           opts.OnStateChange,
		registry:          NewRegistry(opts.Logger, opts.Metrics),
	}, nil
}

// On registers l. Registering the same listener twice has no effect.
func (c *Client) On(l Listener) {
	c.registry.Add(l)
}

// Off unregisters l. Unknown listeners are ignored.
func (c *Client) Off(l Listener) {
	c.registry.Remove(l)
}

// IsConnected reports whether a socket is currently open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Attempts returns the number of consecutive reconnect attempts since the
// last successful connect.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Connect opens the socket. It returns nil if already connected and ErrClosed
// after Disconnect. A failed dial returns a *ConnectError and also schedules a
// reconnect per the retry policy.
func (c *Client) Connect(ctx context.Context) error {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	attempt := c.attempts
	c.mu.Unlock()

	c.emit(Change{State: StateConnecting, Attempt: attempt})

	conn, err := c.dial(ctx)
	if err != nil {
		c.logger.Warn("progress stream connect failed", "attempt", attempt, "error", err)
		if ctx.Err() == nil {
			c.scheduleReconnect(err)
		}
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	stop := make(chan struct{})
	c.conn = conn
	c.stop = stop
	c.attempts = 0
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.mu.Unlock()

	c.metrics.SetConnected(true)
	c.logger.Info("progress stream connected", "url", c.url)
	c.emit(Change{State: StateConnected})

	go c.readLoop(conn, stop)
	go c.heartbeat(conn, stop)
	return nil
}

// Disconnect closes the socket and releases every resource. It is terminal
// and safe to call more than once.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}

	c.registry.Clear()
	c.metrics.SetConnected(false)
	c.logger.Info("progress stream disconnected")
	c.emit(Change{State: StateDisconnected})
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		connErr := &ConnectError{URL: c.url, Err: err}
		if resp != nil {
			connErr.StatusCode = resp.StatusCode
			resp.Body.Close()
		}
		return nil, connErr
	}
	return conn, nil
}

func (c *Client) readLoop(conn *websocket.Conn, stop chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, stop, err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	c.metrics.FrameReceived()

	e, err := progress.Decode(data)
	if err != nil {
		c.metrics.DecodeError()
		c.logger.Warn("dropping malformed frame", "error", err)
		return
	}
	if e.Status.IsHeartbeat() {
		c.metrics.HeartbeatReceived()
		c.logger.Debug("heartbeat received", "status", e.Status)
		return
	}

	c.registry.Dispatch(e)
}

func (c *Client) handleClose(conn *websocket.Conn, stop chan struct{}, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		// Disconnect already tore this socket down
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.stop = nil
	close(stop)
	c.mu.Unlock()

	conn.Close()
	c.metrics.SetConnected(false)

	if websocket.IsCloseError(cause, websocket.CloseNormalClosure) {
		c.logger.Info("progress stream closed by server")
	} else {
		c.logger.Warn("progress stream lost", "error", cause)
	}
	c.scheduleReconnect(cause)
}

func (c *Client) scheduleReconnect(cause error) {
	c.mu.Lock()
	if c.closed || c.reconnectTimer != nil {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.maxAttempts {
		attempts := c.attempts
		c.mu.Unlock()

		err := fmt.Errorf("%w after %d attempts: %w", ErrGaveUp, attempts, cause)
		c.logger.Error("progress stream unavailable", "error", err)
		c.emit(Change{State: StateGaveUp, Attempt: attempts, Err: err})
		return
	}
	c.attempts++
	attempt := c.attempts
	c.reconnectTimer = c.clock.AfterFunc(c.reconnectDelay, c.reconnect)
	c.mu.Unlock()

	c.metrics.ReconnectAttempt()
	c.logger.Info("reconnect scheduled",
		"attempt", attempt,
		"max", c.maxAttempts,
		"delay", c.reconnectDelay)
	c.emit(Change{State: StateReconnecting, Attempt: attempt, Err: cause})
}

func (c *Client) reconnect() {
	c.mu.Lock()
	c.reconnectTimer = nil
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	// Failures schedule the next attempt from inside Connect
	if err := c.Connect(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
		c.logger.Debug("reconnect attempt failed", "error", err)
	}
}

func (c *Client) heartbeat(conn *websocket.Conn, stop chan struct{}) {
	ticker := c.clock.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if err := c.writeText(conn, heartbeatFrame); err != nil {
				// The read loop notices the dead socket and handles it
				c.logger.Debug("heartbeat write failed", "error", err)
				continue
			}
			c.metrics.HeartbeatSent()
		}
	}
}

func (c *Client) writeText(conn *websocket.Conn, text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (c *Client) emit(change Change) {
	if c.onState == nil {
		return
	}
	c.onState(change)
}
