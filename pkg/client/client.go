package client

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tradewire-go/tradewire/pkg/protocol"
)

// tracerName is the otel tracer used for connection spans.
const tracerName = "tradewire"

// methodProtocolError marks a server message signaling a fatal
// condition.
const methodProtocolError = "protocol_error"

// Client is a streaming data feed client. It owns the socket, runs the
// read and write loops, drives the connection state machine, and routes
// every inbound packet to a session, the login transition, or the event
// dispatcher.
//
// A Client is safe for concurrent use: Send, Close, session
// registration and callback registration may be called from any
// goroutine.
type Client struct {
	cfg     *Config
	logger  *slog.Logger
	codec   *protocol.PacketCodec
	metrics *Metrics

	state  atomic.Int32
	opened atomic.Bool
	logged atomic.Bool

	// closing is set by Close and read by the loops so a user-requested
	// shutdown is not reported as a transport error.
	closing atomic.Bool

	connMu sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc

	queue    *sendQueue
	sessions *sessionRegistry
	events   *dispatcher

	writerDone chan struct{}
}

// New creates a Client. A nil config uses DefaultConfig. The initial
// set_auth_token packet is queued immediately; it is written once the
// connection authenticates.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.normalize()

	c := &Client{
		cfg:      cfg,
		logger:   cfg.Logger,
		codec:    cfg.Codec,
		metrics:  cfg.Metrics,
		queue:    newSendQueue(),
		sessions: newSessionRegistry(),
		events:   newDispatcher(cfg.Logger, cfg.Metrics),
	}
	c.Send("set_auth_token", cfg.AuthToken)
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Logged reports whether the handshake heuristic has completed.
func (c *Client) Logged() bool {
	return c.logged.Load()
}

// setState records a state transition.
func (c *Client) setState(s State) {
	c.state.Store(int32(s))
	c.metrics.recordState(s)
}

// On registers a callback for the named event.
func (c *Client) On(event string, cb Callback) {
	c.events.on(event, cb)
}

// OnEvent registers a wildcard callback receiving (eventName, args)
// for every fired event.
func (c *Client) OnEvent(cb Callback) {
	c.events.on(EventWildcard, cb)
}

// OnConnected registers a callback for the connected event.
func (c *Client) OnConnected(cb Callback) { c.events.on(EventConnected, cb) }

// OnDisconnected registers a callback for the disconnected event.
func (c *Client) OnDisconnected(cb Callback) { c.events.on(EventDisconnected, cb) }

// OnLogged registers a callback for the logged event.
func (c *Client) OnLogged(cb Callback) { c.events.on(EventLogged, cb) }

// OnPing registers a callback for the ping event.
func (c *Client) OnPing(cb Callback) { c.events.on(EventPing, cb) }

// OnData registers a callback for the data event.
func (c *Client) OnData(cb Callback) { c.events.on(EventData, cb) }

// OnError registers a callback for the error event. With no error
// callback registered, errors fall back to the diagnostic log.
func (c *Client) OnError(cb Callback) { c.events.on(EventError, cb) }

// RegisterSession registers a handler under a session id. Inbound
// packets whose p[0] matches the id are routed to it, in arrival order.
func (c *Client) RegisterSession(id string, h SessionHandler) error {
	return c.sessions.register(id, h)
}

// UnregisterSession removes a session; it is never routed to afterward.
func (c *Client) UnregisterSession(id string) {
	c.sessions.unregister(id)
}

// Send queues a method call {"m": method, "p": params}. It never
// blocks and may be called before Connect; frames queue until the
// write loop starts consuming after authentication.
func (c *Client) Send(method string, params ...any) {
	if params == nil {
		params = []any{}
	}
	frame, err := c.codec.FormatPacket(map[string]any{"m": method, "p": params})
	if err != nil {
		c.logger.Error("encode error", "method", method, "error", err)
		return
	}
	c.pushFrame(frame)
}

// SendRaw queues a pre-serialized payload (heartbeat echoes), wrapping
// it in a frame unchanged.
func (c *Client) SendRaw(payload string) {
	frame, err := c.codec.FormatPacket(payload)
	if err != nil {
		c.logger.Error("encode error", "error", err)
		return
	}
	c.pushFrame(frame)
}

func (c *Client) pushFrame(frame string) {
	c.queue.push(frame)
	c.metrics.recordQueueDepth(c.queue.depth())
}

// Connect dials the feed and blocks until the connection is closed, by
// the peer or by Close. The connected event fires once the socket
// opens; cleanup always fires disconnected, even when the dial fails
// or Close arrives before the socket opens.
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}
	c.metrics.recordState(StateConnecting)
	c.closing.Store(false)
	c.writerDone = make(chan struct{})

	ctx, cancel := context.WithCancel(ctx)
	c.connMu.Lock()
	c.cancel = cancel
	c.connMu.Unlock()

	defer c.cleanup(cancel)

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "client.connect")
	span.SetAttributes(attribute.String("url", c.cfg.URL))

	conn, err := c.dial(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		span.End()
		close(c.writerDone) // writer never started
		// A dial aborted by Close is the requested outcome, not an
		// error.
		if c.closing.Load() {
			return nil
		}
		c.events.fireError("connection error", err)
		return &ConnError{Op: "dial", Err: err}
	}
	span.End()

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	// Close may have raced the dial.
	if c.closing.Load() {
		conn.Close()
		close(c.writerDone)
		return nil
	}

	c.opened.Store(true)
	c.setState(StateOpen)
	c.events.fire(EventConnected, conn)

	go c.writeLoop(ctx)
	c.readLoop()
	return nil
}

// dial opens the WebSocket with the feed's origin header. The feed uses
// its own application-level heartbeat, so gorilla's protocol-level
// ping/pong handlers are left uninstalled.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	header := http.Header{"Origin": []string{c.cfg.Origin}}

	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			c.logger.Error("dial failed", "status", resp.StatusCode, "error", err)
		}
		return nil, err
	}
	return conn, nil
}

// readLoop processes inbound transport messages until the socket
// closes. It owns all inbound state transitions.
func (c *Client) readLoop() {
	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			// A clean peer close or our own Close is not an error.
			if !c.closing.Load() &&
				!errors.Is(err, net.ErrClosed) &&
				!websocket.IsCloseError(err,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure) {
				c.metrics.recordReadError()
				c.events.fireError("receive error", &ConnError{Op: "read", Err: err})
			}
			return
		}

		c.handleMessage(string(msg))

		// Handshake heuristic: the first inbound message implies the
		// server accepted us. There is no explicit acknowledgment to
		// wait for.
		if !c.logged.Load() && c.opened.Load() {
			c.logged.Store(true)
			c.setState(StateAuthenticated)
		}
	}
}

// handleMessage decodes one transport message and classifies every
// packet in it: heartbeat, protocol error, session-addressed, login
// transition, or generic data.
func (c *Client) handleMessage(raw string) {
	if !c.opened.Load() {
		return
	}

	packets := c.codec.ParsePackets(raw)
	c.metrics.recordFrames(len(packets))

	for _, pkt := range packets {
		if id, ok := pkt.Heartbeat(); ok {
			c.SendRaw(protocol.HeartbeatMarker + strconv.FormatInt(id, 10))
			c.metrics.recordHeartbeat()
			c.events.fire(EventPing, id)
			continue
		}

		// Fatal server condition: report, force close, and drop any
		// packets remaining in this transport message.
		if pkt.Method() == methodProtocolError {
			c.metrics.recordRouted("protocol_error")
			c.events.fireError("server critical error", &ProtocolError{Params: pkt.Params()})
			c.Close()
			return
		}

		if pkt.Method() != "" && pkt.Params() != nil {
			if id := pkt.SessionID(); id != "" {
				if h, ok := c.sessions.lookup(id); ok {
					c.metrics.recordRouted("session")
					c.deliver(id, h, SessionMessage{Type: pkt.Method(), Data: pkt.Params()})
					continue
				}
			}
		}

		if !c.logged.Load() {
			c.metrics.recordRouted("logged")
			c.events.fire(EventLogged, pkt.Value())
			continue
		}

		c.metrics.recordRouted("data")
		c.events.fire(EventData, pkt.Value())
	}
}

// deliver hands a routed message to a session handler, containing
// panics at the dispatch boundary. Delivery is synchronous: per-session
// ordering holds because the read loop waits for it.
func (c *Client) deliver(id string, h SessionHandler, msg SessionMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.recordHandlerPanic()
			c.logger.Error("session handler panic",
				"session", id,
				"type", msg.Type,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	h.HandleMessage(msg)
}

// writeLoop drains the send queue onto the socket. It gates on the
// authenticated flag so no application traffic reaches the wire before
// the handshake heuristic completes, and it survives individual write
// failures: a transient error must not kill the connection silently.
func (c *Client) writeLoop(ctx context.Context) {
	defer close(c.writerDone)

	for {
		if !c.logged.Load() {
			select {
			case <-time.After(c.cfg.AuthPollInterval):
			case <-ctx.Done():
				return
			}
			continue
		}

		item, ok := c.queue.pop(ctx)
		if !ok || item.stop {
			return
		}
		c.metrics.recordQueueDepth(c.queue.depth())

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil || !c.opened.Load() {
			continue
		}

		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(item.data)); err != nil {
			c.metrics.recordWriteError()
			c.logger.Error("write error", "error", err)
		}
	}
}

// cleanup tears the connection down. It is idempotent and safe to run
// even when the loops never started: it resets the authenticated flag,
// signals the write loop with the sentinel, waits for it, and fires
// disconnected.
func (c *Client) cleanup(cancel context.CancelFunc) {
	c.setState(StateClosing)
	c.opened.Store(false)
	c.logged.Store(false)

	cancel()
	c.queue.pushSentinel()
	<-c.writerDone

	// The write loop may have exited on cancellation without consuming
	// the sentinel; queued frames stay, stale sentinels must not.
	c.queue.drainSentinels()

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.cancel = nil
	c.connMu.Unlock()

	c.setState(StateDisconnected)
	c.events.fire(EventDisconnected)
}

// Close requests a cooperative shutdown: it closes the socket to
// unblock the read loop and cancels the connect context. It is
// idempotent and safe to call before or without Connect; the blocked
// Connect call performs the actual cleanup and fires disconnected.
func (c *Client) Close() error {
	c.closing.Store(true)

	c.connMu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.connMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	return nil
}
