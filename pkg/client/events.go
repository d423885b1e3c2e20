package client

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

// Event names fired by the connection engine.
const (
	EventConnected    = "connected"    // socket opened; args: *websocket.Conn
	EventDisconnected = "disconnected" // cleanup complete; no args
	EventLogged       = "logged"       // handshake heuristic completed; args: first packet value
	EventPing         = "ping"         // heartbeat received; args: heartbeat id
	EventData         = "data"         // unrouted packet; args: packet value
	EventError        = "error"        // transport or protocol failure; args vary
	EventWildcard     = "event"        // every event; args: (name, args)
)

// Callback is the uniform invocation contract for event handlers. The
// dispatcher never branches on handler kind: blocking handlers run
// inline, non-blocking handlers are adapted so that Invoke schedules
// the work and returns immediately. Adapting is the adapter's job, not
// the dispatcher's.
type Callback interface {
	Invoke(args []any)
}

// CallbackFunc adapts a plain function into a blocking Callback. The
// firer waits for it to return.
type CallbackFunc func(args []any)

// Invoke calls the function inline.
func (f CallbackFunc) Invoke(args []any) {
	f(args)
}

// Async adapts a function into a non-blocking Callback: Invoke starts
// the function on its own goroutine and returns immediately. Panics in
// the function are contained and logged, never propagated to the firer.
func Async(fn func(args []any)) Callback {
	return asyncCallback{fn: fn}
}

type asyncCallback struct {
	fn func(args []any)
}

// Invoke is the containment of last resort, for async callbacks
// invoked outside a dispatcher (session objects fire their own
// callbacks directly). The dispatcher intercepts asyncCallback in
// invoke and applies its own logger and metrics instead.
func (a asyncCallback) Invoke(args []any) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("async callback panic",
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()
		a.fn(args)
	}()
}

// dispatcher maintains the per-client event registry. The registry is
// instance-owned and initialized in newDispatcher; it is never shared
// across clients.
type dispatcher struct {
	mu        sync.RWMutex
	callbacks map[string][]Callback
	logger    *slog.Logger
	metrics   *Metrics
}

func newDispatcher(logger *slog.Logger, metrics *Metrics) *dispatcher {
	return &dispatcher{
		callbacks: make(map[string][]Callback),
		logger:    logger,
		metrics:   metrics,
	}
}

// on appends a callback to the event's ordered list.
func (d *dispatcher) on(event string, cb Callback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callbacks[event] = append(d.callbacks[event], cb)
}

// fire invokes every callback registered for the event, then every
// wildcard callback with (event, args), in registration order. Panics
// inside a callback are contained here and never reach the engine.
func (d *dispatcher) fire(event string, args ...any) {
	d.mu.RLock()
	cbs := d.callbacks[event]
	wild := d.callbacks[EventWildcard]
	d.mu.RUnlock()

	for _, cb := range cbs {
		d.invoke(event, cb, args)
	}
	for _, cb := range wild {
		d.invoke(EventWildcard, cb, []any{event, args})
	}
}

// fireError fires the error event, falling back to the diagnostic log
// when no error handler is registered so failures are never silently
// dropped. The fallback does not run when a handler exists.
func (d *dispatcher) fireError(args ...any) {
	d.mu.RLock()
	n := len(d.callbacks[EventError])
	d.mu.RUnlock()

	if n == 0 {
		d.logger.Error("unhandled client error", "args", args)
		return
	}
	d.fire(EventError, args...)
}

// invoke runs one callback with panic containment. Async callbacks get
// the same containment on their own goroutine, so their panics reach
// the client's logger and metrics like inline ones do.
func (d *dispatcher) invoke(event string, cb Callback, args []any) {
	if ac, ok := cb.(asyncCallback); ok {
		go d.invoke(event, CallbackFunc(ac.fn), args)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.metrics.recordHandlerPanic()
			d.logger.Error("callback panic",
				"event", event,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	cb.Invoke(args)
}
