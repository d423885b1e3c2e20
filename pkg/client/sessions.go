package client

import "sync"

// SessionMessage is one routed message delivered to a session handler:
// the method name and the full parameter list (the session id remains
// at Data[0]).
type SessionMessage struct {
	Type string
	Data []any
}

// SessionHandler consumes messages routed to one session. The read loop
// delivers messages in arrival order and does not decode the next
// inbound payload until HandleMessage returns, so a handler may block
// to apply backpressure. Handlers that want concurrency must hand off
// internally.
type SessionHandler interface {
	HandleMessage(msg SessionMessage)
}

// SessionHandlerFunc adapts a function into a SessionHandler.
type SessionHandlerFunc func(msg SessionMessage)

// HandleMessage calls the function.
func (f SessionHandlerFunc) HandleMessage(msg SessionMessage) {
	f(msg)
}

// sessionRegistry maps session ids to their handlers. Sessions register
// before or during connection setup and are never routed to after
// removal.
type sessionRegistry struct {
	mu       sync.RWMutex
	handlers map[string]SessionHandler
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{
		handlers: make(map[string]SessionHandler),
	}
}

func (r *sessionRegistry) register(id string, h SessionHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[id]; exists {
		return ErrSessionExists
	}
	r.handlers[id] = h
	return nil
}

func (r *sessionRegistry) unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, id)
}

func (r *sessionRegistry) lookup(id string) (SessionHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[id]
	return h, ok
}
