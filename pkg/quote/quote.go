package quote

import (
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/tradewire-go/tradewire/pkg/client"
)

// Conn is the subset of the connection engine a session needs: a gated
// send path and session registration. *client.Client satisfies it.
type Conn interface {
	Send(method string, params ...any)
	RegisterSession(id string, h client.SessionHandler) error
	UnregisterSession(id string)
}

// DefaultFields are the quote fields requested when none are given.
var DefaultFields = []string{
	"lp", "ch", "chp", "lp_time", "volume",
	"description", "exchange", "currency_code",
	"original_name", "pro_name", "short_name", "type", "update_mode",
}

// Options configures a quote session.
type Options struct {
	// Fields are the quote fields to subscribe to.
	// Default: DefaultFields.
	Fields []string
}

// Session is a live quote subscription channel. It registers itself
// with the connection engine under a generated qs_ id and receives qsd
// updates for the symbols it watches.
type Session struct {
	conn Conn
	id   string

	mu      sync.Mutex
	values  map[string]map[string]any // symbol -> merged field values
	onData  []client.Callback
	onLoad  []client.Callback
	onError []client.Callback
}

// New creates a quote session and announces it to the feed. The
// create/set_fields packets queue immediately and reach the wire once
// the connection authenticates.
func New(conn Conn, opts *Options) (*Session, error) {
	fields := DefaultFields
	if opts != nil && len(opts.Fields) > 0 {
		fields = opts.Fields
	}

	s := &Session{
		conn:   conn,
		id:     "qs_" + randomSuffix(12),
		values: make(map[string]map[string]any),
	}
	if err := conn.RegisterSession(s.id, client.SessionHandlerFunc(s.handle)); err != nil {
		return nil, err
	}

	conn.Send("quote_create_session", s.id)

	params := make([]any, 0, len(fields)+1)
	params = append(params, s.id)
	for _, f := range fields {
		params = append(params, f)
	}
	conn.Send("quote_set_fields", params...)

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// AddSymbols subscribes the session to the given symbols.
func (s *Session) AddSymbols(symbols ...string) {
	params := make([]any, 0, len(symbols)+1)
	params = append(params, s.id)
	for _, sym := range symbols {
		params = append(params, sym)
	}
	s.conn.Send("quote_add_symbols", params...)
}

// RemoveSymbols unsubscribes the session from the given symbols.
func (s *Session) RemoveSymbols(symbols ...string) {
	params := make([]any, 0, len(symbols)+1)
	params = append(params, s.id)
	for _, sym := range symbols {
		params = append(params, sym)
	}
	s.conn.Send("quote_remove_symbols", params...)
}

// Values returns a copy of the merged field values for a symbol.
func (s *Session) Values(symbol string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[symbol]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out, true
}

// OnData registers a callback fired with (symbol, values) on every
// quote update.
func (s *Session) OnData(cb client.Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onData = append(s.onData, cb)
}

// OnLoaded registers a callback fired with (symbol) when the feed
// finishes the initial snapshot for a symbol.
func (s *Session) OnLoaded(cb client.Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLoad = append(s.onLoad, cb)
}

// OnError registers a callback fired with (symbol, status) when the
// feed reports a bad symbol.
func (s *Session) OnError(cb client.Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = append(s.onError, cb)
}

// Delete tears the session down on the feed and unregisters it from
// the engine. The session is never routed to afterward.
func (s *Session) Delete() {
	s.conn.Send("quote_delete_session", s.id)
	s.conn.UnregisterSession(s.id)
}

// handle consumes messages routed to this session by the read loop.
func (s *Session) handle(msg client.SessionMessage) {
	switch msg.Type {
	case "qsd":
		s.handleQuoteData(msg.Data)
	case "quote_completed":
		if len(msg.Data) > 1 {
			if symbol, ok := msg.Data[1].(string); ok {
				s.fire(s.callbacks(&s.onLoad), symbol)
			}
		}
	}
}

// handleQuoteData merges a qsd update: p[1] is {n: symbol, s: status,
// v: {field: value}}.
func (s *Session) handleQuoteData(data []any) {
	if len(data) < 2 {
		return
	}
	update, ok := data[1].(map[string]any)
	if !ok {
		return
	}
	symbol, _ := update["n"].(string)
	if symbol == "" {
		return
	}

	if status, _ := update["s"].(string); status == "error" {
		s.fire(s.callbacks(&s.onError), symbol, status)
		return
	}

	fields, _ := update["v"].(map[string]any)

	s.mu.Lock()
	merged := s.values[symbol]
	if merged == nil {
		merged = make(map[string]any)
		s.values[symbol] = merged
	}
	for k, v := range fields {
		merged[k] = v
	}
	snapshot := make(map[string]any, len(merged))
	for k, v := range merged {
		snapshot[k] = v
	}
	s.mu.Unlock()

	s.fire(s.callbacks(&s.onData), symbol, snapshot)
}

func (s *Session) callbacks(list *[]client.Callback) []client.Callback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]client.Callback(nil), *list...)
}

func (s *Session) fire(cbs []client.Callback, args ...any) {
	for _, cb := range cbs {
		cb.Invoke(args)
	}
}

// randomSuffix returns n random hex characters.
func randomSuffix(n int) string {
	b := make([]byte, (n+1)/2)
	rand.Read(b)
	return hex.EncodeToString(b)[:n]
}
