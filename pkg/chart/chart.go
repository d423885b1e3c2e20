package chart

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/tradewire-go/tradewire/pkg/client"
	"github.com/tradewire-go/tradewire/pkg/protocol"
)

// Conn is the subset of the connection engine a session needs.
// *client.Client satisfies it.
type Conn interface {
	Send(method string, params ...any)
	RegisterSession(id string, h client.SessionHandler) error
	UnregisterSession(id string)
}

// Bar is one candle of the active series.
type Bar struct {
	Time   float64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Options configures the market selection of a chart session.
type Options struct {
	// Timeframe is the candle resolution ("1", "5", "60", "D", ...).
	// Default: "240".
	Timeframe string

	// Range is the number of bars requested initially. Default: 100.
	Range int

	// Currency overrides the instrument currency ("USD", "EUR", ...).
	// Empty keeps the exchange default.
	Currency string

	// Adjustment selects the price adjustment mode. Default: "splits".
	Adjustment string
}

func (o *Options) normalize() {
	if o.Timeframe == "" {
		o.Timeframe = "240"
	}
	if o.Range <= 0 {
		o.Range = 100
	}
	if o.Adjustment == "" {
		o.Adjustment = "splits"
	}
}

// Session is a chart subscription: one resolved symbol with one candle
// series. It registers itself with the engine under a generated cs_ id.
type Session struct {
	conn Conn
	id   string

	mu       sync.Mutex
	seriesN  int
	symbolN  int
	bars     map[float64]Bar // keyed by bar time, updates overwrite
	infos    map[string]any
	onLoaded []client.Callback
	onUpdate []client.Callback
	onError  []client.Callback
}

// New creates a chart session and announces it to the feed.
func New(conn Conn) (*Session, error) {
	s := &Session{
		conn: conn,
		id:   "cs_" + randomSuffix(12),
		bars: make(map[float64]Bar),
	}
	if err := conn.RegisterSession(s.id, client.SessionHandlerFunc(s.handle)); err != nil {
		return nil, err
	}
	conn.Send("chart_create_session", s.id, "")
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// SetMarket resolves a symbol and creates (or replaces) the candle
// series for it.
func (s *Session) SetMarket(symbol string, opts *Options) {
	var o Options
	if opts != nil {
		o = *opts
	}
	o.normalize()

	s.mu.Lock()
	s.symbolN++
	s.seriesN++
	symbolID := fmt.Sprintf("sds_sym_%d", s.symbolN)
	seriesN := s.seriesN
	s.bars = make(map[float64]Bar)
	s.mu.Unlock()

	init := fmt.Sprintf(`={"symbol":%q,"adjustment":%q`, symbol, o.Adjustment)
	if o.Currency != "" {
		init += fmt.Sprintf(`,"currency-id":%q`, o.Currency)
	}
	init += "}"

	s.conn.Send("resolve_symbol", s.id, symbolID, init)
	if seriesN == 1 {
		s.conn.Send("create_series", s.id, "sds_1", fmt.Sprintf("s%d", seriesN),
			symbolID, o.Timeframe, o.Range, "")
	} else {
		s.conn.Send("modify_series", s.id, "sds_1", fmt.Sprintf("s%d", seriesN),
			symbolID, o.Timeframe, "")
	}
}

// Infos returns the resolved symbol description, or nil before
// symbol_resolved arrived.
func (s *Session) Infos() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.infos == nil {
		return nil
	}
	out := make(map[string]any, len(s.infos))
	for k, v := range s.infos {
		out[k] = v
	}
	return out
}

// Bars returns the known candles in ascending time order.
func (s *Session) Bars() []Bar {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Bar, 0, len(s.bars))
	for _, b := range s.bars {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// Last returns the most recent candle.
func (s *Session) Last() (Bar, bool) {
	bars := s.Bars()
	if len(bars) == 0 {
		return Bar{}, false
	}
	return bars[len(bars)-1], true
}

// OnSymbolLoaded registers a callback fired with (infos) once the
// symbol resolves.
func (s *Session) OnSymbolLoaded(cb client.Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLoaded = append(s.onLoaded, cb)
}

// OnUpdate registers a callback fired with (changedBars) on every
// series update.
func (s *Session) OnUpdate(cb client.Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = append(s.onUpdate, cb)
}

// OnError registers a callback fired with the feed's error parameters.
func (s *Session) OnError(cb client.Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = append(s.onError, cb)
}

// Delete tears the session down and unregisters it from the engine.
func (s *Session) Delete() {
	s.conn.Send("chart_delete_session", s.id)
	s.conn.UnregisterSession(s.id)
}

// handle consumes messages routed to this session by the read loop.
func (s *Session) handle(msg client.SessionMessage) {
	switch msg.Type {
	case "symbol_resolved":
		s.handleSymbolResolved(msg.Data)
	case "timescale_update", "du":
		s.handleSeriesUpdate(msg.Data)
	case "series_error", "critical_error":
		var args []any
		if len(msg.Data) > 1 {
			args = msg.Data[1:]
		}
		s.fire(s.callbacks(&s.onError), args...)
	}
}

// handleSymbolResolved stores p[2], the instrument description.
func (s *Session) handleSymbolResolved(data []any) {
	if len(data) < 3 {
		return
	}
	infos, ok := data[2].(map[string]any)
	if !ok {
		return
	}
	s.mu.Lock()
	s.infos = infos
	s.mu.Unlock()
	s.fire(s.callbacks(&s.onLoaded), infos)
}

// handleSeriesUpdate merges p[1]'s series node: {"sds_1": {"s": [{i, v:
// [time, open, high, low, close, volume]}]}}. Bars arrive keyed by
// time; an update for an existing time overwrites that candle.
func (s *Session) handleSeriesUpdate(data []any) {
	if len(data) < 2 {
		return
	}
	node, ok := data[1].(map[string]any)
	if !ok {
		return
	}

	var changed []Bar
	for _, seriesNode := range node {
		// Large snapshots can arrive zlib-compressed as a base64 string
		// in place of the series object.
		if packed, ok := seriesNode.(string); ok {
			unpacked, err := protocol.ParseCompressed(packed)
			if err != nil {
				s.fire(s.callbacks(&s.onError), err)
				continue
			}
			seriesNode = unpacked
		}
		series, ok := seriesNode.(map[string]any)
		if !ok {
			continue
		}
		entries, ok := series["s"].([]any)
		if !ok {
			continue
		}
		for _, e := range entries {
			entry, ok := e.(map[string]any)
			if !ok {
				continue
			}
			values, ok := entry["v"].([]any)
			if !ok || len(values) < 5 {
				continue
			}
			bar := Bar{
				Time:  toFloat(values[0]),
				Open:  toFloat(values[1]),
				High:  toFloat(values[2]),
				Low:   toFloat(values[3]),
				Close: toFloat(values[4]),
			}
			if len(values) > 5 {
				bar.Volume = toFloat(values[5])
			}
			changed = append(changed, bar)
		}
	}
	if len(changed) == 0 {
		return
	}

	s.mu.Lock()
	for _, b := range changed {
		s.bars[b.Time] = b
	}
	s.mu.Unlock()

	s.fire(s.callbacks(&s.onUpdate), changed)
}

func toFloat(v any) float64 {
	f, _ := v.(float64)
	return f
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
