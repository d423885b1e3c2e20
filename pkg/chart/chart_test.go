package chart

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/tradewire-go/tradewire/pkg/client"
)

type fakeConn struct {
	sends    [][]any
	sessions map[string]client.SessionHandler
}

func newFakeConn() *fakeConn {
	return &fakeConn{sessions: make(map[string]client.SessionHandler)}
}

func (f *fakeConn) Send(method string, params ...any) {
	f.sends = append(f.sends, append([]any{method}, params...))
}

func (f *fakeConn) RegisterSession(id string, h client.SessionHandler) error {
	f.sessions[id] = h
	return nil
}

func (f *fakeConn) UnregisterSession(id string) {
	delete(f.sessions, id)
}

func (f *fakeConn) methods() []string {
	var out []string
	for _, s := range f.sends {
		out = append(out, s[0].(string))
	}
	return out
}

func TestNewCreatesChartSession(t *testing.T) {
	conn := newFakeConn()
	s, err := New(conn)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !strings.HasPrefix(s.ID(), "cs_") {
		t.Errorf("ID() = %q, want cs_ prefix", s.ID())
	}
	if got := conn.methods(); len(got) != 1 || got[0] != "chart_create_session" {
		t.Errorf("sent methods = %v, want [chart_create_session]", got)
	}
}

func TestSetMarketResolvesAndCreatesSeries(t *testing.T) {
	conn := newFakeConn()
	s, _ := New(conn)
	conn.sends = nil

	s.SetMarket("BINANCE:BTCUSD", &Options{Timeframe: "1", Currency: "USD"})

	got := conn.methods()
	if len(got) != 2 || got[0] != "resolve_symbol" || got[1] != "create_series" {
		t.Fatalf("sent methods = %v, want [resolve_symbol create_series]", got)
	}

	resolve := conn.sends[0]
	init, _ := resolve[3].(string)
	if !strings.Contains(init, `"symbol":"BINANCE:BTCUSD"`) {
		t.Errorf("symbol init = %q, missing symbol", init)
	}
	if !strings.Contains(init, `"currency-id":"USD"`) {
		t.Errorf("symbol init = %q, missing currency", init)
	}

	series := conn.sends[1]
	if series[5] != "1" {
		t.Errorf("create_series timeframe = %v, want 1", series[5])
	}

	// A second market switch modifies the series instead of stacking a
	// new one.
	conn.sends = nil
	s.SetMarket("NASDAQ:AAPL", nil)
	got = conn.methods()
	if len(got) != 2 || got[1] != "modify_series" {
		t.Errorf("second SetMarket methods = %v, want modify_series", got)
	}
}

func TestSymbolResolved(t *testing.T) {
	conn := newFakeConn()
	s, _ := New(conn)

	var loaded map[string]any
	s.OnSymbolLoaded(client.CallbackFunc(func(args []any) {
		loaded, _ = args[0].(map[string]any)
	}))

	conn.sessions[s.ID()].HandleMessage(client.SessionMessage{
		Type: "symbol_resolved",
		Data: []any{s.ID(), "sds_sym_1", map[string]any{"description": "Bitcoin"}},
	})

	if loaded == nil || loaded["description"] != "Bitcoin" {
		t.Errorf("loaded infos = %v", loaded)
	}
	if infos := s.Infos(); infos["description"] != "Bitcoin" {
		t.Errorf("Infos() = %v", infos)
	}
}

func seriesUpdate(sessionID string, bars ...[]any) client.SessionMessage {
	entries := make([]any, 0, len(bars))
	for _, v := range bars {
		entries = append(entries, map[string]any{"v": v})
	}
	return client.SessionMessage{
		Type: "timescale_update",
		Data: []any{sessionID, map[string]any{
			"sds_1": map[string]any{"s": entries},
		}},
	}
}

func TestSeriesUpdateBuildsBars(t *testing.T) {
	conn := newFakeConn()
	s, _ := New(conn)

	var updates int
	s.OnUpdate(client.CallbackFunc(func(args []any) { updates++ }))

	h := conn.sessions[s.ID()]
	h.HandleMessage(seriesUpdate(s.ID(),
		[]any{1000.0, 10.0, 12.0, 9.0, 11.0, 100.0},
		[]any{1060.0, 11.0, 13.0, 10.0, 12.0, 80.0},
	))

	bars := s.Bars()
	if len(bars) != 2 {
		t.Fatalf("Bars() length = %d, want 2", len(bars))
	}
	if bars[0].Time != 1000 || bars[0].Close != 11 || bars[0].Volume != 100 {
		t.Errorf("first bar = %+v", bars[0])
	}

	// An update for the same bar time overwrites the candle.
	h.HandleMessage(client.SessionMessage{
		Type: "du",
		Data: []any{s.ID(), map[string]any{
			"sds_1": map[string]any{"s": []any{
				map[string]any{"v": []any{1060.0, 11.0, 14.0, 10.0, 13.5, 95.0}},
			}},
		}},
	})

	last, ok := s.Last()
	if !ok {
		t.Fatal("Last() = !ok")
	}
	if last.Time != 1060 || last.Close != 13.5 {
		t.Errorf("Last() = %+v, want updated 1060 bar", last)
	}
	if len(s.Bars()) != 2 {
		t.Errorf("Bars() length = %d after overwrite, want 2", len(s.Bars()))
	}
	if updates != 2 {
		t.Errorf("update callbacks = %d, want 2", updates)
	}
}

func TestSeriesError(t *testing.T) {
	conn := newFakeConn()
	s, _ := New(conn)

	var got []any
	s.OnError(client.CallbackFunc(func(args []any) { got = args }))

	conn.sessions[s.ID()].HandleMessage(client.SessionMessage{
		Type: "series_error",
		Data: []any{s.ID(), "sds_1", "resolve failed"},
	})

	if len(got) != 2 || got[1] != "resolve failed" {
		t.Errorf("error args = %v", got)
	}
}

func TestCompressedSeriesUpdate(t *testing.T) {
	conn := newFakeConn()
	s, _ := New(conn)

	raw := `{"s":[{"v":[2000,1,2,0.5,1.5,42]}]}`
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write([]byte(raw))
	zw.Close()
	packed := base64.StdEncoding.EncodeToString(buf.Bytes())

	conn.sessions[s.ID()].HandleMessage(client.SessionMessage{
		Type: "du",
		Data: []any{s.ID(), map[string]any{"sds_1": packed}},
	})

	last, ok := s.Last()
	if !ok {
		t.Fatal("Last() = !ok after compressed update")
	}
	if last.Time != 2000 || last.Volume != 42 {
		t.Errorf("Last() = %+v, want bar from compressed payload", last)
	}
}

func TestMalformedUpdatesIgnored(t *testing.T) {
	conn := newFakeConn()
	s, _ := New(conn)

	h := conn.sessions[s.ID()]
	h.HandleMessage(client.SessionMessage{Type: "timescale_update", Data: []any{s.ID()}})
	h.HandleMessage(client.SessionMessage{Type: "du", Data: []any{s.ID(), "not a map"}})
	h.HandleMessage(client.SessionMessage{
		Type: "du",
		Data: []any{s.ID(), map[string]any{"sds_1": map[string]any{"s": []any{
			map[string]any{"v": []any{1.0, 2.0}}, // too few values
		}}}},
	})

	if len(s.Bars()) != 0 {
		t.Errorf("Bars() = %v, want none from malformed updates", s.Bars())
	}
}
